// Package module wires the ingestion coordinator into the runtime
package module

import (
	"net/http"

	"devflow/internal/adapters/gitlab"
	"devflow/internal/core/identity"
	modkit "devflow/internal/modkit"
	"devflow/internal/modkit/httpkit"
	"devflow/internal/platform/config"
	str "devflow/internal/platform/strings"
	"devflow/internal/services/ingest/domain"
	ingesthttp "devflow/internal/services/ingest/http"
	"devflow/internal/services/ingest/repo"
	"devflow/internal/services/ingest/service"
	"devflow/internal/services/ingest/upstream"
)

// Ports exposed by the ingest module
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the ingest module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	ports Ports
}

// NewSource builds the GitLab backed upstream from SERVICE_GITLAB_* and CORE_IDENTITY_*
func NewSource(cfg config.Conf) (domain.Source, error) {
	gl := gitlab.FromConfig(cfg)
	client, err := gitlab.New(gl, nil)
	if err != nil {
		return nil, err
	}
	ids, err := identity.Open(cfg)
	if err != nil {
		return nil, err
	}
	opts := FromConfig(cfg)
	return upstream.New(client, ids, upstream.Options{
		CheckSignatures: opts.CheckSignatures,
		PipelineJobs:    opts.PipelineJobs,
		GroupPath:       gl.GroupPath,
	}), nil
}

// New constructs the ingest module.
// src may be nil in processes that only read run history
func New(deps modkit.Deps, src domain.Source, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("ingest"), modkit.WithPrefix("/ingest")}, opts...)...)
	o := FromConfig(deps.Cfg)

	svc := service.New(deps.PG, repo.NewPG(), src, service.Config{
		MaxParallel:         o.MaxParallel,
		DiscoveryRefresh:    o.DiscoveryRefresh,
		IncrementalFallback: o.IncrementalFallback,
		BackfillDays:        o.BackfillDays,
		MaxRetries:          o.MaxRetries,
		RetryBase:           o.RetryBase,
		RetryCap:            o.RetryCap,
		ProjectTimeout:      o.ProjectTimeout,
		DBTimeout:           o.DBTimeout,
		EnableLease:         o.EnableLease,
		LeaseTTL:            o.LeaseTTL,
	})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		ports:     Ports{Runner: svc},
	}
	external := b.Register
	m.register = func(r httpkit.Router) {
		ingesthttp.Register(r, m.ports.Runner)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the run history endpoints under the module prefix
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.Prefix(), m.mws, func(rr httpkit.Router) {
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		m.register(rr)
	})
}

// Name implements modkit.Module
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.ports }
