// Package module wires the data quality auditor into the runtime
package module

import (
	"net/http"

	modkit "devflow/internal/modkit"
	"devflow/internal/modkit/httpkit"
	"devflow/internal/modkit/repokit"
	str "devflow/internal/platform/strings"
	"devflow/internal/services/quality/domain"
	qualityhttp "devflow/internal/services/quality/http"
	"devflow/internal/services/quality/repo"
	"devflow/internal/services/quality/service"
)

// Ports exposed by the quality module
type Ports struct {
	Audit domain.AuditPort
}

// Module implements the quality module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	ports   Ports
	persist bool
}

// New constructs the quality module
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("quality"), modkit.WithPrefix("/quality")}, opts...)...)
	o := FromConfig(deps.Cfg)

	db := repokit.WithBeginHooks(deps.PG, repokit.StatementTimeout(o.StatementTimeout))
	svc := service.New(db, repo.NewPG(), o.Thresholds)
	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		ports:     Ports{Audit: svc},
		persist:   o.Persist,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		qualityhttp.Register(r, m.ports.Audit)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts report endpoints under the module prefix
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

// Audit is a typed shortcut for commands
func (m *Module) Audit() domain.AuditPort { return m.ports.Audit }

// Persist reports whether the audit command should store its report
func (m *Module) Persist() bool { return m.persist }
