// Package module wires metrics computation into the runtime
package module

import (
	"context"
	"net/http"

	"devflow/internal/core/devmetrics"
	modkit "devflow/internal/modkit"
	"devflow/internal/modkit/httpkit"
	"devflow/internal/platform/logger"
	str "devflow/internal/platform/strings"
	"devflow/internal/services/export"
	"devflow/internal/services/metrics/domain"
	metricshttp "devflow/internal/services/metrics/http"
	"devflow/internal/services/metrics/repo"
	"devflow/internal/services/metrics/service"
)

// Ports exposed by the metrics module
type Ports struct {
	Compute domain.ComputePort
	Catalog *devmetrics.Catalog
}

// Module implements the metrics module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	ports  Ports
	mirror *repo.CH
	export *export.Writer
}

// New constructs the metrics module over an identity resolver
func New(deps modkit.Deps, ids domain.IdentityPort, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("metrics"), modkit.WithPrefix("/metrics")}, opts...)...)
	o := FromConfig(deps.Cfg)

	engine := devmetrics.NewEngine(devmetrics.Compile(o.Rules), devmetrics.WithMinSample(o.MinSample))
	svc := service.New(deps.PG, repo.NewPG(), engine, ids, service.Config{
		Windows:       o.Windows,
		BatchParallel: o.BatchParallel,
		DBTimeout:     o.DBTimeout,
	})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	if o.MirrorCH {
		if deps.CH == nil {
			logger.Named("metrics").Warn().Msg("CORE_METRICS_MIRROR_CH set without a clickhouse client; mirror disabled")
		} else {
			m.mirror = repo.NewCH(deps.CH)
			svc.Mirror = m.mirror
		}
	}
	if o.ExportDir != "" {
		m.export = export.New(o.ExportDir)
		svc.Exporter = m.export
	}
	m.ports = Ports{Compute: svc, Catalog: devmetrics.NewCatalog()}

	external := b.Register
	m.register = func(r httpkit.Router) {
		metricshttp.Register(r, m.ports.Compute, m.ports.Catalog)
		if external != nil {
			external(r)
		}
	}
	return m
}

// Prepare creates the mirror table and writes the catalog file when those sinks are on
func (m *Module) Prepare(ctx context.Context) error {
	if m.mirror != nil {
		if err := m.mirror.Ensure(ctx); err != nil {
			return err
		}
	}
	if m.export != nil {
		path, err := m.export.WriteCatalog(m.ports.Catalog)
		if err != nil {
			return err
		}
		logger.C(ctx).Info().Str("path", path).Msg("metrics: catalog exported")
	}
	return nil
}

// MountRoutes mounts compute and catalog endpoints under the module prefix
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

// Compute is a typed shortcut for commands
func (m *Module) Compute() domain.ComputePort { return m.ports.Compute }
