// Package module wires meta endpoints into the API
package module

import (
	"net/http"
	"time"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/version"
	modkit "devflow/internal/modkit"
	"devflow/internal/modkit/httpkit"
	str "devflow/internal/platform/strings"
	metahttp "devflow/internal/services/api/meta/http"
)

// Module implements module.Module
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the meta module; service names the binary in health and version output
func New(deps modkit.Deps, service string, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("meta"), modkit.WithPrefix("/meta")}, opts...)...)

	m := &Module{name: b.Name, prefix: b.Prefix, mws: b.Mw, subrouter: b.Subrouter}

	d := metahttp.Deps{
		ServiceName:  service,
		StartedAt:    time.Now(),
		Build:        version.Info(service, devmetrics.SchemaVersion),
		PG:           deps.PG,
		CHRequired:   deps.Cfg.Prefix("CORE_METRICS_").MayBool("MIRROR_CH", false),
		ReadyTimeout: deps.Cfg.Prefix("CORE_API_").MayDuration("READY_TIMEOUT", 2*time.Second),
	}
	if deps.CH != nil {
		d.CH = deps.CH
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		metahttp.Register(r, d)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts meta endpoints under the module prefix
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.Prefix(), m.mws, func(rr httpkit.Router) {
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		m.register(rr)
	})
}

// Name implements module.Module
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports implements module.Module; meta exposes none
func (m *Module) Ports() any { return nil }
