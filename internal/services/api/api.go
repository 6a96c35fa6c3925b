// Package api composes the HTTP API from the service modules
package api

import (
	"context"

	"devflow/internal/core/identity"
	"devflow/internal/modkit"
	"devflow/internal/modkit/httpkit"
	"devflow/internal/modkit/module"
	"devflow/internal/modkit/swaggerkit"
	"devflow/internal/platform/config"
	"devflow/internal/platform/logger"
	phttp "devflow/internal/platform/net/http"
	"devflow/internal/platform/store"

	metamod "devflow/internal/services/api/meta/module"
	ingestmod "devflow/internal/services/ingest/module"
	metricsmod "devflow/internal/services/metrics/module"
	qualitymod "devflow/internal/services/quality/module"
)

// ServiceName identifies the API binary in meta output and logs
const ServiceName = "devflow-api"

// Options are the API options
type Options struct {
	Config   config.Conf
	Store    *store.Store
	Identity *identity.Resolver

	EnableSwagger  bool
	EnableProfiler bool
}

// Mount builds every module and mounts them under /api/v1.
// Ingestion is read only here: runs are started by devflow-ingest
func Mount(ctx context.Context, r phttp.Router, opt Options) ([]module.Module, error) {
	deps := modkit.FromStore(opt.Config, opt.Store)

	metrics := metricsmod.New(deps, opt.Identity)
	if err := metrics.Prepare(ctx); err != nil {
		return nil, err
	}

	mods := []module.Module{
		metamod.New(deps, ServiceName),
		ingestmod.New(deps, nil),
		metrics,
		qualitymod.New(deps),
	}

	swaggerkit.Mount(r, opt.EnableSwagger)
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

	log := logger.C(ctx)
	httpkit.MountAPIV1(r, httpkit.CommonStack(httpkit.StackFromConfig(opt.Config)), func(api httpkit.Router) {
		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
			log.Debug().Str("module", m.Name()).Msg("api: module mounted")
		}
	})
	return mods, nil
}
