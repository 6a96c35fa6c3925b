// @title         devflow API
// @version       0.1.0
// @description   Developer productivity metrics, collection runs and data quality reports

package main

import (
	"context"
	"os/signal"
	"syscall"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
	"devflow/internal/core/version"
	"devflow/internal/platform/config"
	"devflow/internal/platform/logger"
	phttp "devflow/internal/platform/net/http"
	"devflow/internal/platform/store"

	"devflow/internal/services/api"
)

func main() {
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	l := logger.Get()
	l.Info().Str("build", version.Info(api.ServiceName, devmetrics.SchemaVersion).String()).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.FromConfig(root, "api"), store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	ids, err := identity.Open(root)
	if err != nil {
		l.Fatal().Err(err).Msg("identity registry failed to load")
	}

	srv := phttp.NewServer(root)
	if _, err := api.Mount(ctx, srv.Router(), api.Options{
		Config:         root,
		Store:          st,
		Identity:       ids,
		EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
		EnableProfiler: apiCfg.MayBool("PROFILER", false),
	}); err != nil {
		l.Fatal().Err(err).Msg("api mount failed")
	}

	if err := srv.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("http server stopped")
	}
}
