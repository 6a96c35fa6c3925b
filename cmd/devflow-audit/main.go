package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"devflow/internal/core/quality"
	"devflow/internal/modkit"
	"devflow/internal/modkit/module"
	"devflow/internal/platform/config"
	"devflow/internal/platform/logger"
	"devflow/internal/platform/store"

	qualitymod "devflow/internal/services/quality/module"
)

func main() {
	var (
		fStrict = flag.Bool("strict", false, "exit 2 when the report status is failed")
		fDry    = flag.Bool("dryrun", false, "run the checks without storing the report")
	)
	flag.Parse()

	l := logger.Get()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := config.New()
	st, err := store.Open(ctx, store.FromConfig(root, "audit"), store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}

	qm := qualitymod.New(modkit.FromStore(root, st))
	module.Register(qm.Name(), qm.Ports())

	rep, err := qm.Audit().Audit(ctx, qm.Persist() && !*fDry)
	if cerr := st.Close(context.Background()); cerr != nil {
		l.Error().Err(cerr).Msg("failed to close store")
	}
	if err != nil {
		l.Fatal().Err(err).Msg("quality audit failed")
	}

	for _, c := range rep.Checks {
		l.Info().Str("check", c.Name).Str("status", string(c.Status)).Float64("score", c.Score).Strs("issues", c.Issues).Msg("quality check")
	}
	if *fStrict && rep.Status == quality.StatusFailed {
		os.Exit(2)
	}
}
