package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"devflow/internal/modkit"
	"devflow/internal/modkit/module"
	"devflow/internal/platform/config"
	"devflow/internal/platform/logger"
	"devflow/internal/platform/store"

	"devflow/internal/services/ingest/domain"
	ingestmod "devflow/internal/services/ingest/module"
)

func main() {
	root := config.New()
	def := root.Prefix("CORE_INGEST_").MayEnum("TRIGGER", string(domain.KindIncremental),
		string(domain.KindIncremental), string(domain.KindBackfill), string(domain.KindDiscovery))

	var (
		fTrigger = flag.String("trigger", def, "run kind: incremental | backfill | discovery (default CORE_INGEST_TRIGGER)")
		fDays    = flag.Int("days", 0, "backfill window in days (0 = CORE_INGEST_BACKFILL_DAYS)")
	)
	flag.Parse()

	l := logger.Get()
	kind := domain.TriggerKind(*fTrigger)
	if !kind.Valid() {
		l.Fatal().Str("trigger", *fTrigger).Msg("unknown -trigger")
	}
	if *fDays < 0 {
		l.Fatal().Int("days", *fDays).Msg("-days must not be negative")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.FromConfig(root, "ingest"), store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	src, err := ingestmod.NewSource(root)
	if err != nil {
		l.Fatal().Err(err).Msg("gitlab source setup failed")
	}

	im := ingestmod.New(modkit.FromStore(root, st), src)
	module.Register(im.Name(), im.Ports())
	ports := module.MustPortsOf[ingestmod.Ports](im)

	run, err := ports.Runner.Run(ctx, domain.Trigger{Kind: kind, BackfillDays: *fDays})
	if err != nil {
		l.Fatal().Err(err).Str("trigger", *fTrigger).Msg("collection run failed")
	}
	l.Info().
		Str("run_id", run.ID.String()).
		Str("status", string(run.State)).
		Int("projects_ok", run.ProjectsOK).
		Int("projects_failed", run.ProjectsFailed).
		Int("commits", run.Commits).
		Int("merge_requests", run.MergeRequests).
		Int("pipelines", run.Pipelines).
		Msg("collection run finished")
}
