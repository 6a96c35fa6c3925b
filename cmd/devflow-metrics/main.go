package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
	"devflow/internal/modkit"
	"devflow/internal/modkit/module"
	"devflow/internal/platform/config"
	"devflow/internal/platform/logger"
	"devflow/internal/platform/store"

	"devflow/internal/services/metrics/domain"
	metricsmod "devflow/internal/services/metrics/module"
)

// parseEnd accepts YYYY-MM-DD (midnight UTC) or RFC3339; empty means now
func parseEnd(v string) (time.Time, error) {
	if v == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad -end %q: want YYYY-MM-DD or RFC3339", v)
}

func main() {
	var (
		fEnd       = flag.String("end", "", "exclusive window end (UTC) YYYY-MM-DD or RFC3339; default now")
		fDev       = flag.String("developer", "", "compute one developer id or alias instead of the full snapshot")
		fWindow    = flag.Int("window", 28, "window in days when -developer is set")
		fExclude   = flag.Bool("exclusions", true, "apply commit, branch and file exclusion rules")
		fWinsorize = flag.Bool("winsorize", false, "clip numeric samples to the 5th and 95th percentiles")
	)
	flag.Parse()

	l := logger.Get()
	end, err := parseEnd(*fEnd)
	if err != nil {
		l.Fatal().Err(err).Msg("invalid flags")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := config.New()
	st, err := store.Open(ctx, store.FromConfig(root, "metrics"), store.WithLogger(*l))
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

	mm := metricsmod.New(modkit.FromStore(root, st), ids)
	if err := mm.Prepare(ctx); err != nil {
		l.Fatal().Err(err).Msg("metrics sinks failed to prepare")
	}
	module.Register(mm.Name(), mm.Ports())
	compute := module.MustPortsOf[metricsmod.Ports](mm).Compute

	flags := domain.Options{
		WindowEnd:          end,
		ApplyExclusions:    *fExclude,
		ApplyWinsorization: *fWinsorize,
	}

	if *fDev != "" {
		flags.WindowDays = *fWindow
		res, err := compute.Compute(ctx, *fDev, flags)
		if err != nil {
			l.Fatal().Err(err).Str("developer", *fDev).Msg("compute failed")
		}
		sum, err := compute.Record(ctx, []devmetrics.Result{res})
		if err != nil {
			l.Fatal().Err(err).Msg("record failed")
		}
		l.Info().Str("developer_id", res.DeveloperID).Int("window_days", *fWindow).Ints64("snapshots", sum.Snapshots).Msg("developer snapshot recorded")
		return
	}

	sum, err := compute.Snapshot(ctx, end, flags)
	if err != nil {
		l.Fatal().Err(err).Msg("snapshot failed")
	}
	l.Info().
		Int("snapshots", len(sum.Snapshots)).
		Int("mirrored", sum.Mirrored).
		Int("files", len(sum.Files)).
		Time("end", end).
		Msg("metrics snapshot finished")
}
