// Package service computes, persists and exports per developer metric snapshots
package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/logger"
	"devflow/internal/services/metrics/domain"
)

// Config holds configuration options for the metrics service
type Config struct {
	// Supported window lengths in days; empty -> 14, 28, 90
	Windows []int

	// Concurrent computations in a batch; <=0 -> 4
	BatchParallel int

	// Budget for one computation's reads; <=0 -> 1m
	DBTimeout time.Duration
}

// DefaultWindows are the rolling windows reported when none are configured
var DefaultWindows = []int{14, 28, 90}

func (c Config) withDefaults() Config {
	if len(c.Windows) == 0 {
		c.Windows = DefaultWindows
	}
	c.Windows = slices.Clone(c.Windows)
	slices.Sort(c.Windows)
	c.Windows = slices.Compact(c.Windows)
	if c.BatchParallel <= 0 {
		c.BatchParallel = 4
	}
	if c.DBTimeout <= 0 {
		c.DBTimeout = time.Minute
	}
	return c
}

// Service implements domain.ComputePort
type Service struct {
	DB       repokit.TxRunner
	Binder   repokit.Binder[domain.StorageRepo]
	Engine   *devmetrics.Engine
	Identity domain.IdentityPort
	Cfg      Config

	// optional sinks
	Mirror   domain.Mirror
	Exporter domain.Exporter

	Now func() time.Time
}

// New constructs the service; mirror and exporter are attached by the caller when configured
func New(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], engine *devmetrics.Engine, ids domain.IdentityPort, cfg Config) *Service {
	if db == nil {
		panic("metrics.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("metrics.Service requires a non nil Repo binder")
	}
	if engine == nil {
		panic("metrics.Service requires an engine")
	}
	if ids == nil {
		panic("metrics.Service requires an identity resolver")
	}
	return &Service{DB: db, Binder: binder, Engine: engine, Identity: ids, Cfg: cfg.withDefaults(), Now: time.Now}
}

// Windows implements domain.ComputePort
func (s *Service) Windows() []int { return slices.Clone(s.Cfg.Windows) }

// Developers implements domain.ComputePort
func (s *Service) Developers() []identity.Developer { return s.Identity.Developers() }

func (s *Service) tx(ctx context.Context, fn func(context.Context, domain.StorageRepo) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.Cfg.DBTimeout)
	defer cancel()
	return s.DB.Tx(ctx, func(q repokit.Queryer) error {
		return fn(ctx, s.Binder.Bind(q))
	})
}

func (s *Service) validate(developerID string, o domain.Options) error {
	if developerID == "" {
		return perr.Validationf("metrics: developer id is required")
	}
	if !slices.Contains(s.Cfg.Windows, o.WindowDays) {
		return perr.WithField(perr.Validationf("metrics: unsupported window %d days, want one of %v", o.WindowDays, s.Cfg.Windows), "window_days")
	}
	return nil
}

// Compute loads the developer's rows for the window and runs the engine
func (s *Service) Compute(ctx context.Context, developerID string, o domain.Options) (devmetrics.Result, error) {
	if err := s.validate(developerID, o); err != nil {
		return devmetrics.Result{}, err
	}
	end := o.WindowEnd
	if end.IsZero() {
		end = s.Now()
	}
	end = end.UTC()

	devID := developerID
	if d, ok := s.Identity.ResolveCanonical(developerID); ok {
		devID = d.ID
	}
	ids := s.Identity.Identities(developerID)
	if ids.Empty() {
		return devmetrics.Result{}, perr.NotFoundf("metrics: no identities for %q", developerID)
	}
	ctx = logger.WithDeveloper(ctx, devID)

	in := devmetrics.Input{DeveloperID: devID, WindowDays: o.WindowDays, WindowEnd: end}
	q := domain.Query{Identities: ids, Start: in.WindowStart(), End: end}

	err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		has, err := r.HasRows(ctx, ids)
		if err != nil {
			return err
		}
		if !has {
			return perr.NotFoundf("metrics: no activity recorded for %q", developerID)
		}

		scope := slices.Clone(o.ProjectScope)
		if len(scope) == 0 {
			candidates, err := r.ProjectsFor(ctx, ids)
			if err != nil {
				return err
			}
			scope = s.Engine.Rules().ScopeProjects(candidates)
		}
		slices.Sort(scope)
		in.ProjectScope = scope
		if len(scope) == 0 {
			logger.C(ctx).Info().Msg("metrics: every referenced project is excluded")
			return nil
		}
		q.Projects = scope

		if in.Commits, err = r.Commits(ctx, q); err != nil {
			return err
		}
		if in.MergeRequests, err = r.MergeRequests(ctx, q); err != nil {
			return err
		}
		in.Pipelines, err = r.Pipelines(ctx, q)
		return err
	})
	if err != nil {
		return devmetrics.Result{}, err
	}

	res := s.Engine.Compute(in, o.Flags())
	logger.C(ctx).Debug().
		Int("window_days", res.WindowDays).
		Str("data_quality", string(res.Audit.DataQuality)).
		Int("raw_total", res.Audit.RawCounts.Total()).
		Msg("metrics: computed")
	return res, nil
}

// ComputeBatch computes every id concurrently. Failed ids are logged and left out
func (s *Service) ComputeBatch(ctx context.Context, developerIDs []string, o domain.Options) map[string]devmetrics.Result {
	out := make(map[string]devmetrics.Result, len(developerIDs))
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.Cfg.BatchParallel)
	for _, id := range developerIDs {
		g.Go(func() error {
			res, err := s.Compute(ctx, id, o)
			if err != nil {
				logger.C(ctx).Warn().Err(err).Str("developer_id", id).Int("window_days", o.WindowDays).Msg("metrics: batch item failed")
				return nil
			}
			mu.Lock()
			out[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Record stores each result as a new snapshot, then feeds the optional mirror and exporter.
// Only the snapshot write is fatal
func (s *Service) Record(ctx context.Context, results []devmetrics.Result) (domain.RecordSummary, error) {
	var sum domain.RecordSummary
	if len(results) == 0 {
		return sum, nil
	}
	err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		for _, res := range results {
			id, err := r.InsertSnapshot(ctx, res)
			if err != nil {
				return perr.Wrapf(err, perr.CodeOf(err), "metrics: store snapshot for %s", res.DeveloperID)
			}
			sum.Snapshots = append(sum.Snapshots, id)
		}
		return nil
	})
	if err != nil {
		return domain.RecordSummary{}, err
	}

	log := logger.C(ctx)
	if s.Mirror != nil {
		if err := s.Mirror.Mirror(ctx, results); err != nil {
			log.Warn().Err(err).Int("snapshots", len(results)).Msg("metrics: mirror failed")
		} else {
			sum.Mirrored = len(results)
		}
	}
	if s.Exporter != nil {
		for _, res := range results {
			path, err := s.Exporter.Write(res)
			if err != nil {
				log.Warn().Err(err).Str("developer_id", res.DeveloperID).Msg("metrics: export failed")
				continue
			}
			sum.Files = append(sum.Files, path)
		}
	}
	log.Info().Int("snapshots", len(sum.Snapshots)).Int("mirrored", sum.Mirrored).Int("files", len(sum.Files)).Msg("metrics: recorded")
	return sum, nil
}

// Latest returns the newest stored snapshot for a developer and window
func (s *Service) Latest(ctx context.Context, developerID string, windowDays int) (domain.Snapshot, error) {
	if err := s.validate(developerID, domain.Options{WindowDays: windowDays}); err != nil {
		return domain.Snapshot{}, err
	}
	devID := developerID
	if d, ok := s.Identity.ResolveCanonical(developerID); ok {
		devID = d.ID
	}
	var snap domain.Snapshot
	err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		var err error
		snap, err = r.LatestSnapshot(ctx, devID, windowDays)
		return err
	})
	return snap, err
}

// Snapshot computes and records every configured developer for every supported window at end
func (s *Service) Snapshot(ctx context.Context, end time.Time, flags domain.Options) (domain.RecordSummary, error) {
	devs := s.Identity.Developers()
	ids := make([]string, 0, len(devs))
	for _, d := range devs {
		ids = append(ids, d.ID)
	}
	slices.Sort(ids)

	var all []devmetrics.Result
	for _, days := range s.Cfg.Windows {
		if err := ctx.Err(); err != nil {
			return domain.RecordSummary{}, err
		}
		o := flags
		o.WindowDays, o.WindowEnd = days, end
		batch := s.ComputeBatch(ctx, ids, o)
		for _, id := range ids {
			if r, ok := batch[id]; ok {
				all = append(all, r)
			}
		}
	}
	return s.Record(ctx, all)
}
