// Package service provides the ingestion coordinator
package service

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/logger"
	"devflow/internal/services/ingest/domain"
	"devflow/internal/services/ingest/guardrails"
)

// Config holds configuration options for the coordinator
type Config struct {
	// Fixed worker count; <=0 -> 1
	MaxParallel int

	// Re-list projects upstream when the last discovery is older than this; <=0 -> 7 days
	DiscoveryRefresh time.Duration

	// Incremental lower bound when no watermark exists; <=0 -> 1h
	IncrementalFallback time.Duration

	// Default backfill depth in days; <=0 -> 180
	BackfillDays int

	// Per-project retry on transient errors
	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration

	// Budgets
	ProjectTimeout time.Duration
	DBTimeout      time.Duration

	// Refuse to start while another run of the same trigger is active
	EnableLease bool
	LeaseTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	if c.DiscoveryRefresh <= 0 {
		c.DiscoveryRefresh = 7 * 24 * time.Hour
	}
	if c.IncrementalFallback <= 0 {
		c.IncrementalFallback = time.Hour
	}
	if c.BackfillDays <= 0 {
		c.BackfillDays = 180
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryCap < c.RetryBase {
		c.RetryCap = max(30*time.Second, c.RetryBase)
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 6 * time.Hour
	}
	return c
}

// Service implements domain.RunnerPort
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.StorageRepo]
	Source domain.Source
	Cfg    Config

	// Now is the run clock; tests pin it
	Now func() time.Time
}

// New constructs the coordinator; src may be nil for read only use
func New(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], src domain.Source, cfg Config) *Service {
	if db == nil {
		panic("ingest.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("ingest.Service requires a non nil Repo binder")
	}
	return &Service{DB: db, Binder: binder, Source: src, Cfg: cfg.withDefaults(), Now: time.Now}
}

func (s *Service) timeouts() guardrails.Timeouts {
	return guardrails.Timeouts{Project: s.Cfg.ProjectTimeout, DB: s.Cfg.DBTimeout}
}

// tx binds the repo inside one DB bounded transaction
func (s *Service) tx(ctx context.Context, fn func(context.Context, domain.StorageRepo) error) error {
	dbCtx, cancel := guardrails.ForDB(ctx, s.timeouts())
	defer cancel()
	return s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		return fn(dbCtx, s.Binder.Bind(q))
	})
}

// Run executes one collection run for t.
// Per-project failures are counted on the run and never returned
func (s *Service) Run(ctx context.Context, t domain.Trigger) (domain.Run, error) {
	if !t.Kind.Valid() {
		return domain.Run{}, perr.Validationf("ingest: unknown trigger kind %q", t.Kind)
	}
	if s.Source == nil {
		return domain.Run{}, perr.Unavailablef("ingest: no upstream source configured")
	}
	if t.BackfillDays < 0 {
		return domain.Run{}, perr.Validationf("ingest: backfill days must be positive, got %d", t.BackfillDays)
	}

	now := s.Now().UTC()
	lower, err := s.lowerBound(ctx, t, now)
	if err != nil {
		return domain.Run{}, err
	}

	run := domain.Run{
		ID:          uuid.New(),
		Trigger:     t.Kind,
		State:       domain.StateIdle,
		WindowStart: lower,
		WindowEnd:   now,
		StartedAt:   now,
	}
	ctx = logger.WithRun(ctx, run.ID.String())
	if err := s.start(ctx, run); err != nil {
		return run, err
	}
	logger.C(ctx).Info().
		Str("trigger", string(t.Kind)).
		Time("window_start", run.WindowStart).
		Time("window_end", run.WindowEnd).
		Msg("ingest: run started")

	s.transition(ctx, &run, domain.StateDiscovering)
	produce, err := s.discover(ctx, now, t.Kind == domain.KindDiscovery)
	if err != nil {
		return s.finish(ctx, run, err)
	}
	if t.Kind == domain.KindDiscovery {
		n := 0
		err := produce(ctx, func(domain.Project) bool { n++; return true })
		run.ProjectsTotal, run.ProjectsOK = n, n
		return s.finish(ctx, run, err)
	}

	tl, err := s.fanOut(ctx, run.WindowStart, produce, func() {
		s.transition(ctx, &run, domain.StateProcessing)
	})
	run.ProjectsTotal = int(tl.total.Load())
	run.ProjectsOK = int(tl.ok.Load())
	run.ProjectsFailed = int(tl.failed.Load())
	run.MergeRequests = int(tl.mrs.Load())
	run.Commits = int(tl.commits.Load())
	run.Pipelines = int(tl.pipelines.Load())
	if err != nil {
		return s.finish(ctx, run, err)
	}

	// all workers joined; a cancelled run must leave the watermark alone
	if err := ctx.Err(); err != nil {
		return s.finish(ctx, run, err)
	}
	if err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		return r.SetWatermark(ctx, t.Kind.Entity(), now, now)
	}); err != nil {
		return s.finish(ctx, run, perr.Wrapf(err, perr.CodeOf(err), "ingest: write %s watermark", t.Kind.Entity()))
	}
	return s.finish(ctx, run, nil)
}

// LatestRun implements domain.RunnerPort
func (s *Service) LatestRun(ctx context.Context, kind domain.TriggerKind) (domain.Run, error) {
	if !kind.Valid() {
		return domain.Run{}, perr.Validationf("ingest: unknown trigger kind %q", kind)
	}
	var run domain.Run
	err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		var err error
		run, err = r.LatestRun(ctx, kind)
		return err
	})
	return run, err
}

func (s *Service) lowerBound(ctx context.Context, t domain.Trigger, now time.Time) (time.Time, error) {
	switch t.Kind {
	case domain.KindBackfill:
		days := t.BackfillDays
		if days == 0 {
			days = s.Cfg.BackfillDays
		}
		return now.AddDate(0, 0, -days), nil
	case domain.KindDiscovery:
		return now, nil
	}

	var (
		wm domain.Watermark
		ok bool
	)
	err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		var err error
		wm, ok, err = r.Watermark(ctx, domain.EntityIncremental)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return now.Add(-s.Cfg.IncrementalFallback), nil
	}
	return wm.LastSeen.UTC(), nil
}

func (s *Service) start(ctx context.Context, run domain.Run) error {
	return s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		if s.Cfg.EnableLease {
			if err := r.LockRuns(ctx); err != nil {
				return err
			}
			active, err := r.ActiveRun(ctx, run.Trigger, run.StartedAt.Add(-s.Cfg.LeaseTTL))
			if err != nil {
				return err
			}
			if active {
				return perr.Wrapf(guardrails.ErrRunActive, perr.ErrorCodeConflict, "ingest: %s run rejected", run.Trigger)
			}
		}
		return r.StartRun(ctx, run)
	})
}

// transition records a state change; the run row update is best effort
func (s *Service) transition(ctx context.Context, run *domain.Run, to domain.State) {
	from := run.State
	run.State = to
	logger.C(ctx).Info().Str("from", string(from)).Str("to", string(to)).Msg("ingest: state transition")
	if err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		return r.SetRunState(ctx, run.ID, to)
	}); err != nil {
		logger.C(ctx).Warn().Err(err).Str("state", string(to)).Msg("ingest: run state update failed")
	}
}

// finish finalizes the run record even when ctx is already cancelled
func (s *Service) finish(ctx context.Context, run domain.Run, cause error) (domain.Run, error) {
	at := s.Now().UTC()
	run.FinishedAt = &at
	from := run.State
	run.State = domain.StateCompleted
	if cause != nil {
		run.Error = cause.Error()
		run.State = domain.StateFailed
	}
	logger.C(ctx).Info().Str("from", string(from)).Str("to", string(run.State)).Msg("ingest: state transition")

	dctx, cancel := guardrails.Detached(ctx, s.timeouts())
	defer cancel()
	ferr := s.DB.Tx(dctx, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).FinishRun(dctx, run)
	})

	ev := logger.C(ctx).Info()
	if cause != nil {
		ev = logger.C(ctx).Error().Err(cause)
	}
	ev.Int("projects_total", run.ProjectsTotal).
		Int("projects_ok", run.ProjectsOK).
		Int("projects_failed", run.ProjectsFailed).
		Int("merge_requests", run.MergeRequests).
		Int("commits", run.Commits).
		Int("pipelines", run.Pipelines).
		Dur("elapsed", at.Sub(run.StartedAt)).
		Msg("ingest: run finished")

	if ferr != nil {
		logger.C(ctx).Error().Err(ferr).Msg("ingest: finalize run record failed")
		if cause == nil {
			return run, ferr
		}
	}
	return run, cause
}

// producer hands projects to emit until emit reports the run was cancelled
type producer func(ctx context.Context, emit func(domain.Project) bool) error

// discover returns the producer of active projects. Persisted projects are
// replayed unless forced or stale; otherwise upstream pages are stored and
// emitted as they arrive and the discovery watermark moves once the walk ends
func (s *Service) discover(ctx context.Context, now time.Time, force bool) (producer, error) {
	var (
		persisted []domain.Project
		wm        domain.Watermark
		seen      bool
	)
	if err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		var err error
		if wm, seen, err = r.Watermark(ctx, domain.EntityDiscovery); err != nil {
			return err
		}
		persisted, err = r.ListProjects(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	if !force && seen && len(persisted) > 0 && now.Sub(wm.LastSeen) <= s.Cfg.DiscoveryRefresh {
		logger.C(ctx).Debug().
			Int("projects", len(persisted)).
			Time("last_discovery", wm.LastSeen).
			Msg("ingest: reusing persisted projects")
		active := activeProjects(persisted)
		return func(ctx context.Context, emit func(domain.Project) bool) error {
			for _, p := range active {
				if !emit(p) {
					return ctx.Err()
				}
			}
			return nil
		}, nil
	}

	return func(ctx context.Context, emit func(domain.Project) bool) error {
		listed := 0
		err := s.Source.Projects(ctx, func(page []domain.Project) error {
			if err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
				_, err := r.UpsertProjects(ctx, page)
				return err
			}); err != nil {
				return err
			}
			listed += len(page)
			for _, p := range activeProjects(page) {
				if !emit(p) {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
			return r.SetWatermark(ctx, domain.EntityDiscovery, now, now)
		}); err != nil {
			return err
		}
		logger.C(ctx).Info().Int("projects", listed).Msg("ingest: projects refreshed")
		return nil
	}, nil
}

func activeProjects(ps []domain.Project) []domain.Project {
	out := make([]domain.Project, 0, len(ps))
	for _, p := range ps {
		if !p.Archived {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Project) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

type tally struct {
	total, ok, failed             atomic.Int64
	mrs, commits, pipelines, jobs atomic.Int64
}

type counts struct{ mrs, commits, pipelines, jobs int }

// fanOut drains produce through a FIFO queue into a fixed pool while the
// producer is still listing. started fires once, before the first project is
// queued. A producer error cancels queued work and is returned after every
// worker joins
func (s *Service) fanOut(ctx context.Context, since time.Time, produce producer, started func()) (*tally, error) {
	var (
		tl    tally
		wg    sync.WaitGroup
		once  sync.Once
		queue = make(chan domain.Project, s.Cfg.MaxParallel)
	)
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for range s.Cfg.MaxParallel {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range queue {
				if wctx.Err() != nil {
					continue
				}
				n, err := s.processWithRetry(wctx, p, since)
				if err != nil {
					tl.failed.Add(1)
					logger.C(ctx).Error().Err(err).
						Int64("project_id", p.ID).
						Str("project", p.Path).
						Msg("ingest: project skipped")
					continue
				}
				tl.ok.Add(1)
				tl.mrs.Add(int64(n.mrs))
				tl.commits.Add(int64(n.commits))
				tl.pipelines.Add(int64(n.pipelines))
				tl.jobs.Add(int64(n.jobs))
			}
		}()
	}

	err := produce(ctx, func(p domain.Project) bool {
		once.Do(started)
		select {
		case <-ctx.Done():
			return false
		case queue <- p:
			tl.total.Add(1)
			return true
		}
	})
	if err != nil {
		cancel()
	} else {
		once.Do(started)
	}
	close(queue)
	wg.Wait()
	return &tl, err
}

func (s *Service) processWithRetry(ctx context.Context, p domain.Project, since time.Time) (counts, error) {
	pctx, cancel := guardrails.ForProject(ctx, s.timeouts())
	defer cancel()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.Cfg.RetryBase
	exp.MaxInterval = s.Cfg.RetryCap
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.Cfg.MaxRetries)), pctx)

	var out counts
	op := func() error {
		n, err := s.processProject(pctx, p, since)
		if err != nil {
			if !perr.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = n
		return nil
	}
	notify := func(err error, d time.Duration) {
		logger.C(ctx).Warn().Err(err).Int64("project_id", p.ID).Dur("retry_in", d).Msg("ingest: project retry")
	}
	return out, backoff.RetryNotify(op, policy, notify)
}

// processProject fetches merge requests, commits and pipelines in that order,
// then upserts them with their jobs in one transaction so a failed project leaves no partial rows
func (s *Service) processProject(ctx context.Context, p domain.Project, since time.Time) (counts, error) {
	var (
		data domain.ProjectData
		err  error
	)
	if data.MergeRequests, err = s.Source.MergeRequests(ctx, p, since); err != nil {
		return counts{}, err
	}
	if err := ctx.Err(); err != nil {
		return counts{}, err
	}
	if data.Commits, err = s.Source.Commits(ctx, p, since); err != nil {
		return counts{}, err
	}
	if err := ctx.Err(); err != nil {
		return counts{}, err
	}
	if data.Pipelines, err = s.Source.Pipelines(ctx, p, since); err != nil {
		return counts{}, err
	}
	if err := ctx.Err(); err != nil {
		return counts{}, err
	}

	var n counts
	err = s.tx(ctx, func(ctx context.Context, r domain.StorageRepo) error {
		var err error
		if n.mrs, err = r.UpsertMergeRequests(ctx, data.MergeRequests); err != nil {
			return err
		}
		if n.commits, err = r.UpsertCommits(ctx, data.Commits); err != nil {
			return err
		}
		if n.pipelines, err = r.UpsertPipelines(ctx, data.Pipelines); err != nil {
			return err
		}
		n.jobs, err = r.UpsertJobs(ctx, data.Jobs())
		return err
	})
	if err != nil {
		return counts{}, err
	}
	logger.C(ctx).Debug().
		Int64("project_id", p.ID).
		Int("merge_requests", n.mrs).
		Int("commits", n.commits).
		Int("pipelines", n.pipelines).
		Int("jobs", n.jobs).
		Msg("ingest: project stored")
	return n, nil
}
