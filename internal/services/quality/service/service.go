// Package service runs the data quality checks against the raw store
package service

import (
	"context"
	"time"

	"devflow/internal/core/quality"
	"devflow/internal/modkit/repokit"
	"devflow/internal/platform/logger"
	"devflow/internal/services/quality/domain"
)

// Service implements domain.AuditPort
type Service struct {
	DB         repokit.TxRunner
	Binder     repokit.Binder[domain.StorageRepo]
	Thresholds quality.Thresholds
	Now        func() time.Time
}

// New constructs the auditor
func New(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], th quality.Thresholds) *Service {
	if db == nil {
		panic("quality.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("quality.Service requires a non nil Repo binder")
	}
	return &Service{DB: db, Binder: binder, Thresholds: th, Now: time.Now}
}

// Audit gathers the counts in one transaction and grades them
func (s *Service) Audit(ctx context.Context, persist bool) (quality.Report, error) {
	now := s.Now().UTC()
	var (
		dangling quality.Dangling
		complete quality.Completeness
		latency  quality.Latency
	)
	err := repokit.In(ctx, s.DB, s.Binder, func(r domain.StorageRepo) error {
		var err error
		if dangling, err = r.Dangling(ctx); err != nil {
			return err
		}
		if complete, err = r.Completeness(ctx, now.Add(-s.Thresholds.Freshness)); err != nil {
			return err
		}
		latency, err = r.Latency(ctx)
		return err
	})
	if err != nil {
		return quality.Report{}, err
	}

	rep := quality.Combine(now,
		quality.Referential(dangling),
		quality.Complete(complete, s.Thresholds),
		quality.Lag(latency, now, s.Thresholds),
	)

	log := logger.C(ctx)
	ev := log.Info()
	if rep.Status == quality.StatusFailed {
		ev = log.Warn()
	}
	ev.Str("status", string(rep.Status)).Float64("score", rep.Score).Msg("quality: audit finished")

	if persist {
		err := repokit.In(ctx, s.DB, s.Binder, func(r domain.StorageRepo) error {
			id, err := r.InsertReport(ctx, rep)
			if err == nil {
				log.Debug().Int64("report_id", id).Msg("quality: report stored")
			}
			return err
		})
		if err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Latest returns the most recently stored report
func (s *Service) Latest(ctx context.Context) (quality.Report, error) {
	var rep quality.Report
	err := repokit.In(ctx, s.DB, s.Binder, func(r domain.StorageRepo) error {
		var err error
		rep, err = r.LatestReport(ctx)
		return err
	})
	return rep, err
}
