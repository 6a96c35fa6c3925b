// Package repo provides the raw store counts behind the quality checks
package repo

import (
	"context"
	"encoding/json"
	"time"

	"devflow/internal/core/quality"
	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
	"devflow/internal/services/quality/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

func (r *queries) Dangling(ctx context.Context) (quality.Dangling, error) {
	var d quality.Dangling
	err := r.q.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM raw_commits c
			  WHERE NOT EXISTS (SELECT 1 FROM projects p WHERE p.project_id = c.project_id)),
			(SELECT count(*) FROM raw_merge_requests m
			  WHERE NOT EXISTS (SELECT 1 FROM projects p WHERE p.project_id = m.project_id)),
			(SELECT count(*) FROM raw_pipelines x
			  WHERE NOT EXISTS (SELECT 1 FROM projects p WHERE p.project_id = x.project_id))
	`).Scan(&d.Commits, &d.MergeRequests, &d.Pipelines)
	return d, err
}

func (r *queries) Completeness(ctx context.Context, since time.Time) (quality.Completeness, error) {
	var c quality.Completeness
	err := r.q.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM raw_commits),
			(SELECT count(*) FROM raw_commits
			  WHERE author_email <> '' AND author_name <> '' AND message <> ''),
			(SELECT count(*) FROM raw_merge_requests),
			(SELECT count(*) FROM raw_merge_requests
			  WHERE title <> '' AND author_id > 0),
			(SELECT count(*) FROM raw_commits WHERE ingested_at >= $1)
			+ (SELECT count(*) FROM raw_merge_requests WHERE ingested_at >= $1)
			+ (SELECT count(*) FROM raw_pipelines WHERE ingested_at >= $1)
	`, since.UTC()).Scan(
		&c.Commits.Total, &c.Commits.Complete,
		&c.MergeRequests.Total, &c.MergeRequests.Complete,
		&c.RecentRows,
	)
	return c, err
}

func (r *queries) Latency(ctx context.Context) (quality.Latency, error) {
	var l quality.Latency
	err := r.q.QueryRow(ctx, `
		SELECT
			(SELECT max(finished_at) FROM collection_runs
			  WHERE trigger = 'incremental' AND status = 'completed'),
			(SELECT max(committed_at) FROM raw_commits)
	`).Scan(&l.LastSuccess, &l.NewestCommit)
	return l, err
}

func (r *queries) InsertReport(ctx context.Context, rep quality.Report) (int64, error) {
	b, err := json.Marshal(rep)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeJSON, "quality: encode report")
	}
	return store.Scalar[int64](ctx, r.q, `
		INSERT INTO quality_reports (generated_at, status, score, report)
		VALUES ($1, $2, $3, $4)
		RETURNING report_id
	`, rep.GeneratedAt.UTC(), string(rep.Status), rep.Score, b)
}

func (r *queries) LatestReport(ctx context.Context) (quality.Report, error) {
	return store.One(ctx, r.q, func(row store.Row) (quality.Report, error) {
		var (
			rep quality.Report
			b   []byte
		)
		if err := row.Scan(&b); err != nil {
			return rep, err
		}
		if err := json.Unmarshal(b, &rep); err != nil {
			return rep, perr.Wrapf(err, perr.ErrorCodeJSON, "quality: decode report")
		}
		return rep, nil
	}, `SELECT report FROM quality_reports ORDER BY generated_at DESC, report_id DESC LIMIT 1`)
}
