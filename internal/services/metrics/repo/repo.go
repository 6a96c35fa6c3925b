// Package repo provides postgres reads over the raw tables and snapshot writes
package repo

import (
	"context"
	"encoding/json"
	"time"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
	"devflow/internal/services/metrics/domain"
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

func keys(ids identity.Identities) (emails, usernames []string) {
	emails, usernames = ids.Emails, ids.Usernames
	if emails == nil {
		emails = []string{}
	}
	if usernames == nil {
		usernames = []string{}
	}
	return emails, usernames
}

func (r *queries) HasRows(ctx context.Context, ids identity.Identities) (bool, error) {
	emails, usernames := keys(ids)
	return store.Scalar[bool](ctx, r.q, `
		SELECT EXISTS (SELECT 1 FROM raw_commits WHERE lower(author_email) = ANY($1))
		    OR EXISTS (SELECT 1 FROM raw_merge_requests WHERE lower(author_username) = ANY($2))
		    OR EXISTS (SELECT 1 FROM raw_pipelines WHERE lower(user_username) = ANY($2))
	`, emails, usernames)
}

// ProjectsFor maps every project the developer's rows reference to its path; dangling ids map to ""
func (r *queries) ProjectsFor(ctx context.Context, ids identity.Identities) (map[int64]string, error) {
	emails, usernames := keys(ids)
	type ref struct {
		id   int64
		path string
	}
	refs, err := store.Many(ctx, r.q, func(row store.Row) (ref, error) {
		var x ref
		err := row.Scan(&x.id, &x.path)
		return x, err
	}, `
		WITH refs AS (
			SELECT project_id FROM raw_commits WHERE lower(author_email) = ANY($1)
			UNION
			SELECT project_id FROM raw_merge_requests WHERE lower(author_username) = ANY($2)
			UNION
			SELECT project_id FROM raw_pipelines WHERE lower(user_username) = ANY($2)
		)
		SELECT refs.project_id, COALESCE(p.path, '')
		FROM refs LEFT JOIN projects p ON p.project_id = refs.project_id
	`, emails, usernames)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(refs))
	for _, x := range refs {
		out[x.id] = x.path
	}
	return out, nil
}

func (r *queries) Commits(ctx context.Context, q domain.Query) ([]devmetrics.Commit, error) {
	emails, _ := keys(q.Identities)
	return store.Many(ctx, r.q, func(row store.Row) (devmetrics.Commit, error) {
		var c devmetrics.Commit
		err := row.Scan(&c.ProjectID, &c.SHA, &c.AuthorName, &c.AuthorEmail, &c.Message,
			&c.AuthoredAt, &c.Additions, &c.Deletions, &c.Signed)
		return c, err
	}, `
		SELECT project_id, sha, author_name, author_email, message, authored_at, additions, deletions, signed
		FROM raw_commits
		WHERE lower(author_email) = ANY($1)
		  AND project_id = ANY($2)
		  AND authored_at >= $3 AND authored_at < $4
		ORDER BY authored_at, sha
	`, emails, q.Projects, q.Start.UTC(), q.End.UTC())
}

// MergeRequests loads MRs opened before the window end and not finished before its start
func (r *queries) MergeRequests(ctx context.Context, q domain.Query) ([]devmetrics.MergeRequest, error) {
	_, usernames := keys(q.Identities)
	return store.Many(ctx, r.q, func(row store.Row) (devmetrics.MergeRequest, error) {
		var m devmetrics.MergeRequest
		err := row.Scan(&m.ProjectID, &m.ID, &m.IID, &m.AuthorUsername, &m.Title, &m.State,
			&m.SourceBranch, &m.TargetBranch, &m.CreatedAt, &m.MergedAt, &m.ClosedAt, &m.ReadyAt,
			&m.FirstReviewAt, &m.ReviewRounds, &m.FilesChanged, &m.Additions, &m.Deletions, &m.Approvals,
			&m.CommitMessages)
		return m, err
	}, `
		SELECT project_id, mr_id, iid, author_username, title, state,
		       source_branch, target_branch, created_at, merged_at, closed_at, ready_at,
		       first_review_at, review_rounds, files_changed, additions, deletions, approvals,
		       commit_messages
		FROM raw_merge_requests
		WHERE lower(author_username) = ANY($1)
		  AND project_id = ANY($2)
		  AND created_at < $4
		  AND COALESCE(merged_at, closed_at, 'infinity'::timestamptz) >= $3
		ORDER BY created_at, mr_id
	`, usernames, q.Projects, q.Start.UTC(), q.End.UTC())
}

// Pipelines loads the developer's pipelines with their jobs attached
func (r *queries) Pipelines(ctx context.Context, q domain.Query) ([]devmetrics.Pipeline, error) {
	_, usernames := keys(q.Identities)
	pipes, err := store.Many(ctx, r.q, func(row store.Row) (devmetrics.Pipeline, error) {
		var (
			p               devmetrics.Pipeline
			duration, queue *int
		)
		err := row.Scan(&p.ProjectID, &p.ID, &p.Ref, &p.SHA, &p.Status, &p.Source, &p.Tag, &p.DefaultBranch,
			&p.CreatedAt, &p.StartedAt, &p.FinishedAt, &duration, &queue)
		p.DurationS = seconds(duration)
		p.QueuedDurationS = seconds(queue)
		return p, err
	}, `
		SELECT project_id, pipeline_id, ref, sha, status, source, tag, default_branch,
		       created_at, started_at, finished_at, duration_s, queued_duration_s
		FROM raw_pipelines
		WHERE lower(user_username) = ANY($1)
		  AND project_id = ANY($2)
		  AND created_at >= $3 AND created_at < $4
		ORDER BY created_at, pipeline_id
	`, usernames, q.Projects, q.Start.UTC(), q.End.UTC())
	if err != nil || len(pipes) == 0 {
		return pipes, err
	}

	type pipelineJob struct {
		project, pipeline int64
		job               devmetrics.Job
	}
	jobs, err := store.Many(ctx, r.q, func(row store.Row) (pipelineJob, error) {
		var (
			x               pipelineJob
			duration, queue *int
		)
		err := row.Scan(&x.project, &x.pipeline, &x.job.ID, &x.job.Name, &x.job.Stage, &x.job.Status,
			&x.job.AllowFailure, &duration, &queue)
		x.job.DurationS = seconds(duration)
		x.job.QueuedDurationS = seconds(queue)
		return x, err
	}, `
		SELECT j.project_id, j.pipeline_id, j.job_id, j.name, j.stage, j.status,
		       j.allow_failure, j.duration_s, j.queued_duration_s
		FROM raw_pipeline_jobs j
		JOIN raw_pipelines p ON p.project_id = j.project_id AND p.pipeline_id = j.pipeline_id
		WHERE lower(p.user_username) = ANY($1)
		  AND p.project_id = ANY($2)
		  AND p.created_at >= $3 AND p.created_at < $4
		ORDER BY j.project_id, j.pipeline_id, j.job_id
	`, usernames, q.Projects, q.Start.UTC(), q.End.UTC())
	if err != nil {
		return nil, err
	}
	at := make(map[[2]int64]int, len(pipes))
	for i, p := range pipes {
		at[[2]int64{p.ProjectID, p.ID}] = i
	}
	for _, x := range jobs {
		if i, ok := at[[2]int64{x.project, x.pipeline}]; ok {
			pipes[i].Jobs = append(pipes[i].Jobs, x.job)
		}
	}
	return pipes, nil
}

func seconds(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func (r *queries) InsertSnapshot(ctx context.Context, res devmetrics.Result) (int64, error) {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeJSON, "metrics: encode metrics")
	}
	audit, err := json.Marshal(res.Audit)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeJSON, "metrics: encode audit")
	}
	return store.Scalar[int64](ctx, r.q, `
		INSERT INTO developer_metrics
			(developer_id, window_start, window_end, window_days, computed_at, data_quality, metrics, audit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING snapshot_id
	`, res.DeveloperID, res.WindowStart.UTC(), res.WindowEnd.UTC(), res.WindowDays, res.ComputedAt.UTC(),
		string(res.Audit.DataQuality), metrics, audit)
}

func (r *queries) LatestSnapshot(ctx context.Context, developerID string, windowDays int) (domain.Snapshot, error) {
	return store.One(ctx, r.q, scanSnapshot, `
		SELECT snapshot_id, developer_id, window_start, window_end, window_days, computed_at, metrics, audit
		FROM developer_metrics
		WHERE developer_id = $1 AND window_days = $2
		ORDER BY window_end DESC, computed_at DESC
		LIMIT 1
	`, developerID, windowDays)
}

func scanSnapshot(row store.Row) (domain.Snapshot, error) {
	var (
		s              domain.Snapshot
		metrics, audit []byte
		start, end, at time.Time
	)
	if err := row.Scan(&s.ID, &s.DeveloperID, &start, &end, &s.WindowDays, &at, &metrics, &audit); err != nil {
		return s, err
	}
	s.WindowStart, s.WindowEnd, s.ComputedAt = start.UTC(), end.UTC(), at.UTC()
	if err := json.Unmarshal(metrics, &s.Metrics); err != nil {
		return s, perr.Wrapf(err, perr.ErrorCodeJSON, "metrics: decode snapshot %d metrics", s.ID)
	}
	if err := json.Unmarshal(audit, &s.Audit); err != nil {
		return s, perr.Wrapf(err, perr.ErrorCodeJSON, "metrics: decode snapshot %d audit", s.ID)
	}
	return s, nil
}
