// Package repo provides postgres access for ingestion writes
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"devflow/internal/modkit/repokit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
	"devflow/internal/services/ingest/domain"
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

// runLockKey is the advisory lock id shared by every coordinator process
const runLockKey = 0x6465_7666 // "devf"

func (r *queries) LockRuns(ctx context.Context) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(runLockKey))
	return err
}

func (r *queries) ActiveRun(ctx context.Context, kind domain.TriggerKind, since time.Time) (bool, error) {
	return store.Scalar[bool](ctx, r.q, `
		SELECT EXISTS (
			SELECT 1 FROM collection_runs
			WHERE trigger = $1
			  AND status NOT IN ('completed', 'failed')
			  AND started_at > $2
		)
	`, string(kind), since.UTC())
}

func (r *queries) StartRun(ctx context.Context, run domain.Run) error {
	return store.ExecOne(ctx, r.q, `
		INSERT INTO collection_runs (run_id, trigger, status, window_start, window_end, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, string(run.Trigger), string(run.State), run.WindowStart.UTC(), run.WindowEnd.UTC(), run.StartedAt.UTC())
}

func (r *queries) SetRunState(ctx context.Context, id uuid.UUID, s domain.State) error {
	_, err := r.q.Exec(ctx, `
		UPDATE collection_runs SET status = $2
		WHERE run_id = $1 AND status NOT IN ('completed', 'failed')
	`, id, string(s))
	return err
}

// FinishRun is a no-op (conflict) for a run that already reached a terminal state
func (r *queries) FinishRun(ctx context.Context, run domain.Run) error {
	t, err := r.q.Exec(ctx, `
		UPDATE collection_runs SET
			status          = $2,
			finished_at     = $3,
			projects_total  = $4,
			projects_ok     = $5,
			projects_failed = $6,
			commits         = $7,
			merge_requests  = $8,
			pipelines       = $9,
			error           = $10
		WHERE run_id = $1 AND status NOT IN ('completed', 'failed')
	`,
		run.ID, string(run.State), run.FinishedAt, run.ProjectsTotal, run.ProjectsOK, run.ProjectsFailed,
		run.Commits, run.MergeRequests, run.Pipelines, run.Error,
	)
	if err != nil {
		return err
	}
	if t.RowsAffected() == 0 {
		return perr.Conflictf("ingest: run %s is already finalized", run.ID)
	}
	return nil
}

func (r *queries) LatestRun(ctx context.Context, kind domain.TriggerKind) (domain.Run, error) {
	return store.One(ctx, r.q, scanRun, `
		SELECT run_id, trigger, status, window_start, window_end, started_at, finished_at,
		       projects_total, projects_ok, projects_failed, commits, merge_requests, pipelines, error
		FROM collection_runs
		WHERE trigger = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, string(kind))
}

func scanRun(row store.Row) (domain.Run, error) {
	var (
		run            domain.Run
		trigger, state string
	)
	err := row.Scan(
		&run.ID, &trigger, &state, &run.WindowStart, &run.WindowEnd, &run.StartedAt, &run.FinishedAt,
		&run.ProjectsTotal, &run.ProjectsOK, &run.ProjectsFailed, &run.Commits, &run.MergeRequests, &run.Pipelines, &run.Error,
	)
	run.Trigger = domain.TriggerKind(trigger)
	run.State = domain.State(state)
	return run, err
}

func (r *queries) Watermark(ctx context.Context, entity string) (domain.Watermark, bool, error) {
	w, err := store.One(ctx, r.q, func(row store.Row) (domain.Watermark, error) {
		w := domain.Watermark{Entity: entity}
		err := row.Scan(&w.LastSeen, &w.LastRunAt)
		return w, err
	}, `SELECT last_seen_watermark, last_run_at FROM ingestion_state WHERE entity = $1`, entity)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.Watermark{}, false, nil
	}
	if err != nil {
		return domain.Watermark{}, false, err
	}
	return w, true, nil
}

func (r *queries) SetWatermark(ctx context.Context, entity string, seen, runAt time.Time) error {
	return store.ExecOne(ctx, r.q, `
		INSERT INTO ingestion_state (entity, last_seen_watermark, last_run_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity) DO UPDATE
		SET last_seen_watermark = EXCLUDED.last_seen_watermark,
		    last_run_at         = EXCLUDED.last_run_at
	`, entity, seen.UTC(), runAt.UTC())
}

func (r *queries) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return store.Many(ctx, r.q, func(row store.Row) (domain.Project, error) {
		var p domain.Project
		err := row.Scan(&p.ID, &p.Path, &p.DefaultBranch, &p.Archived, &p.WebURL, &p.LastActivityAt)
		return p, err
	}, `
		SELECT project_id, path, default_branch, archived, web_url, last_activity_at
		FROM projects
		ORDER BY project_id
	`)
}

func (r *queries) UpsertProjects(ctx context.Context, ps []domain.Project) (int, error) {
	args := make([][]any, 0, len(ps))
	for _, p := range ps {
		args = append(args, []any{p.ID, p.Path, p.DefaultBranch, p.Archived, p.WebURL, p.LastActivityAt})
	}
	n, err := store.ExecEach(ctx, r.q, `
		INSERT INTO projects (project_id, path, default_branch, archived, web_url, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id) DO UPDATE SET
			path             = EXCLUDED.path,
			default_branch   = EXCLUDED.default_branch,
			archived         = EXCLUDED.archived,
			web_url          = EXCLUDED.web_url,
			last_activity_at = EXCLUDED.last_activity_at
	`, args)
	return int(n), err
}

func (r *queries) UpsertMergeRequests(ctx context.Context, rows []domain.RawMergeRequest) (int, error) {
	args := make([][]any, 0, len(rows))
	for _, m := range rows {
		args = append(args, []any{
			m.ProjectID, m.ID, m.IID, m.AuthorID, m.AuthorUsername, m.AuthorName, m.Title, m.State,
			m.SourceBranch, m.TargetBranch, m.CreatedAt.UTC(), m.UpdatedAt.UTC(), m.MergedAt, m.ClosedAt,
			m.ReadyAt, m.FirstReviewAt, m.ReviewRounds, m.FilesChanged, m.Additions, m.Deletions,
			m.Approvals, m.AuthorIsBot, messages(m.CommitMessages),
		})
	}
	n, err := store.ExecEach(ctx, r.q, `
		INSERT INTO raw_merge_requests (
			project_id, mr_id, iid, author_id, author_username, author_name, title, state,
			source_branch, target_branch, created_at, updated_at, merged_at, closed_at,
			ready_at, first_review_at, review_rounds, files_changed, additions, deletions,
			approvals, author_is_bot, commit_messages
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (project_id, mr_id) DO UPDATE SET
			iid             = EXCLUDED.iid,
			author_id       = EXCLUDED.author_id,
			author_username = EXCLUDED.author_username,
			author_name     = EXCLUDED.author_name,
			title           = EXCLUDED.title,
			state           = EXCLUDED.state,
			source_branch   = EXCLUDED.source_branch,
			target_branch   = EXCLUDED.target_branch,
			updated_at      = EXCLUDED.updated_at,
			merged_at       = EXCLUDED.merged_at,
			closed_at       = EXCLUDED.closed_at,
			ready_at        = EXCLUDED.ready_at,
			first_review_at = EXCLUDED.first_review_at,
			review_rounds   = EXCLUDED.review_rounds,
			files_changed   = EXCLUDED.files_changed,
			additions       = EXCLUDED.additions,
			deletions       = EXCLUDED.deletions,
			approvals       = EXCLUDED.approvals,
			author_is_bot   = EXCLUDED.author_is_bot,
			commit_messages = EXCLUDED.commit_messages,
			ingested_at     = now()
	`, args)
	return int(n), err
}

func messages(ms []string) []string {
	if ms == nil {
		return []string{}
	}
	return ms
}

func (r *queries) UpsertCommits(ctx context.Context, rows []domain.RawCommit) (int, error) {
	args := make([][]any, 0, len(rows))
	for _, c := range rows {
		args = append(args, []any{
			c.ProjectID, c.SHA, c.AuthorName, c.AuthorEmail, c.CommitterEmail, c.Message,
			c.AuthoredAt.UTC(), c.CommittedAt.UTC(), c.Additions, c.Deletions, c.Signed, c.AuthorIsBot,
		})
	}
	n, err := store.ExecEach(ctx, r.q, `
		INSERT INTO raw_commits (
			project_id, sha, author_name, author_email, committer_email, message,
			authored_at, committed_at, additions, deletions, signed, author_is_bot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (project_id, sha) DO UPDATE SET
			additions     = EXCLUDED.additions,
			deletions     = EXCLUDED.deletions,
			signed        = EXCLUDED.signed,
			author_is_bot = EXCLUDED.author_is_bot,
			ingested_at   = now()
	`, args)
	return int(n), err
}

func (r *queries) UpsertPipelines(ctx context.Context, rows []domain.RawPipeline) (int, error) {
	args := make([][]any, 0, len(rows))
	for _, p := range rows {
		args = append(args, []any{
			p.ProjectID, p.ID, p.Ref, p.SHA, p.Tag, p.Status, p.Source, p.UserUsername, p.DefaultBranch,
			p.CreatedAt.UTC(), p.UpdatedAt.UTC(), p.StartedAt, p.FinishedAt, p.DurationS, p.QueuedDurationS,
		})
	}
	n, err := store.ExecEach(ctx, r.q, `
		INSERT INTO raw_pipelines (
			project_id, pipeline_id, ref, sha, tag, status, source, user_username, default_branch,
			created_at, updated_at, started_at, finished_at, duration_s, queued_duration_s
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (project_id, pipeline_id) DO UPDATE SET
			status            = EXCLUDED.status,
			default_branch    = EXCLUDED.default_branch,
			updated_at        = EXCLUDED.updated_at,
			started_at        = EXCLUDED.started_at,
			finished_at       = EXCLUDED.finished_at,
			duration_s        = EXCLUDED.duration_s,
			queued_duration_s = EXCLUDED.queued_duration_s,
			ingested_at       = now()
	`, args)
	return int(n), err
}

func (r *queries) UpsertJobs(ctx context.Context, rows []domain.RawJob) (int, error) {
	args := make([][]any, 0, len(rows))
	for _, j := range rows {
		args = append(args, []any{
			j.ProjectID, j.ID, j.PipelineID, j.Name, j.Stage, j.Status, j.AllowFailure,
			j.CreatedAt.UTC(), j.StartedAt, j.FinishedAt, j.DurationS, j.QueuedDurationS,
		})
	}
	n, err := store.ExecEach(ctx, r.q, `
		INSERT INTO raw_pipeline_jobs (
			project_id, job_id, pipeline_id, name, stage, status, allow_failure,
			created_at, started_at, finished_at, duration_s, queued_duration_s
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (project_id, job_id) DO UPDATE SET
			status            = EXCLUDED.status,
			started_at        = EXCLUDED.started_at,
			finished_at       = EXCLUDED.finished_at,
			duration_s        = EXCLUDED.duration_s,
			queued_duration_s = EXCLUDED.queued_duration_s,
			ingested_at       = now()
	`, args)
	return int(n), err
}
