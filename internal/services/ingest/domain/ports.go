package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunnerPort is the public port other modules and commands call
type RunnerPort interface {
	Run(ctx context.Context, t Trigger) (Run, error)
	LatestRun(ctx context.Context, kind TriggerKind) (Run, error)
}

// Source is the upstream the coordinator pulls from.
// Calls within one project are made sequentially
type Source interface {
	// Projects hands discovered projects to page as each upstream page arrives;
	// an error from page stops discovery
	Projects(ctx context.Context, page func([]Project) error) error
	MergeRequests(ctx context.Context, p Project, since time.Time) ([]RawMergeRequest, error)
	Commits(ctx context.Context, p Project, since time.Time) ([]RawCommit, error)
	Pipelines(ctx context.Context, p Project, since time.Time) ([]RawPipeline, error)
}

// StorageRepo is the raw store bound to one Queryer
type StorageRepo interface {
	// LockRuns serializes run starts for the rest of the current transaction
	LockRuns(ctx context.Context) error

	// ActiveRun reports a non terminal run of kind started after since
	ActiveRun(ctx context.Context, kind TriggerKind, since time.Time) (bool, error)

	// StartRun inserts the run record
	StartRun(ctx context.Context, r Run) error

	// SetRunState moves a non terminal run to s
	SetRunState(ctx context.Context, id uuid.UUID, s State) error

	// FinishRun writes the final counts once; completed runs are never touched again
	FinishRun(ctx context.Context, r Run) error

	// LatestRun returns the most recent run of kind or perr.ErrNotFound
	LatestRun(ctx context.Context, kind TriggerKind) (Run, error)

	// Watermark reads one ingestion_state row; ok is false when none is recorded
	Watermark(ctx context.Context, entity string) (w Watermark, ok bool, err error)

	// SetWatermark upserts one ingestion_state row
	SetWatermark(ctx context.Context, entity string, seen, runAt time.Time) error

	ListProjects(ctx context.Context) ([]Project, error)
	UpsertProjects(ctx context.Context, ps []Project) (int, error)

	UpsertMergeRequests(ctx context.Context, rows []RawMergeRequest) (int, error)
	UpsertCommits(ctx context.Context, rows []RawCommit) (int, error)
	UpsertPipelines(ctx context.Context, rows []RawPipeline) (int, error)

	// UpsertJobs stores the jobs carried by the pipelines
	UpsertJobs(ctx context.Context, rows []RawJob) (int, error)
}
