package domain

import (
	"context"
	"time"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
)

// ComputePort is what transports and commands call
type ComputePort interface {
	Compute(ctx context.Context, developerID string, o Options) (devmetrics.Result, error)
	ComputeBatch(ctx context.Context, developerIDs []string, o Options) map[string]devmetrics.Result
	Record(ctx context.Context, results []devmetrics.Result) (RecordSummary, error)
	Latest(ctx context.Context, developerID string, windowDays int) (Snapshot, error)
	Snapshot(ctx context.Context, end time.Time, flags Options) (RecordSummary, error)
	Developers() []identity.Developer
	Windows() []int
}

// IdentityPort resolves a developer id or alias
type IdentityPort interface {
	ResolveCanonical(value string) (identity.Developer, bool)
	Identities(value string) identity.Identities
	Developers() []identity.Developer
}

// StorageRepo reads raw rows and stores snapshots
type StorageRepo interface {
	HasRows(ctx context.Context, ids identity.Identities) (bool, error)
	ProjectsFor(ctx context.Context, ids identity.Identities) (map[int64]string, error)

	Commits(ctx context.Context, q Query) ([]devmetrics.Commit, error)
	MergeRequests(ctx context.Context, q Query) ([]devmetrics.MergeRequest, error)
	Pipelines(ctx context.Context, q Query) ([]devmetrics.Pipeline, error)

	InsertSnapshot(ctx context.Context, r devmetrics.Result) (int64, error)
	LatestSnapshot(ctx context.Context, developerID string, windowDays int) (Snapshot, error)
}

// Mirror copies snapshots into the analytics store
type Mirror interface {
	Mirror(ctx context.Context, results []devmetrics.Result) error
}

// Exporter writes snapshot files
type Exporter interface {
	Write(r devmetrics.Result) (string, error)
}
