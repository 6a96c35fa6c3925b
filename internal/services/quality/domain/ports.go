// Package domain holds the quality auditor ports
package domain

import (
	"context"
	"time"

	"devflow/internal/core/quality"
)

// AuditPort runs and reads data quality reports
type AuditPort interface {
	// Audit grades the raw store now; persist stores the report as a row
	Audit(ctx context.Context, persist bool) (quality.Report, error)
	Latest(ctx context.Context) (quality.Report, error)
}

// StorageRepo gathers the counts the checks grade
type StorageRepo interface {
	Dangling(ctx context.Context) (quality.Dangling, error)
	Completeness(ctx context.Context, since time.Time) (quality.Completeness, error)
	Latency(ctx context.Context) (quality.Latency, error)

	InsertReport(ctx context.Context, r quality.Report) (int64, error)
	LatestReport(ctx context.Context) (quality.Report, error)
}
