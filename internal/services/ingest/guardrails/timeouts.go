// Package guardrails holds cross cutting safety helpers for ingestion
package guardrails

import (
	"context"
	"errors"
	"time"
)

// ErrRunActive signals another coordinator is already running the same trigger
var ErrRunActive = errors.New("ingest: a run of this trigger is already active")

// Timeouts is the budget bundle for one run.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Project caps fetching and persisting one project, retries included
	Project time.Duration

	// DB caps each bookkeeping or upsert transaction
	DB time.Duration
}

// ForProject returns a sub context for one project bounded by Project and any remaining parent budget
func ForProject(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Project)
}

// ForDB returns a sub context for one transaction bounded by DB and any remaining parent budget
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// Detached returns a DB bounded context that survives cancellation of parent,
// for finalizing a run record after the run itself was cancelled
func Detached(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return ForDB(context.WithoutCancel(parent), t)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout takes the tighter of d and the parent remainder, never extending the parent
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
