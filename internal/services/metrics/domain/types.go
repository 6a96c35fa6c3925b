// Package domain holds the metrics service types and ports
package domain

import (
	"time"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
)

// Options selects the window, scope and processing flags of one computation
type Options struct {
	WindowDays int `json:"window_days" validate:"required,min=1,max=365"`

	// WindowEnd is exclusive; zero means now
	WindowEnd time.Time `json:"window_end,omitempty"`

	// ProjectScope is used as given when non empty
	ProjectScope []int64 `json:"project_scope,omitempty"`

	ApplyExclusions    bool `json:"apply_exclusions"`
	ApplyWinsorization bool `json:"apply_winsorization"`
}

// Flags maps the processing switches onto the engine flags
func (o Options) Flags() devmetrics.Flags {
	return devmetrics.Flags{ApplyExclusions: o.ApplyExclusions, ApplyWinsorization: o.ApplyWinsorization}
}

// Query selects a developer's raw rows
type Query struct {
	Identities identity.Identities
	Projects   []int64
	Start, End time.Time
}

// Snapshot is one persisted result
type Snapshot struct {
	ID int64 `json:"snapshot_id"`
	devmetrics.Result
}

// RecordSummary reports what Record persisted
type RecordSummary struct {
	Snapshots []int64  `json:"snapshots"`
	Mirrored  int      `json:"mirrored"`
	Files     []string `json:"files,omitempty"`
}
