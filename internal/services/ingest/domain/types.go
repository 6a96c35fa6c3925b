// Package domain holds the ingestion run model and raw row shapes
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind selects how a run picks its lower bound
type TriggerKind string

// Trigger kinds
const (
	KindIncremental TriggerKind = "incremental"
	KindBackfill    TriggerKind = "backfill"
	KindDiscovery   TriggerKind = "discovery"
)

// Valid reports whether k is a known trigger kind
func (k TriggerKind) Valid() bool {
	switch k {
	case KindIncremental, KindBackfill, KindDiscovery:
		return true
	}
	return false
}

// Trigger is the single input to a collection run.
// BackfillDays only applies to KindBackfill; zero means the configured default
type Trigger struct {
	Kind         TriggerKind
	BackfillDays int
}

// Incremental collects everything since the last incremental watermark
func Incremental() Trigger { return Trigger{Kind: KindIncremental} }

// Backfill collects the trailing days
func Backfill(days int) Trigger { return Trigger{Kind: KindBackfill, BackfillDays: days} }

// Discovery only refreshes the project list
func Discovery() Trigger { return Trigger{Kind: KindDiscovery} }

// State is the coordinator state recorded on the run
type State string

// Run states
const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateProcessing  State = "processing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition is allowed
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Watermark entity names
const (
	EntityIncremental = "incremental"
	EntityBackfill    = "backfill"
	EntityDiscovery   = "projects_discovery"
)

// Entity maps a trigger kind to its ingestion_state row
func (k TriggerKind) Entity() string {
	switch k {
	case KindBackfill:
		return EntityBackfill
	case KindDiscovery:
		return EntityDiscovery
	}
	return EntityIncremental
}

// Watermark is one ingestion_state row
type Watermark struct {
	Entity    string
	LastSeen  time.Time
	LastRunAt time.Time
}

// Run is the audit record of one coordinator execution
type Run struct {
	ID             uuid.UUID   `json:"run_id"`
	Trigger        TriggerKind `json:"trigger"`
	State          State       `json:"status"`
	WindowStart    time.Time   `json:"window_start"`
	WindowEnd      time.Time   `json:"window_end"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
	ProjectsTotal  int         `json:"projects_total"`
	ProjectsOK     int         `json:"projects_ok"`
	ProjectsFailed int         `json:"projects_failed"`
	Commits        int         `json:"commits"`
	MergeRequests  int         `json:"merge_requests"`
	Pipelines      int         `json:"pipelines"`
	Error          string      `json:"error,omitempty"`
}

// Project is a discovered upstream project
type Project struct {
	ID             int64
	Path           string
	DefaultBranch  string
	Archived       bool
	WebURL         string
	LastActivityAt *time.Time
}

// RawCommit is one raw_commits row
type RawCommit struct {
	ProjectID      int64
	SHA            string
	AuthorName     string
	AuthorEmail    string
	CommitterEmail string
	Message        string
	AuthoredAt     time.Time
	CommittedAt    time.Time
	Additions      int
	Deletions      int
	Signed         bool
	AuthorIsBot    bool
}

// RawMergeRequest is one raw_merge_requests row
type RawMergeRequest struct {
	ProjectID      int64
	ID             int64
	IID            int64
	AuthorID       int64
	AuthorUsername string
	AuthorName     string
	Title          string
	State          string
	SourceBranch   string
	TargetBranch   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	MergedAt       *time.Time
	ClosedAt       *time.Time
	ReadyAt        *time.Time
	FirstReviewAt  *time.Time
	ReviewRounds   int
	FilesChanged   int
	Additions      int
	Deletions      int
	Approvals      int
	AuthorIsBot    bool

	// CommitMessages are the messages of the MR's own commits
	CommitMessages []string
}

// RawPipeline is one raw_pipelines row
type RawPipeline struct {
	ProjectID       int64
	ID              int64
	Ref             string
	SHA             string
	Tag             bool
	Status          string
	Source          string
	UserUsername    string
	DefaultBranch   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationS       *int
	QueuedDurationS *int

	Jobs []RawJob
}

// RawJob is one raw_pipeline_jobs row
type RawJob struct {
	ProjectID       int64
	ID              int64
	PipelineID      int64
	Name            string
	Stage           string
	Status          string
	AllowFailure    bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationS       *int
	QueuedDurationS *int
}

// Jobs flattens the jobs of every pipeline in d
func (d ProjectData) Jobs() []RawJob {
	var out []RawJob
	for _, p := range d.Pipelines {
		out = append(out, p.Jobs...)
	}
	return out
}

// ProjectData is everything fetched for one project in a run
type ProjectData struct {
	MergeRequests []RawMergeRequest
	Commits       []RawCommit
	Pipelines     []RawPipeline
}
