package devmetrics

import "time"

// Commit is a raw commit row as the engine sees it
type Commit struct {
	ProjectID   int64
	SHA         string
	AuthorName  string
	AuthorEmail string
	Message     string
	AuthoredAt  time.Time
	Additions   int
	Deletions   int
	Signed      bool
}

// MergeRequest is a raw merge request row as the engine sees it
type MergeRequest struct {
	ProjectID      int64
	ID             int64
	IID            int64
	AuthorUsername string
	Title          string
	State          string
	SourceBranch   string
	TargetBranch   string
	CreatedAt      time.Time
	MergedAt       *time.Time
	ClosedAt       *time.Time
	ReadyAt        *time.Time
	FirstReviewAt  *time.Time
	ReviewRounds   int
	FilesChanged   int
	Additions      int
	Deletions      int
	Approvals      int
	// CommitMessages belong to the commits of this MR only
	CommitMessages []string
}

// Pipeline is a raw pipeline row as the engine sees it
type Pipeline struct {
	ProjectID       int64
	ID              int64
	Ref             string
	SHA             string
	Status          string
	Source          string
	Tag             bool
	DefaultBranch   bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationS       *float64
	QueuedDurationS *float64
	Jobs            []Job
}

// Job is one CI job of a pipeline
type Job struct {
	ID              int64
	Name            string
	Stage           string
	Status          string
	AllowFailure    bool
	DurationS       *float64
	QueuedDurationS *float64
}

// Pipeline and job statuses used by the engine
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
	StatusSkipped  = "skipped"
)

// Input is everything one computation needs; rows are already windowed and scoped
type Input struct {
	DeveloperID   string
	WindowDays    int
	WindowEnd     time.Time
	ProjectScope  []int64
	Commits       []Commit
	MergeRequests []MergeRequest
	Pipelines     []Pipeline
}

// WindowStart is WindowEnd minus WindowDays
func (in Input) WindowStart() time.Time { return WindowStart(in.WindowEnd, in.WindowDays) }

// WindowStart returns the inclusive start of the trailing window ending at end
func WindowStart(end time.Time, days int) time.Time {
	return end.AddDate(0, 0, -days)
}

// Flags toggles the optional pipeline steps
type Flags struct {
	ApplyExclusions    bool
	ApplyWinsorization bool
}

// SizeBuckets counts merged MRs by files changed
type SizeBuckets struct {
	XS int `json:"xs"`
	S  int `json:"s"`
	M  int `json:"m"`
	L  int `json:"l"`
	XL int `json:"xl"`
}

// JobOutcomes counts the jobs of in-window pipelines by final status
type JobOutcomes struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
	Skipped  int `json:"skipped"`
	Other    int `json:"other"`
}

// StageDuration is the job count and mean job duration of one CI stage;
// MeanDurationS is nil when no job of the stage recorded a duration
type StageDuration struct {
	Stage         string   `json:"stage"`
	Jobs          int      `json:"jobs_count"`
	MeanDurationS *float64 `json:"avg_job_duration_s"`
}

// Metrics is the per developer value object; nil means undefined and is
// always explained in Audit.NullReasons
type Metrics struct {
	MRCycleTimeP50H       *float64 `json:"mr_cycle_time_p50_h"`
	MRCycleTimeP90H       *float64 `json:"mr_cycle_time_p90_h"`
	ReadyToMergeP50H      *float64 `json:"ready_to_merge_p50_h"`
	ReadyToMergeP90H      *float64 `json:"ready_to_merge_p90_h"`
	BranchTTLP50H         *float64 `json:"branch_ttl_p50_h"`
	BranchTTLP90H         *float64 `json:"branch_ttl_p90_h"`
	WIPAgeP50H            *float64 `json:"wip_age_p50_h"`
	WIPAgeP90H            *float64 `json:"wip_age_p90_h"`
	TimeToFirstReviewP50H *float64 `json:"time_to_first_review_p50_h"`
	TimeToFirstReviewP90H *float64 `json:"time_to_first_review_p90_h"`

	PipelineSuccessRate      *float64 `json:"pipeline_success_rate"`
	DefaultBranchSuccessRate *float64 `json:"default_branch_success_rate"`
	ReworkRate               *float64 `json:"rework_rate"`
	RevertRate               *float64 `json:"revert_rate"`
	HotfixRate               *float64 `json:"hotfix_rate"`
	SignedCommitRatio        *float64 `json:"signed_commit_ratio"`
	FlakyJobRate             *float64 `json:"flaky_job_rate"`

	DeploymentFrequencyWeekly float64 `json:"deployment_frequency_weekly"`
	MRThroughputWeekly        float64 `json:"mr_throughput_weekly"`
	ReleasesCadenceWeekly     float64 `json:"releases_cadence_weekly"`

	MeanPipelineDurationS *float64 `json:"mean_pipeline_duration_s"`
	MeanTimeToGreenS      *float64 `json:"mean_time_to_green_s"`
	MeanQueueTimeS        *float64 `json:"mean_queue_time_s"`
	ReviewRoundsMean      *float64 `json:"review_rounds_mean"`

	CommitCount          int         `json:"commit_count"`
	MRsOpened            int         `json:"mrs_opened"`
	MRsMerged            int         `json:"mrs_merged"`
	PipelineCount        int         `json:"pipeline_count"`
	Deployments          int         `json:"deployments"`
	Releases             int         `json:"releases"`
	LinesAdded           int         `json:"lines_added"`
	LinesDeleted         int         `json:"lines_deleted"`
	ForcePushesProtected int         `json:"force_pushes_protected"`
	SizeBuckets          SizeBuckets `json:"size_buckets"`

	JobOutcomes    JobOutcomes     `json:"job_outcomes"`
	StageDurations []StageDuration `json:"stage_durations"`
}

// DataQuality grades how much raw data backed a computation
type DataQuality string

const (
	QualityExcellent DataQuality = "Excellent"
	QualityGood      DataQuality = "Good"
	QualityFair      DataQuality = "Fair"
	QualityPoor      DataQuality = "Poor"
)

// EntityCounts is a per entity tally
type EntityCounts struct {
	Commits       int `json:"commits"`
	MergeRequests int `json:"merge_requests"`
	Pipelines     int `json:"pipelines"`
}

// Total sums all entities
func (c EntityCounts) Total() int { return c.Commits + c.MergeRequests + c.Pipelines }

// Audit explains how a Metrics value came to be
type Audit struct {
	HasCommits       bool `json:"has_commits"`
	HasMergeRequests bool `json:"has_merge_requests"`
	HasPipelines     bool `json:"has_pipelines"`

	LowCommitCount   bool `json:"low_commit_count"`
	LowMRCount       bool `json:"low_mr_count"`
	LowPipelineCount bool `json:"low_pipeline_count"`

	RawCounts      EntityCounts `json:"raw_counts"`
	FilteredCounts EntityCounts `json:"filtered_counts"`
	ExcludedCounts EntityCounts `json:"excluded_counts"`

	DataQuality       DataQuality       `json:"data_quality"`
	HasSufficientData bool              `json:"has_sufficient_data"`
	NullReasons       map[string]string `json:"null_reasons"`

	ExclusionsApplied    bool    `json:"exclusions_applied"`
	WinsorizationApplied bool    `json:"winsorization_applied"`
	ProjectScope         []int64 `json:"project_scope"`
	MinSampleSize        int     `json:"min_sample_size"`

	ComputationDate time.Time `json:"computation_date"`
}

// Result is one snapshot for (developer, window)
type Result struct {
	DeveloperID string    `json:"developer_id"`
	WindowDays  int       `json:"window_days"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ComputedAt  time.Time `json:"computed_at"`
	Metrics     Metrics   `json:"metrics"`
	Audit       Audit     `json:"audit"`
}
