package devmetrics

// Metric field names, shared by NullReasons, the catalog and the export files
const (
	FieldMRCycleTimeP50H       = "mr_cycle_time_p50_h"
	FieldMRCycleTimeP90H       = "mr_cycle_time_p90_h"
	FieldReadyToMergeP50H      = "ready_to_merge_p50_h"
	FieldReadyToMergeP90H      = "ready_to_merge_p90_h"
	FieldBranchTTLP50H         = "branch_ttl_p50_h"
	FieldBranchTTLP90H         = "branch_ttl_p90_h"
	FieldWIPAgeP50H            = "wip_age_p50_h"
	FieldWIPAgeP90H            = "wip_age_p90_h"
	FieldTimeToFirstReviewP50H = "time_to_first_review_p50_h"
	FieldTimeToFirstReviewP90H = "time_to_first_review_p90_h"

	FieldPipelineSuccessRate      = "pipeline_success_rate"
	FieldDefaultBranchSuccessRate = "default_branch_success_rate"
	FieldReworkRate               = "rework_rate"
	FieldRevertRate               = "revert_rate"
	FieldHotfixRate               = "hotfix_rate"
	FieldSignedCommitRatio        = "signed_commit_ratio"
	FieldFlakyJobRate             = "flaky_job_rate"

	FieldDeploymentFrequencyWeekly = "deployment_frequency_weekly"
	FieldMRThroughputWeekly        = "mr_throughput_weekly"
	FieldReleasesCadenceWeekly     = "releases_cadence_weekly"

	FieldMeanPipelineDurationS = "mean_pipeline_duration_s"
	FieldMeanTimeToGreenS      = "mean_time_to_green_s"
	FieldMeanQueueTimeS        = "mean_queue_time_s"
	FieldReviewRoundsMean      = "review_rounds_mean"

	FieldCommitCount          = "commit_count"
	FieldMRsOpened            = "mrs_opened"
	FieldMRsMerged            = "mrs_merged"
	FieldPipelineCount        = "pipeline_count"
	FieldDeployments          = "deployments"
	FieldReleases             = "releases"
	FieldLinesAdded           = "lines_added"
	FieldLinesDeleted         = "lines_deleted"
	FieldForcePushesProtected = "force_pushes_protected"
	FieldSizeBuckets          = "size_buckets"

	FieldJobOutcomes    = "job_outcomes"
	FieldStageDurations = "stage_durations"
)

// Null reasons
const (
	reasonNoMerged        = "No merged merge requests in window"
	reasonNoReady         = "No merged merge requests with a ready time in window"
	reasonNoClosed        = "No merged or closed merge requests in window"
	reasonNoWIP           = "No open draft merge requests at window end"
	reasonNoReview        = "No merge requests with a review by someone other than the author"
	reasonNoPipelines     = "No pipelines in window"
	reasonNoDefaultBranch = "No default branch pipelines in window"
	reasonNoCommits       = "No commits in window"
	reasonNoDurations     = "No pipelines with a recorded duration in window"
	reasonNoQueue         = "No pipelines with a recorded queue time in window"
	reasonNoRecovery      = "No failed pipeline later recovered on the same ref in window"
	reasonNonPositiveOnly = "All durations were zero or negative"
)
