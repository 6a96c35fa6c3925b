package devmetrics

import "slices"

// SchemaVersion versions the metrics payload and the catalog file
const SchemaVersion = 1

// Unit of a metric value
type Unit string

const (
	UnitHours   Unit = "hours"
	UnitSeconds Unit = "seconds"
	UnitRatio   Unit = "ratio"
	UnitWeekly  Unit = "per_week"
	UnitCount   Unit = "count"
)

// Family groups metrics by how they are computed
type Family string

const (
	FamilyPercentile Family = "percentile_duration"
	FamilyRate       Family = "rate"
	FamilyWeekly     Family = "weekly_normalized"
	FamilyDuration   Family = "duration_aggregate"
	FamilyCount      Family = "count"
)

// Definition documents one metric
type Definition struct {
	Name        string `json:"name"`
	Family      Family `json:"family"`
	Unit        Unit   `json:"unit"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description"`
}

// Catalog is the immutable metric registry; build it once with NewCatalog and share it
type Catalog struct {
	version int
	defs    []Definition
	byName  map[string]int
}

// NewCatalog builds the registry
func NewCatalog() *Catalog {
	defs := []Definition{
		{FieldMRCycleTimeP50H, FamilyPercentile, UnitHours, true, "Median hours from MR creation to merge, merged MRs only"},
		{FieldMRCycleTimeP90H, FamilyPercentile, UnitHours, true, "90th percentile hours from MR creation to merge"},
		{FieldReadyToMergeP50H, FamilyPercentile, UnitHours, true, "Median hours from ready for review (or creation) to merge"},
		{FieldReadyToMergeP90H, FamilyPercentile, UnitHours, true, "90th percentile hours from ready for review (or creation) to merge"},
		{FieldBranchTTLP50H, FamilyPercentile, UnitHours, true, "Median hours from MR creation to merge or close"},
		{FieldBranchTTLP90H, FamilyPercentile, UnitHours, true, "90th percentile hours from MR creation to merge or close"},
		{FieldWIPAgeP50H, FamilyPercentile, UnitHours, true, "Median age at window end of MRs still open with a draft title"},
		{FieldWIPAgeP90H, FamilyPercentile, UnitHours, true, "90th percentile age at window end of open draft MRs"},
		{FieldTimeToFirstReviewP50H, FamilyPercentile, UnitHours, true, "Median hours from MR creation to the first note by another person"},
		{FieldTimeToFirstReviewP90H, FamilyPercentile, UnitHours, true, "90th percentile hours to first review"},

		{FieldPipelineSuccessRate, FamilyRate, UnitRatio, true, "Successful pipelines over all pipelines"},
		{FieldDefaultBranchSuccessRate, FamilyRate, UnitRatio, true, "Successful over all pipelines on the default branch"},
		{FieldReworkRate, FamilyRate, UnitRatio, true, "Merged MRs with a fix or rework commit among their own commits over merged MRs"},
		{FieldRevertRate, FamilyRate, UnitRatio, true, "Merged MRs titled as reverts over merged MRs"},
		{FieldHotfixRate, FamilyRate, UnitRatio, true, "Merged MRs titled or branched as hotfixes over merged MRs"},
		{FieldSignedCommitRatio, FamilyRate, UnitRatio, true, "Signed commits over all commits"},
		{FieldFlakyJobRate, FamilyRate, UnitRatio, true, "Refs with both a success and a failed or canceled pipeline over distinct refs"},

		{FieldDeploymentFrequencyWeekly, FamilyWeekly, UnitWeekly, false, "Successful default branch pipelines, count x 7 / window days"},
		{FieldMRThroughputWeekly, FamilyWeekly, UnitWeekly, false, "Merged MRs, count x 7 / window days"},
		{FieldReleasesCadenceWeekly, FamilyWeekly, UnitWeekly, false, "Successful tag pipelines, count x 7 / window days"},

		{FieldMeanPipelineDurationS, FamilyDuration, UnitSeconds, true, "Mean pipeline duration"},
		{FieldMeanTimeToGreenS, FamilyDuration, UnitSeconds, true, "Mean seconds from a failed pipeline to the next success on the same ref"},
		{FieldMeanQueueTimeS, FamilyDuration, UnitSeconds, true, "Mean pipeline queue time"},
		{FieldReviewRoundsMean, FamilyDuration, UnitCount, true, "Mean review rounds (commits pushed after review notes) per merged MR"},

		{FieldCommitCount, FamilyCount, UnitCount, false, "Commits authored in window"},
		{FieldMRsOpened, FamilyCount, UnitCount, false, "MRs created in window"},
		{FieldMRsMerged, FamilyCount, UnitCount, false, "MRs merged in window"},
		{FieldPipelineCount, FamilyCount, UnitCount, false, "Pipelines created in window"},
		{FieldDeployments, FamilyCount, UnitCount, false, "Successful default branch pipelines"},
		{FieldReleases, FamilyCount, UnitCount, false, "Successful tag pipelines"},
		{FieldLinesAdded, FamilyCount, UnitCount, false, "Lines added across commits"},
		{FieldLinesDeleted, FamilyCount, UnitCount, false, "Lines deleted across commits"},
		{FieldForcePushesProtected, FamilyCount, UnitCount, false, "Force pushes to protected branches; not collected, always 0"},
		{FieldSizeBuckets, FamilyCount, UnitCount, false, "Merged MRs by files changed: xs<=3, s<=10, m<=25, l<=50, xl>50"},

		{FieldJobOutcomes, FamilyCount, UnitCount, false, "CI jobs of in-window pipelines by status: success, failed, canceled, skipped, other"},
		{FieldStageDurations, FamilyDuration, UnitSeconds, false, "Per CI stage job count and mean job duration, sorted by stage"},
	}
	c := &Catalog{version: SchemaVersion, defs: defs, byName: make(map[string]int, len(defs))}
	for i, d := range defs {
		c.byName[d.Name] = i
	}
	return c
}

// Version is the schema version the catalog describes
func (c *Catalog) Version() int { return c.version }

// Definitions returns a copy of every definition in display order
func (c *Catalog) Definitions() []Definition { return slices.Clone(c.defs) }

// Lookup finds a definition by metric name
func (c *Catalog) Lookup(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}
