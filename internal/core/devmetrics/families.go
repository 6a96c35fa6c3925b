package devmetrics

import (
	"cmp"
	"slices"
	"time"

	"devflow/internal/core/stats"
)

func (c *calc) mergeRequestDurations(m *Metrics, mrs []MergeRequest) {
	var cycle, ready, ttl, wip, ttfr []float64
	for _, mr := range mrs {
		if c.mergedInWindow(mr) {
			cycle = append(cycle, hours(mr.CreatedAt, *mr.MergedAt))
			start := mr.CreatedAt
			if mr.ReadyAt != nil {
				start = *mr.ReadyAt
			}
			ready = append(ready, hours(start, *mr.MergedAt))
		}
		if fin := finishedAt(mr); fin != nil && c.in(*fin) {
			ttl = append(ttl, hours(mr.CreatedAt, *fin))
		}
		if c.openAtEnd(mr) && c.e.rules.IsWIP(mr) {
			wip = append(wip, hours(mr.CreatedAt, c.end))
		}
		if c.in(mr.CreatedAt) && mr.FirstReviewAt != nil {
			ttfr = append(ttfr, hours(mr.CreatedAt, *mr.FirstReviewAt))
		}
	}

	c.percentiles(&m.MRCycleTimeP50H, &m.MRCycleTimeP90H, FieldMRCycleTimeP50H, FieldMRCycleTimeP90H, cycle, reasonNoMerged)
	c.percentiles(&m.ReadyToMergeP50H, &m.ReadyToMergeP90H, FieldReadyToMergeP50H, FieldReadyToMergeP90H, ready, reasonNoMerged)
	c.percentiles(&m.BranchTTLP50H, &m.BranchTTLP90H, FieldBranchTTLP50H, FieldBranchTTLP90H, ttl, reasonNoClosed)
	c.percentiles(&m.WIPAgeP50H, &m.WIPAgeP90H, FieldWIPAgeP50H, FieldWIPAgeP90H, wip, reasonNoWIP)
	c.percentiles(&m.TimeToFirstReviewP50H, &m.TimeToFirstReviewP90H, FieldTimeToFirstReviewP50H, FieldTimeToFirstReviewP90H, ttfr, reasonNoReview)
}

// mergeRequestOutcomes covers throughput, the title heuristics, rework and sizing
func (c *calc) mergeRequestOutcomes(m *Metrics, mrs []MergeRequest) {
	var merged, rework, reverts, hotfixes, rounds int
	for _, mr := range mrs {
		if c.in(mr.CreatedAt) {
			m.MRsOpened++
		}
		if !c.mergedInWindow(mr) {
			continue
		}
		merged++
		rounds += mr.ReviewRounds
		if c.e.rules.IsRevert(mr) {
			reverts++
		}
		if c.e.rules.IsHotfix(mr) {
			hotfixes++
		}
		if c.reworked(mr) {
			rework++
		}
		bucket(&m.SizeBuckets, mr.FilesChanged)
	}

	m.MRsMerged = merged
	m.MRThroughputWeekly = stats.Weekly(merged, c.days)
	c.ratio(&m.ReworkRate, FieldReworkRate, rework, merged, reasonNoMerged)
	c.ratio(&m.RevertRate, FieldRevertRate, reverts, merged, reasonNoMerged)
	c.ratio(&m.HotfixRate, FieldHotfixRate, hotfixes, merged, reasonNoMerged)
	if merged == 0 {
		c.null(reasonNoMerged, FieldReviewRoundsMean)
	} else {
		v := float64(rounds) / float64(merged)
		m.ReviewRoundsMean = &v
	}
}

// reworked reports whether one of the MR's own commits carries a rework message
func (c *calc) reworked(mr MergeRequest) bool {
	return slices.ContainsFunc(mr.CommitMessages, c.e.rules.IsRework)
}

func bucket(b *SizeBuckets, files int) {
	switch {
	case files <= 3:
		b.XS++
	case files <= 10:
		b.S++
	case files <= 25:
		b.M++
	case files <= 50:
		b.L++
	default:
		b.XL++
	}
}

// jobStats counts job outcomes and averages job durations per stage
func (c *calc) jobStats(m *Metrics, pipes []Pipeline) {
	type acc struct {
		jobs int
		secs []float64
	}
	stages := map[string]*acc{}
	for _, p := range pipes {
		for _, j := range p.Jobs {
			m.JobOutcomes.Total++
			switch j.Status {
			case StatusSuccess:
				m.JobOutcomes.Success++
			case StatusFailed:
				m.JobOutcomes.Failed++
			case StatusCanceled:
				m.JobOutcomes.Canceled++
			case StatusSkipped:
				m.JobOutcomes.Skipped++
			default:
				m.JobOutcomes.Other++
			}
			a := stages[j.Stage]
			if a == nil {
				a = &acc{}
				stages[j.Stage] = a
			}
			a.jobs++
			if j.DurationS != nil && *j.DurationS > 0 {
				a.secs = append(a.secs, *j.DurationS)
			}
		}
	}

	m.StageDurations = make([]StageDuration, 0, len(stages))
	for stage, a := range stages {
		slices.Sort(a.secs)
		m.StageDurations = append(m.StageDurations, StageDuration{
			Stage:         stage,
			Jobs:          a.jobs,
			MeanDurationS: stats.Ptr(stats.Mean(a.secs)),
		})
	}
	slices.SortFunc(m.StageDurations, func(a, b StageDuration) int { return cmp.Compare(a.Stage, b.Stage) })
}

func (c *calc) commitStats(m *Metrics, commits []Commit) {
	signed := 0
	for _, cm := range commits {
		m.LinesAdded += cm.Additions
		m.LinesDeleted += cm.Deletions
		if cm.Signed {
			signed++
		}
	}
	m.CommitCount = len(commits)
	c.ratio(&m.SignedCommitRatio, FieldSignedCommitRatio, signed, len(commits), reasonNoCommits)
}

type refKey struct {
	project int64
	ref     string
}

func (c *calc) pipelineStats(m *Metrics, pipes []Pipeline) {
	var ok, dbTotal, dbOK int
	var durations, queues []float64
	byRef := map[refKey][]Pipeline{}

	for _, p := range pipes {
		success := p.Status == StatusSuccess
		if success {
			ok++
		}
		if p.DefaultBranch && !p.Tag {
			dbTotal++
			if success {
				dbOK++
				m.Deployments++
			}
		}
		if p.Tag && success {
			m.Releases++
		}
		if p.DurationS != nil && *p.DurationS > 0 {
			durations = append(durations, *p.DurationS)
		}
		if p.QueuedDurationS != nil && *p.QueuedDurationS >= 0 {
			queues = append(queues, *p.QueuedDurationS)
		}
		k := refKey{p.ProjectID, p.Ref}
		byRef[k] = append(byRef[k], p)
	}

	m.PipelineCount = len(pipes)
	m.DeploymentFrequencyWeekly = stats.Weekly(m.Deployments, c.days)
	m.ReleasesCadenceWeekly = stats.Weekly(m.Releases, c.days)
	c.ratio(&m.PipelineSuccessRate, FieldPipelineSuccessRate, ok, len(pipes), reasonNoPipelines)
	c.ratio(&m.DefaultBranchSuccessRate, FieldDefaultBranchSuccessRate, dbOK, dbTotal, reasonNoDefaultBranch)

	flaky := 0
	var recoveries []float64
	for _, runs := range byRef {
		var green, red bool
		for _, p := range runs {
			switch p.Status {
			case StatusSuccess:
				green = true
			case StatusFailed, StatusCanceled:
				red = true
			}
		}
		if green && red {
			flaky++
		}
		recoveries = append(recoveries, timeToGreen(runs)...)
	}
	c.ratio(&m.FlakyJobRate, FieldFlakyJobRate, flaky, len(byRef), reasonNoPipelines)
	// map order is random; sort for a reproducible sum
	slices.Sort(recoveries)

	switch {
	case len(pipes) == 0:
		c.null(reasonNoPipelines, FieldMeanPipelineDurationS, FieldMeanQueueTimeS, FieldMeanTimeToGreenS)
	default:
		c.mean(&m.MeanPipelineDurationS, FieldMeanPipelineDurationS, durations, reasonNoDurations)
		c.mean(&m.MeanQueueTimeS, FieldMeanQueueTimeS, queues, reasonNoQueue)
		c.mean(&m.MeanTimeToGreenS, FieldMeanTimeToGreenS, recoveries, reasonNoRecovery)
	}
}

// timeToGreen measures, per red streak on one ref, seconds from the first
// failure finishing to the next success finishing
func timeToGreen(runs []Pipeline) []float64 {
	sorted := slices.Clone(runs)
	slices.SortFunc(sorted, func(a, b Pipeline) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var out []float64
	var redSince *time.Time
	for _, p := range sorted {
		at := p.CreatedAt
		if p.FinishedAt != nil {
			at = *p.FinishedAt
		}
		switch p.Status {
		case StatusFailed:
			if redSince == nil {
				t := at
				redSince = &t
			}
		case StatusSuccess:
			if redSince != nil {
				if d := at.Sub(*redSince).Seconds(); d > 0 {
					out = append(out, d)
				}
				redSince = nil
			}
		}
	}
	return out
}
