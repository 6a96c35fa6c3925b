// Package devmetrics computes per developer delivery metrics and their audit trail.
// It works only on rows already fetched into memory and never blocks on I/O.
package devmetrics

import (
	"slices"
	"time"

	"devflow/internal/core/stats"
)

const (
	// DefaultMinSample is the n below which an entity is flagged as a low sample
	DefaultMinSample = 5
	// sufficientData is the MR or commit count that makes a result reportable
	sufficientData = 5
)

// Engine is immutable after construction and safe for concurrent use
type Engine struct {
	rules     Rules
	minSample int
	winsor    Winsorizer
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithMinSample overrides the low sample threshold
func WithMinSample(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minSample = n
		}
	}
}

// WithWinsorizer installs an outlier clipping strategy
func WithWinsorizer(w Winsorizer) Option {
	return func(e *Engine) {
		if w != nil {
			e.winsor = w
		}
	}
}

// WithClock sets the source of ComputationDate
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine over compiled rules
func NewEngine(rules Rules, opts ...Option) *Engine {
	e := &Engine{
		rules:     rules,
		minSample: DefaultMinSample,
		winsor:    NoopWinsorizer{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rules exposes the compiled rule set
func (e *Engine) Rules() Rules { return e.rules }

// MinSample is the configured low sample threshold
func (e *Engine) MinSample() int { return e.minSample }

// calc carries the state of one computation
type calc struct {
	e          *Engine
	flags      Flags
	start, end time.Time
	days       int
	nulls      map[string]string
}

func (c *calc) null(reason string, fields ...string) {
	for _, f := range fields {
		c.nulls[f] = reason
	}
}

// Compute runs the full pipeline for one developer and window
func (e *Engine) Compute(in Input, f Flags) Result {
	c := &calc{
		e:     e,
		flags: f,
		start: in.WindowStart(),
		end:   in.WindowEnd,
		days:  in.WindowDays,
		nulls: map[string]string{},
	}

	commits := filterSlice(in.Commits, func(x Commit) bool { return c.in(x.AuthoredAt) })
	mrs := filterSlice(in.MergeRequests, c.active)
	pipes := filterSlice(in.Pipelines, func(x Pipeline) bool { return c.in(x.CreatedAt) })
	raw := EntityCounts{Commits: len(commits), MergeRequests: len(mrs), Pipelines: len(pipes)}

	if f.ApplyExclusions {
		commits = filterSlice(commits, func(x Commit) bool { return !e.rules.ExcludeCommit(x) })
		mrs = filterSlice(mrs, func(x MergeRequest) bool { return !e.rules.ExcludeMergeRequest(x) })
	}
	filtered := EntityCounts{Commits: len(commits), MergeRequests: len(mrs), Pipelines: len(pipes)}

	var m Metrics
	c.mergeRequestDurations(&m, mrs)
	c.mergeRequestOutcomes(&m, mrs)
	c.commitStats(&m, commits)
	c.pipelineStats(&m, pipes)
	c.jobStats(&m, pipes)

	computed := e.now().UTC()
	scope := slices.Clone(in.ProjectScope)
	slices.Sort(scope)
	if scope == nil {
		scope = []int64{}
	}

	a := Audit{
		HasCommits:       filtered.Commits > 0,
		HasMergeRequests: filtered.MergeRequests > 0,
		HasPipelines:     filtered.Pipelines > 0,

		LowCommitCount:   filtered.Commits < e.minSample,
		LowMRCount:       filtered.MergeRequests < e.minSample,
		LowPipelineCount: filtered.Pipelines < e.minSample,

		RawCounts:      raw,
		FilteredCounts: filtered,
		ExcludedCounts: EntityCounts{
			Commits:       raw.Commits - filtered.Commits,
			MergeRequests: raw.MergeRequests - filtered.MergeRequests,
			Pipelines:     raw.Pipelines - filtered.Pipelines,
		},

		DataQuality:       Grade(raw.Total()),
		HasSufficientData: filtered.MergeRequests >= sufficientData || filtered.Commits >= sufficientData,
		NullReasons:       c.nulls,

		ExclusionsApplied:    f.ApplyExclusions,
		WinsorizationApplied: f.ApplyWinsorization,
		ProjectScope:         scope,
		MinSampleSize:        e.minSample,
		ComputationDate:      computed,
	}

	return Result{
		DeveloperID: in.DeveloperID,
		WindowDays:  in.WindowDays,
		WindowStart: c.start,
		WindowEnd:   c.end,
		ComputedAt:  computed,
		Metrics:     m,
		Audit:       a,
	}
}

// Grade maps a raw data point total onto a quality class
func Grade(total int) DataQuality {
	switch {
	case total >= 50:
		return QualityExcellent
	case total >= 20:
		return QualityGood
	case total >= 10:
		return QualityFair
	default:
		return QualityPoor
	}
}

// in reports whether t falls in [start, end)
func (c *calc) in(t time.Time) bool { return !t.Before(c.start) && t.Before(c.end) }

// active keeps MRs opened before the window end that were not finished before it started
func (c *calc) active(m MergeRequest) bool {
	if !m.CreatedAt.Before(c.end) {
		return false
	}
	if fin := finishedAt(m); fin != nil && fin.Before(c.start) {
		return false
	}
	return true
}

func finishedAt(m MergeRequest) *time.Time {
	if m.MergedAt != nil {
		return m.MergedAt
	}
	return m.ClosedAt
}

func (c *calc) mergedInWindow(m MergeRequest) bool {
	return m.MergedAt != nil && c.in(*m.MergedAt)
}

// openAtEnd reports whether the MR was still open when the window closed
func (c *calc) openAtEnd(m MergeRequest) bool {
	fin := finishedAt(m)
	return m.CreatedAt.Before(c.end) && (fin == nil || !fin.Before(c.end))
}

// percentiles fills a P50/P90 pair from a duration sample in hours
func (c *calc) percentiles(p50, p90 **float64, f50, f90 string, sample []float64, emptyReason string) {
	if len(sample) == 0 {
		c.null(emptyReason, f50, f90)
		return
	}
	pos := c.winsorize(f50, stats.Positive(sample))
	ps, ok := stats.Percentiles(pos, 0.5, 0.9)
	if !ok {
		c.null(reasonNonPositiveOnly, f50, f90)
		return
	}
	*p50, *p90 = &ps[0], &ps[1]
}

// mean fills a mean from a sample
func (c *calc) mean(dst **float64, field string, sample []float64, emptyReason string) {
	if len(sample) == 0 {
		c.null(emptyReason, field)
		return
	}
	v, ok := stats.Mean(c.winsorize(field, sample))
	if !ok {
		c.null(emptyReason, field)
		return
	}
	*dst = &v
}

// ratio fills a rate or records why it is undefined
func (c *calc) ratio(dst **float64, field string, num, den int, emptyReason string) {
	v, ok := stats.Ratio(num, den)
	if !ok {
		c.null(emptyReason, field)
		return
	}
	*dst = &v
}

func (c *calc) winsorize(field string, sample []float64) []float64 {
	if !c.flags.ApplyWinsorization || len(sample) == 0 {
		return sample
	}
	return c.e.winsor.Winsorize(field, sample)
}

func hours(from, to time.Time) float64 { return to.Sub(from).Hours() }

func filterSlice[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, x := range in {
		if keep(x) {
			out = append(out, x)
		}
	}
	return out
}
