// Package quality grades the raw store: referential integrity, completeness and ingestion latency.
// Checks are pure functions over counts the caller has already queried
package quality

import (
	"fmt"
	"math"
	"time"
)

// Status of a check or a report; ordered from best to worst
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusPassed:
		return 0
	case StatusWarning:
		return 1
	default:
		return 2
	}
}

// Worst returns the more severe status
func Worst(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Check names
const (
	CheckReferential  = "referential_integrity"
	CheckCompleteness = "completeness"
	CheckLatency      = "latency"
)

// Thresholds tune the completeness and latency checks
type Thresholds struct {
	CompletenessMin float64       // 0.95
	Freshness       time.Duration // 24h
	Lagging         time.Duration // 60m
	Stale           time.Duration // 120m
	CommitAge       time.Duration // 30 days
}

// DefaultThresholds are the documented defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		CompletenessMin: 0.95,
		Freshness:       24 * time.Hour,
		Lagging:         60 * time.Minute,
		Stale:           120 * time.Minute,
		CommitAge:       30 * 24 * time.Hour,
	}
}

// Check is one graded finding set
type Check struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Score   float64        `json:"score"`
	Issues  []string       `json:"issues"`
	Details map[string]any `json:"details"`
}

// Report combines the three checks
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Status      Status    `json:"status"`
	Score       float64   `json:"score"`
	Checks      []Check   `json:"checks"`
}

// Combine takes the worst status and the mean score
func Combine(at time.Time, checks ...Check) Report {
	r := Report{GeneratedAt: at.UTC(), Status: StatusPassed, Checks: checks}
	if len(checks) == 0 {
		return r
	}
	var sum float64
	for _, c := range checks {
		r.Status = Worst(r.Status, c.Status)
		sum += c.Score
	}
	r.Score = sum / float64(len(checks))
	return r
}

// Dangling counts raw rows whose project_id is unknown
type Dangling struct {
	Commits       int `json:"commits"`
	MergeRequests int `json:"merge_requests"`
	Pipelines     int `json:"pipelines"`
}

// Total is the issue count
func (d Dangling) Total() int { return d.Commits + d.MergeRequests + d.Pipelines }

// Referential grades dangling project references
func Referential(d Dangling) Check {
	c := Check{Name: CheckReferential, Issues: []string{}, Details: map[string]any{"dangling": d}}
	for _, e := range []struct {
		n    int
		what string
	}{{d.Commits, "commits"}, {d.MergeRequests, "merge requests"}, {d.Pipelines, "pipelines"}} {
		if e.n > 0 {
			c.Issues = append(c.Issues, fmt.Sprintf("%d %s reference unknown projects", e.n, e.what))
		}
	}
	n := d.Total()
	switch {
	case n == 0:
		c.Status = StatusPassed
	case n < 10:
		c.Status = StatusWarning
	default:
		c.Status = StatusFailed
	}
	c.Score = math.Max(0, 1-float64(n)/100)
	return c
}

// Fill counts rows and how many carry every required field
type Fill struct {
	Total    int `json:"total"`
	Complete int `json:"complete"`
}

// Ratio is 1 for an empty table; emptiness is the freshness flag's concern
func (f Fill) Ratio() float64 {
	if f.Total == 0 {
		return 1
	}
	return float64(f.Complete) / float64(f.Total)
}

// Completeness inputs
type Completeness struct {
	Commits       Fill `json:"commits"`
	MergeRequests Fill `json:"merge_requests"`
	// RecentRows counts rows of any type ingested inside the freshness window
	RecentRows int `json:"recent_rows"`
}

// Complete grades field fill ratios and freshness
func Complete(in Completeness, th Thresholds) Check {
	c := Check{Name: CheckCompleteness, Issues: []string{}}
	commits, mrs := in.Commits.Ratio(), in.MergeRequests.Ratio()
	if commits < th.CompletenessMin {
		c.Issues = append(c.Issues, fmt.Sprintf("commits %.1f%% complete, below %.0f%%", commits*100, th.CompletenessMin*100))
	}
	if mrs < th.CompletenessMin {
		c.Issues = append(c.Issues, fmt.Sprintf("merge requests %.1f%% complete, below %.0f%%", mrs*100, th.CompletenessMin*100))
	}
	fresh := in.RecentRows > 0
	if !fresh {
		c.Issues = append(c.Issues, fmt.Sprintf("no rows ingested in the last %s", th.Freshness))
	}
	switch n := len(c.Issues); {
	case n == 0:
		c.Status = StatusPassed
	case n <= 2:
		c.Status = StatusWarning
	default:
		c.Status = StatusFailed
	}
	c.Score = (commits + mrs) / 2
	c.Details = map[string]any{
		"commit_ratio":        commits,
		"merge_request_ratio": mrs,
		"fresh":               fresh,
		"counts":              in,
	}
	return c
}

// Latency inputs
type Latency struct {
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	NewestCommit *time.Time `json:"newest_commit,omitempty"`
}

// Lag grades the time since the last successful incremental run
func Lag(in Latency, now time.Time, th Thresholds) Check {
	c := Check{Name: CheckLatency, Issues: []string{}, Details: map[string]any{}}
	if in.LastSuccess == nil {
		c.Status = StatusFailed
		c.Issues = append(c.Issues, "no successful incremental run recorded")
		return c
	}

	since := max(now.Sub(*in.LastSuccess), 0)
	minutes := since.Minutes()
	c.Details["minutes_since_last_run"] = math.Round(minutes*10) / 10
	c.Details["last_success"] = in.LastSuccess.UTC()
	c.Status = StatusPassed
	switch {
	case since > th.Stale:
		c.Status = StatusFailed
		c.Issues = append(c.Issues, fmt.Sprintf("stale: last successful run %.0f minutes ago", minutes))
	case since >= th.Lagging:
		c.Status = StatusWarning
		c.Issues = append(c.Issues, fmt.Sprintf("lagging: last successful run %.0f minutes ago", minutes))
	}
	if in.NewestCommit != nil && now.Sub(*in.NewestCommit) > th.CommitAge {
		c.Status = Worst(c.Status, StatusWarning)
		c.Issues = append(c.Issues, fmt.Sprintf("newest commit is older than %d days", int(th.CommitAge.Hours()/24)))
		c.Details["newest_commit"] = in.NewestCommit.UTC()
	}
	c.Score = math.Max(0, 1-since.Hours()/24)
	return c
}
