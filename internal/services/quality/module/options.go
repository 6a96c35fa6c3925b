package module

import (
	"time"

	"devflow/internal/core/quality"
	"devflow/internal/platform/config"
)

// Options holds configuration for the quality auditor
type Options struct {
	Thresholds quality.Thresholds
	// Persist stores every report produced by the audit command
	Persist bool
	// StatementTimeout caps each audit query server side
	StatementTimeout time.Duration
}

// FromConfig reads options with the CORE_QUALITY_ prefix
func FromConfig(cfg config.Conf) Options {
	in := cfg.Prefix("CORE_QUALITY_")
	d := quality.DefaultThresholds()
	return Options{
		Thresholds: quality.Thresholds{
			CompletenessMin: in.MayFloat64("COMPLETENESS_MIN", d.CompletenessMin),
			Freshness:       in.MayDuration("FRESHNESS", d.Freshness),
			Lagging:         time.Duration(in.MayInt("LAGGING_MIN", int(d.Lagging/time.Minute))) * time.Minute,
			Stale:           time.Duration(in.MayInt("STALE_MIN", int(d.Stale/time.Minute))) * time.Minute,
			CommitAge:       in.MayDuration("COMMIT_AGE", d.CommitAge),
		},
		Persist:          in.MayBool("PERSIST", true),
		StatementTimeout: in.MayDuration("STATEMENT_TIMEOUT", 30*time.Second),
	}
}
