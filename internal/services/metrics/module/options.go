package module

import (
	"time"

	"devflow/internal/core/devmetrics"
	"devflow/internal/platform/config"
)

// patternSep splits regex lists; commas are legal inside patterns
const patternSep = ";;"

// Options holds configuration options for metrics computation
type Options struct {
	Windows       []int
	MinSample     int
	BatchParallel int
	DBTimeout     time.Duration

	Rules devmetrics.RuleConfig

	// ExportDir enables snapshot files when set
	ExportDir string
	// MirrorCH copies snapshots into clickhouse when a client is configured
	MirrorCH bool
}

// FromConfig reads the metrics options from config with CORE_METRICS_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_METRICS_")
	return Options{
		Windows:       c.MayInts("WINDOWS", []int{14, 28, 90}),
		MinSample:     c.MayInt("MIN_SAMPLE", devmetrics.DefaultMinSample),
		BatchParallel: c.MayInt("BATCH_PARALLEL", 4),
		DBTimeout:     c.MayDuration("DB_TIMEOUT", time.Minute),
		Rules: devmetrics.RuleConfig{
			CommitExclude:  c.MayList("COMMIT_EXCLUDE", patternSep, devmetrics.DefaultCommitExclusion),
			BranchExclude:  c.MayList("BRANCH_EXCLUDE", patternSep, nil),
			FileExclude:    c.MayList("FILE_EXCLUDE", patternSep, nil),
			ProjectInclude: c.MayList("PROJECT_INCLUDE", patternSep, nil),
			ProjectExclude: c.MayList("PROJECT_EXCLUDE", patternSep, nil),
			WIP:            c.MayList("WIP_PATTERNS", patternSep, nil),
			Rework:         c.MayList("REWORK_PATTERNS", patternSep, nil),
			Revert:         c.MayList("REVERT_PATTERNS", patternSep, nil),
			Hotfix:         c.MayList("HOTFIX_PATTERNS", patternSep, nil),
		},
		ExportDir: c.MayString("EXPORT_DIR", ""),
		MirrorCH:  c.MayBool("MIRROR_CH", false),
	}
}
