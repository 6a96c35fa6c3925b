package module

import (
	"time"

	"devflow/internal/platform/config"
)

// Options holds configuration options for the ingestion coordinator
type Options struct {
	MaxParallel         int
	DiscoveryRefresh    time.Duration
	IncrementalFallback time.Duration
	BackfillDays        int
	MaxRetries          int
	RetryBase           time.Duration
	RetryCap            time.Duration
	ProjectTimeout      time.Duration
	DBTimeout           time.Duration
	EnableLease         bool
	LeaseTTL            time.Duration
	CheckSignatures     bool
	PipelineJobs        bool
}

// FromConfig reads the ingest options from config with CORE_INGEST_ prefix
func FromConfig(cfg config.Conf) Options {
	in := cfg.Prefix("CORE_INGEST_")
	return Options{
		MaxParallel:         in.MayInt("MAX_PARALLEL", 4),
		DiscoveryRefresh:    in.MayDuration("DISCOVERY_REFRESH", 7*24*time.Hour),
		IncrementalFallback: in.MayDuration("INCREMENTAL_FALLBACK", time.Hour),
		BackfillDays:        in.MayInt("BACKFILL_DAYS", 180),
		MaxRetries:          in.MayInt("RETRY_MAX", 3),
		RetryBase:           in.MayDuration("RETRY_BASE", time.Second),
		RetryCap:            in.MayDuration("RETRY_CAP", 30*time.Second),
		ProjectTimeout:      in.MayDuration("PROJECT_TIMEOUT", 15*time.Minute),
		DBTimeout:           in.MayDuration("DB_TIMEOUT", time.Minute),
		EnableLease:         in.MayBool("LEASES", true),
		LeaseTTL:            in.MayDuration("LEASE_TTL", 6*time.Hour),
		CheckSignatures:     in.MayBool("CHECK_SIGNATURES", true),
		PipelineJobs:        in.MayBool("PIPELINE_JOBS", true),
	}
}
