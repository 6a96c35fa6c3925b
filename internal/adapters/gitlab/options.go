package gitlab

import (
	"time"

	"devflow/internal/platform/config"
)

// Options configures the Client
type Options struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
	PerPage   int

	// retry with exponential backoff and jitter, bounded attempts
	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration

	// token bucket in front of every attempt
	RPS   float64
	Burst int

	// breaker opens at BreakerRatio failures over at least BreakerMinRequests
	BreakerRatio       float64
	BreakerMinRequests uint32
	BreakerCooldown    time.Duration

	UserCacheSize int

	// GroupPath limits discovery to one group and its subgroups; empty means membership
	GroupPath string
}

// FromConfig reads SERVICE_GITLAB_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SERVICE_GITLAB_")
	return Options{
		BaseURL:            c.MustURL("BASE_URL").String(),
		Token:              c.MayString("TOKEN", ""),
		UserAgent:          c.MayString("USER_AGENT", defaultUA),
		Timeout:            c.MayDuration("TIMEOUT", defaultTimeout),
		PerPage:            c.MayInt("PER_PAGE", defaultPerPage),
		MaxRetries:         c.MayInt("RETRY_MAX", defaultMaxRetry),
		RetryBase:          c.MayDuration("RETRY_BASE", defaultRetryBase),
		RetryCap:           c.MayDuration("RETRY_CAP", defaultRetryCap),
		RPS:                c.MayFloat64("RPS", defaultRPS),
		Burst:              c.MayInt("BURST", defaultBurst),
		BreakerRatio:       c.MayFloat64("BREAKER_RATIO", defaultRatio),
		BreakerMinRequests: uint32(max(c.MayInt("BREAKER_MIN_REQUESTS", defaultMinReqs), 1)),
		BreakerCooldown:    c.MayDuration("BREAKER_COOLDOWN", defaultCooldown),
		UserCacheSize:      c.MayInt("USER_CACHE_SIZE", defaultUserCache),
		GroupPath:          c.MayString("GROUP_PATH", ""),
	}
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PerPage <= 0 || o.PerPage > 100 {
		o.PerPage = defaultPerPage
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RetryCap < o.RetryBase {
		o.RetryCap = max(defaultRetryCap, o.RetryBase)
	}
	if o.RPS <= 0 {
		o.RPS = defaultRPS
	}
	if o.Burst <= 0 {
		o.Burst = defaultBurst
	}
	if o.BreakerRatio <= 0 || o.BreakerRatio > 1 {
		o.BreakerRatio = defaultRatio
	}
	if o.BreakerMinRequests == 0 {
		o.BreakerMinRequests = defaultMinReqs
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = defaultCooldown
	}
	if o.UserCacheSize <= 0 {
		o.UserCacheSize = defaultUserCache
	}
	return o
}
