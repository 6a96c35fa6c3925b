package store

import (
	"time"

	"devflow/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	PG PGConfig
	CH CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// boot guard: total budget for the initial ping loop and per-ping timeout
	ConnectBudget time.Duration
	PingTimeout   time.Duration
}

// CHConfig configures the clickhouse mirror
type CHConfig struct {
	Enabled    bool
	URL        string
	ClientName string
	ClientTag  string
}

// FromConfig reads SERVICE_PGSQL_* and SERVICE_CLICKHOUSE_* keys.
// Postgres is required; clickhouse is enabled only when its DBURL is set.
// role tags clickhouse sessions so queries can be told apart per binary
func FromConfig(cfg config.Conf, role string) Config {
	pg := cfg.Prefix("SERVICE_PGSQL_")
	ch := cfg.Prefix("SERVICE_CLICKHOUSE_")
	chURL := ch.MayString("DBURL", "")
	return Config{
		PG: PGConfig{
			Enabled:       true,
			URL:           pg.MustString("DBURL"),
			MaxConns:      int32(pg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs:   pg.MayInt("SLOW_MS", 500),
			LogSQL:        pg.MayBool("LOG_SQL", false),
			ConnectBudget: pg.MayDuration("CONNECT_BUDGET", 30*time.Second),
			PingTimeout:   pg.MayDuration("PING_TIMEOUT", 3*time.Second),
		},
		CH: CHConfig{
			Enabled:    chURL != "",
			URL:        chURL,
			ClientName: "devflow",
			ClientTag:  role,
		},
	}
}
