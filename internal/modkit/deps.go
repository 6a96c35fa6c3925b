// Package modkit provides module wiring and the shared deps every module receives
package modkit

import (
	"devflow/internal/modkit/repokit"
	"devflow/internal/platform/config"
	"devflow/internal/platform/logger"
	"devflow/internal/platform/store"
)

// Deps holds core dependencies passed to modules
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	// CH is nil unless SERVICE_CLICKHOUSE_DBURL is set
	CH store.Clickhouse
}

// FromStore builds Deps over an opened store
func FromStore(cfg config.Conf, st *store.Store) Deps {
	d := Deps{Cfg: cfg, Log: *logger.Get()}
	if st != nil {
		d.PG, d.CH = st.PG, st.CH
	}
	return d
}
