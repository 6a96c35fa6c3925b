package main

import (
	"flag"

	"devflow/internal/platform/config"
	"devflow/internal/platform/logger"
	"devflow/internal/platform/store/migrations"
)

func main() {
	fDown := flag.Bool("down", false, "roll every migration back instead of migrating up")
	flag.Parse()

	l := logger.Get()
	dsn := config.New().Prefix("SERVICE_PGSQL_").MustString("DBURL")

	if *fDown {
		if err := migrations.Down(dsn); err != nil {
			l.Fatal().Err(err).Msg("migrate down failed")
		}
		l.Info().Msg("schema rolled back")
		return
	}
	v, err := migrations.Up(dsn)
	if err != nil {
		l.Fatal().Err(err).Msg("migrate up failed")
	}
	l.Info().Uint("version", v).Msg("schema migrated")
}
