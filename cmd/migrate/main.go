package main

import (
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pomodoro/focusd/internal/config"
	"pomodoro/focusd/internal/db"
	"pomodoro/focusd/migrations"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	var source fs.FS = migrations.Files
	if cfg.MigrationsDir != "" {
		log.Info().Str("dir", cfg.MigrationsDir).Msg("using migrations from disk")
		source = os.DirFS(cfg.MigrationsDir)
	}
	if err := db.RunMigrations(database, source); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	log.Info().Str("db", cfg.DBPath).Msg("migrations applied successfully")
}
