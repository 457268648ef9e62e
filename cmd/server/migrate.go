package main

import (
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/raffle-checkout/internal/config"
	"github.com/iliyamo/raffle-checkout/internal/database"
)

func migrateUp(*cli.Context) error {
	cfg := config.LoadDatabase()
	logger := config.NewLogger(cfg)
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.Migrate(db.DB, logger)
}
