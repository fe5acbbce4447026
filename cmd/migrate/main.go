package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"aurelienallenic/api/config"
	"aurelienallenic/api/database"
	"aurelienallenic/api/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <up|down>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	direction := flag.Arg(0)
	if direction != database.MigrateUp && direction != database.MigrateDown {
		fmt.Fprintf(os.Stderr, "Unknown command: %s. Use `up` or `down`.\n", direction)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	pg, err := database.NewPostgresDB(context.Background(), cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer pg.Close()

	if err := database.Migrate(pg.DB, direction); err != nil {
		log.WithError(err).Error("migration failed")
		pg.Close()
		os.Exit(1)
	}
	log.WithField("direction", direction).Info("Migrations applied successfully")
}
