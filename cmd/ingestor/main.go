package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"refuge_map/internal/adapters/datasets"
	"refuge_map/internal/adapters/observability"
	"refuge_map/internal/app"
	"refuge_map/internal/shared"
	mysqlrepo "refuge_map/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("meta", cfg.MetaURL).
		Str("availability", cfg.AvailabilityURL).
		Int("workers", cfg.Workers).
		Msg("ingestor starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	client, err := datasets.New(cfg.MetaURL, cfg.AvailabilityURL, cfg.FetchRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dataset client")
	}

	start := time.Now()
	ing := app.NewIngestionService(app.NewLoader(client), mysqlrepo.New(db), cfg.Workers)
	rep, err := ing.Ingest(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("ingestion failed")
	}

	log.Info().
		Str("version", rep.Version).
		Int("refuges", rep.Refuges).
		Int("upserted", rep.Upserted).
		Int("failed", rep.Failed).
		Int("pruned", rep.Pruned).
		Int("misses", rep.Misses).
		Dur("took", time.Since(start)).
		Msg("ingestion completed")
	if rep.Failed > 0 {
		os.Exit(1)
	}
}
