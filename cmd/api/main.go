package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"refuge_map/internal/adapters/datasets"
	server "refuge_map/internal/adapters/http_server"
	"refuge_map/internal/adapters/memcache"
	"refuge_map/internal/adapters/observability"
	redisad "refuge_map/internal/adapters/redis"
	"refuge_map/internal/app"
	"refuge_map/internal/domain"
	"refuge_map/internal/shared"
	mysqlrepo "refuge_map/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogFile)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.Timezone).Msg("unknown timezone")
	}

	// deps
	src := snapshotSource(cfg)
	cache := viewCache(ctx, cfg)
	views := app.NewViewService(src, cache, cfg.CacheTTL, loc)
	views.OnLoad = func(ds *domain.Dataset, err error) {
		if err != nil {
			observability.ObserveDatasetError()
			return
		}
		st := ds.Stats
		observability.ObserveDatasetLoad(st.Matched, st.AvailabilityOnly, st.MetaOnly, st.SkippedMeta, ds.LoadedAt)
	}
	// the API still starts without data; views answer 503 until a refresh succeeds
	if err := views.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("initial dataset load failed")
	}
	go views.Run(ctx, cfg.RefreshEvery)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{V: views})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("source", cfg.DataSource).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

func snapshotSource(cfg shared.Config) domain.SnapshotSource {
	if cfg.DataSource == shared.SourceMySQL {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		if err := db.Ping(); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		return app.NewRepoSource(mysqlrepo.New(db))
	}

	client, err := datasets.New(cfg.MetaURL, cfg.AvailabilityURL, cfg.FetchRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dataset client")
	}
	return app.NewLoader(client)
}

func viewCache(ctx context.Context, cfg shared.Config) domain.Cache {
	if cfg.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR empty, using in-process cache")
		return memcache.New(1024, cfg.CacheTTL)
	}
	rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using in-process cache")
		_ = rc.Close()
		return memcache.New(1024, cfg.CacheTTL)
	}
	return rc
}
