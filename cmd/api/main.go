package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"folio/api/internal/app"
	"folio/api/internal/config"
	"folio/api/internal/logging"
	"folio/api/internal/metrics"
	"folio/api/internal/preview"
	"folio/api/internal/publish"
	"folio/api/internal/schema"
	"folio/api/internal/search"
	"folio/api/internal/snapshot"
	"folio/api/internal/store"
)

const tokenSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	if len(applied) > 0 {
		log.Info().Strs("migrations", applied).Msg("migrations applied")
	}

	dataStore := store.NewPostgresStore(db)
	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	var backend search.Backend
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logging.Component(log, "search"))
		defer meiliClient.Close()
		backend = meiliClient
	}
	searchService := search.NewService(backend, logging.Component(log, "search"))
	listeners := []publish.Listener{searchService}

	var snapshots *snapshot.Writer
	if strings.TrimSpace(cfg.SnapshotEndpoint) != "" {
		snapshots, err = snapshot.Connect(ctx, snapshot.Config{
			Endpoint:  cfg.SnapshotEndpoint,
			AccessKey: cfg.SnapshotAccessKey,
			SecretKey: cfg.SnapshotSecretKey,
			Bucket:    cfg.SnapshotBucket,
			UseSSL:    cfg.SnapshotUseSSL,
		}, logging.Component(log, "snapshot"))
		if err != nil {
			log.Fatal().Err(err).Msg("snapshot storage unavailable")
		}
		listeners = append(listeners, snapshots)
	}

	var tokens preview.TokenStore = dataStore
	var redisTokens *preview.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisTokens, err = preview.NewRedisStore(ctx, cfg.RedisURL, cfg.PreviewRetention)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisTokens.Close()
		tokens = redisTokens
		log.Info().Msg("preview tokens stored in redis")
	} else {
		log.Info().Msg("preview tokens stored in postgres")
		go sweepExpiredTokens(ctx, dataStore, cfg.PreviewRetention, log)
	}

	engine := publish.NewEngine(dataStore, schema.NewRegistry(), publish.Options{
		Parallelism:  cfg.BatchParallelism,
		BatchTimeout: cfg.BatchTimeout,
		Metrics:      appMetrics,
		Log:          logging.Component(log, "publish"),
		Listeners:    listeners,
	})
	previews := preview.NewService(tokens, dataStore, preview.Options{
		DefaultTTLHours: cfg.PreviewDefaultTTLHours,
		MaxTTLHours:     cfg.PreviewMaxTTLHours,
		Metrics:         appMetrics,
		Log:             logging.Component(log, "preview"),
	})

	service := app.NewService(cfg, dataStore, engine, previews, searchService, logging.Component(log, "app"))
	if redisTokens != nil {
		service.AddReadinessCheck("redis", redisTokens.Ping)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logging.Component(log, "http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.BatchTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("folio api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	searchService.Wait()
	if snapshots != nil {
		snapshots.Wait()
	}
}

// sweepExpiredTokens deletes Postgres preview tokens once they are past
// their expiry plus the retention window. Redis expires its own keys.
func sweepExpiredTokens(ctx context.Context, tokens *store.PostgresStore, retention time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := tokens.DeletePreviewTokensExpiredBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Warn().Err(err).Msg("preview token sweep failed")
				continue
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("expired preview tokens removed")
			}
		}
	}
}
