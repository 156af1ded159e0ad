package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/batch-messenger/internal/api"
	"github.com/sungwon/batch-messenger/internal/auth"
	"github.com/sungwon/batch-messenger/internal/bootstrap"
	"github.com/sungwon/batch-messenger/internal/config"
	"github.com/sungwon/batch-messenger/internal/dispatch"
	"github.com/sungwon/batch-messenger/internal/httpclient"
	"github.com/sungwon/batch-messenger/internal/logger"
	"github.com/sungwon/batch-messenger/internal/media"
	"github.com/sungwon/batch-messenger/internal/metrics"
	"github.com/sungwon/batch-messenger/internal/session"
	"github.com/sungwon/batch-messenger/internal/status"
	"github.com/sungwon/batch-messenger/internal/storage"
	"github.com/sungwon/batch-messenger/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := storage.NewDB(
		ctx,
		cfg.Database.URL,
		cfg.Database.PoolMin,
		cfg.Database.PoolMax,
		cfg.Database.ConnectTimeout,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	store := db.Store()
	log.Info().Msg("database connection established")

	if err := bootstrap.SeedUser(ctx, store, log, cfg.Seed.Email, cfg.Seed.Password); err != nil {
		log.Fatal().Err(err).Msg("failed to seed user")
	}

	checks := []api.Check{{Name: "database", Fn: db.Ping}}

	// Redis backs batch progress and login throttling; both are off without it.
	var (
		redisClient *redis.Client
		progress    *dispatch.RedisSink
		limiter     *auth.LoginLimiter
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		progress = dispatch.NewRedisSink(redisClient, cfg.Dispatch.ProgressTTL, cfg.Dispatch.StreamLen)
		limiter = auth.NewLoginLimiter(redisClient, cfg.Auth.LoginAttempts, cfg.Auth.LoginWindow)
		checks = append(checks, api.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connection established")
	} else {
		log.Warn().Msg("redis not configured; batch progress and login throttling disabled")
	}

	// Media storage and resolution
	mediaStore, err := media.New(ctx, media.Config{
		Type:          cfg.Media.Type,
		Path:          cfg.Media.LocalPath,
		PublicBaseURL: cfg.Media.PublicBaseURL,
		S3Bucket:      cfg.Media.S3Bucket,
		S3Prefix:      cfg.Media.S3Prefix,
		S3Endpoint:    cfg.Media.S3Endpoint,
		S3Region:      cfg.Media.S3Region,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media store")
	}
	var mediaDir string
	if local, ok := mediaStore.(*media.LocalStore); ok {
		mediaDir = local.Dir()
	}
	resolver := media.NewResolver(mediaStore, httpclient.New(cfg.Media.FetchTimeout, cfg.Media.MaxFetchBytes))

	// Transport and session runtimes
	tr, err := transport.New(transport.Config{
		Type:      cfg.Transport.Type,
		URL:       cfg.Transport.URL,
		Token:     cfg.Transport.Token,
		Timeout:   cfg.Transport.Timeout,
		OutputDir: cfg.Transport.OutputDir,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize transport")
	}

	registry := session.NewRegistry(store, tr, session.Options{
		ChunkSize:   cfg.Dispatch.ChunkSize,
		Concurrency: cfg.Dispatch.Concurrency,
		ChunkDelay:  cfg.Dispatch.ChunkDelay,
		Retry:       session.NewRetryStrategy(cfg.Dispatch.MaxAttempts),
	}, log)

	restored, err := registry.Restore(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to restore sessions")
	}
	log.Info().Int("restored", restored).Str("transport", tr.Name()).Msg("session registry ready")

	// Dispatch pipeline
	sinks := []dispatch.ProgressSink{dispatch.NewLogSink(log)}
	if progress != nil {
		sinks = append(sinks, progress)
	}
	coordinator := dispatch.NewCoordinator(log, sinks...)
	batches := dispatch.NewService(dispatch.NewBuilder(store, registry), resolver, coordinator)

	deps := api.Deps{
		Log:            log,
		JWT:            auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL),
		Limiter:        limiter,
		Validate:       validator.New(),
		Users:          store,
		Sessions:       store,
		Runtimes:       registry,
		Batches:        batches,
		Messages:       status.NewService(store),
		Checks:         checks,
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		MediaDir:       mediaDir,
	}
	if progress != nil {
		deps.Progress = progress
	}

	if cfg.Auth.JWTSecret == "" || cfg.Auth.JWTSecret == "change-me-in-production" {
		log.Warn().Msg("JWT secret is not set or using default value; set BATCH_MESSENGER_AUTH_JWT_SECRET in production")
	}

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stat := db.Pool.Stat()
				metrics.DBConnectionsActive.Set(float64(stat.AcquiredConns()))
				metrics.DBConnectionsIdle.Set(float64(stat.IdleConns()))
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		// Graceful shutdown with 30-second timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		if err := registry.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop sessions")
		}
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("batch observers did not finish")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}
