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

	"github.com/rs/zerolog/log"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/cache"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/config"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/database"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/jobs"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/logging"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/middleware"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/queue"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/storage"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/tracing"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.ErrorWithErr("Failed to initialize tracer", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.ErrorWithErr("Failed to connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.ErrorWithErr("Failed to migrate database", err)
		os.Exit(1)
	}

	stor, err := storage.New(ctx, cfg.Storage, logger.WithField("component", "storage"))
	if err != nil {
		logger.ErrorWithErr("Failed to initialize storage", err)
		os.Exit(1)
	}

	rdb, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.ErrorWithErr("Failed to connect to redis", err)
		os.Exit(1)
	}
	defer rdb.Close()

	q, err := queue.New(cfg.Queue, logger.Component("queue"))
	if err != nil {
		logger.ErrorWithErr("Failed to connect to queue", err)
		os.Exit(1)
	}
	defer q.Close()

	ff := media.NewFFmpeg(cfg.Composer.FFmpegPath, cfg.Composer.FFprobePath)
	prober := cache.NewProbeCache(rdb, ff, cfg.Redis.ProbeTTL)
	renderer := jobs.NewFFmpegRenderer(cfg.Composer, prober, logger.Component("preview"))

	limiter := middleware.NewRateLimiter(cfg.Auth.RatePerSecond, cfg.Auth.Burst)
	go limiter.Cleanup(ctx, 5*time.Minute)

	api := &API{
		repo:      database.NewRepository(db),
		publisher: q,
		cache:     rdb,
		jobTTL:    cfg.Redis.ProgressTTL,
		previewer: renderer,
		inputs:    stor,
		uploader:  stor,
		prober:    ff,
		tempDir:   cfg.Composer.TempDir,
		checks: map[string]func(context.Context) error{
			"database": db.Health,
			"redis":    rdb.Ping,
			"storage":  stor.Ping,
		},
		auth:       middleware.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer),
		limiter:    limiter,
		logger:     logger.Component("api"),
		requestLog: logger.WithField("component", "http"),
	}

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Port, logger.Component("metrics"))
		for name, check := range api.checks {
			ms.AddCheck(name, check)
		}
		go func() {
			if err := ms.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
		defer ms.Shutdown(context.Background())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      setupRouter(api),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr("Failed to start server", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}

	logger.Info("Server stopped")
}
