package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/cache"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/config"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/database"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/jobs"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/logging"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/queue"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/storage"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/tracing"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/webhook"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
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

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}
	logger = logger.WithWorkerID(workerID)

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

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Port, logger.Component("metrics"))
		ms.AddCheck("database", db.Health)
		ms.AddCheck("redis", rdb.Ping)
		ms.AddCheck("storage", stor.Ping)
		ms.AddCheck("queue", func(context.Context) error {
			_, err := q.GetQueueDepth()
			return err
		})
		go func() {
			if err := ms.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
		defer ms.Shutdown(context.Background())
	}

	ff := media.NewFFmpeg(cfg.Composer.FFmpegPath, cfg.Composer.FFprobePath)
	prober := cache.NewProbeCache(rdb, ff, cfg.Redis.ProbeTTL)
	renderer := jobs.NewFFmpegRenderer(cfg.Composer, prober, logger.Component("renderer"))

	svc := jobs.NewService(
		cfg.Composer,
		renderer,
		database.NewRepository(db),
		stor,
		rdb,
		webhook.NewService(cfg.Webhook, logger.Component("webhook")),
		cfg.Redis.ProgressTTL,
		workerID,
		logger.Component("jobs"),
	)

	go reportQueueDepth(ctx, q, logger)

	handler := func(ctx context.Context, job *models.ExportJob) error {
		jobLog := logger.WithJobID(job.ID)
		jobLog.LogJobEvent(job.ID, "received", job.Status, map[string]interface{}{"kind": string(job.Kind)})

		if err := svc.ProcessJob(ctx, job); err != nil {
			jobLog.ErrorWithErr("Failed to process job", err)
			return err
		}
		jobLog.LogJobEvent(job.ID, "finished", job.Status, map[string]interface{}{"artifact_key": job.ArtifactKey})
		return nil
	}

	logger.Info("Worker started, waiting for jobs...")
	if err := q.ConsumeJobs(ctx, handler); err != nil {
		logger.ErrorWithErr("Failed to consume jobs", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Worker stopped")
}

// reportQueueDepth publishes the queue backlogs as gauges
func reportQueueDepth(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.GetQueueDepth()
			if err != nil {
				logger.ErrorWithErr("Failed to inspect queue", err)
				continue
			}
			dlq, err := q.GetDLQDepth()
			if err != nil {
				logger.ErrorWithErr("Failed to inspect dead letter queue", err)
				continue
			}
			metrics.SetQueueDepth(queue.ExportQueueName, depth)
			metrics.SetQueueDepth(queue.DeadLetterQueueName, dlq)
			if dlq > 0 {
				logger.WithFields(map[string]interface{}{"queue_depth": depth, "dlq_depth": dlq}).Warn("Dead letter queue is not empty")
			}
		}
	}
}
