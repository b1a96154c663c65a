package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/composer"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/config"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/database"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/storage"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/tracing"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const (
	// fetchConcurrency bounds parallel input downloads per job
	fetchConcurrency = 4
	defaultLockTTL   = time.Hour
)

// JobStore persists job state
type JobStore interface {
	StartJob(ctx context.Context, id, workerID string) error
	UpdateProgress(ctx context.Context, id string, progress float64) error
	CompleteJob(ctx context.Context, id, key, url string, size int64) error
	UpdateJobStatus(ctx context.Context, id, status, errMsg string) error
}

// ArtifactStore fetches inputs and stores finished artifacts
type ArtifactStore interface {
	storage.Downloader
	UploadFile(ctx context.Context, objectName, filePath string) (int64, error)
	GetURL(ctx context.Context, objectName string) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// JobCache publishes live progress for the API and keeps two workers from
// running the same job
type JobCache interface {
	SetJobProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error
	SetComposerStatus(ctx context.Context, jobID string, st composer.Status, ttl time.Duration) error
	DeleteJob(ctx context.Context, jobID string) error
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// Notifier tells clients about finished jobs
type Notifier interface {
	NotifyCompleted(ctx context.Context, job *models.ExportJob) error
	NotifyFailed(ctx context.Context, job *models.ExportJob) error
}

// Service runs export jobs end to end
type Service struct {
	cfg         config.ComposerConfig
	renderer    Renderer
	repo        JobStore
	store       ArtifactStore
	cache       JobCache
	notifier    Notifier
	progressTTL time.Duration
	workerID    string
	logger      zerolog.Logger

	inFlight atomic.Int64
}

// NewService creates a job service. cache and notifier may be nil.
func NewService(
	cfg config.ComposerConfig,
	renderer Renderer,
	repo JobStore,
	store ArtifactStore,
	cache JobCache,
	notifier Notifier,
	progressTTL time.Duration,
	workerID string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		renderer:    renderer,
		repo:        repo,
		store:       store,
		cache:       cache,
		notifier:    notifier,
		progressTTL: progressTTL,
		workerID:    workerID,
		logger:      logger.With().Str("component", "jobs").Str("worker_id", workerID).Logger(),
	}
}

// ProcessJob runs one export job. A job that was cancelled or already
// completed is skipped without error.
func (s *Service) ProcessJob(ctx context.Context, job *models.ExportJob) (err error) {
	log := s.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()

	// A redelivered message while a peer still runs the job is dropped; the
	// peer's own unacked delivery comes back if it dies.
	if s.cache != nil {
		lock := "export:" + job.ID
		ok, err := s.cache.AcquireLock(ctx, lock, s.lockTTL())
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Failed to acquire job lock; running unlocked")
		case !ok:
			log.Info().Msg("Job is running on another worker")
			return nil
		default:
			defer s.cache.ReleaseLock(context.WithoutCancel(ctx), lock)
		}
	}

	if err := s.repo.StartJob(ctx, job.ID, s.workerID); err != nil {
		if errors.Is(err, database.ErrTerminal) {
			log.Info().Msg("Skipping job that is no longer runnable")
			return nil
		}
		return fmt.Errorf("failed to start job: %w", err)
	}
	now := time.Now()
	job.Status = models.JobStatusProcessing
	job.WorkerID = s.workerID
	job.StartedAt = &now
	job.Progress = 0
	job.ErrorMsg = ""

	metrics.SetJobsInProgress(int(s.inFlight.Add(1)))
	defer func() { metrics.SetJobsInProgress(int(s.inFlight.Add(-1))) }()

	span, ctx := tracing.StartExportSpan(ctx, job)
	defer tracing.FinishSpan(span)
	defer func() {
		if err != nil {
			tracing.LogError(span, err)
		}
	}()

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	log.Info().Msg("Processing export job")

	tempDir := filepath.Join(s.cfg.TempDir, job.ID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return s.failJob(ctx, job, fmt.Errorf("failed to create temp directory: %w", err))
	}
	defer os.RemoveAll(tempDir)

	var spec models.ComposeSpec
	err = stage(ctx, "export.fetch_inputs", func(ctx context.Context) error {
		var ferr error
		spec, ferr = storage.FetchInputs(ctx, s.store, job.Spec.Normalized(), tempDir, fetchConcurrency)
		return ferr
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	name := ArtifactName(job.Kind, s.cfg.Container)
	outPath := filepath.Join(tempDir, name)
	err = stage(ctx, "export.render", func(ctx context.Context) error {
		return s.renderer.Render(ctx, job.Kind, spec, outPath, s.reporter(ctx, job))
	})
	if err != nil {
		return s.failJob(ctx, job, fmt.Errorf("export failed: %w", err))
	}

	key := storage.ArtifactKey(job.ID, name)
	var size int64
	err = stage(ctx, "export.upload", func(ctx context.Context) error {
		var uerr error
		size, uerr = s.store.UploadFile(ctx, key, outPath)
		return uerr
	})
	if err != nil {
		return s.failJob(ctx, job, fmt.Errorf("failed to upload artifact: %w", err))
	}
	url, err := s.store.GetURL(ctx, key)
	if err != nil {
		return s.failJob(ctx, job, fmt.Errorf("failed to get artifact URL: %w", err))
	}

	if err := s.repo.CompleteJob(ctx, job.ID, key, url, size); err != nil {
		if errors.Is(err, database.ErrTerminal) {
			log.Info().Msg("Job was cancelled while running; discarding artifact")
			if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
				log.Warn().Err(derr).Str("artifact_key", key).Msg("Failed to delete discarded artifact")
			}
			return nil
		}
		return s.failJob(ctx, job, fmt.Errorf("failed to complete job: %w", err))
	}

	completed := time.Now()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.ArtifactKey = key
	job.ArtifactURL = url
	job.ArtifactSize = size
	job.CompletedAt = &completed

	duration := completed.Sub(now).Seconds()
	metrics.RecordJobCompleted(string(job.Kind), models.JobStatusCompleted, duration)
	metrics.RecordArtifact(string(job.Kind), size)
	tracing.SetTag(span, "artifact.size", size)

	if s.cache != nil {
		if err := s.cache.DeleteJob(ctx, job.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to clear live progress")
		}
	}
	s.notify(ctx, job, true)

	log.Info().
		Str("artifact_key", key).
		Int64("artifact_size", size).
		Float64("duration_s", duration).
		Msg("Export job completed")
	return nil
}

// stage runs one step of a job under a child span
func stage(ctx context.Context, name string, fn func(context.Context) error) error {
	span, ctx := tracing.StartSpan(ctx, name)
	defer tracing.FinishSpan(span)
	err := fn(ctx)
	tracing.LogError(span, err)
	return err
}

// failJob marks a job as failed, notifies the callback, and returns cause
// so the queue can retry it
func (s *Service) failJob(ctx context.Context, job *models.ExportJob, cause error) error {
	s.logger.Error().Err(cause).Str("job_id", job.ID).Msg("Export job failed")

	// The job context may be the reason we are here.
	ctx = context.WithoutCancel(ctx)

	if err := s.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job as failed")
	}

	completed := time.Now()
	job.Status = models.JobStatusFailed
	job.ErrorMsg = cause.Error()
	job.CompletedAt = &completed

	var duration float64
	if job.StartedAt != nil {
		duration = completed.Sub(*job.StartedAt).Seconds()
	}
	metrics.RecordJobCompleted(string(job.Kind), models.JobStatusFailed, duration)
	metrics.RecordError("jobs", "export_failed")
	s.notify(ctx, job, false)

	return cause
}

func (s *Service) lockTTL() time.Duration {
	if s.cfg.JobTimeout > 0 {
		return s.cfg.JobTimeout + time.Minute
	}
	return defaultLockTTL
}

func (s *Service) notify(ctx context.Context, job *models.ExportJob, ok bool) {
	if s.notifier == nil {
		return
	}
	var err error
	if ok {
		err = s.notifier.NotifyCompleted(ctx, job)
	} else {
		err = s.notifier.NotifyFailed(ctx, job)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Webhook notification failed")
	}
}

// reporter returns a ProgressFunc that publishes whole-percent changes to
// the progress store and the job table
func (s *Service) reporter(ctx context.Context, job *models.ExportJob) ProgressFunc {
	var (
		mu   sync.Mutex
		last = -1.0
	)
	return func(st composer.Status) {
		mu.Lock()
		defer mu.Unlock()

		pct := float64(int(st.Progress))
		if pct <= last {
			return
		}
		last = pct
		job.Progress = pct

		if s.cache != nil {
			if err := s.cache.SetJobProgress(ctx, job.ID, pct, s.progressTTL); err != nil {
				s.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Failed to publish progress")
			}
			if err := s.cache.SetComposerStatus(ctx, job.ID, st, s.progressTTL); err != nil {
				s.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Failed to publish composer status")
			}
		}
		if err := s.repo.UpdateProgress(ctx, job.ID, pct); err != nil {
			s.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Failed to store progress")
		}

		s.logger.Debug().
			Str("job_id", job.ID).
			Float64("progress", pct).
			Int("clip", st.Index).
			Float64("global", st.Global).
			Msg("Export progress")
	}
}
