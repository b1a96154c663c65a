package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/composer"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/database"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/logging"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/middleware"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/storage"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/timeline"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	previewTimeout   = 30 * time.Second
)

type jobRepository interface {
	CreateJob(ctx context.Context, job *models.ExportJob) error
	GetJob(ctx context.Context, id string) (*models.ExportJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*models.ExportJob, error)
	CancelJob(ctx context.Context, id string) error
	UpdateJobStatus(ctx context.Context, id, status, errMsg string) error
}

type jobPublisher interface {
	PublishJob(ctx context.Context, job *models.ExportJob) error
}

type jobCache interface {
	GetJobProgress(ctx context.Context, jobID string) (float64, bool, error)
	GetComposerStatus(ctx context.Context, jobID string) (*composer.Status, error)
	GetJob(ctx context.Context, jobID string) (*models.ExportJob, error)
	SetJob(ctx context.Context, job *models.ExportJob, ttl time.Duration) error
	DeleteJob(ctx context.Context, jobID string) error
}

type mediaUploader interface {
	UploadFile(ctx context.Context, objectName, filePath string) (int64, error)
}

type previewer interface {
	Preview(ctx context.Context, spec models.ComposeSpec, at float64) (*image.RGBA, error)
}

// API serves the export HTTP endpoints
type API struct {
	repo       jobRepository
	publisher  jobPublisher
	cache      jobCache
	jobTTL     time.Duration
	previewer  previewer
	inputs     storage.Downloader
	uploader   mediaUploader
	prober     media.Prober
	tempDir    string
	checks     map[string]func(context.Context) error
	auth       *middleware.Authenticator
	limiter    *middleware.RateLimiter
	logger     zerolog.Logger
	requestLog *logging.Logger
}

type createExportRequest struct {
	Kind        models.ExportKind  `json:"kind" binding:"required"`
	Spec        models.ComposeSpec `json:"spec"`
	CallbackURL string             `json:"callback_url"`
	Priority    int                `json:"priority"`
}

type specRequest struct {
	Spec models.ComposeSpec `json:"spec"`
}

// exportResponse overlays live progress on the stored job
type exportResponse struct {
	*models.ExportJob
	Composer *composer.Status `json:"composer,omitempty"`
}

type trackWindow struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
}

type timelineResponse struct {
	Total   float64         `json:"total"`
	Overlap float64         `json:"overlap"`
	Clips   []timeline.Span `json:"clips"`
	Tracks  []trackWindow   `json:"tracks"`
}

// validateSpec rejects compositions the worker could never run
func validateSpec(kind models.ExportKind, spec models.ComposeSpec) error {
	for i, c := range spec.Clips {
		if c.Duration <= 0 {
			return fmt.Errorf("clip %d: duration must be positive", i)
		}
	}
	switch spec.Transition {
	case "", models.TransitionCrossFade, models.TransitionFadeToBlack:
	default:
		return fmt.Errorf("unknown transition %q", spec.Transition)
	}
	switch spec.Subtitles.Mode {
	case "", models.SubtitleStatic, models.SubtitleDynamic:
	default:
		return fmt.Errorf("unknown subtitle mode %q", spec.Subtitles.Mode)
	}

	switch kind {
	case models.ExportVideo, models.ExportAudio:
		if len(spec.Clips) == 0 {
			return composer.ErrNoClips
		}
	case models.ExportAudioConcat:
		if len(spec.Narration) == 0 {
			return errors.New("no narration tracks")
		}
	}
	return nil
}

func clampPriority(p int) int {
	if p <= 0 {
		return models.JobPriorityNormal
	}
	if p > models.JobPriorityHigh {
		return models.JobPriorityHigh
	}
	return p
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range api.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"errors": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Create export job endpoint
func (api *API) createExport(c *gin.Context) {
	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown export kind %q", req.Kind)})
		return
	}
	if err := validateSpec(req.Kind, req.Spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := &models.ExportJob{
		ID:          uuid.New().String(),
		Kind:        req.Kind,
		Status:      models.JobStatusQueued,
		Priority:    clampPriority(req.Priority),
		CallbackURL: req.CallbackURL,
		Spec:        req.Spec.Normalized(),
	}

	ctx := c.Request.Context()
	if err := api.repo.CreateJob(ctx, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create job: %v", err)})
		return
	}

	if err := api.publisher.PublishJob(ctx, job); err != nil {
		if uerr := api.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, err.Error()); uerr != nil {
			api.logger.Error().Err(uerr).Str("job_id", job.ID).Msg("Failed to mark unqueued job as failed")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to queue job: %v", err)})
		return
	}

	metrics.RecordJobCreated(string(job.Kind))
	api.logger.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Int("clips", len(job.Spec.Clips)).Msg("Export job queued")

	c.JSON(http.StatusCreated, job)
}

// Get export job endpoint
func (api *API) getExport(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")

	// Finished jobs never change, so they are served from the cache.
	if api.cache != nil {
		if job, err := api.cache.GetJob(ctx, jobID); err == nil && job != nil {
			c.JSON(http.StatusOK, exportResponse{ExportJob: job})
			return
		}
	}

	job, err := api.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := exportResponse{ExportJob: job}
	if api.cache != nil {
		if job.Terminal() {
			if err := api.cache.SetJob(ctx, job, api.jobTTL); err != nil {
				api.logger.Debug().Err(err).Str("job_id", jobID).Msg("Failed to cache job")
			}
		} else {
			if p, ok, err := api.cache.GetJobProgress(ctx, jobID); err == nil && ok && p > job.Progress {
				job.Progress = p
			}
			if st, err := api.cache.GetComposerStatus(ctx, jobID); err == nil {
				resp.Composer = st
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// List export jobs endpoint
func (api *API) listExports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	jobs, err := api.repo.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exports": jobs,
		"limit":   limit,
		"offset":  offset,
	})
}

// Cancel export job endpoint
func (api *API) cancelExport(c *gin.Context) {
	jobID := c.Param("id")

	if err := api.repo.CancelJob(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, database.ErrTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": "Job already finished"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to cancel job: %v", err)})
		}
		return
	}

	if api.cache != nil {
		if err := api.cache.DeleteJob(c.Request.Context(), jobID); err != nil {
			api.logger.Debug().Err(err).Str("job_id", jobID).Msg("Failed to clear cached progress")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Job cancelled successfully", "job_id": jobID})
}

// Timeline layout endpoint
func (api *API) describeTimeline(c *gin.Context) {
	var req specRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spec := req.Spec.Normalized()
	tl := timeline.New(spec.Clips, spec.Overlap)

	tracks := make([]trackWindow, 0, len(spec.Narration))
	for _, n := range spec.Narration {
		if n.Index >= tl.Len() {
			continue
		}
		tracks = append(tracks, trackWindow{Index: n.Index, Start: tl.Start(n.Index), Stop: tl.Stop(n.Index)})
	}

	c.JSON(http.StatusOK, timelineResponse{
		Total:   tl.Total(),
		Overlap: tl.Overlap,
		Clips:   tl.Spans(),
		Tracks:  tracks,
	})
}

// Preview frame endpoint
func (api *API) preview(c *gin.Context) {
	at, err := strconv.ParseFloat(c.DefaultQuery("at", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be a number of seconds"})
		return
	}

	var req specRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), previewTimeout)
	defer cancel()

	dir, err := os.MkdirTemp(api.tempDir, "preview-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create temp dir: %v", err)})
		return
	}
	defer os.RemoveAll(dir)

	spec, err := storage.FetchInputs(ctx, api.inputs, req.Spec.Normalized(), dir, 4)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	frame, err := api.previewer.Preview(ctx, spec, at)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to render preview: %v", err)})
		return
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := png.Encode(c.Writer, frame); err != nil {
		api.logger.Error().Err(err).Msg("Failed to encode preview")
	}
}

// Upload media endpoint. The returned ref can be used as a clip or
// narration URL in an export spec.
func (api *API) uploadMedia(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No media file provided"})
		return
	}

	dir, err := os.MkdirTemp(api.tempDir, "upload-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create temp dir: %v", err)})
		return
	}
	defer os.RemoveAll(dir)

	tempPath := filepath.Join(dir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	ctx := c.Request.Context()
	info, err := api.prober.ExtractClipInfo(ctx, tempPath)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Failed to read media: %v", err)})
		return
	}

	key := storage.MediaKey(uuid.New().String(), file.Filename)
	size, err := api.uploader.UploadFile(ctx, key, tempPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to upload: %v", err)})
		return
	}

	api.logger.Info().Str("key", key).Int64("size", size).Float64("duration", info.Duration).Msg("Media uploaded")

	c.JSON(http.StatusCreated, gin.H{
		"ref":       storage.Scheme + key,
		"key":       key,
		"size":      size,
		"duration":  info.Duration,
		"has_video": info.HasVideo,
		"has_audio": info.HasAudio,
	})
}
