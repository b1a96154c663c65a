package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

var (
	// ErrNotFound is returned when a job does not exist
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when a finished job is asked to change state
	ErrTerminal = errors.New("job already finished")
)

// querier is the subset of pgxpool.Pool the repository uses
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides export job persistence
type Repository struct {
	db querier
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db.Pool}
}

const jobColumns = `id, kind, status, priority, progress, error_msg, worker_id,
	artifact_key, artifact_url, artifact_size, callback_url, spec,
	started_at, completed_at, created_at, updated_at`

// track records a database operation; call the returned func with a
// pointer to the named error result
func track(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		status := "success"
		if err := *errp; err != nil && !errors.Is(err, ErrNotFound) {
			status = "error"
		}
		metrics.RecordDatabaseOperation(op, status, time.Since(start).Seconds())
	}
}

// CreateJob inserts a new job, assigning an ID when it has none
func (r *Repository) CreateJob(ctx context.Context, job *models.ExportJob) (err error) {
	defer track("create_job")(&err)

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	query := `
		INSERT INTO export_jobs (id, kind, status, priority, progress, callback_url, spec)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		job.ID, job.Kind, job.Status, job.Priority, job.Progress, job.CallbackURL, job.Spec,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (job *models.ExportJob, err error) {
	defer track("get_job")(&err)

	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE id = $1`
	job, err = scanJob(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first
func (r *Repository) ListJobs(ctx context.Context, limit, offset int) (jobs []*models.ExportJob, err error) {
	defer track("list_jobs")(&err)

	query := `SELECT ` + jobColumns + ` FROM export_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus moves a job to status and records errMsg
func (r *Repository) UpdateJobStatus(ctx context.Context, id, status, errMsg string) (err error) {
	defer track("update_job_status")(&err)

	query := `
		UPDATE export_jobs
		SET status = $2, error_msg = $3, updated_at = NOW(),
		    completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StartJob claims a job for a worker. A failed job may be claimed again by
// a queue retry; completed and cancelled jobs fail with ErrTerminal.
func (r *Repository) StartJob(ctx context.Context, id, workerID string) (err error) {
	defer track("start_job")(&err)

	query := `
		UPDATE export_jobs
		SET status = 'processing', worker_id = $2, started_at = NOW(), updated_at = NOW(),
		    progress = 0, error_msg = ''
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
	`
	tag, err := r.db.Exec(ctx, query, id, workerID)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTerminal
	}
	return nil
}

// UpdateProgress stores the latest progress percentage
func (r *Repository) UpdateProgress(ctx context.Context, id string, progress float64) (err error) {
	defer track("update_progress")(&err)

	_, err = r.db.Exec(ctx,
		`UPDATE export_jobs SET progress = $2, updated_at = NOW() WHERE id = $1`, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// CompleteJob records the artifact and marks the job completed
func (r *Repository) CompleteJob(ctx context.Context, id, key, url string, size int64) (err error) {
	defer track("complete_job")(&err)

	query := `
		UPDATE export_jobs
		SET status = 'completed', progress = 100, artifact_key = $2, artifact_url = $3,
		    artifact_size = $4, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> 'cancelled'
	`
	tag, err := r.db.Exec(ctx, query, id, key, url, size)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTerminal
	}
	return nil
}

// CancelJob cancels a job that has not finished
func (r *Repository) CancelJob(ctx context.Context, id string) (err error) {
	defer track("cancel_job")(&err)

	query := `
		UPDATE export_jobs
		SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrTerminal
	}
	return nil
}

func scanJob(row pgx.Row) (*models.ExportJob, error) {
	var job models.ExportJob
	err := row.Scan(
		&job.ID, &job.Kind, &job.Status, &job.Priority, &job.Progress, &job.ErrorMsg, &job.WorkerID,
		&job.ArtifactKey, &job.ArtifactURL, &job.ArtifactSize, &job.CallbackURL, &job.Spec,
		&job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
