package models

import (
	"time"
)

// ExportKind selects which export path a job runs
type ExportKind string

const (
	// ExportVideo records the composited frames and the narration mix into a container
	ExportVideo ExportKind = "video"
	// ExportAudio renders the narration mix offline into a WAV file
	ExportAudio ExportKind = "audio"
	// ExportAudioConcat lays the narration segments end to end into a WAV file
	ExportAudioConcat ExportKind = "audio_concat"
)

// Valid reports whether the kind is one the worker knows how to run
func (k ExportKind) Valid() bool {
	switch k {
	case ExportVideo, ExportAudio, ExportAudioConcat:
		return true
	}
	return false
}

// ExportJob tracks one export request through the queue and the worker
type ExportJob struct {
	ID           string      `json:"id" db:"id"`
	Kind         ExportKind  `json:"kind" db:"kind"`
	Status       string      `json:"status" db:"status"`
	Priority     int         `json:"priority" db:"priority"`
	Progress     float64     `json:"progress" db:"progress"`
	ErrorMsg     string      `json:"error_msg,omitempty" db:"error_msg"`
	WorkerID     string      `json:"worker_id,omitempty" db:"worker_id"`
	ArtifactKey  string      `json:"artifact_key,omitempty" db:"artifact_key"`
	ArtifactURL  string      `json:"artifact_url,omitempty" db:"artifact_url"`
	ArtifactSize int64       `json:"artifact_size,omitempty" db:"artifact_size"`
	CallbackURL  string      `json:"callback_url,omitempty" db:"callback_url"`
	Spec         ComposeSpec `json:"spec" db:"spec"`
	StartedAt    *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the job can no longer change state
func (j *ExportJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobStatus constants
const (
	JobStatusPending    = "pending"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// JobPriority constants
const (
	JobPriorityLow    = 0
	JobPriorityNormal = 5
	JobPriorityHigh   = 10
)
