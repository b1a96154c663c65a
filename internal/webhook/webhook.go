package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/config"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const (
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"

	SignatureHeader = "X-Reelfuse-Signature"
)

// Event is the body POSTed to a job's callback URL
type Event struct {
	Event     string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	Data      *models.ExportJob `json:"data"`
}

// Service handles webhook delivery and retry logic
type Service struct {
	client     *http.Client
	secret     string
	maxRetries int
	backoff    func(attempt int) time.Duration
	logger     zerolog.Logger
}

// NewService creates a new webhook service
func NewService(cfg config.WebhookConfig, logger zerolog.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		client:     &http.Client{Timeout: timeout},
		secret:     cfg.Secret,
		maxRetries: cfg.MaxRetries,
		backoff:    retryDelay,
		logger:     logger.With().Str("component", "webhook").Logger(),
	}
}

// retryDelay: 1s, 2s, 4s, ... capped at 30s
func retryDelay(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d <= 0 || d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// Notify delivers event for job to the job's callback URL. Jobs without a
// callback URL are skipped.
func (s *Service) Notify(ctx context.Context, event string, job *models.ExportJob) error {
	if job == nil || job.CallbackURL == "" {
		return nil
	}

	payload, err := json.Marshal(Event{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      job,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	deliveryID := uuid.New().String()
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff(attempt - 1)):
			}
		}

		lastErr = s.deliver(ctx, job.CallbackURL, event, deliveryID, payload)
		if lastErr == nil {
			s.logger.Debug().
				Str("job_id", job.ID).
				Str("event", event).
				Int("attempt", attempt+1).
				Msg("Webhook delivered")
			return nil
		}

		s.logger.Warn().
			Err(lastErr).
			Str("job_id", job.ID).
			Str("event", event).
			Int("attempt", attempt+1).
			Msg("Webhook delivery failed")
	}

	return fmt.Errorf("webhook %s for job %s: %w", event, job.ID, lastErr)
}

// NotifyCompleted sends export.completed
func (s *Service) NotifyCompleted(ctx context.Context, job *models.ExportJob) error {
	return s.Notify(ctx, EventExportCompleted, job)
}

// NotifyFailed sends export.failed
func (s *Service) NotifyFailed(ctx context.Context, job *models.ExportJob) error {
	return s.Notify(ctx, EventExportFailed, job)
}

func (s *Service) deliver(ctx context.Context, url, event, deliveryID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Reelfuse-Webhook/1.0")
	req.Header.Set("X-Reelfuse-Event", event)
	req.Header.Set("X-Reelfuse-Delivery", deliveryID)
	if s.secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// Sign returns the HMAC-SHA256 signature header value for payload
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
