package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const (
	DeadLetterQueueName    = "export_jobs_dlq"
	DeadLetterExchangeName = "reelfuse_dlq"
	RetryQueueName         = "export_jobs_retry"
	MaxRetries             = 3
)

// SetupDeadLetterQueue declares the retry and dead letter queues. Messages
// in the retry queue expire back onto the job queue.
func (q *Queue) SetupDeadLetterQueue() error {
	err := q.channel.ExchangeDeclare(DeadLetterExchangeName, "direct", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(DeadLetterQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := q.channel.QueueBind(DeadLetterQueueName, DeadLetterQueueName, DeadLetterExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": q.queueName,
	}
	if _, err := q.channel.QueueDeclare(RetryQueueName, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}

	return nil
}

// PublishToRetryQueue schedules a failed job for another attempt with
// exponential backoff, or dead-letters it once MaxRetries is reached
func (q *Queue) PublishToRetryQueue(ctx context.Context, job *models.ExportJob, retryCount int, reason string) error {
	if retryCount >= MaxRetries {
		return q.PublishToDeadLetterQueue(ctx, job, reason)
	}

	msg, err := newPublishing(job, retryCount+1)
	if err != nil {
		return err
	}
	delay := BackoffDelay(retryCount)
	msg.Expiration = fmt.Sprintf("%d", delay.Milliseconds())

	if err := q.channel.PublishWithContext(ctx, "", RetryQueueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to retry queue: %w", err)
	}

	q.logger.Warn().
		Str("job_id", job.ID).
		Int("retry", retryCount+1).
		Dur("delay", delay).
		Str("reason", reason).
		Msg("job queued for retry")
	return nil
}

// PublishToDeadLetterQueue parks a job that will not be retried
func (q *Queue) PublishToDeadLetterQueue(ctx context.Context, job *models.ExportJob, reason string) error {
	msg, err := newPublishing(job, MaxRetries)
	if err != nil {
		return err
	}
	msg.Headers["x-failure-reason"] = reason
	msg.Headers["x-failed-at"] = time.Now().Format(time.RFC3339)

	if err := q.channel.PublishWithContext(ctx, DeadLetterExchangeName, DeadLetterQueueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	q.logger.Error().Str("job_id", job.ID).Str("reason", reason).Msg("job moved to dead letter queue")
	return nil
}

// GetDLQDepth returns the number of messages in the dead letter queue
func (q *Queue) GetDLQDepth() (int, error) {
	info, err := q.channel.QueueInspect(DeadLetterQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect DLQ: %w", err)
	}
	return info.Messages, nil
}

// RetryCount reads the retry header, tolerating the integer widths brokers
// hand back
func RetryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// BackoffDelay is 10s doubled per retry, capped at 5 minutes
func BackoffDelay(retryCount int) time.Duration {
	delay := 10 * time.Second * (1 << retryCount)
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}
