package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/config"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const (
	ExportQueueName = "export_jobs"
	ExchangeName    = "reelfuse"

	maxPriority = 10
)

// Handler runs one job. A nil return acks the delivery; an error sends the
// job to the retry queue, or the dead letter queue once retries run out.
type Handler func(ctx context.Context, job *models.ExportJob) error

// Queue provides message queue operations
type Queue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	prefetch  int
	logger    zerolog.Logger
}

// New connects, declares the exchange, the job queue and the retry and dead
// letter queues
func New(cfg config.QueueConfig, logger zerolog.Logger) (*Queue, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	name := cfg.QueueName
	if name == "" {
		name = ExportQueueName
	}
	q := &Queue{
		conn:      conn,
		channel:   channel,
		queueName: name,
		prefetch:  cfg.Prefetch,
		logger:    logger.With().Str("component", "queue").Logger(),
	}

	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	if err := q.SetupDeadLetterQueue(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) declare() error {
	err := q.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = q.channel.QueueDeclare(
		q.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-max-priority": int32(maxPriority)},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := q.channel.QueueBind(q.queueName, q.queueName, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishJob publishes an export job to the queue
func (q *Queue) PublishJob(ctx context.Context, job *models.ExportJob) error {
	msg, err := newPublishing(job, 0)
	if err != nil {
		return err
	}

	if err := q.channel.PublishWithContext(ctx, ExchangeName, q.queueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// ConsumeJobs starts consuming jobs from the queue until ctx is done
func (q *Queue) ConsumeJobs(ctx context.Context, handler Handler) error {
	prefetch := q.prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := q.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		q.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				q.handle(ctx, msg, handler)
			}
		}
	}()

	return nil
}

func (q *Queue) handle(ctx context.Context, msg amqp.Delivery, handler Handler) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		q.logger.Error().Err(err).Msg("dropping malformed job message")
		msg.Nack(false, false)
		return
	}

	herr := handler(ctx, job)
	if herr == nil {
		msg.Ack(false)
		return
	}

	retries := RetryCount(msg.Headers)
	if err := q.PublishToRetryQueue(ctx, job, retries, herr.Error()); err != nil {
		q.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to requeue job")
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

// GetQueueDepth returns the number of messages in the queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(q.queueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return info.Messages, nil
}

func newPublishing(job *models.ExportJob, retryCount int) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.ID,
		Type:         string(job.Kind),
		Body:         body,
		Timestamp:    time.Now(),
		Priority:     Priority(job.Priority),
		Headers:      amqp.Table{"x-retry-count": int32(retryCount)},
	}, nil
}

func decodeJob(body []byte) (*models.ExportJob, error) {
	var job models.ExportJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == "" || !job.Kind.Valid() {
		return nil, fmt.Errorf("invalid job message: id=%q kind=%q", job.ID, job.Kind)
	}
	return &job, nil
}

// Priority clamps a job priority to the AMQP range the queue declares
func Priority(p int) uint8 {
	if p < 0 {
		return 0
	}
	if p > maxPriority {
		return maxPriority
	}
	return uint8(p)
}
