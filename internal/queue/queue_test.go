package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

func TestNewPublishingRoundTrip(t *testing.T) {
	job := &models.ExportJob{
		ID:       "job-1",
		Kind:     models.ExportAudio,
		Priority: 42,
		Spec: models.ComposeSpec{
			Clips:     []models.Clip{{ID: "a", Duration: 3}},
			Narration: []models.NarrationTrack{{URL: "vo.mp3"}},
		},
	}

	msg, err := newPublishing(job, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), msg.Priority)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "audio", msg.Type)
	assert.Equal(t, 2, RetryCount(msg.Headers))

	decoded, err := decodeJob(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Spec, decoded.Spec)
}

func TestDecodeJobRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     "{",
		"missing id":   `{"kind":"video"}`,
		"unknown kind": `{"id":"x","kind":"gif"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeJob([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestPriority(t *testing.T) {
	assert.Equal(t, uint8(0), Priority(-3))
	assert.Equal(t, uint8(5), Priority(models.JobPriorityNormal))
	assert.Equal(t, uint8(10), Priority(99))
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, RetryCount(nil))
	assert.Equal(t, 0, RetryCount(amqp.Table{"x-retry-count": "2"}))
	assert.Equal(t, 3, RetryCount(amqp.Table{"x-retry-count": int64(3)}))
	assert.Equal(t, 1, RetryCount(amqp.Table{"x-retry-count": int32(1)}))
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, BackoffDelay(0))
	assert.Equal(t, 40*time.Second, BackoffDelay(2))
	assert.Equal(t, 5*time.Minute, BackoffDelay(10))
}
