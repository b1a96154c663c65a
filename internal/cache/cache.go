package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/composer"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Job Cache Operations

// SetJob caches a job record
func (c *Cache) SetJob(ctx context.Context, job *models.ExportJob, ttl time.Duration) error {
	return c.setJSON(ctx, jobKey(job.ID), job, ttl)
}

// GetJob returns a cached job, or nil on a miss
func (c *Cache) GetJob(ctx context.Context, jobID string) (*models.ExportJob, error) {
	var job models.ExportJob
	found, err := c.getJSON(ctx, jobKey(jobID), &job)
	metrics.RecordCacheAccess("job", found)
	if err != nil || !found {
		return nil, err
	}
	return &job, nil
}

// DeleteJob removes a job and its progress entries
func (c *Cache) DeleteJob(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, jobKey(jobID), progressKey(jobID), statusKey(jobID)).Err()
}

// SetJobProgress caches job progress for quick retrieval
func (c *Cache) SetJobProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error {
	return c.client.Set(ctx, progressKey(jobID), progress, ttl).Err()
}

// GetJobProgress returns the cached progress and whether it was present
func (c *Cache) GetJobProgress(ctx context.Context, jobID string) (float64, bool, error) {
	progress, err := c.client.Get(ctx, progressKey(jobID)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get job progress: %w", err)
	}
	return progress, true, nil
}

// SetComposerStatus caches the latest composer snapshot of a running job
func (c *Cache) SetComposerStatus(ctx context.Context, jobID string, st composer.Status, ttl time.Duration) error {
	return c.setJSON(ctx, statusKey(jobID), st, ttl)
}

// GetComposerStatus returns the cached composer snapshot, or nil on a miss
func (c *Cache) GetComposerStatus(ctx context.Context, jobID string) (*composer.Status, error) {
	var st composer.Status
	found, err := c.getJSON(ctx, statusKey(jobID), &st)
	if err != nil || !found {
		return nil, err
	}
	return &st, nil
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

func (c *Cache) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

func jobKey(id string) string      { return "job:" + id }
func progressKey(id string) string { return "job:progress:" + id }
func statusKey(id string) string   { return "job:status:" + id }

// ProbeCache memoizes clip probes so repeated exports of the same sources
// skip ffprobe. It implements media.Prober.
type ProbeCache struct {
	cache  *Cache
	prober media.Prober
	ttl    time.Duration
}

// NewProbeCache wraps prober with a Redis-backed cache
func NewProbeCache(c *Cache, prober media.Prober, ttl time.Duration) *ProbeCache {
	return &ProbeCache{cache: c, prober: prober, ttl: ttl}
}

// ExtractClipInfo returns cached clip info or probes and caches it. Cache
// failures fall through to the prober.
func (p *ProbeCache) ExtractClipInfo(ctx context.Context, inputPath string) (*media.ClipInfo, error) {
	key := probeKey(inputPath)

	var info media.ClipInfo
	found, err := p.cache.getJSON(ctx, key, &info)
	metrics.RecordCacheAccess("probe", found)
	if err == nil && found {
		return &info, nil
	}

	probed, err := p.prober.ExtractClipInfo(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	if err := p.cache.setJSON(ctx, key, probed, p.ttl); err != nil {
		metrics.RecordError("cache", "probe_store")
	}
	return probed, nil
}

func probeKey(path string) string {
	sum := sha1.Sum([]byte(path))
	return "probe:" + hex.EncodeToString(sum[:])
}
