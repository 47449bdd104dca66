package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"approvalflow/pkg"
)

// RedisOptions configures the redis-backed store. TTL of zero means
// checkpoints never expire; a paused run may wait for a human decision
// indefinitely.
type RedisOptions struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore persists checkpoints in redis, one key per run ID. Redis
// serializes writes per key, which gives the per-run read-after-write
// guarantee the resume path depends on.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "checkpoint"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

func (r *RedisStore) key(runID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, runID)
}

func (r *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return fmt.Errorf("checkpoint must carry a run id")
	}
	data, err := sonic.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := r.client.Set(ctx, r.key(cp.RunID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	data, err := r.client.Get(ctx, r.key(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("checkpoint for %q: %w", runID, pkg.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := sonic.Unmarshal([]byte(data), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (r *RedisStore) HasPending(ctx context.Context, runID string) (bool, error) {
	count, err := r.client.Exists(ctx, r.key(runID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	return count > 0, nil
}

func (r *RedisStore) Delete(ctx context.Context, runID string) error {
	if err := r.client.Del(ctx, r.key(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
