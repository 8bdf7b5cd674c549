package progress

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/kozaktomas/photo-quality/internal/config"
)

// RedisChannel implements Publisher and Canceller on a Redis hash with a
// per-key TTL.
type RedisChannel struct {
	client *redis.Client
}

// NewRedisChannel connects to Redis and verifies the connection.
func NewRedisChannel(ctx context.Context, cfg *config.RedisConfig) (*RedisChannel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisChannel{client: client}, nil
}

// Close releases the Redis connection.
func (r *RedisChannel) Close() error {
	return r.client.Close()
}

func progressKey(scope string) string {
	return "quality:progress:" + scope
}

func cancelKey(taskRef string) string {
	return "quality:cancel:" + taskRef
}

// Publish overwrites the snapshot for a scope and refreshes its TTL.
func (r *RedisChannel) Publish(ctx context.Context, scope string, snap Snapshot) error {
	key := progressKey(scope)
	fields := map[string]any{
		"status":    snap.Status,
		"processed": snap.Processed,
		"failed":    snap.Failed,
		"total":     snap.Total,
		"error":     snap.Error,
	}
	if snap.StartedAt != "" {
		fields["started_at"] = snap.StartedAt
	}

	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	if err := r.client.Expire(ctx, key, TTL).Err(); err != nil {
		return fmt.Errorf("refresh progress ttl: %w", err)
	}
	return nil
}

// Get returns the current snapshot, or nil when absent or expired.
func (r *RedisChannel) Get(ctx context.Context, scope string) (*Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, progressKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	snap := &Snapshot{
		Status:    fields["status"],
		Processed: atoiOrZero(fields["processed"]),
		Failed:    atoiOrZero(fields["failed"]),
		Total:     atoiOrZero(fields["total"]),
		Error:     fields["error"],
		StartedAt: fields["started_at"],
	}
	return snap, nil
}

// RequestCancel raises the cancellation flag. The flag carries the same
// TTL as progress entries so abandoned flags clean themselves up.
func (r *RedisChannel) RequestCancel(ctx context.Context, taskRef string) error {
	if err := r.client.Set(ctx, cancelKey(taskRef), "1", TTL).Err(); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

// IsCancelled reports whether the cancellation flag is raised.
func (r *RedisChannel) IsCancelled(ctx context.Context, taskRef string) (bool, error) {
	n, err := r.client.Exists(ctx, cancelKey(taskRef)).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return n > 0, nil
}

// ClearCancel lowers the cancellation flag.
func (r *RedisChannel) ClearCancel(ctx context.Context, taskRef string) error {
	if err := r.client.Del(ctx, cancelKey(taskRef)).Err(); err != nil {
		return fmt.Errorf("clear cancel flag: %w", err)
	}
	return nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
