package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crucible/pkg/models"
)

const (
	StreamKeyJobs    = "crucible:jobs:pending"
	StreamKeyResults = "crucible:results"
)

// RedisQueue implements both the job queue and the result bus on redis
// streams: the dispatcher XADDs jobs, workers consume through a consumer
// group, and outcomes travel back on a second stream the same way.
type RedisQueue struct {
	client *redis.Client
}

// RedisQueueConfig holds Redis connection configuration
type RedisQueueConfig struct {
	Addr         string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultRedisQueueConfig returns production defaults.
func DefaultRedisQueueConfig(addr string) RedisQueueConfig {
	return RedisQueueConfig{
		Addr:         addr,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// NewRedisQueue initializes a new Redis client with default config.
func NewRedisQueue(addr string) (*RedisQueue, error) {
	return NewRedisQueueWithConfig(DefaultRedisQueueConfig(addr))
}

// NewRedisQueueWithConfig initializes a new Redis client with custom config.
func NewRedisQueueWithConfig(cfg RedisQueueConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{client: client}, nil
}

func (r *RedisQueue) Close() error {
	return r.client.Close()
}

// PushJob adds a job payload to the pending stream.
func (r *RedisQueue) PushJob(ctx context.Context, msg *models.JobMessage) error {
	return r.push(ctx, StreamKeyJobs, msg, map[string]interface{}{
		"job_id":   msg.JobID.String(),
		"batch_id": msg.BatchID.String(),
	})
}

// PopJob retrieves one job for the given consumer.
func (r *RedisQueue) PopJob(ctx context.Context, group, consumer string) (string, *models.JobMessage, error) {
	msgID, payload, err := r.pop(ctx, StreamKeyJobs, group, consumer)
	if err != nil || payload == "" {
		return msgID, nil, err
	}
	var msg models.JobMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msgID, nil, fmt.Errorf("failed to unmarshal job message: %w", err)
	}
	return msgID, &msg, nil
}

// AckJob acknowledges a job as processed.
func (r *RedisQueue) AckJob(ctx context.Context, group, msgID string) error {
	return r.client.XAck(ctx, StreamKeyJobs, group, msgID).Err()
}

// EnsureJobGroup creates the job consumer group if it doesn't exist.
func (r *RedisQueue) EnsureJobGroup(ctx context.Context, group string) error {
	return r.ensureGroup(ctx, StreamKeyJobs, group)
}

// PublishResult pushes a job outcome onto the result stream.
func (r *RedisQueue) PublishResult(ctx context.Context, msg *models.ResultMessage) error {
	return r.push(ctx, StreamKeyResults, msg, map[string]interface{}{
		"job_id":   msg.JobID.String(),
		"batch_id": msg.BatchID.String(),
	})
}

// PopResult retrieves one result for the given consumer.
func (r *RedisQueue) PopResult(ctx context.Context, group, consumer string) (string, *models.ResultMessage, error) {
	msgID, payload, err := r.pop(ctx, StreamKeyResults, group, consumer)
	if err != nil || payload == "" {
		return msgID, nil, err
	}
	var msg models.ResultMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msgID, nil, fmt.Errorf("failed to unmarshal result message: %w", err)
	}
	return msgID, &msg, nil
}

// AckResult acknowledges a result as collected.
func (r *RedisQueue) AckResult(ctx context.Context, group, msgID string) error {
	return r.client.XAck(ctx, StreamKeyResults, group, msgID).Err()
}

// EnsureResultGroup creates the result consumer group if it doesn't exist.
func (r *RedisQueue) EnsureResultGroup(ctx context.Context, group string) error {
	return r.ensureGroup(ctx, StreamKeyResults, group)
}

func (r *RedisQueue) push(ctx context.Context, stream string, msg any, extra map[string]interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	values := map[string]interface{}{"payload": payload}
	for k, v := range extra {
		values[k] = v
	}

	if err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", stream, err)
	}
	return nil
}

func (r *RedisQueue) pop(ctx context.Context, stream, group, consumer string) (string, string, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    2 * time.Second,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return "", "", nil // Timeout, nothing pending
		}
		return "", "", fmt.Errorf("failed to read from %s: %w", stream, err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return "", "", nil
	}

	msg := streams[0].Messages[0]
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return msg.ID, "", fmt.Errorf("invalid payload format")
	}
	return msg.ID, payload, nil
}

func (r *RedisQueue) ensureGroup(ctx context.Context, stream, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if err.Error() == "BUSYGROUP Consumer Group name already exists" {
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}
