package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dosada05/club-events/models"
)

const (
	DefaultRedisKey  = "club:notifications"
	redisPollTimeout = time.Second
)

// RedisQueue keeps notifications in a Redis list so queued mail survives a
// restart. Producers LPUSH, consumers BRPOP.
type RedisQueue struct {
	client   *redis.Client
	key      string
	maxLen   int64
	poll     time.Duration
	isClosed atomic.Bool
}

// NewRedisQueue returns a queue on key. A positive maxLen makes Enqueue
// reject notifications once the list holds that many entries.
func NewRedisQueue(client *redis.Client, key string, maxLen int) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{
		client: client,
		key:    key,
		maxLen: int64(maxLen),
		poll:   redisPollTimeout,
	}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, n models.Notification) error {
	if q.isClosed.Load() {
		return ErrClosed
	}
	if q.maxLen > 0 {
		size, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return fmt.Errorf("redis queue length: %w", err)
		}
		if size >= q.maxLen {
			return ErrFull
		}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

// Dequeue polls with a short BRPOP timeout so a closed queue or cancelled
// context is noticed promptly.
func (q *RedisQueue) Dequeue(ctx context.Context) (models.Notification, error) {
	for {
		if q.isClosed.Load() {
			return models.Notification{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return models.Notification{}, err
		}

		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.Notification{}, ctxErr
			}
			return models.Notification{}, fmt.Errorf("redis dequeue: %w", err)
		}

		// BRPOP replies with [key, value].
		var n models.Notification
		if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
			return models.Notification{}, fmt.Errorf("decode notification: %w", err)
		}
		return n, nil
	}
}

// Close stops this queue handle. Entries left in Redis stay there for the
// next process.
func (q *RedisQueue) Close() error {
	q.isClosed.Store(true)
	return nil
}
