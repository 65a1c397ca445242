// Package cache emits invalidation signals for the rendering tier.
//
// The service does not own a page cache; it only tells whoever does that a
// set of tags went stale. Invalidation is advisory: failures are logged and
// never surfaced to callers.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rafflehub/rewards/pkg/logger"
)

// Invalidator publishes cache invalidation signals.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...string)
	Close() error
}

// Tag builders used across services so key shapes stay in one place.
func UserTag(userID string) string   { return "user:" + userID }
func TokensTag(userID string) string { return "tokens:" + userID }
func RaffleTag(raffleID string) string {
	return "raffle:" + raffleID
}

const keyPrefix = "page:"

// RedisInvalidator deletes tag keys and publishes the tag list on a channel.
type RedisInvalidator struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

// NewRedisInvalidator connects to Redis and verifies the connection.
func NewRedisInvalidator(addr, password string, db int, channel string, log *logger.Logger) (*RedisInvalidator, error) {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisInvalidator{client: client, channel: channel, log: log}, nil
}

// Invalidate drops the cached entries for the tags and notifies subscribers.
func (r *RedisInvalidator) Invalidate(ctx context.Context, tags ...string) {
	if len(tags) == 0 {
		return
	}

	keys := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		keys = append(keys, keyPrefix+tag)
	}
	if len(keys) == 0 {
		return
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.WithError(err).Warn("cache key delete failed")
	}
	if err := r.client.Publish(ctx, r.channel, strings.Join(tags, ",")).Err(); err != nil {
		r.log.WithError(err).Warn("cache invalidation publish failed")
	}
}

// Close releases the Redis connection.
func (r *RedisInvalidator) Close() error { return r.client.Close() }

// NoopInvalidator is used when Redis is not configured.
type NoopInvalidator struct{}

// NewNoopInvalidator returns a no-op Invalidator.
func NewNoopInvalidator() NoopInvalidator { return NoopInvalidator{} }

func (NoopInvalidator) Invalidate(ctx context.Context, tags ...string) {}
func (NoopInvalidator) Close() error                                   { return nil }
