package topic

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisBroker fans topic frames out through Redis pub/sub so that every
// process sharing the Redis instance sees every publish.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
	logger types.Logger
}

// RedisOptions configures NewRedisBroker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisBroker connects to Redis and verifies connectivity.
func NewRedisBroker(ctx context.Context, opts RedisOptions, logger types.Logger) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisBrokerFromClient(rdb, opts.Prefix, logger), nil
}

// NewRedisBrokerFromClient wraps an existing client.
func NewRedisBrokerFromClient(rdb *redis.Client, prefix string, logger types.Logger) *RedisBroker {
	return &RedisBroker{
		rdb:    rdb,
		prefix: prefix,
		logger: logger,
	}
}

// Channel returns the Redis channel carrying key.
func (b *RedisBroker) Channel(key string) string {
	return b.prefix + key
}

// Key returns the topic key carried on channel, or false if the channel
// does not belong to this broker.
func (b *RedisBroker) Key(channel string) (string, bool) {
	return strings.CutPrefix(channel, b.prefix)
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, key string, payload []byte) error {
	return b.rdb.Publish(ctx, b.Channel(key), payload).Err()
}

// Subscribe listens on every topic channel and invokes fn for each frame
// until ctx is cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, fn func(key string, payload []byte)) {
	pubsub := b.rdb.PSubscribe(ctx, b.Channel("*"))
	defer func() { _ = pubsub.Close() }()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Redis subscription channel closed")
				return
			}
			key, ok := b.Key(msg.Channel)
			if !ok || !Valid(key) {
				b.logger.Warn("Ignoring message on unexpected channel", "channel", msg.Channel)
				continue
			}
			fn(key, []byte(msg.Payload))
		}
	}
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close shuts down the Redis connection.
func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
