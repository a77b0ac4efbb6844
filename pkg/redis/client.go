package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/michaeladamstrickland/convexa-backend/pkg/config"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "cv"
	queuePrefix       = "q"
	idempotencyPrefix = "idempotency"
)

// Nil is re-exported so callers can detect key-miss without importing go-redis.
var Nil = redis.Nil

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	LPush(context.Context, string, ...any) *redis.IntCmd
	BRPop(context.Context, time.Duration, ...string) *redis.StringSliceCmd
	LLen(context.Context, string) *redis.IntCmd
	ZAdd(context.Context, string, ...redis.Z) *redis.IntCmd
	ZRangeByScore(context.Context, string, *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(context.Context, string, ...any) *redis.IntCmd
}

// Client wraps the redis connection helpers needed by the pipeline.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// PushReady appends a job envelope to the ready list of a queue.
func (c *Client) PushReady(ctx context.Context, queueKey string, envelope string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.LPush(ctx, queueKey, envelope).Err()
}

// PopReady blocks up to the given duration waiting for the next envelope.
// A key miss (nothing ready) returns redis.Nil.
func (c *Client) PopReady(ctx context.Context, queueKey string, block time.Duration) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	res, err := c.store.BRPop(ctx, block, queueKey).Result()
	if err != nil {
		return "", err
	}
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected brpop reply of %d elements", len(res))
	}
	return res[1], nil
}

// Schedule places an envelope in the delayed set with the run-at time as score.
func (c *Client) Schedule(ctx context.Context, delayedKey string, envelope string, runAt time.Time) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	z := redis.Z{Score: float64(runAt.UnixMilli()), Member: envelope}
	return c.store.ZAdd(ctx, delayedKey, z).Err()
}

// PromoteDue moves envelopes whose run-at has passed from the delayed set
// to the ready list. A crash between push and removal re-delivers the
// envelope; consumers are idempotent so the duplicate is benign.
func (c *Client) PromoteDue(ctx context.Context, delayedKey, queueKey string, now time.Time, batch int64) (int, error) {
	if c.store == nil {
		return 0, errors.New("redis client not initialized")
	}
	members, err := c.store.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  batch,
	}).Result()
	if err != nil || len(members) == 0 {
		return 0, err
	}
	promoted := 0
	for _, member := range members {
		if err := c.store.LPush(ctx, queueKey, member).Err(); err != nil {
			return promoted, err
		}
		if err := c.store.ZRem(ctx, delayedKey, member).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// QueueLen returns the ready-list depth for observability.
func (c *Client) QueueLen(ctx context.Context, queueKey string) (int64, error) {
	if c.store == nil {
		return 0, errors.New("redis client not initialized")
	}
	return c.store.LLen(ctx, queueKey).Result()
}

// SetNX sets a value only if the key does not exist yet. It backs the
// duplicate-suppression guard in the delivery worker.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// QueueKey returns the ready-list key for a named queue.
func (c *Client) QueueKey(name string) string {
	return c.buildKey(queuePrefix, name)
}

// DelayedKey returns the delayed-set key for a named queue.
func (c *Client) DelayedKey(name string) string {
	return c.buildKey(queuePrefix, name, "delayed")
}

// FailedKey returns the retention list key for exhausted envelopes.
func (c *Client) FailedKey(name string) string {
	return c.buildKey(queuePrefix, name, "failed")
}

// IdempotencyKey returns a namespaced key for idempotency storage.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.buildKey(idempotencyPrefix, scope, id)
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
