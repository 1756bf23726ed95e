package keyval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/harvestly/cart-engine/pkg/config"
)

const keyNamespace = "cartengine"

// Redis stores keys in a redis instance under a session-scoped namespace.
type Redis struct {
	raw       *redis.Client
	sessionID string
}

// NewRedis bootstraps a redis-backed store and verifies connectivity.
func NewRedis(ctx context.Context, cfg config.RedisConfig, sessionID string) (*Redis, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{raw: raw, sessionID: sessionID}, nil
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

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.raw.Get(ctx, r.buildKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.raw.Set(ctx, r.buildKey(key), value, 0).Err()
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.raw.Del(ctx, r.buildKey(key)).Err()
}

// Has checks key existence without pulling the payload back.
func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	count, err := r.raw.Exists(ctx, r.buildKey(key)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.raw.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.raw.Close()
}

func (r *Redis) buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	if r.sessionID != "" {
		clean = append(clean, r.sessionID)
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
