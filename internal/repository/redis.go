package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "document-viewer:session:"

// RedisClient keeps the viewer sessions at Redis so they are shared between the replicas.
type RedisClient struct {
	baseClient *redis.Client
	ttl        time.Duration
}

// NewRedisClient connects to the Redis at rawURL, formatted as 'redis://host:port/db' or 'rediss://host:port/db' for
// TLS. A non empty username or password takes precedence over the ones at the URL.
func NewRedisClient(rawURL, username, password string, ttl time.Duration) (RedisClient, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return RedisClient{}, fmt.Errorf("invalid redis url: %w", err)
	}
	if username != "" {
		opts.Username = username
	}
	if password != "" {
		opts.Password = password
	}
	if opts.TLSConfig != nil {
		opts.TLSConfig.MinVersion = tls.VersionTLS12
	}

	rdb := redis.NewClient(opts)
	ctx, ctxcancel := context.WithTimeout(context.Background(), time.Second)
	defer ctxcancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return RedisClient{}, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return RedisClient{
		baseClient: rdb,
		ttl:        ttl,
	}, nil
}

// Get returns nil, without error, when there is nothing stored at the key.
func (rc RedisClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := rc.baseClient.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get the key '%s': %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(result)), nil
}

// Put stores the payload and refreshes its expiration.
func (rc RedisClient) Put(ctx context.Context, key string, payload io.Reader) error {
	content, err := io.ReadAll(payload)
	if err != nil {
		return fmt.Errorf("failed to read the payload: %w", err)
	}
	if err := rc.baseClient.Set(ctx, sessionKeyPrefix+key, content, rc.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set the key '%s': %w", key, err)
	}
	return nil
}

func (rc RedisClient) Delete(ctx context.Context, key string) error {
	if err := rc.baseClient.Del(ctx, sessionKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete the key '%s': %w", key, err)
	}
	return nil
}

// Close the connection pool.
func (rc RedisClient) Close() error {
	return rc.baseClient.Close()
}
