package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	accessTokenPrefix  = "access:"
	refreshTokenPrefix = "refresh:"
)

// NewRedisClient parses url, applies connection timeouts and checks the
// server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RevocationStore keeps, per principal, the one live refresh token and the
// most recently revoked access token. Expiry is left to Redis key TTLs.
type RevocationStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRevocationStore(client *redis.Client, timeout time.Duration) *RevocationStore {
	return &RevocationStore{client: client, timeout: timeout}
}

// SetRefresh overwrites whatever refresh token the principal had.
func (s *RevocationStore) SetRefresh(ctx context.Context, principalID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("refresh ttl must be positive, got %s", ttl)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, refreshTokenPrefix+principalID, token, ttl).Err(); err != nil {
		return redisErr("set refresh", err)
	}
	return nil
}

// GetRefresh returns the live refresh token; ok is false when none is stored.
func (s *RevocationStore) GetRefresh(ctx context.Context, principalID string) (token string, ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err = s.client.Get(ctx, refreshTokenPrefix+principalID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, redisErr("get refresh", err)
	}
	return token, true, nil
}

func (s *RevocationStore) DeleteRefresh(ctx context.Context, principalID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, refreshTokenPrefix+principalID).Err(); err != nil {
		return redisErr("delete refresh", err)
	}
	return nil
}

// BlacklistAccess records token as revoked until ttl elapses. One slot per
// principal: the last logout wins.
func (s *RevocationStore) BlacklistAccess(ctx context.Context, principalID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, accessTokenPrefix+principalID, token, ttl).Err(); err != nil {
		return redisErr("blacklist access", err)
	}
	return nil
}

// IsBlacklisted matches the exact token value; a different token stored for
// the same principal does not count.
func (s *RevocationStore) IsBlacklisted(ctx context.Context, principalID, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stored, err := s.client.Get(ctx, accessTokenPrefix+principalID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, redisErr("check blacklist", err)
	}
	return stored == token, nil
}

func (s *RevocationStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return redisErr("ping", err)
	}
	return nil
}

func redisErr(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", ErrStoreUnavailable, op, err)
}
