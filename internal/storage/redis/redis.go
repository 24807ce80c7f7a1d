package redis

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepo keeps a blacklist of revoked refresh tokens so that refresh and
// logout can reject them without a round trip to Postgres. Postgres stays
// the source of truth; entries here expire with the token itself.
type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

func (r *RedisRepo) MarkRevoked(ctx context.Context, token string, ttl time.Duration) error {
	const op = "storage.redis.MarkRevoked"

	err := r.client.Set(ctx, revokedKey(token), "revoked", ttl).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) IsRevoked(ctx context.Context, token string) (bool, error) {
	const op = "storage.redis.IsRevoked"

	n, err := r.client.Exists(ctx, revokedKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}

// Tokens are JWTs and too long to use as keys directly.
func revokedKey(token string) string {
	return fmt.Sprintf("revoked:%x", sha256.Sum256([]byte(token)))
}
