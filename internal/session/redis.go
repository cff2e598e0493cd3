// Package session keeps server-side session state: the denylist of access
// tokens revoked by logout before their natural expiry.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "home-manager:revoked:"

// RedisDenylist stores revoked token IDs in Redis. Each key expires when
// the token it names would have expired, so the set never outgrows the
// number of live tokens.
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist connects to redisURL (redis://[:password@]host:port/db)
// and checks the connection.
func NewRedisDenylist(redisURL string) (*RedisDenylist, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: connect to redis: %w", err)
	}

	return &RedisDenylist{client: client}, nil
}

// NewRedisDenylistWithClient wraps an existing client.
func NewRedisDenylistWithClient(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

func key(tokenID string) string { return keyPrefix + tokenID }

// Revoke marks tokenID as revoked until the given time. Tokens that have
// already expired are ignored.
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return fmt.Errorf("session: token ID must not be empty")
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("session: revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID is on the denylist.
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("session: check token: %w", err)
	}
	return n > 0, nil
}

// Ping checks if Redis is reachable.
func (d *RedisDenylist) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (d *RedisDenylist) Close() error {
	return d.client.Close()
}
