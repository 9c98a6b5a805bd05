package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/complete_claim.lua
var completeClaimScript string

//go:embed scripts/release_claim.lua
var releaseClaimScript string

// claimPrefix marks a key held by an in-flight request
const claimPrefix = "pending:"

type Client struct {
	rdb            *redis.Client
	ttl            time.Duration
	claimTTL       time.Duration
	completeScript *redis.Script
	releaseScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded.
// ttl bounds how long a completed idempotency key is remembered; claimTTL
// bounds how long an in-flight claim blocks retries if its owner never
// completes or releases it.
func NewClient(addr, password string, db int, ttl, claimTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if claimTTL <= 0 || claimTTL > ttl {
		claimTTL = ttl
	}

	return &Client{
		rdb:            rdb,
		ttl:            ttl,
		claimTTL:       claimTTL,
		completeScript: redis.NewScript(completeClaimScript),
		releaseScript:  redis.NewScript(releaseClaimScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// Claim tries to take ownership of key for the request identified by token.
// If the key is already taken it reports the order id stored under it, or 0
// while the owning request is still running.
func (c *Client) Claim(ctx context.Context, key, token string) (int64, bool, error) {
	k := idempotencyKey(key)

	ok, err := c.rdb.SetNX(ctx, k, claimPrefix+token, c.claimTTL).Result()
	if err != nil {
		return 0, false, fmt.Errorf("idempotency claim failed: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	value, err := c.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired or released between SETNX and GET; treat as in flight
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	if strings.HasPrefix(value, claimPrefix) {
		return 0, false, nil
	}

	orderID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("unexpected idempotency value %q: %w", value, err)
	}
	return orderID, false, nil
}

// Complete stores the order id under key if token still owns it
func (c *Client) Complete(ctx context.Context, key, token string, orderID int64) error {
	seconds := int64(c.ttl / time.Second)
	if seconds <= 0 {
		seconds = 1
	}

	_, err := c.completeScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(key)},
		claimPrefix+token, orderID, seconds).Result()
	if err != nil {
		return fmt.Errorf("complete claim script failed: %w", err)
	}
	return nil
}

// Release drops key if token still owns it, so the client may retry
func (c *Client) Release(ctx context.Context, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(key)},
		claimPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("release claim script failed: %w", err)
	}
	return nil
}
