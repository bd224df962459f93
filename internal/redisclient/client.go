package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/port"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/claim_checkout.lua
var claimCheckoutScript string

//go:embed scripts/complete_checkout.lua
var completeCheckoutScript string

//go:embed scripts/release_checkout.lua
var releaseCheckoutScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

const (
	claimResult   = "claimed"
	pendingResult = "pending"
)

// ErrClaimLost is returned when a pending checkout key expired before the order was recorded
var ErrClaimLost = errors.New("idempotency claim expired before completion")

var _ port.IdempotencyStore = (*Client)(nil)

type Client struct {
	rdb            *redis.Client
	claimScript    *redis.Script
	completeScript *redis.Script
	releaseScript  *redis.Script
	unlockScript   *redis.Script
	resultTTL      time.Duration
	pendingTTL     time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded.
// resultTTL is how long a finished checkout is remembered.
func NewClient(addr, password string, db int, resultTTL time.Duration) (*Client, error) {
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

	return newClient(rdb, resultTTL), nil
}

func newClient(rdb *redis.Client, resultTTL time.Duration) *Client {
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &Client{
		rdb:            rdb,
		claimScript:    redis.NewScript(claimCheckoutScript),
		completeScript: redis.NewScript(completeCheckoutScript),
		releaseScript:  redis.NewScript(releaseCheckoutScript),
		unlockScript:   redis.NewScript(releaseLockScript),
		resultTTL:      resultTTL,
		pendingTTL:     time.Minute,
	}
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func checkoutKey(key string) string {
	return fmt.Sprintf("idempotency:checkout:%s", key)
}

// ClaimCheckout atomically claims a checkout key using a Lua script.
// A key already claimed by a running checkout yields (0, false); a finished one yields its order ID.
func (c *Client) ClaimCheckout(ctx context.Context, key string) (int64, bool, error) {
	result, err := c.claimScript.Run(ctx, c.rdb, []string{checkoutKey(key)}, int(c.pendingTTL.Seconds())).Text()
	if err != nil {
		return 0, false, fmt.Errorf("claim checkout script failed: %w", err)
	}

	switch result {
	case claimResult:
		return 0, true, nil
	case pendingResult:
		return 0, false, nil
	}

	orderID, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("unexpected idempotency value %q", result)
	}
	return orderID, false, nil
}

// CompleteCheckout replaces a pending claim with the order it produced
func (c *Client) CompleteCheckout(ctx context.Context, key string, orderID int64) error {
	stored, err := c.completeScript.Run(ctx, c.rdb, []string{checkoutKey(key)},
		orderID, int(c.resultTTL.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("complete checkout script failed: %w", err)
	}
	if stored == 0 {
		return ErrClaimLost
	}
	return nil
}

// ReleaseCheckout drops a pending claim so the request can be retried
func (c *Client) ReleaseCheckout(ctx context.Context, key string) error {
	if err := c.releaseScript.Run(ctx, c.rdb, []string{checkoutKey(key)}).Err(); err != nil {
		return fmt.Errorf("release checkout script failed: %w", err)
	}
	return nil
}

// AcquireLock acquires a distributed lock and returns the token needed to release it.
// An empty token means the lock is held elsewhere.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.unlockScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}
