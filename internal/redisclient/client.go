package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prolist/internal/models"

	"github.com/go-redis/redis/v8"
)

// Client wraps Redis for the two jobs this service needs it for: electing a
// single sweep leader across replicas, and fanning notifications out to the
// live websocket channel.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
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

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock acquires a distributed lock. The sweep holds it for one run so
// only one replica fires the timeout-driven transitions; the transitions
// themselves stay idempotent regardless.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// PushNotification publishes a notification to the user's live channel.
func (c *Client) PushNotification(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return c.rdb.Publish(ctx, fmt.Sprintf("notifications:%d", n.UserID), payload).Err()
}
