package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/take_pending.lua
var takePendingScript string

//go:embed scripts/update_quantity.lua
var updateQuantityScript string

//go:embed scripts/restore_pending.lua
var restorePendingScript string

// Pending hash fields
const (
	FieldItem      = "item"
	FieldQuantity  = "quantity"
	FieldUpdatedAt = "updated_at"
)

type Client struct {
	rdb            *redis.Client
	takeScript     *redis.Script
	quantityScript *redis.Script
	restoreScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		takeScript:     redis.NewScript(takePendingScript),
		quantityScript: redis.NewScript(updateQuantityScript),
		restoreScript:  redis.NewScript(restorePendingScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func pendingKey(clientID string) string {
	return fmt.Sprintf("pending:%s", clientID)
}

func cacheKey(key string) string {
	return fmt.Sprintf("search:%s", key)
}

// GetCache returns a cached search payload, ok=false on miss
func (c *Client) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetCache stores a search payload with TTL
func (c *Client) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, cacheKey(key), value, ttl).Err()
}

// PutPending creates or replaces the pending order hash of a client
func (c *Client) PutPending(ctx context.Context, clientID string, item []byte, quantity int, updatedAt time.Time, ttl time.Duration) error {
	key := pendingKey(clientID)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			FieldItem, item,
			FieldQuantity, quantity,
			FieldUpdatedAt, updatedAt.UnixMilli())
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put pending failed: %w", err)
	}
	return nil
}

// RestorePending creates the pending order hash only if the client has none.
// It reports whether the hash was written.
func (c *Client) RestorePending(ctx context.Context, clientID string, item []byte, quantity int, updatedAt time.Time, ttl time.Duration) (bool, error) {
	n, err := c.restoreScript.Run(ctx, c.rdb, []string{pendingKey(clientID)},
		item, quantity, updatedAt.UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("restore pending script failed: %w", err)
	}
	return n == 1, nil
}

// GetPending returns the pending order fields, ok=false when absent
func (c *Client) GetPending(ctx context.Context, clientID string) (map[string]string, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, pendingKey(clientID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

// UpdatePendingQuantity atomically replaces the quantity if a pending order exists
func (c *Client) UpdatePendingQuantity(ctx context.Context, clientID string, quantity int, updatedAt time.Time, ttl time.Duration) (map[string]string, bool, error) {
	result, err := c.quantityScript.Run(ctx, c.rdb, []string{pendingKey(clientID)},
		quantity, updatedAt.UnixMilli(), ttl.Milliseconds()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("update quantity script failed: %w", err)
	}

	fields, err := pairs(result)
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

// TakePending atomically reads and deletes the pending order
func (c *Client) TakePending(ctx context.Context, clientID string) (map[string]string, bool, error) {
	result, err := c.takeScript.Run(ctx, c.rdb, []string{pendingKey(clientID)}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take pending script failed: %w", err)
	}

	fields, err := pairs(result)
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

// DeletePending removes the pending order, returning whether one existed
func (c *Client) DeletePending(ctx context.Context, clientID string) (bool, error) {
	n, err := c.rdb.Del(ctx, pendingKey(clientID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// pairs converts a flat HGETALL reply into a map
func pairs(result interface{}) (map[string]string, error) {
	list, ok := result.([]interface{})
	if !ok || len(list)%2 != 0 {
		return nil, fmt.Errorf("unexpected script result type")
	}

	fields := make(map[string]string, len(list)/2)
	for i := 0; i < len(list); i += 2 {
		k, _ := list[i].(string)
		v, _ := list[i+1].(string)
		fields[k] = v
	}
	return fields, nil
}
