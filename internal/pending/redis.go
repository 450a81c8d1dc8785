package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"commerce-agent/internal/models"
	"commerce-agent/internal/redisclient"
)

// RedisStore keeps pending orders in Redis so several server instances
// share one negotiation per client. Idle eviction uses key TTLs.
type RedisStore struct {
	redis       *redisclient.Client
	now         func() time.Time
	idleTimeout time.Duration
}

// NewRedisStore creates a new Redis-backed pending store
func NewRedisStore(redis *redisclient.Client, idleTimeout time.Duration) *RedisStore {
	return &RedisStore{
		redis:       redis,
		now:         time.Now,
		idleTimeout: idleTimeout,
	}
}

func (s *RedisStore) Get(ctx context.Context, clientID string) (models.PendingOrder, bool, error) {
	fields, ok, err := s.redis.GetPending(ctx, clientID)
	if err != nil || !ok {
		return models.PendingOrder{}, false, err
	}
	o, err := decode(fields)
	return o, err == nil, err
}

func (s *RedisStore) Put(ctx context.Context, clientID string, order models.PendingOrder) error {
	item, err := json.Marshal(order.Item)
	if err != nil {
		return fmt.Errorf("failed to marshal pending item: %w", err)
	}
	return s.redis.PutPending(ctx, clientID, item, models.NormalizeQuantity(order.Quantity), s.now(), s.idleTimeout)
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, clientID string, order models.PendingOrder) (bool, error) {
	item, err := json.Marshal(order.Item)
	if err != nil {
		return false, fmt.Errorf("failed to marshal pending item: %w", err)
	}
	return s.redis.RestorePending(ctx, clientID, item, models.NormalizeQuantity(order.Quantity), s.now(), s.idleTimeout)
}

func (s *RedisStore) UpdateQuantity(ctx context.Context, clientID string, quantity int) (models.PendingOrder, bool, error) {
	fields, ok, err := s.redis.UpdatePendingQuantity(ctx, clientID, models.NormalizeQuantity(quantity), s.now(), s.idleTimeout)
	if err != nil || !ok {
		return models.PendingOrder{}, false, err
	}
	o, err := decode(fields)
	return o, err == nil, err
}

func (s *RedisStore) Take(ctx context.Context, clientID string) (models.PendingOrder, bool, error) {
	fields, ok, err := s.redis.TakePending(ctx, clientID)
	if err != nil || !ok {
		return models.PendingOrder{}, false, err
	}
	o, err := decode(fields)
	return o, err == nil, err
}

func (s *RedisStore) Delete(ctx context.Context, clientID string) (bool, error) {
	return s.redis.DeletePending(ctx, clientID)
}

func decode(fields map[string]string) (models.PendingOrder, error) {
	var o models.PendingOrder
	if err := json.Unmarshal([]byte(fields[redisclient.FieldItem]), &o.Item); err != nil {
		return o, fmt.Errorf("failed to unmarshal pending item: %w", err)
	}
	q, _ := strconv.Atoi(fields[redisclient.FieldQuantity])
	o.Quantity = models.NormalizeQuantity(q)
	if ms, err := strconv.ParseInt(fields[redisclient.FieldUpdatedAt], 10, 64); err == nil {
		o.UpdatedAt = time.UnixMilli(ms)
	}
	return o, nil
}
