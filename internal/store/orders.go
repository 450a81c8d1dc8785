package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commerce-agent/internal/models"
)

type orderRow struct {
	OrderID   string    `db:"order_id"`
	Item      []byte    `db:"item"`
	Quantity  int       `db:"quantity"`
	Total     float64   `db:"total"`
	CreatedAt time.Time `db:"created_at"`
}

// Append inserts an order record
func (s *Store) Append(ctx context.Context, record models.OrderRecord) error {
	item, err := json.Marshal(record.Item)
	if err != nil {
		return fmt.Errorf("failed to encode order item: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO orders (order_id, item, quantity, total, created_at) VALUES ($1, $2, $3, $4, $5)",
		record.OrderID, item, record.Quantity, record.Total, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", record.OrderID, err)
	}
	return nil
}

// List returns all orders in insertion order
func (s *Store) List(ctx context.Context) ([]models.OrderRecord, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT order_id, item, quantity, total, created_at FROM orders ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	out := make([]models.OrderRecord, 0, len(rows))
	for _, r := range rows {
		rec := models.OrderRecord{
			OrderID:   r.OrderID,
			Quantity:  r.Quantity,
			Total:     r.Total,
			CreatedAt: r.CreatedAt,
		}
		if err := json.Unmarshal(r.Item, &rec.Item); err != nil {
			return nil, fmt.Errorf("failed to decode item of order %s: %w", r.OrderID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
