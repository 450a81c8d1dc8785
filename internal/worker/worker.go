package worker

import (
	"context"
	"fmt"

	"commerce-agent/internal/broker"
	"commerce-agent/internal/models"
	"commerce-agent/internal/util"

	"go.uber.org/zap"
)

// EventDeduper records which events were already handled
type EventDeduper interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// OrderEventWorker consumes order events and keeps revenue metrics
type OrderEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	deduper      EventDeduper
	logger       *zap.Logger
}

// NewOrderEventWorker creates a new order event worker. deduper may be nil.
func NewOrderEventWorker(consumer *broker.Consumer, deduper EventDeduper) *OrderEventWorker {
	w := &OrderEventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		deduper:      deduper,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderPlaced(w.HandleOrderPlaced)
	return w
}

// Start starts the worker
func (w *OrderEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderEventWorker) Stop() error {
	w.logger.Info("Stopping order event worker")
	return w.consumer.Close()
}

// HandleOrderPlaced accounts an order once per event id
func (w *OrderEventWorker) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	if w.deduper != nil {
		seen, err := w.deduper.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event %s: %w", event.EventID, err)
		}
		if seen {
			w.logger.Debug("Skipping duplicate event", zap.String("event_id", event.EventID))
			return nil
		}
	}

	util.OrderRevenueTotal.WithLabelValues(event.Channel).Add(event.Total)
	w.logger.Info("Order placed",
		zap.String("order_id", event.OrderID),
		zap.String("item_id", event.ItemID),
		zap.Int("quantity", event.Quantity),
		zap.Float64("total", event.Total),
		zap.String("channel", event.Channel))

	if w.deduper != nil {
		if err := w.deduper.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			return fmt.Errorf("failed to mark event %s: %w", event.EventID, err)
		}
	}
	return nil
}
