package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-agent/internal/broker"
	"commerce-agent/internal/catalog"
	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"
	"commerce-agent/internal/store"
	"commerce-agent/internal/util"

	"go.uber.org/zap"
)

// OrderService places and lists orders
type OrderService struct {
	orders    store.OrderStore
	catalog   *catalog.Resolver
	publisher broker.Publisher
	newID     util.IDGenerator
	now       func() time.Time
	logger    *zap.Logger
}

// OrderOption configures an OrderService
type OrderOption func(*OrderService)

// WithIDGenerator replaces the random order id generator
func WithIDGenerator(gen util.IDGenerator) OrderOption {
	return func(s *OrderService) { s.newID = gen }
}

// WithClock replaces the time source of order records
func WithClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

// NewOrderService creates a new order service. A nil publisher disables events.
func NewOrderService(orders store.OrderStore, resolver *catalog.Resolver, publisher broker.Publisher, opts ...OrderOption) *OrderService {
	if publisher == nil {
		publisher = broker.NoopPublisher{}
	}
	s := &OrderService{
		orders:    orders,
		catalog:   resolver,
		publisher: publisher,
		newID:     util.NewOrderID,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrderRequest is the body of a direct purchase
type CreateOrderRequest struct {
	ItemID   string `json:"itemId" binding:"required"`
	Quantity int    `json:"quantity"`
}

// Place stores a new order record for item and publishes OrderPlaced.
// A publish failure is logged and does not fail the order.
func (s *OrderService) Place(ctx context.Context, item models.CatalogItem, quantity int, clientID, channel string) (models.OrderRecord, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Place")
	defer span.End()

	quantity = models.NormalizeQuantity(quantity)
	record := models.OrderRecord{
		OrderID:   s.newID(),
		Item:      item,
		Quantity:  quantity,
		Total:     models.OrderTotal(item.Price, quantity),
		CreatedAt: s.now().UTC(),
	}

	if err := s.orders.Append(ctx, record); err != nil {
		util.OrdersFailedTotal.WithLabelValues("store_error").Inc()
		return models.OrderRecord{}, fmt.Errorf("failed to store order: %w", err)
	}

	util.OrdersCreatedTotal.WithLabelValues(channel).Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", record.OrderID),
		zap.String("item_id", item.ID),
		zap.Int("quantity", quantity),
		zap.Float64("total", record.Total),
		zap.String("channel", channel))

	event := broker.NewOrderPlacedEvent(record, clientID, channel)
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.String("order_id", record.OrderID),
			zap.Error(err))
	}
	return record, nil
}

// CreateDirect places an order for an explicit item id without touching
// any pending negotiation
func (s *OrderService) CreateDirect(ctx context.Context, req *CreateOrderRequest) (models.OrderRecord, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateDirect")
	defer span.End()

	item, err := s.catalog.GetByID(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			util.OrdersFailedTotal.WithLabelValues("item_not_found").Inc()
		}
		return models.OrderRecord{}, err
	}
	return s.Place(ctx, item, req.Quantity, "", models.OrderChannelDirect)
}

// List returns all orders in placement order
func (s *OrderService) List(ctx context.Context) ([]models.OrderRecord, error) {
	return s.orders.List(ctx)
}
