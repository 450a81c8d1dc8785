package models

import "time"

// Stream event types
const (
	StreamEventToken   = "token"
	StreamEventCatalog = "catalog"
	StreamEventOrder   = "order"
	StreamEventError   = "error"
	StreamEventDone    = "done"
)

// StreamEvent is one server-to-client event of a chat stream.
// Exactly one payload field is set, according to Type.
type StreamEvent struct {
	Type  string        `json:"type"`
	Token string        `json:"token,omitempty"`
	Items []CatalogItem `json:"items,omitempty"`
	Order *OrderRecord  `json:"order,omitempty"`
	Error string        `json:"error,omitempty"`
}

// CatalogEventData is the payload of a catalog event
type CatalogEventData struct {
	Items []CatalogItem `json:"items"`
}

// ErrorEventData is the payload of an error event
type ErrorEventData struct {
	Message string `json:"message"`
}

// Event types published to the broker
const (
	EventTypeOrderPlaced = "ORDER_PLACED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when an order record is created
type OrderPlacedEvent struct {
	BaseEvent
	OrderID  string  `json:"order_id"`
	ClientID string  `json:"client_id,omitempty"`
	ItemID   string  `json:"item_id"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
	Channel  string  `json:"channel"`
}
