package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewOrderEvent is published to the location's staff channel after an order commits.
type NewOrderEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	LocationID        uuid.UUID       `json:"location_id"`
	Location          string          `json:"location"`
	CustomerName      string          `json:"customer_name"`
	CustomerPhone     string          `json:"customer_phone"`
	FulfillmentMethod string          `json:"fulfillment_method"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	ItemCount         int             `json:"item_count"`
	Items             []EventItem     `json:"items"`
	EstimatedReadyAt  time.Time       `json:"estimated_ready_at"`
	CreatedAt         time.Time       `json:"created_at"`
	StaffChatID       string          `json:"-"`
}

// EventItem is a single order line inside a NewOrderEvent.
type EventItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderStatusChangedEvent is published to the order's subscribers after a transition commits.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID  `json:"order_id"`
	OrderNumber    string     `json:"order_number"`
	LocationID     uuid.UUID  `json:"location_id"`
	PreviousStatus string     `json:"previous_status"`
	NewStatus      string     `json:"new_status"`
	CollectionCode *string    `json:"collection_code,omitempty"`
	ChangedBy      *uuid.UUID `json:"changed_by,omitempty"`
	Note           string     `json:"note,omitempty"`
	ChangedAt      time.Time  `json:"changed_at"`
	StaffChatID    string     `json:"-"`
}

// Notifier delivers order events. Delivery is best effort: the order engine logs
// failures and never rolls back a committed order because of them.
type Notifier interface {
	NotifyNewOrder(ctx context.Context, event NewOrderEvent) error
	NotifyStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error
}

// Notifiers fans an event out to every notifier in the list.
type Notifiers []Notifier

func (n Notifiers) NotifyNewOrder(ctx context.Context, event NewOrderEvent) error {
	var errs []error
	for _, notifier := range n {
		if err := notifier.NotifyNewOrder(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n Notifiers) NotifyStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error {
	var errs []error
	for _, notifier := range n {
		if err := notifier.NotifyStatusChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
