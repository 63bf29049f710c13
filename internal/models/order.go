package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	StatusPendingPayment           = "pending_payment"
	StatusPaidAwaitingConfirmation = "paid_awaiting_confirmation"
	StatusPaymentConfirmed         = "payment_confirmed"
	StatusAcceptedInPreparation    = "accepted_in_preparation"
	StatusReadyForCollection       = "ready_for_collection"
	StatusOutForDelivery           = "out_for_delivery"
	StatusCollected                = "collected"
	StatusDelivered                = "delivered"
	StatusCompleted                = "completed"
	StatusCancelled                = "cancelled"
)

const (
	FulfillmentCollection = "collection"
	FulfillmentDelivery   = "delivery"

	OrderTypeStandard  = "standard"
	OrderTypeCorporate = "corporate"

	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

type Order struct {
	BaseModel
	OrderNumber         string               `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID              *uuid.UUID           `gorm:"type:uuid;index" json:"user_id"`
	User                *User                `json:"user,omitempty"`
	CustomerName        string               `json:"customer_name"`
	CustomerEmail       string               `json:"customer_email"`
	CustomerPhone       string               `json:"customer_phone"`
	LocationID          uuid.UUID            `gorm:"type:uuid;index;not null" json:"location_id"`
	LocationName        string               `json:"location_name"`
	OrderType           string               `gorm:"not null" json:"order_type"`
	FulfillmentMethod   string               `gorm:"not null" json:"fulfillment_method"`
	DeliveryAddress     string               `json:"delivery_address"`
	Status              string               `gorm:"index;not null" json:"status"`
	Subtotal            decimal.Decimal      `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	DeliveryFee         decimal.Decimal      `gorm:"type:decimal(10,2);not null" json:"delivery_fee"`
	DiscountAmount      decimal.Decimal      `gorm:"type:decimal(10,2);not null" json:"discount_amount"`
	TaxAmount           decimal.Decimal      `gorm:"type:decimal(10,2);not null" json:"tax_amount"`
	TotalAmount         decimal.Decimal      `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	Currency            string               `json:"currency"`
	LoyaltyPointsUsed   int                  `gorm:"not null" json:"loyalty_points_used"`
	LoyaltyPointsEarned int                  `gorm:"not null" json:"loyalty_points_earned"`
	PromoCodeID         *uuid.UUID           `gorm:"type:uuid" json:"promo_code_id"`
	PromoCode           string               `json:"promo_code"`
	PaymentStatus       string               `gorm:"not null" json:"payment_status"`
	PaymentReference    string               `json:"payment_reference"`
	CollectionCode      *string              `json:"collection_code"`
	Notes               string               `json:"notes"`
	EstimatedReadyAt    time.Time            `json:"estimated_ready_at"`
	CompletedAt         *time.Time           `json:"completed_at"`
	CancelledAt         *time.Time           `json:"cancelled_at"`
	Items               []OrderItem          `json:"items,omitempty"`
	History             []OrderStatusHistory `json:"history,omitempty"`
}

// ItemCount sums item quantities.
func (o Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// OrderItem snapshots product name and unit price at purchase time.
type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID       `gorm:"type:uuid;index;not null" json:"order_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"line_total"`
	Note        string          `json:"note"`
}

// OrderStatusHistory is an append-only audit row, one per transition.
type OrderStatusHistory struct {
	BaseModel
	OrderID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"order_id"`
	PreviousStatus *string    `json:"previous_status"`
	NewStatus      string     `gorm:"not null" json:"new_status"`
	ChangedByID    *uuid.UUID `gorm:"type:uuid" json:"changed_by_id"`
	Note           string     `json:"note"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
