package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Loyalty ledger entry types.
const (
	LoyaltyEarned           = "earned"
	LoyaltyRedeemed         = "redeemed"
	LoyaltyManualAdjustment = "manual_adjustment"
)

// Order-bound ledger effects. (order_id, effect) is unique, so each effect lands once per order.
const (
	EffectAward   = "award"
	EffectRedeem  = "redeem"
	EffectRestore = "restore"
)

// LoyaltyTransaction is one append-only mutation of a user's point balance.
type LoyaltyTransaction struct {
	BaseModel
	UserID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Type         string     `gorm:"not null" json:"type"`
	Points       int        `gorm:"not null" json:"points"`
	BalanceAfter int        `gorm:"not null" json:"balance_after"`
	OrderID      *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_loyalty_order_effect" json:"order_id"`
	Effect       *string    `gorm:"uniqueIndex:idx_loyalty_order_effect" json:"effect,omitempty"`
	Description  string     `json:"description"`
}

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

type PromoCode struct {
	BaseModel
	Code          string          `gorm:"uniqueIndex;not null" json:"code"`
	Description   string          `json:"description"`
	IsActive      bool            `json:"is_active"`
	ValidFrom     *time.Time      `json:"valid_from"`
	ValidUntil    *time.Time      `json:"valid_until"`
	MinOrderValue decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"min_order_value"`
	DiscountType  string          `gorm:"not null" json:"discount_type"`
	DiscountValue decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"discount_value"`
	UsageCount    int             `gorm:"not null" json:"usage_count"`
}

// PromoCodeUsage records one redemption of a promo code against one order.
type PromoCodeUsage struct {
	BaseModel
	PromoCodeID    uuid.UUID       `gorm:"type:uuid;index;not null" json:"promo_code_id"`
	OrderID        uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	UserID         *uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	OrderSubtotal  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"order_subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"discount_amount"`
	UsedAt         time.Time       `json:"used_at"`
}
