package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/models"
)

// PointsPerCurrencyUnit is how many loyalty points buy one unit of currency.
const PointsPerCurrencyUnit = 100

// taxRatePercent is the flat VAT applied to the discounted subtotal.
const taxRatePercent = 23

// TaxRate returns the flat VAT rate as a fraction.
func TaxRate() decimal.Decimal {
	return decimal.New(taxRatePercent, -2)
}

// CartLine is one requested product line.
type CartLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note"`
}

// QuoteRequest carries everything needed to price a cart.
type QuoteRequest struct {
	UserID             *uuid.UUID
	Items              []CartLine
	PromoCode          string
	LoyaltyPointsToUse int
	FulfillmentMethod  string
	LocationName       string
}

// PricedLine is a cart line with its unit price frozen.
type PricedLine struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Note        string          `json:"note,omitempty"`
}

// Quote is the deterministic price breakdown of a cart.
type Quote struct {
	Lines               []PricedLine      `json:"lines"`
	Subtotal            decimal.Decimal   `json:"subtotal"`
	PromoDiscount       decimal.Decimal   `json:"promo_discount"`
	LoyaltyDiscount     decimal.Decimal   `json:"loyalty_discount"`
	DiscountAmount      decimal.Decimal   `json:"discount_amount"`
	DeliveryFee         decimal.Decimal   `json:"delivery_fee"`
	TaxAmount           decimal.Decimal   `json:"tax_amount"`
	TotalAmount         decimal.Decimal   `json:"total_amount"`
	LoyaltyPointsUsed   int               `json:"loyalty_points_used"`
	LoyaltyPointsEarned int               `json:"loyalty_points_earned"`
	PromoApplied        bool              `json:"promo_applied"`
	EstimatedReadyAt    time.Time         `json:"estimated_ready_at"`
	Location            models.Location   `json:"-"`
	Promo               *models.PromoCode `json:"-"`
}

type pricingInput struct {
	Lines           []PricedLine
	Promo           *models.PromoCode
	PointsRequested int
	Method          string
	Location        models.Location
	PointsPerPound  decimal.Decimal
	Now             time.Time
}

// computeTotals does the arithmetic once products, promo and location are loaded.
func computeTotals(in pricingInput) Quote {
	q := Quote{
		Lines:    in.Lines,
		Location: in.Location,
		Subtotal: decimal.Zero,
	}

	for _, line := range in.Lines {
		q.Subtotal = q.Subtotal.Add(line.LineTotal)
	}

	q.PromoDiscount, q.PromoApplied = promoDiscount(in.Promo, q.Subtotal, in.Now)
	if q.PromoApplied {
		q.Promo = in.Promo
	}

	// Loyalty can only absorb what the promo left; the rest of the request is not redeemed.
	remaining := q.Subtotal.Sub(q.PromoDiscount)
	maxPoints := int(remaining.Mul(decimal.NewFromInt(PointsPerCurrencyUnit)).Floor().IntPart())
	q.LoyaltyPointsUsed = in.PointsRequested
	if q.LoyaltyPointsUsed > maxPoints {
		q.LoyaltyPointsUsed = maxPoints
	}
	if q.LoyaltyPointsUsed < 0 {
		q.LoyaltyPointsUsed = 0
	}
	q.LoyaltyDiscount = decimal.NewFromInt(int64(q.LoyaltyPointsUsed)).Div(decimal.NewFromInt(PointsPerCurrencyUnit))
	q.DiscountAmount = q.PromoDiscount.Add(q.LoyaltyDiscount)

	q.DeliveryFee = deliveryFee(in.Method, in.Location, q.Subtotal)

	q.TaxAmount = q.Subtotal.Sub(q.DiscountAmount).Mul(TaxRate()).Round(2)
	q.TotalAmount = q.Subtotal.Add(q.DeliveryFee).Sub(q.DiscountAmount).Add(q.TaxAmount)

	q.LoyaltyPointsEarned = int(q.Subtotal.Mul(in.PointsPerPound).Floor().IntPart())

	minutes := in.Location.PrepTimeMinutes
	if in.Method == models.FulfillmentDelivery {
		minutes += in.Location.DeliveryTimeMinutes
	}
	q.EstimatedReadyAt = in.Now.Add(time.Duration(minutes) * time.Minute)

	return q
}

// promoDiscount returns the discount a promo code grants on subtotal. An ineligible code
// grants nothing and is not an error.
func promoDiscount(promo *models.PromoCode, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, bool) {
	if promo == nil || !promo.IsActive {
		return decimal.Zero, false
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return decimal.Zero, false
	}
	if promo.ValidUntil != nil && now.After(*promo.ValidUntil) {
		return decimal.Zero, false
	}
	if subtotal.LessThan(promo.MinOrderValue) {
		return decimal.Zero, false
	}

	var discount decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountPercentage:
		discount = subtotal.Mul(promo.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	case models.DiscountFixed:
		discount = promo.DiscountValue
	default:
		return decimal.Zero, false
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount, true
}

func deliveryFee(method string, location models.Location, subtotal decimal.Decimal) decimal.Decimal {
	if method != models.FulfillmentDelivery {
		return decimal.Zero
	}
	threshold := location.FreeDeliveryThreshold
	if threshold.IsPositive() && subtotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero
	}
	return location.DeliveryFee
}

// priceOrder loads catalog, promo and ledger data through tx and computes the quote.
// Any missing or unavailable product fails the whole cart.
func (s *OrderService) priceOrder(ctx context.Context, tx *gorm.DB, req QuoteRequest) (*Quote, error) {
	if len(req.Items) == 0 {
		return nil, validationError("order must contain at least one item")
	}
	if req.FulfillmentMethod != models.FulfillmentCollection && req.FulfillmentMethod != models.FulfillmentDelivery {
		return nil, validationError("fulfillment method must be %q or %q", models.FulfillmentCollection, models.FulfillmentDelivery)
	}
	if req.LoyaltyPointsToUse < 0 {
		return nil, validationError("loyalty points to use cannot be negative")
	}
	if strings.TrimSpace(req.LocationName) == "" {
		return nil, validationError("location is required")
	}

	db := tx.WithContext(ctx)

	var location models.Location
	if err := db.Where(&models.Location{Name: strings.TrimSpace(req.LocationName)}).First(&location).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("location")
		}
		return nil, err
	}
	if !location.IsActive {
		return nil, validationError("location %q is not taking orders", location.Name)
	}

	lines := make([]PricedLine, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, validationError("quantity must be positive")
		}

		var product models.Product
		if err := db.First(&product, "id = ?", item.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("product")
			}
			return nil, err
		}
		if !product.Orderable() {
			return nil, unavailable(product.Name)
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		lines = append(lines, PricedLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    item.Quantity,
			LineTotal:   product.Price.Mul(qty),
			Note:        strings.TrimSpace(item.Note),
		})
	}

	var promo *models.PromoCode
	if code := normalizePromoCode(req.PromoCode); code != "" {
		var found models.PromoCode
		err := db.Where(&models.PromoCode{Code: code}).First(&found).Error
		switch {
		case err == nil:
			promo = &found
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	if req.LoyaltyPointsToUse > 0 {
		if req.UserID == nil {
			return nil, validationError("sign in to redeem loyalty points")
		}
		balance, err := s.loyalty.balance(db, *req.UserID)
		if err != nil {
			return nil, err
		}
		if balance < req.LoyaltyPointsToUse {
			return nil, insufficientPoints(balance, req.LoyaltyPointsToUse)
		}
	}

	quote := computeTotals(pricingInput{
		Lines:           lines,
		Promo:           promo,
		PointsRequested: req.LoyaltyPointsToUse,
		Method:          req.FulfillmentMethod,
		Location:        location,
		PointsPerPound:  s.pointsPerPound(db),
		Now:             s.now(),
	})
	return &quote, nil
}

func (s *OrderService) pointsPerPound(db *gorm.DB) decimal.Decimal {
	var setting models.SystemSetting
	if err := db.Where(&models.SystemSetting{Key: models.SettingLoyaltyPointsPerPound}).First(&setting).Error; err != nil {
		return s.settings.DefaultPointsPerPound
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(setting.Value))
	if err != nil || rate.IsNegative() {
		s.log.Warn().Str("value", setting.Value).Msg("invalid loyalty_points_per_pound setting, using default")
		return s.settings.DefaultPointsPerPound
	}
	return rate
}

func normalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
