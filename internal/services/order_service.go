package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/bakery/internal/models"
)

// OrderSettings are the deployment-level knobs of the order engine.
type OrderSettings struct {
	Currency              string
	DefaultPointsPerPound decimal.Decimal
}

// OrderService prices, places and moves orders through their lifecycle.
type OrderService struct {
	db       *gorm.DB
	loyalty  *LoyaltyService
	notifier Notifier
	settings OrderSettings
	log      zerolog.Logger
	now      func() time.Time

	notifications sync.WaitGroup
}

func NewOrderService(db *gorm.DB, loyalty *LoyaltyService, notifier Notifier, settings OrderSettings, log zerolog.Logger) *OrderService {
	if settings.Currency == "" {
		settings.Currency = "EUR"
	}
	return &OrderService{
		db:       db,
		loyalty:  loyalty,
		notifier: notifier,
		settings: settings,
		log:      log.With().Str("component", "orders").Logger(),
		now:      time.Now,
	}
}

// CreateOrderRequest is a checkout submission.
type CreateOrderRequest struct {
	QuoteRequest
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	OrderType         string
	DeliveryAddress   string
	DeliveryAddressID *uuid.UUID
	Notes             string
	PaymentReference  string
}

// Quote prices a cart without writing anything.
func (s *OrderService) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	return s.priceOrder(ctx, s.db, req)
}

// CreateOrder prices the cart and persists the order with its items, history, ledger
// and promo usage in one transaction. Nothing is written when any step fails.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if req.OrderType == "" {
		req.OrderType = models.OrderTypeStandard
	}
	if req.OrderType != models.OrderTypeStandard && req.OrderType != models.OrderTypeCorporate {
		return nil, validationError("unknown order type %q", req.OrderType)
	}

	var (
		order    models.Order
		location models.Location
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.fillCustomer(tx, &req); err != nil {
			return err
		}

		quote, err := s.priceOrder(ctx, tx, req.QuoteRequest)
		if err != nil {
			return err
		}
		location = quote.Location

		now := s.now()
		number, err := generateOrderNumber(now)
		if err != nil {
			return err
		}

		order = models.Order{
			OrderNumber:         number,
			UserID:              req.UserID,
			CustomerName:        req.CustomerName,
			CustomerEmail:       req.CustomerEmail,
			CustomerPhone:       req.CustomerPhone,
			LocationID:          location.ID,
			LocationName:        location.Name,
			OrderType:           req.OrderType,
			FulfillmentMethod:   req.FulfillmentMethod,
			DeliveryAddress:     req.DeliveryAddress,
			Status:              models.StatusPaidAwaitingConfirmation,
			Subtotal:            quote.Subtotal,
			DeliveryFee:         quote.DeliveryFee,
			DiscountAmount:      quote.DiscountAmount,
			TaxAmount:           quote.TaxAmount,
			TotalAmount:         quote.TotalAmount,
			Currency:            s.settings.Currency,
			LoyaltyPointsUsed:   quote.LoyaltyPointsUsed,
			LoyaltyPointsEarned: quote.LoyaltyPointsEarned,
			PaymentStatus:       models.PaymentStatusPaid,
			PaymentReference:    strings.TrimSpace(req.PaymentReference),
			Notes:               strings.TrimSpace(req.Notes),
			EstimatedReadyAt:    quote.EstimatedReadyAt,
		}
		if quote.Promo != nil {
			order.PromoCodeID = &quote.Promo.ID
			order.PromoCode = quote.Promo.Code
		}

		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(quote.Lines))
		for _, line := range quote.Lines {
			items = append(items, models.OrderItem{
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				UnitPrice:   line.UnitPrice,
				Quantity:    line.Quantity,
				LineTotal:   line.LineTotal,
				Note:        line.Note,
			})
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		order.Items = items

		pending := models.StatusPendingPayment
		history := []models.OrderStatusHistory{
			{OrderID: order.ID, NewStatus: models.StatusPendingPayment, ChangedByID: req.UserID, Note: "Order created"},
			{OrderID: order.ID, PreviousStatus: &pending, NewStatus: models.StatusPaidAwaitingConfirmation, ChangedByID: req.UserID, Note: "Payment completed"},
		}
		for i := range history {
			if err := tx.Create(&history[i]).Error; err != nil {
				return err
			}
		}
		order.History = history

		if err := s.redeemPoints(tx, &order, req.LoyaltyPointsToUse); err != nil {
			return err
		}

		if quote.Promo != nil {
			if err := tx.Model(&models.PromoCode{}).
				Where("id = ?", quote.Promo.ID).
				UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1)).Error; err != nil {
				return err
			}
			usage := models.PromoCodeUsage{
				PromoCodeID:    quote.Promo.ID,
				OrderID:        order.ID,
				UserID:         req.UserID,
				OrderSubtotal:  quote.Subtotal,
				DiscountAmount: quote.PromoDiscount,
				UsedAt:         now,
			}
			if err := tx.Create(&usage).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("location", order.LocationName).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order placed")

	s.publishNewOrder(ctx, &order, location)
	return &order, nil
}

// fillCustomer snapshots contact details and resolves the delivery address.
func (s *OrderService) fillCustomer(tx *gorm.DB, req *CreateOrderRequest) error {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)

	if req.UserID != nil {
		var user models.User
		if err := tx.First(&user, "id = ?", *req.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user")
			}
			return err
		}
		if req.CustomerName == "" {
			req.CustomerName = user.FullName()
		}
		if req.CustomerEmail == "" {
			req.CustomerEmail = user.Email
		}
		if req.CustomerPhone == "" {
			req.CustomerPhone = user.Phone
		}

		if req.DeliveryAddressID != nil {
			var addr models.UserAddress
			if err := tx.Where("id = ? AND user_id = ?", *req.DeliveryAddressID, user.ID).First(&addr).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("address")
				}
				return err
			}
			req.DeliveryAddress = addr.OneLine()
		}
	} else if req.DeliveryAddressID != nil {
		return validationError("saved addresses require a signed-in customer")
	}

	if req.CustomerName == "" {
		return validationError("customer name is required")
	}
	if req.CustomerEmail == "" && req.CustomerPhone == "" {
		return validationError("an email or phone number is required")
	}
	if req.FulfillmentMethod == models.FulfillmentDelivery && req.DeliveryAddress == "" {
		return validationError("delivery address is required for delivery orders")
	}
	if req.FulfillmentMethod == models.FulfillmentCollection {
		req.DeliveryAddress = ""
	}
	return nil
}

// GetOrder loads an order with its items and ordered history.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order")
		}
		return nil, err
	}
	return &order, nil
}

var transitions = map[string][]string{
	models.StatusPendingPayment:           {models.StatusPaidAwaitingConfirmation},
	models.StatusPaidAwaitingConfirmation: {models.StatusPaymentConfirmed, models.StatusAcceptedInPreparation, models.StatusCancelled},
	models.StatusPaymentConfirmed:         {models.StatusAcceptedInPreparation, models.StatusCancelled},
	models.StatusAcceptedInPreparation:    {models.StatusReadyForCollection, models.StatusOutForDelivery, models.StatusCancelled},
	models.StatusReadyForCollection:       {models.StatusCollected},
	models.StatusOutForDelivery:           {models.StatusDelivered},
	models.StatusCollected:                {models.StatusCompleted},
	models.StatusDelivered:                {models.StatusCompleted},
}

// IsKnownStatus reports whether status is one of the lifecycle states.
func IsKnownStatus(status string) bool {
	if status == models.StatusCompleted || status == models.StatusCancelled {
		return true
	}
	_, ok := transitions[status]
	return ok
}

// canTransition checks the lifecycle graph and the fulfillment branch.
func canTransition(order *models.Order, target string) bool {
	allowed := false
	for _, next := range transitions[order.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	switch target {
	case models.StatusReadyForCollection:
		return order.FulfillmentMethod == models.FulfillmentCollection
	case models.StatusOutForDelivery:
		return order.FulfillmentMethod == models.FulfillmentDelivery
	}
	return true
}

func authorize(actor Actor, order *models.Order, target string) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleStaff, models.RoleManager:
		if !actor.CanManageLocation(order.LocationID) {
			return forbidden("order belongs to a location you are not assigned to")
		}
		return nil
	case models.RoleCustomer:
		if order.UserID == nil || *order.UserID != actor.ID {
			return forbidden("order belongs to another customer")
		}
		if target != models.StatusCancelled && target != models.StatusPaymentConfirmed {
			return forbidden("customers may only cancel or confirm payment")
		}
		return nil
	}
	return forbidden("role may not change orders")
}

// SetOrderStatus moves an order to target, applying the side effects of the new state.
func (s *OrderService) SetOrderStatus(ctx context.Context, orderID uuid.UUID, target, note string, actor Actor) (*models.Order, error) {
	if !IsKnownStatus(target) {
		return nil, validationError("unknown status %q", target)
	}

	var (
		previous    string
		staffChatID string
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("order")
			}
			return err
		}

		if err := authorize(actor, &order, target); err != nil {
			return err
		}
		if !canTransition(&order, target) {
			return invalidTransition(order.Status, target)
		}
		previous = order.Status

		now := s.now()
		updates := map[string]any{"status": target, "updated_at": now}

		switch target {
		case models.StatusReadyForCollection:
			if order.CollectionCode == nil {
				code, err := generateCollectionCode()
				if err != nil {
					return err
				}
				updates["collection_code"] = code
			}
		case models.StatusPaymentConfirmed:
			if err := s.awardPoints(tx, &order); err != nil {
				return err
			}
		case models.StatusCollected, models.StatusDelivered, models.StatusCompleted:
			if order.CompletedAt == nil {
				updates["completed_at"] = now
			}
			if err := s.awardPoints(tx, &order); err != nil {
				return err
			}
		case models.StatusCancelled:
			updates["payment_status"] = models.PaymentStatusRefunded
			updates["cancelled_at"] = now
			if err := s.restorePoints(tx, &order); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return err
		}

		if note = strings.TrimSpace(note); note == "" {
			note = defaultTransitionNote(target)
		}
		changedBy := actor.ID
		entry := models.OrderStatusHistory{
			OrderID:        order.ID,
			PreviousStatus: &previous,
			NewStatus:      target,
			ChangedByID:    &changedBy,
			Note:           note,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var location models.Location
		if err := tx.Select("id", "staff_chat_id").First(&location, "id = ?", order.LocationID).Error; err == nil {
			staffChatID = location.StaffChatID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", updated.ID.String()).
		Str("from", previous).
		Str("to", target).
		Str("actor", actor.ID.String()).
		Msg("order status changed")

	s.publishStatusChanged(ctx, updated, previous, note, actor, staffChatID)
	return updated, nil
}

// ConfirmPayment records the customer's payment confirmation and awards points.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.SetOrderStatus(ctx, orderID, models.StatusPaymentConfirmed, "Payment confirmed", actor)
}

// CancelOrder cancels the order, marks it refunded and gives back redeemed points.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error) {
	return s.SetOrderStatus(ctx, orderID, models.StatusCancelled, reason, actor)
}

// awardPoints credits the order's earned points once, whichever transition gets there first.
func (s *OrderService) awardPoints(tx *gorm.DB, order *models.Order) error {
	if order.UserID == nil || order.LoyaltyPointsEarned <= 0 {
		return nil
	}
	_, applied, err := s.loyalty.Apply(tx, LedgerEntry{
		UserID:      *order.UserID,
		Type:        models.LoyaltyEarned,
		Points:      order.LoyaltyPointsEarned,
		OrderID:     &order.ID,
		Effect:      models.EffectAward,
		Description: fmt.Sprintf("Points earned on order %s", order.OrderNumber),
	})
	if err != nil {
		return err
	}
	if applied {
		s.log.Info().Str("order_id", order.ID.String()).Int("points", order.LoyaltyPointsEarned).Msg("loyalty points awarded")
	}
	return nil
}

func (s *OrderService) restorePoints(tx *gorm.DB, order *models.Order) error {
	if order.UserID == nil || order.LoyaltyPointsUsed <= 0 {
		return nil
	}
	_, _, err := s.loyalty.Apply(tx, LedgerEntry{
		UserID:      *order.UserID,
		Type:        models.LoyaltyManualAdjustment,
		Points:      order.LoyaltyPointsUsed,
		OrderID:     &order.ID,
		Effect:      models.EffectRestore,
		Description: fmt.Sprintf("Points restored for cancelled order %s", order.OrderNumber),
	})
	return err
}

func defaultTransitionNote(status string) string {
	switch status {
	case models.StatusCancelled:
		return "Order cancelled"
	case models.StatusPaymentConfirmed:
		return "Payment confirmed"
	case models.StatusAcceptedInPreparation:
		return "Accepted by the bakery"
	case models.StatusReadyForCollection:
		return "Ready for collection"
	case models.StatusOutForDelivery:
		return "Out for delivery"
	}
	return "Status changed to " + status
}

// redeemPoints debits the points used on order. A shortfall is reported against the
// number of points the customer asked for, matching the check done while pricing.
func (s *OrderService) redeemPoints(tx *gorm.DB, order *models.Order, requested int) error {
	if order.UserID == nil || order.LoyaltyPointsUsed <= 0 {
		return nil
	}
	_, _, err := s.loyalty.Apply(tx, LedgerEntry{
		UserID:      *order.UserID,
		Type:        models.LoyaltyRedeemed,
		Points:      -order.LoyaltyPointsUsed,
		OrderID:     &order.ID,
		Effect:      models.EffectRedeem,
		Description: fmt.Sprintf("Points redeemed on order %s", order.OrderNumber),
	})
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Code == CodeInsufficientPoints {
		available, _ := domainErr.Data["available"].(int)
		if requested < order.LoyaltyPointsUsed {
			requested = order.LoyaltyPointsUsed
		}
		return insufficientPoints(available, requested)
	}
	return err
}

// Wait blocks until every notification dispatched so far has finished.
func (s *OrderService) Wait() {
	s.notifications.Wait()
}

// dispatch runs fn off the request goroutine with a context that outlives the request.
func (s *OrderService) dispatch(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		fn(ctx)
	}()
}

func (s *OrderService) publishNewOrder(ctx context.Context, order *models.Order, location models.Location) {
	if s.notifier == nil {
		return
	}

	items := make([]EventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, EventItem{Name: item.ProductName, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}

	event := NewOrderEvent{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		LocationID:        location.ID,
		Location:          location.Name,
		CustomerName:      order.CustomerName,
		CustomerPhone:     order.CustomerPhone,
		FulfillmentMethod: order.FulfillmentMethod,
		Total:             order.TotalAmount,
		Currency:          order.Currency,
		ItemCount:         order.ItemCount(),
		Items:             items,
		EstimatedReadyAt:  order.EstimatedReadyAt,
		CreatedAt:         order.CreatedAt,
		StaffChatID:       location.StaffChatID,
	}
	s.dispatch(ctx, func(ctx context.Context) {
		if err := s.notifier.NotifyNewOrder(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("order_id", event.OrderID.String()).Msg("new order notification failed")
		}
	})
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order, previous, note string, actor Actor, staffChatID string) {
	if s.notifier == nil {
		return
	}

	changedBy := actor.ID
	event := OrderStatusChangedEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		LocationID:     order.LocationID,
		PreviousStatus: previous,
		NewStatus:      order.Status,
		CollectionCode: order.CollectionCode,
		ChangedBy:      &changedBy,
		Note:           note,
		ChangedAt:      order.UpdatedAt,
		StaffChatID:    staffChatID,
	}
	s.dispatch(ctx, func(ctx context.Context) {
		if err := s.notifier.NotifyStatusChanged(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("order_id", event.OrderID.String()).Msg("status change notification failed")
		}
	})
}
