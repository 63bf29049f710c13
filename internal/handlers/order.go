package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/middleware"
	"github.com/example/bakery/internal/models"
	"github.com/example/bakery/internal/services"
	"github.com/example/bakery/internal/utils"
)

// IdempotencyHeader lets clients retry order submission safely.
const IdempotencyHeader = "Idempotency-Key"

// OrderHandler manages customer order endpoints.
type OrderHandler struct {
	db          *gorm.DB
	orders      *services.OrderService
	feedback    *services.FeedbackService
	idempotency services.IdempotencyStore
	log         zerolog.Logger
}

// NewOrderHandler constructs OrderHandler. idempotency may be nil.
func NewOrderHandler(db *gorm.DB, orders *services.OrderService, feedback *services.FeedbackService, idempotency services.IdempotencyStore, log zerolog.Logger) *OrderHandler {
	return &OrderHandler{db: db, orders: orders, feedback: feedback, idempotency: idempotency, log: log}
}

type orderRequest struct {
	Items              []services.CartLine `json:"items"`
	Location           string              `json:"location"`
	FulfillmentMethod  string              `json:"fulfillment_method"`
	PromoCode          string              `json:"promo_code"`
	LoyaltyPointsToUse int                 `json:"loyalty_points_to_use"`
	CustomerName       string              `json:"customer_name"`
	CustomerEmail      string              `json:"customer_email"`
	CustomerPhone      string              `json:"customer_phone"`
	OrderType          string              `json:"order_type"`
	DeliveryAddress    string              `json:"delivery_address"`
	DeliveryAddressID  *uuid.UUID          `json:"delivery_address_id"`
	Notes              string              `json:"notes"`
	PaymentReference   string              `json:"payment_reference"`
}

func (r orderRequest) quote(userID *uuid.UUID) services.QuoteRequest {
	return services.QuoteRequest{
		UserID:             userID,
		Items:              r.Items,
		PromoCode:          r.PromoCode,
		LoyaltyPointsToUse: r.LoyaltyPointsToUse,
		FulfillmentMethod:  r.FulfillmentMethod,
		LocationName:       r.Location,
	}
}

func optionalUserID(c *fiber.Ctx) *uuid.UUID {
	if id, ok := middleware.GetCurrentUserID(c); ok {
		return &id
	}
	return nil
}

// QuoteOrder prices a cart without placing it.
func (h *OrderHandler) QuoteOrder(c *fiber.Ctx) error {
	var req orderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	quote, err := h.orders.Quote(c.UserContext(), req.quote(optionalUserID(c)))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": quote})
}

// CreateOrder places an order for a signed-in customer or a guest.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req orderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	key := idempotencyKey(c)
	if key != "" && h.idempotency != nil {
		reserved, err := h.idempotency.Reserve(ctx, key)
		if err != nil {
			return err
		}
		if !reserved {
			return &services.DomainError{Code: services.CodeConflict, Message: "an order with this Idempotency-Key was already submitted"}
		}
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderRequest{
		QuoteRequest:      req.quote(optionalUserID(c)),
		CustomerName:      req.CustomerName,
		CustomerEmail:     req.CustomerEmail,
		CustomerPhone:     req.CustomerPhone,
		OrderType:         req.OrderType,
		DeliveryAddress:   req.DeliveryAddress,
		DeliveryAddressID: req.DeliveryAddressID,
		Notes:             req.Notes,
		PaymentReference:  req.PaymentReference,
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(ctx, key); relErr != nil {
				h.log.Warn().Err(relErr).Str("key", key).Msg("failed to release idempotency key")
			}
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

// idempotencyKey scopes the client's Idempotency-Key to the caller, the user id when
// signed in and the client IP for guests.
func idempotencyKey(c *fiber.Ctx) string {
	key := strings.TrimSpace(c.Get(IdempotencyHeader))
	if key == "" {
		return ""
	}
	if id, ok := middleware.GetCurrentUserID(c); ok {
		return id.String() + ":" + key
	}
	return "guest:" + c.IP() + ":" + key
}

// ListOrders returns orders for authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Where("user_id = ?", userID).Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns an order with items and history to its owner or to staff of its location.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	actor, err := currentActor(c, h.db)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.GetOrder(c.UserContext(), id)
	if err != nil {
		return err
	}

	owner := order.UserID != nil && *order.UserID == actor.ID
	if !owner && !actor.CanManageLocation(order.LocationID) {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// ConfirmPayment lets the customer confirm their payment went through.
func (h *OrderHandler) ConfirmPayment(c *fiber.Ctx) error {
	actor, err := currentActor(c, h.db)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.ConfirmPayment(c.UserContext(), id, actor)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels an order that has not been handed over yet.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	actor, err := currentActor(c, h.db)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	order, err := h.orders.CancelOrder(c.UserContext(), id, req.Reason, actor)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// SubmitFeedback stores the customer's rating for a fulfilled order.
func (h *OrderHandler) SubmitFeedback(c *fiber.Ctx) error {
	actor, err := currentActor(c, h.db)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	fb, err := h.feedback.Submit(c.UserContext(), id, actor, req.Rating, req.Comment)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": fb})
}

// currentActor resolves the signed-in user with their current role and locations.
func currentActor(c *fiber.Ctx, db *gorm.DB) (services.Actor, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return services.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	actor, err := services.ResolveActor(c.UserContext(), db, userID)
	if errors.Is(err, services.ErrNotFound) {
		return services.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return actor, err
}
