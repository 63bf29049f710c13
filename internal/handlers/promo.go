package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/models"
	"github.com/example/bakery/internal/utils"
)

// PromoHandler manages promo codes from the admin panel.
type PromoHandler struct {
	db *gorm.DB
}

func NewPromoHandler(db *gorm.DB) *PromoHandler {
	return &PromoHandler{db: db}
}

func (h *PromoHandler) ListPromoCodes(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.PromoCode{})
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.PromoCode
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    items,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type promoRequest struct {
	Code          *string          `json:"code"`
	Description   *string          `json:"description"`
	IsActive      *bool            `json:"is_active"`
	ValidFrom     *time.Time       `json:"valid_from"`
	ValidUntil    *time.Time       `json:"valid_until"`
	MinOrderValue *decimal.Decimal `json:"min_order_value"`
	DiscountType  *string          `json:"discount_type"`
	DiscountValue *decimal.Decimal `json:"discount_value"`
}

func (req promoRequest) apply(promo *models.PromoCode) error {
	if req.Code != nil {
		promo.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
	}
	if req.Description != nil {
		promo.Description = *req.Description
	}
	if req.IsActive != nil {
		promo.IsActive = *req.IsActive
	}
	if req.ValidFrom != nil {
		promo.ValidFrom = req.ValidFrom
	}
	if req.ValidUntil != nil {
		promo.ValidUntil = req.ValidUntil
	}
	if req.MinOrderValue != nil {
		promo.MinOrderValue = *req.MinOrderValue
	}
	if req.DiscountType != nil {
		promo.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		promo.DiscountValue = *req.DiscountValue
	}

	if promo.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}
	switch promo.DiscountType {
	case models.DiscountPercentage:
		if promo.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return fiber.NewError(fiber.StatusBadRequest, "percentage cannot exceed 100")
		}
	case models.DiscountFixed:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "discount_type must be percentage or fixed")
	}
	if !promo.DiscountValue.IsPositive() {
		return fiber.NewError(fiber.StatusBadRequest, "discount_value must be positive")
	}
	if promo.MinOrderValue.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "min_order_value cannot be negative")
	}
	if promo.ValidFrom != nil && promo.ValidUntil != nil && promo.ValidUntil.Before(*promo.ValidFrom) {
		return fiber.NewError(fiber.StatusBadRequest, "valid_until is before valid_from")
	}
	return nil
}

func (h *PromoHandler) CreatePromoCode(c *fiber.Ctx) error {
	var req promoRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	item := models.PromoCode{IsActive: true}
	if err := req.apply(&item); err != nil {
		return err
	}

	var existing int64
	if err := h.db.Model(&models.PromoCode{}).Where("code = ?", item.Code).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fiber.NewError(fiber.StatusConflict, "promo code already exists")
	}

	if err := h.db.Create(&item).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": item})
}

func (h *PromoHandler) UpdatePromoCode(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	var item models.PromoCode
	if err := h.db.First(&item, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "promo code not found")
		}
		return err
	}

	var req promoRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.apply(&item); err != nil {
		return err
	}
	if err := h.db.Save(&item).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": item})
}

// DeactivatePromoCode switches a code off. Usage rows reference it, so it is never removed.
func (h *PromoHandler) DeactivatePromoCode(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	res := h.db.Model(&models.PromoCode{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "promo code not found")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
