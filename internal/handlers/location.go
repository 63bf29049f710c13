package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/models"
)

// LocationHandler manages the bakery shops orders are placed against.
type LocationHandler struct {
	db *gorm.DB
}

func NewLocationHandler(db *gorm.DB) *LocationHandler {
	return &LocationHandler{db: db}
}

// ListLocations returns active locations; admins can pass ?all=true.
func (h *LocationHandler) ListLocations(c *fiber.Ctx) error {
	query := h.db.Model(&models.Location{})
	if c.Query("all") != "true" {
		query = query.Where("is_active = ?", true)
	}

	var items []models.Location
	if err := query.Order("name asc").Find(&items).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": items})
}

type locationRequest struct {
	Name                  *string          `json:"name"`
	AddressLine           *string          `json:"address_line"`
	ContactPhone          *string          `json:"contact_phone"`
	OpeningHours          *string          `json:"opening_hours"`
	DeliveryFee           *decimal.Decimal `json:"delivery_fee"`
	FreeDeliveryThreshold *decimal.Decimal `json:"free_delivery_threshold"`
	PrepTimeMinutes       *int             `json:"prep_time_minutes"`
	DeliveryTimeMinutes   *int             `json:"delivery_time_minutes"`
	StaffChatID           *string          `json:"staff_chat_id"`
	IsActive              *bool            `json:"is_active"`
}

func (req locationRequest) apply(loc *models.Location) error {
	if req.Name != nil {
		loc.Name = strings.TrimSpace(*req.Name)
	}
	if req.AddressLine != nil {
		loc.AddressLine = *req.AddressLine
	}
	if req.ContactPhone != nil {
		loc.ContactPhone = *req.ContactPhone
	}
	if req.OpeningHours != nil {
		loc.OpeningHours = *req.OpeningHours
	}
	if req.DeliveryFee != nil {
		loc.DeliveryFee = *req.DeliveryFee
	}
	if req.FreeDeliveryThreshold != nil {
		loc.FreeDeliveryThreshold = *req.FreeDeliveryThreshold
	}
	if req.PrepTimeMinutes != nil {
		loc.PrepTimeMinutes = *req.PrepTimeMinutes
	}
	if req.DeliveryTimeMinutes != nil {
		loc.DeliveryTimeMinutes = *req.DeliveryTimeMinutes
	}
	if req.StaffChatID != nil {
		loc.StaffChatID = strings.TrimSpace(*req.StaffChatID)
	}
	if req.IsActive != nil {
		loc.IsActive = *req.IsActive
	}

	if loc.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	if loc.DeliveryFee.IsNegative() || loc.FreeDeliveryThreshold.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "fees cannot be negative")
	}
	if loc.PrepTimeMinutes < 0 || loc.DeliveryTimeMinutes < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "times cannot be negative")
	}
	return nil
}

func (h *LocationHandler) CreateLocation(c *fiber.Ctx) error {
	var req locationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	item := models.Location{IsActive: true}
	if err := req.apply(&item); err != nil {
		return err
	}
	if err := h.db.Create(&item).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": item})
}

func (h *LocationHandler) UpdateLocation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	var item models.Location
	if err := h.db.First(&item, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "location not found")
		}
		return err
	}

	var req locationRequest
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

// DeactivateLocation stops a location from taking new orders. Existing orders keep it.
func (h *LocationHandler) DeactivateLocation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	res := h.db.Model(&models.Location{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "location not found")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
