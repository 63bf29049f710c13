package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/models"
	"github.com/example/bakery/internal/services"
	"github.com/example/bakery/internal/utils"
)

// StaffHandler serves the order queue of bakery staff.
type StaffHandler struct {
	db     *gorm.DB
	orders *services.OrderService
}

func NewStaffHandler(db *gorm.DB, orders *services.OrderService) *StaffHandler {
	return &StaffHandler{db: db, orders: orders}
}

// ListOrders returns orders of the locations the caller works at. Admins see all.
func (h *StaffHandler) ListOrders(c *fiber.Ctx) error {
	actor, err := currentActor(c, h.db)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{})

	if !actor.IsAdmin() {
		if len(actor.LocationIDs) == 0 {
			return c.JSON(fiber.Map{
				"success": true,
				"data":    []models.Order{},
				"pagination": fiber.Map{
					"current_page":   pg.Page,
					"items_per_page": pg.Limit,
					"total_items":    0,
				},
			})
		}
		query = query.Where("location_id IN ?", actor.LocationIDs)
	}

	if raw := c.Query("location_id"); raw != "" {
		locationID, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid location_id")
		}
		query = query.Where("location_id = ?", locationID)
	}

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("estimated_ready_at asc").
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

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// UpdateStatus moves an order along its lifecycle.
func (h *StaffHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c, h.db)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		return fiber.NewError(fiber.StatusBadRequest, "status is required")
	}

	order, err := h.orders.SetOrderStatus(c.UserContext(), id, req.Status, req.Note, actor)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}
