package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/models"
	"github.com/example/bakery/internal/services"
	"github.com/example/bakery/internal/utils"
)

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	db      *gorm.DB
	loyalty *services.LoyaltyService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, loyalty *services.LoyaltyService) *AdminHandler {
	return &AdminHandler{db: db, loyalty: loyalty}
}

type revenueRow struct {
	Total decimal.Decimal
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	var totalUsers int64
	if err := h.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalOrders int64
	if err := h.db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return err
	}

	// Orders by status
	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var statusCounts []statusCount
	if err := h.db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	ordersByStatus := make(map[string]int64)
	for _, sc := range statusCounts {
		ordersByStatus[sc.Status] = sc.Count
	}

	var totalRevenue revenueRow
	if err := h.db.Model(&models.Order{}).
		Where("status != ?", models.StatusCancelled).
		Select("COALESCE(SUM(total_amount), 0) AS total").
		Scan(&totalRevenue).Error; err != nil {
		return err
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var todayRevenue revenueRow
	if err := h.db.Model(&models.Order{}).
		Where("status != ? AND created_at >= ?", models.StatusCancelled, startOfDay).
		Select("COALESCE(SUM(total_amount), 0) AS total").
		Scan(&todayRevenue).Error; err != nil {
		return err
	}

	var pendingFeedback int64
	if err := h.db.Model(&models.Feedback{}).Where("rating <= ?", 2).Count(&pendingFeedback).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_users":      totalUsers,
			"total_orders":     totalOrders,
			"total_revenue":    totalRevenue.Total,
			"today_revenue":    todayRevenue.Total,
			"orders_by_status": ordersByStatus,
			"low_ratings":      pendingFeedback,
		},
	})
}

// ListAllOrders returns all orders with pagination and filtering.
func (h *AdminHandler) ListAllOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if v := c.Query("location_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("location_id = ?", id)
		}
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(order_number) LIKE ? OR LOWER(customer_name) LIKE ? OR LOWER(customer_email) LIKE ?",
			q, q, q,
		)
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

// ListAllUsers returns all registered users with pagination and search.
func (h *AdminHandler) ListAllUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.User{})

	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?",
			q, q, q, q,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Preload("Locations").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	// Enrich users with order counts and total spent
	type userStats struct {
		UserID     string
		OrderCount int64
		TotalSpent decimal.Decimal
	}

	var stats []userStats
	if err := h.db.Model(&models.Order{}).
		Select("user_id, count(*) as order_count, COALESCE(SUM(total_amount), 0) as total_spent").
		Where("user_id IS NOT NULL AND status != ?", models.StatusCancelled).
		Group("user_id").
		Scan(&stats).Error; err != nil {
		return err
	}

	statsMap := make(map[string]userStats)
	for _, s := range stats {
		statsMap[s.UserID] = s
	}

	type userResponse struct {
		models.User
		OrderCount int64           `json:"order_count"`
		TotalSpent decimal.Decimal `json:"total_spent"`
	}

	result := make([]userResponse, len(users))
	for i, u := range users {
		result[i] = userResponse{User: u, TotalSpent: decimal.Zero}
		if s, ok := statsMap[u.ID.String()]; ok {
			result[i].OrderCount = s.OrderCount
			result[i].TotalSpent = s.TotalSpent
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// RecentOrders returns the most recent 5 orders for the dashboard.
func (h *AdminHandler) RecentOrders(c *fiber.Ctx) error {
	var orders []models.Order
	if err := h.db.Preload("Items").
		Order("created_at desc").
		Limit(5).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
	})
}

type roleRequest struct {
	Role string `json:"role"`
}

// UpdateUserRole promotes or demotes a user.
func (h *AdminHandler) UpdateUserRole(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	switch req.Role {
	case models.RoleCustomer, models.RoleStaff, models.RoleManager, models.RoleAdmin:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown role")
	}

	res := h.db.Model(&models.User{}).Where("id = ?", id).Update("role", req.Role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "role updated"})
}

type staffLocationsRequest struct {
	LocationIDs []uuid.UUID `json:"location_ids"`
}

// AssignStaffLocations replaces the set of locations a staff member works at.
func (h *AdminHandler) AssignStaffLocations(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req staffLocationsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}
	if !user.IsStaff() {
		return fiber.NewError(fiber.StatusBadRequest, "only staff and managers are assigned to locations")
	}

	var locations []models.Location
	if len(req.LocationIDs) > 0 {
		if err := h.db.Where("id IN ?", req.LocationIDs).Find(&locations).Error; err != nil {
			return err
		}
		if len(locations) != len(req.LocationIDs) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown location id")
		}
	}

	if err := h.db.Model(&user).Association("Locations").Replace(locations); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": locations})
}

type loyaltyAdjustRequest struct {
	Points      int    `json:"points"`
	Description string `json:"description"`
}

// AdjustLoyalty credits or debits a user's points by hand.
func (h *AdminHandler) AdjustLoyalty(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req loyaltyAdjustRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	balance, err := h.loyalty.ManualAdjust(c.UserContext(), id, req.Points, req.Description)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"balance": balance}})
}

// ReconcileLoyalty rebuilds cached balances from the ledger.
func (h *AdminHandler) ReconcileLoyalty(c *fiber.Ctx) error {
	drifts, err := h.loyalty.Reconcile(c.UserContext())
	if err != nil {
		return err
	}
	if drifts == nil {
		drifts = []services.BalanceDrift{}
	}

	return c.JSON(fiber.Map{"success": true, "data": drifts})
}

// ListSettings returns all system settings.
func (h *AdminHandler) ListSettings(c *fiber.Ctx) error {
	var settings []models.SystemSetting
	if err := h.db.Order("key asc").Find(&settings).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": settings})
}

type settingRequest struct {
	Value string `json:"value"`
}

var settingValidators = map[string]func(string) bool{
	models.SettingLoyaltyPointsPerPound: func(v string) bool {
		d, err := decimal.NewFromString(v)
		return err == nil && !d.IsNegative()
	},
}

// UpdateSetting upserts a known setting.
func (h *AdminHandler) UpdateSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	validate, ok := settingValidators[key]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown setting")
	}

	var req settingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Value = strings.TrimSpace(req.Value)
	if !validate(req.Value) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid value for "+key)
	}

	var setting models.SystemSetting
	err := h.db.Where(&models.SystemSetting{Key: key}).First(&setting).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		setting = models.SystemSetting{Key: key, Value: req.Value}
		err = h.db.Create(&setting).Error
	case err == nil:
		setting.Value = req.Value
		err = h.db.Save(&setting).Error
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": setting})
}

// ListFeedback returns customer ratings, newest first.
func (h *AdminHandler) ListFeedback(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Feedback{})

	if v := c.Query("max_rating"); v != "" {
		query = query.Where("rating <= ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.Feedback
	if err := query.Preload("Order").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&items).Error; err != nil {
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
