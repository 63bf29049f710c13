package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/models"
	"github.com/example/bakery/internal/utils"
)

// ProductHandler manages product CRUD.
type ProductHandler struct {
	db *gorm.DB
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

func (h *ProductHandler) list(c *fiber.Ctx, storefront bool) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{})

	if storefront {
		query = query.Where("is_archived = ? AND is_visible = ?", false, true)
	} else if c.Query("archived") != "true" {
		query = query.Where("is_archived = ?", false)
	}

	if v := c.Query("category_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("category_id = ?", id)
		}
	}

	if v := c.Query("availability"); v != "" {
		query = query.Where("availability_status = ?", v)
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", q, q)
	}

	if minPrice := c.Query("min_price"); minPrice != "" {
		if val, err := decimal.NewFromString(minPrice); err == nil {
			query = query.Where("price >= ?", val)
		}
	}

	if maxPrice := c.Query("max_price"); maxPrice != "" {
		if val, err := decimal.NewFromString(maxPrice); err == nil {
			query = query.Where("price <= ?", val)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Preload("Category").
		Limit(pg.Limit).Offset(pg.Offset).
		Order("name asc").
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// ListProducts returns visible, non-archived products for the storefront.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	return h.list(c, true)
}

// AdminListProducts also returns hidden products, and archived ones with ?archived=true.
func (h *ProductHandler) AdminListProducts(c *fiber.Ctx) error {
	return h.list(c, false)
}

// GetProduct loads a product with its category.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.Preload("Category").First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

type productRequest struct {
	Slug               *string          `json:"slug"`
	Name               *string          `json:"name"`
	Description        *string          `json:"description"`
	Price              *decimal.Decimal `json:"price"`
	AvailabilityStatus *string          `json:"availability_status"`
	IsVisible          *bool            `json:"is_visible"`
	IsArchived         *bool            `json:"is_archived"`
	Allergens          *string          `json:"allergens"`
	ImageURL           *string          `json:"image_url"`
	CategoryID         *uuid.UUID       `json:"category_id"`
}

func (req productRequest) apply(product *models.Product) error {
	if req.Slug != nil {
		product.Slug = strings.TrimSpace(*req.Slug)
	}
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.AvailabilityStatus != nil {
		product.AvailabilityStatus = *req.AvailabilityStatus
	}
	if req.IsVisible != nil {
		product.IsVisible = *req.IsVisible
	}
	if req.IsArchived != nil {
		product.IsArchived = *req.IsArchived
	}
	if req.Allergens != nil {
		product.Allergens = *req.Allergens
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}
	if req.CategoryID != nil {
		product.CategoryID = req.CategoryID
	}

	if product.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	if product.Slug == "" {
		product.Slug = slugify(product.Name)
	}
	if product.Price.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "price cannot be negative")
	}
	if product.AvailabilityStatus != models.AvailabilityInStock && product.AvailabilityStatus != models.AvailabilityOutOfStock {
		return fiber.NewError(fiber.StatusBadRequest, "availability_status must be in_stock or out_of_stock")
	}
	return nil
}

// CreateProduct handles product creation.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	product := models.Product{AvailabilityStatus: models.AvailabilityInStock, IsVisible: true}
	if err := req.apply(&product); err != nil {
		return err
	}

	if err := h.db.Create(&product).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct applies a partial update. Price changes never touch existing orders.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.apply(&product); err != nil {
		return err
	}

	if err := h.db.Save(&product).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// DeleteProduct archives the product; order lines keep pointing at it.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	res := h.db.Model(&models.Product{}).Where("id = ?", id).Update("is_archived", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RegisterProductRoutes attaches the admin product routes.
func (h *ProductHandler) RegisterProductRoutes(router fiber.Router) {
	router.Get("/", h.AdminListProducts)
	router.Get("/:id", h.GetProduct)
	router.Post("/", h.CreateProduct)
	router.Put("/:id", h.UpdateProduct)
	router.Delete("/:id", h.DeleteProduct)
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
