package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
)

type Category struct {
	BaseModel
	Name        string    `json:"name"`
	Slug        string    `gorm:"uniqueIndex" json:"slug"`
	Description string    `json:"description"`
	Products    []Product `json:"products,omitempty"`
}

type Product struct {
	BaseModel
	Slug               string          `gorm:"uniqueIndex" json:"slug"`
	Name               string          `gorm:"not null" json:"name"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	AvailabilityStatus string          `gorm:"index;not null" json:"availability_status"`
	IsArchived         bool            `gorm:"index" json:"is_archived"`
	IsVisible          bool            `json:"is_visible"`
	Allergens          string          `json:"allergens"`
	ImageURL           string          `json:"image_url"`
	CategoryID         *uuid.UUID      `gorm:"type:uuid" json:"category_id"`
	Category           *Category       `json:"category,omitempty"`
}

// Orderable reports whether the product can be put into a new order.
func (p Product) Orderable() bool {
	return !p.IsArchived && p.IsVisible && p.AvailabilityStatus == AvailabilityInStock
}

// Location is a shop that prepares collection and delivery orders.
type Location struct {
	BaseModel
	Name                  string          `gorm:"uniqueIndex;not null" json:"name"`
	AddressLine           string          `json:"address_line"`
	ContactPhone          string          `json:"contact_phone"`
	OpeningHours          string          `json:"opening_hours"`
	DeliveryFee           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"delivery_fee"`
	FreeDeliveryThreshold decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"free_delivery_threshold"`
	PrepTimeMinutes       int             `json:"prep_time_minutes"`
	DeliveryTimeMinutes   int             `json:"delivery_time_minutes"`
	StaffChatID           string          `json:"staff_chat_id"`
	IsActive              bool            `json:"is_active"`
}
