package models

import (
	"strings"

	"github.com/google/uuid"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

// User is a customer or a member of the bakery team.
type User struct {
	BaseModel
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Email          string        `gorm:"uniqueIndex;not null" json:"email"`
	Phone          string        `gorm:"index" json:"phone"`
	PasswordHash   string        `json:"-"`
	Role           string        `gorm:"index;not null" json:"role"`
	LoyaltyBalance int           `gorm:"not null" json:"loyalty_balance"`
	Addresses      []UserAddress `json:"addresses,omitempty"`
	Locations      []Location    `gorm:"many2many:staff_locations;" json:"locations,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsStaff reports whether the user works at one or more locations.
func (u User) IsStaff() bool {
	return u.Role == RoleStaff || u.Role == RoleManager
}

type UserAddress struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Label       string    `json:"label"`
	AddressLine string    `json:"address_line"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postal_code"`
	IsDefault   bool      `json:"is_default"`
}

// OneLine renders the address for the order snapshot.
func (a UserAddress) OneLine() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.AddressLine, a.City, a.PostalCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
