package models

import "github.com/google/uuid"

// Feedback is a customer's rating of a fulfilled order.
type Feedback struct {
	BaseModel
	OrderID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	Order   *Order    `json:"order,omitempty"`
	UserID  uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Rating  int       `gorm:"not null" json:"rating"`
	Comment string    `json:"comment"`
}
