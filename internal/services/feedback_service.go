package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/bakery/internal/models"
)

type FeedbackService struct {
	db *gorm.DB
}

func NewFeedbackService(db *gorm.DB) *FeedbackService {
	return &FeedbackService{db: db}
}

func feedbackEligible(status string) bool {
	switch status {
	case models.StatusCollected, models.StatusDelivered, models.StatusCompleted:
		return true
	}
	return false
}

// Submit stores the customer's rating for a fulfilled order. Each order takes one feedback.
func (s *FeedbackService) Submit(ctx context.Context, orderID uuid.UUID, actor Actor, rating int, comment string) (*models.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, validationError("rating must be between 1 and 5")
	}

	var feedback models.Feedback
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Select("id", "user_id", "status").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("order")
			}
			return err
		}
		if order.UserID == nil || *order.UserID != actor.ID {
			return forbidden("only the customer who placed the order can leave feedback")
		}
		if !feedbackEligible(order.Status) {
			return validationError("feedback opens once the order is fulfilled")
		}

		feedback = models.Feedback{
			OrderID: order.ID,
			UserID:  actor.ID,
			Rating:  rating,
			Comment: strings.TrimSpace(comment),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&feedback)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("feedback already submitted for this order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}
