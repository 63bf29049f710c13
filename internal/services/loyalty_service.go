package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/bakery/internal/models"
)

// LedgerEntry describes one balance mutation. OrderID and Effect are set together for
// order-bound entries and left empty for manual adjustments.
type LedgerEntry struct {
	UserID      uuid.UUID
	Type        string
	Points      int
	OrderID     *uuid.UUID
	Effect      string
	Description string
}

// BalanceDrift reports a user whose cached balance disagreed with the ledger sum.
type BalanceDrift struct {
	UserID uuid.UUID `json:"user_id"`
	Cached int       `json:"cached"`
	Ledger int       `json:"ledger"`
}

// LoyaltyService owns the points ledger. The cached users.loyalty_balance only moves
// together with a ledger row, inside the caller's transaction.
type LoyaltyService struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewLoyaltyService(db *gorm.DB, log zerolog.Logger) *LoyaltyService {
	return &LoyaltyService{db: db, log: log.With().Str("component", "loyalty").Logger()}
}

func (s *LoyaltyService) balance(db *gorm.DB, userID uuid.UUID) (int, error) {
	var user models.User
	if err := db.Select("id", "loyalty_balance").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, notFound("user")
		}
		return 0, err
	}
	return user.LoyaltyBalance, nil
}

// Balance returns the user's cached point balance.
func (s *LoyaltyService) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.balance(s.db.WithContext(ctx), userID)
}

// Apply locks the user row, appends the entry and moves the balance by entry.Points.
// applied is false when an entry with the same (order, effect) already exists; the
// balance is left untouched in that case.
func (s *LoyaltyService) Apply(tx *gorm.DB, entry LedgerEntry) (balance int, applied bool, err error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "loyalty_balance").
		First(&user, "id = ?", entry.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, notFound("user")
		}
		return 0, false, err
	}

	next := user.LoyaltyBalance + entry.Points
	if next < 0 {
		return user.LoyaltyBalance, false, insufficientPoints(user.LoyaltyBalance, -entry.Points)
	}

	row := models.LoyaltyTransaction{
		UserID:       entry.UserID,
		Type:         entry.Type,
		Points:       entry.Points,
		BalanceAfter: next,
		OrderID:      entry.OrderID,
		Description:  entry.Description,
	}
	if entry.Effect != "" {
		effect := entry.Effect
		row.Effect = &effect
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return user.LoyaltyBalance, false, res.Error
	}
	if res.RowsAffected == 0 {
		return user.LoyaltyBalance, false, nil
	}

	if err := tx.Model(&models.User{}).
		Where("id = ?", entry.UserID).
		UpdateColumn("loyalty_balance", next).Error; err != nil {
		return user.LoyaltyBalance, false, err
	}

	s.log.Debug().
		Str("user_id", entry.UserID.String()).
		Str("type", entry.Type).
		Int("points", entry.Points).
		Int("balance", next).
		Msg("ledger entry applied")

	return next, true, nil
}

// ManualAdjust credits or debits points outside of any order.
func (s *LoyaltyService) ManualAdjust(ctx context.Context, userID uuid.UUID, points int, description string) (int, error) {
	if points == 0 {
		return 0, validationError("points must not be zero")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "Manual adjustment"
	}

	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, _, err = s.Apply(tx, LedgerEntry{
			UserID:      userID,
			Type:        models.LoyaltyManualAdjustment,
			Points:      points,
			Description: description,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// History returns a page of the user's ledger, newest first.
func (s *LoyaltyService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LoyaltyTransaction, int64, error) {
	db := s.db.WithContext(ctx).Model(&models.LoyaltyTransaction{}).Where("user_id = ?", userID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.LoyaltyTransaction
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Reconcile rewrites every cached balance that disagrees with the ledger sum.
func (s *LoyaltyService) Reconcile(ctx context.Context) ([]BalanceDrift, error) {
	var drifts []BalanceDrift

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "loyalty_balance").
			Order("id").
			Find(&users).Error; err != nil {
			return err
		}

		type ledgerSum struct {
			UserID uuid.UUID
			Total  int
		}
		var sums []ledgerSum
		if err := tx.Model(&models.LoyaltyTransaction{}).
			Select("user_id, COALESCE(SUM(points), 0) AS total").
			Group("user_id").
			Scan(&sums).Error; err != nil {
			return err
		}

		ledger := make(map[uuid.UUID]int, len(sums))
		for _, sum := range sums {
			ledger[sum.UserID] = sum.Total
		}

		for _, user := range users {
			want := ledger[user.ID]
			if want == user.LoyaltyBalance {
				continue
			}
			if err := tx.Model(&models.User{}).
				Where("id = ?", user.ID).
				UpdateColumn("loyalty_balance", want).Error; err != nil {
				return err
			}
			drifts = append(drifts, BalanceDrift{UserID: user.ID, Cached: user.LoyaltyBalance, Ledger: want})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range drifts {
		s.log.Warn().
			Str("user_id", d.UserID.String()).
			Int("cached", d.Cached).
			Int("ledger", d.Ledger).
			Msg("loyalty balance repaired")
	}
	return drifts, nil
}
