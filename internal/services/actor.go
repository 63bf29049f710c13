package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/models"
)

// Actor is the authenticated user behind a request, with the locations they staff.
type Actor struct {
	ID          uuid.UUID
	Role        string
	LocationIDs []uuid.UUID
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func (a Actor) IsStaff() bool {
	return a.Role == models.RoleStaff || a.Role == models.RoleManager || a.Role == models.RoleAdmin
}

// CanManageLocation reports whether the actor may act on orders of the location.
func (a Actor) CanManageLocation(locationID uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	if a.Role != models.RoleStaff && a.Role != models.RoleManager {
		return false
	}
	for _, id := range a.LocationIDs {
		if id == locationID {
			return true
		}
	}
	return false
}

// ResolveActor loads the user's current role and location assignments.
func ResolveActor(ctx context.Context, db *gorm.DB, userID uuid.UUID) (Actor, error) {
	var user models.User
	if err := db.WithContext(ctx).Preload("Locations").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, notFound("user")
		}
		return Actor{}, err
	}

	actor := Actor{ID: user.ID, Role: user.Role}
	for _, loc := range user.Locations {
		actor.LocationIDs = append(actor.LocationIDs, loc.ID)
	}
	return actor, nil
}
