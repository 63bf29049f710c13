package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bakery/internal/models"
)

func TestFeedback_Submit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.actor(t, f.customer)

	order := f.placeOrder(t, f.orderRequest(&f.customer, CartLine{ProductID: f.croissant.ID, Quantity: 2}))

	_, err := f.feedback.Submit(ctx, order.ID, customer, 5, "lovely")
	require.ErrorIs(t, err, ErrValidation, "not fulfilled yet")

	f.advance(t, order.ID, models.StatusAcceptedInPreparation, models.StatusReadyForCollection, models.StatusCollected)

	_, err = f.feedback.Submit(ctx, order.ID, customer, 6, "")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.feedback.Submit(ctx, order.ID, f.actor(t, f.other), 4, "")
	require.ErrorIs(t, err, ErrForbidden)

	fb, err := f.feedback.Submit(ctx, order.ID, customer, 5, "  still warm  ")
	require.NoError(t, err)
	assert.Equal(t, "still warm", fb.Comment)
	assert.Equal(t, f.customer.ID, fb.UserID)

	_, err = f.feedback.Submit(ctx, order.ID, customer, 3, "again")
	require.ErrorIs(t, err, ErrConflict)
}
