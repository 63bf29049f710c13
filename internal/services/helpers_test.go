package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/bakery/internal/database"
	"github.com/example/bakery/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []NewOrderEvent
	changed []OrderStatusChangedEvent
	err     error
}

func (r *recordingNotifier) NotifyNewOrder(_ context.Context, event NewOrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, event)
	return r.err
}

func (r *recordingNotifier) NotifyStatusChanged(_ context.Context, event OrderStatusChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, event)
	return r.err
}

type fixture struct {
	db       *gorm.DB
	orders   *OrderService
	loyalty  *LoyaltyService
	feedback *FeedbackService
	notifier *recordingNotifier

	central   models.Location
	harbour   models.Location
	sourdough models.Product
	croissant models.Product
	archived  models.Product

	customer models.User
	other    models.User
	staff    models.User
	admin    models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	log := zerolog.Nop()
	notifier := &recordingNotifier{}
	loyalty := NewLoyaltyService(db, log)
	orders := NewOrderService(db, loyalty, notifier, OrderSettings{Currency: "EUR", DefaultPointsPerPound: dec("1")}, log)
	orders.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(orders.Wait)

	f := &fixture{
		db:       db,
		orders:   orders,
		loyalty:  loyalty,
		feedback: NewFeedbackService(db),
		notifier: notifier,
	}

	f.central = models.Location{Name: "Central", DeliveryFee: dec("5.00"), FreeDeliveryThreshold: dec("40.00"), PrepTimeMinutes: 30, DeliveryTimeMinutes: 45, StaffChatID: "-100", IsActive: true}
	f.harbour = models.Location{Name: "Harbour", DeliveryFee: dec("4.00"), FreeDeliveryThreshold: decimal.Zero, PrepTimeMinutes: 20, DeliveryTimeMinutes: 30, IsActive: true}
	require.NoError(t, db.Create(&f.central).Error)
	require.NoError(t, db.Create(&f.harbour).Error)

	f.sourdough = models.Product{Slug: "sourdough", Name: "Sourdough Loaf", Price: dec("5.00"), AvailabilityStatus: models.AvailabilityInStock, IsVisible: true}
	f.croissant = models.Product{Slug: "croissant", Name: "Butter Croissant", Price: dec("2.50"), AvailabilityStatus: models.AvailabilityInStock, IsVisible: true}
	f.archived = models.Product{Slug: "stollen", Name: "Stollen", Price: dec("12.00"), AvailabilityStatus: models.AvailabilityInStock, IsVisible: true, IsArchived: true}
	require.NoError(t, db.Create(&f.sourdough).Error)
	require.NoError(t, db.Create(&f.croissant).Error)
	require.NoError(t, db.Create(&f.archived).Error)

	f.customer = models.User{FirstName: "Ada", LastName: "Baker", Email: "ada@example.com", Phone: "+3531234567", Role: models.RoleCustomer}
	f.other = models.User{FirstName: "Bo", LastName: "Crumb", Email: "bo@example.com", Role: models.RoleCustomer}
	f.staff = models.User{FirstName: "Sam", Email: "sam@example.com", Role: models.RoleStaff, Locations: []models.Location{f.central}}
	f.admin = models.User{FirstName: "Root", Email: "admin@example.com", Role: models.RoleAdmin}
	for _, u := range []*models.User{&f.customer, &f.other, &f.staff, &f.admin} {
		require.NoError(t, db.Create(u).Error)
	}

	return f
}

// givePoints credits points through the ledger so cached balance and ledger agree.
func (f *fixture) givePoints(t *testing.T, user models.User, points int) {
	t.Helper()
	_, err := f.loyalty.ManualAdjust(context.Background(), user.ID, points, "welcome bonus")
	require.NoError(t, err)
}

func (f *fixture) actor(t *testing.T, user models.User) Actor {
	t.Helper()
	a, err := ResolveActor(context.Background(), f.db, user.ID)
	require.NoError(t, err)
	return a
}

func (f *fixture) orderRequest(user *models.User, items ...CartLine) CreateOrderRequest {
	req := CreateOrderRequest{
		QuoteRequest: QuoteRequest{
			Items:             items,
			FulfillmentMethod: models.FulfillmentCollection,
			LocationName:      f.central.Name,
		},
		PaymentReference: "pi_test",
	}
	if user != nil {
		id := user.ID
		req.UserID = &id
	}
	return req
}

func (f *fixture) balance(t *testing.T, user models.User) int {
	t.Helper()
	b, err := f.loyalty.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
