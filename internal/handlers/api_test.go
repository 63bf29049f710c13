package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/bakery/internal/config"
	"github.com/example/bakery/internal/database"
	"github.com/example/bakery/internal/handlers"
	"github.com/example/bakery/internal/models"
	"github.com/example/bakery/internal/routes"
	"github.com/example/bakery/internal/services"
	"github.com/example/bakery/internal/utils"
)

const testSecret = "test-secret"

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) Reserve(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type testAPI struct {
	app      *fiber.App
	db       *gorm.DB
	location models.Location
	bread    models.Product
	bun      models.Product
	customer models.User
	admin    models.User
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		JWTSecret:               testSecret,
		TokenExpires:            time.Hour,
		Currency:                "EUR",
		LoyaltyPointsPerPound:   decimal.NewFromInt(1),
		OrderRateLimitPerMinute: 100,
	}
	log := zerolog.Nop()
	loyalty := services.NewLoyaltyService(db, log)
	orders := services.NewOrderService(db, loyalty, services.Notifiers{}, services.OrderSettings{
		Currency:              cfg.Currency,
		DefaultPointsPerPound: cfg.LoyaltyPointsPerPound,
	}, log)
	t.Cleanup(orders.Wait)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(log)})
	routes.Register(app, db, cfg, routes.Deps{
		Orders:      orders,
		Loyalty:     loyalty,
		Feedback:    services.NewFeedbackService(db),
		Idempotency: &memoryIdempotency{keys: map[string]bool{}},
		Log:         log,
	})

	api := &testAPI{app: app, db: db}
	api.location = models.Location{Name: "Central", DeliveryFee: decimal.RequireFromString("5"), FreeDeliveryThreshold: decimal.RequireFromString("40"), PrepTimeMinutes: 30, IsActive: true}
	require.NoError(t, db.Create(&api.location).Error)
	api.bread = models.Product{Slug: "rye", Name: "Rye Loaf", Price: decimal.RequireFromString("5.00"), AvailabilityStatus: models.AvailabilityInStock, IsVisible: true}
	api.bun = models.Product{Slug: "bun", Name: "Cinnamon Bun", Price: decimal.RequireFromString("2.50"), AvailabilityStatus: models.AvailabilityInStock, IsVisible: true}
	require.NoError(t, db.Create(&api.bread).Error)
	require.NoError(t, db.Create(&api.bun).Error)
	api.customer = models.User{FirstName: "Ada", Email: "ada@example.com", Role: models.RoleCustomer}
	api.admin = models.User{FirstName: "Root", Email: "root@example.com", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&api.customer).Error)
	require.NoError(t, db.Create(&api.admin).Error)
	return api
}

func (a *testAPI) token(t *testing.T, user models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(testSecret, user.ID, user.Role, time.Hour)
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	status int
	body   map[string]any
}

func (r apiResponse) data() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	return data
}

func (r apiResponse) errorCode() string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers ...string) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func (a *testAPI) cart(items ...any) map[string]any {
	lines := make([]map[string]any, 0, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		lines = append(lines, map[string]any{"product_id": items[i], "quantity": items[i+1]})
	}
	return map[string]any{
		"location":           a.location.Name,
		"fulfillment_method": models.FulfillmentCollection,
		"items":              lines,
		"customer_name":      "Guest Eater",
		"customer_email":     "guest@example.com",
	}
}

func money(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected decimal string, got %T", v)
	return decimal.RequireFromString(s)
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Lin",
		"email":      "Lin@Example.com",
		"password":   "sourdough42",
	})
	require.Equal(t, http.StatusCreated, res.status)
	assert.NotEmpty(t, res.body["token"])

	dup := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Lin",
		"email":      "lin@example.com",
		"password":   "sourdough42",
	})
	assert.Equal(t, http.StatusConflict, dup.status)

	short := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Kim",
		"email":      "kim@example.com",
		"password":   "short",
	})
	assert.Equal(t, http.StatusBadRequest, short.status)
	assert.Equal(t, "validation_error", short.errorCode())

	login := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "lin@example.com",
		"password": "sourdough42",
	})
	require.Equal(t, http.StatusOK, login.status)
	user := login.body["user"].(map[string]any)
	assert.Equal(t, models.RoleCustomer, user["role"])

	wrong := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "lin@example.com",
		"password": "rye-bread",
	})
	assert.Equal(t, http.StatusUnauthorized, wrong.status)
}

func TestQuoteAsGuest(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(t, http.MethodPost, "/api/orders/quote", "", api.cart(api.bread.ID, 2, api.bun.ID, 4))
	require.Equal(t, http.StatusOK, res.status)

	data := res.data()
	assert.True(t, money(t, data["subtotal"]).Equal(decimal.RequireFromString("20")))
	assert.True(t, money(t, data["tax_amount"]).Equal(decimal.RequireFromString("4.60")))
	assert.True(t, money(t, data["total_amount"]).Equal(decimal.RequireFromString("24.60")))

	var n int64
	require.NoError(t, api.db.Model(&models.Order{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreateOrderErrorMapping(t *testing.T) {
	api := newTestAPI(t)

	t.Run("unknown product is 404", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/api/orders", "", api.cart(uuid.New(), 1))
		assert.Equal(t, http.StatusNotFound, res.status)
		assert.Equal(t, "not_found", res.errorCode())
	})

	t.Run("empty cart is 400", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/api/orders", "", api.cart())
		assert.Equal(t, http.StatusBadRequest, res.status)
		assert.Equal(t, "validation_error", res.errorCode())
	})

	t.Run("insufficient points is 409 with balances", func(t *testing.T) {
		body := api.cart(api.bread.ID, 1)
		body["loyalty_points_to_use"] = 100
		res := api.do(t, http.MethodPost, "/api/orders", api.token(t, api.customer), body)
		require.Equal(t, http.StatusConflict, res.status)
		assert.Equal(t, "insufficient_loyalty_points", res.errorCode())

		details := res.body["error"].(map[string]any)["data"].(map[string]any)
		assert.EqualValues(t, 0, details["available"])
		assert.EqualValues(t, 100, details["requested"])
	})

	t.Run("unavailable product is 409", func(t *testing.T) {
		require.NoError(t, api.db.Model(&api.bun).Update("availability_status", models.AvailabilityOutOfStock).Error)
		res := api.do(t, http.MethodPost, "/api/orders", "", api.cart(api.bun.ID, 1))
		assert.Equal(t, http.StatusConflict, res.status)
		assert.Equal(t, "product_unavailable", res.errorCode())
	})
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, api.customer)

	first := api.do(t, http.MethodPost, "/api/orders", token, api.cart(api.bread.ID, 1), handlers.IdempotencyHeader, "checkout-1")
	require.Equal(t, http.StatusCreated, first.status)
	assert.Equal(t, models.StatusPaidAwaitingConfirmation, first.data()["status"])

	retry := api.do(t, http.MethodPost, "/api/orders", token, api.cart(api.bread.ID, 1), handlers.IdempotencyHeader, "checkout-1")
	assert.Equal(t, http.StatusConflict, retry.status)
	assert.Equal(t, "conflict", retry.errorCode())

	var n int64
	require.NoError(t, api.db.Model(&models.Order{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// A failed attempt gives the key back.
	failed := api.do(t, http.MethodPost, "/api/orders", token, api.cart(uuid.New(), 1), handlers.IdempotencyHeader, "checkout-2")
	require.Equal(t, http.StatusNotFound, failed.status)
	again := api.do(t, http.MethodPost, "/api/orders", token, api.cart(api.bread.ID, 1), handlers.IdempotencyHeader, "checkout-2")
	assert.Equal(t, http.StatusCreated, again.status)
}

func TestIdempotencyKeyIsPerCustomer(t *testing.T) {
	api := newTestAPI(t)
	second := models.User{FirstName: "Bo", Email: "bo@example.com", Role: models.RoleCustomer}
	require.NoError(t, api.db.Create(&second).Error)

	first := api.do(t, http.MethodPost, "/api/orders", api.token(t, api.customer), api.cart(api.bread.ID, 1), handlers.IdempotencyHeader, "cart-1")
	require.Equal(t, http.StatusCreated, first.status)

	other := api.do(t, http.MethodPost, "/api/orders", api.token(t, second), api.cart(api.bread.ID, 1), handlers.IdempotencyHeader, "cart-1")
	assert.Equal(t, http.StatusCreated, other.status)

	guest := api.do(t, http.MethodPost, "/api/orders", "", api.cart(api.bread.ID, 1), handlers.IdempotencyHeader, "cart-1")
	assert.Equal(t, http.StatusCreated, guest.status)

	var n int64
	require.NoError(t, api.db.Model(&models.Order{}).Count(&n).Error)
	assert.EqualValues(t, 3, n)
}

func TestOrderAccessControl(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(t, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = api.do(t, http.MethodGet, "/api/staff/orders", api.token(t, api.customer), nil)
	assert.Equal(t, http.StatusForbidden, res.status)
	assert.Equal(t, "forbidden", res.errorCode())

	created := api.do(t, http.MethodPost, "/api/orders", "", api.cart(api.bread.ID, 1))
	require.Equal(t, http.StatusCreated, created.status)
	orderID := created.data()["id"].(string)

	// Someone else's order looks like it does not exist.
	res = api.do(t, http.MethodGet, "/api/orders/"+orderID, api.token(t, api.customer), nil)
	assert.Equal(t, http.StatusNotFound, res.status)

	res = api.do(t, http.MethodPatch, "/api/staff/orders/"+orderID+"/status", api.token(t, api.admin), map[string]any{
		"status": models.StatusPaymentConfirmed,
	})
	require.Equal(t, http.StatusOK, res.status)

	res = api.do(t, http.MethodPatch, "/api/staff/orders/"+orderID+"/status", api.token(t, api.admin), map[string]any{
		"status": models.StatusDelivered,
	})
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "invalid_state_transition", res.errorCode())
}

func TestAdminSettingsValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, api.admin)

	res := api.do(t, http.MethodPut, "/api/admin/settings/"+models.SettingLoyaltyPointsPerPound, token, map[string]any{"value": "-1"})
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = api.do(t, http.MethodPut, "/api/admin/settings/"+models.SettingLoyaltyPointsPerPound, token, map[string]any{"value": "2.5"})
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "2.5", res.data()["value"])

	res = api.do(t, http.MethodPut, "/api/admin/settings/unknown", token, map[string]any{"value": "1"})
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestAdminPromoCodes(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, api.admin)

	res := api.do(t, http.MethodPost, "/api/admin/promo-codes", token, map[string]any{
		"code":           " spring10 ",
		"discount_type":  models.DiscountPercentage,
		"discount_value": "10",
	})
	require.Equal(t, http.StatusCreated, res.status)
	assert.Equal(t, "SPRING10", res.data()["code"])

	dup := api.do(t, http.MethodPost, "/api/admin/promo-codes", token, map[string]any{
		"code":           "SPRING10",
		"discount_type":  models.DiscountFixed,
		"discount_value": "3",
	})
	assert.Equal(t, http.StatusConflict, dup.status)

	bad := api.do(t, http.MethodPost, "/api/admin/promo-codes", token, map[string]any{
		"code":           "HALF",
		"discount_type":  "bogus",
		"discount_value": "50",
	})
	assert.Equal(t, http.StatusBadRequest, bad.status)

	body := api.cart(api.bread.ID, 2, api.bun.ID, 4)
	body["promo_code"] = "spring10"
	quote := api.do(t, http.MethodPost, "/api/orders/quote", "", body)
	require.Equal(t, http.StatusOK, quote.status)
	assert.True(t, money(t, quote.data()["total_amount"]).Equal(decimal.RequireFromString("22.14")))
}

func TestAdminLoyaltyAdjust(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, api.admin)

	res := api.do(t, http.MethodPost, "/api/admin/users/"+api.customer.ID.String()+"/loyalty", token, map[string]any{
		"points":      250,
		"description": "birthday",
	})
	require.Equal(t, http.StatusOK, res.status)
	assert.EqualValues(t, 250, res.data()["balance"])

	res = api.do(t, http.MethodPost, "/api/admin/users/"+api.customer.ID.String()+"/loyalty", token, map[string]any{
		"points": -300,
	})
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "insufficient_loyalty_points", res.errorCode())

	res = api.do(t, http.MethodGet, "/api/profile/loyalty", api.token(t, api.customer), nil)
	require.Equal(t, http.StatusOK, res.status)
}

func TestUnexpectedErrorIsHidden(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(zerolog.Nop())})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("connection reset by peer")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_error", body["error"].(map[string]any)["code"])
	assert.NotContains(t, fmt.Sprint(body), "connection reset")
}
