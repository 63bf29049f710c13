package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/bakery/internal/config"
	"github.com/example/bakery/internal/handlers"
	"github.com/example/bakery/internal/middleware"
	"github.com/example/bakery/internal/models"
	"github.com/example/bakery/internal/services"
)

// Deps are the services shared across handlers.
type Deps struct {
	Orders      *services.OrderService
	Loyalty     *services.LoyaltyService
	Feedback    *services.FeedbackService
	Idempotency services.IdempotencyStore
	Log         zerolog.Logger
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, deps Deps) {
	authHandler := handlers.NewAuthHandler(db, cfg)
	catalogHandler := handlers.NewCatalogHandler(db)
	productHandler := handlers.NewProductHandler(db)
	locationHandler := handlers.NewLocationHandler(db)
	orderHandler := handlers.NewOrderHandler(db, deps.Orders, deps.Feedback, deps.Idempotency, deps.Log)
	staffHandler := handlers.NewStaffHandler(db, deps.Orders)
	profileHandler := handlers.NewProfileHandler(db, deps.Loyalty)
	promoHandler := handlers.NewPromoHandler(db)
	adminHandler := handlers.NewAdminHandler(db, deps.Loyalty)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Storefront
	api.Get("/categories", catalogHandler.ListCategories)
	api.Get("/categories/:id", catalogHandler.GetCategory)
	api.Get("/products", productHandler.ListProducts)
	api.Get("/products/:id", productHandler.GetProduct)
	api.Get("/locations", locationHandler.ListLocations)

	// Checkout accepts guests
	checkout := api.Group("/orders", middleware.OptionalAuth(cfg))
	checkout.Post("/quote", orderHandler.QuoteOrder)
	checkout.Post("/", limiter.New(limiter.Config{
		Max:        cfg.OrderRateLimitPerMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many orders, try again shortly")
		},
	}), orderHandler.CreateOrder)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Post("/orders/:id/confirm-payment", orderHandler.ConfirmPayment)
	protected.Post("/orders/:id/cancel", orderHandler.CancelOrder)
	protected.Post("/orders/:id/feedback", orderHandler.SubmitFeedback)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Get("/profile/addresses", profileHandler.ListAddresses)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Put("/profile/addresses/:id", profileHandler.UpdateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)
	protected.Get("/profile/loyalty", profileHandler.ListLoyaltyTransactions)

	// Shop floor
	staff := protected.Group("/staff", middleware.RequireRole(models.RoleStaff, models.RoleManager, models.RoleAdmin))
	staff.Get("/orders", staffHandler.ListOrders)
	staff.Patch("/orders/:id/status", staffHandler.UpdateStatus)

	// Admin
	admin := protected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.Get("/stats", adminHandler.DashboardStats)
	admin.Get("/orders", adminHandler.ListAllOrders)
	admin.Get("/orders/recent", adminHandler.RecentOrders)
	admin.Get("/users", adminHandler.ListAllUsers)
	admin.Put("/users/:id/role", adminHandler.UpdateUserRole)
	admin.Put("/users/:id/locations", adminHandler.AssignStaffLocations)
	admin.Post("/users/:id/loyalty", adminHandler.AdjustLoyalty)
	admin.Post("/loyalty/reconcile", adminHandler.ReconcileLoyalty)
	admin.Get("/settings", adminHandler.ListSettings)
	admin.Put("/settings/:key", adminHandler.UpdateSetting)
	admin.Get("/feedback", adminHandler.ListFeedback)

	productHandler.RegisterProductRoutes(admin.Group("/products"))

	admin.Post("/categories", catalogHandler.CreateCategory)
	admin.Put("/categories/:id", catalogHandler.UpdateCategory)
	admin.Delete("/categories/:id", catalogHandler.DeleteCategory)

	admin.Get("/locations", locationHandler.ListLocations)
	admin.Post("/locations", locationHandler.CreateLocation)
	admin.Put("/locations/:id", locationHandler.UpdateLocation)
	admin.Delete("/locations/:id", locationHandler.DeactivateLocation)

	admin.Get("/promo-codes", promoHandler.ListPromoCodes)
	admin.Post("/promo-codes", promoHandler.CreatePromoCode)
	admin.Put("/promo-codes/:id", promoHandler.UpdatePromoCode)
	admin.Delete("/promo-codes/:id", promoHandler.DeactivatePromoCode)
}
