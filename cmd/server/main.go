package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/bakery/internal/config"
	"github.com/example/bakery/internal/database"
	"github.com/example/bakery/internal/handlers"
	"github.com/example/bakery/internal/logger"
	"github.com/example/bakery/internal/routes"
	"github.com/example/bakery/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	db := database.Connect(cfg.DatabaseURL, cfg.DBLogSQL, log)
	if err := database.SeedSettings(db, cfg.LoyaltyPointsPerPound); err != nil {
		log.Fatal().Err(err).Msg("failed to seed settings")
	}

	loyalty := services.NewLoyaltyService(db, log)
	feedback := services.NewFeedbackService(db)

	notifiers := services.Notifiers{
		services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, cfg.Currency, log),
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := services.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaOrderTopic, log)
		defer writer.Close()
		notifiers = append(notifiers, services.NewKafkaPublisher(writer))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaOrderTopic).Msg("publishing order events to kafka")
	}

	var idempotency services.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, idempotency keys disabled")
		} else {
			idempotency = services.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
		}
	}

	orders := services.NewOrderService(db, loyalty, notifiers, services.OrderSettings{
		Currency:              cfg.Currency,
		DefaultPointsPerPound: cfg.LoyaltyPointsPerPound,
	}, log)

	app := fiber.New(fiber.Config{
		AppName:      "Bakery Backend",
		ErrorHandler: handlers.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, db, cfg, routes.Deps{
		Orders:      orders,
		Loyalty:     loyalty,
		Feedback:    feedback,
		Idempotency: idempotency,
		Log:         log,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("fiber.Listen error")
	}

	orders.Wait()
}
