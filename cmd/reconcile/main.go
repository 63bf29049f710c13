// Command reconcile rebuilds cached loyalty balances from the points ledger.
package main

import (
	"context"

	"github.com/example/bakery/internal/config"
	"github.com/example/bakery/internal/database"
	"github.com/example/bakery/internal/logger"
	"github.com/example/bakery/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	db := database.Connect(cfg.DatabaseURL, cfg.DBLogSQL, log)

	drifts, err := services.NewLoyaltyService(db, log).Reconcile(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("reconcile failed")
	}

	for _, d := range drifts {
		log.Info().
			Str("user_id", d.UserID.String()).
			Int("cached", d.Cached).
			Int("ledger", d.Ledger).
			Msg("balance corrected")
	}
	log.Info().Int("corrected", len(drifts)).Msg("reconcile finished")
}
