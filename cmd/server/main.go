package main

import (
	"context"
	"errors"
	"log"

	"github.com/guinardelli/sheet-guardian-sub000/internal/server"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/config"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/services"
)

// unavailableOracle stands in until a payment provider is configured.
// Webhook-driven plan changes still work; explicit status re-checks fail.
type unavailableOracle struct{}

func (unavailableOracle) CheckStatus(ctx context.Context, userID string) (*services.PaymentStatus, error) {
	return nil, errors.New("payment provider not configured")
}

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg, unavailableOracle{})

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
