package exchange

import (
	"context"

	"github.com/dnldd/microbot/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Guard wraps an exchange with trading disabled: market data and balances
// pass through while orders are acknowledged as simulated without a fill.
type Guard struct {
	shared.Exchange
	logger zerolog.Logger
}

var _ shared.Exchange = (*Guard)(nil)

// NewGuard initializes a trading disabled wrapper around the provided exchange.
func NewGuard(exchange shared.Exchange, logger zerolog.Logger) *Guard {
	return &Guard{Exchange: exchange, logger: logger}
}

// PlaceMarketOrder acknowledges the provided order without sending it.
func (g *Guard) PlaceMarketOrder(ctx context.Context, side shared.Side, symbol string, amount float64) (shared.OrderResult, error) {
	result := shared.OrderResult{
		ID:     uuid.New().String(),
		Status: shared.StatusSimulated,
	}

	g.logger.Info().Msgf("trading disabled, %s order for %s %s not sent", side.String(), FormatAmount(amount), symbol)

	return result, nil
}
