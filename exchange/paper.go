package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/dnldd/microbot/shared"
	"github.com/rs/zerolog"
)

// PaperConfig represents the configuration of the paper trading adapter.
type PaperConfig struct {
	// Quotes supplies real market data.
	Quotes shared.Exchange
	// Symbol is the traded pair.
	Symbol string
	// StartingBalance is the quote balance of the paper account.
	StartingBalance float64
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Paper represents an execution adapter quoting a real venue while filling
// orders locally at the latest close.
type Paper struct {
	cfg     *PaperConfig
	ledger  *ledger
	last    shared.Candle
	lastMtx sync.RWMutex
}

var _ shared.Exchange = (*Paper)(nil)

// NewPaper initializes the paper trading adapter.
func NewPaper(cfg *PaperConfig) (*Paper, error) {
	if cfg.Quotes == nil {
		return nil, fmt.Errorf("%w: paper trading requires a quote source", shared.ErrConfiguration)
	}

	pair, err := shared.ParsePair(cfg.Symbol)
	if err != nil {
		return nil, err
	}

	return &Paper{
		cfg:    cfg,
		ledger: newLedger(pair, cfg.StartingBalance),
	}, nil
}

// FetchLatestCandle fetches the most recent candle from the quote source.
func (p *Paper) FetchLatestCandle(ctx context.Context, symbol string, timeframe shared.Timeframe) (shared.Candle, error) {
	candle, err := p.cfg.Quotes.FetchLatestCandle(ctx, symbol, timeframe)
	if err != nil {
		return shared.Candle{}, err
	}

	p.lastMtx.Lock()
	p.last = candle
	p.lastMtx.Unlock()

	return candle, nil
}

// FetchBalance returns the paper balance of the provided currency.
func (p *Paper) FetchBalance(ctx context.Context, currency string) (float64, error) {
	return p.ledger.balance(currency), nil
}

// PlaceMarketOrder fills the provided order at the latest quoted close.
func (p *Paper) PlaceMarketOrder(ctx context.Context, side shared.Side, symbol string, amount float64) (shared.OrderResult, error) {
	p.lastMtx.RLock()
	price := p.last.Close
	p.lastMtx.RUnlock()

	if price <= 0 {
		return shared.OrderResult{}, fmt.Errorf("paper %s order for %s placed before any quote", side.String(), symbol)
	}

	result := p.ledger.fill(side, amount, price)
	p.cfg.Logger.Info().Msgf("paper %s order %s for %f %s: status %s @ %f", side.String(), result.ID,
		amount, symbol, result.Status, price)

	return result, nil
}
