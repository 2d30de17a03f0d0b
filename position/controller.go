package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dnldd/microbot/engine"
	"github.com/dnldd/microbot/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// recordPrecision is the decimal precision of amounts recorded in trades.
	recordPrecision = 8
)

var (
	// ErrOrderNotFilled is returned when the venue accepted an order without filling it.
	ErrOrderNotFilled = errors.New("order not filled")
	// ErrDustHoldings is returned for sells of holdings below the venue's minimum order amount.
	ErrDustHoldings = errors.New("holdings below minimum order amount")
)

// ControllerConfig represents the position and risk controller configuration.
type ControllerConfig struct {
	// Symbol is the traded pair.
	Symbol string
	// Exchange executes orders.
	Exchange shared.Exchange
	// Thresholds are the take profit and stop loss distances.
	Thresholds engine.Thresholds
	// FeePercent is the proportional venue fee.
	FeePercent float64
	// TradeFraction is the fraction of cash committed by a buy.
	TradeFraction float64
	// MinTradeFloor is the minimum cash required to open a position.
	MinTradeFloor float64
	// MinOrderAmount is the smallest base asset amount the venue accepts.
	// Holdings below it cannot be sold and are not treated as a position.
	MinOrderAmount float64
	// MaxDailyTrades is the number of trades per day after which entries are rejected.
	MaxDailyTrades int
	// MaxDailyDrawdownPercent is the decline from the session start balance that pauses trading.
	MaxDailyDrawdownPercent float64
	// RecoveryThreshold is the fraction of the session start balance below which recovery overrides signals.
	RecoveryThreshold float64
	// RecoveryMarginPercent is the gain over entry a recovery close waits for.
	RecoveryMarginPercent float64
	// StartingBalance is the cash balance at the start of the session.
	StartingBalance float64
	// Notify sends the provided message.
	Notify func(message string)
	// PersistTrade stores the provided committed trade.
	PersistTrade func(trade *shared.Trade) error
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ControllerConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.Exchange == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange cannot be nil"))
	}
	if cfg.FeePercent < 0 || cfg.FeePercent >= 100 {
		errs = errors.Join(errs, fmt.Errorf("fee percent must be within [0, 100), got %f", cfg.FeePercent))
	}
	if cfg.TradeFraction <= 0 || cfg.TradeFraction > 1 {
		errs = errors.Join(errs, fmt.Errorf("trade fraction must be within (0, 1], got %f", cfg.TradeFraction))
	}
	if cfg.MinTradeFloor < 0 {
		errs = errors.Join(errs, fmt.Errorf("minimum trade floor cannot be negative, got %f", cfg.MinTradeFloor))
	}
	if cfg.MinOrderAmount < 0 {
		errs = errors.Join(errs, fmt.Errorf("minimum order amount cannot be negative, got %f", cfg.MinOrderAmount))
	}
	if cfg.MaxDailyTrades <= 0 {
		errs = errors.Join(errs, fmt.Errorf("max daily trades must be positive, got %d", cfg.MaxDailyTrades))
	}
	if cfg.MaxDailyDrawdownPercent < 0 {
		errs = errors.Join(errs, fmt.Errorf("max daily drawdown percent cannot be negative, got %f", cfg.MaxDailyDrawdownPercent))
	}
	if cfg.RecoveryThreshold < 0 || cfg.RecoveryThreshold > 1 {
		errs = errors.Join(errs, fmt.Errorf("recovery threshold must be within [0, 1], got %f", cfg.RecoveryThreshold))
	}
	if cfg.RecoveryMarginPercent < 0 {
		errs = errors.Join(errs, fmt.Errorf("recovery margin percent cannot be negative, got %f", cfg.RecoveryMarginPercent))
	}
	if cfg.StartingBalance < 0 {
		errs = errors.Join(errs, fmt.Errorf("starting balance cannot be negative, got %f", cfg.StartingBalance))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.PersistTrade == nil {
		errs = errors.Join(errs, fmt.Errorf("persist trade function cannot be nil"))
	}

	return errs
}

// Controller owns the account balances and the single position of a session.
// It is not safe for concurrent use; the session loop is its only caller.
type Controller struct {
	cfg        *ControllerConfig
	account    shared.AccountState
	position   shared.Position
	trades     []shared.Trade
	tradeDay   time.Time
	paused     bool
	rejections int
}

// NewController initializes a new position and risk controller.
func NewController(cfg *ControllerConfig) (*Controller, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg: cfg,
		account: shared.AccountState{
			Cash:                cfg.StartingBalance,
			SessionStartBalance: cfg.StartingBalance,
		},
		position: shared.Position{State: shared.Flat},
	}

	return c, nil
}

// Account returns the current account state.
func (c *Controller) Account() shared.AccountState {
	return c.account
}

// Position returns the current position.
func (c *Controller) Position() shared.Position {
	return c.position
}

// LastBuyPrice returns the entry price of the open position, zero when flat.
func (c *Controller) LastBuyPrice() float64 {
	return c.position.EntryPrice
}

// Trades returns the committed trades of the session.
func (c *Controller) Trades() []shared.Trade {
	set := make([]shared.Trade, len(c.trades))
	copy(set, c.trades)
	return set
}

// Rejections returns the number of rejected orders of the session.
func (c *Controller) Rejections() int {
	return c.rejections
}

// dust reports whether the provided holdings are too small to be sold.
func (c *Controller) dust(holdings float64) bool {
	return holdings > 0 && holdings < c.cfg.MinOrderAmount
}

// abandonDust drops unsellable holdings and flattens the position.
func (c *Controller) abandonDust(price float64) {
	c.cfg.Logger.Warn().Msgf("abandoning %f %s (worth %f at %f) below the minimum order amount %f",
		c.account.Holdings, c.cfg.Symbol, c.account.Holdings*price, price, c.cfg.MinOrderAmount)
	c.account.Holdings = 0
	c.position = shared.Position{State: shared.Flat}
}

// Reconcile adopts holdings found at the venue. An open position without a
// recorded entry uses the provided price as its entry. Holdings below the
// minimum order amount are abandoned and leave the position flat.
func (c *Controller) Reconcile(holdings float64, price float64) {
	if c.dust(holdings) {
		c.account.Holdings = holdings
		c.abandonDust(price)
		return
	}
	if holdings <= 0 {
		c.account.Holdings = 0
		c.position = shared.Position{State: shared.Flat}
		return
	}

	c.account.Holdings = holdings
	c.position.State = shared.Long
	c.position.Amount = holdings

	if c.position.EntryPrice <= 0 && price > 0 {
		c.position.EntryPrice = price
		c.cfg.Logger.Warn().Msgf("position of %f %s has no recorded entry, adopting %f as entry",
			holdings, c.cfg.Symbol, price)
	}
}

// Fund sets the balances the session starts with. The session start balance
// is the account value at the provided price and is not rebased afterwards.
func (c *Controller) Fund(cash float64, holdings float64, price float64) {
	c.account.Cash = cash
	c.Reconcile(holdings, price)
	c.account.SessionStartBalance = c.account.Value(price)
}

// ResetDailyTrades resets the daily trade count.
func (c *Controller) ResetDailyTrades() {
	c.cfg.Logger.Info().Msgf("resetting daily trade count (%d/%d)", c.account.TradesToday, c.cfg.MaxDailyTrades)
	c.account.TradesToday = 0
}

// rollDay resets the daily trade count when the provided time starts a new day.
func (c *Controller) rollDay(date time.Time) {
	if c.tradeDay.IsZero() {
		c.tradeDay = date
		return
	}

	if !shared.SameDay(c.tradeDay, date) {
		c.tradeDay = date
		c.ResetDailyTrades()
	}
}

// round rounds the provided value to the recorded precision.
func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(recordPrecision).InexactFloat64()
}

// Buy opens a position with the configured fraction of cash. Nothing changes
// unless the venue confirms a fill.
func (c *Controller) Buy(ctx context.Context, date time.Time, price float64, reasons []shared.Reason, recovery bool) (*shared.Trade, error) {
	switch {
	case c.position.State == shared.Long:
		return nil, fmt.Errorf("%w: holding %f %s", shared.ErrPositionOpen, c.account.Holdings, c.cfg.Symbol)
	case price <= 0 || math.IsNaN(price):
		return nil, fmt.Errorf("%w: buy price %f", shared.ErrInvalidPrice, price)
	case c.account.Cash <= 0:
		return nil, fmt.Errorf("%w: cash balance %f", shared.ErrInsufficientFunds, c.account.Cash)
	}

	spend := c.account.Cash * c.cfg.TradeFraction
	amount := spend / price

	result, err := c.cfg.Exchange.PlaceMarketOrder(ctx, shared.Buy, c.cfg.Symbol, amount)
	if err != nil {
		return nil, fmt.Errorf("placing buy order: %w", err)
	}
	if !result.Filled() {
		return nil, fmt.Errorf("%w: buy order %s has status %s", ErrOrderNotFilled, result.ID, result.Status)
	}

	fillPrice := result.FilledPrice
	if fillPrice <= 0 {
		fillPrice = price
	}

	cost := result.FilledAmount * fillPrice
	if cost > c.account.Cash {
		c.cfg.Logger.Warn().Msgf("buy fill cost %f exceeds cash %f, clamping", cost, c.account.Cash)
		cost = c.account.Cash
	}

	fee := result.FilledAmount * c.cfg.FeePercent / 100
	c.account.Cash -= cost
	c.account.Holdings += result.FilledAmount - fee
	c.account.TradesToday++
	c.position = shared.Position{
		State:      shared.Long,
		EntryPrice: fillPrice,
		Amount:     c.account.Holdings,
	}

	trade := &shared.Trade{
		ID:       uuid.New().String(),
		OrderID:  result.ID,
		Side:     shared.Buy,
		Price:    fillPrice,
		Amount:   round(c.account.Holdings),
		Fee:      round(fee * fillPrice),
		Cash:     round(c.account.Cash),
		Holdings: round(c.account.Holdings),
		Reasons:  shared.JoinReasons(reasons),
		Recovery: recovery,
		Date:     date,
	}

	c.commit(trade)
	return trade, nil
}

// Sell closes the open position in full. Nothing changes unless the venue
// confirms a fill.
func (c *Controller) Sell(ctx context.Context, date time.Time, price float64, reasons []shared.Reason, recovery bool) (*shared.Trade, error) {
	switch {
	case c.account.Holdings <= 0:
		return nil, fmt.Errorf("%w: cannot sell %s", shared.ErrNoHoldings, c.cfg.Symbol)
	case price <= 0 || math.IsNaN(price):
		return nil, fmt.Errorf("%w: sell price %f", shared.ErrInvalidPrice, price)
	case c.dust(c.account.Holdings):
		holdings := c.account.Holdings
		c.abandonDust(price)
		return nil, fmt.Errorf("%w: %f %s", ErrDustHoldings, holdings, c.cfg.Symbol)
	}

	result, err := c.cfg.Exchange.PlaceMarketOrder(ctx, shared.Sell, c.cfg.Symbol, c.account.Holdings)
	if err != nil {
		return nil, fmt.Errorf("placing sell order: %w", err)
	}
	if !result.Filled() {
		return nil, fmt.Errorf("%w: sell order %s has status %s", ErrOrderNotFilled, result.ID, result.Status)
	}

	fillPrice := result.FilledPrice
	if fillPrice <= 0 {
		fillPrice = price
	}

	if residual := c.account.Holdings - result.FilledAmount; residual > 0 {
		c.cfg.Logger.Debug().Msgf("abandoning %f %s below the venue lot size", residual, c.cfg.Symbol)
	}

	proceeds := result.FilledAmount * fillPrice
	fee := proceeds * c.cfg.FeePercent / 100

	var pnl float64
	if c.position.EntryPrice > 0 {
		pnl = (fillPrice/c.position.EntryPrice - 1) * 100
	}

	c.account.Cash += proceeds - fee
	c.account.Holdings = 0
	c.account.TradesToday++
	c.position = shared.Position{State: shared.Flat}

	trade := &shared.Trade{
		ID:         uuid.New().String(),
		OrderID:    result.ID,
		Side:       shared.Sell,
		Price:      fillPrice,
		Amount:     round(result.FilledAmount),
		Fee:        round(fee),
		Cash:       round(c.account.Cash),
		Holdings:   0,
		Reasons:    shared.JoinReasons(reasons),
		Recovery:   recovery,
		PNLPercent: round(pnl),
		Date:       date,
	}

	c.commit(trade)
	return trade, nil
}

// commit records, persists and announces the provided trade.
func (c *Controller) commit(trade *shared.Trade) {
	c.trades = append(c.trades, *trade)

	err := c.cfg.PersistTrade(trade)
	if err != nil {
		c.cfg.Logger.Error().Msgf("persisting trade %s: %v", trade.ID, err)
	}

	msg := fmt.Sprintf("%s %f %s @ %f (%s), cash %f, trades today %d/%d", trade.Side.String(), trade.Amount,
		c.cfg.Symbol, trade.Price, trade.Reasons, trade.Cash, c.account.TradesToday, c.cfg.MaxDailyTrades)
	c.cfg.Notify(msg)
}
