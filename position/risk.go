package position

import (
	"context"
	"errors"
	"math"

	"github.com/dnldd/microbot/shared"
)

const (
	// drawdownTolerance absorbs float error when comparing drawdown against its limit.
	drawdownTolerance = 1e-9
)

// Action represents the outcome of a tick's risk and execution step.
type Action int

const (
	Hold Action = iota
	Opened
	Closed
	Paused
	Rejected
	Unfilled
)

// String stringifies the provided action.
func (a Action) String() string {
	switch a {
	case Hold:
		return "hold"
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	case Paused:
		return "paused"
	case Rejected:
		return "rejected"
	case Unfilled:
		return "unfilled"
	default:
		return "unknown"
	}
}

// RiskStatus represents the risk limits of the account at a price.
type RiskStatus struct {
	Balance         float64
	DrawdownPercent float64
	Paused          bool
	Recovery        bool
	EntriesAllowed  bool
}

// Decision represents the outcome of evaluating a tick.
type Decision struct {
	Action Action
	Trade  *shared.Trade
	Risk   RiskStatus
}

// CheckRisk evaluates the risk limits of the account at the provided price.
func (c *Controller) CheckRisk(price float64) RiskStatus {
	status := RiskStatus{
		Balance:        c.account.Value(price),
		EntriesAllowed: c.account.TradesToday < c.cfg.MaxDailyTrades,
	}

	start := c.account.SessionStartBalance
	if start <= 0 {
		return status
	}

	status.DrawdownPercent = (status.Balance/start - 1) * 100
	if c.cfg.MaxDailyDrawdownPercent > 0 {
		limit := -math.Abs(c.cfg.MaxDailyDrawdownPercent)
		status.Paused = status.DrawdownPercent <= limit+drawdownTolerance
	}
	status.Recovery = !status.Paused && status.Balance < start*c.cfg.RecoveryThreshold

	return status
}

// Evaluate applies risk gating, the recovery policy and the provided signal to
// the account at the candle's close. Rejected orders are reported through the
// decision; only venue failures are returned as errors.
func (c *Controller) Evaluate(ctx context.Context, candle shared.Candle, signal shared.SignalState) (Decision, error) {
	c.rollDay(candle.Date)

	price := candle.Close
	if c.account.Holdings > 0 && c.position.EntryPrice <= 0 {
		c.Reconcile(c.account.Holdings, price)
	}

	risk := c.CheckRisk(price)
	decision := Decision{Action: Hold, Risk: risk}

	if risk.Paused {
		if !c.paused {
			c.cfg.Logger.Warn().Msgf("pausing: drawdown %.2f%% at price %f reached limit -%.2f%% (balance %f, start %f)",
				risk.DrawdownPercent, price, math.Abs(c.cfg.MaxDailyDrawdownPercent), risk.Balance,
				c.account.SessionStartBalance)
		}
		c.paused = true
		decision.Action = Paused
		return decision, nil
	}
	if c.paused {
		c.cfg.Logger.Info().Msgf("resuming: drawdown %.2f%% at price %f is within limit -%.2f%%",
			risk.DrawdownPercent, price, math.Abs(c.cfg.MaxDailyDrawdownPercent))
		c.paused = false
	}

	if risk.Recovery {
		return c.recover(ctx, candle, decision)
	}

	switch c.position.State {
	case shared.Long:
		if !signal.CloseLong {
			return decision, nil
		}
		trade, err := c.Sell(ctx, candle.Date, price, signal.ExitReasons, false)
		return c.settle(decision, Closed, trade, err)

	default:
		if !signal.OpenLong {
			return decision, nil
		}
		if !c.entryAllowed(risk, price) {
			return decision, nil
		}
		trade, err := c.Buy(ctx, candle.Date, price, signal.EntryReasons, false)
		return c.settle(decision, Opened, trade, err)
	}
}

// entryAllowed reports whether a new position may be opened at the provided price.
func (c *Controller) entryAllowed(risk RiskStatus, price float64) bool {
	if !risk.EntriesAllowed {
		c.cfg.Logger.Warn().Msgf("entry at %f skipped: reached max daily trades %d/%d",
			price, c.account.TradesToday, c.cfg.MaxDailyTrades)
		return false
	}
	if c.account.Cash < c.cfg.MinTradeFloor {
		c.cfg.Logger.Warn().Msgf("entry at %f skipped: cash %f below minimum trade floor %f",
			price, c.account.Cash, c.cfg.MinTradeFloor)
		return false
	}

	return true
}

// recover applies the recovery policy: close an open position once it reaches
// the recovery margin (or its stop loss), or reopen when flat.
func (c *Controller) recover(ctx context.Context, candle shared.Candle, decision Decision) (Decision, error) {
	price := candle.Close

	switch c.position.State {
	case shared.Long:
		entry := c.position.EntryPrice
		target := entry * (1 + c.cfg.RecoveryMarginPercent/100)
		stop := c.cfg.Thresholds.StopLossPrice(entry)
		if price < target && price > stop {
			c.cfg.Logger.Debug().Msgf("recovery holding at %f, target %f, stop %f", price, target, stop)
			return decision, nil
		}

		c.cfg.Logger.Info().Msgf("recovery close at %f (balance %f below %.0f%% of %f)", price,
			decision.Risk.Balance, c.cfg.RecoveryThreshold*100, c.account.SessionStartBalance)
		trade, err := c.Sell(ctx, candle.Date, price, []shared.Reason{shared.RecoveryClose}, true)
		return c.settle(decision, Closed, trade, err)

	default:
		if !c.entryAllowed(decision.Risk, price) {
			return decision, nil
		}

		c.cfg.Logger.Info().Msgf("recovery open at %f (balance %f below %.0f%% of %f)", price,
			decision.Risk.Balance, c.cfg.RecoveryThreshold*100, c.account.SessionStartBalance)
		trade, err := c.Buy(ctx, candle.Date, price, []shared.Reason{shared.RecoveryOpen}, true)
		return c.settle(decision, Opened, trade, err)
	}
}

// settle maps the outcome of an order attempt onto the decision.
func (c *Controller) settle(decision Decision, action Action, trade *shared.Trade, err error) (Decision, error) {
	switch {
	case err == nil:
		decision.Action = action
		decision.Trade = trade
		return decision, nil

	case errors.Is(err, ErrDustHoldings):
		c.cfg.Logger.Info().Msgf("no trade, position flattened: %v", err)
		return decision, nil

	case errors.Is(err, ErrOrderNotFilled):
		c.cfg.Logger.Info().Msgf("no trade: %v", err)
		decision.Action = Unfilled
		return decision, nil

	case errors.Is(err, shared.ErrNoHoldings), errors.Is(err, shared.ErrInsufficientFunds),
		errors.Is(err, shared.ErrInvalidPrice), errors.Is(err, shared.ErrPositionOpen):
		c.rejections++
		c.cfg.Logger.Warn().Msgf("order rejected: %v (cash %f, holdings %f)", err, c.account.Cash, c.account.Holdings)
		decision.Action = Rejected
		return decision, nil

	default:
		return decision, err
	}
}
