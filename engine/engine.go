package engine

import (
	"errors"
	"fmt"

	"github.com/dnldd/microbot/indicator"
	"github.com/dnldd/microbot/shared"
	"github.com/rs/zerolog"
)

const (
	// maCrossoverMaxRSI is the rsi ceiling for entries on a fast ma crossover.
	maCrossoverMaxRSI = 52
	// momentumSurgeMaxRSI is the rsi ceiling for entries on a macd surge.
	momentumSurgeMaxRSI = 55
	// momentumSurgeFactor is the macd to signal ratio considered a surge.
	momentumSurgeFactor = 1.1
	// oversoldRSI is the rsi floor below which the market is oversold.
	oversoldRSI = 35
	// lowerBandFactor is the proximity to the lower band considered a bounce.
	lowerBandFactor = 1.01
	// stochasticOversold is the %K floor below which the market is oversold.
	stochasticOversold = 30
	// maCrossunderMinRSI is the rsi floor for exits on a fast ma crossunder.
	maCrossunderMinRSI = 55
	// overboughtRSI is the rsi ceiling above which the market is overbought.
	overboughtRSI = 65
	// upperBandFactor is the proximity to the upper band considered a touch.
	upperBandFactor = 0.98
	// stochasticOverbought is the %K ceiling above which the market is overbought.
	stochasticOverbought = 70
)

// Thresholds represents the take profit and stop loss distances of a position.
type Thresholds struct {
	// TakeProfitPercent is the gain over entry that closes a position.
	TakeProfitPercent float64
	// StopLossPercent is the loss under entry that closes a position.
	StopLossPercent float64
}

// DefaultThresholds returns the default take profit and stop loss distances.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TakeProfitPercent: 2.5,
		StopLossPercent:   1.5,
	}
}

// TakeProfitPrice returns the take profit price for the provided entry.
func (t *Thresholds) TakeProfitPrice(entry float64) float64 {
	return entry * (1 + t.TakeProfitPercent/100)
}

// StopLossPrice returns the stop loss price for the provided entry.
func (t *Thresholds) StopLossPrice(entry float64) float64 {
	return entry * (1 - t.StopLossPercent/100)
}

// EngineConfig represents the signal engine configuration.
type EngineConfig struct {
	// Indicators computes the indicator snapshots of a candle window.
	Indicators indicator.Provider
	// Thresholds are the take profit and stop loss distances.
	Thresholds Thresholds
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Indicators == nil {
		errs = errors.Join(errs, fmt.Errorf("indicator provider cannot be nil"))
	}
	if cfg.Thresholds.TakeProfitPercent <= 0 {
		errs = errors.Join(errs, fmt.Errorf("take profit percent must be positive, got %f", cfg.Thresholds.TakeProfitPercent))
	}
	if cfg.Thresholds.StopLossPercent <= 0 || cfg.Thresholds.StopLossPercent >= 100 {
		errs = errors.Join(errs, fmt.Errorf("stop loss percent must be within (0, 100), got %f", cfg.Thresholds.StopLossPercent))
	}

	return errs
}

// Engine maps candle windows to entry and exit signals.
type Engine struct {
	cfg *EngineConfig
}

// NewEngine initializes a new signal engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg}, nil
}

// ComputeSignals evaluates the most recent candle of the provided window. The
// last buy price is the entry price of the open position, zero when unknown.
func (e *Engine) ComputeSignals(window []shared.Candle, lastBuyPrice float64) (shared.SignalState, indicator.Snapshot, error) {
	if len(window) == 0 {
		return shared.SignalState{}, indicator.Snapshot{}, errors.New("candle window is empty")
	}

	snapshots, err := e.cfg.Indicators.Compute(window)
	if err != nil {
		return shared.SignalState{}, indicator.Snapshot{}, fmt.Errorf("computing indicators: %w", err)
	}
	if len(snapshots) != len(window) {
		return shared.SignalState{}, indicator.Snapshot{}, fmt.Errorf("expected %d indicator snapshots, got %d",
			len(window), len(snapshots))
	}

	candle := window[len(window)-1]
	snapshot := snapshots[len(snapshots)-1]
	if !snapshot.Ready {
		e.cfg.Logger.Debug().Msgf("indicators not ready for a %d candle window", len(window))
	}

	return Evaluate(&candle, &snapshot, lastBuyPrice, e.cfg.Thresholds), snapshot, nil
}

// Evaluate applies the entry and exit rules to the provided candle and its
// indicator snapshot. A snapshot that is not ready yields no signal.
func Evaluate(candle *shared.Candle, s *indicator.Snapshot, lastBuyPrice float64, thresholds Thresholds) shared.SignalState {
	var state shared.SignalState
	if !s.Ready {
		return state
	}

	price := candle.Close

	if s.FastMA > s.SlowMA && s.RSI < maCrossoverMaxRSI {
		state.EntryReasons = append(state.EntryReasons, shared.MACrossover)
	}
	if s.MACD > s.MACDSignal*momentumSurgeFactor && s.RSI < momentumSurgeMaxRSI {
		state.EntryReasons = append(state.EntryReasons, shared.MomentumSurge)
	}
	if s.RSI < oversoldRSI && s.MACD > s.MACDSignal {
		state.EntryReasons = append(state.EntryReasons, shared.OversoldMomentum)
	}
	if price < s.LowerBand*lowerBandFactor && s.StochK < stochasticOversold {
		state.EntryReasons = append(state.EntryReasons, shared.LowerBandBounce)
	}
	if s.StochK < stochasticOversold && s.StochK > s.StochD {
		state.EntryReasons = append(state.EntryReasons, shared.StochasticCrossover)
	}

	if lastBuyPrice > 0 {
		if price >= thresholds.TakeProfitPrice(lastBuyPrice) {
			state.ExitReasons = append(state.ExitReasons, shared.TakeProfit)
		}
		if price <= thresholds.StopLossPrice(lastBuyPrice) {
			state.ExitReasons = append(state.ExitReasons, shared.StopLoss)
		}
	}

	state.ExitReasons = append(state.ExitReasons, bearishReasons(price, s)...)

	state.OpenLong = len(state.EntryReasons) > 0
	state.CloseLong = len(state.ExitReasons) > 0

	return state
}

// bearishReasons returns the generic exit conditions that hold regardless of entry.
func bearishReasons(price float64, s *indicator.Snapshot) []shared.Reason {
	var reasons []shared.Reason

	if s.FastMA < s.SlowMA && s.RSI > maCrossunderMinRSI {
		reasons = append(reasons, shared.MACrossunder)
	}
	if s.RSI > overboughtRSI {
		reasons = append(reasons, shared.Overbought)
	}
	if s.MACD < s.MACDSignal && price > s.MiddleBand {
		reasons = append(reasons, shared.MomentumFade)
	}
	if price > s.UpperBand*upperBandFactor {
		reasons = append(reasons, shared.UpperBandTouch)
	}
	if s.StochK > stochasticOverbought && s.StochK < s.StochD {
		reasons = append(reasons, shared.StochasticRollover)
	}

	return reasons
}
