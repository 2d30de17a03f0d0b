package indicator

import (
	"errors"
	"fmt"

	"github.com/dnldd/microbot/shared"
)

// Params represents the indicator periods of the strategy.
type Params struct {
	// FastMA is the fast moving average period.
	FastMA int
	// SlowMA is the slow moving average period.
	SlowMA int
	// RSI is the relative strength index period.
	RSI int
	// MACDFast is the fast ema period of the macd line.
	MACDFast int
	// MACDSlow is the slow ema period of the macd line.
	MACDSlow int
	// MACDSignal is the ema period of the macd signal line.
	MACDSignal int
	// Bollinger is the volatility band period.
	Bollinger int
	// BollingerWidth is the volatility band width in standard deviations.
	BollingerWidth float64
	// StochFastK is the raw stochastic lookback.
	StochFastK int
	// StochSlowK is the smoothing period of %K.
	StochSlowK int
	// StochSlowD is the smoothing period of %D.
	StochSlowD int
}

// DefaultParams returns the default strategy periods.
func DefaultParams() Params {
	return Params{
		FastMA:         4,
		SlowMA:         12,
		RSI:            10,
		MACDFast:       8,
		MACDSlow:       18,
		MACDSignal:     5,
		Bollinger:      15,
		BollingerWidth: 1.8,
		StochFastK:     10,
		StochSlowK:     3,
		StochSlowD:     3,
	}
}

// Validate asserts the params are sane.
func (p *Params) Validate() error {
	var errs error

	periods := []struct {
		name  string
		value int
	}{
		{"fast ma", p.FastMA},
		{"slow ma", p.SlowMA},
		{"rsi", p.RSI},
		{"macd fast", p.MACDFast},
		{"macd slow", p.MACDSlow},
		{"macd signal", p.MACDSignal},
		{"bollinger", p.Bollinger},
		{"stochastic fast k", p.StochFastK},
		{"stochastic slow k", p.StochSlowK},
		{"stochastic slow d", p.StochSlowD},
	}

	for _, period := range periods {
		if period.value <= 0 {
			errs = errors.Join(errs, fmt.Errorf("%s period must be positive, got %d", period.name, period.value))
		}
	}

	if p.FastMA >= p.SlowMA {
		errs = errors.Join(errs, fmt.Errorf("fast ma period (%d) must be less than slow ma period (%d)", p.FastMA, p.SlowMA))
	}
	if p.MACDFast >= p.MACDSlow {
		errs = errors.Join(errs, fmt.Errorf("macd fast period (%d) must be less than macd slow period (%d)", p.MACDFast, p.MACDSlow))
	}
	if p.BollingerWidth <= 0 {
		errs = errors.Join(errs, fmt.Errorf("bollinger width must be positive, got %f", p.BollingerWidth))
	}

	return errs
}

// Lookback returns the number of candles needed before every series is defined.
func (p *Params) Lookback() int {
	return max(
		p.SlowMA,
		p.RSI+1,
		p.MACDSlow+p.MACDSignal-1,
		p.Bollinger,
		p.StochFastK+p.StochSlowK+p.StochSlowD-2,
	)
}

// Snapshot represents the indicator values of a single candle.
type Snapshot struct {
	FastMA     float64
	SlowMA     float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	UpperBand  float64
	MiddleBand float64
	LowerBand  float64
	StochK     float64
	StochD     float64
	// Ready is false when a series had no defined value to fill from.
	Ready bool
}

// Provider defines the requirements for computing indicator snapshots.
type Provider interface {
	// Compute returns a snapshot per provided candle.
	Compute(candles []shared.Candle) ([]Snapshot, error)
}

// Calculator computes the strategy indicators over a whole candle window.
type Calculator struct {
	params Params
}

// Ensure the calculator implements the Provider interface.
var _ Provider = (*Calculator)(nil)

// NewCalculator initializes a new indicator calculator.
func NewCalculator(params Params) (*Calculator, error) {
	err := params.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating indicator params: %w", err)
	}

	return &Calculator{params: params}, nil
}

// Compute recomputes every indicator from scratch over the provided candles.
func (c *Calculator) Compute(candles []shared.Candle) ([]Snapshot, error) {
	if len(candles) == 0 {
		return nil, errors.New("no candles provided")
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for idx := range candles {
		closes[idx] = candles[idx].Close
		highs[idx] = candles[idx].High
		lows[idx] = candles[idx].Low
	}

	p := c.params
	fast := SMA(closes, p.FastMA)
	slow := SMA(closes, p.SlowMA)
	rsi := RSI(closes, p.RSI)
	macd, signal := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	upper, middle, lower := Bollinger(closes, p.Bollinger, p.BollingerWidth)
	k, d := Stochastic(highs, lows, closes, p.StochFastK, p.StochSlowK, p.StochSlowD)

	ready := true
	for _, series := range [][]float64{fast, slow, rsi, macd, signal, upper, middle, lower, k, d} {
		if !Fill(series) {
			ready = false
		}
	}

	snapshots := make([]Snapshot, len(candles))
	for idx := range snapshots {
		snapshots[idx] = Snapshot{
			FastMA:     fast[idx],
			SlowMA:     slow[idx],
			RSI:        rsi[idx],
			MACD:       macd[idx],
			MACDSignal: signal[idx],
			UpperBand:  upper[idx],
			MiddleBand: middle[idx],
			LowerBand:  lower[idx],
			StochK:     k[idx],
			StochD:     d[idx],
			Ready:      ready,
		}
	}

	return snapshots, nil
}
