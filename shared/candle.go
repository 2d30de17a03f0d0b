package shared

import (
	"fmt"
	"math"
	"time"
)

// Candle represents a fixed-interval OHLCV price record.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate asserts the candle is usable for signal evaluation.
func (c *Candle) Validate() error {
	switch {
	case c.Date.IsZero():
		return fmt.Errorf("%w: candle date cannot be zero", ErrMalformedCandle)
	case math.IsNaN(c.Close) || math.IsInf(c.Close, 0):
		return fmt.Errorf("%w: candle close is not a number", ErrMalformedCandle)
	case c.Close <= 0:
		return fmt.Errorf("%w: candle close must be positive, got %f", ErrMalformedCandle, c.Close)
	case !finite(c.Open) || !finite(c.High) || !finite(c.Low):
		return fmt.Errorf("%w: candle open %f, high %f, low %f must be finite", ErrMalformedCandle,
			c.Open, c.High, c.Low)
	case c.High < c.Low:
		return fmt.Errorf("%w: candle high %f is below low %f", ErrMalformedCandle, c.High, c.Low)
	case c.Close < c.Low || c.Close > c.High:
		return fmt.Errorf("%w: candle close %f is outside [%f, %f]", ErrMalformedCandle, c.Close, c.Low, c.High)
	}

	return nil
}

// finite reports whether the provided value is neither NaN nor infinite.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Closes returns the close prices of the provided candles.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for idx := range candles {
		closes[idx] = candles[idx].Close
	}

	return closes
}
