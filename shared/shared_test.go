package shared

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

func TestCandleValidate(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		candle  Candle
		wantErr bool
	}{
		{
			"valid candle",
			Candle{Date: now, Open: 10, High: 12, Low: 9, Close: 11},
			false,
		},
		{
			"zero date",
			Candle{Open: 10, High: 12, Low: 9, Close: 11},
			true,
		},
		{
			"nan close",
			Candle{Date: now, Open: 10, High: 12, Low: 9, Close: math.NaN()},
			true,
		},
		{
			"non-positive close",
			Candle{Date: now, Open: 10, High: 12, Low: 9, Close: 0},
			true,
		},
		{
			"high below low",
			Candle{Date: now, Open: 10, High: 8, Low: 9, Close: 10},
			true,
		},
		{
			"nan high and low",
			Candle{Date: now, Open: 10, High: math.NaN(), Low: math.NaN(), Close: 100},
			true,
		},
		{
			"infinite open",
			Candle{Date: now, Open: math.Inf(1), High: 100, Low: 100, Close: 100},
			true,
		},
		{
			"close above high",
			Candle{Date: now, Open: 45, High: 50, Low: 40, Close: 100},
			true,
		},
		{
			"close below low",
			Candle{Date: now, Open: 45, High: 50, Low: 40, Close: 39},
			true,
		},
		{
			"zero high and low",
			Candle{Date: now, Open: 100, High: 0, Low: 0, Close: 100},
			true,
		},
		{
			"flat candle",
			Candle{Date: now, Open: 100, High: 100, Low: 100, Close: 100},
			false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.candle.Validate()
			if test.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedCandle))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCloses(t *testing.T) {
	candles := []Candle{{Close: 1}, {Close: 2}, {Close: 3}}
	assert.True(t, cmp.Equal(Closes(candles), []float64{1, 2, 3}))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, SimulatedGame.String(), "game")
	assert.Equal(t, Paper.String(), "paper")
	assert.Equal(t, Live.String(), "live")
	assert.Equal(t, Mode(9).String(), "unknown")

	// Ensure only paper and live sessions follow the market clock.
	assert.False(t, SimulatedGame.Continuous())
	assert.True(t, Paper.Continuous())
	assert.True(t, Live.Continuous())
}

func TestParsePair(t *testing.T) {
	pair, err := ParsePair("btc/usdt")
	assert.NoError(t, err)
	assert.Equal(t, pair, Pair{Base: "BTC", Quote: "USDT"})
	assert.Equal(t, pair.String(), "BTC/USDT")

	pair, err = ParsePair("BTC-USD")
	assert.NoError(t, err)
	assert.Equal(t, pair, Pair{Base: "BTC", Quote: "USD"})

	// Ensure malformed symbols are configuration errors.
	for _, symbol := range []string{"BTCUSDT", "BTC/", "/USDT", "A/B/C"} {
		_, err = ParsePair(symbol)
		assert.True(t, errors.Is(err, ErrConfiguration))
	}
}

func TestOrderResultFilled(t *testing.T) {
	filled := OrderResult{Status: StatusFilled, FilledAmount: 1, FilledPrice: 10}
	assert.True(t, filled.Filled())

	simulated := OrderResult{Status: StatusSimulated, FilledAmount: 1}
	assert.False(t, simulated.Filled())

	empty := OrderResult{Status: StatusFilled}
	assert.False(t, empty.Filled())
}

func TestIsUnrecoverable(t *testing.T) {
	assert.True(t, IsUnrecoverable(fmt.Errorf("fetching balance: %w", ErrAuthentication)))
	assert.True(t, IsUnrecoverable(ErrConfiguration))
	assert.False(t, IsUnrecoverable(errors.New("timeout")))
	assert.False(t, IsUnrecoverable(nil))
}

func TestSessionHistory(t *testing.T) {
	history := NewSessionHistory(2)

	// Ensure an empty history has no last entry.
	_, ok := history.Last()
	assert.False(t, ok)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	history.Append(HistoryEntry{Date: now, Cash: 100, Price: 10, TotalValue: 100})
	history.Append(HistoryEntry{Date: now.Add(time.Minute), Cash: 5, Holdings: 9.5, Price: 10, TotalValue: 100, Trade: true})
	assert.Equal(t, history.Len(), 2)

	last, ok := history.Last()
	assert.True(t, ok)
	assert.Equal(t, last.Holdings, 9.5)

	// Ensure entries are returned as a copy.
	entries := history.Entries()
	entries[0].Cash = 0
	assert.Equal(t, history.Entries()[0].Cash, float64(100))
}

func TestSummarize(t *testing.T) {
	// Ensure an empty history reports the starting balance as every value bound.
	summary := Summary{StartingBalance: 100, ProfitTarget: 15}
	summary.Summarize(nil)
	assert.Equal(t, summary.HighestValue, float64(100))
	assert.Equal(t, summary.LowestValue, float64(100))
	assert.Equal(t, summary.FinalValue, float64(100))
	assert.False(t, summary.Passed)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []HistoryEntry{
		{Date: now, Cash: 100, Price: 10, TotalValue: 100},
		{Date: now, Cash: 5, Holdings: 9.5, Price: 9, TotalValue: 90.5, Trade: true},
		{Date: now, Cash: 5, Holdings: 9.5, Price: 13, TotalValue: 128.5},
		{Date: now, Cash: 120, Price: 12.5, TotalValue: 120, Trade: true},
	}

	summary = Summary{StartingBalance: 100, ProfitTarget: 15}
	summary.Summarize(entries)
	assert.Equal(t, summary.HighestValue, 128.5)
	assert.Equal(t, summary.LowestValue, 90.5)
	assert.Equal(t, summary.HighestPrice, float64(13))
	assert.Equal(t, summary.LowestPrice, float64(9))
	assert.Equal(t, summary.FinalCash, float64(120))
	assert.Equal(t, summary.FinalValue, float64(120))
	assert.Equal(t, summary.Trades, 2)
	assert.True(t, math.Abs(summary.ProfitPercent-20) < 1e-9)
	assert.True(t, summary.Passed)
}

func TestTerminationString(t *testing.T) {
	assert.Equal(t, TargetReached.String(), "target reached")
	assert.Equal(t, TimeExpired.String(), "time expired")
	assert.Equal(t, Interrupted.String(), "interrupted")
	assert.Equal(t, Failed.String(), "failed")
	assert.Equal(t, Termination(9).String(), "unknown")
}
