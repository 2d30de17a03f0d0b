package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dnldd/microbot/indicator"
	"github.com/dnldd/microbot/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// neutralSnapshot returns a ready snapshot where no rule holds for a close of 100.
func neutralSnapshot() indicator.Snapshot {
	return indicator.Snapshot{
		FastMA:     100,
		SlowMA:     100,
		RSI:        50,
		MACD:       0,
		MACDSignal: 0,
		UpperBand:  200,
		MiddleBand: 150,
		LowerBand:  50,
		StochK:     50,
		StochD:     50,
		Ready:      true,
	}
}

func candle(price float64) shared.Candle {
	return shared.Candle{
		Date:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}
}

func TestEvaluateEntryRules(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		modify func(s *indicator.Snapshot)
		want   []shared.Reason
	}{
		{
			"no rule holds",
			100,
			func(s *indicator.Snapshot) {},
			nil,
		},
		{
			"fast ma above slow ma with rsi 40",
			100,
			func(s *indicator.Snapshot) { s.FastMA, s.SlowMA, s.RSI = 12, 8, 40 },
			[]shared.Reason{shared.MACrossover},
		},
		{
			"fast ma above slow ma with rsi at ceiling",
			100,
			func(s *indicator.Snapshot) { s.FastMA, s.SlowMA, s.RSI = 12, 8, 52 },
			nil,
		},
		{
			"macd surge",
			100,
			func(s *indicator.Snapshot) { s.MACD, s.MACDSignal, s.RSI = 2.3, 2, 54 },
			[]shared.Reason{shared.MomentumSurge},
		},
		{
			"oversold with rising macd",
			100,
			func(s *indicator.Snapshot) { s.MACD, s.MACDSignal, s.RSI = -1, -1.05, 34 },
			[]shared.Reason{shared.MomentumSurge, shared.OversoldMomentum},
		},
		{
			"close near lower band with low stochastic",
			50.4,
			func(s *indicator.Snapshot) { s.StochK, s.StochD = 20, 25 },
			[]shared.Reason{shared.LowerBandBounce},
		},
		{
			"stochastic crossover",
			100,
			func(s *indicator.Snapshot) { s.StochK, s.StochD = 25, 20 },
			[]shared.Reason{shared.StochasticCrossover},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := neutralSnapshot()
			test.modify(&s)
			c := candle(test.price)

			state := Evaluate(&c, &s, 0, DefaultThresholds())
			assert.Equal(t, state.OpenLong, len(test.want) > 0)
			assert.True(t, cmp.Equal(state.EntryReasons, test.want))
		})
	}
}

func TestEvaluateExitRules(t *testing.T) {
	tests := []struct {
		name         string
		price        float64
		lastBuyPrice float64
		modify       func(s *indicator.Snapshot)
		want         []shared.Reason
	}{
		{
			"no exit with entry unknown",
			100,
			0,
			func(s *indicator.Snapshot) {},
			nil,
		},
		{
			"take profit",
			102.5,
			100,
			func(s *indicator.Snapshot) {},
			[]shared.Reason{shared.TakeProfit},
		},
		{
			"below take profit",
			102.4,
			100,
			func(s *indicator.Snapshot) {},
			nil,
		},
		{
			"stop loss",
			98.4,
			100,
			func(s *indicator.Snapshot) {},
			[]shared.Reason{shared.StopLoss},
		},
		{
			"take profit ignored with entry unknown",
			102.5,
			0,
			func(s *indicator.Snapshot) {},
			nil,
		},
		{
			"ma crossunder",
			100,
			0,
			func(s *indicator.Snapshot) { s.FastMA, s.SlowMA, s.RSI = 8, 12, 56 },
			[]shared.Reason{shared.MACrossunder},
		},
		{
			"overbought",
			100,
			0,
			func(s *indicator.Snapshot) { s.RSI = 66 },
			[]shared.Reason{shared.Overbought},
		},
		{
			"momentum fade above middle band",
			160,
			0,
			func(s *indicator.Snapshot) { s.MACD, s.MACDSignal = 1, 2 },
			[]shared.Reason{shared.MomentumFade},
		},
		{
			"momentum fade below middle band",
			100,
			0,
			func(s *indicator.Snapshot) { s.MACD, s.MACDSignal = 1, 2 },
			nil,
		},
		{
			"upper band touch",
			196.5,
			0,
			func(s *indicator.Snapshot) {},
			[]shared.Reason{shared.UpperBandTouch},
		},
		{
			"stochastic rollover",
			100,
			0,
			func(s *indicator.Snapshot) { s.StochK, s.StochD = 75, 80 },
			[]shared.Reason{shared.StochasticRollover},
		},
		{
			"stop loss with generic bearish condition",
			98,
			100,
			func(s *indicator.Snapshot) { s.RSI = 70 },
			[]shared.Reason{shared.StopLoss, shared.Overbought},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := neutralSnapshot()
			test.modify(&s)
			c := candle(test.price)

			state := Evaluate(&c, &s, test.lastBuyPrice, DefaultThresholds())
			assert.Equal(t, state.CloseLong, len(test.want) > 0)
			assert.True(t, cmp.Equal(state.ExitReasons, test.want))
		})
	}
}

func TestEvaluateNotReady(t *testing.T) {
	// Ensure a snapshot that is not ready never signals.
	s := neutralSnapshot()
	s.FastMA, s.SlowMA, s.RSI = 12, 8, 70
	s.Ready = false
	c := candle(100)

	state := Evaluate(&c, &s, 90, DefaultThresholds())
	assert.True(t, cmp.Equal(state, shared.SignalState{}))
}

func TestThresholds(t *testing.T) {
	thresholds := DefaultThresholds()
	assert.True(t, math.Abs(thresholds.TakeProfitPrice(100)-102.5) < 1e-9)
	assert.True(t, math.Abs(thresholds.StopLossPrice(100)-98.5) < 1e-9)
}

type failingProvider struct{}

func (failingProvider) Compute(candles []shared.Candle) ([]indicator.Snapshot, error) {
	return nil, errors.New("boom")
}

type shortProvider struct{}

func (shortProvider) Compute(candles []shared.Candle) ([]indicator.Snapshot, error) {
	return []indicator.Snapshot{}, nil
}

func TestNewEngine(t *testing.T) {
	// Ensure invalid configs are rejected.
	_, err := NewEngine(&EngineConfig{Thresholds: DefaultThresholds(), Logger: log.Logger})
	assert.Error(t, err)

	calc, err := indicator.NewCalculator(indicator.DefaultParams())
	assert.NoError(t, err)

	_, err = NewEngine(&EngineConfig{Indicators: calc, Logger: log.Logger})
	assert.Error(t, err)

	_, err = NewEngine(&EngineConfig{
		Indicators: calc,
		Thresholds: Thresholds{TakeProfitPercent: 2.5, StopLossPercent: 100},
		Logger:     log.Logger,
	})
	assert.Error(t, err)

	eng, err := NewEngine(&EngineConfig{Indicators: calc, Thresholds: DefaultThresholds(), Logger: log.Logger})
	assert.NoError(t, err)
	assert.NotNil(t, eng)
}

func TestComputeSignals(t *testing.T) {
	calc, err := indicator.NewCalculator(indicator.DefaultParams())
	assert.NoError(t, err)

	eng, err := NewEngine(&EngineConfig{Indicators: calc, Thresholds: DefaultThresholds(), Logger: log.Logger})
	assert.NoError(t, err)

	// Ensure an empty window errors.
	_, _, err = eng.ComputeSignals(nil, 0)
	assert.Error(t, err)

	// Ensure a window too short for every indicator yields no signal.
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	window := make([]shared.Candle, 0, 60)
	for idx := range 5 {
		price := 100 - float64(idx)
		window = append(window, shared.Candle{Date: start.Add(time.Minute * time.Duration(idx)),
			Open: price, High: price + 0.5, Low: price - 0.5, Close: price})
	}
	state, snapshot, err := eng.ComputeSignals(window, 0)
	assert.NoError(t, err)
	assert.False(t, snapshot.Ready)
	assert.False(t, state.Any())

	// Ensure a declining window reads as oversold.
	for idx := 5; idx < 60; idx++ {
		price := 100 - float64(idx)*0.5
		window = append(window, shared.Candle{Date: start.Add(time.Minute * time.Duration(idx)),
			Open: price + 0.2, High: price + 0.5, Low: price - 0.5, Close: price})
	}

	state, snapshot, err = eng.ComputeSignals(window, 0)
	assert.NoError(t, err)
	assert.True(t, snapshot.Ready)
	assert.True(t, snapshot.RSI < oversoldRSI)
	assert.True(t, snapshot.FastMA < snapshot.SlowMA)

	// Ensure evaluating an unchanged window twice is idempotent.
	again, againSnapshot, err := eng.ComputeSignals(window, 0)
	assert.NoError(t, err)
	assert.True(t, cmp.Equal(state, again))
	assert.Equal(t, againSnapshot, snapshot)

	// Ensure a known entry price enables the stop loss.
	state, _, err = eng.ComputeSignals(window, 100)
	assert.NoError(t, err)
	assert.True(t, state.CloseLong)
	assert.Equal(t, state.ExitReasons[0], shared.StopLoss)

	// Ensure provider failures are surfaced.
	failing, err := NewEngine(&EngineConfig{Indicators: failingProvider{}, Thresholds: DefaultThresholds(), Logger: log.Logger})
	assert.NoError(t, err)
	_, _, err = failing.ComputeSignals(window, 0)
	assert.Error(t, err)

	short, err := NewEngine(&EngineConfig{Indicators: shortProvider{}, Thresholds: DefaultThresholds(), Logger: log.Logger})
	assert.NoError(t, err)
	_, _, err = short.ComputeSignals(window, 0)
	assert.Error(t, err)
}
