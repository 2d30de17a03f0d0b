package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/dnldd/microbot/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultStartPrice is the starting price of the simulated random walk.
	DefaultStartPrice = 60000
	// DefaultHistorySize is the number of warm-up candles the simulated feed provides.
	DefaultHistorySize = 200
	// walkVolatility is the standard deviation of a walk step relative to the price.
	walkVolatility = 0.001
	// walkUpBias is the probability a walk step is forced upward.
	walkUpBias = 0.55
	// candleSpread widens the high and low of a synthesized candle relative to its open.
	candleSpread = 0.001
	// minWalkPrice is the floor of the random walk.
	minWalkPrice = 0.01
)

// SimulatedConfig represents the configuration of the simulated adapter.
type SimulatedConfig struct {
	// Symbol is the traded pair.
	Symbol string
	// Timeframe is the candle timeframe of the synthesized feed.
	Timeframe shared.Timeframe
	// StartPrice is the first price of the random walk.
	StartPrice float64
	// StartingBalance is the quote balance of the simulated account.
	StartingBalance float64
	// Seed seeds the random walk.
	Seed int64
	// Start is the date of the first streamed candle.
	Start time.Time
	// HistorySize is the number of warm-up candles provided before the first streamed candle.
	HistorySize int
	// ReplayFile is an optional json price path streamed instead of the random walk.
	ReplayFile string
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SimulatedConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.Timeframe.Duration() == 0 {
		errs = errors.Join(errs, fmt.Errorf("unsupported timeframe %s", cfg.Timeframe.String()))
	}
	if cfg.StartPrice < 0 {
		errs = errors.Join(errs, fmt.Errorf("start price cannot be negative, got %f", cfg.StartPrice))
	}
	if cfg.StartingBalance < 0 {
		errs = errors.Join(errs, fmt.Errorf("starting balance cannot be negative, got %f", cfg.StartingBalance))
	}
	if cfg.HistorySize < 0 {
		errs = errors.Join(errs, fmt.Errorf("history size cannot be negative, got %d", cfg.HistorySize))
	}

	return errs
}

// Simulated represents a deterministic execution adapter backed by a seeded
// random walk or a replayed price path. Orders fill at the latest close.
type Simulated struct {
	cfg     *SimulatedConfig
	ledger  *ledger
	rng     *rand.Rand
	history []shared.Candle
	replay  []shared.Candle
	next    int
	price   float64
	clock   time.Time
	mtx     sync.Mutex
}

var _ shared.Exchange = (*Simulated)(nil)
var _ shared.HistoryFetcher = (*Simulated)(nil)

// NewSimulated initializes the simulated adapter.
func NewSimulated(cfg *SimulatedConfig) (*Simulated, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrConfiguration, err)
	}

	pair, err := shared.ParsePair(cfg.Symbol)
	if err != nil {
		return nil, err
	}

	if cfg.StartPrice == 0 {
		cfg.StartPrice = DefaultStartPrice
	}
	if cfg.Start.IsZero() {
		cfg.Start = cfg.Timeframe.Bucket(time.Now().UTC())
	}

	s := &Simulated{
		cfg:    cfg,
		ledger: newLedger(pair, cfg.StartingBalance),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	if cfg.ReplayFile != "" {
		candles, err := LoadReplay(cfg.ReplayFile, cfg.Timeframe)
		if err != nil {
			return nil, err
		}

		warm := min(cfg.HistorySize, len(candles)-1)
		s.history = candles[:warm]
		s.replay = candles[warm:]
		if warm > 0 {
			s.price = s.history[warm-1].Close
		}

		cfg.Logger.Info().Msgf("replaying %d candles of %s from %s after %d warm-up candles",
			len(s.replay), cfg.Symbol, cfg.ReplayFile, warm)

		return s, nil
	}

	s.price = cfg.StartPrice
	s.clock = cfg.Start.Add(-cfg.Timeframe.Duration() * time.Duration(cfg.HistorySize+1))
	s.history = make([]shared.Candle, 0, cfg.HistorySize)
	for range cfg.HistorySize {
		s.history = append(s.history, s.step())
	}

	return s, nil
}

// step advances the random walk by one candle.
func (s *Simulated) step() shared.Candle {
	open := s.price
	change := s.rng.NormFloat64() * open * walkVolatility
	if s.rng.Float64() < walkUpBias {
		change = math.Abs(change)
	}

	closePrice := math.Max(open+change, minWalkPrice)
	s.price = closePrice
	s.clock = s.clock.Add(s.cfg.Timeframe.Duration())

	return shared.Candle{
		Date:   s.clock,
		Open:   open,
		High:   math.Max(closePrice, open*(1+candleSpread)),
		Low:    math.Min(closePrice, open*(1-candleSpread)),
		Close:  closePrice,
		Volume: 5_000_000 + s.rng.Float64()*10_000_000,
	}
}

// FetchLatestCandle advances the feed and returns its newest candle.
func (s *Simulated) FetchLatestCandle(ctx context.Context, symbol string, timeframe shared.Timeframe) (shared.Candle, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.cfg.ReplayFile == "" {
		return s.step(), nil
	}

	if s.next >= len(s.replay) {
		return shared.Candle{}, fmt.Errorf("%w: replayed all %d candles of %s", shared.ErrDataExhausted,
			len(s.replay), s.cfg.ReplayFile)
	}

	candle := s.replay[s.next]
	s.next++
	s.price = candle.Close

	return candle, nil
}

// FetchCandles returns up to limit of the warm-up candles, oldest first.
func (s *Simulated) FetchCandles(ctx context.Context, symbol string, timeframe shared.Timeframe, limit int) ([]shared.Candle, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	start := max(len(s.history)-limit, 0)
	set := make([]shared.Candle, len(s.history)-start)
	copy(set, s.history[start:])

	return set, nil
}

// FetchBalance returns the simulated balance of the provided currency.
func (s *Simulated) FetchBalance(ctx context.Context, currency string) (float64, error) {
	return s.ledger.balance(currency), nil
}

// PlaceMarketOrder fills the provided order at the latest close.
func (s *Simulated) PlaceMarketOrder(ctx context.Context, side shared.Side, symbol string, amount float64) (shared.OrderResult, error) {
	s.mtx.Lock()
	price := s.price
	s.mtx.Unlock()

	result := s.ledger.fill(side, amount, price)
	if !result.Filled() {
		s.cfg.Logger.Warn().Msgf("simulated %s order of %f %s @ %f rejected (%s balance %f)", side.String(),
			amount, symbol, price, s.ledger.pair.Quote, s.ledger.balance(s.ledger.pair.Quote))
	}

	return result, nil
}

// LoadReplay loads a json price path of the provided timeframe. The file holds
// candle arrays keyed by timeframe, each candle carrying a date and ohlcv fields.
func LoadReplay(filepath string, timeframe shared.Timeframe) ([]shared.Candle, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading replay data from file with path '%s': %v",
			shared.ErrConfiguration, filepath, err)
	}

	data := gjson.GetBytes(readb, timeframe.String()).Array()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no %s candles in replay file '%s'", shared.ErrConfiguration,
			timeframe.String(), filepath)
	}

	candles := make([]shared.Candle, 0, len(data))
	for idx := range data {
		dt, err := time.Parse(shared.DateLayout, data[idx].Get("date").String())
		if err != nil {
			return nil, fmt.Errorf("%w: parsing replay candle date: %v", shared.ErrConfiguration, err)
		}

		candle := shared.Candle{
			Date:   dt.UTC(),
			Open:   data[idx].Get("open").Float(),
			High:   data[idx].Get("high").Float(),
			Low:    data[idx].Get("low").Float(),
			Close:  data[idx].Get("close").Float(),
			Volume: data[idx].Get("volume").Float(),
		}

		err = candle.Validate()
		if err != nil {
			return nil, fmt.Errorf("replay candle %d: %w", idx, err)
		}

		candles = append(candles, candle)
	}

	return candles, nil
}
