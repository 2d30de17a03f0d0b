package exchange

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dnldd/microbot/shared"
	"github.com/rs/zerolog"
)

const (
	VenueBinance  = "binance"
	VenueCoinbase = "coinbase"
)

// Config represents the execution adapter selection configuration.
type Config struct {
	// Mode is the trading mode of the session.
	Mode shared.Mode
	// Venue is the exchange name, binance or coinbase.
	Venue string
	// BaseURL overrides the venue api base url.
	BaseURL string
	// APIKey is the venue api key.
	APIKey string
	// APISecret is the venue api secret.
	APISecret string
	// APIPassphrase is the venue api passphrase, coinbase only.
	APIPassphrase string
	// Symbol is the traded pair.
	Symbol string
	// Timeframe is the candle timeframe.
	Timeframe shared.Timeframe
	// TradingEnabled reports whether orders are sent at all.
	TradingEnabled bool
	// StartingBalance is the quote balance of simulated and paper accounts.
	StartingBalance float64
	// Seed seeds the simulated random walk.
	Seed int64
	// ReplayFile is an optional price path replayed by the simulated adapter.
	ReplayFile string
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.Mode.Continuous() {
		switch strings.ToLower(cfg.Venue) {
		case VenueBinance, VenueCoinbase:
		default:
			errs = errors.Join(errs, fmt.Errorf("unsupported venue %q", cfg.Venue))
		}
	}
	if cfg.Mode == shared.Live && (cfg.APIKey == "" || cfg.APISecret == "") {
		errs = errors.Join(errs, fmt.Errorf("live trading requires api credentials"))
	}
	if cfg.Mode == shared.Live && strings.ToLower(cfg.Venue) == VenueCoinbase && cfg.APIPassphrase == "" {
		errs = errors.Join(errs, fmt.Errorf("live coinbase trading requires an api passphrase"))
	}

	return errs
}

// Adapter bundles an execution adapter with its optional capabilities.
type Adapter struct {
	shared.Exchange
	// History fetches warm-up candles, nil when unsupported.
	History shared.HistoryFetcher
	// Pinger verifies connectivity and credentials, nil when unsupported.
	Pinger shared.Pinger
}

// venue initializes the named venue adapter.
func venue(cfg *Config, authenticated bool) (*Adapter, error) {
	key, secret, passphrase := "", "", ""
	if authenticated {
		key, secret, passphrase = cfg.APIKey, cfg.APISecret, cfg.APIPassphrase
	}

	switch strings.ToLower(cfg.Venue) {
	case VenueBinance:
		b := NewBinance(&BinanceConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    key,
			APISecret: secret,
			Logger:    cfg.Logger,
		})
		return &Adapter{Exchange: b, History: b, Pinger: b}, nil

	case VenueCoinbase:
		c := NewCoinbase(&CoinbaseConfig{
			BaseURL:       cfg.BaseURL,
			APIKey:        key,
			APISecret:     secret,
			APIPassphrase: passphrase,
			Logger:        cfg.Logger,
		})
		return &Adapter{Exchange: c, History: c, Pinger: c}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported venue %q", shared.ErrConfiguration, cfg.Venue)
	}
}

// New initializes the execution adapter of the configured mode. Sessions with
// trading disabled get their orders acknowledged without being sent.
func New(cfg *Config) (*Adapter, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrConfiguration, err)
	}

	var adapter *Adapter

	switch cfg.Mode {
	case shared.SimulatedGame:
		sim, err := NewSimulated(&SimulatedConfig{
			Symbol:          cfg.Symbol,
			Timeframe:       cfg.Timeframe,
			StartingBalance: cfg.StartingBalance,
			Seed:            cfg.Seed,
			HistorySize:     DefaultHistorySize,
			ReplayFile:      cfg.ReplayFile,
			Logger:          cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		adapter = &Adapter{Exchange: sim, History: sim}

	case shared.Paper:
		quotes, err := venue(cfg, false)
		if err != nil {
			return nil, err
		}
		paper, err := NewPaper(&PaperConfig{
			Quotes:          quotes.Exchange,
			Symbol:          cfg.Symbol,
			StartingBalance: cfg.StartingBalance,
			Logger:          cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		adapter = &Adapter{Exchange: paper, History: quotes.History, Pinger: quotes.Pinger}

	case shared.Live:
		adapter, err = venue(cfg, true)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: unknown mode %s", shared.ErrConfiguration, cfg.Mode.String())
	}

	if !cfg.TradingEnabled {
		cfg.Logger.Warn().Msgf("trading disabled, %s orders will not be sent", cfg.Mode.String())
		adapter.Exchange = NewGuard(adapter.Exchange, cfg.Logger)
	}

	return adapter, nil
}
