package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/microbot/exchange"
	"github.com/dnldd/microbot/indicator"
	"github.com/dnldd/microbot/shared"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// defaultGameInterval is the tick interval of game sessions.
	defaultGameInterval = time.Second
	// defaultInterval is the tick interval of paper and live sessions.
	defaultInterval = time.Second * 60
	// defaultGameDuration is the time budget of game sessions.
	defaultGameDuration = time.Second * 60
)

// Config is the configuration struct for the service.
type Config struct {
	// Game runs a simulated game session.
	Game bool
	// PaperTrading runs against real quotes with simulated fills when not a game.
	PaperTrading bool
	// TradingEnabled reports whether orders are placed at all.
	TradingEnabled bool
	// ConfirmLive is the explicit confirmation for real-money trading.
	ConfirmLive bool
	// Exchange is the venue name, binance or coinbase.
	Exchange string
	// VenueURL overrides the venue api base url.
	VenueURL string
	// APIKey is the venue api key.
	APIKey string
	// APISecret is the venue api secret.
	APISecret string
	// APIPassphrase is the venue api passphrase, coinbase only.
	APIPassphrase string
	// Symbol is the traded pair.
	Symbol string
	// Timeframe is the candle timeframe.
	Timeframe string
	// Interval is the wait between ticks, zero uses the mode default.
	Interval time.Duration
	// Duration is the session time budget, zero is continuous outside games.
	Duration time.Duration
	// CallTimeout bounds every collaborator call.
	CallTimeout time.Duration
	// PauseRetry is the wait between rechecks of a paused continuous session.
	PauseRetry time.Duration
	// StartingBalance is the starting cash of simulated and paper accounts.
	StartingBalance float64
	// ProfitTarget is the profit percent that ends the session.
	ProfitTarget float64
	FeePercent        float64
	TakeProfitPercent float64
	StopLossPercent   float64
	// MaxDailyTrades is the number of trades per day after which entries are rejected.
	MaxDailyTrades int
	// MaxDailyDrawdownPercent is the decline from the start balance that pauses trading.
	MaxDailyDrawdownPercent float64
	// TradeFraction is the fraction of cash committed by a buy.
	TradeFraction float64
	// MinTradeFloor is the minimum cash required to open a position.
	MinTradeFloor float64
	// RecoveryThreshold is the fraction of the start balance below which recovery applies.
	RecoveryThreshold float64
	// RecoveryMarginPercent is the gain over entry a recovery close waits for.
	RecoveryMarginPercent float64
	FastMA                int
	SlowMA                int
	RSI                   int
	MACDFast              int
	MACDSlow              int
	MACDSignal            int
	Bollinger             int
	BollingerWidth        float64
	StochK                int
	StochSlowK            int
	StochSlowD            int
	// Seed seeds the simulated feed.
	Seed int64
	// ReplayFile is an optional price path replayed in game sessions.
	ReplayFile string
	// JournalEndpoint is the rqlite journal endpoint.
	JournalEndpoint string
	// JournalUser is the rqlite journal user.
	JournalUser string
	// JournalPass is the rqlite journal user pass.
	JournalPass string
	// JournalPath is the sqlite journal file path.
	JournalPath string
	// MetricsAddr is the prometheus listen address, empty disables the server.
	MetricsAddr string
	// ResultsDir is the directory summaries are written to.
	ResultsDir string
	// KeepResults is the number of game summaries retained.
	KeepResults int
	// Tracing exports tick spans to stdout.
	Tracing bool
	// LogLevel is the minimum logged level.
	LogLevel string

	envPath         string
	registeredFlags map[string]bool
}

// defaultConfig returns the configuration defaults applied when neither the
// environment nor the command line set an option.
func defaultConfig() Config {
	params := indicator.DefaultParams()
	return Config{
		Game:                    true,
		PaperTrading:            true,
		TradingEnabled:          true,
		Exchange:                exchange.VenueBinance,
		Symbol:                  "BTC/USDT",
		Timeframe:               shared.OneMinute.String(),
		CallTimeout:             time.Second * 10,
		PauseRetry:              time.Second * 300,
		StartingBalance:         100,
		ProfitTarget:            15,
		FeePercent:              0.1,
		TakeProfitPercent:       2.5,
		StopLossPercent:         1.5,
		MaxDailyTrades:          10,
		MaxDailyDrawdownPercent: 10,
		TradeFraction:           0.95,
		MinTradeFloor:           10,
		RecoveryThreshold:       0.95,
		RecoveryMarginPercent:   3,
		FastMA:                  params.FastMA,
		SlowMA:                  params.SlowMA,
		RSI:                     params.RSI,
		MACDFast:                params.MACDFast,
		MACDSlow:                params.MACDSlow,
		MACDSignal:              params.MACDSignal,
		Bollinger:               params.Bollinger,
		BollingerWidth:          params.BollingerWidth,
		StochK:                  params.StochFastK,
		StochSlowK:              params.StochSlowK,
		StochSlowD:              params.StochSlowD,
		Seed:                    1,
		ResultsDir:              "results",
		KeepResults:             3,
		LogLevel:                zerolog.LevelInfoValue,
	}
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	_, err := shared.ParsePair(cfg.Symbol)
	if err != nil {
		errs = errors.Join(errs, err)
	}
	_, err = shared.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		errs = errors.Join(errs, err)
	}
	if !cfg.Game {
		switch strings.ToLower(cfg.Exchange) {
		case exchange.VenueBinance, exchange.VenueCoinbase:
		default:
			errs = errors.Join(errs, fmt.Errorf("unsupported exchange %q", cfg.Exchange))
		}
	}
	if cfg.Interval < 0 || cfg.Duration < 0 {
		errs = errors.Join(errs, fmt.Errorf("interval and duration cannot be negative"))
	}
	if cfg.CallTimeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("call timeout must be positive, got %s", cfg.CallTimeout))
	}
	if cfg.PauseRetry <= 0 {
		errs = errors.Join(errs, fmt.Errorf("pause retry must be positive, got %s", cfg.PauseRetry))
	}
	if (cfg.Game || cfg.PaperTrading) && cfg.StartingBalance <= 0 {
		errs = errors.Join(errs, fmt.Errorf("starting balance must be positive, got %f", cfg.StartingBalance))
	}
	if cfg.ProfitTarget < 0 {
		errs = errors.Join(errs, fmt.Errorf("profit target cannot be negative, got %f", cfg.ProfitTarget))
	}
	if cfg.JournalEndpoint != "" && cfg.JournalPath != "" {
		errs = errors.Join(errs, fmt.Errorf("journal endpoint and journal path are mutually exclusive"))
	}
	if cfg.ResultsDir == "" {
		errs = errors.Join(errs, fmt.Errorf("results directory cannot be an empty string"))
	}
	if cfg.KeepResults < 1 {
		errs = errors.Join(errs, fmt.Errorf("keep results must be positive, got %d", cfg.KeepResults))
	}
	_, err = zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("parsing log level: %w", err))
	}
	params := cfg.indicatorParams()
	err = params.Validate()
	if err != nil {
		errs = errors.Join(errs, err)
	}

	return errs
}

// indicatorParams returns the configured indicator periods.
func (cfg *Config) indicatorParams() indicator.Params {
	return indicator.Params{
		FastMA:         cfg.FastMA,
		SlowMA:         cfg.SlowMA,
		RSI:            cfg.RSI,
		MACDFast:       cfg.MACDFast,
		MACDSlow:       cfg.MACDSlow,
		MACDSignal:     cfg.MACDSignal,
		Bollinger:      cfg.Bollinger,
		BollingerWidth: cfg.BollingerWidth,
		StochFastK:     cfg.StochK,
		StochSlowK:     cfg.StochSlowK,
		StochSlowD:     cfg.StochSlowD,
	}
}

// timing returns the tick interval and time budget of the provided mode.
func (cfg *Config) timing(mode shared.Mode) (time.Duration, time.Duration) {
	interval, duration := cfg.Interval, cfg.Duration
	if interval == 0 {
		interval = defaultInterval
		if mode == shared.SimulatedGame {
			interval = defaultGameInterval
		}
	}
	if duration == 0 && mode == shared.SimulatedGame {
		duration = defaultGameDuration
	}

	return interval, duration
}

// resolveMode selects the trading mode. A live session missing credentials or
// confirmation is demoted to paper trading and the demotion persisted to the
// env store.
func (cfg *Config) resolveMode(logger zerolog.Logger) (shared.Mode, error) {
	switch {
	case cfg.Game:
		return shared.SimulatedGame, nil
	case cfg.PaperTrading:
		return shared.Paper, nil
	}

	var reason string
	switch {
	case cfg.APIKey == "" || cfg.APISecret == "":
		reason = "missing api credentials"
	case strings.ToLower(cfg.Exchange) == exchange.VenueCoinbase && cfg.APIPassphrase == "":
		reason = "missing api passphrase"
	case !cfg.ConfirmLive:
		reason = "live trading not confirmed"
	default:
		return shared.Live, nil
	}

	logger.Warn().Msgf("demoting live trading to paper trading: %s", reason)
	cfg.PaperTrading = true

	err := persistEnv(cfg.envPath, map[string]string{"papertrading": "true"})
	if err != nil {
		return shared.Paper, fmt.Errorf("persisting paper trading demotion: %w", err)
	}

	return shared.Paper, nil
}

// persistEnv writes the provided values into the env file at path, keeping
// its other entries.
func persistEnv(path string, values map[string]string) error {
	env := map[string]string{}

	_, err := os.Stat(path)
	if err == nil {
		env, err = godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}

	for k, v := range values {
		env[k] = v
	}

	return godotenv.Write(env, path)
}

// registerFlag registers command line arguments of any type and tracks them to
// avoid reregistration. The environment value, when set, overrides the value
// the pointer already holds as the flag default.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	var err error
	switch ptr := value.(type) {
	case *string:
		def := *ptr
		if defValue != "" {
			def = defValue
		}
		flag.StringVar(ptr, name, def, usage)
	case *bool:
		def := *ptr
		if defValue != "" {
			def, err = strconv.ParseBool(defValue)
		}
		flag.BoolVar(ptr, name, def, usage)
	case *int:
		def := *ptr
		if defValue != "" {
			def, err = strconv.Atoi(defValue)
		}
		flag.IntVar(ptr, name, def, usage)
	case *int64:
		def := *ptr
		if defValue != "" {
			def, err = strconv.ParseInt(defValue, 10, 64)
		}
		flag.Int64Var(ptr, name, def, usage)
	case *float64:
		def := *ptr
		if defValue != "" {
			def, err = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(ptr, name, def, usage)
	case *time.Duration:
		def := *ptr
		if defValue != "" {
			def, err = time.ParseDuration(defValue)
		}
		flag.DurationVar(ptr, name, def, usage)
	case *[]string:
		if defValue != "" {
			*ptr = strings.Split(defValue, ",")
		}
		flag.Func(name, usage, func(s string) error {
			*ptr = strings.Split(s, ",")
			return nil
		})
	default:
		return fmt.Errorf("%s: unsupported type %s", name, val.Elem().Type())
	}
	if err != nil {
		return fmt.Errorf("%s: parsing env value %q: %w", name, defValue, err)
	}

	return nil
}

// option pairs a config field with its flag name and usage.
type option struct {
	name  string
	value interface{}
	usage string
}

// options returns every configurable option of the service.
func (cfg *Config) options() []option {
	return []option{
		{"game", &cfg.Game, "run a simulated game session"},
		{"papertrading", &cfg.PaperTrading, "trade on real quotes with simulated fills when not a game"},
		{"tradingenabled", &cfg.TradingEnabled, "place orders at all"},
		{"confirmlive", &cfg.ConfirmLive, "confirm real-money trading"},
		{"exchange", &cfg.Exchange, "the venue, binance or coinbase"},
		{"venueurl", &cfg.VenueURL, "the venue api base url override"},
		{"apikey", &cfg.APIKey, "the venue api key"},
		{"apisecret", &cfg.APISecret, "the venue api secret"},
		{"apipassphrase", &cfg.APIPassphrase, "the venue api passphrase (coinbase)"},
		{"symbol", &cfg.Symbol, "the traded pair"},
		{"timeframe", &cfg.Timeframe, "the candle timeframe, 1m, 5m or 1h"},
		{"interval", &cfg.Interval, "the wait between ticks (1s game, 60s otherwise)"},
		{"duration", &cfg.Duration, "the session time budget (60s game, 0 continuous)"},
		{"calltimeout", &cfg.CallTimeout, "the timeout of every venue call"},
		{"pauseretry", &cfg.PauseRetry, "the wait between rechecks of a paused session"},
		{"startingbalance", &cfg.StartingBalance, "the starting cash of game and paper sessions"},
		{"profittarget", &cfg.ProfitTarget, "the profit percent that ends the session"},
		{"feepercent", &cfg.FeePercent, "the venue fee percent"},
		{"takeprofitpercent", &cfg.TakeProfitPercent, "the take profit distance percent"},
		{"stoplosspercent", &cfg.StopLossPercent, "the stop loss distance percent"},
		{"maxdailytrades", &cfg.MaxDailyTrades, "the daily trade count after which entries are rejected"},
		{"maxdailydrawdownpercent", &cfg.MaxDailyDrawdownPercent, "the drawdown percent that pauses trading"},
		{"tradefraction", &cfg.TradeFraction, "the fraction of cash committed by a buy"},
		{"mintradefloor", &cfg.MinTradeFloor, "the minimum cash required to open a position"},
		{"recoverythreshold", &cfg.RecoveryThreshold, "the balance fraction below which recovery applies"},
		{"recoverymarginpercent", &cfg.RecoveryMarginPercent, "the gain over entry a recovery close waits for"},
		{"fastma", &cfg.FastMA, "the fast moving average period"},
		{"slowma", &cfg.SlowMA, "the slow moving average period"},
		{"rsi", &cfg.RSI, "the rsi period"},
		{"macdfast", &cfg.MACDFast, "the macd fast period"},
		{"macdslow", &cfg.MACDSlow, "the macd slow period"},
		{"macdsignal", &cfg.MACDSignal, "the macd signal period"},
		{"bollinger", &cfg.Bollinger, "the bollinger band period"},
		{"bollingerwidth", &cfg.BollingerWidth, "the bollinger band width in standard deviations"},
		{"stochk", &cfg.StochK, "the stochastic lookback"},
		{"stochslowk", &cfg.StochSlowK, "the stochastic %K smoothing"},
		{"stochslowd", &cfg.StochSlowD, "the stochastic %D smoothing"},
		{"seed", &cfg.Seed, "the simulated feed seed"},
		{"replayfile", &cfg.ReplayFile, "the price path replayed by game sessions"},
		{"journalendpoint", &cfg.JournalEndpoint, "the rqlite journal endpoint"},
		{"journaluser", &cfg.JournalUser, "the rqlite journal user"},
		{"journalpass", &cfg.JournalPass, "the rqlite journal user pass"},
		{"journalpath", &cfg.JournalPath, "the sqlite journal file path"},
		{"metricsaddr", &cfg.MetricsAddr, "the prometheus metrics listen address"},
		{"resultsdir", &cfg.ResultsDir, "the session summary directory"},
		{"keepresults", &cfg.KeepResults, "the number of game summaries retained"},
		{"tracing", &cfg.Tracing, "export tick spans to stdout"},
		{"loglevel", &cfg.LogLevel, "the minimum logged level"},
	}
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}
	cfg.envPath = path

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	for _, opt := range cfg.options() {
		err := cfg.registerFlag(opt.name, opt.value, opt.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
