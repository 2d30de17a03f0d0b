package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/microbot/database"
	"github.com/dnldd/microbot/engine"
	"github.com/dnldd/microbot/exchange"
	"github.com/dnldd/microbot/market"
	"github.com/dnldd/microbot/metrics"
	"github.com/dnldd/microbot/position"
	"github.com/dnldd/microbot/shared"
	"github.com/dnldd/microbot/telemetry"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultCallTimeout bounds every collaborator call of a session.
	DefaultCallTimeout = time.Second * 10
	// DefaultPauseRetry is the wait between rechecks of a paused continuous session.
	DefaultPauseRetry = time.Second * 300
	// DefaultWarmupLimit is the number of historical candles requested at startup.
	DefaultWarmupLimit = 200
	// DefaultMinWarmup is the minimum number of warm-up candles of a continuous session.
	DefaultMinWarmup = 100
)

// ErrInsufficientHistory is returned when a continuous session cannot warm its candle window.
var ErrInsufficientHistory = errors.New("insufficient warm-up history")

// Reporter defines the requirements for publishing a session summary.
type Reporter interface {
	// Report publishes the provided summary, returning where it was written.
	Report(summary *shared.Summary) (string, error)
}

// SessionConfig represents the configuration of a trading session.
type SessionConfig struct {
	// Mode is the trading mode of the session.
	Mode shared.Mode
	// Symbol is the traded pair.
	Symbol string
	// Timeframe is the candle timeframe.
	Timeframe shared.Timeframe
	// Interval is the wait between ticks.
	Interval time.Duration
	// Duration is the time budget of the session, zero runs until interrupted.
	Duration time.Duration
	// ProfitTarget is the profit percent that ends the session.
	ProfitTarget float64
	// CallTimeout bounds every collaborator call.
	CallTimeout time.Duration
	// PauseRetry is the wait between rechecks of a paused continuous session.
	PauseRetry time.Duration
	// WarmupLimit is the number of historical candles requested at startup.
	WarmupLimit int
	// MinWarmup is the minimum number of warm-up candles of a continuous session.
	MinWarmup int
	// Adapter is the execution adapter of the session.
	Adapter *exchange.Adapter
	// Engine computes the per-tick signals.
	Engine *engine.Engine
	// Controller is the position and risk controller configuration. The
	// session supplies its exchange, balances, hooks and logger.
	Controller position.ControllerConfig
	// Metrics records the session metrics.
	Metrics *metrics.Metrics
	// Tracer starts the per-tick spans.
	Tracer *telemetry.Tracer
	// Journal persists trades and the session summary, optional.
	Journal database.TradeStorer
	// Reporter publishes the session summary, optional.
	Reporter Reporter
	// JobScheduler runs the daily trade count reset of continuous sessions.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SessionConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.Interval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("tick interval must be positive, got %s", cfg.Interval))
	}
	if cfg.Duration < 0 {
		errs = errors.Join(errs, fmt.Errorf("session duration cannot be negative, got %s", cfg.Duration))
	}
	if cfg.ProfitTarget < 0 {
		errs = errors.Join(errs, fmt.Errorf("profit target cannot be negative, got %f", cfg.ProfitTarget))
	}
	if cfg.CallTimeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("call timeout must be positive, got %s", cfg.CallTimeout))
	}
	if cfg.Mode.Continuous() && cfg.PauseRetry <= 0 {
		errs = errors.Join(errs, fmt.Errorf("pause retry must be positive, got %s", cfg.PauseRetry))
	}
	if cfg.Mode.Continuous() && cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.WarmupLimit < 0 || cfg.MinWarmup < 0 || cfg.MinWarmup > cfg.WarmupLimit {
		errs = errors.Join(errs, fmt.Errorf("warm-up limits must satisfy 0 <= min (%d) <= limit (%d)",
			cfg.MinWarmup, cfg.WarmupLimit))
	}
	if cfg.Adapter == nil || cfg.Adapter.Exchange == nil {
		errs = errors.Join(errs, fmt.Errorf("execution adapter cannot be nil"))
	}
	if cfg.Engine == nil {
		errs = errors.Join(errs, fmt.Errorf("signal engine cannot be nil"))
	}
	if cfg.Metrics == nil {
		errs = errors.Join(errs, fmt.Errorf("metrics cannot be nil"))
	}
	if cfg.Tracer == nil {
		errs = errors.Join(errs, fmt.Errorf("tracer cannot be nil"))
	}

	return errs
}

// Session runs the tick loop of a single trading session. A session owns its
// window, controller and history and is run once.
type Session struct {
	cfg        *SessionConfig
	id         string
	pair       shared.Pair
	window     *market.Window
	controller *position.Controller
	history    *shared.SessionHistory
	resetCh    chan struct{}
	lastPrice  float64
	ticks      int
	skipped    int
	paused     int
	logger     zerolog.Logger
}

// NewSession initializes a new trading session.
func NewSession(cfg *SessionConfig) (*Session, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}

	pair, err := shared.ParsePair(cfg.Symbol)
	if err != nil {
		return nil, err
	}

	window, err := market.NewWindow(market.WindowSize(cfg.Mode), cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("creating candle window: %w", err)
	}

	id := uuid.New().String()
	logger := cfg.Logger.With().Str("component", "session").Str("session", id).Logger()

	s := &Session{
		cfg:     cfg,
		id:      id,
		pair:    pair,
		window:  window,
		history: shared.NewSessionHistory(256),
		resetCh: make(chan struct{}, 1),
		logger:  logger,
	}

	controllerCfg := cfg.Controller
	controllerCfg.Symbol = cfg.Symbol
	controllerCfg.Exchange = cfg.Adapter
	controllerCfg.Notify = func(message string) {
		s.logger.Info().Msg(message)
	}
	controllerCfg.PersistTrade = s.persistTrade
	controllerCfg.Logger = cfg.Logger.With().Str("component", "controller").Str("session", id).Logger()

	s.controller, err = position.NewController(&controllerCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating controller: %w", shared.ErrConfiguration, err)
	}

	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Controller returns the position and risk controller of the session.
func (s *Session) Controller() *position.Controller {
	return s.controller
}

// History returns the recorded account snapshots of the session.
func (s *Session) History() []shared.HistoryEntry {
	return s.history.Entries()
}

// persistTrade journals the provided committed trade.
func (s *Session) persistTrade(trade *shared.Trade) error {
	if s.cfg.Journal == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	return s.cfg.Journal.PersistTrade(ctx, s.id, s.cfg.Symbol, trade)
}

// init pings the venue, warms the candle window and funds the controller from
// the venue balances.
func (s *Session) init(ctx context.Context) error {
	if s.cfg.Adapter.Pinger != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		err := s.cfg.Adapter.Pinger.Ping(callCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("pinging venue: %w", err)
		}
	}

	err := s.warmup(ctx)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	cash, err := s.cfg.Adapter.FetchBalance(callCtx, s.pair.Quote)
	if err != nil {
		return fmt.Errorf("fetching %s balance: %w", s.pair.Quote, err)
	}
	holdings, err := s.cfg.Adapter.FetchBalance(callCtx, s.pair.Base)
	if err != nil {
		return fmt.Errorf("fetching %s balance: %w", s.pair.Base, err)
	}

	var price float64
	last, ok := s.window.Last()
	if ok {
		price = last.Close
		s.lastPrice = price
	}

	s.controller.Fund(cash, holdings, price)
	account := s.controller.Account()
	s.logger.Info().Msgf("starting %s session on %s with %f %s and %f %s (start balance %f)",
		s.cfg.Mode, s.cfg.Symbol, cash, s.pair.Quote, holdings, s.pair.Base, account.SessionStartBalance)

	return nil
}

// warmup fills the candle window with historical candles when the adapter
// supports it.
func (s *Session) warmup(ctx context.Context) error {
	if s.cfg.Adapter.History == nil || s.cfg.WarmupLimit == 0 {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	candles, err := s.cfg.Adapter.History.FetchCandles(callCtx, s.cfg.Symbol, s.cfg.Timeframe, s.cfg.WarmupLimit)
	cancel()
	if err != nil {
		if s.cfg.Mode.Continuous() || shared.IsUnrecoverable(err) {
			return fmt.Errorf("fetching warm-up candles: %w", err)
		}

		s.logger.Warn().Msgf("starting without warm-up candles: %v", err)
		return nil
	}

	for idx := range candles {
		_, err := s.window.Update(candles[idx])
		if err != nil {
			s.logger.Warn().Msgf("skipping warm-up candle %s: %v", candles[idx].Date.Format(shared.DateLayout), err)
		}
	}

	if s.cfg.Mode.Continuous() && s.window.Len() < s.cfg.MinWarmup {
		return fmt.Errorf("%w: loaded %d candles, need at least %d", ErrInsufficientHistory,
			s.window.Len(), s.cfg.MinWarmup)
	}

	s.logger.Info().Msgf("warmed window with %d %s candles", s.window.Len(), s.cfg.Timeframe)

	return nil
}

// scheduleDailyReset registers the day boundary trade count reset of
// continuous sessions. The job only signals the loop.
func (s *Session) scheduleDailyReset() (*gocron.Job, error) {
	return s.cfg.JobScheduler.Every(1).Day().At("00:00").Do(func() {
		select {
		case s.resetCh <- struct{}{}:
		default:
		}
	})
}

// skip records a tick skipped for the provided reason.
func (s *Session) skip(reason string, err error) {
	s.skipped++
	s.cfg.Metrics.SkippedTicks.WithLabelValues(reason).Inc()
	s.logger.Warn().Msgf("skipping tick (%s, last price %f): %v", reason, s.lastPrice, err)
}

// tick runs one price update, signal evaluation and risk step. Only errors
// that end the session are returned.
func (s *Session) tick(ctx context.Context) (position.Action, error) {
	start := time.Now()
	defer func() {
		s.cfg.Metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, span := s.cfg.Tracer.Start(ctx, "tick")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	candle, err := s.cfg.Adapter.FetchLatestCandle(callCtx, s.cfg.Symbol, s.cfg.Timeframe)
	cancel()
	if err != nil {
		if shared.IsUnrecoverable(err) || errors.Is(err, shared.ErrDataExhausted) {
			span.SetStatus(codes.Error, err.Error())
			return position.Hold, err
		}
		span.SetAttributes(attribute.String("skipped", "fetch"))
		s.skip("fetch", err)
		return position.Hold, nil
	}

	_, err = s.window.Update(candle)
	if err != nil {
		span.SetAttributes(attribute.String("skipped", "candle"))
		s.skip("candle", err)
		return position.Hold, nil
	}
	s.lastPrice = candle.Close

	signal, snapshot, err := s.cfg.Engine.ComputeSignals(s.window.Candles(), s.controller.LastBuyPrice())
	if err != nil {
		span.SetAttributes(attribute.String("skipped", "indicators"))
		s.skip("indicators", err)
		return position.Hold, nil
	}

	callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
	decision, err := s.controller.Evaluate(callCtx, candle, signal)
	cancel()
	if err != nil {
		if shared.IsUnrecoverable(err) {
			span.SetStatus(codes.Error, err.Error())
			return position.Hold, err
		}
		span.SetAttributes(attribute.String("skipped", "execution"))
		s.skip("execution", err)
		return position.Hold, nil
	}

	s.ticks++
	account := s.controller.Account()
	value := account.Value(candle.Close)
	s.history.Append(shared.HistoryEntry{
		Date:       candle.Date,
		Cash:       account.Cash,
		Holdings:   account.Holdings,
		Price:      candle.Close,
		TotalValue: value,
		Trade:      decision.Trade != nil,
	})

	s.cfg.Metrics.TicksTotal.Inc()
	s.cfg.Metrics.Price.Set(candle.Close)
	s.cfg.Metrics.AccountValue.Set(value)
	s.cfg.Metrics.DrawdownPercent.Set(decision.Risk.DrawdownPercent)
	switch decision.Action {
	case position.Paused:
		s.paused++
		s.cfg.Metrics.PausedTicks.Inc()
	case position.Rejected:
		s.cfg.Metrics.RejectionsTotal.Inc()
	}
	if decision.Trade != nil {
		s.cfg.Metrics.TradesTotal.WithLabelValues(decision.Trade.Side.String()).Inc()
	}

	span.SetAttributes(
		attribute.Float64("price", candle.Close),
		attribute.Float64("value", value),
		attribute.Bool("ready", snapshot.Ready),
		attribute.Bool("openLong", signal.OpenLong),
		attribute.Bool("closeLong", signal.CloseLong),
		attribute.String("action", decision.Action.String()),
	)

	s.logger.Debug().
		Float64("price", candle.Close).
		Str("action", decision.Action.String()).
		Msgf("tick %d: cash %f, holdings %f, value %f", s.ticks, account.Cash, account.Holdings, value)

	return decision.Action, nil
}

// profitPercent returns the change of the account value from the session
// start balance at the latest price.
func (s *Session) profitPercent() float64 {
	account := s.controller.Account()
	if account.SessionStartBalance <= 0 {
		return 0
	}

	return (account.Value(s.lastPrice)/account.SessionStartBalance - 1) * 100
}

// wait blocks for the provided duration, applying daily resets signalled
// meanwhile. It returns false when the context is cancelled.
func (s *Session) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.resetCh:
			s.controller.ResetDailyTrades()
		case <-timer.C:
			return true
		}
	}
}

// loop ticks until a termination condition is met.
func (s *Session) loop(ctx context.Context, started time.Time) (shared.Termination, error) {
	for {
		if ctx.Err() != nil {
			return shared.Interrupted, nil
		}

		action, err := s.tick(ctx)
		switch {
		case errors.Is(err, shared.ErrDataExhausted):
			s.logger.Info().Msgf("ending session: %v", err)
			return shared.TimeExpired, nil
		case err != nil:
			return shared.Failed, err
		}

		if s.cfg.ProfitTarget > 0 {
			profit := s.profitPercent()
			if profit >= s.cfg.ProfitTarget {
				s.logger.Info().Msgf("profit target reached: %.2f%% >= %.2f%%", profit, s.cfg.ProfitTarget)
				return shared.TargetReached, nil
			}
		}

		if s.cfg.Duration > 0 && time.Since(started) >= s.cfg.Duration {
			return shared.TimeExpired, nil
		}

		delay := s.cfg.Interval
		if action == position.Paused && s.cfg.Mode.Continuous() {
			s.logger.Info().Msgf("trading paused, rechecking in %s", s.cfg.PauseRetry)
			delay = s.cfg.PauseRetry
		}
		if s.cfg.Duration > 0 {
			remaining := s.cfg.Duration - time.Since(started)
			if remaining < delay {
				delay = max(remaining, 0)
			}
		}

		if !s.wait(ctx, delay) {
			return shared.Interrupted, nil
		}
	}
}

// Run runs the session until it terminates and returns its summary. A summary
// is produced for every run, including failed and interrupted ones.
func (s *Session) Run(ctx context.Context) (*shared.Summary, error) {
	started := time.Now()

	var termination shared.Termination
	err := s.init(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		termination = shared.Interrupted
		err = nil
	case err != nil:
		termination = shared.Failed
	default:
		if s.cfg.Mode.Continuous() {
			job, serr := s.scheduleDailyReset()
			if serr != nil {
				return s.finish(started, shared.Failed, fmt.Errorf("scheduling daily reset: %w", serr))
			}
			s.cfg.JobScheduler.StartAsync()
			defer s.cfg.JobScheduler.RemoveByReference(job)
		}

		termination, err = s.loop(ctx, started)
	}

	return s.finish(started, termination, err)
}

// finish builds, reports and journals the session summary.
func (s *Session) finish(started time.Time, termination shared.Termination, runErr error) (*shared.Summary, error) {
	if runErr != nil {
		s.logger.Error().Err(runErr).Msg("session failed")
	}

	account := s.controller.Account()
	summary := &shared.Summary{
		SessionID:       s.id,
		Mode:            s.cfg.Mode.String(),
		Symbol:          s.cfg.Symbol,
		StartedAt:       started.UTC(),
		EndedAt:         time.Now().UTC(),
		Termination:     termination.String(),
		StartingBalance: account.SessionStartBalance,
		ProfitTarget:    s.cfg.ProfitTarget,
		Ticks:           s.ticks,
		SkippedTicks:    s.skipped,
		PausedTicks:     s.paused,
		Rejections:      s.controller.Rejections(),
	}
	summary.Summarize(s.history.Entries())

	if s.cfg.Reporter != nil {
		_, err := s.cfg.Reporter.Report(summary)
		if err != nil {
			s.logger.Error().Msgf("reporting summary: %v", err)
		}
	}

	if s.cfg.Journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
		err := s.cfg.Journal.PersistSummary(ctx, summary)
		cancel()
		if err != nil {
			s.logger.Error().Msgf("journaling summary: %v", err)
		}
	}

	return summary, runErr
}
