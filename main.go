package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dnldd/microbot/database"
	"github.com/dnldd/microbot/engine"
	"github.com/dnldd/microbot/exchange"
	"github.com/dnldd/microbot/indicator"
	"github.com/dnldd/microbot/metrics"
	"github.com/dnldd/microbot/position"
	"github.com/dnldd/microbot/report"
	"github.com/dnldd/microbot/service"
	"github.com/dnldd/microbot/shared"
	"github.com/dnldd/microbot/telemetry"
	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// newJournal creates the configured trade journal, nil when none is configured.
func newJournal(ctx context.Context, cfg *Config, logger zerolog.Logger) (database.TradeStorer, error) {
	journalLogger := logger.With().Str("component", "journal").Logger()

	switch {
	case cfg.JournalEndpoint != "":
		return database.NewRqlite(ctx, &database.RqliteConfig{
			Endpoint: cfg.JournalEndpoint,
			User:     cfg.JournalUser,
			Pass:     cfg.JournalPass,
			Logger:   &journalLogger,
		})
	case cfg.JournalPath != "":
		return database.NewSQLite(ctx, &database.SQLiteConfig{
			Path:   cfg.JournalPath,
			Logger: &journalLogger,
		})
	default:
		return nil, nil
	}
}

// run wires the session collaborators and runs a single session.
func run(ctx context.Context, cfg *Config, logger zerolog.Logger) (*shared.Summary, error) {
	mode, err := cfg.resolveMode(logger)
	if err != nil {
		logger.Warn().Msgf("resolving mode: %v", err)
	}

	timeframe, err := shared.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}

	adapter, err := exchange.New(&exchange.Config{
		Mode:            mode,
		Venue:           cfg.Exchange,
		BaseURL:         cfg.VenueURL,
		APIKey:          cfg.APIKey,
		APISecret:       cfg.APISecret,
		APIPassphrase:   cfg.APIPassphrase,
		Symbol:          cfg.Symbol,
		Timeframe:       timeframe,
		TradingEnabled:  cfg.TradingEnabled,
		StartingBalance: cfg.StartingBalance,
		Seed:            cfg.Seed,
		ReplayFile:      cfg.ReplayFile,
		Logger:          logger.With().Str("component", "exchange").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating execution adapter: %w", err)
	}

	calc, err := indicator.NewCalculator(cfg.indicatorParams())
	if err != nil {
		return nil, err
	}

	thresholds := engine.Thresholds{
		TakeProfitPercent: cfg.TakeProfitPercent,
		StopLossPercent:   cfg.StopLossPercent,
	}
	eng, err := engine.NewEngine(&engine.EngineConfig{
		Indicators: calc,
		Thresholds: thresholds,
		Logger:     logger.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating signal engine: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, reg, logger.With().Str("component", "metrics").Logger())
		go srv.Run(ctx)
	}

	tracer, err := telemetry.New(&telemetry.Config{Enabled: cfg.Tracing, ServiceName: "microbot"})
	if err != nil {
		return nil, fmt.Errorf("creating tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := tracer.Shutdown(shutdownCtx)
		if err != nil {
			logger.Error().Msgf("shutting down tracer: %v", err)
		}
	}()

	journal, err := newJournal(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	if journal != nil {
		defer journal.Close()
	}

	reporter, err := report.NewReporter(&report.ReporterConfig{
		Dir:    cfg.ResultsDir,
		Keep:   cfg.KeepResults,
		Logger: logger.With().Str("component", "report").Logger(),
	})
	if err != nil {
		return nil, err
	}

	jobScheduler := gocron.NewScheduler(time.UTC)
	defer jobScheduler.Stop()

	interval, duration := cfg.timing(mode)
	sessionCfg := &service.SessionConfig{
		Mode:         mode,
		Symbol:       cfg.Symbol,
		Timeframe:    timeframe,
		Interval:     interval,
		Duration:     duration,
		ProfitTarget: cfg.ProfitTarget,
		CallTimeout:  cfg.CallTimeout,
		PauseRetry:   cfg.PauseRetry,
		WarmupLimit:  service.DefaultWarmupLimit,
		MinWarmup:    service.DefaultMinWarmup,
		Adapter:      adapter,
		Engine:       eng,
		Controller: position.ControllerConfig{
			Thresholds:              thresholds,
			FeePercent:              cfg.FeePercent,
			TradeFraction:           cfg.TradeFraction,
			MinTradeFloor:           cfg.MinTradeFloor,
			MinOrderAmount:          exchange.MinOrderAmount,
			MaxDailyTrades:          cfg.MaxDailyTrades,
			MaxDailyDrawdownPercent: cfg.MaxDailyDrawdownPercent,
			RecoveryThreshold:       cfg.RecoveryThreshold,
			RecoveryMarginPercent:   cfg.RecoveryMarginPercent,
		},
		Metrics:      m,
		Tracer:       tracer,
		Journal:      journal,
		Reporter:     reporter,
		JobScheduler: jobScheduler,
		Logger:       logger,
	}

	session, err := service.NewSession(sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	logger.Info().Msgf("running %s session %s on %s (%s candles, interval %s, duration %s)",
		mode, session.ID(), cfg.Symbol, timeframe, interval, duration)

	return session.Run(ctx)
}

func main() {
	cfg := defaultConfig()
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Msgf("loading config: %v", err)
		os.Exit(1)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)
	logger := log.With().Str("service", "microbot").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleTermination(ctx, cancel)

	summary, err := run(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("session ended with an error")
	}
	if summary != nil {
		logger.Info().Msgf("session %s ended (%s): %.2f%% profit, %d trades", summary.SessionID,
			summary.Termination, summary.ProfitPercent, summary.Trades)
	}

	cancel()
	if err != nil {
		os.Exit(1)
	}
}
