package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	namespace = "microbot"
)

// Metrics holds the prometheus metrics of a trading session.
type Metrics struct {
	TicksTotal      prometheus.Counter
	SkippedTicks    *prometheus.CounterVec // labels: reason
	PausedTicks     prometheus.Counter
	TradesTotal     *prometheus.CounterVec // labels: side
	RejectionsTotal prometheus.Counter
	AccountValue    prometheus.Gauge
	Price           prometheus.Gauge
	DrawdownPercent prometheus.Gauge
	TickDuration    prometheus.Histogram
}

// NewMetrics creates the session metrics and registers them with the
// provided registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total evaluated session ticks",
		}),
		SkippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped without evaluation (by reason)",
		}, []string{"reason"}),
		PausedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paused_ticks_total",
			Help:      "Ticks spent paused by the drawdown limit",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Committed trades (by side)",
		}, []string{"side"}),
		RejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Orders rejected before execution",
		}),
		AccountValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_value",
			Help:      "Total account value at the latest price",
		}),
		Price: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price",
			Help:      "Latest close price",
		}),
		DrawdownPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drawdown_percent",
			Help:      "Change of the account value from the session start balance",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Latency of a session tick",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
	}

	collectors := []prometheus.Collector{
		m.TicksTotal,
		m.SkippedTicks,
		m.PausedTicks,
		m.TradesTotal,
		m.RejectionsTotal,
		m.AccountValue,
		m.Price,
		m.DrawdownPercent,
		m.TickDuration,
	}

	var errs error
	for _, c := range collectors {
		errs = errors.Join(errs, reg.Register(c))
	}
	if errs != nil {
		return nil, errs
	}

	return m, nil
}

// Server exposes the registered metrics over http.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a metrics server for the provided gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: time.Second * 5,
		},
		logger: logger,
	}
}

// Run serves metrics until the provided context is cancelled.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Msgf("metrics server listening on %s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Msgf("metrics server: %v", err)
	}
}
