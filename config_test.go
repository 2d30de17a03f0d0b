package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/microbot/shared"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "defaults",
			modify:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name:    "malformed symbol",
			modify:  func(cfg *Config) { cfg.Symbol = "BTCUSDT" },
			wantErr: []string{"missing a base/quote separator"},
		},
		{
			name:    "unknown timeframe",
			modify:  func(cfg *Config) { cfg.Timeframe = "2m" },
			wantErr: []string{"unknown timeframe provided: 2m"},
		},
		{
			name: "unsupported exchange outside games",
			modify: func(cfg *Config) {
				cfg.Game = false
				cfg.Exchange = "kraken"
			},
			wantErr: []string{`unsupported exchange "kraken"`},
		},
		{
			name:    "unsupported exchange in games",
			modify:  func(cfg *Config) { cfg.Exchange = "kraken" },
			wantErr: nil,
		},
		{
			name: "non-positive balance and timeouts",
			modify: func(cfg *Config) {
				cfg.StartingBalance = 0
				cfg.CallTimeout = 0
				cfg.PauseRetry = 0
			},
			wantErr: []string{
				"starting balance must be positive",
				"call timeout must be positive",
				"pause retry must be positive",
			},
		},
		{
			name: "both journals",
			modify: func(cfg *Config) {
				cfg.JournalEndpoint = "http://localhost:4001"
				cfg.JournalPath = "journal.db"
			},
			wantErr: []string{"journal endpoint and journal path are mutually exclusive"},
		},
		{
			name: "results retention",
			modify: func(cfg *Config) {
				cfg.ResultsDir = ""
				cfg.KeepResults = 0
			},
			wantErr: []string{
				"results directory cannot be an empty string",
				"keep results must be positive",
			},
		},
		{
			name:    "unknown log level",
			modify:  func(cfg *Config) { cfg.LogLevel = "loud" },
			wantErr: []string{"parsing log level"},
		},
		{
			name:    "invalid indicator periods",
			modify:  func(cfg *Config) { cfg.FastMA = 0 },
			wantErr: []string{"fast"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}

			if err == nil {
				t.Errorf("expected error(s) %v, got none", tt.wantErr)
				return
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(want)) {
					t.Errorf("expected error to contain %q, got %v", want, err)
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	origArgs := os.Args
	defer func() {
		os.Args = origArgs
	}()

	tests := []struct {
		name      string
		env       map[string]string
		dotenv    string
		args      []string
		expectErr bool
		check     func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			args: []string{"cmd"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Game || !cfg.PaperTrading || !cfg.TradingEnabled {
					t.Errorf("expected game, paper trading and trading enabled by default, got %+v", cfg)
				}
				if cfg.Symbol != "BTC/USDT" || cfg.StartingBalance != 100 || cfg.ProfitTarget != 15 {
					t.Errorf("unexpected defaults: %+v", cfg)
				}
				if cfg.CallTimeout != time.Second*10 || cfg.PauseRetry != time.Second*300 {
					t.Errorf("unexpected timeouts: %s, %s", cfg.CallTimeout, cfg.PauseRetry)
				}
			},
		},
		{
			name: "from env",
			env: map[string]string{
				"game":            "false",
				"symbol":          "ETH/USDT",
				"startingbalance": "250.5",
				"maxdailytrades":  "4",
				"interval":        "30s",
				"seed":            "42",
			},
			args: []string{"cmd"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Game {
					t.Errorf("expected game to be disabled")
				}
				if cfg.Symbol != "ETH/USDT" {
					t.Errorf("Symbol: got %v, want ETH/USDT", cfg.Symbol)
				}
				if cfg.StartingBalance != 250.5 {
					t.Errorf("StartingBalance: got %v, want 250.5", cfg.StartingBalance)
				}
				if cfg.MaxDailyTrades != 4 {
					t.Errorf("MaxDailyTrades: got %v, want 4", cfg.MaxDailyTrades)
				}
				if cfg.Interval != time.Second*30 {
					t.Errorf("Interval: got %v, want 30s", cfg.Interval)
				}
				if cfg.Seed != 42 {
					t.Errorf("Seed: got %v, want 42", cfg.Seed)
				}
			},
		},
		{
			name: "flags override env",
			env: map[string]string{
				"symbol": "ETH/USDT",
			},
			args: []string{"cmd", "-symbol=SOL-USDT", "-duration=2m", "-takeprofitpercent=3.5", "-tracing"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Symbol != "SOL-USDT" {
					t.Errorf("Symbol: got %v, want SOL-USDT", cfg.Symbol)
				}
				if cfg.Duration != time.Minute*2 {
					t.Errorf("Duration: got %v, want 2m", cfg.Duration)
				}
				if cfg.TakeProfitPercent != 3.5 {
					t.Errorf("TakeProfitPercent: got %v, want 3.5", cfg.TakeProfitPercent)
				}
				if !cfg.Tracing {
					t.Errorf("expected tracing to be enabled")
				}
			},
		},
		{
			name:   "from dotenv file",
			dotenv: "exchange=coinbase\nkeepresults=5\n",
			args:   []string{"cmd"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Exchange != "coinbase" {
					t.Errorf("Exchange: got %v, want coinbase", cfg.Exchange)
				}
				if cfg.KeepResults != 5 {
					t.Errorf("KeepResults: got %v, want 5", cfg.KeepResults)
				}
			},
		},
		{
			name:      "invalid env value",
			env:       map[string]string{"maxdailytrades": "many"},
			args:      []string{"cmd"},
			expectErr: true,
		},
		{
			name:      "invalid config",
			args:      []string{"cmd", "-timeframe=3m"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), ".env")
			if tt.dotenv != "" {
				err := os.WriteFile(path, []byte(tt.dotenv), 0o644)
				if err != nil {
					t.Fatalf("writing .env file: %v", err)
				}

				values, err := godotenv.Read(path)
				if err != nil {
					t.Fatalf("reading .env file: %v", err)
				}
				t.Cleanup(func() {
					for k := range values {
						os.Unsetenv(k)
					}
				})
			}

			os.Args = tt.args

			cfg := defaultConfig()
			err := loadConfig(&cfg, path)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cfg.envPath != path {
				t.Errorf("envPath: got %v, want %v", cfg.envPath, path)
			}

			tt.check(t, &cfg)
		})
	}
}

func TestRegisterFlag(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	var cfg Config
	var unsupported uint
	if err := cfg.registerFlag("unsupported", &unsupported, "unsupported type"); err == nil {
		t.Errorf("expected an unsupported type error")
	}

	var str string
	if err := cfg.registerFlag("notpointer", str, "not a pointer"); err == nil {
		t.Errorf("expected a non-pointer error")
	}

	// Ensure reregistration is a no-op.
	var value string
	if err := cfg.registerFlag("value", &value, "a value"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := cfg.registerFlag("value", &value, "a value"); err != nil {
		t.Errorf("expected reregistration to be a no-op, got %v", err)
	}
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(cfg *Config)
		want      shared.Mode
		persisted bool
	}{
		{
			name:   "game",
			modify: func(cfg *Config) {},
			want:   shared.SimulatedGame,
		},
		{
			name:   "paper",
			modify: func(cfg *Config) { cfg.Game = false },
			want:   shared.Paper,
		},
		{
			name: "live",
			modify: func(cfg *Config) {
				cfg.Game = false
				cfg.PaperTrading = false
				cfg.APIKey = "key"
				cfg.APISecret = "secret"
				cfg.ConfirmLive = true
			},
			want: shared.Live,
		},
		{
			name: "live without credentials",
			modify: func(cfg *Config) {
				cfg.Game = false
				cfg.PaperTrading = false
				cfg.ConfirmLive = true
			},
			want:      shared.Paper,
			persisted: true,
		},
		{
			name: "live coinbase without passphrase",
			modify: func(cfg *Config) {
				cfg.Game = false
				cfg.PaperTrading = false
				cfg.Exchange = "coinbase"
				cfg.APIKey = "key"
				cfg.APISecret = "secret"
				cfg.ConfirmLive = true
			},
			want:      shared.Paper,
			persisted: true,
		},
		{
			name: "live without confirmation",
			modify: func(cfg *Config) {
				cfg.Game = false
				cfg.PaperTrading = false
				cfg.APIKey = "key"
				cfg.APISecret = "secret"
			},
			want:      shared.Paper,
			persisted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			err := os.WriteFile(path, []byte("symbol=BTC/USDT\n"), 0o644)
			if err != nil {
				t.Fatalf("writing .env file: %v", err)
			}

			cfg := defaultConfig()
			cfg.envPath = path
			tt.modify(&cfg)

			mode, err := cfg.resolveMode(log.Logger)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if mode != tt.want {
				t.Errorf("mode: got %v, want %v", mode, tt.want)
			}

			env, err := godotenv.Read(path)
			if err != nil {
				t.Fatalf("reading .env file: %v", err)
			}
			if env["symbol"] != "BTC/USDT" {
				t.Errorf("expected existing entries to be kept, got %v", env)
			}
			if tt.persisted != (env["papertrading"] == "true") {
				t.Errorf("papertrading persisted: got %v, want %v", env["papertrading"], tt.persisted)
			}
			if tt.persisted && !cfg.PaperTrading {
				t.Errorf("expected paper trading to be enabled after demotion")
			}
		})
	}
}

func TestTiming(t *testing.T) {
	cfg := defaultConfig()

	interval, duration := cfg.timing(shared.SimulatedGame)
	if interval != time.Second || duration != time.Minute {
		t.Errorf("game timing: got %s, %s", interval, duration)
	}

	interval, duration = cfg.timing(shared.Paper)
	if interval != time.Minute || duration != 0 {
		t.Errorf("paper timing: got %s, %s", interval, duration)
	}

	cfg.Interval = time.Second * 5
	cfg.Duration = time.Hour
	interval, duration = cfg.timing(shared.Live)
	if interval != time.Second*5 || duration != time.Hour {
		t.Errorf("configured timing: got %s, %s", interval, duration)
	}
}
