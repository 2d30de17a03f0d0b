package database

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/microbot/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

// RqliteConfig is the configuration for the rqlite journal.
type RqliteConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Rqlite represents a trade journal backed by an rqlite cluster.
type Rqlite struct {
	cfg    *RqliteConfig
	client *rqlitehttp.Client
	httpc  *http.Client
}

// Ensure the rqlite journal implements the TradeStorer interface.
var _ TradeStorer = (*Rqlite)(nil)

// NewRqlite initializes a new rqlite journal connection.
func NewRqlite(ctx context.Context, cfg *RqliteConfig) (*Rqlite, error) {
	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Rqlite{
		cfg:    cfg,
		client: client,
		httpc:  httpc,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a transaction.
func (db *Rqlite) execute(ctx context.Context, statements rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, statements, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Rqlite) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createTradeTableSQL},
		{SQL: createSessionTableSQL},
		{SQL: createMetadataTableSQL},
	})
}

// PersistTrade stores the provided trade and updates the weekly outcome
// metadata of closing trades.
func (db *Rqlite) PersistTrade(ctx context.Context, sessionID string, symbol string, trade *shared.Trade) error {
	statements := rqlitehttp.SQLStatements{
		{SQL: persistTradeSQL, PositionalParams: tradeParams(sessionID, symbol, trade)},
	}

	win, winPercent, loss, lossPercent, ok := outcome(trade)
	switch {
	case ok:
		id := generateMetadataID(trade.Date, symbol)
		statements = append(statements, rqlitehttp.SQLStatements{
			{
				SQL:              upsertMetadataSQL,
				PositionalParams: []any{id, win, winPercent, loss, lossPercent, trade.Date.Unix()},
			},
		}...)
	case trade.Side == shared.Sell:
		db.cfg.Logger.Debug().Msgf("closing trade without outcome for metadata calculations: %s", spew.Sdump(trade))
	}

	err := db.execute(ctx, statements)
	if err != nil {
		return fmt.Errorf("persisting trade %s: %w", trade.ID, err)
	}

	return nil
}

// PersistSummary stores the provided session summary.
func (db *Rqlite) PersistSummary(ctx context.Context, summary *shared.Summary) error {
	err := db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: persistSessionSQL, PositionalParams: summaryParams(summary)},
	})
	if err != nil {
		return fmt.Errorf("persisting session %s: %w", summary.SessionID, err)
	}

	return nil
}

// Close releases the journal's resources.
func (db *Rqlite) Close() error {
	db.httpc.CloseIdleConnections()
	return nil
}
