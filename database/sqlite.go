package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/microbot/shared"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteConfig is the configuration for the sqlite journal.
type SQLiteConfig struct {
	// Path is the journal database file path.
	Path string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// SQLite represents a trade journal backed by a local sqlite file.
type SQLite struct {
	cfg *SQLiteConfig
	db  *sql.DB
	mtx sync.Mutex
}

// Ensure the sqlite journal implements the TradeStorer interface.
var _ TradeStorer = (*SQLite)(nil)

// NewSQLite opens (or creates) a sqlite journal.
func NewSQLite(ctx context.Context, cfg *SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: journal path cannot be an empty string", shared.ErrConfiguration)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	for _, stmt := range []string{createTradeTableSQL, createSessionTableSQL, createMetadataTableSQL} {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrapping journal: %w", err)
		}
	}

	cfg.Logger.Info().Msgf("opened trade journal at %s", cfg.Path)

	return &SQLite{cfg: cfg, db: db}, nil
}

// PersistTrade stores the provided trade and updates the weekly outcome
// metadata of closing trades.
func (s *SQLite) PersistTrade(ctx context.Context, sessionID string, symbol string, trade *shared.Trade) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, persistTradeSQL, tradeParams(sessionID, symbol, trade)...)
	if err != nil {
		return errors.Join(fmt.Errorf("persisting trade %s: %w", trade.ID, err), tx.Rollback())
	}

	win, winPercent, loss, lossPercent, ok := outcome(trade)
	switch {
	case ok:
		id := generateMetadataID(trade.Date, symbol)
		_, err = tx.ExecContext(ctx, upsertMetadataSQL, id, win, winPercent, loss, lossPercent, trade.Date.Unix())
		if err != nil {
			return errors.Join(fmt.Errorf("updating metadata %s: %w", id, err), tx.Rollback())
		}
	case trade.Side == shared.Sell:
		s.cfg.Logger.Debug().Msgf("closing trade without outcome for metadata calculations: %s", spew.Sdump(trade))
	}

	return tx.Commit()
}

// PersistSummary stores the provided session summary.
func (s *SQLite) PersistSummary(ctx context.Context, summary *shared.Summary) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, err := s.db.ExecContext(ctx, persistSessionSQL, summaryParams(summary)...)
	if err != nil {
		return fmt.Errorf("persisting session %s: %w", summary.SessionID, err)
	}

	return nil
}

// FetchMetadata returns the outcome metadata of the provided market for the week of the provided time.
func (s *SQLite) FetchMetadata(ctx context.Context, tm time.Time, market string) (*Metadata, error) {
	var md Metadata
	row := s.db.QueryRowContext(ctx, findMetadataSQL, generateMetadataID(tm, market))
	err := row.Scan(&md.Total, &md.Wins, &md.WinPercent, &md.Losses, &md.LossPercent)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &md, nil
	case err != nil:
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}

	return &md, nil
}

// FetchTrades returns the journaled trades of the provided session, oldest first.
func (s *SQLite) FetchTrades(ctx context.Context, sessionID string) ([]shared.Trade, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, orderid, side, price, amount, fee, cash, holdings, reasons, recovery, pnlpercent, createdon FROM trade WHERE sessionid = ? ORDER BY createdon, rowid", sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetching trades: %w", err)
	}
	defer rows.Close()

	var trades []shared.Trade
	for rows.Next() {
		var trade shared.Trade
		var side int
		var createdOn int64
		err := rows.Scan(&trade.ID, &trade.OrderID, &side, &trade.Price, &trade.Amount, &trade.Fee, &trade.Cash,
			&trade.Holdings, &trade.Reasons, &trade.Recovery, &trade.PNLPercent, &createdOn)
		if err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}

		trade.Side = shared.Side(side)
		trade.Date = time.Unix(createdOn, 0).UTC()
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// Close releases the journal's resources.
func (s *SQLite) Close() error {
	return s.db.Close()
}
