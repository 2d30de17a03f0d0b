package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dnldd/microbot/shared"
)

const (
	// SQL statements shared by the sqlite dialect journals.
	createTradeTableSQL = "CREATE TABLE IF NOT EXISTS trade (id TEXT PRIMARY KEY, sessionid TEXT, orderid TEXT, symbol TEXT, side INTEGER, price REAL, amount REAL, fee REAL, cash REAL, holdings REAL, reasons TEXT, recovery INTEGER, pnlpercent REAL, createdon INTEGER)"
	createSessionTableSQL = "CREATE TABLE IF NOT EXISTS session (id TEXT PRIMARY KEY, mode TEXT, symbol TEXT, termination TEXT, startingbalance REAL, finalvalue REAL, profitpercent REAL, passed INTEGER, trades INTEGER, rejections INTEGER, startedon INTEGER, endedon INTEGER)"
	createMetadataTableSQL = "CREATE TABLE IF NOT EXISTS metadata (id TEXT PRIMARY KEY, total INTEGER, wins INTEGER, winpercent REAL, losses INTEGER, losspercent REAL, createdon INTEGER)"
	persistTradeSQL = "INSERT INTO trade(id, sessionid, orderid, symbol, side, price, amount, fee, cash, holdings, reasons, recovery, pnlpercent, createdon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	persistSessionSQL = "INSERT OR REPLACE INTO session(id, mode, symbol, termination, startingbalance, finalvalue, profitpercent, passed, trades, rejections, startedon, endedon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)"
	upsertMetadataSQL = "INSERT INTO metadata(id, total, wins, winpercent, losses, losspercent, createdon) VALUES(?,1,?,?,?,?,?) ON CONFLICT(id) DO UPDATE SET total = total + 1, wins = wins + excluded.wins, winpercent = winpercent + excluded.winpercent, losses = losses + excluded.losses, losspercent = losspercent + excluded.losspercent"
	findMetadataSQL = "SELECT total, wins, winpercent, losses, losspercent FROM metadata WHERE id = ?"
)

// TradeStorer defines the requirements for journaling a session.
type TradeStorer interface {
	// PersistTrade stores the provided committed trade of a session.
	PersistTrade(ctx context.Context, sessionID string, symbol string, trade *shared.Trade) error
	// PersistSummary stores the provided session summary.
	PersistSummary(ctx context.Context, summary *shared.Summary) error
	// Close releases the journal's resources.
	Close() error
}

// Metadata represents the aggregated closed trade outcomes of a market for a week.
type Metadata struct {
	Total       int
	Wins        int
	WinPercent  float64
	Losses      int
	LossPercent float64
}

// generateMetadataID generates deterministic ids for metadata using the
// month, week and market of the provided time.
func generateMetadataID(tm time.Time, market string) string {
	month := tm.Month().String()
	week := tm.Day() / 7

	return fmt.Sprintf("%s-Week-%d-%s", month, week, market)
}

// outcome classifies a closing trade as a win or a loss. Opening and break-even
// trades carry no outcome.
func outcome(trade *shared.Trade) (win int, winPercent float64, loss int, lossPercent float64, ok bool) {
	if trade.Side != shared.Sell {
		return 0, 0, 0, 0, false
	}

	switch {
	case trade.PNLPercent > 0:
		return 1, trade.PNLPercent, 0, 0, true
	case trade.PNLPercent < 0:
		return 0, 0, 1, trade.PNLPercent, true
	default:
		return 0, 0, 0, 0, false
	}
}

// tradeParams returns the positional parameters of the trade insert statement.
func tradeParams(sessionID string, symbol string, trade *shared.Trade) []any {
	return []any{trade.ID, sessionID, trade.OrderID, symbol, int(trade.Side), trade.Price, trade.Amount,
		trade.Fee, trade.Cash, trade.Holdings, trade.Reasons, trade.Recovery, trade.PNLPercent,
		trade.Date.Unix()}
}

// summaryParams returns the positional parameters of the session insert statement.
func summaryParams(summary *shared.Summary) []any {
	return []any{summary.SessionID, summary.Mode, summary.Symbol, summary.Termination,
		summary.StartingBalance, summary.FinalValue, summary.ProfitPercent, summary.Passed, summary.Trades,
		summary.Rejections, summary.StartedAt.Unix(), summary.EndedAt.Unix()}
}
