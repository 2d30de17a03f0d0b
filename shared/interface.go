package shared

import (
	"context"
)

// Exchange defines the requirements for a market data and execution venue.
type Exchange interface {
	// FetchLatestCandle fetches the most recent candle for the provided market.
	FetchLatestCandle(ctx context.Context, symbol string, timeframe Timeframe) (Candle, error)
	// FetchBalance fetches the available balance of the provided currency.
	FetchBalance(ctx context.Context, currency string) (float64, error)
	// PlaceMarketOrder places a market order for the provided amount of the base asset.
	PlaceMarketOrder(ctx context.Context, side Side, symbol string, amount float64) (OrderResult, error)
}

// HistoryFetcher defines the requirements for fetching historical candles.
type HistoryFetcher interface {
	// FetchCandles fetches up to limit of the most recent candles, oldest first.
	FetchCandles(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]Candle, error)
}

// Pinger defines the requirements for verifying venue connectivity and credentials.
type Pinger interface {
	// Ping asserts the venue is reachable and, when configured, that the credentials are accepted.
	Ping(ctx context.Context) error
}
