package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dnldd/microbot/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

const (
	testKey    = "binance-key"
	testSecret = "binance-secret"
)

// validBinanceSignature reports whether the request carries a valid key and signature.
func validBinanceSignature(r *http.Request) bool {
	if r.Header.Get("X-MBX-APIKEY") != testKey {
		return false
	}

	query := r.URL.RawQuery
	idx := strings.LastIndex(query, "&signature=")
	if idx < 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(query[:idx]))
	return hex.EncodeToString(mac.Sum(nil)) == query[idx+len("&signature="):]
}

func binanceServer(t *testing.T, orders *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
			return
		}

		fmt.Fprint(w, `[
			[1709287200000,"60000.10","60010.00","59990.00","60005.50","12.5",1709287259999],
			[1709287260000,"60005.50","60020.00","60000.00","60015.25","8.25",1709287319999]
		]`)
	})
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		if !validBinanceSignature(r) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`)
			return
		}

		fmt.Fprint(w, `{"balances":[{"asset":"BTC","free":"0.50000000","locked":"0.0"},
			{"asset":"USDT","free":"1000.50","locked":"0.0"}]}`)
	})
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !validBinanceSignature(r) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1022,"msg":"Signature for this request is not valid."}`)
			return
		}

		query := r.URL.Query()
		if query.Get("type") != "MARKET" || query.Get("quantity") != "0.0123" || query.Get("side") != "BUY" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1100,"msg":"Illegal characters found in parameter."}`)
			return
		}

		orders.Add(1)
		fmt.Fprint(w, `{"orderId":28,"status":"FILLED","executedQty":"0.01230000","cummulativeQuoteQty":"738.00"}`)
	})

	return httptest.NewServer(mux)
}

func newTestBinance(url string, key string) *Binance {
	b := NewBinance(&BinanceConfig{
		BaseURL:   url,
		APIKey:    key,
		APISecret: testSecret,
		Logger:    log.Logger,
	})
	b.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	return b
}

func TestBinanceMarketData(t *testing.T) {
	var orders atomic.Int32
	server := binanceServer(t, &orders)
	defer server.Close()

	b := newTestBinance(server.URL, "")
	ctx := context.Background()

	// Ensure an unauthenticated ping succeeds.
	err := b.Ping(ctx)
	assert.NoError(t, err)

	// Ensure klines are parsed oldest first.
	candles, err := b.FetchCandles(ctx, "BTC/USDT", shared.OneMinute, 2)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 2)
	assert.Equal(t, candles[0].Date, time.UnixMilli(1709287200000).UTC())
	assert.Equal(t, candles[0].Open, 60000.10)
	assert.Equal(t, candles[0].High, 60010.00)
	assert.Equal(t, candles[0].Low, 59990.00)
	assert.Equal(t, candles[0].Close, 60005.50)
	assert.Equal(t, candles[0].Volume, 12.5)

	// Ensure the latest candle is the newest kline.
	candle, err := b.FetchLatestCandle(ctx, "btc-usdt", shared.OneMinute)
	assert.NoError(t, err)
	assert.Equal(t, candle.Close, 60015.25)

	// Ensure malformed symbols are configuration errors.
	_, err = b.FetchLatestCandle(ctx, "BTCUSDT", shared.OneMinute)
	assert.True(t, errors.Is(err, shared.ErrConfiguration))

	// Ensure signed calls without credentials are configuration errors.
	_, err = b.FetchBalance(ctx, "USDT")
	assert.True(t, errors.Is(err, shared.ErrConfiguration))
}

func TestBinanceAccount(t *testing.T) {
	var orders atomic.Int32
	server := binanceServer(t, &orders)
	defer server.Close()

	ctx := context.Background()
	b := newTestBinance(server.URL, testKey)

	// Ensure a ping verifies credentials.
	err := b.Ping(ctx)
	assert.NoError(t, err)

	// Ensure balances are read by asset.
	balance, err := b.FetchBalance(ctx, "usdt")
	assert.NoError(t, err)
	assert.Equal(t, balance, 1000.50)

	balance, err = b.FetchBalance(ctx, "BTC")
	assert.NoError(t, err)
	assert.Equal(t, balance, 0.5)

	balance, err = b.FetchBalance(ctx, "ETH")
	assert.NoError(t, err)
	assert.Equal(t, balance, float64(0))

	// Ensure market orders are truncated to the lot size and report their fill.
	result, err := b.PlaceMarketOrder(ctx, shared.Buy, "BTC/USDT", 0.012399)
	assert.NoError(t, err)
	assert.Equal(t, result.ID, "28")
	assert.Equal(t, result.Status, shared.StatusFilled)
	assert.Equal(t, result.FilledAmount, 0.0123)
	assert.True(t, approxEqual(result.FilledPrice, 60000))
	assert.Equal(t, orders.Load(), int32(1))

	// Ensure orders below the minimum amount are not sent.
	result, err = b.PlaceMarketOrder(ctx, shared.Buy, "BTC/USDT", 0.00005)
	assert.NoError(t, err)
	assert.Equal(t, result.Status, shared.StatusRejected)
	assert.False(t, result.Filled())
	assert.Equal(t, orders.Load(), int32(1))
}

func TestBinanceAuthentication(t *testing.T) {
	var orders atomic.Int32
	server := binanceServer(t, &orders)
	defer server.Close()

	ctx := context.Background()

	// Ensure rejected credentials are authentication errors.
	b := newTestBinance(server.URL, "wrong-key")
	err := b.Ping(ctx)
	assert.True(t, errors.Is(err, shared.ErrAuthentication))
	assert.True(t, shared.IsUnrecoverable(err))

	// Ensure invalid signatures are authentication errors.
	b = NewBinance(&BinanceConfig{BaseURL: server.URL, APIKey: testKey, APISecret: "wrong-secret", Logger: log.Logger})
	_, err = b.PlaceMarketOrder(ctx, shared.Buy, "BTC/USDT", 0.0123)
	assert.True(t, errors.Is(err, shared.ErrAuthentication))
	assert.Equal(t, orders.Load(), int32(0))
}

func TestBinanceUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	// Ensure venue outages are transient errors.
	b := newTestBinance(server.URL, "")
	_, err := b.FetchLatestCandle(context.Background(), "BTC/USDT", shared.OneMinute)
	assert.Error(t, err)
	assert.False(t, shared.IsUnrecoverable(err))
}

func approxEqual(a float64, b float64) bool {
	diff := a - b
	return diff < 1e-6 && diff > -1e-6
}
