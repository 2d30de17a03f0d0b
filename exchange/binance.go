package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/microbot/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// BinanceURL is the binance spot api base url.
	BinanceURL = "https://api.binance.com"
	// binanceMaxKlines is the most klines binance returns per request.
	binanceMaxKlines = 1000
)

// binanceAuthCodes are the binance error codes signalling rejected credentials.
var binanceAuthCodes = map[int64]struct{}{
	-1022: {}, // invalid signature
	-2014: {}, // api key format invalid
	-2015: {}, // invalid api key, ip, or permissions
}

// BinanceConfig represents the configuration of the binance adapter.
type BinanceConfig struct {
	// BaseURL is the api base url.
	BaseURL string
	// APIKey is the binance api key. Quotes do not require credentials.
	APIKey string
	// APISecret is the binance api secret.
	APISecret string
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Binance represents the binance spot execution adapter.
type Binance struct {
	cfg    *BinanceConfig
	client *restClient
	now    func() time.Time
}

var _ shared.Exchange = (*Binance)(nil)
var _ shared.HistoryFetcher = (*Binance)(nil)
var _ shared.Pinger = (*Binance)(nil)

// NewBinance initializes the binance adapter.
func NewBinance(cfg *BinanceConfig) *Binance {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BinanceURL
	}

	return &Binance{
		cfg:    cfg,
		client: newRestClient(strings.TrimSuffix(baseURL, "/")),
		now:    time.Now,
	}
}

// binanceSymbol returns the binance symbol of the provided pair.
func binanceSymbol(symbol string) (string, shared.Pair, error) {
	pair, err := shared.ParsePair(symbol)
	if err != nil {
		return "", pair, err
	}

	return pair.Base + pair.Quote, pair, nil
}

// sign appends the timestamp and hex hmac-sha256 signature of the provided parameters.
func (b *Binance) sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(b.cfg.APISecret))
	mac.Write([]byte(query))

	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

// signed sends a signed request for the provided path.
func (b *Binance) signed(ctx context.Context, method string, path string, params url.Values) (*gjson.Result, error) {
	if b.cfg.APIKey == "" || b.cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: binance credentials are not configured", shared.ErrConfiguration)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.client.formURL(path, b.sign(params)), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", b.cfg.APIKey)

	return b.mapError(b.client.do(req))
}

// mapError classifies binance credential error codes as authentication failures.
func (b *Binance) mapError(data *gjson.Result, err error) (*gjson.Result, error) {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		code := gjson.GetBytes(statusErr.body, "code").Int()
		if _, ok := binanceAuthCodes[code]; ok {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthentication, err)
		}
	}

	return data, err
}

// Ping asserts binance is reachable and the configured credentials are accepted.
func (b *Binance) Ping(ctx context.Context) error {
	_, err := b.client.get(ctx, "/api/v3/ping", "")
	if err != nil {
		return fmt.Errorf("pinging binance: %w", err)
	}

	if b.cfg.APIKey == "" {
		return nil
	}

	_, err = b.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return fmt.Errorf("verifying binance credentials: %w", err)
	}

	b.cfg.Logger.Info().Msg("binance credentials verified")

	return nil
}

// parseKlines parses binance kline rows into candles.
func parseKlines(rows []gjson.Result) []shared.Candle {
	candles := make([]shared.Candle, 0, len(rows))
	for idx := range rows {
		row := rows[idx].Array()
		if len(row) < 6 {
			continue
		}

		candles = append(candles, shared.Candle{
			Date:   time.UnixMilli(row[0].Int()).UTC(),
			Open:   row[1].Float(),
			High:   row[2].Float(),
			Low:    row[3].Float(),
			Close:  row[4].Float(),
			Volume: row[5].Float(),
		})
	}

	return candles
}

// FetchCandles fetches up to limit of the most recent candles, oldest first.
func (b *Binance) FetchCandles(ctx context.Context, symbol string, timeframe shared.Timeframe, limit int) ([]shared.Candle, error) {
	sym, _, err := binanceSymbol(symbol)
	if err != nil {
		return nil, err
	}

	limit = min(max(limit, 1), binanceMaxKlines)

	params := url.Values{}
	params.Add("symbol", sym)
	params.Add("interval", timeframe.String())
	params.Add("limit", strconv.Itoa(limit))

	data, err := b.client.get(ctx, "/api/v3/klines", params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetching %s klines for %s: %w", timeframe.String(), sym, err)
	}

	return parseKlines(data.Array()), nil
}

// FetchLatestCandle fetches the most recent candle for the provided market.
func (b *Binance) FetchLatestCandle(ctx context.Context, symbol string, timeframe shared.Timeframe) (shared.Candle, error) {
	candles, err := b.FetchCandles(ctx, symbol, timeframe, 1)
	if err != nil {
		return shared.Candle{}, err
	}
	if len(candles) == 0 {
		return shared.Candle{}, fmt.Errorf("no %s klines returned for %s", timeframe.String(), symbol)
	}

	return candles[len(candles)-1], nil
}

// FetchBalance fetches the free balance of the provided asset.
func (b *Binance) FetchBalance(ctx context.Context, currency string) (float64, error) {
	data, err := b.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return 0, fmt.Errorf("fetching binance account: %w", err)
	}

	asset := strings.ToUpper(currency)
	for _, balance := range data.Get("balances").Array() {
		if balance.Get("asset").String() == asset {
			return balance.Get("free").Float(), nil
		}
	}

	return 0, nil
}

// PlaceMarketOrder places a market order for the provided amount of the base asset.
func (b *Binance) PlaceMarketOrder(ctx context.Context, side shared.Side, symbol string, amount float64) (shared.OrderResult, error) {
	sym, _, err := binanceSymbol(symbol)
	if err != nil {
		return shared.OrderResult{}, err
	}

	if TruncateAmount(amount) < MinOrderAmount {
		b.cfg.Logger.Warn().Msgf("%s order of %f %s is below the minimum order amount %f", side.String(),
			amount, sym, MinOrderAmount)
		return rejectedOrder(""), nil
	}

	params := url.Values{}
	params.Add("symbol", sym)
	params.Add("side", strings.ToUpper(side.String()))
	params.Add("type", "MARKET")
	params.Add("quantity", FormatAmount(amount))
	params.Add("newOrderRespType", "FULL")

	data, err := b.signed(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return shared.OrderResult{}, fmt.Errorf("placing binance %s order: %w", side.String(), err)
	}

	result := shared.OrderResult{
		ID:           data.Get("orderId").String(),
		Status:       shared.StatusRejected,
		FilledAmount: data.Get("executedQty").Float(),
	}

	if result.FilledAmount > 0 {
		result.FilledPrice = data.Get("cummulativeQuoteQty").Float() / result.FilledAmount
	}

	switch data.Get("status").String() {
	case "FILLED", "PARTIALLY_FILLED":
		if result.FilledAmount > 0 {
			result.Status = shared.StatusFilled
		}
	}

	b.cfg.Logger.Info().Msgf("binance %s order %s for %s %s: status %s, filled %f @ %f", side.String(),
		result.ID, FormatAmount(amount), sym, data.Get("status").String(), result.FilledAmount, result.FilledPrice)

	return result, nil
}
