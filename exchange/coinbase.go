package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/microbot/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// CoinbaseURL is the coinbase exchange api base url.
	CoinbaseURL = "https://api.exchange.coinbase.com"
	// coinbaseMaxCandles is the most candles coinbase returns per request.
	coinbaseMaxCandles = 300
)

// CoinbaseConfig represents the configuration of the coinbase adapter.
type CoinbaseConfig struct {
	// BaseURL is the api base url.
	BaseURL string
	// APIKey is the coinbase exchange api key.
	APIKey string
	// APISecret is the base64 encoded coinbase exchange api secret.
	APISecret string
	// APIPassphrase is the passphrase of the api key.
	APIPassphrase string
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Coinbase represents the coinbase exchange execution adapter.
type Coinbase struct {
	cfg    *CoinbaseConfig
	client *restClient
	now    func() time.Time
}

var _ shared.Exchange = (*Coinbase)(nil)
var _ shared.HistoryFetcher = (*Coinbase)(nil)
var _ shared.Pinger = (*Coinbase)(nil)

// NewCoinbase initializes the coinbase adapter.
func NewCoinbase(cfg *CoinbaseConfig) *Coinbase {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = CoinbaseURL
	}

	return &Coinbase{
		cfg:    cfg,
		client: newRestClient(strings.TrimSuffix(baseURL, "/")),
		now:    time.Now,
	}
}

// productID returns the coinbase product id of the provided pair.
func productID(symbol string) (string, error) {
	pair, err := shared.ParsePair(symbol)
	if err != nil {
		return "", err
	}

	return pair.Base + "-" + pair.Quote, nil
}

// granularity returns the candle granularity in seconds of the provided timeframe.
func granularity(timeframe shared.Timeframe) (int, error) {
	d := timeframe.Duration()
	if d == 0 {
		return 0, fmt.Errorf("%w: unsupported timeframe %s", shared.ErrConfiguration, timeframe.String())
	}

	return int(d.Seconds()), nil
}

// sign returns the base64 hmac-sha256 signature of the provided request
// components, keyed by the decoded api secret.
func (c *Coinbase) sign(timestamp string, method string, path string, body []byte) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.cfg.APISecret)
	if err != nil {
		return "", fmt.Errorf("%w: decoding coinbase api secret: %v", shared.ErrAuthentication, err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// signed sends a signed request for the provided path.
func (c *Coinbase) signed(ctx context.Context, method string, path string, body []byte) (*gjson.Result, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" || c.cfg.APIPassphrase == "" {
		return nil, fmt.Errorf("%w: coinbase credentials are not configured", shared.ErrConfiguration)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature, err := c.sign(timestamp, method, path, body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.client.formURL(path, ""), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CB-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("CB-ACCESS-SIGN", signature)
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("CB-ACCESS-PASSPHRASE", c.cfg.APIPassphrase)

	return c.client.do(req)
}

// Ping asserts coinbase is reachable and the configured credentials are accepted.
func (c *Coinbase) Ping(ctx context.Context) error {
	_, err := c.client.get(ctx, "/time", "")
	if err != nil {
		return fmt.Errorf("pinging coinbase: %w", err)
	}

	if c.cfg.APIKey == "" {
		return nil
	}

	_, err = c.signed(ctx, http.MethodGet, "/accounts", nil)
	if err != nil {
		return fmt.Errorf("verifying coinbase credentials: %w", err)
	}

	c.cfg.Logger.Info().Msg("coinbase credentials verified")

	return nil
}

// FetchCandles fetches up to limit of the most recent candles, oldest first.
func (c *Coinbase) FetchCandles(ctx context.Context, symbol string, timeframe shared.Timeframe, limit int) ([]shared.Candle, error) {
	product, err := productID(symbol)
	if err != nil {
		return nil, err
	}
	secs, err := granularity(timeframe)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("granularity", strconv.Itoa(secs))

	data, err := c.client.get(ctx, "/products/"+product+"/candles", params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetching %s candles for %s: %w", timeframe.String(), product, err)
	}

	// Rows are [time, low, high, open, close, volume], newest first.
	rows := data.Array()
	limit = min(max(limit, 1), coinbaseMaxCandles, len(rows))

	candles := make([]shared.Candle, 0, limit)
	for idx := 0; idx < limit; idx++ {
		row := rows[idx].Array()
		if len(row) < 6 {
			continue
		}

		candles = append(candles, shared.Candle{
			Date:   time.Unix(row[0].Int(), 0).UTC(),
			Low:    row[1].Float(),
			High:   row[2].Float(),
			Open:   row[3].Float(),
			Close:  row[4].Float(),
			Volume: row[5].Float(),
		})
	}

	slices.Reverse(candles)

	return candles, nil
}

// FetchLatestCandle fetches the most recent candle for the provided market.
func (c *Coinbase) FetchLatestCandle(ctx context.Context, symbol string, timeframe shared.Timeframe) (shared.Candle, error) {
	candles, err := c.FetchCandles(ctx, symbol, timeframe, 1)
	if err != nil {
		return shared.Candle{}, err
	}
	if len(candles) == 0 {
		return shared.Candle{}, fmt.Errorf("no %s candles returned for %s", timeframe.String(), symbol)
	}

	return candles[len(candles)-1], nil
}

// FetchBalance fetches the available balance of the provided currency.
func (c *Coinbase) FetchBalance(ctx context.Context, currency string) (float64, error) {
	data, err := c.signed(ctx, http.MethodGet, "/accounts", nil)
	if err != nil {
		return 0, fmt.Errorf("fetching coinbase accounts: %w", err)
	}

	asset := strings.ToUpper(currency)
	for _, account := range data.Array() {
		if account.Get("currency").String() == asset {
			return account.Get("available").Float(), nil
		}
	}

	return 0, nil
}

// orderRequest represents a coinbase market order request.
type orderRequest struct {
	Type      string `json:"type"`
	Side      string `json:"side"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
}

// orderResult maps a coinbase order payload onto an order result.
func orderResult(data *gjson.Result) shared.OrderResult {
	result := shared.OrderResult{
		ID:           data.Get("id").String(),
		Status:       shared.StatusRejected,
		FilledAmount: data.Get("filled_size").Float(),
	}

	if result.FilledAmount > 0 {
		result.FilledPrice = data.Get("executed_value").Float() / result.FilledAmount
		result.Status = shared.StatusFilled
	}

	return result
}

// PlaceMarketOrder places a market order for the provided amount of the base asset.
// Orders still pending after placement are fetched once more for their fill.
func (c *Coinbase) PlaceMarketOrder(ctx context.Context, side shared.Side, symbol string, amount float64) (shared.OrderResult, error) {
	product, err := productID(symbol)
	if err != nil {
		return shared.OrderResult{}, err
	}

	if TruncateAmount(amount) < MinOrderAmount {
		c.cfg.Logger.Warn().Msgf("%s order of %f %s is below the minimum order amount %f", side.String(),
			amount, product, MinOrderAmount)
		return rejectedOrder(""), nil
	}

	body, err := json.Marshal(orderRequest{
		Type:      "market",
		Side:      side.String(),
		ProductID: product,
		Size:      FormatAmount(amount),
	})
	if err != nil {
		return shared.OrderResult{}, fmt.Errorf("encoding order request: %w", err)
	}

	data, err := c.signed(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return shared.OrderResult{}, fmt.Errorf("placing coinbase %s order: %w", side.String(), err)
	}

	result := orderResult(data)
	if !result.Filled() && result.ID != "" {
		data, err = c.signed(ctx, http.MethodGet, "/orders/"+result.ID, nil)
		if err != nil {
			return shared.OrderResult{}, fmt.Errorf("fetching coinbase order %s: %w", result.ID, err)
		}
		result = orderResult(data)
	}

	c.cfg.Logger.Info().Msgf("coinbase %s order %s for %s %s: status %s, filled %f @ %f", side.String(),
		result.ID, FormatAmount(amount), product, data.Get("status").String(), result.FilledAmount, result.FilledPrice)

	return result, nil
}
