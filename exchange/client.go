package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dnldd/microbot/shared"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// requestTimeout is the upper bound of a single venue request.
	requestTimeout = time.Second * 10
	// MinOrderAmount is the smallest base asset amount sent to a venue.
	MinOrderAmount = 0.0001
	// amountPlaces is the number of decimal places of order amounts.
	amountPlaces = 4
	// pricePlaces is the number of decimal places of quoted prices.
	pricePlaces = 2
)

// restClient represents the http plumbing shared by venue adapters.
type restClient struct {
	baseURL string
	httpc   http.Client
	buf     *bytes.Buffer
}

// newRestClient initializes a rest client for the provided base url.
func newRestClient(baseURL string) *restClient {
	return &restClient{
		baseURL: baseURL,
		httpc:   http.Client{Timeout: requestTimeout},
		buf:     bytes.NewBuffer(make([]byte, 0, 512)),
	}
}

// formURL creates full urls including parameters for the api.
func (c *restClient) formURL(path string, params string) string {
	c.buf.WriteString(c.baseURL)
	c.buf.WriteString(path)
	if params != "" {
		c.buf.WriteString("?")
		c.buf.WriteString(params)
	}
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// do sends the provided request and parses its json response. Credential
// rejections are reported as authentication errors.
func (c *restClient) do(req *http.Request) (*gjson.Result, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s %s: %w", req.Method, req.URL.Path, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", shared.ErrAuthentication, req.Method,
			req.URL.Path, resp.StatusCode, errorMessage(body))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &statusError{code: resp.StatusCode, path: req.URL.Path, body: body}
	}

	data := gjson.ParseBytes(body)
	return &data, nil
}

// get sends a get request for the provided path.
func (c *restClient) get(ctx context.Context, path string, params string) (*gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	return c.do(req)
}

// statusError represents a non-success venue response.
type statusError struct {
	code int
	path string
	body []byte
}

// Error returns the error string.
func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.path, e.code, errorMessage(e.body))
}

// errorMessage extracts the venue error message from the provided response body.
func errorMessage(body []byte) string {
	msg := gjson.GetBytes(body, "msg").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" {
		msg = string(body)
	}

	return msg
}

// FormatAmount truncates the provided base asset amount to the venue lot size.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).Truncate(amountPlaces).StringFixed(amountPlaces)
}

// TruncateAmount truncates the provided amount to the venue lot size.
func TruncateAmount(amount float64) float64 {
	return decimal.NewFromFloat(amount).Truncate(amountPlaces).InexactFloat64()
}

// RoundPrice rounds the provided price to the venue tick size.
func RoundPrice(price float64) float64 {
	return decimal.NewFromFloat(price).Round(pricePlaces).InexactFloat64()
}

// rejectedOrder returns the result of an order refused before it reached the venue.
func rejectedOrder(id string) shared.OrderResult {
	return shared.OrderResult{ID: id, Status: shared.StatusRejected}
}
