package shared

import (
	"fmt"
	"strings"
)

const (
	// StatusFilled is the status of an executed order.
	StatusFilled = "filled"
	// StatusSimulated is the status of an order that was not sent because trading is disabled.
	StatusSimulated = "simulated"
	// StatusRejected is the status of an order refused by the venue.
	StatusRejected = "rejected"
)

// OrderResult represents the outcome of a market order.
type OrderResult struct {
	ID           string
	Status       string
	FilledAmount float64
	FilledPrice  float64
}

// Filled returns whether the order executed with a usable fill.
func (o *OrderResult) Filled() bool {
	return o.Status == StatusFilled && o.FilledAmount > 0
}

// Pair represents a trading pair split into its base and quote assets.
type Pair struct {
	Base  string
	Quote string
}

// String stringifies the pair in BASE/QUOTE form.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// ParsePair parses the provided symbol. Supported separators are "/" and "-".
func ParsePair(symbol string) (Pair, error) {
	var parts []string
	switch {
	case strings.Contains(symbol, "/"):
		parts = strings.Split(symbol, "/")
	case strings.Contains(symbol, "-"):
		parts = strings.Split(symbol, "-")
	default:
		return Pair{}, fmt.Errorf("%w: symbol %q is missing a base/quote separator", ErrConfiguration, symbol)
	}

	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("%w: malformed symbol %q", ErrConfiguration, symbol)
	}

	return Pair{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}
