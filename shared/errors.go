package shared

import "errors"

var (
	// ErrAuthentication is returned by adapters when venue credentials are rejected.
	ErrAuthentication = errors.New("authentication failed")
	// ErrConfiguration is returned when a collaborator is configured in an unusable way.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrMalformedCandle is returned for candles that cannot be evaluated.
	ErrMalformedCandle = errors.New("malformed candle")
	// ErrInsufficientFunds is returned for buys attempted without usable cash.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoHoldings is returned for sells attempted without holdings.
	ErrNoHoldings = errors.New("no holdings")
	// ErrInvalidPrice is returned for orders attempted at a non-positive price.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrPositionOpen is returned for buys attempted while a position is open.
	ErrPositionOpen = errors.New("position already open")
	// ErrDataExhausted is returned by replayed feeds once every candle has been served.
	ErrDataExhausted = errors.New("market data exhausted")
)

// IsUnrecoverable returns whether the provided adapter error must end the session.
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrConfiguration)
}
