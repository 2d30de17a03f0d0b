package exchange

import (
	"strings"
	"sync"

	"github.com/dnldd/microbot/shared"
	"github.com/google/uuid"
)

const (
	// fillTolerance absorbs float error when comparing an order against a balance.
	fillTolerance = 1e-9
)

// ledger tracks the balances of an adapter that fills orders locally.
type ledger struct {
	pair  shared.Pair
	quote float64
	base  float64
	mtx   sync.Mutex
}

// newLedger initializes a ledger holding the provided quote balance.
func newLedger(pair shared.Pair, quote float64) *ledger {
	return &ledger{pair: pair, quote: quote}
}

// balance returns the balance of the provided currency.
func (l *ledger) balance(currency string) float64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	switch strings.ToUpper(currency) {
	case l.pair.Quote:
		return l.quote
	case l.pair.Base:
		return l.base
	default:
		return 0
	}
}

// fill executes the provided order in full at the provided price, or rejects
// it when the balances cannot cover it.
func (l *ledger) fill(side shared.Side, amount float64, price float64) shared.OrderResult {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	id := uuid.New().String()
	if amount <= 0 || price <= 0 {
		return rejectedOrder(id)
	}

	switch side {
	case shared.Buy:
		cost := amount * price
		if cost > l.quote*(1+fillTolerance) {
			return rejectedOrder(id)
		}
		l.quote = max(l.quote-cost, 0)
		l.base += amount

	case shared.Sell:
		if amount > l.base*(1+fillTolerance) {
			return rejectedOrder(id)
		}
		l.base = max(l.base-amount, 0)
		l.quote += amount * price

	default:
		return rejectedOrder(id)
	}

	return shared.OrderResult{
		ID:           id,
		Status:       shared.StatusFilled,
		FilledAmount: amount,
		FilledPrice:  price,
	}
}
