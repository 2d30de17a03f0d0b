package shared

import "strings"

// Reason represents an entry or exit reason.
type Reason int

const (
	MACrossover Reason = iota
	MomentumSurge
	OversoldMomentum
	LowerBandBounce
	StochasticCrossover
	TakeProfit
	StopLoss
	MACrossunder
	Overbought
	MomentumFade
	UpperBandTouch
	StochasticRollover
	RecoveryClose
	RecoveryOpen
)

// String stringifies the provided reason.
func (r Reason) String() string {
	switch r {
	case MACrossover:
		return "fast ma above slow ma"
	case MomentumSurge:
		return "macd above signal"
	case OversoldMomentum:
		return "oversold rsi with rising macd"
	case LowerBandBounce:
		return "close near lower band"
	case StochasticCrossover:
		return "stochastic crossover"
	case TakeProfit:
		return "take profit"
	case StopLoss:
		return "stop loss"
	case MACrossunder:
		return "fast ma below slow ma"
	case Overbought:
		return "overbought rsi"
	case MomentumFade:
		return "macd below signal"
	case UpperBandTouch:
		return "close near upper band"
	case StochasticRollover:
		return "stochastic rollover"
	case RecoveryClose:
		return "recovery close"
	case RecoveryOpen:
		return "recovery open"
	default:
		return "unknown"
	}
}

// JoinReasons stringifies the collection of reasons provided.
func JoinReasons(reasons []Reason) string {
	set := make([]string, len(reasons))
	for idx := range reasons {
		set[idx] = reasons[idx].String()
	}

	return strings.Join(set, ",")
}

// Side represents an order side.
type Side int

const (
	Buy Side = iota
	Sell
)

// String stringifies the provided side.
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}
