package shared

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the format layout for rendering dates.
	DateLayout = "2006-01-02 15:04:05"
	// FileDateLayout is the format layout for dates embedded in filenames.
	FileDateLayout = "20060102_150405"
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	FiveMinute
	OneHour
)

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1m"
	case FiveMinute:
		return "5m"
	case OneHour:
		return "1h"
	default:
		return "unknown"
	}
}

// Duration returns the length of a candle for the timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case OneMinute:
		return time.Minute
	case FiveMinute:
		return time.Minute * 5
	case OneHour:
		return time.Hour
	default:
		return 0
	}
}

// Bucket returns the start of the candle bucket the provided time falls in.
func (t Timeframe) Bucket(tm time.Time) time.Time {
	d := t.Duration()
	if d == 0 {
		return tm
	}

	return tm.Truncate(d)
}

// ParseTimeframe parses the provided timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "1m":
		return OneMinute, nil
	case "5m":
		return FiveMinute, nil
	case "1h", "1H":
		return OneHour, nil
	default:
		return OneMinute, fmt.Errorf("unknown timeframe provided: %s", s)
	}
}

// SameDay returns whether both times fall on the same calendar day in UTC.
func SameDay(a time.Time, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
