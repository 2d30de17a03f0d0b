package shared

import (
	"math"
	"time"
)

// Termination represents the reason a session ended.
type Termination int

const (
	TargetReached Termination = iota
	TimeExpired
	Interrupted
	Failed
)

// String stringifies the provided termination reason.
func (t Termination) String() string {
	switch t {
	case TargetReached:
		return "target reached"
	case TimeExpired:
		return "time expired"
	case Interrupted:
		return "interrupted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Summary represents the end of session performance summary.
type Summary struct {
	SessionID       string    `yaml:"session_id"`
	Mode            string    `yaml:"mode"`
	Symbol          string    `yaml:"symbol"`
	StartedAt       time.Time `yaml:"started_at"`
	EndedAt         time.Time `yaml:"ended_at"`
	Termination     string    `yaml:"termination"`
	StartingBalance float64   `yaml:"starting_balance"`
	FinalCash       float64   `yaml:"final_cash"`
	FinalHoldings   float64   `yaml:"final_holdings"`
	FinalPrice      float64   `yaml:"final_price"`
	FinalValue      float64   `yaml:"final_value"`
	ProfitPercent   float64   `yaml:"profit_percent"`
	ProfitTarget    float64   `yaml:"profit_target"`
	Passed          bool      `yaml:"passed"`
	HighestValue    float64   `yaml:"highest_value"`
	LowestValue     float64   `yaml:"lowest_value"`
	HighestPrice    float64   `yaml:"highest_price"`
	LowestPrice     float64   `yaml:"lowest_price"`
	Ticks           int       `yaml:"ticks"`
	SkippedTicks    int       `yaml:"skipped_ticks"`
	PausedTicks     int       `yaml:"paused_ticks"`
	Trades          int       `yaml:"trades"`
	Rejections      int       `yaml:"rejections"`
}

// Summarize fills the performance and price extrema of the summary from the
// provided history. The starting balance seeds the value extrema so a session
// without a recorded tick still reports sane bounds.
func (s *Summary) Summarize(entries []HistoryEntry) {
	s.HighestValue = s.StartingBalance
	s.LowestValue = s.StartingBalance
	s.FinalValue = s.StartingBalance
	s.FinalCash = s.StartingBalance

	if len(entries) == 0 {
		return
	}

	s.HighestPrice = 0
	s.LowestPrice = math.MaxFloat64
	for idx := range entries {
		entry := entries[idx]
		s.HighestValue = math.Max(s.HighestValue, entry.TotalValue)
		s.LowestValue = math.Min(s.LowestValue, entry.TotalValue)
		s.HighestPrice = math.Max(s.HighestPrice, entry.Price)
		s.LowestPrice = math.Min(s.LowestPrice, entry.Price)
		if entry.Trade {
			s.Trades++
		}
	}

	last := entries[len(entries)-1]
	s.FinalCash = last.Cash
	s.FinalHoldings = last.Holdings
	s.FinalPrice = last.Price
	s.FinalValue = last.TotalValue

	if s.StartingBalance > 0 {
		s.ProfitPercent = (s.FinalValue/s.StartingBalance - 1) * 100
	}
	s.Passed = s.ProfitTarget > 0 && s.ProfitPercent >= s.ProfitTarget
}
