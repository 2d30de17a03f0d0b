package shared

// SignalState represents the entry and exit signals for the most recent candle.
type SignalState struct {
	OpenLong     bool
	CloseLong    bool
	EntryReasons []Reason
	ExitReasons  []Reason
}

// Any returns whether either signal fired.
func (s *SignalState) Any() bool {
	return s.OpenLong || s.CloseLong
}
