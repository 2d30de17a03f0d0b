package shared

// Mode represents the trading mode of a session.
type Mode int

const (
	SimulatedGame Mode = iota
	Paper
	Live
)

// String stringifies the provided mode.
func (m Mode) String() string {
	switch m {
	case SimulatedGame:
		return "game"
	case Paper:
		return "paper"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

// Continuous returns whether sessions in the mode run against a real market clock.
func (m Mode) Continuous() bool {
	return m == Paper || m == Live
}
