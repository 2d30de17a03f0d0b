package shared

import (
	"time"
)

// HistoryEntry represents a recorded account snapshot for a tick.
type HistoryEntry struct {
	Date       time.Time
	Cash       float64
	Holdings   float64
	Price      float64
	TotalValue float64
	Trade      bool
}

// SessionHistory is an append-only record of account snapshots.
type SessionHistory struct {
	entries []HistoryEntry
}

// NewSessionHistory initializes a new session history.
func NewSessionHistory(capacity int) *SessionHistory {
	return &SessionHistory{
		entries: make([]HistoryEntry, 0, capacity),
	}
}

// Append records the provided entry.
func (h *SessionHistory) Append(entry HistoryEntry) {
	h.entries = append(h.entries, entry)
}

// Len returns the number of recorded entries.
func (h *SessionHistory) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the recorded entries.
func (h *SessionHistory) Entries() []HistoryEntry {
	set := make([]HistoryEntry, len(h.entries))
	copy(set, h.entries)
	return set
}

// Last returns the most recent entry.
func (h *SessionHistory) Last() (HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}

	return h.entries[len(h.entries)-1], true
}
