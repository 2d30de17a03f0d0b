package market

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dnldd/microbot/shared"
	"go.uber.org/atomic"
)

const (
	// LiveWindowSize is the candle window cap for paper and live sessions.
	LiveWindowSize = 300
	// GameWindowSize is the candle window cap for simulated game sessions.
	GameWindowSize = 500
)

// ErrOutOfOrder is returned for candles older than the most recent candle of the window.
var ErrOutOfOrder = errors.New("candle is older than the window's most recent candle")

// Window represents a bounded, ordered window of the most recent candles.
type Window struct {
	data      []shared.Candle
	dataMtx   sync.RWMutex
	timeframe shared.Timeframe
	start     atomic.Int32
	count     atomic.Int32
	size      atomic.Int32
}

// NewWindow initializes a new candle window.
func NewWindow(size int32, timeframe shared.Timeframe) (*Window, error) {
	if size < 0 {
		return nil, errors.New("window size cannot be negative")
	}
	if size == 0 {
		return nil, errors.New("window size cannot be zero")
	}

	w := &Window{
		data:      make([]shared.Candle, size),
		timeframe: timeframe,
	}

	w.size.Store(size)
	return w, nil
}

// WindowSize returns the window cap for the provided mode.
func WindowSize(mode shared.Mode) int32 {
	if mode == shared.SimulatedGame {
		return GameWindowSize
	}

	return LiveWindowSize
}

// Update adds the provided candle to the window. A candle in the same time
// bucket as the most recent one replaces it in place, otherwise it is appended
// and the oldest candle is dropped when the window is at capacity. The returned
// flag reports whether the candle was appended.
func (w *Window) Update(candle shared.Candle) (bool, error) {
	err := candle.Validate()
	if err != nil {
		return false, err
	}

	w.dataMtx.Lock()
	defer w.dataMtx.Unlock()

	start := w.start.Load()
	count := w.count.Load()
	size := w.size.Load()

	if count > 0 {
		lastIdx := (start + count - 1) % size
		lastBucket := w.timeframe.Bucket(w.data[lastIdx].Date)
		bucket := w.timeframe.Bucket(candle.Date)

		switch {
		case bucket.Equal(lastBucket):
			w.data[lastIdx] = candle
			return false, nil
		case bucket.Before(lastBucket):
			return false, fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
				candle.Date.Format(shared.DateLayout), w.data[lastIdx].Date.Format(shared.DateLayout))
		}
	}

	end := (start + count) % size
	w.data[end] = candle

	if count == size {
		// Overwrite the oldest entry when the window is at capacity.
		w.start.Store((start + 1) % size)
	} else {
		w.count.Add(1)
	}

	return true, nil
}

// Len returns the number of candles in the window.
func (w *Window) Len() int {
	return int(w.count.Load())
}

// Last returns the most recent candle of the window.
func (w *Window) Last() (shared.Candle, bool) {
	w.dataMtx.RLock()
	defer w.dataMtx.RUnlock()

	start := w.start.Load()
	count := w.count.Load()
	size := w.size.Load()
	if count == 0 {
		return shared.Candle{}, false
	}

	return w.data[(start+count-1)%size], true
}

// LastN fetches the last n candles of the window, oldest first.
func (w *Window) LastN(n int32) []shared.Candle {
	w.dataMtx.RLock()
	defer w.dataMtx.RUnlock()

	if n <= 0 {
		return nil
	}

	start := w.start.Load()
	count := w.count.Load()
	size := w.size.Load()

	// Clamp the number of elements expected if it is greater than the window count.
	if n > count {
		n = count
	}

	set := make([]shared.Candle, n)
	start = (start + count - n + size) % size

	for i := range n {
		set[i] = w.data[(start+i)%size]
	}

	return set
}

// Candles returns every candle of the window, oldest first.
func (w *Window) Candles() []shared.Candle {
	return w.LastN(w.count.Load())
}
