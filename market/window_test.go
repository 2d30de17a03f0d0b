package market

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dnldd/microbot/shared"
	"github.com/peterldowns/testy/assert"
)

func candleAt(date time.Time, price float64) shared.Candle {
	return shared.Candle{
		Date:   date,
		Open:   price,
		High:   price + 1,
		Low:    price - 1,
		Close:  price,
		Volume: 1,
	}
}

func TestWindow(t *testing.T) {
	// Ensure window size cannot be negative or zero.
	_, err := NewWindow(-1, shared.OneMinute)
	assert.Error(t, err)

	_, err = NewWindow(0, shared.OneMinute)
	assert.Error(t, err)

	// Ensure a window can be created.
	size := int32(4)
	window, err := NewWindow(size, shared.OneMinute)
	assert.NoError(t, err)

	// Ensure calling last on an empty window returns nothing.
	_, ok := window.Last()
	assert.False(t, ok)

	// Ensure calling LastN on an empty window returns an empty set.
	assert.Equal(t, len(window.LastN(size)), 0)

	// Ensure calling LastN with zero or negative size returns nil.
	assert.Nil(t, window.LastN(-1))

	// Ensure the window can be updated with candles.
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for idx := range size {
		appended, err := window.Update(candleAt(start.Add(time.Minute*time.Duration(idx)), float64(idx+10)))
		assert.NoError(t, err)
		assert.True(t, appended)
	}

	assert.Equal(t, window.count.Load(), size)
	assert.Equal(t, window.size.Load(), size)
	assert.Equal(t, window.start.Load(), int32(0))
	assert.Equal(t, window.Len(), int(size))

	// Ensure calling last on a filled window returns the last added entry.
	last, ok := window.Last()
	assert.True(t, ok)
	assert.Equal(t, last.Close, float64(13))

	// Ensure calling LastN with a larger size than the window gets clamped to the window's size.
	assert.Equal(t, len(window.LastN(size+1)), int(size))

	// Ensure a candle in the same bucket as the last one overwrites it in place.
	appended, err := window.Update(candleAt(start.Add(time.Minute*3+time.Second*30), 20))
	assert.NoError(t, err)
	assert.False(t, appended)
	assert.Equal(t, window.Len(), int(size))
	last, _ = window.Last()
	assert.Equal(t, last.Close, float64(20))

	// Ensure candle updates at capacity drop the oldest candle.
	appended, err = window.Update(candleAt(start.Add(time.Minute*4), 30))
	assert.NoError(t, err)
	assert.True(t, appended)
	assert.Equal(t, window.Len(), int(size))
	assert.Equal(t, window.start.Load(), int32(1))

	candles := window.Candles()
	assert.Equal(t, len(candles), int(size))
	assert.Equal(t, candles[0].Close, float64(11))
	assert.Equal(t, candles[len(candles)-1].Close, float64(30))

	// Ensure older candles are rejected.
	_, err = window.Update(candleAt(start, 5))
	assert.True(t, errors.Is(err, ErrOutOfOrder))

	// Ensure malformed candles are rejected without mutating the window.
	_, err = window.Update(shared.Candle{Date: start.Add(time.Minute * 5), Close: -1})
	assert.True(t, errors.Is(err, shared.ErrMalformedCandle))
	assert.Equal(t, window.Len(), int(size))

	nanHigh := candleAt(start.Add(time.Minute*5), 31)
	nanHigh.High = math.NaN()
	_, err = window.Update(nanHigh)
	assert.True(t, errors.Is(err, shared.ErrMalformedCandle))
	assert.Equal(t, window.Len(), int(size))
	last, _ := window.Last()
	assert.Equal(t, last.Close, float64(30))
}

func TestWindowSize(t *testing.T) {
	assert.Equal(t, WindowSize(shared.SimulatedGame), int32(GameWindowSize))
	assert.Equal(t, WindowSize(shared.Paper), int32(LiveWindowSize))
	assert.Equal(t, WindowSize(shared.Live), int32(LiveWindowSize))
}
