package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpreadTracker_DailyRoll(t *testing.T) {
	sig := NewSpreadSignal("a-b", 0)
	st := NewSpreadTracker(sig, 3)
	assert.Zero(t, st.HistoryLen())

	st.Update(20250101, 10)
	st.Update(20250101, 12)
	st.Update(20250101, 8)
	assert.Equal(t, 20250101, sig.CurrentDay)
	assert.Equal(t, 12.0, sig.CurrentDayHigh)
	assert.Equal(t, 8.0, sig.CurrentDayLow)
	assert.Equal(t, 0, st.HistoryLen())

	st.Update(20250102, 11)
	require.Equal(t, 1, st.HistoryLen())
	assert.Equal(t, DailyHighLow{Day: 20250101, High: 12, Low: 8}, sig.DailyHighLows[0])
	assert.Equal(t, 11.0, sig.CurrentDayHigh)
	assert.Equal(t, 11.0, sig.CurrentDayLow)
}

func TestSpreadTracker_HistoryCapped(t *testing.T) {
	sig := NewSpreadSignal("a-b", 0)
	st := NewSpreadTracker(sig, 3)
	for d := 1; d <= 6; d++ {
		st.Update(d, float64(d))
	}
	require.Equal(t, 3, st.HistoryLen())
	assert.Equal(t, 3, sig.DailyHighLows[0].Day)
	assert.Equal(t, 5, sig.DailyHighLows[2].Day)
}

func TestSpreadTracker_Bounds(t *testing.T) {
	sig := NewSpreadSignal("a-b", 0)
	sig.DailyHighLows = []DailyHighLow{
		{Day: 1, High: 30, Low: -5},
		{Day: 2, High: 20, Low: 2},
		{Day: 3, High: 15, Low: 4},
	}
	sig.CurrentDay = 4
	sig.CurrentDayHigh = 12
	sig.CurrentDayLow = 6
	st := NewSpreadTracker(sig, 10)

	lo, hi, ok := st.Bounds(2)
	require.True(t, ok)
	assert.Equal(t, 2.0, lo)
	assert.Equal(t, 20.0, hi)

	lo, hi, ok = st.Bounds(10)
	require.True(t, ok)
	assert.Equal(t, -5.0, lo)
	assert.Equal(t, 30.0, hi)

	lo, hi, ok = st.Bounds(0)
	require.True(t, ok)
	assert.Equal(t, 6.0, lo, "current day only")
	assert.Equal(t, 12.0, hi)
}

func TestSpreadTracker_BoundsEmpty(t *testing.T) {
	st := NewSpreadTracker(NewSpreadSignal("a-b", 0), 10)
	_, _, ok := st.Bounds(5)
	assert.False(t, ok)
}
