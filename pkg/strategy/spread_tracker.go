package strategy

import (
	"github.com/montanaflynn/stats"
)

// SpreadTracker 维护价差的日内高低点和历史日线高低点
// 数据直接写在 SpreadSignal 上，随状态文件一起持久化
type SpreadTracker struct {
	sig        *SpreadSignal
	MaxHistory int // 最多保留多少个历史交易日
}

// NewSpreadTracker 创建 SpreadTracker
func NewSpreadTracker(sig *SpreadSignal, maxHistory int) *SpreadTracker {
	st := &SpreadTracker{sig: sig, MaxHistory: maxHistory}
	st.trim()
	return st
}

// Update 用最新价差刷新当日高低点，换日时把上一日归档
func (st *SpreadTracker) Update(day int, spread float64) {
	s := st.sig
	if s.CurrentDay != day {
		if s.CurrentDay > 0 {
			s.DailyHighLows = append(s.DailyHighLows, DailyHighLow{
				Day:  s.CurrentDay,
				High: s.CurrentDayHigh,
				Low:  s.CurrentDayLow,
			})
			st.trim()
		}
		s.CurrentDay = day
		s.CurrentDayHigh = spread
		s.CurrentDayLow = spread
		return
	}
	if spread > s.CurrentDayHigh {
		s.CurrentDayHigh = spread
	}
	if spread < s.CurrentDayLow {
		s.CurrentDayLow = spread
	}
}

func (st *SpreadTracker) trim() {
	if st.MaxHistory <= 0 {
		return
	}
	if extra := len(st.sig.DailyHighLows) - st.MaxHistory; extra > 0 {
		st.sig.DailyHighLows = append([]DailyHighLow(nil), st.sig.DailyHighLows[extra:]...)
	}
}

// Bounds 最近 n 个历史交易日加当日的最低/最高
// 没有任何数据时 ok=false
func (st *SpreadTracker) Bounds(n int) (lower, upper float64, ok bool) {
	s := st.sig
	hist := s.DailyHighLows
	if n >= 0 && len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	highs := make(stats.Float64Data, 0, len(hist)+1)
	lows := make(stats.Float64Data, 0, len(hist)+1)
	for _, d := range hist {
		highs = append(highs, d.High)
		lows = append(lows, d.Low)
	}
	if s.CurrentDay > 0 {
		highs = append(highs, s.CurrentDayHigh)
		lows = append(lows, s.CurrentDayLow)
	}
	lo, err := lows.Min()
	if err != nil {
		return 0, 0, false
	}
	hi, err := highs.Max()
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// HistoryLen 已归档的交易日数
func (st *SpreadTracker) HistoryLen() int {
	return len(st.sig.DailyHighLows)
}
