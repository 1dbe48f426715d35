package engine

import (
	"container/heap"
	"time"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// Clock 引擎时钟，返回当日毫秒数
type Clock interface {
	Now() int64
}

// WallClock 本地时间
type WallClock struct{}

// Now 当日毫秒数
func (WallClock) Now() int64 {
	t := time.Now()
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Milliseconds()
}

// timer 一次性定时器，a/b 为附带参数（workerID/taskID 或 orderID）
type timer struct {
	ts  int64
	typ types.TimerType
	a   int64
	b   int64
	seq int64
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if q[i].ts != q[j].ts {
		return q[i].ts < q[j].ts
	}
	return q[i].seq < q[j].seq
}
func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)   { *q = append(*q, x.(*timer)) }
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

func (e *Engine) setTimer(ts int64, typ types.TimerType, a, b int64) {
	e.timerSeq++
	heap.Push(&e.timers, &timer{ts: ts, typ: typ, a: a, b: b, seq: e.timerSeq})
}

// fireTimers 触发所有到期的定时器
func (e *Engine) fireTimers(now int64) {
	for e.timers.Len() > 0 && e.timers[0].ts <= now {
		t := heap.Pop(&e.timers).(*timer)
		e.onTime(t, now)
	}
}

// scheduleControlTimers 注册交易控制定时器，启动时已过的时间点不再触发
func (e *Engine) scheduleControlTimers(now int64) {
	sch := e.sched
	points := []struct {
		ts  int64
		typ types.TimerType
	}{
		{sch.DayTrade, types.TimerDayTrade},
		{sch.OnlyClose, types.TimerOnlyClose},
		{sch.ForceClose, types.TimerForceClose},
		{sch.DaySettle, types.TimerDaySettle},
		{sch.DayEnd, types.TimerDayEnd},
		{sch.NightEnd, types.TimerNtEnd},
	}
	for _, p := range points {
		if p.ts < 0 {
			continue
		}
		if p.ts > now {
			e.setTimer(p.ts, p.typ, 0, 0)
			continue
		}
		if p.typ == types.TimerDayTrade {
			e.control.onDayTrade = true
		}
	}
	if sch.DayTrade < 0 {
		e.control.onDayTrade = true
	}

	e.periodAnchor = sch.DayTrade
	if e.periodAnchor < 0 || e.periodAnchor > now {
		e.periodAnchor = now
		if sch.DayTrade > now {
			e.periodAnchor = sch.DayTrade
		}
	}
	if sch.Period > 0 {
		e.setTimer(e.nextPeriod(now), types.TimerPeriod, 0, 0)
	}
	e.control.refresh()
}

func (e *Engine) nextPeriod(ts int64) int64 {
	n := (ts - e.periodAnchor) / e.sched.Period
	if n < 0 {
		n = -1
	}
	return e.periodAnchor + (n+1)*e.sched.Period
}

func (e *Engine) onTime(t *timer, now int64) {
	prev := e.control.Constrain()
	e.control.onTime(t.typ)
	e.noteConstrain(prev)
	switch t.typ {
	case types.TimerOnlyClose:
		e.onOnlyClose()
	case types.TimerDaySettle:
		e.onDaySettle()
	case types.TimerDayEnd:
		e.onSessionEnd("EOD")
	case types.TimerNtEnd:
		e.onSessionEnd("EON")
	case types.TimerPeriod:
		e.setTimer(e.nextPeriod(t.ts), types.TimerPeriod, 0, 0)
		e.onPeriod(now)
	case types.TimerForceTaskTimeOut:
		e.onForceTaskTimeOut(int(t.a), int(t.b), now)
	case types.TimerAutoCancel:
		e.onAutoCancel(t.a)
	}
}

func formatClock(ms int64) string { return config.FormatClock(ms) }
