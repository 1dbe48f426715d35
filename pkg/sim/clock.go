package sim

import "sync/atomic"

// ManualClock 手动推进的时钟（当日毫秒数）
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock 从 ts 开始
func NewManualClock(ts int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(ts)
	return c
}

// Now 当前时间
func (c *ManualClock) Now() int64 { return c.now.Load() }

// Set 设置时间
func (c *ManualClock) Set(ts int64) { c.now.Store(ts) }

// Advance 前进 ms 毫秒，返回新时间
func (c *ManualClock) Advance(ms int64) int64 { return c.now.Add(ms) }
