package api

import (
	"sync"
	"time"

	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// Dashboard 每秒推送给前端的快照：引擎快照 + 最近订单历史
type Dashboard struct {
	Timestamp string                 `json:"timestamp"`
	Engine    *engine.Snapshot       `json:"engine"`
	History   []engine.OrderSnapshot `json:"history"`
}

// OrderHistoryTracker 订单历史追踪器
// 引擎快照只包含在途订单，成交很快的订单在两次采集之间就会消失。
// 此追踪器保留最近 N 条订单（包括已完成的），终态由订单事件补齐。
type OrderHistoryTracker struct {
	mu      sync.Mutex
	history []engine.OrderSnapshot
	maxSize int
	seen    map[int64]bool
	final   map[int64]string // 已收到终态回报的订单
}

// NewOrderHistoryTracker 创建订单历史追踪器
func NewOrderHistoryTracker(maxSize int) *OrderHistoryTracker {
	return &OrderHistoryTracker{
		history: make([]engine.OrderSnapshot, 0, maxSize),
		maxSize: maxSize,
		seen:    make(map[int64]bool),
		final:   make(map[int64]string),
	}
}

// OnOrder 订阅引擎订单事件（在引擎 goroutine 中调用）
func (t *OrderHistoryTracker) OnOrder(ev engine.OrderEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !ev.Trade && !t.seen[ev.OrderID] && ev.Status == types.StatusPending {
		t.seen[ev.OrderID] = true
		t.history = append(t.history, engine.OrderSnapshot{
			OrderID: ev.OrderID,
			Spread:  ev.Spread,
			Symbol:  ev.Symbol,
			Kind:    ev.Kind.String(),
			Price:   ev.Price,
			Volume:  ev.Volume,
			Status:  ev.Status.String(),
		})
	}
	if ev.Trade {
		for i := range t.history {
			if t.history[i].OrderID == ev.OrderID {
				t.history[i].Traded += absInt(ev.Volume)
			}
		}
		return
	}
	if ev.Status.Finished() {
		t.final[ev.OrderID] = ev.Status.String()
	}
	t.trim()
}

// Update 合并当前在途订单，返回完整列表（最新在前）
func (t *OrderHistoryTracker) Update(live []engine.OrderSnapshot) []engine.OrderSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, o := range live {
		if !t.seen[o.OrderID] {
			t.seen[o.OrderID] = true
			t.history = append(t.history, o)
			continue
		}
		for i := range t.history {
			if t.history[i].OrderID == o.OrderID {
				t.history[i] = o
				break
			}
		}
	}

	liveSet := make(map[int64]bool, len(live))
	for _, o := range live {
		liveSet[o.OrderID] = true
	}
	for i := range t.history {
		id := t.history[i].OrderID
		if liveSet[id] {
			continue
		}
		if st, ok := t.final[id]; ok {
			t.history[i].Status = st
		}
	}
	t.trim()

	result := make([]engine.OrderSnapshot, len(t.history))
	for i, o := range t.history {
		result[len(t.history)-1-i] = o
	}
	return result
}

// trim 保留最近 maxSize 条
func (t *OrderHistoryTracker) trim() {
	if len(t.history) <= t.maxSize {
		return
	}
	removed := t.history[:len(t.history)-t.maxSize]
	for _, o := range removed {
		delete(t.seen, o.OrderID)
		delete(t.final, o.OrderID)
	}
	t.history = append([]engine.OrderSnapshot(nil), t.history[len(t.history)-t.maxSize:]...)
}

// collectDashboard 在推送 goroutine 中组装快照
func collectDashboard(snap *engine.Snapshot, tracker *OrderHistoryTracker) *Dashboard {
	d := &Dashboard{Timestamp: time.Now().Format(time.RFC3339), Engine: snap}
	var live []engine.OrderSnapshot
	if snap != nil {
		live = snap.Orders
	}
	d.History = tracker.Update(live)
	return d
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
