package engine

import (
	"sort"

	"github.com/quantlink/spreadgrid/pkg/execution"
	"github.com/quantlink/spreadgrid/pkg/strategy"
)

// Snapshot 引擎状态快照，在引擎 goroutine 中生成，供 API 并发读取
type Snapshot struct {
	Time        string                   `json:"time"`
	Strategy    string                   `json:"strategy"`
	Account     string                   `json:"account"`
	TradingDay  int                      `json:"trading_day"`
	Ready       bool                     `json:"ready"`
	Constrain   string                   `json:"constrain"`
	EnableTrade int                      `json:"enable_trade"`
	Capital     float64                  `json:"capital"`
	TotalMargin float64                  `json:"total_margin"`
	Available   float64                  `json:"available"`
	Workers     int                      `json:"workers"`
	BusyWorkers int                      `json:"busy_workers"`
	Counters    execution.ExecutionState `json:"counters"`
	Params      execution.Params         `json:"params"`
	Spreads     []SpreadSnapshot         `json:"spreads"`
	Legs        []LegSnapshot            `json:"legs"`
	Orders      []OrderSnapshot          `json:"orders"`
}

// SpreadSnapshot 价差信号状态 + 执行状态
type SpreadSnapshot struct {
	strategy.Status
	Tradable   bool        `json:"tradable"`
	Processing bool        `json:"processing"`
	CycleID    string      `json:"cycle_id,omitempty"`
	Remain     map[int]int `json:"remain,omitempty"`
}

// LegSnapshot 单腿行情与持仓
type LegSnapshot struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	BidPx    float64 `json:"bid_px"`
	AskPx    float64 `json:"ask_px"`
	BidQty   int     `json:"bid_qty"`
	AskQty   int     `json:"ask_qty"`
	LastPx   float64 `json:"last_px"`
	TheoLast float64 `json:"theo_last"`
	Pos      int     `json:"pos"`
	Margin   float64 `json:"margin"`
	Ready    bool    `json:"ready"`
	Settled  bool    `json:"settled"`
	Score    float64 `json:"lead_score"`
}

// OrderSnapshot 在途订单
type OrderSnapshot struct {
	OrderID int64   `json:"order_id"`
	Spread  string  `json:"spread"`
	Symbol  string  `json:"symbol"`
	Kind    string  `json:"kind"`
	Side    string  `json:"side"`
	Type    string  `json:"type"`
	Price   float64 `json:"price"`
	Volume  int     `json:"volume"`
	Traded  int     `json:"traded"`
	Status  string  `json:"status"`
	SentAt  string  `json:"sent_at"`
}

// Snapshot 最近一次快照，引擎未启动时为 nil
func (e *Engine) Snapshot() *Snapshot { return e.snapshot.Load() }

func (e *Engine) refresh() {
	s := &Snapshot{
		Time:        formatClock(e.clock.Now()),
		Strategy:    e.cfg.Strategy.Name,
		Account:     e.cfg.Strategy.Account,
		TradingDay:  e.tradingDay,
		Ready:       e.ready,
		Constrain:   e.control.Constrain().String(),
		EnableTrade: e.control.enable,
		Capital:     e.cfg.Strategy.Capital,
		TotalMargin: e.totalMargin,
		Available:   e.available(),
		Workers:     e.pool.Size(),
		BusyWorkers: e.pool.Busy(),
		Counters:    *e.counters,
		Params:      *e.params,
	}
	for _, sp := range e.spreads {
		ss := SpreadSnapshot{
			Status:     sp.Signal.Status(),
			Tradable:   sp.Signal.Tradable(),
			Processing: sp.Exec.IsProcessing(),
			CycleID:    sp.Exec.CycleID,
		}
		if len(sp.Exec.RemainPositions) > 0 {
			ss.Remain = make(map[int]int, len(sp.Exec.RemainPositions))
			for k, v := range sp.Exec.RemainPositions {
				ss.Remain[k] = v
			}
		}
		s.Spreads = append(s.Spreads, ss)
	}
	for _, leg := range e.arena.All() {
		s.Legs = append(s.Legs, LegSnapshot{
			Symbol:   leg.Symbol,
			Exchange: leg.Exchange,
			BidPx:    leg.BP,
			AskPx:    leg.AP,
			BidQty:   leg.BQ,
			AskQty:   leg.AQ,
			LastPx:   leg.LP,
			TheoLast: leg.TheoLast,
			Pos:      leg.Pos,
			Margin:   leg.Margin(),
			Ready:    leg.IsReadyToTrade(),
			Settled:  leg.Settled,
			Score:    e.seq.Score(leg.ID),
		})
	}
	for _, ord := range e.orders.OrdMap {
		s.Orders = append(s.Orders, OrderSnapshot{
			OrderID: ord.OrderID,
			Spread:  e.spreadName(ord.SpreadID),
			Symbol:  e.arena.Get(ord.LegRef).Symbol,
			Kind:    ord.Kind.String(),
			Side:    ord.Direction.String(),
			Type:    ord.Type.String(),
			Price:   ord.Price,
			Volume:  ord.Volume,
			Traded:  ord.TradedVolume,
			Status:  ord.Status.String(),
			SentAt:  formatClock(ord.SentTS),
		})
	}
	sort.Slice(s.Orders, func(i, j int) bool { return s.Orders[i].OrderID < s.Orders[j].OrderID })

	e.snapshot.Store(s)
	e.dirty = false
}
