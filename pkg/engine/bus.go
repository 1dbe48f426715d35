package engine

import (
	"github.com/asaskevich/EventBus"

	"github.com/quantlink/spreadgrid/pkg/strategy"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// 事件主题，回调签名见各 payload 类型
const (
	TopicSpreadTrade = "spread:trade"    // func(SpreadTrade)
	TopicOrder       = "order:update"    // func(OrderEvent)
	TopicRisk        = "risk:adjustment" // func(strategy.RiskAdjustment)
	TopicConstrain   = "trade:constrain" // func(ConstrainEvent)
)

// SpreadTrade 一个执行周期结束
type SpreadTrade struct {
	Spread   string
	CycleID  string
	Target   int     // 目标价差手数
	Volume   int     // 实际成交价差手数，带符号
	Price    float64 // 经济系数成交价差
	ExePrice float64
	TgtPrice float64
	Pos      int
	Balanced bool
	TS       int64
}

// OrderEvent 订单发送/回报/成交
type OrderEvent struct {
	Spread  string
	Symbol  string
	OrderID int64
	Kind    types.OrderKind
	Status  types.OrderStatus
	Price   float64
	Volume  int // 成交事件为带符号成交量，其余为报单量
	Trade   bool
	TS      int64
}

// ConstrainEvent 引擎约束变化
type ConstrainEvent struct {
	From types.Constrain
	To   types.Constrain
	TS   int64
}

// Bus 引擎对外的事件总线
type Bus struct {
	EventBus.Bus
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{Bus: EventBus.New()}
}

func (b *Bus) publishTrade(t SpreadTrade) { b.Publish(TopicSpreadTrade, t) }
func (b *Bus) publishOrder(o OrderEvent) { b.Publish(TopicOrder, o) }
func (b *Bus) publishRisk(r strategy.RiskAdjustment) { b.Publish(TopicRisk, r) }
func (b *Bus) publishConstrain(c ConstrainEvent) { b.Publish(TopicConstrain, c) }
