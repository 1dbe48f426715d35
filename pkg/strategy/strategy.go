package strategy

import (
	"github.com/quantlink/spreadgrid/pkg/types"
)

// Signal 引擎驱动单个价差信号所需的接口
type Signal interface {
	// TrySignal 评估一次价差，返回带符号的交易手数
	TrySignal(external types.Constrain, ts int64) int

	// ChooseLeg 未指定主动腿时选择主动腿
	ChooseLeg(action int) int

	// NotifyExecStarted 执行周期开始，返回目标价差
	NotifyExecStarted(action int) float64

	// NotifyExecFinished 执行周期结束
	NotifyExecFinished(volume int, price float64, ts int64, exePrice float64)

	OnBar(ts int64)
	Settle()

	AddConstrain(c types.Constrain)
	SelfConstrain() types.Constrain
	Tradable() bool
	TotalMargin() float64
	RefreshLimits()
	Reprice()
	SetTradingDay(day int)

	State() *SpreadSignal
	Status() Status
}

var _ Signal = (*GridSignal)(nil)

// State 持久化状态
func (g *GridSignal) State() *SpreadSignal { return g.Sig }
