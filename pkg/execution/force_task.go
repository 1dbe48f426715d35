package execution

import (
	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// TimeoutGuardMillis 超时判断提前量
const TimeoutGuardMillis = 5

// Params 执行相关参数，运行中可被运维命令修改
type Params struct {
	TryOrderWait     int // 主动腿挂单等待（ms），<0 下 FAK
	TryPriceAdj      int // 主动腿价格调整 tick 数
	ForceOrderWait   int // 跟随腿挂单等待（ms），<0 下 FAK
	ForceTaskWait    int // ForceTask 超时（ms）
	StartPriceAdj    int // 跟随腿起始调整 tick
	StepAdjBetweenMD int // 两笔行情之间每次重试追加 tick
	StepAdjAfterMD   int // 每来一笔行情追加 tick
	MaxTriedBtwMD    int // 两笔行情之间最多重试次数
	MaxError         int // 最多报错次数
	MaxTried         int // 最多下单次数
}

// DefaultParams 默认执行参数
func DefaultParams() Params {
	return Params{
		TryOrderWait:     100,
		TryPriceAdj:      0,
		ForceOrderWait:   100,
		ForceTaskWait:    10000,
		StartPriceAdj:    0,
		StepAdjBetweenMD: 2,
		StepAdjAfterMD:   1,
		MaxTriedBtwMD:    3,
		MaxError:         10,
		MaxTried:         100,
	}
}

// TaskState ForceTask.UpdateConstrain 的结果
type TaskState int

const (
	TaskResend   TaskState = 0  // 需要(重新)下单
	TaskHasOrder TaskState = -1 // 有在途订单
	TaskDone     TaskState = -2 // 目标量已完成
	TaskWaitMD   TaskState = 1  // 两笔行情间重试次数用尽，等下一笔行情
	TaskTerminal TaskState = 2  // 报错/总次数/超时，放弃
)

// ForceTask 单腿追单任务：按递增的价格激进度反复下单直到成交目标量
type ForceTask struct {
	workerID int
	params   *Params
	arena    *instrument.Arena
	hasTask  bool

	TaskID   int
	SpreadID int
	LegID    int // 价差内腿序号
	LegRef   int // Arena 中的合约序号
	OrderID  int64
	StopTS   int64

	ExpVlm int
	TrdVlm int

	TriedCount     int
	TriedBetweenMD int
	TriedAfterMD   int
	ErrorCount     int
	TimedOut       bool
}

func newForceTask(workerID int, params *Params, arena *instrument.Arena) *ForceTask {
	t := &ForceTask{workerID: workerID, params: params, arena: arena}
	t.reset()
	return t
}

func (t *ForceTask) reset() {
	t.hasTask = false
	t.TaskID, t.SpreadID, t.LegID, t.LegRef = -1, -1, -1, -1
	t.OrderID, t.StopTS = -1, -1
	t.ExpVlm, t.TrdVlm = 0, 0
	t.TriedCount, t.TriedBetweenMD, t.TriedAfterMD, t.ErrorCount = 0, 0, 0, 0
	t.TimedOut = false
}

func (t *ForceTask) init(taskID int) {
	t.TaskID = taskID
	t.hasTask = true
}

// Start 绑定价差和腿，expVlm 为带符号目标量
func (t *ForceTask) Start(spreadID, legID, legRef, expVlm int) {
	t.SpreadID = spreadID
	t.LegID = legID
	t.LegRef = legRef
	t.ExpVlm = expVlm
}

// WorkerID 池内槽位号
func (t *ForceTask) WorkerID() int { return t.workerID }

// HasTask 是否已被占用
func (t *ForceTask) HasTask() bool { return t.hasTask }

// HasOrder 是否有在途订单
func (t *ForceTask) HasOrder() bool { return t.OrderID >= 0 }

// RemainVlm 剩余带符号量
func (t *ForceTask) RemainVlm() int { return t.ExpVlm - t.TrdVlm }

// AdjTicks 当前价格调整 tick 数
func (t *ForceTask) AdjTicks() int {
	adj := t.params.StartPriceAdj
	adj += t.TriedBetweenMD * t.params.StepAdjBetweenMD
	adj += t.TriedAfterMD * t.params.StepAdjAfterMD
	return adj
}

// PrepareOrder 按剩余量生成报单：买在卖一上加价，卖在买一下减价，受涨跌停限制
func (t *ForceTask) PrepareOrder() types.OrderRequest {
	leg := t.arena.Get(t.LegRef)
	volume := t.RemainVlm()
	req := types.OrderRequest{
		Symbol:    leg.Symbol,
		Exchange:  leg.Exchange,
		Direction: types.DirectionOf(volume),
		Type:      types.OrderTypeFor(t.params.ForceOrderWait),
		Volume:    absInt(volume),
		Kind:      types.KindForce,
	}
	if volume > 0 {
		req.Price = leg.BuyPrice(t.AdjTicks())
	} else {
		req.Price = leg.SellPrice(t.AdjTicks())
	}
	return req
}

// NotifyOrderSent 下单成功
func (t *ForceTask) NotifyOrderSent(orderID int64) {
	t.OrderID = orderID
	t.TriedCount++
	t.TriedBetweenMD++
}

// NotifyOrderSendFailed 下单失败
func (t *ForceTask) NotifyOrderSendFailed() {
	t.OrderID = -1
	t.ErrorCount++
}

// NotifyOrderFailed 订单被拒
func (t *ForceTask) NotifyOrderFailed() {
	t.OrderID = -1
	t.ErrorCount++
}

// NotifyOrderFinish 订单终结，volume 为带符号成交量
func (t *ForceTask) NotifyOrderFinish(volume int) {
	t.OrderID = -1
	t.TrdVlm += volume
}

// NotifyMD 腿上来了新行情：无在途订单时累加 after-MD 计数，保证这笔行情会触发下单
func (t *ForceTask) NotifyMD() {
	t.TriedBetweenMD = 0
	if !t.HasOrder() {
		t.TriedAfterMD++
	}
}

// NotifyTimerSet 记录超时时刻
func (t *ForceTask) NotifyTimerSet(ts int64) { t.StopTS = ts }

// CheckTimeout 到达超时时刻后锁定为超时
func (t *ForceTask) CheckTimeout(ts int64) bool {
	if !t.TimedOut && t.StopTS >= 0 && ts+TimeoutGuardMillis >= t.StopTS {
		t.TimedOut = true
	}
	return t.TimedOut
}

// UpdateConstrain 计算任务状态；报错/次数/超时优先于等行情，终结的任务不再等下一笔行情
func (t *ForceTask) UpdateConstrain() TaskState {
	switch {
	case t.HasOrder():
		return TaskHasOrder
	case t.RemainVlm() == 0:
		return TaskDone
	case t.ErrorCount >= t.params.MaxError:
		return TaskTerminal
	case t.TriedCount >= t.params.MaxTried:
		return TaskTerminal
	case t.TimedOut:
		return TaskTerminal
	case t.TriedBetweenMD >= t.params.MaxTriedBtwMD:
		return TaskWaitMD
	}
	return TaskResend
}

// NeedResend 是否需要重新下单
func (t *ForceTask) NeedResend() bool { return t.UpdateConstrain() == TaskResend }

// TryStop 任务是否可以结束
func (t *ForceTask) TryStop() bool {
	s := t.UpdateConstrain()
	return s == TaskDone || s == TaskTerminal
}

// Abandoned 任务因报错/次数/超时放弃且仍有剩余量
func (t *ForceTask) Abandoned() bool {
	return t.UpdateConstrain() == TaskTerminal && t.RemainVlm() != 0
}

// Stop 归还到池中
func (t *ForceTask) Stop() { t.reset() }
