package execution

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// SpreadExec 一个价差的执行周期：一笔主动腿(try)订单 + 其余腿的 ForceTask
// 同一价差同一时间只有一个执行周期，remainPositions 跨周期保留
type SpreadExec struct {
	spreadID     int
	name         string
	arena        *instrument.Arena
	params       *Params
	isProcessing bool

	LegRefs   []int     // 每条腿在 Arena 中的序号
	Coefs     []float64 // 经济系数
	ExeCoefs  []int     // 执行系数，0 表示不下单只按市价计价
	SprdMulti float64

	CycleID string

	TryLegID     int
	SpreadExpVlm int
	SpreadTrdVlm int
	TryExpVlm    int
	TryTrdVlm    int
	ExpVlm       map[int]int
	TrdVlm       map[int]int
	AvgPrice     map[int]float64
	TryAvgPrice  float64

	SpreadAvgPrice float64 // 按经济系数计算的成交价差
	SprdExeAvgPr   float64 // 按执行系数*乘数/sprdMulti 计算的成交价差
	SprdTgtPr      float64 // 触发时的目标价

	TryOrderID int64
	tryOrder   types.OrderRequest

	tasks     map[int]*ForceTask // taskID -> task
	abandoned map[int]bool       // 本周期被放弃的腿

	// legID -> 仍需成交的带符号量
	RemainPositions map[int]int
}

// NewSpreadExec 创建执行器；legRefs/coefs/exeCoefs 等长
func NewSpreadExec(spreadID int, name string, arena *instrument.Arena, params *Params,
	legRefs []int, coefs []float64, exeCoefs []int, sprdMulti float64) *SpreadExec {
	e := &SpreadExec{
		spreadID:        spreadID,
		name:            name,
		arena:           arena,
		params:          params,
		LegRefs:         legRefs,
		Coefs:           coefs,
		ExeCoefs:        exeCoefs,
		SprdMulti:       sprdMulti,
		RemainPositions: make(map[int]int),
	}
	e.Stop()
	return e
}

// SpreadID 价差序号
func (e *SpreadExec) SpreadID() int { return e.spreadID }

// Name 价差名
func (e *SpreadExec) Name() string { return e.name }

// LegCount 腿数
func (e *SpreadExec) LegCount() int { return len(e.LegRefs) }

// IsProcessing 是否处于执行周期中
func (e *SpreadExec) IsProcessing() bool { return e.isProcessing }

// LegID 由 Arena 序号找到价差内腿序号，找不到返回 -1
func (e *SpreadExec) LegID(legRef int) int {
	for i, ref := range e.LegRefs {
		if ref == legRef {
			return i
		}
	}
	return -1
}

// Start 开始一个执行周期
func (e *SpreadExec) Start(expVlm, tryLegID int) {
	if expVlm == 0 {
		e.Stop()
		return
	}
	e.CycleID = uuid.NewString()
	e.SpreadExpVlm = expVlm
	e.TryLegID = tryLegID
	for i, c := range e.ExeCoefs {
		e.ExpVlm[i] = expVlm * c
		e.TrdVlm[i] = 0
		e.AvgPrice[i] = 0
	}
	e.TryExpVlm = expVlm * e.ExeCoefs[tryLegID]
	e.isProcessing = true
}

// Stop 结束周期并清空临时状态
func (e *SpreadExec) Stop() {
	e.CycleID = ""
	e.TryLegID = 0
	e.SpreadExpVlm, e.SpreadTrdVlm, e.TryExpVlm, e.TryTrdVlm = 0, 0, 0, 0
	e.TryAvgPrice, e.SpreadAvgPrice, e.SprdExeAvgPr, e.SprdTgtPr = 0, 0, 0, 0
	e.TryOrderID = -1
	e.ExpVlm = make(map[int]int)
	e.TrdVlm = make(map[int]int)
	e.AvgPrice = make(map[int]float64)
	e.tasks = make(map[int]*ForceTask)
	e.abandoned = make(map[int]bool)
	e.isProcessing = false
}

// PrepareTryOrder 生成主动腿报单：首单为全部目标量，之后补齐到整数个价差
func (e *SpreadExec) PrepareTryOrder() types.OrderRequest {
	leg := e.arena.Get(e.LegRefs[e.TryLegID])
	req := types.OrderRequest{
		Symbol:    leg.Symbol,
		Exchange:  leg.Exchange,
		Direction: types.DirectionOf(e.TryExpVlm),
		Type:      types.OrderTypeFor(e.params.TryOrderWait),
		Kind:      types.KindTry,
	}
	if e.TryExpVlm > 0 {
		req.Price = leg.BuyPrice(e.params.TryPriceAdj)
	} else {
		req.Price = leg.SellPrice(e.params.TryPriceAdj)
	}
	if e.TryTrdVlm == 0 {
		req.Volume = absInt(e.TryExpVlm)
	} else {
		full := e.calcLegVlm(e.TryLegID, e.calcSprdVlmCeil(e.TryLegID, e.TryTrdVlm))
		req.Volume = absInt(full) - absInt(e.TryTrdVlm)
	}
	e.tryOrder = req
	return req
}

// TryOrder 最近一次生成的主动腿报单
func (e *SpreadExec) TryOrder() types.OrderRequest { return e.tryOrder }

// TryOrderSent 主动腿下单成功
func (e *SpreadExec) TryOrderSent(orderID int64) { e.TryOrderID = orderID }

// TryOrderSendFailed 主动腿下单失败
func (e *SpreadExec) TryOrderSendFailed() { e.TryOrderID = -1 }

// TryOrderFailed 主动腿订单被拒
func (e *SpreadExec) TryOrderFailed() { e.TryOrderID = -1 }

// TryOrderFinished 主动腿订单终结
func (e *SpreadExec) TryOrderFinished() { e.TryOrderID = -1 }

func (e *SpreadExec) calcLegVlm(legID, sprdVlm int) int {
	return sprdVlm * e.ExeCoefs[legID]
}

// calcSprdVlm 腿成交量折算为价差手数，向零取整
func (e *SpreadExec) calcSprdVlm(legID, legVlm int) int {
	c := e.ExeCoefs[legID]
	if c == 0 {
		return 0
	}
	return legVlm / c
}

// calcSprdVlmCeil 腿成交量折算为价差手数，远离零取整
func (e *SpreadExec) calcSprdVlmCeil(legID, legVlm int) int {
	c := e.ExeCoefs[legID]
	if c == 0 {
		return 0
	}
	q := legVlm / c
	if q*c != legVlm {
		if (legVlm < 0) != (c < 0) {
			q--
		} else {
			q++
		}
	}
	return q
}

// TryOrderTraded 主动腿成交
func (e *SpreadExec) TryOrderTraded(volume int, price float64) {
	if e.TryTrdVlm != 0 {
		e.TryAvgPrice = (e.TryAvgPrice*float64(e.TryTrdVlm) + price*float64(volume)) / float64(e.TryTrdVlm+volume)
	} else {
		e.TryAvgPrice = price
	}
	e.TryTrdVlm += volume
	e.legTraded(e.TryLegID, volume, price)
}

// ForceOrderTraded 跟随腿成交
func (e *SpreadExec) ForceOrderTraded(legID, volume int, price float64) {
	e.legTraded(legID, volume, price)
}

func (e *SpreadExec) legTraded(legID, volume int, price float64) {
	trd := e.TrdVlm[legID]
	if trd != 0 && trd+volume != 0 {
		e.AvgPrice[legID] = (e.AvgPrice[legID]*float64(trd) + price*float64(volume)) / float64(trd+volume)
	} else {
		e.AvgPrice[legID] = price
	}
	e.TrdVlm[legID] = trd + volume
}

// PendingVlm 该腿为匹配主动腿已成交价差手数还需成交的带符号量
func (e *SpreadExec) PendingVlm(legID int) int {
	tryTrd2Sprd := e.calcSprdVlmCeil(e.TryLegID, e.TryTrdVlm)
	return tryTrd2Sprd*e.ExeCoefs[legID] - e.TrdVlm[legID]
}

// PendingTask 挂在该腿上的任务 taskID，没有返回 -1
func (e *SpreadExec) PendingTask(legID int) int {
	for id, t := range e.tasks {
		if t.LegID == legID {
			return id
		}
	}
	return -1
}

// IsBalanced 各执行腿成交量都恰好折算为 SpreadTrdVlm 个价差
func (e *SpreadExec) IsBalanced() bool {
	for legID, c := range e.ExeCoefs {
		if c == 0 {
			continue
		}
		vlm := e.TrdVlm[legID]
		sprd := e.calcSprdVlm(legID, vlm)
		if sprd != e.SpreadTrdVlm || e.calcLegVlm(legID, sprd) != vlm {
			return false
		}
	}
	return true
}

// CalcSpreadTrdVolume 计算本周期实际成交的价差手数和成交价差
// 不平衡时把各腿缺口记入 RemainPositions
func (e *SpreadExec) CalcSpreadTrdVolume() int {
	vlm := math.MaxInt
	e.SpreadAvgPrice, e.SprdExeAvgPr = 0, 0
	for i, c := range e.ExeCoefs {
		if c != 0 {
			vlm = minInt(vlm, absInt(e.calcSprdVlm(i, e.TrdVlm[i])))
		}
	}
	if vlm == math.MaxInt {
		vlm = 0
	}
	for i, c := range e.ExeCoefs {
		leg := e.arena.Get(e.LegRefs[i])
		if c != 0 {
			e.SpreadAvgPrice += e.Coefs[i] * e.AvgPrice[i]
		} else {
			e.SpreadAvgPrice += e.Coefs[i] * e.marketPrice(i)
		}
		e.SprdExeAvgPr += float64(c) * e.AvgPrice[i] * leg.Multiplier / e.SprdMulti
	}
	if e.SpreadExpVlm < 0 {
		vlm = -vlm
	}
	e.SpreadTrdVlm = vlm
	if vlm == 0 {
		e.SpreadAvgPrice, e.SprdExeAvgPr = 0, 0
	}
	if !e.IsBalanced() {
		e.AddRemainPositions()
	}
	return vlm
}

// marketPrice 不下单的腿按本次价差方向会成交到的对手价计价
func (e *SpreadExec) marketPrice(legID int) float64 {
	leg := e.arena.Get(e.LegRefs[legID])
	side := e.Coefs[legID] * float64(e.SpreadExpVlm)
	switch {
	case side > 0:
		return leg.AP
	case side < 0:
		return leg.BP
	}
	return leg.MidPrice()
}

// AddRemainPositions 记录各执行腿相对已实现价差手数的缺口
func (e *SpreadExec) AddRemainPositions() {
	for legID, c := range e.ExeCoefs {
		if c == 0 {
			continue
		}
		diff := e.SpreadTrdVlm*c - e.TrdVlm[legID]
		if diff == 0 {
			continue
		}
		e.RemainPositions[legID] += diff
		if e.RemainPositions[legID] == 0 {
			delete(e.RemainPositions, legID)
		}
	}
}

// ReduceRemainPositions 清理单成交后扣减，volume 为带符号成交量
func (e *SpreadExec) ReduceRemainPositions(legID, volume int) {
	if _, ok := e.RemainPositions[legID]; !ok {
		return
	}
	e.RemainPositions[legID] -= volume
	if e.RemainPositions[legID] == 0 {
		delete(e.RemainPositions, legID)
	}
}

// RestoreRemainPositions 从状态文件还原缺口，忽略越界和不下单的腿
func (e *SpreadExec) RestoreRemainPositions(remain map[int]int) int {
	n := 0
	for legID, pos := range remain {
		if legID < 0 || legID >= len(e.ExeCoefs) || e.ExeCoefs[legID] == 0 || pos == 0 {
			continue
		}
		e.RemainPositions[legID] = pos
		n++
	}
	return n
}

// RemainLegs 有缺口的腿，按序号排序
func (e *SpreadExec) RemainLegs() []int {
	legs := make([]int, 0, len(e.RemainPositions))
	for id := range e.RemainPositions {
		legs = append(legs, id)
	}
	sort.Ints(legs)
	return legs
}

// SubscribeTask 登记 ForceTask
func (e *SpreadExec) SubscribeTask(t *ForceTask) {
	e.ExpVlm[t.LegID] = t.ExpVlm
	e.tasks[t.TaskID] = t
}

// UnsubscribeTask 注销 ForceTask；任务已放弃时把该腿标记为放弃
func (e *SpreadExec) UnsubscribeTask(taskID int) {
	t, ok := e.tasks[taskID]
	if !ok {
		return
	}
	if t.Abandoned() {
		e.abandoned[t.LegID] = true
	}
	delete(e.tasks, taskID)
}

// GetTask 按 taskID 取任务
func (e *SpreadExec) GetTask(taskID int) *ForceTask { return e.tasks[taskID] }

// Tasks 当前任务数
func (e *SpreadExec) Tasks() int { return len(e.tasks) }

// AbandonLeg 本周期不再为该腿下单，缺口在结束时记入 RemainPositions
func (e *SpreadExec) AbandonLeg(legID int) { e.abandoned[legID] = true }

// IsAbandoned 该腿是否已放弃
func (e *SpreadExec) IsAbandoned(legID int) bool { return e.abandoned[legID] }

// TryStop 主动腿无在途单、没有任务、各腿（放弃的除外）都已补齐时可结束
func (e *SpreadExec) TryStop() bool {
	if e.TryOrderID >= 0 || len(e.tasks) > 0 {
		return false
	}
	for legID := range e.ExeCoefs {
		if e.abandoned[legID] {
			continue
		}
		if e.PendingVlm(legID) != 0 {
			return false
		}
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
