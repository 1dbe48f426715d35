package engine

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/quantlink/spreadgrid/pkg/execution"
	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// OnMarketData 一笔行情：更新腿、驱动跟随腿追单、触发以该腿为最慢腿的价差
func (e *Engine) OnMarketData(md types.MarketData) {
	now := e.clock.Now()
	e.fireTimers(now)
	if e.control.onDayEnd || !e.ready {
		return
	}
	leg, ok := e.arena.BySymbol(md.Symbol)
	if !ok {
		return
	}

	constrain := e.control.Constrain()
	if constrain < types.Disabled {
		leg.Update(md)
		e.triggerForceOrder(leg, now)
		isNewSnap := e.seq.Update(leg.ID, now, md.Timestamp)
		safe := e.sched.InSession(md.Timestamp) && e.sched.InSession(md.Timestamp+safeSessionMillis)
		e.triggerSpread(leg.ID, now, constrain, isNewSnap, safe)
	} else if e.control.onDaySettle && !e.orders.HasOrder(leg.ID) {
		leg.Update(md)
		e.dailySettle(leg)
	}
	e.needOnBar = true
	e.dirty = true
}

// triggerForceOrder 腿上的 ForceTask 收到新行情后按需重新下单
func (e *Engine) triggerForceOrder(leg *instrument.Leg, now int64) {
	tasks := leg.Tasks()
	workers := make([]int, 0, len(tasks))
	for wid := range tasks {
		workers = append(workers, wid)
	}
	sort.Ints(workers)

	for _, wid := range workers {
		task := e.pool.Get(wid)
		if task == nil || !task.HasTask() || task.TaskID != tasks[wid] {
			continue
		}
		task.NotifyMD()
		sp := e.spreads[task.SpreadID]
		if task.NeedResend() {
			if !e.sendForceOrder(sp, task, now) {
				return
			}
		} else if task.TryStop() {
			e.finishForceTask(sp, task, now)
		}
	}
}

func (e *Engine) triggerSpread(ref int, now int64, constrain types.Constrain, isNewSnap, safe bool) {
	if isNewSnap {
		e.triggerStart = 0
	}
	end, ok := e.instTriggerMap[ref]
	if !ok {
		return
	}
	for i := e.triggerStart; i < end; i++ {
		sp := e.spreads[e.sortedSpreads[i]]
		if sp.Exec.IsProcessing() || !safe {
			continue
		}
		action := sp.Signal.TrySignal(constrain, now)
		if action == 0 {
			continue
		}
		e.startSpreadExec(sp, action, now)
	}
	e.triggerStart = end
}

// startSpreadExec 开始执行周期并发出主动腿订单
func (e *Engine) startSpreadExec(sp *Spread, action int, now int64) {
	tryLeg := e.cfg.Strategy.TryLegID
	if tryLeg < 0 || tryLeg >= len(sp.Def.ExeCoefs) || sp.Def.ExeCoefs[tryLeg] == 0 {
		tryLeg = sp.Signal.ChooseLeg(action)
	}
	target := sp.Signal.NotifyExecStarted(action)
	sp.Exec.Start(action, tryLeg)
	sp.Exec.SprdTgtPr = target

	logger.WithFields(logrus.Fields{
		"spread": sp.Name(),
		"cycle":  sp.Exec.CycleID,
		"action": action,
		"tryLeg": tryLeg,
		"target": target,
	}).Info("[Engine] spread exec started")

	e.sendTryOrder(sp, now)
	e.persist()
}

func (e *Engine) sendTryOrder(sp *Spread, now int64) bool {
	exec := sp.Exec
	req := exec.PrepareTryOrder()
	req.OffsetStrategy = e.offsetStrategy
	ctx := execution.OrderContext{
		SpreadID: sp.ID,
		LegID:    exec.TryLegID,
		LegRef:   exec.LegRefs[exec.TryLegID],
		TaskID:   -1,
	}
	ord, err := e.orders.SendNewOrder(req, ctx, now)
	if err != nil {
		logger.Warnf("[Engine] %s try order: %v", sp.Name(), err)
		exec.TryOrderSendFailed()
		exec.AbandonLeg(exec.TryLegID)
		if exec.TryStop() {
			e.finishSpreadExec(sp, now)
		}
		return false
	}
	exec.TryOrderSent(ord.OrderID)
	e.publishSent(sp, req, ord, now)
	return true
}

// OnOrderUpdate 订单回报
func (e *Engine) OnOrderUpdate(u types.OrderUpdate) {
	now := e.clock.Now()
	e.fireTimers(now)
	ord, ok := e.orders.Get(u.OrderID)
	if !ok {
		logger.Debugf("[Engine] update for unknown order %d", u.OrderID)
		return
	}
	first := !ord.Acked
	ord.Acked = true
	ord.Status = u.Status
	if u.TradedVolume > ord.ReportedVolume {
		ord.ReportedVolume = u.TradedVolume
	}
	if u.Status == types.StatusRejected {
		e.counters.RejectCount++
		logger.Warnf("[Engine] order %d %s rejected: %s", ord.OrderID, ord.Kind, u.Message)
	}
	e.bus.publishOrder(OrderEvent{
		Spread:  e.spreadName(ord.SpreadID),
		Symbol:  e.arena.Get(ord.LegRef).Symbol,
		OrderID: ord.OrderID,
		Kind:    ord.Kind,
		Status:  ord.Status,
		Price:   ord.Price,
		Volume:  ord.Volume,
		TS:      now,
	})
	e.dirty = true

	if !ord.Status.Finished() {
		if first && ord.Type == types.OrderLimit {
			e.setTimer(now+int64(e.orderWait(ord.Kind)), types.TimerAutoCancel, ord.OrderID, 0)
		}
		return
	}
	e.checkOrderFinished(ord, now)
}

func (e *Engine) orderWait(kind types.OrderKind) int {
	switch kind {
	case types.KindTry:
		return e.params.TryOrderWait
	case types.KindForce:
		return e.params.ForceOrderWait
	}
	return e.cfg.Strategy.ClearOrderWait
}

// onAutoCancel Limit 单挂满等待时间后撤单
func (e *Engine) onAutoCancel(orderID int64) {
	ord, ok := e.orders.Get(orderID)
	if !ok || ord.Status.Finished() {
		return
	}
	e.orders.SendCancelOrderByID(orderID)
}

// OnTrade 成交回报
func (e *Engine) OnTrade(t types.TradeReport) {
	now := e.clock.Now()
	e.fireTimers(now)
	ord, ok := e.orders.Get(t.OrderID)
	if !ok || t.Volume <= 0 {
		logger.Debugf("[Engine] ignore trade for order %d vol=%d", t.OrderID, t.Volume)
		return
	}
	ord.TradedVolume += t.Volume
	signed := t.Volume * ord.Direction.Sign()
	sp := e.spreads[ord.SpreadID]
	leg := e.arena.Get(ord.LegRef)
	leg.NotifyOpenTrade(signed, t.Price)

	switch ord.Kind {
	case types.KindTry:
		sp.Exec.TryOrderTraded(signed, t.Price)
	case types.KindForce:
		sp.Exec.ForceOrderTraded(ord.LegID, signed, t.Price)
	case types.KindClear:
		sp.Exec.ReduceRemainPositions(ord.LegID, signed)
	}

	if flow := logger.Flow(); flow != nil {
		flow.WithFields(logrus.Fields{
			"spread": sp.Name(),
			"symbol": leg.Symbol,
			"kind":   ord.Kind.String(),
			"order":  ord.OrderID,
			"vol":    signed,
			"price":  t.Price,
			"pos":    leg.Pos,
		}).Info("TRADE")
	}
	e.bus.publishOrder(OrderEvent{
		Spread:  sp.Name(),
		Symbol:  leg.Symbol,
		OrderID: ord.OrderID,
		Kind:    ord.Kind,
		Status:  ord.Status,
		Price:   t.Price,
		Volume:  signed,
		Trade:   true,
		TS:      now,
	})
	e.dirty = true

	switch ord.Kind {
	case types.KindTry:
		e.startForceTasks(sp, now)
	case types.KindClear:
		e.persist()
	}
	e.checkOrderFinished(ord, now)
}

// checkOrderFinished 订单终结且成交回报齐全后收尾
func (e *Engine) checkOrderFinished(ord *types.OrderStats, now int64) {
	if _, ok := e.orders.Get(ord.OrderID); !ok || !ord.Finished() {
		return
	}
	e.orders.RemoveOrder(ord.OrderID)
	sp := e.spreads[ord.SpreadID]
	exec := sp.Exec

	switch ord.Kind {
	case types.KindTry:
		if exec.TryOrderID != ord.OrderID {
			return
		}
		if ord.Status == types.StatusRejected {
			exec.TryOrderFailed()
			exec.AbandonLeg(exec.TryLegID)
		} else {
			exec.TryOrderFinished()
		}
		// 主动腿成交不足整数个价差，补单
		if !exec.IsAbandoned(exec.TryLegID) && exec.PendingVlm(exec.TryLegID) != 0 {
			e.sendTryOrder(sp, now)
			return
		}
		if exec.IsProcessing() && exec.TryStop() {
			e.finishSpreadExec(sp, now)
		}
	case types.KindForce:
		task := exec.GetTask(ord.TaskID)
		if task == nil || task.OrderID != ord.OrderID {
			return
		}
		e.finishForceOrder(sp, task, ord, now)
	}
}

func (e *Engine) finishForceOrder(sp *Spread, task *execution.ForceTask, ord *types.OrderStats, now int64) {
	if ord.Status == types.StatusRejected && ord.TradedVolume == 0 {
		task.NotifyOrderFailed()
	} else {
		task.NotifyOrderFinish(ord.SignedTraded())
	}
	if task.NeedResend() {
		e.sendForceOrder(sp, task, now)
		return
	}
	if task.TryStop() {
		e.finishForceTask(sp, task, now)
	}
}

// startForceTasks 主动腿成交后为其余执行腿启动追单
func (e *Engine) startForceTasks(sp *Spread, now int64) {
	for _, legID := range sp.Def.ExecutedLegs() {
		if legID != sp.Exec.TryLegID {
			e.startForceTask(sp, legID, now)
		}
	}
}

// startForceTask 已有任务时复用并把目标更新为当前缺口，否则从池中取一个
func (e *Engine) startForceTask(sp *Spread, legID int, now int64) bool {
	exec := sp.Exec
	if !exec.IsProcessing() || exec.IsAbandoned(legID) {
		return false
	}
	pending := exec.PendingVlm(legID)

	var task *execution.ForceTask
	if id := exec.PendingTask(legID); id >= 0 {
		task = exec.GetTask(id)
	}
	if task == nil {
		if pending == 0 {
			return false
		}
		task = e.pool.Acquire()
		if task == nil {
			logger.Warnf("[Engine] %s leg %d: no free worker (%d busy)", sp.Name(), legID, e.pool.Busy())
			return false
		}
	} else if task.HasOrder() {
		return false
	}

	ref := exec.LegRefs[legID]
	task.Start(sp.ID, legID, ref, task.TrdVlm+pending)
	exec.SubscribeTask(task)
	e.arena.Get(ref).SubscribeTask(task.WorkerID(), task.TaskID)

	stop := now + int64(e.params.ForceTaskWait)
	e.setTimer(stop, types.TimerForceTaskTimeOut, int64(task.WorkerID()), int64(task.TaskID))
	task.NotifyTimerSet(stop)

	if task.NeedResend() {
		return e.sendForceOrder(sp, task, now)
	}
	if task.TryStop() {
		e.finishForceTask(sp, task, now)
	}
	return true
}

func (e *Engine) sendForceOrder(sp *Spread, task *execution.ForceTask, now int64) bool {
	req := task.PrepareOrder()
	req.OffsetStrategy = e.offsetStrategy
	if req.Volume == 0 {
		if task.TryStop() {
			e.finishForceTask(sp, task, now)
		}
		return false
	}
	ctx := execution.OrderContext{
		SpreadID: sp.ID,
		LegID:    task.LegID,
		LegRef:   task.LegRef,
		TaskID:   task.TaskID,
	}
	ord, err := e.orders.SendNewOrder(req, ctx, now)
	if err != nil {
		logger.Warnf("[Engine] %s force order: %v", sp.Name(), err)
		task.NotifyOrderSendFailed()
		if task.TryStop() {
			e.finishForceTask(sp, task, now)
		}
		return false
	}
	task.NotifyOrderSent(ord.OrderID)
	e.publishSent(sp, req, ord, now)
	return true
}

// finishForceTask 注销任务、归还槽位，必要时结束执行周期并为其他价差补启任务
func (e *Engine) finishForceTask(sp *Spread, task *execution.ForceTask, now int64) {
	exec := sp.Exec
	exec.UnsubscribeTask(task.TaskID)
	if leg := e.arena.Get(task.LegRef); leg != nil {
		leg.UnsubscribeTask(task.WorkerID())
	}
	task.Stop()
	if exec.IsProcessing() && exec.TryStop() {
		e.finishSpreadExec(sp, now)
	}
	e.startPendingTasks(now)
}

// startPendingTasks 因池满未能启动的跟随腿
func (e *Engine) startPendingTasks(now int64) {
	for _, sp := range e.spreads {
		exec := sp.Exec
		if !exec.IsProcessing() {
			continue
		}
		for _, legID := range sp.Def.ExecutedLegs() {
			if legID == exec.TryLegID {
				continue
			}
			if exec.PendingVlm(legID) != 0 && exec.PendingTask(legID) < 0 {
				e.startForceTask(sp, legID, now)
			}
		}
	}
}

func (e *Engine) onForceTaskTimeOut(workerID, taskID int, now int64) {
	task := e.pool.Get(workerID)
	if task == nil || !task.HasTask() || task.TaskID != taskID {
		return
	}
	if !task.CheckTimeout(now) {
		return
	}
	sp := e.spreads[task.SpreadID]
	logger.Warnf("[Engine] %s leg %d force task %d timed out, remain %d",
		sp.Name(), task.LegID, task.TaskID, task.RemainVlm())
	if task.HasOrder() {
		e.orders.SendCancelOrderByID(task.OrderID)
		return
	}
	if task.RemainVlm() != 0 {
		sp.Exec.AbandonLeg(task.LegID)
	}
	e.finishForceTask(sp, task, now)
}

// finishSpreadExec 结算执行周期：通知信号、更新计数、写流水和状态
func (e *Engine) finishSpreadExec(sp *Spread, now int64) {
	exec := sp.Exec
	exp := exec.SpreadExpVlm
	vol := exec.CalcSpreadTrdVolume()
	balanced := exec.IsBalanced()
	c := e.counters

	if vol != 0 {
		sp.Signal.NotifyExecFinished(vol, exec.SpreadAvgPrice, now, exec.SprdExeAvgPr)
		c.TradeCount++
		c.TradeVolume += absInt(vol)
		if vol != exp {
			c.CancelVolume += absInt(exp - vol)
		}
	} else {
		c.CancelCount++
		c.CancelVolume += absInt(exp)
	}
	if !balanced {
		c.FailedCount++
		logger.Warnf("[Engine] %s cycle %s unbalanced, remain %v", sp.Name(), exec.CycleID, exec.RemainPositions)
	}
	c.SendCount++
	c.SendVolume += absInt(exp)

	st := sp.Signal.State()
	trade := SpreadTrade{
		Spread:   sp.Name(),
		CycleID:  exec.CycleID,
		Target:   exp,
		Volume:   vol,
		Price:    exec.SpreadAvgPrice,
		ExePrice: exec.SprdExeAvgPr,
		TgtPrice: exec.SprdTgtPr,
		Pos:      st.Pos,
		Balanced: balanced,
		TS:       now,
	}
	if vol != 0 {
		st.LastCycle = exec.CycleID
		e.flowSpreadTrade(trade)
		e.flowSpreadPos(sp, "TRD")
	}
	logger.WithFields(logrus.Fields{
		"spread":   trade.Spread,
		"cycle":    trade.CycleID,
		"target":   exp,
		"volume":   vol,
		"price":    trade.Price,
		"balanced": balanced,
		"pos":      st.Pos,
	}).Info("[Engine] spread exec finished")

	exec.Stop()
	e.updateConstrain()
	e.persist()
	e.dirty = true
	e.bus.publishTrade(trade)
}

// clearRemainPositions 为不平衡周期遗留的腿缺口下清理单
func (e *Engine) clearRemainPositions(now int64) {
	adj := e.cfg.Strategy.ClearPriceAdj
	for _, id := range e.trdSprds {
		sp := e.spreads[id]
		exec := sp.Exec
		if exec.IsProcessing() {
			continue
		}
		for _, legID := range exec.RemainLegs() {
			pos := exec.RemainPositions[legID]
			ref := exec.LegRefs[legID]
			leg := e.arena.Get(ref)
			if pos == 0 || e.orders.HasOrder(ref) {
				continue
			}
			req := types.OrderRequest{
				Symbol:         leg.Symbol,
				Exchange:       leg.Exchange,
				Direction:      types.DirectionOf(pos),
				Type:           types.OrderTypeFor(e.cfg.Strategy.ClearOrderWait),
				Volume:         absInt(pos),
				OffsetStrategy: e.offsetStrategy,
				Kind:           types.KindClear,
			}
			if pos > 0 {
				if leg.AQ <= 0 {
					continue
				}
				req.Price = leg.BuyPrice(adj)
			} else {
				if leg.BQ <= 0 {
					continue
				}
				req.Price = leg.SellPrice(adj)
			}
			ord, err := e.orders.SendNewOrder(req, execution.OrderContext{
				SpreadID: sp.ID,
				LegID:    legID,
				LegRef:   ref,
				TaskID:   -1,
			}, now)
			if err != nil {
				logger.Warnf("[Engine] %s clear order: %v", sp.Name(), err)
				continue
			}
			logger.Infof("[Engine] %s clear %s %s %d@%.2f", sp.Name(), leg.Symbol, req.Direction, req.Volume, req.Price)
			e.publishSent(sp, req, ord, now)
		}
	}
}

func (e *Engine) publishSent(sp *Spread, req types.OrderRequest, ord *types.OrderStats, now int64) {
	logger.Debugf("[Engine] %s sent %s order %d %s %s %d@%.2f",
		sp.Name(), req.Kind, ord.OrderID, req.Symbol, req.Direction, req.Volume, req.Price)
	e.bus.publishOrder(OrderEvent{
		Spread:  sp.Name(),
		Symbol:  req.Symbol,
		OrderID: ord.OrderID,
		Kind:    req.Kind,
		Status:  ord.Status,
		Price:   req.Price,
		Volume:  req.Volume,
		TS:      now,
	})
}

func (e *Engine) spreadName(id int) string {
	if id < 0 || id >= len(e.spreads) {
		return ""
	}
	return e.spreads[id].Name()
}

func (e *Engine) flowSpreadTrade(t SpreadTrade) {
	flow := logger.Flow()
	if flow == nil {
		return
	}
	flow.WithFields(logrus.Fields{
		"spread":   t.Spread,
		"cycle":    t.CycleID,
		"vol":      t.Volume,
		"target":   t.Target,
		"price":    t.Price,
		"exePrice": t.ExePrice,
		"tgtPrice": t.TgtPrice,
		"time":     formatClock(t.TS),
	}).Info("SPRDTRD")
}

func (e *Engine) flowSpreadPos(sp *Spread, stts string) {
	flow := logger.Flow()
	if flow == nil {
		return
	}
	st := sp.Signal.State()
	flow.WithFields(logrus.Fields{
		"spread": sp.Name(),
		"stts":   stts,
		"day":    e.tradingDay,
		"cycle":  st.LastCycle,
		"pos":    st.Pos,
		"atp":    st.Atp,
		"pnl":    st.Pnl,
		"margin": sp.Signal.TotalMargin(),
	}).Info("SPRDPOS")
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
