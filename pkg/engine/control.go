package engine

import (
	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// onPeriod 周期 bar：刷新理论价与网格边界、更新约束、清理残余仓位
func (e *Engine) onPeriod(now int64) {
	if !e.needOnBar || !e.sched.InSession(now-1000) {
		return
	}
	for _, leg := range e.arena.All() {
		leg.OnBar()
	}
	net := 0.0
	for _, sp := range e.spreads {
		sp.Signal.OnBar(now)
		net += sp.Signal.State().Pnl
	}
	e.counters.PnL.Update(net)
	e.updateConstrain()
	if e.control.Constrain() < types.Disabled {
		e.clearRemainPositions(now)
	}
	if e.seq.Enabled() {
		e.updateInstTriggerMap()
	}
	e.needOnBar = false
	e.dirty = true
	e.persist()
}

// onOnlyClose 只平阶段：本身只平的价差开始压缩超限仓位
func (e *Engine) onOnlyClose() {
	for _, id := range e.trdSprds {
		sig := e.spreads[id].Signal
		if sig.SelfConstrain() == types.CloseOnly {
			sig.AddConstrain(types.Squeeze)
		}
	}
}

func (e *Engine) onDaySettle() {
	for _, leg := range e.arena.All() {
		if !e.orders.HasOrder(leg.ID) {
			e.dailySettle(leg)
		}
	}
}

// dailySettle 腿按结算价定价，并刷新包含该腿的价差盈亏
func (e *Engine) dailySettle(leg *instrument.Leg) {
	if leg.Settled {
		return
	}
	leg.OnBar()
	leg.Settled = true
	for _, sp := range e.spreads {
		for _, ref := range sp.Def.LegRefs {
			if ref == leg.ID {
				sp.Signal.Settle()
				break
			}
		}
	}
	logger.Infof("[Engine] %s settled at %.2f", leg.Symbol, leg.TheoLast)
	e.dirty = true
	e.persist()
}

// onSessionEnd 日盘/夜盘收盘：撤单、写持仓流水和状态
func (e *Engine) onSessionEnd(stts string) {
	if n := e.orders.CancelAll(); n > 0 {
		logger.Infof("[Engine] %s: cancelled %d open orders", stts, n)
	}
	e.updateConstrain()
	for _, sp := range e.spreads {
		e.flowSpreadPos(sp, stts)
	}
	e.dirty = true
	e.persist()
}
