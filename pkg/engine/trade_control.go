package engine

import (
	"github.com/quantlink/spreadgrid/pkg/types"
)

// tradeControl 日内交易阶段 + 运维开关 + 资金/失败计数约束
type tradeControl struct {
	onDayTrade   bool
	onOnlyClose  bool
	onForceClose bool
	onDaySettle  bool
	onDayEnd     bool

	enable   int // 1 正常 0 禁止 -1 只平 -2 强平
	external types.Constrain

	constrain types.Constrain
}

func newTradeControl(enable int) *tradeControl {
	tc := &tradeControl{enable: enable}
	tc.refresh()
	return tc
}

func (tc *tradeControl) onTime(typ types.TimerType) {
	switch typ {
	case types.TimerDayTrade:
		tc.onDayTrade = true
	case types.TimerOnlyClose:
		tc.onOnlyClose = true
	case types.TimerForceClose:
		tc.onForceClose = true
	case types.TimerDaySettle:
		tc.onDaySettle = true
	case types.TimerDayEnd, types.TimerNtEnd:
		tc.onDayEnd = true
	default:
		return
	}
	tc.refresh()
}

// setExternal 资金/失败计数得出的约束
func (tc *tradeControl) setExternal(c types.Constrain) {
	tc.external = c
	tc.refresh()
}

func (tc *tradeControl) setEnable(enable int) {
	tc.enable = enable
	tc.refresh()
}

func (tc *tradeControl) refresh() {
	c := types.Normal
	switch {
	case !tc.onDayTrade || tc.onDaySettle || tc.enable == 0:
		c = types.Disabled
	case tc.onForceClose || tc.enable == -2:
		c = types.ForceClear
	case tc.onOnlyClose || tc.enable == -1:
		c = types.CloseOnly
	}
	tc.constrain = types.Combine(c, tc.external)
}

// Constrain 当前生效的约束
func (tc *tradeControl) Constrain() types.Constrain { return tc.constrain }
