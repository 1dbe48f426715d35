package instrument

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/quantlink/spreadgrid/pkg/types"
)

const (
	// GapEMAPeriod 盘口价差 EMA 周期
	GapEMAPeriod = 20
	// ValidCount 无效报价后需要连续多少笔有效报价才恢复
	ValidCount = 30
	// GiantGap 盘口价差超过多少个 tick 视为异常
	GiantGap = 40
	// FatFinger 成交价偏离上一盘口价差多少倍视为乌龙指
	FatFinger = 50
	// FatRecover 乌龙指后连续多少笔正常价差才恢复
	FatRecover = 5
	// SafeTicks 距离涨跌停至少多少个 tick 才允许下单
	SafeTicks = 5

	priceEpsilon = 1e-8
)

// Static 合约静态信息
type Static struct {
	Symbol         string
	Exchange       string
	Product        string
	Tick           float64
	Multiplier     float64
	UpperLimit     float64
	LowerLimit     float64
	PreClose       float64
	PreSettle      float64
	PreOI          int
	MarginPerLot   float64
	OpenFee        float64
	CloseFee       float64
	CloseTodayFee  float64
	ExpiryDate     int
	ExpiryDayCount int
}

// FeePerLot 单手手续费估计，取开仓与开平组合的较大者
func (s Static) FeePerLot() float64 {
	return math.Max(s.OpenFee, math.Max((s.OpenFee+s.CloseFee)*0.5, (s.OpenFee+s.CloseTodayFee)*0.5))
}

// Options 影响腿记账的运行参数
type Options struct {
	Backtest   bool
	SlipTicks  float64 // 回测成交滑点
	MarginRate float64 // >0 时按昨收*乘数*保证金率计算保证金
}

// Leg 单个合约：静态条款 + 最新行情 + 上一笔行情 + 报价有效性
type Leg struct {
	ID int // Arena 中的序号
	Static
	opts Options

	// 最新行情
	BQ, AQ int
	BP, AP float64
	LP     float64
	LV     int // 累计成交量
	LQ     int // 本笔成交量
	MDTime int64

	// 上一笔行情
	LBQ, LAQ int
	LBP, LAP float64
	LLP      float64
	LLV      int

	GAP    float64
	LGAP   float64
	GapEMA float64
	hasGap bool

	giantGap     bool
	fatFinger    bool
	invalidQuote bool
	tradeReady   bool
	validCount   int
	fatCounter   int
	fatGap       float64

	// 持仓与记账
	Pos         int
	Commission  float64
	TheoLast    float64
	StaticError bool
	Settled     bool

	// workerID -> taskID，当前挂在该腿上的 ForceTask
	tasks map[int]int
}

// NewLeg 创建腿
func NewLeg(id int, s Static, opts Options) *Leg {
	return &Leg{
		ID:       id,
		Static:   s,
		opts:     opts,
		TheoLast: s.PreSettle,
		tasks:    make(map[int]int),
	}
}

// Key 持久化用的合约键 "ID.exchange"
func (l *Leg) Key() string {
	return l.Symbol + "." + l.Exchange
}

// Update 用一笔行情更新腿，并重新评估是否可交易
func (l *Leg) Update(md types.MarketData) {
	l.LLV = l.LV
	l.LBQ = l.BQ
	l.LAQ = l.AQ
	l.LLP = l.LP
	l.LBP = l.BP
	l.LAP = l.AP
	l.LGAP = l.GAP

	l.BQ = md.BidVolume
	l.AQ = md.AskVolume
	l.LP = md.LastPrice
	l.BP = md.BidPrice
	l.AP = md.AskPrice
	l.LV = md.Volume
	l.MDTime = md.Timestamp

	if l.LLV > 0 && l.LV > l.LLV {
		l.LQ = l.LV - l.LLV
	} else {
		l.LQ = 0
	}

	if l.BQ*l.AQ > 0 {
		l.GAP = l.AP - l.BP
	} else {
		l.GAP = 0
	}
	if l.GAP > 0 {
		l.updateGapEMA()
	}
	l.checkTradeReady()
}

func (l *Leg) updateGapEMA() {
	if !l.hasGap {
		l.hasGap = true
		l.GapEMA = l.GAP
		return
	}
	l.GapEMA = (l.GapEMA*(GapEMAPeriod-1.0) + l.GAP*2.0) / (GapEMAPeriod + 1.0)
}

// HitLimit 买一在涨停返回 1，卖一在跌停返回 -1
func (l *Leg) HitLimit() int {
	if priceEqual(l.BP, l.UpperLimit) {
		return 1
	}
	if priceEqual(l.AP, l.LowerLimit) {
		return -1
	}
	return 0
}

func (l *Leg) checkTradeReady() {
	if l.HitLimit() != 0 {
		l.tradeReady = true
		return
	}
	if l.BQ <= 0 || l.AQ <= 0 || l.GAP <= 0 {
		l.invalidQuote = true
		l.validCount = 0
		l.tradeReady = false
		return
	}

	if l.invalidQuote {
		l.validCount++
		if l.validCount >= ValidCount {
			l.invalidQuote = false
		}
	}
	l.giantGap = l.GAP >= GiantGap*l.Tick
	if !l.giantGap && l.LGAP > 0 && l.LQ > 0 {
		threshold := FatFinger * l.LGAP
		if l.LBP-l.LP >= threshold || l.LP-l.LAP >= threshold {
			l.fatFinger = true
			l.fatCounter = 0
			l.fatGap = l.LGAP
		}
	}
	if l.fatFinger {
		if l.GAP <= 2*l.fatGap {
			l.fatCounter++
		} else {
			l.fatCounter = 0
		}
		if l.fatCounter >= FatRecover {
			l.fatFinger = false
		}
	}
	l.tradeReady = !l.invalidQuote && !l.giantGap && !l.fatFinger
}

// IsReadyToTrade 行情是否可用于交易判断
func (l *Leg) IsReadyToTrade() bool { return l.tradeReady }

// InvalidQuote 当前是否处于无效报价恢复期
func (l *Leg) InvalidQuote() bool { return l.invalidQuote }

// GiantGapActive 盘口价差是否异常
func (l *Leg) GiantGapActive() bool { return l.giantGap }

// FatFingerActive 是否处于乌龙指抑制期
func (l *Leg) FatFingerActive() bool { return l.fatFinger }

// IsSafeToBuy 卖一有量且距离涨停至少 n 个 tick
func (l *Leg) IsSafeToBuy(n int) bool {
	return l.AQ > 0 && l.AP <= l.UpperLimit-float64(n)*l.Tick
}

// IsSafeToSell 买一有量且距离跌停至少 n 个 tick
func (l *Leg) IsSafeToSell(n int) bool {
	return l.BQ > 0 && l.BP >= l.LowerLimit+float64(n)*l.Tick
}

// ValidPrice 价格在涨跌停区间内
func (l *Leg) ValidPrice(p float64) bool {
	return p <= l.UpperLimit+priceEpsilon && p >= l.LowerLimit-priceEpsilon
}

// MidPrice 返回中间价
func (l *Leg) MidPrice() float64 {
	return (l.BP + l.AP) / 2.0
}

// DefaultPrice 双边有量取中间价，否则取有效的最新价，再否则取昨结算
func (l *Leg) DefaultPrice() float64 {
	if l.BQ*l.AQ > 0 {
		return l.MidPrice()
	}
	if l.LQ > 0 && l.ValidPrice(l.LP) {
		return l.LP
	}
	return l.PreSettle
}

// EffectPrice 盘口量加权价；单边有量取该边价格；无量返回 MaxFloat64
func (l *Leg) EffectPrice() float64 {
	switch {
	case l.BQ*l.AQ > 0:
		return (l.BP*float64(l.AQ) + l.AP*float64(l.BQ)) / float64(l.BQ+l.AQ)
	case l.AQ == 0 && l.BQ > 0:
		return l.BP
	case l.BQ == 0 && l.AQ > 0:
		return l.AP
	}
	return math.MaxFloat64
}

// SettlePrice 结算参考价
func (l *Leg) SettlePrice() float64 {
	effect := l.EffectPrice()
	if !l.ValidPrice(effect) {
		return l.DefaultPrice()
	}
	if l.LQ > 0 && l.ValidPrice(l.LP) {
		return (effect + l.LP) * 0.5
	}
	return effect
}

// OnBar 周期性刷新理论价
func (l *Leg) OnBar() bool {
	price := l.SettlePrice()
	if !l.ValidPrice(price) {
		return false
	}
	l.TheoLast = price
	return true
}

// CheckStaticError 静态数据校验，出错的腿所在价差全部禁止交易
func (l *Leg) CheckStaticError() error {
	var err error
	switch {
	case l.UpperLimit*l.LowerLimit <= 0 || l.UpperLimit <= l.LowerLimit:
		err = fmt.Errorf("limit price error %s: upper=%g lower=%g", l.Symbol, l.UpperLimit, l.LowerLimit)
	case abs(l.Pos) > l.PreOI:
		err = fmt.Errorf("open interest error %s: pos=%d preOI=%d", l.Symbol, abs(l.Pos), l.PreOI)
	case l.PreOI > 0 && l.PreClose*l.PreSettle <= 0:
		err = fmt.Errorf("pre price error %s: preOI=%d preClose=%g preSettle=%g", l.Symbol, l.PreOI, l.PreClose, l.PreSettle)
	}
	l.StaticError = err != nil
	return err
}

// NotifyOpenTrade 记录成交对持仓和手续费的影响
func (l *Leg) NotifyOpenTrade(volume int, price float64) float64 {
	if l.opts.Backtest {
		if volume > 0 {
			price += l.opts.SlipTicks * l.Tick
		} else {
			price -= l.opts.SlipTicks * l.Tick
		}
	}
	l.Pos += volume
	l.Commission += l.FeePerLot() * float64(abs(volume))
	return price
}

// MarginPerLotValue 单手保证金
func (l *Leg) MarginPerLotValue() float64 {
	if l.opts.MarginRate > 0 {
		return l.PreClose * l.Multiplier * l.opts.MarginRate
	}
	return l.MarginPerLot
}

// Margin 当前持仓占用保证金
func (l *Leg) Margin() float64 {
	return l.MarginPerLotValue() * float64(abs(l.Pos))
}

// RoundPrice 把价格规整到最小变动价位
func (l *Leg) RoundPrice(p float64) float64 {
	if l.Tick <= 0 {
		return p
	}
	tick := decimal.NewFromFloat(l.Tick)
	v, _ := decimal.NewFromFloat(p).Div(tick).Round(0).Mul(tick).Float64()
	return v
}

// BuyPrice 在卖一基础上加 adj 个 tick，不超过涨停
func (l *Leg) BuyPrice(adjTicks int) float64 {
	return l.RoundPrice(math.Min(l.UpperLimit, l.AP+float64(adjTicks)*l.Tick))
}

// SellPrice 在买一基础上减 adj 个 tick，不低于跌停
func (l *Leg) SellPrice(adjTicks int) float64 {
	return l.RoundPrice(math.Max(l.LowerLimit, l.BP-float64(adjTicks)*l.Tick))
}

// SubscribeTask 记录挂在该腿上的 ForceTask
func (l *Leg) SubscribeTask(workerID, taskID int) {
	l.tasks[workerID] = taskID
}

// UnsubscribeTask 移除 ForceTask
func (l *Leg) UnsubscribeTask(workerID int) {
	delete(l.tasks, workerID)
}

// Tasks 返回 workerID -> taskID 的副本
func (l *Leg) Tasks() map[int]int {
	out := make(map[int]int, len(l.tasks))
	for k, v := range l.tasks {
		out[k] = v
	}
	return out
}

func priceEqual(a, b float64) bool {
	return math.Abs(a-b) < priceEpsilon
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
