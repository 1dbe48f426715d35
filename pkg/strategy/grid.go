package strategy

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/types"
)

const (
	// SafeTicks 距涨跌停的安全 tick 数
	SafeTicks = 5
	// cashPerAccount 杠杆上限估算用的资金基数
	cashPerAccount = 100000.0
)

// GridParams 自适应网格参数
type GridParams struct {
	ExitInterval          float64
	MinEntryInterval      float64
	MinDynamic            float64
	MaxDynamic            float64
	WidenThreshold        float64 // 盈利率低于该值时放宽网格
	NarrowThreshold       float64 // 盈利率高于该值时收窄网格
	WidenStep             float64
	MinOps                int // 开仓次数达到该值才调整动态因子
	ReduceRatio           float64
	MaxLeverage           float64
	MaxGridLevels         int
	ArbitrageN            int // 套利边界回看交易日数
	RiskN                 int // 风控边界回看交易日数
	UpdateIntervalMinutes int

	InitialArbLower  float64
	InitialArbUpper  float64
	InitialRiskLower float64
	InitialRiskUpper float64
}

// DefaultGridParams 默认网格参数
func DefaultGridParams() GridParams {
	return GridParams{
		ExitInterval:          0,
		MinEntryInterval:      0,
		MinDynamic:            1.0,
		MaxDynamic:            3.0,
		WidenThreshold:        0.3,
		NarrowThreshold:       0.7,
		WidenStep:             1.2,
		MinOps:                10,
		ReduceRatio:           0.6,
		MaxLeverage:           20,
		MaxGridLevels:         500,
		ArbitrageN:            120,
		RiskN:                 180,
		UpdateIntervalMinutes: 15,
	}
}

// Options 信号运行参数和宿主回调
type Options struct {
	Grid       GridParams
	MinEDC     int     // 剩余交易日少于该值时强平
	Backtest   bool
	CancelRate float64 // 回测随机放弃信号的概率
	TwapSecond int     // 压缩/清仓的 TWAP 节奏（秒）

	InSession func(ts int64) bool
	OnRisk    func(RiskAdjustment)
	Rand      *rand.Rand
}

// SpreadConfig 价差的配置覆盖项，>0 时覆盖持久化值
type SpreadConfig struct {
	Configured bool
	RefMid     float64
	MaxLot     int
	StepSize   int
	TradeRate  int
}

// GridSignal 单个价差的信号引擎
type GridSignal struct {
	Def *Definition
	Sig *SpreadSignal

	legs    []*instrument.Leg
	params  GridParams
	opts    Options
	tracker *SpreadTracker

	internalConstrain types.Constrain
	externalConstrain types.Constrain
	selfConstrain     types.Constrain
	maxTradeSize      int
	maxAmt            float64
	ttlMrgn           float64
	multiply          float64
	tradable          bool

	// 合成盘口（经济系数）
	spAP, spBP   float64
	spLAP, spLBP float64
	spAQ, spBQ   int
	spMP         float64
	// 合成盘口（执行系数）
	exeSpAP, exeSpBP float64

	lastTrdVlm    int
	lastTrdPrice  float64
	triggerVolume int
	triggerPrice  float64

	buy, sell float64

	arbLower, arbUpper   float64
	riskLower, riskUpper float64
	prevArbLower         float64
	prevArbUpper         float64
	entryIntervalLong    float64
	entryIntervalShort   float64
	longGrids            []float64
	shortGrids           []float64

	snapSecond         int
	lastBoundaryUpdate int64
	boundaryUpdated    bool
	tradingDay         int
}

// NewGridSignal 构造信号引擎，sig 为 nil 时新建状态
// 持久化中存在但未配置的价差只允许平仓，且持仓必须为 0
func NewGridSignal(def *Definition, arena *instrument.Arena, sig *SpreadSignal, cfg SpreadConfig, opts Options) (*GridSignal, error) {
	if sig == nil {
		sig = NewSpreadSignal(def.Name, 0)
	}
	g := &GridSignal{
		Def:      def,
		Sig:      sig,
		params:   opts.Grid,
		opts:     opts,
		multiply: def.SprdMulti,
		buy:      -math.MaxFloat64,
		sell:     math.MaxFloat64,
	}
	for _, ref := range def.LegRefs {
		g.legs = append(g.legs, arena.Get(ref))
	}
	if g.opts.TwapSecond <= 0 {
		g.opts.TwapSecond = 10
	}
	if g.opts.Rand == nil {
		g.opts.Rand = rand.New(rand.NewSource(1))
	}

	if !cfg.Configured {
		g.AddConstrain(types.CloseOnly)
		if sig.Pos != 0 {
			return nil, errors.Errorf("spread %s has position %d but is not configured", def.Name, sig.Pos)
		}
	} else {
		if cfg.RefMid > 0 {
			sig.RefMid = cfg.RefMid
		}
		if cfg.MaxLot > 0 {
			sig.SprdMaxLot = cfg.MaxLot
		}
		if cfg.StepSize > 0 {
			sig.StepSize = cfg.StepSize
		}
		sig.TradeRate = cfg.TradeRate
	}
	if sig.DynamicFactorLong <= 0 {
		sig.DynamicFactorLong = 1
	}
	if sig.DynamicFactorShort <= 0 {
		sig.DynamicFactorShort = 1
	}

	g.PreTradeConstrain()
	g.finishComb()
	g.tradable = sig.Pos != 0 || g.selfConstrain == types.Normal

	maxHistory := g.params.ArbitrageN
	if g.params.RiskN > maxHistory {
		maxHistory = g.params.RiskN
	}
	g.tracker = NewSpreadTracker(sig, maxHistory+10)

	p := g.params
	if p.InitialArbLower > 0 || p.InitialArbUpper > 0 {
		g.arbLower, g.arbUpper = p.InitialArbLower, p.InitialArbUpper
		g.prevArbLower, g.prevArbUpper = p.InitialArbLower, p.InitialArbUpper
	}
	if p.InitialRiskLower > 0 || p.InitialRiskUpper > 0 {
		g.riskLower, g.riskUpper = p.InitialRiskLower, p.InitialRiskUpper
	}
	if g.tracker.HistoryLen() > 0 {
		g.recalcBoundaries()
	}

	logger.WithFields(logrus.Fields{
		"spread":       def.Name,
		"maxAmt":       g.maxAmt,
		"maxTradeSize": g.maxTradeSize,
		"stepSize":     sig.StepSize,
		"constrain":    g.selfConstrain.String(),
	}).Info("[Grid] spread initialized")
	return g, nil
}

func (g *GridSignal) finishComb() {
	s := g.Sig
	g.maxAmt = float64(s.SprdMaxLot) * g.Def.MarginPerPair
	g.maxTradeSize = s.SprdMaxLot
	if s.StepSize > g.maxTradeSize {
		s.StepSize = g.maxTradeSize
	}
	g.updateInternalConstrain()
}

func (g *GridSignal) updateInternalConstrain() {
	pos := absInt(g.Sig.Pos)
	g.ttlMrgn = float64(pos) * g.Def.MarginPerPair
	if pos > g.maxTradeSize || g.ttlMrgn > g.maxAmt {
		g.internalConstrain = types.CloseOnly
	} else {
		g.internalConstrain = types.Normal
	}
	g.Sig.Mrgn = g.ttlMrgn
	g.refreshSelfConstrain()
}

func (g *GridSignal) refreshSelfConstrain() {
	g.selfConstrain = types.Combine(g.internalConstrain, g.externalConstrain, types.Constrain(g.Sig.TradeRate))
}

// PreTradeConstrain 静态数据错误禁止交易，临近到期强平
func (g *GridSignal) PreTradeConstrain() {
	for _, leg := range g.legs {
		if leg.StaticError {
			g.AddConstrain(types.Disabled)
			return
		}
	}
	if g.Def.ExpiryDays > 0 && g.Def.ExpiryDays < g.opts.MinEDC {
		g.AddConstrain(types.ForceClear)
	}
}

// AddConstrain 提高外部约束，只升不降
func (g *GridSignal) AddConstrain(c types.Constrain) {
	g.externalConstrain = types.Combine(g.externalConstrain, c)
	g.refreshSelfConstrain()
}

// SelfConstrain 价差自身约束
func (g *GridSignal) SelfConstrain() types.Constrain { return g.selfConstrain }

// Tradable 是否参与交易
func (g *GridSignal) Tradable() bool { return g.tradable }

// MaxTradeSize 最大持仓手数
func (g *GridSignal) MaxTradeSize() int { return g.maxTradeSize }

// TotalMargin 当前持仓占用保证金
func (g *GridSignal) TotalMargin() float64 { return g.ttlMrgn }

// SetTradingDay 设置当前交易日 yyyymmdd
func (g *GridSignal) SetTradingDay(day int) { g.tradingDay = day }

func (g *GridSignal) inSession(ts int64) bool {
	if g.opts.InSession == nil {
		return true
	}
	return g.opts.InSession(ts)
}

func (g *GridSignal) legsReady() bool {
	for _, leg := range g.legs {
		if !leg.IsReadyToTrade() {
			return false
		}
	}
	return true
}

func (g *GridSignal) isReadyToTrade() bool {
	return g.legsReady() && g.buy < g.sell
}

func (g *GridSignal) isSafeToBuy() bool {
	for i, leg := range g.legs {
		if g.Def.Coefs[i] > 0 {
			if !leg.IsSafeToBuy(SafeTicks) {
				return false
			}
		} else if !leg.IsSafeToSell(SafeTicks) {
			return false
		}
	}
	return true
}

func (g *GridSignal) isSafeToSell() bool {
	for i, leg := range g.legs {
		if g.Def.Coefs[i] > 0 {
			if !leg.IsSafeToSell(SafeTicks) {
				return false
			}
		} else if !leg.IsSafeToBuy(SafeTicks) {
			return false
		}
	}
	return true
}

// updatePrice 合成价差盘口，任一腿未就绪时保持上一次的值
func (g *GridSignal) updatePrice(ts int64) {
	if !g.legsReady() {
		return
	}
	s := g.Sig
	g.spLAP, g.spLBP = g.spAP, g.spBP
	g.spAQ, g.spBQ = math.MaxInt32, math.MaxInt32
	g.spAP, g.spBP, g.spMP = 0, 0, 0
	g.exeSpAP, g.exeSpBP = 0, 0

	inSsn := g.inSession(ts)
	if inSsn {
		s.Awp, s.SprdAP, s.SprdBP = 0, 0, 0
		s.SprdAQ, s.SprdBQ = math.MaxInt32, math.MaxInt32
	}
	for i, leg := range g.legs {
		coef := g.Def.Coefs[i]
		if coef > 0 {
			g.spAQ = minInt(g.spAQ, leg.AQ)
			g.spBQ = minInt(g.spBQ, leg.BQ)
			g.spAP += coef * leg.AP
			g.spBP += coef * leg.BP
			if inSsn {
				s.SprdAQ = minInt(s.SprdAQ, leg.AQ)
				s.SprdBQ = minInt(s.SprdBQ, leg.BQ)
				s.SprdAP += coef * leg.AP
				s.SprdBP += coef * leg.BP
			}
		} else {
			g.spAQ = minInt(g.spAQ, leg.BQ)
			g.spBQ = minInt(g.spBQ, leg.AQ)
			g.spAP += coef * leg.BP
			g.spBP += coef * leg.AP
			if inSsn {
				s.SprdAQ = minInt(s.SprdAQ, leg.BQ)
				s.SprdBQ = minInt(s.SprdBQ, leg.AQ)
				s.SprdAP += coef * leg.BP
				s.SprdBP += coef * leg.AP
			}
		}
		g.spMP += coef * leg.DefaultPrice()

		exe := float64(g.Def.ExeCoefs[i])
		lmc := leg.Multiplier / g.Def.SprdMulti
		if exe > 0 {
			g.exeSpAP += exe * leg.AP * lmc
			g.exeSpBP += exe * leg.BP * lmc
		} else {
			g.exeSpAP += exe * leg.BP * lmc
			g.exeSpBP += exe * leg.AP * lmc
		}
		if inSsn {
			s.Awp += exe * leg.LP * lmc
		}
	}
	s.Sprd = g.spMP

	if g.opts.Backtest && g.lastTrdVlm != 0 {
		g.vlmDecay()
	}
}

// vlmDecay 回测中扣减自己刚吃掉的盘口量
func (g *GridSignal) vlmDecay() {
	switch {
	case g.lastTrdPrice >= g.spAP && g.spAP == g.spLAP:
		g.spAQ = maxInt(0, g.spAQ-g.lastTrdVlm)
	case g.lastTrdPrice <= g.spBP && g.spBP == g.spLBP:
		g.spBQ = maxInt(0, g.spBQ-g.lastTrdVlm)
	default:
		g.lastTrdVlm = 0
	}
}

// TrySignal 根据约束和当前价差给出带符号的交易手数，0 表示不动作
func (g *GridSignal) TrySignal(external types.Constrain, ts int64) int {
	g.updatePrice(ts)
	if g.tradingDay > 0 && g.legsReady() {
		g.tracker.Update(g.tradingDay, g.spMP)
	}
	constrain := types.Combine(g.selfConstrain, external)
	if constrain > types.Normal && g.Sig.Pos == 0 {
		return 0
	}

	if constrain == types.Normal && g.riskLower < g.riskUpper {
		g.checkRiskBoundaryBreak(g.spMP)
	}

	act := 0
	switch constrain {
	case types.Normal:
		act = g.updateSignal(false)
	case types.CloseOnly:
		act = g.updateSignal(true)
	case types.Squeeze:
		act = g.squeezeSignal(ts)
	case types.ForceClear:
		act = g.clearSignal(ts)
	}

	if g.opts.Backtest && g.opts.CancelRate > 0 && constrain < types.Squeeze && act != 0 {
		if g.opts.Rand.Intn(100) < int(g.opts.CancelRate*100) {
			return 0
		}
	}
	if act > 0 && g.isSafeToBuy() {
		return act
	}
	if act < 0 && g.isSafeToSell() {
		return act
	}
	return 0
}

func (g *GridSignal) updateSignal(closeOnly bool) int {
	g.buy, g.sell = g.updtBuySell()
	g.updtPnl()
	s := g.Sig
	s.TheoBid, s.TheoAsk = g.buy, g.sell

	if !g.isReadyToTrade() {
		return 0
	}

	pos := s.Pos
	step := s.StepSize
	currBch := absInt(pos)
	if step > 0 {
		if pos > 0 {
			currBch = absInt(pos) % step
		} else {
			currBch = -(absInt(pos) % step)
		}
		if currBch == 0 {
			currBch = minInt(step, absInt(pos))
		}
	}

	trdSz := 0
	if g.spBP >= g.sell && g.isSafeToSell() {
		var trdSzMax int
		if pos <= 0 {
			trdSzMax = maxInt(g.maxTradeSize+pos, 0)
		} else {
			trdSzMax = pos
		}
		trdSz = minInt(maxInt(step, 1), trdSzMax)
		if pos > 0 {
			trdSz = minInt(trdSz, absInt(currBch))
		}
		if closeOnly && pos > 0 {
			trdSz = minInt(minInt(step, trdSzMax), absInt(currBch))
		}
		trdSz = -trdSz
	} else if g.spAP <= g.buy && g.isSafeToBuy() {
		var trdSzMax int
		if pos >= 0 {
			trdSzMax = maxInt(g.maxTradeSize-pos, 0)
		} else {
			trdSzMax = -pos
		}
		trdSz = minInt(maxInt(step, 1), trdSzMax)
		if pos < 0 {
			trdSz = minInt(trdSz, absInt(currBch))
		}
		if closeOnly && pos < 0 {
			trdSz = minInt(minInt(step, trdSzMax), absInt(currBch))
		}
	}
	return trdSz
}

// maxSets 网格最多容纳的价差套数
func (g *GridSignal) maxSets() int {
	equityPerSet := 0.0
	for i, leg := range g.legs {
		equityPerSet += math.Abs(g.Def.Coefs[i]) * leg.LP
	}
	sets := g.Sig.SprdMaxLot
	if equityPerSet > 0 && g.params.MaxLeverage > 0 {
		lev := int(cashPerAccount * g.params.MaxLeverage / equityPerSet)
		if sets == 0 || lev < sets {
			sets = lev
		}
	}
	if sets <= 0 {
		sets = 1
	}
	return sets
}

// entryIntervals 按当前边界和动态因子计算多空两侧的网格间距
func (g *GridSignal) entryIntervals() (long, short float64) {
	interval := (g.arbUpper - g.arbLower) / 2 / float64(g.maxSets())
	if interval < g.params.MinEntryInterval {
		interval = g.params.MinEntryInterval
	}
	return interval * g.Sig.DynamicFactorLong, interval * g.Sig.DynamicFactorShort
}

// updtBuySell 按持仓计算下一档买卖触发价
func (g *GridSignal) updtBuySell() (buy, sell float64) {
	buy, sell = -math.MaxFloat64, math.MaxFloat64
	exit := g.params.ExitInterval
	if exit <= 0 || g.arbLower >= g.arbUpper {
		return buy, sell
	}

	intL, intS := g.entryIntervals()
	center := (g.arbLower + g.arbUpper) / 2
	centerLong := center - exit/2
	centerShort := center + exit/2

	pos := g.Sig.Pos
	step := maxInt(g.Sig.StepSize, 1)
	switch {
	case pos == 0:
		buy, sell = centerLong, centerShort
	case pos > 0:
		sell = centerLong + float64(absInt(pos))*intL/float64(step) + exit
		buy = centerLong - float64(absInt(pos)/step+1)*intL
	default:
		buy = centerShort - float64(absInt(pos))*intS/float64(step) - exit
		sell = centerShort + float64(absInt(pos)/step+1)*intS
	}
	g.entryIntervalLong, g.entryIntervalShort = intL, intS
	return buy, sell
}

// updateBoundariesAndGrids 边界变化时调整动态因子并重建网格
func (g *GridSignal) updateBoundariesAndGrids(arbLower, arbUpper, riskLower, riskUpper float64) {
	if arbLower == g.prevArbLower && arbUpper == g.prevArbUpper {
		return
	}
	logger.Infof("[Grid] %s boundaries arb %.4f->%.4f / %.4f->%.4f",
		g.Def.Name, g.prevArbLower, arbLower, g.prevArbUpper, arbUpper)

	g.arbLower, g.arbUpper = arbLower, arbUpper
	g.riskLower, g.riskUpper = riskLower, riskUpper
	if g.arbUpper-g.arbLower <= 0 {
		return
	}

	s := g.Sig
	s.DynamicFactorLong = g.adaptFactor(s.DynamicFactorLong, s.NumOpensLong, s.ProfitableLong)
	s.DynamicFactorShort = g.adaptFactor(s.DynamicFactorShort, s.NumOpensShort, s.ProfitableShort)

	intL, intS := g.entryIntervals()
	center := (g.arbLower + g.arbUpper) / 2
	centerLong := center - g.params.ExitInterval/2
	centerShort := center + g.params.ExitInterval/2
	g.longGrids = g.longGrids[:0]
	g.shortGrids = g.shortGrids[:0]
	for k := 1; k <= g.params.MaxGridLevels; k++ {
		g.longGrids = append(g.longGrids, centerLong-float64(k)*intL)
		g.shortGrids = append(g.shortGrids, centerShort+float64(k)*intS)
	}

	g.prevArbLower, g.prevArbUpper = arbLower, arbUpper
	g.entryIntervalLong, g.entryIntervalShort = intL, intS

	logger.WithFields(logrus.Fields{
		"spread":             g.Def.Name,
		"dynamicFactorLong":  s.DynamicFactorLong,
		"dynamicFactorShort": s.DynamicFactorShort,
		"intervalLong":       intL,
		"intervalShort":      intS,
	}).Info("[Grid] grids rebuilt")
}

// adaptFactor 按单侧盈利率放宽或收窄网格，结果限制在 [MinDynamic, MaxDynamic]
func (g *GridSignal) adaptFactor(factor float64, opens, profitable int) float64 {
	if opens < g.params.MinOps || opens == 0 {
		return factor
	}
	rate := float64(profitable) / float64(opens)
	switch {
	case rate < g.params.WidenThreshold:
		factor *= g.params.WidenStep
	case rate > g.params.NarrowThreshold:
		factor /= g.params.WidenStep
	}
	return math.Max(g.params.MinDynamic, math.Min(g.params.MaxDynamic, factor))
}

// recalcBoundaries 由日线高低点重新计算套利/风控边界
func (g *GridSignal) recalcBoundaries() bool {
	arbL, arbU, ok := g.tracker.Bounds(g.params.ArbitrageN)
	if !ok {
		return false
	}
	riskL, riskU, _ := g.tracker.Bounds(g.params.RiskN)
	g.updateBoundariesAndGrids(arbL, arbU, riskL, riskU)
	return true
}

func (g *GridSignal) squeezeSignal(ts int64) int {
	pos := g.Sig.Pos
	a := int(float64(ts) * 0.001 / float64(g.opts.TwapSecond))
	b := g.snapSecond / g.opts.TwapSecond
	diff := absInt(pos) - g.maxTradeSize
	if a == b || diff <= 0 {
		return 0
	}
	g.snapSecond = int(float64(ts) * 0.001)
	adj := minInt(diff, g.Sig.StepSize)
	if pos > 0 {
		return -minInt(adj, g.spBQ)
	}
	return minInt(adj, g.spAQ)
}

func (g *GridSignal) clearSignal(ts int64) int {
	pos := g.Sig.Pos
	a := int(float64(ts) * 0.001 / float64(g.opts.TwapSecond))
	b := g.snapSecond / g.opts.TwapSecond
	if a == b || pos == 0 {
		return 0
	}
	g.snapSecond = int(float64(ts) * 0.001)
	if pos > 0 {
		return -minInt(pos, g.spBQ)
	}
	return minInt(-pos, g.spAQ)
}

// ChooseLeg 选对手盘相对最厚的执行腿作为主动腿
func (g *GridSignal) ChooseLeg(action int) int {
	bidQSum, askQSum := 0.0, 0.0
	for _, leg := range g.legs {
		bidQSum += float64(leg.BQ)
		askQSum += float64(leg.AQ)
	}
	tryLeg := 0
	maxAff := -math.MaxFloat64
	for i, leg := range g.legs {
		if g.Def.ExeCoefs[i] == 0 {
			continue
		}
		var aff float64
		if float64(action)*g.Def.Coefs[i] > 0 {
			aff = bidQSum / float64(maxInt(leg.AQ, 1))
		} else {
			aff = askQSum / float64(maxInt(leg.BQ, 1))
		}
		if aff > maxAff {
			maxAff = aff
			tryLeg = i
		}
	}
	return tryLeg
}

// NotifyExecStarted 记录触发信息，返回本次执行的目标价差
func (g *GridSignal) NotifyExecStarted(action int) float64 {
	g.triggerVolume = action
	if action > 0 {
		g.triggerPrice = g.exeSpAP
		return g.buy
	}
	g.triggerPrice = g.exeSpBP
	return g.sell
}

// NotifyExecFinished 执行周期结束，更新持仓、均价、开平计数
func (g *GridSignal) NotifyExecFinished(volume int, price float64, ts int64, exePrice float64) {
	s := g.Sig
	prevPos := s.Pos
	prevAtp := s.Atp
	g.notifyOpenTrade(volume, exePrice)
	s.Pos += volume
	s.TrdSprd = exePrice

	opening := prevPos == 0 || (prevPos > 0 && volume > 0) || (prevPos < 0 && volume < 0)
	if opening {
		dir := 1
		if volume < 0 {
			dir = -1
			s.NumOpensShort++
		} else {
			s.NumOpensLong++
		}
		s.OpenPositions = append(s.OpenPositions, OpenPosition{
			EntryPrice:  price,
			Direction:   dir,
			EntrySpread: exePrice,
			LegPrices:   g.legPrices(),
		})
		logger.Debugf("[Grid] %s OPEN vol=%d entry=%.4f exe=%.4f open=%d", g.Def.Name, volume, price, exePrice, len(s.OpenPositions))
	} else {
		var pnl float64
		dir := 1
		if prevPos > 0 {
			pnl = (exePrice - prevAtp) * float64(absInt(volume))
			s.NumClosesLong++
			if pnl > 0 {
				s.ProfitableLong++
			}
		} else {
			dir = -1
			pnl = (prevAtp - exePrice) * float64(absInt(volume))
			s.NumClosesShort++
			if pnl > 0 {
				s.ProfitableShort++
			}
		}
		for i, op := range s.OpenPositions {
			if op.Direction == dir {
				s.OpenPositions = append(s.OpenPositions[:i], s.OpenPositions[i+1:]...)
				break
			}
		}
		logger.Debugf("[Grid] %s CLOSE vol=%d pnl=%.4f open=%d", g.Def.Name, volume, pnl, len(s.OpenPositions))
	}
	g.updateInternalConstrain()
	if s.Pos != 0 {
		g.tradable = true
	}
}

func (g *GridSignal) notifyOpenTrade(volume int, exePrice float64) {
	s := g.Sig
	if s.Pos+volume == 0 {
		s.DnPnl += (exePrice - s.Atp) * float64(-volume) * g.multiply
		s.DiPnl = 0
		s.Pnl = s.DiPnl + s.DnPnl
		s.Atp = 0
	} else {
		s.Atp = (s.Atp*float64(s.Pos) + exePrice*float64(volume)) / float64(s.Pos+volume)
	}
	g.lastTrdPrice = exePrice
	g.lastTrdVlm = absInt(volume)
}

func (g *GridSignal) updtPnl() {
	s := g.Sig
	s.DiPnl = (s.Awp - s.Atp) * float64(s.Pos) * g.multiply
	s.Pnl = s.DiPnl + s.DnPnl
}

// Settle 日终结算浮动盈亏
func (g *GridSignal) Settle() { g.updtPnl() }

// OnBar 周期刷新：参考中值、盈亏，按间隔重算边界
func (g *GridSignal) OnBar(ts int64) {
	g.updtPnl()
	interval := int64(g.params.UpdateIntervalMinutes) * 60000
	if !g.boundaryUpdated || ts-g.lastBoundaryUpdate >= interval {
		if g.recalcBoundaries() {
			g.lastBoundaryUpdate = ts
			g.boundaryUpdated = true
		}
	}
}

// RefreshLimits 人工修改 maxLot/stepSize 后重新计算上限和约束
func (g *GridSignal) RefreshLimits() {
	g.finishComb()
}

// Reprice 人工修改参考中值后按当前持仓重新计算触发价
func (g *GridSignal) Reprice() {
	g.buy, g.sell = g.updtBuySell()
	g.Sig.TheoBid, g.Sig.TheoAsk = g.buy, g.sell
}

func (g *GridSignal) legPrices() []float64 {
	out := make([]float64, len(g.legs))
	for i, leg := range g.legs {
		out[i] = leg.LP
	}
	return out
}

// Status 用于展示的快照
type Status struct {
	Name         string  `json:"name"`
	ID           int     `json:"id"`
	Pos          int     `json:"pos"`
	StepSize     int     `json:"step_size"`
	MaxLot       int     `json:"max_lot"`
	Constrain    string  `json:"constrain"`
	Buy          float64 `json:"buy"`
	Sell         float64 `json:"sell"`
	SpAP         float64 `json:"sp_ap"`
	SpBP         float64 `json:"sp_bp"`
	SpMP         float64 `json:"sp_mp"`
	ArbLower     float64 `json:"arb_lower"`
	ArbUpper     float64 `json:"arb_upper"`
	RiskLower    float64 `json:"risk_lower"`
	RiskUpper    float64 `json:"risk_upper"`
	DynamicLong  float64 `json:"dynamic_factor_long"`
	DynamicShort float64 `json:"dynamic_factor_short"`
	InRiskMode   bool    `json:"in_risk_mode"`
	RiskPos      int     `json:"risk_pos"`
	Atp          float64 `json:"atp"`
	Pnl          float64 `json:"pnl"`
	Margin       float64 `json:"margin"`
	GridLevels   int     `json:"grid_levels"`
}

// Status 当前状态快照
func (g *GridSignal) Status() Status {
	s := g.Sig
	st := Status{
		Name:         s.Name,
		ID:           s.ID,
		Pos:          s.Pos,
		StepSize:     s.StepSize,
		MaxLot:       s.SprdMaxLot,
		Constrain:    g.selfConstrain.String(),
		SpAP:         g.spAP,
		SpBP:         g.spBP,
		SpMP:         g.spMP,
		ArbLower:     g.arbLower,
		ArbUpper:     g.arbUpper,
		RiskLower:    g.riskLower,
		RiskUpper:    g.riskUpper,
		DynamicLong:  s.DynamicFactorLong,
		DynamicShort: s.DynamicFactorShort,
		InRiskMode:   s.InRiskMode,
		RiskPos:      s.RiskPos,
		Atp:          s.Atp,
		Pnl:          s.Pnl,
		Margin:       g.ttlMrgn,
		GridLevels:   len(g.longGrids),
	}
	// 无网格时的无穷值不能写入 JSON
	if g.buy > -math.MaxFloat64 {
		st.Buy = g.buy
	}
	if g.sell < math.MaxFloat64 {
		st.Sell = g.sell
	}
	return st
}

// Boundaries 当前套利/风控边界
func (g *GridSignal) Boundaries() (arbLower, arbUpper, riskLower, riskUpper float64) {
	return g.arbLower, g.arbUpper, g.riskLower, g.riskUpper
}

// SpreadPrices 合成盘口 (ask, bid, mid)
func (g *GridSignal) SpreadPrices() (ap, bp, mp float64) {
	return g.spAP, g.spBP, g.spMP
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

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
