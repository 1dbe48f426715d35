package strategy

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/quantlink/spreadgrid/pkg/logger"
)

const (
	// LegBase 第一条腿
	LegBase = "base"
	// LegHedge 第二条腿
	LegHedge = "hedge"
)

// RiskAdjustment 风控模式下对亏损腿的减仓/回补
// Volume 为带符号的手数，只记账不下单，由宿主决定如何处理
type RiskAdjustment struct {
	Spread  string
	Leg     string
	LegRef  int
	Volume  int
	Restore bool
	RiskPos int
}

// InRiskMode 是否处于风控模式
func (g *GridSignal) InRiskMode() bool { return g.Sig.InRiskMode }

// checkRiskBoundaryBreak 价差突破风控边界时进入风控模式，已在风控模式时检查回撤
func (g *GridSignal) checkRiskBoundaryBreak(spread float64) {
	s := g.Sig
	if s.InRiskMode {
		g.checkReboundAndRestore(spread)
		return
	}
	dir := 0
	switch {
	case spread > g.riskUpper:
		dir = 1
	case spread < g.riskLower:
		dir = -1
	default:
		return
	}
	s.InRiskMode = true
	s.BreakDirection = dir
	s.BreakSpread = spread
	s.ExtremeSpread = spread
	s.RiskCenter = (g.arbLower + g.arbUpper) / 2
	s.EntryLegPrices = g.legPrices()

	logger.WithFields(logrus.Fields{
		"spread":    g.Def.Name,
		"value":     spread,
		"direction": dir,
		"riskLower": g.riskLower,
		"riskUpper": g.riskUpper,
		"center":    s.RiskCenter,
	}).Warn("[Risk] boundary break")

	g.reduceLosingLegPosition(spread)
}

// identifyLosingLeg 按两条腿相对进入时的价格变动判断亏损腿
func identifyLosingLeg(spreadMom float64, start, current []float64) string {
	if len(start) < 2 || len(current) < 2 {
		return ""
	}
	baseMom := current[0] - start[0]
	hedgeMom := current[1] - start[1]
	baseSign, hedgeSign, spreadSign := sign(baseMom), sign(hedgeMom), sign(spreadMom)

	followBase := spreadSign == baseSign
	if baseSign != hedgeSign && math.Abs(baseMom) < math.Abs(hedgeMom) {
		followBase = !followBase
	}
	if followBase {
		return LegBase
	}
	return LegHedge
}

func (g *GridSignal) reduceLosingLegPosition(spread float64) {
	s := g.Sig
	if len(g.legs) < 2 || len(s.EntryLegPrices) == 0 {
		return
	}
	losing := identifyLosingLeg(spread-s.RiskCenter, s.EntryLegPrices, g.legPrices())
	if losing == "" {
		return
	}
	s.ReducedLeg = losing

	idx := 0
	if losing == LegHedge {
		idx = 1
	}
	leg := g.legs[idx]
	legPos := leg.Pos
	s.ArbitragePos = s.Pos
	if absInt(legPos) > s.MaxVirtualAbs {
		s.MaxVirtualAbs = absInt(legPos)
	}

	amount := g.params.ReduceRatio * float64(s.MaxVirtualAbs)
	if s.StepSize > 0 {
		amount = math.Floor(amount/float64(s.StepSize)) * float64(s.StepSize)
	}
	if amount <= 0 || legPos == 0 {
		return
	}
	dir := -sign(float64(legPos))
	s.ReducedDirection = dir
	s.ReducedAmount = int(amount)
	s.RiskPos += dir * s.ReducedAmount

	logger.WithFields(logrus.Fields{
		"spread":  g.Def.Name,
		"leg":     leg.Symbol,
		"legPos":  legPos,
		"reduce":  dir * s.ReducedAmount,
		"riskPos": s.RiskPos,
		"arbPos":  s.ArbitragePos,
		"maxAbs":  s.MaxVirtualAbs,
	}).Warn("[Risk] reduce losing leg")
	g.emitRisk(RiskAdjustment{
		Spread:  g.Def.Name,
		Leg:     losing,
		LegRef:  leg.ID,
		Volume:  dir * s.ReducedAmount,
		RiskPos: s.RiskPos,
	})
}

// checkReboundAndRestore 从极值回撤 exitInterval 或已无开仓记录时退出风控模式
func (g *GridSignal) checkReboundAndRestore(spread float64) {
	s := g.Sig
	restore := false
	rebound := g.params.ExitInterval
	switch s.BreakDirection {
	case 1:
		if spread > s.ExtremeSpread {
			s.ExtremeSpread = spread
		}
		restore = spread <= s.ExtremeSpread-rebound
	case -1:
		if spread < s.ExtremeSpread {
			s.ExtremeSpread = spread
		}
		restore = spread >= s.ExtremeSpread+rebound
	}
	if len(s.OpenPositions) == 0 {
		restore = true
	}
	if !restore {
		return
	}

	if s.ReducedLeg != "" && s.ReducedAmount > 0 {
		supplement := -s.ReducedDirection * s.ReducedAmount
		s.RiskPos += supplement
		idx := 0
		if s.ReducedLeg == LegHedge {
			idx = 1
		}
		logger.WithFields(logrus.Fields{
			"spread":     g.Def.Name,
			"leg":        g.legs[idx].Symbol,
			"supplement": supplement,
			"riskPos":    s.RiskPos,
		}).Info("[Risk] restore reduced leg")
		g.emitRisk(RiskAdjustment{
			Spread:  g.Def.Name,
			Leg:     s.ReducedLeg,
			LegRef:  g.legs[idx].ID,
			Volume:  supplement,
			Restore: true,
			RiskPos: s.RiskPos,
		})
	}
	logger.Infof("[Risk] %s leaves risk mode at %.4f break=%.4f extreme=%.4f",
		g.Def.Name, spread, s.BreakSpread, s.ExtremeSpread)

	s.InRiskMode = false
	s.ReducedLeg = ""
	s.ReducedAmount = 0
	s.ReducedDirection = 0
	s.BreakDirection = 0
	s.BreakSpread = 0
	s.MaxVirtualAbs = 0
}

func (g *GridSignal) emitRisk(adj RiskAdjustment) {
	if g.opts.OnRisk != nil {
		g.opts.OnRisk(adj)
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
