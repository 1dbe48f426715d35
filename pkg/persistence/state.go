package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/strategy"
)

// ErrNotExists 状态文件不存在或为空
var ErrNotExists = errors.New("persistence data not exists")

// State 策略实例的状态文件，集合按价差名或合约键 "ID.exchange" 索引
type State struct {
	// 合约
	InstPoss map[string]int     `json:"inst_poss"`
	Ois      map[string]int     `json:"ois"`
	Lps      map[string]float64 `json:"lps"`
	// 合约理论价与价差 awp 共用
	Awps map[string]float64 `json:"awps"`

	TrdSprds []string `json:"trd_sprds"`
	Sprds    []string `json:"sprds"`

	SprdPoss    map[string]int     `json:"sprd_poss"`
	StepSizes   map[string]int     `json:"step_sizes"`
	SprdMaxLots map[string]int     `json:"sprd_max_lots"`
	RefMids     map[string]float64 `json:"ref_mids"`
	Atps        map[string]float64 `json:"atps"`
	DiPnls      map[string]float64 `json:"di_pnls"`
	DnPnls      map[string]float64 `json:"dn_pnls"`
	Pnls        map[string]float64 `json:"pnls"`
	Mrgns       map[string]float64 `json:"mrgns"`
	SprdAPs     map[string]float64 `json:"sprd_aps"`
	SprdBPs     map[string]float64 `json:"sprd_bps"`
	SprdAQs     map[string]int     `json:"sprd_aqs"`
	SprdBQs     map[string]int     `json:"sprd_bqs"`
	TheoBids    map[string]float64 `json:"theo_bids"`
	TheoAsks    map[string]float64 `json:"theo_asks"`
	LastCycles  map[string]string  `json:"last_cycles"`

	DynamicFactorLong     map[string]float64 `json:"dynamic_factor_long"`
	DynamicFactorShort    map[string]float64 `json:"dynamic_factor_short"`
	NumOpensLong          map[string]int     `json:"num_opens_long"`
	NumOpensShort         map[string]int     `json:"num_opens_short"`
	ProfitableClosesLong  map[string]int     `json:"profitable_closes_long"`
	ProfitableClosesShort map[string]int     `json:"profitable_closes_short"`
	NumClosesLong         map[string]int     `json:"num_closes_long"`
	NumClosesShort        map[string]int     `json:"num_closes_short"`

	InRiskMode       map[string]bool      `json:"in_risk_mode"`
	BreakDirection   map[string]int       `json:"break_direction"`
	BreakSpread      map[string]float64   `json:"break_spread"`
	RiskCenter       map[string]float64   `json:"risk_center"`
	ExtremeSpread    map[string]float64   `json:"extreme_spread"`
	EntryLegPrices   map[string][]float64 `json:"entry_leg_prices"`
	ReducedLeg       map[string]string    `json:"reduced_leg"`
	ReducedAmount    map[string]int       `json:"reduced_amount"`
	ReducedDirection map[string]int       `json:"reduced_direction"`
	ArbitragePos     map[string]int       `json:"arbitrage_pos"`
	RiskPos          map[string]int       `json:"risk_pos"`
	MaxVirtualAbs    map[string]int       `json:"max_virtual_abs"`

	OpenPositions map[string][]strategy.OpenPosition `json:"open_positions"`

	// 未完成周期遗留的腿缺口，价差名 -> 腿序号 -> 带符号手数
	RemainPositions map[string]map[int]int `json:"remain_positions"`

	DailyHighLows  map[string][]strategy.DailyHighLow `json:"daily_high_lows"`
	CurrentDay     map[string]int                     `json:"current_day"`
	CurrentDayHigh map[string]float64                 `json:"current_day_high"`
	CurrentDayLow  map[string]float64                 `json:"current_day_low"`
}

// NewState 所有集合已初始化的空状态
func NewState() *State {
	st := &State{}
	st.init()
	return st
}

// init 补齐文件中缺失的集合
func (st *State) init() {
	for _, m := range []*map[string]int{
		&st.InstPoss, &st.Ois, &st.SprdPoss, &st.StepSizes, &st.SprdMaxLots, &st.SprdAQs, &st.SprdBQs,
		&st.NumOpensLong, &st.NumOpensShort, &st.ProfitableClosesLong, &st.ProfitableClosesShort,
		&st.NumClosesLong, &st.NumClosesShort, &st.BreakDirection, &st.ReducedAmount, &st.ReducedDirection,
		&st.ArbitragePos, &st.RiskPos, &st.MaxVirtualAbs, &st.CurrentDay,
	} {
		if *m == nil {
			*m = make(map[string]int)
		}
	}
	for _, m := range []*map[string]float64{
		&st.Lps, &st.Awps, &st.RefMids, &st.Atps, &st.DiPnls, &st.DnPnls, &st.Pnls, &st.Mrgns,
		&st.SprdAPs, &st.SprdBPs, &st.TheoBids, &st.TheoAsks, &st.DynamicFactorLong, &st.DynamicFactorShort,
		&st.BreakSpread, &st.RiskCenter, &st.ExtremeSpread, &st.CurrentDayHigh, &st.CurrentDayLow,
	} {
		if *m == nil {
			*m = make(map[string]float64)
		}
	}
	if st.InRiskMode == nil {
		st.InRiskMode = make(map[string]bool)
	}
	if st.EntryLegPrices == nil {
		st.EntryLegPrices = make(map[string][]float64)
	}
	if st.ReducedLeg == nil {
		st.ReducedLeg = make(map[string]string)
	}
	if st.LastCycles == nil {
		st.LastCycles = make(map[string]string)
	}
	if st.OpenPositions == nil {
		st.OpenPositions = make(map[string][]strategy.OpenPosition)
	}
	if st.RemainPositions == nil {
		st.RemainPositions = make(map[string]map[int]int)
	}
	if st.DailyHighLows == nil {
		st.DailyHighLows = make(map[string][]strategy.DailyHighLow)
	}
}

// Load 读取状态文件
func Load(path string) (*State, error) {
	logger.Debugf("[Persistence] load %s", path)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExists
		}
		return nil, errors.Wrapf(err, "read state %s", path)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, ErrNotExists
	}
	st := &State{}
	if err := json.Unmarshal(b, st); err != nil {
		return nil, errors.Wrapf(err, "decode state %s", path)
	}
	st.init()
	return st, nil
}

// Save 写临时文件后 rename，保证文件始终完整
func Save(path string, st *State) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create state dir %s", dir)
		}
	}
	b, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrapf(err, "write state %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename state %s", path)
	}
	logger.Debugf("[Persistence] saved %s (%d spreads)", path, len(st.SprdPoss))
	return nil
}

// SpreadNames 状态中出现过的价差名，按名称排序
func (st *State) SpreadNames() []string {
	seen := make(map[string]bool)
	for name := range st.SprdPoss {
		seen[name] = true
	}
	for _, name := range st.Sprds {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PutSignal 写入一个价差的状态
func (st *State) PutSignal(s *strategy.SpreadSignal, tradable bool) {
	n := s.Name
	st.Sprds = appendUnique(st.Sprds, n)
	if tradable {
		st.TrdSprds = appendUnique(st.TrdSprds, n)
	}
	st.SprdPoss[n] = s.Pos
	st.StepSizes[n] = s.StepSize
	st.SprdMaxLots[n] = s.SprdMaxLot
	st.RefMids[n] = s.RefMid
	st.Atps[n] = s.Atp
	st.DiPnls[n] = s.DiPnl
	st.DnPnls[n] = s.DnPnl
	st.Pnls[n] = s.Pnl
	st.Awps[n] = s.Awp
	st.Mrgns[n] = s.Mrgn
	st.SprdAPs[n] = s.SprdAP
	st.SprdBPs[n] = s.SprdBP
	st.SprdAQs[n] = s.SprdAQ
	st.SprdBQs[n] = s.SprdBQ
	st.TheoBids[n] = s.TheoBid
	st.TheoAsks[n] = s.TheoAsk
	if s.LastCycle != "" {
		st.LastCycles[n] = s.LastCycle
	}

	st.DynamicFactorLong[n] = s.DynamicFactorLong
	st.DynamicFactorShort[n] = s.DynamicFactorShort
	st.NumOpensLong[n] = s.NumOpensLong
	st.NumOpensShort[n] = s.NumOpensShort
	st.ProfitableClosesLong[n] = s.ProfitableLong
	st.ProfitableClosesShort[n] = s.ProfitableShort
	st.NumClosesLong[n] = s.NumClosesLong
	st.NumClosesShort[n] = s.NumClosesShort

	st.InRiskMode[n] = s.InRiskMode
	st.BreakDirection[n] = s.BreakDirection
	st.BreakSpread[n] = s.BreakSpread
	st.RiskCenter[n] = s.RiskCenter
	st.ExtremeSpread[n] = s.ExtremeSpread
	st.EntryLegPrices[n] = s.EntryLegPrices
	st.ReducedLeg[n] = s.ReducedLeg
	st.ReducedAmount[n] = s.ReducedAmount
	st.ReducedDirection[n] = s.ReducedDirection
	st.ArbitragePos[n] = s.ArbitragePos
	st.RiskPos[n] = s.RiskPos
	st.MaxVirtualAbs[n] = s.MaxVirtualAbs
	st.OpenPositions[n] = s.OpenPositions

	st.DailyHighLows[n] = s.DailyHighLows
	st.CurrentDay[n] = s.CurrentDay
	st.CurrentDayHigh[n] = s.CurrentDayHigh
	st.CurrentDayLow[n] = s.CurrentDayLow
}

// Signal 还原一个价差的状态，不存在时返回 nil
func (st *State) Signal(name string, id int) *strategy.SpreadSignal {
	if _, ok := st.SprdPoss[name]; !ok {
		return nil
	}
	s := strategy.NewSpreadSignal(name, id)
	s.Pos = st.SprdPoss[name]
	s.StepSize = st.StepSizes[name]
	s.SprdMaxLot = st.SprdMaxLots[name]
	s.RefMid = st.RefMids[name]
	s.Atp = st.Atps[name]
	s.DiPnl = st.DiPnls[name]
	s.DnPnl = st.DnPnls[name]
	s.Pnl = st.Pnls[name]
	s.Awp = st.Awps[name]
	s.Mrgn = st.Mrgns[name]
	s.SprdAP = st.SprdAPs[name]
	s.SprdBP = st.SprdBPs[name]
	s.SprdAQ = st.SprdAQs[name]
	s.SprdBQ = st.SprdBQs[name]
	s.TheoBid = st.TheoBids[name]
	s.TheoAsk = st.TheoAsks[name]
	s.LastCycle = st.LastCycles[name]

	if v, ok := st.DynamicFactorLong[name]; ok && v > 0 {
		s.DynamicFactorLong = v
	}
	if v, ok := st.DynamicFactorShort[name]; ok && v > 0 {
		s.DynamicFactorShort = v
	}
	s.NumOpensLong = st.NumOpensLong[name]
	s.NumOpensShort = st.NumOpensShort[name]
	s.ProfitableLong = st.ProfitableClosesLong[name]
	s.ProfitableShort = st.ProfitableClosesShort[name]
	s.NumClosesLong = st.NumClosesLong[name]
	s.NumClosesShort = st.NumClosesShort[name]

	s.InRiskMode = st.InRiskMode[name]
	s.BreakDirection = st.BreakDirection[name]
	s.BreakSpread = st.BreakSpread[name]
	s.RiskCenter = st.RiskCenter[name]
	s.ExtremeSpread = st.ExtremeSpread[name]
	s.EntryLegPrices = st.EntryLegPrices[name]
	s.ReducedLeg = st.ReducedLeg[name]
	s.ReducedAmount = st.ReducedAmount[name]
	s.ReducedDirection = st.ReducedDirection[name]
	s.ArbitragePos = st.ArbitragePos[name]
	s.RiskPos = st.RiskPos[name]
	s.MaxVirtualAbs = st.MaxVirtualAbs[name]
	s.OpenPositions = st.OpenPositions[name]

	s.DailyHighLows = st.DailyHighLows[name]
	s.CurrentDay = st.CurrentDay[name]
	s.CurrentDayHigh = st.CurrentDayHigh[name]
	s.CurrentDayLow = st.CurrentDayLow[name]
	return s
}

// PutRemain 写入价差的腿缺口，没有缺口时不写
func (st *State) PutRemain(name string, remain map[int]int) {
	if len(remain) == 0 {
		delete(st.RemainPositions, name)
		return
	}
	m := make(map[int]int, len(remain))
	for legID, pos := range remain {
		if pos != 0 {
			m[legID] = pos
		}
	}
	st.RemainPositions[name] = m
}

// Remain 价差的腿缺口副本
func (st *State) Remain(name string) map[int]int {
	m := make(map[int]int, len(st.RemainPositions[name]))
	for legID, pos := range st.RemainPositions[name] {
		if pos != 0 {
			m[legID] = pos
		}
	}
	return m
}

// PutLeg 写入合约持仓和价格
func (st *State) PutLeg(leg *instrument.Leg) {
	key := leg.Key()
	st.InstPoss[key] = leg.Pos
	st.Ois[key] = leg.PreOI
	st.Lps[key] = leg.LP
	st.Awps[key] = leg.TheoLast
}

// ApplyLeg 把持久化的持仓和理论价还原到腿上，键可以是 "ID.exchange" 或 "ID"
func (st *State) ApplyLeg(leg *instrument.Leg) bool {
	for _, key := range []string{leg.Key(), leg.Symbol} {
		pos, ok := st.InstPoss[key]
		if !ok {
			continue
		}
		leg.Pos = pos
		if lp, ok := st.Lps[key]; ok && lp > 0 {
			leg.TheoLast = lp
		}
		return true
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
