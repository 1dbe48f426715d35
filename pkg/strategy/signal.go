package strategy

// OpenPosition 一笔未平的开仓记录
type OpenPosition struct {
	EntryPrice  float64   `json:"entry_price"`  // 价差经济成交均价
	Direction   int       `json:"direction"`    // 1 多 / -1 空
	EntrySpread float64   `json:"entry_spread"` // 执行均价
	LegPrices   []float64 `json:"leg_prices"`
}

// DailyHighLow 某个交易日的价差最高/最低
type DailyHighLow struct {
	Day  int     `json:"day"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// SpreadSignal 价差的持久化交易状态，重启后由状态文件恢复
type SpreadSignal struct {
	Name string
	ID   int

	Pos        int
	StepSize   int
	SprdMaxLot int
	RefMid     float64
	Atp        float64 // 持仓均价（执行价口径）
	DiPnl      float64 // 浮动盈亏
	DnPnl      float64 // 已实现盈亏
	Pnl        float64
	Awp        float64 // 最新价合成价差
	Mrgn       float64

	// 盘口合成价差（执行口径）
	SprdAP, SprdBP float64
	SprdAQ, SprdBQ int

	TrdSprd   float64 // 最近一次成交的价差
	Sprd      float64 // 最近一次的中间价差
	TheoBid   float64
	TheoAsk   float64
	TradeRate int    // 人工交易约束
	LastCycle string // 最近一次有成交的执行周期

	DynamicFactorLong  float64
	DynamicFactorShort float64
	NumOpensLong       int
	NumOpensShort      int
	ProfitableLong     int
	ProfitableShort    int
	NumClosesLong      int
	NumClosesShort     int

	InRiskMode       bool
	BreakDirection   int
	BreakSpread      float64
	RiskCenter       float64
	ExtremeSpread    float64
	EntryLegPrices   []float64
	ReducedLeg       string
	ReducedAmount    int
	ReducedDirection int
	ArbitragePos     int
	RiskPos          int
	MaxVirtualAbs    int

	OpenPositions []OpenPosition

	DailyHighLows  []DailyHighLow
	CurrentDay     int
	CurrentDayHigh float64
	CurrentDayLow  float64
}

// NewSpreadSignal 新建价差状态，动态因子初始为 1
func NewSpreadSignal(name string, id int) *SpreadSignal {
	return &SpreadSignal{
		Name:               name,
		ID:                 id,
		DynamicFactorLong:  1,
		DynamicFactorShort: 1,
	}
}

// Flat 是否无持仓
func (s *SpreadSignal) Flat() bool { return s.Pos == 0 }
