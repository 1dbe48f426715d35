package types

// MarketData 单个合约的一笔行情快照
// Timestamp 为交易所时间（当日毫秒数）
type MarketData struct {
	Symbol    string
	Exchange  string
	BidPrice  float64
	AskPrice  float64
	LastPrice float64
	BidVolume int
	AskVolume int
	Volume    int // 累计成交量
	Timestamp int64
}

// OrderRequest 发往柜台的报单请求
type OrderRequest struct {
	Symbol         string
	Exchange       string
	Direction      Direction
	Type           OrderType
	Price          float64
	Volume         int
	OffsetStrategy int
	Kind           OrderKind
}

// OrderUpdate 柜台订单回报
// TradedVolume 为该订单累计成交量（无符号）
type OrderUpdate struct {
	OrderID      int64
	Status       OrderStatus
	TradedVolume int
	Message      string
}

// TradeReport 柜台成交回报，Volume 无符号
type TradeReport struct {
	OrderID   int64
	Symbol    string
	Direction Direction
	Price     float64
	Volume    int
}

// OrderStats 引擎侧对一笔在途订单的记录
type OrderStats struct {
	OrderID   int64
	Kind      OrderKind
	SpreadID  int
	LegID     int   // 价差内腿序号
	LegRef    int   // 合约在 Arena 中的序号
	TaskID    int   // KindForce 时有效
	Direction Direction
	Type      OrderType
	Price     float64
	Volume    int
	Status    OrderStatus

	ReportedVolume int  // 订单回报中的累计成交量
	TradedVolume   int  // 已处理的成交回报累计量
	Acked          bool // 已收到首个回报
	CancelSent     bool
	SentTS         int64
}

// NewOrderStats 创建初始化的 OrderStats
func NewOrderStats(orderID int64, kind OrderKind, req OrderRequest, ts int64) *OrderStats {
	return &OrderStats{
		OrderID:   orderID,
		Kind:      kind,
		SpreadID:  -1,
		LegID:     -1,
		LegRef:    -1,
		TaskID:    -1,
		Direction: req.Direction,
		Type:      req.Type,
		Price:     req.Price,
		Volume:    req.Volume,
		Status:    StatusPending,
		SentTS:    ts,
	}
}

// Finished 订单终结且所有成交回报都已处理
func (o *OrderStats) Finished() bool {
	return o.Status.Finished() && o.ReportedVolume == o.TradedVolume
}

// SignedTraded 带方向的已处理成交量
func (o *OrderStats) SignedTraded() int {
	return o.TradedVolume * o.Direction.Sign()
}
