package execution

// ExecutionState 引擎级的下单/成交/撤单计数
type ExecutionState struct {
	// 价差执行周期
	SendCount    int // 发起的执行周期数
	SendVolume   int // 发起的价差手数
	TradeCount   int // 有成交的周期数
	TradeVolume  int // 成交的价差手数
	CancelCount  int // 完全未成交的周期数
	CancelVolume int // 未成交的价差手数
	FailedCount  int // 结束时腿不平衡的周期数

	// 订单
	OrderCount       int // 发送成功的订单数
	SendFailedCount  int // 发送失败
	RejectCount      int // 被拒
	CancelOrderCount int // 发出的撤单

	PnL PnLState
}

// Reset 计数归零
func (s *ExecutionState) Reset() {
	*s = ExecutionState{}
}

// Unbalanced 不平衡周期是否达到上限
func (s *ExecutionState) Unbalanced(limit int) bool {
	return s.FailedCount >= limit
}
