package execution

// PnLState 全部价差的合计盈亏与回撤，按周期 bar 采样
type PnLState struct {
	Net         float64 // 当前合计 pnl
	Max         float64 // 采样以来的最高值
	Drawdown    float64 // Net - Max，不大于 0
	MaxDrawdown float64 // 最深回撤
	Samples     int
}

// Update 记录一次采样
func (p *PnLState) Update(net float64) {
	if p.Samples == 0 || net > p.Max {
		p.Max = net
	}
	p.Net = net
	p.Drawdown = net - p.Max
	if p.Drawdown < p.MaxDrawdown {
		p.MaxDrawdown = p.Drawdown
	}
	p.Samples++
}
