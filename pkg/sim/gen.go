package sim

import (
	"math"
	"math/rand"

	"github.com/quantlink/spreadgrid/pkg/config"
)

// GenLeg 模拟行情中的一条腿
type GenLeg struct {
	Symbol   string
	Exchange string
	Base     float64 // 起始价
	Tick     float64
	Beta     float64 // 对公共因子的敏感度
}

// GenOptions 随机游走参数
type GenOptions struct {
	Legs       []GenLeg
	Start      int64   // 当日毫秒
	Interval   int64   // 相邻两轮行情的间隔毫秒
	Steps      int     // 轮数，每轮每条腿一笔
	Volatility float64 // 公共因子单步波动（跳数）
	Noise      float64 // 腿自身偏离的单步波动（跳数）
	Revert     float64 // 偏离的均值回复系数 (0,1)
}

// GenerateTicks 生成带公共因子的多腿随机游走行情
// 各腿价格 = Base + Beta*公共因子 + 自身偏离，偏离按 Revert 回复，价差因此围绕初始值震荡
func GenerateTicks(opts GenOptions, rnd *rand.Rand) []*Tick {
	if opts.Revert <= 0 || opts.Revert >= 1 {
		opts.Revert = 0.05
	}
	if opts.Interval <= 0 {
		opts.Interval = 500
	}
	dev := make([]float64, len(opts.Legs))
	volume := make([]int, len(opts.Legs))
	common := 0.0

	ticks := make([]*Tick, 0, opts.Steps*len(opts.Legs))
	for step := 0; step < opts.Steps; step++ {
		common += rnd.NormFloat64() * opts.Volatility
		ts := opts.Start + int64(step)*opts.Interval
		for i, leg := range opts.Legs {
			tick := leg.Tick
			if tick <= 0 {
				tick = 1
			}
			beta := leg.Beta
			if beta == 0 {
				beta = 1
			}
			dev[i] = dev[i]*(1-opts.Revert) + rnd.NormFloat64()*opts.Noise
			mid := leg.Base + (beta*common+dev[i])*tick
			bid := math.Floor(mid/tick) * tick
			lq := 1 + rnd.Intn(20)
			volume[i] += lq
			last := bid
			if rnd.Intn(2) == 1 {
				last = bid + tick
			}
			ticks = append(ticks, &Tick{
				Time:      config.FormatClock(ts + int64(i)),
				Symbol:    leg.Symbol,
				Exchange:  leg.Exchange,
				BidPrice:  bid,
				AskPrice:  bid + tick,
				BidVolume: 5 + rnd.Intn(100),
				AskVolume: 5 + rnd.Intn(100),
				LastPrice: last,
				Volume:    volume[i],
			})
		}
	}
	return ticks
}
