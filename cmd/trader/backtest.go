package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/sim"
)

func newBacktestCmd() *cobra.Command {
	var (
		ticksPath string
		stateFile string
		autoMatch bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "用 CSV 行情在模拟柜台上回放",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Strategy.IsBacktest = true
			if stateFile != "" {
				cfg.Strategy.StateFile = stateFile
			}
			return runBacktest(cmd.OutOrStdout(), cfg, ticksPath, autoMatch)
		},
	}
	cmd.Flags().StringVarP(&ticksPath, "ticks", "t", "", "行情 CSV 文件")
	cmd.Flags().StringVar(&stateFile, "state", "", "状态文件，默认取配置")
	cmd.Flags().BoolVar(&autoMatch, "match", true, "按对手价自动撮合")
	cmd.MarkFlagRequired("ticks")
	return cmd
}

// tradeRecorder 汇总回测中的价差成交
type tradeRecorder struct {
	trades []engine.SpreadTrade
}

func (r *tradeRecorder) OnSpreadTrade(t engine.SpreadTrade) { r.trades = append(r.trades, t) }

func runBacktest(w io.Writer, cfg *config.Config, ticksPath string, autoMatch bool) error {
	ticks, err := sim.LoadTicks(ticksPath)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("no ticks in %s", ticksPath)
	}
	first, err := ticks[0].MarketData()
	if err != nil {
		return err
	}

	clock := sim.NewManualClock(first.Timestamp)
	gw := sim.NewGateway()
	gw.AutoMatch = autoMatch
	eng, err := engine.New(cfg, engine.Options{Clock: clock, Gateway: gw})
	if err != nil {
		return err
	}
	rec := &tradeRecorder{}
	if err := eng.Bus().Subscribe(engine.TopicSpreadTrade, rec.OnSpreadTrade); err != nil {
		return err
	}

	n, err := sim.Replay(ticks, clock, gw, eng)
	if err != nil {
		return err
	}
	eng.Shutdown()
	gw.Flush(eng)
	logger.Infof("[backtest] replayed %d ticks, %d spread trades", n, len(rec.trades))

	printSummary(w, eng.Snapshot(), rec.trades)
	return nil
}

func printSummary(w io.Writer, snap *engine.Snapshot, trades []engine.SpreadTrade) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "spread\tpos\tatp\tpnl\tmargin\n")
	total := decimal.Zero
	for _, sp := range snap.Spreads {
		pnl := decimal.NewFromFloat(sp.Pnl).Round(2)
		total = total.Add(pnl)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", sp.Name, sp.Pos,
			decimal.NewFromFloat(sp.Atp).StringFixed(2), pnl.StringFixed(2),
			decimal.NewFromFloat(sp.Margin).StringFixed(0))
	}
	fmt.Fprintf(tw, "total\t\t\t%s\t\n", total.StringFixed(2))

	c := snap.Counters
	fmt.Fprintf(tw, "\ncycles\t%d\ttraded\t%d\tcancelled\t%d\tfailed\t%d\n",
		c.SendCount, c.TradeCount, c.CancelCount, c.FailedCount)

	s := summarizeTrades(trades)
	if s.count == 0 {
		return
	}
	fmt.Fprintf(tw, "spread trades\t%d\tlots\t%d\tunbalanced\t%d\n", s.count, s.lots, s.unbalanced)
	fmt.Fprintf(tw, "price mean\t%.2f\tstddev\t%.2f\tp50\t%.2f\n", s.mean, s.stddev, s.median)
}

type tradeSummary struct {
	count      int
	lots       int
	unbalanced int
	mean       float64
	stddev     float64
	median     float64
}

// summarizeTrades 成交价差的分布
func summarizeTrades(trades []engine.SpreadTrade) tradeSummary {
	var s tradeSummary
	prices := make(stats.Float64Data, 0, len(trades))
	for _, t := range trades {
		if t.Volume == 0 {
			continue
		}
		s.count++
		if t.Volume > 0 {
			s.lots += t.Volume
		} else {
			s.lots -= t.Volume
		}
		if !t.Balanced {
			s.unbalanced++
		}
		prices = append(prices, t.Price)
	}
	if len(prices) == 0 {
		return s
	}
	s.mean, _ = prices.Mean()
	s.stddev, _ = prices.StandardDeviation()
	s.median, _ = prices.Median()
	return s
}
