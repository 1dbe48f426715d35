package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/persistence"
)

func newStateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "打印持久化的价差与合约状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				file = cfg.Strategy.StateFile
			}
			st, err := persistence.Load(file)
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "状态文件，默认取配置 strategy.state_file")
	return cmd
}

func printState(w io.Writer, st *persistence.State) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	tradable := make(map[string]bool, len(st.TrdSprds))
	for _, n := range st.TrdSprds {
		tradable[n] = true
	}

	fmt.Fprintf(tw, "spread\ttradable\tpos\tstep\tmax_lot\tatp\tpnl\trisk\n")
	total := decimal.Zero
	for _, n := range st.SpreadNames() {
		pnl := decimal.NewFromFloat(st.Pnls[n]).Round(2)
		total = total.Add(pnl)
		risk := "-"
		if st.InRiskMode[n] {
			risk = fmt.Sprintf("%s %+d", st.ReducedLeg[n], st.RiskPos[n])
		}
		fmt.Fprintf(tw, "%s\t%v\t%d\t%d\t%d\t%s\t%s\t%s\n", n, tradable[n],
			st.SprdPoss[n], st.StepSizes[n], st.SprdMaxLots[n],
			decimal.NewFromFloat(st.Atps[n]).StringFixed(2), pnl.StringFixed(2), risk)
	}
	fmt.Fprintf(tw, "total\t\t\t\t\t\t%s\t\n\n", total.StringFixed(2))

	symbols := make([]string, 0, len(st.InstPoss))
	for s := range st.InstPoss {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	fmt.Fprintf(tw, "symbol\tpos\toi\tlast\n")
	for _, s := range symbols {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s, st.InstPoss[s], st.Ois[s],
			decimal.NewFromFloat(st.Lps[s]).String())
	}
}
