package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"
)

// MDQPRecord 行情优先级文件中的一行
type MDQPRecord struct {
	InstrumentNo int    `csv:"InstrumentNo"`
	InstrumentID string `csv:"InstrumentID"`
}

// LoadMDQP 读取 <folder>/<exchange>_mdqp.csv，返回 合约 -> 序号
// 文件不存在时返回空表
func LoadMDQP(folder, exchange string) (map[string]int, error) {
	path := filepath.Join(folder, exchange+"_mdqp.csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var records []*MDQPRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	out := make(map[string]int, len(records))
	for _, r := range records {
		if r.InstrumentID == "" {
			continue
		}
		out[r.InstrumentID] = r.InstrumentNo
	}
	return out, nil
}

// SubscriptionOrder 按行情优先级排列合约，未出现在优先级文件中的保持原顺序排在后面
func (c *Config) SubscriptionOrder() ([]string, error) {
	symbols := c.Symbols()
	if c.Strategy.MDQPFolder == "" {
		return symbols, nil
	}
	prio := make(map[string]int)
	loaded := make(map[string]bool)
	for _, sym := range symbols {
		exch := c.Instruments[sym].Exchange
		if loaded[exch] {
			continue
		}
		loaded[exch] = true
		m, err := LoadMDQP(c.Strategy.MDQPFolder, exch)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			prio[k] = v
		}
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		pi, oki := prio[symbols[i]]
		pj, okj := prio[symbols[j]]
		switch {
		case oki && okj:
			return pi < pj
		case oki:
			return true
		}
		return false
	})
	return symbols, nil
}
