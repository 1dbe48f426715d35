package sim

import (
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// Tick 行情回放文件中的一行
type Tick struct {
	Time      string  `csv:"time"` // HH:MM:SS[.mmm]
	Symbol    string  `csv:"symbol"`
	Exchange  string  `csv:"exchange"`
	BidPrice  float64 `csv:"bid"`
	AskPrice  float64 `csv:"ask"`
	BidVolume int     `csv:"bid_vol"`
	AskVolume int     `csv:"ask_vol"`
	LastPrice float64 `csv:"last"`
	Volume    int     `csv:"volume"`
}

// MarketData 转换为行情
func (t Tick) MarketData() (types.MarketData, error) {
	ts, err := parseTickTime(t.Time)
	if err != nil {
		return types.MarketData{}, err
	}
	return types.MarketData{
		Symbol:    t.Symbol,
		Exchange:  t.Exchange,
		BidPrice:  t.BidPrice,
		AskPrice:  t.AskPrice,
		LastPrice: t.LastPrice,
		BidVolume: t.BidVolume,
		AskVolume: t.AskVolume,
		Volume:    t.Volume,
		Timestamp: ts,
	}, nil
}

// LoadTicks 读取回放 CSV
func LoadTicks(path string) ([]*Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open ticks %s", path)
	}
	defer f.Close()

	var ticks []*Tick
	if err := gocsv.UnmarshalFile(f, &ticks); err != nil {
		return nil, errors.Wrapf(err, "parse ticks %s", path)
	}
	return ticks, nil
}

// SaveTicks 写出回放 CSV，格式与 LoadTicks 一致
func SaveTicks(path string, ticks []*Tick) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create ticks %s", path)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&ticks, f); err != nil {
		return errors.Wrapf(err, "write ticks %s", path)
	}
	return nil
}

// Ticker 需要在时间推进后检查定时器的处理方
type Ticker interface {
	OnTick()
}

// Replay 按顺序回放行情：推进时钟、更新撮合盘口、投递行情和回报
func Replay(ticks []*Tick, clock *ManualClock, gw *Gateway, h Handler) (int, error) {
	n := 0
	for i, t := range ticks {
		md, err := t.MarketData()
		if err != nil {
			return n, errors.Wrapf(err, "tick %d", i+1)
		}
		if md.Timestamp > clock.Now() {
			clock.Set(md.Timestamp)
		}
		if tk, ok := h.(Ticker); ok {
			tk.OnTick()
			gw.Flush(h)
		}
		gw.Quote(md)
		h.OnMarketData(md)
		gw.Flush(h)
		n++
	}
	return n, nil
}

func parseTickTime(s string) (int64, error) {
	ms := int64(0)
	if i := len(s) - 4; i > 0 && s[i] == '.' {
		frac := s[i+1:]
		for _, c := range frac {
			if c < '0' || c > '9' {
				return 0, errors.Errorf("bad tick time %q", s)
			}
			ms = ms*10 + int64(c-'0')
		}
		s = s[:i]
	}
	ts, err := config.ParseClock(s)
	if err != nil {
		return 0, err
	}
	return ts + ms, nil
}
