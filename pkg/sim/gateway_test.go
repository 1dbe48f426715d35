package sim

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlink/spreadgrid/pkg/types"
)

type recorder struct {
	mds     []types.MarketData
	updates []types.OrderUpdate
	trades  []types.TradeReport
	ticks   int
}

func (r *recorder) OnMarketData(md types.MarketData) { r.mds = append(r.mds, md) }
func (r *recorder) OnOrderUpdate(u types.OrderUpdate) { r.updates = append(r.updates, u) }
func (r *recorder) OnTrade(t types.TradeReport)       { r.trades = append(r.trades, t) }
func (r *recorder) OnTick()                           { r.ticks++ }

func buy(symbol string, price float64, vol int) types.OrderRequest {
	return types.OrderRequest{Symbol: symbol, Exchange: "SHFE", Direction: types.Buy, Price: price, Volume: vol}
}

func TestGateway_FillSequence(t *testing.T) {
	gw := NewGateway()
	rec := &recorder{}

	id, err := gw.SendOrder(buy("rb2505", 3410, 3))
	require.NoError(t, err)
	require.NoError(t, gw.Fill(id, 1, 3410))
	require.NoError(t, gw.Fill(id, 2, 3409))
	assert.Equal(t, 5, gw.Pending())

	assert.Equal(t, 5, gw.Flush(rec))
	require.Len(t, rec.updates, 3)
	assert.Equal(t, types.StatusAccepted, rec.updates[0].Status)
	assert.Equal(t, types.StatusPartial, rec.updates[1].Status)
	assert.Equal(t, 1, rec.updates[1].TradedVolume)
	assert.Equal(t, types.StatusFilled, rec.updates[2].Status)
	require.Len(t, rec.trades, 2)
	assert.Equal(t, 3409.0, rec.trades[1].Price)

	err = gw.Fill(id, 1, 3410)
	assert.Error(t, err)
	assert.Empty(t, gw.Open())
}

func TestGateway_OverFill(t *testing.T) {
	gw := NewGateway()
	id, err := gw.SendOrder(buy("rb2505", 3410, 2))
	require.NoError(t, err)
	assert.Error(t, gw.Fill(id, 3, 3410))
	assert.Error(t, gw.Fill(id, 0, 3410))
	assert.Error(t, gw.Fill(99, 1, 3410))
}

func TestGateway_CancelAndReject(t *testing.T) {
	gw := NewGateway()
	gw.AutoAck = false
	rec := &recorder{}

	id1, _ := gw.SendOrder(buy("rb2505", 3410, 1))
	id2, _ := gw.SendOrder(buy("hc2505", 3320, 1))
	require.NoError(t, gw.CancelOrder(id1))
	assert.Error(t, gw.CancelOrder(id1))
	require.NoError(t, gw.Reject(id2, "margin"))

	gw.Flush(rec)
	require.Len(t, rec.updates, 2)
	assert.Equal(t, types.StatusCancelled, rec.updates[0].Status)
	assert.Equal(t, types.StatusRejected, rec.updates[1].Status)
	assert.Equal(t, "margin", rec.updates[1].Message)

	o, ok := gw.Order(id2)
	require.True(t, ok)
	assert.Equal(t, types.StatusRejected, o.Status)
}

func TestGateway_FailSend(t *testing.T) {
	gw := NewGateway()
	gw.FailSend = 1
	_, err := gw.SendOrder(buy("rb2505", 3410, 1))
	assert.ErrorIs(t, err, ErrSendRejected)
	_, err = gw.SendOrder(buy("rb2505", 3410, 1))
	assert.NoError(t, err)
	assert.Len(t, gw.Sent(), 1)
}

func TestGateway_AutoMatch(t *testing.T) {
	gw := NewGateway()
	gw.AutoMatch = true
	rec := &recorder{}
	gw.Quote(types.MarketData{Symbol: "rb2505", BidPrice: 3409, AskPrice: 3410, BidVolume: 5, AskVolume: 2})

	// 限价买单只成交卖一的量，剩余挂着
	id, _ := gw.SendOrder(buy("rb2505", 3410, 3))
	o, _ := gw.Order(id)
	assert.Equal(t, 2, o.Traded)
	assert.Equal(t, types.StatusPartial, o.Status)

	// 新行情到来时继续撮合
	gw.Quote(types.MarketData{Symbol: "rb2505", BidPrice: 3408, AskPrice: 3409, BidVolume: 5, AskVolume: 5})
	o, _ = gw.Order(id)
	assert.Equal(t, types.StatusFilled, o.Status)

	// FAK 卖单价格高于买一，直接撤销
	fak := types.OrderRequest{Symbol: "rb2505", Direction: types.Sell, Type: types.OrderFAK, Price: 3412, Volume: 1}
	fid, _ := gw.SendOrder(fak)
	o, _ = gw.Order(fid)
	assert.Equal(t, types.StatusCancelled, o.Status)

	gw.Flush(rec)
	require.Len(t, rec.trades, 2)
	assert.Equal(t, 3410.0, rec.trades[0].Price)
	assert.Equal(t, 3409.0, rec.trades[1].Price)
	last, ok := gw.Last()
	require.True(t, ok)
	assert.Equal(t, fid, last.ID)
}

func TestParseTickTime(t *testing.T) {
	ts, err := parseTickTime("09:30:01.250")
	require.NoError(t, err)
	assert.Equal(t, int64(9*3600000+30*60000+1000+250), ts)

	ts, err = parseTickTime("21:00:00")
	require.NoError(t, err)
	assert.Equal(t, int64(21*3600000), ts)

	_, err = parseTickTime("09:30:01.2x0")
	assert.Error(t, err)
}

func TestLoadTicksAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.csv")
	data := "time,symbol,exchange,bid,ask,bid_vol,ask_vol,last,volume\n" +
		"09:00:00.500,rb2505,SHFE,3409,3410,10,12,3410,100\n" +
		"09:00:01.000,hc2505,SHFE,3320,3321,8,9,3320,80\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	ticks, err := LoadTicks(path)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, "rb2505", ticks[0].Symbol)
	assert.Equal(t, 12, ticks[0].AskVolume)

	clock := NewManualClock(0)
	gw := NewGateway()
	rec := &recorder{}
	n, err := Replay(ticks, clock, gw, rec)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, rec.ticks)
	require.Len(t, rec.mds, 2)
	assert.Equal(t, int64(9*3600000+500), rec.mds[0].Timestamp)
	assert.Equal(t, int64(9*3600000+1000), clock.Now())
}

func TestLoadTicks_Missing(t *testing.T) {
	_, err := LoadTicks(filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}

func TestGenerateTicks_SaveAndLoad(t *testing.T) {
	opts := GenOptions{
		Legs: []GenLeg{
			{Symbol: "rb2505", Exchange: "SHFE", Base: 3410, Tick: 1},
			{Symbol: "hc2505", Exchange: "SHFE", Base: 3320, Tick: 1},
		},
		Start:      9 * 3600000,
		Steps:      50,
		Volatility: 2,
		Noise:      1,
	}
	ticks := GenerateTicks(opts, rand.New(rand.NewSource(7)))
	require.Len(t, ticks, 100)
	assert.Equal(t, "09:00:00.000", ticks[0].Time)
	assert.Equal(t, "09:00:00.001", ticks[1].Time)
	assert.Equal(t, "09:00:00.500", ticks[2].Time)
	for _, tk := range ticks {
		assert.Equal(t, tk.BidPrice+1, tk.AskPrice)
	}
	assert.Greater(t, ticks[98].Volume, ticks[0].Volume)

	path := filepath.Join(t.TempDir(), "gen", "ticks.csv")
	require.NoError(t, SaveTicks(path, ticks))
	loaded, err := LoadTicks(path)
	require.NoError(t, err)
	require.Len(t, loaded, len(ticks))
	assert.Equal(t, *ticks[57], *loaded[57])

	md, err := loaded[2].MarketData()
	require.NoError(t, err)
	assert.Equal(t, int64(9*3600000+500), md.Timestamp)
}
