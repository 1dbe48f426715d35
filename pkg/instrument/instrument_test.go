package instrument

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlink/spreadgrid/pkg/types"
)

func newTestLeg() *Leg {
	return NewLeg(0, Static{
		Symbol:        "rb2505",
		Exchange:      "SHFE",
		Tick:          1.0,
		Multiplier:    10,
		UpperLimit:    4000,
		LowerLimit:    3000,
		PreClose:      3500,
		PreSettle:     3498,
		PreOI:         100000,
		MarginPerLot:  3500,
		OpenFee:       2,
		CloseFee:      2,
		CloseTodayFee: 6,
	}, Options{})
}

func quote(bp, ap float64, bq, aq int, lp float64, vol int) types.MarketData {
	return types.MarketData{Symbol: "rb2505", BidPrice: bp, AskPrice: ap, BidVolume: bq, AskVolume: aq, LastPrice: lp, Volume: vol}
}

func TestUpdate_BookAndGap(t *testing.T) {
	leg := newTestLeg()
	leg.Update(quote(3500, 3501, 10, 20, 3500, 100))
	leg.Update(quote(3501, 3503, 5, 8, 3502, 130))

	assert.Equal(t, 3501.0, leg.BP)
	assert.Equal(t, 3503.0, leg.AP)
	assert.Equal(t, 3500.0, leg.LBP)
	assert.Equal(t, 30, leg.LQ)
	assert.Equal(t, 2.0, leg.GAP)
	assert.Equal(t, 1.0, leg.LGAP)
	// 第一笔 EMA = 1，第二笔 (1*19 + 2*2)/21
	assert.InDelta(t, 23.0/21.0, leg.GapEMA, 1e-9)
	assert.True(t, leg.IsReadyToTrade())
}

func TestReadiness_InvalidQuoteRecovery(t *testing.T) {
	leg := newTestLeg()
	leg.Update(quote(3500, 3501, 10, 10, 3500, 100))
	require.True(t, leg.IsReadyToTrade())

	leg.Update(quote(3500, 3501, 0, 10, 3500, 100))
	assert.False(t, leg.IsReadyToTrade())
	assert.True(t, leg.InvalidQuote())

	for i := 0; i < ValidCount-1; i++ {
		leg.Update(quote(3500, 3501, 10, 10, 3500, 100))
	}
	assert.False(t, leg.IsReadyToTrade(), "needs %d valid quotes", ValidCount)

	leg.Update(quote(3500, 3501, 10, 10, 3500, 100))
	assert.True(t, leg.IsReadyToTrade())
}

func TestReadiness_GiantGap(t *testing.T) {
	leg := newTestLeg()
	leg.Update(quote(3500, 3540, 10, 10, 3500, 100))
	assert.True(t, leg.GiantGapActive())
	assert.False(t, leg.IsReadyToTrade())

	leg.Update(quote(3500, 3539, 10, 10, 3500, 100))
	assert.True(t, leg.IsReadyToTrade())
}

func TestReadiness_FatFinger(t *testing.T) {
	leg := newTestLeg()
	leg.Update(quote(3500, 3501, 10, 10, 3500, 100))
	// 成交价高出上一卖一 59 个 tick，上一盘口价差为 1
	leg.Update(quote(3500, 3501, 10, 10, 3560, 110))
	assert.True(t, leg.FatFingerActive())
	assert.False(t, leg.IsReadyToTrade())

	for i := 0; i < FatRecover-2; i++ {
		leg.Update(quote(3500, 3501, 10, 10, 3560, 110))
		assert.False(t, leg.IsReadyToTrade())
	}
	leg.Update(quote(3500, 3501, 10, 10, 3560, 110))
	assert.False(t, leg.FatFingerActive())
	assert.True(t, leg.IsReadyToTrade())
}

func TestReadiness_LimitAlwaysReady(t *testing.T) {
	leg := newTestLeg()
	leg.Update(quote(4000, 0, 10, 0, 4000, 100))
	assert.Equal(t, 1, leg.HitLimit())
	assert.True(t, leg.IsReadyToTrade())
	assert.False(t, leg.IsSafeToBuy(SafeTicks))
}

func TestSafeToBuySell(t *testing.T) {
	leg := newTestLeg()
	leg.Update(quote(3994, 3995, 10, 10, 3995, 100))
	assert.True(t, leg.IsSafeToBuy(SafeTicks))
	leg.Update(quote(3995, 3996, 10, 10, 3995, 100))
	assert.False(t, leg.IsSafeToBuy(SafeTicks))
	assert.True(t, leg.IsSafeToSell(SafeTicks))

	leg.Update(quote(3004, 3005, 10, 10, 3005, 100))
	assert.False(t, leg.IsSafeToSell(SafeTicks))
	leg.Update(quote(3005, 3006, 0, 10, 3005, 100))
	assert.False(t, leg.IsSafeToSell(SafeTicks), "no bid depth")
}

func TestPrices(t *testing.T) {
	leg := newTestLeg()
	assert.Equal(t, 3498.0, leg.DefaultPrice())
	assert.Equal(t, math.MaxFloat64, leg.EffectPrice())
	assert.Equal(t, 3498.0, leg.SettlePrice())

	leg.Update(quote(3500, 3502, 30, 10, 3501, 100))
	assert.Equal(t, 3501.0, leg.DefaultPrice())
	// (3500*10 + 3502*30) / 40
	assert.InDelta(t, 3501.5, leg.EffectPrice(), 1e-9)
	assert.InDelta(t, 3501.5, leg.SettlePrice(), 1e-9)

	leg.Update(quote(3500, 3502, 30, 10, 3501, 120))
	assert.InDelta(t, (3501.5+3501)/2, leg.SettlePrice(), 1e-9)
	assert.True(t, leg.OnBar())
	assert.InDelta(t, (3501.5+3501)/2, leg.TheoLast, 1e-9)

	leg.Update(quote(0, 3502, 0, 10, 3501, 120))
	assert.Equal(t, 3502.0, leg.EffectPrice())
}

func TestCheckStaticError(t *testing.T) {
	leg := newTestLeg()
	assert.NoError(t, leg.CheckStaticError())

	leg.UpperLimit = 2900
	assert.Error(t, leg.CheckStaticError())
	assert.True(t, leg.StaticError)

	leg = newTestLeg()
	leg.Pos = 100001
	assert.Error(t, leg.CheckStaticError())

	leg = newTestLeg()
	leg.PreSettle = 0
	assert.Error(t, leg.CheckStaticError())
}

func TestNotifyOpenTrade_Backtest(t *testing.T) {
	leg := NewLeg(0, Static{Symbol: "x", Tick: 2, OpenFee: 1, CloseFee: 3}, Options{Backtest: true, SlipTicks: 0.5})
	assert.Equal(t, 101.0, leg.NotifyOpenTrade(3, 100))
	assert.Equal(t, 99.0, leg.NotifyOpenTrade(-1, 100))
	assert.Equal(t, 2, leg.Pos)
	// FeePerLot = max(1, 2, 0.5) = 2
	assert.InDelta(t, 8.0, leg.Commission, 1e-9)
}

func TestMargin(t *testing.T) {
	leg := newTestLeg()
	leg.Pos = -3
	assert.InDelta(t, 3*3500.0, leg.Margin(), 1e-9)

	leg.opts.MarginRate = 0.1
	assert.InDelta(t, 3500*10*0.1, leg.MarginPerLotValue(), 1e-9)
}

func TestRoundPrice(t *testing.T) {
	leg := NewLeg(0, Static{Symbol: "au", Tick: 0.02, UpperLimit: 600, LowerLimit: 400}, Options{})
	assert.Equal(t, 500.06, leg.RoundPrice(500.0600000001))
	leg.AP, leg.BP = 500.02, 500.0
	assert.Equal(t, 500.08, leg.BuyPrice(3))
	assert.Equal(t, 499.94, leg.SellPrice(3))
	leg.AP = 599.98
	assert.Equal(t, 600.0, leg.BuyPrice(10))
}

func TestArena(t *testing.T) {
	a := NewArena()
	l0, err := a.Add(Static{Symbol: "rb2505"}, Options{})
	require.NoError(t, err)
	l1, err := a.Add(Static{Symbol: "rb2510"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, l0.ID)
	assert.Equal(t, 1, l1.ID)
	assert.Equal(t, 2, a.Len())

	_, err = a.Add(Static{Symbol: "rb2505"}, Options{})
	assert.ErrorIs(t, err, ErrDuplicateLeg)

	got, ok := a.BySymbol("rb2510")
	require.True(t, ok)
	assert.Same(t, l1, got)
	assert.Nil(t, a.Get(5))
}

func TestLegTasks(t *testing.T) {
	leg := newTestLeg()
	leg.SubscribeTask(3, 17)
	leg.SubscribeTask(4, 18)
	leg.UnsubscribeTask(3)
	assert.Equal(t, map[int]int{4: 18}, leg.Tasks())
}
