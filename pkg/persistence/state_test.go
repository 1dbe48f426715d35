package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/strategy"
)

func TestLoad_NotExists(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrNotExists)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrNotExists)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExists)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	sig := strategy.NewSpreadSignal("rb2505-hc2505", 3)
	sig.Pos = -4
	sig.StepSize = 2
	sig.SprdMaxLot = 10
	sig.RefMid = 101.5
	sig.Atp = 99.25
	sig.DnPnl = 320
	sig.LastCycle = "5f0c7c1e-4b1a-4c55-9d0e-2a7f3b6d9e10"
	sig.DynamicFactorLong = 1.44
	sig.DynamicFactorShort = 2.0736
	sig.NumOpensShort = 12
	sig.ProfitableShort = 9
	sig.InRiskMode = true
	sig.BreakDirection = -1
	sig.BreakSpread = 68.5
	sig.ReducedLeg = strategy.LegBase
	sig.ReducedAmount = 2
	sig.ReducedDirection = 1
	sig.RiskPos = 2
	sig.ArbitragePos = -4
	sig.MaxVirtualAbs = 4
	sig.EntryLegPrices = []float64{4000, 3900}
	sig.OpenPositions = []strategy.OpenPosition{{EntryPrice: 100, Direction: -1, EntrySpread: 99.5, LegPrices: []float64{4000, 3900}}}
	sig.DailyHighLows = []strategy.DailyHighLow{{Day: 20250101, High: 130, Low: 70}, {Day: 20250102, High: 120, Low: 90}}
	sig.CurrentDay = 20250103
	sig.CurrentDayHigh = 110
	sig.CurrentDayLow = 95

	arena := instrument.NewArena()
	leg, err := arena.Add(instrument.Static{Symbol: "rb2505", Exchange: "SHFE", PreOI: 1000}, instrument.Options{})
	require.NoError(t, err)
	leg.Pos = -4
	leg.LP = 4001

	st := NewState()
	st.PutSignal(sig, true)
	st.PutLeg(leg)

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	require.NoError(t, Save(path, st))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file renamed away")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rb2505-hc2505"}, loaded.SpreadNames())
	assert.Equal(t, []string{"rb2505-hc2505"}, loaded.TrdSprds)

	got := loaded.Signal("rb2505-hc2505", 3)
	require.NotNil(t, got)
	assert.Equal(t, sig, got)
	assert.Nil(t, loaded.Signal("unknown", 0))

	restored, err := instrument.NewArena().Add(instrument.Static{Symbol: "rb2505", Exchange: "SHFE"}, instrument.Options{})
	require.NoError(t, err)
	assert.True(t, loaded.ApplyLeg(restored))
	assert.Equal(t, -4, restored.Pos)
	assert.Equal(t, 4001.0, restored.TheoLast)
	assert.Equal(t, 1000, loaded.Ois["rb2505.SHFE"])
}

func TestState_MissingCollections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sprd_poss":{"a-b":2},"inst_poss":{"a":1}}`), 0o644))

	st, err := Load(path)
	require.NoError(t, err)
	sig := st.Signal("a-b", 0)
	require.NotNil(t, sig)
	assert.Equal(t, 2, sig.Pos)
	assert.Equal(t, 1.0, sig.DynamicFactorLong, "missing factor defaults to 1")

	arena := instrument.NewArena()
	leg, err := arena.Add(instrument.Static{Symbol: "a", Exchange: "DCE"}, instrument.Options{})
	require.NoError(t, err)
	assert.True(t, st.ApplyLeg(leg), "plain symbol key")
	assert.Equal(t, 1, leg.Pos)

	other, err := arena.Add(instrument.Static{Symbol: "b", Exchange: "DCE"}, instrument.Options{})
	require.NoError(t, err)
	assert.False(t, st.ApplyLeg(other))

	// 缺失的集合已初始化，可直接写入
	st.PutLeg(other)
	assert.Equal(t, 0, st.InstPoss["b.DCE"])
}

func TestState_RemainPositions(t *testing.T) {
	st := NewState()
	st.PutRemain("rb2505-hc2505", map[int]int{0: -2, 1: 0})
	st.PutRemain("i2505-j2505", map[int]int{})

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, st))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"remain_positions"`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: -2}, loaded.Remain("rb2505-hc2505"))
	assert.Empty(t, loaded.Remain("i2505-j2505"))
	assert.NotContains(t, loaded.RemainPositions, "i2505-j2505")

	// 缺口清完后覆盖写入即删除
	loaded.PutRemain("rb2505-hc2505", nil)
	assert.Empty(t, loaded.RemainPositions)
}
