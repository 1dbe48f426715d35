package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFullConfig(t *testing.T) {
	// 使用项目实际配置文件
	configPath := filepath.Join("..", "..", "config", "spreadgrid.yaml")
	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "rb_hc_grid", cfg.Strategy.Name)
	assert.Equal(t, "PRP05", cfg.Strategy.Account)
	assert.Equal(t, []string{"rb", "hc"}, cfg.Strategy.Products)
	assert.Equal(t, []string{"rb2505-hc2505"}, cfg.SpreadNames())
	sp := cfg.Strategy.Spreads["rb2505-hc2505"]
	assert.Equal(t, []int{1, -1}, sp.ExeCoefs)
	assert.Equal(t, 10, sp.MaxLot)
	assert.Equal(t, 2, sp.StepSize)
	assert.True(t, cfg.Strategy.FuzzySort)

	// 未写出的键保持默认值
	assert.Equal(t, 2, cfg.Strategy.StepBetweenMD)
	assert.Equal(t, 100, cfg.Strategy.MaxTriedCount)
	assert.Equal(t, 0.6, cfg.Grid.ReduceRatio)
	assert.Equal(t, 500, cfg.Grid.MaxGridLevels)

	assert.Equal(t, []string{"hc2505", "rb2505"}, cfg.Symbols())
	st := cfg.Instruments["rb2505"].Static("rb2505")
	assert.Equal(t, "SHFE", st.Exchange)
	assert.Equal(t, 10.0, st.Multiplier)
	assert.Equal(t, 3580.0, st.UpperLimit)

	assert.Equal(t, 140.0, cfg.Grid.Params().InitialArbUpper)
	assert.Equal(t, 10000, cfg.Strategy.ExecParams().ForceTaskWait)
	assert.Equal(t, "logs/trade_flow.log", cfg.System.Log.Logger().FlowFile)
	assert.Equal(t, "order.response.PRP05", cfg.NATS.ResponseSubject)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
instruments:
  a2505: {exchange: DCE, tick: 1, multiplier: 10}
`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Strategy.EnableTrade)
	assert.Equal(t, -1, cfg.Strategy.TryLegID)
	assert.Equal(t, 10, cfg.Strategy.MaxWorker)
	assert.Equal(t, 5, cfg.Strategy.ClearPriceAdj)
	assert.Equal(t, 3, cfg.Strategy.OffsetStrategy)
	assert.Equal(t, 1000000.0, cfg.Strategy.MinAvailable)
	assert.Equal(t, "-", cfg.Strategy.Connector)
	assert.Equal(t, 900, cfg.Session.PeriodSecond)
	assert.Equal(t, 9201, cfg.System.APIPort)
}

func TestParse_EnableTradeZeroKept(t *testing.T) {
	cfg, err := Parse([]byte(`
strategy:
  enable_trade: 0
instruments:
  a2505: {exchange: DCE}
`))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Strategy.EnableTrade)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no legs", `strategy: {name: x}`, "no legs configured"},
		{"no exchange", "instruments:\n  a: {tick: 1}", "instruments.a.exchange"},
		{"bad worker", "strategy: {max_worker: 0}\ninstruments:\n  a: {exchange: DCE}", "max_worker"},
		{"bad min available", "strategy: {min_available: 0}\ninstruments:\n  a: {exchange: DCE}", "min_available"},
		{"bad enable", "strategy: {enable_trade: 3}\ninstruments:\n  a: {exchange: DCE}", "enable_trade"},
		{"bad spread", "strategy:\n  spreads:\n    '-b': {}\ninstruments:\n  a: {exchange: DCE}", "strategy.spreads"},
		{"exe coefs", "strategy:\n  spreads:\n    a-b: {exe_coefs: [1]}\ninstruments:\n  a: {exchange: DCE}", "exe_coefs"},
		{"dynamic", "grid: {min_dynamic: 2, max_dynamic: 1}\ninstruments:\n  a: {exchange: DCE}", "dynamic range"},
		{"section", "session: {sections: ['09:00-25:00']}\ninstruments:\n  a: {exchange: DCE}", "session.sections"},
		{"nats", "nats: {url: 'nats://x', order_subject: ''}\ninstruments:\n  a: {exchange: DCE}", "order_subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_NoLegsSentinel(t *testing.T) {
	_, err := Parse([]byte(`strategy: {name: x}`))
	assert.ErrorIs(t, err, ErrNoLegs)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSchedule(t *testing.T) {
	sch, err := DefaultSession().Schedule()
	require.NoError(t, err)

	nine, _ := ParseClock("09:00:00")
	assert.True(t, sch.InSession(nine))
	assert.False(t, sch.InSession(nine-1))
	lunch, _ := ParseClock("12:00:00")
	assert.False(t, sch.InSession(lunch))
	night, _ := ParseClock("22:59:59")
	assert.True(t, sch.InSession(night))

	assert.Equal(t, int64(-1), sch.DayTrade)
	assert.Equal(t, int64(-1), sch.OnlyClose)
	settle, _ := ParseClock("15:15:00")
	assert.Equal(t, settle, sch.DaySettle)
	assert.Equal(t, int64(900000), sch.Period)
}

func TestSection_AcrossMidnight(t *testing.T) {
	sch, err := SessionConfig{Sections: []string{"21:00:00-02:30:00"}, PeriodSecond: 60}.Schedule()
	require.NoError(t, err)
	late, _ := ParseClock("23:30:00")
	early, _ := ParseClock("01:00:00")
	noon, _ := ParseClock("12:00:00")
	assert.True(t, sch.InSession(late))
	assert.True(t, sch.InSession(early))
	assert.False(t, sch.InSession(noon))
}

func TestParseClock(t *testing.T) {
	ms, err := ParseClock("14:55")
	require.NoError(t, err)
	assert.Equal(t, int64((14*3600+55*60)*1000), ms)

	ms, err = ParseClock(" 09:00:01 ")
	require.NoError(t, err)
	assert.Equal(t, int64(32401000), ms)
	assert.Equal(t, "09:00:01.000", FormatClock(ms))

	for _, bad := range []string{"", "9", "24:00:00", "10:60:00", "a:b:c", "1:2:3:4"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestSubscriptionOrder(t *testing.T) {
	dir := t.TempDir()
	csv := "InstrumentNo,InstrumentID\n2,rb2505\n1,hc2505\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SHFE_mdqp.csv"), []byte(csv), 0o644))

	cfg := Default()
	cfg.Instruments = map[string]InstrumentConfig{
		"rb2505": {Exchange: "SHFE"},
		"hc2505": {Exchange: "SHFE"},
		"i2505":  {Exchange: "DCE"},
		"a2505":  {Exchange: "DCE"},
	}
	cfg.Strategy.MDQPFolder = dir
	order, err := cfg.SubscriptionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"hc2505", "rb2505", "a2505", "i2505"}, order)

	cfg.Strategy.MDQPFolder = ""
	order, err = cfg.SubscriptionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a2505", "hc2505", "i2505", "rb2505"}, order)
}

func TestLoadMDQP_Missing(t *testing.T) {
	m, err := LoadMDQP(t.TempDir(), "CZCE")
	require.NoError(t, err)
	assert.Empty(t, m)
}
