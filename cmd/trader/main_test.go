package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/persistence"
)

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "trader dev")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SPREADGRID_NATS_URL", "nats://10.0.0.5:4222")
	t.Setenv("SPREADGRID_API_PORT", "9301")
	t.Setenv("SPREADGRID_GRPC_PORT", "bad")

	cfg := config.Default()
	applyEnv(cfg)
	assert.Equal(t, "nats://10.0.0.5:4222", cfg.NATS.URL)
	assert.Equal(t, 9301, cfg.System.APIPort)
	assert.Equal(t, 9202, cfg.System.GRPCPort)
}

func TestSummarizeTrades(t *testing.T) {
	s := summarizeTrades([]engine.SpreadTrade{
		{Volume: 2, Price: 90, Balanced: true},
		{Volume: 0, Price: 1000},
		{Volume: -2, Price: 110, Balanced: true},
		{Volume: 1, Price: 100, Balanced: false},
	})
	assert.Equal(t, 3, s.count)
	assert.Equal(t, 5, s.lots)
	assert.Equal(t, 1, s.unbalanced)
	assert.InDelta(t, 100, s.mean, 1e-9)
	assert.InDelta(t, 100, s.median, 1e-9)

	assert.Zero(t, summarizeTrades(nil).count)
}

func TestGenTicksThenBacktest(t *testing.T) {
	dir := t.TempDir()
	ticks := filepath.Join(dir, "ticks.csv")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"gen-ticks", "-c", "../../config/spreadgrid.yaml", "-o", ticks, "--steps", "400", "--seed", "11"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "wrote 800 ticks")

	cfg, err := config.Load("../../config/spreadgrid.yaml")
	require.NoError(t, err)
	cfg.Strategy.StateFile = filepath.Join(dir, "state.json")
	cfg.Strategy.IsBacktest = true

	out.Reset()
	require.NoError(t, runBacktest(&out, cfg, ticks, true))
	assert.Contains(t, out.String(), "rb2505-hc2505")
	assert.Contains(t, out.String(), "cycles")

	_, err = persistence.Load(cfg.Strategy.StateFile)
	assert.NoError(t, err)
}

func TestStateCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st := persistence.NewState()
	st.TrdSprds = []string{"rb2505-hc2505"}
	st.SprdPoss["rb2505-hc2505"] = 2
	st.StepSizes["rb2505-hc2505"] = 2
	st.Atps["rb2505-hc2505"] = 90
	st.Pnls["rb2505-hc2505"] = 1234.5
	st.InstPoss["rb2505"] = 2
	st.InstPoss["hc2505"] = -2
	require.NoError(t, persistence.Save(path, st))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"state", "--file", path})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "rb2505-hc2505")
	assert.Contains(t, text, "1234.50")
	assert.Contains(t, text, "90.00")
	assert.Contains(t, text, "hc2505")
}

func TestStateCmd_Missing(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"state", "--file", filepath.Join(t.TempDir(), "none.json")})
	err := root.Execute()
	assert.ErrorIs(t, err, persistence.ErrNotExists)
}
