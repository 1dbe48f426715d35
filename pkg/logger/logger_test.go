package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_FileAndFlow(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:      "debug",
		OutputFile: filepath.Join(dir, "logs", "trader.log"),
		FlowFile:   filepath.Join(dir, "logs", "flow.log"),
		MaxSize:    1,
	}
	require.NoError(t, Init(cfg))
	defer func() { Logger = logrus.New() }()

	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
	require.NotNil(t, Flow())

	WithField("spread", "rb2505-rb2510").Info("[Test] hello")
	Flow().WithField("vol", 5).Info("SPRDTRD")

	_, err := os.Stat(cfg.OutputFile)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.FlowFile)
	assert.NoError(t, err)
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "nope"}))
	defer func() { Logger = logrus.New() }()

	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
	assert.Nil(t, Flow())
}
