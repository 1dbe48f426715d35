package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	legA = 7
	legB = 3
	legC = 11
)

func TestSequencer_Subscribe(t *testing.T) {
	s := New(true)
	assert.True(t, s.Subscribe(legA))
	assert.False(t, s.Subscribe(legA), "duplicate subscription")
	assert.True(t, s.Subscribe(legB))
	assert.Equal(t, 2, s.Size())
}

func TestSequencer_Capacity(t *testing.T) {
	s := New(false)
	for i := 0; i < Capacity; i++ {
		require.True(t, s.Subscribe(i))
	}
	assert.False(t, s.Subscribe(Capacity))
}

func TestSequencer_IsFasterScenario(t *testing.T) {
	s := New(true)
	s.Subscribe(legB)
	s.Subscribe(legA)

	// A 在 0/10/20，B 在 5/15，都在同一 100ms 窗口内
	assert.False(t, s.Update(legA, 0, 0))
	assert.False(t, s.Update(legB, 5, 5))
	assert.True(t, s.Update(legA, 10, 10), "A repeats, closes snapshot")
	assert.False(t, s.Update(legB, 15, 15))
	assert.True(t, s.Update(legA, 20, 20))

	assert.Equal(t, 1, s.IsFaster(legA, legB))
	assert.Equal(t, -1, s.IsFaster(legB, legA))
}

func TestSequencer_NewSnapByGap(t *testing.T) {
	s := New(true)
	s.Subscribe(legA)
	s.Subscribe(legB)

	assert.True(t, s.Update(legA, 1000, 1000))
	assert.False(t, s.Update(legB, 1050, 1000))
	// 引擎时钟跳变 > 100ms
	assert.True(t, s.Update(legB, 1200, 1000))
	// 行情时间跳变 > 100ms
	assert.True(t, s.Update(legA, 1210, 1500))
	// 行情时间回退不算新快照
	assert.False(t, s.Update(legB, 1220, 900))
}

func TestSequencer_TieBreakBySubscription(t *testing.T) {
	s := New(true)
	s.Subscribe(legB)
	s.Subscribe(legA)
	assert.Equal(t, 1, s.IsFaster(legB, legA))
	assert.Equal(t, 0, s.IsFaster(legA, legA))
}

func TestSequencer_Disabled(t *testing.T) {
	s := New(false)
	s.Subscribe(legA)
	s.Subscribe(legB)

	s.Update(legB, 0, 0)
	s.Update(legA, 5, 5)
	s.Update(legB, 10, 10)
	s.Update(legA, 15, 15)

	// 矩阵不维护，只看订阅顺序
	assert.Equal(t, 1, s.IsFaster(legA, legB))
	assert.Equal(t, 0.0, s.Score(legB))
}

func TestSequencer_Rank(t *testing.T) {
	s := New(true)
	s.Subscribe(legA)
	s.Subscribe(legB)
	s.Subscribe(legC)

	for i := int64(0); i < 5; i++ {
		base := i * 1000
		s.Update(legC, base, base)
		s.Update(legB, base+1, base+1)
		s.Update(legA, base+2, base+2)
	}
	assert.Equal(t, []int{legC, legB, legA}, s.Rank())
	assert.InDelta(t, 1.0, s.Score(legC), 1e-9)
	assert.InDelta(t, -1.0, s.Score(legA), 1e-9)

	s.Reset()
	assert.Equal(t, []int{legA, legB, legC}, s.Rank())
}

func TestSequencer_RepeatedLegDoesNotScore(t *testing.T) {
	s := New(true)
	s.Subscribe(legA)
	s.Subscribe(legB)
	a, b := s.index(legA), s.index(legB)

	s.Update(legA, 0, 0)
	s.Update(legB, 5, 5)
	require.Equal(t, int32(1), s.score[a][b])

	// B 在同一窗口内再次出现：开始新快照，A 不再因这笔行情加分
	assert.True(t, s.Update(legB, 10, 10))
	assert.Equal(t, int32(1), s.score[a][b])
	assert.Equal(t, int32(0), s.score[b][a])

	assert.False(t, s.Update(legA, 15, 15))
	assert.Equal(t, int32(1), s.score[b][a])
}
