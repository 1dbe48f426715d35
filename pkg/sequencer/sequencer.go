// Package sequencer 根据各合约行情到达的先后顺序估计"快腿"和"慢腿"，
// 使一个价差在一次真实行情快照内只在最慢腿到达时评估一次。
package sequencer

import (
	"sort"
)

const (
	// Capacity 可订阅合约上限
	Capacity = 2048
	// SnapGapMillis 引擎时钟或行情时间跳变超过该值即视为新快照
	SnapGapMillis = 100
)

// Sequencer 行情先后顺序统计（fuzzy sort）
type Sequencer struct {
	enabled bool

	refToIdx map[int]int
	idxToRef []int

	// score[i][j] 同一快照内 i 先于 j 到达的次数
	score [][]int32
	snap  []int

	lastSysTS int64
	lastMdTS  int64
}

// New 创建 Sequencer；enabled 为 false 时只判断快照边界，不维护先后矩阵
func New(enabled bool) *Sequencer {
	return &Sequencer{
		enabled:  enabled,
		refToIdx: make(map[int]int),
	}
}

// Enabled 是否维护先后矩阵
func (s *Sequencer) Enabled() bool { return s.enabled }

// Subscribe 登记合约，重复或超出容量返回 false
func (s *Sequencer) Subscribe(ref int) bool {
	if _, ok := s.refToIdx[ref]; ok {
		return false
	}
	n := len(s.idxToRef)
	if n >= Capacity {
		return false
	}
	s.refToIdx[ref] = n
	s.idxToRef = append(s.idxToRef, ref)
	for i := range s.score {
		s.score[i] = append(s.score[i], 0)
	}
	s.score = append(s.score, make([]int32, n+1))
	return true
}

// Size 已订阅合约数
func (s *Sequencer) Size() int { return len(s.idxToRef) }

func (s *Sequencer) index(ref int) int {
	if idx, ok := s.refToIdx[ref]; ok {
		return idx
	}
	return -1
}

// Update 记录一笔行情，返回是否开始了新的快照
// 同一合约在一个快照内第二次出现也会结束该快照
func (s *Sequencer) Update(ref int, sysTS, mdTS int64) bool {
	curr := s.index(ref)
	newSnap := s.isNewSnap(sysTS, mdTS)
	if !s.enabled || curr < 0 {
		return newSnap
	}
	if !newSnap && s.inSnap(curr) {
		newSnap = true
	}
	if newSnap {
		s.snap = s.snap[:0]
	}
	for _, prev := range s.snap {
		s.score[prev][curr]++
	}
	s.snap = append(s.snap, curr)
	return newSnap
}

func (s *Sequencer) inSnap(idx int) bool {
	for _, prev := range s.snap {
		if prev == idx {
			return true
		}
	}
	return false
}

func (s *Sequencer) isNewSnap(sysTS, mdTS int64) bool {
	bySys := sysTS-s.lastSysTS > SnapGapMillis
	s.lastSysTS = sysTS

	mdGap := mdTS - s.lastMdTS
	if mdGap > 0 {
		s.lastMdTS = mdTS
	}
	return bySys || mdGap > SnapGapMillis
}

// IsFaster a 先于 b 返回 1，后于 b 返回 -1；矩阵打平时按订阅顺序
func (s *Sequencer) IsFaster(a, b int) int {
	ia, ib := s.index(a), s.index(b)
	if s.enabled && ia >= 0 && ib >= 0 {
		switch {
		case s.score[ia][ib] > s.score[ib][ia]:
			return 1
		case s.score[ia][ib] < s.score[ib][ia]:
			return -1
		}
	}
	switch {
	case ia < ib:
		return 1
	case ia > ib:
		return -1
	}
	return 0
}

// Score 合约的领先得分 (lead-lag)/(lead+lag)，无样本时为 0
func (s *Sequencer) Score(ref int) float64 {
	i := s.index(ref)
	if i < 0 {
		return 0
	}
	var lead, lag float64
	for j := range s.idxToRef {
		lead += float64(s.score[i][j])
		lag += float64(s.score[j][i])
	}
	if lead+lag <= 0 {
		return 0
	}
	return (lead - lag) / (lead + lag)
}

// Rank 按领先得分从高到低返回合约，同分按订阅顺序
func (s *Sequencer) Rank() []int {
	refs := make([]int, len(s.idxToRef))
	copy(refs, s.idxToRef)
	scores := make(map[int]float64, len(refs))
	for _, ref := range refs {
		scores[ref] = s.Score(ref)
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return scores[refs[i]] > scores[refs[j]]
	})
	return refs
}

// Reset 清空统计，保留订阅
func (s *Sequencer) Reset() {
	s.snap = s.snap[:0]
	s.lastSysTS, s.lastMdTS = 0, 0
	for i := range s.score {
		for j := range s.score[i] {
			s.score[i][j] = 0
		}
	}
}
