package instrument

import (
	"github.com/pkg/errors"
)

// ErrDuplicateLeg 同一合约重复订阅
var ErrDuplicateLeg = errors.New("duplicate leg subscription")

// Arena 按稳定整数 id 保存所有腿，其他组件只持有 id
type Arena struct {
	legs     []*Leg
	bySymbol map[string]int
}

// NewArena 创建空 Arena
func NewArena() *Arena {
	return &Arena{bySymbol: make(map[string]int)}
}

// Add 新增一条腿，id 为加入顺序
func (a *Arena) Add(s Static, opts Options) (*Leg, error) {
	if _, ok := a.bySymbol[s.Symbol]; ok {
		return nil, errors.Wrapf(ErrDuplicateLeg, "symbol %s", s.Symbol)
	}
	leg := NewLeg(len(a.legs), s, opts)
	a.legs = append(a.legs, leg)
	a.bySymbol[s.Symbol] = leg.ID
	return leg, nil
}

// Get 按 id 取腿，越界返回 nil
func (a *Arena) Get(id int) *Leg {
	if id < 0 || id >= len(a.legs) {
		return nil
	}
	return a.legs[id]
}

// BySymbol 按合约代码取腿
func (a *Arena) BySymbol(symbol string) (*Leg, bool) {
	id, ok := a.bySymbol[symbol]
	if !ok {
		return nil, false
	}
	return a.legs[id], true
}

// Len 腿数量
func (a *Arena) Len() int { return len(a.legs) }

// All 按 id 顺序返回所有腿
func (a *Arena) All() []*Leg { return a.legs }
