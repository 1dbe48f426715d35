package strategy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/quantlink/spreadgrid/pkg/instrument"
)

// DefaultConnector 价差名中各腿之间的连接符
const DefaultConnector = "-"

// ParseSpreadName 把 "rb2505-2hc2505" 解析为合约列表和系数
// 系数符号按腿数归一：2 腿 [+,-]，3 腿 [+,-,+]，4 腿 [+,-,-,+]
func ParseSpreadName(name, conn string) ([]string, []float64, error) {
	if conn == "" {
		conn = DefaultConnector
	}
	parts := strings.Split(name, conn)
	symbols := make([]string, 0, len(parts))
	coefs := make([]float64, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, nil, fmt.Errorf("empty leg in spread name %q", name)
		}
		idx := strings.IndexFunc(p, unicode.IsLetter)
		if idx < 0 {
			return nil, nil, fmt.Errorf("leg %q in spread %q has no symbol", p, name)
		}
		coef := 1.0
		if idx > 0 {
			v, err := strconv.ParseFloat(p[:idx], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad coefficient %q in spread %q: %w", p[:idx], name, err)
			}
			coef = v
		}
		symbols = append(symbols, p[idx:])
		coefs = append(coefs, coef)
	}
	switch len(coefs) {
	case 2:
		coefs[1] = -coefs[1]
	case 3:
		coefs[1] = -coefs[1]
	case 4:
		coefs[1], coefs[2] = -coefs[1], -coefs[2]
	}
	return symbols, coefs, nil
}

// SpreadName 由合约和系数拼回价差名，系数为 1 时省略
func SpreadName(symbols []string, coefs []float64, conn string) string {
	if conn == "" {
		conn = DefaultConnector
	}
	parts := make([]string, len(symbols))
	for i, s := range symbols {
		c := math.Abs(coefs[i])
		if c == 1 {
			parts[i] = s
		} else {
			parts[i] = strconv.FormatFloat(c, 'g', -1, 64) + s
		}
	}
	return strings.Join(parts, conn)
}

// DefaultExeCoefs 未配置执行系数时按经济系数取整
func DefaultExeCoefs(coefs []float64) []int {
	out := make([]int, len(coefs))
	for i, c := range coefs {
		out[i] = int(math.Round(c))
	}
	return out
}

// Definition 价差的静态定义，构造后不变
type Definition struct {
	Name     string
	LegRefs  []int
	Coefs    []float64
	ExeCoefs []int

	SprdMulti     float64 // 参与执行的腿乘数的最大公约数
	Tick          float64 // 第一条腿的 tick
	MarginPerPair float64 // 各腿单手保证金的最大值
	ExpiryDays    int     // 各腿剩余交易日的最小值
}

// NewDefinition 根据 Arena 中的腿构造定义
func NewDefinition(name string, arena *instrument.Arena, legRefs []int, coefs []float64, exeCoefs []int) (*Definition, error) {
	if len(legRefs) == 0 {
		return nil, fmt.Errorf("spread %s has no legs", name)
	}
	if len(coefs) != len(legRefs) || len(exeCoefs) != len(legRefs) {
		return nil, fmt.Errorf("spread %s: %d legs, %d coefs, %d exe coefs", name, len(legRefs), len(coefs), len(exeCoefs))
	}
	d := &Definition{
		Name:          name,
		LegRefs:       legRefs,
		Coefs:         coefs,
		ExeCoefs:      exeCoefs,
		MarginPerPair: -math.MaxFloat64,
		ExpiryDays:    math.MaxInt32,
	}
	multi := 0
	for i, ref := range legRefs {
		leg := arena.Get(ref)
		if leg == nil {
			return nil, fmt.Errorf("spread %s: leg ref %d not found", name, ref)
		}
		if exeCoefs[i] != 0 {
			if multi == 0 {
				multi = int(leg.Multiplier)
			} else {
				multi = gcd(multi, int(leg.Multiplier))
			}
		}
		d.MarginPerPair = math.Max(d.MarginPerPair, leg.MarginPerLotValue())
		if leg.ExpiryDayCount > 0 && leg.ExpiryDayCount < d.ExpiryDays {
			d.ExpiryDays = leg.ExpiryDayCount
		}
	}
	if multi == 0 {
		return nil, fmt.Errorf("spread %s has no executed leg", name)
	}
	d.SprdMulti = float64(multi)
	d.Tick = arena.Get(legRefs[0]).Tick
	if d.ExpiryDays == math.MaxInt32 {
		d.ExpiryDays = 0
	}
	return d, nil
}

// ExecutedLegs 执行系数非 0 的腿序号
func (d *Definition) ExecutedLegs() []int {
	out := make([]int, 0, len(d.ExeCoefs))
	for i, c := range d.ExeCoefs {
		if c != 0 {
			out = append(out, i)
		}
	}
	return out
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
