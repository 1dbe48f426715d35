package config

import (
	"fmt"
	"strconv"
	"strings"
)

// MillisPerDay 一天的毫秒数
const MillisPerDay = 24 * 3600 * 1000

// SessionConfig 交易时段与交易控制时间点，时间格式 HH:MM:SS
// 控制时间为空表示不设置该定时器
type SessionConfig struct {
	TradingDay   int      `yaml:"trading_day"` // yyyymmdd，0 取当天
	Sections     []string `yaml:"sections"`    // HH:MM:SS-HH:MM:SS，可跨零点
	DayTrade     string   `yaml:"day_trade"`
	OnlyClose    string   `yaml:"only_close"`
	ForceClose   string   `yaml:"force_close"`
	DaySettle    string   `yaml:"day_settle"`
	DayEnd       string   `yaml:"day_end"`
	NightEnd     string   `yaml:"night_end"`
	PeriodSecond int      `yaml:"period_second"`
}

// DefaultSession 国内商品期货日盘+夜盘
func DefaultSession() SessionConfig {
	return SessionConfig{
		Sections: []string{
			"21:00:00-23:00:00",
			"09:00:00-10:15:00",
			"10:30:00-11:30:00",
			"13:30:00-15:00:00",
		},
		DaySettle:    "15:15:00",
		DayEnd:       "15:20:00",
		NightEnd:     "23:05:00",
		PeriodSecond: 900,
	}
}

// Section 一个连续交易时段，毫秒，End < Start 表示跨零点
type Section struct {
	Start int64
	End   int64
}

// Contains 时间是否落在时段内（含端点）
func (s Section) Contains(ts int64) bool {
	if s.Start <= s.End {
		return ts >= s.Start && ts <= s.End
	}
	return ts >= s.Start || ts <= s.End
}

// Schedule 解析后的时段和控制时间点，未设置的时间点为 -1
type Schedule struct {
	Sections   []Section
	DayTrade   int64
	OnlyClose  int64
	ForceClose int64
	DaySettle  int64
	DayEnd     int64
	NightEnd   int64
	Period     int64 // 周期 bar 间隔（ms）
}

// InSession 时间是否在任一交易时段内；未配置时段时总是 true
func (s *Schedule) InSession(ts int64) bool {
	if len(s.Sections) == 0 {
		return true
	}
	ts %= MillisPerDay
	for _, sec := range s.Sections {
		if sec.Contains(ts) {
			return true
		}
	}
	return false
}

// Schedule 解析时段配置
func (c SessionConfig) Schedule() (*Schedule, error) {
	sch := &Schedule{Period: int64(c.PeriodSecond) * 1000}
	if c.PeriodSecond <= 0 {
		return nil, fmt.Errorf("session.period_second must > 0, got %d", c.PeriodSecond)
	}
	for _, raw := range c.Sections {
		parts := strings.Split(raw, "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("session.sections: bad section %q", raw)
		}
		start, err := ParseClock(parts[0])
		if err != nil {
			return nil, fmt.Errorf("session.sections: %w", err)
		}
		end, err := ParseClock(parts[1])
		if err != nil {
			return nil, fmt.Errorf("session.sections: %w", err)
		}
		sch.Sections = append(sch.Sections, Section{Start: start, End: end})
	}

	points := []struct {
		name string
		raw  string
		dst  *int64
	}{
		{"day_trade", c.DayTrade, &sch.DayTrade},
		{"only_close", c.OnlyClose, &sch.OnlyClose},
		{"force_close", c.ForceClose, &sch.ForceClose},
		{"day_settle", c.DaySettle, &sch.DaySettle},
		{"day_end", c.DayEnd, &sch.DayEnd},
		{"night_end", c.NightEnd, &sch.NightEnd},
	}
	for _, p := range points {
		*p.dst = -1
		if strings.TrimSpace(p.raw) == "" {
			continue
		}
		ms, err := ParseClock(p.raw)
		if err != nil {
			return nil, fmt.Errorf("session.%s: %w", p.name, err)
		}
		*p.dst = ms
	}
	return sch, nil
}

// ParseClock 把 HH:MM[:SS] 转换为当日毫秒数
func ParseClock(s string) (int64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	limits := []int{24, 60, 60}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v >= limits[i] {
			return 0, fmt.Errorf("bad clock %q", s)
		}
		vals[i] = v
	}
	return int64(((vals[0]*60+vals[1])*60 + vals[2]) * 1000), nil
}

// FormatClock 当日毫秒数转 HH:MM:SS.mmm
func FormatClock(ms int64) string {
	ms %= MillisPerDay
	if ms < 0 {
		ms += MillisPerDay
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
