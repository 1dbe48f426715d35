package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/quantlink/spreadgrid/pkg/execution"
	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/strategy"
)

// ErrNoLegs 配置中没有任何合约
var ErrNoLegs = errors.New("no legs configured")

// Config is the top-level configuration for the spreadgrid trader.
type Config struct {
	Strategy    StrategyConfig              `yaml:"strategy"`
	Grid        GridConfig                  `yaml:"grid"`
	Instruments map[string]InstrumentConfig `yaml:"instruments"`
	Session     SessionConfig               `yaml:"session"`
	NATS        NATSConfig                  `yaml:"nats"`
	System      SystemConfig                `yaml:"system"`
}

// StrategyConfig holds strategy-level parameters.
type StrategyConfig struct {
	Name      string                  `yaml:"name"`
	Account   string                  `yaml:"account"`
	Products  []string                `yaml:"products"`
	Connector string                  `yaml:"connector"` // 价差名中腿的连接符
	Spreads   map[string]SpreadConfig `yaml:"spreads"`

	EnableTrade int     `yaml:"enable_trade"` // 1 正常 0 禁止 -1 只平 -2 强平
	Capital     float64 `yaml:"capital"`      // 可用资金 = capital - 占用保证金

	TryOrderWait      int `yaml:"try_order_wait"`
	TryPriceAdj       int `yaml:"try_price_adj"`
	TryLegID          int `yaml:"try_leg_id"` // -1 按对手盘深度选择
	MaxWorker         int `yaml:"max_worker"`
	ForceOrderWait    int `yaml:"force_order_wait"`
	ForceTaskWait     int `yaml:"force_task_wait"`
	StartPriceAdj     int `yaml:"start_price_adj"`
	StepBetweenMD     int `yaml:"step_between_md"`
	StepAfterMD       int `yaml:"step_after_md"`
	MaxTriedBetweenMD int `yaml:"max_tried_between_md"`
	MaxErrorCount     int `yaml:"max_error_count"`
	MaxTriedCount     int `yaml:"max_tried_count"`
	ClearOrderWait    int `yaml:"clear_order_wait"`
	ClearPriceAdj     int `yaml:"clear_price_adj"`

	AdjPosStep     int     `yaml:"adj_pos_step"`
	MinAvailable   float64 `yaml:"min_available"`
	MinEDC         int     `yaml:"min_edc"`
	FuzzySort      bool    `yaml:"fuzzy_sort"`
	IsBacktest     bool    `yaml:"is_backtest"`
	SlipTics       float64 `yaml:"slip_tics"`
	CancelRate     float64 `yaml:"cancel_rate"`
	TwapSecond     int     `yaml:"twap_second"`
	OffsetStrategy int     `yaml:"offset_strategy"`
	MarginRate     float64 `yaml:"margin_rate"`
	StateFile      string  `yaml:"state_file"`
	MDQPFolder     string  `yaml:"mdqp_folder"`
}

// SpreadConfig 单个价差的配置，>0 的字段覆盖持久化值
type SpreadConfig struct {
	ExeCoefs  []int   `yaml:"exe_coefs"`
	MaxLot    int     `yaml:"max_lot"`
	StepSize  int     `yaml:"step_size"`
	RefMid    float64 `yaml:"ref_mid"`
	TradeRate int     `yaml:"trade_rate"`
}

// GridConfig 网格与风控参数
type GridConfig struct {
	ExitInterval          float64 `yaml:"exit_interval"`
	MinEntryInterval      float64 `yaml:"min_entry_interval"`
	MinDynamic            float64 `yaml:"min_dynamic"`
	MaxDynamic            float64 `yaml:"max_dynamic"`
	WidenThreshold        float64 `yaml:"widen_threshold"`
	NarrowThreshold       float64 `yaml:"narrow_threshold"`
	WidenStep             float64 `yaml:"widen_step"`
	MinOps                int     `yaml:"min_ops"`
	ReduceRatio           float64 `yaml:"reduce_ratio"`
	MaxLeverage           float64 `yaml:"max_leverage"`
	MaxGridLevels         int     `yaml:"max_grid_levels"`
	ArbitrageN            int     `yaml:"arbitrage_n"`
	RiskN                 int     `yaml:"risk_n"`
	UpdateIntervalMinutes int     `yaml:"update_interval_minutes"`
	InitialArbLower       float64 `yaml:"initial_arb_lower"`
	InitialArbUpper       float64 `yaml:"initial_arb_upper"`
	InitialRiskLower      float64 `yaml:"initial_risk_lower"`
	InitialRiskUpper      float64 `yaml:"initial_risk_upper"`
}

// InstrumentConfig holds per-instrument static terms.
type InstrumentConfig struct {
	Exchange       string  `yaml:"exchange"`
	Product        string  `yaml:"product"`
	Tick           float64 `yaml:"tick"`
	Multiplier     float64 `yaml:"multiplier"`
	UpperLimit     float64 `yaml:"upper_limit"`
	LowerLimit     float64 `yaml:"lower_limit"`
	PreClose       float64 `yaml:"pre_close"`
	PreSettle      float64 `yaml:"pre_settle"`
	PreOI          int     `yaml:"pre_oi"`
	MarginPerLot   float64 `yaml:"margin_per_lot"`
	OpenFee        float64 `yaml:"open_fee"`
	CloseFee       float64 `yaml:"close_fee"`
	CloseTodayFee  float64 `yaml:"close_today_fee"`
	ExpiryDate     int     `yaml:"expiry_date"`
	ExpiryDayCount int     `yaml:"expiry_day_count"`
}

// SystemConfig holds system-level parameters.
type SystemConfig struct {
	Log         LogConfig `yaml:"log"`
	APIPort     int       `yaml:"api_port"` // REST / websocket 端口
	GRPCPort    int       `yaml:"grpc_port"`
	MetricsPath string    `yaml:"metrics_path"`
	EnvFile     string    `yaml:"env_file"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	FlowFile   string `yaml:"flow_file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default 返回带默认值的配置，Load 在其上解析 YAML，未出现的键保留默认值
func Default() *Config {
	return &Config{
		Strategy: StrategyConfig{
			Name:              "spreadgrid",
			Connector:         strategy.DefaultConnector,
			Spreads:           map[string]SpreadConfig{},
			EnableTrade:       1,
			Capital:           10000000,
			TryOrderWait:      100,
			TryPriceAdj:       0,
			TryLegID:          -1,
			MaxWorker:         10,
			ForceOrderWait:    100,
			ForceTaskWait:     10000,
			StartPriceAdj:     0,
			StepBetweenMD:     2,
			StepAfterMD:       1,
			MaxTriedBetweenMD: 3,
			MaxErrorCount:     10,
			MaxTriedCount:     100,
			ClearOrderWait:    500,
			ClearPriceAdj:     5,
			AdjPosStep:        1,
			MinAvailable:      1000000,
			MinEDC:            30,
			SlipTics:          0.5,
			CancelRate:        0.2,
			TwapSecond:        10,
			OffsetStrategy:    3,
			StateFile:         "data/state.json",
		},
		Grid:        gridFromParams(strategy.DefaultGridParams()),
		Instruments: map[string]InstrumentConfig{},
		Session:     DefaultSession(),
		NATS:        DefaultNATS(),
		System: SystemConfig{
			Log: LogConfig{
				Level:      "info",
				File:       "logs/trader.log",
				FlowFile:   "logs/trade_flow.log",
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     30,
				Compress:   true,
			},
			APIPort:     9201,
			GRPCPort:    9202,
			MetricsPath: "/metrics",
		},
	}
}

// Load reads a YAML config file and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Instruments) == 0 {
		return ErrNoLegs
	}
	for sym, inst := range c.Instruments {
		if inst.Exchange == "" {
			return fmt.Errorf("instruments.%s.exchange is required", sym)
		}
	}
	s := c.Strategy
	if s.Connector == "" {
		return fmt.Errorf("strategy.connector is required")
	}
	if s.MaxWorker <= 0 {
		return fmt.Errorf("strategy.max_worker must > 0, got %d", s.MaxWorker)
	}
	if s.MinAvailable <= 0 {
		return fmt.Errorf("strategy.min_available must > 0")
	}
	if s.EnableTrade < -2 || s.EnableTrade > 1 {
		return fmt.Errorf("strategy.enable_trade must be in [-2, 1], got %d", s.EnableTrade)
	}
	if s.AdjPosStep <= 0 {
		return fmt.Errorf("strategy.adj_pos_step must > 0")
	}
	for name, sp := range s.Spreads {
		legs, _, err := strategy.ParseSpreadName(name, s.Connector)
		if err != nil {
			return fmt.Errorf("strategy.spreads.%s: %w", name, err)
		}
		if len(sp.ExeCoefs) > 0 && len(sp.ExeCoefs) != len(legs) {
			return fmt.Errorf("strategy.spreads.%s: %d exe_coefs for %d legs", name, len(sp.ExeCoefs), len(legs))
		}
		if sp.MaxLot < 0 || sp.StepSize < 0 {
			return fmt.Errorf("strategy.spreads.%s: max_lot/step_size must >= 0", name)
		}
	}
	g := c.Grid
	if g.MinDynamic <= 0 || g.MaxDynamic < g.MinDynamic {
		return fmt.Errorf("grid: invalid dynamic range [%g, %g]", g.MinDynamic, g.MaxDynamic)
	}
	if g.ArbitrageN <= 0 || g.RiskN <= 0 {
		return fmt.Errorf("grid.arbitrage_n and grid.risk_n must > 0")
	}
	if _, err := c.Session.Schedule(); err != nil {
		return err
	}
	if c.NATS.URL != "" && c.NATS.OrderSubject == "" {
		return fmt.Errorf("nats.order_subject is required when nats.url is set")
	}
	return nil
}

// Symbols 按名称排序的合约列表
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Instruments))
	for sym := range c.Instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// SpreadNames 按名称排序的已配置价差
func (c *Config) SpreadNames() []string {
	out := make([]string, 0, len(c.Strategy.Spreads))
	for name := range c.Strategy.Spreads {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Static 合约静态条款
func (ic InstrumentConfig) Static(symbol string) instrument.Static {
	return instrument.Static{
		Symbol:         symbol,
		Exchange:       ic.Exchange,
		Product:        ic.Product,
		Tick:           ic.Tick,
		Multiplier:     ic.Multiplier,
		UpperLimit:     ic.UpperLimit,
		LowerLimit:     ic.LowerLimit,
		PreClose:       ic.PreClose,
		PreSettle:      ic.PreSettle,
		PreOI:          ic.PreOI,
		MarginPerLot:   ic.MarginPerLot,
		OpenFee:        ic.OpenFee,
		CloseFee:       ic.CloseFee,
		CloseTodayFee:  ic.CloseTodayFee,
		ExpiryDate:     ic.ExpiryDate,
		ExpiryDayCount: ic.ExpiryDayCount,
	}
}

// LegOptions 腿记账参数
func (s StrategyConfig) LegOptions() instrument.Options {
	return instrument.Options{
		Backtest:   s.IsBacktest,
		SlipTicks:  s.SlipTics,
		MarginRate: s.MarginRate,
	}
}

// ExecParams 执行参数
func (s StrategyConfig) ExecParams() execution.Params {
	return execution.Params{
		TryOrderWait:     s.TryOrderWait,
		TryPriceAdj:      s.TryPriceAdj,
		ForceOrderWait:   s.ForceOrderWait,
		ForceTaskWait:    s.ForceTaskWait,
		StartPriceAdj:    s.StartPriceAdj,
		StepAdjBetweenMD: s.StepBetweenMD,
		StepAdjAfterMD:   s.StepAfterMD,
		MaxTriedBtwMD:    s.MaxTriedBetweenMD,
		MaxError:         s.MaxErrorCount,
		MaxTried:         s.MaxTriedCount,
	}
}

// Params 转换为网格参数
func (g GridConfig) Params() strategy.GridParams {
	return strategy.GridParams{
		ExitInterval:          g.ExitInterval,
		MinEntryInterval:      g.MinEntryInterval,
		MinDynamic:            g.MinDynamic,
		MaxDynamic:            g.MaxDynamic,
		WidenThreshold:        g.WidenThreshold,
		NarrowThreshold:       g.NarrowThreshold,
		WidenStep:             g.WidenStep,
		MinOps:                g.MinOps,
		ReduceRatio:           g.ReduceRatio,
		MaxLeverage:           g.MaxLeverage,
		MaxGridLevels:         g.MaxGridLevels,
		ArbitrageN:            g.ArbitrageN,
		RiskN:                 g.RiskN,
		UpdateIntervalMinutes: g.UpdateIntervalMinutes,
		InitialArbLower:       g.InitialArbLower,
		InitialArbUpper:       g.InitialArbUpper,
		InitialRiskLower:      g.InitialRiskLower,
		InitialRiskUpper:      g.InitialRiskUpper,
	}
}

func gridFromParams(p strategy.GridParams) GridConfig {
	return GridConfig{
		ExitInterval:          p.ExitInterval,
		MinEntryInterval:      p.MinEntryInterval,
		MinDynamic:            p.MinDynamic,
		MaxDynamic:            p.MaxDynamic,
		WidenThreshold:        p.WidenThreshold,
		NarrowThreshold:       p.NarrowThreshold,
		WidenStep:             p.WidenStep,
		MinOps:                p.MinOps,
		ReduceRatio:           p.ReduceRatio,
		MaxLeverage:           p.MaxLeverage,
		MaxGridLevels:         p.MaxGridLevels,
		ArbitrageN:            p.ArbitrageN,
		RiskN:                 p.RiskN,
		UpdateIntervalMinutes: p.UpdateIntervalMinutes,
		InitialArbLower:       p.InitialArbLower,
		InitialArbUpper:       p.InitialArbUpper,
		InitialRiskLower:      p.InitialRiskLower,
		InitialRiskUpper:      p.InitialRiskUpper,
	}
}

// Logger 转换为日志配置
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		OutputFile: l.File,
		FlowFile:   l.FlowFile,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
		Compress:   l.Compress,
	}
}
