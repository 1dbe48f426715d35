// Package metrics 引擎 Prometheus 指标
//
// 计数类指标由引擎事件总线驱动，持仓/保证金等状态类指标在 Sync 时按快照刷新：
//   - spreadgrid_spread_trades_total{spread,balanced}
//   - spreadgrid_spread_lots_total{spread}
//   - spreadgrid_orders_total{kind,status}
//   - spreadgrid_fills_total{kind}
//   - spreadgrid_risk_adjustments_total{spread,action}
//   - spreadgrid_constrain
//   - spreadgrid_spread_pos{spread} / spreadgrid_leg_pos{symbol}
//   - spreadgrid_margin_total / spreadgrid_available
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/strategy"
)

const namespace = "spreadgrid"

// Collector 一个引擎实例的指标集合
type Collector struct {
	reg *prometheus.Registry

	spreadTrades *prometheus.CounterVec
	spreadLots   *prometheus.CounterVec
	orders       *prometheus.CounterVec
	fills        *prometheus.CounterVec
	riskAdjusts  *prometheus.CounterVec

	constrain   prometheus.Gauge
	spreadPos   *prometheus.GaugeVec
	legPos      *prometheus.GaugeVec
	margin      prometheus.Gauge
	available   prometheus.Gauge
	busyWorkers prometheus.Gauge
}

// New 创建指标集合，使用独立 Registry
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		spreadTrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spread_trades_total",
			Help:      "Completed spread execution cycles",
		}, []string{"spread", "balanced"}),
		spreadLots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spread_lots_total",
			Help:      "Absolute spread lots traded",
		}, []string{"spread"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order lifecycle events by kind and status",
		}, []string{"kind", "status"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Absolute filled leg volume by order kind",
		}, []string{"kind"}),
		riskAdjusts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_adjustments_total",
			Help:      "Risk-mode leg adjustments",
		}, []string{"spread", "action"}),
		constrain: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "constrain",
			Help:      "Current trade constrain level (0 Normal .. 4 Disabled)",
		}),
		spreadPos: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread_pos",
			Help:      "Spread position in lots",
		}, []string{"spread"}),
		legPos: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leg_pos",
			Help:      "Leg net position",
		}, []string{"symbol"}),
		margin: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "margin_total",
			Help:      "Total margin occupied",
		}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available",
			Help:      "Available capital",
		}),
		busyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy_workers",
			Help:      "Workers running force tasks",
		}),
	}
	c.reg.MustRegister(
		c.spreadTrades, c.spreadLots, c.orders, c.fills, c.riskAdjusts,
		c.constrain, c.spreadPos, c.legPos, c.margin, c.available, c.busyWorkers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry 供测试和自定义导出
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Subscribe 订阅引擎事件总线
func (c *Collector) Subscribe(bus *engine.Bus) error {
	if err := bus.Subscribe(engine.TopicSpreadTrade, c.OnSpreadTrade); err != nil {
		return err
	}
	if err := bus.Subscribe(engine.TopicOrder, c.OnOrder); err != nil {
		return err
	}
	if err := bus.Subscribe(engine.TopicRisk, c.OnRisk); err != nil {
		return err
	}
	return bus.Subscribe(engine.TopicConstrain, c.OnConstrain)
}

// OnSpreadTrade 执行周期结束
func (c *Collector) OnSpreadTrade(t engine.SpreadTrade) {
	c.spreadTrades.WithLabelValues(t.Spread, strconv.FormatBool(t.Balanced)).Inc()
	v := t.Volume
	if v < 0 {
		v = -v
	}
	c.spreadLots.WithLabelValues(t.Spread).Add(float64(v))
	c.spreadPos.WithLabelValues(t.Spread).Set(float64(t.Pos))
}

// OnOrder 订单事件，成交单独计量
func (c *Collector) OnOrder(ev engine.OrderEvent) {
	kind := ev.Kind.String()
	if ev.Trade {
		v := ev.Volume
		if v < 0 {
			v = -v
		}
		c.fills.WithLabelValues(kind).Add(float64(v))
		return
	}
	c.orders.WithLabelValues(kind, ev.Status.String()).Inc()
}

// OnRisk 风控调仓
func (c *Collector) OnRisk(adj strategy.RiskAdjustment) {
	action := "enter"
	if adj.Restore {
		action = "restore"
	}
	c.riskAdjusts.WithLabelValues(adj.Spread, action).Inc()
}

// OnConstrain 约束变化
func (c *Collector) OnConstrain(ev engine.ConstrainEvent) {
	c.constrain.Set(float64(ev.To))
}

// Sync 按快照刷新状态类指标
func (c *Collector) Sync(snap *engine.Snapshot) {
	if snap == nil {
		return
	}
	c.margin.Set(snap.TotalMargin)
	c.available.Set(snap.Available)
	c.busyWorkers.Set(float64(snap.BusyWorkers))
	for _, sp := range snap.Spreads {
		c.spreadPos.WithLabelValues(sp.Name).Set(float64(sp.Pos))
	}
	for _, leg := range snap.Legs {
		c.legPos.WithLabelValues(leg.Symbol).Set(float64(leg.Pos))
	}
}
