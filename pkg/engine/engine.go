package engine

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/execution"
	"github.com/quantlink/spreadgrid/pkg/instrument"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/persistence"
	"github.com/quantlink/spreadgrid/pkg/sequencer"
	"github.com/quantlink/spreadgrid/pkg/strategy"
	"github.com/quantlink/spreadgrid/pkg/types"
)

const (
	// maxUnbalanced 不平衡周期达到该数后禁止交易
	maxUnbalanced = 10
	// safeSessionMillis 行情时间之后这么久仍在交易时段内才触发信号
	safeSessionMillis = 15000
	// tickInterval Run 循环的定时器检查间隔
	tickInterval = 10 * time.Millisecond
	eventBuffer  = 8192
)

// Spread 一个价差：静态定义 + 信号 + 执行器
type Spread struct {
	ID     int
	Def    *strategy.Definition
	Signal strategy.Signal
	Exec   *execution.SpreadExec
}

// Name 价差名
func (s *Spread) Name() string { return s.Def.Name }

// Options 引擎依赖
type Options struct {
	Clock   Clock             // 默认 WallClock
	Gateway execution.Gateway // nil 时订单号由 OrderManager 自增（仅测试）
	Bus     *Bus
	Rand    *rand.Rand
}

// Engine 单线程事件引擎：行情、订单回报、成交、定时器、运维命令都在 Run 所在 goroutine 处理
type Engine struct {
	cfg   *config.Config
	sched *config.Schedule
	clock Clock
	bus   *Bus
	rnd   *rand.Rand

	arena    *instrument.Arena
	seq      *sequencer.Sequencer
	params   *execution.Params
	pool     *execution.ForceTaskPool
	orders   *execution.OrderManager
	counters *execution.ExecutionState

	spreads  []*Spread
	byName   map[string]int
	trdSprds []int

	// 按最慢腿的领先顺序排列的可交易价差，instTriggerMap[legRef] 为该腿触发的结束位置
	sortedSpreads  []int
	instTriggerMap map[int]int
	triggerStart   int

	control      *tradeControl
	timers       timerQueue
	timerSeq     int64
	periodAnchor int64
	needOnBar    bool
	ready        bool
	dirty        bool

	tradingDay     int
	totalMargin    float64
	minAvailable   float64
	adjPosStep     int
	offsetStrategy int

	events   chan event
	snapshot atomic.Pointer[Snapshot]
}

// New 加载合约、恢复持久化状态、创建价差并注册定时器
func New(cfg *config.Config, opts Options) (*Engine, error) {
	sched, err := cfg.Session.Schedule()
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	if opts.Bus == nil {
		opts.Bus = NewBus()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	params := cfg.Strategy.ExecParams()
	e := &Engine{
		cfg:            cfg,
		sched:          sched,
		clock:          opts.Clock,
		bus:            opts.Bus,
		rnd:            opts.Rand,
		arena:          instrument.NewArena(),
		seq:            sequencer.New(cfg.Strategy.FuzzySort),
		params:         &params,
		counters:       &execution.ExecutionState{},
		byName:         make(map[string]int),
		instTriggerMap: make(map[int]int),
		control:        newTradeControl(cfg.Strategy.EnableTrade),
		tradingDay:     cfg.Session.TradingDay,
		minAvailable:   cfg.Strategy.MinAvailable,
		adjPosStep:     cfg.Strategy.AdjPosStep,
		offsetStrategy: cfg.Strategy.OffsetStrategy,
		events:         make(chan event, eventBuffer),
	}
	if e.tradingDay == 0 {
		e.tradingDay, _ = strconv.Atoi(time.Now().Format("20060102"))
	}
	e.orders = execution.NewOrderManager(opts.Gateway, e.counters)
	e.pool = execution.NewForceTaskPool(cfg.Strategy.MaxWorker, e.params, e.arena)

	if err := e.loadLegs(); err != nil {
		return nil, err
	}

	st, err := persistence.Load(cfg.Strategy.StateFile)
	switch {
	case errors.Is(err, persistence.ErrNotExists):
		logger.Infof("[Engine] no state at %s, starting flat", cfg.Strategy.StateFile)
		st = persistence.NewState()
	case err != nil:
		return nil, err
	}
	for _, leg := range e.arena.All() {
		st.ApplyLeg(leg)
		if err := leg.CheckStaticError(); err != nil {
			logger.Warnf("[Engine] %v", err)
		}
	}

	if err := e.createSpreads(st); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	e.updateInstTriggerMap()
	e.scheduleControlTimers(now)
	e.updateConstrain()
	e.ready = true
	e.refresh()

	logger.WithFields(logrus.Fields{
		"strategy":   cfg.Strategy.Name,
		"tradingDay": e.tradingDay,
		"legs":       e.arena.Len(),
		"spreads":    len(e.spreads),
		"tradable":   len(e.trdSprds),
		"constrain":  e.control.Constrain().String(),
		"time":       formatClock(now),
	}).Info("[Engine] started")
	return e, nil
}

// loadLegs 按行情优先级顺序创建腿并登记到领先排序器
func (e *Engine) loadLegs() error {
	symbols, err := e.cfg.SubscriptionOrder()
	if err != nil {
		return err
	}
	opts := e.cfg.Strategy.LegOptions()
	for _, sym := range symbols {
		leg, err := e.arena.Add(e.cfg.Instruments[sym].Static(sym), opts)
		if err != nil {
			return err
		}
		if !e.seq.Subscribe(leg.ID) {
			return errors.Wrapf(ErrDuplicateLeg, "sequencer %s", sym)
		}
	}
	return nil
}

// createSpreads 配置中的价差在前，只存在于状态文件中的价差在后（只平）
func (e *Engine) createSpreads(st *persistence.State) error {
	names := e.cfg.SpreadNames()
	configured := make(map[string]bool, len(names))
	for _, n := range names {
		configured[n] = true
	}
	for _, n := range st.SpreadNames() {
		if !configured[n] {
			names = append(names, n)
		}
	}

	for _, name := range names {
		symbols, coefs, err := strategy.ParseSpreadName(name, e.cfg.Strategy.Connector)
		if err != nil {
			return errors.Wrapf(err, "spread %s", name)
		}
		refs := make([]int, len(symbols))
		missing := ""
		for i, sym := range symbols {
			leg, ok := e.arena.BySymbol(sym)
			if !ok {
				missing = sym
				break
			}
			refs[i] = leg.ID
		}
		if missing != "" {
			if pos := st.SprdPoss[name]; pos != 0 {
				return errors.Wrapf(ErrUnknownInstrument, "spread %s leg %s holds position %d", name, missing, pos)
			}
			logger.Warnf("[Engine] skip spread %s: leg %s not configured", name, missing)
			continue
		}

		sc, ok := e.cfg.Strategy.Spreads[name]
		exeCoefs := sc.ExeCoefs
		if len(exeCoefs) == 0 {
			exeCoefs = strategy.DefaultExeCoefs(coefs)
		}
		def, err := strategy.NewDefinition(name, e.arena, refs, coefs, exeCoefs)
		if err != nil {
			return err
		}

		id := len(e.spreads)
		sig, err := strategy.NewGridSignal(def, e.arena, st.Signal(name, id), strategy.SpreadConfig{
			Configured: ok,
			RefMid:     sc.RefMid,
			MaxLot:     sc.MaxLot,
			StepSize:   sc.StepSize,
			TradeRate:  sc.TradeRate,
		}, strategy.Options{
			Grid:       e.cfg.Grid.Params(),
			MinEDC:     e.cfg.Strategy.MinEDC,
			Backtest:   e.cfg.Strategy.IsBacktest,
			CancelRate: e.cfg.Strategy.CancelRate,
			TwapSecond: e.cfg.Strategy.TwapSecond,
			InSession:  e.sched.InSession,
			OnRisk:     e.onRisk,
			Rand:       e.rnd,
		})
		if err != nil {
			return err
		}
		sig.Sig.ID = id
		sig.SetTradingDay(e.tradingDay)

		sp := &Spread{
			ID:     id,
			Def:    def,
			Signal: sig,
			Exec:   execution.NewSpreadExec(id, name, e.arena, e.params, refs, coefs, exeCoefs, def.SprdMulti),
		}
		if n := sp.Exec.RestoreRemainPositions(st.Remain(name)); n > 0 {
			logger.Warnf("[Engine] %s restored remain positions %v", name, sp.Exec.RemainPositions)
		}
		e.spreads = append(e.spreads, sp)
		e.byName[name] = id
		if sig.Tradable() {
			e.trdSprds = append(e.trdSprds, id)
		}
	}
	return nil
}

// updateInstTriggerMap 每个价差挂在其最慢的腿上，按腿的领先顺序排列
func (e *Engine) updateInstTriggerMap() {
	slowest := make(map[int]int, len(e.trdSprds))
	for _, id := range e.trdSprds {
		refs := e.spreads[id].Def.LegRefs
		slw := refs[0]
		for _, ref := range refs[1:] {
			if e.seq.IsFaster(ref, slw) < 0 {
				slw = ref
			}
		}
		slowest[id] = slw
	}

	e.sortedSpreads = e.sortedSpreads[:0]
	for _, ref := range e.seq.Rank() {
		for _, id := range e.trdSprds {
			if slowest[id] == ref {
				e.sortedSpreads = append(e.sortedSpreads, id)
			}
		}
		e.instTriggerMap[ref] = len(e.sortedSpreads)
	}
	e.triggerStart = 0
}

func (e *Engine) onRisk(adj strategy.RiskAdjustment) {
	logger.WithFields(logrus.Fields{
		"spread":  adj.Spread,
		"leg":     adj.Leg,
		"volume":  adj.Volume,
		"restore": adj.Restore,
		"riskPos": adj.RiskPos,
	}).Warn("[Engine] risk adjustment")
	e.bus.publishRisk(adj)
}

// available 可用资金
func (e *Engine) available() float64 {
	return e.cfg.Strategy.Capital - e.totalMargin
}

// updateConstrain 按保证金占用和不平衡周期数更新外部约束
func (e *Engine) updateConstrain() {
	total := 0.0
	for _, leg := range e.arena.All() {
		total += leg.Margin()
	}
	e.totalMargin = total * 0.5

	c := types.Normal
	switch {
	case e.counters.Unbalanced(maxUnbalanced):
		c = types.Disabled
	case e.available() <= e.minAvailable:
		c = types.CloseOnly
	}
	prev := e.control.Constrain()
	e.control.setExternal(c)
	e.noteConstrain(prev)
}

func (e *Engine) noteConstrain(prev types.Constrain) {
	cur := e.control.Constrain()
	if cur == prev {
		return
	}
	logger.Infof("[Engine] constrain %s -> %s", prev, cur)
	e.bus.publishConstrain(ConstrainEvent{From: prev, To: cur, TS: e.clock.Now()})
}

// persist 写状态文件，失败只记日志
func (e *Engine) persist() {
	path := e.cfg.Strategy.StateFile
	if path == "" {
		return
	}
	st := persistence.NewState()
	for _, sp := range e.spreads {
		st.PutSignal(sp.Signal.State(), sp.Signal.Tradable())
		st.PutRemain(sp.Name(), sp.Exec.RemainPositions)
	}
	for _, leg := range e.arena.All() {
		st.PutLeg(leg)
	}
	if err := persistence.Save(path, st); err != nil {
		logger.Errorf("[Engine] persist: %v", err)
	}
}

// Bus 事件总线
func (e *Engine) Bus() *Bus { return e.bus }

// Spread 按名称取价差
func (e *Engine) Spread(name string) (*Spread, bool) {
	id, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	return e.spreads[id], true
}

// Spreads 全部价差，按序号排列
func (e *Engine) Spreads() []*Spread { return e.spreads }

// Leg 按合约代码取腿
func (e *Engine) Leg(symbol string) (*instrument.Leg, bool) { return e.arena.BySymbol(symbol) }

// Constrain 当前交易约束
func (e *Engine) Constrain() types.Constrain { return e.control.Constrain() }

// Counters 执行计数
func (e *Engine) Counters() execution.ExecutionState { return *e.counters }

// Params 当前执行参数
func (e *Engine) Params() execution.Params { return *e.params }

// OpenOrders 在途订单数
func (e *Engine) OpenOrders() int { return e.orders.Len() }

// Symbols 按订阅顺序返回合约代码
func (e *Engine) Symbols() []string {
	out := make([]string, 0, e.arena.Len())
	for _, leg := range e.arena.All() {
		out = append(out, leg.Symbol)
	}
	return out
}

type eventKind int

const (
	evMarketData eventKind = iota
	evOrderUpdate
	evTrade
	evCommand
)

type event struct {
	kind  eventKind
	md    types.MarketData
	upd   types.OrderUpdate
	trade types.TradeReport
	cmd   Command
	reply chan commandResult
}

type commandResult struct {
	msg string
	err error
}

// PostMarketData 从其他 goroutine 投递行情
func (e *Engine) PostMarketData(md types.MarketData) { e.events <- event{kind: evMarketData, md: md} }

// PostOrderUpdate 从其他 goroutine 投递订单回报
func (e *Engine) PostOrderUpdate(u types.OrderUpdate) { e.events <- event{kind: evOrderUpdate, upd: u} }

// PostTrade 从其他 goroutine 投递成交回报
func (e *Engine) PostTrade(t types.TradeReport) { e.events <- event{kind: evTrade, trade: t} }

// Submit 投递运维命令并等待结果
func (e *Engine) Submit(ctx context.Context, cmd Command) (string, error) {
	reply := make(chan commandResult, 1)
	select {
	case e.events <- event{kind: evCommand, cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-reply:
		return r.msg, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run 事件循环，ctx 取消后撤销在途订单、写状态并返回
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Shutdown()
			return nil
		case ev := <-e.events:
			e.dispatch(ev)
		case <-ticker.C:
			e.OnTick()
		}
	}
}

func (e *Engine) dispatch(ev event) {
	switch ev.kind {
	case evMarketData:
		e.OnMarketData(ev.md)
	case evOrderUpdate:
		e.OnOrderUpdate(ev.upd)
	case evTrade:
		e.OnTrade(ev.trade)
	case evCommand:
		msg, err := e.ExecCommand(ev.cmd)
		ev.reply <- commandResult{msg: msg, err: err}
	}
}

// OnTick 触发到期定时器并刷新快照
func (e *Engine) OnTick() {
	e.fireTimers(e.clock.Now())
	if e.dirty {
		e.refresh()
	}
}

// Shutdown 撤销全部在途订单并写状态
func (e *Engine) Shutdown() {
	if n := e.orders.CancelAll(); n > 0 {
		logger.Infof("[Engine] cancelled %d open orders", n)
	}
	e.updateConstrain()
	e.persist()
	e.refresh()
	logger.Infof("[Engine] stopped, counters=%+v", *e.counters)
}
