package sim

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/types"
)

// ErrSendRejected 模拟柜台拒绝接收报单
var ErrSendRejected = errors.New("sim: send rejected")

// Handler 接收回报的一方（引擎）
type Handler interface {
	OnMarketData(md types.MarketData)
	OnOrderUpdate(u types.OrderUpdate)
	OnTrade(t types.TradeReport)
}

// Order 模拟柜台中的一笔订单
type Order struct {
	ID     int64
	Req    types.OrderRequest
	Traded int
	Status types.OrderStatus
}

// Gateway 模拟柜台：记录报单，回报先排队，Flush 时同步投递，避免回调重入
type Gateway struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*Order
	sent   []int64
	queue  []func(Handler)
	quotes map[string]types.MarketData

	// AutoAck 报单后自动回 Accepted
	AutoAck bool
	// AutoMatch 按最新盘口撮合，FAK 剩余部分撤销
	AutoMatch bool
	// FailSend >0 时接下来的若干次报单直接返回错误
	FailSend int
}

// NewGateway 创建自动确认的模拟柜台
func NewGateway() *Gateway {
	return &Gateway{
		orders:  make(map[int64]*Order),
		quotes:  make(map[string]types.MarketData),
		AutoAck: true,
	}
}

// SendOrder 实现 execution.Gateway
func (g *Gateway) SendOrder(req types.OrderRequest) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailSend > 0 {
		g.FailSend--
		return 0, errors.Wrapf(ErrSendRejected, "%s %s %d@%g", req.Symbol, req.Direction, req.Volume, req.Price)
	}
	g.nextID++
	o := &Order{ID: g.nextID, Req: req, Status: types.StatusPending}
	g.orders[o.ID] = o
	g.sent = append(g.sent, o.ID)

	if g.AutoAck {
		o.Status = types.StatusAccepted
		g.enqueueUpdate(o)
	}
	if g.AutoMatch {
		g.match(o)
	}
	return o.ID, nil
}

// CancelOrder 实现 execution.Gateway
func (g *Gateway) CancelOrder(orderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return errors.Errorf("sim: unknown order %d", orderID)
	}
	if o.Status.Finished() {
		return errors.Errorf("sim: order %d already %s", orderID, o.Status)
	}
	o.Status = types.StatusCancelled
	g.enqueueUpdate(o)
	return nil
}

// Fill 成交 volume 手，回报按 成交 -> 订单状态 顺序排队
func (g *Gateway) Fill(orderID int64, volume int, price float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return errors.Errorf("sim: unknown order %d", orderID)
	}
	return g.fill(o, volume, price)
}

func (g *Gateway) fill(o *Order, volume int, price float64) error {
	if o.Status.Finished() {
		return errors.Errorf("sim: order %d already %s", o.ID, o.Status)
	}
	if volume <= 0 || o.Traded+volume > o.Req.Volume {
		return errors.Errorf("sim: order %d fill %d exceeds %d/%d", o.ID, volume, o.Traded, o.Req.Volume)
	}
	o.Traded += volume
	if o.Traded == o.Req.Volume {
		o.Status = types.StatusFilled
	} else {
		o.Status = types.StatusPartial
	}
	tr := types.TradeReport{OrderID: o.ID, Symbol: o.Req.Symbol, Direction: o.Req.Direction, Price: price, Volume: volume}
	g.queue = append(g.queue, func(h Handler) { h.OnTrade(tr) })
	g.enqueueUpdate(o)
	return nil
}

// Reject 拒单
func (g *Gateway) Reject(orderID int64, msg string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return errors.Errorf("sim: unknown order %d", orderID)
	}
	o.Status = types.StatusRejected
	u := types.OrderUpdate{OrderID: o.ID, Status: o.Status, TradedVolume: o.Traded, Message: msg}
	g.queue = append(g.queue, func(h Handler) { h.OnOrderUpdate(u) })
	return nil
}

func (g *Gateway) enqueueUpdate(o *Order) {
	u := types.OrderUpdate{OrderID: o.ID, Status: o.Status, TradedVolume: o.Traded}
	g.queue = append(g.queue, func(h Handler) { h.OnOrderUpdate(u) })
}

// Quote 记录最新盘口，AutoMatch 时撮合挂单
func (g *Gateway) Quote(md types.MarketData) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[md.Symbol] = md
	if !g.AutoMatch {
		return
	}
	for _, id := range g.sent {
		if o := g.orders[id]; o.Req.Symbol == md.Symbol && !o.Status.Finished() {
			g.match(o)
		}
	}
}

// match 买价不低于卖一或卖价不高于买一时按对手价成交
func (g *Gateway) match(o *Order) {
	md, ok := g.quotes[o.Req.Symbol]
	remain := o.Req.Volume - o.Traded
	if ok && remain > 0 {
		switch {
		case o.Req.Direction == types.Buy && md.AskVolume > 0 && o.Req.Price >= md.AskPrice:
			g.fill(o, minInt(remain, md.AskVolume), md.AskPrice)
		case o.Req.Direction == types.Sell && md.BidVolume > 0 && o.Req.Price <= md.BidPrice:
			g.fill(o, minInt(remain, md.BidVolume), md.BidPrice)
		}
	}
	if o.Req.Type == types.OrderFAK && !o.Status.Finished() {
		o.Status = types.StatusCancelled
		g.enqueueUpdate(o)
	}
}

// Flush 依次投递排队的回报，处理中新产生的回报也会被投递，返回投递条数
func (g *Gateway) Flush(h Handler) int {
	n := 0
	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return n
		}
		fn := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		fn(h)
		n++
	}
}

// Pending 排队中的回报数
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Order 按订单号取订单副本
func (g *Gateway) Order(orderID int64) (Order, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Sent 按发送顺序返回全部订单副本
func (g *Gateway) Sent() []Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Order, 0, len(g.sent))
	for _, id := range g.sent {
		out = append(out, *g.orders[id])
	}
	return out
}

// Open 未终结的订单
func (g *Gateway) Open() []Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Order
	for _, id := range g.sent {
		if o := g.orders[id]; !o.Status.Finished() {
			out = append(out, *o)
		}
	}
	return out
}

// Last 最近发送的订单
func (g *Gateway) Last() (Order, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return Order{}, false
	}
	return *g.orders[g.sent[len(g.sent)-1]], true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
