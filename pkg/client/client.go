package client

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/connector"
	"github.com/quantlink/spreadgrid/pkg/execution"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// ErrUnknownOrder 撤单时找不到订单
var ErrUnknownOrder = errors.New("client: unknown order")

// Sender 下单通道，由 connector.Connector 实现
type Sender interface {
	NextOrderID() int64
	PublishOrder(orderID int64, req types.OrderRequest) error
	PublishCancel(orderID int64) error
}

// Target 接收行情和回报的一方，由 engine.Engine 实现（Post* 线程安全）
type Target interface {
	PostMarketData(md types.MarketData)
	PostOrderUpdate(u types.OrderUpdate)
	PostTrade(t types.TradeReport)
}

var _ Sender = (*connector.Connector)(nil)
var _ execution.Gateway = (*Client)(nil)

// Client 连接 Connector 与引擎
// 负责 MD 按合约过滤、orderID → 合约的登记和回报路由
type Client struct {
	sender  Sender
	target  Target
	symbols map[string]bool

	mu         sync.Mutex
	orderIDMap map[int64]string // orderID → symbol

	unknown int
}

// NewClient 创建 Client，symbols 为订阅的合约
func NewClient(sender Sender, target Target, symbols []string) *Client {
	c := &Client{
		sender:     sender,
		target:     target,
		symbols:    make(map[string]bool, len(symbols)),
		orderIDMap: make(map[int64]string),
	}
	for _, s := range symbols {
		c.symbols[s] = true
	}
	return c
}

// SetTarget 引擎创建后绑定，须在 Connector.Start 之前
func (c *Client) SetTarget(target Target) { c.target = target }

// OnMDUpdate 作为 Connector 的 MDCallback
func (c *Client) OnMDUpdate(md types.MarketData) {
	if !c.symbols[md.Symbol] {
		return
	}
	c.target.PostMarketData(md)
}

// OnORSUpdate 作为 Connector 的 ORSCallback，按 orderID 路由
func (c *Client) OnORSUpdate(resp connector.Response) {
	id := resp.OrderID()
	c.mu.Lock()
	_, ok := c.orderIDMap[id]
	if !ok {
		c.unknown++
	}
	if ok && resp.Kind == connector.RespUpdate && resp.Update.Status.Finished() {
		delete(c.orderIDMap, id)
	}
	c.mu.Unlock()

	if !ok {
		logger.Warnf("[Client] unknown orderID=%d kind=%s", id, resp.Kind)
		return
	}
	switch resp.Kind {
	case connector.RespTrade:
		c.target.PostTrade(resp.Trade)
	case connector.RespUpdate:
		c.target.PostOrderUpdate(resp.Update)
	}
}

// SendOrder 实现 execution.Gateway：先登记订单号再发送，回报不会早于登记
func (c *Client) SendOrder(req types.OrderRequest) (int64, error) {
	id := c.sender.NextOrderID()
	c.mu.Lock()
	c.orderIDMap[id] = req.Symbol
	c.mu.Unlock()

	if err := c.sender.PublishOrder(id, req); err != nil {
		c.RemoveOrderID(id)
		return 0, err
	}
	logger.Debugf("[Client] sent %d %s %s %d@%g", id, req.Symbol, req.Direction, req.Volume, req.Price)
	return id, nil
}

// CancelOrder 实现 execution.Gateway
func (c *Client) CancelOrder(orderID int64) error {
	c.mu.Lock()
	_, ok := c.orderIDMap[orderID]
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownOrder, "order %d", orderID)
	}
	return c.sender.PublishCancel(orderID)
}

// RemoveOrderID 订单完成后清理
func (c *Client) RemoveOrderID(orderID int64) {
	c.mu.Lock()
	delete(c.orderIDMap, orderID)
	c.mu.Unlock()
}

// OpenOrders 已登记未终结的订单数
func (c *Client) OpenOrders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orderIDMap)
}

// UnknownResponses 无法路由的回报数
func (c *Client) UnknownResponses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unknown
}
