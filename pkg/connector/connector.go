package connector

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/types"
)

const (
	// OrderIDRange 每个 client 的订单号区间：OrderID = clientID * OrderIDRange + seq
	OrderIDRange = 1_000_000
)

// ErrNotConnected 未建立 NATS 连接
var ErrNotConnected = errors.New("connector: not connected")

// MDCallback 每笔行情回调（NATS 回调 goroutine）
type MDCallback func(md types.MarketData)

// ORSCallback 每笔属于本 client 的回报回调
type ORSCallback func(resp Response)

// Connector NATS 行情/报单通道
//
//	行情      <md_subject>.<symbol>
//	报单      <order_subject>
//	撤单      <cancel_subject>
//	回报      <response_subject>.<clientID>
//	状态      <status_subject>.<strategy>
type Connector struct {
	cfg      config.NATSConfig
	nc       *nats.Conn
	account  string
	clientID uint32

	orderCount atomic.Uint32

	mu   sync.Mutex
	subs []*nats.Subscription

	mdCallback  MDCallback
	orsCallback ORSCallback
	running     atomic.Bool

	decodeErrors atomic.Int64
}

// New 连接 NATS
func New(cfg config.NATSConfig, clientID uint32, account string, mdCb MDCallback, orsCb ORSCallback) (*Connector, error) {
	if cfg.URL == "" {
		return nil, errors.Wrap(ErrNotConnected, "empty url")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(fmt.Sprintf("spreadgrid-%d", clientID)),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[Connector] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("[Connector] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connector: connect %s", cfg.URL)
	}
	logger.Infof("[Connector] connected to %s, clientID=%d", cfg.URL, clientID)
	return NewWithConn(nc, cfg, clientID, account, mdCb, orsCb), nil
}

// NewWithConn 使用已有连接；nc 为 nil 时只能用于编解码与回调测试
func NewWithConn(nc *nats.Conn, cfg config.NATSConfig, clientID uint32, account string, mdCb MDCallback, orsCb ORSCallback) *Connector {
	return &Connector{
		cfg:         cfg,
		nc:          nc,
		account:     account,
		clientID:    clientID,
		mdCallback:  mdCb,
		orsCallback: orsCb,
	}
}

// ClientID 本 client 号
func (c *Connector) ClientID() uint32 { return c.clientID }

// MDSubject 合约行情主题
func (c *Connector) MDSubject(symbol string) string { return c.cfg.MDSubject + "." + symbol }

// ResponseSubject 本 client 的回报主题
func (c *Connector) ResponseSubject() string {
	return fmt.Sprintf("%s.%d", c.cfg.ResponseSubject, c.clientID)
}

// Start 订阅合约行情和本 client 的回报
func (c *Connector) Start(symbols []string) error {
	if c.nc == nil {
		return ErrNotConnected
	}
	c.running.Store(true)
	for _, sym := range symbols {
		if err := c.subscribe(c.MDSubject(sym), c.handleMD); err != nil {
			return err
		}
	}
	if err := c.subscribe(c.ResponseSubject(), c.handleResponse); err != nil {
		return err
	}
	logger.Infof("[Connector] subscribed %d symbols, responses on %s", len(symbols), c.ResponseSubject())
	return nil
}

func (c *Connector) subscribe(subject string, h nats.MsgHandler) error {
	sub, err := c.nc.Subscribe(subject, h)
	if err != nil {
		return errors.Wrapf(err, "connector: subscribe %s", subject)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Stop 停止回调，连接保留
func (c *Connector) Stop() {
	c.running.Store(false)
}

// Close 退订并关闭连接
func (c *Connector) Close() error {
	c.Stop()
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NextOrderID 生成新订单号
func (c *Connector) NextOrderID() int64 {
	seq := c.orderCount.Add(1)
	return int64(c.clientID)*OrderIDRange + int64(seq)
}

// OwnsOrder 订单号是否属于本 client
func (c *Connector) OwnsOrder(orderID int64) bool {
	return orderID/OrderIDRange == int64(c.clientID)
}

// PublishOrder 发送已分配订单号的报单
func (c *Connector) PublishOrder(orderID int64, req types.OrderRequest) error {
	if c.nc == nil {
		return ErrNotConnected
	}
	data, err := EncodeOrder(orderID, c.account, req)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(c.cfg.OrderSubject, data); err != nil {
		return errors.Wrapf(err, "connector: publish order %d", orderID)
	}
	return nil
}

// PublishCancel 发送撤单
func (c *Connector) PublishCancel(orderID int64) error {
	if c.nc == nil {
		return ErrNotConnected
	}
	data, err := EncodeCancel(orderID, c.account)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(c.cfg.CancelSubject, data); err != nil {
		return errors.Wrapf(err, "connector: publish cancel %d", orderID)
	}
	return nil
}

// PublishStatus 发布策略状态
func (c *Connector) PublishStatus(strategy string, fields map[string]interface{}) error {
	if c.nc == nil {
		return ErrNotConnected
	}
	data, err := EncodeStatus(fields)
	if err != nil {
		return err
	}
	return c.nc.Publish(c.cfg.StatusSubject+"."+strategy, data)
}

// DecodeErrors 解码失败的消息数
func (c *Connector) DecodeErrors() int64 { return c.decodeErrors.Load() }

func (c *Connector) handleMD(msg *nats.Msg) {
	if !c.running.Load() {
		return
	}
	md, err := DecodeMarketData(msg.Data)
	if err != nil {
		c.decodeErrors.Add(1)
		logger.Debugf("[Connector] bad md on %s: %v", msg.Subject, err)
		return
	}
	c.mdCallback(md)
}

// handleResponse 只处理本 client 的订单号
func (c *Connector) handleResponse(msg *nats.Msg) {
	if !c.running.Load() {
		return
	}
	resp, err := DecodeResponse(msg.Data)
	if err != nil {
		c.decodeErrors.Add(1)
		logger.Warnf("[Connector] bad response on %s: %v", msg.Subject, err)
		return
	}
	if !c.OwnsOrder(resp.OrderID()) {
		return
	}
	c.orsCallback(resp)
}
