package execution

import (
	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/types"
)

// Gateway 下单通道（柜台、NATS、模拟撮合）
type Gateway interface {
	SendOrder(req types.OrderRequest) (int64, error)
	CancelOrder(orderID int64) error
}

// OrderContext 订单归属：哪个价差、哪条腿、哪个任务
type OrderContext struct {
	SpreadID int
	LegID    int
	LegRef   int
	TaskID   int
}

// OrderManager 管理 orderID → OrderStats 映射和下单/撤单
type OrderManager struct {
	OrdMap      map[int64]*types.OrderStats
	Gateway     Gateway
	State       *ExecutionState
	legOrders   map[int]int // legRef -> 在途订单数
	nextTestOID int64       // Gateway 为 nil 时使用（测试）
}

// NewOrderManager 创建 OrderManager
func NewOrderManager(gw Gateway, state *ExecutionState) *OrderManager {
	return &OrderManager{
		OrdMap:    make(map[int64]*types.OrderStats),
		Gateway:   gw,
		State:     state,
		legOrders: make(map[int]int),
	}
}

// SendNewOrder 发送新订单并登记
func (om *OrderManager) SendNewOrder(req types.OrderRequest, ctx OrderContext, ts int64) (*types.OrderStats, error) {
	if req.Volume <= 0 {
		return nil, errors.Errorf("invalid order volume %d for %s", req.Volume, req.Symbol)
	}

	var orderID int64
	if om.Gateway != nil {
		id, err := om.Gateway.SendOrder(req)
		if err != nil {
			om.State.SendFailedCount++
			return nil, errors.Wrapf(err, "send %s order %s %s %d@%g", req.Kind, req.Symbol, req.Direction, req.Volume, req.Price)
		}
		orderID = id
	} else {
		om.nextTestOID++
		orderID = om.nextTestOID
	}

	ord := types.NewOrderStats(orderID, req.Kind, req, ts)
	ord.SpreadID = ctx.SpreadID
	ord.LegID = ctx.LegID
	ord.LegRef = ctx.LegRef
	ord.TaskID = ctx.TaskID

	om.OrdMap[orderID] = ord
	om.legOrders[ctx.LegRef]++
	om.State.OrderCount++
	return ord, nil
}

// SendCancelOrderByID 撤单，已终结或已发过撤单返回 false
func (om *OrderManager) SendCancelOrderByID(orderID int64) bool {
	ord, ok := om.OrdMap[orderID]
	if !ok || ord.Status.Finished() || ord.CancelSent {
		return false
	}
	if om.Gateway != nil {
		if err := om.Gateway.CancelOrder(orderID); err != nil {
			logger.Warnf("[OrderManager] cancel order %d failed: %v", orderID, err)
			return false
		}
	}
	ord.CancelSent = true
	om.State.CancelOrderCount++
	return true
}

// CancelAll 撤销全部在途订单
func (om *OrderManager) CancelAll() int {
	n := 0
	for id := range om.OrdMap {
		if om.SendCancelOrderByID(id) {
			n++
		}
	}
	return n
}

// Get 查找订单
func (om *OrderManager) Get(orderID int64) (*types.OrderStats, bool) {
	ord, ok := om.OrdMap[orderID]
	return ord, ok
}

// HasOrder 该合约上是否有在途订单
func (om *OrderManager) HasOrder(legRef int) bool {
	return om.legOrders[legRef] > 0
}

// Len 在途订单数
func (om *OrderManager) Len() int { return len(om.OrdMap) }

// RemoveOrder 订单终结后移除
func (om *OrderManager) RemoveOrder(orderID int64) {
	ord, ok := om.OrdMap[orderID]
	if !ok {
		return
	}
	if om.legOrders[ord.LegRef]--; om.legOrders[ord.LegRef] <= 0 {
		delete(om.legOrders, ord.LegRef)
	}
	delete(om.OrdMap, orderID)

	logger.Debugf("[OrderManager] removed order %d kind=%s dir=%s price=%.2f traded=%d/%d",
		orderID, ord.Kind, ord.Direction, ord.Price, ord.TradedVolume, ord.Volume)
}
