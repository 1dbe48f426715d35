package connector

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quantlink/spreadgrid/pkg/types"
)

// 回报消息类型
const (
	RespUpdate = "update"
	RespTrade  = "trade"
)

// ErrBadMessage 报文缺少必需字段
var ErrBadMessage = errors.New("connector: bad message")

// Response 柜台回报：订单状态或成交
type Response struct {
	Kind   string
	Update types.OrderUpdate
	Trade  types.TradeReport
}

// OrderID 回报所属订单
func (r Response) OrderID() int64 {
	if r.Kind == RespTrade {
		return r.Trade.OrderID
	}
	return r.Update.OrderID
}

func marshal(fields map[string]interface{}) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "connector: build struct")
	}
	return proto.Marshal(s)
}

func unmarshal(data []byte) (map[string]*structpb.Value, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "connector: decode")
	}
	return s.GetFields(), nil
}

func str(f map[string]*structpb.Value, key string) string { return f[key].GetStringValue() }

func num(f map[string]*structpb.Value, key string) float64 { return f[key].GetNumberValue() }

func need(f map[string]*structpb.Value, keys ...string) error {
	for _, k := range keys {
		if _, ok := f[k]; !ok {
			return errors.Wrapf(ErrBadMessage, "missing %q", k)
		}
	}
	return nil
}

// EncodeMarketData 行情编码
func EncodeMarketData(md types.MarketData) ([]byte, error) {
	return marshal(map[string]interface{}{
		"symbol":   md.Symbol,
		"exchange": md.Exchange,
		"bid":      md.BidPrice,
		"ask":      md.AskPrice,
		"last":     md.LastPrice,
		"bid_vol":  md.BidVolume,
		"ask_vol":  md.AskVolume,
		"volume":   md.Volume,
		"ts":       md.Timestamp,
	})
}

// DecodeMarketData 行情解码
func DecodeMarketData(data []byte) (types.MarketData, error) {
	f, err := unmarshal(data)
	if err != nil {
		return types.MarketData{}, err
	}
	if err := need(f, "symbol", "bid", "ask"); err != nil {
		return types.MarketData{}, err
	}
	return types.MarketData{
		Symbol:    str(f, "symbol"),
		Exchange:  str(f, "exchange"),
		BidPrice:  num(f, "bid"),
		AskPrice:  num(f, "ask"),
		LastPrice: num(f, "last"),
		BidVolume: int(num(f, "bid_vol")),
		AskVolume: int(num(f, "ask_vol")),
		Volume:    int(num(f, "volume")),
		Timestamp: int64(num(f, "ts")),
	}, nil
}

// EncodeOrder 报单编码
func EncodeOrder(orderID int64, account string, req types.OrderRequest) ([]byte, error) {
	return marshal(map[string]interface{}{
		"order_id": orderID,
		"account":  account,
		"symbol":   req.Symbol,
		"exchange": req.Exchange,
		"side":     int(req.Direction),
		"type":     int(req.Type),
		"price":    req.Price,
		"volume":   req.Volume,
		"offset":   req.OffsetStrategy,
		"kind":     req.Kind.String(),
	})
}

// DecodeOrder 报单解码（模拟柜台、测试用）
func DecodeOrder(data []byte) (int64, types.OrderRequest, error) {
	f, err := unmarshal(data)
	if err != nil {
		return 0, types.OrderRequest{}, err
	}
	if err := need(f, "order_id", "symbol", "side", "price", "volume"); err != nil {
		return 0, types.OrderRequest{}, err
	}
	req := types.OrderRequest{
		Symbol:         str(f, "symbol"),
		Exchange:       str(f, "exchange"),
		Direction:      types.Direction(num(f, "side")),
		Type:           types.OrderType(num(f, "type")),
		Price:          num(f, "price"),
		Volume:         int(num(f, "volume")),
		OffsetStrategy: int(num(f, "offset")),
	}
	return int64(num(f, "order_id")), req, nil
}

// EncodeCancel 撤单编码
func EncodeCancel(orderID int64, account string) ([]byte, error) {
	return marshal(map[string]interface{}{"order_id": orderID, "account": account})
}

// DecodeCancel 撤单解码
func DecodeCancel(data []byte) (int64, error) {
	f, err := unmarshal(data)
	if err != nil {
		return 0, err
	}
	if err := need(f, "order_id"); err != nil {
		return 0, err
	}
	return int64(num(f, "order_id")), nil
}

// EncodeUpdate 订单状态回报编码
func EncodeUpdate(u types.OrderUpdate) ([]byte, error) {
	return marshal(map[string]interface{}{
		"kind":     RespUpdate,
		"order_id": u.OrderID,
		"status":   int(u.Status),
		"traded":   u.TradedVolume,
		"msg":      u.Message,
	})
}

// EncodeTrade 成交回报编码
func EncodeTrade(t types.TradeReport) ([]byte, error) {
	return marshal(map[string]interface{}{
		"kind":     RespTrade,
		"order_id": t.OrderID,
		"symbol":   t.Symbol,
		"side":     int(t.Direction),
		"price":    t.Price,
		"volume":   t.Volume,
	})
}

// DecodeResponse 回报解码
func DecodeResponse(data []byte) (Response, error) {
	f, err := unmarshal(data)
	if err != nil {
		return Response{}, err
	}
	if err := need(f, "kind", "order_id"); err != nil {
		return Response{}, err
	}
	id := int64(num(f, "order_id"))
	switch kind := str(f, "kind"); kind {
	case RespUpdate:
		return Response{Kind: kind, Update: types.OrderUpdate{
			OrderID:      id,
			Status:       types.OrderStatus(num(f, "status")),
			TradedVolume: int(num(f, "traded")),
			Message:      str(f, "msg"),
		}}, nil
	case RespTrade:
		if err := need(f, "price", "volume"); err != nil {
			return Response{}, err
		}
		return Response{Kind: kind, Trade: types.TradeReport{
			OrderID:   id,
			Symbol:    str(f, "symbol"),
			Direction: types.Direction(num(f, "side")),
			Price:     num(f, "price"),
			Volume:    int(num(f, "volume")),
		}}, nil
	default:
		return Response{}, errors.Wrapf(ErrBadMessage, "kind %q", kind)
	}
}

// EncodeStatus 状态发布用 JSON（protojson）
func EncodeStatus(fields map[string]interface{}) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "connector: build status")
	}
	return protojson.Marshal(s)
}
