package connector

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/types"
)

func TestMarketDataCodec(t *testing.T) {
	md := types.MarketData{
		Symbol: "ag2506", Exchange: "SHFE",
		BidPrice: 5499, AskPrice: 5500, LastPrice: 5500,
		BidVolume: 10, AskVolume: 7, Volume: 12345, Timestamp: 33300500,
	}
	data, err := EncodeMarketData(md)
	require.NoError(t, err)
	got, err := DecodeMarketData(data)
	require.NoError(t, err)
	assert.Equal(t, md, got)
}

func TestDecodeMarketData_MissingField(t *testing.T) {
	data, err := marshal(map[string]interface{}{"symbol": "ag2506", "bid": 1.0})
	require.NoError(t, err)
	_, err = DecodeMarketData(data)
	assert.ErrorIs(t, err, ErrBadMessage)

	_, err = DecodeMarketData([]byte{0xff, 0x01})
	assert.Error(t, err)
}

func TestOrderCodec(t *testing.T) {
	req := types.OrderRequest{
		Symbol: "rb2505", Exchange: "SHFE", Direction: types.Sell, Type: types.OrderFAK,
		Price: 3320, Volume: 2, OffsetStrategy: 3, Kind: types.KindForce,
	}
	data, err := EncodeOrder(92201000007, "PRP05", req)
	require.NoError(t, err)
	id, got, err := DecodeOrder(data)
	require.NoError(t, err)
	assert.Equal(t, int64(92201000007), id)
	req.Kind = 0
	assert.Equal(t, req, got)

	data, err = EncodeCancel(92201000007, "PRP05")
	require.NoError(t, err)
	id, err = DecodeCancel(data)
	require.NoError(t, err)
	assert.Equal(t, int64(92201000007), id)
}

func TestResponseCodec(t *testing.T) {
	u := types.OrderUpdate{OrderID: 3000001, Status: types.StatusRejected, TradedVolume: 0, Message: "no margin"}
	data, err := EncodeUpdate(u)
	require.NoError(t, err)
	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, RespUpdate, resp.Kind)
	assert.Equal(t, u, resp.Update)
	assert.Equal(t, int64(3000001), resp.OrderID())

	tr := types.TradeReport{OrderID: 3000002, Symbol: "rb2505", Direction: types.Buy, Price: 3410, Volume: 1}
	data, err = EncodeTrade(tr)
	require.NoError(t, err)
	resp, err = DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, RespTrade, resp.Kind)
	assert.Equal(t, tr, resp.Trade)

	data, err = marshal(map[string]interface{}{"kind": "modify", "order_id": 1})
	require.NoError(t, err)
	_, err = DecodeResponse(data)
	assert.ErrorIs(t, err, ErrBadMessage)
}

func TestEncodeStatus(t *testing.T) {
	data, err := EncodeStatus(map[string]interface{}{"strategy": "grid", "pos": 3})
	require.NoError(t, err)
	var s structpb.Struct
	require.NoError(t, protojson.Unmarshal(data, &s))
	assert.Equal(t, "grid", s.GetFields()["strategy"].GetStringValue())
	assert.Equal(t, 3.0, s.GetFields()["pos"].GetNumberValue())
}

func TestOrderIDs(t *testing.T) {
	c := NewWithConn(nil, config.DefaultNATS(), 3, "PRP05", nil, nil)
	assert.Equal(t, int64(3000001), c.NextOrderID())
	assert.Equal(t, int64(3000002), c.NextOrderID())
	assert.True(t, c.OwnsOrder(3000002))
	assert.False(t, c.OwnsOrder(4000001))
	assert.Equal(t, "md.rb2505", c.MDSubject("rb2505"))
	assert.Equal(t, "order.response.3", c.ResponseSubject())
}

func TestNotConnected(t *testing.T) {
	c := NewWithConn(nil, config.DefaultNATS(), 1, "", nil, nil)
	assert.ErrorIs(t, c.Start([]string{"rb2505"}), ErrNotConnected)
	assert.ErrorIs(t, c.PublishOrder(1, types.OrderRequest{}), ErrNotConnected)
	assert.ErrorIs(t, c.PublishCancel(1), ErrNotConnected)
	assert.NoError(t, c.Close())

	_, err := New(config.NATSConfig{}, 1, "", nil, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHandlers_FilterByClient(t *testing.T) {
	var mds []types.MarketData
	var resps []Response
	c := NewWithConn(nil, config.DefaultNATS(), 3, "PRP05",
		func(md types.MarketData) { mds = append(mds, md) },
		func(r Response) { resps = append(resps, r) })

	mdData, _ := EncodeMarketData(types.MarketData{Symbol: "rb2505", BidPrice: 1, AskPrice: 2})
	mine, _ := EncodeTrade(types.TradeReport{OrderID: 3000001, Price: 1, Volume: 1})
	other, _ := EncodeTrade(types.TradeReport{OrderID: 5000001, Price: 1, Volume: 1})

	// 未启动时丢弃
	c.handleMD(&nats.Msg{Subject: "md.rb2505", Data: mdData})
	assert.Empty(t, mds)

	c.running.Store(true)
	c.handleMD(&nats.Msg{Subject: "md.rb2505", Data: mdData})
	c.handleMD(&nats.Msg{Subject: "md.rb2505", Data: []byte("junk")})
	c.handleResponse(&nats.Msg{Data: mine})
	c.handleResponse(&nats.Msg{Data: other})

	require.Len(t, mds, 1)
	assert.Equal(t, "rb2505", mds[0].Symbol)
	require.Len(t, resps, 1)
	assert.Equal(t, int64(3000001), resps[0].OrderID())
	assert.Equal(t, int64(1), c.DecodeErrors())
}
