package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/strategy"
	"github.com/quantlink/spreadgrid/pkg/types"
)

type fakeEngine struct {
	snap *engine.Snapshot
	cmds []engine.Command
	err  error
}

func (f *fakeEngine) Snapshot() *engine.Snapshot { return f.snap }

func (f *fakeEngine) Submit(ctx context.Context, cmd engine.Command) (string, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}

func readySnapshot() *engine.Snapshot {
	return &engine.Snapshot{
		Strategy:  "92201",
		Ready:     true,
		Constrain: "Normal",
		Spreads: []engine.SpreadSnapshot{
			{Status: strategy.Status{Name: "rb2505-hc2505", Pos: 2}},
		},
		Legs: []engine.LegSnapshot{
			{Symbol: "rb2505", Pos: 2},
			{Symbol: "hc2505", Pos: -2},
		},
		Orders: []engine.OrderSnapshot{
			{OrderID: 7, Symbol: "rb2505", Kind: "try", Volume: 2, Status: "ACCEPTED"},
		},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer(eng, Options{})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decode(t, rec).Success)

	eng.snap = readySnapshot()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec).Message)
}

func TestServer_Views(t *testing.T) {
	s := NewServer(&fakeEngine{snap: readySnapshot()}, Options{})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/spreads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var spreads struct {
		Data []engine.SpreadSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spreads))
	require.Len(t, spreads.Data, 1)
	assert.Equal(t, "rb2505-hc2505", spreads.Data[0].Name)
	assert.Equal(t, 2, spreads.Data[0].Pos)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/legs", nil))
	var legs struct {
		Data []engine.LegSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &legs))
	assert.Len(t, legs.Data, 2)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	var orders struct {
		Data []engine.OrderSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders.Data, 1)
	assert.Equal(t, int64(7), orders.Data[0].OrderID)

	// 方法不匹配
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/spreads", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_NoSnapshotYet(t *testing.T) {
	s := NewServer(&fakeEngine{}, Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no snapshot yet", decode(t, rec).Message)
}

func TestServer_Command(t *testing.T) {
	eng := &fakeEngine{snap: readySnapshot()}
	s := NewServer(eng, Options{})
	h := s.Handler()

	body, _ := json.Marshal(engine.Command{ID: 1, Spread: 0, Float: 4})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/command", bytes.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, eng.cmds, 1)
	assert.Equal(t, 4.0, eng.cmds[0].Float)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/command", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	eng.err = errors.Wrap(engine.ErrUnknownSpread, "spread 9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/command", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Message, "spread 9")

	eng.err = context.DeadlineExceeded
	status, resp := s.runCommand(context.Background(), engine.Command{ID: 1})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "engine busy", resp.Message)
}

func TestServer_MetricsMount(t *testing.T) {
	called := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	s := NewServer(&fakeEngine{}, Options{MetricsPath: "/metrics", Metrics: metrics})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, called)
}

func TestOrderHistoryTracker(t *testing.T) {
	tr := NewOrderHistoryTracker(2)

	tr.OnOrder(engine.OrderEvent{Spread: "sp", Symbol: "rb2505", OrderID: 1, Kind: types.KindTry, Status: types.StatusPending, Price: 3410, Volume: 2})
	tr.OnOrder(engine.OrderEvent{OrderID: 1, Volume: 1, Trade: true})
	tr.OnOrder(engine.OrderEvent{OrderID: 1, Volume: 1, Trade: true})
	tr.OnOrder(engine.OrderEvent{OrderID: 1, Status: types.StatusFilled})

	got := tr.Update(nil)
	require.Len(t, got, 1)
	assert.Equal(t, "FILLED", got[0].Status)
	assert.Equal(t, 2, got[0].Traded)
	assert.Equal(t, "try", got[0].Kind)

	// 在途订单覆盖旧记录，最新在前，超出容量丢弃最旧
	live := []engine.OrderSnapshot{
		{OrderID: 2, Symbol: "hc2505", Status: "ACCEPTED"},
		{OrderID: 3, Symbol: "hc2505", Status: "PARTIAL", Traded: 1},
	}
	got = tr.Update(live)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].OrderID)
	assert.Equal(t, int64(2), got[1].OrderID)
}

func TestCollectDashboard_NilSnapshot(t *testing.T) {
	d := collectDashboard(nil, NewOrderHistoryTracker(10))
	assert.Nil(t, d.Engine)
	assert.Empty(t, d.History)
	assert.NotEmpty(t, d.Timestamp)
}

func TestHealthServer_Sync(t *testing.T) {
	eng := &fakeEngine{}
	h := NewHealthServer(0, eng)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.Sync())

	eng.snap = readySnapshot()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Sync())

	resp, err := h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestWebSocket_CommandAndPush(t *testing.T) {
	eng := &fakeEngine{snap: readySnapshot()}
	s := NewServer(eng, Options{})
	s.hub.Start()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.hub.Stop()

	ws, err := websocket.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", "", ts.URL)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, websocket.JSON.Send(ws, clientMessage{Type: "command", Command: &engine.Command{ID: engine.CmdEnableTrade, Int: -1}}))
	var reply WebSocketMessage
	require.NoError(t, websocket.JSON.Receive(ws, &reply))
	assert.Equal(t, "command_result", reply.Type)
	require.Len(t, eng.cmds, 1)
	assert.Equal(t, -1, eng.cmds[0].Int)
	assert.Equal(t, 1, s.hub.ClientCount())

	s.Refresh()
	var push struct {
		Type string    `json:"type"`
		Data Dashboard `json:"data"`
	}
	require.NoError(t, websocket.JSON.Receive(ws, &push))
	assert.Equal(t, "dashboard_update", push.Type)
	require.NotNil(t, push.Data.Engine)
	assert.Equal(t, "92201", push.Data.Engine.Strategy)
	require.Len(t, push.Data.History, 1)
}
