package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/strategy"
	"github.com/quantlink/spreadgrid/pkg/types"
)

func TestCollector_BusEvents(t *testing.T) {
	c := New()
	bus := engine.NewBus()
	require.NoError(t, c.Subscribe(bus))

	bus.Publish(engine.TopicSpreadTrade, engine.SpreadTrade{Spread: "rb2505-hc2505", Volume: -2, Pos: 3, Balanced: true})
	bus.Publish(engine.TopicOrder, engine.OrderEvent{Kind: types.KindTry, Status: types.StatusPending, Volume: 2})
	bus.Publish(engine.TopicOrder, engine.OrderEvent{Kind: types.KindTry, Volume: -2, Trade: true})
	bus.Publish(engine.TopicOrder, engine.OrderEvent{Kind: types.KindTry, Status: types.StatusFilled})
	bus.Publish(engine.TopicRisk, strategy.RiskAdjustment{Spread: "rb2505-hc2505", Restore: true})
	bus.Publish(engine.TopicConstrain, engine.ConstrainEvent{From: types.Normal, To: types.CloseOnly})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.spreadTrades.WithLabelValues("rb2505-hc2505", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.spreadLots.WithLabelValues("rb2505-hc2505")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.spreadPos.WithLabelValues("rb2505-hc2505")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.orders.WithLabelValues("try", "PENDING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.orders.WithLabelValues("try", "FILLED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.fills.WithLabelValues("try")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.riskAdjusts.WithLabelValues("rb2505-hc2505", "restore")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.constrain))
}

func TestCollector_SyncAndHandler(t *testing.T) {
	c := New()
	c.Sync(nil)
	c.Sync(&engine.Snapshot{
		TotalMargin: 6900,
		Available:   9993100,
		BusyWorkers: 1,
		Spreads:     []engine.SpreadSnapshot{{Status: strategy.Status{Name: "sp", Pos: -1}}},
		Legs:        []engine.LegSnapshot{{Symbol: "rb2505", Pos: 2}},
	})
	assert.Equal(t, 6900.0, testutil.ToFloat64(c.margin))
	assert.Equal(t, -1.0, testutil.ToFloat64(c.spreadPos.WithLabelValues("sp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.legPos.WithLabelValues("rb2505")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "spreadgrid_margin_total 6900"))
	assert.True(t, strings.Contains(body, `spreadgrid_leg_pos{symbol="rb2505"} 2`))
}
