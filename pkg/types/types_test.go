package types

import (
	"testing"
)

func TestConstrainOrdering(t *testing.T) {
	tests := []struct {
		name string
		got  Constrain
		want int32
	}{
		{"Normal", Normal, 0},
		{"CloseOnly", CloseOnly, 1},
		{"Squeeze", Squeeze, 2},
		{"ForceClear", ForceClear, 3},
		{"Disabled", Disabled, 4},
	}
	for _, tt := range tests {
		if int32(tt.got) != tt.want {
			t.Errorf("Constrain %s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestCombine(t *testing.T) {
	if got := Combine(); got != Normal {
		t.Errorf("Combine() = %v, want Normal", got)
	}
	if got := Combine(CloseOnly, Normal); got != CloseOnly {
		t.Errorf("Combine(CloseOnly, Normal) = %v, want CloseOnly", got)
	}
	if got := Combine(Squeeze, Disabled, CloseOnly); got != Disabled {
		t.Errorf("Combine(Squeeze, Disabled, CloseOnly) = %v, want Disabled", got)
	}
}

func TestOrderTypeFor(t *testing.T) {
	if OrderTypeFor(0) != OrderLimit {
		t.Error("wait 0 should give Limit")
	}
	if OrderTypeFor(100) != OrderLimit {
		t.Error("wait 100 should give Limit")
	}
	if OrderTypeFor(-1) != OrderFAK {
		t.Error("negative wait should give FAK")
	}
}

func TestDirectionOf(t *testing.T) {
	if DirectionOf(3) != Buy {
		t.Errorf("DirectionOf(3) = %v, want Buy", DirectionOf(3))
	}
	if DirectionOf(-3) != Sell {
		t.Errorf("DirectionOf(-3) = %v, want Sell", DirectionOf(-3))
	}
	if Sell.Sign() != -1 {
		t.Errorf("Sell.Sign() = %d, want -1", Sell.Sign())
	}
}

func TestNewOrderStats(t *testing.T) {
	req := OrderRequest{Symbol: "rb2505", Direction: Sell, Type: OrderLimit, Price: 3500, Volume: 4}
	ord := NewOrderStats(12345, KindForce, req, 1000)

	if ord.OrderID != 12345 {
		t.Errorf("OrderID = %d, want 12345", ord.OrderID)
	}
	if ord.Direction != Sell {
		t.Errorf("Direction = %v, want Sell", ord.Direction)
	}
	if ord.Volume != 4 {
		t.Errorf("Volume = %d, want 4", ord.Volume)
	}
	if ord.Status != StatusPending {
		t.Errorf("Status = %v, want PENDING", ord.Status)
	}
	if ord.TaskID != -1 || ord.SpreadID != -1 {
		t.Errorf("TaskID/SpreadID = %d/%d, want -1/-1", ord.TaskID, ord.SpreadID)
	}
}

func TestOrderStats_Finished(t *testing.T) {
	ord := NewOrderStats(1, KindTry, OrderRequest{Direction: Sell, Volume: 5}, 0)
	ord.Status = StatusCancelled
	ord.ReportedVolume = 3
	ord.TradedVolume = 2
	if ord.Finished() {
		t.Error("order with unprocessed trades should not be finished")
	}
	ord.TradedVolume = 3
	if !ord.Finished() {
		t.Error("cancelled order with all trades processed should be finished")
	}
	if ord.SignedTraded() != -3 {
		t.Errorf("SignedTraded = %d, want -3", ord.SignedTraded())
	}
}
