package domain

import "testing"

func TestOrderStatus_IsOpen(t *testing.T) {
	tests := []struct {
		name   string
		status OrderStatus
		want   bool
	}{
		{"NEW", StatusNew, true},
		{"PARTIALLY_FILLED", StatusPartiallyFilled, true},
		{"FILLED", StatusFilled, false},
		{"CANCELED", StatusCanceled, false},
		{"REJECTED", StatusRejected, false},
		{"EXPIRED", StatusExpired, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsOpen(); got != tt.want {
				t.Errorf("OrderStatus.IsOpen() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSide_Reverse(t *testing.T) {
	if SideBuy.Reverse() != SideSell {
		t.Error("Buy should reverse to Sell")
	}
	if SideSell.Reverse() != SideBuy {
		t.Error("Sell should reverse to Buy")
	}
	if SideBuy.Reverse().Reverse() != SideBuy {
		t.Error("Reverse should be an involution")
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide("sell"); err != nil || s != SideSell {
		t.Errorf("ParseSide(sell) = %v, %v", s, err)
	}
	if _, err := ParseSide("hold"); err == nil {
		t.Error("expected error for unknown side")
	}
}

func TestOrder_Market(t *testing.T) {
	r := NewRegistry()
	btcusdt := r.Market("BTC", "USDT")
	qty := NewQuantity(mustDec("1"), btcusdt.Base)

	limit := NewLimitOrder(SideBuy, qty, NewPrice(mustDec("100"), btcusdt))
	if limit.Market() != btcusdt {
		t.Errorf("limit market = %v", limit.Market())
	}
	if len(limit.Prices()) != 1 {
		t.Errorf("limit should carry one price")
	}

	oco := NewOcoOrder(SideSell, qty, NewPrice(mustDec("90"), btcusdt), NewPrice(mustDec("120"), btcusdt))
	if oco.Market() != btcusdt {
		t.Errorf("oco market = %v", oco.Market())
	}
	if len(oco.Prices()) != 2 {
		t.Errorf("oco should carry two prices")
	}
}

func TestOrder_WorstPrice(t *testing.T) {
	r := NewRegistry()
	m := r.Market("BTC", "USDT")
	px := func(s string) Price { return NewPrice(mustDec(s), m) }
	qty := NewQuantity(mustDec("1000"), m.Quote)

	tests := []struct {
		name  string
		order Order
		want  string
	}{
		{"limit", NewLimitOrder(SideBuy, qty, px("100")), "100"},
		{"buy bracket takes the stop", NewOcoOrder(SideBuy, qty, px("110"), px("90")), "110"},
		{"sell bracket takes the take profit", NewOcoOrder(SideSell, qty, px("90"), px("110")), "90"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.WorstPrice(); !got.Value.Equal(mustDec(tt.want)) {
				t.Errorf("WorstPrice() = %s, want %s", got.Value, tt.want)
			}
		})
	}
}
