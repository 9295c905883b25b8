package domain

import (
	"testing"
	"time"
)

func TestOrderbookAsks(t *testing.T) {
	book := &Orderbook{
		Yes: []Level{{Price: 93, Quantity: 5}, {Price: 95, Quantity: 10}, {Price: 94, Quantity: 5}},
		No:  []Level{{Price: 4, Quantity: 100}},
	}

	asks := book.Asks(SideNo)
	want := []Level{{5, 10}, {6, 5}, {7, 5}}
	if len(asks) != len(want) {
		t.Fatalf("len = %d, want %d", len(asks), len(want))
	}
	for i := range want {
		if asks[i] != want[i] {
			t.Errorf("asks[%d] = %+v, want %+v", i, asks[i], want[i])
		}
	}

	yesAsks := book.Asks(SideYes)
	if len(yesAsks) != 1 || yesAsks[0].Price != 96 {
		t.Errorf("yes asks = %+v", yesAsks)
	}
}

func TestMarketMid(t *testing.T) {
	m := &Market{YesBid: 29, YesAsk: 30}
	x2, ok := m.YesMidX2()
	if !ok || x2 != 59 {
		t.Fatalf("YesMidX2 = %d,%v", x2, ok)
	}
	no, _ := m.SideMid(SideNo)
	if no != 70 {
		t.Errorf("NO mid = %d, want 70", no)
	}

	m = &Market{LastPrice: 41}
	if x2, ok := m.YesMidX2(); !ok || x2 != 82 {
		t.Errorf("fallback mid = %d,%v", x2, ok)
	}

	m = &Market{YesBid: 40}
	if _, ok := m.YesMidX2(); ok {
		t.Error("expected no price without ask or last")
	}
}

func TestMilestoneLive(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	m := Milestone{Start: start, End: start.Add(3 * time.Hour)}

	if m.Live(start.Add(-time.Minute)) {
		t.Error("not live before start")
	}
	if !m.Live(start.Add(time.Hour)) {
		t.Error("live during event")
	}
	if m.Live(start.Add(4 * time.Hour)) {
		t.Error("not live after end")
	}
}
