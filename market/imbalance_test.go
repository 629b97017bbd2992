package market

import (
	"errors"
	"math"
	"testing"
)

func sampleBook() BookSnapshot {
	return BookSnapshot{
		Symbol:    "BTCUSDT",
		Timestamp: 1000,
		Bids:      []Level{{Price: 100, Qty: 2}, {Price: 99, Qty: 3}},
		Asks:      []Level{{Price: 101, Qty: 1}, {Price: 102, Qty: 4}},
	}
}

func TestBandImbalance(t *testing.T) {
	raw, err := BandImbalance(sampleBook(), 0.025)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// mid=100.5, band=[97.9875, 103.0125]，所有档都在带内
	if raw != 0 {
		t.Fatalf("expected 0, got %f", raw)
	}
}

func TestBandImbalanceExcludesOutsideBand(t *testing.T) {
	snap := BookSnapshot{
		Bids: []Level{{Price: 100, Qty: 2}, {Price: 90, Qty: 50}},
		Asks: []Level{{Price: 101, Qty: 1}, {Price: 120, Qty: 40}},
	}
	raw, err := BandImbalance(snap, 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != 1 {
		t.Fatalf("expected 1, got %f", raw)
	}
}

func TestBandImbalanceLinearInQuantity(t *testing.T) {
	base := sampleBook()
	base.Bids[0].Qty = 7
	r1, _ := BandImbalance(base, 0.025)

	scaled := sampleBook()
	scaled.Bids[0].Qty = 14
	scaled.Bids[1].Qty = 6
	scaled.Asks[0].Qty = 2
	scaled.Asks[1].Qty = 8
	r2, _ := BandImbalance(scaled, 0.025)

	if math.Abs(r2-2*r1) > 1e-12 {
		t.Fatalf("expected linear scaling, r1=%f r2=%f", r1, r2)
	}
}

func TestBandImbalanceEmptySide(t *testing.T) {
	snap := sampleBook()
	snap.Asks = nil
	if _, err := BandImbalance(snap, 0.025); !errors.Is(err, ErrInsufficientDepth) {
		t.Fatalf("expected ErrInsufficientDepth, got %v", err)
	}
}
