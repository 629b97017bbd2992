package market

import (
	"errors"
	"testing"
)

func TestSnapshotMid(t *testing.T) {
	mid, err := sampleBook().Mid()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mid != 100.5 {
		t.Fatalf("expected mid 100.5, got %f", mid)
	}
}

func TestSnapshotMidEmpty(t *testing.T) {
	snap := BookSnapshot{Asks: []Level{{Price: 1, Qty: 1}}}
	if _, err := snap.Mid(); !errors.Is(err, ErrInsufficientDepth) {
		t.Fatalf("expected ErrInsufficientDepth, got %v", err)
	}
	if snap.BestBid() != 0 {
		t.Fatalf("empty side should report zero")
	}
}
