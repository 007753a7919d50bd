package wal

import "testing"

// TestPoolSupplyRelease checks the pool hands out rings until exhausted and
// recovers on release.
func TestPoolSupplyRelease(t *testing.T) {
	p := NewBufferPool(4, 32, 2)

	first := p.Supply()
	second := p.Supply()
	if first == nil || second == nil {
		t.Fatal("pool refused a ring while buffers were free")
	}
	if p.Supply() != nil {
		t.Error("exhausted pool handed out a ring")
	}
	if p.Available() != 0 {
		t.Errorf("Available() = %d, want 0", p.Available())
	}

	p.Release(first)
	if p.Supply() == nil {
		t.Error("pool refused a ring after release")
	}
}

// TestPoolNeverBlocks checks Supply returns immediately on an empty pool.
func TestPoolNeverBlocks(t *testing.T) {
	p := NewBufferPool(0, 32, 2)
	if p.Supply() != nil {
		t.Error("empty pool returned buffers")
	}
}
