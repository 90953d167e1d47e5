package tradestore

import (
	"fmt"
	"testing"

	"razor/pkg/types"
)

func tick(tsMs int64, marketID, tokenID string, price, size float64, tradeID string) types.TradeTick {
	return types.TradeTick{
		TsMs:     tsMs,
		MarketID: marketID,
		TokenID:  tokenID,
		Price:    price,
		Size:     size,
		TradeID:  tradeID,
	}
}

func TestPushDropsDuplicateTradeID(t *testing.T) {
	t.Parallel()
	s := New(100000, 1000, 100)

	if ok := s.Push(tick(1000, "m1", "t1", 0.40, 10, "dup1")); !ok {
		t.Fatal("expected first push to succeed")
	}
	if ok := s.Push(tick(1001, "m1", "t1", 0.40, 10, "dup1")); ok {
		t.Error("expected duplicate trade_id to be dropped")
	}
	if s.DuplicatesDropped() != 1 {
		t.Errorf("DuplicatesDropped = %d, want 1", s.DuplicatesDropped())
	}
}

func TestVolumeAtOrBetterPriceInclusiveWindow(t *testing.T) {
	t.Parallel()
	s := New(1000000, 1000, 100)

	s.Push(tick(1000, "m1", "t1", 0.40, 5, "a"))
	s.Push(tick(1100, "m1", "t1", 0.41, 3, "b")) // price above limit, excluded
	s.Push(tick(1100, "m1", "t1", 0.35, 7, "c"))
	s.Push(tick(1200, "m1", "t1", 0.40, 2, "d")) // outside window (>1100)
	s.Push(tick(1000, "m1", "t2", 0.40, 100, "e")) // different token

	vol := s.VolumeAtOrBetterPrice("m1", "t1", 1000, 1100, 0.40)
	if vol != 12 { // 5 + 7
		t.Errorf("volume = %v, want 12", vol)
	}
}

func TestWindowStatsComputesGapsAndMax(t *testing.T) {
	t.Parallel()
	s := New(1000000, 1000, 100)

	s.Push(tick(1000, "m1", "t1", 0.40, 5, "a"))
	s.Push(tick(1050, "m1", "t1", 0.40, 20, "b"))
	s.Push(tick(1200, "m1", "t2", 0.90, 1, "c"))

	stats := s.WindowStats("m1", 1000, 1200)
	if stats.Count != 3 {
		t.Errorf("count = %d, want 3", stats.Count)
	}
	if stats.MaxSize != 20 {
		t.Errorf("max size = %v, want 20", stats.MaxSize)
	}
	if stats.MaxGapMs != 150 {
		t.Errorf("max gap = %d, want 150", stats.MaxGapMs)
	}
}

func TestEvictionByRetentionAndCapacity(t *testing.T) {
	t.Parallel()
	s := New(100, 5, 1000) // retention 100ms, cap 5 trades

	for i := 0; i < 10; i++ {
		s.Push(tick(int64(i*10), "m1", "t1", 0.4, 1, fmt.Sprintf("id%d", i)))
	}

	if s.Len() > 5 {
		t.Errorf("len = %d, want <= 5 (capacity bound)", s.Len())
	}

	oldest, newest, ok := s.OldestNewestTsMs()
	if !ok {
		t.Fatal("expected non-empty store")
	}
	if newest-oldest > 100 {
		t.Errorf("retention window = %d, want <= 100", newest-oldest)
	}
}

func TestOutOfOrderPushTriggersRetainPass(t *testing.T) {
	t.Parallel()
	s := New(1000000, 1000, 1000)

	s.Push(tick(2000, "m1", "t1", 0.4, 1, "a"))
	s.Push(tick(1000, "m1", "t1", 0.4, 1, "b")) // out of order

	if s.RetainPasses() != 1 {
		t.Errorf("retain passes = %d, want 1", s.RetainPasses())
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2 (both kept, in range)", s.Len())
	}
}

func TestDedupLRUEvictsOldestTradeID(t *testing.T) {
	t.Parallel()
	s := New(1000000, 1000, 2) // dedup cap of 2

	s.Push(tick(1000, "m1", "t1", 0.4, 1, "a"))
	s.Push(tick(1001, "m1", "t1", 0.4, 1, "b"))
	s.Push(tick(1002, "m1", "t1", 0.4, 1, "c")) // evicts "a" from dedup LRU

	// "a" should now be re-acceptable since it fell out of the LRU set.
	if ok := s.Push(tick(1003, "m1", "t1", 0.4, 1, "a")); !ok {
		t.Error("expected trade_id 'a' to be accepted again after LRU eviction")
	}
}
