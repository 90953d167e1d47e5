package feed

import (
	"testing"

	"razor/pkg/types"
)

func testDefs() []types.MarketDef {
	return []types.MarketDef{
		{MarketID: "mkt1", TokenIDs: []string{"up", "down"}},
	}
}

func TestMarketStatePublishesOnceAllLegsReady(t *testing.T) {
	t.Parallel()
	ms := newMarketState(testDefs())

	_, ready := ms.updateLeg("mkt1", "up", func(l legState) legState {
		l.bestBid, l.bestAsk, l.ready = 0.39, 0.40, true
		return l
	})
	if ready {
		t.Fatal("expected not ready with only one leg set")
	}

	snap, ready := ms.updateLeg("mkt1", "down", func(l legState) legState {
		l.bestBid, l.bestAsk, l.ready = 0.54, 0.55, true
		return l
	})
	if !ready {
		t.Fatal("expected ready once both legs set")
	}
	if len(snap.Legs) != 2 {
		t.Fatalf("expected 2 legs in snapshot, got %d", len(snap.Legs))
	}
}

func TestMarketStateUnknownTokenIgnored(t *testing.T) {
	t.Parallel()
	ms := newMarketState(testDefs())
	if _, ok := ms.marketFor("nonexistent"); ok {
		t.Error("expected unknown token to not resolve to a market")
	}
	_, ready := ms.updateLeg("mkt1", "nonexistent", func(l legState) legState { return l })
	if ready {
		t.Error("expected updateLeg on unknown token to report not ready")
	}
}
