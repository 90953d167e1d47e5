package feed

import (
	"math"
	"testing"
)

func lvl(price, size float64) priceLevel {
	return priceLevel{Price: flexNumber{value: price, valid: true}, Size: flexNumber{value: size, valid: true}}
}

func TestBookLegStateComputesBestAndDepth(t *testing.T) {
	t.Parallel()
	sells := []priceLevel{lvl(0.50, 100), lvl(0.51, 200), lvl(0.52, 300), lvl(0.60, 999)}
	buys := []priceLevel{lvl(0.49, 50), lvl(0.48, 60)}

	next := bookLegState(legState{tokenID: "t"}, buys, sells, 1000)

	if next.bestBid != 0.49 {
		t.Errorf("bestBid = %v, want 0.49", next.bestBid)
	}
	if next.bestAsk != 0.50 {
		t.Errorf("bestAsk = %v, want 0.50", next.bestAsk)
	}
	wantDepth := 0.50*100 + 0.51*200 + 0.52*300
	if math.Abs(next.askDepth3USDC-wantDepth) > 1e-6 {
		t.Errorf("askDepth3USDC = %v, want %v", next.askDepth3USDC, wantDepth)
	}
	if next.depthSuspect {
		t.Error("expected depth not suspect")
	}
	if !next.ready {
		t.Error("expected leg ready")
	}
}

func TestDepth3USDCFlagsSuspectOnOverflow(t *testing.T) {
	t.Parallel()
	sells := []priceLevel{lvl(1, 2e7)}
	depth, suspect := depth3USDC(sells)
	if depth != 2e7 {
		t.Errorf("depth = %v, want 2e7", depth)
	}
	if !suspect {
		t.Error("expected DEPTH_UNIT_SUSPECT flag on >1e7 depth")
	}
}

func TestDepth3USDCSkipsInvalidLevels(t *testing.T) {
	t.Parallel()
	invalid := priceLevel{Price: flexNumber{valid: false}, Size: flexNumber{valid: true, value: 10}}
	sells := []priceLevel{invalid, lvl(0.5, 10)}
	depth, suspect := depth3USDC(sells)
	if depth != 5 {
		t.Errorf("depth = %v, want 5 (invalid level skipped)", depth)
	}
	if suspect {
		t.Error("expected not suspect")
	}
}

func TestApplyPriceChangeIgnoresWorseBid(t *testing.T) {
	t.Parallel()
	prev := legState{tokenID: "t", bestBid: 0.40, bestAsk: 0.41, ready: true}
	// A price_change with a worse (lower) bid shouldn't override best bid.
	next := applyPriceChange(prev, "BUY", 0.30, 50, 2000)
	if next.bestBid != 0.40 {
		t.Errorf("bestBid = %v, want unchanged 0.40", next.bestBid)
	}
}

func TestApplyPriceChangeImprovesBestAsk(t *testing.T) {
	t.Parallel()
	prev := legState{tokenID: "t", bestBid: 0.40, bestAsk: 0.45, ready: true}
	next := applyPriceChange(prev, "SELL", 0.42, 50, 2000)
	if next.bestAsk != 0.42 {
		t.Errorf("bestAsk = %v, want 0.42", next.bestAsk)
	}
}

func TestLegReadyRequiresTwoSidedBook(t *testing.T) {
	t.Parallel()
	if legReady(0, 0.5) {
		t.Error("expected not ready with zero bid")
	}
	if legReady(0.5, 0.4) {
		t.Error("expected not ready when ask < bid")
	}
	if !legReady(0.4, 0.5) {
		t.Error("expected ready for valid two-sided book")
	}
}
