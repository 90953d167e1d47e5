package feed

import (
	"math"

	"razor/pkg/types"
)

const (
	depth3MaxUSDC = 1e7
	depthLevels   = 3
)

// legState is the mutable top-of-book state Razor tracks per (market,
// token). It is kept across reconnects; each full book snapshot overwrites
// best levels and depth from the ladders it carries.
type legState struct {
	tokenID       string
	bestBid       float64
	bestAsk       float64
	askDepth3USDC float64
	depthSuspect  bool
	tsRecvUs      int64
	ready         bool
}

// bookLegState derives a leg's state from a full book snapshot's buy/sell
// ladders, carrying prev forward for any field a malformed level can't
// supply.
func bookLegState(prev legState, buys, sells []priceLevel, tsRecvUs int64) legState {
	next := prev
	next.tsRecvUs = tsRecvUs

	if bid, ok := bestOf(buys, true); ok {
		next.bestBid = bid
	}
	if ask, ok := bestOf(sells, false); ok {
		next.bestAsk = ask
	}

	depth, suspect := depth3USDC(sells)
	next.askDepth3USDC = depth
	next.depthSuspect = suspect

	next.ready = legReady(next.bestBid, next.bestAsk)
	return next
}

// applyPriceChange folds one incremental level update into a leg's state.
// Razor doesn't track the full ladder, only best levels + top-3 ask depth,
// so a price_change is treated as "a level moved" and, conservatively,
// only updates best_bid/best_ask when the changed level is at or better
// than the current best on its side. Depth3 is left unchanged since a
// single-level delta can't safely recompute a 3-level sum without the
// full ladder; the next full book snapshot reconciles it.
func applyPriceChange(prev legState, side string, price, size float64, tsRecvUs int64) legState {
	next := prev
	next.tsRecvUs = tsRecvUs

	switch side {
	case "BUY":
		if size <= 0 {
			// level removed; only matters if it was the best bid, in
			// which case we can't know the new best without the ladder.
			return next
		}
		if price >= next.bestBid || next.bestBid == 0 {
			next.bestBid = price
		}
	case "SELL":
		if size <= 0 {
			return next
		}
		if next.bestAsk == 0 || price <= next.bestAsk {
			next.bestAsk = price
		}
	}

	next.ready = legReady(next.bestBid, next.bestAsk)
	return next
}

func legReady(bestBid, bestAsk float64) bool {
	return bestBid > 0 && bestAsk >= bestBid && bestAsk <= 1 && bestAsk > 0
}

// bestOf returns the best (highest for bids, lowest for asks) finite,
// positive price among levels, skipping any level that failed to parse.
func bestOf(levels []priceLevel, wantMax bool) (float64, bool) {
	best := 0.0
	found := false
	for _, lvl := range levels {
		if !lvl.Price.valid || lvl.Price.value <= 0 {
			continue
		}
		p := lvl.Price.value
		if !found {
			best, found = p, true
			continue
		}
		if wantMax && p > best {
			best = p
		}
		if !wantMax && p < best {
			best = p
		}
	}
	return best, found
}

// depth3USDC sums price*size over the top three ask levels (as given,
// assumed best-first) and flags DEPTH_UNIT_SUSPECT per the ingestion rule:
// non-finite, <=0, or >1e7 after summing what's present.
func depth3USDC(sells []priceLevel) (float64, bool) {
	var sum float64
	n := 0
	for _, lvl := range sells {
		if n >= depthLevels {
			break
		}
		if !lvl.Price.valid || !lvl.Size.valid {
			continue
		}
		sum += lvl.Price.value * lvl.Size.value
		n++
	}
	suspect := math.IsNaN(sum) || math.IsInf(sum, 0) || sum <= 0 || sum > depth3MaxUSDC
	return sum, suspect
}

func (l legState) toSnapshot() types.LegSnapshot {
	return types.LegSnapshot{
		TokenID:       l.tokenID,
		BestBid:       l.bestBid,
		BestAsk:       l.bestAsk,
		AskDepth3USDC: l.askDepth3USDC,
		TsRecvUs:      l.tsRecvUs,
	}
}
