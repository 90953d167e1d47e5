package feed

import (
	"sync"

	"razor/pkg/types"
)

// marketState tracks per-leg state for every configured market, keyed by
// token ID for direct updates from inbound frames and by market ID for
// snapshot assembly and the authoritative token->market mapping that book
// messages must defer to (spec's "MarketDef wins over the embedded
// market_id, mismatch just warns" rule).
type marketState struct {
	mu sync.Mutex

	// tokenMarket maps token_id -> market_id per MarketDef, the
	// authoritative mapping independent of what a wire frame claims.
	tokenMarket map[string]string
	legIndex    map[string]int // token_id -> index within its market's legs
	legs        map[string][]legState // market_id -> legs, MarketDef order
}

func newMarketState(defs []types.MarketDef) *marketState {
	ms := &marketState{
		tokenMarket: make(map[string]string),
		legIndex:    make(map[string]int),
		legs:        make(map[string][]legState),
	}
	for _, def := range defs {
		legs := make([]legState, len(def.TokenIDs))
		for i, tok := range def.TokenIDs {
			legs[i] = legState{tokenID: tok}
			ms.tokenMarket[tok] = def.MarketID
			ms.legIndex[tok] = i
		}
		ms.legs[def.MarketID] = legs
	}
	return ms
}

// marketFor returns the authoritative market_id for a token, or "" if the
// token is unknown to any configured MarketDef.
func (ms *marketState) marketFor(tokenID string) (string, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m, ok := ms.tokenMarket[tokenID]
	return m, ok
}

// updateLeg applies fn to the current state of (marketID, tokenID) and
// returns the updated MarketSnapshot plus whether every leg of that market
// is now ready to publish.
func (ms *marketState) updateLeg(marketID, tokenID string, fn func(legState) legState) (types.MarketSnapshot, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	idx, ok := ms.legIndex[tokenID]
	if !ok {
		return types.MarketSnapshot{}, false
	}
	legs := ms.legs[marketID]
	if idx >= len(legs) {
		return types.MarketSnapshot{}, false
	}
	legs[idx] = fn(legs[idx])

	allReady := true
	for _, l := range legs {
		if !l.ready {
			allReady = false
			break
		}
	}

	snapLegs := make([]types.LegSnapshot, len(legs))
	for i, l := range legs {
		snapLegs[i] = l.toSnapshot()
	}

	return types.MarketSnapshot{MarketID: marketID, Legs: snapLegs}, allReady
}

// legSnapshot returns the current single-leg state for ticks.csv logging.
func (ms *marketState) legSnapshot(marketID, tokenID string) types.LegSnapshot {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	idx, ok := ms.legIndex[tokenID]
	if !ok {
		return types.LegSnapshot{TokenID: tokenID}
	}
	legs := ms.legs[marketID]
	if idx >= len(legs) {
		return types.LegSnapshot{TokenID: tokenID}
	}
	return legs[idx].toSnapshot()
}
