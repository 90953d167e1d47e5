// Package tradestore holds a bounded, time-ordered history of observed
// trades, single-writer single-reader (Shadow on both sides), supporting
// range queries keyed by (market, token, price ceiling, time window).
//
// The eviction shape generalizes the teacher's FlowTracker rolling window
// (internal/strategy/flow_tracker.go): trim from the front on the common
// case of monotonic timestamps, falling back to a full retain-pass when a
// tick arrives out of order.
package tradestore

import (
	"container/list"

	"razor/pkg/types"
)

// WindowStats are diagnostics for a (market, time window) query.
type WindowStats struct {
	Count       int
	MaxGapMs    int64
	MaxSize     float64
	MaxNotional float64
}

// Store is a bounded trade history. All exported methods are safe only
// under the single-writer/single-reader ownership the spec requires;
// Store itself holds no lock, since concurrent access is Shadow's own
// responsibility to serialize (the feed hands ticks off through a bounded
// channel, never touching the store directly).
type Store struct {
	retentionMs int64
	maxTrades   int

	ticks []types.TradeTick // append-ordered by arrival, ~sorted by ts_ms
	lastTsMs int64

	dedup     map[string]*list.Element // trade_id -> LRU node
	dedupList *list.List                // front = most recently seen
	dedupCap  int

	duplicatesDropped int
	retainPasses      int
}

// New creates a trade store. retentionMs and maxTrades bound memory;
// dedupCap bounds the LRU set of recently-seen trade IDs.
func New(retentionMs int64, maxTrades int, dedupCap int) *Store {
	return &Store{
		retentionMs: retentionMs,
		maxTrades:   maxTrades,
		dedup:       make(map[string]*list.Element, dedupCap),
		dedupList:   list.New(),
		dedupCap:    dedupCap,
	}
}

// Push inserts a tick, applying trade_id dedup and age/capacity eviction.
// Returns false if the tick was a duplicate (and therefore dropped).
func (s *Store) Push(tick types.TradeTick) bool {
	if s.seenDuplicate(tick.TradeID) {
		s.duplicatesDropped++
		return false
	}
	s.markSeen(tick.TradeID)

	s.ticks = append(s.ticks, tick)

	if tick.TsMs < s.lastTsMs {
		s.retainPass()
	} else {
		s.lastTsMs = tick.TsMs
		s.trimFront()
	}
	return true
}

// DuplicatesDropped returns the count of ticks dropped as duplicates.
func (s *Store) DuplicatesDropped() int { return s.duplicatesDropped }

// RetainPasses returns how many times an out-of-order tick forced a full
// O(n) retain pass instead of a front trim.
func (s *Store) RetainPasses() int { return s.retainPasses }

// VolumeAtOrBetterPrice sums size over ticks matching market and token,
// with ts_ms in the inclusive range [startMs, endMs] and price <=
// limitPrice.
func (s *Store) VolumeAtOrBetterPrice(marketID, tokenID string, startMs, endMs int64, limitPrice float64) float64 {
	var total float64
	for _, t := range s.ticks {
		if t.MarketID != marketID || t.TokenID != tokenID {
			continue
		}
		if t.TsMs < startMs || t.TsMs > endMs {
			continue
		}
		if t.Price > limitPrice {
			continue
		}
		total += t.Size
	}
	return total
}

// WindowStats computes diagnostics over all ticks for marketID within the
// inclusive window [startMs, endMs], across all tokens of that market.
func (s *Store) WindowStats(marketID string, startMs, endMs int64) WindowStats {
	var stats WindowStats
	var lastTs int64 = -1

	for _, t := range s.ticks {
		if t.MarketID != marketID {
			continue
		}
		if t.TsMs < startMs || t.TsMs > endMs {
			continue
		}
		stats.Count++
		if t.Size > stats.MaxSize {
			stats.MaxSize = t.Size
		}
		notional := t.Price * t.Size
		if notional > stats.MaxNotional {
			stats.MaxNotional = notional
		}
		if lastTs >= 0 {
			gap := t.TsMs - lastTs
			if gap > stats.MaxGapMs {
				stats.MaxGapMs = gap
			}
		}
		lastTs = t.TsMs
	}
	return stats
}

// OldestNewestTsMs reports the timestamp range currently retained, for
// testing the retention invariant. Returns (0, 0, false) if empty.
func (s *Store) OldestNewestTsMs() (oldest, newest int64, ok bool) {
	if len(s.ticks) == 0 {
		return 0, 0, false
	}
	oldest, newest = s.ticks[0].TsMs, s.ticks[0].TsMs
	for _, t := range s.ticks {
		if t.TsMs < oldest {
			oldest = t.TsMs
		}
		if t.TsMs > newest {
			newest = t.TsMs
		}
	}
	return oldest, newest, true
}

// Len returns the number of ticks currently retained.
func (s *Store) Len() int { return len(s.ticks) }

// trimFront drops ticks from the front of the slice while the front is
// too old or the store exceeds max capacity. Assumes s.ticks is
// (approximately) sorted by ts_ms, true on the non-out-of-order path.
func (s *Store) trimFront() {
	cutoff := s.lastTsMs - s.retentionMs

	start := 0
	for start < len(s.ticks) {
		tooOld := s.ticks[start].TsMs < cutoff
		overCap := len(s.ticks)-start > s.maxTrades
		if !tooOld && !overCap {
			break
		}
		start++
	}
	if start > 0 {
		s.ticks = append([]types.TradeTick(nil), s.ticks[start:]...)
	}
}

// retainPass runs a full O(n) filter instead of a front trim, used when an
// out-of-order tick breaks the sorted-front assumption trimFront relies
// on.
func (s *Store) retainPass() {
	s.retainPasses++

	maxTs := s.lastTsMs
	for _, t := range s.ticks {
		if t.TsMs > maxTs {
			maxTs = t.TsMs
		}
	}
	s.lastTsMs = maxTs
	cutoff := maxTs - s.retentionMs

	kept := make([]types.TradeTick, 0, len(s.ticks))
	for _, t := range s.ticks {
		if t.TsMs >= cutoff {
			kept = append(kept, t)
		}
	}
	if len(kept) > s.maxTrades {
		kept = kept[len(kept)-s.maxTrades:]
	}
	s.ticks = kept
}

func (s *Store) seenDuplicate(tradeID string) bool {
	if tradeID == "" {
		return false
	}
	_, ok := s.dedup[tradeID]
	return ok
}

func (s *Store) markSeen(tradeID string) {
	if tradeID == "" || s.dedupCap <= 0 {
		return
	}
	el := s.dedupList.PushFront(tradeID)
	s.dedup[tradeID] = el

	for s.dedupList.Len() > s.dedupCap {
		back := s.dedupList.Back()
		if back == nil {
			break
		}
		s.dedupList.Remove(back)
		delete(s.dedup, back.Value.(string))
	}
}

