// Package brain implements the net-edge signal gate: it consumes the
// latest MarketSnapshot, computes the sum-of-asks cost and edge in basis
// points, classifies liquidity, and emits a Signal when the expected net
// edge clears the configured threshold.
//
// The per-tick gating loop is modeled on the teacher's
// Maker.quoteUpdate (internal/strategy/maker.go): a ticker-driven
// single-goroutine consumer reading the latest book state and deciding
// whether to act, generalized here from order placement to signal
// emission.
package brain

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"razor/internal/bucket"
	"razor/internal/config"
	"razor/pkg/types"
	"razor/pkg/units"
)

// hardFeesBps is FEE_POLY + FEE_MERGE, the fixed cost baked into every
// net-edge computation regardless of bucket or risk premium.
const hardFeesBps = units.FeePoly + units.FeeMerge

// dedupPruneInterval is how often the stale-entry sweep runs over the
// dedup table.
const dedupPruneInterval = time.Hour

// dedupStaleAfter is how long an untouched dedup entry survives before
// the periodic sweep removes it.
const dedupStaleAfter = time.Hour

// Stats tracks running counters surfaced to Health/Report.
type Stats struct {
	SignalsEmitted    int
	SignalsSuppressed int
}

type dedupEntry struct {
	lastEmitMs int64
	lastTouch  time.Time
}

// Brain consumes MarketSnapshots from a latest-value channel and emits
// Signals to a bounded output channel.
type Brain struct {
	cfg    config.BrainConfig
	bkts   config.BucketsConfig
	runID  string
	logger *slog.Logger

	dedup map[string]*dedupEntry

	stats Stats
}

// New creates a Brain for one run.
func New(cfg config.BrainConfig, bkts config.BucketsConfig, runID string, logger *slog.Logger) *Brain {
	return &Brain{
		cfg:    cfg,
		bkts:   bkts,
		runID:  runID,
		logger: logger.With("component", "brain"),
		dedup:  make(map[string]*dedupEntry),
	}
}

// Stats returns a snapshot of running counters.
func (b *Brain) Stats() Stats { return b.stats }

// Run reads snapshots until snapshotCh closes or ctx is done, emitting
// accepted signals on out. out is a bounded channel; if full, the signal
// is dropped and counted as suppressed (visible backpressure, matching
// the feed's drop-and-count policy elsewhere in the pipeline).
func (b *Brain) Run(ctx context.Context, snapshotCh <-chan types.MarketSnapshot, out chan<- types.Signal) {
	pruneTicker := time.NewTicker(dedupPruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-snapshotCh:
			if !ok {
				return
			}
			b.handleSnapshot(snap, out)

		case <-pruneTicker.C:
			b.pruneDedup(time.Now())
		}
	}
}

func (b *Brain) handleSnapshot(snap types.MarketSnapshot, out chan<- types.Signal) {
	now := time.Now().UnixMilli()
	if now-snap.TsMs > int64(b.cfg.MaxSnapshotStalenessMs) {
		b.logger.Debug("dropping stale snapshot", "market_id", snap.MarketID, "age_ms", now-snap.TsMs)
		return
	}

	sig, ok := b.evaluate(snap, now)
	if !ok {
		return
	}

	select {
	case out <- sig:
		b.stats.SignalsEmitted++
	default:
		b.stats.SignalsSuppressed++
		b.logger.Warn("signal channel full, dropping signal", "market_id", snap.MarketID)
	}
}

// evaluate runs the gate and, if accepted and not deduplicated, builds
// the Signal.
func (b *Brain) evaluate(snap types.MarketSnapshot, nowMs int64) (types.Signal, bool) {
	sumAsk := snap.SumAsk()
	rawCostBps := units.FromPriceCost(sumAsk)
	rawEdgeBps := units.OneHundredPercent - rawCostBps
	expectedNetBps := rawEdgeBps - hardFeesBps - units.Bps(b.cfg.RiskPremiumBps)

	if int64(expectedNetBps) < int64(b.cfg.MinNetEdgeBps) {
		return types.Signal{}, false
	}

	decision := bucket.Classify(snap)
	strategy := strategyFor(len(snap.Legs))

	dedupKey := b.dedupKey(snap.MarketID, strategy, rawCostBps)
	if b.isSuppressed(dedupKey, nowMs) {
		b.stats.SignalsSuppressed++
		return types.Signal{}, false
	}

	fillShare := b.fillShareFor(decision.Bucket)

	legs := make([]types.SignalLeg, len(snap.Legs))
	worstLegToken := ""
	if decision.WorstLegIndex >= 0 && decision.WorstLegIndex < len(snap.Legs) {
		worstLegToken = snap.Legs[decision.WorstLegIndex].TokenID
	}
	for i, leg := range snap.Legs {
		legs[i] = types.SignalLeg{
			TokenID:         leg.TokenID,
			LimitPrice:      leg.BestAsk,
			BestBidAtSignal: leg.BestBid,
			BestAskAtSignal: leg.BestAsk,
		}
	}

	sig := types.Signal{
		SignalID:         uuid.NewString(),
		RunID:            b.runID,
		SignalTsMs:       snap.TsMs,
		MarketID:         snap.MarketID,
		Strategy:         strategy,
		Bucket:           decision.Bucket,
		QReq:             b.cfg.QReqNotional,
		Legs:             legs,
		RawCostBps:       rawCostBps,
		RawEdgeBps:       rawEdgeBps,
		ExpectedNetBps:   expectedNetBps,
		RiskPremiumBps:   units.Bps(b.cfg.RiskPremiumBps),
		FillShareP25Used: fillShare,
		BucketReasons:    decision.Reasons,
		BucketMetrics: types.BucketMetrics{
			WorstSpreadBps:  decision.WorstSpreadBps,
			WorstDepth3USDC: decision.WorstDepth3USDC,
			WorstLegToken:   worstLegToken,
		},
	}

	b.markEmitted(dedupKey, nowMs)
	return sig, true
}

func (b *Brain) fillShareFor(buk types.Bucket) float64 {
	if buk == types.BucketLiquid {
		return b.bkts.FillShareLiquidP25
	}
	return b.bkts.FillShareThinP25
}

// dedupKey builds the (market_id, strategy, cost_bucket_2bps) key: the
// cost bucket rounds raw_cost_bps down to the nearest even multiple of 2.
func (b *Brain) dedupKey(marketID string, strategy types.Strategy, rawCostBps units.Bps) string {
	costBucket := (rawCostBps.Int64() / 2) * 2
	return marketID + "|" + string(strategy) + "|" + strconv.FormatInt(costBucket, 10)
}

func (b *Brain) isSuppressed(key string, nowMs int64) bool {
	entry, ok := b.dedup[key]
	if !ok {
		return false
	}
	return nowMs-entry.lastEmitMs < int64(b.cfg.SignalCooldownMs)
}

func (b *Brain) markEmitted(key string, nowMs int64) {
	b.dedup[key] = &dedupEntry{lastEmitMs: nowMs, lastTouch: time.Now()}
}

// pruneDedup removes entries untouched for over dedupStaleAfter, bounding
// memory regardless of how many distinct markets/strategies/cost buckets
// are ever seen over a long-running process.
func (b *Brain) pruneDedup(now time.Time) {
	for k, e := range b.dedup {
		if now.Sub(e.lastTouch) > dedupStaleAfter {
			delete(b.dedup, k)
		}
	}
}

func strategyFor(legCount int) types.Strategy {
	if legCount >= 3 {
		return types.StrategyTriangle
	}
	return types.StrategyBinary
}
