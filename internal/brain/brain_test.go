package brain

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"razor/internal/config"
	"razor/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func binarySnapshot(marketID string, bestAsk1, bestAsk2 float64, tsMs int64) types.MarketSnapshot {
	return types.MarketSnapshot{
		MarketID: marketID,
		TsMs:     tsMs,
		Legs: []types.LegSnapshot{
			{TokenID: "up", BestBid: bestAsk1 - 0.01, BestAsk: bestAsk1, AskDepth3USDC: 1000},
			{TokenID: "down", BestBid: bestAsk2 - 0.01, BestAsk: bestAsk2, AskDepth3USDC: 1000},
		},
	}
}

func baseBrainConfig() config.BrainConfig {
	return config.BrainConfig{
		MinNetEdgeBps:          100,
		RiskPremiumBps:         80,
		SignalCooldownMs:       5000,
		MaxSnapshotStalenessMs: 60000,
		QReqNotional:           50,
	}
}

func baseBucketsConfig() config.BucketsConfig {
	return config.BucketsConfig{FillShareLiquidP25: 0.30, FillShareThinP25: 0.10}
}

// Example 1 from the spec: sum_ask=0.95, raw_cost_bps=9500, raw_edge_bps=500,
// expected_net_bps=210 with risk_premium=80. Emitted at min_net_edge_bps=100
// and 200, suppressed at 300.
func TestEvaluateGateThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		minNetEdge  int
		wantEmitted bool
	}{
		{"below threshold emits", 100, true},
		{"threshold just below net emits", 200, true},
		{"above threshold suppressed", 300, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseBrainConfig()
			cfg.MinNetEdgeBps = tc.minNetEdge

			b := New(cfg, baseBucketsConfig(), "run1", testLogger())
			snap := binarySnapshot("mkt1", 0.40, 0.55, time.Now().UnixMilli())

			sig, ok := b.evaluate(snap, snap.TsMs)
			if ok != tc.wantEmitted {
				t.Fatalf("evaluate() ok = %v, want %v", ok, tc.wantEmitted)
			}
			if ok {
				if sig.RawCostBps != 9500 {
					t.Errorf("RawCostBps = %d, want 9500", sig.RawCostBps)
				}
				if sig.RawEdgeBps != 500 {
					t.Errorf("RawEdgeBps = %d, want 500", sig.RawEdgeBps)
				}
				if sig.ExpectedNetBps != 210 {
					t.Errorf("ExpectedNetBps = %d, want 210", sig.ExpectedNetBps)
				}
			}
		})
	}
}

func TestDedupSuppressesWithinCooldown(t *testing.T) {
	t.Parallel()
	cfg := baseBrainConfig()
	b := New(cfg, baseBucketsConfig(), "run1", testLogger())

	snap := binarySnapshot("mkt1", 0.40, 0.55, 1_000_000)
	_, ok1 := b.evaluate(snap, 1_000_000)
	if !ok1 {
		t.Fatal("expected first signal to be emitted")
	}

	snap2 := binarySnapshot("mkt1", 0.40, 0.55, 1_001_000)
	_, ok2 := b.evaluate(snap2, 1_001_000) // within cooldown (5000ms)
	if ok2 {
		t.Error("expected second signal within cooldown to be suppressed")
	}
	if b.stats.SignalsSuppressed != 1 {
		t.Errorf("SignalsSuppressed = %d, want 1", b.stats.SignalsSuppressed)
	}

	snap3 := binarySnapshot("mkt1", 0.40, 0.55, 1_010_000)
	_, ok3 := b.evaluate(snap3, 1_010_000) // past cooldown
	if !ok3 {
		t.Error("expected third signal past cooldown to be emitted")
	}
}

func TestPruneDedupRemovesStaleEntries(t *testing.T) {
	t.Parallel()
	b := New(baseBrainConfig(), baseBucketsConfig(), "run1", testLogger())

	snap := binarySnapshot("mkt1", 0.40, 0.55, 1000)
	b.evaluate(snap, 1000)

	if len(b.dedup) != 1 {
		t.Fatalf("expected 1 dedup entry, got %d", len(b.dedup))
	}

	b.pruneDedup(time.Now().Add(2 * time.Hour))
	if len(b.dedup) != 0 {
		t.Errorf("expected dedup table pruned, got %d entries", len(b.dedup))
	}
}

func TestRunDropsSignalOnFullOutputChannel(t *testing.T) {
	t.Parallel()
	cfg := baseBrainConfig()
	cfg.SignalCooldownMs = 0
	b := New(cfg, baseBucketsConfig(), "run1", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshotCh := make(chan types.MarketSnapshot, 4)
	out := make(chan types.Signal) // unbuffered, nothing reads it

	done := make(chan struct{})
	go func() {
		b.Run(ctx, snapshotCh, out)
		close(done)
	}()

	snapshotCh <- binarySnapshot("mkt1", 0.40, 0.55, time.Now().UnixMilli())
	time.Sleep(20 * time.Millisecond)

	cancel()
	close(snapshotCh)
	<-done

	if b.Stats().SignalsSuppressed == 0 {
		t.Error("expected signal to be dropped/counted since nothing read from out")
	}
}

func TestStaleSnapshotDropped(t *testing.T) {
	t.Parallel()
	cfg := baseBrainConfig()
	cfg.MaxSnapshotStalenessMs = 10
	b := New(cfg, baseBucketsConfig(), "run1", testLogger())

	out := make(chan types.Signal, 1)
	oldSnap := binarySnapshot("mkt1", 0.40, 0.55, time.Now().Add(-time.Hour).UnixMilli())
	b.handleSnapshot(oldSnap, out)

	select {
	case <-out:
		t.Error("expected no signal for a stale snapshot")
	default:
	}
}
