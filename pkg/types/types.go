// Package types defines shared data structures used across all packages.
//
// This is the common vocabulary for Razor — market definitions, snapshots,
// trade ticks, signals, and bucket decisions. It has no dependencies on
// internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"razor/pkg/units"
)

// ————————————————————————————————————————————————————————————————————————
// Strategy and bucket enums
// ————————————————————————————————————————————————————————————————————————

// Strategy identifies the multi-leg market shape a Signal was derived from.
type Strategy string

const (
	StrategyBinary   Strategy = "binary"
	StrategyTriangle Strategy = "triangle"
)

// Bucket is the coarse liquidity label used to index fill-share assumptions.
type Bucket string

const (
	BucketLiquid Bucket = "Liquid"
	BucketThin   Bucket = "Thin"
)

// ————————————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————————————

// MarketDef is the immutable definition of one multi-leg market, created at
// startup and read-only thereafter. The order of TokenIDs fixes leg indices
// for every downstream consumer.
type MarketDef struct {
	MarketID string
	TokenIDs []string // length 2 (binary) or 3 (triangle)
}

// LegIndex returns the index of tokenID within TokenIDs, or -1 if unknown.
func (m MarketDef) LegIndex(tokenID string) int {
	for i, t := range m.TokenIDs {
		if t == tokenID {
			return i
		}
	}
	return -1
}

// Strategy returns the strategy label implied by the leg count.
func (m MarketDef) Strategy() Strategy {
	if len(m.TokenIDs) == 3 {
		return StrategyTriangle
	}
	return StrategyBinary
}

// ————————————————————————————————————————————————————————————————————————
// Snapshots
// ————————————————————————————————————————————————————————————————————————

// LegSnapshot is the top-of-book state for one leg (token) of a market.
type LegSnapshot struct {
	TokenID       string
	BestBid       float64
	BestAsk       float64
	AskDepth3USDC float64 // sum over top 3 ask levels of price*size
	TsRecvUs      int64   // local receive timestamp, microseconds
}

// Ready reports whether this leg has a usable two-sided market.
// 0 < BestBid <= BestAsk <= 1 must hold; otherwise the leg is not ready.
func (l LegSnapshot) Ready() bool {
	return l.BestBid >= 0 && l.BestAsk >= l.BestBid && l.BestAsk <= 1 && l.BestBid > 0 && l.BestAsk > 0
}

// MarketSnapshot is a point-in-time view of all legs of a market. It is only
// ever published once every leg is ready.
type MarketSnapshot struct {
	MarketID string
	Legs     []LegSnapshot // length == MarketDef.TokenIDs length, same order
	TsMs     int64         // publish time, local ingest clock, milliseconds
}

// SumAsk returns the sum of best-ask prices across all legs.
func (s MarketSnapshot) SumAsk() float64 {
	var sum float64
	for _, leg := range s.Legs {
		sum += leg.BestAsk
	}
	return sum
}

// ————————————————————————————————————————————————————————————————————————
// Trades
// ————————————————————————————————————————————————————————————————————————

// TradeTick is a single observed trade on one leg of a known market.
type TradeTick struct {
	TsMs         int64 // local ingest time — the canonical window-domain clock
	IngestTsMs   int64 // == TsMs, retained for explicitness
	ExchangeTsMs int64 // optional, diagnostics only; 0 if unknown
	MarketID     string
	TokenID      string
	Price        float64
	Size         float64
	TradeID      string
}

// ————————————————————————————————————————————————————————————————————————
// Bucket classification
// ————————————————————————————————————————————————————————————————————————

// BucketDecision is the output of the worst-leg bucket classifier.
type BucketDecision struct {
	Bucket           Bucket
	WorstLegIndex    int
	WorstSpreadBps   float64
	WorstDepth3USDC  float64
	IsDepth3Degraded bool
	Reasons          []string
}

// ————————————————————————————————————————————————————————————————————————
// Signals
// ————————————————————————————————————————————————————————————————————————

// SignalLeg freezes the per-leg accounting anchors at signal time. Shadow
// must never read the live book during settlement — everything it needs
// about the book at signal time lives here.
type SignalLeg struct {
	TokenID         string
	LimitPrice      float64 // = best_ask_i at signal time
	BestBidAtSignal float64 // = best_bid_i at signal time
	BestAskAtSignal float64
}

// BucketMetrics carries the bucket-classification detail forward onto the
// signal so Shadow can annotate rows without re-deriving them.
type BucketMetrics struct {
	WorstSpreadBps  float64
	WorstDepth3USDC float64
	WorstLegToken   string
}

// Signal is emitted by the Brain and carries everything Shadow needs to
// settle accounting without ever peeking at the live book again.
type Signal struct {
	SignalID         string
	RunID            string
	SignalTsMs       int64
	MarketID         string
	Strategy         Strategy
	Bucket           Bucket
	BucketMetrics    BucketMetrics
	QReq             float64
	Legs             []SignalLeg
	RawCostBps       units.Bps
	RawEdgeBps       units.Bps
	ExpectedNetBps   units.Bps
	RiskPremiumBps   units.Bps
	FillShareP25Used float64
	BucketReasons    []string // degradation reasons carried forward from classification
}

// ————————————————————————————————————————————————————————————————————————
// Misc
// ————————————————————————————————————————————————————————————————————————

// NowMs is a small helper for local-ingest-clock timestamps in milliseconds.
func NowMs(t time.Time) int64 {
	return t.UnixMilli()
}
