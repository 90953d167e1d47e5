// Package bucket classifies a MarketSnapshot's liquidity into a coarse
// Liquid/Thin label via the worst-leg rule. Classify is a pure function: no
// side effects, no dependency on anything but its input.
package bucket

import (
	"math"

	"razor/internal/reasons"
	"razor/pkg/types"
)

const (
	spreadBpsThinThreshold  = 20
	depth3UsdcThinThreshold = 500
	depth3UsdcMax           = 1e7
)

// Classify applies the worst-leg rule: the worst leg is the one with the
// minimum finite ask_depth3_usdc (ties broken by lowest leg index). Any
// leg with a non-finite, non-positive, or implausibly large depth marks
// the whole snapshot degraded and buckets it Thin regardless of which leg
// is selected as worst.
func Classify(s types.MarketSnapshot) types.BucketDecision {
	degraded := false
	var rs []string

	worstIdx := -1
	worstDepth := math.Inf(1)

	for i, leg := range s.Legs {
		depth := leg.AskDepth3USDC

		switch {
		case !isFiniteDepth(depth):
			degraded = true
			rs = appendUnique(rs, string(reasons.BucketThinNaN))
			continue
		case depth <= 0 || depth > depth3UsdcMax:
			degraded = true
			rs = appendUnique(rs, string(reasons.DepthUnitSuspect))
		}

		if worstIdx == -1 || depth < worstDepth {
			worstIdx = i
			worstDepth = depth
		}
	}

	if worstIdx == -1 {
		// Every leg had a non-finite depth: nothing to compare, fall back
		// to leg 0 as the nominal worst leg for reporting purposes.
		idx := 0
		if len(s.Legs) == 0 {
			idx = -1
		}
		return types.BucketDecision{
			Bucket:           types.BucketThin,
			WorstLegIndex:    idx,
			IsDepth3Degraded: true,
			Reasons:          rs,
		}
	}

	decision := types.BucketDecision{
		WorstLegIndex:    worstIdx,
		WorstSpreadBps:   spreadBps(s.Legs[worstIdx]),
		WorstDepth3USDC:  worstDepth,
		IsDepth3Degraded: degraded,
		Reasons:          rs,
	}

	if degraded {
		decision.Bucket = types.BucketThin
		return decision
	}

	if decision.WorstSpreadBps < spreadBpsThinThreshold && decision.WorstDepth3USDC > depth3UsdcThinThreshold {
		decision.Bucket = types.BucketLiquid
	} else {
		decision.Bucket = types.BucketThin
	}
	return decision
}

func spreadBps(leg types.LegSnapshot) float64 {
	mid := (leg.BestBid + leg.BestAsk) / 2
	if mid == 0 {
		return math.Inf(1)
	}
	return math.Round((leg.BestAsk - leg.BestBid) / mid * 10000)
}

func isFiniteDepth(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0)
}

func appendUnique(rs []string, r string) []string {
	for _, existing := range rs {
		if existing == r {
			return rs
		}
	}
	return append(rs, r)
}
