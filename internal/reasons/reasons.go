// Package reasons defines the closed set of annotation codes Shadow attaches
// to a settled signal, and the notes-column format/parse round-trip used to
// store them as a single sorted, deduplicated, comma-joined field.
package reasons

import (
	"sort"
	"strings"
)

// Reason is one closed annotation code. Shadow never invents a new code at
// runtime; every code a settlement can emit is named here.
type Reason string

const (
	// DepthUnitSuspect marks a snapshot with a leg whose finite
	// ask_depth3_usdc was <=0 or >1e7 — raised by the bucket classifier
	// from the leg's depth value.
	DepthUnitSuspect Reason = "DEPTH_UNIT_SUSPECT"

	// BucketThinNaN marks a bucket decision where at least one leg's depth
	// was non-finite; that leg is left out of the worst-leg comparison and
	// the snapshot is bucketed Thin.
	BucketThinNaN Reason = "BUCKET_THIN_NAN"

	// NoTrades marks a settlement where the summed observed volume across
	// all legs in the window was zero.
	NoTrades Reason = "NO_TRADES"

	// WindowEmpty marks a settlement whose market had zero trades of any
	// kind in the window (trade_count = 0 per WindowStats), including the
	// failure case where the trade store was pruned past the window start.
	WindowEmpty Reason = "WINDOW_EMPTY"

	// MissingBid marks a leg whose best_bid_at_signal was non-positive,
	// forcing Exit_i = 0 for that leg's residual dump.
	MissingBid Reason = "MISSING_BID"

	// LegBreak marks a settlement whose set_ratio fell below 0.85,
	// indicating the legs filled at meaningfully different rates.
	LegBreak Reason = "LEG_BREAK"
)

// all is the closed set, used to validate unknown codes on parse.
var all = map[Reason]struct{}{
	DepthUnitSuspect: {},
	BucketThinNaN:    {},
	NoTrades:         {},
	WindowEmpty:      {},
	MissingBid:       {},
	LegBreak:         {},
}

// Valid reports whether r is one of the closed set of known codes.
func Valid(r Reason) bool {
	_, ok := all[r]
	return ok
}

// FormatNotes renders a set of reasons as a sorted, deduplicated,
// comma-joined string suitable for a single CSV column. Duplicate inputs
// collapse to one occurrence.
func FormatNotes(rs []Reason) string {
	seen := make(map[Reason]struct{}, len(rs))
	var unique []string
	for _, r := range rs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		unique = append(unique, string(r))
	}
	sort.Strings(unique)
	return strings.Join(unique, ",")
}

// ParseNotes parses a comma-joined notes column back into a sorted,
// deduplicated slice of Reason. Unknown tokens are preserved as-is rather
// than dropped, so a future code addition doesn't corrupt old logs being
// re-read; callers that need strict validation should check Valid
// themselves.
func ParseNotes(s string) []Reason {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	seen := make(map[Reason]struct{}, len(parts))
	var unique []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r := Reason(p)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		unique = append(unique, p)
	}
	sort.Strings(unique)
	out := make([]Reason, len(unique))
	for i, u := range unique {
		out[i] = Reason(u)
	}
	return out
}
