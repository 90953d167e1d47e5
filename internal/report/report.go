// Package report aggregates the shadow log into a run summary on
// shutdown. It is a pure consumer of the recorded CSV — it never reads
// the live book and never holds pipeline state across the run, reading
// only what Shadow already committed to disk.
//
// Grounded on the teacher's engine.GetMarketsSnapshot: collect-from-store,
// compute derived fields, return a summary struct — generalized here from
// live in-memory slot state to a finished CSV file, and from a
// per-request dashboard snapshot to a single end-of-run aggregation.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"razor/internal/reasons"
)

// BucketStats aggregates outcomes for one liquidity bucket.
type BucketStats struct {
	Bucket       string  `json:"bucket"`
	Signals      int     `json:"signals"`
	Wins         int     `json:"wins"` // total_pnl > 0
	WinRate      float64 `json:"win_rate"`
	TotalPnl     float64 `json:"total_pnl"`
	MeanPnl      float64 `json:"mean_pnl"`
}

// Summary is the full run aggregation, written as both report.json and
// report.md.
type Summary struct {
	RunID            string         `json:"run_id"`
	TotalSignals     int            `json:"total_signals"`
	TotalPnl         float64        `json:"total_pnl"`
	MeanPnl          float64        `json:"mean_pnl"`
	ByBucket         []BucketStats  `json:"by_bucket"`
	ReasonCounts     map[string]int `json:"reason_counts"`
	LegBreakRate     float64        `json:"leg_break_rate"`
	NoTradesRate     float64        `json:"no_trades_rate"`
}

// BuildFromCSV reads a shadow_log.csv file (header + rows) and computes a
// Summary.
func BuildFromCSV(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("read header %s: %w", path, err)
	}
	col := columnIndex(header)

	summary := Summary{ReasonCounts: make(map[string]int)}
	byBucket := make(map[string]*BucketStats)

	var runID string
	var legBreaks, noTrades int

	for {
		rec, err := r.Read()
		if err != nil {
			break // io.EOF or malformed trailing line; treat as end of data
		}
		runID = valueAt(rec, col, "run_id")
		bucket := valueAt(rec, col, "bucket")
		totalPnl := parseFloat(valueAt(rec, col, "total_pnl"))
		notes := reasons.ParseNotes(valueAt(rec, col, "notes"))

		summary.TotalSignals++
		summary.TotalPnl += totalPnl

		bs, ok := byBucket[bucket]
		if !ok {
			bs = &BucketStats{Bucket: bucket}
			byBucket[bucket] = bs
		}
		bs.Signals++
		bs.TotalPnl += totalPnl
		if totalPnl > 0 {
			bs.Wins++
		}

		for _, reason := range notes {
			summary.ReasonCounts[string(reason)]++
			if reason == reasons.LegBreak {
				legBreaks++
			}
			if reason == reasons.NoTrades {
				noTrades++
			}
		}
	}

	summary.RunID = runID
	if summary.TotalSignals > 0 {
		summary.MeanPnl = summary.TotalPnl / float64(summary.TotalSignals)
		summary.LegBreakRate = float64(legBreaks) / float64(summary.TotalSignals)
		summary.NoTradesRate = float64(noTrades) / float64(summary.TotalSignals)
	}

	bucketNames := make([]string, 0, len(byBucket))
	for name := range byBucket {
		bucketNames = append(bucketNames, name)
	}
	sort.Strings(bucketNames)
	for _, name := range bucketNames {
		bs := byBucket[name]
		if bs.Signals > 0 {
			bs.WinRate = float64(bs.Wins) / float64(bs.Signals)
			bs.MeanPnl = bs.TotalPnl / float64(bs.Signals)
		}
		summary.ByBucket = append(summary.ByBucket, *bs)
	}

	return summary, nil
}

// WriteJSON writes the summary as indented JSON to path.
func WriteJSON(s Summary, path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// WriteMarkdown renders a human-readable summary table to path, using
// go-humanize for readable large-number formatting; percentages are
// printed with one decimal place.
func WriteMarkdown(s Summary, path string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Razor run report: %s\n\n", s.RunID)
	fmt.Fprintf(&b, "- Total signals: %s\n", humanize.Comma(int64(s.TotalSignals)))
	fmt.Fprintf(&b, "- Total hypothetical PnL: %s\n", humanize.FormatFloat("#,###.##", s.TotalPnl))
	fmt.Fprintf(&b, "- Mean PnL per signal: %s\n", humanize.FormatFloat("#,###.####", s.MeanPnl))
	fmt.Fprintf(&b, "- LEG_BREAK rate: %.1f%%\n", s.LegBreakRate*100)
	fmt.Fprintf(&b, "- NO_TRADES rate: %.1f%%\n\n", s.NoTradesRate*100)

	b.WriteString("## By bucket\n\n")
	b.WriteString("| bucket | signals | win rate | total pnl | mean pnl |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, bs := range s.ByBucket {
		fmt.Fprintf(&b, "| %s | %s | %.1f%% | %s | %s |\n",
			bs.Bucket, humanize.Comma(int64(bs.Signals)), bs.WinRate*100,
			humanize.FormatFloat("#,###.##", bs.TotalPnl), humanize.FormatFloat("#,###.####", bs.MeanPnl))
	}

	b.WriteString("\n## Reason codes\n\n")
	b.WriteString("| reason | count |\n")
	b.WriteString("|---|---|\n")
	reasonNames := make([]string, 0, len(s.ReasonCounts))
	for name := range s.ReasonCounts {
		reasonNames = append(reasonNames, name)
	}
	sort.Strings(reasonNames)
	for _, name := range reasonNames {
		fmt.Fprintf(&b, "| %s | %s |\n", name, humanize.Comma(int64(s.ReasonCounts[name])))
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func valueAt(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
