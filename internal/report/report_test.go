package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"razor/internal/shadow"
	"razor/pkg/types"
)

func writeShadowLog(t *testing.T, rows []shadow.Row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shadow_log.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	header := strings.Join(shadow.Header(), ",")
	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, r := range rows {
		line := strings.Join(r.ToCSV(), ",")
		if _, err := f.WriteString(line + "\n"); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	return path
}

func TestBuildFromCSVAggregatesByBucket(t *testing.T) {
	t.Parallel()
	rows := []shadow.Row{
		{RunID: "run1", MarketID: "m1", Bucket: types.BucketLiquid, TotalPnl: 1.0},
		{RunID: "run1", MarketID: "m1", Bucket: types.BucketLiquid, TotalPnl: -0.5},
		{RunID: "run1", MarketID: "m1", Bucket: types.BucketThin, TotalPnl: 2.0, Notes: "LEG_BREAK"},
	}
	path := writeShadowLog(t, rows)

	summary, err := BuildFromCSV(path)
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}

	if summary.TotalSignals != 3 {
		t.Errorf("TotalSignals = %d, want 3", summary.TotalSignals)
	}
	if summary.TotalPnl != 2.5 {
		t.Errorf("TotalPnl = %v, want 2.5", summary.TotalPnl)
	}
	if summary.ReasonCounts["LEG_BREAK"] != 1 {
		t.Errorf("ReasonCounts[LEG_BREAK] = %d, want 1", summary.ReasonCounts["LEG_BREAK"])
	}

	var liquid, thin *BucketStats
	for i := range summary.ByBucket {
		switch summary.ByBucket[i].Bucket {
		case "Liquid":
			liquid = &summary.ByBucket[i]
		case "Thin":
			thin = &summary.ByBucket[i]
		}
	}
	if liquid == nil || liquid.Signals != 2 || liquid.Wins != 1 {
		t.Fatalf("liquid bucket stats wrong: %+v", liquid)
	}
	if thin == nil || thin.Signals != 1 || thin.Wins != 1 {
		t.Fatalf("thin bucket stats wrong: %+v", thin)
	}
}

func TestWriteJSONAndMarkdownProduceFiles(t *testing.T) {
	t.Parallel()
	summary := Summary{RunID: "run1", TotalSignals: 2, TotalPnl: 1.5, ReasonCounts: map[string]int{"NO_TRADES": 1}}

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")
	mdPath := filepath.Join(dir, "report.md")

	if err := WriteJSON(summary, jsonPath); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := WriteMarkdown(summary, mdPath); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}

	jsonData, err := os.ReadFile(jsonPath)
	if err != nil || !strings.Contains(string(jsonData), "run1") {
		t.Errorf("report.json missing run_id: err=%v data=%q", err, string(jsonData))
	}
	mdData, err := os.ReadFile(mdPath)
	if err != nil || !strings.Contains(string(mdData), "Razor run report") {
		t.Errorf("report.md missing expected heading: err=%v data=%q", err, string(mdData))
	}
}

func TestBuildFromCSVEmptyLog(t *testing.T) {
	t.Parallel()
	path := writeShadowLog(t, nil)
	summary, err := BuildFromCSV(path)
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}
	if summary.TotalSignals != 0 {
		t.Errorf("TotalSignals = %d, want 0", summary.TotalSignals)
	}
}
