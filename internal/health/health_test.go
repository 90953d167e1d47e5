package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"razor/internal/recorder"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openLog(t *testing.T) (*recorder.LineWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "health.jsonl")
	lw, err := recorder.OpenLine(path)
	if err != nil {
		t.Fatalf("OpenLine: %v", err)
	}
	return lw, path
}

func TestReportWritesEventLine(t *testing.T) {
	t.Parallel()
	lw, path := openLog(t)
	h := New(lw, func() Stats { return Stats{} }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()

	h.Report(Event{TsMs: 1, Kind: "ws_reconnect", Detail: "dial timeout"})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	lw.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "ws_reconnect") {
		t.Errorf("expected ws_reconnect in log, got %q", string(data))
	}

	var evt Event
	firstLine := strings.SplitN(string(data), "\n", 2)[0]
	if err := json.Unmarshal([]byte(firstLine), &evt); err != nil {
		t.Fatalf("Unmarshal event line: %v", err)
	}
	if evt.Kind != "ws_reconnect" {
		t.Errorf("Kind = %q, want ws_reconnect", evt.Kind)
	}
}

func TestReportDropsWhenChannelFull(t *testing.T) {
	t.Parallel()
	lw, _ := openLog(t)
	h := New(lw, func() Stats { return Stats{} }, testLogger())
	defer lw.Close()

	// Never call Run, so the channel never drains; fill it past capacity.
	for i := 0; i < 300; i++ {
		h.Report(Event{TsMs: int64(i), Kind: "x"})
	}
	if h.EventsDropped() == 0 {
		t.Error("expected some events dropped once channel filled")
	}
}

func TestWriteHeartbeatRecordsStats(t *testing.T) {
	t.Parallel()
	lw, path := openLog(t)
	stats := Stats{SignalsEmitted: 5, RowsWritten: 2}
	h := New(lw, func() Stats { return stats }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	h.writeHeartbeat() // directly exercise heartbeat row without waiting 10s
	cancel()
	_ = ctx
	lw.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"heartbeat"`) {
		t.Errorf("expected heartbeat kind in log, got %q", string(data))
	}
	if !strings.Contains(string(data), `"signals_emitted":5`) {
		t.Errorf("expected signals_emitted=5 in log, got %q", string(data))
	}
}
