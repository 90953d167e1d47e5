package recorder

import (
	"log/slog"
	"sync"
)

// syncer is satisfied by both TableWriter and LineWriter.
type syncer interface {
	Sync() error
}

// ShutdownGuard collects every open recorder file in a run and flushes them
// durably (fsync) in one place, mirroring the teacher's Engine.Stop
// flush-then-close sequencing on shutdown.
type ShutdownGuard struct {
	mu     sync.Mutex
	files  []syncer
	logger *slog.Logger
}

// NewShutdownGuard creates a guard that logs sync failures via logger.
func NewShutdownGuard(logger *slog.Logger) *ShutdownGuard {
	return &ShutdownGuard{logger: logger.With("component", "recorder_guard")}
}

// Track registers a writer to be flushed on Flush.
func (g *ShutdownGuard) Track(s syncer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files = append(g.files, s)
}

// Flush durably syncs every tracked file. It does not stop on the first
// error — every file gets a chance to flush, and failures are logged and
// counted rather than aborting the shutdown sequence.
func (g *ShutdownGuard) Flush() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	failures := 0
	for _, f := range g.files {
		if err := f.Sync(); err != nil {
			failures++
			g.logger.Error("failed to sync file on shutdown", "error", err)
		}
	}
	return failures
}
