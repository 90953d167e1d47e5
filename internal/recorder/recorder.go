// Package recorder provides append-only writer primitives for Razor's
// run-directory logs: a tabular (CSV) writer and a line-delimited (JSONL)
// writer, each tied to a frozen header or schema tag.
//
// On opening an existing file, the writer verifies the header/tag matches
// exactly; on mismatch it renames the offending file with a timestamped
// "schema_mismatch" suffix and starts fresh, following the same
// write-to-temp-then-rename philosophy the teacher's store.Store uses for
// crash-safe position files, adapted here to an append-only file that is
// rotated rather than atomically replaced.
package recorder

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TableWriter is an append-only CSV writer with a frozen header.
type TableWriter struct {
	mu       sync.Mutex
	path     string
	header   []string
	file     *os.File
	w        *csv.Writer
	errCount int
}

// OpenTable opens (or creates) a CSV file at path, enforcing header as the
// first line. If an existing file's first line doesn't match header
// exactly, the file is rotated to <path>.<unixnano>.schema_mismatch and a
// fresh file with the correct header is created.
func OpenTable(path string, header []string) (*TableWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", path, err)
	}

	if existingHeaderMismatch(path, header) {
		if err := rotateSchemaMismatch(path); err != nil {
			return nil, err
		}
	}

	needsHeader := !fileNonEmpty(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	tw := &TableWriter{path: path, header: header, file: f, w: w}

	if needsHeader {
		if err := tw.w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header %s: %w", path, err)
		}
		tw.w.Flush()
	}

	return tw, nil
}

// WriteRow appends one row. Errors are returned (and counted) rather than
// panicking; the caller decides whether repeated failures warrant giving up
// on this file.
func (t *TableWriter) WriteRow(row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.w.Write(row); err != nil {
		t.errCount++
		return fmt.Errorf("write row to %s: %w", t.path, err)
	}
	return nil
}

// Flush pushes buffered rows to the OS.
func (t *TableWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Flush()
	return t.w.Error()
}

// Sync flushes and fsyncs the underlying file for durability.
func (t *TableWriter) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return err
	}
	return t.file.Sync()
}

// Close flushes, syncs, and closes the file.
func (t *TableWriter) Close() error {
	if err := t.Sync(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

// ErrCount returns the number of write errors observed on this file so far.
func (t *TableWriter) ErrCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errCount
}

// LineWriter is an append-only line-delimited (JSONL or raw-text) writer
// tied to a frozen schema tag recorded in schema_version.json by the run
// context, not inline in the file itself (so every line stays valid JSON).
type LineWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	w        *bufio.Writer
	errCount int
}

// OpenLine opens (or creates) a line-delimited file at path in append mode.
func OpenLine(path string) (*LineWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &LineWriter{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// WriteLine appends one line, adding the trailing newline.
func (l *LineWriter) WriteLine(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write(line); err != nil {
		l.errCount++
		return fmt.Errorf("write line to %s: %w", l.path, err)
	}
	if err := l.w.WriteByte('\n'); err != nil {
		l.errCount++
		return fmt.Errorf("write newline to %s: %w", l.path, err)
	}
	return nil
}

// Flush pushes buffered lines to the OS.
func (l *LineWriter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Flush()
}

// Sync flushes and fsyncs the underlying file for durability.
func (l *LineWriter) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close flushes, syncs, and closes the file.
func (l *LineWriter) Close() error {
	if err := l.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// ErrCount returns the number of write errors observed on this file so far.
func (l *LineWriter) ErrCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errCount
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

func existingHeaderMismatch(path string, header []string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	r := csv.NewReader(f)
	got, err := r.Read()
	if err != nil {
		// Empty or unreadable file: treat as no mismatch, header will be
		// written fresh.
		return false
	}

	if len(got) != len(header) {
		return true
	}
	for i := range header {
		if got[i] != header[i] {
			return true
		}
	}
	return false
}

func rotateSchemaMismatch(path string) error {
	suffix := fmt.Sprintf("%d.schema_mismatch", time.Now().UnixNano())
	return os.Rename(path, path+"."+suffix)
}
