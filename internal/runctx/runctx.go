// Package runctx creates and anchors the on-disk run directory for a single
// Razor run: data/run_YYYYMMDD_HHMMSS_<rand6>/, a frozen config snapshot,
// the schema version tag, run metadata, and a "latest" alias.
//
// The directory is created up front and fails fast on any error, the same
// posture the teacher's store.Open takes before any data is recorded.
package runctx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"razor/internal/config"
)

// SchemaVersion is the frozen schema tag written to schema_version.json.
// Bump it whenever a recorded file's column set or line shape changes.
const SchemaVersion = 1

// recordedFiles is the fixed set of per-run files whose column/line shape is
// frozen under SchemaVersion, written into schema_version.json's files map
// so a reader can confirm every log in the run directory was produced under
// the same schema without having to open each one.
var recordedFiles = []string{
	"raw_ws.jsonl",
	"ticks.csv",
	"snapshots.csv",
	"trades.csv",
	"shadow_log.csv",
	"health.jsonl",
}

// RunContext anchors all recorder output for one run under Dir.
type RunContext struct {
	RunID string
	Dir   string
}

// Meta is the content of meta.json: the identity of the process that ran
// this run.
type Meta struct {
	RunID     string `json:"run_id"`
	StartedAt string `json:"started_at"`
	Schema    int    `json:"schema_version"`
	Pid       int    `json:"pid"`
	Hostname  string `json:"hostname"`
}

// RunMeta is the content of run_meta.json: the identity of the run itself
// (what it observed), as opposed to meta.json's process identity.
type RunMeta struct {
	RunID     string   `json:"run_id"`
	StartedAt string   `json:"started_at"`
	Schema    int      `json:"schema_version"`
	MarketIDs []string `json:"market_ids"`
}

// schemaVersionFile is the content of schema_version.json.
type schemaVersionFile struct {
	SchemaVersion int            `json:"schema_version"`
	Files         map[string]int `json:"files"`
}

// Create makes a fresh run directory under baseDir, snapshots cfg to
// config.toml, writes schema_version.json, meta.json, and run_meta.json, and
// repoints the "latest" alias at the new directory. baseDir is typically
// "data".
func Create(baseDir string, cfg *config.Config, now time.Time) (*RunContext, error) {
	runID := uuid.NewString()
	suffix := runID[:6]
	dirName := fmt.Sprintf("run_%s_%s", now.UTC().Format("20060102_150405"), suffix)
	dir := filepath.Join(baseDir, dirName)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir %s: %w", dir, err)
	}

	if err := writeConfigSnapshot(dir, cfg); err != nil {
		return nil, err
	}
	if err := writeSchemaVersion(dir); err != nil {
		return nil, err
	}

	startedAt := now.UTC().Format(time.RFC3339)
	meta := Meta{RunID: runID, StartedAt: startedAt, Schema: SchemaVersion, Pid: os.Getpid(), Hostname: hostname()}
	if err := writeMeta(dir, meta); err != nil {
		return nil, err
	}
	runMeta := RunMeta{RunID: runID, StartedAt: startedAt, Schema: SchemaVersion, MarketIDs: cfg.Run.MarketIDs}
	if err := writeRunMeta(dir, runMeta); err != nil {
		return nil, err
	}

	if err := relinkLatest(baseDir, dirName); err != nil {
		return nil, err
	}

	return &RunContext{RunID: runID, Dir: dir}, nil
}

// Path joins name onto the run directory.
func (r *RunContext) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

func writeConfigSnapshot(dir string, cfg *config.Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config snapshot: %w", err)
	}
	return nil
}

func writeSchemaVersion(dir string) error {
	files := make(map[string]int, len(recordedFiles))
	for _, name := range recordedFiles {
		files[name] = SchemaVersion
	}
	data, err := json.MarshalIndent(schemaVersionFile{SchemaVersion: SchemaVersion, Files: files}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema_version.json: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "schema_version.json"), data, 0o644)
}

func writeMeta(dir string, meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta.json: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o644)
}

func writeRunMeta(dir string, runMeta RunMeta) error {
	data, err := json.MarshalIndent(runMeta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run_meta.json: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "run_meta.json"), data, 0o644)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

// relinkLatest points baseDir/latest at dirName. On platforms or
// filesystems where symlinks aren't available, it falls back to writing a
// plain text file containing the directory name.
func relinkLatest(baseDir, dirName string) error {
	latest := filepath.Join(baseDir, "latest")
	_ = os.Remove(latest)
	if err := os.Symlink(dirName, latest); err != nil {
		return os.WriteFile(latest, []byte(dirName), 0o644)
	}
	return nil
}
