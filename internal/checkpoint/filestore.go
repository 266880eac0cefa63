package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/wirl-lang/wirl/internal/engine"
)

// FileStore is the embedded, standalone-mode checkpoint backend (CLI /
// cmd/runner use this instead of Postgres). Each run gets its own
// directory holding a manifest plus one content file per recorded
// superstep: periodic full snapshots ("base" entries) and, in between,
// RFC 7396 JSON merge-patch deltas, each against the previous checkpoint — the
// same base+delta chain the teacher's artifact/CAS-blob tables model,
// just addressed by path instead of by content hash (cmd/orchestrator/
// service/cas.go, compaction.go).
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates a file-backed store rooted at baseDir, creating it
// if necessary.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

type manifestEntry struct {
	Superstep int       `json:"superstep"`
	Kind      string    `json:"kind"` // "base" or "delta"
	File      string    `json:"file"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	kindBase  = "base"
	kindDelta = "delta"
)

func (f *FileStore) runDir(runID string) string {
	return filepath.Join(f.baseDir, runID)
}

func (f *FileStore) manifestPath(runID string) string {
	return filepath.Join(f.runDir(runID), "manifest.json")
}

func (f *FileStore) loadManifest(runID string) ([]manifestEntry, error) {
	b, err := os.ReadFile(f.manifestPath(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return entries, nil
}

func (f *FileStore) writeManifest(runID string, entries []manifestEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(f.runDir(runID), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := os.WriteFile(f.manifestPath(runID), b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (f *FileStore) readEntry(runID string, e manifestEntry) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(f.runDir(runID), e.File))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint content %s: %w", e.File, err)
	}
	return b, nil
}

// materializeThrough rebuilds the full state JSON as of the last entry in
// entries, walking back to the most recent base and applying every delta
// after it in order (the teacher's materializer.go pattern, one merge
// patch at a time instead of one RFC 6902 patch at a time).
func (f *FileStore) materializeThrough(runID string, entries []manifestEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	lastBase := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == kindBase {
			lastBase = i
			break
		}
	}
	if lastBase == -1 {
		return nil, fmt.Errorf("checkpoint chain for run %s has no base snapshot", runID)
	}

	current, err := f.readEntry(runID, entries[lastBase])
	if err != nil {
		return nil, err
	}
	for i := lastBase + 1; i < len(entries); i++ {
		patch, err := f.readEntry(runID, entries[i])
		if err != nil {
			return nil, err
		}
		current, err = jsonpatch.MergePatch(current, patch)
		if err != nil {
			return nil, fmt.Errorf("apply checkpoint delta at superstep %d: %w", entries[i].Superstep, err)
		}
	}
	return current, nil
}

// Save implements engine.CheckpointSink / Store.
func (f *FileStore) Save(ctx context.Context, runID string, state *engine.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadManifest(runID)
	if err != nil {
		return err
	}
	full, err := encodeState(state)
	if err != nil {
		return err
	}

	sinceBase := 0
	lastBase := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == kindBase {
			lastBase = i
			break
		}
		sinceBase++
	}

	var prevState *engine.State
	var prevJSON []byte
	if lastBase != -1 {
		var err error
		prevJSON, err = f.materializeThrough(runID, entries)
		if err != nil {
			return err
		}
		prevState, err = decodeState(prevJSON)
		if err != nil {
			return err
		}
	}

	var kind string
	var content []byte
	if lastBase == -1 || sinceBase >= compactEvery-1 || crossedCycleBoundary(prevState, state) {
		kind = kindBase
		content = full
	} else {
		patch, err := jsonpatch.CreateMergePatch(prevJSON, full)
		if err != nil {
			return fmt.Errorf("create checkpoint delta: %w", err)
		}
		kind = kindDelta
		content = patch
	}

	file := fmt.Sprintf("%d.json", state.Superstep)
	if err := os.MkdirAll(f.runDir(runID), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.runDir(runID), file), content, 0o644); err != nil {
		return fmt.Errorf("write checkpoint content: %w", err)
	}

	entries = append(entries, manifestEntry{Superstep: state.Superstep, Kind: kind, File: file, CreatedAt: time.Now().UTC()})
	return f.writeManifest(runID, entries)
}

// LoadLatest implements Store.
func (f *FileStore) LoadLatest(ctx context.Context, runID string) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadManifest(runID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	full, err := f.materializeThrough(runID, entries)
	if err != nil {
		return nil, err
	}
	st, err := decodeState(full)
	if err != nil {
		return nil, err
	}
	last := entries[len(entries)-1]
	return &Snapshot{Superstep: last.Superstep, State: st, CreatedAt: last.CreatedAt}, nil
}

// List implements Store, returning every recorded snapshot in superstep
// order. Each is materialized independently; fine for the checkpoint
// counts a single run accumulates, not meant for bulk export.
func (f *FileStore) List(ctx context.Context, runID string) ([]Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadManifest(runID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Superstep < entries[j].Superstep })

	out := make([]Snapshot, 0, len(entries))
	for i := range entries {
		full, err := f.materializeThrough(runID, entries[:i+1])
		if err != nil {
			return nil, err
		}
		st, err := decodeState(full)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Superstep: entries[i].Superstep, State: st, CreatedAt: entries[i].CreatedAt})
	}
	return out, nil
}
