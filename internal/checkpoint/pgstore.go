package checkpoint

import (
	"context"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/wirl-lang/wirl/common/db"
	"github.com/wirl-lang/wirl/internal/engine"
)

// PGStore is the server-mode checkpoint backend. It persists the same
// base+delta chain as FileStore into a single table instead of a
// directory tree, following the teacher's repository style
// (cmd/orchestrator/repository/cas_blob.go): one struct wrapping *db.DB,
// one parameterized query per operation, errors wrapped with %w.
//
// workflow_checkpoints(run_id text, superstep int, kind text, content
// bytea, created_at timestamptz, primary key (run_id, superstep)).
type PGStore struct {
	db *db.DB
}

// NewPGStore wraps an existing connection pool as a Store.
func NewPGStore(conn *db.DB) *PGStore {
	return &PGStore{db: conn}
}

type pgRow struct {
	Superstep int
	Kind      string
	Content   []byte
	CreatedAt time.Time
}

func (p *PGStore) loadRows(ctx context.Context, runID string) ([]pgRow, error) {
	rows, err := p.db.Query(ctx, `
		SELECT superstep, kind, content, created_at
		FROM workflow_checkpoints
		WHERE run_id = $1
		ORDER BY superstep ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoint rows: %w", err)
	}
	defer rows.Close()

	var out []pgRow
	for rows.Next() {
		var r pgRow
		if err := rows.Scan(&r.Superstep, &r.Kind, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint rows: %w", err)
	}
	return out, nil
}

func materializeRows(runID string, rows []pgRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	lastBase := -1
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Kind == kindBase {
			lastBase = i
			break
		}
	}
	if lastBase == -1 {
		return nil, fmt.Errorf("checkpoint chain for run %s has no base snapshot", runID)
	}

	current := rows[lastBase].Content
	for i := lastBase + 1; i < len(rows); i++ {
		var err error
		current, err = jsonpatch.MergePatch(current, rows[i].Content)
		if err != nil {
			return nil, fmt.Errorf("apply checkpoint delta at superstep %d: %w", rows[i].Superstep, err)
		}
	}
	return current, nil
}

// Save implements engine.CheckpointSink / Store.
func (p *PGStore) Save(ctx context.Context, runID string, state *engine.State) error {
	rows, err := p.loadRows(ctx, runID)
	if err != nil {
		return err
	}
	full, err := encodeState(state)
	if err != nil {
		return err
	}

	sinceBase := 0
	lastBase := -1
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Kind == kindBase {
			lastBase = i
			break
		}
		sinceBase++
	}

	var prevState *engine.State
	var prevJSON []byte
	if lastBase != -1 {
		var err error
		prevJSON, err = materializeRows(runID, rows)
		if err != nil {
			return err
		}
		prevState, err = decodeState(prevJSON)
		if err != nil {
			return err
		}
	}

	kind, content := kindBase, full
	if lastBase != -1 && sinceBase < compactEvery-1 && !crossedCycleBoundary(prevState, state) {
		patch, err := jsonpatch.CreateMergePatch(prevJSON, full)
		if err != nil {
			return fmt.Errorf("create checkpoint delta: %w", err)
		}
		kind, content = kindDelta, patch
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO workflow_checkpoints (run_id, superstep, kind, content, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (run_id, superstep) DO UPDATE SET kind = EXCLUDED.kind, content = EXCLUDED.content
	`, runID, state.Superstep, kind, content)
	if err != nil {
		return fmt.Errorf("insert checkpoint row: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (p *PGStore) LoadLatest(ctx context.Context, runID string) (*Snapshot, error) {
	rows, err := p.loadRows(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	full, err := materializeRows(runID, rows)
	if err != nil {
		return nil, err
	}
	st, err := decodeState(full)
	if err != nil {
		return nil, err
	}
	last := rows[len(rows)-1]
	return &Snapshot{Superstep: last.Superstep, State: st, CreatedAt: last.CreatedAt}, nil
}

// List implements Store, materializing every recorded superstep.
func (p *PGStore) List(ctx context.Context, runID string) ([]Snapshot, error) {
	rows, err := p.loadRows(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(rows))
	for i := range rows {
		full, err := materializeRows(runID, rows[:i+1])
		if err != nil {
			return nil, err
		}
		st, err := decodeState(full)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Superstep: rows[i].Superstep, State: st, CreatedAt: rows[i].CreatedAt})
	}
	return out, nil
}
