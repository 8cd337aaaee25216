package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/probe"
)

// DB is a run catalogue in a single SQLite file. Runs are rows in the
// runs table; each state is a row in states holding its adaptor tree as
// JSON alongside the indexed kinematic columns.
type DB struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	sequence TEXT NOT NULL,
	probe    TEXT NOT NULL,
	created  INTEGER NOT NULL,
	meta     BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS states (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx     INTEGER NOT NULL,
	elem    TEXT NOT NULL,
	type    TEXT NOT NULL,
	s       REAL NOT NULL,
	w       REAL NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (run_id, idx)
);
CREATE INDEX IF NOT EXISTS states_elem ON states(run_id, elem);
`

func OpenDB(path string) (*DB, error) {
	if path == "" {
		path = "beamline.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

func (d *DB) Path() string { return d.path }

func (d *DB) Close() error { return d.db.Close() }

// SaveRun stores a run and its states in one transaction.
func (d *DB) SaveRun(ctx context.Context, meta RunMetadata, states []probe.State) (runID string, retErr error) {
	if _, err := meta.Kind(); err != nil {
		return "", err
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	fillFromStates(&meta, states)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, sequence, probe, created, meta) VALUES (?, ?, ?, ?, ?)`,
		meta.ID, meta.Sequence, meta.Probe, meta.Timestamp.UnixNano(), metaJSON); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO states (run_id, idx, elem, type, s, w, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer func() { _ = stmt.Close() }()

	for i, st := range states {
		node := dynamo.NewMapAdaptor(tagSnapshot)
		st.Save(node)
		payload, err := json.Marshal(node)
		if err != nil {
			return "", err
		}
		if _, err := stmt.ExecContext(ctx, meta.ID, i, st.ElementID(), st.ElementType(),
			st.Position(), st.KineticEnergy(), payload); err != nil {
			return "", fmt.Errorf("insert state %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// Runs lists catalogued runs, newest first. An empty sequence lists all.
func (d *DB) Runs(ctx context.Context, sequence string) ([]RunMetadata, error) {
	q := `SELECT meta FROM runs ORDER BY created DESC`
	args := []any{}
	if sequence != "" {
		q = `SELECT meta FROM runs WHERE sequence = ? ORDER BY created DESC`
		args = append(args, sequence)
	}
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var meta RunMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

func (d *DB) Run(ctx context.Context, runID string) (*RunMetadata, error) {
	var raw []byte
	err := d.db.QueryRowContext(ctx, `SELECT meta FROM runs WHERE id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", dynamo.ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &meta, nil
}

// States restores the states of a run. A non-empty elemID restricts the
// result to states recorded at that element.
func (d *DB) States(ctx context.Context, runID, elemID string) ([]probe.State, error) {
	meta, err := d.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	kind, err := meta.Kind()
	if err != nil {
		return nil, err
	}

	q := `SELECT payload FROM states WHERE run_id = ? ORDER BY idx`
	args := []any{runID}
	if elemID != "" {
		q = `SELECT payload FROM states WHERE run_id = ? AND elem = ? ORDER BY idx`
		args = append(args, elemID)
	}
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	states := make([]probe.State, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var node dynamo.MapAdaptor
		if err := json.Unmarshal(raw, &node); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		st := probe.NewState(kind)
		if err := st.Load(&node); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// DeleteRun removes a run and its states.
func (d *DB) DeleteRun(ctx context.Context, runID string) (retErr error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM states WHERE run_id = ?`, runID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", dynamo.ErrNotFound, runID)
	}
	return tx.Commit()
}
