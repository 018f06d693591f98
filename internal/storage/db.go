package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"venuematch/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS reference_tables (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  rowCount INTEGER NOT NULL,
  csv TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  vendor TEXT NOT NULL,
  candidateCount INTEGER NOT NULL,
  hasMatchCount INTEGER NOT NULL,
  zeroMatchCount INTEGER NOT NULL,
  hasMatchCsv TEXT NOT NULL,
  zeroMatchCsv TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_vendor ON runs(vendor);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveReference stores a new reference table version. Older versions are kept.
func (d *DB) SaveReference(ctx context.Context, csv string, rows int, source string) (int64, error) {
	result, err := d.conn.ExecContext(ctx,
		`INSERT INTO reference_tables (rowCount, csv, source) VALUES (?, ?, ?)`,
		rows, csv, source)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) LatestReferenceRow(ctx context.Context) (*internal.ReferenceRow, error) {
	var row internal.ReferenceRow
	err := d.conn.QueryRowContext(ctx, `
SELECT id, rowCount, csv, source, createdAt
FROM reference_tables ORDER BY id DESC LIMIT 1
`).Scan(&row.ID, &row.Rows, &row.CSV, &row.Source, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestReference returns the newest reference CSV, or "" when none was imported.
func (d *DB) LatestReference(ctx context.Context) (string, error) {
	row, err := d.LatestReferenceRow(ctx)
	if err != nil || row == nil {
		return "", err
	}
	return row.CSV, nil
}

func (d *DB) InsertRun(ctx context.Context, run internal.RunRecord) error {
	timingsJSON, _ := json.Marshal(run.Timings)
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO runs (id, vendor, candidateCount, hasMatchCount, zeroMatchCount, hasMatchCsv, zeroMatchCsv, timingsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, run.ID, run.Vendor, run.CandidateCount, run.HasMatchCount, run.ZeroMatchCount,
		run.HasMatchCSV, run.ZeroMatchCSV, string(timingsJSON))
	return err
}

func (d *DB) GetRun(ctx context.Context, id string) (*internal.RunRecord, error) {
	var run internal.RunRecord
	var timingsJSON string
	err := d.conn.QueryRowContext(ctx, `
SELECT id, vendor, candidateCount, hasMatchCount, zeroMatchCount, hasMatchCsv, zeroMatchCsv, timingsJson, createdAt
FROM runs WHERE id = ?
`, id).Scan(
		&run.ID, &run.Vendor, &run.CandidateCount, &run.HasMatchCount, &run.ZeroMatchCount,
		&run.HasMatchCSV, &run.ZeroMatchCSV, &timingsJSON, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(timingsJSON), &run.Timings)
	return &run, nil
}

func (d *DB) MustRun(ctx context.Context, id string) (internal.RunRecord, error) {
	run, err := d.GetRun(ctx, id)
	if err != nil {
		return internal.RunRecord{}, err
	}
	if run == nil {
		return internal.RunRecord{}, fmt.Errorf("run not found: %s", id)
	}
	return *run, nil
}

// ListRuns returns the newest runs first, without their CSV bodies.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]internal.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, vendor, candidateCount, hasMatchCount, zeroMatchCount, timingsJson, createdAt
FROM runs ORDER BY createdAt DESC, rowid DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		var run internal.RunRecord
		var timingsJSON string
		if err := rows.Scan(&run.ID, &run.Vendor, &run.CandidateCount, &run.HasMatchCount, &run.ZeroMatchCount, &timingsJSON, &run.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &run.Timings)
		out = append(out, run)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
