// Package store persists the most recent raw peer snapshot so a restarted
// daemon can republish data before the first feed delivery arrives.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/peerglobe/model"
)

// ErrNoSnapshot is returned by Load when nothing has been cached yet.
var ErrNoSnapshot = errors.New("no cached snapshot")

// SnapshotStore caches one peer snapshot in SQLite. Save replaces the cached
// snapshot wholesale; there is no history.
type SnapshotStore struct {
	db *sql.DB
}

// Open creates (if needed) and opens the cache database at path.
func Open(path string) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshot_peers (
			position  INTEGER NOT NULL,
			name      TEXT    NOT NULL,
			lat       REAL    NOT NULL,
			lon       REAL    NOT NULL,
			elevation REAL    NOT NULL
		);
		CREATE TABLE IF NOT EXISTS snapshot_meta (
			id       INTEGER PRIMARY KEY CHECK (id = 1),
			saved_at TEXT NOT NULL
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

// Close releases the database handle.
func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the cached snapshot with peers, preserving their order.
func (s *SnapshotStore) Save(ctx context.Context, peers []model.PeerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_peers`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_peers (position, name, lat, lon, elevation)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range peers {
		if _, err := stmt.ExecContext(ctx, i, p.Name, p.Lat, p.Lon, p.Elevation); err != nil {
			return fmt.Errorf("insert peer %q: %w", p.Name, err)
		}
	}

	savedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, saved_at) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET saved_at = excluded.saved_at
	`, savedAt); err != nil {
		return fmt.Errorf("update meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the cached snapshot in its original order, along with when it
// was saved. ErrNoSnapshot is returned when the cache is empty.
func (s *SnapshotStore) Load(ctx context.Context) ([]model.PeerRecord, time.Time, error) {
	var rawSavedAt string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&rawSavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read meta: %w", err)
	}
	savedAt, err := time.Parse(time.RFC3339Nano, rawSavedAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse saved_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, lat, lon, elevation
		FROM snapshot_peers
		ORDER BY position
	`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read snapshot: %w", err)
	}
	defer rows.Close()

	var peers []model.PeerRecord
	for rows.Next() {
		var p model.PeerRecord
		if err := rows.Scan(&p.Name, &p.Lat, &p.Lon, &p.Elevation); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan peer: %w", err)
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("iterate snapshot: %w", err)
	}

	return peers, savedAt, nil
}
