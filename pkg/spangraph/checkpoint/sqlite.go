package checkpoint

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists snapshots to SQLite. Suitable for single-process
// production use; WAL mode keeps concurrent reads cheap.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) a snapshot database at path.
// Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id     TEXT NOT NULL,
			sequence   INTEGER NOT NULL,
			node_id    TEXT NOT NULL,
			next_node  TEXT NOT NULL,
			created_at TEXT NOT NULL,
			state      BLOB NOT NULL,
			PRIMARY KEY (run_id, sequence)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO snapshots (run_id, sequence, node_id, next_node, created_at, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, sequence) DO UPDATE SET
			node_id    = excluded.node_id,
			next_node  = excluded.next_node,
			created_at = excluded.created_at,
			state      = excluded.state
	`, snap.RunID, snap.Sequence, snap.NodeID, snap.NextNode,
		createdAt.Format(time.RFC3339Nano), snap.State)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(runID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Snapshot{}, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT sequence, node_id, next_node, created_at, state
		FROM snapshots
		WHERE run_id = ?
		ORDER BY sequence DESC
		LIMIT 1
	`, runID)

	snap, err := scanSnapshot(row, runID)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// History implements Store.
func (s *SQLiteStore) History(runID string) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT sequence, node_id, next_node, created_at, state
		FROM snapshots
		WHERE run_id = ?
		ORDER BY sequence
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows, runID)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// Purge implements Store.
func (s *SQLiteStore) Purge(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("purge snapshots: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner, runID string) (Snapshot, error) {
	var snap Snapshot
	var createdAt string
	if err := sc.Scan(&snap.Sequence, &snap.NodeID, &snap.NextNode, &createdAt, &snap.State); err != nil {
		return Snapshot{}, err
	}
	snap.RunID = runID
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return snap, nil
}
