package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is reported when no profile exists under the given name.
var ErrNotFound = errors.New("profile not found")

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    name       TEXT PRIMARY KEY,
    snapshot   BLOB     NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_updated ON profiles(updated_at DESC);
`

// Store persists session snapshots in SQLite (pure Go driver, no CGo).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the profile database at the given path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("profile.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile.NewStore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts a snapshot under the given profile name.
func (s *Store) Save(ctx context.Context, name string, snap Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (name, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		name, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("profile.Save %q: %w", name, err)
	}
	return nil
}

// Load returns the snapshot stored under name.
func (s *Store) Load(ctx context.Context, name string) (Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM profiles WHERE name = ?`, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("profile.Load %q: %w", name, err)
	}
	return Decode(data)
}

// List returns profile names ordered by most recently updated.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM profiles ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("profile.List: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("profile.List: scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
