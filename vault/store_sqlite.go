// ABOUTME: SQLite-backed Storage for desktop and server deployments.
// ABOUTME: A single kv table; values arrive opaque from the manager.
package vault

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists bundle fields in a single SQLite table. It suits
// deployments without a platform keychain; the table adds no protection of
// its own, so anything sensitive should reach it already armored.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens/creates a SQLite database and runs migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS vault_items (
  k TEXT PRIMARY KEY,
  v TEXT NOT NULL
);
`)
	return err
}

// Get returns the value stored under key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM vault_items WHERE k = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO vault_items(k,v) VALUES(?,?)
ON CONFLICT(k) DO UPDATE SET v=excluded.v`, key, value)
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vault_items WHERE k = ?`, key)
	return err
}
