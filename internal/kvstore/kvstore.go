// Package kvstore provides a keyed value store with per-entry TTL, backed by
// the application database so entries survive restarts and are shared across
// processes. It backs login rate limiting and remember-me tokens.
package kvstore

import (
	"database/sql"
	"fmt"
	"time"
)

// Store is the put/get/delete-with-TTL capability.
type Store interface {
	Put(key, value string, ttl time.Duration) error
	Get(key string) (string, bool, error)
	Delete(key string) error
	// Increment atomically bumps a counter key, initializing it with the
	// given TTL on first touch, and returns the new count. The TTL is not
	// extended on subsequent increments, giving fixed-window semantics.
	Increment(key string, ttl time.Duration) (int, error)
}

// DBStore implements Store on the kv_entries table.
type DBStore struct {
	db *sql.DB
}

func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Put(key, value string, ttl time.Duration) error {
	expiresAt := time.Now().UTC().Add(ttl)
	_, err := s.db.Exec(
		`INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("put kv entry: %w", err)
	}
	return nil
}

// Get returns the value for key, or ok=false if absent or expired.
func (s *DBStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM kv_entries WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv entry: %w", err)
	}
	return value, true, nil
}

func (s *DBStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete kv entry: %w", err)
	}
	return nil
}

func (s *DBStore) Increment(key string, ttl time.Duration) (int, error) {
	now := time.Now().UTC()

	// Expired rows count as absent: reset both value and window.
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ? AND expires_at <= ?`, key, now)
	if err != nil {
		return 0, fmt.Errorf("expire kv entry: %w", err)
	}

	var count int
	err = s.db.QueryRow(
		`INSERT INTO kv_entries (key, value, expires_at) VALUES (?, '1', ?)
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(kv_entries.value AS INTEGER) + 1 AS TEXT)
		 RETURNING CAST(value AS INTEGER)`,
		key, now.Add(ttl),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment kv entry: %w", err)
	}
	return count, nil
}

// Cleanup removes expired entries. Intended for a periodic background task.
func (s *DBStore) Cleanup() error {
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cleanup kv entries: %w", err)
	}
	return nil
}
