// Package database opens the SQLite file backing the application and keeps
// its schema current. The schema is defined entirely by the embedded goose
// migrations, so a deployment needs nothing beyond a writable path, and
// tests get a fully migrated database from ":memory:".
package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// dsnPragmas enables WAL for concurrent readers, a busy timeout so writers
// queue instead of failing, and foreign keys for the user/post/comment
// cascade deletes the schema relies on.
const dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Open opens the database at path and applies any pending migrations.
// The returned handle is ready for the stores.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// migrate brings the schema up to the newest embedded migration. goose
// tracks applied versions in its own table, so reopening an existing
// database only runs what is missing.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
