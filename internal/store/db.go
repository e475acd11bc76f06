package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the app-owned satchel.db.
// It is the durable local store behind the cache engine, the pending
// operation queue, and the notification dispatcher; no other component
// touches the records directly.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Opening is idempotent; Migrate creates missing collections and indexes.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("ping: %w", err)}
	}
	return &DB{db}, nil
}
