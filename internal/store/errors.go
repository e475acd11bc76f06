package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// StorageError wraps any failure of the durable local store: quota
// exhaustion, corruption, denied access, or a locked database. Callers
// must treat the store as potentially unavailable and degrade to
// network-only behavior instead of crashing.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err in a StorageError unless it is nil.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
