package store

import (
	"encoding/json"
	"time"
)

// EnqueueOperation persists a pending operation. The caller assigns OpID
// and IdempotencyKey; CreatedAt defaults to now when unset.
func (db *DB) EnqueueOperation(op *PendingOperation) error {
	if op.CreatedAt == 0 {
		op.CreatedAt = time.Now().UnixMilli()
	}
	headers, err := json.Marshal(op.Headers)
	if err != nil {
		return storageErr("enqueue operation", err)
	}
	_, err = db.Exec(`
		INSERT INTO pending_operations (op_id, idempotency_key, method, target, headers, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.OpID, op.IdempotencyKey, op.Method, op.Target, string(headers), op.Body, op.CreatedAt)
	return storageErr("enqueue operation", err)
}

// PendingOperations returns all queued operations in enqueue order.
func (db *DB) PendingOperations() ([]PendingOperation, error) {
	rows, err := db.Query(`
		SELECT id, op_id, idempotency_key, method, target, headers, body, created_at
		FROM pending_operations ORDER BY id ASC`)
	if err != nil {
		return nil, storageErr("list operations", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []PendingOperation
	for rows.Next() {
		var op PendingOperation
		var headers string
		if err := rows.Scan(&op.ID, &op.OpID, &op.IdempotencyKey, &op.Method, &op.Target, &headers, &op.Body, &op.CreatedAt); err != nil {
			return nil, storageErr("list operations", err)
		}
		if err := json.Unmarshal([]byte(headers), &op.Headers); err != nil {
			return nil, storageErr("list operations", err)
		}
		ops = append(ops, op)
	}
	return ops, storageErr("list operations", rows.Err())
}

// DeleteOperation removes an operation after the server confirms receipt.
func (db *DB) DeleteOperation(opID string) error {
	_, err := db.Exec(`DELETE FROM pending_operations WHERE op_id = ?`, opID)
	return storageErr("delete operation", err)
}

// CountPendingOperations returns the current queue depth.
func (db *DB) CountPendingOperations() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pending_operations`).Scan(&n)
	return n, storageErr("count operations", err)
}
