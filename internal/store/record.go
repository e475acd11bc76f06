package store

import "time"

// PutRecords upserts a batch of cached records in one transaction.
// Writes overwrite by record id, never append.
func (db *DB) PutRecords(records []*CachedRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return storageErr("put records", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, r := range records {
		updatedAt := r.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO cached_records (record_id, collection_id, payload, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(record_id) DO UPDATE SET
				collection_id = excluded.collection_id,
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
			r.RecordID, r.CollectionID, r.Payload, updatedAt); err != nil {
			return storageErr("put records", err)
		}
	}
	return storageErr("put records", tx.Commit())
}

// GetRecord returns a cached record by id, or nil when absent.
func (db *DB) GetRecord(recordID string) (*CachedRecord, error) {
	row := db.QueryRow(`
		SELECT record_id, collection_id, payload, updated_at
		FROM cached_records WHERE record_id = ?`, recordID)

	var r CachedRecord
	err := row.Scan(&r.RecordID, &r.CollectionID, &r.Payload, &r.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, storageErr("get record", err)
	}
	return &r, nil
}

// RecordsByCollection returns all records owned by a collection id,
// oldest first. This is the secondary-index lookup used for offline
// channel reads.
func (db *DB) RecordsByCollection(collectionID string) ([]CachedRecord, error) {
	rows, err := db.Query(`
		SELECT record_id, collection_id, payload, updated_at
		FROM cached_records WHERE collection_id = ? ORDER BY updated_at ASC, record_id ASC`, collectionID)
	if err != nil {
		return nil, storageErr("records by collection", err)
	}
	defer func() { _ = rows.Close() }()

	var records []CachedRecord
	for rows.Next() {
		var r CachedRecord
		if err := rows.Scan(&r.RecordID, &r.CollectionID, &r.Payload, &r.UpdatedAt); err != nil {
			return nil, storageErr("records by collection", err)
		}
		records = append(records, r)
	}
	return records, storageErr("records by collection", rows.Err())
}

// DeleteRecord removes a cached record by id.
func (db *DB) DeleteRecord(recordID string) error {
	_, err := db.Exec(`DELETE FROM cached_records WHERE record_id = ?`, recordID)
	return storageErr("delete record", err)
}
