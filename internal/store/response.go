package store

import (
	"encoding/json"
	"strings"
	"time"
)

// PutResponse stores a response snapshot, superseding any prior capture
// of the same key in the same partition.
func (db *DB) PutResponse(r *CachedResponse) error {
	if r.CapturedAt == 0 {
		r.CapturedAt = time.Now().UnixMilli()
	}
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return storageErr("put response", err)
	}
	_, err = db.Exec(`
		INSERT INTO cache_entries (partition_name, cache_key, url, status, headers, body, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(partition_name, cache_key) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			captured_at = excluded.captured_at`,
		r.Partition, r.CacheKey, r.URL, r.Status, string(headers), r.Body, r.CapturedAt)
	return storageErr("put response", err)
}

// GetResponse returns the snapshot for a key in a partition, or nil.
func (db *DB) GetResponse(partition, cacheKey string) (*CachedResponse, error) {
	row := db.QueryRow(`
		SELECT partition_name, cache_key, url, status, headers, body, captured_at
		FROM cache_entries WHERE partition_name = ? AND cache_key = ?`, partition, cacheKey)

	var r CachedResponse
	var headers string
	err := row.Scan(&r.Partition, &r.CacheKey, &r.URL, &r.Status, &headers, &r.Body, &r.CapturedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, storageErr("get response", err)
	}
	if err := json.Unmarshal([]byte(headers), &r.Headers); err != nil {
		return nil, storageErr("get response", err)
	}
	return &r, nil
}

// Partitions returns the distinct live partition names.
func (db *DB) Partitions() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT partition_name FROM cache_entries ORDER BY partition_name`)
	if err != nil {
		return nil, storageErr("list partitions", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageErr("list partitions", err)
		}
		names = append(names, name)
	}
	return names, storageErr("list partitions", rows.Err())
}

// DeletePartitionsExcept removes every cache entry whose partition is not
// in keep, in one transaction. This is the rotation step of activation;
// there is no per-entry expiry.
func (db *DB) DeletePartitionsExcept(keep []string) error {
	if len(keep) == 0 {
		_, err := db.Exec(`DELETE FROM cache_entries`)
		return storageErr("rotate partitions", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]any, len(keep))
	for i, k := range keep {
		args[i] = k
	}
	_, err := db.Exec(`DELETE FROM cache_entries WHERE partition_name NOT IN (`+placeholders+`)`, args...)
	return storageErr("rotate partitions", err)
}

// PartitionEntryCount returns the number of entries in a partition.
func (db *DB) PartitionEntryCount(partition string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE partition_name = ?`, partition).Scan(&n)
	return n, storageErr("count partition entries", err)
}
