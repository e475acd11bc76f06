package store

// SetMeta writes a single bookkeeping value (e.g. the active cache version).
func (db *DB) SetMeta(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return storageErr("set meta", err)
}

// GetMeta returns a bookkeeping value, or "" when absent.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", storageErr("get meta", err)
	}
	return value, nil
}
