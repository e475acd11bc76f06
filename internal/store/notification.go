package store

import "time"

// PutNotification persists a notification record.
func (db *DB) PutNotification(n *Notification) error {
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().UnixMilli()
	}
	if n.State == "" {
		n.State = NotifShown
	}
	_, err := db.Exec(`
		INSERT INTO notifications (notif_id, title, body, icon, tag, target, state, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notif_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			icon = excluded.icon,
			tag = excluded.tag,
			target = excluded.target,
			state = excluded.state`,
		n.NotifID, n.Title, n.Body, n.Icon, n.Tag, n.Target, n.State, n.Read, n.CreatedAt)
	return storageErr("put notification", err)
}

// GetNotification returns a notification by id, or nil when absent.
func (db *DB) GetNotification(notifID string) (*Notification, error) {
	row := db.QueryRow(`
		SELECT notif_id, title, body, icon, tag, target, state, read, created_at
		FROM notifications WHERE notif_id = ?`, notifID)

	var n Notification
	err := row.Scan(&n.NotifID, &n.Title, &n.Body, &n.Icon, &n.Tag, &n.Target, &n.State, &n.Read, &n.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, storageErr("get notification", err)
	}
	return &n, nil
}

// NotificationByTag returns the most recent shown notification with the
// given tag, or nil. Used for tag-based de-duplication.
func (db *DB) NotificationByTag(tag string) (*Notification, error) {
	if tag == "" {
		return nil, nil
	}
	row := db.QueryRow(`
		SELECT notif_id, title, body, icon, tag, target, state, read, created_at
		FROM notifications WHERE tag = ? AND state = ? ORDER BY created_at DESC LIMIT 1`,
		tag, NotifShown)

	var n Notification
	err := row.Scan(&n.NotifID, &n.Title, &n.Body, &n.Icon, &n.Tag, &n.Target, &n.State, &n.Read, &n.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, storageErr("notification by tag", err)
	}
	return &n, nil
}

// Notifications lists notifications newest first, optionally only unread.
func (db *DB) Notifications(onlyUnread bool, limit int) ([]Notification, error) {
	query := `
		SELECT notif_id, title, body, icon, tag, target, state, read, created_at
		FROM notifications`
	args := []any{}
	if onlyUnread {
		query += ` WHERE read = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, storageErr("list notifications", err)
	}
	defer func() { _ = rows.Close() }()

	var notifs []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.NotifID, &n.Title, &n.Body, &n.Icon, &n.Tag, &n.Target, &n.State, &n.Read, &n.CreatedAt); err != nil {
			return nil, storageErr("list notifications", err)
		}
		notifs = append(notifs, n)
	}
	return notifs, storageErr("list notifications", rows.Err())
}

// MarkNotificationRead flips the read flag on.
func (db *DB) MarkNotificationRead(notifID string) error {
	_, err := db.Exec(`UPDATE notifications SET read = 1 WHERE notif_id = ?`, notifID)
	return storageErr("mark notification read", err)
}

// CloseNotification moves a notification to the closed state. Closed is
// terminal; closing an already-closed notification is a no-op.
func (db *DB) CloseNotification(notifID string) error {
	_, err := db.Exec(`UPDATE notifications SET state = ? WHERE notif_id = ?`, NotifClosed, notifID)
	return storageErr("close notification", err)
}

// UnreadNotificationCount returns the number of unread notifications.
func (db *DB) UnreadNotificationCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE read = 0`).Scan(&n)
	return n, storageErr("count unread notifications", err)
}
