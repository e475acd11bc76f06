package store

import "net/http"

// PendingOperation is a queued, not-yet-confirmed local mutation. The
// payload is opaque to the queue and forwarded verbatim on replay.
type PendingOperation struct {
	ID             int64
	OpID           string
	IdempotencyKey string
	Method         string
	Target         string
	Headers        map[string]string
	Body           []byte
	CreatedAt      int64
}

// CachedRecord is a locally mirrored server-side entity kept for offline
// reading, keyed by its unique id and indexed by owning collection.
type CachedRecord struct {
	RecordID     string
	CollectionID string
	Payload      []byte
	UpdatedAt    int64
}

// Notification is a local record of a shown or pending notification.
type Notification struct {
	NotifID   string
	Title     string
	Body      string
	Icon      string
	Tag       string
	Target    string
	State     string // shown, closed
	Read      bool
	CreatedAt int64
}

// Notification states. Once closed there are no further transitions.
const (
	NotifShown  = "shown"
	NotifClosed = "closed"
)

// CachedResponse is an immutable snapshot of a prior network response,
// keyed by request identity (method+URL) within its owning partition.
// Headers keep the full multi-valued form so replayed snapshots do not
// lose Set-Cookie or Vary fidelity.
type CachedResponse struct {
	Partition  string
	CacheKey   string
	URL        string
	Status     int
	Headers    http.Header
	Body       []byte
	CapturedAt int64
}
