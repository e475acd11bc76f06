// Package api exposes the daemon control surface over the profile's
// Unix socket: outbox access, cached reads, the proxied request path,
// notifications, the install banner, and daemon status.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lucasdpb/satchel/internal/lifecycle"
	"github.com/lucasdpb/satchel/internal/metrics"
	"github.com/lucasdpb/satchel/internal/notify"
	"github.com/lucasdpb/satchel/internal/outbox"
	"github.com/lucasdpb/satchel/internal/prefs"
	"github.com/lucasdpb/satchel/internal/status"
	"github.com/lucasdpb/satchel/internal/store"
)

const maxBodySize = 10 << 20 // 10MB

// Deps carries everything the control API needs. Logger and Metrics are
// required; the rest maps one component per route group.
type Deps struct {
	DB         *store.DB
	Queue      *outbox.Queue
	Dispatcher *notify.Dispatcher
	Prefs      *prefs.Prefs
	Machine    *status.Machine
	Installer  *lifecycle.Installer
	// Proxy is the cache engine transport; /v1/proxy requests go to the
	// application API through it.
	Proxy   http.RoundTripper
	BaseURL string
	Metrics *metrics.Recorder
	Logger  *zap.Logger
}

// NewHandler builds the control API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Route("/v1", func(r chi.Router) {
		r.Post("/outbox", handleEnqueue(deps))
		r.Get("/outbox", handleListPending(deps))
		r.Post("/outbox/replay", handleReplay(deps))

		r.Get("/records/{collection}", handleGetRecords(deps))
		r.Put("/records/{collection}", handlePutRecords(deps))

		r.Handle("/proxy/*", handleProxy(deps))

		r.Post("/notifications", handleSendNotification(deps))
		r.Get("/notifications", handleListNotifications(deps))
		r.Post("/notifications/{id}/read", handleMarkRead(deps))
		r.Post("/notifications/{id}/interact", handleInteract(deps))
		r.Get("/notifications/settings", handleGetNotificationSettings(deps))
		r.Post("/notifications/settings", handleSetNotificationSettings(deps))

		r.Get("/banner", handleGetBanner(deps))
		r.Post("/banner/dismiss", handleDismissBanner(deps))

		r.Get("/status", handleStatus(deps))
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	return r
}

// EnqueueRequest is a write operation to queue for later delivery.
type EnqueueRequest struct {
	Method  string            `json:"method"`
	Target  string            `json:"target"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

type enqueueResponse struct {
	OperationID string `json:"operation_id"`
}

func handleEnqueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		var req EnqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Method == "" || req.Target == "" {
			httpError(w, http.StatusBadRequest, "method and target are required")
			return
		}
		opID, err := deps.Queue.Enqueue(r.Context(), req.Method, req.Target, req.Headers, req.Body)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "enqueue failed: %v", err)
			return
		}
		respondJSON(w, http.StatusAccepted, enqueueResponse{OperationID: opID})
	}
}

func handleListPending(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ops, err := deps.Queue.Pending()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "list pending: %v", err)
			return
		}
		type pendingOp struct {
			OperationID string `json:"operation_id"`
			Method      string `json:"method"`
			Target      string `json:"target"`
			CreatedAt   int64  `json:"created_at"`
		}
		out := make([]pendingOp, 0, len(ops))
		for _, op := range ops {
			out = append(out, pendingOp{
				OperationID: op.OpID,
				Method:      op.Method,
				Target:      op.Target,
				CreatedAt:   op.CreatedAt,
			})
		}
		respondJSON(w, http.StatusOK, map[string]any{"operations": out})
	}
}

func handleReplay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Queue.Replay(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "replay failed: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

func handleGetRecords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")
		records, err := deps.DB.RecordsByCollection(collection)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "read records: %v", err)
			return
		}
		payloads := make([]json.RawMessage, 0, len(records))
		for _, rec := range records {
			payloads = append(payloads, json.RawMessage(rec.Payload))
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"collection": collection,
			"records":    payloads,
		})
	}
}

// PutRecordsRequest caches a batch of records for offline reads.
type PutRecordsRequest struct {
	Records []struct {
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	} `json:"records"`
}

func handlePutRecords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		var req PutRecordsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		records := make([]*store.CachedRecord, 0, len(req.Records))
		for _, in := range req.Records {
			if in.ID == "" {
				httpError(w, http.StatusBadRequest, "record id is required")
				return
			}
			records = append(records, &store.CachedRecord{
				RecordID:     in.ID,
				CollectionID: collection,
				Payload:      []byte(in.Payload),
			})
		}
		if err := deps.DB.PutRecords(records); err != nil {
			httpError(w, http.StatusServiceUnavailable, "cache records: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"cached": len(records)})
	}
}

// handleProxy forwards the request to the application API through the
// cache engine, so callers get policy handling (cache fallback, offline
// page, write queueing) without talking to the engine directly.
func handleProxy(deps Deps) http.HandlerFunc {
	client := &http.Client{Transport: deps.Proxy}
	return func(w http.ResponseWriter, r *http.Request) {
		path := "/" + chi.URLParam(r, "*")
		url := deps.BaseURL + path
		if r.URL.RawQuery != "" {
			url += "?" + r.URL.RawQuery
		}

		out, err := http.NewRequestWithContext(r.Context(), r.Method, url, r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid proxy request: %v", err)
			return
		}
		out.Header = r.Header.Clone()

		resp, err := client.Do(out)
		if err != nil {
			httpError(w, http.StatusBadGateway, "upstream unreachable: %v", err)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		for k, vals := range resp.Header {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			deps.Logger.Warn("proxy response write failed", zap.Error(err))
		}
	}
}

func handleSendNotification(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "read body: %v", err)
			return
		}
		n, err := deps.Dispatcher.ShowRaw(r.Context(), raw)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "show notification: %v", err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"id": n.NotifID})
	}
}

func handleListNotifications(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		onlyUnread := r.URL.Query().Get("unread") == "true"
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid limit %q", v)
				return
			}
			limit = n
		}
		notifs, err := deps.Dispatcher.List(onlyUnread, limit)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "list notifications: %v", err)
			return
		}
		unread, err := deps.Dispatcher.UnreadCount()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "count unread: %v", err)
			return
		}
		type notifOut struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Body      string `json:"body"`
			Tag       string `json:"tag,omitempty"`
			Target    string `json:"target,omitempty"`
			State     string `json:"state"`
			Read      bool   `json:"read"`
			CreatedAt int64  `json:"created_at"`
		}
		out := make([]notifOut, 0, len(notifs))
		for _, n := range notifs {
			out = append(out, notifOut{
				ID: n.NotifID, Title: n.Title, Body: n.Body,
				Tag: n.Tag, Target: n.Target, State: n.State,
				Read: n.Read, CreatedAt: n.CreatedAt,
			})
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"notifications": out,
			"unread_count":  unread,
		})
	}
}

func handleMarkRead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Dispatcher.MarkRead(chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusServiceUnavailable, "mark read: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func handleInteract(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := deps.Dispatcher.Interact(r.Context(), chi.URLParam(r, "id"), req.Action); err != nil {
			httpError(w, http.StatusServiceUnavailable, "interact: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// NotificationSettings carries the notification permission state, one
// of "default", "granted" or "denied".
type NotificationSettings struct {
	Enabled string `json:"enabled"`
}

func handleGetNotificationSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, NotificationSettings{
			Enabled: deps.Prefs.NotificationsEnabled(),
		})
	}
}

func handleSetNotificationSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NotificationSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		switch req.Enabled {
		case prefs.NotificationsDefault, prefs.NotificationsGranted, prefs.NotificationsDenied:
		default:
			httpError(w, http.StatusBadRequest, "enabled must be one of default, granted, denied")
			return
		}
		if err := deps.Prefs.SetNotificationsEnabled(req.Enabled); err != nil {
			httpError(w, http.StatusInternalServerError, "save settings: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, NotificationSettings{Enabled: req.Enabled})
	}
}

func handleGetBanner(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"show": deps.Prefs.ShouldShowBanner(time.Now()),
		})
	}
}

func handleDismissBanner(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Prefs.DismissBanner(time.Now()); err != nil {
			httpError(w, http.StatusInternalServerError, "dismiss banner: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// StatusResponse is the daemon status snapshot served at /v1/status.
type StatusResponse struct {
	State         string `json:"state"`
	Online        bool   `json:"online"`
	QueueDepth    int    `json:"queue_depth"`
	ActiveVersion string `json:"active_version"`
	UnreadCount   int    `json:"unread_count"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depth, err := deps.Queue.Depth()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "queue depth: %v", err)
			return
		}
		version, err := deps.Installer.ActiveVersion()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "active version: %v", err)
			return
		}
		unread, err := deps.Dispatcher.UnreadCount()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "count unread: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, StatusResponse{
			State:         string(deps.Machine.Current()),
			Online:        !deps.Machine.Offline(),
			QueueDepth:    depth,
			ActiveVersion: version,
			UnreadCount:   unread,
		})
	}
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
