// Package client talks to a running daemon over its Unix domain socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/lucasdpb/satchel/internal/api"
	"github.com/lucasdpb/satchel/internal/outbox"
)

// Client wraps the daemon's control API.
type Client struct {
	http *http.Client
}

// New returns a client dialing the daemon's Unix domain socket.
func New(socketPath string) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = buf
	}
	// The host is ignored; the transport always dials the socket.
	req, err := http.NewRequestWithContext(ctx, method, "http://satcheld"+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dial daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon answered %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Status returns the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var st api.StatusResponse
	if err := c.call(ctx, http.MethodGet, "/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// PendingOperation is one queued write as reported by the daemon.
type PendingOperation struct {
	OperationID string `json:"operation_id"`
	Method      string `json:"method"`
	Target      string `json:"target"`
	CreatedAt   int64  `json:"created_at"`
}

// Pending lists queued operations in replay order.
func (c *Client) Pending(ctx context.Context) ([]PendingOperation, error) {
	var out struct {
		Operations []PendingOperation `json:"operations"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/outbox", nil, &out); err != nil {
		return nil, err
	}
	return out.Operations, nil
}

// Enqueue queues a write operation for later delivery.
func (c *Client) Enqueue(ctx context.Context, req api.EnqueueRequest) (string, error) {
	var out struct {
		OperationID string `json:"operation_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/outbox", req, &out); err != nil {
		return "", err
	}
	return out.OperationID, nil
}

// Replay triggers an immediate queue replay and returns the report.
func (c *Client) Replay(ctx context.Context) (*outbox.ReplayReport, error) {
	var report outbox.ReplayReport
	if err := c.call(ctx, http.MethodPost, "/v1/outbox/replay", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Notification is one notification as reported by the daemon.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Tag       string `json:"tag,omitempty"`
	Target    string `json:"target,omitempty"`
	State     string `json:"state"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"created_at"`
}

// Notifications lists notifications, optionally only unread ones.
func (c *Client) Notifications(ctx context.Context, onlyUnread bool) ([]Notification, int, error) {
	path := "/v1/notifications"
	if onlyUnread {
		path += "?unread=true"
	}
	var out struct {
		Notifications []Notification `json:"notifications"`
		UnreadCount   int            `json:"unread_count"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Notifications, out.UnreadCount, nil
}

// Send issues a local notification from a raw payload.
func (c *Client) Send(ctx context.Context, payload json.RawMessage) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/notifications", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// MarkRead flags a notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/v1/notifications/"+id+"/read", nil, nil)
}

// NotificationSettings returns the stored notification permission.
func (c *Client) NotificationSettings(ctx context.Context) (string, error) {
	var out api.NotificationSettings
	if err := c.call(ctx, http.MethodGet, "/v1/notifications/settings", nil, &out); err != nil {
		return "", err
	}
	return out.Enabled, nil
}

// SetNotificationSettings stores the notification permission, one of
// "default", "granted" or "denied".
func (c *Client) SetNotificationSettings(ctx context.Context, enabled string) error {
	return c.call(ctx, http.MethodPost, "/v1/notifications/settings",
		api.NotificationSettings{Enabled: enabled}, nil)
}

// Banner reports whether the install banner may currently be shown.
func (c *Client) Banner(ctx context.Context) (bool, error) {
	var out struct {
		Show bool `json:"show"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/banner", nil, &out); err != nil {
		return false, err
	}
	return out.Show, nil
}

// DismissBanner records a banner dismissal, starting the cooldown.
func (c *Client) DismissBanner(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/v1/banner/dismiss", nil, nil)
}
