package outbox

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/lucasdpb/satchel/internal/store"
)

// HTTPSubmitter replays operations over plain HTTP, bypassing the cache
// engine entirely. Each submission carries the operation's idempotency
// key so the server can deduplicate duplicate replays after a crash.
type HTTPSubmitter struct {
	client *http.Client
}

// NewHTTPSubmitter creates a submitter. client may be nil, in which case
// http.DefaultClient is used.
func NewHTTPSubmitter(client *http.Client) *HTTPSubmitter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSubmitter{client: client}
}

// Submit forwards the operation payload verbatim to its original server
// endpoint. Only a 2xx response acknowledges receipt; anything else
// leaves the operation queued.
func (s *HTTPSubmitter) Submit(ctx context.Context, op *store.PendingOperation) error {
	req, err := http.NewRequestWithContext(ctx, op.Method, op.Target, bytes.NewReader(op.Body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range op.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Idempotency-Key", op.IdempotencyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server answered %d", resp.StatusCode)
	}
	return nil
}
