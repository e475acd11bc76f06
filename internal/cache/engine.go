package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lucasdpb/satchel/internal/metrics"
	"github.com/lucasdpb/satchel/internal/store"
	"go.uber.org/zap"
)

// Enqueuer redirects failed mutating requests into the pending operation
// queue instead of failing them outright.
type Enqueuer interface {
	Enqueue(ctx context.Context, method, target string, headers map[string]string, body []byte) (opID string, err error)
}

// Engine intercepts outbound requests and applies one of three cache
// strategies based on request classification. It implements
// http.RoundTripper so it layers in front of any HTTP client.
type Engine struct {
	db         *store.DB
	next       http.RoundTripper
	classifier *Classifier
	queue      Enqueuer
	logger     *zap.Logger
	rec        *metrics.Recorder

	version     string
	offlinePage string

	// wg tracks in-flight background revalidations so shutdown does not
	// silently lose cache writes.
	wg sync.WaitGroup
}

// NewEngine creates a cache engine over the given transport. next may be
// nil, in which case http.DefaultTransport is used. queue may be nil to
// disable write redirection.
func NewEngine(db *store.DB, next http.RoundTripper, classifier *Classifier, queue Enqueuer, version, offlinePage string, logger *zap.Logger, rec *metrics.Recorder) *Engine {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Engine{
		db:          db,
		next:        next,
		classifier:  classifier,
		queue:       queue,
		logger:      logger,
		rec:         rec,
		version:     version,
		offlinePage: offlinePage,
	}
}

// Version returns the active cache version.
func (e *Engine) Version() string { return e.version }

// Wait blocks until all background revalidations have settled.
func (e *Engine) Wait() { e.wg.Wait() }

// RoundTrip applies the classified strategy to one request.
func (e *Engine) RoundTrip(req *http.Request) (*http.Response, error) {
	strategy := e.classifier.Classify(req)
	e.rec.ObserveRequest(strategy.String())

	switch strategy {
	case NetworkFirst:
		return e.networkFirst(req, DynamicPartition(e.version), false)
	case Navigation:
		return e.networkFirst(req, DynamicPartition(e.version), true)
	case StaleWhileRevalidate:
		return e.staleWhileRevalidate(req)
	default:
		return e.bypass(req)
	}
}

// bypass forwards a mutating request untouched. A connectivity failure
// redirects it into the pending operation queue and answers 202 with the
// assigned operation id; the application trusts eventual replay.
func (e *Engine) bypass(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := e.next.RoundTrip(req)
	if err == nil || e.queue == nil {
		return resp, err
	}
	if req.Context().Err() != nil {
		// Caller gave up, not a connectivity failure: replaying an
		// aborted mutation later would resurrect it.
		return nil, err
	}

	headers := flattenHeader(req.Header)
	opID, qerr := e.queue.Enqueue(req.Context(), req.Method, req.URL.String(), headers, body)
	if qerr != nil {
		// Store unavailable: surface the original network failure.
		e.logger.Error("failed to queue operation", zap.Error(qerr), zap.String("target", req.URL.String()))
		return nil, err
	}

	e.logger.Info("operation queued for replay",
		zap.String("op_id", opID),
		zap.String("method", req.Method),
		zap.String("target", req.URL.String()))

	payload, _ := json.Marshal(map[string]any{
		"queued":       true,
		"operation_id": opID,
	})
	return synthesize(req, http.StatusAccepted, http.Header{"Content-Type": []string{"application/json"}}, payload), nil
}

// networkFirst tries the network, persisting successful responses, and
// falls back to the most recent cached copy. With pageFallback set, a
// total miss is answered with the offline page from the static partition.
func (e *Engine) networkFirst(req *http.Request, partition string, pageFallback bool) (*http.Response, error) {
	key := requestKey(req)

	resp, err := e.next.RoundTrip(req)
	if err == nil {
		return e.capture(req, resp, partition, key), nil
	}

	entry, lerr := e.db.GetResponse(partition, key)
	if lerr != nil {
		// Degrade to network-only: report the network failure.
		e.logger.Warn("cache lookup failed", zap.Error(lerr), zap.String("key", key))
		e.rec.ObserveCacheLookup(partition, metrics.LookupError)
		return nil, err
	}
	if entry != nil {
		e.rec.ObserveCacheLookup(partition, metrics.LookupHit)
		e.logger.Info("served from cache fallback", zap.String("key", key))
		return cachedResponse(req, entry), nil
	}
	e.rec.ObserveCacheLookup(partition, metrics.LookupMiss)

	if pageFallback && e.offlinePage != "" {
		page, perr := e.db.GetResponse(StaticPartition(e.version), Key(http.MethodGet, e.offlinePage))
		if perr == nil && page != nil {
			e.logger.Info("served offline page", zap.String("url", req.URL.String()))
			return cachedResponse(req, page), nil
		}
	}

	// No synthetic response: the caller sees the failure.
	return nil, err
}

// staleWhileRevalidate returns the cached copy immediately and refreshes
// it in the background; the caller never waits on the refresh. A miss
// degrades to network-first into the static partition.
func (e *Engine) staleWhileRevalidate(req *http.Request) (*http.Response, error) {
	partition := StaticPartition(e.version)
	key := requestKey(req)

	entry, err := e.db.GetResponse(partition, key)
	if err != nil {
		e.logger.Warn("cache lookup failed", zap.Error(err), zap.String("key", key))
		e.rec.ObserveCacheLookup(partition, metrics.LookupError)
		return e.next.RoundTrip(req)
	}
	if entry == nil {
		e.rec.ObserveCacheLookup(partition, metrics.LookupMiss)
		return e.networkFirst(req, partition, false)
	}

	e.rec.ObserveCacheLookup(partition, metrics.LookupHit)
	e.revalidate(req, partition, key)
	return cachedResponse(req, entry), nil
}

// revalidate refreshes a cache entry without blocking the caller.
// Failures are swallowed and logged; only the next read observes the
// refreshed bytes.
func (e *Engine) revalidate(req *http.Request, partition, key string) {
	clone := req.Clone(context.WithoutCancel(req.Context()))
	clone.Body = nil

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		resp, err := e.next.RoundTrip(clone)
		if err != nil {
			e.logger.Debug("background refresh failed", zap.Error(err), zap.String("key", key))
			return
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			e.logger.Debug("background refresh read failed", zap.Error(err), zap.String("key", key))
			return
		}
		if !isSuccess(resp.StatusCode) {
			return
		}
		e.persist(clone, resp, body, partition, key)
	}()
}

// capture persists a successful live response and hands it back with the
// body restored for the caller.
func (e *Engine) capture(req *http.Request, resp *http.Response, partition, key string) *http.Response {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		e.logger.Warn("failed to read response body", zap.Error(err), zap.String("key", key))
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp
	}
	if isSuccess(resp.StatusCode) {
		e.persist(req, resp, body, partition, key)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp
}

func (e *Engine) persist(req *http.Request, resp *http.Response, body []byte, partition, key string) {
	err := e.db.PutResponse(&store.CachedResponse{
		Partition:  partition,
		CacheKey:   key,
		URL:        req.URL.String(),
		Status:     resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		CapturedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		// Bookkeeping path: swallow, the live response already won.
		e.logger.Warn("failed to persist response", zap.Error(err), zap.String("key", key))
		return
	}
	e.rec.ObserveCacheStore(partition)
}

// requestKey derives the cache key from request identity. Keys are
// host-independent (path plus query) so precached shell assets match
// regardless of which origin served them.
func requestKey(req *http.Request) string {
	return Key(req.Method, req.URL.RequestURI())
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// flattenHeader reduces request headers to the single-valued form the
// pending operation record stores.
func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// cachedResponse rebuilds an http.Response from a stored snapshot.
func cachedResponse(req *http.Request, entry *store.CachedResponse) *http.Response {
	hdr := entry.Headers.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	return synthesize(req, entry.Status, hdr, entry.Body)
}

func synthesize(req *http.Request, status int, hdr http.Header, body []byte) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        hdr,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
