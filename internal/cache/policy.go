package cache

import (
	"net/http"
	"strings"
)

// Strategy selects how an intercepted request is served.
type Strategy int

const (
	// Bypass passes the request straight to the network. Mutating
	// requests are never cached; on connectivity failure they become
	// the pending operation queue's concern.
	Bypass Strategy = iota
	// NetworkFirst tries the network and falls back to the most recent
	// cached copy. Dynamic API resources.
	NetworkFirst
	// Navigation is NetworkFirst with the offline page as a final
	// fallback. Full-page loads.
	Navigation
	// StaleWhileRevalidate serves the cached copy immediately and
	// refreshes it in the background. Static assets.
	StaleWhileRevalidate
)

func (s Strategy) String() string {
	switch s {
	case Bypass:
		return "bypass"
	case NetworkFirst:
		return "network-first"
	case Navigation:
		return "navigation"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	}
	return "unknown"
}

// Classifier buckets requests into cache strategies by method, URL
// prefix, and Accept header.
type Classifier struct {
	dynamicPrefixes []string
}

// NewClassifier creates a classifier with the configured dynamic API
// path prefixes.
func NewClassifier(dynamicPrefixes []string) *Classifier {
	return &Classifier{dynamicPrefixes: dynamicPrefixes}
}

// Classify returns the strategy for a request. Only GET and HEAD are
// read requests; everything else bypasses caching entirely.
func (c *Classifier) Classify(req *http.Request) Strategy {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return Bypass
	}
	path := req.URL.Path
	for _, prefix := range c.dynamicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return NetworkFirst
		}
	}
	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		return Navigation
	}
	return StaleWhileRevalidate
}
