package backend

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Node is one upstream Qortal Core endpoint. Its identity is the normalized
// base URL; failure state is guarded by the owning Pool.
type Node struct {
	URL     string
	Primary bool

	lastFailure     time.Time
	lastHealthCheck time.Time
}

// NormalizeURL trims whitespace and trailing slashes so that equivalent
// configured URLs collapse to one identity.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// ErrClientClosed is returned for requests issued after Close.
var ErrClientClosed = errors.New("qortal client closed")

// closedTransport fails every request once the handle cache is closed.
type closedTransport struct{}

func (closedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, ErrClientClosed
}

// TransportFunc supplies the round-tripper for a node's handle. Nil means
// the default transport.
type TransportFunc func(nodeURL string) http.RoundTripper

// handleCache holds one resty client per node URL, created on first use.
type handleCache struct {
	mu        sync.Mutex
	clients   map[string]*resty.Client
	timeout   time.Duration
	transport TransportFunc
	closed    bool
}

func newHandleCache(timeout time.Duration, transport TransportFunc) *handleCache {
	return &handleCache{
		clients:   make(map[string]*resty.Client),
		timeout:   timeout,
		transport: transport,
	}
}

// get returns the handle for nodeURL, creating it if absent. Creation happens
// under the lock so two concurrent first uses share one handle. After close
// it returns an uncached handle whose requests fail with ErrClientClosed.
func (h *handleCache) get(nodeURL string) *resty.Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return h.newHandle(nodeURL).SetTransport(closedTransport{})
	}
	if c, ok := h.clients[nodeURL]; ok {
		return c
	}
	c := h.newHandle(nodeURL)
	if h.transport != nil {
		if rt := h.transport(nodeURL); rt != nil {
			c.SetTransport(rt)
		}
	}
	h.clients[nodeURL] = c
	return c
}

func (h *handleCache) newHandle(nodeURL string) *resty.Client {
	return resty.New().
		SetBaseURL(nodeURL).
		SetTimeout(h.timeout).
		SetHeader("Accept", "application/json")
}

func (h *handleCache) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// size reports how many handles have been created.
func (h *handleCache) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close releases every created handle exactly once; the cache is emptied
// and marked closed under the lock so a repeat call finds nothing to release.
func (h *handleCache) close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*resty.Client)
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.GetClient().CloseIdleConnections()
	}
}
