package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// PoolConfig controls candidate selection.
type PoolConfig struct {
	Cooldown           time.Duration
	HealthCheckPath    string
	HealthCheckTimeout time.Duration
}

// Pool tracks a prioritized list of nodes and their failure state. The
// first node is the primary and the only trusted one.
type Pool struct {
	mu      sync.Mutex
	nodes   []*Node
	byURL   map[string]*Node
	cfg     PoolConfig
	handles *handleCache
	sf      singleflight.Group
	now     func() time.Time
}

// NewPool builds a pool from urls, primary first. URLs are normalized and
// deduplicated; blanks are dropped.
func NewPool(urls []string, cfg PoolConfig, handles *handleCache) (*Pool, error) {
	p := &Pool{
		byURL:   make(map[string]*Node, len(urls)),
		cfg:     cfg,
		handles: handles,
		now:     time.Now,
	}
	for _, raw := range urls {
		u := NormalizeURL(raw)
		if u == "" {
			continue
		}
		if _, dup := p.byURL[u]; dup {
			continue
		}
		n := &Node{URL: u, Primary: len(p.nodes) == 0}
		p.nodes = append(p.nodes, n)
		p.byURL[u] = n
	}
	if len(p.nodes) == 0 {
		return nil, errors.New("node pool needs at least one URL")
	}
	if p.cfg.HealthCheckTimeout <= 0 {
		p.cfg.HealthCheckTimeout = 2 * time.Second
	}
	return p, nil
}

// Primary returns the trusted node.
func (p *Pool) Primary() *Node {
	return p.nodes[0]
}

// Len is the number of distinct nodes.
func (p *Pool) Len() int {
	return len(p.nodes)
}

// IsTrusted reports whether url is the primary node.
func (p *Pool) IsTrusted(url string) bool {
	return url == p.nodes[0].URL
}

// Candidates returns the nodes eligible for one logical request, in priority
// order. Nodes inside their cooldown window are skipped; nodes past cooldown
// are re-probed when a health-check path is configured. The primary is
// force-included when nothing else qualifies, so the result is never empty.
func (p *Pool) Candidates(ctx context.Context) []*Node {
	now := p.now()
	out := make([]*Node, 0, len(p.nodes))

	for _, n := range p.nodes {
		p.mu.Lock()
		failedAt := n.lastFailure
		p.mu.Unlock()

		if !failedAt.IsZero() {
			if now.Sub(failedAt) < p.cfg.Cooldown {
				continue
			}
			if p.cfg.HealthCheckPath != "" && !p.probe(ctx, n) {
				continue
			}
		}
		out = append(out, n)
	}

	if len(out) == 0 {
		out = append(out, p.nodes[0])
	}
	return out
}

// probe checks a previously failed node's health path. Concurrent probes of
// the same node share one request.
func (p *Pool) probe(ctx context.Context, n *Node) bool {
	v, _, _ := p.sf.Do(n.URL, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.HealthCheckTimeout)
		defer cancel()

		resp, err := p.handles.get(n.URL).R().SetContext(pctx).Get(p.cfg.HealthCheckPath)

		p.mu.Lock()
		defer p.mu.Unlock()
		n.lastHealthCheck = p.now()

		if err != nil {
			n.lastFailure = p.now()
			log.Debug().Err(err).Str("node", n.URL).Msg("health probe failed")
			return false, nil
		}
		if resp.StatusCode() >= 400 {
			n.lastFailure = p.now()
			log.Debug().Int("status", resp.StatusCode()).Str("node", n.URL).Msg("health probe rejected")
			return false, nil
		}
		n.lastFailure = time.Time{}
		log.Info().Str("node", n.URL).Msg("node recovered")
		return true, nil
	})
	ok, _ := v.(bool)
	return ok
}

// ReportFailure marks url as failed now. Unknown URLs are ignored.
func (p *Pool) ReportFailure(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.byURL[url]; ok {
		n.lastFailure = p.now()
	}
}

// ReportSuccess clears url's failure mark immediately, even inside cooldown.
func (p *Pool) ReportSuccess(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.byURL[url]; ok {
		n.lastFailure = time.Time{}
	}
}

// NodeState is a point-in-time copy of one node's bookkeeping.
type NodeState struct {
	URL             string    `json:"url"`
	Primary         bool      `json:"primary"`
	Healthy         bool      `json:"healthy"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
}

// Snapshot copies every node's state.
func (p *Pool) Snapshot() []NodeState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]NodeState, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = NodeState{
			URL:             n.URL,
			Primary:         n.Primary,
			Healthy:         n.lastFailure.IsZero(),
			LastFailure:     n.lastFailure,
			LastHealthCheck: n.lastHealthCheck,
		}
	}
	return out
}

// State returns the snapshot of one node.
func (p *Pool) State(url string) (NodeState, error) {
	for _, s := range p.Snapshot() {
		if s.URL == url {
			return s, nil
		}
	}
	return NodeState{}, fmt.Errorf("unknown node %q", url)
}
