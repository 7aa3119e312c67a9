package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func createTestPool(t *testing.T, cfg PoolConfig, urls ...string) (*Pool, *MockHTTPClient, *fakeClock) {
	t.Helper()
	mock := NewMockHTTPClient()
	pool, err := NewPool(urls, cfg, newHandleCache(time.Second, mock.Transport()))
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	clock := newFakeClock()
	pool.now = clock.Now
	return pool, mock, clock
}

func candidateURLs(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.URL
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewPoolNormalizesAndDedups(t *testing.T) {
	pool, _, _ := createTestPool(t, PoolConfig{}, "http://a/", " http://a ", "", "http://b//", "http://a")

	if pool.Len() != 2 {
		t.Fatalf("expected 2 distinct nodes, got %d", pool.Len())
	}
	if pool.Primary().URL != "http://a" || !pool.Primary().Primary {
		t.Errorf("expected http://a as primary, got %+v", pool.Primary())
	}
	if !pool.IsTrusted("http://a") || pool.IsTrusted("http://b") {
		t.Error("only the primary should be trusted")
	}
}

func TestNewPoolEmpty(t *testing.T) {
	if _, err := NewPool([]string{"", "  "}, PoolConfig{}, newHandleCache(time.Second, nil)); err == nil {
		t.Fatal("expected error for a pool with no URLs")
	}
}

func TestPoolCooldown(t *testing.T) {
	pool, _, clock := createTestPool(t, PoolConfig{Cooldown: 30 * time.Second}, "http://a", "http://b", "http://c")
	ctx := context.Background()

	pool.ReportFailure("http://b")
	if got := candidateURLs(pool.Candidates(ctx)); !equalStrings(got, []string{"http://a", "http://c"}) {
		t.Errorf("expected b skipped during cooldown, got %v", got)
	}

	clock.Advance(29 * time.Second)
	if got := candidateURLs(pool.Candidates(ctx)); len(got) != 2 {
		t.Errorf("expected b still skipped, got %v", got)
	}

	clock.Advance(time.Second)
	if got := candidateURLs(pool.Candidates(ctx)); !equalStrings(got, []string{"http://a", "http://b", "http://c"}) {
		t.Errorf("expected b eligible after cooldown, got %v", got)
	}
}

func TestPoolCandidatesNeverEmpty(t *testing.T) {
	pool, _, _ := createTestPool(t, PoolConfig{Cooldown: time.Minute}, "http://a", "http://b")

	pool.ReportFailure("http://a")
	pool.ReportFailure("http://b")

	got := candidateURLs(pool.Candidates(context.Background()))
	if !equalStrings(got, []string{"http://a"}) {
		t.Errorf("expected primary to be force-included, got %v", got)
	}
}

func TestPoolReportSuccessClearsCooldown(t *testing.T) {
	pool, _, _ := createTestPool(t, PoolConfig{Cooldown: time.Minute}, "http://a", "http://b")

	pool.ReportFailure("http://b")
	pool.ReportSuccess("http://b")

	state, err := pool.State("http://b")
	if err != nil {
		t.Fatal(err)
	}
	if !state.Healthy || !state.LastFailure.IsZero() {
		t.Errorf("expected b healthy after success, got %+v", state)
	}
	if got := pool.Candidates(context.Background()); len(got) != 2 {
		t.Errorf("expected both nodes eligible, got %v", candidateURLs(got))
	}

	// Unknown URLs are ignored.
	pool.ReportFailure("http://nowhere")
	pool.ReportSuccess("http://nowhere")
	if _, err := pool.State("http://nowhere"); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestPoolHealthProbe(t *testing.T) {
	cfg := PoolConfig{Cooldown: 10 * time.Second, HealthCheckPath: "/admin/status"}
	pool, mock, clock := createTestPool(t, cfg, "http://a", "http://b")
	ctx := context.Background()

	pool.ReportFailure("http://b")
	clock.Advance(11 * time.Second)

	mock.SetJSON("b/admin/status", http.StatusServiceUnavailable, `{}`)
	if got := candidateURLs(pool.Candidates(ctx)); !equalStrings(got, []string{"http://a"}) {
		t.Errorf("expected failed probe to exclude b, got %v", got)
	}
	state, _ := pool.State("http://b")
	if state.Healthy || !state.LastFailure.Equal(clock.Now()) {
		t.Errorf("expected failure refreshed by probe, got %+v", state)
	}
	if !state.LastHealthCheck.Equal(clock.Now()) {
		t.Errorf("expected health check time recorded, got %v", state.LastHealthCheck)
	}

	// The refreshed failure starts a new cooldown; no probe inside it.
	probes := len(mock.RequestsTo("b"))
	pool.Candidates(ctx)
	if len(mock.RequestsTo("b")) != probes {
		t.Error("expected no probe during the new cooldown")
	}

	clock.Advance(11 * time.Second)
	mock.SetJSON("b/admin/status", http.StatusOK, `{"isSynchronizing":false}`)
	if got := candidateURLs(pool.Candidates(ctx)); !equalStrings(got, []string{"http://a", "http://b"}) {
		t.Errorf("expected recovered b to be included, got %v", got)
	}
	state, _ = pool.State("http://b")
	if !state.Healthy {
		t.Errorf("expected b healthy after probe, got %+v", state)
	}
}

func TestPoolHealthProbeTransportError(t *testing.T) {
	cfg := PoolConfig{Cooldown: time.Second, HealthCheckPath: "/admin/status"}
	pool, mock, clock := createTestPool(t, cfg, "http://a", "http://b")

	mock.SetError("b", errors.New("connection refused"))
	pool.ReportFailure("http://b")
	clock.Advance(2 * time.Second)

	if got := candidateURLs(pool.Candidates(context.Background())); len(got) != 1 {
		t.Errorf("expected unreachable b to stay excluded, got %v", got)
	}
}

func TestPoolSnapshot(t *testing.T) {
	pool, _, _ := createTestPool(t, PoolConfig{Cooldown: time.Minute}, "http://a", "http://b")
	pool.ReportFailure("http://b")

	snap := pool.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 states, got %d", len(snap))
	}
	if !snap[0].Primary || !snap[0].Healthy {
		t.Errorf("unexpected primary state %+v", snap[0])
	}
	if snap[1].Primary || snap[1].Healthy {
		t.Errorf("unexpected fallback state %+v", snap[1])
	}
}

func TestPoolHealthProbeTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(slow.Close)

	cfg := PoolConfig{
		Cooldown:           10 * time.Second,
		HealthCheckPath:    "/admin/status",
		HealthCheckTimeout: 50 * time.Millisecond,
	}
	handles := newHandleCache(5*time.Second, nil)
	t.Cleanup(handles.close)
	pool, err := NewPool([]string{"http://primary", slow.URL}, cfg, handles)
	if err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	pool.now = clock.Now

	pool.ReportFailure(slow.URL)
	clock.Advance(11 * time.Second)

	start := time.Now()
	got := candidateURLs(pool.Candidates(context.Background()))
	if !equalStrings(got, []string{"http://primary"}) {
		t.Errorf("expected the slow node skipped, got %v", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected the probe to stop at its own timeout, took %v", elapsed)
	}
	state, _ := pool.State(slow.URL)
	if state.Healthy || !state.LastFailure.Equal(clock.Now()) {
		t.Errorf("expected a timed-out probe to refresh the failure, got %+v", state)
	}
}
