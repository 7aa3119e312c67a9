package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
	"github.com/QuickMythril/qortal-mcp-server/internal/tools"
)

const testAddress = "QgB7zMfujQMLkisp1Lc8PBkVYs75sYB3vV"

type testEnv struct {
	server  *httptest.Server
	mock    *backend.MockHTTPClient
	metrics *Metrics
	limiter *backend.KeyedLimiter
}

func createTestEnv(t *testing.T, limits backend.RateLimitConfig) *testEnv {
	t.Helper()
	mock := backend.NewMockHTTPClient()
	mock.SetJSON("node/admin/status", 200, `{"height": 42, "isSynchronizing": false, "numberOfConnections": 5}`)

	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:   "http://node",
		Transport: mock.Transport(),
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	reg := tools.NewRegistry(client, backend.ToolLimits{MaxNames: 10, MaxNameDataPreview: 100})
	limiter := backend.NewKeyedLimiter(limits)
	metrics := NewMetrics()
	g := NewGateway(reg, limiter, metrics, "test")

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, mock: mock, metrics: metrics, limiter: limiter}
}

func generous() backend.RateLimitConfig {
	return backend.RateLimitConfig{PerSecond: 1000}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestHealth(t *testing.T) {
	env := createTestEnv(t, generous())

	resp, body := get(t, env.server.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Errorf("unexpected body %s", body)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	env := createTestEnv(t, generous())

	a, _ := get(t, env.server.URL+"/health")
	b, _ := get(t, env.server.URL+"/health")
	if a.Header.Get(RequestIDHeader) == b.Header.Get(RequestIDHeader) {
		t.Error("expected distinct request ids")
	}
}

func TestListTools(t *testing.T) {
	env := createTestEnv(t, generous())

	resp, body := get(t, env.server.URL+"/tools")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Tools) == 0 {
		t.Fatal("expected tools")
	}
	for _, tool := range out.Tools {
		if tool.InputSchema["type"] != "object" {
			t.Errorf("tool %s lacks an object schema", tool.Name)
		}
	}
}

func TestCallToolGetAndPost(t *testing.T) {
	env := createTestEnv(t, generous())

	resp, body := get(t, env.server.URL+"/tools/get_node_status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var status map[string]any
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}
	if status["height"] != float64(42) {
		t.Errorf("unexpected status %v", status)
	}

	resp, body = post(t, env.server.URL+"/tools/validate_address", `{"address": "`+testAddress+`"}`)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"isValid":true`)) {
		t.Errorf("unexpected response %d %s", resp.StatusCode, body)
	}

	_, body = get(t, env.server.URL+"/tools/validate_address?address=nope")
	if !bytes.Contains(body, []byte(`"isValid":false`)) {
		t.Errorf("unexpected query-string response %s", body)
	}
}

func TestCallToolErrors(t *testing.T) {
	env := createTestEnv(t, generous())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"unknown tool", http.MethodGet, "/tools/drop_tables", "", http.StatusNotFound, "Unknown tool."},
		{"bad json", http.MethodPost, "/tools/get_balance", "{", http.StatusBadRequest, "Arguments must be a JSON object."},
		{"in-band tool error", http.MethodPost, "/tools/get_balance", `{"address": "bad"}`, http.StatusOK, backend.MsgInvalidAddress},
		{"wrong method", http.MethodDelete, "/tools/get_balance", "", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, env.server.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.want != "" && !bytes.Contains(body, []byte(tt.want)) {
				t.Errorf("expected %q in %s", tt.want, body)
			}
		})
	}

	if got := testutil.ToFloat64(env.metrics.toolCalls.WithLabelValues("get_balance", OutcomeError)); got != 1 {
		t.Errorf("expected one recorded error, got %v", got)
	}
}

func TestRateLimitedTool(t *testing.T) {
	env := createTestEnv(t, backend.RateLimitConfig{
		PerSecond: 1000,
		PerKey:    map[string]float64{"get_node_status": 1},
	})

	resp, _ := get(t, env.server.URL+"/tools/get_node_status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first call should pass, got %d", resp.StatusCode)
	}

	resp, body := get(t, env.server.URL+"/tools/get_node_status")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if !bytes.Equal(body, rateLimitedBody) {
		t.Errorf("unexpected envelope %s", body)
	}

	// Other tools keep their own budget.
	resp, _ = get(t, env.server.URL+"/tools/validate_address?address=x")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("independent tool should pass, got %d", resp.StatusCode)
	}

	if got := testutil.ToFloat64(env.metrics.rateLimited.WithLabelValues("get_node_status")); got != 1 {
		t.Errorf("expected one rate-limited call, got %v", got)
	}
	if n := len(env.mock.GetRequests()); n != 1 {
		t.Errorf("denied call should not reach the node, saw %d requests", n)
	}
}

func TestUnknownToolCreatesNoBucket(t *testing.T) {
	env := createTestEnv(t, generous())

	for i := 0; i < 5; i++ {
		get(t, env.server.URL+"/tools/nope"+strings.Repeat("x", i))
	}
	if env.limiter.Len() != 0 {
		t.Errorf("expected no buckets, got %d", env.limiter.Len())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := createTestEnv(t, generous())
	get(t, env.server.URL+"/tools/get_node_status")

	resp, body := get(t, env.server.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, want := range []string{
		"qortal_mcp_requests_total",
		`qortal_mcp_tool_calls_total{outcome="success",tool="get_node_status"} 1`,
		"qortal_mcp_request_duration_seconds_bucket",
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func connectMCP(t *testing.T, env *testEnv) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "router-test", Version: "test"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: env.server.URL + "/mcp"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestMCPListAndCall(t *testing.T) {
	env := createTestEnv(t, generous())
	cs := connectMCP(t, env)
	ctx := context.Background()

	list, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	found := false
	for _, tool := range list.Tools {
		if tool.Name == "get_node_status" {
			found = true
		}
	}
	if !found {
		t.Fatal("get_node_status not advertised over MCP")
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_node_status", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error %+v", res.Content)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, `"height":42`) {
		t.Errorf("unexpected tool output %s", text)
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_balance", Arguments: map[string]any{"address": "bad"}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Error("expected in-band error to be flagged")
	}
}

func TestMCPRateLimit(t *testing.T) {
	env := createTestEnv(t, backend.RateLimitConfig{
		PerSecond: 1000,
		PerKey:    map[string]float64{"get_node_status": 1},
	})
	cs := connectMCP(t, env)
	ctx := context.Background()

	if _, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_node_status", Arguments: map[string]any{}}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_node_status", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content[0].(*mcp.TextContent).Text, "Rate limit exceeded") {
		t.Errorf("expected rate-limit result, got %+v", res)
	}
}
