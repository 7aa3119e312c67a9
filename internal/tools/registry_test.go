package tools

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"testing"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

const testHost = "node"

var testLimits = backend.ToolLimits{
	MaxNames:           5,
	MaxNameDataPreview: 20,
	MaxTradeOffers:     3,
	MaxQDNResults:      3,
	MaxBlocks:          3,
	MaxGroups:          3,
	MaxChatMessages:    3,
	MaxTransactions:    5,
}

func createTestRegistry(t *testing.T) (*Registry, *backend.MockHTTPClient) {
	t.Helper()
	mock := backend.NewMockHTTPClient()
	c, err := backend.NewClient(backend.ClientConfig{
		BaseURL:   "http://" + testHost,
		APIKey:    "secret",
		Transport: mock.Transport(),
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return NewRegistry(c, testLimits), mock
}

func call(t *testing.T, r *Registry, name string, args Args) any {
	t.Helper()
	out, err := r.Call(context.Background(), name, args)
	if err != nil {
		t.Fatalf("Call(%s): %v", name, err)
	}
	return out
}

func expectError(t *testing.T, result any, want string) {
	t.Helper()
	msg, ok := ErrorMessage(result)
	if !ok {
		t.Fatalf("expected error %q, got %#v", want, result)
	}
	if msg != want {
		t.Errorf("expected error %q, got %q", want, msg)
	}
}

func asMap(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %#v", v)
	}
	if msg, isErr := ErrorMessage(m); isErr {
		t.Fatalf("unexpected error result %q", msg)
	}
	return m
}

func asList(t *testing.T, v any) []map[string]any {
	t.Helper()
	l, ok := v.([]map[string]any)
	if !ok {
		t.Fatalf("expected list, got %#v", v)
	}
	return l
}

func lastQuery(t *testing.T, mock *backend.MockHTTPClient) url.Values {
	t.Helper()
	reqs := mock.GetRequests()
	if len(reqs) == 0 {
		t.Fatal("no request sent")
	}
	q, err := url.ParseQuery(reqs[len(reqs)-1].Query)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestRegistryList(t *testing.T) {
	r, _ := createTestRegistry(t)

	tools := r.List()
	if len(tools) != r.Len() {
		t.Fatalf("List returned %d tools, Len is %d", len(tools), r.Len())
	}
	if !sort.SliceIsSorted(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name }) {
		t.Error("expected tools sorted by name")
	}

	for _, name := range []string{
		"validate_address", "get_node_status", "get_node_info", "get_node_summary",
		"get_node_uptime", "get_block_height", "get_account_overview", "get_balance",
		"get_names_by_address", "get_name_info", "get_primary_name", "list_names_for_sale",
		"get_block_by_height", "list_block_summaries", "list_trade_offers", "search_qdn",
		"list_groups", "get_group", "get_group_members", "count_chat_messages",
	} {
		tool, ok := r.Get(name)
		if !ok {
			t.Errorf("tool %s not registered", name)
			continue
		}
		if tool.Description == "" || tool.InputSchema["type"] != "object" {
			t.Errorf("tool %s has incomplete definition", name)
		}
	}
}

func TestRegistrySchemas(t *testing.T) {
	r, _ := createTestRegistry(t)

	tool, _ := r.Get("get_balance")
	props := tool.InputSchema["properties"].(map[string]any)
	if _, ok := props["asset_id"]; !ok {
		t.Error("expected asset_id property")
	}
	required := tool.InputSchema["required"].([]string)
	if len(required) != 1 || required[0] != "address" {
		t.Errorf("expected address required, got %v", required)
	}

	tool, _ = r.Get("get_node_status")
	if _, ok := tool.InputSchema["required"]; ok {
		t.Error("argument-less tool should not list required properties")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r, mock := createTestRegistry(t)

	_, err := r.Call(context.Background(), "drop_tables", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
	if len(mock.GetRequests()) != 0 {
		t.Error("unknown tool should not reach the node")
	}
}

func TestNilArgs(t *testing.T) {
	r, _ := createTestRegistry(t)
	out := asMap(t, call(t, r, "validate_address", nil))
	if out["isValid"] != false {
		t.Errorf("expected isValid=false, got %v", out["isValid"])
	}
}

func TestFailureMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"classified", backend.ErrUnauthorized, backend.MsgUnauthorized},
		{"unclassified", errors.New("socket on fire"), "Unexpected error while testing."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, failure(tt.err, "testing"), tt.want)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	if _, ok := ErrorMessage([]any{}); ok {
		t.Error("list is not an error")
	}
	if _, ok := ErrorMessage(map[string]any{"height": 1}); ok {
		t.Error("plain object is not an error")
	}
}
