package tools

import (
	"context"
	"errors"
	"net/url"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

// API is the read-only node surface the tools use. *backend.Client
// implements it.
type API interface {
	NodeStatus(ctx context.Context) (map[string]any, error)
	NodeInfo(ctx context.Context) (map[string]any, error)
	NodeSummary(ctx context.Context) (map[string]any, error)
	NodeUptime(ctx context.Context) (string, error)
	BlockHeight(ctx context.Context) (int64, error)

	AddressInfo(ctx context.Context, address string) (map[string]any, error)
	AddressBalance(ctx context.Context, address string, assetID int64) (any, error)

	NamesByOwner(ctx context.Context, address string, page backend.Page) (any, error)
	NameInfo(ctx context.Context, name string) (map[string]any, error)
	PrimaryName(ctx context.Context, address string) (map[string]any, error)
	AllNames(ctx context.Context, after *int64, page backend.Page) (any, error)
	NamesForSale(ctx context.Context, page backend.Page) (any, error)

	BlockByHeight(ctx context.Context, height int64) (map[string]any, error)
	BlockBySignature(ctx context.Context, signature string) (map[string]any, error)
	LastBlock(ctx context.Context) (map[string]any, error)
	FirstBlock(ctx context.Context) (map[string]any, error)
	BlockAtTimestamp(ctx context.Context, ts int64) (map[string]any, error)
	BlockSummaries(ctx context.Context, start, end int64, count *int) (any, error)
	BlockRange(ctx context.Context, height int64, count int, reverse *bool) (any, error)

	TransactionBySignature(ctx context.Context, signature string) (map[string]any, error)
	SearchTransactions(ctx context.Context, q url.Values) (any, error)

	Assets(ctx context.Context, page backend.Page) (any, error)
	AssetInfo(ctx context.Context, assetID *int64, assetName string) (map[string]any, error)
	AssetBalances(ctx context.Context, q url.Values) (any, error)

	TradeOffers(ctx context.Context, foreignBlockchain string, page backend.Page) (any, error)
	SearchQDN(ctx context.Context, q url.Values) (any, error)

	Groups(ctx context.Context, page backend.Page) (any, error)
	Group(ctx context.Context, groupID int64) (map[string]any, error)
	GroupMembers(ctx context.Context, groupID int64, onlyAdmins bool, page backend.Page) (map[string]any, error)
	GroupsByOwner(ctx context.Context, address string) (any, error)
	GroupsByMember(ctx context.Context, address string) (any, error)

	ChatMessages(ctx context.Context, q url.Values) (any, error)
	ChatMessage(ctx context.Context, signature, encoding string) (map[string]any, error)
	CountChatMessages(ctx context.Context, q url.Values) (int64, error)
	ActiveChats(ctx context.Context, address string, q url.Values) (map[string]any, error)
}

// Handler runs one tool. The result is a JSON-encodable value; failures are
// reported in-band as {"error": message}.
type Handler func(ctx context.Context, args Args) any

// Tool describes one callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     Handler        `json:"-"`
}

// ErrUnknownTool is returned by Call for names that are not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Registry maps tool names to definitions.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry registers every built-in tool against api.
func NewRegistry(api API, limits backend.ToolLimits) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	s := &toolset{api: api, limits: limits}
	for _, t := range s.definitions() {
		r.tools[t.Name] = t
	}
	return r
}

// Get looks up a tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every tool sorted by name.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len is the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Call runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, args Args) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, ErrUnknownTool
	}
	if args == nil {
		args = Args{}
	}
	return t.Handler(ctx, args), nil
}

// ErrorMessage reports whether result is an in-band error and returns its
// message.
func ErrorMessage(result any) (string, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := m["error"].(string)
	return msg, ok
}

func errorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// failure maps err to a safe in-band error. Classified node errors already
// carry a user-safe message; anything else is logged and replaced.
func failure(err error, doing string) map[string]any {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		log.Debug().Str("kind", apiErr.Kind.String()).Msg(apiErr.Diagnostic())
		return errorResult(apiErr.Message)
	}
	log.Error().Err(err).Msgf("unexpected error while %s", doing)
	return errorResult("Unexpected error while " + doing + ".")
}

// unexpectedShape is returned when a node answers with the wrong JSON form.
func unexpectedShape() map[string]any {
	return errorResult(backend.MsgUnexpectedResponse)
}

// toolset binds tool handlers to their dependencies.
type toolset struct {
	api    API
	limits backend.ToolLimits
}
