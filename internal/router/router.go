package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
	"github.com/QuickMythril/qortal-mcp-server/internal/tools"
)

const (
	readTimeout       = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second

	maxBodyBytes = 1 << 20

	// listToolsKey is the limiter key for tool listings.
	listToolsKey = "list_tools"

	RequestIDHeader = "X-Request-ID"
	serverName      = "qortal-mcp"
)

var (
	bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

	rateLimitedBody = []byte(`{"jsonrpc":"2.0","error":{"code":429,"message":"Rate limit exceeded"}}`)

	errRateLimited = errors.New("rate limit exceeded")
)

// ErrServerClosed is returned when the server is shutting down.
var ErrServerClosed = http.ErrServerClosed

// Gateway exposes the tool registry over plain HTTP and MCP.
type Gateway struct {
	tools   *tools.Registry
	limiter *backend.KeyedLimiter
	metrics *Metrics
	mcp     *mcp.Server
}

// NewGateway wires the registry behind the limiter. version is reported to
// MCP clients during initialization.
func NewGateway(reg *tools.Registry, limiter *backend.KeyedLimiter, metrics *Metrics, version string) *Gateway {
	g := &Gateway{tools: reg, limiter: limiter, metrics: metrics}

	g.mcp = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	for _, t := range reg.List() {
		g.mcp.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}, g.mcpTool(t.Name))
	}
	g.mcp.AddReceivingMiddleware(g.mcpRateLimit)
	return g
}

// Handler returns the routed handler wrapped in request middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", g.metrics.Handler())
	mux.HandleFunc("GET /tools", g.listTools)
	mux.HandleFunc("GET /tools/{name}", g.callTool)
	mux.HandleFunc("POST /tools/{name}", g.callTool)
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.mcp
	}, &mcp.StreamableHTTPOptions{Stateless: true}))

	return g.middleware(mux)
}

// NewRouter creates the HTTP server for the gateway.
func NewRouter(cfg backend.ServerConfig, g *Gateway) *http.Server {
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           g.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming MCP responses working through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// middleware tags each request with an id, a request-scoped logger and
// metrics.
func (g *Gateway) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)

		logger := log.With().Str("request_id", id).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		g.metrics.observeRequest(route, elapsed)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

func (g *Gateway) allow(tool string) bool {
	if g.limiter.Allow(tool) {
		return true
	}
	g.metrics.recordTool(tool, OutcomeRateLimited)
	log.Warn().Str("tool", tool).Msg("rate limited")
	return false
}

func (g *Gateway) listTools(w http.ResponseWriter, r *http.Request) {
	if !g.allow(listToolsKey) {
		writeRateLimited(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": g.tools.List()})
}

func (g *Gateway) callTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := g.tools.Get(name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown tool."})
		return
	}
	if !g.allow(name) {
		writeRateLimited(w)
		return
	}

	var args tools.Args
	if r.Method == http.MethodPost {
		buf := bufPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer bufPool.Put(buf)
		if _, err := io.Copy(buf, http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request body too large."})
			return
		}
		var err error
		if args, err = tools.DecodeArgs(buf.Bytes()); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Arguments must be a JSON object."})
			return
		}
	} else {
		args = tools.ArgsFromQuery(r.URL.Query())
	}

	result, err := g.tools.Call(r.Context(), name, args)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unexpected error."})
		return
	}
	g.record(r.Context(), name, result)
	writeJSON(w, http.StatusOK, result)
}

// record logs and counts one finished tool call, returning its outcome.
func (g *Gateway) record(ctx context.Context, name string, result any) string {
	logger := zerolog.Ctx(ctx)
	if msg, isErr := tools.ErrorMessage(result); isErr {
		g.metrics.recordTool(name, OutcomeError)
		logger.Warn().Str("tool", name).Str("error", msg).Msg("tool call failed")
		return OutcomeError
	}
	g.metrics.recordTool(name, OutcomeSuccess)
	logger.Info().Str("tool", name).Msg("tool call succeeded")
	return OutcomeSuccess
}

func (g *Gateway) mcpTool(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := tools.DecodeArgs(req.Params.Arguments)
		if err != nil {
			return textResult(`{"error":"Arguments must be a JSON object."}`, true), nil
		}
		result, err := g.tools.Call(ctx, name, args)
		if err != nil {
			return nil, err
		}
		outcome := g.record(ctx, name, result)
		data, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		return textResult(string(data), outcome == OutcomeError), nil
	}
}

// mcpRateLimit applies the per-tool limiter to MCP traffic. Unknown tools
// pass through so the SDK can reject them without creating buckets.
func (g *Gateway) mcpRateLimit(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		switch r := req.(type) {
		case *mcp.CallToolRequest:
			if _, ok := g.tools.Get(r.Params.Name); ok && !g.allow(r.Params.Name) {
				return textResult(string(rateLimitedBody), true), nil
			}
		case *mcp.ListToolsRequest:
			if !g.allow(listToolsKey) {
				return nil, errRateLimited
			}
		}
		return next(ctx, method, req)
	}
}

func textResult(text string, isErr bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isErr,
	}
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(rateLimitedBody)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encoding response")
		status = http.StatusInternalServerError
		data = []byte(`{"error":"Unexpected error."}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
