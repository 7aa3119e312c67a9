package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// APIKeyHeader carries the privileged credential to the trusted node.
const APIKeyHeader = "X-API-KEY"

// Shape is the response form an operation expects on success.
type Shape int

const (
	// ShapeObject requires a JSON object.
	ShapeObject Shape = iota
	// ShapeAny accepts any JSON value: array, object or bare scalar.
	ShapeAny
	// ShapeText returns the body verbatim.
	ShapeText
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeAny:
		return "any"
	case ShapeText:
		return "text"
	default:
		return "unknown"
	}
}

// ClientConfig configures a Client. Pool mode is used only when
// AllowPublicFallback is set and more than one distinct URL results.
type ClientConfig struct {
	BaseURL             string
	Timeout             time.Duration
	APIKey              string
	AllowPublicFallback bool
	PublicNodes         []string
	Pool                PoolConfig
	Rules               []Rule
	Transport           TransportFunc
}

// Client issues read-only requests to Qortal Core, failing over across a
// node pool when one is configured.
type Client struct {
	baseURL    string
	apiKey     string
	handles    *handleCache
	pool       *Pool
	classifier *Classifier
}

// NewClient builds a client in single-node or pooled mode.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := NormalizeURL(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		handles:    newHandleCache(timeout, cfg.Transport),
		classifier: NewClassifier(cfg.Rules...),
	}

	if cfg.AllowPublicFallback {
		urls := append([]string{base}, cfg.PublicNodes...)
		pool, err := NewPool(urls, cfg.Pool, c.handles)
		if err != nil {
			return nil, err
		}
		if pool.Len() > 1 {
			c.pool = pool
		}
	}
	return c, nil
}

// Pool returns the node pool, or nil in single-node mode.
func (c *Client) Pool() *Pool {
	return c.pool
}

// BaseURL is the primary node URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases every node handle. It is safe to call more than once.
func (c *Client) Close() error {
	c.handles.close()
	return nil
}

// Get issues one logical GET and returns the decoded value: map[string]any
// for ShapeObject, any JSON value for ShapeAny (numbers as json.Number) and
// string for ShapeText.
func (c *Client) Get(ctx context.Context, path string, query url.Values, shape Shape) (any, error) {
	if c.handles.isClosed() {
		return nil, &APIError{Kind: KindNodeUnreachable, Message: MsgNodeUnreachable, Err: ErrClientClosed}
	}
	if c.pool == nil {
		return c.getSingle(ctx, path, query, shape)
	}
	return c.getPooled(ctx, path, query, shape)
}

func (c *Client) getSingle(ctx context.Context, path string, query url.Values, shape Shape) (any, error) {
	resp, err := c.send(ctx, c.baseURL, path, query, true)
	if err != nil {
		log.Warn().Err(err).Str("node", c.baseURL).Str("path", path).Msg("qortal node unreachable")
		return nil, &APIError{Kind: KindNodeUnreachable, Message: MsgNodeUnreachable, Err: err}
	}
	return c.process(resp.StatusCode(), resp.Body(), shape)
}

func (c *Client) getPooled(ctx context.Context, path string, query url.Values, shape Shape) (any, error) {
	var lastErr error
	for _, n := range c.pool.Candidates(ctx) {
		resp, err := c.send(ctx, n.URL, path, query, c.pool.IsTrusted(n.URL))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				// The caller gave up; that says nothing about the node.
				break
			}
			c.pool.ReportFailure(n.URL)
			log.Warn().Err(err).Str("node", n.URL).Str("path", path).Msg("node failed, trying next candidate")
			continue
		}

		// Any received response means the node is up, even when the body
		// carries a domain error.
		c.pool.ReportSuccess(n.URL)
		return c.process(resp.StatusCode(), resp.Body(), shape)
	}
	return nil, &APIError{Kind: KindNodeUnreachable, Message: MsgNodeUnreachable, Err: lastErr}
}

func (c *Client) send(ctx context.Context, nodeURL, path string, query url.Values, trusted bool) (*resty.Response, error) {
	req := c.handles.get(nodeURL).R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if trusted && c.apiKey != "" {
		req.SetHeader(APIKeyHeader, c.apiKey)
	}
	return req.Get(path)
}

// process turns one received response into a value or a classified error.
func (c *Client) process(status int, body []byte, shape Shape) (any, error) {
	if status == 401 {
		return nil, &APIError{Kind: KindUnauthorized, Message: MsgUnauthorized, StatusCode: status}
	}

	var (
		decoded   any
		decodeErr error
	)
	if shape != ShapeText || status >= 400 {
		decoded, decodeErr = decodeJSON(body)
	}

	if status >= 400 {
		var code, message string
		if m, ok := decoded.(map[string]any); ok && decodeErr == nil {
			code = errorCode(m["error"])
			message, _ = m["message"].(string)
		}
		return nil, c.classifier.Classify(code, message, status)
	}

	switch shape {
	case ShapeText:
		return string(body), nil
	case ShapeObject:
		if decodeErr != nil {
			return nil, unexpected(status, decodeErr)
		}
		m, ok := decoded.(map[string]any)
		if !ok {
			return nil, unexpected(status, errors.New("expected a JSON object"))
		}
		return m, nil
	default:
		if decodeErr != nil {
			return nil, unexpected(status, decodeErr)
		}
		return decoded, nil
	}
}

func unexpected(status int, cause error) *APIError {
	return &APIError{Kind: KindGeneric, Message: MsgUnexpectedResponse, StatusCode: status, Err: cause}
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// errorCode accepts the provider's "error" field as a string or an integer.
func errorCode(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
