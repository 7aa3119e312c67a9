package backend

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// MockHTTPClient is a scripted http.RoundTripper for tests. Responses are
// looked up by host+path first and then by host alone.
type MockHTTPClient struct {
	mu         sync.RWMutex
	requests   []MockRequest
	responses  map[string]MockResponse
	idleClosed int
}

// MockRequest represents a captured HTTP request
type MockRequest struct {
	Method  string
	Host    string
	Path    string
	Query   string
	Headers http.Header
}

// MockResponse represents a mock HTTP response. A non-nil Error simulates a
// transport failure.
type MockResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Error      error
}

// NewMockHTTPClient creates a new mock HTTP client
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		responses: make(map[string]MockResponse),
	}
}

// SetResponse scripts the response for key, which is either "host" or
// "host/path".
func (m *MockHTTPClient) SetResponse(key string, response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = response
}

// SetJSON scripts a JSON body with status for key.
func (m *MockHTTPClient) SetJSON(key string, status int, body string) {
	m.SetResponse(key, MockResponse{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	})
}

// SetError scripts a transport failure for key.
func (m *MockHTTPClient) SetError(key string, err error) {
	m.SetResponse(key, MockResponse{Error: err})
}

// GetRequests returns all captured requests
func (m *MockHTTPClient) GetRequests() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	requests := make([]MockRequest, len(m.requests))
	copy(requests, m.requests)
	return requests
}

// RequestsTo returns the captured requests sent to host.
func (m *MockHTTPClient) RequestsTo(host string) []MockRequest {
	var out []MockRequest
	for _, r := range m.GetRequests() {
		if r.Host == host {
			out = append(out, r)
		}
	}
	return out
}

// ClearRequests clears all captured requests
func (m *MockHTTPClient) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// IdleClosed counts CloseIdleConnections calls.
func (m *MockHTTPClient) IdleClosed() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idleClosed
}

// CloseIdleConnections is called by http.Client when a handle is released.
func (m *MockHTTPClient) CloseIdleConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleClosed++
}

// Transport returns a TransportFunc that routes every node through m.
func (m *MockHTTPClient) Transport() TransportFunc {
	return func(string) http.RoundTripper { return m }
}

// RoundTrip implements the http.RoundTripper interface
func (m *MockHTTPClient) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{
		Method:  req.Method,
		Host:    req.URL.Host,
		Path:    req.URL.Path,
		Query:   req.URL.RawQuery,
		Headers: req.Header.Clone(),
	})
	response, exists := m.responses[req.URL.Host+req.URL.Path]
	if !exists {
		response, exists = m.responses[req.URL.Host]
	}
	m.mu.Unlock()

	if !exists {
		response = MockResponse{
			StatusCode: http.StatusNotFound,
			Headers:    http.Header{"Content-Type": []string{"application/json"}},
			Body:       []byte(`{"error":"NOT_SCRIPTED"}`),
		}
	}
	if response.Error != nil {
		return nil, response.Error
	}
	headers := response.Headers
	if headers == nil {
		headers = http.Header{}
	}

	return &http.Response{
		StatusCode: response.StatusCode,
		Header:     headers,
		Body:       io.NopCloser(bytes.NewReader(response.Body)),
		Request:    req,
	}, nil
}
