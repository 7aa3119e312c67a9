package backend

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestMockHTTPClient(t *testing.T) {
	mockClient := NewMockHTTPClient()
	mockClient.SetJSON("node.example/admin/status", http.StatusOK, `{"isSynchronizing":false}`)
	mockClient.SetJSON("node.example", http.StatusOK, `{"fallback":true}`)

	client := &http.Client{Transport: mockClient}

	resp, err := client.Get("http://node.example/admin/status?x=1")
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"isSynchronizing":false}` {
		t.Errorf("expected path response, got %s", body)
	}

	resp, err = client.Get("http://node.example/other")
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"fallback":true}` {
		t.Errorf("expected host response, got %s", body)
	}

	requests := mockClient.GetRequests()
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[0].Path != "/admin/status" || requests[0].Query != "x=1" {
		t.Errorf("unexpected captured request %+v", requests[0])
	}
}

func TestMockHTTPClientError(t *testing.T) {
	mockClient := NewMockHTTPClient()
	mockClient.SetError("down", errors.New("connection refused"))

	client := &http.Client{Transport: mockClient}
	if _, err := client.Get("http://down/blocks/height"); err == nil {
		t.Fatal("expected transport error")
	}
	if got := len(mockClient.RequestsTo("down")); got != 1 {
		t.Errorf("expected 1 request to down, got %d", got)
	}

	client.CloseIdleConnections()
	if mockClient.IdleClosed() != 1 {
		t.Errorf("expected idle close to be counted, got %d", mockClient.IdleClosed())
	}
}
