package main

import (
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type recordingCloser struct {
	calls       atomic.Int32
	whileActive atomic.Bool
	active      *atomic.Int32
}

func (c *recordingCloser) Close() error {
	c.calls.Add(1)
	if c.active.Load() > 0 {
		c.whileActive.Store(true)
	}
	return nil
}

func TestServeDrainsBeforeClosingClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var active atomic.Int32
	started := make(chan struct{})
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		active.Add(1)
		defer active.Add(-1)
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})}
	client := &recordingCloser{active: &active}
	sigs := make(chan os.Signal, 1)

	served := make(chan error, 1)
	go func() { served <- serve(server, ln, client, sigs) }()

	reqDone := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			reqDone <- 0
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		reqDone <- resp.StatusCode
	}()

	<-started
	sigs <- syscall.SIGTERM

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}

	if status := <-reqDone; status != http.StatusOK {
		t.Errorf("expected in-flight request to finish, got status %d", status)
	}
	if client.calls.Load() != 1 {
		t.Errorf("expected client closed once, got %d", client.calls.Load())
	}
	if client.whileActive.Load() {
		t.Error("client closed while a request was still in flight")
	}
}

func TestServeClosesClientOnListenerError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ln.Close()

	var active atomic.Int32
	client := &recordingCloser{active: &active}
	err = serve(&http.Server{}, ln, client, make(chan os.Signal))
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		t.Errorf("expected a serve error, got %v", err)
	}
	if client.calls.Load() != 1 {
		t.Errorf("expected client closed once, got %d", client.calls.Load())
	}
}
