package infra

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRunServersStopsOnCancel(t *testing.T) {
	addr := freeAddr(t)
	srv := NewHTTPServer("rest", addr, HTTPConfig{ReadTimeout: time.Second, WriteTimeout: time.Second}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunServers(ctx, *NopLogger(), time.Second, srv) }()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunServers = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("RunServers did not return after cancel")
	}
}

func TestRunServersReportsListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	srv := NewHTTPServer("busy", l.Addr().String(), HTTPConfig{}, http.NotFoundHandler())
	if err := RunServers(context.Background(), *NopLogger(), time.Second, srv); err == nil {
		t.Fatalf("RunServers on a busy port returned nil")
	}
}
