package httpapi

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/schema"
)

func TestServeStopsOnCancel(t *testing.T) {
	svc, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	srv := NewServer(Config{BasePath: "/deck", ShutdownTimeout: time.Second}, svc, svc, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/deck/api/tabs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
	if _, err := http.Get("http://" + ln.Addr().String() + "/deck/api/tabs"); err == nil {
		t.Fatalf("expected the listener to be closed")
	}
}

func TestListenAndServeReportsBindErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	srv := NewServer(Config{Addr: ln.Addr().String()}, nil, nil, nil, nil)
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatalf("expected an address in use error")
	}
}
