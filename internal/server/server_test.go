package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/citafacil/citafacil/internal/testutil"
)

func newTestServer(h http.Handler) *Server {
	return New(h, Config{
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}, testutil.DiscardLogger())
}

func TestServer_ShutdownOrder(t *testing.T) {
	t.Parallel()

	s := newTestServer(http.NotFoundHandler())

	var order []string
	s.OnShutdown("storage", func(ctx context.Context) error {
		order = append(order, "storage")
		return nil
	})
	s.OnShutdown("reminders", func(ctx context.Context) error {
		order = append(order, "reminders")
		return nil
	})

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(order) != 2 || order[0] != "reminders" || order[1] != "storage" {
		t.Errorf("shutdown order = %v, want [reminders storage]", order)
	}
}

func TestServer_ShutdownJoinsErrors(t *testing.T) {
	t.Parallel()

	errA := errors.New("a failed")
	ran := false
	s := newTestServer(http.NotFoundHandler())
	s.OnShutdown("b", func(ctx context.Context) error {
		ran = true
		return nil
	})
	s.OnShutdown("a", func(ctx context.Context) error { return errA })

	err := s.Shutdown()
	if !errors.Is(err, errA) {
		t.Errorf("Shutdown() error = %v, want %v", err, errA)
	}
	if !ran {
		t.Error("later component skipped after an error")
	}
}

func TestServer_ServeUntilCancelled(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	stopped := make(chan struct{})
	s.OnShutdown("flush", func(ctx context.Context) error {
		close(stopped)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	select {
	case <-stopped:
	default:
		t.Error("shutdown hook did not run")
	}
}
