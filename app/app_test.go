package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kochabx/kais/log"
)

// fakeServer blocks in Run until Shutdown, like http.Server does
type fakeServer struct {
	once     sync.Once
	stop     chan struct{}
	runErr   error
	shutdown atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{})}
}

func (s *fakeServer) Run() error {
	if s.runErr != nil {
		return s.runErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.shutdown.Store(true)
	s.once.Do(func() { close(s.stop) })
	return nil
}

func quiet() Option {
	return WithLogger(log.NewWriter(io.Discard))
}

func TestNew(t *testing.T) {
	app := New(quiet(), WithServers(newFakeServer(), nil, newFakeServer()))

	info := app.Info()
	if info.ServerCount != 2 {
		t.Fatalf("expected 2 servers, got %d", info.ServerCount)
	}
	if info.Started {
		t.Fatal("expected application not to be started")
	}
}

func TestStartStop(t *testing.T) {
	server := newFakeServer()
	var closed []string
	var mu sync.Mutex
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			closed = append(closed, name)
			mu.Unlock()
			return nil
		}
	}

	app := New(quiet(),
		WithServers(server),
		WithClose("store", record("store"), time.Second),
		WithClose("session", record("session"), time.Second),
	)

	go func() {
		time.Sleep(50 * time.Millisecond)
		app.Stop()
	}()

	if err := app.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !server.shutdown.Load() {
		t.Fatal("expected server to be shut down")
	}
	if len(closed) != 2 || closed[0] != "session" || closed[1] != "store" {
		t.Fatalf("expected close in reverse order, got %v", closed)
	}
}

func TestStartTwice(t *testing.T) {
	app := New(quiet())
	app.started = true

	if err := app.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestTaskRunsUntilStop(t *testing.T) {
	var ran atomic.Bool
	app := New(quiet(), WithTask("watch", func(ctx context.Context) error {
		ran.Store(true)
		<-ctx.Done()
		return ctx.Err()
	}))

	go func() {
		time.Sleep(50 * time.Millisecond)
		app.Stop()
	}()

	if err := app.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran.Load() {
		t.Fatal("expected task to run")
	}
}

func TestTaskFailureStopsApplication(t *testing.T) {
	boom := errors.New("boom")
	server := newFakeServer()
	closeCalled := false

	app := New(quiet(),
		WithServers(server),
		WithTask("broken", func(context.Context) error { return boom }),
		WithClose("cleanup", func(context.Context) error {
			closeCalled = true
			return nil
		}, time.Second),
	)

	done := make(chan error, 1)
	go func() { done <- app.Start() }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("expected task error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start should return when a task fails")
	}
	if !server.shutdown.Load() || !closeCalled {
		t.Fatal("expected shutdown and close functions after a task failure")
	}
}

func TestServerFailure(t *testing.T) {
	server := newFakeServer()
	server.runErr = errors.New("address in use")

	app := New(quiet(), WithServers(server))
	if err := app.Start(); err == nil || err.Error() != "address in use" {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	app := New(quiet(), WithContext(ctx), WithServers(newFakeServer()))
	cancel()

	done := make(chan error, 1)
	go func() { done <- app.Start() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start should return quickly due to cancelled context")
	}
}

func TestAddServer(t *testing.T) {
	app := New(quiet())

	if err := app.AddServer(nil); err == nil {
		t.Fatal("expected error when adding nil server")
	}
	if err := app.AddServer(newFakeServer()); err != nil {
		t.Fatalf("unexpected error adding server: %v", err)
	}

	app.started = true
	if err := app.AddServer(newFakeServer()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRegisterClose(t *testing.T) {
	app := New(quiet())

	if err := app.RegisterClose("nil", nil, time.Second); err == nil {
		t.Fatal("expected error when adding nil close function")
	}

	called := false
	if err := app.RegisterClose("test", func(context.Context) error {
		called = true
		return nil
	}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.closeFuncs[0].Timeout != app.closeTimeout {
		t.Fatalf("expected default timeout, got %v", app.closeFuncs[0].Timeout)
	}

	app.runCloseTasks()
	if !called {
		t.Fatal("expected close function to be called")
	}
}

func TestCloseFuncPanic(t *testing.T) {
	app := New(quiet(), WithClose("panic-close", func(context.Context) error {
		panic("test panic")
	}, time.Second))

	if err := app.runCloseTask(app.closeFuncs[0]); !errors.Is(err, ErrClosePanic) {
		t.Fatalf("expected ErrClosePanic, got %v", err)
	}
}

func TestCloseFuncTimeout(t *testing.T) {
	app := New(quiet(), WithClose("slow-close", func(context.Context) error {
		time.Sleep(2 * time.Second)
		return nil
	}, 100*time.Millisecond))

	start := time.Now()
	app.runCloseTasks()
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("close tasks took too long: %v", d)
	}
}
