package pollster

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pollster/internal/clock"
)

var epoch = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fetchCall struct {
	action string
	params Params
}

// fakeResource records every fetch and answers with respond.
// When gate is non-nil each fetch blocks until a value is received from it.
type fakeResource struct {
	respond func(n int) (any, error)
	gate    chan struct{}
	done    chan struct{}

	mu    sync.Mutex
	calls []fetchCall
}

func newFakeResource(respond func(n int) (any, error)) *fakeResource {
	return &fakeResource{
		respond: respond,
		done:    make(chan struct{}, 100),
	}
}

func (f *fakeResource) Fetch(_ context.Context, action string, params Params) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{action: action, params: params})
	n := len(f.calls)
	f.mu.Unlock()

	defer func() {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}()

	if f.gate != nil {
		<-f.gate
	}
	if f.respond == nil {
		return "ok", nil
	}
	return f.respond(n)
}

func (f *fakeResource) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func (f *fakeResource) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeObserver counts observer callbacks.
type fakeObserver struct {
	mu     sync.Mutex
	cycles int
	errors int
	drops  int
}

func (o *fakeObserver) ObserveCycle(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles++
	if err != nil {
		o.errors++
	}
}

func (o *fakeObserver) ObserveDrop(_ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops++
}

func (o *fakeObserver) counts() (cycles, errors, drops int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cycles, o.errors, o.drops
}

// newTestRegistry returns a registry on clk that is reset when the test ends.
func newTestRegistry(t *testing.T, clk Clock, opts ...RegistryOption) *Registry {
	t.Helper()

	opts = append([]RegistryOption{WithLogger(testLogger()), WithClock(clk)}, opts...)
	reg, err := NewRegistry(opts...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	t.Cleanup(reg.Reset)
	return reg
}

func newFakeClock() *clock.Fake {
	return clock.NewFake(epoch)
}

// recvResult waits for the next result on ch.
func recvResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()

	select {
	case r, ok := <-ch:
		if !ok {
			t.Fatal("result channel closed unexpectedly")
		}
		return r
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}
	return Result{}
}

// expectNoResult fails if ch delivers anything within a short window.
func expectNoResult(t *testing.T, ch <-chan Result) {
	t.Helper()

	select {
	case r, ok := <-ch:
		if ok {
			t.Fatalf("unexpected result: cycle %d", r.Cycle)
		}
	case <-time.After(30 * time.Millisecond):
	}
}

// waitFor polls cond until it is true or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
