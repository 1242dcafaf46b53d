package pollster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type idResource struct {
	*fakeResource
	id string
}

func (r idResource) ResourceID() string {
	return r.id
}

func TestRegistry_GetReturnsSamePoller(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())
	res := newFakeResource(nil)

	first, err := reg.Get(res)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := reg.Get(res, WithAction("get"), WithDelay(time.Minute))
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}

	if first != second {
		t.Fatal("Get() returned a different poller for the same resource")
	}
	if second.Action() != "query" || second.Delay() != DefaultDelay {
		t.Errorf("second options applied: Action() = %q, Delay() = %v", second.Action(), second.Delay())
	}
	if reg.Size() != 1 {
		t.Errorf("Size() = %d, want 1", reg.Size())
	}

	recvResult(t, first.Subscribe())
	if res.CallCount() != 1 {
		t.Errorf("fetch calls = %d, want 1 (no second loop)", res.CallCount())
	}
}

func TestRegistry_DistinctResources(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	p1, err := reg.Get(newFakeResource(nil))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	p2, err := reg.Get(newFakeResource(nil))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if p1 == p2 {
		t.Fatal("Get() returned the same poller for distinct resources")
	}
	if reg.Size() != 2 {
		t.Errorf("Size() = %d, want 2", reg.Size())
	}
}

func TestRegistry_IdentifierDedup(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	a := idResource{fakeResource: newFakeResource(nil), id: "users"}
	b := idResource{fakeResource: newFakeResource(nil), id: "users"}

	p1, err := reg.Get(a)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	p2, err := reg.Get(b)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p1 != p2 {
		t.Error("resources with the same ResourceID got different pollers")
	}
}

func TestRegistry_ResourceFunc(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())
	fn := ResourceFunc(func(context.Context, string, Params) (any, error) { return "ok", nil })

	if _, err := reg.Get(fn); !errors.Is(err, ErrUnhashableResource) {
		t.Fatalf("Get(ResourceFunc) error = %v, want %v", err, ErrUnhashableResource)
	}

	p1, err := reg.Get(Named("fn", fn))
	if err != nil {
		t.Fatalf("Get(Named) error = %v", err)
	}
	p2, err := reg.Get(Named("fn", fn))
	if err != nil {
		t.Fatalf("Get(Named) error = %v", err)
	}
	if p1 != p2 {
		t.Error("Named resources with the same id got different pollers")
	}
	if r := recvResult(t, p1.Subscribe()); r.Value != "ok" {
		t.Errorf("Value = %v, want ok", r.Value)
	}
}

// boxedResource is comparable by type but can carry an unhashable value.
type boxedResource struct {
	*fakeResource
	v any
}

func TestRegistry_UnhashableDynamicValue(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())
	res := boxedResource{fakeResource: newFakeResource(nil), v: []int{1}}

	if _, err := reg.Get(res); !errors.Is(err, ErrUnhashableResource) {
		t.Fatalf("Get() error = %v, want %v", err, ErrUnhashableResource)
	}
	if _, ok := reg.Lookup(res); ok {
		t.Error("Lookup() found a poller for an unhashable resource")
	}
	reg.Delete(res)

	// the registry stays usable
	ok := boxedResource{fakeResource: newFakeResource(nil), v: 1}
	p, err := reg.Get(ok)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got, found := reg.Lookup(ok); !found || got != p {
		t.Error("Lookup() did not return the registered poller")
	}
	if reg.Size() != 1 {
		t.Errorf("Size() = %d, want 1", reg.Size())
	}
	if res.CallCount() != 0 {
		t.Errorf("unhashable resource fetched %d times, want 0", res.CallCount())
	}
}

func TestPoller_StartAfterClose(t *testing.T) {
	clk := newFakeClock()
	reg := newTestRegistry(t, clk)
	res := newFakeResource(nil)

	p := newPoller(res, defaultPollerConfig(), reg.cfg)
	p.Close()
	p.start()

	if p.Running() {
		t.Error("Running() = true after start on a closed poller")
	}
	clk.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if res.CallCount() != 0 {
		t.Errorf("CallCount() = %d, want 0", res.CallCount())
	}
}

func TestRegistry_WithIdentity(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock(), WithIdentity(func(Resource) any { return "everything" }))

	p1, err := reg.Get(newFakeResource(nil))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	p2, err := reg.Get(newFakeResource(nil))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p1 != p2 {
		t.Error("custom identity did not deduplicate")
	}

	bad := newTestRegistry(t, newFakeClock(), WithIdentity(func(Resource) any { return []string{"x"} }))
	if _, err := bad.Get(newFakeResource(nil)); !errors.Is(err, ErrUnhashableResource) {
		t.Errorf("Get() with slice identity error = %v, want %v", err, ErrUnhashableResource)
	}
}

func TestRegistry_NilResource(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	if _, err := reg.Get(nil); !errors.Is(err, ErrNilResource) {
		t.Errorf("Get(nil) error = %v, want %v", err, ErrNilResource)
	}
	if _, ok := reg.Lookup(nil); ok {
		t.Error("Lookup(nil) = ok")
	}
	reg.Delete(nil) // must not panic
}

func TestRegistry_InvalidOptions(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())
	res := newFakeResource(nil)

	tests := []struct {
		name string
		opt  Option
		want error
	}{
		{"zero delay", WithDelay(0), ErrInvalidDelay},
		{"negative delay", WithDelay(-time.Second), ErrInvalidDelay},
		{"empty action", WithAction(""), ErrEmptyAction},
		{"zero buffer", WithBufferSize(0), ErrInvalidBufferSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Get(res, tt.opt)
			if !errors.Is(err, tt.want) {
				t.Errorf("Get() error = %v, want %v", err, tt.want)
			}
		})
	}

	if reg.Size() != 0 {
		t.Errorf("Size() = %d after invalid options, want 0", reg.Size())
	}
	if res.CallCount() != 0 {
		t.Errorf("fetch calls = %d after invalid options, want 0", res.CallCount())
	}
}

func TestRegistry_Reset(t *testing.T) {
	clk := newFakeClock()
	reg := newTestRegistry(t, clk)
	r1 := newFakeResource(nil)
	r2 := newFakeResource(nil)

	p1, _ := reg.Get(r1)
	p2, _ := reg.Get(r2)
	sub1 := p1.Subscribe()
	recvResult(t, sub1)
	recvResult(t, p2.Subscribe())

	reg.Reset()

	if p1.Scheduled() || p2.Scheduled() {
		t.Fatal("pollers still scheduled after Reset")
	}
	if clk.Pending() != 0 {
		t.Errorf("pending = %d after Reset, want 0", clk.Pending())
	}
	if reg.Size() != 0 {
		t.Errorf("Size() = %d after Reset, want 0", reg.Size())
	}
	if _, ok := <-sub1; ok {
		t.Error("subscription still open after Reset")
	}

	clk.Advance(time.Hour)
	if r1.CallCount() != 1 || r2.CallCount() != 1 {
		t.Errorf("fetch calls after Reset = %d, %d, want 1, 1", r1.CallCount(), r2.CallCount())
	}

	fresh, err := reg.Get(r1)
	if err != nil {
		t.Fatalf("Get() after Reset error = %v", err)
	}
	if fresh == p1 {
		t.Fatal("Get() after Reset returned the old poller")
	}
	if r := recvResult(t, fresh.Subscribe()); r.Cycle != 1 {
		t.Errorf("fresh poller first Cycle = %d, want 1", r.Cycle)
	}
}

func TestRegistry_NonUnique(t *testing.T) {
	clk := newFakeClock()
	reg := newTestRegistry(t, clk)
	res := newFakeResource(nil)

	shared, _ := reg.Get(res)
	own1, err := reg.Get(res, WithNonUnique(), WithDelay(time.Second))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	own2, _ := reg.Get(res, WithNonUnique())

	if own1 == shared || own2 == shared || own1 == own2 {
		t.Fatal("non-unique Get() returned a shared poller")
	}
	if again, _ := reg.Get(res); again != shared {
		t.Error("unique Get() did not return the shared poller")
	}
	if own1.Delay() != time.Second {
		t.Errorf("non-unique Delay() = %v, want 1s", own1.Delay())
	}
	if reg.Size() != 3 {
		t.Errorf("Size() = %d, want 3", reg.Size())
	}

	reg.Reset()
	for _, p := range []*Poller{shared, own1, own2} {
		if p.Running() {
			t.Errorf("poller %s still running after Reset", p.ID())
		}
	}
}

func TestRegistry_LookupAndDelete(t *testing.T) {
	clk := newFakeClock()
	reg := newTestRegistry(t, clk)
	res := newFakeResource(nil)

	if _, ok := reg.Lookup(res); ok {
		t.Fatal("Lookup() found a poller before Get")
	}

	p, _ := reg.Get(res)
	if got, ok := reg.Lookup(res); !ok || got != p {
		t.Fatal("Lookup() did not return the registered poller")
	}

	recvResult(t, p.Subscribe())
	reg.Delete(res)
	reg.Delete(res)

	if _, ok := reg.Lookup(res); ok {
		t.Error("Lookup() found a deleted poller")
	}
	if p.Running() || clk.Pending() != 0 {
		t.Error("deleted poller still running")
	}
}

func TestRegistry_StopAllRestartAll(t *testing.T) {
	clk := newFakeClock()
	reg := newTestRegistry(t, clk)
	r1 := newFakeResource(nil)
	r2 := newFakeResource(nil)

	p1, _ := reg.Get(r1)
	p2, _ := reg.Get(r2, WithNonUnique())
	s1, s2 := p1.Subscribe(), p2.Subscribe()
	recvResult(t, s1)
	recvResult(t, s2)

	reg.StopAll()
	if clk.Pending() != 0 {
		t.Fatalf("pending = %d after StopAll, want 0", clk.Pending())
	}
	if len(reg.Pollers()) != 2 {
		t.Fatalf("len(Pollers()) = %d after StopAll, want 2", len(reg.Pollers()))
	}

	reg.RestartAll()
	recvResult(t, s1)
	recvResult(t, s2)
	if r1.CallCount() != 2 || r2.CallCount() != 2 {
		t.Errorf("fetch calls = %d, %d, want 2, 2", r1.CallCount(), r2.CallCount())
	}
	if clk.Pending() != 2 {
		t.Errorf("pending = %d after RestartAll, want 2", clk.Pending())
	}
}

func TestRegistry_Observer(t *testing.T) {
	obs := &fakeObserver{}
	reg := newTestRegistry(t, newFakeClock(), WithObserver(obs))

	p, _ := reg.Get(newFakeResource(func(int) (any, error) { return nil, errors.New("down") }))
	recvResult(t, p.Subscribe())

	cycles, errs, _ := obs.counts()
	if cycles != 1 || errs != 1 {
		t.Errorf("observer cycles = %d, errors = %d, want 1, 1", cycles, errs)
	}
}

func TestRegistry_WithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg := newTestRegistry(t, newFakeClock(), WithContext(ctx))
	res := ResourceFunc(func(ctx context.Context, _ string, _ Params) (any, error) {
		return nil, ctx.Err()
	})

	p, err := reg.Get(Named("ctx", res))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if r := recvResult(t, p.Subscribe()); !errors.Is(r.Err, context.Canceled) {
		t.Errorf("Err = %v, want %v", r.Err, context.Canceled)
	}
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())
	res := newFakeResource(nil)

	const workers = 20
	pollers := make([]*Poller, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pollers[i], _ = reg.Get(res)
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if pollers[i] != pollers[0] {
			t.Fatal("concurrent Get() produced more than one poller")
		}
	}

	recvResult(t, pollers[0].Subscribe())
	if res.CallCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", res.CallCount())
	}
}

func TestNewRegistry_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  RegistryOption
	}{
		{"nil logger", WithLogger(nil)},
		{"nil clock", WithClock(nil)},
		{"nil context", WithContext(nil)}, //nolint:staticcheck // testing nil handling
		{"nil identity", WithIdentity(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.opt); err == nil {
				t.Error("NewRegistry() expected error, got nil")
			}
		})
	}
}

func TestNewRegistry_Defaults(t *testing.T) {
	reg, err := NewRegistry(WithObserver(nil))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if reg.Size() != 0 {
		t.Errorf("Size() = %d, want 0", reg.Size())
	}
	reg.Reset() // empty reset is a no-op
}
