package pollster

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/jpalmerr/pollster/internal/clock"
)

// Registry tracks the active pollers of a process.
//
// Registry deduplicates pollers by resource identity: asking twice for the
// same resource returns the same [Poller]. It is constructed explicitly
// with [NewRegistry] and passed to the code that needs it; there is no
// package-level registry. All methods are safe for concurrent use.
type Registry struct {
	cfg *registryConfig

	mu        sync.Mutex
	pollers   map[any]*Poller
	nonUnique []*Poller
}

// NewRegistry creates an empty [Registry].
//
// Defaults: the real clock, [slog.Default] for logging, [context.Background]
// as the fetch context and the identity described in [WithIdentity].
//
// Example:
//
//	reg, err := pollster.NewRegistry(pollster.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer reg.Reset()
//
//	p, err := reg.Get(users, pollster.WithDelay(10*time.Second))
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := &registryConfig{
		ctx:      context.Background(),
		clock:    clock.Real(),
		identity: defaultIdentity,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Registry{
		cfg:     cfg,
		pollers: make(map[any]*Poller),
	}, nil
}

// Get returns the poller for resource, creating and starting one if needed.
//
// Options are validated on every call. If a poller already exists for the
// resource's identity it is returned unchanged and the option values are
// ignored. Otherwise a new poller is created, its first fetch is started in
// the background, and the poller is returned before that fetch completes.
// [WithNonUnique] always creates a new poller.
func (r *Registry) Get(resource Resource, opts ...Option) (*Poller, error) {
	if resource == nil {
		return nil, ErrNilResource
	}

	cfg := defaultPollerConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid poller option: %w", err)
		}
	}

	if !cfg.unique {
		p := newPoller(resource, cfg, r.cfg)
		r.mu.Lock()
		r.nonUnique = append(r.nonUnique, p)
		r.mu.Unlock()

		p.start()
		r.cfg.logger.Debug("poller created", "poller_id", p.id, "resource", p.name, "unique", false)
		return p, nil
	}

	key, err := r.key(resource)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.pollers[key]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	p := newPoller(resource, cfg, r.cfg)
	r.pollers[key] = p
	r.mu.Unlock()

	p.start()
	r.cfg.logger.Debug("poller created",
		"poller_id", p.id,
		"resource", p.name,
		"action", p.action,
		"delay", p.delay.String(),
	)
	return p, nil
}

// Lookup returns the unique poller registered for resource, if any.
// It never creates a poller.
func (r *Registry) Lookup(resource Resource) (*Poller, bool) {
	if resource == nil {
		return nil, false
	}
	key, err := r.key(resource)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pollers[key]
	return p, ok
}

// Delete closes and forgets the unique poller for resource.
// Unknown resources are ignored.
func (r *Registry) Delete(resource Resource) {
	if resource == nil {
		return
	}
	key, err := r.key(resource)
	if err != nil {
		return
	}

	r.mu.Lock()
	p, ok := r.pollers[key]
	delete(r.pollers, key)
	r.mu.Unlock()

	if ok {
		p.Close()
	}
}

// Reset closes every poller and clears the registry.
//
// After Reset returns no registry-held poller starts another fetch (a fetch
// already in flight finishes, but its result is discarded), and Get for a
// previously known resource creates a new poller.
func (r *Registry) Reset() {
	r.mu.Lock()
	all := r.snapshotLocked()
	r.pollers = make(map[any]*Poller)
	r.nonUnique = nil
	r.mu.Unlock()

	for _, p := range all {
		p.Close()
	}
	r.cfg.logger.Debug("registry reset", "pollers", len(all))
}

// StopAll stops every poller without removing it from the registry.
func (r *Registry) StopAll() {
	for _, p := range r.Pollers() {
		p.Stop()
	}
}

// RestartAll restarts every stopped poller.
func (r *Registry) RestartAll() {
	for _, p := range r.Pollers() {
		p.Restart()
	}
}

// Size returns the number of pollers held, unique and non-unique.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pollers) + len(r.nonUnique)
}

// Pollers returns a snapshot of every poller held. Order is not guaranteed.
func (r *Registry) Pollers() []*Poller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []*Poller {
	all := make([]*Poller, 0, len(r.pollers)+len(r.nonUnique))
	for _, p := range r.pollers {
		all = append(all, p)
	}
	return append(all, r.nonUnique...)
}

// key maps a resource to its registry key, rejecting keys that would panic
// when used in a map.
func (r *Registry) key(resource Resource) (key any, err error) {
	key = r.cfg.identity(resource)
	if key == nil {
		return nil, ErrUnhashableResource
	}
	if !reflect.TypeOf(key).Comparable() || !hashable(key) {
		return nil, fmt.Errorf("%w: %T", ErrUnhashableResource, key)
	}
	return key, nil
}

// hashable reports whether key can be used as a map key. A comparable type
// can still hold an unhashable dynamic value in an interface field.
func hashable(key any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	m := map[any]struct{}{key: {}}
	return len(m) == 1
}

func defaultIdentity(resource Resource) any {
	if id, ok := resource.(Identifier); ok {
		return id.ResourceID()
	}
	return resource
}
