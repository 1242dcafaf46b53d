package pollster

import (
	"context"
	"errors"
	"log/slog"
)

// registryConfig holds mutable state during Registry construction.
type registryConfig struct {
	ctx      context.Context
	clock    Clock
	logger   *slog.Logger
	identity func(Resource) any
	observer Observer
}

// RegistryOption configures a [Registry] during construction.
type RegistryOption func(*registryConfig) error

// WithLogger sets the [slog.Logger] used by the registry and its pollers.
// Defaults to [slog.Default].
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(cfg *registryConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock sets the clock used to schedule fetch cycles. Tests use this
// to drive pollers with simulated time.
//
// Returns an error if the clock is nil.
func WithClock(c Clock) RegistryOption {
	return func(cfg *registryConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithContext sets the context passed to every fetch. Cancelling it aborts
// in-flight fetches for resources that honour context cancellation; it does
// not stop the pollers. Defaults to [context.Background].
func WithContext(ctx context.Context) RegistryOption {
	return func(cfg *registryConfig) error {
		if ctx == nil {
			return errors.New("context cannot be nil")
		}
		cfg.ctx = ctx
		return nil
	}
}

// WithIdentity sets the function that maps a resource to its registry key.
// The returned value must be comparable.
//
// By default a resource implementing [Identifier] is keyed by its
// ResourceID, and any other resource by its own value.
func WithIdentity(fn func(Resource) any) RegistryOption {
	return func(cfg *registryConfig) error {
		if fn == nil {
			return errors.New("identity function cannot be nil")
		}
		cfg.identity = fn
		return nil
	}
}

// WithObserver registers an [Observer] notified of every fetch cycle and
// dropped result. Nil observers are ignored.
func WithObserver(o Observer) RegistryOption {
	return func(cfg *registryConfig) error {
		cfg.observer = o
		return nil
	}
}
