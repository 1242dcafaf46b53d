package pollster

import (
	"fmt"
	"time"
)

const (
	// DefaultDelay is the wait between the end of one fetch and the next.
	DefaultDelay = 5 * time.Second

	defaultBufferSize = 16
)

// pollerConfig holds mutable state during Poller construction.
type pollerConfig struct {
	action            string
	delay             time.Duration
	params            Params
	rescheduleOnError bool
	bufferSize        int
	unique            bool
}

func defaultPollerConfig() *pollerConfig {
	return &pollerConfig{
		action:     DefaultAction,
		delay:      DefaultDelay,
		params:     Params{},
		bufferSize: defaultBufferSize,
		unique:     true,
	}
}

// Option configures a [Poller] created by [Registry.Get].
//
// Options follow the functional options pattern and return an error if
// validation fails. When Get returns an existing poller, the values carried
// by its options are ignored: the options of the first call win for the
// lifetime of that poller.
type Option func(*pollerConfig) error

// WithAction sets the action invoked on the resource for every fetch.
// Defaults to [DefaultAction] ("query").
//
// Returns an error wrapping [ErrEmptyAction] if name is empty.
func WithAction(name string) Option {
	return func(cfg *pollerConfig) error {
		if name == "" {
			return ErrEmptyAction
		}
		cfg.action = name
		return nil
	}
}

// WithDelay sets the time between the end of one fetch cycle and the start
// of the next. Defaults to [DefaultDelay] (5 seconds). Changing the cadence
// of an existing poller requires closing it and creating a new one.
//
// Returns an error wrapping [ErrInvalidDelay] if d is zero or negative.
func WithDelay(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return fmt.Errorf("%w, got %s", ErrInvalidDelay, d)
		}
		cfg.delay = d
		return nil
	}
}

// WithParams sets the parameters passed to every fetch. The map is copied;
// later changes to p do not affect the poller.
func WithParams(p Params) Option {
	return func(cfg *pollerConfig) error {
		cfg.params = copyParams(p)
		return nil
	}
}

// WithRescheduleOnError keeps the poller running after a failed fetch.
//
// By default a failed fetch publishes its error and halts the poller until
// [Poller.Restart] is called. With keep set to true the next cycle is
// scheduled after the usual delay, exactly as on success.
func WithRescheduleOnError(keep bool) Option {
	return func(cfg *pollerConfig) error {
		cfg.rescheduleOnError = keep
		return nil
	}
}

// WithBufferSize sets the channel buffer of each subscriber. A subscriber
// whose buffer is full misses results rather than blocking the poller.
// Defaults to 16.
//
// Returns an error wrapping [ErrInvalidBufferSize] if n is less than one.
func WithBufferSize(n int) Option {
	return func(cfg *pollerConfig) error {
		if n < 1 {
			return fmt.Errorf("%w, got %d", ErrInvalidBufferSize, n)
		}
		cfg.bufferSize = n
		return nil
	}
}

// WithNonUnique creates a fresh poller even if one already exists for the
// resource. Non-unique pollers are not returned by later Get calls, but they
// are still stopped by [Registry.StopAll] and closed by [Registry.Reset].
func WithNonUnique() Option {
	return func(cfg *pollerConfig) error {
		cfg.unique = false
		return nil
	}
}
