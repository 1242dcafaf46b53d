package pollster

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultPollerConfig(t *testing.T) {
	cfg := defaultPollerConfig()

	if cfg.action != "query" {
		t.Errorf("action = %q, want %q", cfg.action, "query")
	}
	if cfg.delay != 5*time.Second {
		t.Errorf("delay = %v, want %v", cfg.delay, 5*time.Second)
	}
	if cfg.params == nil || len(cfg.params) != 0 {
		t.Errorf("params = %v, want empty map", cfg.params)
	}
	if cfg.rescheduleOnError {
		t.Error("rescheduleOnError = true, want false")
	}
	if !cfg.unique {
		t.Error("unique = false, want true")
	}
}

func TestWithDelay(t *testing.T) {
	tests := []struct {
		name    string
		delay   time.Duration
		wantErr bool
	}{
		{"positive", 6 * time.Second, false},
		{"one nanosecond", time.Nanosecond, false},
		{"zero", 0, true},
		{"negative", -5 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultPollerConfig()
			err := WithDelay(tt.delay)(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("WithDelay(%v) error = %v, wantErr %v", tt.delay, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDelay) {
					t.Errorf("error = %v, want %v", err, ErrInvalidDelay)
				}
				if cfg.delay != DefaultDelay {
					t.Errorf("delay changed to %v on error", cfg.delay)
				}
				return
			}
			if cfg.delay != tt.delay {
				t.Errorf("delay = %v, want %v", cfg.delay, tt.delay)
			}
		})
	}
}

func TestWithAction(t *testing.T) {
	cfg := defaultPollerConfig()

	if err := WithAction("get")(cfg); err != nil {
		t.Fatalf("WithAction(get) error = %v", err)
	}
	if cfg.action != "get" {
		t.Errorf("action = %q, want %q", cfg.action, "get")
	}

	if err := WithAction("")(cfg); !errors.Is(err, ErrEmptyAction) {
		t.Errorf("WithAction(\"\") error = %v, want %v", err, ErrEmptyAction)
	}
}

func TestWithParams_CopiesInput(t *testing.T) {
	cfg := defaultPollerConfig()
	in := Params{"id": 123}

	if err := WithParams(in)(cfg); err != nil {
		t.Fatalf("WithParams() error = %v", err)
	}
	in["id"] = 456

	if cfg.params["id"] != 123 {
		t.Errorf("params[id] = %v, want 123", cfg.params["id"])
	}
}

func TestWithParams_Nil(t *testing.T) {
	cfg := defaultPollerConfig()

	if err := WithParams(nil)(cfg); err != nil {
		t.Fatalf("WithParams(nil) error = %v", err)
	}
	if cfg.params == nil {
		t.Error("params = nil, want empty map")
	}
}

func TestWithBufferSize(t *testing.T) {
	cfg := defaultPollerConfig()

	if err := WithBufferSize(4)(cfg); err != nil {
		t.Fatalf("WithBufferSize(4) error = %v", err)
	}
	if cfg.bufferSize != 4 {
		t.Errorf("bufferSize = %d, want 4", cfg.bufferSize)
	}

	if err := WithBufferSize(-1)(cfg); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("WithBufferSize(-1) error = %v, want %v", err, ErrInvalidBufferSize)
	}
}

func TestWithRescheduleOnError(t *testing.T) {
	cfg := defaultPollerConfig()
	_ = WithRescheduleOnError(true)(cfg)
	if !cfg.rescheduleOnError {
		t.Error("rescheduleOnError = false, want true")
	}
}

func TestWithNonUnique(t *testing.T) {
	cfg := defaultPollerConfig()
	_ = WithNonUnique()(cfg)
	if cfg.unique {
		t.Error("unique = true, want false")
	}
}
