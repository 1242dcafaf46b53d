package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jpalmerr/pollster"
	"github.com/jpalmerr/pollster/internal/httpresource"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockUserServer(":9999")
	time.Sleep(100 * time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	reg, err := pollster.NewRegistry(pollster.WithContext(ctx), pollster.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create registry", "error", err)
		os.Exit(1)
	}
	defer reg.Reset()

	users, _ := httpresource.New("users", "http://localhost:9999/users")
	alice, _ := httpresource.New("user", "http://localhost:9999/user")

	// the list is polled with the defaults: action "query", every 5s
	usersPoller, err := reg.Get(users)
	if err != nil {
		logger.Error("failed to poll users", "error", err)
		os.Exit(1)
	}

	// a single record on a slower cadence
	alicePoller, err := reg.Get(alice,
		pollster.WithAction("get"),
		pollster.WithParams(pollster.Params{"id": 123}),
		pollster.WithDelay(10*time.Second),
	)
	if err != nil {
		logger.Error("failed to poll user", "error", err)
		os.Exit(1)
	}

	// any function can be polled; this one reports the goroutine count
	runtimeStats := pollster.Named("goroutines", pollster.ResourceFunc(
		func(context.Context, string, pollster.Params) (any, error) {
			return runtime.NumGoroutine(), nil
		},
	))
	statsPoller, _ := reg.Get(runtimeStats, pollster.WithDelay(15*time.Second))

	// asking again for a registered resource returns the same poller
	again, _ := reg.Get(users)
	fmt.Printf("\n  pollster demo: %d pollers, same users poller: %t\n", reg.Size(), again == usersPoller)
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	results := merge(ctx, usersPoller, alicePoller, statsPoller)
	for {
		select {
		case r := <-results:
			if r.Err != nil {
				fmt.Printf("  [%s #%d] error: %v\n", r.PollerID[:8], r.Cycle, r.Err)
				continue
			}
			fmt.Printf("  [%s #%d %s] %v (%s)\n", r.PollerID[:8], r.Cycle, r.Action, r.Value, r.Latency.Round(time.Millisecond))
		case <-ctx.Done():
			fmt.Println("\n  stopping pollers")
			return
		}
	}
}

// merge fans the result streams of several pollers into one channel.
func merge(ctx context.Context, pollers ...*pollster.Poller) <-chan pollster.Result {
	out := make(chan pollster.Result)
	for _, p := range pollers {
		ch := p.Subscribe()
		go func() {
			for r := range ch {
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return out
}
