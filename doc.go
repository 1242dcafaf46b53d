// Package pollster provides a lightweight recurring-fetch scheduler.
//
// Given a data source and a delay, a [Poller] fetches the source, delivers
// the result to its subscribers, waits, and fetches again until it is
// stopped. A [Registry] tracks the active pollers of a process and
// deduplicates them by resource, so every part of an application asking
// for the same resource shares one polling loop.
//
// # Quick Start
//
// Implement [Resource] (or use [ResourceFunc]) and ask a registry for a poller:
//
//	reg, _ := pollster.NewRegistry()
//	defer reg.Reset()
//
//	p, err := reg.Get(users,
//	    pollster.WithAction("get"),
//	    pollster.WithDelay(10*time.Second),
//	    pollster.WithParams(pollster.Params{"id": 123}),
//	)
//	if err != nil {
//	    return err
//	}
//
//	for result := range p.Subscribe() {
//	    if result.Err != nil {
//	        slog.Warn("fetch failed", "error", result.Err)
//	        continue
//	    }
//	    render(result.Value)
//	}
//
// # Lifecycle
//
// A poller starts fetching as soon as the registry creates it. Each cycle
// runs to completion before the next one is scheduled, so results arrive in
// cycle order and at most one future cycle is ever pending.
//
//   - [Poller.Stop] cancels the pending cycle. A fetch in flight finishes and
//     publishes, but is not followed by another.
//   - [Poller.Restart] resumes a stopped poller.
//   - [Poller.Close] stops the poller for good and closes its subscriptions.
//   - [Registry.Reset] closes every poller and empties the registry.
//
// A failed fetch publishes a [Result] with Err set and halts the poller
// unless it was created with [WithRescheduleOnError]. There is no retry or
// backoff; that belongs in the resource.
//
// # Architecture
//
// The repository also contains the pieces needed to run pollster as a
// standalone binary against HTTP APIs:
//
//   - internal/clock: timer capability with a deterministic fake for tests
//   - internal/httpresource: HTTP-backed [Resource] implementation
//   - internal/store: latest result per resource with pub/sub
//   - internal/server: REST API, Server-Sent Events and Prometheus metrics
//   - internal/metrics: [Observer] implementation backed by OpenTelemetry
//   - config: YAML configuration for the pollster CLI
package pollster
