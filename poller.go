package pollster

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Poller repeatedly fetches one resource and publishes each result.
//
// A Poller runs a fetch → publish → reschedule loop: it invokes its action
// on the resource, arms the next cycle delay after the fetch completes, and
// delivers the result to every subscriber. Cycles never overlap and at most
// one future cycle is pending at any time.
//
// Pollers are created by [Registry.Get]. The resource, action, delay and
// params are fixed at construction. All methods are safe for concurrent use.
type Poller struct {
	id                string
	name              string
	resource          Resource
	action            string
	delay             time.Duration
	params            Params
	rescheduleOnError bool
	bufferSize        int

	ctx      context.Context
	clock    Clock
	logger   *slog.Logger
	observer Observer

	mu          sync.Mutex
	timer       Timer
	timerSeq    uint64 // invalidates callbacks of stopped timers
	running     bool
	inFlight    bool
	closed      bool
	cycles      uint64
	latest      Result
	hasLatest   bool
	subscribers map[chan Result]struct{}
}

func newPoller(resource Resource, cfg *pollerConfig, rc *registryConfig) *Poller {
	id := uuid.NewString()
	name := resourceName(resource)
	return &Poller{
		id:                id,
		name:              name,
		resource:          resource,
		action:            cfg.action,
		delay:             cfg.delay,
		params:            copyParams(cfg.params),
		rescheduleOnError: cfg.rescheduleOnError,
		bufferSize:        cfg.bufferSize,
		ctx:               rc.ctx,
		clock:             rc.clock,
		logger:            rc.logger.With("poller_id", id, "resource", name, "action", cfg.action),
		observer:          rc.observer,
		subscribers:       make(map[chan Result]struct{}),
	}
}

// ID returns the unique identifier assigned to the poller at construction.
func (p *Poller) ID() string {
	return p.id
}

// Name returns the resource label used in logs and metrics: the
// [Identifier] id when the resource has one, otherwise its Go type.
func (p *Poller) Name() string {
	return p.name
}

// Resource returns the polled resource.
func (p *Poller) Resource() Resource {
	return p.resource
}

// Action returns the action invoked on every fetch.
func (p *Poller) Action() string {
	return p.action
}

// Delay returns the wait between the end of a fetch and the next one.
func (p *Poller) Delay() time.Duration {
	return p.delay
}

// Params returns a copy of the fetch parameters.
func (p *Poller) Params() Params {
	return copyParams(p.params)
}

// Running reports whether the loop is active: a fetch is scheduled or in
// flight and will be followed by another.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Scheduled reports whether a future cycle is pending on the clock.
// It is false after Stop and while a fetch is in flight.
func (p *Poller) Scheduled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Cycles returns the number of completed fetches, successful or not.
func (p *Poller) Cycles() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

// Latest returns the most recent result and whether there is one.
func (p *Poller) Latest() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.hasLatest
}

// Subscribe returns a channel that receives every subsequent result.
//
// If the poller has already produced a result, the latest one is delivered
// first. The channel is buffered; a subscriber that falls behind misses
// results instead of blocking the poller. The channel is closed by
// [Poller.Unsubscribe] or [Poller.Close]. Subscribing to a closed poller
// returns a closed channel.
func (p *Poller) Subscribe() <-chan Result {
	ch := make(chan Result, p.bufferSize)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		close(ch)
		return ch
	}
	if p.hasLatest {
		ch <- p.latest
	}
	p.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (p *Poller) Unsubscribe(ch <-chan Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for subCh := range p.subscribers {
		if subCh == ch {
			delete(p.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Stop cancels the pending cycle, if any. No fetch is started by the poller
// after Stop returns. A fetch already in flight still completes and
// publishes its result, but does not schedule another cycle.
//
// Stop is idempotent. Subscriptions stay open; use [Poller.Restart] to
// resume or [Poller.Close] to tear down.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Restart resumes a stopped poller, starting a fetch immediately.
//
// If a fetch from before the Stop is still in flight, Restart lets its
// completion schedule the next cycle instead of starting a second fetch.
// Restart is a no-op on a running or closed poller.
func (p *Poller) Restart() {
	p.mu.Lock()
	if p.closed || p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	if p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	p.logger.Debug("poller restarted")
	go p.runCycle()
}

// Close permanently stops the poller and closes every subscriber channel.
// The result of a fetch in flight at the time of Close is discarded.
// Close is idempotent.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.stopLocked()
	p.closed = true
	for ch := range p.subscribers {
		close(ch)
	}
	p.subscribers = nil
}

// start begins the first cycle. Called once by the registry after construction.
func (p *Poller) start() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.inFlight = true
	p.mu.Unlock()

	go p.runCycle()
}

// stopLocked cancels the pending timer. Caller must hold p.mu.
func (p *Poller) stopLocked() {
	p.running = false
	p.timerSeq++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// scheduleLocked arms the next cycle. Caller must hold p.mu.
func (p *Poller) scheduleLocked() {
	p.timerSeq++
	seq := p.timerSeq
	p.timer = p.clock.AfterFunc(p.delay, func() { p.tick(seq) })
}

// tick is the timer callback. It runs the next cycle unless the timer that
// fired has since been cancelled.
func (p *Poller) tick(seq uint64) {
	p.mu.Lock()
	if !p.running || p.closed || seq != p.timerSeq || p.inFlight {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.inFlight = true
	p.mu.Unlock()

	p.runCycle()
}

// runCycle performs one fetch and publishes its result. The caller must
// have set inFlight.
func (p *Poller) runCycle() {
	start := p.clock.Now()
	value, err := p.safeFetch()
	finished := p.clock.Now()
	latency := finished.Sub(start)

	if p.observer != nil {
		p.observer.ObserveCycle(p.name, latency, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight = false
	if p.closed {
		p.logger.Debug("discarding result of closed poller")
		return
	}

	p.cycles++
	result := Result{
		PollerID:  p.id,
		Action:    p.action,
		Cycle:     p.cycles,
		Value:     value,
		Err:       err,
		Latency:   latency,
		FetchedAt: finished,
	}

	logAttrs := []any{"cycle", result.Cycle, "latency_ms", latency.Milliseconds()}
	if err != nil {
		p.logger.Warn("fetch failed", append(logAttrs, "error", err.Error())...)
		if !p.rescheduleOnError && p.running {
			p.running = false
			p.logger.Warn("poller halted after fetch error")
		}
	} else {
		p.logger.Debug("fetch completed", logAttrs...)
	}

	// arm before publishing so an observer of this result sees the next cycle pending
	if p.running {
		p.scheduleLocked()
	}
	p.publishLocked(result)
}

// publishLocked records the result and fans it out. Caller must hold p.mu.
//
// Sends are non-blocking: a subscriber whose buffer is full misses the result.
func (p *Poller) publishLocked(result Result) {
	p.latest = result
	p.hasLatest = true

	for ch := range p.subscribers {
		select {
		case ch <- result:
		default:
			p.logger.Debug("subscriber buffer full, dropping result", "cycle", result.Cycle)
			if p.observer != nil {
				p.observer.ObserveDrop(p.name)
			}
		}
	}
}

// safeFetch calls the resource with panic recovery.
// A panic is logged with its stack and a correlation ID and returned as an error.
func (p *Poller) safeFetch() (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			p.logger.Error("resource fetch panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			value = nil
			err = fmt.Errorf("fetch panic (correlation_id: %s)", correlationID)
		}
	}()
	return p.resource.Fetch(p.ctx, p.action, p.Params())
}

// resourceName returns a label for logs and metrics.
func resourceName(r Resource) string {
	if id, ok := r.(Identifier); ok {
		return id.ResourceID()
	}
	return fmt.Sprintf("%T", r)
}
