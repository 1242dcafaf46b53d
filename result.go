package pollster

import "time"

// Result is one delivery on a poller's notification stream.
//
// Exactly one Result is published per completed fetch cycle. Err is nil for
// a successful fetch; Value is whatever the resource returned.
type Result struct {
	// PollerID identifies the poller that produced the result.
	PollerID string

	// Action is the action that was invoked on the resource.
	Action string

	// Cycle is the 1-based sequence number of the fetch within the poller's life.
	Cycle uint64

	// Value is the fetch result. nil when Err is set.
	Value any

	// Err is the fetch error, if any.
	Err error

	// Latency is the time the fetch took, measured on the poller's clock.
	Latency time.Duration

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Observer receives poller events for metrics collection.
//
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	// ObserveCycle is called after every fetch with its latency and error.
	ObserveCycle(resource string, latency time.Duration, err error)

	// ObserveDrop is called when a result could not be delivered to a slow subscriber.
	ObserveDrop(resource string)
}
