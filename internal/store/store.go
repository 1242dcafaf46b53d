package store

import (
	"time"

	"github.com/jpalmerr/pollster"
)

// Record is the latest poll outcome for one resource.
//
// Record is the JSON form served by the REST API and SSE stream. It is
// decoupled from [pollster.Result] so the wire shape can evolve on its own.
type Record struct {
	// Resource is the resource name (its identity in the registry).
	Resource string `json:"resource"`

	// PollerID is the id of the poller that produced the record.
	PollerID string `json:"poller_id"`

	// Action is the operation that was invoked.
	Action string `json:"action"`

	// Cycle is the 1-based fetch count of the poller.
	Cycle uint64 `json:"cycle"`

	// Value is the decoded fetch result. nil when the fetch failed.
	Value any `json:"value"`

	// LatencyMs is the fetch duration in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time `json:"fetched_at"`

	// Error holds the fetch error message. nil on success.
	Error *string `json:"error"`
}

// FromResult converts a poller result for the named resource into a Record.
func FromResult(resource string, r pollster.Result) Record {
	rec := Record{
		Resource:  resource,
		PollerID:  r.PollerID,
		Action:    r.Action,
		Cycle:     r.Cycle,
		Value:     r.Value,
		LatencyMs: r.Latency.Milliseconds(),
		FetchedAt: r.FetchedAt,
	}
	if r.Err != nil {
		msg := r.Err.Error()
		rec.Error = &msg
	}
	return rec
}

// Store holds the latest record per resource and fans updates out to
// subscribers.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores a record and notifies all subscribers.
	// Records are keyed by Resource; a newer record replaces the previous one.
	Update(rec Record)

	// Get returns the record for a resource, if any.
	Get(resource string) (Record, bool)

	// GetAll returns a snapshot of all records sorted by resource name.
	GetAll() []Record

	// Subscribe returns a buffered channel of updates.
	// Slow consumers miss updates. Call Unsubscribe when done.
	Subscribe() <-chan Record

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Record)
}
