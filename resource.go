package pollster

import (
	"context"

	"github.com/jpalmerr/pollster/internal/clock"
)

// DefaultAction is the action invoked on a resource when [WithAction] is not given.
const DefaultAction = "query"

// Params holds the parameters passed verbatim to every fetch of a [Poller].
type Params map[string]any

// Resource is a fetchable data source.
//
// Fetch performs one named action and returns its result. The poller does not
// interpret the returned value; it is delivered to subscribers as-is.
// Implementations must be safe for concurrent use when the same resource is
// shared by several non-unique pollers.
type Resource interface {
	Fetch(ctx context.Context, action string, params Params) (any, error)
}

// ResourceFunc adapts an ordinary function to the [Resource] interface.
//
// Function values are not comparable, so a ResourceFunc cannot be
// deduplicated by the default identity. Wrap it with [Named] or configure
// the registry with [WithIdentity].
type ResourceFunc func(ctx context.Context, action string, params Params) (any, error)

// Fetch calls f(ctx, action, params).
func (f ResourceFunc) Fetch(ctx context.Context, action string, params Params) (any, error) {
	return f(ctx, action, params)
}

// Identifier is implemented by resources that carry a stable identity.
//
// When a resource implements Identifier, the default registry identity is
// its ResourceID rather than the resource value itself.
type Identifier interface {
	ResourceID() string
}

// Named attaches a stable identity to r.
func Named(id string, r Resource) Resource {
	return namedResource{id: id, Resource: r}
}

type namedResource struct {
	Resource
	id string
}

func (n namedResource) ResourceID() string {
	return n.id
}

// Clock schedules poller cycles. The default is the real wall clock.
type Clock = clock.Clock

// Timer is a pending cycle returned by [Clock.AfterFunc].
type Timer = clock.Timer

// copyParams returns a shallow copy of the params, never nil.
func copyParams(p Params) Params {
	cp := make(Params, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}
