package stats

// Kind says where a Result's value came from.
type Kind int

const (
	// Live is a decoded 2xx payload from the backend.
	Live Kind = iota
	// Degraded is a placeholder standing in for a network or decode failure.
	Degraded
	// BackendError is a placeholder standing in for a non-2xx response.
	BackendError
)

func (k Kind) String() string {
	switch k {
	case Live:
		return "live"
	case Degraded:
		return "degraded"
	case BackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one analytics fetch. Value is always usable by
// the view; Err holds the masked failure when Kind is not Live.
type Result[T any] struct {
	Value T
	Kind  Kind
	Err   error
}

// Placeholder reports whether Value is placeholder data.
func (r Result[T]) Placeholder() bool {
	return r.Kind != Live
}
