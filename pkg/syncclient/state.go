package syncclient

// State is the connectivity of a Client
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Slice holds one shared value in two phases: the last value confirmed by a
// hub broadcast, and an optional local value proposed since then. Any
// broadcast collapses the slice to the broadcast value.
type Slice[T any] struct {
	confirmed  T
	pending    T
	hasPending bool
}

// NewSlice returns a slice whose confirmed value is initial
func NewSlice[T any](initial T) Slice[T] {
	return Slice[T]{confirmed: initial}
}

// Current is the value to display: the pending value if any, else the confirmed one
func (s Slice[T]) Current() T {
	if s.hasPending {
		return s.pending
	}
	return s.confirmed
}

// Confirmed returns the last broadcast value
func (s Slice[T]) Confirmed() T {
	return s.confirmed
}

// Pending returns the local value awaiting a broadcast
func (s Slice[T]) Pending() (T, bool) {
	return s.pending, s.hasPending
}

func (s *Slice[T]) propose(v T) {
	s.pending = v
	s.hasPending = true
}

func (s *Slice[T]) confirm(v T) {
	var zero T
	s.confirmed = v
	s.pending = zero
	s.hasPending = false
}
