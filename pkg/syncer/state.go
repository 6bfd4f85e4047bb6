package syncer

import "sync/atomic"

// State is the per-mode cycle state.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
	StateCompacting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReconciling:
		return "reconciling"
	case StateCompacting:
		return "compacting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// modeState carries everything one mode's in-flight cycle owns. The state
// word is the single-flight guard: whoever wins the CAS out of idle owns the
// rest of the struct until it flips back.
type modeState struct {
	state atomic.Int32

	// attempts counts consecutive failed fetches of the current cycle.
	// Reset on a successful fetch and on exhaustion.
	attempts int
}

func (m *modeState) current() State {
	return State(m.state.Load())
}

func (m *modeState) transition(from, to State) bool {
	return m.state.CompareAndSwap(int32(from), int32(to))
}

func (m *modeState) set(s State) {
	m.state.Store(int32(s))
}
