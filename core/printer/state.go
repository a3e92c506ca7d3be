package printer

import "sync/atomic"

// State tracks the session lifecycle. A session is Ready only once the device
// has sent at least one status broadcast: a printer that accepted the TLS and
// credential handshake but never reported status is not ready for commands.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingFirstTelemetry
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingFirstTelemetry:
		return "awaiting_first_telemetry"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// StateTracker is the shared session state, written by the delivery goroutine
// and read by callers.
type StateTracker struct {
	v atomic.Int32
}

func (t *StateTracker) State() State { return State(t.v.Load()) }

func (t *StateTracker) Set(s State) { t.v.Store(int32(s)) }

// Transition moves from one state to another atomically and reports whether
// the session actually was in the expected state.
func (t *StateTracker) Transition(from, to State) bool {
	return t.v.CompareAndSwap(int32(from), int32(to))
}
