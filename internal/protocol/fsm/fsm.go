// Package fsm enforces the per-connection state machine described in
// spec.md §4.1.6: Connecting -> Connected -> (Subscribed ->)
// Authenticated -> Disconnecting -> Disconnected, with Error reachable
// from Connected, Subscribed and Authenticated on a protocol error.
// Terminal state is Disconnected; re-entry
// requires a new connection.
package fsm

import (
	"errors"
	"fmt"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

// ErrInvalidTransition is returned when a requested transition has no
// edge in the state graph.
var ErrInvalidTransition = errors.New("fsm: invalid state transition")

// Event names the triggers that move a connection between states. v1
// and v2 connections drive different events toward Authenticated:
// v1 passes through EventSubscribed before EventAuthorized; v2 goes
// straight from EventProtocolDetected's Connected state to
// EventAuthorized via OpenStandardMiningChannelSuccess.
type Event int

const (
	EventProtocolDetected Event = iota
	EventSubscribed
	EventAuthorized
	EventDetectionTimeout
	EventIOFailure
	EventCloseRequested
	EventClosed
	EventProtocolError
)

func (e Event) String() string {
	switch e {
	case EventProtocolDetected:
		return "protocol_detected"
	case EventSubscribed:
		return "subscribed"
	case EventAuthorized:
		return "authorized"
	case EventDetectionTimeout:
		return "detection_timeout"
	case EventIOFailure:
		return "io_failure"
	case EventCloseRequested:
		return "close_requested"
	case EventClosed:
		return "closed"
	case EventProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// edges maps (state, event) to the resulting state. Any (state, event)
// pair absent from this table is an invalid transition.
var edges = map[miningtypes.ConnectionState]map[Event]miningtypes.ConnectionState{
	miningtypes.StateConnecting: {
		EventProtocolDetected: miningtypes.StateConnected,
		EventDetectionTimeout: miningtypes.StateDisconnected,
		EventIOFailure:        miningtypes.StateDisconnected,
	},
	miningtypes.StateConnected: {
		EventSubscribed:    miningtypes.StateSubscribed,
		EventAuthorized:    miningtypes.StateAuthenticated, // v2: OpenChannel...Success skips Subscribed
		EventProtocolError: miningtypes.StateError,
		EventIOFailure:     miningtypes.StateDisconnecting,
		EventCloseRequested: miningtypes.StateDisconnecting,
	},
	miningtypes.StateSubscribed: {
		EventAuthorized:     miningtypes.StateAuthenticated,
		EventProtocolError:  miningtypes.StateError,
		EventIOFailure:      miningtypes.StateDisconnecting,
		EventCloseRequested: miningtypes.StateDisconnecting,
	},
	miningtypes.StateAuthenticated: {
		EventProtocolError:  miningtypes.StateError,
		EventIOFailure:      miningtypes.StateDisconnecting,
		EventCloseRequested: miningtypes.StateDisconnecting,
	},
	miningtypes.StateError: {
		EventCloseRequested: miningtypes.StateDisconnecting,
		EventIOFailure:      miningtypes.StateDisconnecting,
	},
	miningtypes.StateDisconnecting: {
		EventClosed: miningtypes.StateDisconnected,
	},
}

// Machine drives a single Connection's state through the graph spec.md
// §4.1.6 describes, rejecting any transition the graph doesn't allow.
type Machine struct {
	conn *miningtypes.Connection
}

// New wraps conn for state-machine-governed transitions. conn must
// already be in StateConnecting (miningtypes.NewConnection's default).
func New(conn *miningtypes.Connection) *Machine {
	return &Machine{conn: conn}
}

// State returns the connection's current state.
func (m *Machine) State() miningtypes.ConnectionState {
	return m.conn.State
}

// Fire applies event to the connection's current state, returning the
// new state on success or ErrInvalidTransition if the graph has no edge
// for (current state, event).
func (m *Machine) Fire(event Event) (miningtypes.ConnectionState, error) {
	transitions, ok := edges[m.conn.State]
	if !ok {
		return m.conn.State, fmt.Errorf("%w: no transitions defined from %s", ErrInvalidTransition, m.conn.State)
	}
	next, ok := transitions[event]
	if !ok {
		return m.conn.State, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, m.conn.State)
	}
	m.conn.State = next
	return next, nil
}

// CanFire reports whether event has a defined transition from the
// current state, without mutating it.
func (m *Machine) CanFire(event Event) bool {
	transitions, ok := edges[m.conn.State]
	if !ok {
		return false
	}
	_, ok = transitions[event]
	return ok
}

// IsTerminal reports whether the connection has reached Disconnected,
// spec.md §4.1.6's terminal state; re-entry requires a new connection.
func (m *Machine) IsTerminal() bool {
	return m.conn.State == miningtypes.StateDisconnected
}
