package session

import (
	"fmt"

	"github.com/snehendu098/ghost/clearclient/pkg/notify"
)

// State is the lifecycle stage of a coordinator connection.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
	StateError          State = "error"
)

func (s State) String() string {
	return string(s)
}

// transitions lists the legal successors of every state.
var transitions = map[State][]State{
	StateDisconnected:   {StateConnecting, StateError},
	StateConnecting:     {StateAuthenticating, StateDisconnected, StateError},
	StateAuthenticating: {StateConnected, StateDisconnected, StateError},
	StateConnected:      {StateDisconnected, StateError},
	StateError:          {StateConnecting, StateDisconnected},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Status is a snapshot of the connection. Err is set only in StateError;
// Reason carries the cause of an unexpected disconnect.
type Status struct {
	State  State
	Err    error
	Reason error
}

// Message returns the failure text, or "" when there is none.
func (s Status) Message() string {
	switch {
	case s.Err != nil:
		return s.Err.Error()
	case s.Reason != nil:
		return s.Reason.Error()
	default:
		return ""
	}
}

func (s Status) String() string {
	if msg := s.Message(); msg != "" {
		return fmt.Sprintf("%s (%s)", s.State, msg)
	}
	return s.State.String()
}

var (
	ConnectedTopic    = notify.NewTopic[Status](notify.Connected)
	DisconnectedTopic = notify.NewTopic[Status](notify.Disconnected)
	ErrorTopic        = notify.NewTopic[Status](notify.Error)
)

// Phase steps of the connect flow.
const (
	PhaseDialing           = "dialing"
	PhaseAwaitingSignature = "awaiting_signature"
	PhaseAuthenticated     = "authenticated"
)

const connectFlow = "connect"
