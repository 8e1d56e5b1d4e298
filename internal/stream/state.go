package stream

import (
	"fmt"
	"time"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle       State = iota // no connection, no pending work
	StateConnecting              // dial in flight or reconnect scheduled
	StateOpen                    // connection established
	StateClosing                 // deliberate shutdown in progress
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time snapshot of the client.
type Status struct {
	State             State
	PlatformOperative bool
	Attempts          int
	PingLatency       time.Duration
	Subscriptions     int
	LastError         error
}

// StatusChange is published on the status topic whenever the lifecycle state
// or the platform flag changes.
type StatusChange struct {
	State             State
	PlatformOperative bool
	Err               error
	At                time.Time
}
