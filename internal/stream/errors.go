package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrReconnectExhausted is recorded after the configured number of
	// reconnect attempts all failed. The client goes idle; a fresh Connect
	// restarts the cycle.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrHeartbeatTimeout forces a reconnect when the server goes silent for
	// longer than the heartbeat window.
	ErrHeartbeatTimeout = errors.New("server heartbeat timed out")

	// ErrClosing is returned by Connect while a Close is in flight.
	ErrClosing = errors.New("client is closing")
)

// ExchangeError is an error event reported by the exchange over an open
// connection. It does not terminate the session.
type ExchangeError struct {
	Code int
	Msg  string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Msg)
}
