package connectors

import (
	"fmt"
	"time"
)

// ConnectionState describes the debugger session lifecycle state shown to observers.
type ConnectionState int

const (
	ConnectionStateStopped     ConnectionState = -1
	ConnectionStateRunning     ConnectionState = 0
	ConnectionStateStarting    ConnectionState = -2
	ConnectionStateUnavailable ConnectionState = -3
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateStopped:
		return "stopped"
	case ConnectionStateRunning:
		return "running"
	case ConnectionStateStarting:
		return "starting"
	case ConnectionStateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange is a bus event carrying the new session state.
type StateChange struct {
	State     ConnectionState
	Timestamp time.Time
}

// LogMessage is a single line of device output or a session notice.
// Clear asks the consumer to discard previously displayed text first.
type LogMessage struct {
	Text  string
	Clear bool
}
