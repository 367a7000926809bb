package debugger

import (
	"sync"

	"github.com/skobkin/picodbg/internal/connectors"
)

// StateMachine holds the current session state and publishes every transition.
// It does not enforce an order between states; Session drives it.
type StateMachine struct {
	mu      sync.Mutex
	current connectors.ConnectionState
	sink    Sink
}

func NewStateMachine(sink Sink) *StateMachine {
	return &StateMachine{
		current: connectors.ConnectionStateStopped,
		sink:    sink,
	}
}

func (m *StateMachine) Current() connectors.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition sets the state and publishes it, even when it is unchanged.
func (m *StateMachine) Transition(state connectors.ConnectionState) {
	m.mu.Lock()
	m.current = state
	m.mu.Unlock()

	if m.sink != nil {
		m.sink.PublishState(state)
	}
}

func (m *StateMachine) CapabilityMissing() { m.Transition(connectors.ConnectionStateUnavailable) }

func (m *StateMachine) Starting() { m.Transition(connectors.ConnectionStateStarting) }

func (m *StateMachine) Running() { m.Transition(connectors.ConnectionStateRunning) }

func (m *StateMachine) Declined() { m.Transition(connectors.ConnectionStateStopped) }

func (m *StateMachine) Exiting() { m.Transition(connectors.ConnectionStateUnavailable) }

func (m *StateMachine) Failed() { m.Transition(connectors.ConnectionStateUnavailable) }
