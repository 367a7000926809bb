package debugger

import (
	"time"

	"github.com/skobkin/picodbg/internal/bus"
	"github.com/skobkin/picodbg/internal/connectors"
)

// Sink receives session state and log events. Calls are synchronous.
type Sink interface {
	PublishState(state connectors.ConnectionState)
	PublishLog(msg connectors.LogMessage)
}

// SinkFuncs adapts plain callbacks to Sink. Nil callbacks drop their events.
type SinkFuncs struct {
	State func(connectors.ConnectionState)
	Log   func(connectors.LogMessage)
}

func (f SinkFuncs) PublishState(state connectors.ConnectionState) {
	if f.State != nil {
		f.State(state)
	}
}

func (f SinkFuncs) PublishLog(msg connectors.LogMessage) {
	if f.Log != nil {
		f.Log(msg)
	}
}

// BusSink forwards session events to the message bus.
type BusSink struct {
	bus bus.MessageBus
	now func() time.Time
}

func NewBusSink(b bus.MessageBus) *BusSink {
	return &BusSink{bus: b, now: time.Now}
}

func (s *BusSink) PublishState(state connectors.ConnectionState) {
	s.bus.Publish(connectors.TopicSessionState, connectors.StateChange{State: state, Timestamp: s.now()})
}

func (s *BusSink) PublishLog(msg connectors.LogMessage) {
	s.bus.Publish(connectors.TopicSessionLog, msg)
}
