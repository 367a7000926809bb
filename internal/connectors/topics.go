package connectors

const (
	TopicSessionState = "session.state"
	TopicSessionLog   = "session.log"
)
