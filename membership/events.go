package membership

import (
	socketio "github.com/googollee/go-socket.io"
	"go.uber.org/zap"
)

// Propagator pushes domain events to the downstream workspace-role consumer.
// Emission is fire-and-forget: the engine never waits for delivery and never
// fails an operation because an event could not be sent.
type Propagator interface {
	Emit(topic, teamID string, payload interface{})
}

// SocketPropagator broadcasts events to the socket.io room of the team, where
// the workspace sync consumer and connected clients listen.
type SocketPropagator struct {
	Server *socketio.Server
}

// NewSocketPropagator returns a Propagator over the given socket.io server
func NewSocketPropagator(server *socketio.Server) *SocketPropagator {
	return &SocketPropagator{Server: server}
}

// Emit broadcasts the payload to the team's room
func (p *SocketPropagator) Emit(topic, teamID string, payload interface{}) {
	if p.Server == nil {
		return
	}
	p.Server.BroadcastToRoom("/", teamID, topic, payload)
	zap.S().Debugw("emitted event", "topic", topic, "teamId", teamID)
}

// NopPropagator drops every event. Used when the service runs without a
// socket.io server attached.
type NopPropagator struct{}

// Emit discards the event
func (NopPropagator) Emit(topic, teamID string, payload interface{}) {}
