package hub

import "context"

// Endpoint exposes one channel of a Hub to a transport.
type Endpoint struct {
	h     *Hub
	agent bool
}

// Frontend returns the operator channel.
func (h *Hub) Frontend() Endpoint { return Endpoint{h: h} }

// Agent returns the agent channel.
func (h *Hub) Agent() Endpoint { return Endpoint{h: h, agent: true} }

// Connect registers c on the channel.
func (e Endpoint) Connect(c Conn) {
	if e.agent {
		e.h.ConnectAgent(c)
		return
	}
	e.h.ConnectFrontend(c)
}

// Disconnect removes c and runs its cleanup.
func (e Endpoint) Disconnect(c Conn) {
	if e.agent {
		e.h.DisconnectAgent(c)
		return
	}
	e.h.DisconnectFrontend(c)
}

// Handle dispatches one inbound frame from c.
func (e Endpoint) Handle(ctx context.Context, c Conn, frame []byte) {
	if e.agent {
		e.h.HandleAgent(c, frame)
		return
	}
	e.h.HandleFrontend(ctx, c, frame)
}
