package hub

import "github.com/sweeney/telemetry-bridge/internal/protocol"

// The methods below are called by components with h.mu held.

// Send delivers msg to the connection with connID on either channel.
func (h *Hub) Send(connID string, msg protocol.Message) {
	if c, ok := h.frontend[connID]; ok {
		h.deliver(c, msg)
		return
	}
	if h.agent != nil && h.agent.ID() == connID {
		h.deliver(h.agent, msg)
	}
}

// Broadcast delivers msg to every frontend connection.
func (h *Hub) Broadcast(msg protocol.Message) {
	for _, c := range h.frontend {
		h.deliver(c, msg)
	}
}

// BroadcastExcept delivers msg to every frontend connection but connID.
func (h *Hub) BroadcastExcept(connID string, msg protocol.Message) {
	for id, c := range h.frontend {
		if id != connID {
			h.deliver(c, msg)
		}
	}
}

// NotifyAgent delivers msg to the agent, if one is connected.
func (h *Hub) NotifyAgent(msg protocol.Message) {
	if h.agent != nil {
		h.deliver(h.agent, msg)
	}
}

func (h *Hub) deliver(c Conn, msg protocol.Message) {
	if err := c.Send(msg); err != nil {
		h.log.Warnw("send failed", "conn", c.ID(), "event", msg.Event, "error", err)
	}
}

type frontendChannel struct{ h *Hub }

func (f frontendChannel) PeerCount() int { return len(f.h.frontend) }

func (f frontendChannel) Broadcast(msg protocol.Message) { f.h.Broadcast(msg) }

type agentChannel struct{ h *Hub }

func (a agentChannel) PeerCount() int {
	if a.h.agent == nil {
		return 0
	}
	return 1
}

func (a agentChannel) Broadcast(msg protocol.Message) { a.h.NotifyAgent(msg) }
