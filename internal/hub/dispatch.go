package hub

import (
	"context"

	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

// ConnectFrontend registers c on the frontend channel and sends it the
// latest telemetry sample.
func (h *Hub) ConnectFrontend(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frontend[c.ID()] = c
	h.metrics.SetPeers(metrics.ChannelFrontend, len(h.frontend))
	h.log.Infow("frontend connected", "conn", c.ID(), "local", c.Local(), "peers", len(h.frontend))
	h.telemetry.Connect(c.ID())
}

// DisconnectFrontend releases everything c held. Lock cleanup runs before
// configuration cleanup, and c stops receiving broadcasts only afterwards.
func (h *Hub) DisconnectFrontend(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frontend[c.ID()] != c {
		return
	}
	h.locks.Disconnect(c.ID())
	h.config.Disconnect(c.ID())
	delete(h.frontend, c.ID())
	h.metrics.SetPeers(metrics.ChannelFrontend, len(h.frontend))
	h.log.Infow("frontend disconnected", "conn", c.ID(), "peers", len(h.frontend))
}

// ConnectAgent makes c the agent, closing any agent it replaces.
func (h *Hub) ConnectAgent(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev := h.agent; prev != nil {
		h.log.Warnw("agent replaced", "old", prev.ID(), "new", c.ID())
		if err := prev.Close(); err != nil {
			h.log.Debugw("closing replaced agent", "conn", prev.ID(), "error", err)
		}
	}
	h.agent = c
	h.metrics.SetPeers(metrics.ChannelAgent, 1)
	h.log.Infow("agent connected", "conn", c.ID())
}

// DisconnectAgent forgets c if it is still the current agent.
func (h *Hub) DisconnectAgent(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.agent != c {
		return
	}
	h.agent = nil
	h.metrics.SetPeers(metrics.ChannelAgent, 0)
	h.log.Infow("agent disconnected", "conn", c.ID())
}

// HandleFrontend dispatches one frame received from a frontend connection.
func (h *Hub) HandleFrontend(ctx context.Context, c Conn, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		h.log.Debugw("bad frontend frame", "conn", c.ID(), "error", err)
		h.deliver(c, protocol.Fail(protocol.Error, protocol.ReasonInvalidPayload, ""))
		return
	}

	if env.Event == protocol.GetTemperaturHisto {
		h.histogram(ctx, c, env)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frontend[c.ID()] != c {
		return
	}
	id := c.ID()
	switch env.Event {
	case protocol.RequestConfig, protocol.ReleaseConfig, protocol.RefreshConfigLock:
		if env.HasPayload() {
			h.locks.DenyInvalid(id, env.Event)
			return
		}
		switch env.Event {
		case protocol.RequestConfig:
			h.locks.Request(id)
		case protocol.ReleaseConfig:
			h.locks.Release(id)
		default:
			h.locks.Refresh(id)
		}

	case protocol.KonfigStart, protocol.KonfigEnde, protocol.KonfigReady, protocol.GetKonfigStatus:
		if env.HasPayload() {
			h.config.DenyInvalid(id)
			return
		}
		switch env.Event {
		case protocol.KonfigStart:
			h.config.Start(id)
		case protocol.KonfigEnde:
			h.config.End(id)
		case protocol.KonfigReady:
			h.config.Ready(id)
		default:
			h.config.Status(id)
		}

	case protocol.SetSchwelle:
		h.threshold.Set(id, env.Data)

	case protocol.GetSchwelle:
		if env.HasPayload() {
			h.deliver(c, protocol.Fail(protocol.SchwelleError, protocol.ReasonInvalidPayload, ""))
			return
		}
		h.threshold.Get(id)

	case protocol.LiveTemperatur:
		if !c.Local() {
			h.log.Warnw("telemetry from non-local frontend refused", "conn", id)
			h.deliver(c, protocol.Fail(protocol.TemperaturError, protocol.ReasonDenied, ""))
			return
		}
		h.telemetry.Ingest(id, env)

	default:
		if !h.relay.FromFrontend(id, env) {
			h.log.Debugw("unknown frontend event", "conn", id, "event", env.Event)
		}
	}
}

// HandleAgent dispatches one frame received from the agent.
func (h *Hub) HandleAgent(c Conn, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		h.log.Warnw("bad agent frame", "conn", c.ID(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.agent != c {
		return
	}
	switch env.Event {
	case protocol.LiveTemperatur:
		h.telemetry.Ingest(c.ID(), env)
	case protocol.KonfigReady:
		h.config.Ready(c.ID())
	default:
		if !h.relay.FromAgent(c.ID(), env) {
			h.log.Debugw("unknown agent event", "conn", c.ID(), "event", env.Event)
		}
	}
}

// histogram runs the store query without holding the hub mutex.
func (h *Hub) histogram(ctx context.Context, c Conn, env protocol.Envelope) {
	if env.HasPayload() {
		h.deliver(c, protocol.Fail(protocol.TemperaturHistoError, protocol.ReasonInvalidPayload, ""))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, HistogramTimeout)
	defer cancel()
	bins, err := h.history.Histogram(ctx)
	if err != nil {
		h.log.Errorw("histogram query failed", "conn", c.ID(), "error", err)
		h.deliver(c, protocol.Fail(protocol.TemperaturHistoError, protocol.ReasonInternal, ""))
		return
	}
	h.deliver(c, protocol.New(protocol.TemperaturHisto, bins))
}

// Shutdown closes every connection on both channels.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.frontend {
		_ = c.Close()
	}
	if h.agent != nil {
		_ = h.agent.Close()
	}
}
