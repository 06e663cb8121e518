// Package relay forwards command events from operators to the agent and
// acknowledgement events from the agent back to operators.
package relay

import (
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

// Commands are relayed from the frontend channel to the agent.
var Commands = set(
	"REQ_RESET_ALARM",
	"REQ_RESET_ERROR",
	"REQ_SET_CONFIG",
	"REQ_SET_TEMPRETURE",
	"REQ_MANUAL_START_RECORD",
	"REQ_MANUAL_STOP_RECORD",
	"REQ_MANUAL_CALL_RECORD",
	"REQ_CALL_LIVE_TEMPRETURE",
	"REQ_CALL_HISTORY_TEMPRETURE",
	"REQ_SET_EVENT",
	"MESSAGE",
)

// Acks are relayed from the agent to the frontend channel.
var Acks = set(
	"ACK_RESET_ALARM",
	"ACK_RESET_ERROR",
	"ACK_SET_CONFIG",
	"ACK_SET_TEMPRETURE",
	"ACK_MANUAL_START_RECORD",
	"ACK_MANUAL_STOP_RECORD",
	"ACK_TIMEOUT_STOP_RECORD",
	"ACK_MANUAL_CALL_RECORD",
	"ACK_CALL_LIVE_TEMPRETURE",
	"ACK_CALL_HISTORY_TEMPRETURE",
	"ACK_SET_EVENT",
	"ACK_MESSAGE",
)

// agentLogOnly are agent events that are recorded and go nowhere.
var agentLogOnly = set(
	protocol.Disconnect,
	protocol.ConnectError,
	protocol.ReqTest,
	protocol.AckConfig,
)

// Channel is one side of the bridge.
type Channel interface {
	PeerCount() int
	Broadcast(msg protocol.Message)
}

// Relay moves events between the two channels. It holds no state of its
// own beyond the channels.
type Relay struct {
	frontend Channel
	agent    Channel
	metrics  *metrics.Bridge
	log      *zap.SugaredLogger
}

// New creates a Relay between frontend and agent.
func New(frontend, agent Channel, m *metrics.Bridge, log *zap.SugaredLogger) *Relay {
	return &Relay{
		frontend: frontend,
		agent:    agent,
		metrics:  m,
		log:      log.Named("relay"),
	}
}

// FromFrontend forwards env to the agent if it is a relayed command. It
// reports whether the event belongs to the command table.
func (r *Relay) FromFrontend(connID string, env protocol.Envelope) bool {
	if !Commands[env.Event] {
		return false
	}
	r.forward(r.agent, metrics.ChannelAgent, connID, env)
	return true
}

// FromAgent forwards env to the frontend channel if it is a relayed
// acknowledgement, or logs it if it is a log-only agent event. It reports
// whether the event was handled.
func (r *Relay) FromAgent(connID string, env protocol.Envelope) bool {
	if agentLogOnly[env.Event] {
		r.log.Infow("agent event", "event", env.Event, "conn", connID, "data", string(env.Data))
		return true
	}
	if !Acks[env.Event] {
		return false
	}
	r.forward(r.frontend, metrics.ChannelFrontend, connID, env)
	return true
}

func (r *Relay) forward(to Channel, label, from string, env protocol.Envelope) {
	if to.PeerCount() == 0 {
		r.metrics.RelayDropped(label)
		r.log.Warnw("relay dropped, no peers", "event", env.Event, "to", label, "from", from)
		return
	}
	r.metrics.Relayed(label)
	to.Broadcast(env.Forward())
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
