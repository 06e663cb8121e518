// Package configmode runs the handshake that moves the agent in and out of
// configuration mode.
//
// One frontend connection at a time owns the session. Starting a session
// tells every frontend and the agent, then waits a bounded time for the
// agent to report readiness.
package configmode

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/clock"
	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

// DefaultAckTimeout is how long the agent has to report readiness.
const DefaultAckTimeout = 5 * time.Second

// Informational texts sent with the info event.
const (
	MsgAlreadyActive = "configuration mode is already active"
	MsgNoResponse    = "agent did not respond, configuration not allowed"
	MsgReady         = "system ready for configuration"
	MsgNotActive     = "configuration mode is not active"
	MsgLeft          = "left configuration mode"
)

// Notifier delivers messages to frontend connections and the agent.
type Notifier interface {
	Send(connID string, msg protocol.Message)
	Broadcast(msg protocol.Message)
	NotifyAgent(msg protocol.Message)
}

// Coordinator owns the session state. It is not safe for concurrent use;
// callers serialize every method and every timer callback.
type Coordinator struct {
	notify     Notifier
	clock      clock.Clock
	ackTimeout time.Duration
	metrics    *metrics.Bridge
	log        *zap.SugaredLogger

	owner string
	ready bool
	timer *clock.Timer
	gen   uint64
}

// New creates an idle Coordinator. A non-positive ackTimeout selects
// DefaultAckTimeout.
func New(n Notifier, clk clock.Clock, ackTimeout time.Duration, m *metrics.Bridge, log *zap.SugaredLogger) *Coordinator {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Coordinator{
		notify:     n,
		clock:      clk,
		ackTimeout: ackTimeout,
		metrics:    m,
		log:        log.Named("configmode"),
	}
}

// Active reports whether a session is running.
func (c *Coordinator) Active() bool { return c.owner != "" }

// Owner returns the connection that owns the session, or "".
func (c *Coordinator) Owner() string { return c.owner }

// IsReady reports whether the agent has acknowledged configuration mode.
func (c *Coordinator) IsReady() bool { return c.ready }

// Start opens a session owned by connID.
func (c *Coordinator) Start(connID string) {
	if c.owner == connID {
		c.notify.Send(connID, protocol.InfoText(MsgAlreadyActive))
		return
	}
	if c.owner != "" {
		c.notify.Send(connID, protocol.Fail(protocol.Error, protocol.ReasonDenied, protocol.ReasonConfigModeBusy))
		return
	}

	c.owner = connID
	c.ready = false
	c.metrics.ConfigModeStarted()
	c.log.Infow("configuration mode started", "conn", connID)

	started := protocol.New(protocol.KonfigModusStart, nil)
	c.notify.Broadcast(started)
	c.notify.NotifyAgent(started)

	c.stopTimer()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.ackTimeout, func() { c.ackExpired(gen, connID) })
}

// Ready records the agent's acknowledgement. Any connection may call it,
// including after the acknowledgement window has closed.
func (c *Coordinator) Ready(callerID string) {
	c.ready = true
	c.stopTimer()
	c.log.Infow("configuration ready", "caller", callerID)
	c.notify.Broadcast(protocol.InfoText(MsgReady))
}

// End closes the session owned by connID.
func (c *Coordinator) End(connID string) {
	if c.owner == "" || c.owner != connID {
		c.notify.Send(connID, protocol.InfoText(MsgNotActive))
		return
	}
	c.finish()
	c.notify.Send(connID, protocol.InfoText(MsgLeft))
}

// Status broadcasts whether a session is active.
func (c *Coordinator) Status(string) {
	c.notify.Broadcast(protocol.New(protocol.KonfigStatus, c.Active()))
}

// Disconnect ends the session if connID owned it.
func (c *Coordinator) Disconnect(connID string) {
	if c.owner == "" || c.owner != connID {
		return
	}
	c.log.Infow("configuration mode owner disconnected", "conn", connID)
	c.finish()
}

// DenyInvalid answers a configuration event carrying an unexpected payload.
func (c *Coordinator) DenyInvalid(connID string) {
	c.notify.Send(connID, protocol.Fail(protocol.Error, protocol.ReasonInvalidPayload, ""))
}

func (c *Coordinator) finish() {
	c.log.Infow("configuration mode ended", "conn", c.owner)
	c.owner = ""
	ended := protocol.New(protocol.KonfigModusEnde, nil)
	c.notify.Broadcast(ended)
	c.notify.NotifyAgent(ended)
	c.stopTimer()
	c.ready = false
}

func (c *Coordinator) ackExpired(gen uint64, connID string) {
	if gen != c.gen {
		return
	}
	c.timer = nil
	if c.ready {
		return
	}
	c.metrics.ConfigModeTimedOut()
	c.log.Warnw("agent did not acknowledge configuration mode", "conn", connID)
	c.notify.Send(connID, protocol.InfoText(MsgNoResponse))
	if c.owner == connID {
		c.owner = ""
	}
}

func (c *Coordinator) stopTimer() {
	c.timer.Stop()
	c.timer = nil
	c.gen++
}
