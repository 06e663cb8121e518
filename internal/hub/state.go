package hub

import (
	"time"

	"github.com/sweeney/telemetry-bridge/internal/telemetry"
)

// State is a point-in-time copy of the coordination state.
type State struct {
	LockHolder     string
	LeaseExpiry    time.Time
	ConfigActive   bool
	ConfigOwner    string
	ConfigReady    bool
	Threshold      float64
	LastSample     *telemetry.Sample
	FrontendPeers  int
	AgentConnected bool
}

// State returns a snapshot of the hub.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := State{
		LockHolder:     h.locks.Holder(),
		LeaseExpiry:    h.locks.LeaseExpiry(),
		ConfigActive:   h.config.Active(),
		ConfigOwner:    h.config.Owner(),
		ConfigReady:    h.config.IsReady(),
		Threshold:      h.threshold.Value(),
		FrontendPeers:  len(h.frontend),
		AgentConnected: h.agent != nil,
	}
	if sample, ok := h.telemetry.Latest(); ok {
		s.LastSample = &sample
	}
	return s
}
