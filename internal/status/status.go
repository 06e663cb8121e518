// Package status provides a thread-safe status tracker for the bridge.
// It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"
)

// Config contains bridge configuration for display.
type Config struct {
	FrontendAddr string
	AgentAddr    string
	Broker       string
	HeartbeatMs  int64
	LockLeaseMs  int64
	AckTimeoutMs int64
	HistoryPath  string
}

// Sample is the last accepted telemetry reading. This is a local copy to
// avoid importing internal/telemetry from status.
type Sample struct {
	ID   int64
	Wert float64
	Zeit float64
}

// Bridge is the coordination state copied from the hub.
type Bridge struct {
	LockHolder     string
	LeaseExpiry    time.Time
	ConfigActive   bool
	ConfigOwner    string
	ConfigReady    bool
	Threshold      float64
	LastSample     *Sample
	FrontendPeers  int
	AgentConnected bool
}

// Snapshot is a point-in-time view of bridge state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Bridge        Bridge
	Config        Config
}

// Uptime returns the duration since the bridge started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable bridge state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update replaces the coordination state. Called from runLoop on every tick.
func (t *Tracker) Update(b Bridge) {
	if b.LastSample != nil {
		s := *b.LastSample
		b.LastSample = &s
	}
	t.mu.Lock()
	t.snap.Bridge = b
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the bridge state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
