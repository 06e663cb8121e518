package status

import (
	"time"

	json "github.com/goccy/go-json"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Lock          LockJSON    `json:"lock"`
	ConfigMode    ConfigMode  `json:"config_mode"`
	Threshold     float64     `json:"threshold"`
	LastSample    *SampleJSON `json:"last_sample,omitempty"`
	Peers         PeersJSON   `json:"peers"`
	Config        ConfigJSON  `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LockJSON reports the config lock.
type LockJSON struct {
	Held        bool   `json:"held"`
	Holder      string `json:"holder,omitempty"`
	RemainingMs int64  `json:"remaining_ms,omitempty"`
}

// ConfigMode reports the configuration session.
type ConfigMode struct {
	Active bool   `json:"active"`
	Owner  string `json:"owner,omitempty"`
	Ready  bool   `json:"ready"`
}

// SampleJSON is the JSON representation of the last sample.
type SampleJSON struct {
	ID   int64   `json:"id"`
	Wert float64 `json:"wert"`
	Zeit float64 `json:"zeit"`
}

// PeersJSON reports connected peers.
type PeersJSON struct {
	Frontend int  `json:"frontend"`
	Agent    bool `json:"agent"`
}

// ConfigJSON is the JSON representation of bridge config.
type ConfigJSON struct {
	FrontendAddr string `json:"frontend_addr"`
	AgentAddr    string `json:"agent_addr"`
	Broker       string `json:"broker,omitempty"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	LockLeaseMs  int64  `json:"lock_lease_ms"`
	AckTimeoutMs int64  `json:"ack_timeout_ms"`
	HistoryPath  string `json:"history_path,omitempty"`
}

// Describe flattens snap into the JSON status shape.
func Describe(snap Snapshot) StatusInner {
	b := snap.Bridge
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Lock:          LockJSON{Held: b.LockHolder != "", Holder: b.LockHolder},
		ConfigMode:    ConfigMode{Active: b.ConfigActive, Owner: b.ConfigOwner, Ready: b.ConfigReady},
		Threshold:     b.Threshold,
		Peers:         PeersJSON{Frontend: b.FrontendPeers, Agent: b.AgentConnected},
		Config: ConfigJSON{
			FrontendAddr: snap.Config.FrontendAddr,
			AgentAddr:    snap.Config.AgentAddr,
			Broker:       snap.Config.Broker,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			LockLeaseMs:  snap.Config.LockLeaseMs,
			AckTimeoutMs: snap.Config.AckTimeoutMs,
			HistoryPath:  snap.Config.HistoryPath,
		},
	}
	if !b.LeaseExpiry.IsZero() {
		if rem := b.LeaseExpiry.Sub(snap.Now); rem > 0 {
			inner.Lock.RemainingMs = rem.Milliseconds()
		}
	}
	if b.LastSample != nil {
		inner.LastSample = &SampleJSON{ID: b.LastSample.ID, Wert: b.LastSample.Wert, Zeit: b.LastSample.Zeit}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Describe(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Describe(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
