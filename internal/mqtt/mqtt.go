// Package mqtt mirrors bridge activity to an MQTT broker.
package mqtt

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/sweeney/telemetry-bridge/internal/telemetry"
)

// DefaultTopicPrefix roots every topic the bridge publishes on.
const DefaultTopicPrefix = "telemetry-bridge"

// Topics are the topics the bridge publishes on.
type Topics struct {
	Telemetry string
	Threshold string
	System    string
}

// NewTopics derives the topic set from prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Telemetry: prefix + "/telemetry",
		Threshold: prefix + "/threshold",
		System:    prefix + "/system",
	}
}

// Publisher publishes bridge events to MQTT. Implementations must not block
// on the network; failures are reported but never fatal.
type Publisher interface {
	// PublishSample sends an accepted telemetry sample.
	PublishSample(s telemetry.Sample) error

	// PublishThreshold sends the current threshold as a retained message.
	PublishThreshold(v float64) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a lifecycle event (STARTUP, HEARTBEAT, SHUTDOWN).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // signal name, shutdown only
	RawPayload []byte // pre-formatted status snapshot; returned as-is by FormatSystemPayload
	Retained   bool
}

// SamplePayload is the body published on the telemetry topic.
type SamplePayload struct {
	Telemetry SampleBody `json:"telemetry"`
}

// SampleBody contains one accepted reading.
type SampleBody struct {
	ID         int64   `json:"id"`
	Value      float64 `json:"value"`
	ObservedAt float64 `json:"observed_at"`
	ReceivedAt string  `json:"received_at"`
}

// FormatSamplePayload creates the JSON payload for a telemetry sample. The
// sample id doubles as its receive time in milliseconds.
func FormatSamplePayload(s telemetry.Sample) ([]byte, error) {
	return json.Marshal(SamplePayload{
		Telemetry: SampleBody{
			ID:         s.ID,
			Value:      s.Wert,
			ObservedAt: s.Zeit,
			ReceivedAt: time.UnixMilli(s.ID).UTC().Format(time.RFC3339Nano),
		},
	})
}

// ThresholdPayload is the body published on the threshold topic.
type ThresholdPayload struct {
	Threshold ThresholdBody `json:"threshold"`
}

// ThresholdBody contains the threshold value and when it was set.
type ThresholdBody struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// FormatThresholdPayload creates the JSON payload for a threshold change.
func FormatThresholdPayload(v float64, at time.Time) ([]byte, error) {
	return json.Marshal(ThresholdPayload{
		Threshold: ThresholdBody{
			Value:     v,
			Timestamp: at.UTC().Format(time.RFC3339),
		},
	})
}

// SystemPayload is the body of simple system events, such as the will
// message, that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// WillPayload is published by the broker when the bridge vanishes.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE"}})
	return data
}
