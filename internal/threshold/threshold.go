// Package threshold holds the operator-set temperature threshold.
package threshold

import (
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

// Accepted range and default, in °C.
const (
	Min     = 0.0
	Max     = 200.0
	Default = 22.0
)

// Notifier delivers messages to frontend connections.
type Notifier interface {
	Send(connID string, msg protocol.Message)
	Broadcast(msg protocol.Message)
}

// Mirror receives every new threshold value. PublishThreshold must not block.
type Mirror interface {
	PublishThreshold(v float64)
}

// Registry stores the threshold. It is not safe for concurrent use.
type Registry struct {
	value   float64
	notify  Notifier
	mirror  Mirror
	metrics *metrics.Bridge
	log     *zap.SugaredLogger
}

// New creates a Registry holding initial. An initial value outside the
// accepted range falls back to Default.
func New(initial float64, n Notifier, mirror Mirror, m *metrics.Bridge, log *zap.SugaredLogger) *Registry {
	if initial < Min || initial > Max {
		initial = Default
	}
	m.SetThreshold(initial)
	return &Registry{
		value:   initial,
		notify:  n,
		mirror:  mirror,
		metrics: m,
		log:     log.Named("threshold"),
	}
}

// Value returns the current threshold.
func (r *Registry) Value() float64 { return r.value }

// Get replies with the current threshold.
func (r *Registry) Get(connID string) {
	r.notify.Send(connID, protocol.New(protocol.Schwelle, r.value))
}

// Set validates a candidate sent as a number or numeric string. A value in
// range is stored and broadcast; anything else is refused to the caller.
func (r *Registry) Set(connID string, candidate json.RawMessage) {
	v, err := protocol.NumberOrString(candidate)
	if err != nil || v < Min || v > Max {
		r.notify.Send(connID, protocol.Fail(protocol.SchwelleError, protocol.ReasonInvalidValue, ""))
		return
	}

	r.value = v
	r.metrics.SetThreshold(v)
	r.log.Infow("threshold set", "conn", connID, "value", v)
	r.notify.Broadcast(protocol.New(protocol.Schwelle, v))
	r.notify.Send(connID, protocol.InfoText("threshold set to "+protocol.FormatNumber(v)+"°C"))
	if r.mirror != nil {
		r.mirror.PublishThreshold(v)
	}
}
