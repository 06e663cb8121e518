// Package metrics exposes the bridge's Prometheus collectors. A nil
// *Bridge is valid and records nothing, so components can be built without
// metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Channel labels.
const (
	ChannelFrontend = "frontend"
	ChannelAgent    = "agent"
)

// Lock release causes.
const (
	CauseRelease    = "release"
	CauseDisconnect = "disconnect"
	CauseTimeout    = "timeout"
)

// Bridge holds every collector the coordination layer updates.
type Bridge struct {
	lockGrants        prometheus.Counter
	lockDenials       *prometheus.CounterVec
	lockReleases      *prometheus.CounterVec
	configStarts      prometheus.Counter
	configTimeouts    prometheus.Counter
	telemetryAccepted prometheus.Counter
	telemetryRejected *prometheus.CounterVec
	relayForwarded    *prometheus.CounterVec
	relayDropped      *prometheus.CounterVec
	peers             *prometheus.GaugeVec
	thresholdValue    prometheus.Gauge
	lastTemperature   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Bridge {
	b := &Bridge{
		lockGrants: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_lock_grants_total",
			Help: "Config lock requests that were granted.",
		}),
		lockDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_lock_denials_total",
			Help: "Config lock operations that were refused, by reason.",
		}, []string{"reason"}),
		lockReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_lock_releases_total",
			Help: "Config lock releases, by cause.",
		}, []string{"cause"}),
		configStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_config_mode_starts_total",
			Help: "Configuration mode sessions started.",
		}),
		configTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_config_mode_ack_timeouts_total",
			Help: "Configuration mode sessions abandoned because the agent did not acknowledge.",
		}),
		telemetryAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_telemetry_accepted_total",
			Help: "Telemetry samples that passed validation and were broadcast.",
		}),
		telemetryRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_telemetry_rejected_total",
			Help: "Telemetry samples rejected, by reason.",
		}, []string{"reason"}),
		relayForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_relay_forwarded_total",
			Help: "Events relayed between channels, by destination channel.",
		}, []string{"to"}),
		relayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_relay_dropped_total",
			Help: "Events not relayed because the destination channel had no peers.",
		}, []string{"to"}),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_connected_peers",
			Help: "Currently connected peers, by channel.",
		}, []string{"channel"}),
		thresholdValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_threshold_celsius",
			Help: "Current temperature threshold setting.",
		}),
		lastTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_last_temperature_celsius",
			Help: "Value of the most recent accepted telemetry sample.",
		}),
	}

	reg.MustRegister(
		b.lockGrants, b.lockDenials, b.lockReleases,
		b.configStarts, b.configTimeouts,
		b.telemetryAccepted, b.telemetryRejected,
		b.relayForwarded, b.relayDropped,
		b.peers, b.thresholdValue, b.lastTemperature,
	)
	return b
}

func (b *Bridge) LockGranted() {
	if b == nil {
		return
	}
	b.lockGrants.Inc()
}

func (b *Bridge) LockDenied(reason string) {
	if b == nil {
		return
	}
	b.lockDenials.WithLabelValues(reason).Inc()
}

func (b *Bridge) LockReleased(cause string) {
	if b == nil {
		return
	}
	b.lockReleases.WithLabelValues(cause).Inc()
}

func (b *Bridge) ConfigModeStarted() {
	if b == nil {
		return
	}
	b.configStarts.Inc()
}

func (b *Bridge) ConfigModeTimedOut() {
	if b == nil {
		return
	}
	b.configTimeouts.Inc()
}

func (b *Bridge) TelemetryAccepted(value float64) {
	if b == nil {
		return
	}
	b.telemetryAccepted.Inc()
	b.lastTemperature.Set(value)
}

func (b *Bridge) TelemetryRejected(reason string) {
	if b == nil {
		return
	}
	b.telemetryRejected.WithLabelValues(reason).Inc()
}

func (b *Bridge) Relayed(to string) {
	if b == nil {
		return
	}
	b.relayForwarded.WithLabelValues(to).Inc()
}

func (b *Bridge) RelayDropped(to string) {
	if b == nil {
		return
	}
	b.relayDropped.WithLabelValues(to).Inc()
}

func (b *Bridge) SetPeers(channel string, n int) {
	if b == nil {
		return
	}
	b.peers.WithLabelValues(channel).Set(float64(n))
}

func (b *Bridge) SetThreshold(v float64) {
	if b == nil {
		return
	}
	b.thresholdValue.Set(v)
}
