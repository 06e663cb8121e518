package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBridgeCollectors(t *testing.T) {
	b := New(prometheus.NewRegistry())

	b.LockGranted()
	b.LockGranted()
	if got := testutil.ToFloat64(b.lockGrants); got != 2 {
		t.Errorf("lock grants: got %v, want 2", got)
	}

	b.LockDenied("already_locked")
	if got := testutil.ToFloat64(b.lockDenials.WithLabelValues("already_locked")); got != 1 {
		t.Errorf("lock denials: got %v, want 1", got)
	}

	b.LockReleased(CauseTimeout)
	if got := testutil.ToFloat64(b.lockReleases.WithLabelValues(CauseTimeout)); got != 1 {
		t.Errorf("timeout releases: got %v, want 1", got)
	}

	b.TelemetryAccepted(23.5)
	if got := testutil.ToFloat64(b.lastTemperature); got != 23.5 {
		t.Errorf("last temperature: got %v, want 23.5", got)
	}

	b.RelayDropped(ChannelAgent)
	if got := testutil.ToFloat64(b.relayDropped.WithLabelValues(ChannelAgent)); got != 1 {
		t.Errorf("relay dropped: got %v, want 1", got)
	}

	b.SetPeers(ChannelFrontend, 3)
	if got := testutil.ToFloat64(b.peers.WithLabelValues(ChannelFrontend)); got != 3 {
		t.Errorf("frontend peers: got %v, want 3", got)
	}
}

func TestNilBridgeIsNoop(t *testing.T) {
	var b *Bridge
	b.LockGranted()
	b.LockDenied("x")
	b.LockReleased(CauseRelease)
	b.ConfigModeStarted()
	b.ConfigModeTimedOut()
	b.TelemetryAccepted(1)
	b.TelemetryRejected("x")
	b.Relayed(ChannelAgent)
	b.RelayDropped(ChannelAgent)
	b.SetPeers(ChannelAgent, 1)
	b.SetThreshold(22)
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
