package status

import (
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{FrontendAddr: ":4000", AgentAddr: ":4001", Broker: "tcp://localhost:1883"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.AgentAddr != ":4001" {
		t.Errorf("Config.AgentAddr: got %q, want %q", snap.Config.AgentAddr, ":4001")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Bridge.LockHolder != "" || snap.Bridge.LastSample != nil {
		t.Errorf("expected empty bridge state, got %+v", snap.Bridge)
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(Bridge{LockHolder: "a", Threshold: 45, FrontendPeers: 2, AgentConnected: true})
	tr.SetMQTTConnected(true)

	snap := tr.Snapshot()
	if snap.Bridge.LockHolder != "a" {
		t.Errorf("LockHolder: got %q, want a", snap.Bridge.LockHolder)
	}
	if snap.Bridge.Threshold != 45 {
		t.Errorf("Threshold: got %v, want 45", snap.Bridge.Threshold)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	sample := &Sample{ID: 1, Wert: 20}
	tr.Update(Bridge{LastSample: sample})

	snap := tr.Snapshot()
	sample.Wert = 99
	tr.Update(Bridge{LockHolder: "b"})

	if snap.Bridge.LastSample == nil || snap.Bridge.LastSample.Wert != 20 {
		t.Errorf("snapshot should be a copy; got %+v", snap.Bridge.LastSample)
	}
	if snap.Bridge.LockHolder != "" {
		t.Error("snapshot should be a copy; LockHolder was modified")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(15 * time.Minute)
	return Snapshot{
		StartTime:     start,
		Now:           now,
		MQTTConnected: true,
		Bridge: Bridge{
			LockHolder:     "c1",
			LeaseExpiry:    now.Add(90 * time.Second),
			ConfigActive:   true,
			ConfigOwner:    "c1",
			Threshold:      22,
			LastSample:     &Sample{ID: 7, Wert: 23.5, Zeit: 1000},
			FrontendPeers:  3,
			AgentConnected: true,
		},
		Config: Config{FrontendAddr: ":4000", AgentAddr: ":4001", Broker: "tcp://b:1883", HeartbeatMs: 900000},
	}
}

func TestFormatJSON(t *testing.T) {
	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(testSnapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.UptimeSeconds != 900 {
		t.Errorf("uptime_seconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("start_time: got %s", s.StartTime)
	}
	if !s.Lock.Held || s.Lock.Holder != "c1" || s.Lock.RemainingMs != 90000 {
		t.Errorf("lock: got %+v", s.Lock)
	}
	if !s.ConfigMode.Active || s.ConfigMode.Ready {
		t.Errorf("config_mode: got %+v", s.ConfigMode)
	}
	if s.LastSample == nil || s.LastSample.Wert != 23.5 {
		t.Errorf("last_sample: got %+v", s.LastSample)
	}
	if s.Peers.Frontend != 3 || !s.Peers.Agent {
		t.Errorf("peers: got %+v", s.Peers)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://b:1883" {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("web JSON should carry no event/reason, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONOmitsEmpty(t *testing.T) {
	snap := testSnapshot()
	snap.Bridge = Bridge{Threshold: 22}

	out := string(FormatJSON(snap))
	for _, key := range []string{`"last_sample"`, `"holder"`, `"remaining_ms"`, `"owner"`} {
		if strings.Contains(out, key) {
			t.Errorf("expected %s to be omitted:\n%s", key, out)
		}
	}
}

func TestFormatStatusEvent(t *testing.T) {
	out := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")
	if strings.Contains(string(out), "\n") {
		t.Error("MQTT payload should be compact")
	}

	var parsed StatusJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Update(Bridge{FrontendPeers: n, LastSample: &Sample{ID: int64(j)}})
				tr.SetMQTTConnected(j%2 == 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
}
