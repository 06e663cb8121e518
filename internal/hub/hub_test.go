package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/telemetry-bridge/internal/clock"
	"github.com/sweeney/telemetry-bridge/internal/configmode"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
	"github.com/sweeney/telemetry-bridge/internal/telemetry"
	"github.com/sweeney/telemetry-bridge/internal/threshold"
)

type fakeConn struct {
	id    string
	local bool

	mu     sync.Mutex
	got    []protocol.Message
	closed bool
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string  { return c.id }
func (c *fakeConn) Local() bool { return c.local }

func (c *fakeConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) take() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	got := c.got
	c.got = nil
	return got
}

func (c *fakeConn) events() []string {
	var names []string
	for _, m := range c.take() {
		names = append(names, m.Event)
	}
	return names
}

type errHistogram struct{}

func (errHistogram) Histogram(context.Context) ([]int, error) {
	return nil, errors.New("database is locked")
}

type sliceRecorder struct{ samples []telemetry.Sample }

func (r *sliceRecorder) Record(s telemetry.Sample) { r.samples = append(r.samples, s) }

func newTestHub(t *testing.T, opts Options) (*Hub, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.UnixMilli(1_000_000))
	opts.Clock = clk
	return New(opts), clk
}

func frame(event, data string) []byte {
	if data == "" {
		return []byte(`{"event":"` + event + `"}`)
	}
	return []byte(`{"event":"` + event + `","data":` + data + `}`)
}

func TestOperatorScenario(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()
	a, b, agent := newConn("a"), newConn("b"), newConn("agent")
	h.ConnectFrontend(a)
	h.ConnectFrontend(b)
	h.ConnectAgent(agent)

	h.HandleFrontend(ctx, a, frame(protocol.RequestConfig, ""))
	assert.Equal(t, []string{protocol.LockConfigSuccess}, a.events())
	assert.Empty(t, b.events())

	h.HandleFrontend(ctx, a, frame(protocol.KonfigStart, ""))
	assert.Equal(t, []string{protocol.KonfigModusStart}, a.events())
	assert.Equal(t, []string{protocol.KonfigModusStart}, b.events())
	assert.Equal(t, []string{protocol.KonfigModusStart}, agent.events())

	h.HandleAgent(agent, frame(protocol.KonfigReady, ""))
	assert.Equal(t, []protocol.Message{protocol.InfoText(configmode.MsgReady)}, b.take())
	a.take()

	h.HandleFrontend(ctx, a, frame(protocol.SetSchwelle, "45"))
	got := a.take()
	require.Len(t, got, 2)
	assert.Equal(t, protocol.New(protocol.Schwelle, 45.0), got[0])
	assert.Equal(t, protocol.Info, got[1].Event)
	assert.Equal(t, []protocol.Message{protocol.New(protocol.Schwelle, 45.0)}, b.take())

	h.HandleFrontend(ctx, a, frame(protocol.KonfigEnde, ""))
	assert.Equal(t, []string{protocol.KonfigModusEnde, protocol.Info}, a.events())
	assert.Equal(t, []string{protocol.KonfigModusEnde}, b.events())
	assert.Equal(t, []string{protocol.KonfigModusEnde}, agent.events())

	h.HandleFrontend(ctx, a, frame(protocol.ReleaseConfig, ""))
	assert.Equal(t, []string{protocol.LockReleased}, a.events())
	assert.Equal(t, []string{protocol.LockFreed}, b.events())

	s := h.State()
	assert.Empty(t, s.LockHolder)
	assert.False(t, s.ConfigActive)
	assert.Equal(t, 45.0, s.Threshold)
	assert.Equal(t, 2, s.FrontendPeers)
	assert.True(t, s.AgentConnected)
}

func TestDisconnectOrdering(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()
	a, b := newConn("a"), newConn("b")
	h.ConnectFrontend(a)
	h.ConnectFrontend(b)

	h.HandleFrontend(ctx, a, frame(protocol.RequestConfig, ""))
	h.HandleFrontend(ctx, a, frame(protocol.KonfigStart, ""))
	a.take()
	b.take()

	h.DisconnectFrontend(a)

	assert.Equal(t, []string{protocol.LockFreed, protocol.KonfigModusEnde}, b.events())
	assert.Equal(t, []string{protocol.KonfigModusEnde}, a.events(), "lockFreed skips the former holder")

	s := h.State()
	assert.Empty(t, s.LockHolder)
	assert.False(t, s.ConfigActive)
	assert.Equal(t, 1, s.FrontendPeers)

	h.HandleFrontend(ctx, b, frame(protocol.RequestConfig, ""))
	assert.Equal(t, []string{protocol.LockConfigSuccess}, b.events())
}

func TestLeaseExpiryThroughHub(t *testing.T) {
	h, clk := newTestHub(t, Options{LockLease: time.Minute})
	ctx := context.Background()
	a, b := newConn("a"), newConn("b")
	h.ConnectFrontend(a)
	h.ConnectFrontend(b)

	h.HandleFrontend(ctx, a, frame(protocol.RequestConfig, ""))
	h.HandleFrontend(ctx, a, frame(protocol.RefreshConfigLock, ""))
	got := a.take()
	require.Len(t, got, 2)
	assert.Equal(t, protocol.New(protocol.LockTimeoutRefreshed, protocol.LeaseRefreshed{RemainingMs: 60000}), got[1])

	clk.Advance(time.Minute)

	assert.Equal(t, []protocol.Message{protocol.New(protocol.LockReleased, protocol.Denial{Reason: protocol.ReasonTimeout})}, a.take())
	assert.Equal(t, []string{protocol.LockFreed}, b.events())
	assert.Empty(t, h.State().LockHolder)
}

func TestConfigAckTimeoutThroughHub(t *testing.T) {
	h, clk := newTestHub(t, Options{})
	a := newConn("a")
	h.ConnectFrontend(a)

	h.HandleFrontend(context.Background(), a, frame(protocol.KonfigStart, ""))
	a.take()
	clk.Advance(configmode.DefaultAckTimeout)

	assert.Equal(t, []protocol.Message{protocol.InfoText(configmode.MsgNoResponse)}, a.take())
	assert.False(t, h.State().ConfigActive)
}

func TestPayloadValidation(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()
	a := newConn("a")
	h.ConnectFrontend(a)

	tests := []struct {
		event string
		reply protocol.Message
	}{
		{protocol.RequestConfig, protocol.New(protocol.LockConfigDenied, protocol.Denial{Reason: protocol.ReasonInvalidPayload})},
		{protocol.ReleaseConfig, protocol.New(protocol.LockReleasedDenied, protocol.Denial{Reason: protocol.ReasonInvalidPayload})},
		{protocol.RefreshConfigLock, protocol.New(protocol.LockReleasedDenied, protocol.Denial{Reason: protocol.ReasonInvalidPayload})},
		{protocol.KonfigStart, protocol.Fail(protocol.Error, protocol.ReasonInvalidPayload, "")},
		{protocol.KonfigEnde, protocol.Fail(protocol.Error, protocol.ReasonInvalidPayload, "")},
		{protocol.KonfigReady, protocol.Fail(protocol.Error, protocol.ReasonInvalidPayload, "")},
		{protocol.GetKonfigStatus, protocol.Fail(protocol.Error, protocol.ReasonInvalidPayload, "")},
		{protocol.GetSchwelle, protocol.Fail(protocol.SchwelleError, protocol.ReasonInvalidPayload, "")},
		{protocol.GetTemperaturHisto, protocol.Fail(protocol.TemperaturHistoError, protocol.ReasonInvalidPayload, "")},
	}
	for _, tt := range tests {
		h.HandleFrontend(ctx, a, frame(tt.event, `{"x":1}`))
		assert.Equal(t, []protocol.Message{tt.reply}, a.take(), tt.event)
	}

	s := h.State()
	assert.Empty(t, s.LockHolder)
	assert.False(t, s.ConfigActive)

	h.HandleFrontend(ctx, a, frame(protocol.RequestConfig, "null"))
	assert.Equal(t, []string{protocol.LockConfigSuccess}, a.events(), "null counts as no payload")

	h.HandleFrontend(ctx, a, []byte(`not json`))
	assert.Equal(t, []protocol.Message{protocol.Fail(protocol.Error, protocol.ReasonInvalidPayload, "")}, a.take())
}

func TestTelemetryFromAgent(t *testing.T) {
	rec := &sliceRecorder{}
	h, _ := newTestHub(t, Options{Recorders: []telemetry.Recorder{rec}})
	a, agent := newConn("a"), newConn("agent")
	h.ConnectFrontend(a)
	h.ConnectAgent(agent)

	h.HandleAgent(agent, frame(protocol.LiveTemperatur, `{"wert":23.5,"zeit":1000,"crc":"1481351319"}`))

	want := telemetry.Sample{ID: 1_000_000, Wert: 23.5, Zeit: 1000}
	assert.Equal(t, []protocol.Message{protocol.New(protocol.Temperatur, want)}, a.take())
	assert.Empty(t, agent.take())
	assert.Equal(t, []telemetry.Sample{want}, rec.samples)

	late := newConn("late")
	h.ConnectFrontend(late)
	assert.Equal(t, []protocol.Message{protocol.New(protocol.Temperatur, want)}, late.take())

	h.HandleAgent(agent, frame(protocol.LiveTemperatur, `{"wert":23.5,"zeit":1001,"crc":"1481351319"}`))
	assert.Empty(t, a.take())
	assert.Equal(t, []protocol.Message{protocol.Fail(protocol.TemperaturError, protocol.ReasonIntegrityMismatch, "")}, agent.take())
}

func TestTelemetryFromFrontendRequiresLoopback(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	remote, local := newConn("remote"), newConn("local")
	local.local = true
	h.ConnectFrontend(remote)
	h.ConnectFrontend(local)
	payload := `{"wert":23.5,"zeit":1000,"crc":"1481351319"}`

	h.HandleFrontend(context.Background(), remote, frame(protocol.LiveTemperatur, payload))
	assert.Equal(t, []protocol.Message{protocol.Fail(protocol.TemperaturError, protocol.ReasonDenied, "")}, remote.take())
	assert.Nil(t, h.State().LastSample)

	h.HandleFrontend(context.Background(), local, frame(protocol.LiveTemperatur, payload))
	assert.Equal(t, []string{protocol.Temperatur}, remote.events())
	assert.NotNil(t, h.State().LastSample)
}

func TestRelayBothDirections(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()
	a, b, agent := newConn("a"), newConn("b"), newConn("agent")
	h.ConnectFrontend(a)
	h.ConnectFrontend(b)

	h.HandleFrontend(ctx, a, frame("REQ_RESET_ALARM", ""))
	assert.Empty(t, a.take(), "drop is silent to the sender")

	h.ConnectAgent(agent)
	h.HandleFrontend(ctx, a, frame("REQ_SET_CONFIG", `{"mode":2}`))
	got := agent.take()
	require.Len(t, got, 1)
	body, err := protocol.Encode(got[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"REQ_SET_CONFIG","data":{"mode":2}}`, string(body))

	h.HandleAgent(agent, frame("ACK_SET_CONFIG", `{"ok":true}`))
	assert.Equal(t, []string{"ACK_SET_CONFIG"}, a.events())
	assert.Equal(t, []string{"ACK_SET_CONFIG"}, b.events())

	h.HandleAgent(agent, frame("ack_config", `{}`))
	h.HandleAgent(agent, frame("REQ_TEST", ""))
	assert.Empty(t, a.take())
}

func TestAgentReplacement(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := newConn("a")
	h.ConnectFrontend(a)
	first, second := newConn("agent-1"), newConn("agent-2")

	h.ConnectAgent(first)
	h.ConnectAgent(second)
	assert.True(t, first.closed)

	h.DisconnectAgent(first)
	assert.True(t, h.State().AgentConnected, "stale disconnect must not drop the new agent")

	h.HandleAgent(first, frame("ACK_RESET_ALARM", ""))
	assert.Empty(t, a.take(), "replaced agent is ignored")

	h.HandleAgent(second, frame("ACK_RESET_ALARM", ""))
	assert.Equal(t, []string{"ACK_RESET_ALARM"}, a.events())

	h.DisconnectAgent(second)
	assert.False(t, h.State().AgentConnected)
}

func TestHistogram(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a := newConn("a")
	h.ConnectFrontend(a)

	h.HandleFrontend(context.Background(), a, frame(protocol.GetTemperaturHisto, ""))
	assert.Equal(t, []protocol.Message{protocol.New(protocol.TemperaturHisto, []int{0, 2, 5, 3, 1, 0, 0, 4, 2, 1})}, a.take())

	h, _ = newTestHub(t, Options{History: errHistogram{}})
	h.ConnectFrontend(a)
	h.HandleFrontend(context.Background(), a, frame(protocol.GetTemperaturHisto, ""))
	assert.Equal(t, []protocol.Message{protocol.Fail(protocol.TemperaturHistoError, protocol.ReasonInternal, "")}, a.take())
}

func TestFramesFromUnknownConnIgnored(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ghost := newConn("ghost")

	h.HandleFrontend(context.Background(), ghost, frame(protocol.RequestConfig, ""))

	assert.Empty(t, ghost.take())
	assert.Empty(t, h.State().LockHolder)
}

func TestShutdownClosesEveryone(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	a, agent := newConn("a"), newConn("agent")
	h.ConnectFrontend(a)
	h.ConnectAgent(agent)

	h.Shutdown()

	assert.True(t, a.closed)
	assert.True(t, agent.closed)
}

func TestInitialThreshold(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	assert.Equal(t, threshold.Default, h.State().Threshold)

	zero := 0.0
	h, _ = newTestHub(t, Options{Threshold: &zero})
	assert.Equal(t, 0.0, h.State().Threshold)
}

func TestEndpointsRouteByChannel(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	ctx := context.Background()
	a, agent := newConn("a"), newConn("agent")

	h.Frontend().Connect(a)
	h.Agent().Connect(agent)
	s := h.State()
	assert.Equal(t, 1, s.FrontendPeers)
	assert.True(t, s.AgentConnected)

	h.Frontend().Handle(ctx, a, frame("REQ_RESET_ALARM", ""))
	assert.Equal(t, []string{"REQ_RESET_ALARM"}, agent.events())

	h.Agent().Handle(ctx, agent, frame("ACK_RESET_ALARM", ""))
	assert.Equal(t, []string{"ACK_RESET_ALARM"}, a.events())

	h.Agent().Disconnect(agent)
	h.Frontend().Disconnect(a)
	s = h.State()
	assert.Zero(t, s.FrontendPeers)
	assert.False(t, s.AgentConnected)
}

func TestSerialClockZeroDelayDoesNotReenter(t *testing.T) {
	clk := clock.Fake(time.UnixMilli(0))
	var mu sync.Mutex
	sc := serialClock{Clock: clk, mu: &mu}

	fired := false
	mu.Lock()
	sc.AfterFunc(0, func() { fired = true })
	mu.Unlock()
	require.False(t, fired)

	clk.Advance(0)
	assert.True(t, fired)
}
