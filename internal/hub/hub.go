// Package hub owns the bridge's shared state and dispatches events from
// both channels to the components that act on them.
//
// Every handler and every timer callback runs under a single mutex, so the
// components it wires together never see concurrent calls.
package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/clock"
	"github.com/sweeney/telemetry-bridge/internal/configmode"
	"github.com/sweeney/telemetry-bridge/internal/lock"
	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
	"github.com/sweeney/telemetry-bridge/internal/relay"
	"github.com/sweeney/telemetry-bridge/internal/telemetry"
	"github.com/sweeney/telemetry-bridge/internal/threshold"
)

// HistogramTimeout bounds a histogram query.
const HistogramTimeout = 5 * time.Second

// Conn is a connected peer on either channel.
type Conn interface {
	ID() string
	// Send queues msg without blocking.
	Send(msg protocol.Message) error
	Close() error
	// Local reports whether the peer connected over loopback.
	Local() bool
}

// HistogramSource computes the histogram served to operators.
type HistogramSource interface {
	Histogram(ctx context.Context) ([]int, error)
}

// Options configures a Hub. Zero values select defaults; a nil Threshold
// starts at threshold.Default.
type Options struct {
	Clock      clock.Clock
	LockLease  time.Duration
	AckTimeout time.Duration
	Threshold  *float64
	History    HistogramSource
	Recorders  []telemetry.Recorder
	Mirror     threshold.Mirror
	Indicator  lock.Indicator
	Metrics    *metrics.Bridge
	Logger     *zap.SugaredLogger
}

// Hub is the coordinator shared by both channels.
type Hub struct {
	mu       sync.Mutex
	frontend map[string]Conn
	agent    Conn

	locks     *lock.Manager
	config    *configmode.Coordinator
	telemetry *telemetry.Gateway
	threshold *threshold.Registry
	relay     *relay.Relay
	history   HistogramSource

	clock   clock.Clock
	metrics *metrics.Bridge
	log     *zap.SugaredLogger
}

// New wires a Hub from opts.
func New(opts Options) *Hub {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	history := opts.History
	if history == nil {
		history = StaticHistogram{}
	}
	initial := threshold.Default
	if opts.Threshold != nil {
		initial = *opts.Threshold
	}

	h := &Hub{
		frontend: make(map[string]Conn),
		history:  history,
		metrics:  opts.Metrics,
		log:      log.Named("hub"),
	}
	h.clock = serialClock{Clock: clk, mu: &h.mu}

	h.locks = lock.NewManager(h, h.clock, opts.LockLease, opts.Metrics, log)
	if opts.Indicator != nil {
		h.locks.SetIndicator(opts.Indicator)
	}
	h.config = configmode.New(h, h.clock, opts.AckTimeout, opts.Metrics, log)
	h.telemetry = telemetry.NewGateway(h, h.clock, opts.Metrics, log, opts.Recorders...)
	h.threshold = threshold.New(initial, h, opts.Mirror, opts.Metrics, log)
	h.relay = relay.New(frontendChannel{h}, agentChannel{h}, opts.Metrics, log)
	return h
}

// serialClock runs timer callbacks under the hub mutex.
type serialClock struct {
	clock.Clock
	mu *sync.Mutex
}

func (c serialClock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	return c.Clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		f()
	})
}

// StaticHistogram serves a fixed histogram when no store is configured.
type StaticHistogram struct{}

// Histogram returns the fixed bins.
func (StaticHistogram) Histogram(context.Context) ([]int, error) {
	return []int{0, 2, 5, 3, 1, 0, 0, 4, 2, 1}, nil
}
