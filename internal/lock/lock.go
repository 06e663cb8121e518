// Package lock arbitrates the single exclusive configuration lock among
// frontend connections.
package lock

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/clock"
	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

// DefaultLease is how long a refreshed lock survives without another refresh.
const DefaultLease = 3 * time.Minute

// Notifier delivers messages to frontend connections.
type Notifier interface {
	Send(connID string, msg protocol.Message)
	BroadcastExcept(connID string, msg protocol.Message)
}

// Indicator reflects whether the lock is held, e.g. on an LED.
type Indicator interface {
	Set(on bool) error
}

// Manager owns the lock state. It is not safe for concurrent use; callers
// serialize every method and every timer callback.
type Manager struct {
	notify    Notifier
	clock     clock.Clock
	lease     time.Duration
	metrics   *metrics.Bridge
	log       *zap.SugaredLogger
	indicator Indicator

	holder string
	expiry time.Time
	timer  *clock.Timer
	gen    uint64
}

// NewManager creates a Manager with the lock free. A non-positive lease
// selects DefaultLease.
func NewManager(n Notifier, clk clock.Clock, lease time.Duration, m *metrics.Bridge, log *zap.SugaredLogger) *Manager {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Manager{
		notify:  n,
		clock:   clk,
		lease:   lease,
		metrics: m,
		log:     log.Named("lock"),
	}
}

// SetIndicator attaches an indicator that is switched on while the lock is held.
func (m *Manager) SetIndicator(ind Indicator) {
	m.indicator = ind
	m.indicate()
}

// Holder returns the holding connection id, or "" when free.
func (m *Manager) Holder() string { return m.holder }

// LeaseExpiry returns when the current lease runs out. Zero means no lease
// is running.
func (m *Manager) LeaseExpiry() time.Time { return m.expiry }

// Request grants the lock to connID if it is free.
func (m *Manager) Request(connID string) {
	if m.holder != "" {
		m.metrics.LockDenied(protocol.ReasonAlreadyLocked)
		m.notify.Send(connID, protocol.New(protocol.LockConfigDenied,
			protocol.Denial{Reason: protocol.ReasonAlreadyLocked, ID: m.holder}))
		return
	}
	m.holder = connID
	m.metrics.LockGranted()
	m.log.Infow("lock granted", "conn", connID)
	m.indicate()
	m.notify.Send(connID, protocol.New(protocol.LockConfigSuccess, nil))
}

// Refresh restarts the holder's lease.
func (m *Manager) Refresh(connID string) {
	if !m.owns(connID) {
		m.denyRelease(connID)
		return
	}
	m.stopTimer()
	m.expiry = m.clock.Now().Add(m.lease)
	gen := m.gen
	m.timer = m.clock.AfterFunc(m.lease, func() { m.expire(gen) })
	m.notify.Send(connID, protocol.New(protocol.LockTimeoutRefreshed,
		protocol.LeaseRefreshed{RemainingMs: m.lease.Milliseconds()}))
}

// Release frees the lock held by connID and tells everyone else.
func (m *Manager) Release(connID string) {
	if !m.owns(connID) {
		m.denyRelease(connID)
		return
	}
	m.clear()
	m.metrics.LockReleased(metrics.CauseRelease)
	m.log.Infow("lock released", "conn", connID)
	m.notify.Send(connID, protocol.New(protocol.LockReleased, nil))
	m.notify.BroadcastExcept(connID, protocol.New(protocol.LockFreed, nil))
}

// Disconnect frees the lock if connID held it.
func (m *Manager) Disconnect(connID string) {
	if !m.owns(connID) {
		return
	}
	m.clear()
	m.metrics.LockReleased(metrics.CauseDisconnect)
	m.log.Infow("lock freed by disconnect", "conn", connID)
	m.notify.BroadcastExcept(connID, protocol.New(protocol.LockFreed, nil))
}

// DenyInvalid answers a lock request carrying an unexpected payload.
func (m *Manager) DenyInvalid(connID, event string) {
	reply := protocol.LockReleasedDenied
	if event == protocol.RequestConfig {
		reply = protocol.LockConfigDenied
	}
	m.metrics.LockDenied(protocol.ReasonInvalidPayload)
	m.notify.Send(connID, protocol.New(reply, protocol.Denial{Reason: protocol.ReasonInvalidPayload}))
}

func (m *Manager) expire(gen uint64) {
	if gen != m.gen || m.holder == "" {
		return
	}
	former := m.holder
	m.timer = nil
	m.clear()
	m.metrics.LockReleased(metrics.CauseTimeout)
	m.log.Infow("lock lease expired", "conn", former)
	m.notify.Send(former, protocol.New(protocol.LockReleased, protocol.Denial{Reason: protocol.ReasonTimeout}))
	m.notify.BroadcastExcept(former, protocol.New(protocol.LockFreed, nil))
}

func (m *Manager) owns(connID string) bool {
	return m.holder != "" && m.holder == connID
}

func (m *Manager) denyRelease(connID string) {
	m.metrics.LockDenied(protocol.ReasonNotLockOwner)
	m.notify.Send(connID, protocol.New(protocol.LockReleasedDenied,
		protocol.Denial{Reason: protocol.ReasonNotLockOwner}))
}

func (m *Manager) clear() {
	m.stopTimer()
	m.holder = ""
	m.expiry = time.Time{}
	m.indicate()
}

// stopTimer cancels the lease timer. Bumping the generation also disarms a
// callback that has already been dispatched but not yet run.
func (m *Manager) stopTimer() {
	m.timer.Stop()
	m.timer = nil
	m.gen++
}

func (m *Manager) indicate() {
	if m.indicator == nil {
		return
	}
	if err := m.indicator.Set(m.holder != ""); err != nil {
		m.log.Warnw("lock indicator", "error", err)
	}
}
