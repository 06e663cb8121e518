package mqtt

import (
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/telemetry"
)

// Mirror feeds accepted samples and threshold changes to a Publisher,
// logging failures instead of returning them.
type Mirror struct {
	pub Publisher
	log *zap.SugaredLogger
}

// NewMirror wraps pub.
func NewMirror(pub Publisher, log *zap.SugaredLogger) *Mirror {
	return &Mirror{pub: pub, log: log.Named("mqtt")}
}

// Record publishes an accepted sample.
func (m *Mirror) Record(s telemetry.Sample) {
	if err := m.pub.PublishSample(s); err != nil {
		m.log.Warnw("publish sample", "id", s.ID, "error", err)
	}
}

// PublishThreshold publishes a threshold change.
func (m *Mirror) PublishThreshold(v float64) {
	if err := m.pub.PublishThreshold(v); err != nil {
		m.log.Warnw("publish threshold", "value", v, "error", err)
	}
}
