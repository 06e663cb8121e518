// Package telemetry validates incoming temperature readings, keeps the
// latest accepted one and fans it out to the frontend channel.
package telemetry

import (
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/clock"
	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

// Notifier delivers messages to frontend connections.
type Notifier interface {
	Send(connID string, msg protocol.Message)
	Broadcast(msg protocol.Message)
}

// Recorder receives every accepted sample. Record must not block.
type Recorder interface {
	Record(s Sample)
}

// reading is the liveTemperatur payload. Pointers distinguish a missing
// field from zero; crc may arrive as a string or a number.
type reading struct {
	Wert *float64        `json:"wert"`
	Zeit *float64        `json:"zeit"`
	CRC  json.RawMessage `json:"crc"`
}

// Gateway ingests readings. It is not safe for concurrent use.
type Gateway struct {
	cache     Cache
	notify    Notifier
	clock     clock.Clock
	recorders []Recorder
	metrics   *metrics.Bridge
	log       *zap.SugaredLogger
	lastID    int64
}

// NewGateway creates a Gateway with an empty cache.
func NewGateway(n Notifier, clk clock.Clock, m *metrics.Bridge, log *zap.SugaredLogger, recorders ...Recorder) *Gateway {
	return &Gateway{
		notify:    n,
		clock:     clk,
		recorders: recorders,
		metrics:   m,
		log:       log.Named("telemetry"),
	}
}

// Ingest validates a liveTemperatur payload from connID. A valid reading
// replaces the cache and is broadcast; anything else is answered with a
// temperaturError to the sender only.
func (g *Gateway) Ingest(connID string, env protocol.Envelope) {
	var r reading
	if !env.HasPayload() || env.DecodeData(&r) != nil || r.Wert == nil || r.Zeit == nil {
		g.reject(connID, protocol.ReasonInvalidPayload)
		return
	}
	tag, err := protocol.TagString(r.CRC)
	if err != nil {
		g.reject(connID, protocol.ReasonInvalidPayload)
		return
	}

	if want := Checksum(*r.Wert, *r.Zeit); tag != want {
		g.log.Warnw("checksum mismatch", "conn", connID, "wert", *r.Wert, "zeit", *r.Zeit, "crc", tag, "expected", want)
		g.reject(connID, protocol.ReasonIntegrityMismatch)
		return
	}

	s := Sample{ID: g.nextID(), Wert: *r.Wert, Zeit: *r.Zeit}
	g.cache.Store(s)
	g.metrics.TelemetryAccepted(s.Wert)
	g.notify.Broadcast(protocol.New(protocol.Temperatur, s))
	for _, rec := range g.recorders {
		rec.Record(s)
	}
}

// Connect sends the cached sample, if any, to a newly connected frontend.
func (g *Gateway) Connect(connID string) {
	if s, ok := g.cache.Latest(); ok {
		g.notify.Send(connID, protocol.New(protocol.Temperatur, s))
	}
}

// Latest returns the cached sample.
func (g *Gateway) Latest() (Sample, bool) {
	return g.cache.Latest()
}

func (g *Gateway) reject(connID, reason string) {
	g.metrics.TelemetryRejected(reason)
	g.notify.Send(connID, protocol.Fail(protocol.TemperaturError, reason, ""))
}

// nextID returns the receive time in milliseconds, bumped if needed so ids
// strictly increase even when samples arrive within the same millisecond.
func (g *Gateway) nextID() int64 {
	id := g.clock.Now().UnixMilli()
	if id <= g.lastID {
		id = g.lastID + 1
	}
	g.lastID = id
	return id
}
