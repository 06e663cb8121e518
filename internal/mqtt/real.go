package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/telemetry"
)

// DefaultBufferSize is how many messages are kept while the broker is
// unreachable.
const DefaultBufferSize = 256

// Config configures a RealPublisher.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	BufferSize  int
}

// RealPublisher publishes to an actual MQTT broker. Publish calls return
// immediately; while the connection is down messages are buffered and
// replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *zap.SugaredLogger
	now    func() time.Time

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher and starts connecting to the broker.
// The first connection attempt is awaited briefly; after that the client
// keeps retrying in the background.
func NewRealPublisher(cfg Config, log *zap.SugaredLogger) (*RealPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "telemetry-bridge"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topics: NewTopics(cfg.TopicPrefix),
		log:    log.Named("mqtt"),
		now:    time.Now,
		buffer: newRingBuffer(cfg.BufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(WillPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnw("connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warnw("broker not reachable yet, buffering", "broker", cfg.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// PublishSample sends a telemetry sample at QoS 0.
func (p *RealPublisher) PublishSample(s telemetry.Sample) error {
	payload, err := FormatSamplePayload(s)
	if err != nil {
		return fmt.Errorf("format sample payload: %w", err)
	}
	p.publish(bufferedMsg{topic: p.topics.Telemetry, payload: payload})
	return nil
}

// PublishThreshold sends the threshold at QoS 1, retained.
func (p *RealPublisher) PublishThreshold(v float64) error {
	payload, err := FormatThresholdPayload(v, p.now())
	if err != nil {
		return fmt.Errorf("format threshold payload: %w", err)
	}
	p.publish(bufferedMsg{topic: p.topics.Threshold, payload: payload, qos: 1, retained: true})
	return nil
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Flush waits up to timeout for buffered messages to be handed to the
// client. Used before shutdown so the SHUTDOWN event is not lost.
func (p *RealPublisher) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		n := p.buffer.len()
		p.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

func (p *RealPublisher) publish(m bufferedMsg) {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if first := p.buffer.push(m); first {
			p.log.Warnw("offline buffer full, dropping oldest", "capacity", p.buffer.capacity)
		}
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			p.log.Warnw("publish timeout", "topic", m.topic)
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warnw("publish failed", "topic", m.topic, "error", err)
		}
	}()
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	p.log.Infow("connected", "replaying", len(pending))
	for _, m := range pending {
		p.send(m)
	}
}
