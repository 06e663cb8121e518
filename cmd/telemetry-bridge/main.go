// Command telemetry-bridge relays commands, acknowledgements and telemetry
// between operator frontends and a single field agent.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/telemetry-bridge/internal/config"
	"github.com/sweeney/telemetry-bridge/internal/credentials"
	"github.com/sweeney/telemetry-bridge/internal/gpio"
	"github.com/sweeney/telemetry-bridge/internal/history"
	"github.com/sweeney/telemetry-bridge/internal/hub"
	"github.com/sweeney/telemetry-bridge/internal/metrics"
	"github.com/sweeney/telemetry-bridge/internal/mqtt"
	"github.com/sweeney/telemetry-bridge/internal/status"
	"github.com/sweeney/telemetry-bridge/internal/telemetry"
	"github.com/sweeney/telemetry-bridge/internal/web"
	"github.com/sweeney/telemetry-bridge/internal/ws"
)

const shutdownTimeout = 5 * time.Second

// overrides are command-line values that take precedence over the config
// file when non-empty.
type overrides struct {
	frontendAddr string
	agentAddr    string
	broker       string
	historyPath  string
	usersPath    string
	logLevel     string
}

func main() {
	configPath := flag.String("config", "", "YAML config file (built-in defaults when empty)")
	frontendAddr := flag.String("frontend", "", "Frontend listen address (overrides frontend.addr)")
	agentAddr := flag.String("agent", "", "Agent listen address (overrides agent.addr)")
	broker := flag.String("broker", "", "MQTT broker address (overrides mqtt.broker)")
	historyPath := flag.String("history", "", "SQLite history database (overrides history.path)")
	usersPath := flag.String("users", "", "Users file for /api/login (overrides users.path)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides log.level)")
	hashPassword := flag.Bool("hash-password", false, "Read a password from stdin, print its bcrypt hash for the users file and exit")

	flag.Parse()

	if *hashPassword {
		if err := printPasswordHash(os.Stdin, os.Stdout); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyOverrides(cfg, overrides{
		frontendAddr: *frontendAddr,
		agentAddr:    *agentAddr,
		broker:       *broker,
		historyPath:  *historyPath,
		usersPath:    *usersPath,
		logLevel:     *logLevel,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger.Sugar()); err != nil {
		logger.Sugar().Fatalw("fatal", "error", err)
	}
}

// printPasswordHash reads one password line from r and writes its hash to w.
func printPasswordHash(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := credentials.Hash(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.frontendAddr != "" {
		cfg.Frontend.Addr = o.frontendAddr
	}
	if o.agentAddr != "" {
		cfg.Agent.Addr = o.agentAddr
	}
	if o.broker != "" {
		cfg.MQTT.Broker = o.broker
	}
	if o.historyPath != "" {
		cfg.History.Path = o.historyPath
	}
	if o.usersPath != "" {
		cfg.Users.Path = o.usersPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := hub.Options{
		LockLease:  cfg.Lock.Lease,
		AckTimeout: cfg.ConfigMode.AckTimeout,
		Threshold:  &cfg.Threshold.Default,
		Metrics:    m,
		Logger:     log,
	}

	// MQTT mirror
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			BufferSize:  cfg.MQTT.BufferSize,
		}, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		publisher, mqttStatus = rp, rp

		mirror := mqtt.NewMirror(rp, log)
		opts.Recorders = append(opts.Recorders, mirror)
		opts.Mirror = mirror
		mirror.PublishThreshold(cfg.Threshold.Default)
	}

	// Telemetry history
	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path, history.Config{
			Bins: cfg.History.Bins,
			Min:  cfg.History.Min,
			Max:  cfg.History.Max,
		}, log)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer store.Close()
		opts.History = store
		opts.Recorders = append(opts.Recorders, store)
	}

	// Lock indicator
	if cfg.GPIO.LockLEDPin >= 0 {
		led, err := gpio.NewRealIndicator(cfg.GPIO.Chip, cfg.GPIO.LockLEDPin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer led.Close()
		opts.Indicator = led
	}

	webOpts := web.Options{
		LoginPerMinute: cfg.Login.RatePerMinute,
		AllowedOrigins: cfg.Frontend.AllowedOrigins,
		Gatherer:       reg,
		Logger:         log,
	}
	if cfg.Users.Path != "" {
		users, err := credentials.Load(cfg.Users.Path)
		if err != nil {
			return fmt.Errorf("init users: %w", err)
		}
		log.Infow("users loaded", "count", users.Len())
		webOpts.Auth = users
	}

	h := hub.New(opts)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		FrontendAddr: cfg.Frontend.Addr,
		AgentAddr:    cfg.Agent.Addr,
		Broker:       cfg.MQTT.Broker,
		HeartbeatMs:  cfg.Status.Heartbeat.Milliseconds(),
		LockLeaseMs:  cfg.Lock.Lease.Milliseconds(),
		AckTimeoutMs: cfg.ConfigMode.AckTimeout.Milliseconds(),
		HistoryPath:  cfg.History.Path,
	})
	refresh(h, mqttStatus, tracker)
	publishSystem(publisher, tracker, "STARTUP", "", true, log)

	webOpts.Tracker = tracker
	webOpts.Channel = ws.NewHandler(h.Frontend(), ws.Options{
		AllowedOrigins: cfg.Frontend.AllowedOrigins,
		Logger:         log.Named("frontend"),
	})
	frontendSrv := web.New(cfg.Frontend.Addr, webOpts)
	agentSrv := web.NewAgent(cfg.Agent.Addr, ws.NewHandler(h.Agent(), ws.Options{
		Token:  cfg.Agent.Token,
		Logger: log.Named("agent"),
	}), log)

	for name, srv := range map[string]*web.Server{"frontend": frontendSrv, "agent": agentSrv} {
		go func(name string, srv *web.Server) {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("http server error", "server", name, "error", err)
			}
		}(name, srv)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		h.Shutdown()
		frontendSrv.Shutdown(ctx)
		agentSrv.Shutdown(ctx)
	}()

	log.Infow("started",
		"frontend", cfg.Frontend.Addr,
		"agent", cfg.Agent.Addr,
		"broker", cfg.MQTT.Broker,
		"history", cfg.History.Path,
		"lease", cfg.Lock.Lease,
		"heartbeat", cfg.Status.Heartbeat,
	)

	refreshTicker := time.NewTicker(cfg.Status.Refresh)
	defer refreshTicker.Stop()

	var heartbeat <-chan time.Time
	if cfg.Status.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Status.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(h, publisher, mqttStatus, tracker, refreshTicker.C, heartbeat, sigCh, log)
}

// stateSource is the part of the hub the main loop reads.
type stateSource interface {
	State() hub.State
}

func runLoop(src stateSource, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, tick, heartbeat <-chan time.Time, sig <-chan os.Signal, log *zap.SugaredLogger) error {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			log.Infow("shutting down", "signal", name)
			refresh(src, mqttStatus, tracker)
			publishSystem(publisher, tracker, "SHUTDOWN", name, true, log)
			return nil

		case <-tick:
			refresh(src, mqttStatus, tracker)

		case <-heartbeat:
			refresh(src, mqttStatus, tracker)
			b := tracker.Snapshot().Bridge
			log.Infow("heartbeat",
				"lock_holder", b.LockHolder,
				"config_active", b.ConfigActive,
				"frontend_peers", b.FrontendPeers,
				"agent", b.AgentConnected,
			)
			publishSystem(publisher, tracker, "HEARTBEAT", "", false, log)
		}
	}
}

// refresh copies hub and MQTT state into the tracker for HTTP consumers.
func refresh(src stateSource, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker) {
	tracker.Update(toBridge(src.State()))
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

func toBridge(s hub.State) status.Bridge {
	b := status.Bridge{
		LockHolder:     s.LockHolder,
		LeaseExpiry:    s.LeaseExpiry,
		ConfigActive:   s.ConfigActive,
		ConfigOwner:    s.ConfigOwner,
		ConfigReady:    s.ConfigReady,
		Threshold:      s.Threshold,
		FrontendPeers:  s.FrontendPeers,
		AgentConnected: s.AgentConnected,
	}
	if s.LastSample != nil {
		b.LastSample = fromSample(*s.LastSample)
	}
	return b
}

func fromSample(s telemetry.Sample) *status.Sample {
	return &status.Sample{ID: s.ID, Wert: s.Wert, Zeit: s.Zeit}
}

func publishSystem(publisher mqtt.Publisher, tracker *status.Tracker, event, reason string, retained bool, log *zap.SugaredLogger) {
	if publisher == nil {
		return
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Warnw("publish system event", "event", event, "error", err)
		return
	}
	log.Debugw("published system event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
