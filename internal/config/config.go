// Package config loads the bridge configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the complete bridge configuration.
type Config struct {
	Frontend   FrontendConfig   `yaml:"frontend"`
	Agent      AgentConfig      `yaml:"agent"`
	Lock       LockConfig       `yaml:"lock"`
	ConfigMode ConfigModeConfig `yaml:"config_mode"`
	Threshold  ThresholdConfig  `yaml:"threshold"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	History    HistoryConfig    `yaml:"history"`
	Users      UsersConfig      `yaml:"users"`
	Login      LoginConfig      `yaml:"login"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	Status     StatusConfig     `yaml:"status"`
	Log        LogConfig        `yaml:"log"`
}

// FrontendConfig configures the operator listener.
type FrontendConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AgentConfig configures the agent listener. An empty Token admits any agent.
type AgentConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

// LockConfig sets the config lock lease.
type LockConfig struct {
	Lease time.Duration `yaml:"lease"`
}

// ConfigModeConfig sets how long config mode waits for the agent.
type ConfigModeConfig struct {
	AckTimeout time.Duration `yaml:"ack_timeout"`
}

// ThresholdConfig holds the threshold used at startup.
type ThresholdConfig struct {
	Default float64 `yaml:"default"`
}

// MQTTConfig configures the telemetry mirror. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HistoryConfig configures the sample store. An empty Path keeps the fixed histogram.
type HistoryConfig struct {
	Path string  `yaml:"path"`
	Bins int     `yaml:"bins"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// UsersConfig points at the YAML users file. An empty Path disables login.
type UsersConfig struct {
	Path string `yaml:"path"`
}

// LoginConfig limits login attempts per client IP. Zero disables the limit.
type LoginConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
}

// GPIOConfig drives the lock indicator LED. A negative pin disables it.
type GPIOConfig struct {
	Chip       string `yaml:"chip"`
	LockLEDPin int    `yaml:"lock_led_pin"`
}

// StatusConfig sets the status refresh and heartbeat intervals.
type StatusConfig struct {
	Refresh   time.Duration `yaml:"refresh"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := seed()
	cfg.applyDefaults()
	return &cfg
}

// seed holds the defaults whose zero value is a meaningful setting. They
// are set before decoding so an explicit zero in the file survives.
func seed() Config {
	return Config{
		Threshold: ThresholdConfig{Default: 22},
		GPIO:      GPIOConfig{LockLEDPin: -1},
	}
}

// Load reads path, fills in defaults and validates the result. An empty
// path yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := seed()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Frontend.Addr == "" {
		c.Frontend.Addr = ":4000"
	}
	if c.Agent.Addr == "" {
		c.Agent.Addr = ":4001"
	}
	if c.Lock.Lease == 0 {
		c.Lock.Lease = 3 * time.Minute
	}
	if c.ConfigMode.AckTimeout == 0 {
		c.ConfigMode.AckTimeout = 5 * time.Second
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "telemetry-bridge"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "telemetry-bridge"
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = 256
	}
	if c.History.Bins == 0 {
		c.History.Bins = 10
	}
	if c.History.Min == 0 && c.History.Max == 0 {
		c.History.Max = 100
	}
	if c.Login.RatePerMinute == 0 {
		c.Login.RatePerMinute = 5
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	if c.Status.Refresh == 0 {
		c.Status.Refresh = time.Second
	}
	if c.Status.Heartbeat == 0 {
		c.Status.Heartbeat = 15 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Frontend.Addr == c.Agent.Addr {
		return fmt.Errorf("frontend.addr and agent.addr must differ (both %q)", c.Frontend.Addr)
	}
	if c.Lock.Lease < 0 {
		return fmt.Errorf("lock.lease must be positive, got %s", c.Lock.Lease)
	}
	if c.ConfigMode.AckTimeout < 0 {
		return fmt.Errorf("config_mode.ack_timeout must be positive, got %s", c.ConfigMode.AckTimeout)
	}
	if c.Threshold.Default < 0 || c.Threshold.Default > 200 {
		return fmt.Errorf("threshold.default must be within [0, 200], got %v", c.Threshold.Default)
	}
	if c.History.Bins < 1 {
		return fmt.Errorf("history.bins must be at least 1, got %d", c.History.Bins)
	}
	if c.History.Max <= c.History.Min {
		return fmt.Errorf("history.max (%v) must be greater than history.min (%v)", c.History.Max, c.History.Min)
	}
	if c.Login.RatePerMinute < 0 {
		return fmt.Errorf("login.rate_per_minute must not be negative, got %d", c.Login.RatePerMinute)
	}
	if c.Status.Refresh <= 0 {
		return fmt.Errorf("status.refresh must be positive, got %s", c.Status.Refresh)
	}
	if c.Status.Heartbeat < 0 {
		return fmt.Errorf("status.heartbeat must not be negative, got %s", c.Status.Heartbeat)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
