package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/relabs-tech/attitude_monitor/internal/orientation"
)

// Config holds all application configuration values.
type Config struct {
	// Device link
	DeviceAddress      string
	AutoConnect        bool
	LiveReconnect      bool
	ReconnectBackoffMS int
	DialTimeoutMS      int

	// Pipeline
	SmoothingFactor  float64
	StaleThresholdMS int
	RenderIntervalMS int // consumer tick period

	// Web Server
	WebServerPort int

	// MQTT (publishing is disabled when MQTTBroker is empty)
	MQTTBroker    string
	MQTTClientID  string
	TopicAttitude string
	TopicStatus   string

	// Console
	ConsoleLogInterval int // milliseconds, 0 disables periodic pose lines

	// Simulator
	SimulatorPort         int
	SimulatorIntervalMS   int
	SimulatorGarbageEvery int // emit a malformed frame every N frames, 0 = never
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		DeviceAddress:      "ws://192.168.68.108:81",
		AutoConnect:        true,
		LiveReconnect:      true,
		ReconnectBackoffMS: 2000,
		DialTimeoutMS:      5000,

		SmoothingFactor:  orientation.DefaultSmoothingFactor,
		StaleThresholdMS: 1200,
		RenderIntervalMS: 33,

		WebServerPort: 8080,

		MQTTClientID:  "attitude-monitor-" + uuid.NewString(),
		TopicAttitude: "attitude/snapshot",
		TopicStatus:   "attitude/status",

		ConsoleLogInterval: 500,

		SimulatorPort:       81,
		SimulatorIntervalMS: 50,
	}
}

// Load reads the KEY=VALUE configuration file and returns a Config struct.
// Blank lines and # comments are ignored; unknown keys are an error.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return FromMap(values)
}

// FromMap applies values over the defaults and validates the result.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()

	// Sorted so the first reported error does not depend on map order.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := cfg.setValue(key, strings.TrimSpace(values[key])); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Device link
	case "DEVICE_ADDRESS":
		c.DeviceAddress = value
	case "AUTO_CONNECT":
		c.AutoConnect, err = parseBool(key, value)
	case "LIVE_RECONNECT":
		c.LiveReconnect, err = parseBool(key, value)
	case "RECONNECT_BACKOFF_MS":
		c.ReconnectBackoffMS, err = parseInt(key, value)
	case "DIAL_TIMEOUT_MS":
		c.DialTimeoutMS, err = parseInt(key, value)

	// Pipeline
	case "SMOOTHING_FACTOR":
		c.SmoothingFactor, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = fmt.Errorf("invalid SMOOTHING_FACTOR %q: %w", value, err)
		}
	case "STALE_THRESHOLD_MS":
		c.StaleThresholdMS, err = parseInt(key, value)
	case "RENDER_INTERVAL_MS":
		c.RenderIntervalMS, err = parseInt(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_ATTITUDE":
		c.TopicAttitude = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Console
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInt(key, value)

	// Simulator
	case "SIMULATOR_PORT":
		c.SimulatorPort, err = parseInt(key, value)
	case "SIMULATOR_INTERVAL_MS":
		c.SimulatorIntervalMS, err = parseInt(key, value)
	case "SIMULATOR_GARBAGE_EVERY":
		c.SimulatorGarbageEvery, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// validate checks ranges and required fields.
func (c *Config) validate() error {
	if !strings.HasPrefix(c.DeviceAddress, "ws://") {
		return fmt.Errorf("DEVICE_ADDRESS must start with ws://, got %q", c.DeviceAddress)
	}
	if !(c.SmoothingFactor >= 0 && c.SmoothingFactor < 1) {
		return fmt.Errorf("SMOOTHING_FACTOR must be in [0,1), got %v", c.SmoothingFactor)
	}
	if c.ReconnectBackoffMS <= 0 {
		return fmt.Errorf("RECONNECT_BACKOFF_MS must be positive, got %d", c.ReconnectBackoffMS)
	}
	if c.DialTimeoutMS <= 0 {
		return fmt.Errorf("DIAL_TIMEOUT_MS must be positive, got %d", c.DialTimeoutMS)
	}
	if c.StaleThresholdMS <= 0 {
		return fmt.Errorf("STALE_THRESHOLD_MS must be positive, got %d", c.StaleThresholdMS)
	}
	if c.RenderIntervalMS <= 0 {
		return fmt.Errorf("RENDER_INTERVAL_MS must be positive, got %d", c.RenderIntervalMS)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	if c.SimulatorPort <= 0 || c.SimulatorPort > 65535 {
		return fmt.Errorf("SIMULATOR_PORT must be 1-65535, got %d", c.SimulatorPort)
	}
	if c.SimulatorIntervalMS <= 0 {
		return fmt.Errorf("SIMULATOR_INTERVAL_MS must be positive, got %d", c.SimulatorIntervalMS)
	}
	if c.ConsoleLogInterval < 0 || c.SimulatorGarbageEvery < 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL and SIMULATOR_GARBAGE_EVERY must not be negative")
	}
	if c.MQTTBroker != "" && (c.MQTTClientID == "" || c.TopicAttitude == "" || c.TopicStatus == "") {
		return fmt.Errorf("MQTT_CLIENT_ID, TOPIC_ATTITUDE and TOPIC_STATUS are required when MQTT_BROKER is set")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
