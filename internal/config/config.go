package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Scanner
	UpdateInterval = 500 * time.Millisecond // Advertising channel hop interval
	TicksPerSecond = 1_000_000              // BLE timer runs at 1 MHz

	// RSSI pipeline
	CalibrationBias      = 42      // Subtracted from |rssi| before storing
	MaxBurstDelay        = 250_000 // Ticks; samples older than this relative to the newest are stale
	SampleLogCapacity    = 32
	MinimaWindowCapacity = 4

	// Display
	FrameIndexClamp = 26
	FrameCount      = FrameIndexClamp + 1
	MatrixSize      = 5

	// Interrupt priorities (higher preempts lower)
	PriorityRadio   = 1
	PriorityTimer   = 1
	PriorityDisplay = 2

	// RSSI to distance estimation
	MeasuredPower = -59.0 // RSSI at 1 meter (dBm)
	PathLossExp   = 2.5   // Path loss exponent (N)

	// App
	AppName    = "BLE-PROXIMITY"
	AppVersion = "1.0"
)

// Config holds runtime settings. Pipeline constants above are fixed at build time.
type Config struct {
	LogLevel    string        `yaml:"log_level"`
	LogFile     string        `yaml:"log_file"`
	Demo        bool          `yaml:"demo"`
	Adapter     string        `yaml:"adapter"`
	ClockOffset uint32        `yaml:"clock_offset"` // initial tick count, lets the counter wrap early
	Display     DisplayConfig `yaml:"display"`
	Diag        DiagConfig    `yaml:"diag"`
	MQTT        MQTTConfig    `yaml:"mqtt"`
	HTTP        HTTPConfig    `yaml:"http"`
}

// DisplayConfig holds LED matrix refresh settings.
type DisplayConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"` // one row-scan step per interval
	FPS             int           `yaml:"fps"`              // terminal redraw rate
}

// DiagConfig holds diagnostic channel settings.
type DiagConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// MQTTConfig holds optional telemetry settings. Empty Broker disables publishing.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig holds the optional read-only status server. Empty Listen
// disables it.
type HTTPConfig struct {
	Listen         string        `yaml:"listen"`
	StreamInterval time.Duration `yaml:"stream_interval"` // websocket push period
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ble-proximity")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Adapter:  "hci0",
		Display: DisplayConfig{
			RefreshInterval: 2 * time.Millisecond,
			FPS:             30,
		},
		Diag: DiagConfig{
			BufferSize: 16 * 1024,
		},
		MQTT: MQTTConfig{
			ClientID: "ble-proximity",
			Topic:    "proximity/estimate",
			Interval: 250 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			StreamInterval: 200 * time.Millisecond,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Display.RefreshInterval <= 0 {
		return fmt.Errorf("display.refresh_interval must be > 0")
	}
	if c.Display.FPS <= 0 || c.Display.FPS > 120 {
		return fmt.Errorf("display.fps must be in 1..120, got %d", c.Display.FPS)
	}

	if c.Diag.BufferSize < 256 {
		return fmt.Errorf("diag.buffer_size must be >= 256, got %d", c.Diag.BufferSize)
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic must not be empty when mqtt.broker is set")
		}
		if c.MQTT.Interval <= 0 {
			return fmt.Errorf("mqtt.interval must be > 0")
		}
	}

	if c.HTTP.Listen != "" && c.HTTP.StreamInterval <= 0 {
		return fmt.Errorf("http.stream_interval must be > 0")
	}

	return nil
}
