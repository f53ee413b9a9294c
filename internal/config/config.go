// Package config provides node settings for the lidarplot command.
//
// Settings are resolved in order: defaults, YAML file, environment,
// command-line flags. Projection geometry is not configurable here.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-lidarplot/pkg/rosbridge"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
	"github.com/teslashibe/go-lidarplot/pkg/ydlidar"
)

// Scan sources.
const (
	SourceRosbridge = "rosbridge"
	SourceIngest    = "ingest"
	SourceSynthetic = "synthetic"
	SourceSerial    = "serial"
)

// Output defaults.
const (
	DefaultWindowTitle = "Lidar Scan"
	DefaultVideoPath   = "lidar_scan.avi"
	DefaultVideoFPS    = 10.0
)

// Config holds node settings.
type Config struct {
	// Source selects where scans come from: rosbridge, ingest, synthetic
	// or serial.
	Source string `yaml:"source"`

	// Topic is the LaserScan topic to subscribe to.
	Topic string `yaml:"topic"`

	Rosbridge rosbridge.Config `yaml:"rosbridge"`
	Serial    ydlidar.Config   `yaml:"serial"`

	// ListenAddr serves the ingest endpoint and the dashboard.
	ListenAddr string `yaml:"listen_addr"`

	Window      bool   `yaml:"window"`
	WindowTitle string `yaml:"window_title"`

	// VideoPath enables recording when non-empty.
	VideoPath string  `yaml:"video_path"`
	VideoFPS  float64 `yaml:"video_fps"`

	Dashboard bool `yaml:"dashboard"`

	// SnapshotPath, when set, receives a PNG chart of the last scan on exit.
	SnapshotPath string `yaml:"snapshot_path"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the settings the node runs with when nothing is configured.
func Default() Config {
	return Config{
		Source:      SourceRosbridge,
		Topic:       scan.DefaultTopic,
		Rosbridge:   rosbridge.DefaultConfig(),
		Serial:      ydlidar.DefaultConfig(),
		ListenAddr:  ":8080",
		Window:      true,
		WindowTitle: DefaultWindowTitle,
		VideoPath:   DefaultVideoPath,
		VideoFPS:    DefaultVideoFPS,
		Dashboard:   false,
		LogLevel:    "info",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("LIDARPLOT_SOURCE"); v != "" {
		c.Source = v
	}
	if v := os.Getenv("LIDARPLOT_TOPIC"); v != "" {
		c.Topic = v
	}
	if v := os.Getenv("ROSBRIDGE_URL"); v != "" {
		c.Rosbridge.URL = v
	}
	if v := os.Getenv("LIDARPLOT_SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("LIDARPLOT_LISTEN"); v != "" {
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv("LIDARPLOT_VIDEO"); ok {
		c.VideoPath = v
	}
	if v := os.Getenv("LIDARPLOT_WINDOW"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIDARPLOT_WINDOW: %w", err)
		}
		c.Window = b
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceRosbridge:
		if err := c.Rosbridge.Validate(); err != nil {
			return fmt.Errorf("rosbridge: %w", err)
		}
	case SourceSerial:
		if err := c.Serial.Validate(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	case SourceIngest, SourceSynthetic:
	default:
		return fmt.Errorf("unknown source %q (want rosbridge, ingest, synthetic or serial)", c.Source)
	}
	if c.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if (c.Source == SourceIngest || c.Dashboard) && c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required for the ingest source and the dashboard")
	}
	if c.VideoPath != "" && !(c.VideoFPS > 0) {
		return fmt.Errorf("video_fps must be positive, got %v", c.VideoFPS)
	}
	return nil
}

// NeedsServer reports whether an HTTP server has to be started.
func (c *Config) NeedsServer() bool {
	return c.Source == SourceIngest || c.Dashboard
}
