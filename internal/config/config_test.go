package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lidarplot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.WindowTitle != "Lidar Scan" || cfg.VideoPath != "lidar_scan.avi" || cfg.VideoFPS != 10 {
		t.Errorf("output defaults = %q %q %v", cfg.WindowTitle, cfg.VideoPath, cfg.VideoFPS)
	}
	if cfg.Topic != "/scan" || cfg.Source != SourceRosbridge {
		t.Errorf("input defaults = %q %q", cfg.Source, cfg.Topic)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
source: ingest
topic: /front/scan
listen_addr: ":9000"
window: false
video_path: ""
rosbridge:
  url: ws://robot.local:9090
  reconnect_interval: 5s
serial:
  port: /dev/ttyUSB1
  bins: 360
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Source = SourceIngest
	want.Topic = "/front/scan"
	want.ListenAddr = ":9000"
	want.Window = false
	want.VideoPath = ""
	want.Rosbridge.URL = "ws://robot.local:9090"
	want.Rosbridge.ReconnectInterval = 5 * time.Second
	want.Serial.Port = "/dev/ttyUSB1"
	want.Serial.Bins = 360

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "source: [unclosed")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LIDARPLOT_SOURCE", "synthetic")
	t.Setenv("LIDARPLOT_TOPIC", "/rear/scan")
	t.Setenv("ROSBRIDGE_URL", "ws://10.0.0.2:9090")
	t.Setenv("LIDARPLOT_SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("LIDARPLOT_LISTEN", ":7000")
	t.Setenv("LIDARPLOT_VIDEO", "")
	t.Setenv("LIDARPLOT_WINDOW", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	want := Default()
	want.Source = SourceSynthetic
	want.Topic = "/rear/scan"
	want.Rosbridge.URL = "ws://10.0.0.2:9090"
	want.Serial.Port = "/dev/ttyACM0"
	want.ListenAddr = ":7000"
	want.VideoPath = ""
	want.Window = false
	want.LogLevel = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ApplyEnv() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnvInvalidBool(t *testing.T) {
	t.Setenv("LIDARPLOT_WINDOW", "sometimes")

	cfg := Default()
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("expected error for invalid LIDARPLOT_WINDOW")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"unknown source", func(c *Config) { c.Source = "sonar" }, true},
		{"serial", func(c *Config) { c.Source = SourceSerial }, false},
		{"serial without port", func(c *Config) {
			c.Source = SourceSerial
			c.Serial.Port = ""
		}, true},
		{"bad rosbridge url", func(c *Config) { c.Rosbridge.URL = "http://x" }, true},
		{"bad url ignored for synthetic", func(c *Config) {
			c.Source = SourceSynthetic
			c.Rosbridge.URL = "http://x"
		}, false},
		{"empty topic", func(c *Config) { c.Topic = "" }, true},
		{"ingest without listen", func(c *Config) {
			c.Source = SourceIngest
			c.ListenAddr = ""
		}, true},
		{"dashboard without listen", func(c *Config) {
			c.Dashboard = true
			c.ListenAddr = ""
		}, true},
		{"zero fps", func(c *Config) { c.VideoFPS = 0 }, true},
		{"zero fps without video", func(c *Config) {
			c.VideoFPS = 0
			c.VideoPath = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNeedsServer(t *testing.T) {
	cfg := Default()
	if cfg.NeedsServer() {
		t.Error("rosbridge without dashboard should not need a server")
	}
	cfg.Dashboard = true
	if !cfg.NeedsServer() {
		t.Error("dashboard needs a server")
	}
	cfg = Default()
	cfg.Source = SourceIngest
	if !cfg.NeedsServer() {
		t.Error("ingest needs a server")
	}
}
