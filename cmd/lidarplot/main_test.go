package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-lidarplot/internal/config"
	"github.com/teslashibe/go-lidarplot/pkg/projector"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
	"github.com/teslashibe/go-lidarplot/pkg/web"
)

// warnings counts WARN records in JSON log output.
func warnings(t *testing.T, buf *bytes.Buffer) int {
	t.Helper()
	count := 0
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", line, err)
		}
		if rec["level"] == "WARN" {
			count++
		}
	}
	return count
}

func TestBuildSinksRecorderUnavailable(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	cfg := config.Default()
	cfg.Window = false
	cfg.VideoPath = filepath.Join(t.TempDir(), "missing", "scan.avi")

	sinks := buildSinks(cfg, 500, logger)
	if len(sinks) != 0 {
		t.Errorf("buildSinks() returned %d sinks, want none", len(sinks))
	}
	if got := warnings(t, &buf); got != 1 {
		t.Errorf("warnings = %d, want 1\n%s", got, buf.String())
	}
	if !strings.Contains(buf.String(), "recording disabled") {
		t.Errorf("log missing recording disabled message:\n%s", buf.String())
	}
}

func TestBuildSinksNothingRequested(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	cfg := config.Default()
	cfg.Window = false
	cfg.VideoPath = ""

	if sinks := buildSinks(cfg, 500, logger); len(sinks) != 0 {
		t.Errorf("buildSinks() returned %d sinks, want none", len(sinks))
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output:\n%s", buf.String())
	}
}

func TestFrameHookFeedsServer(t *testing.T) {
	proj, err := projector.New(projector.DefaultConfig())
	if err != nil {
		t.Fatalf("projector.New() error = %v", err)
	}
	server, err := web.NewServer(web.DefaultConfig(), proj, nil)
	if err != nil {
		t.Fatalf("web.NewServer() error = %v", err)
	}

	var latest atomic.Pointer[scan.Sample]
	hook := frameHook(&latest, server)

	s := &scan.Sample{RangeMax: 10, Ranges: scan.Ranges{1}}
	hook(s, proj.Project(s), projector.Stats{})

	if latest.Load() != s {
		t.Error("latest sample not stored")
	}
	if server.Latest() != s {
		t.Error("server did not receive the frame")
	}
}

func TestFrameHookWithoutServer(t *testing.T) {
	var latest atomic.Pointer[scan.Sample]
	hook := frameHook(&latest, nil)

	s := &scan.Sample{}
	hook(s, nil, projector.Stats{})
	if latest.Load() != s {
		t.Error("latest sample not stored")
	}
}
