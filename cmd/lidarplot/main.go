// lidarplot renders 2-D laser scans as a top-down image.
// Scans come from a rosbridge server, from sensors pushing to the ingest
// endpoint, from a YDLidar on a serial port, or from a synthetic room; frames go to a window, a video file
// and an optional web dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/teslashibe/go-lidarplot/internal/config"
	applog "github.com/teslashibe/go-lidarplot/internal/log"
	"github.com/teslashibe/go-lidarplot/pkg/display"
	"github.com/teslashibe/go-lidarplot/pkg/ingest"
	"github.com/teslashibe/go-lidarplot/pkg/node"
	"github.com/teslashibe/go-lidarplot/pkg/projector"
	"github.com/teslashibe/go-lidarplot/pkg/rosbridge"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
	"github.com/teslashibe/go-lidarplot/pkg/snapshot"
	"github.com/teslashibe/go-lidarplot/pkg/synthetic"
	"github.com/teslashibe/go-lidarplot/pkg/web"
	"github.com/teslashibe/go-lidarplot/pkg/ydlidar"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	applog.Init(cfg.LogLevel)
	logger := applog.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("lidarplot failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags resolves configuration from defaults, an optional YAML file,
// the environment and command line flags, in that order.
func parseFlags() (config.Config, error) {
	defaults := config.Default()

	configPath := flag.String("config", "", "YAML config file")
	source := flag.String("source", defaults.Source, "Scan source: rosbridge, ingest, synthetic, serial")
	topic := flag.String("topic", defaults.Topic, "LaserScan topic")
	rosbridgeURL := flag.String("rosbridge", defaults.Rosbridge.URL, "rosbridge WebSocket URL")
	serialPort := flag.String("serial-port", defaults.Serial.Port, "Serial device of a YDLidar sensor")
	listen := flag.String("listen", defaults.ListenAddr, "HTTP listen address for ingest and dashboard")
	window := flag.Bool("window", defaults.Window, "Show frames in a window")
	title := flag.String("title", defaults.WindowTitle, "Window title")
	video := flag.String("video", defaults.VideoPath, "Record frames to this video file (empty disables)")
	fps := flag.Float64("fps", defaults.VideoFPS, "Video frame rate")
	dashboard := flag.Bool("dashboard", defaults.Dashboard, "Serve the web dashboard")
	snap := flag.String("snapshot", "", "Write a PNG chart of the last scan here on exit")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	// Explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.Source = *source
		case "topic":
			cfg.Topic = *topic
		case "rosbridge":
			cfg.Rosbridge.URL = *rosbridgeURL
		case "serial-port":
			cfg.Serial.Port = *serialPort
		case "listen":
			cfg.ListenAddr = *listen
		case "window":
			cfg.Window = *window
		case "title":
			cfg.WindowTitle = *title
		case "video":
			cfg.VideoPath = *video
		case "fps":
			cfg.VideoFPS = *fps
		case "dashboard":
			cfg.Dashboard = *dashboard
		case "snapshot":
			cfg.SnapshotPath = *snap
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	proj, err := projector.New(projector.DefaultConfig())
	if err != nil {
		return fmt.Errorf("projector: %w", err)
	}
	size := proj.Config().ImageSize

	sinks := buildSinks(cfg, size, logger)

	n, err := node.New(proj, applog.Component("node"), sinks...)
	if err != nil {
		return err
	}
	defer n.Close()

	var server *web.Server
	if cfg.NeedsServer() {
		wcfg := web.DefaultConfig()
		wcfg.ListenAddr = cfg.ListenAddr
		wcfg.Debug = cfg.LogLevel == "debug"
		server, err = web.NewServer(wcfg, proj, applog.Component("web"))
		if err != nil {
			return err
		}
		server.Source, server.Topic = cfg.Source, cfg.Topic
		server.NodeStats = n.Stats
	}

	var latest atomic.Pointer[scan.Sample]
	n.OnFrame(frameHook(&latest, server))

	sub, closer, err := openSource(ctx, cfg, server, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(runCtx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := n.Run(runCtx, sub, cfg.Topic); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		stop()
	}
	wg.Wait()

	st := n.Stats()
	logger.Info("node stopped",
		"scans", st.ScansReceived,
		"frames", st.FramesRendered,
		"sink_errors", st.SinkErrors,
	)

	if last := latest.Load(); cfg.SnapshotPath != "" && last != nil {
		if err := snapshot.Save(cfg.SnapshotPath, proj, last); err != nil {
			logger.Warn("failed to save snapshot", "error", err)
		} else {
			logger.Info("saved snapshot", "path", cfg.SnapshotPath)
		}
	}
	return runErr
}

// openSource returns the scan.Subscriber for the configured source and
// anything that must be closed on exit.
func openSource(ctx context.Context, cfg config.Config, server *web.Server, logger *slog.Logger) (scan.Subscriber, io.Closer, error) {
	switch cfg.Source {
	case config.SourceRosbridge:
		client, err := rosbridge.New(cfg.Rosbridge, applog.Component("rosbridge"))
		if err != nil {
			return nil, nil, err
		}
		if err := client.ConnectWithRetry(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("rosbridge: %w", err)
		}
		if server != nil {
			server.SourceStats = func() any { return client.Stats() }
		}
		return client.Scans(), client, nil

	case config.SourceIngest:
		h := ingest.NewHub(applog.Component("ingest"))
		h.RegisterRoutes(server.App())
		h.RegisterAPIRoutes(server.App().Group("/api"))
		server.SourceStats = func() any { return h.GetStats() }
		logger.Info("waiting for sensors", "endpoint", "ws://"+cfg.ListenAddr+"/ws/scan/:sensor")
		return h, nil, nil

	case config.SourceSerial:
		l, err := ydlidar.Open(cfg.Serial, applog.Component("ydlidar"))
		if err != nil {
			return nil, nil, err
		}
		if server != nil {
			server.SourceStats = func() any { return l.Stats() }
		}
		return l, nil, nil

	case config.SourceSynthetic:
		return synthetic.NewGenerator("synthetic_laser"), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
}

// buildSinks opens the window and video outputs cfg asks for. A recorder
// that cannot be opened is reported once and left out.
func buildSinks(cfg config.Config, size int, logger *slog.Logger) []node.Sink {
	var sinks []node.Sink
	if cfg.Window {
		sinks = append(sinks, display.NewWindow(cfg.WindowTitle))
	}
	if cfg.VideoPath != "" {
		rec, err := display.OpenRecorder(cfg.VideoPath, cfg.VideoFPS, size)
		if err != nil {
			logger.Warn("could not open video writer, recording disabled", "path", cfg.VideoPath, "error", err)
		} else {
			logger.Info("recording video", "path", rec.Path(), "fps", cfg.VideoFPS)
			sinks = append(sinks, rec)
		}
	}
	return sinks
}

// frameHook keeps the latest sample for the exit snapshot and feeds the
// web server whenever one is running.
func frameHook(latest *atomic.Pointer[scan.Sample], server *web.Server) node.FrameFunc {
	return func(s *scan.Sample, f *projector.Frame, st projector.Stats) {
		latest.Store(s)
		if server != nil {
			server.HandleFrame(s, f, st)
		}
	}
}
