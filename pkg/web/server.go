// Package web provides the live dashboard for the lidar node: a JPEG
// frame stream, a status stream and a small JSON API.
package web

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-lidarplot/pkg/hub"
	"github.com/teslashibe/go-lidarplot/pkg/node"
	"github.com/teslashibe/go-lidarplot/pkg/projector"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// Config holds dashboard settings.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// JPEGQuality is the quality of streamed frames (1-100).
	JPEGQuality int `yaml:"jpeg_quality" json:"jpeg_quality"`

	// StatusInterval is how often node stats are pushed to /ws/status.
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval"`

	// Debug enables request logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		JPEGQuality:    80,
		StatusInterval: time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive")
	}
	return nil
}

// Status is the dashboard's view of the node
type Status struct {
	Source      string        `json:"source"`
	Topic       string        `json:"topic"`
	Uptime      string        `json:"uptime"`
	Node        node.Stats    `json:"node"`
	Ranges      *scan.Summary `json:"ranges,omitempty"`
	SourceStats any           `json:"source_stats,omitempty"`
	Hubs        []hub.Stats   `json:"hubs"`
}

// Server is the web dashboard server
type Server struct {
	cfg     Config
	app     *fiber.App
	proj    *projector.Projector
	logger  *slog.Logger
	started time.Time

	// Latest rendered scan, for snapshots
	latest   *scan.Sample
	latestMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	framesHub *hub.Hub

	// Source and Topic label the status output
	Source string
	Topic  string

	// NodeStats reports node statistics
	NodeStats func() node.Stats

	// SourceStats reports transport statistics (rosbridge, ingest)
	SourceStats func() any
}

// NewServer creates a new dashboard server for frames rendered by proj
func NewServer(cfg Config, proj *projector.Projector, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if proj == nil {
		return nil, fmt.Errorf("projector is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		proj:      proj,
		logger:    log,
		started:   time.Now(),
		statusHub: hub.New("status", log),
		framesHub: hub.New("frames", log),
	}

	app := fiber.New(fiber.Config{
		AppName:               "lidarplot",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.Debug {
		app.Use(logger.New())
	}

	app.Get("/", s.handleIndex)
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleConfig)
	api.Get("/snapshot.png", s.handleSnapshot)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s, nil
}

// App returns the fiber app so other components can mount routes on it.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves the dashboard until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves the dashboard on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.framesHub.Run(ctx)
	go s.statusLoop(ctx)

	s.logger.Info("web dashboard started", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	return nil
}

// HandleFrame records the latest scan and streams the frame to viewers.
// It has the shape of node.FrameFunc.
func (s *Server) HandleFrame(sample *scan.Sample, f *projector.Frame, _ projector.Stats) {
	s.latestMu.Lock()
	s.latest = sample
	s.latestMu.Unlock()

	if f == nil || s.framesHub.ClientCount() == 0 {
		return
	}

	data, err := EncodeJPEG(f, s.cfg.JPEGQuality)
	if err != nil {
		s.logger.Warn("failed to encode frame", "error", err)
		return
	}
	s.framesHub.BroadcastBinary(data)
}

// Latest returns the most recently rendered scan, or nil.
func (s *Server) Latest() *scan.Sample {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

// Status assembles the current dashboard status
func (s *Server) Status() Status {
	st := Status{
		Source: s.Source,
		Topic:  s.Topic,
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Hubs:   []hub.Stats{s.statusHub.Stats(), s.framesHub.Stats()},
	}
	if s.NodeStats != nil {
		st.Node = s.NodeStats()
	}
	if latest := s.Latest(); latest != nil {
		sum := scan.Summarize(latest)
		st.Ranges = &sum
	}
	if s.SourceStats != nil {
		st.SourceStats = s.SourceStats()
	}
	return st
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.Status()); err != nil {
				s.logger.Warn("failed to broadcast status", "error", err)
			}
		}
	}
}

// EncodeJPEG converts a frame to JPEG bytes.
func EncodeJPEG(f *projector.Frame, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
