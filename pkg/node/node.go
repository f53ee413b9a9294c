// Package node hosts the scan callback: it renders every incoming sample
// and hands the resulting frame to the configured sinks.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-lidarplot/pkg/projector"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// Sink consumes rendered frames (a display window, a video file, ...).
type Sink interface {
	Name() string
	WriteFrame(f *projector.Frame) error
	Close() error
}

// FrameFunc is called after every rendered frame.
type FrameFunc func(s *scan.Sample, f *projector.Frame, st projector.Stats)

// Node renders scans one at a time and fans frames out to its sinks.
type Node struct {
	proj   *projector.Projector
	logger *slog.Logger
	sinks  []Sink

	// mu serialises HandleScan; transports may call it concurrently
	mu      sync.Mutex
	onFrame FrameFunc
	stats   Stats
	closed  bool
}

// Stats contains node statistics
type Stats struct {
	ScansReceived  uint64          `json:"scans_received"`
	FramesRendered uint64          `json:"frames_rendered"`
	PointsPlotted  uint64          `json:"points_plotted"`
	PointsInvalid  uint64          `json:"points_invalid"`
	OutOfBounds    uint64          `json:"points_out_of_bounds"`
	SinkErrors     uint64          `json:"sink_errors"`
	LastFrameID    string          `json:"last_frame_id"`
	LastScan       time.Time       `json:"last_scan"`
	LastStats      projector.Stats `json:"last_stats"`
}

// New creates a node that renders with proj and writes to sinks in order.
// Nil sinks are skipped.
func New(proj *projector.Projector, logger *slog.Logger, sinks ...Sink) (*Node, error) {
	if proj == nil {
		return nil, fmt.Errorf("projector is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Node{proj: proj, logger: logger}
	for _, s := range sinks {
		if s != nil {
			n.sinks = append(n.sinks, s)
		}
	}
	return n, nil
}

// OnFrame sets the callback invoked after each frame is rendered.
// fn runs inside HandleScan and must not call back into the node.
func (n *Node) OnFrame(fn FrameFunc) {
	n.mu.Lock()
	n.onFrame = fn
	n.mu.Unlock()
}

// HandleScan renders one sample and writes the frame to every sink.
// It is the node's scan.Handler.
func (n *Node) HandleScan(s *scan.Sample) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.stats.ScansReceived++

	if s != nil {
		n.logger.Info("received scan",
			"frame_id", s.Header.FrameID,
			"points", s.PointCount(),
			"angle_min_deg", scan.Degrees(float64(s.AngleMin)),
			"angle_max_deg", scan.Degrees(float64(s.AngleMax)),
		)
		n.stats.LastFrameID = s.Header.FrameID
	}
	n.stats.LastScan = time.Now()

	frame, st := n.proj.Render(s)
	n.stats.FramesRendered++
	n.stats.PointsPlotted += uint64(st.Plotted)
	n.stats.PointsInvalid += uint64(st.Invalid)
	n.stats.OutOfBounds += uint64(st.OutOfBounds)
	n.stats.LastStats = st

	for _, sink := range n.sinks {
		if err := sink.WriteFrame(frame); err != nil {
			n.stats.SinkErrors++
			n.logger.Warn("sink write failed", "sink", sink.Name(), "error", err)
		}
	}

	if n.onFrame != nil {
		n.onFrame(s, frame, st)
	}
}

// Run subscribes the node to topic and blocks until ctx is done.
func (n *Node) Run(ctx context.Context, sub scan.Subscriber, topic string) error {
	if sub == nil {
		return fmt.Errorf("subscriber is required")
	}
	if topic == "" {
		topic = scan.DefaultTopic
	}

	closer, err := sub.Subscribe(topic, n.HandleScan)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	n.logger.Info("node subscribed", "topic", topic, "sinks", len(n.sinks))

	<-ctx.Done()

	if err := closer.Close(); err != nil {
		n.logger.Warn("failed to unsubscribe", "topic", topic, "error", err)
	}
	return nil
}

// Close releases every sink. Scans handled after Close are ignored.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	var firstErr error
	for _, sink := range n.sinks {
		if err := sink.Close(); err != nil {
			n.logger.Warn("failed to close sink", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close %s: %w", sink.Name(), err)
			}
		}
	}
	return firstErr
}

// Stats returns node statistics.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Projector returns the node's projector.
func (n *Node) Projector() *projector.Projector {
	return n.proj
}
