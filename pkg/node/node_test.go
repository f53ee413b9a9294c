package node

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/teslashibe/go-lidarplot/pkg/projector"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// recordingSink captures frames written to it.
type recordingSink struct {
	name   string
	err    error
	frames []*projector.Frame
	closed int
	order  *[]string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) WriteFrame(f *projector.Frame) error {
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	s.frames = append(s.frames, f)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed++
	return nil
}

// fakeSubscriber hands out the registered handler so tests can drive it.
type fakeSubscriber struct {
	mu      sync.Mutex
	topic   string
	handler scan.Handler
	closed  atomic.Bool
	ready   chan struct{}
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{ready: make(chan struct{})}
}

func (f *fakeSubscriber) Subscribe(topic string, h scan.Handler) (io.Closer, error) {
	f.mu.Lock()
	f.topic, f.handler = topic, h
	f.mu.Unlock()
	close(f.ready)
	return scan.CloserFunc(func() error {
		f.closed.Store(true)
		return nil
	}), nil
}

func newTestNode(t *testing.T, sinks ...Sink) *Node {
	t.Helper()
	proj, err := projector.New(projector.DefaultConfig())
	if err != nil {
		t.Fatalf("projector.New() error = %v", err)
	}
	n, err := New(proj, nil, sinks...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

func sample(ranges ...float32) *scan.Sample {
	return &scan.Sample{
		Header:         scan.Header{FrameID: "laser"},
		AngleMin:       0,
		AngleMax:       1,
		AngleIncrement: 0.1,
		RangeMin:       0.1,
		RangeMax:       10,
		Ranges:         ranges,
	}
}

func TestNewRequiresProjector(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil projector")
	}
}

func TestHandleScanFansOut(t *testing.T) {
	var order []string
	a := &recordingSink{name: "window", order: &order}
	b := &recordingSink{name: "video", order: &order}
	n := newTestNode(t, a, nil, b)

	s := sample(1, 2, 3)
	n.HandleScan(s)

	if diff := cmp.Diff([]string{"window", "video"}, order); diff != "" {
		t.Errorf("sink order mismatch (-want +got):\n%s", diff)
	}
	if len(a.frames) != 1 || a.frames[0] != b.frames[0] {
		t.Fatal("both sinks should receive the same frame")
	}

	want := n.Projector().Project(s)
	if !a.frames[0].Equal(want) {
		t.Error("sink frame differs from projector output")
	}
}

func TestSinkErrorDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("disk full")}
	good := &recordingSink{name: "good"}
	n := newTestNode(t, bad, good)

	n.HandleScan(sample(1))
	n.HandleScan(sample(1))

	if len(good.frames) != 2 {
		t.Errorf("good sink got %d frames, want 2", len(good.frames))
	}
	if got := n.Stats().SinkErrors; got != 2 {
		t.Errorf("SinkErrors = %d, want 2", got)
	}
}

func TestStatsAccumulate(t *testing.T) {
	n := newTestNode(t)

	n.HandleScan(sample(1, float32(math.NaN()), 0.01, 9))
	n.HandleScan(nil)

	st := n.Stats()
	want := Stats{
		ScansReceived:  2,
		FramesRendered: 2,
		PointsPlotted:  1,
		PointsInvalid:  2,
		OutOfBounds:    1,
		LastFrameID:    "laser",
	}
	if diff := cmp.Diff(want, st, cmp.FilterPath(func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".LastScan" || name == ".LastStats"
	}, cmp.Ignore())); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if st.LastScan.IsZero() {
		t.Error("LastScan not set")
	}
}

func TestOnFrame(t *testing.T) {
	n := newTestNode(t)

	var got projector.Stats
	var frames int
	n.OnFrame(func(s *scan.Sample, f *projector.Frame, st projector.Stats) {
		frames++
		got = st
	})
	n.HandleScan(sample(1, 2))

	if frames != 1 {
		t.Fatalf("OnFrame called %d times, want 1", frames)
	}
	if got.Plotted != 2 {
		t.Errorf("Plotted = %d, want 2", got.Plotted)
	}
}

func TestHandleScanSerialised(t *testing.T) {
	n := newTestNode(t)

	var active, overlap atomic.Int32
	n.OnFrame(func(*scan.Sample, *projector.Frame, projector.Stats) {
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.HandleScan(sample(1))
		}()
	}
	wg.Wait()

	if overlap.Load() != 0 {
		t.Error("HandleScan ran concurrently")
	}
	if got := n.Stats().FramesRendered; got != 8 {
		t.Errorf("FramesRendered = %d, want 8", got)
	}
}

func TestCloseClosesSinksOnce(t *testing.T) {
	sink := &recordingSink{name: "video"}
	n := newTestNode(t, sink)

	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	n.Close()

	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}

	n.HandleScan(sample(1))
	if len(sink.frames) != 0 {
		t.Error("frame written after Close")
	}
}

func TestRun(t *testing.T) {
	sink := &recordingSink{name: "window"}
	n := newTestNode(t, sink)
	sub := newFakeSubscriber()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, sub, "") }()

	select {
	case <-sub.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not subscribe")
	}
	if sub.topic != scan.DefaultTopic {
		t.Errorf("topic = %q, want %q", sub.topic, scan.DefaultTopic)
	}

	sub.handler(sample(1))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !sub.closed.Load() {
		t.Error("subscription not closed")
	}
	if len(sink.frames) != 1 {
		t.Errorf("sink got %d frames, want 1", len(sink.frames))
	}
}

func TestRunSubscribeError(t *testing.T) {
	n := newTestNode(t)
	sub := scan.SubscriberFunc(func(string, scan.Handler) (io.Closer, error) {
		return nil, errors.New("not connected")
	})

	if err := n.Run(context.Background(), sub, "/scan"); err == nil {
		t.Error("expected error from failing subscriber")
	}
	if err := n.Run(context.Background(), nil, "/scan"); err == nil {
		t.Error("expected error for nil subscriber")
	}
}
