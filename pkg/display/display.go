// Package display shows and records rendered frames with OpenCV.
package display

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-lidarplot/pkg/projector"
	"gocv.io/x/gocv"
)

// Defaults used by the lidar node.
const (
	DefaultTitle     = "Lidar Scan"
	DefaultVideoPath = "lidar_scan.avi"
	DefaultCodec     = "MJPG"
	DefaultFPS       = 10.0
)

// ToMat wraps the frame pixels in a CV_8UC3 Mat. The Mat must be closed
// before f is modified.
func ToMat(f *projector.Frame) (gocv.Mat, error) {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return gocv.NewMat(), fmt.Errorf("empty frame")
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("frame to mat: %w", err)
	}
	return mat, nil
}

// eventInterval is how often the window services GUI events between frames.
const eventInterval = 50 * time.Millisecond

// Window is a sink that shows each frame in a HighGUI window. All window
// calls run on a dedicated OS thread, so WriteFrame may be called from any
// goroutine.
type Window struct {
	title  string
	thread *uiThread
	window *gocv.Window
}

// NewWindow opens a window titled title.
func NewWindow(title string) *Window {
	if title == "" {
		title = DefaultTitle
	}
	w := &Window{title: title}
	w.thread = newUIThread(w.pollEvents, eventInterval)
	w.thread.Do(func() {
		w.window = gocv.NewWindow(title)
	})
	return w
}

// Name returns the sink name.
func (w *Window) Name() string {
	return "window"
}

// WriteFrame shows f and services the GUI event loop for 1ms.
func (w *Window) WriteFrame(f *projector.Frame) error {
	var err error
	if doErr := w.thread.Do(func() {
		if w.window == nil {
			err = fmt.Errorf("window %q closed", w.title)
			return
		}
		var mat gocv.Mat
		mat, err = ToMat(f)
		if err != nil {
			return
		}
		defer mat.Close()

		w.window.IMShow(mat)
		w.window.WaitKey(1)
	}); doErr != nil {
		return fmt.Errorf("window %q closed", w.title)
	}
	return err
}

// Close destroys the window and stops its thread.
func (w *Window) Close() error {
	var err error
	w.thread.Close(func() {
		if w.window != nil {
			err = w.window.Close()
			w.window = nil
		}
	})
	return err
}

// pollEvents keeps the window responsive while no frames arrive.
// It runs on the window thread.
func (w *Window) pollEvents() {
	if w.window != nil {
		w.window.WaitKey(1)
	}
}

// Recorder is a sink that appends each frame to a video file.
type Recorder struct {
	path   string
	size   image.Point
	writer *gocv.VideoWriter
	frames uint64
	mu     sync.Mutex
}

// OpenRecorder opens an MJPG video file of size x size pixels.
func OpenRecorder(path string, fps float64, size int) (*Recorder, error) {
	if path == "" {
		path = DefaultVideoPath
	}
	if !(fps > 0) {
		return nil, fmt.Errorf("fps must be positive, got %v", fps)
	}
	if size <= 0 {
		return nil, fmt.Errorf("size must be positive, got %d", size)
	}

	writer, err := gocv.VideoWriterFile(path, DefaultCodec, fps, size, size, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer %s: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("video writer %s not opened", path)
	}

	return &Recorder{
		path:   path,
		size:   image.Pt(size, size),
		writer: writer,
	}, nil
}

// Name returns the sink name.
func (r *Recorder) Name() string {
	return "video"
}

// Path returns the output file path.
func (r *Recorder) Path() string {
	return r.path
}

// Frames returns how many frames have been written.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// WriteFrame appends f to the video.
func (r *Recorder) WriteFrame(f *projector.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		return fmt.Errorf("recorder %s closed", r.path)
	}
	if f == nil || f.Width != r.size.X || f.Height != r.size.Y {
		return fmt.Errorf("frame size does not match video %dx%d", r.size.X, r.size.Y)
	}

	mat, err := ToMat(f)
	if err != nil {
		return err
	}
	defer mat.Close()

	if err := r.writer.Write(mat); err != nil {
		return fmt.Errorf("write video frame: %w", err)
	}
	r.frames++
	return nil
}

// Close finalises the video file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}
