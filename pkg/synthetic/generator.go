// Package synthetic generates LaserScan samples of a simulated room for
// demos and offline runs.
package synthetic

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// Generator produces scans taken from the centre of a rectangular room
// with one obstacle circling the sensor.
type Generator struct {
	frameID string
	startNs int64
	seq     atomic.Uint64

	// Configuration
	PointCount     int     // readings per revolution
	ScanRate       float64 // revolutions per second
	RoomFront      float64 // metres from the sensor to the front wall
	RoomBack       float64 // metres from the sensor to the back wall
	RoomHalfWidth  float64 // metres from the sensor to each side wall
	ObstacleRadius float64 // metres
	ObstacleOrbit  float64 // metres, radius of the obstacle's path
	ObstacleSpeed  float64 // radians per second around the sensor
	Noise          float64 // metres, standard deviation of range noise
	DropoutRate    float64 // fraction of readings reported as NaN
	RangeMin       float32
	RangeMax       float32

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator whose scans carry frameID.
func NewGenerator(frameID string) *Generator {
	return &Generator{
		frameID:        frameID,
		startNs:        time.Now().UnixNano(),
		PointCount:     360,
		ScanRate:       10.0,
		RoomFront:      4.0,
		RoomBack:       3.0,
		RoomHalfWidth:  2.5,
		ObstacleRadius: 0.3,
		ObstacleOrbit:  1.5,
		ObstacleSpeed:  0.5,
		Noise:          0.01,
		DropoutRate:    0.02,
		RangeMin:       0.15,
		RangeMax:       12.0,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes the generated noise reproducible.
func (g *Generator) Seed(seed int64) {
	g.mu.Lock()
	g.rng = rand.New(rand.NewSource(seed))
	g.mu.Unlock()
}

// NextScan generates the scan for the current time.
func (g *Generator) NextScan() *scan.Sample {
	return g.ScanAt(time.Now())
}

// ScanAt generates the scan the sensor would see at t.
func (g *Generator) ScanAt(t time.Time) *scan.Sample {
	g.seq.Add(1)

	n := g.PointCount
	if n < 1 {
		n = 1
	}
	inc := 2 * math.Pi / float64(n)
	scanTime := float32(1 / g.ScanRate)
	timeInc := scan.TimeIncrement(scanTime, n)

	s := &scan.Sample{
		Header: scan.Header{
			Stamp:   scan.StampFromTime(t),
			FrameID: g.frameID,
		},
		AngleMin:       float32(-math.Pi),
		AngleMax:       float32(math.Pi - inc),
		AngleIncrement: float32(inc),
		ScanTime:       scanTime,
		TimeIncrement:  timeInc,
		RangeMin:       g.RangeMin,
		RangeMax:       g.RangeMax,
		Ranges:         make(scan.Ranges, n),
		Intensities:    make([]float32, n),
	}

	elapsed := float64(t.UnixNano()-g.startNs) / 1e9
	phase := elapsed * g.ObstacleSpeed
	ox := g.ObstacleOrbit * math.Cos(phase)
	oy := g.ObstacleOrbit * math.Sin(phase)

	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < n; i++ {
		angle := -math.Pi + float64(i)*inc
		dx, dy := math.Cos(angle), math.Sin(angle)

		r := g.wallDistance(dx, dy)
		intensity := float32(100)
		if d, ok := circleDistance(dx, dy, ox, oy, g.ObstacleRadius); ok && g.ObstacleRadius > 0 && d < r {
			r = d
			intensity = 200
		}

		if g.rng.Float64() < g.DropoutRate {
			s.Ranges[i] = float32(math.NaN())
			continue
		}
		r += g.rng.NormFloat64() * g.Noise

		if r > float64(g.RangeMax) {
			s.Ranges[i] = float32(math.Inf(1))
			continue
		}
		s.Ranges[i] = float32(r)
		s.Intensities[i] = intensity
	}

	return s
}

// wallDistance returns the distance along (dx, dy) to the room walls.
func (g *Generator) wallDistance(dx, dy float64) float64 {
	best := math.Inf(1)
	if dx > 0 {
		best = math.Min(best, g.RoomFront/dx)
	} else if dx < 0 {
		best = math.Min(best, -g.RoomBack/dx)
	}
	if dy > 0 {
		best = math.Min(best, g.RoomHalfWidth/dy)
	} else if dy < 0 {
		best = math.Min(best, -g.RoomHalfWidth/dy)
	}
	return best
}

// circleDistance intersects the unit ray (dx, dy) from the origin with the
// circle centred on (cx, cy).
func circleDistance(dx, dy, cx, cy, radius float64) (float64, bool) {
	b := dx*cx + dy*cy
	c := cx*cx + cy*cy - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	t := b - math.Sqrt(disc)
	if t <= 0 {
		return 0, false
	}
	return t, true
}

// Subscribe streams generated scans to h at ScanRate until the returned
// closer is closed. The topic is informational only.
func (g *Generator) Subscribe(topic string, h scan.Handler) (io.Closer, error) {
	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if !(g.ScanRate > 0) {
		return nil, fmt.Errorf("scan rate must be positive, got %v", g.ScanRate)
	}

	interval := time.Duration(float64(time.Second) / g.ScanRate)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case t := <-ticker.C:
				h(g.ScanAt(t))
			}
		}
	}()

	var once sync.Once
	return scan.CloserFunc(func() error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return nil
	}), nil
}

// Count returns how many scans have been generated.
func (g *Generator) Count() uint64 {
	return g.seq.Load()
}
