// Package projector renders a planar range scan as a top-down image.
//
// Every valid reading is converted from polar sensor coordinates to a
// Cartesian point (x forward, y left), rotated 90° clockwise about the
// origin, scaled by MetersPerPixel and offset to the image centre with the
// row axis inverted. Points that fall outside the raster are
// dropped. A cross marks the sensor origin.
package projector

import (
	"fmt"
	"image"
	"math"

	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// Stats describes what happened to the readings of one sample.
type Stats struct {
	Count       int `json:"count"`         // readings considered
	Plotted     int `json:"plotted"`       // readings drawn
	Invalid     int `json:"invalid"`       // outside range limits or NaN
	OutOfBounds int `json:"out_of_bounds"` // valid but outside the raster
}

// Projector maps scan samples to frames. It holds no mutable state,
// so a single Projector can render from any number of goroutines.
type Projector struct {
	cfg    Config
	center image.Point
}

// New creates a projector for cfg.
func New(cfg Config) (*Projector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Projector{cfg: cfg, center: cfg.Center()}, nil
}

// Config returns the projector's configuration.
func (p *Projector) Config() Config {
	return p.cfg
}

// Map returns the continuous image coordinate of a reading of r metres
// at the given bearing.
func (p *Projector) Map(r float32, angle float64) (x, y float64) {
	rng := float64(r)
	cx := rng * math.Cos(angle)
	cy := rng * math.Sin(angle)

	// 90° clockwise: (x, y) -> (y, -x)
	rx, ry := cy, -cx

	x = float64(p.center.X) + rx/p.cfg.MetersPerPixel
	y = float64(p.center.Y) - ry/p.cfg.MetersPerPixel
	return x, y
}

// Pixel returns the raster pixel containing a reading, and false when the
// reading maps outside the image.
func (p *Projector) Pixel(r float32, angle float64) (image.Point, bool) {
	x, y := p.Map(r, angle)
	size := float64(p.cfg.ImageSize)
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || x >= size || y < 0 || y >= size {
		return image.Point{}, false
	}
	return image.Pt(int(math.Floor(x)), int(math.Floor(y))), true
}

// Project renders s into a new frame.
func (p *Projector) Project(s *scan.Sample) *Frame {
	f, _ := p.Render(s)
	return f
}

// Render renders s into a new frame and reports per-reading counts.
// A nil or empty sample yields a frame with only the origin marker.
func (p *Projector) Render(s *scan.Sample) (*Frame, Stats) {
	f := NewFrame(p.cfg.ImageSize, p.cfg.ImageSize, p.cfg.Background)
	p.drawOrigin(f)

	var st Stats
	if s == nil {
		return f, st
	}

	st.Count = s.PointCount()
	for i := 0; i < st.Count; i++ {
		r := s.Ranges[i]
		if !s.Valid(r) {
			st.Invalid++
			continue
		}
		pt, ok := p.Pixel(r, s.AngleAt(i))
		if !ok {
			st.OutOfBounds++
			continue
		}
		f.FillCircle(pt, p.cfg.PointRadius, p.cfg.PointColor)
		st.Plotted++
	}
	return f, st
}

// Points returns the rotated coordinates in metres of every valid reading
// of s. Plotted with +y up they match the orientation of the rendered frame.
func (p *Projector) Points(s *scan.Sample) [][2]float64 {
	if s == nil {
		return nil
	}
	count := s.PointCount()
	pts := make([][2]float64, 0, count)
	for i := 0; i < count; i++ {
		r := s.Ranges[i]
		if !s.Valid(r) {
			continue
		}
		angle := s.AngleAt(i)
		x := float64(r) * math.Cos(angle)
		y := float64(r) * math.Sin(angle)
		pts = append(pts, [2]float64{y, -x})
	}
	return pts
}

func (p *Projector) drawOrigin(f *Frame) {
	c := p.center
	h := p.cfg.CrossHalfLength
	t := p.cfg.CrossThickness
	lo := t / 2

	f.FillRect(image.Rect(c.X-h, c.Y-lo, c.X+h+1, c.Y-lo+t), p.cfg.CrossColor)
	f.FillRect(image.Rect(c.X-lo, c.Y-h, c.X-lo+t, c.Y+h+1), p.cfg.CrossColor)
}
