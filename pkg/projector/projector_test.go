package projector

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

func newTestProjector(t *testing.T) *Projector {
	t.Helper()
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

// countColor returns how many pixels of f have colour c.
func countColor(f *Frame, c color.RGBA) int {
	n := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if f.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

// diskArea is the number of pixels FillCircle paints for radius r when
// the disk is fully inside the frame.
func diskArea(r int) int {
	n := 0
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				n++
			}
		}
	}
	return n
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero size", func(c *Config) { c.ImageSize = 0 }},
		{"zero scale", func(c *Config) { c.MetersPerPixel = 0 }},
		{"nan scale", func(c *Config) { c.MetersPerPixel = math.NaN() }},
		{"negative radius", func(c *Config) { c.PointRadius = -1 }},
		{"negative cross", func(c *Config) { c.CrossHalfLength = -1 }},
		{"zero thickness", func(c *Config) { c.CrossThickness = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Center() != image.Pt(250, 250) {
		t.Errorf("Center() = %v, want (250,250)", cfg.Center())
	}
	if math.Abs(cfg.RangeCovered()-5.0) > 1e-9 {
		t.Errorf("RangeCovered() = %v, want 5", cfg.RangeCovered())
	}
}

func TestMapFormula(t *testing.T) {
	p := newTestProjector(t)

	tests := []struct {
		r     float32
		angle float64
	}{
		{1, 0},
		{1, math.Pi / 2},
		{2.5, -math.Pi / 3},
		{0.3, 3 * math.Pi / 4},
		{4.2, math.Pi},
	}

	for _, tt := range tests {
		x, y := p.Map(tt.r, tt.angle)

		cx := float64(tt.r) * math.Cos(tt.angle)
		cy := float64(tt.r) * math.Sin(tt.angle)
		wantX := 250 + cy/0.02
		wantY := 250 - (-cx)/0.02

		if math.Abs(x-wantX) > 1e-9 || math.Abs(y-wantY) > 1e-9 {
			t.Errorf("Map(%v, %v) = (%v, %v), want (%v, %v)", tt.r, tt.angle, x, y, wantX, wantY)
		}
	}
}

func TestMapOrientation(t *testing.T) {
	p := newTestProjector(t)

	// forward lands below the centre, left lands right of it
	if pt, ok := p.Pixel(1, 0); !ok || pt != image.Pt(250, 300) {
		t.Errorf("Pixel(1, 0) = %v, %v, want (250,300), true", pt, ok)
	}
	x, y := p.Map(1, math.Pi/2)
	if math.Abs(x-300) > 1e-6 || math.Abs(y-250) > 1e-6 {
		t.Errorf("Map(1, pi/2) = (%v, %v), want (300, 250)", x, y)
	}
}

func TestProjectIdempotent(t *testing.T) {
	p := newTestProjector(t)
	s := &scan.Sample{
		AngleMin:       -math.Pi,
		AngleMax:       math.Pi,
		AngleIncrement: 2 * math.Pi / 360,
		RangeMin:       0.1,
		RangeMax:       8,
		Ranges:         make(scan.Ranges, 360),
	}
	for i := range s.Ranges {
		s.Ranges[i] = 0.5 + float32(i%40)*0.1
	}

	a := p.Project(s)
	b := p.Project(s)

	if !a.Equal(b) {
		t.Error("projecting the same sample twice produced different frames")
	}
	if &a.Pix[0] == &b.Pix[0] {
		t.Error("frames share a pixel buffer")
	}
}

func TestOriginMarkerAlwaysPresent(t *testing.T) {
	p := newTestProjector(t)
	cfg := p.Config()

	samples := map[string]*scan.Sample{
		"nil":   nil,
		"empty": {RangeMin: 0.1, RangeMax: 5},
		"degenerate angles": {
			AngleMin:       float32(math.NaN()),
			AngleIncrement: float32(math.Inf(1)),
			RangeMin:       0.1,
			RangeMax:       5,
			Ranges:         scan.Ranges{1, 2, 3},
		},
	}

	for name, s := range samples {
		t.Run(name, func(t *testing.T) {
			f, st := p.Render(s)

			if f.Width != 500 || f.Height != 500 || len(f.Pix) != 500*500*3 {
				t.Fatalf("frame size = %dx%d (%d bytes), want 500x500", f.Width, f.Height, len(f.Pix))
			}
			if st.Plotted != 0 {
				t.Errorf("Plotted = %d, want 0", st.Plotted)
			}
			for _, pt := range []image.Point{{250, 250}, {245, 250}, {255, 250}, {250, 245}, {250, 255}} {
				if got := f.RGBAAt(pt.X, pt.Y); got != cfg.CrossColor {
					t.Errorf("pixel %v = %v, want cross colour", pt, got)
				}
			}
			for _, pt := range []image.Point{{256, 250}, {244, 250}, {250, 256}, {250, 244}, {0, 0}} {
				if got := f.RGBAAt(pt.X, pt.Y); got != cfg.Background {
					t.Errorf("pixel %v = %v, want background", pt, got)
				}
			}
			if got := countColor(f, cfg.PointColor); got != 0 {
				t.Errorf("found %d point pixels, want 0", got)
			}
		})
	}
}

func TestInvalidReadingsNotDrawn(t *testing.T) {
	p := newTestProjector(t)
	cfg := p.Config()

	s := &scan.Sample{
		AngleMin:       0,
		AngleIncrement: math.Pi / 2,
		RangeMin:       0.1,
		RangeMax:       2,
		Ranges:         scan.Ranges{1, 3, float32(math.NaN()), 0.05},
	}

	f, st := p.Render(s)

	if st.Count != 4 || st.Plotted != 1 || st.Invalid != 3 {
		t.Errorf("stats = %+v, want count 4, plotted 1, invalid 3", st)
	}
	if got, want := countColor(f, cfg.PointColor), diskArea(cfg.PointRadius); got != want {
		t.Errorf("point pixels = %d, want one disk of %d", got, want)
	}
	if got := f.RGBAAt(250, 300); got != cfg.PointColor {
		t.Errorf("valid reading pixel = %v, want point colour", got)
	}

	// where the rejected 3m reading would have landed
	pt, ok := p.Pixel(3, math.Pi/2)
	if !ok {
		t.Fatal("3m at pi/2 should map inside the image")
	}
	if got := f.RGBAAt(pt.X, pt.Y); got != cfg.Background {
		t.Errorf("rejected reading pixel %v = %v, want background", pt, got)
	}
}

func TestOutOfBoundsReadingsDropped(t *testing.T) {
	p := newTestProjector(t)
	cfg := p.Config()

	s := &scan.Sample{
		AngleMin:       float32(math.Pi / 2),
		AngleIncrement: float32(math.Pi / 2),
		RangeMin:       0.1,
		RangeMax:       20,
		Ranges:         scan.Ranges{6, 12},
	}

	f, st := p.Render(s)

	if st.OutOfBounds != 2 || st.Plotted != 0 {
		t.Errorf("stats = %+v, want 2 out of bounds, 0 plotted", st)
	}
	if got := countColor(f, cfg.PointColor); got != 0 {
		t.Errorf("found %d point pixels, want 0", got)
	}
	// 6m left maps to x=550; a wrapping write would land at x=50
	if got := f.RGBAAt(50, 250); got != cfg.Background {
		t.Errorf("wrapped pixel = %v, want background", got)
	}
	if _, ok := p.Pixel(6, math.Pi/2); ok {
		t.Error("Pixel(6, pi/2) reported inside the image")
	}
}

func TestEdgePointClipped(t *testing.T) {
	p := newTestProjector(t)
	cfg := p.Config()

	// 4.99m to the left maps to x=499.5, the last column
	s := &scan.Sample{
		AngleMin: float32(math.Pi / 2),
		RangeMin: 0.1,
		RangeMax: 10,
		Ranges:   scan.Ranges{4.99},
	}

	f, st := p.Render(s)

	if st.Plotted != 1 {
		t.Fatalf("Plotted = %d, want 1", st.Plotted)
	}
	n := countColor(f, cfg.PointColor)
	if n == 0 || n >= diskArea(cfg.PointRadius) {
		t.Errorf("point pixels = %d, want a clipped disk", n)
	}
}

func TestHalfCircleScenario(t *testing.T) {
	p := newTestProjector(t)
	cfg := p.Config()

	s := &scan.Sample{
		AngleMin:       0,
		AngleMax:       float32(math.Pi),
		AngleIncrement: float32(math.Pi / 99),
		RangeMin:       0.1,
		RangeMax:       5,
		Ranges:         make(scan.Ranges, 100),
	}
	for i := range s.Ranges {
		s.Ranges[i] = 1.0
	}

	f, st := p.Render(s)

	if st.Count != 100 || st.Plotted != 100 {
		t.Fatalf("stats = %+v, want 100 counted and plotted", st)
	}

	for i := 0; i < 100; i++ {
		angle := s.AngleAt(i)

		x, y := p.Map(1, angle)
		if d := math.Hypot(x-250, y-250); math.Abs(d-50) > 1e-9 {
			t.Errorf("point %d: distance from centre = %v, want 50", i, d)
		}

		pt, ok := p.Pixel(1, angle)
		if !ok {
			t.Errorf("point %d: out of bounds", i)
			continue
		}
		if d := math.Hypot(float64(pt.X-250), float64(pt.Y-250)); math.Abs(d-50) > math.Sqrt2 {
			t.Errorf("point %d: pixel %v is %v px from centre, want ~50", i, pt, d)
		}
		if got := f.RGBAAt(pt.X, pt.Y); got != cfg.PointColor {
			t.Errorf("point %d: pixel %v = %v, want point colour", i, pt, got)
		}
	}
}

func TestCountResolutionUsedByRender(t *testing.T) {
	p := newTestProjector(t)

	s := &scan.Sample{
		AngleIncrement: 0.01,
		ScanTime:       0.5,
		TimeIncrement:  0.01,
		RangeMin:       0.1,
		RangeMax:       5,
		Ranges:         make(scan.Ranges, 100),
	}
	for i := range s.Ranges {
		s.Ranges[i] = 1
	}

	_, st := p.Render(s)
	if st.Count != 50 || st.Plotted != 50 {
		t.Errorf("stats = %+v, want 50 counted and plotted", st)
	}
}

func TestPoints(t *testing.T) {
	p := newTestProjector(t)

	s := &scan.Sample{
		AngleMin:       0,
		AngleIncrement: float32(math.Pi / 2),
		RangeMin:       0.1,
		RangeMax:       5,
		Ranges:         scan.Ranges{1, float32(math.NaN()), 2},
	}

	pts := p.Points(s)
	if len(pts) != 2 {
		t.Fatalf("len(Points) = %d, want 2", len(pts))
	}
	if math.Abs(pts[0][0]) > 1e-9 || math.Abs(pts[0][1]+1) > 1e-9 {
		t.Errorf("Points[0] = %v, want (0, -1)", pts[0])
	}
	if math.Abs(pts[1][0]) > 1e-6 || math.Abs(pts[1][1]-2) > 1e-6 {
		t.Errorf("Points[1] = %v, want (0, 2)", pts[1])
	}
}
