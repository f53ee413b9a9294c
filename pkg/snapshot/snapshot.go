// Package snapshot renders a scan as a gonum/plot scatter chart in metres,
// oriented the same way as the live frame.
package snapshot

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/teslashibe/go-lidarplot/pkg/projector"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// Size is the default edge length of a snapshot image.
const Size = 6 * vg.Inch

// Plot builds a chart of every valid reading of s. The axes span the area
// the live frame covers.
func Plot(p *projector.Projector, s *scan.Sample) (*plot.Plot, error) {
	cfg := p.Config()
	extent := cfg.RangeCovered()

	pl := plot.New()
	pl.Title.Text = "Lidar Scan"
	if s != nil && s.Header.FrameID != "" {
		pl.Title.Text = fmt.Sprintf("Lidar Scan (%s)", s.Header.FrameID)
	}
	// rotated sensor frame: +x is the sensor's left, +y its rear
	pl.X.Label.Text = "left (m)"
	pl.Y.Label.Text = "back (m)"
	pl.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0)
	for _, pt := range p.Points(s) {
		if math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: pt[0], Y: pt[1]})
	}

	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %w", err)
		}
		sc.GlyphStyle.Color = cfg.PointColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		pl.Add(sc)
	}

	origin, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return nil, fmt.Errorf("failed to create origin marker: %w", err)
	}
	origin.GlyphStyle.Color = color.RGBA{A: 255}
	origin.GlyphStyle.Radius = vg.Points(4)
	origin.GlyphStyle.Shape = draw.CrossGlyph{}
	pl.Add(origin)

	pl.X.Min, pl.X.Max = -extent, extent
	pl.Y.Min, pl.Y.Max = -extent, extent

	return pl, nil
}

// WritePNG renders a size x size PNG of s to w.
func WritePNG(w io.Writer, p *projector.Projector, s *scan.Sample, size vg.Length) error {
	pl, err := Plot(p, s)
	if err != nil {
		return err
	}
	wt, err := pl.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// Save writes a PNG snapshot of s to path.
func Save(path string, p *projector.Projector, s *scan.Sample) error {
	pl, err := Plot(p, s)
	if err != nil {
		return err
	}
	if err := pl.Save(Size, Size, path); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", path, err)
	}
	return nil
}
