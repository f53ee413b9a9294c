package projector

import (
	"bytes"
	"image"
	"image/color"
)

// Frame is a 3-channel raster stored row-major in B,G,R byte order,
// the layout of an 8-bit 3-channel OpenCV matrix.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame allocates a frame filled with bg.
func NewFrame(width, height int, bg color.RGBA) *Frame {
	f := &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i] = bg.B
		f.Pix[i+1] = bg.G
		f.Pix[i+2] = bg.R
	}
	return f
}

// Stride is the number of bytes in one row.
func (f *Frame) Stride() int {
	return f.Width * 3
}

// Bounds implements image.Image.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// ColorModel implements image.Image.
func (f *Frame) ColorModel() color.Model {
	return color.RGBAModel
}

// At implements image.Image.
func (f *Frame) At(x, y int) color.Color {
	return f.RGBAAt(x, y)
}

// RGBAAt returns the colour of pixel (x, y), or transparent black
// outside the frame.
func (f *Frame) RGBAAt(x, y int) color.RGBA {
	if !image.Pt(x, y).In(f.Bounds()) {
		return color.RGBA{}
	}
	i := y*f.Stride() + x*3
	return color.RGBA{R: f.Pix[i+2], G: f.Pix[i+1], B: f.Pix[i], A: 255}
}

// Set paints pixel (x, y). Writes outside the frame are ignored.
func (f *Frame) Set(x, y int, c color.RGBA) {
	if !image.Pt(x, y).In(f.Bounds()) {
		return
	}
	i := y*f.Stride() + x*3
	f.Pix[i] = c.B
	f.Pix[i+1] = c.G
	f.Pix[i+2] = c.R
}

// FillRect paints r clipped to the frame.
func (f *Frame) FillRect(r image.Rectangle, c color.RGBA) {
	r = r.Intersect(f.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			f.Set(x, y, c)
		}
	}
}

// FillCircle paints every pixel whose centre lies within radius of center.
func (f *Frame) FillCircle(center image.Point, radius int, c color.RGBA) {
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				f.Set(center.X+dx, center.Y+dy, c)
			}
		}
	}
}

// Equal reports whether both frames have the same size and pixels.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Width == other.Width && f.Height == other.Height && bytes.Equal(f.Pix, other.Pix)
}
