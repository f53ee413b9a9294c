package projector

import (
	"fmt"
	"image"
	"image/color"
)

// Config holds the fixed geometry of the rendered image.
// A Config is passed by value into New and never changes afterwards.
type Config struct {
	// ImageSize is the edge length of the square raster in pixels.
	ImageSize int `json:"image_size"`

	// MetersPerPixel is the ground distance covered by one pixel.
	// 0.02 with a 500px image covers a 10m x 10m area.
	MetersPerPixel float64 `json:"meters_per_pixel"`

	// PointRadius is the radius of the filled disk marking each reading.
	PointRadius int `json:"point_radius"`

	// CrossHalfLength is the arm length of the origin cross.
	CrossHalfLength int `json:"cross_half_length"`

	// CrossThickness is the stroke width of the origin cross.
	CrossThickness int `json:"cross_thickness"`

	Background color.RGBA `json:"background"`
	PointColor color.RGBA `json:"point_color"`
	CrossColor color.RGBA `json:"cross_color"`
}

// DefaultConfig returns the geometry used by the node.
func DefaultConfig() Config {
	return Config{
		ImageSize:       500,
		MetersPerPixel:  0.02,
		PointRadius:     2,
		CrossHalfLength: 5,
		CrossThickness:  2,
		Background:      color.RGBA{R: 255, G: 255, B: 255, A: 255},
		PointColor:      color.RGBA{R: 255, A: 255},
		CrossColor:      color.RGBA{A: 255},
	}
}

// Validate checks that the configuration describes a drawable image.
func (c *Config) Validate() error {
	if c.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive, got %d", c.ImageSize)
	}
	if !(c.MetersPerPixel > 0) {
		return fmt.Errorf("meters_per_pixel must be positive, got %v", c.MetersPerPixel)
	}
	if c.PointRadius < 0 {
		return fmt.Errorf("point_radius must not be negative, got %d", c.PointRadius)
	}
	if c.CrossHalfLength < 0 {
		return fmt.Errorf("cross_half_length must not be negative, got %d", c.CrossHalfLength)
	}
	if c.CrossThickness < 1 {
		return fmt.Errorf("cross_thickness must be at least 1, got %d", c.CrossThickness)
	}
	return nil
}

// Center returns the pixel the sensor origin maps to.
func (c Config) Center() image.Point {
	return image.Pt(c.ImageSize/2, c.ImageSize/2)
}

// RangeCovered returns the distance from the origin to the image edge in metres.
func (c Config) RangeCovered() float64 {
	return float64(c.ImageSize/2) * c.MetersPerPixel
}
