// Package unwrap converts circular fisheye images into an angle-linear strip.
//
// The mapping is destination driven: every output pixel (dx, dy) of a
// 2N×N strip pulls one sample from the fisheye source at
//
//	theta = pi * (dx/N - 1)
//	phi   = dy / N
//	src   = center + radius*phi * (cos theta, sin theta)
//
// so the top row of the strip is the fisheye center and the bottom row is its
// rim. Params are fixed for the lifetime of a Transform.
package unwrap

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidParams is returned when a transform cannot be built.
var ErrInvalidParams = errors.New("invalid unwrap parameters")

// Point is a position in source pixel coordinates.
type Point struct {
	X float64 `toml:"x" json:"x"`
	Y float64 `toml:"y" json:"y"`
}

// Params configures the fisheye model.
type Params struct {
	Center     Point   `toml:"center" json:"center"`
	Radius     float64 `toml:"radius" json:"radius"`
	OutputSize int     `toml:"output_size" json:"output_size"`
}

// DefaultParams returns the parameters used for an uncalibrated source of
// the given size: disc centered in the frame, radius a quarter of the width
// and a strip half as tall as the source is wide.
func DefaultParams(width, height int) Params {
	return Params{
		Center:     Point{X: float64(width) / 2, Y: float64(height) / 2},
		Radius:     float64(width) / 4,
		OutputSize: width / 2,
	}
}

// Validate checks the construction invariants.
func (p Params) Validate() error {
	if math.IsNaN(p.Radius) || p.Radius <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidParams, p.Radius)
	}
	if p.OutputSize < 1 {
		return fmt.Errorf("%w: output size must be at least 1, got %d", ErrInvalidParams, p.OutputSize)
	}
	if math.IsNaN(p.Center.X) || math.IsNaN(p.Center.Y) {
		return fmt.Errorf("%w: center is not a number", ErrInvalidParams)
	}
	return nil
}

// Transform evaluates the unwrap for a fixed set of parameters.
type Transform struct {
	params Params
	size   float64
	tables tableCache
}

// New validates params and returns a Transform.
func New(p Params) (*Transform, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Transform{params: p, size: float64(p.OutputSize)}, nil
}

// Params returns the parameters the transform was built with.
func (t *Transform) Params() Params {
	return t.params
}

// Bounds returns the native output extent, 2N×N.
func (t *Transform) Bounds() image.Rectangle {
	return image.Rect(0, 0, 2*t.params.OutputSize, t.params.OutputSize)
}

// Map returns the source sample location for destination pixel (dx, dy).
func (t *Transform) Map(dx, dy float64) (sx, sy float64) {
	theta := math.Pi * (dx/t.size - 1)
	phi := dy / t.size
	r := t.params.Radius * phi
	sin, cos := math.Sincos(theta)
	return t.params.Center.X + r*cos, t.params.Center.Y + r*sin
}

// ROI returns the source region needed to render any part of the output:
// the bounding square of the fisheye disc.
func (t *Transform) ROI() image.Rectangle {
	c, r := t.params.Center, t.params.Radius
	return image.Rect(
		int(math.Floor(c.X-r)), int(math.Floor(c.Y-r)),
		int(math.Ceil(c.X+r)), int(math.Ceil(c.Y+r)),
	)
}

// ROIFor returns the source region needed for one destination tile. The
// tile is ignored and the whole disc is returned.
func (t *Transform) ROIFor(_ image.Rectangle) image.Rectangle {
	return t.ROI()
}
