// Package overlay renders the calibration view: the raw fisheye frame faded
// out beyond a ring so the user can line the lens up with the guide.
package overlay

import (
	"image"
	"image/draw"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Ring radii as fractions of the source height.
const (
	InnerRadius = 0.5
	OuterRadius = 0.6
)

// Mask returns the radial alpha mask for a w×h frame: opaque within
// InnerRadius*h of the center, transparent beyond OuterRadius*h, and a linear
// ramp between the two.
func Mask(w, h int) *image.Alpha {
	m := image.NewAlpha(image.Rect(0, 0, w, h))
	cx, cy := float64(w)/2, float64(h)/2
	r0, r1 := InnerRadius*float64(h), OuterRadius*float64(h)

	for y := 0; y < h; y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+w]
		dy := float64(y) + 0.5 - cy
		for x := range row {
			d := math.Hypot(float64(x)+0.5-cx, dy)
			switch {
			case d <= r0:
				row[x] = 255
			case d >= r1:
				row[x] = 0
			default:
				row[x] = uint8(255*(r1-d)/(r1-r0) + 0.5)
			}
		}
	}
	return m
}

// Overlay composites frames over a cached mask. It keeps one output buffer,
// so a returned image is only valid until the next call; use one Overlay per
// render goroutine.
type Overlay struct {
	mu     sync.Mutex
	masks  map[image.Point]*image.Alpha
	masked *image.RGBA
	out    *image.RGBA
}

// New returns an empty Overlay.
func New() *Overlay {
	return &Overlay{masks: make(map[image.Point]*image.Alpha)}
}

func (o *Overlay) mask(w, h int) *image.Alpha {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := image.Point{X: w, Y: h}
	m, ok := o.masks[key]
	if !ok {
		m = Mask(w, h)
		o.masks[key] = m
	}
	return m
}

// Composite masks src with the ring gradient and rotates the result a
// quarter turn clockwise to match the device orientation.
func (o *Overlay) Composite(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	m := o.mask(w, h)

	if o.masked == nil || o.masked.Bounds().Size() != b.Size() {
		o.masked = image.NewRGBA(image.Rect(0, 0, w, h))
		o.out = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	ApplyMask(o.masked, src, m)
	RotateClockwise(o.out, o.masked)
	return o.out
}

// ApplyMask writes src scaled by the mask alpha into dst. All three images
// must have the same size.
func ApplyMask(dst, src *image.RGBA, m *image.Alpha) {
	draw.DrawMask(dst, dst.Bounds(), src, src.Bounds().Min, m, m.Bounds().Min, draw.Src)
}

// RotateClockwise writes src turned a quarter clockwise into dst, which must
// be src's height wide and src's width tall.
func RotateClockwise(dst, src *image.RGBA) {
	b := src.Bounds()
	d := dst.Bounds()
	// (x, y) -> (h-1-y, x) on pixel indices, expressed on pixel centers.
	quarter := f64.Aff3{
		0, -1, float64(d.Min.X + b.Dy() + b.Min.Y),
		1, 0, float64(d.Min.Y - b.Min.X),
	}
	xdraw.NearestNeighbor.Transform(dst, quarter, src, b, draw.Src, nil)
}

// Rotated allocates the destination for RotateClockwise.
func Rotated(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	return image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
}
