// Package preview implements the display surface behind the HTTP preview:
// it keeps the latest rendered frame and serves it as JPEG.
package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

// Surface is a fixed-size canvas. Draw is called by the render loop, JPEG
// and Snapshot by readers on other goroutines.
type Surface struct {
	quality int

	mu       sync.Mutex
	canvas   *image.RGBA
	lastRect image.Rectangle
	version  uint64
	updated  time.Time

	encoded    []byte
	encodedVer uint64
}

// New creates a black width×height surface.
func New(width, height, quality int) *Surface {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	blackout(canvas)
	return &Surface{quality: quality, canvas: canvas}
}

// Bounds returns the canvas bounds.
func (s *Surface) Bounds() image.Rectangle {
	return s.canvas.Bounds()
}

// Draw scales img into rect. Letterbox areas are cleared whenever the rect
// changes.
func (s *Surface) Draw(img image.Image, rect image.Rectangle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rect != s.lastRect {
		blackout(s.canvas)
		s.lastRect = rect
	}
	if rect.Size() == img.Bounds().Size() {
		draw.Draw(s.canvas, rect, img, img.Bounds().Min, draw.Src)
	} else {
		xdraw.ApproxBiLinear.Scale(s.canvas, rect, img, img.Bounds(), draw.Src, nil)
	}
	s.version++
	s.updated = time.Now()
}

// JPEG returns the current canvas encoded as JPEG and the time of the last
// draw. Encoding happens at most once per drawn frame.
func (s *Surface) JPEG() ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoded != nil && s.encodedVer == s.version {
		return s.encoded, s.updated, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, s.canvas, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, time.Time{}, err
	}
	s.encoded = buf.Bytes()
	s.encodedVer = s.version
	return s.encoded, s.updated, nil
}

// Snapshot returns a copy of the canvas.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.canvas.Bounds())
	copy(out.Pix, s.canvas.Pix)
	return out
}

// Frames returns the number of frames drawn so far.
func (s *Surface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func blackout(img *image.RGBA) {
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
}
