package unwrap

import (
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"
)

// minBandRows keeps small renders on a single goroutine.
const minBandRows = 32

// table holds precomputed source coordinates for one destination size.
type table struct {
	w, h int
	xy   []float32 // interleaved sx, sy per destination pixel
}

type tableCache struct {
	mu     sync.Mutex
	tables map[image.Point]*table
}

func (c *tableCache) get(t *Transform, w, h int) *table {
	key := image.Point{X: w, Y: h}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tb, ok := c.tables[key]; ok {
		return tb
	}
	if c.tables == nil {
		c.tables = make(map[image.Point]*table)
	}
	tb := t.buildTable(w, h)
	c.tables[key] = tb
	return tb
}

// buildTable scales destination pixel centers of a w×h image into the 2N×N
// unwrap space and maps them to the source.
func (t *Transform) buildTable(w, h int) *table {
	tb := &table{w: w, h: h, xy: make([]float32, 2*w*h)}
	scaleX := 2 * t.size / float64(w)
	scaleY := t.size / float64(h)
	i := 0
	for y := 0; y < h; y++ {
		dy := (float64(y) + 0.5) * scaleY
		for x := 0; x < w; x++ {
			sx, sy := t.Map((float64(x)+0.5)*scaleX, dy)
			tb.xy[i] = float32(sx)
			tb.xy[i+1] = float32(sy)
			i += 2
		}
	}
	return tb
}

// Render fills dst with the unwrapped view of src. The whole strip is fitted
// to dst's bounds, so dst may be smaller or larger than Bounds(). Samples
// falling outside src are transparent.
func (t *Transform) Render(dst *image.RGBA, src image.Image) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	tb := t.tables.get(t, w, h)

	rgba, _ := src.(*image.RGBA)
	bands := runtime.GOMAXPROCS(0)
	if h/bands < minBandRows {
		bands = max(1, h/minBandRows)
	}

	var wg sync.WaitGroup
	rows := (h + bands - 1) / bands
	for y0 := 0; y0 < h; y0 += rows {
		y1 := min(h, y0+rows)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				row := dst.Pix[dst.PixOffset(b.Min.X, b.Min.Y+y):]
				for x := 0; x < w; x++ {
					k := 2 * (y*w + x)
					var c color.RGBA
					if rgba != nil {
						c = sampleRGBA(rgba, float64(tb.xy[k]), float64(tb.xy[k+1]))
					} else {
						c = sampleImage(src, float64(tb.xy[k]), float64(tb.xy[k+1]))
					}
					p := row[4*x : 4*x+4 : 4*x+4]
					p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
				}
			}
		}()
	}
	wg.Wait()
}

// Image renders src into a new image of the native output size.
func (t *Transform) Image(src image.Image) *image.RGBA {
	dst := image.NewRGBA(t.Bounds())
	t.Render(dst, src)
	return dst
}

// sampleRGBA bilinearly interpolates src at continuous coordinate (sx, sy),
// where pixel centers sit at half-integer positions.
func sampleRGBA(src *image.RGBA, sx, sy float64) color.RGBA {
	b := src.Bounds()
	fx, fy := sx-0.5, sy-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	ax, ay := fx-float64(x0), fy-float64(y0)

	var acc [4]float64
	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}
	for n, off := range [4]image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		px, py := x0+off.X+b.Min.X, y0+off.Y+b.Min.Y
		if px < b.Min.X || py < b.Min.Y || px >= b.Max.X || py >= b.Max.Y || weights[n] == 0 {
			continue
		}
		i := src.PixOffset(px, py)
		for c := 0; c < 4; c++ {
			acc[c] += weights[n] * float64(src.Pix[i+c])
		}
	}
	return color.RGBA{R: round8(acc[0]), G: round8(acc[1]), B: round8(acc[2]), A: round8(acc[3])}
}

// sampleImage is the slow path for sources that are not *image.RGBA.
func sampleImage(src image.Image, sx, sy float64) color.RGBA {
	b := src.Bounds()
	fx, fy := sx-0.5, sy-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	ax, ay := fx-float64(x0), fy-float64(y0)

	var acc [4]float64
	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}
	for n, off := range [4]image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		p := image.Point{X: x0 + off.X + b.Min.X, Y: y0 + off.Y + b.Min.Y}
		if !p.In(b) || weights[n] == 0 {
			continue
		}
		r, g, bl, a := src.At(p.X, p.Y).RGBA()
		acc[0] += weights[n] * float64(r>>8)
		acc[1] += weights[n] * float64(g>>8)
		acc[2] += weights[n] * float64(bl>>8)
		acc[3] += weights[n] * float64(a>>8)
	}
	return color.RGBA{R: round8(acc[0]), G: round8(acc[1]), B: round8(acc[2]), A: round8(acc[3])}
}

func round8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
