package overlay

import (
	"image"
	"image/color"
	"testing"
)

func TestMaskRadii(t *testing.T) {
	const w, h = 400, 200
	m := Mask(w, h)

	tests := []struct {
		name string
		x, y int
		want func(a uint8) bool
	}{
		{"center is opaque", 200, 100, func(a uint8) bool { return a == 255 }},
		{"inside inner radius", 200 + 90, 100, func(a uint8) bool { return a == 255 }},
		{"between radii is partial", 200 + 110, 100, func(a uint8) bool { return a > 0 && a < 255 }},
		{"beyond outer radius", 200 + 130, 100, func(a uint8) bool { return a == 0 }},
		{"corner", 0, 0, func(a uint8) bool { return a == 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if a := m.AlphaAt(tt.x, tt.y).A; !tt.want(a) {
				t.Errorf("alpha at (%d, %d) = %d", tt.x, tt.y, a)
			}
		})
	}
}

func TestMaskRampIsMonotonic(t *testing.T) {
	m := Mask(400, 200)
	prev := uint8(255)
	for x := 200; x < 400; x++ {
		a := m.AlphaAt(x, 100).A
		if a > prev {
			t.Fatalf("alpha increases at x=%d: %d > %d", x, a, prev)
		}
		prev = a
	}
}

func TestRotateClockwise(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.SetRGBA(0, 0, color.RGBA{R: 1, A: 255})
	src.SetRGBA(2, 0, color.RGBA{R: 2, A: 255})
	src.SetRGBA(0, 1, color.RGBA{R: 3, A: 255})

	dst := Rotated(src)
	if got := dst.Bounds(); got != image.Rect(0, 0, 2, 3) {
		t.Fatalf("rotated bounds = %v, want 2x3", got)
	}
	RotateClockwise(dst, src)

	// Top-left moves to top-right, bottom-left to top-left.
	checks := map[image.Point]uint8{{1, 0}: 1, {1, 2}: 2, {0, 0}: 3}
	for pt, want := range checks {
		if got := dst.RGBAAt(pt.X, pt.Y).R; got != want {
			t.Errorf("dst%v.R = %d, want %d", pt, got, want)
		}
	}
}

func TestCompositeMasksAndRotates(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	o := New()
	out := o.Composite(src)

	if got := out.Bounds(); got != image.Rect(0, 0, 40, 80) {
		t.Fatalf("composite bounds = %v, want 40x80", got)
	}
	if c := out.RGBAAt(20, 40); c.A != 255 {
		t.Errorf("center = %+v, want opaque", c)
	}
	if c := out.RGBAAt(0, 0); c.A != 0 || c.R != 0 {
		t.Errorf("corner = %+v, want transparent", c)
	}

	// A second call reuses the cached mask and buffer.
	if again := o.Composite(src); again != out {
		t.Errorf("Composite allocated a new buffer for an unchanged size")
	}
}

func TestRotateClockwiseSubImage(t *testing.T) {
	full := image.NewRGBA(image.Rect(0, 0, 6, 4))
	full.SetRGBA(2, 1, color.RGBA{R: 7, A: 255})
	full.SetRGBA(4, 2, color.RGBA{R: 9, A: 255})
	src := full.SubImage(image.Rect(2, 1, 5, 3)).(*image.RGBA)

	dst := Rotated(src)
	RotateClockwise(dst, src)

	checks := map[image.Point]uint8{{1, 0}: 7, {0, 2}: 9}
	for pt, want := range checks {
		if got := dst.RGBAAt(pt.X, pt.Y).R; got != want {
			t.Errorf("dst%v.R = %d, want %d", pt, got, want)
		}
	}
}

func TestApplyMaskScalesChannels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 200, G: 100, B: 50, A: 200})
	src.SetRGBA(1, 0, color.RGBA{R: 200, A: 255})
	m := image.NewAlpha(src.Bounds())
	m.SetAlpha(0, 0, color.Alpha{A: 128})

	dst := image.NewRGBA(src.Bounds())
	ApplyMask(dst, src, m)

	got := dst.RGBAAt(0, 0)
	want := color.RGBA{R: 100, G: 50, B: 25, A: 100}
	near := func(a, b uint8) bool { return a+1 >= b && b+1 >= a }
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) || !near(got.A, want.A) {
		t.Errorf("half mask = %+v, want about %+v", got, want)
	}
	if c := dst.RGBAAt(1, 0); c != (color.RGBA{}) {
		t.Errorf("zero mask = %+v, want transparent", c)
	}
}
