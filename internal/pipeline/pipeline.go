// Package pipeline is the per-frame render loop: it draws every video frame
// to the display surface, either as the calibration overlay or as the
// unwrapped strip, and hands frames to the recorder while one is active.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/panocam/internal/media"
	"github.com/smazurov/panocam/internal/metrics"
	"github.com/smazurov/panocam/internal/overlay"
	"github.com/smazurov/panocam/internal/unwrap"
)

// Surface is the display target.
type Surface interface {
	Bounds() image.Rectangle
	// Draw scales img into rect. img is only valid for the duration of the call.
	Draw(img image.Image, rect image.Rectangle)
}

// Recorder receives frames of the unwrap path.
type Recorder interface {
	Active() bool
	SubmitVideo(at time.Duration, render func(dst *image.RGBA))
	SubmitAudio(samples []byte, desc media.AudioDescription, at time.Duration)
}

// Options configures a new Pipeline.
type Options struct {
	// Calibration gates the unwrap path (required).
	Calibration *Calibration

	// Surface receives every rendered video frame (required).
	Surface Surface

	// Recorder receives frames while calibrated (optional).
	Recorder Recorder

	// Logger for pipeline operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Pipeline renders frames on the goroutine that calls Run or Process. It
// must not be driven from more than one goroutine.
type Pipeline struct {
	calib    *Calibration
	surface  Surface
	recorder Recorder
	logger   *slog.Logger

	transform atomic.Pointer[unwrap.Transform]
	overlay   *overlay.Overlay

	// scratch images, render goroutine only
	strip   *image.RGBA
	rotated *image.RGBA

	sizeMu sync.RWMutex
	size   image.Point

	stills chan chan stillResult
}

type stillResult struct {
	img *image.RGBA
	err error
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		calib:    opts.Calibration,
		surface:  opts.Surface,
		recorder: opts.Recorder,
		logger:   logger,
		overlay:  overlay.New(),
		stills:   make(chan chan stillResult, 4),
	}
}

// SetTransform installs the unwrap transform used once calibrated.
func (p *Pipeline) SetTransform(t *unwrap.Transform) {
	p.transform.Store(t)
}

// Transform returns the installed transform, or nil.
func (p *Pipeline) Transform() *unwrap.Transform {
	return p.transform.Load()
}

// FrameSize returns the size of the last video frame seen.
func (p *Pipeline) FrameSize() image.Point {
	p.sizeMu.RLock()
	defer p.sizeMu.RUnlock()
	return p.size
}

// Run processes frames until the channel closes or ctx is done.
func (p *Pipeline) Run(ctx context.Context, frames <-chan media.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			p.Process(f)
		}
	}
}

// Process handles one frame.
func (p *Pipeline) Process(f media.Frame) {
	switch f.Kind {
	case media.KindAudio:
		p.processAudio(f)
	case media.KindVideo:
		if f.Image == nil {
			return
		}
		p.processVideo(f)
	}
}

func (p *Pipeline) processAudio(f media.Frame) {
	path := metrics.PathIdle
	if p.recorder != nil && p.calib.Calibrated() {
		p.recorder.SubmitAudio(f.Samples, f.Audio, f.PTS)
		if p.recorder.Active() {
			path = metrics.PathRecord
		}
	}
	metrics.IncFrame(media.KindAudio.String(), path)
}

func (p *Pipeline) processVideo(f media.Frame) {
	start := time.Now()
	p.setSize(f.Image.Bounds().Size())
	p.serveStills(f.Image)

	t := p.transform.Load()
	if p.calib.Mode() == ModeCalibration || t == nil {
		img := p.overlay.Composite(f.Image)
		p.surface.Draw(img, FitRect(img.Bounds().Size(), p.surface.Bounds()))
		metrics.IncFrame(media.KindVideo.String(), metrics.PathCalibration)
		metrics.ObserveRender(time.Since(start))
		return
	}

	rect := UnwrapRect(p.surface.Bounds())
	if !rect.Empty() {
		// strip is rendered landscape, then turned to fit rect
		strip := scratch(&p.strip, rect.Dy(), rect.Dx())
		t.Render(strip, f.Image)
		rotated := scratch(&p.rotated, rect.Dx(), rect.Dy())
		overlay.RotateClockwise(rotated, strip)
		p.surface.Draw(rotated, rect)
	}
	metrics.IncFrame(media.KindVideo.String(), metrics.PathUnwrap)
	metrics.ObserveRender(time.Since(start))

	if p.recorder != nil && p.recorder.Active() {
		src := f.Image
		p.recorder.SubmitVideo(f.PTS, func(dst *image.RGBA) { t.Render(dst, src) })
	}
}

// Still returns an unwrap of the next video frame at full output size.
// Before calibration the frame's default parameters are used.
func (p *Pipeline) Still(ctx context.Context) (*image.RGBA, error) {
	reply := make(chan stillResult, 1)
	select {
	case p.stills <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.img, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) serveStills(src *image.RGBA) {
	for {
		select {
		case reply := <-p.stills:
			img, err := p.still(src)
			reply <- stillResult{img: img, err: err}
		default:
			return
		}
	}
}

func (p *Pipeline) still(src *image.RGBA) (*image.RGBA, error) {
	t := p.transform.Load()
	if t == nil || !p.calib.Calibrated() {
		b := src.Bounds()
		var err error
		if t, err = unwrap.New(unwrap.DefaultParams(b.Dx(), b.Dy())); err != nil {
			return nil, err
		}
	}
	return t.Image(src), nil
}

func (p *Pipeline) setSize(s image.Point) {
	p.sizeMu.Lock()
	p.size = s
	p.sizeMu.Unlock()
}

// scratch returns *img resized to w×h, reallocating only on size change.
func scratch(img **image.RGBA, w, h int) *image.RGBA {
	if *img == nil || (*img).Bounds().Dx() != w || (*img).Bounds().Dy() != h {
		*img = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	return *img
}
