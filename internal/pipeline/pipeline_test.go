package pipeline

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smazurov/panocam/internal/media"
	"github.com/smazurov/panocam/internal/metrics"
	"github.com/smazurov/panocam/internal/unwrap"
)

type draw struct {
	size image.Point
	rect image.Rectangle
}

type fakeSurface struct {
	bounds image.Rectangle
	draws  []draw
}

func (s *fakeSurface) Bounds() image.Rectangle { return s.bounds }

func (s *fakeSurface) Draw(img image.Image, rect image.Rectangle) {
	s.draws = append(s.draws, draw{size: img.Bounds().Size(), rect: rect})
}

type fakeRecorder struct {
	mu     sync.Mutex
	active bool
	video  []time.Duration
	audio  []time.Duration
	frames []*image.RGBA
}

func (r *fakeRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *fakeRecorder) SubmitVideo(at time.Duration, render func(dst *image.RGBA)) {
	dst := image.NewRGBA(image.Rect(0, 0, 480, 240))
	render(dst)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video = append(r.video, at)
	r.frames = append(r.frames, dst)
}

func (r *fakeRecorder) SubmitAudio(_ []byte, _ media.AudioDescription, at time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, at)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(rec Recorder) (*Pipeline, *Calibration, *fakeSurface) {
	calib := &Calibration{}
	surface := &fakeSurface{bounds: image.Rect(0, 0, 640, 480)}
	p := New(Options{Calibration: calib, Surface: surface, Recorder: rec, Logger: testLogger()})
	return p, calib, surface
}

func videoFrame(w, h int, at time.Duration) media.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return media.Frame{Kind: media.KindVideo, PTS: at, Image: img, Format: media.PixelFormatRGBA}
}

func audioFrame(at time.Duration) media.Frame {
	return media.Frame{
		Kind:    media.KindAudio,
		PTS:     at,
		Samples: make([]byte, 1920),
		Audio:   media.AudioDescription{Channels: 2, SampleRate: 48000},
	}
}

func TestFitRect(t *testing.T) {
	tests := []struct {
		name   string
		size   image.Point
		bounds image.Rectangle
		want   image.Rectangle
	}{
		{"landscape into square", image.Pt(4, 3), image.Rect(0, 0, 100, 100), image.Rect(0, 12, 100, 87)},
		{"portrait into square", image.Pt(3, 4), image.Rect(0, 0, 100, 100), image.Rect(12, 0, 87, 100)},
		{"exact fit with offset", image.Pt(2, 1), image.Rect(10, 10, 210, 110), image.Rect(10, 10, 210, 110)},
		{"empty size", image.Pt(0, 3), image.Rect(0, 0, 100, 100), image.Rectangle{}},
		{"empty bounds", image.Pt(4, 3), image.Rectangle{}, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitRect(tt.size, tt.bounds); got != tt.want {
				t.Errorf("FitRect(%v, %v) = %v, want %v", tt.size, tt.bounds, got, tt.want)
			}
		})
	}
}

func TestUnwrapRect(t *testing.T) {
	got := UnwrapRect(image.Rect(0, 0, 640, 480))
	if want := image.Rect(200, 0, 440, 480); got != want {
		t.Errorf("UnwrapRect = %v, want %v", got, want)
	}
}

func TestCalibrationIsOneWay(t *testing.T) {
	var c Calibration
	if c.Calibrated() || c.Mode() != ModeCalibration {
		t.Fatal("new calibration should be uncalibrated")
	}
	if !c.Calibrate() {
		t.Error("first Calibrate should report a change")
	}
	if c.Calibrate() {
		t.Error("second Calibrate should be a no-op")
	}
	if !c.Calibrated() || c.Mode() != ModeUnwrap {
		t.Error("calibration did not stick")
	}
	if got := ModeUnwrap.String(); got != "unwrap" {
		t.Errorf("ModeUnwrap.String() = %q", got)
	}
}

func TestUncalibratedFramesSkipRecorder(t *testing.T) {
	rec := &fakeRecorder{active: true}
	p, _, surface := newTestPipeline(rec)
	tr, err := unwrap.New(unwrap.DefaultParams(640, 480))
	if err != nil {
		t.Fatalf("unwrap.New failed: %v", err)
	}
	p.SetTransform(tr)

	p.Process(videoFrame(640, 480, 0))
	p.Process(audioFrame(time.Millisecond))

	if len(rec.video) != 0 || len(rec.audio) != 0 {
		t.Errorf("recorder touched while uncalibrated: video=%v audio=%v", rec.video, rec.audio)
	}
	if len(surface.draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(surface.draws))
	}
	d := surface.draws[0]
	// overlay output is rotated a quarter turn
	if d.size != image.Pt(480, 640) {
		t.Errorf("overlay size = %v, want 480x640", d.size)
	}
	if want := FitRect(image.Pt(480, 640), surface.bounds); d.rect != want {
		t.Errorf("overlay rect = %v, want %v", d.rect, want)
	}
	if got := p.FrameSize(); got != image.Pt(640, 480) {
		t.Errorf("FrameSize = %v, want 640x480", got)
	}
}

func TestCalibratedFramesUnwrapAndRecord(t *testing.T) {
	rec := &fakeRecorder{active: true}
	p, calib, surface := newTestPipeline(rec)
	tr, err := unwrap.New(unwrap.DefaultParams(640, 480))
	if err != nil {
		t.Fatalf("unwrap.New failed: %v", err)
	}
	p.SetTransform(tr)
	calib.Calibrate()

	p.Process(videoFrame(640, 480, 40*time.Millisecond))
	p.Process(audioFrame(45 * time.Millisecond))

	if len(surface.draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(surface.draws))
	}
	d := surface.draws[0]
	want := UnwrapRect(surface.bounds)
	if d.rect != want || d.size != want.Size() {
		t.Errorf("draw = %+v, want rect %v", d, want)
	}

	if len(rec.video) != 1 || rec.video[0] != 40*time.Millisecond {
		t.Fatalf("recorded video = %v, want [40ms]", rec.video)
	}
	if len(rec.audio) != 1 || rec.audio[0] != 45*time.Millisecond {
		t.Errorf("recorded audio = %v, want [45ms]", rec.audio)
	}
	// the frame handed to the recorder holds the unwrap at recording size
	if c := rec.frames[0].RGBAAt(240, 120); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("recorded frame centre = %v, want opaque white", c)
	}
}

func TestInactiveRecorderIsNotFed(t *testing.T) {
	rec := &fakeRecorder{}
	p, calib, _ := newTestPipeline(rec)
	tr, _ := unwrap.New(unwrap.DefaultParams(64, 48))
	p.SetTransform(tr)
	calib.Calibrate()

	p.Process(videoFrame(64, 48, 0))
	if len(rec.video) != 0 {
		t.Errorf("inactive recorder received %d frames", len(rec.video))
	}
}

func TestCalibratedWithoutTransformFallsBackToOverlay(t *testing.T) {
	p, calib, surface := newTestPipeline(nil)
	calib.Calibrate()

	p.Process(videoFrame(64, 48, 0))
	if len(surface.draws) != 1 || surface.draws[0].size != image.Pt(48, 64) {
		t.Errorf("draws = %+v, want one overlay draw", surface.draws)
	}
}

func TestStill(t *testing.T) {
	p, calib, _ := newTestPipeline(nil)
	frames := make(chan media.Frame, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, frames) }()

	stillAfterFrame := func() *image.RGBA {
		t.Helper()
		res := make(chan *image.RGBA, 1)
		go func() {
			img, err := p.Still(ctx)
			if err != nil {
				t.Errorf("Still failed: %v", err)
			}
			res <- img
		}()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case img := <-res:
				return img
			case frames <- videoFrame(640, 480, 0):
			case <-deadline:
				t.Fatal("timed out waiting for still")
				return nil
			}
		}
	}

	// uncalibrated: defaults of the frame, output size 320
	img := stillAfterFrame()
	if img == nil {
		t.Fatal("no uncalibrated still")
	}
	if img.Bounds() != image.Rect(0, 0, 640, 320) {
		t.Fatalf("uncalibrated still bounds = %v, want 640x320", img.Bounds())
	}

	tr, err := unwrap.New(unwrap.Params{Center: unwrap.Point{X: 320, Y: 240}, Radius: 200, OutputSize: 100})
	if err != nil {
		t.Fatalf("unwrap.New failed: %v", err)
	}
	p.SetTransform(tr)
	calib.Calibrate()
	img = stillAfterFrame()
	if img == nil {
		t.Fatal("no calibrated still")
	}
	if img.Bounds() != image.Rect(0, 0, 200, 100) {
		t.Fatalf("calibrated still bounds = %v, want 200x100", img.Bounds())
	}

	close(frames)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	p, _, _ := newTestPipeline(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, make(chan media.Frame)); err != context.Canceled {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

// audioFrames returns panocam_pipeline_frames_total{kind="audio",path=path}.
func audioFrames(t *testing.T, path string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "panocam_pipeline_frames_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["kind"] == "audio" && labels["path"] == path {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestAudioCountedAsRecordedOnlyWhenForwarded(t *testing.T) {
	rec := &fakeRecorder{}
	p, calib, _ := newTestPipeline(rec)

	recorded, idle := audioFrames(t, metrics.PathRecord), audioFrames(t, metrics.PathIdle)
	p.Process(audioFrame(0)) // uncalibrated
	calib.Calibrate()
	p.Process(audioFrame(time.Millisecond)) // no active recording
	rec.mu.Lock()
	rec.active = true
	rec.mu.Unlock()
	p.Process(audioFrame(2 * time.Millisecond))

	if got := audioFrames(t, metrics.PathRecord) - recorded; got != 1 {
		t.Errorf("recorded audio frames = %v, want 1", got)
	}
	if got := audioFrames(t, metrics.PathIdle) - idle; got != 2 {
		t.Errorf("idle audio frames = %v, want 2", got)
	}
}
