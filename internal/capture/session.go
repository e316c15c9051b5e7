package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/smazurov/panocam/internal/album"
	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/ffmpeg"
	"github.com/smazurov/panocam/internal/media"
	"github.com/smazurov/panocam/internal/metrics"
	"github.com/smazurov/panocam/internal/pipeline"
	"github.com/smazurov/panocam/internal/recorder"
	"github.com/smazurov/panocam/internal/unwrap"
)

var (
	// ErrNotRunning is returned by commands that need a running capture.
	ErrNotRunning = errors.New("capture not running")

	// ErrRunning is returned by Configure while capture runs.
	ErrRunning = errors.New("capture already running")

	// ErrNotCalibrated is returned by StartRecording before calibration.
	ErrNotCalibrated = errors.New("capture not calibrated")

	// ErrAlreadyCalibrated is returned by a second Calibrate in one run.
	ErrAlreadyCalibrated = errors.New("capture already calibrated")

	// ErrNoFrame is returned by Calibrate when no parameters are configured
	// and no frame has been seen to derive them from.
	ErrNoFrame = errors.New("no video frame received yet")
)

// Config describes what a session captures.
type Config struct {
	Capture     ffmpeg.CaptureParams
	FrameBuffer int

	// Unwrap overrides the calibration parameters. Zero fields are derived
	// from the frame size.
	Unwrap unwrap.Params

	// CalibrationFile persists calibrated parameters across runs (optional).
	CalibrationFile string
}

// Device names the configured input for events and status.
func (c Config) Device() string {
	if c.Capture.TestSource {
		return "testsrc"
	}
	return c.Capture.Device
}

// SourceFactory creates the frame source for a run.
type SourceFactory func(cfg Config) (media.Source, error)

// FFmpegSourceFactory returns a SourceFactory building FFmpegSources.
func FFmpegSourceFactory(binary string, logger *slog.Logger) SourceFactory {
	return func(cfg Config) (media.Source, error) {
		return NewFFmpegSource(SourceOptions{
			Params:      cfg.Capture,
			Binary:      binary,
			FrameBuffer: cfg.FrameBuffer,
			Logger:      logger,
		})
	}
}

// Publisher receives session events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a new Session.
type Options struct {
	Config Config

	// Sources builds the frame source on each Start (required).
	Sources SourceFactory

	// Recorder records the unwrapped stream (required).
	Recorder *recorder.Recorder

	// Surface is the display target (required).
	Surface pipeline.Surface

	// Album receives photos (optional).
	Album album.Sink

	Events Publisher
	Logger *slog.Logger
}

// Status is a snapshot of the session.
type Status struct {
	Running    bool
	Device     string
	Mode       pipeline.Mode
	Calibrated bool
	Params     *unwrap.Params
	FrameSize  image.Point
	Recording  recorder.Status
	Stats      metrics.Stats
}

// run is the state of one Start..Stop cycle.
type run struct {
	source   media.Source
	pipeline *pipeline.Pipeline
	calib    *pipeline.Calibration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Session is the capture session.
type Session struct {
	sources  SourceFactory
	recorder *recorder.Recorder
	surface  pipeline.Surface
	album    album.Sink
	bus      Publisher
	logger   *slog.Logger

	// bounds the abort after the source exits on its own
	abortTimeout time.Duration

	mu  sync.Mutex
	cfg Config
	run *run

	calibMu sync.Mutex
}

// New creates a stopped session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		sources:  opts.Sources,
		recorder: opts.Recorder,
		surface:  opts.Surface,
		album:    opts.Album,
		bus:      opts.Events,
		logger:   logger,
		cfg:      opts.Config,

		abortTimeout: 5 * time.Second,
	}
}

// Configure replaces the capture configuration. Only allowed while stopped.
func (s *Session) Configure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return ErrRunning
	}
	s.cfg = cfg
	return nil
}

// Config returns the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start opens the source and begins rendering. A persisted calibration is
// applied immediately.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return ErrRunning
	}

	src, err := s.sources(s.cfg)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	calib := &pipeline.Calibration{}
	p := pipeline.New(pipeline.Options{
		Calibration: calib,
		Surface:     s.surface,
		Recorder:    s.recorder,
		Logger:      s.logger.With("component", "pipeline"),
	})
	if params, ok := s.loadCalibration(); ok {
		if t, err := unwrap.New(params); err == nil {
			p.SetTransform(t)
			calib.Calibrate()
		}
	}

	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("start source: %w", err)
	}
	s.recorder.SetAudioAvailable(src.HasAudio())

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{source: src, pipeline: p, calib: calib, cancel: cancel, done: make(chan struct{})}
	s.run = r
	go s.loop(runCtx, r)

	s.logger.Info("Capture started", "device", s.cfg.Device(), "audio", src.HasAudio(), "calibrated", calib.Calibrated())
	s.publish(events.CaptureStateChangedEvent{Running: true, Device: s.cfg.Device(), Timestamp: timestamp()})
	if calib.Calibrated() {
		s.publishCalibration(p.Transform().Params())
	}
	return nil
}

func (s *Session) loop(ctx context.Context, r *run) {
	defer close(r.done)
	err := r.pipeline.Run(ctx, r.source.Frames())
	if err != nil || ctx.Err() != nil {
		// cancelled by Stop
		return
	}

	// the source closed its channel on its own
	cause := errors.New("capture source exited")
	if e, ok := r.source.(interface{ Err() error }); ok && e.Err() != nil {
		cause = e.Err()
	}
	s.logger.Warn("Capture stopped unexpectedly", "error", cause)
	if s.recorder.Active() {
		abortCtx, cancel := context.WithTimeout(context.Background(), s.abortTimeout)
		if err := s.recorder.AbortRecording(abortCtx); err != nil {
			s.logger.Warn("Failed to abort recording", "error", err)
		}
		cancel()
	}

	s.mu.Lock()
	if s.run == r {
		s.run = nil
	}
	device := s.cfg.Device()
	s.mu.Unlock()

	s.publish(events.CaptureErrorEvent{Device: device, Message: "capture source exited", Error: cause.Error(), Timestamp: timestamp()})
	s.publish(events.CaptureStateChangedEvent{Running: false, Device: device, Timestamp: timestamp()})
}

// Stop aborts any recording, stops the source and waits for the pipeline.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.run
	s.run = nil
	device := s.cfg.Device()
	s.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}

	if s.recorder.Active() {
		if err := s.recorder.AbortRecording(ctx); err != nil && !errors.Is(err, recorder.ErrNotRecording) {
			s.logger.Warn("Failed to abort recording", "error", err)
		}
	}
	r.cancel()
	if err := r.source.Stop(); err != nil {
		s.logger.Warn("Failed to stop source", "error", err)
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("Capture stopped", "device", device)
	s.publish(events.CaptureStateChangedEvent{Running: false, Device: device, Timestamp: timestamp()})
	return nil
}

// Running reports whether capture is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

func (s *Session) current() (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil, ErrNotRunning
	}
	return s.run, nil
}

// StartRecording begins recording the unwrapped stream. It returns the
// recording ID.
func (s *Session) StartRecording(ctx context.Context) (string, error) {
	r, err := s.current()
	if err != nil {
		return "", err
	}
	if !r.calib.Calibrated() {
		return "", ErrNotCalibrated
	}
	return s.recorder.StartRecording(ctx)
}

// StopRecording finalizes the current recording.
func (s *Session) StopRecording(ctx context.Context) error {
	return s.recorder.StopRecording(ctx)
}

// AbortRecording discards the current recording.
func (s *Session) AbortRecording(ctx context.Context) error {
	return s.recorder.AbortRecording(ctx)
}

// Calibrate switches the pipeline to the unwrap path. A nil params uses the
// configured parameters, with zero fields derived from the current frame.
func (s *Session) Calibrate(params *unwrap.Params) (unwrap.Params, error) {
	s.calibMu.Lock()
	defer s.calibMu.Unlock()

	r, err := s.current()
	if err != nil {
		return unwrap.Params{}, err
	}
	if r.calib.Calibrated() {
		return unwrap.Params{}, ErrAlreadyCalibrated
	}

	var p unwrap.Params
	if params != nil {
		p = *params
	} else {
		p = s.Config().Unwrap
	}
	if p, err = fillParams(p, r.pipeline.FrameSize()); err != nil {
		return unwrap.Params{}, err
	}
	t, err := unwrap.New(p)
	if err != nil {
		return unwrap.Params{}, err
	}

	r.pipeline.SetTransform(t)
	if !r.calib.Calibrate() {
		return unwrap.Params{}, ErrAlreadyCalibrated
	}
	s.logger.Info("Calibrated", "center_x", p.Center.X, "center_y", p.Center.Y, "radius", p.Radius, "output_size", p.OutputSize)

	if path := s.Config().CalibrationFile; path != "" {
		if err := unwrap.SaveParams(path, p); err != nil {
			s.logger.Warn("Failed to save calibration", "path", path, "error", err)
		}
	}
	s.publishCalibration(p)
	return p, nil
}

// fillParams derives unset (zero) fields from the frame size. Explicit
// values are kept, so unwrap.New rejects out of range ones.
func fillParams(p unwrap.Params, frame image.Point) (unwrap.Params, error) {
	if p.Radius != 0 && p.OutputSize != 0 && (p.Center != unwrap.Point{}) {
		return p, nil
	}
	if frame.X == 0 || frame.Y == 0 {
		return p, ErrNoFrame
	}
	d := unwrap.DefaultParams(frame.X, frame.Y)
	if p.Center == (unwrap.Point{}) {
		p.Center = d.Center
	}
	if p.Radius == 0 {
		p.Radius = d.Radius
	}
	if p.OutputSize == 0 {
		p.OutputSize = d.OutputSize
	}
	return p, nil
}

// TakePhoto unwraps the next video frame and stores it in the album.
func (s *Session) TakePhoto(ctx context.Context) (image.Rectangle, error) {
	r, err := s.current()
	if err != nil {
		return image.Rectangle{}, err
	}
	if s.album == nil {
		return image.Rectangle{}, errors.New("no album configured")
	}
	img, err := r.pipeline.Still(ctx)
	if err != nil {
		return image.Rectangle{}, err
	}
	if err := s.album.SaveImage(img); err != nil {
		return image.Rectangle{}, fmt.Errorf("save photo: %w", err)
	}
	return img.Bounds(), nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	r := s.run
	st := Status{Running: r != nil, Device: s.cfg.Device()}
	s.mu.Unlock()

	st.Mode = pipeline.ModeCalibration
	if r != nil {
		st.Mode = r.calib.Mode()
		st.Calibrated = r.calib.Calibrated()
		st.FrameSize = r.pipeline.FrameSize()
		if t := r.pipeline.Transform(); t != nil && st.Calibrated {
			p := t.Params()
			st.Params = &p
		}
	}
	st.Recording = s.recorder.Status()
	st.Stats = metrics.Snapshot()
	return st
}

func (s *Session) loadCalibration() (unwrap.Params, bool) {
	path := s.cfg.CalibrationFile
	if path == "" {
		return unwrap.Params{}, false
	}
	p, err := unwrap.LoadParams(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return unwrap.Params{}, false
	case err != nil:
		s.logger.Warn("Ignoring calibration file", "path", path, "error", err)
		return unwrap.Params{}, false
	}
	return p, true
}

func (s *Session) publishCalibration(p unwrap.Params) {
	s.publish(events.CalibrationChangedEvent{
		Calibrated: true,
		CenterX:    p.Center.X,
		CenterY:    p.Center.Y,
		Radius:     p.Radius,
		OutputSize: p.OutputSize,
		Timestamp:  timestamp(),
	})
}

func (s *Session) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
