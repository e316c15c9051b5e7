package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/panocam/internal/metrics/collectors"
	"github.com/smazurov/panocam/internal/pool"
	"github.com/smazurov/panocam/internal/process"
	"github.com/smazurov/panocam/internal/recorder"
)

// ErrBackpressure is returned when a track has no room for another sample.
var ErrBackpressure = errors.New("writer input full")

// ErrNotStarted is returned when appending before StartWriting.
var ErrNotStarted = errors.New("writer not started")

// WriterOptions configure the ffmpeg-backed writer.
type WriterOptions struct {
	Binary     string // default "ffmpeg"
	Format     string // container, default "mov"
	QueueDepth int    // samples buffered per track, default 4
	SocketDir  string // progress sockets, default os.TempDir()
	Logger     *slog.Logger
}

// NewFactory returns a recorder.WriterFactory producing ffmpeg writers.
func NewFactory(opts WriterOptions) recorder.WriterFactory {
	return func(path string) (recorder.Writer, error) {
		return NewWriter(path, opts)
	}
}

type videoSample struct {
	buf *pool.Buffer
	at  time.Duration
}

type audioSample struct {
	samples []byte
	at      time.Duration
}

// Writer encodes raw frames by piping them into an ffmpeg subprocess. Video
// goes to stdin, audio to fd 3; each track has its own bounded queue drained
// by a pump goroutine so a slow encoder never blocks the recorder. Raw input
// carries no timestamps, so the pumps place samples on a constant-rate grid
// by their append timestamp.
type Writer struct {
	path   string
	opts   WriterOptions
	logger *slog.Logger

	video *recorder.VideoSettings
	audio *recorder.AudioSettings

	proc     *process.Process
	progress *collectors.ProgressCollector

	videoCh chan videoSample
	audioCh chan audioSample
	pumps   sync.WaitGroup

	mu       sync.Mutex
	started  bool
	closed   bool
	err      error
	anchor   time.Duration
	finished sync.Once
}

// NewWriter creates a writer for path. The ffmpeg process starts in
// StartWriting.
func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty output path", ErrInvalidParams)
	}
	if opts.Binary == "" {
		opts.Binary = Binary
	}
	if opts.Format == "" {
		opts.Format = "mov"
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 4
	}
	if opts.SocketDir == "" {
		opts.SocketDir = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		path:   path,
		opts:   opts,
		logger: logger.With("output", path),
	}, nil
}

// AddVideoInput sets the raw video input format.
func (w *Writer) AddVideoInput(s recorder.VideoSettings) error {
	if s.Width <= 0 || s.Height <= 0 || s.FPS <= 0 || s.Codec == "" {
		return fmt.Errorf("%w: video input %+v", ErrInvalidParams, s)
	}
	w.video = &s
	return nil
}

// AddAudioInput sets the PCM input format.
func (w *Writer) AddAudioInput(s recorder.AudioSettings) error {
	if s.Channels <= 0 || s.SampleRate <= 0 {
		return fmt.Errorf("%w: audio input %+v", ErrInvalidParams, s)
	}
	w.audio = &s
	return nil
}

// Params returns the command parameters for the configured inputs.
func (w *Writer) Params() (*RecordParams, error) {
	if w.video == nil {
		return nil, fmt.Errorf("%w: no video input", ErrInvalidParams)
	}
	p := &RecordParams{
		Width:      w.video.Width,
		Height:     w.video.Height,
		FPS:        w.video.FPS,
		VideoCodec: w.video.Codec,
		Preset:     w.video.Preset,
		Tune:       w.video.Tune,
		Format:     w.opts.Format,
		Output:     w.path,
	}
	if w.audio != nil {
		p.AudioCodec = w.audio.Codec
		p.AudioBitrate = w.audio.Bitrate
		p.SampleRate = w.audio.SampleRate
		p.Channels = w.audio.Channels
	}
	if w.progress != nil {
		p.ProgressURL = w.progress.URL()
	}
	return p, nil
}

// StartWriting launches ffmpeg and the per-track pumps.
func (w *Writer) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("writer already started")
	}

	socket := filepath.Join(w.opts.SocketDir, "panocam-record-"+uuid.NewString()[:8]+".sock")
	w.progress = collectors.NewProgressCollector(socket, "record", w.logger)
	if err := w.progress.Start(context.Background()); err != nil {
		w.logger.Debug("Progress socket unavailable", "error", err)
		w.progress = nil
	}

	params, err := w.Params()
	if err != nil {
		w.stopProgress()
		return err
	}
	args, err := RecordArgs(params)
	if err != nil {
		w.stopProgress()
		return err
	}

	var pipes []process.PipeDirection
	if params.HasAudio() {
		pipes = append(pipes, process.PipeToChild)
	}
	w.proc = process.New(process.Options{
		Name:       "record",
		Path:       w.opts.Binary,
		Args:       args,
		Stdin:      true,
		ExtraPipes: pipes,
		Logger:     w.logger,
		LogParser:  ParseLogLevel,
	})
	if err := w.proc.Start(); err != nil {
		w.stopProgress()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	w.videoCh = make(chan videoSample, w.opts.QueueDepth)
	w.pumps.Add(1)
	go w.pumpVideo(w.proc.Stdin(), params.FPS)
	if params.HasAudio() {
		w.audioCh = make(chan audioSample, w.opts.QueueDepth)
		w.pumps.Add(1)
		go w.pumpAudio(w.proc.Pipe(0), params.SampleRate, params.Channels)
	}
	w.started = true
	return nil
}

// StartSession anchors the timeline: a sample appended at `at` lands at
// at-anchor in the container.
func (w *Writer) StartSession(at time.Duration) {
	w.mu.Lock()
	w.anchor = at
	w.mu.Unlock()
	w.logger.Debug("Recording session started", "anchor", at)
}

// Ready reports whether the track's queue has room.
func (w *Writer) Ready(track recorder.Track) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || w.closed || w.err != nil {
		return false
	}
	switch track {
	case recorder.TrackVideo:
		return len(w.videoCh) < cap(w.videoCh)
	case recorder.TrackAudio:
		return w.audioCh != nil && len(w.audioCh) < cap(w.audioCh)
	}
	return false
}

// AppendVideo queues buf for the encoder. buf is released in every case.
func (w *Writer) AppendVideo(buf *pool.Buffer, at time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		buf.Release()
		return err
	}
	select {
	case w.videoCh <- videoSample{buf: buf, at: at}:
		return nil
	default:
		buf.Release()
		return ErrBackpressure
	}
}

// AppendAudio queues a copy of samples for the encoder.
func (w *Writer) AppendAudio(samples []byte, at time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	if w.audioCh == nil {
		return errors.New("no audio input")
	}
	select {
	case w.audioCh <- audioSample{samples: append([]byte(nil), samples...), at: at}:
		return nil
	default:
		return ErrBackpressure
	}
}

// usable must be called with mu held.
func (w *Writer) usable() error {
	switch {
	case !w.started:
		return ErrNotStarted
	case w.closed:
		return errors.New("writer closed")
	case w.err != nil:
		return w.err
	}
	return nil
}

// Finish flushes queued samples, closes ffmpeg's inputs and waits for the
// container to be written. ctx bounds the whole call: on expiry ffmpeg is
// killed, which also fails pump writes blocked on a full pipe.
func (w *Writer) Finish(ctx context.Context) error {
	if !w.closeInputs() {
		return ErrNotStarted
	}
	drained := make(chan struct{})
	go func() {
		w.pumps.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		w.logger.Warn("ffmpeg stopped reading input, killing", "error", ctx.Err())
		w.proc.Kill()
		<-drained
	}
	w.proc.CloseInputs()

	code, err := w.proc.Wait(ctx)
	w.stopProgress()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("ffmpeg finalize: %w", ctxErr)
	}
	if pumpErr := w.pumpErr(); pumpErr != nil {
		return fmt.Errorf("ffmpeg input: %w", pumpErr)
	}
	if code != 0 {
		return fmt.Errorf("ffmpeg exited with code %d: %w", code, err)
	}
	if _, err := os.Stat(w.path); err != nil {
		return fmt.Errorf("ffmpeg output: %w", err)
	}
	return nil
}

// Cancel kills ffmpeg and drops queued samples.
func (w *Writer) Cancel() {
	started := w.closeInputs()
	if !started {
		return
	}
	w.proc.Kill()
	w.pumps.Wait()
	w.stopProgress()
}

// OutputPath returns the container path.
func (w *Writer) OutputPath() string {
	return w.path
}

// closeInputs closes the track queues once. It reports whether the writer
// was started.
func (w *Writer) closeInputs() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return false
	}
	w.finished.Do(func() {
		w.closed = true
		close(w.videoCh)
		if w.audioCh != nil {
			close(w.audioCh)
		}
	})
	return true
}

func (w *Writer) pumpVideo(dst io.WriteCloser, fps int) {
	defer w.pumps.Done()
	grid := newFrameGrid(fps)
	for s := range w.videoCh {
		if w.pumpErr() == nil {
			if err := grid.place(dst, s.buf.Image.Pix, s.at-w.sessionAnchor()); err != nil {
				w.fail(fmt.Errorf("video: %w", err))
			}
		}
		s.buf.Release()
	}
}

func (w *Writer) pumpAudio(dst io.Writer, rate, channels int) {
	defer w.pumps.Done()
	grid := newSampleGrid(rate, channels)
	for s := range w.audioCh {
		if w.pumpErr() != nil {
			continue
		}
		if err := grid.place(dst, s.samples, s.at-w.sessionAnchor()); err != nil {
			w.fail(fmt.Errorf("audio: %w", err))
		}
	}
}

func (w *Writer) sessionAnchor() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.anchor
}

func (w *Writer) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
		w.logger.Warn("ffmpeg input failed", "error", err)
	}
	w.mu.Unlock()
}

func (w *Writer) pumpErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) stopProgress() {
	if w.progress != nil {
		w.progress.Stop()
	}
}
