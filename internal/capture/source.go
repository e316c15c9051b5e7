package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/panocam/internal/ffmpeg"
	"github.com/smazurov/panocam/internal/media"
	"github.com/smazurov/panocam/internal/metrics"
	"github.com/smazurov/panocam/internal/metrics/collectors"
	"github.com/smazurov/panocam/internal/process"
)

// audioChunk is the length of one delivered audio frame.
const audioChunk = 20 * time.Millisecond

// SourceOptions configures an FFmpegSource.
type SourceOptions struct {
	Params ffmpeg.CaptureParams

	// Binary is the ffmpeg executable. Empty means "ffmpeg".
	Binary string

	// FrameBuffer bounds the frame channel. Zero means 4.
	FrameBuffer int

	// SocketDir holds the progress socket. Empty means os.TempDir().
	SocketDir string

	Logger *slog.Logger
}

// FFmpegSource reads raw RGBA video from ffmpeg's stdout and s16le audio
// from fd 3, and delivers both on one bounded channel. When the channel is
// full the newest frame is dropped; the producer never blocks.
type FFmpegSource struct {
	opts   SourceOptions
	logger *slog.Logger

	frames chan media.Frame
	proc   *process.Process
	prog   *collectors.ProgressCollector

	readers sync.WaitGroup
	mu      sync.Mutex
	started bool
	err     error
	stopped chan struct{}
}

// NewFFmpegSource validates the capture command and returns an unstarted
// source.
func NewFFmpegSource(opts SourceOptions) (*FFmpegSource, error) {
	if _, err := ffmpeg.CaptureArgs(&opts.Params); err != nil {
		return nil, err
	}
	if opts.Binary == "" {
		opts.Binary = ffmpeg.Binary
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = 4
	}
	if opts.SocketDir == "" {
		opts.SocketDir = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegSource{
		opts:    opts,
		logger:  logger,
		frames:  make(chan media.Frame, opts.FrameBuffer),
		stopped: make(chan struct{}),
	}, nil
}

// HasAudio reports whether the capture command includes an audio input.
func (s *FFmpegSource) HasAudio() bool {
	return s.opts.Params.HasAudio()
}

// Frames returns the frame channel. It is closed once ffmpeg exits.
func (s *FFmpegSource) Frames() <-chan media.Frame {
	return s.frames
}

// Start launches ffmpeg and the readers.
func (s *FFmpegSource) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("source already started")
	}

	params := s.opts.Params
	s.prog = collectors.NewProgressCollector(filepath.Join(s.opts.SocketDir, "panocam-capture.sock"), "capture", s.logger)
	if err := s.prog.Start(context.Background()); err != nil {
		s.logger.Debug("Progress socket unavailable", "error", err)
		s.prog = nil
	} else {
		params.ProgressURL = s.prog.URL()
	}

	args, err := ffmpeg.CaptureArgs(&params)
	if err != nil {
		return err
	}
	var pipes []process.PipeDirection
	if params.HasAudio() {
		pipes = append(pipes, process.PipeFromChild)
	}
	s.proc = process.New(process.Options{
		Name:       "capture",
		Path:       s.opts.Binary,
		Args:       args,
		Stdout:     true,
		ExtraPipes: pipes,
		Logger:     s.logger,
		LogParser:  ffmpeg.ParseLogLevel,
	})
	if err := s.proc.Start(); err != nil {
		s.stopProgress()
		return fmt.Errorf("start capture: %w", err)
	}
	s.started = true

	start := time.Now()
	s.readers.Add(1)
	go s.readVideo(s.proc.Stdout(), params.Width, params.Height, start)
	if params.HasAudio() {
		rate, channels := params.SampleRate, params.Channels
		if rate <= 0 {
			rate = ffmpeg.DefaultSampleRate
		}
		if channels <= 0 {
			channels = ffmpeg.DefaultChannels
		}
		s.readers.Add(1)
		go s.readAudio(s.proc.Pipe(0), media.AudioDescription{Channels: channels, SampleRate: rate})
	}

	go func() {
		s.readers.Wait()
		s.proc.Stop()
		s.stopProgress()
		close(s.frames)
	}()
	return nil
}

// Stop terminates ffmpeg. Frames already queued remain readable until the
// channel closes.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
	s.proc.Stop()
	return nil
}

// Err returns the read error that ended the stream, if any.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FFmpegSource) readVideo(r io.ReadCloser, w, h int, start time.Time) {
	defer s.readers.Done()
	defer r.Close()
	size := w * h * media.PixelFormatRGBA.BytesPerPixel()
	for {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		if _, err := io.ReadFull(r, img.Pix[:size]); err != nil {
			s.readDone("video", err)
			return
		}
		s.deliver(media.Frame{
			Kind:   media.KindVideo,
			PTS:    time.Since(start),
			Image:  img,
			Format: media.PixelFormatRGBA,
		})
	}
}

func (s *FFmpegSource) readAudio(r io.ReadCloser, desc media.AudioDescription) {
	defer s.readers.Done()
	defer r.Close()
	samples := int(int64(desc.SampleRate) * int64(audioChunk) / int64(time.Second))
	size := samples * desc.Channels * 2
	var read int64
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			s.readDone("audio", err)
			return
		}
		// audio PTS follows the sample clock
		pts := time.Duration(read * int64(time.Second) / int64(desc.SampleRate))
		read += int64(samples)
		s.deliver(media.Frame{
			Kind:    media.KindAudio,
			PTS:     pts,
			Samples: buf,
			Audio:   desc,
		})
	}
}

func (s *FFmpegSource) deliver(f media.Frame) {
	select {
	case s.frames <- f:
	default:
		metrics.IncDropped(metrics.DropSource)
	}
}

func (s *FFmpegSource) readDone(stream string, err error) {
	select {
	case <-s.stopped:
		return
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
		err = fmt.Errorf("%s stream ended", stream)
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.logger.Warn("Capture stream ended", "stream", stream, "error", err)
}

func (s *FFmpegSource) stopProgress() {
	if s.prog != nil {
		s.prog.Stop()
	}
}
