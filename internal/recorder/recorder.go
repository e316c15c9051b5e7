// Package recorder drives a recording attempt from Idle through
// Configuring, Writing and Finishing (or Aborting) back to Idle.
//
// Every session mutation and every writer call except Finish runs on one
// serial queue goroutine, so the session needs no locks. Commands
// (StartRecording, StopRecording, AbortRecording) wait for their result;
// frame hand-offs never block and drop the frame when the queue is full.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/media"
	"github.com/smazurov/panocam/internal/metrics"
	"github.com/smazurov/panocam/internal/pool"
)

// Config holds the fixed recording parameters.
type Config struct {
	Width           int
	Height          int
	FPS             int
	VideoCodec      string
	Preset          string
	Tune            string
	AudioCodec      string
	AudioBitrate    int
	TempPath        string
	PoolSize        int
	QueueDepth      int
	MaxStartRetries int // writer start refusals tolerated per attempt; negative disables restarts
	FinishTimeout   time.Duration
}

// DefaultConfig returns the real-time H.264/AAC settings at 480x240.
func DefaultConfig() Config {
	return Config{
		Width:           480,
		Height:          240,
		FPS:             30,
		VideoCodec:      "libx264",
		Preset:          "ultrafast",
		Tune:            "zerolatency",
		AudioCodec:      "aac",
		AudioBitrate:    64000,
		TempPath:        filepath.Join(os.TempDir(), "recording.mov"),
		PoolSize:        8,
		QueueDepth:      64,
		MaxStartRetries: 3,
		FinishTimeout:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = d.Width, d.Height
	}
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	if c.VideoCodec == "" {
		c.VideoCodec = d.VideoCodec
	}
	if c.Preset == "" {
		c.Preset = d.Preset
	}
	if c.Tune == "" {
		c.Tune = d.Tune
	}
	if c.AudioCodec == "" {
		c.AudioCodec = d.AudioCodec
	}
	if c.AudioBitrate <= 0 {
		c.AudioBitrate = d.AudioBitrate
	}
	if c.TempPath == "" {
		c.TempPath = d.TempPath
	}
	if c.PoolSize <= 0 {
		c.PoolSize = d.PoolSize
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	switch {
	case c.MaxStartRetries == 0:
		c.MaxStartRetries = d.MaxStartRetries
	case c.MaxStartRetries < 0:
		c.MaxStartRetries = 0
	}
	if c.FinishTimeout <= 0 {
		c.FinishTimeout = d.FinishTimeout
	}
	return c
}

// Publisher receives recorder events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a new Recorder.
type Options struct {
	// Config holds recording parameters. Zero fields take DefaultConfig values.
	Config Config

	// Factory builds one writer per attempt (required).
	Factory WriterFactory

	// Sink receives finished recordings (optional).
	Sink VideoSink

	// Events receives phase and result events (optional).
	Events Publisher

	// Logger for recorder operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Status is a snapshot of the recorder state.
type Status struct {
	Phase       Phase
	RecordingID string
	Duration    time.Duration // last observed PTS minus anchor PTS
	VideoFrames int
	AudioFrames int
	Dropped     int // frames refused by the writer in this attempt
	Restarts    int // writer start failures in this attempt
	LastError   error
}

// session is owned by the queue goroutine.
type session struct {
	id       string
	phase    Phase
	writer   Writer
	path     string
	hasAudio bool
	started  bool
	anchor   time.Duration
	last     time.Duration
	video    int
	audio    int
	dropped  int
	restarts int
}

// Recorder owns the recording session.
type Recorder struct {
	cfg     Config
	factory WriterFactory
	sink    VideoSink
	bus     Publisher
	logger  *slog.Logger
	pool    *pool.Pool
	q       *queue

	active    atomic.Bool
	audioOK   atomic.Bool
	lastAudio atomic.Value // media.AudioDescription

	s *session // queue-owned

	statusMu sync.RWMutex
	status   Status
	idle     chan struct{}

	finishing sync.WaitGroup
	closeOnce sync.Once
}

// New creates a recorder and starts its queue.
func New(opts Options) *Recorder {
	cfg := opts.Config.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := make(chan struct{})
	close(idle)

	r := &Recorder{
		cfg:     cfg,
		factory: opts.Factory,
		sink:    opts.Sink,
		bus:     opts.Events,
		logger:  logger,
		pool:    pool.New(cfg.Width, cfg.Height, cfg.PoolSize),
		q:       newQueue(cfg.QueueDepth),
		status:  Status{Phase: PhaseIdle},
		idle:    idle,
	}
	metrics.SetRecorderPhase(string(PhaseIdle), phaseNames())
	return r
}

// Config returns the effective recording parameters.
func (r *Recorder) Config() Config {
	return r.cfg
}

// SetAudioAvailable tells the recorder whether an audio source exists.
func (r *Recorder) SetAudioAvailable(ok bool) {
	r.audioOK.Store(ok)
}

// Active reports whether frames are currently accepted.
func (r *Recorder) Active() bool {
	return r.active.Load()
}

// Status returns the current state.
func (r *Recorder) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

// WaitIdle blocks until the recorder is Idle.
func (r *Recorder) WaitIdle(ctx context.Context) error {
	r.statusMu.RLock()
	idle := r.idle
	r.statusMu.RUnlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartRecording configures a new attempt. The writer starts lazily on the
// first video frame.
func (r *Recorder) StartRecording(ctx context.Context) (string, error) {
	var id string
	var err error
	if qErr := r.q.do(ctx, func() {
		if r.s != nil {
			err = ErrAlreadyRecording
			return
		}
		s := &session{id: uuid.NewString()}
		if err = r.configure(s); err != nil {
			r.setLastError(err)
			return
		}
		r.setLastError(nil)
		id = s.id
	}); qErr != nil {
		return "", qErr
	}
	return id, err
}

// StopRecording finalizes the current attempt asynchronously. A writer
// that never started is cancelled instead.
func (r *Recorder) StopRecording(ctx context.Context) error {
	var err error
	if qErr := r.q.do(ctx, func() {
		s := r.s
		if s == nil {
			err = ErrNotRecording
			return
		}
		switch s.phase {
		case PhaseConfiguring:
			r.logger.Info("Stopping recording before the first frame", "recording_id", s.id)
			r.discard(s)
			metrics.IncRecording("aborted")
		case PhaseWriting:
			r.finish(s)
		default:
			err = ErrNotRecording
		}
	}); qErr != nil {
		return qErr
	}
	return err
}

// AbortRecording cancels the current attempt and deletes its temp file.
// It is a no-op when Idle.
func (r *Recorder) AbortRecording(ctx context.Context) error {
	return r.q.do(ctx, func() {
		if r.s == nil {
			return
		}
		r.abort(r.s, nil)
	})
}

// SubmitVideo renders a recording frame into a pooled buffer and hands it
// to the queue. It never blocks; frames are dropped when no buffer is free
// or the queue is full.
func (r *Recorder) SubmitVideo(at time.Duration, render func(dst *image.RGBA)) {
	if !r.active.Load() {
		return
	}
	buf, err := r.pool.Get()
	if err != nil {
		r.logger.Debug("Dropping video frame", "reason", err)
		metrics.IncDropped(metrics.DropPoolExhausted)
		return
	}
	render(buf.Image)
	if !r.q.try(func() { r.handleVideo(buf, at) }) {
		buf.Release()
		r.logger.Debug("Dropping video frame, queue full")
		metrics.IncDropped(metrics.DropQueueFull)
	}
}

// SubmitAudio hands PCM samples to the queue. The description is kept to
// configure the next attempt's audio input.
func (r *Recorder) SubmitAudio(samples []byte, desc media.AudioDescription, at time.Duration) {
	if desc.Valid() {
		if last, _ := r.lastAudio.Load().(media.AudioDescription); last != desc {
			r.lastAudio.Store(desc)
		}
	}
	if !r.active.Load() {
		return
	}
	if !r.q.try(func() { r.handleAudio(samples, at) }) {
		metrics.IncDropped(metrics.DropQueueFull)
	}
}

// Close aborts any attempt, waits for pending finalizes and stops the queue.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FinishTimeout)
		defer cancel()
		err = r.AbortRecording(ctx)
		r.finishing.Wait()
		r.q.close()
	})
	return err
}

func (r *Recorder) configure(s *session) error {
	if err := os.Remove(r.cfg.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("Failed to remove stale temp file", "path", r.cfg.TempPath, "error", err)
	}
	w, err := r.factory(r.cfg.TempPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigure, err)
	}
	video := VideoSettings{
		Codec:  r.cfg.VideoCodec,
		Width:  r.cfg.Width,
		Height: r.cfg.Height,
		FPS:    r.cfg.FPS,
		Preset: r.cfg.Preset,
		Tune:   r.cfg.Tune,
	}
	if err := w.AddVideoInput(video); err != nil {
		w.Cancel()
		return fmt.Errorf("%w: video input: %w", ErrConfigure, err)
	}

	s.hasAudio = false
	if desc, ok := r.lastAudio.Load().(media.AudioDescription); ok && r.audioOK.Load() && desc.Valid() {
		audio := AudioSettings{
			Codec:      r.cfg.AudioCodec,
			Channels:   desc.Channels,
			SampleRate: desc.SampleRate,
			Bitrate:    r.cfg.AudioBitrate,
		}
		if err := w.AddAudioInput(audio); err != nil {
			r.logger.Warn("Audio input unavailable, recording video only", "error", err)
		} else {
			s.hasAudio = true
		}
	}

	s.writer = w
	s.path = w.OutputPath()
	s.started = false
	r.s = s
	r.setPhase(s, PhaseConfiguring)
	r.logger.Info("Recording configured", "recording_id", s.id, "path", s.path,
		"width", video.Width, "height", video.Height, "audio", s.hasAudio)
	return nil
}

func (r *Recorder) handleVideo(buf *pool.Buffer, at time.Duration) {
	s := r.s
	if s == nil || !s.phase.Recording() {
		buf.Release()
		return
	}
	if !s.started && !r.startWriting(s, at) {
		buf.Release()
		return
	}
	s.last = at
	if !s.writer.Ready(TrackVideo) {
		buf.Release()
		s.dropped++
		r.updateStatus(s)
		metrics.IncDropped(metrics.DropWriterNotReady)
		return
	}
	if err := s.writer.AppendVideo(buf, at); err != nil {
		r.abort(s, fmt.Errorf("%w: video: %w", ErrAppend, err))
		return
	}
	s.video++
	metrics.IncAppended(string(TrackVideo))
	r.updateStatus(s)
}

func (r *Recorder) handleAudio(samples []byte, at time.Duration) {
	s := r.s
	if s == nil || s.phase != PhaseWriting || !s.hasAudio {
		return
	}
	if !s.writer.Ready(TrackAudio) {
		metrics.IncDropped(metrics.DropWriterNotReady)
		return
	}
	if err := s.writer.AppendAudio(samples, at); err != nil {
		r.abort(s, fmt.Errorf("%w: audio: %w", ErrAppend, err))
		return
	}
	s.audio++
	metrics.IncAppended(string(TrackAudio))
	r.updateStatus(s)
}

// startWriting starts the writer on the first frame. A refusal restarts the
// attempt from Idle until MaxStartRetries restarts were used up.
func (r *Recorder) startWriting(s *session, at time.Duration) bool {
	if err := s.writer.StartWriting(); err != nil {
		s.writer.Cancel()
		removeTemp(r.logger, s.path)
		if s.restarts >= r.cfg.MaxStartRetries {
			failErr := fmt.Errorf("%w after %d restarts: %w", ErrStartWriting, s.restarts, err)
			r.logger.Warn("Recording failed", "recording_id", s.id, "error", failErr)
			r.end(s, "start", failErr, "")
			return false
		}
		s.restarts++
		r.logger.Warn("Writer refused to start, restarting session",
			"recording_id", s.id, "restart", s.restarts, "error", err)
		r.setPhase(s, PhaseIdle)
		r.s = nil
		if cfgErr := r.configure(s); cfgErr != nil {
			r.logger.Warn("Recording failed", "recording_id", s.id, "error", cfgErr)
			r.end(s, "configure", cfgErr, "")
		}
		return false
	}
	s.writer.StartSession(at)
	s.started = true
	s.anchor = at
	s.last = at
	r.setPhase(s, PhaseWriting)
	return true
}

func (r *Recorder) finish(s *session) {
	r.setPhase(s, PhaseFinishing)
	w := s.writer
	timeout := r.cfg.FinishTimeout
	r.finishing.Add(1)
	go func() {
		defer r.finishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := w.Finish(ctx)
		r.q.post(func() { r.finished(s, err) })
	}()
}

func (r *Recorder) finished(s *session, err error) {
	if r.s != s {
		// aborted while finalizing
		return
	}
	if err != nil {
		finErr := fmt.Errorf("%w: %w", ErrFinalize, err)
		r.logger.Warn("Recording finalize failed, keeping temp file", "recording_id", s.id, "path", s.path, "error", finErr)
		r.end(s, "finalize", finErr, s.path)
		return
	}
	if r.sink != nil {
		if err := r.sink.SaveVideo(s.path); err != nil {
			r.logger.Warn("Failed to save recording, keeping temp file", "recording_id", s.id, "path", s.path, "error", err)
			r.end(s, "save", err, s.path)
			return
		}
	}
	removeTemp(r.logger, s.path)

	duration := s.last - s.anchor
	r.logger.Info("Recording saved", "recording_id", s.id, "duration", duration, "video_frames", s.video, "audio_frames", s.audio)
	metrics.IncRecording("saved")
	r.setLastError(nil)
	r.publish(events.RecordingSavedEvent{
		RecordingID: s.id,
		Duration:    duration.Seconds(),
		VideoFrames: s.video,
		Timestamp:   timestamp(),
	})
	r.s = nil
	r.setPhase(s, PhaseIdle)
}

// abort cancels the writer and deletes the temp file. cause is nil for
// user aborts.
func (r *Recorder) abort(s *session, cause error) {
	r.setPhase(s, PhaseAborting)
	s.writer.Cancel()
	removeTemp(r.logger, s.path)
	r.s = nil
	if cause != nil {
		r.logger.Warn("Recording aborted", "recording_id", s.id, "error", cause)
		metrics.IncRecording("failed")
		r.setLastError(cause)
		r.publish(events.RecordingFailedEvent{
			RecordingID: s.id,
			Stage:       "append",
			Error:       cause.Error(),
			Timestamp:   timestamp(),
		})
	} else {
		r.logger.Info("Recording aborted", "recording_id", s.id)
		metrics.IncRecording("aborted")
	}
	r.setPhase(s, PhaseIdle)
}

// discard drops a writer that never started.
func (r *Recorder) discard(s *session) {
	s.writer.Cancel()
	removeTemp(r.logger, s.path)
	r.s = nil
	r.setPhase(s, PhaseIdle)
}

// end returns a failed attempt to Idle. keptPath names a retained temp file.
func (r *Recorder) end(s *session, stage string, err error, keptPath string) {
	metrics.IncRecording("failed")
	r.setLastError(err)
	r.publish(events.RecordingFailedEvent{
		RecordingID: s.id,
		Stage:       stage,
		Error:       err.Error(),
		TempPath:    keptPath,
		Timestamp:   timestamp(),
	})
	r.s = nil
	r.setPhase(s, PhaseIdle)
}

func (r *Recorder) setPhase(s *session, phase Phase) {
	prev := s.phase
	if prev == "" {
		prev = PhaseIdle
	}
	s.phase = phase
	r.active.Store(phase.Recording())
	if prev == phase {
		r.updateStatus(s)
		return
	}

	r.statusMu.Lock()
	switch {
	case phase == PhaseIdle:
		select {
		case <-r.idle:
		default:
			close(r.idle)
		}
	case prev == PhaseIdle:
		r.idle = make(chan struct{})
	}
	r.statusMu.Unlock()
	r.updateStatus(s)

	metrics.SetRecorderPhase(string(phase), phaseNames())
	r.logger.Debug("Recorder phase changed", "recording_id", s.id, "from", prev, "to", phase)
	r.publish(events.RecordingPhaseChangedEvent{
		RecordingID: s.id,
		Phase:       string(phase),
		Previous:    string(prev),
		Timestamp:   timestamp(),
	})
}

func (r *Recorder) updateStatus(s *session) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.status.Phase = s.phase
	r.status.RecordingID = s.id
	r.status.VideoFrames = s.video
	r.status.AudioFrames = s.audio
	r.status.Dropped = s.dropped
	r.status.Restarts = s.restarts
	r.status.Duration = 0
	if s.started {
		r.status.Duration = s.last - s.anchor
	}
}

func (r *Recorder) setLastError(err error) {
	r.statusMu.Lock()
	r.status.LastError = err
	r.statusMu.Unlock()
}

func (r *Recorder) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

func removeTemp(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove temp file", "path", path, "error", err)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
