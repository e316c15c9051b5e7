package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/panocam/internal/album"
	"github.com/smazurov/panocam/internal/capture"
	"github.com/smazurov/panocam/internal/config"
	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/ffmpeg"
	"github.com/smazurov/panocam/internal/logging"
	"github.com/smazurov/panocam/internal/metrics/exporters"
	"github.com/smazurov/panocam/internal/preview"
	"github.com/smazurov/panocam/internal/recorder"
)

// App is the assembled capture service shared by the server and the
// headless commands.
type App struct {
	Bus      *events.Bus
	Album    *album.Directory
	Preview  *preview.Surface
	Recorder *recorder.Recorder
	Session  *capture.Session
	Stats    *exporters.StatsExporter

	logger *slog.Logger
}

// NewApp wires the event bus, album, preview surface, recorder and capture
// session from opts. Logging must already be initialized.
func NewApp(opts *config.Options) (*App, error) {
	bus := events.New()

	albumDir, err := album.NewDirectory(album.Options{
		Dir:    opts.AlbumDir,
		Events: bus,
		Logger: logging.GetLogger("album"),
	})
	if err != nil {
		return nil, err
	}

	rec := recorder.New(recorder.Options{
		Config: opts.Recorder(),
		Factory: ffmpeg.NewFactory(ffmpeg.WriterOptions{
			Binary: ffmpeg.Binary,
			Logger: logging.GetLogger("ffmpeg"),
		}),
		Sink:   albumDir,
		Events: bus,
		Logger: logging.GetLogger("recorder"),
	})

	surface := preview.New(opts.PreviewWidth, opts.PreviewHeight, opts.PreviewQuality)

	capCfg := opts.Capture()
	if err := ffmpeg.ValidateOptions(capCfg.Capture.Options); err != nil {
		rec.Close()
		return nil, fmt.Errorf("capture options: %w", err)
	}

	session := capture.New(capture.Options{
		Config:   capCfg,
		Sources:  capture.FFmpegSourceFactory(ffmpeg.Binary, logging.GetLogger("ffmpeg")),
		Recorder: rec,
		Surface:  surface,
		Album:    albumDir,
		Events:   bus,
		Logger:   logging.GetLogger("capture"),
	})

	// Forward log records to SSE clients
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(events.LogEntryEvent{
			Seq:        entry.Seq,
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	})

	return &App{
		Bus:      bus,
		Album:    albumDir,
		Preview:  surface,
		Recorder: rec,
		Session:  session,
		Stats:    exporters.NewStatsExporter(bus),
		logger:   logging.GetLogger("main"),
	}, nil
}

// Close stops capture, waits for a pending recording to settle and shuts
// the recorder down.
func (a *App) Close(ctx context.Context) error {
	a.Stats.Stop()
	logging.SetLogCallback(nil)

	var errs []error
	if err := a.Session.Stop(ctx); err != nil && !errors.Is(err, capture.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("stop capture: %w", err))
	}
	if err := a.Recorder.WaitIdle(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for recorder: %w", err))
	}
	if err := a.Recorder.Close(); err != nil && !errors.Is(err, recorder.ErrClosed) {
		errs = append(errs, fmt.Errorf("close recorder: %w", err))
	}
	if len(errs) == 0 {
		a.logger.Info("Capture service stopped")
	}
	return errors.Join(errs...)
}
