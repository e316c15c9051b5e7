package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/panocam/internal/capture"
	"github.com/smazurov/panocam/internal/config"
	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/logging"
)

// RecordFlags are the command line parameters of the record command.
type RecordFlags struct {
	Duration time.Duration
	Warmup   time.Duration
}

// CreateRecordCmd creates the headless record command. It drives the same
// capture session as the server: start capture, calibrate from the first
// frame, record for the given duration and save to the album.
func CreateRecordCmd() *cobra.Command {
	var flags RecordFlags

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the unwrapped stream without the HTTP server",
		Long: `Starts capture, calibrates with the configured or derived parameters, records for --duration ` +
			`(or until interrupted) and moves the result into the album directory.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			if err := config.LoadConfig(opts, cmd); err != nil {
				fmt.Fprintln(os.Stderr, "failed to load config:", err)
			}
			logging.Initialize(opts.Logging())
			logger := logging.GetLogger("main")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := Record(ctx, opts, flags); err != nil {
				logger.Error("Recording failed", "error", err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().DurationVar(&flags.Duration, "duration", 10*time.Second, "Recording length, zero records until interrupted")
	cmd.Flags().DurationVar(&flags.Warmup, "warmup", 10*time.Second, "Time allowed for the first frame to arrive")

	return cmd
}

// Record runs one headless recording. Cancelling ctx ends the recording
// early; the file is still finalized and saved.
func Record(ctx context.Context, opts *config.Options, flags RecordFlags) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	logger := logging.GetLogger("main")

	closeCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), opts.Recorder().FinishTimeout+5*time.Second)
	}
	defer func() {
		cctx, cancel := closeCtx()
		defer cancel()
		if err := app.Close(cctx); err != nil {
			logger.Warn("Shutdown incomplete", "error", err)
		}
	}()

	result := make(chan error, 1)
	unsubSaved := app.Bus.Subscribe(func(e events.RecordingSavedEvent) {
		logger.Info("Recording saved", "recording_id", e.RecordingID, "duration", e.Duration, "frames", e.VideoFrames)
		deliver(result, nil)
	})
	defer unsubSaved()
	unsubFailed := app.Bus.Subscribe(func(e events.RecordingFailedEvent) {
		deliver(result, fmt.Errorf("%s: %s", e.Stage, e.Error))
	})
	defer unsubFailed()

	if err := app.Session.Start(ctx); err != nil {
		return err
	}
	if err := calibrateWhenReady(ctx, app.Session, flags.Warmup); err != nil {
		return err
	}

	id, err := app.Session.StartRecording(ctx)
	if err != nil {
		return err
	}
	logger.Info("Recording", "recording_id", id, "duration", flags.Duration, "album", app.Album.Dir())

	var timeout <-chan time.Time
	if flags.Duration > 0 {
		timer := time.NewTimer(flags.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-timeout:
	case <-ctx.Done():
	case err := <-result:
		// ended on its own, e.g. the writer failed
		return err
	}

	sctx, cancel := closeCtx()
	defer cancel()
	if err := app.Session.StopRecording(sctx); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-sctx.Done():
		return fmt.Errorf("waiting for recording to finish: %w", sctx.Err())
	}
}

// calibrateWhenReady calibrates as soon as the pipeline has seen a frame.
// A calibration restored from file is kept.
func calibrateWhenReady(ctx context.Context, session *capture.Session, warmup time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, warmup)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		_, err := session.Calibrate(nil)
		switch {
		case err == nil, errors.Is(err, capture.ErrAlreadyCalibrated):
			return nil
		case !errors.Is(err, capture.ErrNoFrame):
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no video frame within %s: %w", warmup, ctx.Err())
		case <-ticker.C:
		}
	}
}

func deliver(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
