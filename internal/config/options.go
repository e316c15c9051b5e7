package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/panocam/internal/capture"
	"github.com/smazurov/panocam/internal/ffmpeg"
	"github.com/smazurov/panocam/internal/logging"
	"github.com/smazurov/panocam/internal/recorder"
	"github.com/smazurov/panocam/internal/unwrap"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings, empty disables basic auth
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Capture settings
	CaptureAutostart       bool   `help:"Start capture when the server starts" default:"true" toml:"capture.autostart" env:"CAPTURE_AUTOSTART"`
	CaptureDevice          string `help:"V4L2 capture device" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureInputFormat     string `help:"V4L2 input format (yuyv422, mjpeg)" default:"" toml:"capture.input_format" env:"CAPTURE_INPUT_FORMAT"`
	CaptureWidth           int    `help:"Capture width" default:"1920" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight          int    `help:"Capture height" default:"1080" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CaptureFPS             int    `help:"Capture frame rate" default:"30" toml:"capture.fps" env:"CAPTURE_FPS"`
	CaptureAudioDevice     string `help:"ALSA audio device (empty disables audio)" default:"" toml:"capture.audio_device" env:"CAPTURE_AUDIO_DEVICE"`
	CaptureTestSource      bool   `help:"Use the ffmpeg test pattern instead of a device" default:"false" toml:"capture.test_source" env:"CAPTURE_TEST_SOURCE"`
	CaptureFrameBuffer     int    `help:"Frames buffered between capture and pipeline" default:"4" toml:"capture.frame_buffer" env:"CAPTURE_FRAME_BUFFER"`
	CaptureCalibrationFile string `help:"File persisting calibrated unwrap parameters" default:"calibration.toml" toml:"capture.calibration_file" env:"CAPTURE_CALIBRATION_FILE"`

	// Preview settings
	PreviewWidth   int `help:"Preview surface width" default:"640" toml:"preview.width" env:"PREVIEW_WIDTH"`
	PreviewHeight  int `help:"Preview surface height" default:"480" toml:"preview.height" env:"PREVIEW_HEIGHT"`
	PreviewQuality int `help:"Preview JPEG quality" default:"80" toml:"preview.quality" env:"PREVIEW_QUALITY"`

	// Unwrap settings, zero values derive from the frame size
	UnwrapCenterX    float64 `help:"Fisheye center X in source pixels" default:"0" toml:"unwrap.center_x" env:"UNWRAP_CENTER_X"`
	UnwrapCenterY    float64 `help:"Fisheye center Y in source pixels" default:"0" toml:"unwrap.center_y" env:"UNWRAP_CENTER_Y"`
	UnwrapRadius     float64 `help:"Fisheye radius in source pixels" default:"0" toml:"unwrap.radius" env:"UNWRAP_RADIUS"`
	UnwrapOutputSize int     `help:"Unwrapped image height (width is twice this)" default:"0" toml:"unwrap.output_size" env:"UNWRAP_OUTPUT_SIZE"`

	// Recording settings
	RecordingWidth           int           `help:"Recording width" default:"480" toml:"recording.width" env:"RECORDING_WIDTH"`
	RecordingHeight          int           `help:"Recording height" default:"240" toml:"recording.height" env:"RECORDING_HEIGHT"`
	RecordingFPS             int           `help:"Recording frame rate" default:"30" toml:"recording.fps" env:"RECORDING_FPS"`
	RecordingTempPath        string        `help:"Temporary recording file" default:"" toml:"recording.temp_path" env:"RECORDING_TEMP_PATH"`
	RecordingEncoder         string        `help:"Video encoder" default:"libx264" toml:"recording.encoder" env:"RECORDING_ENCODER"`
	RecordingPreset          string        `help:"Encoder preset (software encoders)" default:"ultrafast" toml:"recording.preset" env:"RECORDING_PRESET"`
	RecordingTune            string        `help:"Encoder tune (software encoders)" default:"zerolatency" toml:"recording.tune" env:"RECORDING_TUNE"`
	RecordingAudioBitrate    int           `help:"AAC bitrate in bits per second" default:"64000" toml:"recording.audio_bitrate" env:"RECORDING_AUDIO_BITRATE"`
	RecordingPoolSize        int           `help:"Pixel buffers available to the encoder" default:"8" toml:"recording.pool_size" env:"RECORDING_POOL_SIZE"`
	RecordingQueueDepth      int           `help:"Recorder command queue depth" default:"64" toml:"recording.queue_depth" env:"RECORDING_QUEUE_DEPTH"`
	RecordingMaxStartRetries int           `help:"Writer start failures tolerated per recording" default:"3" toml:"recording.max_start_retries" env:"RECORDING_MAX_START_RETRIES"`
	RecordingFinishTimeout   time.Duration `help:"Time allowed for the encoder to finalize" default:"30s" toml:"recording.finish_timeout" env:"RECORDING_FINISH_TIMEOUT"`

	// Album settings
	AlbumDir string `help:"Directory receiving saved videos and photos" default:"album" toml:"album.dir" env:"ALBUM_DIR"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingMain     string `help:"Main logging level" default:"info" toml:"logging.main" env:"LOGGING_MAIN"`
	LoggingCapture  string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingRecorder string `help:"Recorder logging level" default:"info" toml:"logging.recorder" env:"LOGGING_RECORDER"`
	LoggingFFmpeg   string `help:"FFmpeg logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingAlbum    string `help:"Album logging level" default:"info" toml:"logging.album" env:"LOGGING_ALBUM"`
	LoggingConfig   string `help:"Config logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

// Logging returns the logging configuration.
func (o *Options) Logging() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"main":     o.LoggingMain,
			"capture":  o.LoggingCapture,
			"pipeline": o.LoggingPipeline,
			"recorder": o.LoggingRecorder,
			"ffmpeg":   o.LoggingFFmpeg,
			"api":      o.LoggingAPI,
			"album":    o.LoggingAlbum,
			"config":   o.LoggingConfig,
		},
	}
}

// Capture returns the capture session configuration.
func (o *Options) Capture() capture.Config {
	params := ffmpeg.CaptureParams{
		Device:      o.CaptureDevice,
		InputFormat: o.CaptureInputFormat,
		Width:       o.CaptureWidth,
		Height:      o.CaptureHeight,
		FPS:         o.CaptureFPS,
		TestSource:  o.CaptureTestSource,
		AudioDevice: o.CaptureAudioDevice,
		Options:     ffmpeg.DefaultOptions(),
	}
	if params.HasAudio() || params.TestSource {
		params.SampleRate = ffmpeg.DefaultSampleRate
		params.Channels = ffmpeg.DefaultChannels
	}
	if params.TestSource {
		params.TestOverlay = "panocam"
	}

	return capture.Config{
		Capture:     params,
		FrameBuffer: o.CaptureFrameBuffer,
		Unwrap: unwrap.Params{
			Center:     unwrap.Point{X: o.UnwrapCenterX, Y: o.UnwrapCenterY},
			Radius:     o.UnwrapRadius,
			OutputSize: o.UnwrapOutputSize,
		},
		CalibrationFile: o.CaptureCalibrationFile,
	}
}

// Recorder returns the recording configuration. An empty temp path
// places panocam-recording.mov in the system temp directory.
func (o *Options) Recorder() recorder.Config {
	temp := o.RecordingTempPath
	if temp == "" {
		temp = filepath.Join(os.TempDir(), "panocam-recording.mov")
	}
	return recorder.Config{
		Width:           o.RecordingWidth,
		Height:          o.RecordingHeight,
		FPS:             o.RecordingFPS,
		VideoCodec:      o.RecordingEncoder,
		Preset:          o.RecordingPreset,
		Tune:            o.RecordingTune,
		AudioCodec:      "aac",
		AudioBitrate:    o.RecordingAudioBitrate,
		TempPath:        temp,
		PoolSize:        o.RecordingPoolSize,
		QueueDepth:      o.RecordingQueueDepth,
		MaxStartRetries: o.RecordingMaxStartRetries,
		FinishTimeout:   o.RecordingFinishTimeout,
	}
}
