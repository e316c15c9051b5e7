package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Binary is the ffmpeg executable looked up on PATH.
const Binary = "ffmpeg"

// Default audio format shared by capture and recording.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

// ErrInvalidParams is returned when a command cannot be built.
var ErrInvalidParams = errors.New("invalid ffmpeg parameters")

// BaseArgs returns the flags every ffmpeg invocation starts with.
// -loglevel level+info prefixes each line with its level for ParseLogLevel.
func BaseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "level+info"}
}

// CaptureArgs builds the capture command: video as rawvideo rgba on stdout,
// audio as s16le on fd 3 (pipe:3).
func CaptureArgs(p *CaptureParams) ([]string, error) {
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return nil, fmt.Errorf("%w: capture size %dx%d@%d", ErrInvalidParams, p.Width, p.Height, p.FPS)
	}
	if !p.TestSource && p.Device == "" {
		return nil, fmt.Errorf("%w: device path is required", ErrInvalidParams)
	}
	if err := ValidateOptions(p.Options); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	args := BaseArgs()
	fps := strconv.Itoa(p.FPS)

	// Input configuration
	if p.TestSource {
		// -re reads at native frame rate
		args = append(args, "-re", "-f", "lavfi",
			"-i", fmt.Sprintf("testsrc2=size=%s:rate=%s", p.VideoSize(), fps))
	} else {
		args = append(args, inputArgs(p.Options)...)
		args = append(args, "-f", "v4l2")
		if p.InputFormat != "" {
			args = append(args, "-input_format", p.InputFormat)
		}
		args = append(args, "-video_size", p.VideoSize(), "-framerate", fps, "-i", p.Device)
	}

	rate, channels := audioFormat(p.SampleRate, p.Channels)
	if p.HasAudio() {
		if p.TestSource {
			args = append(args, "-f", "lavfi",
				"-i", fmt.Sprintf("sine=frequency=1000:sample_rate=%d", rate))
		} else {
			args = append(args, "-thread_queue_size", "1024",
				"-f", "alsa", "-sample_fmt", "s16", "-ar", strconv.Itoa(rate), "-ac", strconv.Itoa(channels),
				"-i", p.AudioDevice)
		}
	}

	if p.ProgressURL != "" {
		args = append(args, "-progress", p.ProgressURL)
	}

	// Video output; scale guards against drivers that ignore -video_size
	vf := fmt.Sprintf("scale=%d:%d", p.Width, p.Height)
	if p.TestSource && p.TestOverlay != "" {
		vf = fmt.Sprintf("drawtext=text='%s':x=(w-text_w)/2:y=(h-text_h)/2:fontsize=48:fontcolor=white:box=1:boxcolor=black@0.5:boxborderw=5,%s",
			escapeDrawtext(p.TestOverlay), vf)
	}
	args = append(args, "-map", "0:v", "-vf", vf, "-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")

	if p.HasAudio() {
		args = append(args, "-map", "1:a", "-ac", strconv.Itoa(channels), "-ar", strconv.Itoa(rate),
			"-f", "s16le", "-acodec", "pcm_s16le", "pipe:3")
	}
	return args, nil
}

// RecordArgs builds the encoder command: rawvideo rgba on stdin at a
// constant frame rate and s16le on fd 3, both timed from their first sample.
func RecordArgs(p *RecordParams) ([]string, error) {
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return nil, fmt.Errorf("%w: record size %dx%d@%d", ErrInvalidParams, p.Width, p.Height, p.FPS)
	}
	if p.Output == "" {
		return nil, fmt.Errorf("%w: output path is required", ErrInvalidParams)
	}
	if p.VideoCodec == "" {
		return nil, fmt.Errorf("%w: video codec is required", ErrInvalidParams)
	}

	args := BaseArgs()
	args = append(args, "-y")

	args = append(args,
		"-thread_queue_size", "512",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-video_size", size(p.Width, p.Height),
		"-framerate", strconv.Itoa(p.FPS),
		"-i", "pipe:0")

	if p.HasAudio() {
		args = append(args,
			"-thread_queue_size", "512",
			"-f", "s16le", "-ar", strconv.Itoa(p.SampleRate), "-ac", strconv.Itoa(p.Channels),
			"-i", "pipe:3")
	}

	args = append(args, "-map", "0:v")
	if p.HasAudio() {
		args = append(args, "-map", "1:a")
	}

	// Encoder
	args = append(args, "-c:v", p.VideoCodec, "-pix_fmt", "yuv420p")
	if !IsHardwareEncoder(p.VideoCodec) {
		if p.Preset != "" {
			args = append(args, "-preset", p.Preset)
		}
		if p.Tune != "" {
			args = append(args, "-tune", p.Tune)
		}
	}

	if p.HasAudio() {
		codec := p.AudioCodec
		if codec == "" {
			codec = "aac"
		}
		args = append(args, "-c:a", codec)
		if p.AudioBitrate > 0 {
			args = append(args, "-b:a", strconv.Itoa(p.AudioBitrate))
		}
	}

	// Progress monitoring
	if p.ProgressURL != "" {
		args = append(args, "-progress", p.ProgressURL)
	}

	format := p.Format
	if format == "" {
		format = "mov"
	}
	args = append(args, "-f", format, p.Output)
	return args, nil
}

// IsHardwareEncoder checks if the given codec name represents a hardware encoder
func IsHardwareEncoder(codec string) bool {
	hardwareCodecs := []string{
		"nvenc", "amf", "vaapi", "qsv", "videotoolbox", "rkmpp", "v4l2m2m",
	}
	for _, hwCodec := range hardwareCodecs {
		if strings.Contains(codec, hwCodec) {
			return true
		}
	}
	return false
}

func audioFormat(rate, channels int) (int, int) {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return rate, channels
}

func size(w, h int) string {
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

// escapeDrawtext escapes characters drawtext treats specially.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)
	return r.Replace(s)
}
