package ffmpeg

// CaptureParams describes the ffmpeg process that reads the camera and
// microphone and emits raw RGBA frames on stdout and s16le PCM on fd 3.
type CaptureParams struct {
	// Input Configuration
	Device      string // /dev/video0
	InputFormat string // yuyv422, mjpeg, etc.
	Width       int
	Height      int
	FPS         int
	TestSource  bool   // Use test pattern instead of device
	TestOverlay string // Text overlay for test mode

	// Audio, disabled when AudioDevice is empty and TestSource is false
	AudioDevice string // hw:4,0
	SampleRate  int    // 48000
	Channels    int    // 2

	// Output
	ProgressURL string // unix:///tmp/panocam-capture.sock

	// Behavior Options
	Options []OptionType
}

// HasAudio reports whether the command produces an audio stream.
func (p *CaptureParams) HasAudio() bool {
	return p.AudioDevice != "" || (p.TestSource && p.Channels > 0)
}

// VideoSize returns the -video_size value.
func (p *CaptureParams) VideoSize() string {
	return size(p.Width, p.Height)
}

// RecordParams describes the ffmpeg process that encodes raw RGBA frames
// from stdin and s16le PCM from fd 3 into a container file.
type RecordParams struct {
	Width  int
	Height int
	FPS    int

	// Video encoder
	VideoCodec string // libx264, h264_vaapi, etc.
	Preset     string
	Tune       string

	// Audio, omitted when Channels is zero
	AudioCodec   string // aac
	AudioBitrate int    // bits per second
	SampleRate   int
	Channels     int

	// Output
	ProgressURL string
	Format      string // mov
	Output      string
}

// HasAudio reports whether an audio input is configured.
func (p *RecordParams) HasAudio() bool {
	return p.Channels > 0 && p.SampleRate > 0
}
