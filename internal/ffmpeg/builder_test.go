package ffmpeg

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

// hasSeq reports whether want appears contiguously in args.
func hasSeq(args []string, want ...string) bool {
	for i := 0; i+len(want) <= len(args); i++ {
		if slices.Equal(args[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func TestCaptureArgs(t *testing.T) {
	tests := []struct {
		name    string
		params  CaptureParams
		want    [][]string
		notWant []string
	}{
		{
			name: "v4l2 with alsa",
			params: CaptureParams{
				Device: "/dev/video0", InputFormat: "mjpeg",
				Width: 640, Height: 480, FPS: 30,
				AudioDevice: "hw:1,0",
				Options:     []OptionType{OptionThreadQueue1024},
			},
			want: [][]string{
				{"-thread_queue_size", "1024", "-f", "v4l2"},
				{"-input_format", "mjpeg", "-video_size", "640x480", "-framerate", "30", "-i", "/dev/video0"},
				{"-f", "alsa", "-sample_fmt", "s16", "-ar", "48000", "-ac", "2", "-i", "hw:1,0"},
				{"-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1"},
				{"-map", "1:a"},
				{"-f", "s16le", "-acodec", "pcm_s16le", "pipe:3"},
			},
		},
		{
			name:   "v4l2 without audio",
			params: CaptureParams{Device: "/dev/video2", Width: 1280, Height: 720, FPS: 15},
			want: [][]string{
				{"-video_size", "1280x720", "-framerate", "15", "-i", "/dev/video2"},
				{"-map", "0:v"},
			},
			notWant: []string{"pipe:3", "-input_format"},
		},
		{
			name:   "test source with tone",
			params: CaptureParams{TestSource: true, Width: 320, Height: 240, FPS: 25, Channels: 1, SampleRate: 44100},
			want: [][]string{
				{"-re", "-f", "lavfi", "-i", "testsrc2=size=320x240:rate=25"},
				{"-f", "lavfi", "-i", "sine=frequency=1000:sample_rate=44100"},
				{"-ac", "1", "-ar", "44100"},
				{"pipe:3"},
			},
			notWant: []string{"v4l2", "alsa"},
		},
		{
			name:   "progress socket",
			params: CaptureParams{TestSource: true, Width: 320, Height: 240, FPS: 25, ProgressURL: "unix:///tmp/p.sock"},
			want:   [][]string{{"-progress", "unix:///tmp/p.sock"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := CaptureArgs(&tt.params)
			if err != nil {
				t.Fatalf("CaptureArgs: %v", err)
			}
			if !hasSeq(args, BaseArgs()...) {
				t.Errorf("missing base args in %v", args)
			}
			for _, w := range tt.want {
				if !hasSeq(args, w...) {
					t.Errorf("missing %v in %s", w, strings.Join(args, " "))
				}
			}
			for _, nw := range tt.notWant {
				if slices.Contains(args, nw) || strings.Contains(strings.Join(args, " "), nw) {
					t.Errorf("unexpected %q in %s", nw, strings.Join(args, " "))
				}
			}
		})
	}
}

func TestCaptureArgsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params CaptureParams
	}{
		{"zero size", CaptureParams{Device: "/dev/video0", FPS: 30}},
		{"no device", CaptureParams{Width: 640, Height: 480, FPS: 30}},
		{"conflicting options", CaptureParams{Device: "/dev/video0", Width: 640, Height: 480, FPS: 30,
			Options: []OptionType{OptionGeneratePTS, OptionWallclockTimestamp}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CaptureArgs(&tt.params); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("err = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestRecordArgs(t *testing.T) {
	p := RecordParams{
		Width: 480, Height: 240, FPS: 30,
		VideoCodec: "libx264", Preset: "ultrafast", Tune: "zerolatency",
		AudioCodec: "aac", AudioBitrate: 64000, SampleRate: 48000, Channels: 2,
		ProgressURL: "unix:///tmp/r.sock",
		Output:      "/tmp/recording.mov",
	}
	args, err := RecordArgs(&p)
	if err != nil {
		t.Fatalf("RecordArgs: %v", err)
	}
	want := [][]string{
		{"-thread_queue_size", "512", "-f", "rawvideo", "-pix_fmt", "rgba", "-video_size", "480x240", "-framerate", "30", "-i", "pipe:0"},
		{"-f", "s16le", "-ar", "48000", "-ac", "2", "-i", "pipe:3"},
		{"-map", "0:v", "-map", "1:a"},
		{"-c:v", "libx264", "-pix_fmt", "yuv420p"},
		{"-preset", "ultrafast", "-tune", "zerolatency"},
		{"-c:a", "aac", "-b:a", "64000"},
		{"-progress", "unix:///tmp/r.sock"},
		{"-f", "mov", "/tmp/recording.mov"},
	}
	for _, w := range want {
		if !hasSeq(args, w...) {
			t.Errorf("missing %v in %s", w, strings.Join(args, " "))
		}
	}
	if last := args[len(args)-1]; last != p.Output {
		t.Errorf("last arg = %q, want output path", last)
	}
	if slices.Contains(args, "-use_wallclock_as_timestamps") {
		t.Error("record inputs must keep the constant rate timeline")
	}
}

func TestRecordArgsVideoOnlyHardware(t *testing.T) {
	p := RecordParams{Width: 480, Height: 240, FPS: 30, VideoCodec: "h264_vaapi", Preset: "fast", Output: "out.mov"}
	args, err := RecordArgs(&p)
	if err != nil {
		t.Fatalf("RecordArgs: %v", err)
	}
	for _, nw := range []string{"pipe:3", "-c:a", "-preset", "1:a"} {
		if slices.Contains(args, nw) {
			t.Errorf("unexpected %q in %v", nw, args)
		}
	}
}

func TestRecordArgsInvalid(t *testing.T) {
	tests := []RecordParams{
		{Height: 240, FPS: 30, VideoCodec: "libx264", Output: "o.mov"},
		{Width: 480, Height: 240, FPS: 30, VideoCodec: "libx264"},
		{Width: 480, Height: 240, FPS: 30, Output: "o.mov"},
	}
	for i, p := range tests {
		if _, err := RecordArgs(&p); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("case %d: err = %v, want ErrInvalidParams", i, err)
		}
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		options []OptionType
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"empty", nil, false},
		{"exclusive thread queues", []OptionType{OptionThreadQueue1024, OptionThreadQueue4096}, true},
		{"timestamp conflict", []OptionType{OptionWallclockTimestamp, OptionGeneratePTS}, true},
		{"unknown", []OptionType{"bogus"}, true},
		{"compatible", []OptionType{OptionIgnoreDTS, OptionLowLatency, OptionThreadQueue4096}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptions(tt.options)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOptions(%v) error = %v, wantErr %v", tt.options, err, tt.wantErr)
			}
		})
	}
}

func TestInputArgs(t *testing.T) {
	args := inputArgs([]OptionType{OptionGeneratePTS, OptionIgnoreDTS, OptionThreadQueue4096})
	want := []string{"-thread_queue_size", "4096", "-fflags", "+genpts+igndts"}
	if !slices.Equal(args, want) {
		t.Errorf("inputArgs = %v, want %v", args, want)
	}
}

func TestIsHardwareEncoder(t *testing.T) {
	tests := map[string]bool{
		"libx264":     false,
		"h264_vaapi":  true,
		"hevc_nvenc":  true,
		"h264_rkmpp":  true,
		"libopenh264": false,
	}
	for codec, want := range tests {
		if got := IsHardwareEncoder(codec); got != want {
			t.Errorf("IsHardwareEncoder(%q) = %v, want %v", codec, got, want)
		}
	}
}
