package recorder

import (
	"context"
	"time"

	"github.com/smazurov/panocam/internal/pool"
)

// Track identifies one writer input.
type Track string

// Writer tracks.
const (
	TrackVideo Track = "video"
	TrackAudio Track = "audio"
)

// VideoSettings configures the writer's video input.
type VideoSettings struct {
	Codec  string // e.g. "libx264"
	Width  int
	Height int
	FPS    int
	Preset string
	Tune   string
}

// AudioSettings configures the writer's audio input.
type AudioSettings struct {
	Codec      string // e.g. "aac"
	Channels   int
	SampleRate int
	Bitrate    int // bits per second
}

// Writer is a container writer. All methods are called from the recorder
// queue except Finish, which runs on its own goroutine.
type Writer interface {
	AddVideoInput(VideoSettings) error
	AddAudioInput(AudioSettings) error
	StartWriting() error
	StartSession(at time.Duration)
	// Ready reports whether the track accepts another sample without blocking.
	Ready(track Track) bool
	// AppendVideo takes ownership of buf and releases it once written,
	// also when it returns an error.
	AppendVideo(buf *pool.Buffer, at time.Duration) error
	AppendAudio(samples []byte, at time.Duration) error
	Finish(ctx context.Context) error
	Cancel()
	OutputPath() string
}

// WriterFactory creates a writer producing the file at path.
type WriterFactory func(path string) (Writer, error)

// VideoSink stores finished recordings. The recorder removes path after
// SaveVideo returns successfully.
type VideoSink interface {
	SaveVideo(path string) error
}
