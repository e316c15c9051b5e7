// Package media defines the frame types exchanged between capture sources,
// the streaming pipeline and the recorder.
package media

import (
	"context"
	"image"
	"time"
)

// Kind tags which stream a frame belongs to.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatRGBA PixelFormat = iota // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the packed pixel size for the format.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGBA:
		return 4
	default:
		return 0
	}
}

// AudioDescription describes interleaved signed 16-bit PCM audio.
type AudioDescription struct {
	Channels   int
	SampleRate int
}

// Valid reports whether the description can configure an encoder.
func (d AudioDescription) Valid() bool {
	return d.Channels > 0 && d.SampleRate > 0
}

// Frame is one captured sample. Video frames carry Image, audio frames carry
// Samples and Audio. A frame is handed to exactly one consumer and must not be
// retained after that consumer's processing step.
type Frame struct {
	Kind    Kind
	PTS     time.Duration // presentation timestamp, non-decreasing per stream
	Image   *image.RGBA
	Format  PixelFormat
	Samples []byte
	Audio   AudioDescription
}

// Width returns the width of a video frame, or 0 for audio.
func (f *Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the height of a video frame, or 0 for audio.
func (f *Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Duration returns the playback length of an audio frame.
func (f *Frame) Duration() time.Duration {
	if f.Kind != KindAudio || !f.Audio.Valid() {
		return 0
	}
	samples := len(f.Samples) / (2 * f.Audio.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.Audio.SampleRate)
}

// Source produces frames on a channel until stopped. Video and audio frames
// may be interleaved on the same channel.
type Source interface {
	Start(ctx context.Context) error
	Frames() <-chan Frame
	Stop() error
	HasAudio() bool
}
