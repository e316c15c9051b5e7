package ffmpeg

import (
	"io"
	"time"
)

// maxRepeats bounds how many slots one gap may fill. A larger jump means the
// source timeline restarted; the frame is then written once without filling.
const maxRepeats = 300

// frameGrid places video frames on the slots of a constant frame rate.
// A frame lands on the slot nearest its offset from the session anchor;
// skipped slots repeat the previous frame and a frame for a slot that is
// already written is dropped.
type frameGrid struct {
	fps  int
	next int64
	last []byte
}

func newFrameGrid(fps int) *frameGrid {
	return &frameGrid{fps: fps}
}

func (g *frameGrid) slot(offset time.Duration) int64 {
	ticks := offset.Nanoseconds() * int64(g.fps)
	half := int64(time.Second) / 2
	if ticks < 0 {
		return (ticks - half) / int64(time.Second)
	}
	return (ticks + half) / int64(time.Second)
}

func (g *frameGrid) place(dst io.Writer, pix []byte, offset time.Duration) error {
	slot := g.slot(offset)
	if slot < g.next {
		return nil
	}
	if gap := slot - g.next; g.last != nil && gap <= maxRepeats {
		for range gap {
			if _, err := dst.Write(g.last); err != nil {
				return err
			}
		}
	}
	if _, err := dst.Write(pix); err != nil {
		return err
	}
	g.last = append(g.last[:0], pix...)
	g.next = slot + 1
	return nil
}

// Audio drift accepted before a gap is filled with silence, and the longest
// gap that is filled.
const (
	audioTolerance = 20 * time.Millisecond
	maxAudioGap    = 10 * time.Second
)

// sampleGrid keeps s16le audio aligned to the session anchor: a chunk that
// starts later than the samples written so far is preceded by silence, and
// chunks from before the anchor are dropped.
type sampleGrid struct {
	rate       int64
	frameBytes int64
	written    int64 // sample frames
}

func newSampleGrid(rate, channels int) *sampleGrid {
	return &sampleGrid{rate: int64(rate), frameBytes: int64(channels) * 2}
}

func (g *sampleGrid) place(dst io.Writer, samples []byte, offset time.Duration) error {
	if offset < 0 {
		return nil
	}
	pos := g.frames(offset)
	if gap := pos - g.written; gap > g.frames(audioTolerance) && gap <= g.frames(maxAudioGap) {
		if _, err := dst.Write(make([]byte, gap*g.frameBytes)); err != nil {
			return err
		}
		g.written += gap
	}
	if _, err := dst.Write(samples); err != nil {
		return err
	}
	g.written += int64(len(samples)) / g.frameBytes
	return nil
}

func (g *sampleGrid) frames(d time.Duration) int64 {
	return d.Nanoseconds() * g.rate / int64(time.Second)
}
