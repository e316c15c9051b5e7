// Package metrics provides Prometheus metrics for the capture pipeline,
// the recorder and the ffmpeg subprocesses.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DropStage names where a frame was dropped.
type DropStage string

// Drop stages.
const (
	DropSource         DropStage = "source"           // source channel full
	DropQueueFull      DropStage = "queue_full"       // recorder queue full
	DropPoolExhausted  DropStage = "pool_exhausted"   // no free pixel buffer
	DropWriterNotReady DropStage = "writer_not_ready" // encoder backpressure
)

// Render paths.
const (
	PathCalibration = "calibration"
	PathUnwrap      = "unwrap"
	PathRecord      = "record"
	PathIdle        = "idle" // audio outside a recording
)

var (
	pipelineFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panocam",
		Subsystem: "pipeline",
		Name:      "frames_total",
		Help:      "Frames processed by the streaming pipeline",
	}, []string{"kind", "path"})

	pipelineDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panocam",
		Subsystem: "pipeline",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped under backpressure",
	}, []string{"stage"})

	renderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "panocam",
		Name:      "render_seconds",
		Help:      "Time spent rendering one frame for display",
		Buckets:   []float64{.001, .0025, .005, .01, .02, .033, .05, .1, .25},
	})

	videoFrames    atomic.Uint64
	audioFrames    atomic.Uint64
	droppedFrames  atomic.Uint64
	recordedFrames atomic.Uint64
)

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	VideoFrames    uint64
	AudioFrames    uint64
	DroppedFrames  uint64
	RecordedFrames uint64
}

// IncFrame counts one frame of kind ("video", "audio") on a render path.
func IncFrame(kind, path string) {
	pipelineFrames.WithLabelValues(kind, path).Inc()
	switch kind {
	case "video":
		videoFrames.Add(1)
	case "audio":
		audioFrames.Add(1)
	}
}

// IncDropped counts one dropped frame.
func IncDropped(stage DropStage) {
	pipelineDropped.WithLabelValues(string(stage)).Inc()
	droppedFrames.Add(1)
}

// ObserveRender records the duration of one display render.
func ObserveRender(d time.Duration) {
	renderSeconds.Observe(d.Seconds())
}

// Snapshot returns the current counter values.
func Snapshot() Stats {
	return Stats{
		VideoFrames:    videoFrames.Load(),
		AudioFrames:    audioFrames.Load(),
		DroppedFrames:  droppedFrames.Load(),
		RecordedFrames: recordedFrames.Load(),
	}
}
