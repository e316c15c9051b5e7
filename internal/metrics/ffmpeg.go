package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ffmpegFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "panocam",
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current ffmpeg processing FPS",
	}, []string{"process"})

	ffmpegDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "panocam",
		Subsystem: "ffmpeg",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped inside ffmpeg",
	}, []string{"process"})

	ffmpegSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "panocam",
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "ffmpeg processing speed multiplier",
	}, []string{"process"})

	progressCache   = make(map[string]FFmpegProgress)
	progressCacheMu sync.RWMutex
)

// FFmpegProgress is one block of ffmpeg -progress output.
type FFmpegProgress struct {
	Frames        int64
	FPS           float64
	DroppedFrames float64
	Speed         float64
}

// SetFFmpegProgress stores the latest progress of a process ("capture", "record").
func SetFFmpegProgress(process string, p FFmpegProgress) {
	ffmpegFPS.WithLabelValues(process).Set(p.FPS)
	ffmpegDroppedFrames.WithLabelValues(process).Set(p.DroppedFrames)
	ffmpegSpeed.WithLabelValues(process).Set(p.Speed)

	progressCacheMu.Lock()
	progressCache[process] = p
	progressCacheMu.Unlock()
}

// DeleteFFmpegProgress removes the metrics of a process that exited.
func DeleteFFmpegProgress(process string) {
	ffmpegFPS.DeleteLabelValues(process)
	ffmpegDroppedFrames.DeleteLabelValues(process)
	ffmpegSpeed.DeleteLabelValues(process)

	progressCacheMu.Lock()
	delete(progressCache, process)
	progressCacheMu.Unlock()
}

// GetFFmpegProgress returns the latest progress of a process.
func GetFFmpegProgress(process string) (FFmpegProgress, bool) {
	progressCacheMu.RLock()
	defer progressCacheMu.RUnlock()
	p, ok := progressCache[process]
	return p, ok
}
