package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recorderPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "panocam",
		Subsystem: "recorder",
		Name:      "phase",
		Help:      "1 for the recorder's current phase, 0 otherwise",
	}, []string{"phase"})

	recorderAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panocam",
		Subsystem: "recorder",
		Name:      "appended_total",
		Help:      "Samples appended to the container writer",
	}, []string{"track"})

	recorderRecordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panocam",
		Subsystem: "recorder",
		Name:      "recordings_total",
		Help:      "Finished recording attempts by result",
	}, []string{"result"})
)

// SetRecorderPhase marks current as the active phase among phases.
func SetRecorderPhase(current string, phases []string) {
	for _, p := range phases {
		v := 0.0
		if p == current {
			v = 1
		}
		recorderPhase.WithLabelValues(p).Set(v)
	}
}

// IncAppended counts one sample appended on track ("video", "audio").
func IncAppended(track string) {
	recorderAppended.WithLabelValues(track).Inc()
	if track == "video" {
		recordedFrames.Add(1)
	}
}

// IncRecording counts a finished attempt: "saved", "failed" or "aborted".
func IncRecording(result string) {
	recorderRecordings.WithLabelValues(result).Inc()
}
