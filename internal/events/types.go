package events

// Event type constants for kelindar/event.
const (
	TypeRecordingPhaseChanged uint32 = iota + 1
	TypeRecordingSaved
	TypeRecordingFailed
	TypeCalibrationChanged
	TypePhotoSaved
	TypeCaptureStateChanged
	TypeCaptureError
	TypeFrameStats
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RecordingPhaseChangedEvent is published on every recorder phase transition.
type RecordingPhaseChangedEvent struct {
	RecordingID string `json:"recording_id,omitempty" example:"2f1c0f0e-7c1e-4b4e-a6a8-0d64d4c1a9b2" doc:"Recording attempt identifier"`
	Phase       string `json:"phase" example:"writing" doc:"New phase"`
	Previous    string `json:"previous" example:"configuring" doc:"Previous phase"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingPhaseChangedEvent.
func (e RecordingPhaseChangedEvent) Type() uint32 { return TypeRecordingPhaseChanged }

// RecordingSavedEvent is published after a finished recording reached the album.
type RecordingSavedEvent struct {
	RecordingID string  `json:"recording_id" doc:"Recording attempt identifier"`
	Duration    float64 `json:"duration_seconds" example:"12.5" doc:"Recorded media duration"`
	VideoFrames int     `json:"video_frames" example:"375" doc:"Video frames written"`
	Timestamp   string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingSavedEvent.
func (e RecordingSavedEvent) Type() uint32 { return TypeRecordingSaved }

// RecordingFailedEvent reports a recording that ended without being saved.
type RecordingFailedEvent struct {
	RecordingID string `json:"recording_id" doc:"Recording attempt identifier"`
	Stage       string `json:"stage" example:"append" doc:"Where the failure happened: configure, start, append, finalize, save"`
	Error       string `json:"error" doc:"Detailed error description"`
	TempPath    string `json:"temp_path,omitempty" doc:"Retained temporary file, if any"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingFailedEvent.
func (e RecordingFailedEvent) Type() uint32 { return TypeRecordingFailed }

// CalibrationChangedEvent is published when the unwrap parameters are fixed.
type CalibrationChangedEvent struct {
	Calibrated bool    `json:"calibrated" doc:"Whether unwrapping is active"`
	CenterX    float64 `json:"center_x" example:"960" doc:"Fisheye centre X in source pixels"`
	CenterY    float64 `json:"center_y" example:"540" doc:"Fisheye centre Y in source pixels"`
	Radius     float64 `json:"radius" example:"480" doc:"Fisheye radius in source pixels"`
	OutputSize int     `json:"output_size" example:"960" doc:"Unwrapped strip height"`
	Timestamp  string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CalibrationChangedEvent.
func (e CalibrationChangedEvent) Type() uint32 { return TypeCalibrationChanged }

// PhotoSavedEvent is published after a still was written to the album.
type PhotoSavedEvent struct {
	Path      string `json:"path" doc:"Saved file"`
	Width     int    `json:"width" example:"1920" doc:"Image width"`
	Height    int    `json:"height" example:"960" doc:"Image height"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PhotoSavedEvent.
func (e PhotoSavedEvent) Type() uint32 { return TypePhotoSaved }

// CaptureStateChangedEvent reports the capture source starting or stopping.
type CaptureStateChangedEvent struct {
	Running   bool   `json:"running" doc:"Whether frames are being captured"`
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device or test source"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CaptureStateChangedEvent.
func (e CaptureStateChangedEvent) Type() uint32 { return TypeCaptureStateChanged }

// CaptureErrorEvent reports a capture source failure.
type CaptureErrorEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device or test source"`
	Message   string `json:"message" example:"capture source exited" doc:"Message"`
	Error     string `json:"error" doc:"Detailed error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// FrameStatsEvent carries periodic pipeline counters.
type FrameStatsEvent struct {
	VideoFrames    uint64 `json:"video_frames" doc:"Video frames rendered"`
	AudioFrames    uint64 `json:"audio_frames" doc:"Audio chunks received"`
	DroppedFrames  uint64 `json:"dropped_frames" doc:"Frames dropped at any stage"`
	RecordedFrames uint64 `json:"recorded_frames" doc:"Video frames appended to the current recording"`
	Timestamp      string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameStatsEvent.
func (e FrameStatsEvent) Type() uint32 { return TypeFrameStats }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"recorder" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
