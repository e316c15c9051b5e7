package models

import "github.com/smazurov/panocam/internal/ffmpeg"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Unwrap parameter models
type UnwrapParams struct {
	CenterX    float64 `json:"center_x" example:"960" doc:"Fisheye centre X in source pixels"`
	CenterY    float64 `json:"center_y" example:"540" doc:"Fisheye centre Y in source pixels"`
	Radius     float64 `json:"radius" example:"480" doc:"Fisheye radius in source pixels"`
	OutputSize int     `json:"output_size" example:"960" doc:"Unwrapped strip height; width is twice this"`
}

// Status models
type RecordingStatus struct {
	Phase       string  `json:"phase" example:"writing" doc:"Recorder phase"`
	RecordingID string  `json:"recording_id,omitempty" doc:"Current recording attempt"`
	Duration    float64 `json:"duration_seconds" example:"4.2" doc:"Recorded media duration"`
	VideoFrames int     `json:"video_frames" example:"126" doc:"Video frames appended"`
	AudioFrames int     `json:"audio_frames" example:"210" doc:"Audio chunks appended"`
	Dropped     int     `json:"dropped" example:"0" doc:"Frames refused by the encoder"`
	Restarts    int     `json:"restarts" example:"0" doc:"Encoder start failures"`
	LastError   string  `json:"last_error,omitempty" doc:"Last recording error"`
}

type FrameStats struct {
	VideoFrames    uint64 `json:"video_frames" doc:"Video frames rendered"`
	AudioFrames    uint64 `json:"audio_frames" doc:"Audio chunks received"`
	DroppedFrames  uint64 `json:"dropped_frames" doc:"Frames dropped at any stage"`
	RecordedFrames uint64 `json:"recorded_frames" doc:"Video frames appended to recordings"`
}

type StatusData struct {
	Running     bool            `json:"running" doc:"Whether capture is running"`
	Device      string          `json:"device" example:"/dev/video0" doc:"Capture device or test source"`
	Mode        string          `json:"mode" example:"calibration" doc:"Render path: calibration or unwrap"`
	Calibrated  bool            `json:"calibrated" doc:"Whether unwrapping is active"`
	Params      *UnwrapParams   `json:"params,omitempty" doc:"Active unwrap parameters"`
	FrameWidth  int             `json:"frame_width" example:"1920" doc:"Last source frame width"`
	FrameHeight int             `json:"frame_height" example:"1080" doc:"Last source frame height"`
	Recording   RecordingStatus `json:"recording" doc:"Recorder state"`
	Stats       FrameStats      `json:"stats" doc:"Pipeline counters"`
}

type StatusResponse struct {
	Body StatusData
}

// Calibration models
type CalibrateRequest struct {
	Body *UnwrapParams `required:"false"`
}

type CalibrateResponse struct {
	Body UnwrapParams
}

// Recording models
type RecordingStartData struct {
	RecordingID string `json:"recording_id" doc:"Recording attempt identifier"`
	Message     string `json:"message" example:"Recording started" doc:"Status message"`
}

type RecordingStartResponse struct {
	Body RecordingStartData
}

type MessageData struct {
	Message string `json:"message" example:"Recording stopping" doc:"Status message"`
}

type MessageResponse struct {
	Body MessageData
}

// Photo models
type PhotoData struct {
	Width  int `json:"width" example:"1920" doc:"Saved image width"`
	Height int `json:"height" example:"960" doc:"Saved image height"`
}

type PhotoResponse struct {
	Body PhotoData
}

// Preview models
type PreviewResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	LastModified string `header:"Last-Modified"`
	Body         []byte
}

// Log models
type LogsRequest struct {
	Since uint64 `query:"since" doc:"Return entries with a sequence number above this"`
}

type LogEntry struct {
	Seq        uint64         `json:"seq" doc:"Sequence number"`
	Timestamp  string         `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"recorder" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int        `json:"count" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsData struct {
	Global  string            `json:"global" example:"info" doc:"Global level"`
	Modules map[string]string `json:"modules" doc:"Per-module levels"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type LogLevelsRequest struct {
	Body LogLevelsData
}

// FFmpeg options models
type OptionsData struct {
	Options []ffmpeg.Option `json:"options" doc:"Available capture input options"`
}

type OptionsResponse struct {
	Body OptionsData
}
