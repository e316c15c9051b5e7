package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/smazurov/panocam/internal/api/models"
	"github.com/smazurov/panocam/internal/capture"
	"github.com/smazurov/panocam/internal/events"
	"github.com/smazurov/panocam/internal/logging"
	"github.com/smazurov/panocam/internal/pipeline"
	"github.com/smazurov/panocam/internal/recorder"
	"github.com/smazurov/panocam/internal/unwrap"
)

type fakeController struct {
	mu         sync.Mutex
	err        error
	calibrated *unwrap.Params
	calls      []string
	status     capture.Status
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) Start(context.Context) error { return f.record("start") }
func (f *fakeController) Stop(context.Context) error  { return f.record("stop") }

func (f *fakeController) StartRecording(context.Context) (string, error) {
	if err := f.record("start-recording"); err != nil {
		return "", err
	}
	return "rec-1", nil
}

func (f *fakeController) StopRecording(context.Context) error  { return f.record("stop-recording") }
func (f *fakeController) AbortRecording(context.Context) error { return f.record("abort-recording") }

func (f *fakeController) Calibrate(p *unwrap.Params) (unwrap.Params, error) {
	if err := f.record("calibrate"); err != nil {
		return unwrap.Params{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibrated = p
	if p == nil {
		return unwrap.DefaultParams(640, 480), nil
	}
	return *p, nil
}

func (f *fakeController) TakePhoto(context.Context) (image.Rectangle, error) {
	if err := f.record("photo"); err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(0, 0, 640, 320), nil
}

func (f *fakeController) Status() capture.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

type fakePreview struct{}

func (fakePreview) JPEG() ([]byte, time.Time, error) {
	return []byte{0xff, 0xd8, 0xff, 0xd9}, time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC), nil
}

func newTestServer(t *testing.T, ctrl Controller, opts ...func(*Options)) (*httptest.Server, *events.Bus) {
	t.Helper()
	bus := events.New()
	o := &Options{Session: ctrl, Preview: fakePreview{}, EventBus: bus}
	for _, fn := range opts {
		fn(o)
	}
	ts := httptest.NewServer(NewServer(o).Handler())
	t.Cleanup(ts.Close)
	return ts, bus
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r *bytes.Reader
	if body != "" {
		r = bytes.NewReader([]byte(body))
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealthAndVersion(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{})

	resp := do(t, http.MethodGet, ts.URL+"/api/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if got := decode[models.HealthData](t, resp); got.Status != "ok" {
		t.Errorf("health = %+v", got)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/version", "")
	if got := decode[models.VersionData](t, resp); got.Version == "" || got.GoVersion == "" {
		t.Errorf("version = %+v", got)
	}
}

func TestStatus(t *testing.T) {
	params := unwrap.Params{Center: unwrap.Point{X: 320, Y: 240}, Radius: 160, OutputSize: 320}
	ctrl := &fakeController{status: capture.Status{
		Running:    true,
		Device:     "testsrc",
		Mode:       pipeline.ModeUnwrap,
		Calibrated: true,
		Params:     &params,
		FrameSize:  image.Pt(640, 480),
		Recording: recorder.Status{
			Phase:       recorder.PhaseWriting,
			RecordingID: "rec-1",
			Duration:    1500 * time.Millisecond,
			VideoFrames: 45,
		},
	}}
	ts, _ := newTestServer(t, ctrl)

	got := decode[models.StatusData](t, do(t, http.MethodGet, ts.URL+"/api/status", ""))
	want := models.StatusData{
		Running:     true,
		Device:      "testsrc",
		Mode:        pipeline.ModeUnwrap.String(),
		Calibrated:  true,
		Params:      &models.UnwrapParams{CenterX: 320, CenterY: 240, Radius: 160, OutputSize: 320},
		FrameWidth:  640,
		FrameHeight: 480,
		Recording: models.RecordingStatus{
			Phase:       "writing",
			RecordingID: "rec-1",
			Duration:    1.5,
			VideoFrames: 45,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrate(t *testing.T) {
	t.Run("derived", func(t *testing.T) {
		ctrl := &fakeController{}
		ts, _ := newTestServer(t, ctrl)

		resp := do(t, http.MethodPost, ts.URL+"/api/calibrate", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		got := decode[models.UnwrapParams](t, resp)
		want := models.UnwrapParams{CenterX: 320, CenterY: 240, Radius: 160, OutputSize: 320}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("params mismatch (-want +got):\n%s", diff)
		}
		if ctrl.calibrated != nil {
			t.Errorf("expected nil params, got %+v", ctrl.calibrated)
		}
	})

	t.Run("explicit", func(t *testing.T) {
		ctrl := &fakeController{}
		ts, _ := newTestServer(t, ctrl)

		resp := do(t, http.MethodPost, ts.URL+"/api/calibrate", `{"center_x":100,"center_y":80,"radius":50,"output_size":64}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		want := &unwrap.Params{Center: unwrap.Point{X: 100, Y: 80}, Radius: 50, OutputSize: 64}
		if diff := cmp.Diff(want, ctrl.calibrated); diff != "" {
			t.Errorf("params mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		want   int
	}{
		{"already recording", recorder.ErrAlreadyRecording, http.MethodPost, "/api/recording/start", http.StatusConflict},
		{"not calibrated", capture.ErrNotCalibrated, http.MethodPost, "/api/recording/start", http.StatusConflict},
		{"not recording", recorder.ErrNotRecording, http.MethodPost, "/api/recording/stop", http.StatusConflict},
		{"not running", capture.ErrNotRunning, http.MethodPost, "/api/photo", http.StatusServiceUnavailable},
		{"already calibrated", capture.ErrAlreadyCalibrated, http.MethodPost, "/api/calibrate", http.StatusConflict},
		{"invalid params", fmt.Errorf("radius: %w", unwrap.ErrInvalidParams), http.MethodPost, "/api/calibrate", http.StatusBadRequest},
		{"no frame", capture.ErrNoFrame, http.MethodPost, "/api/calibrate", http.StatusBadRequest},
		{"running", capture.ErrRunning, http.MethodPost, "/api/capture/start", http.StatusConflict},
		{"other", fmt.Errorf("disk full"), http.MethodPost, "/api/recording/abort", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, &fakeController{err: tt.err})
			resp := do(t, tt.method, ts.URL+tt.path, "")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCommandsReachController(t *testing.T) {
	ctrl := &fakeController{}
	ts, _ := newTestServer(t, ctrl)

	for _, path := range []string{
		"/api/capture/start",
		"/api/recording/start",
		"/api/recording/stop",
		"/api/recording/abort",
		"/api/photo",
		"/api/capture/stop",
	} {
		if resp := do(t, http.MethodPost, ts.URL+path, ""); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}

	want := []string{"start", "start-recording", "stop-recording", "abort-recording", "photo", "stop"}
	if diff := cmp.Diff(want, ctrl.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordingStartReturnsID(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{})
	got := decode[models.RecordingStartData](t, do(t, http.MethodPost, ts.URL+"/api/recording/start", ""))
	if got.RecordingID != "rec-1" {
		t.Errorf("recording id = %q", got.RecordingID)
	}
}

func TestPreview(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{})
	resp := do(t, http.MethodGet, ts.URL+"/api/preview.jpg", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "Mon, 27 Jan 2025 10:30:00 GMT" {
		t.Errorf("Last-Modified = %q", lm)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.Equal(buf.Bytes(), []byte{0xff, 0xd8, 0xff, 0xd9}) {
		t.Errorf("body = %x", buf.Bytes())
	}
}

func TestPreviewUnavailable(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{}, func(o *Options) { o.Preview = nil })
	if resp := do(t, http.MethodGet, ts.URL+"/api/preview.jpg", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestBasicAuth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{}, func(o *Options) {
		o.AuthUsername = "admin"
		o.AuthPassword = "secret"
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is public", "/api/health", "", http.StatusOK},
		{"missing credentials", "/api/status", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/status", "Bearer abc", http.StatusUnauthorized},
		{"wrong password", "/api/status", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope")), http.StatusUnauthorized},
		{"valid", "/api/status", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret")), http.StatusOK},
		{"query fallback", "/api/status?auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret")), "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{}, func(o *Options) {
		o.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintln(w, "panocam_up 1")
		})
	})
	resp := do(t, http.MethodGet, ts.URL+"/metrics", "")
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "panocam_up 1") {
		t.Errorf("metrics body = %q", buf.String())
	}
}

func TestSSEForwardsEvents(t *testing.T) {
	ctrl := &fakeController{status: capture.Status{Running: true, Device: "testsrc"}}
	ts, bus := newTestServer(t, ctrl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-ctx.Done():
				t.Fatalf("timeout waiting for %q", prefix)
			}
		}
	}

	if line := next("event:"); !strings.Contains(line, "capture-state-changed") {
		t.Errorf("first event = %q", line)
	}

	// The handler subscribes before sending the first event
	bus.Publish(events.RecordingSavedEvent{RecordingID: "rec-9", Timestamp: timestamp()})

	if line := next("event:"); !strings.Contains(line, "recording-saved") {
		t.Errorf("event = %q", line)
	}
	if line := next("data:"); !strings.Contains(line, "rec-9") {
		t.Errorf("data = %q", line)
	}
}

func TestLogLevels(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{})

	if resp := do(t, http.MethodPut, ts.URL+"/api/logs/levels", `{"global":"loud","modules":{}}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid level status = %d, want 400", resp.StatusCode)
	}

	resp := do(t, http.MethodPut, ts.URL+"/api/logs/levels", `{"global":"warn","modules":{"api":"debug"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[models.LogLevelsData](t, resp)
	if got.Global != "warn" {
		t.Errorf("global = %q, want warn", got.Global)
	}
	if got.Modules["api"] != "debug" {
		t.Errorf("api level = %q, want debug", got.Modules["api"])
	}

	resp = do(t, http.MethodPut, ts.URL+"/api/logs/levels", `{"global":"info","modules":{}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
}

func TestLogsSince(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{})

	logging.GetLogger("api").Info("marker before listing")

	all := decode[models.LogsData](t, do(t, http.MethodGet, ts.URL+"/api/logs", ""))
	if all.Count == 0 {
		t.Fatal("expected buffered log entries")
	}
	last := all.Entries[len(all.Entries)-1].Seq

	later := decode[models.LogsData](t, do(t, http.MethodGet, fmt.Sprintf("%s/api/logs?since=%d", ts.URL, last), ""))
	for _, e := range later.Entries {
		if e.Seq <= last {
			t.Errorf("entry %d not after %d", e.Seq, last)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{})
	resp := do(t, http.MethodOptions, ts.URL+"/api/recording/start", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Errorf("Allow-Methods = %q", got)
	}
}
