package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/panocam/internal/pool"
	"github.com/smazurov/panocam/internal/recorder"
)

// fakeEncoder stands in for ffmpeg: stdin goes to the last argument, fd 3
// (when present) is drained.
const fakeEncoder = `#!/bin/sh
for a; do out=$a; done
if [ -e /proc/self/fd/3 ]; then cat <&3 > /dev/null & fi
cat > "$out"
wait
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestWriter(t *testing.T, binary string) (*Writer, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "recording.mov")
	w, err := NewWriter(out, WriterOptions{Binary: binary, SocketDir: t.TempDir(), QueueDepth: 2})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddVideoInput(recorder.VideoSettings{Codec: "libx264", Width: 4, Height: 2, FPS: 30}); err != nil {
		t.Fatalf("AddVideoInput: %v", err)
	}
	return w, out
}

func waitReady(t *testing.T, w *Writer, track recorder.Track) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !w.Ready(track) {
		if time.Now().After(deadline) {
			t.Fatalf("%s track never ready", track)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriterEncodesFrames(t *testing.T) {
	w, out := newTestWriter(t, writeScript(t, fakeEncoder))
	if w.Ready(recorder.TrackVideo) {
		t.Error("Ready before StartWriting")
	}
	if err := w.StartWriting(); err != nil {
		t.Fatalf("StartWriting: %v", err)
	}
	w.StartSession(0)

	p := pool.New(4, 2, 3)
	for i := 0; i < 3; i++ {
		waitReady(t, w, recorder.TrackVideo)
		buf, err := p.Get()
		if err != nil {
			t.Fatalf("pool: %v", err)
		}
		if err := w.AppendVideo(buf, time.Duration(i)*time.Second/30); err != nil {
			t.Fatalf("AppendVideo %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if want := int64(3 * 4 * 2 * 4); info.Size() != want {
		t.Errorf("output size = %d, want %d", info.Size(), want)
	}
	if got := p.Available(); got != 3 {
		t.Errorf("buffers available = %d, want all 3 released", got)
	}
	if w.OutputPath() != out {
		t.Errorf("OutputPath = %q, want %q", w.OutputPath(), out)
	}
}

func TestWriterWithAudio(t *testing.T) {
	w, out := newTestWriter(t, writeScript(t, fakeEncoder))
	if err := w.AddAudioInput(recorder.AudioSettings{Codec: "aac", Channels: 2, SampleRate: 48000, Bitrate: 64000}); err != nil {
		t.Fatalf("AddAudioInput: %v", err)
	}
	params, err := w.Params()
	if err != nil || !params.HasAudio() {
		t.Fatalf("Params = %+v, %v; want audio", params, err)
	}
	if err := w.StartWriting(); err != nil {
		t.Fatalf("StartWriting: %v", err)
	}

	waitReady(t, w, recorder.TrackAudio)
	if err := w.AppendAudio(make([]byte, 64), 0); err != nil {
		t.Fatalf("AppendAudio: %v", err)
	}
	buf, _ := pool.New(4, 2, 1).Get()
	if err := w.AppendVideo(buf, 0); err != nil {
		t.Fatalf("AppendVideo: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestWriterAppendBeforeStart(t *testing.T) {
	w, _ := newTestWriter(t, writeScript(t, fakeEncoder))
	p := pool.New(4, 2, 1)
	buf, _ := p.Get()
	if err := w.AppendVideo(buf, 0); !errors.Is(err, ErrNotStarted) {
		t.Errorf("AppendVideo = %v, want ErrNotStarted", err)
	}
	if p.Available() != 1 {
		t.Error("rejected buffer was not released")
	}
	if err := w.Finish(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Finish = %v, want ErrNotStarted", err)
	}
	w.Cancel()
}

func TestWriterFinishFailsOnExitCode(t *testing.T) {
	w, _ := newTestWriter(t, writeScript(t, "#!/bin/sh\ncat > /dev/null\nexit 3\n"))
	if err := w.StartWriting(); err != nil {
		t.Fatalf("StartWriting: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Finish(ctx); err == nil {
		t.Fatal("Finish succeeded for failing encoder")
	}
}

func TestWriterFinishTimeout(t *testing.T) {
	w, _ := newTestWriter(t, writeScript(t, "#!/bin/sh\nexec sleep 10\n"))
	if err := w.StartWriting(); err != nil {
		t.Fatalf("StartWriting: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Finish(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Finish = %v, want deadline exceeded", err)
	}
}

func TestWriterFinishTimeoutWithBlockedInput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "recording.mov")
	w, err := NewWriter(out, WriterOptions{Binary: writeScript(t, "#!/bin/sh\nexec sleep 30\n"), SocketDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddVideoInput(recorder.VideoSettings{Codec: "libx264", Width: 480, Height: 240, FPS: 30}); err != nil {
		t.Fatalf("AddVideoInput: %v", err)
	}
	if err := w.StartWriting(); err != nil {
		t.Fatalf("StartWriting: %v", err)
	}
	w.StartSession(0)

	// One frame is larger than a pipe buffer, so the pump blocks in Write.
	p := pool.New(480, 240, 2)
	for i := 0; i < 2; i++ {
		buf, _ := p.Get()
		if err := w.AppendVideo(buf, time.Duration(i)*time.Second/30); err != nil {
			t.Fatalf("AppendVideo %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- w.Finish(ctx) }()
	select {
	case err := <-result:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Finish = %v, want deadline exceeded", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Finish ignored its deadline while input was blocked")
	}
	if got := p.Available(); got != 2 {
		t.Errorf("buffers available = %d, want 2", got)
	}
}

func TestWriterCancel(t *testing.T) {
	w, _ := newTestWriter(t, writeScript(t, "#!/bin/sh\nexec sleep 10\n"))
	if err := w.StartWriting(); err != nil {
		t.Fatalf("StartWriting: %v", err)
	}

	p := pool.New(4, 2, 2)
	buf, _ := p.Get()
	w.AppendVideo(buf, 0)

	done := make(chan struct{})
	go func() {
		w.Cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Cancel blocked")
	}
	if w.Ready(recorder.TrackVideo) {
		t.Error("Ready after Cancel")
	}
	if p.Available() != 2 {
		t.Errorf("buffers available = %d, want 2", p.Available())
	}
}

func TestWriterStartFailure(t *testing.T) {
	w, _ := newTestWriter(t, "/nonexistent/ffmpeg")
	if err := w.StartWriting(); err == nil {
		t.Fatal("StartWriting succeeded with missing binary")
	}
}

func TestWriterInvalidInputs(t *testing.T) {
	if _, err := NewWriter("", WriterOptions{}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("NewWriter(\"\") = %v", err)
	}
	w, _ := NewWriter("out.mov", WriterOptions{})
	if err := w.AddVideoInput(recorder.VideoSettings{Codec: "libx264"}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("AddVideoInput zero size = %v", err)
	}
	if err := w.AddAudioInput(recorder.AudioSettings{}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("AddAudioInput zero = %v", err)
	}
	if _, err := w.Params(); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Params without video = %v", err)
	}
}
