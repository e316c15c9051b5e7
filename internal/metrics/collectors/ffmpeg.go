// Package collectors feeds ffmpeg progress reports into the metrics package.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/smazurov/panocam/internal/metrics"
)

// ProgressCollector receives ffmpeg "-progress unix://..." reports on a Unix
// socket and publishes them under a process label.
type ProgressCollector struct {
	logger     *slog.Logger
	socketPath string
	process    string

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewProgressCollector creates a collector for one ffmpeg process.
func NewProgressCollector(socketPath, process string, logger *slog.Logger) *ProgressCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressCollector{
		logger:     logger.With("component", "progress_collector", "process", process),
		socketPath: socketPath,
		process:    process,
	}
}

// URL returns the value for ffmpeg's -progress option.
func (c *ProgressCollector) URL() string {
	return "unix://" + c.socketPath
}

// Start binds the socket. ffmpeg must be started after Start returns.
func (c *ProgressCollector) Start(ctx context.Context) error {
	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("Failed to clean up old socket file", "error", err)
	}

	listener, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.listener = listener
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		<-ctx.Done()
		listener.Close()
	}()
	go c.accept(ctx, listener)
	return nil
}

// Stop closes the socket and removes the process metrics.
func (c *ProgressCollector) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
		os.Remove(c.socketPath)
		metrics.DeleteFFmpegProgress(c.process)
	})
	return nil
}

func (c *ProgressCollector) accept(ctx context.Context, listener net.Listener) {
	defer c.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warn("Error accepting connection", "error", err)
			continue
		}
		c.wg.Add(1)
		go c.handleConnection(ctx, conn)
	}
}

func (c *ProgressCollector) handleConnection(ctx context.Context, conn net.Conn) {
	defer c.wg.Done()
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	block := make(map[string]string)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		block[key] = strings.TrimSpace(value)

		// ffmpeg terminates each report with progress=continue|end
		if key == "progress" {
			metrics.SetFFmpegProgress(c.process, ParseProgress(block))
			block = make(map[string]string)
		}
	}
}

// ParseProgress converts one progress block. Unparseable fields stay zero.
func ParseProgress(block map[string]string) metrics.FFmpegProgress {
	var p metrics.FFmpegProgress
	if v, err := strconv.ParseInt(block["frame"], 10, 64); err == nil {
		p.Frames = v
	}
	if v, err := strconv.ParseFloat(block["fps"], 64); err == nil {
		p.FPS = v
	}
	if v, err := strconv.ParseFloat(block["drop_frames"], 64); err == nil {
		p.DroppedFrames = v
	}
	speed := strings.TrimSpace(strings.TrimSuffix(block["speed"], "x"))
	if v, err := strconv.ParseFloat(speed, 64); err == nil {
		p.Speed = v
	}
	return p
}
