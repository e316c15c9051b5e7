package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/panocam/internal/logging"
)

// ErrNotStarted is returned by operations that need a running process.
var ErrNotStarted = errors.New("process not started")

// ExitKilled is the exit code reported after a forced kill (128 + SIGKILL).
const ExitKilled = 137

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (ffmpeg, gstreamer, etc.)
type LogParser func(line string) (level, msg string)

// PipeDirection says which side writes an extra pipe.
type PipeDirection int

const (
	PipeToChild   PipeDirection = iota // we write, child reads
	PipeFromChild                      // child writes, we read
)

// Options configures a new Process.
type Options struct {
	// Name identifies the process in logs (required).
	Name string

	// Path is the executable, resolved through PATH (required).
	Path string

	// Args are passed to the executable.
	Args []string

	// Stdin opens a pipe for writing to the child's stdin.
	Stdin bool

	// Stdout keeps the child's stdout as a raw stream instead of logging it.
	Stdout bool

	// ExtraPipes become fd 3, 4, ... in the child.
	ExtraPipes []PipeDirection

	// Logger for lifecycle messages. Required.
	Logger logging.Logger

	// OutputLogger receives child output lines. If nil, Logger is used.
	OutputLogger logging.Logger

	// LogParser extracts the level of each output line (optional).
	LogParser LogParser

	// GracefulTimeout bounds the wait after SIGINT. Zero means 5s.
	GracefulTimeout time.Duration

	// KillTimeout bounds the wait after SIGKILL. Zero means 5s.
	KillTimeout time.Duration

	// OnStateChange is called on every state transition (optional).
	OnStateChange func(old, new State, err error)
}

// Process manages the lifecycle of one subprocess.
type Process struct {
	opts Options
	cmd  *exec.Cmd

	stdin  io.WriteCloser
	stdout io.ReadCloser
	pipes  []*os.File // our ends, indexed like ExtraPipes

	mu   sync.RWMutex
	info Info

	done       chan struct{}
	outputs    int
	outputDone chan struct{}
	waitErr    error
	closeOnce  sync.Once
}

// New creates a process. Nothing runs until Start.
func New(opts Options) *Process {
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = 5 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	if opts.OutputLogger == nil {
		opts.OutputLogger = opts.Logger
	}
	return &Process{
		opts: opts,
		info: Info{Name: opts.Name, State: StateIdle},
		done: make(chan struct{}),
	}
}

// Start launches the subprocess.
func (p *Process) Start() error {
	p.setState(StateStarting, nil)

	if err := p.start(); err != nil {
		p.closePipes()
		p.setState(StateError, err)
		p.opts.Logger.Error("Failed to start process", "name", p.opts.Name, "error", err)
		return err
	}

	p.mu.Lock()
	p.info.PID = p.cmd.Process.Pid
	p.info.StartedAt = time.Now()
	p.mu.Unlock()
	p.setState(StateRunning, nil)
	p.opts.Logger.Info("Process started", "name", p.opts.Name, "pid", p.cmd.Process.Pid)

	go p.wait()
	return nil
}

func (p *Process) start() error {
	if p.opts.Path == "" {
		return fmt.Errorf("empty command")
	}
	p.cmd = exec.Command(p.opts.Path, p.opts.Args...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var err error
	if p.opts.Stdin {
		if p.stdin, err = p.cmd.StdinPipe(); err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
	}
	var childEnds []*os.File
	if p.opts.Stdout {
		// Wait must not close the reader; the consumer drains it to EOF
		r, w, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		p.stdout = r
		p.cmd.Stdout = w
		childEnds = append(childEnds, w)
	}
	extraStart := len(childEnds)
	for _, dir := range p.opts.ExtraPipes {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll(childEnds)
			return fmt.Errorf("extra pipe: %w", err)
		}
		if dir == PipeToChild {
			childEnds = append(childEnds, r)
			p.pipes = append(p.pipes, w)
		} else {
			childEnds = append(childEnds, w)
			p.pipes = append(p.pipes, r)
		}
	}
	p.cmd.ExtraFiles = childEnds[extraStart:]

	var outputs []io.Reader
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		closeAll(childEnds)
		return fmt.Errorf("stderr pipe: %w", err)
	}
	outputs = append(outputs, stderr)
	if !p.opts.Stdout {
		stdout, err := p.cmd.StdoutPipe()
		if err != nil {
			closeAll(childEnds)
			return fmt.Errorf("stdout pipe: %w", err)
		}
		outputs = append(outputs, stdout)
	}

	if err := p.cmd.Start(); err != nil {
		closeAll(childEnds)
		return err
	}
	// the child holds its own copies now
	closeAll(childEnds)

	p.outputDone = make(chan struct{}, len(outputs))
	for i, r := range outputs {
		source := "stderr"
		if i == 1 {
			source = "stdout"
		}
		go func(r io.Reader, source string) {
			p.streamOutput(r, source)
			p.outputDone <- struct{}{}
		}(r, source)
	}
	p.outputs = len(outputs)
	return nil
}

func (p *Process) wait() {
	// exec requires output to be drained before Wait
	for i := 0; i < p.outputs; i++ {
		<-p.outputDone
	}
	err := p.cmd.Wait()
	code := exitCodeFromError(err)
	// read ends stay open until the consumer has drained them
	p.CloseInputs()

	p.mu.Lock()
	p.info.ExitCode = code
	stopping := p.info.State == StateStopping
	p.mu.Unlock()

	p.waitErr = err
	switch {
	case err == nil || stopping:
		p.setState(StateExited, nil)
		p.opts.Logger.Info("Process exited", "name", p.opts.Name, "exit_code", code)
	default:
		p.setState(StateError, err)
		p.opts.Logger.Warn("Process exited with error", "name", p.opts.Name, "exit_code", code, "error", err)
	}
	close(p.done)
}

// Stdin returns the child's stdin, or nil if Options.Stdin was false.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout returns the child's raw stdout, or nil if Options.Stdout was false.
func (p *Process) Stdout() io.ReadCloser {
	return p.stdout
}

// Pipe returns our end of the i-th extra pipe (child fd 3+i).
func (p *Process) Pipe(i int) *os.File {
	if i < 0 || i >= len(p.pipes) {
		return nil
	}
	return p.pipes[i]
}

// CloseInputs closes stdin and every pipe we write, signalling end of
// input to the child.
func (p *Process) CloseInputs() {
	if p.stdin != nil {
		p.stdin.Close()
	}
	for i, dir := range p.opts.ExtraPipes {
		if dir == PipeToChild && i < len(p.pipes) {
			p.pipes[i].Close()
		}
	}
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits or ctx is done, and returns the exit
// code. When ctx ends first the process is killed.
func (p *Process) Wait(ctx context.Context) (int, error) {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0, ErrNotStarted
	}
	select {
	case <-p.done:
		return p.Info().ExitCode, p.waitErr
	case <-ctx.Done():
		p.opts.Logger.Warn("Process did not exit in time, forcing kill", "name", p.opts.Name)
		p.Kill()
		return ExitKilled, ctx.Err()
	}
}

// Stop sends SIGINT and waits up to the graceful timeout before killing.
// It returns the exit code, ExitKilled after a forced kill.
func (p *Process) Stop() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	select {
	case <-p.done:
		return p.Info().ExitCode
	default:
	}

	p.setState(StateStopping, nil)
	p.opts.Logger.Info("Sending SIGINT to process", "name", p.opts.Name, "pid", p.cmd.Process.Pid)
	if err := p.signal(syscall.SIGINT); err != nil {
		p.opts.Logger.Warn("Failed to send SIGINT", "error", err)
	}
	return p.waitForExit(p.opts.GracefulTimeout)
}

// Kill terminates the process immediately without waiting.
func (p *Process) Kill() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.setState(StateStopping, nil)
	if err := p.signal(syscall.SIGKILL); err != nil {
		p.opts.Logger.Error("Failed to kill process", "name", p.opts.Name, "error", err)
	}
}

// signal delivers sig to the whole process group so helpers spawned by the
// child cannot hold the output pipes open.
func (p *Process) signal(sig syscall.Signal) error {
	err := syscall.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.Info().ExitCode
	case <-time.After(timeout):
		p.opts.Logger.Warn("Graceful shutdown timeout, forcing kill", "name", p.opts.Name, "timeout", timeout)
		p.Kill()
		// Wait for process to exit with a secondary timeout to prevent hanging
		select {
		case <-p.done:
		case <-time.After(p.opts.KillTimeout):
			p.opts.Logger.Error("Process did not exit after kill signal", "name", p.opts.Name)
		}
		return ExitKilled
	}
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// State returns the current state.
func (p *Process) State() State {
	return p.Info().State
}

func (p *Process) setState(state State, err error) {
	p.mu.Lock()
	old := p.info.State
	p.info.State = state
	if err != nil {
		p.info.LastError = err
	}
	p.mu.Unlock()

	if old != state && p.opts.OnStateChange != nil {
		p.opts.OnStateChange(old, state, err)
	}
}

func (p *Process) closePipes() {
	p.closeOnce.Do(func() {
		closeAll(p.pipes)
		if p.stdout != nil {
			p.stdout.Close()
		}
	})
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		// killed by a signal
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return 1
}

// streamOutput logs each output line at the level reported by the LogParser.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	logger := p.opts.OutputLogger

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// Use configured parser or default to info level
		level, msg := "info", line
		if p.opts.LogParser != nil {
			level, msg = p.opts.LogParser(line)
		}

		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg, "source", source)
		case "warning":
			logger.Warn(msg, "source", source)
		case "info":
			logger.Info(msg, "source", source)
		default:
			logger.Debug(msg, "source", source)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.opts.Logger.Warn("Error reading output", "name", p.opts.Name, "source", source, "error", err)
	}
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
