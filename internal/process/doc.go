// Package process runs the ffmpeg subprocesses behind capture and recording.
//
// A Process wraps os/exec with the plumbing a media pipe needs:
//   - optional stdin and stdout pipes carrying raw media, with stderr
//     streamed line by line into a logger through a pluggable LogParser
//   - extra pipes passed to the child as fd 3, 4, ... in either direction
//   - graceful stop with SIGINT and a configurable timeout, then SIGKILL
//   - state tracking (idle, starting, running, stopping, error)
//
// Example:
//
//	proc := process.New(process.Options{
//	    Name:   "record",
//	    Path:   "ffmpeg",
//	    Args:   []string{"-f", "rawvideo", "-i", "pipe:0", "out.mov"},
//	    Stdin:  true,
//	    Logger: logger,
//	})
//	if err := proc.Start(); err != nil { ... }
//	proc.Stdin().Write(frame)
//	proc.CloseInputs()
//	code, err := proc.Wait(ctx)
package process
