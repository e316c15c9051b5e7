package recorder

import "errors"

var (
	// ErrAlreadyRecording is returned by StartRecording outside Idle.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned by StopRecording when nothing can be stopped.
	ErrNotRecording = errors.New("not recording")
	// ErrConfigure wraps writer construction and video input failures.
	ErrConfigure = errors.New("failed to configure writer")
	// ErrStartWriting is reported once the writer refused to start too often.
	ErrStartWriting = errors.New("writer refused to start")
	// ErrAppend wraps a failed sample append; the session is aborted.
	ErrAppend = errors.New("failed to append sample")
	// ErrFinalize wraps a failed container finalize; the temp file is kept.
	ErrFinalize = errors.New("failed to finalize recording")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("recorder closed")
)
