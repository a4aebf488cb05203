package pipeline

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a stopped pipeline component
var ErrClosed = errors.New("pipeline: closed")

// SourceUnavailableError indicates a camera device or URL could not be
// opened within the connect timeout. Retried with backoff, never fatal.
type SourceUnavailableError struct {
	CameraID string
	Source   string
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("camera %s: source %s unavailable: %v", e.CameraID, e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// StreamInterruptedError indicates a mid-stream read failure. The source
// reconnects transparently; the caller never re-opens.
type StreamInterruptedError struct {
	CameraID string
	Err      error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("camera %s: stream interrupted: %v", e.CameraID, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }

// InferenceError indicates the external inference backend failed for a
// frame. The frame is skipped and counted; sustained failures degrade the
// camera status.
type InferenceError struct {
	CameraID string
	FrameSeq uint64
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("camera %s frame %d: inference failed: %v", e.CameraID, e.FrameSeq, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ConfigError indicates an inconsistent configuration, such as an embedding
// dimensionality mismatch or a threshold outside its valid range. Fatal at
// startup: the pipeline must not start in an inconsistent state.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}
