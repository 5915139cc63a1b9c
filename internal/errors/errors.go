// Package errors provides structured error types for vidsample operations.
package errors

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// KindIO represents I/O errors.
	KindIO ErrorKind = iota
	// KindPath represents path-related errors.
	KindPath
	// KindConfig represents configuration validation errors.
	KindConfig
	// KindOpen represents a video source that cannot be opened or decoded at all.
	KindOpen
	// KindDecode represents a single frame that could not be fetched mid-run.
	KindDecode
	// KindCallback represents a failure raised by an analysis, result or persistence callback.
	KindCallback
	// KindStore represents result store errors.
	KindStore
	// KindProbe represents ffprobe execution or parsing errors.
	KindProbe
	// KindNoFilesFound represents no suitable video files found.
	KindNoFilesFound
	// KindOperationFailed represents general operation failures.
	KindOperationFailed
	// KindCancelled represents user-cancelled operations.
	KindCancelled
)

var kindNames = [...]string{
	KindIO:              "I/O error",
	KindPath:            "Path error",
	KindConfig:          "Configuration error",
	KindOpen:            "Open error",
	KindDecode:          "Decode error",
	KindCallback:        "Callback error",
	KindStore:           "Store error",
	KindProbe:           "Probe error",
	KindNoFilesFound:    "No files found",
	KindOperationFailed: "Operation failed",
	KindCancelled:       "Operation cancelled",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown error"
	}
	return kindNames[k]
}

// Stage identifies which caller-supplied callback failed.
type Stage string

const (
	StageAnalyze Stage = "analyze"
	StageRecord  Stage = "record"
	StagePersist Stage = "persist"
)

// CallbackError describes a failure inside a caller-supplied callback.
// FrameIndex is -1 for persistence failures that are not tied to a frame.
type CallbackError struct {
	Stage      Stage
	FrameIndex int
	Partial    bool
	Stack      string
	Underlying error
}

func (e *CallbackError) Error() string {
	switch e.Stage {
	case StagePersist:
		return fmt.Sprintf("%s callback failed (partial=%t): %v", e.Stage, e.Partial, e.Underlying)
	default:
		return fmt.Sprintf("%s callback failed at frame %d: %v", e.Stage, e.FrameIndex, e.Underlying)
	}
}

func (e *CallbackError) Unwrap() error {
	return e.Underlying
}

// CoreError is the main error type for vidsample operations.
type CoreError struct {
	Kind       ErrorKind
	Message    string
	Underlying error
}

func (e *CoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target matches this error's kind.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewIOError creates a new I/O error.
func NewIOError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindIO, Message: message, Underlying: underlying}
}

// NewPathError creates a new path-related error.
func NewPathError(message string) *CoreError {
	return &CoreError{Kind: KindPath, Message: message}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindConfig, Message: message, Underlying: underlying}
}

// NewOpenError creates an error for a source that cannot be opened as a video.
func NewOpenError(path string, underlying error) *CoreError {
	return &CoreError{Kind: KindOpen, Message: fmt.Sprintf("cannot open %s", path), Underlying: underlying}
}

// NewDecodeError creates an error for a frame that failed to decode.
func NewDecodeError(frameIndex int, underlying error) *CoreError {
	return &CoreError{Kind: KindDecode, Message: fmt.Sprintf("frame %d", frameIndex), Underlying: underlying}
}

// NewCallbackError wraps a callback failure into a CoreError.
func NewCallbackError(stage Stage, frameIndex int, partial bool, stack string, underlying error) *CoreError {
	cbErr := &CallbackError{
		Stage:      stage,
		FrameIndex: frameIndex,
		Partial:    partial,
		Stack:      stack,
		Underlying: underlying,
	}
	return &CoreError{Kind: KindCallback, Message: cbErr.Error(), Underlying: cbErr}
}

// NewStoreError creates a new result store error.
func NewStoreError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindStore, Message: message, Underlying: underlying}
}

// NewProbeError creates a new ffprobe error.
func NewProbeError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindProbe, Message: message, Underlying: underlying}
}

// NewNoFilesFoundError creates an error for when no video files are found.
func NewNoFilesFoundError(dir string) *CoreError {
	return &CoreError{Kind: KindNoFilesFound, Message: fmt.Sprintf("no suitable video files found in %s", dir)}
}

// NewOperationFailedError creates a new general operation failure error.
func NewOperationFailedError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindOperationFailed, Message: message, Underlying: underlying}
}

// NewCancelledError creates an error for user-cancelled operations.
func NewCancelledError(underlying error) *CoreError {
	return &CoreError{Kind: KindCancelled, Message: "operation was cancelled", Underlying: underlying}
}

// IsKind checks if the error has the specified kind.
func IsKind(err error, kind ErrorKind) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Kind == kind
	}
	return false
}

// IsCancelled checks if the error is a cancellation error.
func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

// IsOpen checks if the error is an open failure.
func IsOpen(err error) bool {
	return IsKind(err, KindOpen)
}

// AsCallback extracts the CallbackError from err, if any.
func AsCallback(err error) (*CallbackError, bool) {
	var cbErr *CallbackError
	if errors.As(err, &cbErr) {
		return cbErr, true
	}
	return nil, false
}

// WrapExecError wraps an exec.ExitError from an external tool into a CoreError.
func WrapExecError(cmd string, err error, stderr string) *CoreError {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := fmt.Sprintf("%s exited with code %d", cmd, exitErr.ExitCode())
		if stderr != "" {
			msg += ": " + stderr
		}
		return NewProbeError(msg, err)
	}
	return NewProbeError(fmt.Sprintf("failed to execute %s", cmd), err)
}

// IsNoFilesFound checks if the error is a no-files-found error.
func IsNoFilesFound(err error) bool {
	return IsKind(err, KindNoFilesFound)
}
