// Package config provides configuration types and defaults for vidsample.
package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidPreset indicates an unknown preset name was provided.
	ErrInvalidPreset = errors.New("invalid preset")

	// ErrInvalidTargetFPS indicates a target processing rate that is not positive.
	ErrInvalidTargetFPS = errors.New("target fps must be positive")

	// ErrInvalidQueueCapacity indicates a frame queue that cannot hold a frame.
	ErrInvalidQueueCapacity = errors.New("queue capacity out of range")

	// ErrInvalidCheckpointInterval indicates a checkpoint interval below one frame.
	ErrInvalidCheckpointInterval = errors.New("checkpoint interval out of range")

	// ErrInvalidSeekThreshold indicates a negative seek threshold.
	ErrInvalidSeekThreshold = errors.New("seek threshold out of range")
)
