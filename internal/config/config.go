// Package config provides configuration types and defaults for vidsample.
package config

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Default constants
const (
	// DefaultTargetFPS is the sampled processing rate when none is given.
	DefaultTargetFPS float64 = 8

	// DefaultFirstFrame starts sampling at the beginning of the video.
	DefaultFirstFrame int = 0

	// DefaultQueueCapacity is the number of decoded frames allowed in flight
	// between the sampler and the consumer.
	DefaultQueueCapacity int = 20

	// DefaultCheckpointInterval is the number of analysed frames between partial flushes.
	DefaultCheckpointInterval int = 500

	// DefaultSeekThreshold is the largest forward gap (in frames) that is
	// stepped through instead of seeking.
	DefaultSeekThreshold int = 30

	// DefaultStoreName is the result database filename inside the output directory.
	DefaultStoreName string = "vidsample.db"

	// MaxQueueCapacity bounds decoded frames held in memory.
	MaxQueueCapacity int = 1024

	// MaxTargetFPS is the highest accepted target rate.
	MaxTargetFPS float64 = 1000

	// SparsePresetFPS is the target rate for the sparse preset.
	SparsePresetFPS float64 = 1

	// DensePresetFPS is the target rate for the dense preset.
	DensePresetFPS float64 = 24
)

// Preset represents a named sampling density.
type Preset string

const (
	PresetSparse   Preset = "sparse"
	PresetStandard Preset = "standard"
	PresetDense    Preset = "dense"
)

// ParsePreset parses a string into a Preset.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sparse":
		return PresetSparse, nil
	case "standard":
		return PresetStandard, nil
	case "dense":
		return PresetDense, nil
	default:
		return "", fmt.Errorf("%w: '%s', valid options: sparse, standard, dense", ErrInvalidPreset, s)
	}
}

// String returns the string representation of the preset.
func (p Preset) String() string {
	return string(p)
}

// PresetValues contains bundled parameter values for a preset.
type PresetValues struct {
	TargetFPS          float64
	CheckpointInterval int
}

// GetPresetValues returns the values for a given preset.
func GetPresetValues(p Preset) PresetValues {
	switch p {
	case PresetSparse:
		return PresetValues{
			TargetFPS:          SparsePresetFPS,
			CheckpointInterval: 100,
		}
	case PresetDense:
		return PresetValues{
			TargetFPS:          DensePresetFPS,
			CheckpointInterval: DefaultCheckpointInterval,
		}
	default:
		return PresetValues{
			TargetFPS:          DefaultTargetFPS,
			CheckpointInterval: DefaultCheckpointInterval,
		}
	}
}

// Config holds all configuration for a sampling run.
type Config struct {
	// Input/output paths
	InputPath string
	OutputDir string
	LogDir    string
	StorePath string // Optional, defaults to OutputDir/vidsample.db

	// Sampling
	TargetFPS float64
	// FirstFrame is the first frame index to analyse. A negative value is the
	// index of the last frame already analysed by an earlier run.
	FirstFrame int

	// Pipeline
	QueueCapacity      int
	CheckpointInterval int
	SeekThreshold      int

	// Selected preset (optional)
	Preset *Preset
}

// NewConfig creates a new Config with default values.
func NewConfig(inputPath, outputDir, logDir string) *Config {
	return &Config{
		InputPath:          inputPath,
		OutputDir:          outputDir,
		LogDir:             logDir,
		TargetFPS:          DefaultTargetFPS,
		FirstFrame:         DefaultFirstFrame,
		QueueCapacity:      DefaultQueueCapacity,
		CheckpointInterval: DefaultCheckpointInterval,
		SeekThreshold:      DefaultSeekThreshold,
	}
}

// ApplyPreset applies the given preset to the config.
func (c *Config) ApplyPreset(p Preset) {
	values := GetPresetValues(p)
	c.Preset = &p
	c.TargetFPS = values.TargetFPS
	c.CheckpointInterval = values.CheckpointInterval
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.TargetFPS <= 0 || math.IsNaN(c.TargetFPS) || math.IsInf(c.TargetFPS, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidTargetFPS, c.TargetFPS)
	}

	if c.TargetFPS > MaxTargetFPS {
		return fmt.Errorf("%w: must be at most %v, got %v", ErrInvalidTargetFPS, MaxTargetFPS, c.TargetFPS)
	}

	if c.QueueCapacity < 1 || c.QueueCapacity > MaxQueueCapacity {
		return fmt.Errorf("%w: must be 1-%d, got %d", ErrInvalidQueueCapacity, MaxQueueCapacity, c.QueueCapacity)
	}

	if c.CheckpointInterval < 1 {
		return fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidCheckpointInterval, c.CheckpointInterval)
	}

	if c.SeekThreshold < 0 {
		return fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidSeekThreshold, c.SeekThreshold)
	}

	return nil
}

// GetStorePath returns the result database path, falling back to OutputDir.
func (c *Config) GetStorePath() string {
	if c.StorePath != "" {
		return c.StorePath
	}
	dir := c.OutputDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, DefaultStoreName)
}
