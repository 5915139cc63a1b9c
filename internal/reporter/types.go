// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// HardwareSummary contains host information.
type HardwareSummary struct {
	Hostname string
	CPUs     int
	OS       string
	Memory   string
}

// InitializationSummary describes the current video before sampling.
type InitializationSummary struct {
	InputFile   string
	StorePath   string
	RunID       string
	Duration    string
	Resolution  string
	Codec       string
	TotalFrames int
	NativeFPS   float64
}

// SamplingPlan describes the sampling parameters of a run.
type SamplingPlan struct {
	TotalFrames     int
	NativeFPS       float64
	TargetFPS       float64
	Stride          int
	StartFrame      int
	EffectiveFPS    float64
	ExpectedSamples int
	DurationSecs    float64
	Resumed         bool
}

// FrameProgress is emitted after each analysed frame.
type FrameProgress struct {
	FrameIndex  int
	TotalFrames int
	Percent     float64
	Appended    int
}

// CheckpointSnapshot is emitted after every persistence flush.
type CheckpointSnapshot struct {
	Partial          bool
	Cancelled        bool
	Appended         int
	FrameIndex       int
	Elapsed          time.Duration
	FPS              float64
	WindowFPS        float64
	RemainingSamples float64
	ETA              time.Duration
}

// RunOutcome contains final results for one video.
type RunOutcome struct {
	InputFile  string
	Sampled    int
	Flushes    int
	Elapsed    time.Duration
	FPS        float64
	StopReason string
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// BatchStartInfo contains batch start metadata.
type BatchStartInfo struct {
	TotalFiles int
	FileList   []string
	StorePath  string
}

// FileProgressContext contains current file index within a batch.
type FileProgressContext struct {
	CurrentFile int
	TotalFiles  int
}

// BatchSummary contains batch completion information.
type BatchSummary struct {
	SuccessfulCount int
	TotalFiles      int
	TotalSampled    int
	TotalDuration   time.Duration
	FileResults     []FileResult
}

// FileResult contains the per-file outcome of a batch.
type FileResult struct {
	Filename string
	Sampled  int
	Err      string
}
