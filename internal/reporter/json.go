package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// JSONReporter outputs NDJSON events for machine consumers.
type JSONReporter struct {
	writer             io.Writer
	mu                 sync.Mutex
	now                func() time.Time
	lastProgressBucket int
	lastProgressTime   time.Time
}

// NewJSONReporter creates a new JSON reporter that writes to stdout.
func NewJSONReporter() *JSONReporter {
	return NewJSONReporterWithWriter(os.Stdout)
}

// NewJSONReporterWithWriter creates a JSON reporter with a custom writer.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		writer:             w,
		now:                time.Now,
		lastProgressBucket: -1,
	}
}

func (r *JSONReporter) timestamp() int64 {
	return r.now().Unix()
}

func (r *JSONReporter) write(v map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) Hardware(summary HardwareSummary) {
	r.write(map[string]any{
		"type":      "hardware",
		"hostname":  summary.Hostname,
		"cpus":      summary.CPUs,
		"os":        summary.OS,
		"memory":    summary.Memory,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Initialization(summary InitializationSummary) {
	r.write(map[string]any{
		"type":         "initialization",
		"input_file":   summary.InputFile,
		"store_path":   summary.StorePath,
		"run_id":       summary.RunID,
		"duration":     summary.Duration,
		"resolution":   summary.Resolution,
		"codec":        summary.Codec,
		"total_frames": summary.TotalFrames,
		"native_fps":   summary.NativeFPS,
		"timestamp":    r.timestamp(),
	})
}

func (r *JSONReporter) SamplingStarted(plan SamplingPlan) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.lastProgressTime = time.Time{}
	r.mu.Unlock()

	r.write(map[string]any{
		"type":             "sampling_started",
		"total_frames":     plan.TotalFrames,
		"native_fps":       plan.NativeFPS,
		"target_fps":       plan.TargetFPS,
		"stride":           plan.Stride,
		"start_frame":      plan.StartFrame,
		"effective_fps":    plan.EffectiveFPS,
		"expected_samples": plan.ExpectedSamples,
		"duration_seconds": plan.DurationSecs,
		"resumed":          plan.Resumed,
		"timestamp":        r.timestamp(),
	})
}

// FrameProgress emits at most one event per percent, plus one every five
// seconds while the percentage is stalled.
func (r *JSONReporter) FrameProgress(progress FrameProgress) {
	const minInterval = 5 * time.Second

	bucket := int(progress.Percent)
	now := r.now()

	r.mu.Lock()
	intervalElapsed := r.lastProgressTime.IsZero() || now.Sub(r.lastProgressTime) >= minInterval
	if bucket <= r.lastProgressBucket && !intervalElapsed {
		r.mu.Unlock()
		return
	}
	if bucket > r.lastProgressBucket {
		r.lastProgressBucket = bucket
	}
	r.lastProgressTime = now
	r.mu.Unlock()

	r.write(map[string]any{
		"type":         "frame_progress",
		"frame_index":  progress.FrameIndex,
		"total_frames": progress.TotalFrames,
		"percent":      progress.Percent,
		"appended":     progress.Appended,
		"timestamp":    r.timestamp(),
	})
}

func (r *JSONReporter) Checkpoint(snapshot CheckpointSnapshot) {
	r.write(map[string]any{
		"type":              "checkpoint",
		"partial":           snapshot.Partial,
		"cancelled":         snapshot.Cancelled,
		"appended":          snapshot.Appended,
		"frame_index":       snapshot.FrameIndex,
		"elapsed_seconds":   snapshot.Elapsed.Seconds(),
		"fps":               snapshot.FPS,
		"window_fps":        snapshot.WindowFPS,
		"remaining_samples": snapshot.RemainingSamples,
		"eta_seconds":       int64(snapshot.ETA.Seconds()),
		"timestamp":         r.timestamp(),
	})
}

func (r *JSONReporter) RunComplete(outcome RunOutcome) {
	r.write(map[string]any{
		"type":             "run_complete",
		"input_file":       outcome.InputFile,
		"sampled":          outcome.Sampled,
		"flushes":          outcome.Flushes,
		"duration_seconds": outcome.Elapsed.Seconds(),
		"fps":              outcome.FPS,
		"stop_reason":      outcome.StopReason,
		"timestamp":        r.timestamp(),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.write(map[string]any{
		"type":      "warning",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.write(map[string]any{
		"type":       "error",
		"title":      err.Title,
		"message":    err.Message,
		"context":    err.Context,
		"suggestion": err.Suggestion,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) OperationComplete(message string) {
	r.write(map[string]any{
		"type":      "operation_complete",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) BatchStarted(info BatchStartInfo) {
	r.write(map[string]any{
		"type":        "batch_started",
		"total_files": info.TotalFiles,
		"file_list":   info.FileList,
		"store_path":  info.StorePath,
		"timestamp":   r.timestamp(),
	})
}

func (r *JSONReporter) FileProgress(context FileProgressContext) {
	r.write(map[string]any{
		"type":         "file_progress",
		"current_file": context.CurrentFile,
		"total_files":  context.TotalFiles,
		"timestamp":    r.timestamp(),
	})
}

func (r *JSONReporter) BatchComplete(summary BatchSummary) {
	results := make([]map[string]any, len(summary.FileResults))
	for i, fr := range summary.FileResults {
		results[i] = map[string]any{
			"filename": fr.Filename,
			"sampled":  fr.Sampled,
			"error":    fr.Err,
		}
	}

	r.write(map[string]any{
		"type":                   "batch_complete",
		"successful_count":       summary.SuccessfulCount,
		"total_files":            summary.TotalFiles,
		"total_sampled":          summary.TotalSampled,
		"total_duration_seconds": int64(summary.TotalDuration.Seconds()),
		"file_results":           results,
		"timestamp":              r.timestamp(),
	})
}

// Verbose messages are not part of the event stream.
func (r *JSONReporter) Verbose(string) {}
