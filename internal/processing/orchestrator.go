// Package processing drives sampling runs over one or more video files.
package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/five82/vidsample/internal/config"
	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/ffprobe"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/pipeline"
	"github.com/five82/vidsample/internal/reporter"
	"github.com/five82/vidsample/internal/source"
	"github.com/five82/vidsample/internal/store"
	"github.com/five82/vidsample/internal/util"
)

// OpenFunc opens a video file for decoding.
type OpenFunc func(path string) (source.Decoder, error)

// ProbeFunc reads stream metadata for the initialization summary.
type ProbeFunc func(ctx context.Context, path string) (*ffprobe.VideoProbe, error)

// Options configures ProcessVideos.
type Options struct {
	Config *config.Config
	Store  *store.Store
	Open   OpenFunc
	// Probe defaults to ffprobe.Probe. Probe failures are reported as
	// warnings; the decoder's own metadata drives sampling.
	Probe ProbeFunc
	// Resume continues each video after the last frame stored for it.
	Resume   bool
	Reporter reporter.Reporter
	Logger   *logging.Logger
	Clock    func() time.Time
}

// SampleResult contains the outcome of one video.
type SampleResult struct {
	InputPath string
	Filename  string
	RunID     string
	Sampled   int
	Flushes   int
	Duration  time.Duration
	FPS       float64
	Err       error
}

// ProcessVideos samples every file in turn with analyzer. A failure on one
// file is reported and the batch moves on; cancellation stops the batch and
// is returned as a KindCancelled error together with the results so far.
func ProcessVideos[D any](
	ctx context.Context,
	opts Options,
	analyzer pipeline.Analyzer[D],
	filesToProcess []string,
) ([]SampleResult, error) {
	if opts.Config == nil || opts.Store == nil || opts.Open == nil || analyzer == nil {
		return nil, vserrors.NewConfigError("config, store, open function and analyzer are required", nil)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, vserrors.NewConfigError("invalid configuration", err)
	}

	rep := opts.Reporter
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}
	probe := opts.Probe
	if probe == nil {
		probe = ffprobe.Probe
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	sysInfo := util.GetSystemInfo()
	rep.Hardware(reporter.HardwareSummary{
		Hostname: sysInfo.Hostname,
		CPUs:     sysInfo.NumCPU,
		OS:       fmt.Sprintf("%s/%s", sysInfo.OS, sysInfo.Arch),
		Memory:   formatMemory(sysInfo),
	})

	if len(filesToProcess) > 1 {
		var fileNames []string
		for _, f := range filesToProcess {
			fileNames = append(fileNames, util.GetFilename(f))
		}
		rep.BatchStarted(reporter.BatchStartInfo{
			TotalFiles: len(filesToProcess),
			FileList:   fileNames,
			StorePath:  opts.Store.Path(),
		})
	}

	var results []SampleResult
	var cancelErr error

	for fileIdx, inputPath := range filesToProcess {
		if ctx.Err() != nil {
			rep.Warning(fmt.Sprintf("Sampling cancelled: %v", context.Cause(ctx)))
			cancelErr = vserrors.NewCancelledError(context.Cause(ctx))
			break
		}

		if len(filesToProcess) > 1 {
			rep.FileProgress(reporter.FileProgressContext{
				CurrentFile: fileIdx + 1,
				TotalFiles:  len(filesToProcess),
			})
		}

		start := now()
		res := processFile(ctx, opts, analyzer, inputPath, rep, probe, logger)
		res.Duration = now().Sub(start)
		results = append(results, res)

		if vserrors.IsCancelled(res.Err) {
			cancelErr = res.Err
			break
		}
	}

	reportSummary(rep, results, len(filesToProcess))
	return results, cancelErr
}

func processFile[D any](
	ctx context.Context,
	opts Options,
	analyzer pipeline.Analyzer[D],
	inputPath string,
	rep reporter.Reporter,
	probe ProbeFunc,
	logger *logging.Logger,
) SampleResult {
	cfg := opts.Config
	inputFilename := util.GetFilename(inputPath)
	res := SampleResult{InputPath: inputPath, Filename: inputFilename}

	firstFrame := cfg.FirstFrame
	if opts.Resume {
		resumeAt, err := opts.Store.ResumeFirstFrame(ctx, inputPath)
		if err != nil {
			res.Err = err
			reportFileError(rep, "Store Error", inputPath, err, "Check that the result database is writable")
			return res
		}
		if resumeAt != 0 {
			firstFrame = resumeAt
			logger.Info("resuming from stored results", "video", inputPath, "last_frame", -resumeAt)
		}
	}

	dec, err := opts.Open(inputPath)
	if err != nil {
		res.Err = err
		reportFileError(rep, "Open Error", inputPath, err, "Check if the file is a valid video format")
		return res
	}

	runID, err := opts.Store.BeginRun(ctx, inputPath, cfg.TargetFPS)
	if err != nil {
		_ = dec.Close()
		res.Err = err
		reportFileError(rep, "Store Error", inputPath, err, "Check that the result database is writable")
		return res
	}
	res.RunID = runID

	summary := reporter.InitializationSummary{
		InputFile:   inputFilename,
		StorePath:   opts.Store.Path(),
		RunID:       runID,
		Duration:    util.FormatDuration(float64(dec.FrameCount()) / dec.FPS()),
		TotalFrames: dec.FrameCount(),
		NativeFPS:   dec.FPS(),
	}
	if props, err := probe(ctx, inputPath); err != nil {
		rep.Warning(fmt.Sprintf("Could not probe %s: %v", inputFilename, err))
	} else {
		summary.Resolution = fmt.Sprintf("%dx%d", props.Width, props.Height)
		summary.Codec = props.Codec
		if props.DurationSecs > 0 {
			summary.Duration = util.FormatDuration(props.DurationSecs)
		}
		if est := props.EstimatedFrames(); est > 0 && est != dec.FrameCount() {
			logger.Debug("decoder and container frame counts differ",
				"video", inputPath, "decoder", dec.FrameCount(), "container", est)
		}
		logger.Debug("frame queue memory",
			"video", inputPath,
			"bytes", util.FrameQueueBytes(props.Width, props.Height, cfg.QueueCapacity))
	}
	rep.Initialization(summary)

	rec := store.NewRecorder[D](ctx, opts.Store, runID)
	p, err := pipeline.New[D](inputPath, dec, analyzer, rec, rec, pipeline.Options{
		TargetFPS:          cfg.TargetFPS,
		FirstFrame:         firstFrame,
		QueueCapacity:      cfg.QueueCapacity,
		CheckpointInterval: cfg.CheckpointInterval,
		SeekThreshold:      cfg.SeekThreshold,
		RunID:              runID,
		Reporter:           rep,
		Logger:             logger,
		Clock:              opts.Clock,
	})
	if err != nil {
		res.Err = err
		finishRun(opts.Store, runID, err, logger)
		reportFileError(rep, "Sampling Error", inputPath, err, "Check the sampling configuration")
		return res
	}

	out, err := p.Run(ctx)
	res.Sampled = out.Sampled
	res.Flushes = out.Flushes
	res.FPS = out.FPS
	res.Err = err
	finishRun(opts.Store, runID, err, logger)
	return res
}

// finishRun records the final status of a run that did not end with a
// final flush. Completed runs are marked by the recorder itself.
func finishRun(st *store.Store, runID string, runErr error, logger *logging.Logger) {
	if runErr == nil {
		return
	}
	status := store.StatusFailed
	if vserrors.IsCancelled(runErr) {
		status = store.StatusCancelled
	}
	if err := st.FinishRun(context.Background(), runID, status, runErr); err != nil {
		logger.Warn("failed to record run status", "run_id", runID, "error", err)
	}
}

func reportFileError(rep reporter.Reporter, title, inputPath string, err error, suggestion string) {
	rep.Error(reporter.ReporterError{
		Title:      title,
		Message:    err.Error(),
		Context:    fmt.Sprintf("File: %s", inputPath),
		Suggestion: suggestion,
	})
}

func reportSummary(rep reporter.Reporter, results []SampleResult, totalFiles int) {
	successful := 0
	for _, r := range results {
		if r.Err == nil {
			successful++
		}
	}

	if totalFiles <= 1 {
		switch {
		case successful == 0:
			rep.Warning("No files were successfully sampled")
		default:
			rep.OperationComplete(fmt.Sprintf("Successfully sampled %s", results[0].Filename))
		}
		return
	}

	var totalDuration time.Duration
	totalSampled := 0
	var fileResults []reporter.FileResult
	for _, r := range results {
		totalDuration += r.Duration
		totalSampled += r.Sampled
		fr := reporter.FileResult{Filename: r.Filename, Sampled: r.Sampled}
		if r.Err != nil {
			fr.Err = r.Err.Error()
		}
		fileResults = append(fileResults, fr)
	}

	rep.BatchComplete(reporter.BatchSummary{
		SuccessfulCount: successful,
		TotalFiles:      totalFiles,
		TotalSampled:    totalSampled,
		TotalDuration:   totalDuration,
		FileResults:     fileResults,
	})
}

func formatMemory(info util.SystemInfo) string {
	if info.TotalMemory == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s free)", util.FormatBytes(info.TotalMemory), util.FormatBytes(info.FreeMemory))
}
