// Package pipeline runs the sampler and the analysis consumer as two
// goroutines joined by a bounded frame queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/vidsample/internal/checkpoint"
	"github.com/five82/vidsample/internal/config"
	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/reporter"
	"github.com/five82/vidsample/internal/sampler"
	"github.com/five82/vidsample/internal/source"
	"github.com/five82/vidsample/internal/util"
)

// Frame is one sampled frame travelling through the queue.
type Frame = sampler.Frame

// Options configures a Pipeline.
type Options struct {
	TargetFPS          float64
	FirstFrame         int
	QueueCapacity      int
	CheckpointInterval int
	SeekThreshold      int
	RunID              string
	Reporter           reporter.Reporter
	Logger             *logging.Logger
	// Clock is used for throughput figures; nil means time.Now.
	Clock func() time.Time
}

// DefaultOptions returns options with the package defaults.
func DefaultOptions() Options {
	return Options{
		TargetFPS:          config.DefaultTargetFPS,
		FirstFrame:         config.DefaultFirstFrame,
		QueueCapacity:      config.DefaultQueueCapacity,
		CheckpointInterval: config.DefaultCheckpointInterval,
		SeekThreshold:      config.DefaultSeekThreshold,
	}
}

// Result summarises a finished run.
type Result struct {
	Sampled int
	Flushes int
	Elapsed time.Duration
	FPS     float64
	// StopReason is the fetch error that ended sampling early, if any.
	StopReason error
}

// Pipeline owns one decoder for the duration of a run.
type Pipeline[D any] struct {
	meta      VideoMeta
	src       *source.FrameSource
	sampler   *sampler.Sampler
	analyzer  Analyzer[D]
	sink      ResultSink[D]
	persister Persister
	opts      Options
	rep       reporter.Reporter
	logger    *logging.Logger
}

// New builds a pipeline over dec. The pipeline takes ownership of dec and
// closes it when Run returns, or immediately if New fails.
func New[D any](path string, dec source.Decoder, analyzer Analyzer[D], sink ResultSink[D], persister Persister, opts Options) (*Pipeline[D], error) {
	if analyzer == nil || sink == nil || persister == nil {
		_ = dec.Close()
		return nil, vserrors.NewConfigError("analyzer, result sink and persister are required", nil)
	}
	if dec.FPS() <= 0 {
		_ = dec.Close()
		return nil, vserrors.NewOpenError(path, fmt.Errorf("invalid frame rate %v", dec.FPS()))
	}
	if opts.QueueCapacity < 1 {
		opts.QueueCapacity = config.DefaultQueueCapacity
	}
	if opts.CheckpointInterval < 1 {
		opts.CheckpointInterval = config.DefaultCheckpointInterval
	}

	rep := opts.Reporter
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}
	logger = logger.WithRun(opts.RunID, path)

	src := source.New(dec, source.WithSeekThreshold(opts.SeekThreshold))
	smp, err := sampler.New(src, opts.TargetFPS, opts.FirstFrame, logger)
	if err != nil {
		_ = dec.Close()
		return nil, vserrors.NewConfigError("invalid sampling parameters", err)
	}

	plan := smp.Plan()
	return &Pipeline[D]{
		meta: VideoMeta{
			Path:        path,
			RunID:       opts.RunID,
			TotalFrames: plan.TotalFrames,
			NativeFPS:   plan.NativeFPS,
			Stride:      plan.Stride,
			StartFrame:  plan.StartFrame,
		},
		src:       src,
		sampler:   smp,
		analyzer:  analyzer,
		sink:      sink,
		persister: persister,
		opts:      opts,
		rep:       rep,
		logger:    logger,
	}, nil
}

// Meta returns the metadata handed to the persister.
func (p *Pipeline[D]) Meta() VideoMeta { return p.meta }

// Plan returns the sampling plan.
func (p *Pipeline[D]) Plan() sampler.Plan { return p.sampler.Plan() }

// Run samples the whole video. It returns a CoreError of kind KindCallback
// when a callback fails or panics, and KindCancelled when ctx is cancelled
// (after a partial flush of the frames analysed so far).
func (p *Pipeline[D]) Run(ctx context.Context) (Result, error) {
	defer func() {
		if err := p.src.Close(); err != nil {
			p.logger.Warn("failed to close video source", "error", err)
		}
	}()

	plan := p.sampler.Plan()
	p.logger.Info("sampling started",
		"total_frames", plan.TotalFrames,
		"fps", plan.NativeFPS,
		"duration_s", plan.DurationSecs(),
		"stride", plan.Stride,
		"effective_fps", plan.EffectiveFPS,
		"start_frame", plan.StartFrame)
	p.rep.SamplingStarted(reporter.SamplingPlan{
		TotalFrames:     plan.TotalFrames,
		NativeFPS:       plan.NativeFPS,
		TargetFPS:       p.opts.TargetFPS,
		Stride:          plan.Stride,
		StartFrame:      plan.StartFrame,
		EffectiveFPS:    plan.EffectiveFPS,
		ExpectedSamples: plan.ExpectedSamples,
		DurationSecs:    plan.DurationSecs(),
		Resumed:         p.opts.FirstFrame < 0,
	})

	frames := make(chan Frame, p.opts.QueueCapacity)
	policy := checkpoint.New(p.opts.CheckpointInterval, plan.TotalFrames, plan.Stride, p.opts.Clock)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.sampler.Run(gctx, frames)
	})
	g.Go(func() error {
		return p.consume(gctx, frames, policy)
	})

	err := g.Wait()
	summary := policy.Final()
	res := Result{
		Sampled:    summary.Appended,
		Flushes:    summary.Flushes,
		Elapsed:    summary.Elapsed,
		FPS:        summary.FPS,
		StopReason: p.sampler.StopReason(),
	}

	if err != nil {
		err = p.fail(ctx, err)
		return res, err
	}

	if res.StopReason != nil && !errors.Is(res.StopReason, source.ErrExhausted) {
		p.rep.Warning(fmt.Sprintf("sampling stopped early: %v", res.StopReason))
	}
	p.logger.Info("sampling complete",
		"sampled", res.Sampled,
		"flushes", res.Flushes,
		"elapsed", res.Elapsed,
		"fps", res.FPS)
	outcome := reporter.RunOutcome{
		InputFile: p.meta.Path,
		Sampled:   res.Sampled,
		Flushes:   res.Flushes,
		Elapsed:   res.Elapsed,
		FPS:       res.FPS,
	}
	if res.StopReason != nil {
		outcome.StopReason = res.StopReason.Error()
	}
	p.rep.RunComplete(outcome)
	return res, nil
}

// consume drains frames until the queue is closed. A closed queue is the
// end-of-stream signal and triggers the final flush, unless the run was
// cancelled, in which case one partial flush is made instead.
func (p *Pipeline[D]) consume(ctx context.Context, frames <-chan Frame, policy *checkpoint.Policy) error {
	lastIndex := -1
	for {
		if ctx.Err() != nil {
			return p.flushOnCancel(ctx, policy, lastIndex)
		}

		var (
			f  Frame
			ok bool
		)
		select {
		case f, ok = <-frames:
		case <-ctx.Done():
			return p.flushOnCancel(ctx, policy, lastIndex)
		}

		if !ok {
			if ctx.Err() != nil {
				return p.flushOnCancel(ctx, policy, lastIndex)
			}
			if err := p.persist(lastIndex, false); err != nil {
				return err
			}
			summary := policy.Final()
			p.rep.Checkpoint(reporter.CheckpointSnapshot{
				Appended:   summary.Appended,
				FrameIndex: lastIndex,
				Elapsed:    summary.Elapsed,
				FPS:        summary.FPS,
			})
			return nil
		}

		if err := p.process(f); err != nil {
			return err
		}
		lastIndex = f.Index

		p.rep.FrameProgress(reporter.FrameProgress{
			FrameIndex:  f.Index,
			TotalFrames: p.meta.TotalFrames,
			Percent:     util.Percent(f.Index, p.meta.TotalFrames),
			Appended:    policy.Appended() + 1,
		})

		prog, due := policy.Record(f.Index)
		if !due {
			continue
		}
		if err := p.persist(f.Index, true); err != nil {
			return err
		}
		p.logger.Info("saved intermediate results",
			"frames", prog.Appended,
			"elapsed", prog.Elapsed,
			"fps", prog.FPS,
			"window_fps", prog.WindowFPS,
			"eta", util.FormatETA(prog.ETA.Seconds()))
		p.rep.Checkpoint(snapshot(prog, true, false))
	}
}

func (p *Pipeline[D]) process(f Frame) error {
	var detections D
	if err := p.guard(vserrors.StageAnalyze, f.Index, false, func() error {
		var err error
		detections, err = p.analyzer.Analyze(f.Image)
		return err
	}); err != nil {
		return err
	}
	return p.guard(vserrors.StageRecord, f.Index, false, func() error {
		return p.sink.Record(f.Index, detections)
	})
}

func (p *Pipeline[D]) persist(frameIndex int, partial bool) error {
	p.logger.Debug("persisting results", "frame", frameIndex, "partial", partial)
	return p.guard(vserrors.StagePersist, frameIndex, partial, func() error {
		return p.persister.Persist(p.meta, partial)
	})
}

func (p *Pipeline[D]) flushOnCancel(ctx context.Context, policy *checkpoint.Policy, lastIndex int) error {
	cause := context.Cause(ctx)
	if policy.Unsaved() == 0 {
		return cause
	}
	if err := p.persist(lastIndex, true); err != nil {
		return err
	}
	prog := policy.Snapshot(lastIndex)
	p.logger.Info("saved results before stopping", "frames", prog.Appended, "last_frame", lastIndex)
	p.rep.Checkpoint(snapshot(prog, true, true))
	return cause
}

// guard runs a callback, converting returned errors and panics into a
// KindCallback error that carries the stack.
func (p *Pipeline[D]) guard(stage vserrors.Stage, frameIndex int, partial bool, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = vserrors.NewCallbackError(stage, frameIndex, partial, string(debug.Stack()), fmt.Errorf("panic: %v", r))
		}
	}()
	if cbErr := fn(); cbErr != nil {
		return vserrors.NewCallbackError(stage, frameIndex, partial, string(debug.Stack()), cbErr)
	}
	return nil
}

// fail is the single place a failed run is logged and reported.
func (p *Pipeline[D]) fail(ctx context.Context, err error) error {
	var coreErr *vserrors.CoreError
	if !errors.As(err, &coreErr) {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = vserrors.NewCancelledError(err)
		} else {
			err = vserrors.NewOperationFailedError("sampling failed", err)
		}
	}

	if vserrors.IsCancelled(err) {
		p.logger.Warn("sampling cancelled", "error", err)
		p.rep.Warning("sampling cancelled; results up to the last saved frame can be resumed")
		return err
	}

	log := p.logger
	attrs := []any{"error", err}
	if cb, ok := vserrors.AsCallback(err); ok {
		log = log.WithFrame(cb.FrameIndex)
		attrs = append(attrs, "stage", cb.Stage, "stack", cb.Stack)
	}
	log.Error("sampling failed", attrs...)
	p.rep.Error(reporter.ReporterError{
		Title:   "Sampling failed",
		Message: err.Error(),
		Context: p.meta.Path,
	})
	return err
}

func snapshot(prog checkpoint.Progress, partial, cancelled bool) reporter.CheckpointSnapshot {
	return reporter.CheckpointSnapshot{
		Partial:          partial,
		Cancelled:        cancelled,
		Appended:         prog.Appended,
		FrameIndex:       prog.FrameIndex,
		Elapsed:          prog.Elapsed,
		FPS:              prog.FPS,
		WindowFPS:        prog.WindowFPS,
		RemainingSamples: prog.RemainingSamples,
		ETA:              prog.ETA,
	}
}
