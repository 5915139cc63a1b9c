// Package vidsample samples frames from a video at a target rate, runs an
// analysis on each sampled frame and persists the results incrementally.
//
// Decoding runs on a producer goroutine that pushes frames into a bounded
// queue; a consumer goroutine analyses, records and checkpoints them. Every
// 500 analysed frames the persister is called with partial=true, and once
// more with partial=false when the video is exhausted.
//
// Basic usage:
//
//	var results []Luma
//	sink := vidsample.ResultSinkFunc[Luma](func(idx int, l Luma) error {
//	    results = append(results, l)
//	    return nil
//	})
//	save := vidsample.PersisterFunc(func(meta vidsample.VideoMeta, partial bool) error {
//	    return writeJSON(meta.Path+".json", results)
//	})
//
//	res, err := vidsample.Run(ctx, "input.mkv", analyzer, sink, save,
//	    vidsample.WithTargetFPS(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("sampled %d frames at %.1f fps\n", res.Sampled, res.FPS)
//
// To resume a run, pass the index of the last frame already analysed as a
// negative first frame: WithFirstFrame(-last).
package vidsample

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/five82/vidsample/internal/capture"
	"github.com/five82/vidsample/internal/config"
	"github.com/five82/vidsample/internal/discovery"
	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/pipeline"
	"github.com/five82/vidsample/internal/reporter"
	"github.com/five82/vidsample/internal/source"
	"github.com/five82/vidsample/internal/util"
)

// Re-export callback and decoder types.
type (
	Decoder = source.Decoder

	Analyzer[D any]       = pipeline.Analyzer[D]
	AnalyzerFunc[D any]   = pipeline.AnalyzerFunc[D]
	ResultSink[D any]     = pipeline.ResultSink[D]
	ResultSinkFunc[D any] = pipeline.ResultSinkFunc[D]
	Persister             = pipeline.Persister
	PersisterFunc         = pipeline.PersisterFunc
	VideoMeta             = pipeline.VideoMeta

	// Result summarises a finished run.
	Result = pipeline.Result

	Reporter = reporter.Reporter
	Logger   = logging.Logger
)

// Re-export preset types
type Preset = config.Preset

const (
	PresetSparse   = config.PresetSparse
	PresetStandard = config.PresetStandard
	PresetDense    = config.PresetDense
)

// ParsePreset converts a preset string to a Preset value.
// Valid values are "sparse", "standard", and "dense" (case-insensitive).
func ParsePreset(s string) (Preset, error) {
	return config.ParsePreset(s)
}

// Default sampling parameters.
const (
	DefaultTargetFPS          = config.DefaultTargetFPS
	DefaultQueueCapacity      = config.DefaultQueueCapacity
	DefaultCheckpointInterval = config.DefaultCheckpointInterval
	DefaultSeekThreshold      = config.DefaultSeekThreshold
)

// Errors returned by Run. Use errors.Is against these kinds.
var (
	ErrOpen      error = &vserrors.CoreError{Kind: vserrors.KindOpen}
	ErrCallback  error = &vserrors.CoreError{Kind: vserrors.KindCallback}
	ErrCancelled error = &vserrors.CoreError{Kind: vserrors.KindCancelled}
	ErrConfig    error = &vserrors.CoreError{Kind: vserrors.KindConfig}
)

type settings struct {
	cfg        *config.Config
	sourceName string
	runID      string
	reporter   Reporter
	logger     *Logger
}

// Option configures a run.
type Option func(*settings)

// WithFirstFrame sets the first frame to analyse. A negative value n resumes
// after frame |n|, which an earlier run already analysed.
func WithFirstFrame(n int) Option {
	return func(s *settings) {
		s.cfg.FirstFrame = n
	}
}

// WithTargetFPS sets the sampled processing rate.
func WithTargetFPS(fps float64) Option {
	return func(s *settings) {
		s.cfg.TargetFPS = fps
	}
}

// WithPreset applies a sampling preset. Options after it override its values.
func WithPreset(p Preset) Option {
	return func(s *settings) {
		s.cfg.ApplyPreset(p)
	}
}

// WithCheckpointInterval sets the number of analysed frames between partial flushes.
func WithCheckpointInterval(n int) Option {
	return func(s *settings) {
		s.cfg.CheckpointInterval = n
	}
}

// WithQueueCapacity sets the number of decoded frames allowed in flight.
func WithQueueCapacity(n int) Option {
	return func(s *settings) {
		s.cfg.QueueCapacity = n
	}
}

// WithSeekThreshold sets the largest forward gap that is stepped through
// instead of seeking.
func WithSeekThreshold(n int) Option {
	return func(s *settings) {
		s.cfg.SeekThreshold = n
	}
}

// WithReporter receives progress, checkpoint and error events.
func WithReporter(r Reporter) Option {
	return func(s *settings) {
		s.reporter = r
	}
}

// WithLogger sets the structured logger. The package-wide logger is used otherwise.
func WithLogger(l *Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithRunID tags logs and persisted metadata with id instead of a random UUID.
func WithRunID(id string) Option {
	return func(s *settings) {
		s.runID = id
	}
}

// WithSourceName sets the path reported in VideoMeta by RunDecoder.
func WithSourceName(name string) Option {
	return func(s *settings) {
		s.sourceName = name
	}
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{cfg: config.NewConfig("", "", "")}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, vserrors.NewConfigError("invalid options", err)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	return s, nil
}

// Run samples videoPath at the configured target rate (8 fps by default),
// analysing each sampled frame, recording its detections and persisting
// them. It fails fast with an ErrOpen error when videoPath is not a
// decodable video.
func Run[D any](
	ctx context.Context,
	videoPath string,
	analyzer Analyzer[D],
	sink ResultSink[D],
	persister Persister,
	opts ...Option,
) (Result, error) {
	s, err := newSettings(opts)
	if err != nil {
		return Result{}, err
	}
	if !util.FileExists(videoPath) {
		return Result{}, vserrors.NewOpenError(videoPath, errors.New("file does not exist"))
	}

	dec, err := capture.Open(videoPath)
	if err != nil {
		return Result{}, err
	}
	s.sourceName = videoPath
	return run(ctx, s, dec, analyzer, sink, persister)
}

// RunDecoder is Run over an already opened Decoder. It takes ownership of
// dec and closes it before returning.
func RunDecoder[D any](
	ctx context.Context,
	dec Decoder,
	analyzer Analyzer[D],
	sink ResultSink[D],
	persister Persister,
	opts ...Option,
) (Result, error) {
	if dec == nil {
		return Result{}, vserrors.NewConfigError("decoder is required", nil)
	}
	s, err := newSettings(opts)
	if err != nil {
		_ = dec.Close()
		return Result{}, err
	}
	return run(ctx, s, dec, analyzer, sink, persister)
}

func run[D any](
	ctx context.Context,
	s *settings,
	dec Decoder,
	analyzer Analyzer[D],
	sink ResultSink[D],
	persister Persister,
) (Result, error) {
	p, err := pipeline.New(s.sourceName, dec, analyzer, sink, persister, pipeline.Options{
		TargetFPS:          s.cfg.TargetFPS,
		FirstFrame:         s.cfg.FirstFrame,
		QueueCapacity:      s.cfg.QueueCapacity,
		CheckpointInterval: s.cfg.CheckpointInterval,
		SeekThreshold:      s.cfg.SeekThreshold,
		RunID:              s.runID,
		Reporter:           s.reporter,
		Logger:             s.logger,
	})
	if err != nil {
		return Result{}, err
	}
	return p.Run(ctx)
}

// FindVideos finds video files in a directory.
func FindVideos(dir string) ([]string, error) {
	return discovery.FindVideoFiles(dir)
}
