// Package sampler produces the sampled frames of a video in index order.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/source"
)

// Frame is one sampled frame. It is consumed exactly once.
type Frame struct {
	Index int
	Image image.Image
}

// Fetcher is the part of source.FrameSource the sampler drives.
type Fetcher interface {
	FetchAt(target int) (image.Image, error)
	TotalFrames() int
	FPS() float64
}

// Stride returns the frame-index step that brings nativeFPS down to at most
// targetFPS: ceil(native/target), never less than 1.
func Stride(nativeFPS, targetFPS float64) int {
	if targetFPS <= 0 || nativeFPS <= 0 || math.IsNaN(nativeFPS) || math.IsNaN(targetFPS) {
		return 1
	}
	s := math.Ceil(nativeFPS / targetFPS)
	if s < 1 || math.IsInf(s, 0) {
		return 1
	}
	return int(s)
}

// StartIndex applies the resume convention: a non-negative first frame is
// used as is; a negative one is the last frame an earlier run analysed,
// so sampling continues one stride after it.
func StartIndex(first, stride int) int {
	if first >= 0 {
		return first
	}
	return -first + stride
}

// Plan summarises what a Sampler will do.
type Plan struct {
	TotalFrames  int
	NativeFPS    float64
	Stride       int
	StartFrame   int
	EffectiveFPS float64
	// ExpectedSamples is the number of frames emitted if no fetch fails.
	ExpectedSamples int
}

// DurationSecs returns the video duration implied by frame count and rate.
func (p Plan) DurationSecs() float64 {
	if p.NativeFPS <= 0 {
		return 0
	}
	return float64(p.TotalFrames) / p.NativeFPS
}

// Sampler walks a Fetcher one stride at a time.
type Sampler struct {
	src    Fetcher
	logger *logging.Logger
	total  int
	fps    float64
	stride int
	start  int
	next   int

	emitted int
	stopErr error
}

// New creates a Sampler over src. targetFPS must be positive.
func New(src Fetcher, targetFPS float64, firstFrame int, logger *logging.Logger) (*Sampler, error) {
	if targetFPS <= 0 || math.IsNaN(targetFPS) || math.IsInf(targetFPS, 0) {
		return nil, fmt.Errorf("target fps must be positive, got %v", targetFPS)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	fps := src.FPS()
	stride := Stride(fps, targetFPS)
	start := StartIndex(firstFrame, stride)
	return &Sampler{
		src:    src,
		logger: logger,
		total:  src.TotalFrames(),
		fps:    fps,
		stride: stride,
		start:  start,
		next:   start,
	}, nil
}

// Plan reports the sampling parameters.
func (s *Sampler) Plan() Plan {
	expected := 0
	if s.start < s.total {
		expected = (s.total-s.start-1)/s.stride + 1
	}
	effective := 0.0
	if s.stride > 0 {
		effective = s.fps / float64(s.stride)
	}
	return Plan{
		TotalFrames:     s.total,
		NativeFPS:       s.fps,
		Stride:          s.stride,
		StartFrame:      s.start,
		EffectiveFPS:    effective,
		ExpectedSamples: expected,
	}
}

// Run fetches frames and sends them on out until the video ends, a fetch
// fails, or ctx is cancelled. It closes out exactly once before returning.
// A failed fetch ends the stream without an error; StopReason reports it.
func (s *Sampler) Run(ctx context.Context, out chan<- Frame) error {
	defer close(out)

	for s.next < s.total {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := s.src.FetchAt(s.next)
		if err != nil {
			s.stopErr = vserrors.NewDecodeError(s.next, err)
			if errors.Is(err, source.ErrExhausted) {
				s.logger.Debug("video ended before expected frame count", "frame", s.next, "total", s.total)
			} else {
				s.logger.Warn("frame fetch failed, ending stream", "frame", s.next, "error", err)
			}
			return nil
		}

		select {
		case out <- Frame{Index: s.next, Image: img}:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.emitted++
		s.next += s.stride
	}
	return nil
}

// Emitted returns how many frames Run has sent.
func (s *Sampler) Emitted() int { return s.emitted }

// StopReason returns the fetch error that ended Run early, or nil if the
// stream ended at the last index.
func (s *Sampler) StopReason() error { return s.stopErr }
