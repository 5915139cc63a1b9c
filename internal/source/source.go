// Package source positions a video decoder on requested frame indices.
//
// A FrameSource tracks the decoder's cursor explicitly as {cursor, total}
// with three transitions: seek(n), step() and read(). FetchAt picks between
// a seek and sequential steps for each target, which keeps the heuristic
// testable without a real video file.
package source

import (
	"errors"
	"fmt"
	"image"
)

// DefaultSeekThreshold is the largest forward gap that is stepped through.
const DefaultSeekThreshold = 30

var (
	// ErrExhausted means the decoder ran out of frames.
	ErrExhausted = errors.New("video source exhausted")

	// ErrDecodeFailed means a frame before the end of the video could not be decoded.
	ErrDecodeFailed = errors.New("frame decode failed")
)

// Decoder is the video handle a FrameSource drives.
//
// Grab advances one frame without producing an image. Read decodes one
// frame and advances past it. Images returned by Read must be in RGB(A)
// channel order.
type Decoder interface {
	FrameCount() int
	FPS() float64
	Seek(index int) error
	Grab() bool
	Read() (image.Image, bool)
	Close() error
}

// Move is the positioning strategy chosen for a fetch.
type Move int

const (
	MoveStep Move = iota
	MoveSeek
)

func (m Move) String() string {
	if m == MoveSeek {
		return "seek"
	}
	return "step"
}

// Option configures a FrameSource.
type Option func(*FrameSource)

// WithSeekThreshold overrides the largest forward gap that is stepped through.
func WithSeekThreshold(frames int) Option {
	return func(s *FrameSource) {
		if frames >= 0 {
			s.threshold = frames
		}
	}
}

// FrameSource wraps a Decoder and owns its cursor.
type FrameSource struct {
	dec       Decoder
	cursor    int
	total     int
	fps       float64
	threshold int
}

// New creates a FrameSource positioned at frame 0.
func New(dec Decoder, opts ...Option) *FrameSource {
	s := &FrameSource{
		dec:       dec,
		total:     dec.FrameCount(),
		fps:       dec.FPS(),
		threshold: DefaultSeekThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cursor returns the index of the next frame the decoder will produce.
func (s *FrameSource) Cursor() int { return s.cursor }

// TotalFrames returns the frame count reported at open time.
func (s *FrameSource) TotalFrames() int { return s.total }

// FPS returns the native frame rate.
func (s *FrameSource) FPS() float64 { return s.fps }

// Plan reports how FetchAt would reach target from the current cursor.
// Backward targets and forward gaps above the threshold seek.
func (s *FrameSource) Plan(target int) Move {
	if s.cursor > target || target-s.cursor > s.threshold {
		return MoveSeek
	}
	return MoveStep
}

// FetchAt positions the decoder on target and decodes that frame.
// After a successful fetch the cursor is target+1.
func (s *FrameSource) FetchAt(target int) (image.Image, error) {
	if target < 0 {
		return nil, fmt.Errorf("negative frame index %d", target)
	}

	switch s.Plan(target) {
	case MoveSeek:
		if err := s.seek(target); err != nil {
			return nil, err
		}
	case MoveStep:
		for s.cursor < target {
			if !s.step() {
				return nil, s.failure()
			}
		}
	}

	img, ok := s.read()
	if !ok {
		return nil, s.failure()
	}
	return img, nil
}

// Close releases the underlying decoder.
func (s *FrameSource) Close() error {
	return s.dec.Close()
}

func (s *FrameSource) seek(n int) error {
	if err := s.dec.Seek(n); err != nil {
		return fmt.Errorf("%w: seek to %d: %v", ErrDecodeFailed, n, err)
	}
	s.cursor = n
	return nil
}

func (s *FrameSource) step() bool {
	if !s.dec.Grab() {
		return false
	}
	s.cursor++
	return true
}

func (s *FrameSource) read() (image.Image, bool) {
	img, ok := s.dec.Read()
	if !ok || img == nil {
		return nil, false
	}
	s.cursor++
	return img, true
}

// failure classifies a failed step or read at the current cursor.
func (s *FrameSource) failure() error {
	if s.total > 0 && s.cursor >= s.total {
		return ErrExhausted
	}
	return fmt.Errorf("%w at frame %d", ErrDecodeFailed, s.cursor)
}
