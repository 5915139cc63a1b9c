package pipeline

import "image"

// Analyzer turns one decoded frame into detections. It must not retain img.
type Analyzer[D any] interface {
	Analyze(img image.Image) (D, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc[D any] func(img image.Image) (D, error)

func (f AnalyzerFunc[D]) Analyze(img image.Image) (D, error) { return f(img) }

// ResultSink records the detections of one frame. Calls arrive in strictly
// increasing frame order.
type ResultSink[D any] interface {
	Record(frameIndex int, detections D) error
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc[D any] func(frameIndex int, detections D) error

func (f ResultSinkFunc[D]) Record(frameIndex int, detections D) error { return f(frameIndex, detections) }

// Persister flushes recorded results. It is called with partial=true at
// every checkpoint and once with partial=false at the end of the stream,
// so it must tolerate repeated calls.
type Persister interface {
	Persist(meta VideoMeta, partial bool) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(meta VideoMeta, partial bool) error

func (f PersisterFunc) Persist(meta VideoMeta, partial bool) error { return f(meta, partial) }

// VideoMeta describes the video being sampled. It is handed to the Persister.
type VideoMeta struct {
	Path        string
	RunID       string
	TotalFrames int
	NativeFPS   float64
	Stride      int
	StartFrame  int
}
