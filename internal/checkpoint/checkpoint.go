// Package checkpoint decides when analysed results are flushed and
// computes throughput and ETA at each flush.
package checkpoint

import (
	"time"
)

// DefaultInterval is the number of analysed frames between partial flushes.
const DefaultInterval = 500

// Progress is reported at every partial flush. It never affects control flow.
type Progress struct {
	// Appended is the lifetime count of analysed frames.
	Appended   int
	FrameIndex int
	Elapsed    time.Duration
	// FPS is Appended over the time since the consumer started.
	FPS float64
	// WindowFPS is the rate over the frames since the previous flush.
	WindowFPS        float64
	RemainingSamples float64
	// ETA is RemainingSamples / FPS; zero when FPS is not yet known.
	ETA time.Duration
}

// Summary is reported with the final flush.
type Summary struct {
	Appended int
	Flushes  int
	Elapsed  time.Duration
	FPS      float64
}

// Policy is the consumer's checkpoint state. It is owned by a single
// goroutine and is not safe for concurrent use.
type Policy struct {
	interval int
	total    int
	stride   int
	now      func() time.Time

	appended    int
	unsaved     int
	flushes     int
	start       time.Time
	windowStart time.Time
}

// New creates a Policy for a video of total frames sampled every stride
// frames. A nil clock uses time.Now.
func New(interval, total, stride int, clock func() time.Time) *Policy {
	if interval < 1 {
		interval = DefaultInterval
	}
	if stride < 1 {
		stride = 1
	}
	if clock == nil {
		clock = time.Now
	}
	start := clock()
	return &Policy{
		interval:    interval,
		total:       total,
		stride:      stride,
		now:         clock,
		start:       start,
		windowStart: start,
	}
}

// Record counts one analysed frame. It returns true with fresh progress
// when a partial flush is due; the unsaved count is reset at that point.
func (p *Policy) Record(frameIndex int) (Progress, bool) {
	p.appended++
	p.unsaved++
	if p.unsaved < p.interval {
		return Progress{}, false
	}

	now := p.now()
	window := p.unsaved
	p.unsaved = 0
	p.flushes++

	prog := p.progress(frameIndex, now)
	if secs := now.Sub(p.windowStart).Seconds(); secs > 0 {
		prog.WindowFPS = float64(window) / secs
	}
	p.windowStart = now
	return prog, true
}

// Snapshot returns progress for frameIndex without counting a frame or
// resetting any window. It is used for the flush on cancellation.
func (p *Policy) Snapshot(frameIndex int) Progress {
	return p.progress(frameIndex, p.now())
}

func (p *Policy) progress(frameIndex int, now time.Time) Progress {
	elapsed := now.Sub(p.start)
	prog := Progress{
		Appended:         p.appended,
		FrameIndex:       frameIndex,
		Elapsed:          elapsed,
		RemainingSamples: float64(p.total-frameIndex) / float64(p.stride),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		prog.FPS = float64(p.appended) / secs
	}
	if prog.FPS > 0 && prog.RemainingSamples > 0 {
		prog.ETA = time.Duration(prog.RemainingSamples / prog.FPS * float64(time.Second))
	}
	return prog
}

// Unsaved returns the frames analysed since the last flush.
func (p *Policy) Unsaved() int { return p.unsaved }

// Appended returns the lifetime count of analysed frames.
func (p *Policy) Appended() int { return p.appended }

// Flushes returns the number of partial flushes so far.
func (p *Policy) Flushes() int { return p.flushes }

// Final returns the end-of-run summary.
func (p *Policy) Final() Summary {
	elapsed := p.now().Sub(p.start)
	s := Summary{
		Appended: p.appended,
		Flushes:  p.flushes,
		Elapsed:  elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.FPS = float64(p.appended) / secs
	}
	return s
}
