package pipeline

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/reporter"
	"github.com/five82/vidsample/internal/source/sourcetest"
)

// recorder collects everything the callbacks see.
type recorder struct {
	mu       sync.Mutex
	analysed []int
	recorded []int
	flushes  []bool
	metas    []VideoMeta
}

func (r *recorder) analyzer() Analyzer[int] {
	return AnalyzerFunc[int](func(img image.Image) (int, error) {
		idx := sourcetest.FrameIndex(img)
		r.mu.Lock()
		r.analysed = append(r.analysed, idx)
		r.mu.Unlock()
		return idx * 10, nil
	})
}

func (r *recorder) sink() ResultSink[int] {
	return ResultSinkFunc[int](func(frameIndex, detections int) error {
		if detections != frameIndex*10 {
			return errors.New("detections do not match frame")
		}
		r.mu.Lock()
		r.recorded = append(r.recorded, frameIndex)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) persister() Persister {
	return PersisterFunc(func(meta VideoMeta, partial bool) error {
		r.mu.Lock()
		r.flushes = append(r.flushes, partial)
		r.metas = append(r.metas, meta)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) counts() (partial, final int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.flushes {
		if p {
			partial++
		} else {
			final++
		}
	}
	return partial, final
}

// eventReporter keeps checkpoint and completion events.
type eventReporter struct {
	reporter.NullReporter
	mu          sync.Mutex
	checkpoints []reporter.CheckpointSnapshot
	plans       []reporter.SamplingPlan
	outcomes    []reporter.RunOutcome
	errs        []reporter.ReporterError
}

func (e *eventReporter) Checkpoint(s reporter.CheckpointSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkpoints = append(e.checkpoints, s)
}

func (e *eventReporter) SamplingStarted(p reporter.SamplingPlan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plans = append(e.plans, p)
}

func (e *eventReporter) RunComplete(o reporter.RunOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes = append(e.outcomes, o)
}

func (e *eventReporter) Error(err reporter.ReporterError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func testOptions(target float64) Options {
	opts := DefaultOptions()
	opts.TargetFPS = target
	opts.Logger = logging.Discard()
	return opts
}

func assertIncreasing(t *testing.T, name string, got []int) {
	t.Helper()
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("%s out of order at %d: %d after %d", name, i, got[i], got[i-1])
		}
	}
}

func TestRunShortVideo(t *testing.T) {
	dec := sourcetest.New(100, 30)
	rec := &recorder{}
	events := &eventReporter{}
	opts := testOptions(10)
	opts.Reporter = events

	p, err := New("synthetic.mp4", dec, rec.analyzer(), rec.sink(), rec.persister(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(rec.analysed) != 34 || len(rec.recorded) != 34 {
		t.Fatalf("analysed %d, recorded %d, want 34 each", len(rec.analysed), len(rec.recorded))
	}
	for i, idx := range rec.recorded {
		if idx != i*3 {
			t.Errorf("recorded[%d] = %d, want %d", i, idx, i*3)
		}
		if rec.analysed[i] != idx {
			t.Errorf("analysed[%d] = %d, recorded %d", i, rec.analysed[i], idx)
		}
	}

	partial, final := rec.counts()
	if partial != 0 || final != 1 {
		t.Errorf("flushes partial=%d final=%d, want 0 and 1", partial, final)
	}
	if res.Sampled != 34 || res.Flushes != 0 {
		t.Errorf("Result = %+v, want 34 sampled and 0 flushes", res)
	}
	if !dec.Closed() {
		t.Error("decoder not closed after Run")
	}

	meta := rec.metas[0]
	if meta.TotalFrames != 100 || meta.Stride != 3 || meta.NativeFPS != 30 || meta.Path != "synthetic.mp4" {
		t.Errorf("VideoMeta = %+v", meta)
	}
	if len(events.plans) != 1 || events.plans[0].ExpectedSamples != 34 {
		t.Errorf("SamplingStarted events = %+v", events.plans)
	}
	if len(events.outcomes) != 1 || events.outcomes[0].Sampled != 34 {
		t.Errorf("RunComplete events = %+v", events.outcomes)
	}
}

func TestRunCheckpointsEvery500(t *testing.T) {
	dec := sourcetest.New(2000, 30)
	rec := &recorder{}
	events := &eventReporter{}
	opts := testOptions(30)
	opts.Reporter = events

	p, err := New("long.mp4", dec, rec.analyzer(), rec.sink(), rec.persister(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(rec.recorded) != 2000 {
		t.Fatalf("recorded %d frames, want 2000", len(rec.recorded))
	}
	assertIncreasing(t, "recorded", rec.recorded)

	partial, final := rec.counts()
	if partial != 4 || final != 1 {
		t.Errorf("flushes partial=%d final=%d, want 4 and 1", partial, final)
	}
	if last := rec.flushes[len(rec.flushes)-1]; last {
		t.Error("last flush was partial, want final")
	}
	if res.Flushes != 4 {
		t.Errorf("Result.Flushes = %d, want 4", res.Flushes)
	}

	// Four partial checkpoints with rising counts, then the final one.
	if len(events.checkpoints) != 5 {
		t.Fatalf("checkpoint events = %d, want 5", len(events.checkpoints))
	}
	for i, cp := range events.checkpoints[:4] {
		if !cp.Partial || cp.Appended != (i+1)*500 {
			t.Errorf("checkpoint %d = %+v, want partial at %d", i, cp, (i+1)*500)
		}
	}
	if events.checkpoints[4].Partial {
		t.Error("final checkpoint event marked partial")
	}
}

func TestRunThroughputFromClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := now
		now = now.Add(100 * time.Millisecond)
		return cur
	}

	rec := &recorder{}
	events := &eventReporter{}
	opts := testOptions(30)
	opts.Reporter = events
	opts.Clock = clock

	p, err := New("clocked.mp4", sourcetest.New(1000, 30), rec.analyzer(), rec.sink(), rec.persister(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Clock reads: start, flush at 500, flush at 1000, then final ones.
	first := events.checkpoints[0]
	if math.Abs(first.FPS-5000) > 1e-6 {
		t.Errorf("first checkpoint FPS = %v, want 5000", first.FPS)
	}
	if first.RemainingSamples != 501 {
		t.Errorf("first checkpoint RemainingSamples = %v, want 501", first.RemainingSamples)
	}
	if first.ETA <= 0 {
		t.Errorf("first checkpoint ETA = %v, want positive", first.ETA)
	}
}

func TestRunResume(t *testing.T) {
	rec := &recorder{}
	opts := testOptions(10)
	opts.FirstFrame = -90

	p, err := New("resume.mp4", sourcetest.New(100, 30), rec.analyzer(), rec.sink(), rec.persister(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []int{93, 96, 99}
	if len(rec.recorded) != len(want) {
		t.Fatalf("recorded %v, want %v", rec.recorded, want)
	}
	for i := range want {
		if rec.recorded[i] != want[i] {
			t.Fatalf("recorded %v, want %v", rec.recorded, want)
		}
	}
	if p.Meta().StartFrame != 93 {
		t.Errorf("Meta().StartFrame = %d, want 93", p.Meta().StartFrame)
	}
}

func TestRunDecodeFailureEndsStream(t *testing.T) {
	dec := sourcetest.New(100, 30)
	dec.FailAt = 40
	rec := &recorder{}
	events := &eventReporter{}
	opts := testOptions(10)
	opts.Reporter = events

	p, err := New("glitch.mp4", dec, rec.analyzer(), rec.sink(), rec.persister(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want decode failure treated as end of stream", err)
	}
	if len(rec.recorded) != 14 {
		t.Errorf("recorded %d frames, want 14", len(rec.recorded))
	}
	if _, final := rec.counts(); final != 1 {
		t.Errorf("final flushes = %d, want 1", final)
	}
	if res.StopReason == nil {
		t.Error("StopReason = nil, want decode failure")
	}
	if len(events.outcomes) != 1 || events.outcomes[0].StopReason == "" {
		t.Errorf("RunComplete should carry the stop reason, got %+v", events.outcomes)
	}
}

func TestRunCallbackFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		analyzer  Analyzer[int]
		sink      ResultSink[int]
		persister Persister
		wantStage vserrors.Stage
	}{
		{
			name: "analysis error",
			analyzer: AnalyzerFunc[int](func(img image.Image) (int, error) {
				if sourcetest.FrameIndex(img) == 30 {
					return 0, boom
				}
				return 0, nil
			}),
			wantStage: vserrors.StageAnalyze,
		},
		{
			name: "analysis panic",
			analyzer: AnalyzerFunc[int](func(img image.Image) (int, error) {
				if sourcetest.FrameIndex(img) == 30 {
					panic("analyzer exploded")
				}
				return 0, nil
			}),
			wantStage: vserrors.StageAnalyze,
		},
		{
			name: "record error",
			sink: ResultSinkFunc[int](func(frameIndex, _ int) error {
				if frameIndex == 30 {
					return boom
				}
				return nil
			}),
			wantStage: vserrors.StageRecord,
		},
		{
			name: "final persist error",
			persister: PersisterFunc(func(_ VideoMeta, partial bool) error {
				if !partial {
					return boom
				}
				return nil
			}),
			wantStage: vserrors.StagePersist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			analyzer, sink, persister := rec.analyzer(), rec.sink(), rec.persister()
			if tt.analyzer != nil {
				analyzer = tt.analyzer
			}
			if tt.sink != nil {
				sink = ResultSinkFunc[int](func(i, d int) error { return tt.sink.Record(i, d) })
			} else if tt.analyzer != nil {
				sink = ResultSinkFunc[int](func(int, int) error { return nil })
			}
			if tt.persister != nil {
				persister = tt.persister
			}

			dec := sourcetest.New(300, 30)
			events := &eventReporter{}
			opts := testOptions(10)
			opts.Reporter = events

			p, err := New("fail.mp4", dec, analyzer, sink, persister, opts)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			done := make(chan error, 1)
			go func() {
				_, err := p.Run(context.Background())
				done <- err
			}()

			select {
			case err = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Run() did not return after callback failure")
			}

			if !vserrors.IsKind(err, vserrors.KindCallback) {
				t.Fatalf("Run() error = %v, want KindCallback", err)
			}
			cb, ok := vserrors.AsCallback(err)
			if !ok {
				t.Fatalf("Run() error = %v, want CallbackError", err)
			}
			if cb.Stage != tt.wantStage {
				t.Errorf("Stage = %s, want %s", cb.Stage, tt.wantStage)
			}
			if cb.Stack == "" {
				t.Error("CallbackError has no stack")
			}
			if tt.wantStage != vserrors.StagePersist && cb.FrameIndex != 30 {
				t.Errorf("FrameIndex = %d, want 30", cb.FrameIndex)
			}
			if !dec.Closed() {
				t.Error("decoder not closed after failure")
			}
			if len(events.errs) != 1 {
				t.Errorf("reported %d errors, want exactly 1", len(events.errs))
			}
		})
	}
}

func TestRunCancelFlushesPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		analysed int
		flushes  []bool
	)
	analyzer := AnalyzerFunc[int](func(image.Image) (int, error) {
		mu.Lock()
		analysed++
		n := analysed
		mu.Unlock()
		if n == 10 {
			cancel()
		}
		return 0, nil
	})
	sink := ResultSinkFunc[int](func(int, int) error { return nil })
	persister := PersisterFunc(func(_ VideoMeta, partial bool) error {
		mu.Lock()
		flushes = append(flushes, partial)
		mu.Unlock()
		return nil
	})

	p, err := New("cancel.mp4", sourcetest.New(5000, 30), analyzer, sink, persister, testOptions(30))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Run(ctx)
	if !vserrors.IsCancelled(err) {
		t.Fatalf("Run() error = %v, want cancelled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flushes) != 1 || !flushes[0] {
		t.Errorf("flushes = %v, want one partial flush", flushes)
	}
}

func TestRunStopsAnalysingOnceCancelled(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())

		var analysed int
		analyzer := AnalyzerFunc[int](func(image.Image) (int, error) {
			analysed++
			if analysed == 3 {
				cancel()
			}
			return 0, nil
		})
		sink := ResultSinkFunc[int](func(int, int) error { return nil })
		persister := PersisterFunc(func(VideoMeta, bool) error { return nil })

		opts := testOptions(30)
		opts.QueueCapacity = 20
		p, err := New("cancel.mp4", sourcetest.New(1000, 30), analyzer, sink, persister, opts)
		if err != nil {
			cancel()
			t.Fatalf("New() error = %v", err)
		}
		_, err = p.Run(ctx)
		cancel()
		if !vserrors.IsCancelled(err) {
			t.Fatalf("Run() error = %v, want cancelled", err)
		}
		if analysed != 3 {
			t.Fatalf("iteration %d: analysed %d frames, want 3", i, analysed)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	rec := &recorder{}

	dec := sourcetest.New(10, 0)
	_, err := New("nofps.mp4", dec, rec.analyzer(), rec.sink(), rec.persister(), testOptions(8))
	if !vserrors.IsOpen(err) {
		t.Errorf("New() with zero fps error = %v, want open error", err)
	}
	if !dec.Closed() {
		t.Error("decoder not closed after failed New")
	}

	_, err = New("bad.mp4", sourcetest.New(10, 30), rec.analyzer(), rec.sink(), rec.persister(), testOptions(0))
	if !vserrors.IsKind(err, vserrors.KindConfig) {
		t.Errorf("New() with zero target error = %v, want config error", err)
	}

	_, err = New[int]("nil.mp4", sourcetest.New(10, 30), nil, rec.sink(), rec.persister(), testOptions(8))
	if !vserrors.IsKind(err, vserrors.KindConfig) {
		t.Errorf("New() with nil analyzer error = %v, want config error", err)
	}
}

func TestRunQueueCapacityBoundsInFlight(t *testing.T) {
	dec := sourcetest.New(200, 30)
	opts := testOptions(30)
	opts.QueueCapacity = 3

	release := make(chan struct{})
	analyzer := AnalyzerFunc[int](func(image.Image) (int, error) {
		<-release
		return 0, nil
	})
	sink := ResultSinkFunc[int](func(int, int) error { return nil })
	persister := PersisterFunc(func(VideoMeta, bool) error { return nil })

	p, err := New("bounded.mp4", dec, analyzer, sink, persister, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()

	// With the consumer stuck on its first frame the producer can decode at
	// most one frame for the consumer, three queued, and one blocked on push.
	time.Sleep(100 * time.Millisecond)
	if reads := dec.Reads(); reads > 5 {
		t.Errorf("decoded %d frames while consumer blocked, want at most 5", reads)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if dec.Reads() != 200 {
		t.Errorf("decoded %d frames, want 200", dec.Reads())
	}
}
