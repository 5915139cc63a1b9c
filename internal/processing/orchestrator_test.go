package processing

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"

	"github.com/five82/vidsample/internal/config"
	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/ffprobe"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/pipeline"
	"github.com/five82/vidsample/internal/reporter"
	"github.com/five82/vidsample/internal/source"
	"github.com/five82/vidsample/internal/source/sourcetest"
	"github.com/five82/vidsample/internal/store"
)

type batchReporter struct {
	reporter.NullReporter
	mu       sync.Mutex
	inits    []reporter.InitializationSummary
	warnings []string
	errs     []reporter.ReporterError
	batches  []reporter.BatchSummary
	done     []string
}

func (r *batchReporter) Initialization(s reporter.InitializationSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits = append(r.inits, s)
}

func (r *batchReporter) Warning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

func (r *batchReporter) Error(e reporter.ReporterError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func (r *batchReporter) BatchComplete(s reporter.BatchSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, s)
}

func (r *batchReporter) OperationComplete(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, msg)
}

var indexAnalyzer = pipeline.AnalyzerFunc[int](func(img image.Image) (int, error) {
	return sourcetest.FrameIndex(img), nil
})

// fakeOpen serves in-memory videos by path; unknown paths fail to open.
func fakeOpen(frames map[string]int) OpenFunc {
	return func(path string) (source.Decoder, error) {
		n, ok := frames[path]
		if !ok {
			return nil, vserrors.NewOpenError(path, errors.New("no such video"))
		}
		return sourcetest.New(n, 30), nil
	}
}

func fakeProbe(_ context.Context, path string) (*ffprobe.VideoProbe, error) {
	return &ffprobe.VideoProbe{Codec: "h264", Width: 64, Height: 36, FrameRate: 30, DurationSecs: 1}, nil
}

func testOptions(t *testing.T, frames map[string]int, rep reporter.Reporter) Options {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.NewConfig("", t.TempDir(), "")
	cfg.TargetFPS = 10
	cfg.CheckpointInterval = 4

	return Options{
		Config:   cfg,
		Store:    st,
		Open:     fakeOpen(frames),
		Probe:    fakeProbe,
		Reporter: rep,
		Logger:   logging.Discard(),
	}
}

func TestProcessVideosBatch(t *testing.T) {
	rep := &batchReporter{}
	opts := testOptions(t, map[string]int{"/a.mp4": 30, "/c.mp4": 60}, rep)

	results, err := ProcessVideos[int](context.Background(), opts, indexAnalyzer,
		[]string{"/a.mp4", "/missing.mp4", "/c.mp4"})
	if err != nil {
		t.Fatalf("ProcessVideos() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	wantSampled := []int{10, 0, 20}
	for i, r := range results {
		if r.Sampled != wantSampled[i] {
			t.Errorf("results[%d].Sampled = %d, want %d", i, r.Sampled, wantSampled[i])
		}
	}
	if !vserrors.IsOpen(results[1].Err) {
		t.Errorf("results[1].Err = %v, want open error", results[1].Err)
	}
	if results[0].RunID == "" || results[0].RunID == results[2].RunID {
		t.Errorf("run IDs = %q, %q; want distinct non-empty", results[0].RunID, results[2].RunID)
	}

	if len(rep.errs) != 1 || rep.errs[0].Title != "Open Error" {
		t.Errorf("errors = %+v, want one open error", rep.errs)
	}
	if len(rep.batches) != 1 {
		t.Fatalf("got %d batch summaries, want 1", len(rep.batches))
	}
	b := rep.batches[0]
	if b.SuccessfulCount != 2 || b.TotalFiles != 3 || b.TotalSampled != 30 {
		t.Errorf("batch summary = %+v, want 2/3 successful, 30 sampled", b)
	}
	if len(rep.inits) != 2 || rep.inits[0].Resolution != "64x36" || rep.inits[0].Codec != "h264" {
		t.Errorf("initialization summaries = %+v", rep.inits)
	}

	rows, err := opts.Store.Results(context.Background(), "/c.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 20 {
		t.Errorf("stored %d rows for /c.mp4, want 20", len(rows))
	}

	run, err := opts.Store.GetRun(context.Background(), results[2].RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != store.StatusComplete {
		t.Errorf("run status = %q, want %q", run.Status, store.StatusComplete)
	}
}

func TestProcessVideosResume(t *testing.T) {
	frames := map[string]int{"/v.mp4": 30}
	opts := testOptions(t, frames, nil)

	if _, err := ProcessVideos[int](context.Background(), opts, indexAnalyzer, []string{"/v.mp4"}); err != nil {
		t.Fatal(err)
	}

	// The video grew; resuming only samples the new tail.
	frames["/v.mp4"] = 45
	opts.Resume = true
	results, err := ProcessVideos[int](context.Background(), opts, indexAnalyzer, []string{"/v.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Sampled != 5 {
		t.Errorf("resumed Sampled = %d, want 5", results[0].Sampled)
	}

	last, ok, err := opts.Store.LastProcessedFrame(context.Background(), "/v.mp4")
	if err != nil || !ok || last != 42 {
		t.Errorf("LastProcessedFrame() = %d, %v, %v; want 42, true, nil", last, ok, err)
	}
}

func TestProcessVideosCancelled(t *testing.T) {
	rep := &batchReporter{}
	opts := testOptions(t, map[string]int{"/a.mp4": 30}, rep)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := ProcessVideos[int](ctx, opts, indexAnalyzer, []string{"/a.mp4", "/b.mp4"})
	if !vserrors.IsCancelled(err) {
		t.Errorf("ProcessVideos() error = %v, want cancelled", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if len(rep.warnings) == 0 {
		t.Error("expected a cancellation warning")
	}
}

func TestProcessVideosProbeFailure(t *testing.T) {
	rep := &batchReporter{}
	opts := testOptions(t, map[string]int{"/a.mp4": 30}, rep)
	opts.Probe = func(context.Context, string) (*ffprobe.VideoProbe, error) {
		return nil, vserrors.NewProbeError("ffprobe missing", nil)
	}

	results, err := ProcessVideos[int](context.Background(), opts, indexAnalyzer, []string{"/a.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Err != nil || results[0].Sampled != 10 {
		t.Errorf("result = %+v, want 10 sampled without error", results[0])
	}
	if len(rep.warnings) != 1 {
		t.Errorf("warnings = %v, want one probe warning", rep.warnings)
	}
	if len(rep.done) != 1 {
		t.Errorf("operation complete messages = %v, want 1", rep.done)
	}
	if rep.inits[0].Resolution != "" {
		t.Errorf("Resolution = %q, want empty without probe", rep.inits[0].Resolution)
	}
}

func TestProcessVideosRejectsBadOptions(t *testing.T) {
	opts := testOptions(t, nil, nil)
	opts.Config.TargetFPS = 0
	if _, err := ProcessVideos[int](context.Background(), opts, indexAnalyzer, []string{"/a.mp4"}); !vserrors.IsKind(err, vserrors.KindConfig) {
		t.Errorf("ProcessVideos() error = %v, want config error", err)
	}

	opts = testOptions(t, nil, nil)
	opts.Open = nil
	if _, err := ProcessVideos[int](context.Background(), opts, indexAnalyzer, nil); !vserrors.IsKind(err, vserrors.KindConfig) {
		t.Errorf("ProcessVideos() error = %v, want config error", err)
	}
}
