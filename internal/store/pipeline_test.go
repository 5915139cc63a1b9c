package store

import (
	"context"
	"image"
	"testing"

	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/pipeline"
	"github.com/five82/vidsample/internal/source/sourcetest"
)

func runPipeline(t *testing.T, s *Store, path string, frames int, first int) pipeline.Result {
	t.Helper()
	ctx := context.Background()

	runID, err := s.BeginRun(ctx, path, 10)
	if err != nil {
		t.Fatal(err)
	}
	rec := NewRecorder[int](ctx, s, runID)

	opts := pipeline.DefaultOptions()
	opts.TargetFPS = 10
	opts.FirstFrame = first
	opts.CheckpointInterval = 5
	opts.RunID = runID
	opts.Logger = logging.Discard()

	analyzer := pipeline.AnalyzerFunc[int](func(img image.Image) (int, error) {
		return sourcetest.FrameIndex(img), nil
	})

	p, err := pipeline.New[int](path, sourcetest.New(frames, 30), analyzer, rec, rec, opts)
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	res, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res
}

func TestPipelineResume(t *testing.T) {
	s := openTestStore(t)

	res := runPipeline(t, s, "/v.mp4", 30, 0)
	if res.Sampled != 10 {
		t.Fatalf("first run sampled %d frames, want 10", res.Sampled)
	}

	last, ok, err := s.LastProcessedFrame(context.Background(), "/v.mp4")
	if err != nil || !ok || last != 27 {
		t.Fatalf("LastProcessedFrame() = %d, %v, %v; want 27, true, nil", last, ok, err)
	}

	// Resuming at the last stored frame on a longer file continues after it.
	first, err := s.ResumeFirstFrame(context.Background(), "/v.mp4")
	if err != nil {
		t.Fatal(err)
	}
	res = runPipeline(t, s, "/v.mp4", 40, first)
	if res.Sampled != 4 {
		t.Errorf("resumed run sampled %d frames, want 4", res.Sampled)
	}

	rows, err := s.Results(context.Background(), "/v.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 14 {
		t.Fatalf("Results() = %d rows, want 14", len(rows))
	}
	for i, r := range rows {
		if r.FrameIndex != i*3 {
			t.Errorf("rows[%d].FrameIndex = %d, want %d", i, r.FrameIndex, i*3)
		}
	}
}
