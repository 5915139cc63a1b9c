package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/pipeline"
)

// Recorder buffers detections of type D and writes them to the store on
// every Persist call. It is both the result sink and the persister of a run.
type Recorder[D any] struct {
	store   *Store
	runID   string
	ctx     context.Context
	mu      sync.Mutex
	pending []pendingRow
	saved   int
}

// NewRecorder returns a Recorder writing under runID. ctx supplies values
// to the database calls made from Persist; its cancellation is ignored so
// the last flush of a cancelled run still lands.
func NewRecorder[D any](ctx context.Context, s *Store, runID string) *Recorder[D] {
	return &Recorder[D]{store: s, runID: runID, ctx: ctx}
}

// Record encodes detections as JSON and buffers them.
func (r *Recorder[D]) Record(frameIndex int, detections D) error {
	payload, err := json.Marshal(detections)
	if err != nil {
		return fmt.Errorf("encode detections for frame %d: %w", frameIndex, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, pendingRow{frameIndex: frameIndex, payload: string(payload)})
	return nil
}

// Persist writes all buffered results. Calling it again with nothing
// buffered only refreshes the run row.
func (r *Recorder[D]) Persist(meta pipeline.VideoMeta, partial bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := StatusComplete
	if partial {
		status = StatusPartial
	}

	// Cancellation of the run context must not lose the last flush.
	ctx := context.WithoutCancel(r.ctx)
	err := r.store.saveBatch(ctx, runUpdate{
		id:          r.runID,
		videoPath:   meta.Path,
		totalFrames: meta.TotalFrames,
		nativeFPS:   meta.NativeFPS,
		stride:      meta.Stride,
		startFrame:  meta.StartFrame,
		status:      status,
	}, r.pending)
	if err != nil {
		return vserrors.NewStoreError(fmt.Sprintf("persist %d results", len(r.pending)), err)
	}

	r.saved += len(r.pending)
	r.pending = r.pending[:0]
	return nil
}

// Pending returns the number of results not yet persisted.
func (r *Recorder[D]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Saved returns the number of results persisted by this recorder.
func (r *Recorder[D]) Saved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}
