// Package store persists sampled-frame results in SQLite.
//
// Results are buffered in memory by a Recorder and written in one
// transaction per flush. The highest stored frame index of a video is the
// resume point for the next run.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	vserrors "github.com/five82/vidsample/internal/errors"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusPartial   = "partial"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Store is a SQLite result database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// Open opens or creates the database at path. The parent directory is
// created if it doesn't exist.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, vserrors.NewStoreError("create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, vserrors.NewStoreError("open database", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, vserrors.NewStoreError("ping database", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, vserrors.NewStoreError("migrate database", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	PRAGMA journal_mode = WAL;

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		video_path TEXT NOT NULL,
		total_frames INTEGER NOT NULL DEFAULT 0,
		native_fps REAL NOT NULL DEFAULT 0,
		stride INTEGER NOT NULL DEFAULT 0,
		start_frame INTEGER NOT NULL DEFAULT 0,
		target_fps REAL NOT NULL,
		status TEXT NOT NULL,
		frames_saved INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_video_path ON runs(video_path);

	CREATE TABLE IF NOT EXISTS results (
		video_path TEXT NOT NULL,
		frame_index INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (video_path, frame_index)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInfo is a row of the runs table.
type RunInfo struct {
	ID          string
	VideoPath   string
	TotalFrames int
	NativeFPS   float64
	Stride      int
	StartFrame  int
	TargetFPS   float64
	Status      string
	FramesSaved int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeginRun records a new run for videoPath and returns its ID.
func (s *Store) BeginRun(ctx context.Context, videoPath string, targetFPS float64) (string, error) {
	id := uuid.NewString()
	now := s.now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO runs (id, video_path, target_fps, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, id, videoPath, targetFPS, StatusRunning, now, now)
	if err != nil {
		return "", vserrors.NewStoreError("begin run", err)
	}
	return id, nil
}

// FinishRun sets the final status of a run. runErr is stored for failed runs.
func (s *Store) FinishRun(ctx context.Context, runID, status string, runErr error) error {
	var msg *string
	if runErr != nil {
		m := runErr.Error()
		msg = &m
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
	UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, msg, s.now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return vserrors.NewStoreError("finish run", err)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		info             RunInfo
		runErr           sql.NullString
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT id, video_path, total_frames, native_fps, stride, start_frame, target_fps,
		status, frames_saved, error, created_at, updated_at
	FROM runs WHERE id = ?
	`, runID).Scan(&info.ID, &info.VideoPath, &info.TotalFrames, &info.NativeFPS, &info.Stride,
		&info.StartFrame, &info.TargetFPS, &info.Status, &info.FramesSaved, &runErr, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vserrors.NewStoreError(fmt.Sprintf("run %s not found", runID), err)
	}
	if err != nil {
		return nil, vserrors.NewStoreError("load run", err)
	}

	info.Error = runErr.String
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &info, nil
}

// LastProcessedFrame returns the highest stored frame index for videoPath.
// ok is false when nothing has been stored for the video yet.
func (s *Store) LastProcessedFrame(ctx context.Context, videoPath string) (index int, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(frame_index) FROM results WHERE video_path = ?`, videoPath).Scan(&last)
	if err != nil {
		return 0, false, vserrors.NewStoreError("query last frame", err)
	}
	if !last.Valid {
		return 0, false, nil
	}
	return int(last.Int64), true, nil
}

// ResumeFirstFrame returns the first-frame argument that resumes videoPath:
// the negated last stored index, or 0 for a fresh start.
//
// Frame 0 cannot be expressed as a negative index, so a video whose only
// stored frame is 0 restarts from the beginning and overwrites it.
func (s *Store) ResumeFirstFrame(ctx context.Context, videoPath string) (int, error) {
	last, ok, err := s.LastProcessedFrame(ctx, videoPath)
	if err != nil || !ok {
		return 0, err
	}
	return -last, nil
}

// Row is one stored result.
type Row struct {
	FrameIndex int
	RunID      string
	Payload    string
}

// Results returns the stored results for videoPath in frame order.
func (s *Store) Results(ctx context.Context, videoPath string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT frame_index, run_id, payload FROM results
	WHERE video_path = ? ORDER BY frame_index
	`, videoPath)
	if err != nil {
		return nil, vserrors.NewStoreError("query results", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.FrameIndex, &r.RunID, &r.Payload); err != nil {
			return nil, vserrors.NewStoreError("scan result", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, vserrors.NewStoreError("iterate results", err)
	}
	return out, nil
}

type pendingRow struct {
	frameIndex int
	payload    string
}

// saveBatch writes rows and updates the run in one transaction.
func (s *Store) saveBatch(ctx context.Context, run runUpdate, rows []pendingRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().Format(time.RFC3339Nano)

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO results (video_path, frame_index, run_id, payload, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(video_path, frame_index) DO UPDATE SET
		run_id = excluded.run_id,
		payload = excluded.payload,
		created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, run.videoPath, r.frameIndex, run.id, r.payload, now); err != nil {
			return fmt.Errorf("insert frame %d: %w", r.frameIndex, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE runs SET
		total_frames = ?, native_fps = ?, stride = ?, start_frame = ?,
		status = ?, frames_saved = frames_saved + ?, updated_at = ?
	WHERE id = ?
	`, run.totalFrames, run.nativeFPS, run.stride, run.startFrame,
		run.status, len(rows), now, run.id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	return tx.Commit()
}

type runUpdate struct {
	id          string
	videoPath   string
	totalFrames int
	nativeFPS   float64
	stride      int
	startFrame  int
	status      string
}
