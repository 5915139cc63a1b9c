package discovery

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/logging"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFindVideoFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.mkv"))
	touch(t, filepath.Join(dir, "A.mp4"))
	touch(t, filepath.Join(dir, "c.webm"))
	touch(t, filepath.Join(dir, "readme.txt"))
	touch(t, filepath.Join(dir, ".hidden.mp4"))
	if err := os.Mkdir(filepath.Join(dir, "sub.mkv"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := FindVideoFiles(dir)
	if err != nil {
		t.Fatalf("FindVideoFiles() error = %v", err)
	}

	want := []string{"A.mp4", "b.mkv", "c.webm"}
	if len(files) != len(want) {
		t.Fatalf("FindVideoFiles() returned %d files, want %d: %v", len(files), len(want), files)
	}
	for i, name := range want {
		if filepath.Base(files[i]) != name {
			t.Errorf("files[%d] = %s, want %s", i, filepath.Base(files[i]), name)
		}
	}
}

func TestFindVideoFilesEmpty(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "notes.txt"))

	_, err := FindVideoFiles(dir)
	if !vserrors.IsNoFilesFound(err) {
		t.Errorf("FindVideoFiles() error = %v, want no files found", err)
	}
}

func TestFindVideoFilesBadInput(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x.mp4")
	touch(t, file)

	tests := []struct {
		name string
		path string
	}{
		{"missing directory", filepath.Join(dir, "missing")},
		{"file instead of directory", file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindVideoFiles(tt.path)
			if !vserrors.IsKind(err, vserrors.KindPath) {
				t.Errorf("FindVideoFiles(%q) error = %v, want KindPath", tt.path, err)
			}
		})
	}
}

func TestFindVideoFilesWithLogging(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "one.mp4"))
	touch(t, filepath.Join(dir, "skip.jpg"))

	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf, Enabled: true})

	result, err := FindVideoFilesWithLogging(dir, logger)
	if err != nil {
		t.Fatalf("FindVideoFilesWithLogging() error = %v", err)
	}
	if len(result.Files) != 1 || result.SkippedCount != 1 {
		t.Errorf("result = %+v, want 1 file and 1 skipped", result)
	}
	if !strings.Contains(buf.String(), "found video files") {
		t.Errorf("log output missing summary: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "one.mp4") {
		t.Errorf("log output missing file name: %s", buf.String())
	}
}
