// Package discovery finds video files for batch sampling runs.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/util"
)

// Result contains the outcome of a directory scan.
type Result struct {
	Files        []string
	SkippedCount int
}

// FindVideoFiles finds video files in the given directory.
// Returns files sorted alphabetically by filename, case-insensitively.
func FindVideoFiles(inputDir string) ([]string, error) {
	result, err := scan(inputDir)
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// FindVideoFilesWithLogging finds video files and logs the first few found
// plus a count summary.
func FindVideoFilesWithLogging(inputDir string, logger *logging.Logger) (*Result, error) {
	result, err := scan(inputDir)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logDiscoveredFiles(result, logger)
	}
	return result, nil
}

func scan(inputDir string) (*Result, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, vserrors.NewPathError(fmt.Sprintf("directory does not exist: %s", inputDir))
	}
	if !info.IsDir() {
		return nil, vserrors.NewPathError(fmt.Sprintf("%s is not a directory", inputDir))
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, vserrors.NewIOError(fmt.Sprintf("cannot read directory %s", inputDir), err)
	}

	result := &Result{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		fullPath := filepath.Join(inputDir, name)
		if util.IsVideoFile(fullPath) {
			result.Files = append(result.Files, fullPath)
		} else {
			result.SkippedCount++
		}
	}

	if len(result.Files) == 0 {
		return nil, vserrors.NewNoFilesFoundError(inputDir)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(result.Files[i])) < strings.ToLower(filepath.Base(result.Files[j]))
	})

	return result, nil
}

func logDiscoveredFiles(result *Result, logger *logging.Logger) {
	logger.Info("found video files", "count", len(result.Files), "skipped", result.SkippedCount)

	maxToLog := min(5, len(result.Files))
	for i := range maxToLog {
		logger.Debug("discovered", "file", filepath.Base(result.Files[i]))
	}
	if len(result.Files) > maxToLog {
		logger.Debug("discovered more", "remaining", len(result.Files)-maxToLog)
	}
}
