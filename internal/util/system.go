package util

import (
	"os"
	"runtime"
)

// SystemInfo contains information about the host system.
type SystemInfo struct {
	Hostname    string
	NumCPU      int
	OS          string
	Arch        string
	TotalMemory uint64
	FreeMemory  uint64
}

// GetSystemInfo collects system information.
func GetSystemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	total, free := memoryStats()
	return SystemInfo{
		Hostname:    hostname,
		NumCPU:      runtime.NumCPU(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		TotalMemory: total,
		FreeMemory:  free,
	}
}

// FrameQueueBytes estimates the memory held by a full frame queue of
// width x height RGBA images.
func FrameQueueBytes(width, height, capacity int) uint64 {
	if width <= 0 || height <= 0 || capacity <= 0 {
		return 0
	}
	return uint64(width) * uint64(height) * 4 * uint64(capacity)
}
