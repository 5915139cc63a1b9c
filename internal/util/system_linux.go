//go:build linux

package util

import "golang.org/x/sys/unix"

// memoryStats returns total and free RAM in bytes, or zeros when unavailable.
func memoryStats() (total, free uint64) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(info.Totalram) * unit, uint64(info.Freeram) * unit
}
