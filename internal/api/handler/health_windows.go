//go:build windows
// +build windows

package handler

// Deployment targets are Linux containers; Windows builds get zeroed
// resource statistics.

func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	return 0, 0, 0, 0
}

func getCPUUsage() float64 {
	return 0
}
