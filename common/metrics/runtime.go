package metrics

import (
	"context"
	"runtime"
	"sync"
)

// SystemInfo is the host fingerprint logged once at worker startup so
// throughput numbers can be read against the hardware that produced them
type SystemInfo struct {
	OS               string `json:"os"`
	OSVersion        string `json:"os_version,omitempty"`
	Arch             string `json:"arch"`
	Hostname         string `json:"hostname"`
	CPULogical       int    `json:"cpu_logical"`
	TotalMemoryMB    uint64 `json:"total_memory_mb,omitempty"`
	GoVersion        string `json:"go_version"`
	InContainer      bool   `json:"in_container"`
	ContainerRuntime string `json:"container_runtime,omitempty"`
}

var (
	systemInfo     *SystemInfo
	systemInfoOnce sync.Once
)

// GetSystemInfo returns the cached host fingerprint, captured once
func GetSystemInfo() *SystemInfo {
	systemInfoOnce.Do(func() {
		systemInfo = captureSystemInfo()
	})
	return systemInfo
}

// Fields flattens the fingerprint into log key-value pairs
func (si *SystemInfo) Fields() []interface{} {
	fields := []interface{}{
		"host", si.Hostname,
		"os", si.OS,
		"arch", si.Arch,
		"cpus", si.CPULogical,
		"go", si.GoVersion,
	}
	if si.OSVersion != "" {
		fields = append(fields, "os_version", si.OSVersion)
	}
	if si.TotalMemoryMB > 0 {
		fields = append(fields, "memory_mb", si.TotalMemoryMB)
	}
	if si.InContainer {
		fields = append(fields, "container", si.ContainerRuntime)
	}
	return fields
}

// RuntimeMetrics captures memory and goroutine counts around one job
type RuntimeMetrics struct {
	MemoryStartMB  float64
	MemoryPeakMB   float64
	MemoryEndMB    float64
	GoroutineStart int
	GoroutineEnd   int
}

// CaptureStart captures runtime metrics at the beginning of a job.
// Context is provided for future extensions (tracing, cancellation).
func CaptureStart(ctx context.Context) *RuntimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &RuntimeMetrics{
		MemoryStartMB:  float64(m.Alloc) / 1024 / 1024,
		GoroutineStart: runtime.NumGoroutine(),
	}
}

// Finalize completes the capture at the end of a job
func (rm *RuntimeMetrics) Finalize(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	rm.MemoryEndMB = float64(m.Alloc) / 1024 / 1024
	rm.GoroutineEnd = runtime.NumGoroutine()

	// Peak is the higher of start or end; fine for single-job spans
	if rm.MemoryEndMB > rm.MemoryStartMB {
		rm.MemoryPeakMB = rm.MemoryEndMB
	} else {
		rm.MemoryPeakMB = rm.MemoryStartMB
	}
}

// Fields flattens the metrics into log key-value pairs
func (rm *RuntimeMetrics) Fields() []interface{} {
	return []interface{}{
		"memory_start_mb", rm.MemoryStartMB,
		"memory_peak_mb", rm.MemoryPeakMB,
		"memory_end_mb", rm.MemoryEndMB,
		"goroutines_start", rm.GoroutineStart,
		"goroutines_end", rm.GoroutineEnd,
	}
}
