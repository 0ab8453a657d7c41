package executor

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nuvla/job-engine-sub001/errors"
)

const (
	memoryPerWorkerGB = 0.25 // GB per concurrently running action
	memoryBufferGB    = 1.0  // GB kept free for the rest of the host
	gb                = 1024 * 1024 * 1024
)

// memoryStats returns total and available memory in bytes.
var memoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// safeWorkerCount recommends a worker count for the available memory.
func safeWorkerCount(availableGB float64) int {
	if availableGB < memoryBufferGB {
		return 1
	}
	recommended := int((availableGB - memoryBufferGB) / memoryPerWorkerGB)
	if recommended < 1 {
		return 1
	}
	return recommended
}

// memoryPressure returns a warning when workers exceeds what available
// memory supports, or "" when it fits or memory cannot be read.
func memoryPressure(workers int) string {
	total, available, err := memoryStats()
	if err != nil || total == 0 {
		return ""
	}
	availableGB := float64(available) / gb
	totalGB := float64(total) / gb
	recommended := safeWorkerCount(availableGB)
	if workers <= recommended {
		return ""
	}
	return fmt.Sprintf(
		"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB). "+
			"Consider reducing executor.workers.",
		workers, recommended, totalGB-availableGB, totalGB)
}
