// Package hostinfo describes the machine a benchmark runs on
package hostinfo

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/pbnjay/memory"
)

// Info is a snapshot of the host's CPU and memory
type Info struct {
	CPU           string
	PhysicalCores int
	LogicalCores  int
	GOMAXPROCS    int
	TotalMemory   uint64 // bytes, 0 if unknown
	FreeMemory    uint64 // bytes, 0 if unknown
	OS            string
	Arch          string
}

// Collect gathers host information
func Collect() Info {
	return Info{
		CPU:           cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		TotalMemory:   memory.TotalMemory(),
		FreeMemory:    memory.FreeMemory(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
}

// String renders a one-line banner
func (i Info) String() string {
	cpu := i.CPU
	if cpu == "" {
		cpu = "unknown cpu"
	}
	return fmt.Sprintf("%s (%d cores / %d threads, GOMAXPROCS=%d), %s RAM, %s/%s",
		cpu, i.PhysicalCores, i.LogicalCores, i.GOMAXPROCS, FormatSize(i.TotalMemory), i.OS, i.Arch)
}

// FitsInPageCache reports whether a file of size bytes could be served
// entirely from memory, which makes random-read numbers meaningless
func (i Info) FitsInPageCache(size uint64) bool {
	return i.TotalMemory > 0 && size <= i.TotalMemory
}

// FormatSize renders bytes with a binary suffix
func FormatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(bytes)/float64(div), "KMGTP"[exp])
}
