package interfaces

import (
	"context"
	"time"
)

// Strategy is one way of scanning the fixture. Every strategy reads the
// first byte of each block and folds it into a wrapping sum, so reports
// from different strategies are comparable.
type Strategy interface {
	// Name is the stable identifier used on the command line
	Name() string

	// Run performs one full scan. Each call builds and tears down its own
	// file handles and rings.
	Run(ctx context.Context) (Report, error)
}

// Report describes one completed scan
type Report struct {
	Strategy string
	Checksum uint64
	Blocks   uint64        // blocks sampled
	Bytes    uint64        // bytes transferred from the file
	Workers  int           // concurrent readers used
	Elapsed  time.Duration // wall-clock time of the scan
}

// Throughput returns bytes transferred per second
func (r Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds()
}

// IOPS returns blocks sampled per second
func (r Report) IOPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Blocks) / r.Elapsed.Seconds()
}
