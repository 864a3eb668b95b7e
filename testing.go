package blockbench

import (
	"sync"

	"github.com/ehrlich-b/go-blockbench/internal/fixture"
)

// WriteTestFixture writes a size-byte pattern fixture at path. Every
// correct scan of it reports ExpectedChecksum.
func WriteTestFixture(path string, size uint64) error {
	return fixture.Create(path, size)
}

// ExpectedChecksum returns the checksum a scan of a pattern fixture must
// report for params
func ExpectedChecksum(params ScanParams) (uint64, error) {
	geo, err := params.Geometry()
	if err != nil {
		return 0, err
	}
	return fixture.PatternChecksum(geo), nil
}

// TestScanParams returns parameters for scanning a small fixture without a
// kernel ring. size must be a multiple of 64 KiB.
func TestScanParams(path string, size uint64) ScanParams {
	p := DefaultScanParams(path)
	p.TotalBytes = size
	p.Workers = 4
	p.WindowCapacity = 64
	p.BatchWait = 16
	p.RingEntries = 64
	p.Engine = EngineEmulated
	return p
}

// RecordingObserver is an Observer that tracks every call for verification
// in tests
type RecordingObserver struct {
	mu          sync.Mutex
	reads       int
	failed      int
	bytes       uint64
	waits       int
	harvested   uint64
	maxInflight uint32
}

// NewRecordingObserver creates an empty recording observer
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

// ObserveRead implements Observer
func (o *RecordingObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads++
	if !success {
		o.failed++
		return
	}
	o.bytes += bytes
}

// ObserveWait implements Observer
func (o *RecordingObserver) ObserveWait(harvested uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waits++
	o.harvested += uint64(harvested)
}

// ObserveInflight implements Observer
func (o *RecordingObserver) ObserveInflight(depth uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if depth > o.maxInflight {
		o.maxInflight = depth
	}
}

// Reads returns the number of reads observed and how many failed
func (o *RecordingObserver) Reads() (total, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reads, o.failed
}

// Bytes returns the bytes delivered by successful reads
func (o *RecordingObserver) Bytes() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bytes
}

// Waits returns the number of wait rounds and the completions they harvested
func (o *RecordingObserver) Waits() (rounds int, harvested uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.waits, o.harvested
}

// MaxInflight returns the deepest in-flight count reported after a wait
func (o *RecordingObserver) MaxInflight() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxInflight
}

var _ Observer = (*RecordingObserver)(nil)
