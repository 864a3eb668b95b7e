package blockbench

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-blockbench/internal/interfaces"
)

// LatencyBuckets defines the read latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks read statistics across every worker of every scan
type Metrics struct {
	// Read counters
	ReadOps    atomic.Uint64 // Completed reads, successful or not
	ReadBytes  atomic.Uint64 // Bytes delivered by successful reads
	ReadErrors atomic.Uint64 // Negative or short results

	// Wait rounds
	WaitCalls atomic.Uint64 // SubmitAndWait rounds
	Harvested atomic.Uint64 // Completions drained across all rounds

	// In-flight depth sampled after each wait round
	InflightTotal atomic.Uint64
	InflightCount atomic.Uint64
	MaxInflight   atomic.Uint32

	// Scan outcomes
	Scans      atomic.Uint64
	ScanErrors atomic.Uint64

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative read latency in nanoseconds
	OpCount        atomic.Uint64 // Reads with a recorded latency

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of reads with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records one completed read
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWait records one wait round and the completions it harvested
func (m *Metrics) RecordWait(harvested uint32) {
	m.WaitCalls.Add(1)
	m.Harvested.Add(uint64(harvested))
}

// RecordInflight records the in-flight depth after a wait round
func (m *Metrics) RecordInflight(depth uint32) {
	m.InflightTotal.Add(uint64(depth))
	m.InflightCount.Add(1)

	for {
		current := m.MaxInflight.Load()
		if depth <= current {
			break
		}
		if m.MaxInflight.CompareAndSwap(current, depth) {
			break
		}
	}
}

// RecordScan records the outcome of one scan
func (m *Metrics) RecordScan(success bool) {
	m.Scans.Add(1)
	if !success {
		m.ScanErrors.Add(1)
	}
}

// recordLatency records read latency and updates histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop freezes the uptime used for rate calculations
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived rates
type MetricsSnapshot struct {
	ReadOps    uint64
	ReadBytes  uint64
	ReadErrors uint64

	WaitCalls        uint64
	AvgHarvested     float64 // completions per wait round
	AvgInflight      float64
	MaxInflight      uint32
	Scans            uint64
	ScanErrors       uint64
	AvgLatencyNs     uint64
	UptimeNs         uint64
	LatencyP50Ns     uint64
	LatencyP99Ns     uint64
	LatencyP999Ns    uint64
	LatencyHistogram [numLatencyBuckets]uint64

	ReadIOPS      float64
	ReadBandwidth float64 // bytes per second
	ErrorRate     float64 // percentage of failed reads
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:     m.ReadOps.Load(),
		ReadBytes:   m.ReadBytes.Load(),
		ReadErrors:  m.ReadErrors.Load(),
		WaitCalls:   m.WaitCalls.Load(),
		MaxInflight: m.MaxInflight.Load(),
		Scans:       m.Scans.Load(),
		ScanErrors:  m.ScanErrors.Load(),
	}

	if snap.WaitCalls > 0 {
		snap.AvgHarvested = float64(m.Harvested.Load()) / float64(snap.WaitCalls)
	}
	if n := m.InflightCount.Load(); n > 0 {
		snap.AvgInflight = float64(m.InflightTotal.Load()) / float64(n)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadIOPS = float64(snap.ReadOps) / uptimeSeconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / uptimeSeconds
	}

	if snap.ReadOps > 0 {
		snap.ErrorRate = float64(snap.ReadErrors) / float64(snap.ReadOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all counters and restarts the uptime clock
func (m *Metrics) Reset() {
	m.ReadOps.Store(0)
	m.ReadBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WaitCalls.Store(0)
	m.Harvested.Store(0)
	m.InflightTotal.Store(0)
	m.InflightCount.Store(0)
	m.MaxInflight.Store(0)
	m.Scans.Store(0)
	m.ScanErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer receives per-read statistics from scan workers
type Observer = interfaces.Observer

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver = interfaces.NoOpObserver

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWait(harvested uint32) {
	o.metrics.RecordWait(harvested)
}

func (o *MetricsObserver) ObserveInflight(depth uint32) {
	o.metrics.RecordInflight(depth)
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
