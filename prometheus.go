package blockbench

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "blockbench"

// PrometheusCollector exports a Metrics instance as Prometheus metrics.
// Values are read from the atomic counters at scrape time.
type PrometheusCollector struct {
	metrics *Metrics

	readOps     *prometheus.Desc
	readBytes   *prometheus.Desc
	readErrors  *prometheus.Desc
	waitCalls   *prometheus.Desc
	harvested   *prometheus.Desc
	maxInflight *prometheus.Desc
	scans       *prometheus.Desc
	scanErrors  *prometheus.Desc
	latency     *prometheus.Desc
}

// NewPrometheusCollector creates a collector for m. Register it with
// prometheus.Registerer.MustRegister.
func NewPrometheusCollector(m *Metrics) *PrometheusCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, nil)
	}
	return &PrometheusCollector{
		metrics:     m,
		readOps:     desc("reads_total", "Completed page reads."),
		readBytes:   desc("read_bytes_total", "Bytes delivered by successful page reads."),
		readErrors:  desc("read_errors_total", "Page reads that failed or came back short."),
		waitCalls:   desc("wait_rounds_total", "Submit-and-wait rounds across all workers."),
		harvested:   desc("completions_harvested_total", "Completions drained after wait rounds."),
		maxInflight: desc("inflight_max", "Largest in-flight depth observed on one ring."),
		scans:       desc("scans_total", "Scans started."),
		scanErrors:  desc("scan_errors_total", "Scans that ended with an error."),
		latency:     desc("read_latency_seconds", "Latency from read submission to completion."),
	}
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.readOps
	ch <- c.readBytes
	ch <- c.readErrors
	ch <- c.waitCalls
	ch <- c.harvested
	ch <- c.maxInflight
	ch <- c.scans
	ch <- c.scanErrors
	ch <- c.latency
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.metrics
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.readOps, m.ReadOps.Load())
	counter(c.readBytes, m.ReadBytes.Load())
	counter(c.readErrors, m.ReadErrors.Load())
	counter(c.waitCalls, m.WaitCalls.Load())
	counter(c.harvested, m.Harvested.Load())
	counter(c.scans, m.Scans.Load())
	counter(c.scanErrors, m.ScanErrors.Load())
	ch <- prometheus.MustNewConstMetric(c.maxInflight, prometheus.GaugeValue, float64(m.MaxInflight.Load()))

	buckets := make(map[float64]uint64, numLatencyBuckets)
	for i, bound := range LatencyBuckets {
		buckets[float64(bound)/1e9] = m.LatencyBuckets[i].Load()
	}
	ch <- prometheus.MustNewConstHistogram(c.latency, m.OpCount.Load(),
		float64(m.TotalLatencyNs.Load())/1e9, buckets)
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)
