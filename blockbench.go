// Package blockbench measures how fast a large file can be sampled one page
// per block under different I/O strategies. The core is Scan: a sharded,
// pipelined io_uring reader that keeps a fixed window of page reads in
// flight per worker.
package blockbench

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/constants"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/interfaces"
	"github.com/ehrlich-b/go-blockbench/internal/logging"
	"github.com/ehrlich-b/go-blockbench/internal/queue"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
)

// AccessPattern maps a cursor index to a block number
type AccessPattern = blocks.AccessPattern

// SequentialPattern visits blocks in file order
func SequentialPattern() AccessPattern { return blocks.SequentialPattern() }

// StridedPattern visits block (i*m) mod N for index i. m must be coprime
// with the block count.
func StridedPattern(m uint64) AccessPattern { return blocks.StridedPattern(m) }

// ParsePattern resolves "sequential" or "strided"
func ParsePattern(name string, multiplier uint64) (AccessPattern, error) {
	return blocks.ParsePattern(name, multiplier)
}

// Engine selects the ring implementation used by Scan
type Engine = uring.Engine

const (
	EngineKernel   = uring.EngineKernel
	EngineEmulated = uring.EngineEmulated
)

// Strategy and Report are shared by every scan strategy
type (
	Strategy = interfaces.Strategy
	Report   = interfaces.Report
)

// Logger is the structured logger used throughout the package
type Logger = logging.Logger

// WorkerResult is one worker's share of a scan
type WorkerResult = queue.Result

// ScanParams contains parameters for a pipelined scan
type ScanParams struct {
	// Path of the fixture file
	Path string

	// Address space
	TotalBytes   uint64 // bytes scanned (default: 10 GiB)
	BlockSize    uint64 // distance between sampled pages (default: 64 KiB)
	PageReadSize uint64 // bytes read per block (default: 4 KiB)

	// Pipelining
	Workers        int // shards, one ring each (default: 8)
	WindowCapacity int // reads in flight per worker (default: 4096)
	BatchWait      int // completions awaited per round (default: 1024)
	RingEntries    int // submission queue depth (default: 4096)

	Pattern AccessPattern
	Engine  Engine
	Direct  bool // open the fixture with O_DIRECT
}

// DefaultScanParams returns default scan parameters for path
func DefaultScanParams(path string) ScanParams {
	return ScanParams{
		Path:           path,
		TotalBytes:     constants.DefaultTotalBytes,
		BlockSize:      constants.DefaultBlockSize,
		PageReadSize:   constants.DefaultPageReadSize,
		Workers:        constants.DefaultWorkers,
		WindowCapacity: constants.DefaultWindowCapacity,
		BatchWait:      constants.DefaultBatchWait,
		RingEntries:    constants.DefaultRingEntries,
		Pattern:        blocks.DefaultPattern(),
		Engine:         EngineKernel,
	}
}

// Geometry returns the validated address space described by p
func (p ScanParams) Geometry() (blocks.Geometry, error) {
	return blocks.NewGeometry(p.TotalBytes, p.BlockSize, p.PageReadSize)
}

// Options contains optional collaborators for Scan
type Options struct {
	// Logger for progress messages (if nil, uses the default logger)
	Logger *Logger

	// Observer for per-read statistics (if nil, Metrics is used when set)
	Observer Observer

	// Metrics records scan outcomes and, without an Observer, read statistics
	Metrics *Metrics
}

// ScanResult is the aggregate of a successful scan
type ScanResult struct {
	Checksum  uint64
	Blocks    uint64
	Bytes     uint64
	Workers   int
	Elapsed   time.Duration
	PerWorker []WorkerResult
}

// Report converts the result into a strategy report
func (r *ScanResult) Report(strategy string) Report {
	return Report{
		Strategy: strategy,
		Checksum: r.Checksum,
		Blocks:   r.Blocks,
		Bytes:    r.Bytes,
		Workers:  r.Workers,
		Elapsed:  r.Elapsed,
	}
}

// Scan reads the first page of every block of params.Path with one
// pipelined ring per worker and returns the wrapping sum of each page's
// first byte.
//
// Configuration is validated before any file is opened. The first worker
// failure cancels the others; every worker drains its ring before Scan
// returns. Partial results are discarded on failure.
//
// Example:
//
//	params := blockbench.DefaultScanParams("datei")
//	params.Workers = 4
//	res, err := blockbench.Scan(ctx, params, nil)
func Scan(ctx context.Context, params ScanParams, options *Options) (*ScanResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}
	var observer Observer = NoOpObserver{}
	if options.Observer != nil {
		observer = options.Observer
	} else if options.Metrics != nil {
		observer = NewMetricsObserver(options.Metrics)
	}

	runners, plan, err := buildRunners(params, logger, observer)
	if err != nil {
		options.recordScan(false)
		return nil, err
	}

	logger.Info("scan starting",
		"path", params.Path,
		"workers", len(runners),
		"blocks", plan.BlockCount,
		"pattern", params.Pattern.String(),
		"window", params.WindowCapacity,
		"engine", string(params.Engine))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	results := make([]WorkerResult, len(runners))
	for i, r := range runners {
		i, r := i, r
		g.Go(func() error {
			res, err := r.Run(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		options.recordScan(false)
		logger.WithError(err).Error("scan failed", "path", params.Path)
		return nil, err
	}

	res := &ScanResult{
		Workers:   len(results),
		Elapsed:   time.Since(start),
		PerWorker: results,
	}
	for _, wr := range results {
		res.Checksum += wr.Checksum
		res.Blocks += wr.Blocks
	}
	res.Bytes = res.Blocks * params.PageReadSize
	options.recordScan(true)

	logger.Info("scan finished",
		"checksum", res.Checksum,
		"blocks", res.Blocks,
		"elapsed", res.Elapsed.String())
	return res, nil
}

func (o *Options) recordScan(success bool) {
	if o.Metrics != nil {
		o.Metrics.RecordScan(success)
	}
}

// buildRunners validates params and creates one runner per shard without
// touching the file system
func buildRunners(params ScanParams, logger *Logger, observer Observer) ([]*queue.Runner, blocks.ShardPlan, error) {
	if params.Path == "" {
		return nil, blocks.ShardPlan{}, errs.New("scan", errs.CodeConfiguration, "no fixture path")
	}
	geo, err := params.Geometry()
	if err != nil {
		return nil, blocks.ShardPlan{}, err
	}
	if err := params.Pattern.Validate(geo.BlockCount()); err != nil {
		return nil, blocks.ShardPlan{}, err
	}
	plan, err := blocks.PlanShards(geo.BlockCount(), params.Workers)
	if err != nil {
		return nil, blocks.ShardPlan{}, err
	}

	runners := make([]*queue.Runner, len(plan.Shards))
	for i, shard := range plan.Shards {
		runners[i], err = queue.NewRunner(queue.Config{
			ID:             i,
			Path:           params.Path,
			Shard:          shard,
			Geometry:       geo,
			Pattern:        params.Pattern,
			WindowCapacity: params.WindowCapacity,
			BatchWait:      params.BatchWait,
			RingEntries:    params.RingEntries,
			Engine:         params.Engine,
			Direct:         params.Direct,
			Logger:         logger,
			Observer:       observer,
		})
		if err != nil {
			return nil, blocks.ShardPlan{}, err
		}
	}
	return runners, plan, nil
}
