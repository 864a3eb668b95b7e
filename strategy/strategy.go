// Package strategy implements the scan strategies compared by blockbench.
// Every strategy reads the first page of each block of the fixture and
// folds its first byte into a wrapping sum, so reports are comparable and
// a correct run of any strategy yields the same checksum.
package strategy

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/ncw/directio"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/constants"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/logging"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
)

// Strategy names, in phase order
const (
	MMap         = "mmap"
	Seek         = "seek"
	Bulk         = "bulk"
	RingBatch    = "ring-batch"
	RingWindow   = "ring-window"
	RingSharded  = "ring-sharded"
	PreadSharded = "pread-sharded"
)

// Options configures every strategy. Fields a strategy does not use are
// ignored by it.
type Options struct {
	Path        string
	Geometry    blocks.Geometry
	Pattern     blocks.AccessPattern
	Workers     int // ring-sharded, pread-sharded
	Window      int // ring-batch batch size, ring-window/ring-sharded window capacity
	BatchWait   int
	RingEntries int
	Engine      uring.Engine
	Direct      bool
	Logger      *logging.Logger
	Metrics     *blockbench.Metrics
}

// DefaultOptions returns the default 10 GiB strided setup for path
func DefaultOptions(path string) Options {
	return Options{
		Path:        path,
		Geometry:    blocks.DefaultGeometry(),
		Pattern:     blocks.DefaultPattern(),
		Workers:     constants.DefaultWorkers,
		Window:      constants.DefaultWindowCapacity,
		BatchWait:   constants.DefaultBatchWait,
		RingEntries: constants.DefaultRingEntries,
		Engine:      uring.EngineKernel,
	}
}

// Validate checks the options shared by all strategies
func (o Options) Validate() error {
	if o.Path == "" {
		return errs.New("strategy", errs.CodeConfiguration, "no fixture path")
	}
	if err := o.Geometry.Validate(); err != nil {
		return err
	}
	if err := o.Pattern.Validate(o.Geometry.BlockCount()); err != nil {
		return err
	}
	if o.Workers <= 0 || o.Window <= 0 || o.BatchWait <= 0 || o.RingEntries <= 0 {
		return errs.Newf("strategy", errs.CodeConfiguration,
			"workers %d, window %d, batch wait %d and ring entries %d must be positive",
			o.Workers, o.Window, o.BatchWait, o.RingEntries)
	}
	if o.Window > o.RingEntries {
		return errs.Newf("strategy", errs.CodeConfiguration,
			"window %d exceeds ring entries %d", o.Window, o.RingEntries)
	}
	return nil
}

func (o Options) logger() *logging.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.Default()
}

func (o Options) observer() blockbench.Observer {
	if o.Metrics != nil {
		return blockbench.NewMetricsObserver(o.Metrics)
	}
	return blockbench.NoOpObserver{}
}

func (o Options) recordScan(err error) {
	if o.Metrics != nil {
		o.Metrics.RecordScan(err == nil)
	}
}

// open opens the fixture read-only, with O_DIRECT when requested
func (o Options) open() (*os.File, error) {
	var (
		f   *os.File
		err error
	)
	if o.Direct {
		f, err = directio.OpenFile(o.Path, os.O_RDONLY, 0)
	} else {
		f, err = os.Open(o.Path)
	}
	if err != nil {
		e := errs.WrapError("open", err)
		e.Code = errs.CodeResource
		return nil, e
	}
	return f, nil
}

func (o Options) report(name string, sum, nblocks, nbytes uint64, workers int, start time.Time) blockbench.Report {
	return blockbench.Report{
		Strategy: name,
		Checksum: sum,
		Blocks:   nblocks,
		Bytes:    nbytes,
		Workers:  workers,
		Elapsed:  time.Since(start),
	}
}

// cancelEvery is how many blocks the synchronous loops read between
// context checks
const cancelEvery = 1 << 12

func canceled(ctx context.Context, op string, i uint64) error {
	if i%cancelEvery != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errs.WrapError(op, err)
	}
	return nil
}

type entry struct {
	name string
	new  func(Options) blockbench.Strategy
}

var registry = []entry{
	{MMap, func(o Options) blockbench.Strategy { return &mmapStrategy{opts: o} }},
	{Seek, func(o Options) blockbench.Strategy { return &seekStrategy{opts: o} }},
	{Bulk, func(o Options) blockbench.Strategy { return &bulkStrategy{opts: o} }},
	{RingBatch, func(o Options) blockbench.Strategy { return &batchStrategy{opts: o} }},
	{RingWindow, func(o Options) blockbench.Strategy { return &windowStrategy{name: RingWindow, opts: o, workers: 1} }},
	{RingSharded, func(o Options) blockbench.Strategy { return &windowStrategy{name: RingSharded, opts: o, workers: o.Workers} }},
	{PreadSharded, func(o Options) blockbench.Strategy { return &preadStrategy{opts: o} }},
}

// Names lists every strategy in phase order
func Names() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.name
	}
	return names
}

// New builds the named strategy after validating opts
func New(name string, opts Options) (blockbench.Strategy, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	key := strings.ToLower(strings.TrimSpace(name))
	for _, e := range registry {
		if e.name == key {
			return e.new(opts), nil
		}
	}
	return nil, errs.Newf("strategy", errs.CodeConfiguration,
		"unknown strategy %q (have %s)", name, strings.Join(Names(), ", "))
}

// All builds every strategy in phase order
func All(opts Options) ([]blockbench.Strategy, error) {
	return Select(Names(), opts)
}

// Select builds the named strategies in the given order
func Select(names []string, opts Options) ([]blockbench.Strategy, error) {
	out := make([]blockbench.Strategy, 0, len(names))
	for _, name := range names {
		s, err := New(name, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
