package queue

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ncw/directio"

	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/interfaces"
	"github.com/ehrlich-b/go-blockbench/internal/logging"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
)

// RingFactory builds the ring a runner reads through
type RingFactory func(fd int) (uring.Ring, error)

// Config describes one worker's share of a scan
type Config struct {
	ID             int
	Path           string
	Shard          blocks.Shard
	Geometry       blocks.Geometry
	Pattern        blocks.AccessPattern
	WindowCapacity int
	BatchWait      int
	RingEntries    int
	Engine         uring.Engine
	Direct         bool // open with O_DIRECT
	Logger         *logging.Logger
	Observer       interfaces.Observer
	RingFactory    RingFactory // overrides Engine when set
}

// Result is one worker's contribution to a scan
type Result struct {
	Worker      int
	Shard       blocks.Shard
	Checksum    uint64
	Blocks      uint64
	MaxInflight int
	Elapsed     time.Duration
}

// Runner scans one shard through its own file descriptor, ring and slab
type Runner struct {
	config Config
	logger *logging.Logger

	file   *os.File
	ring   uring.Ring
	slab   *Slab
	window *Window
}

// NewRunner validates config and returns a runner ready to Run
func NewRunner(config Config) (*Runner, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		config: config,
		logger: logger.WithWorker(config.ID).WithShard(config.Shard.Start, config.Shard.Span),
	}, nil
}

func (c Config) validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if err := c.Pattern.Validate(c.Geometry.BlockCount()); err != nil {
		return err
	}
	if c.Shard.End() > c.Geometry.BlockCount() {
		return errs.Newf("runner", errs.CodeConfiguration, "shard [%d, %d) outside %d blocks",
			c.Shard.Start, c.Shard.End(), c.Geometry.BlockCount())
	}
	if c.WindowCapacity <= 0 || c.BatchWait <= 0 {
		return errs.Newf("runner", errs.CodeConfiguration, "window %d and batch wait %d must be positive",
			c.WindowCapacity, c.BatchWait)
	}
	if c.RingEntries < c.WindowCapacity {
		return errs.Newf("runner", errs.CodeConfiguration, "ring entries %d below window capacity %d",
			c.RingEntries, c.WindowCapacity)
	}
	if align := uint64(directio.AlignSize); c.Direct && align > 0 &&
		(c.Geometry.PageReadSize%align != 0 || c.Geometry.BlockSize%align != 0) {
		return errs.Newf("runner", errs.CodeConfiguration, "direct I/O needs %d-byte aligned page and block sizes", align)
	}
	return nil
}

// Run scans the shard. The calling goroutine is locked to its OS thread
// for the whole scan.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	res = Result{Worker: r.config.ID, Shard: r.config.Shard}
	if r.config.Shard.Span == 0 {
		return res, nil
	}

	start := time.Now()
	r.logger.Debug("worker starting", "window", r.config.WindowCapacity, "pattern", r.config.Pattern.String())

	defer func() {
		if cerr := r.close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	if err := r.open(); err != nil {
		return res, r.attribute(err)
	}

	sum, err := r.window.Run(ctx)
	if err != nil {
		var qerr *QuiesceError
		if errors.As(err, &qerr) {
			r.logger.Warn("window did not quiesce, leaking slot buffers", "error", qerr.Err)
			r.slab = nil
		}
		r.logger.WithError(err).Debug("worker failed", "completed", r.window.Completed())
		return res, r.attribute(err)
	}

	res.Checksum = sum
	res.Blocks = r.window.Completed()
	res.MaxInflight = r.window.MaxInflight()
	res.Elapsed = time.Since(start)
	r.logger.Debug("worker finished", "blocks", res.Blocks, "elapsed", res.Elapsed.String())
	return res, nil
}

func (r *Runner) open() error {
	var err error
	if r.config.Direct {
		r.file, err = directio.OpenFile(r.config.Path, os.O_RDONLY, 0)
	} else {
		r.file, err = os.Open(r.config.Path)
	}
	if err != nil {
		e := errs.WrapError("open", err)
		e.Code = errs.CodeResource
		return e
	}
	fd := int(r.file.Fd())

	factory := r.config.RingFactory
	if factory == nil {
		engine := r.config.Engine
		entries := uint32(r.config.RingEntries)
		factory = func(fd int) (uring.Ring, error) {
			return uring.NewRing(engine, uring.Config{Entries: entries, FD: fd})
		}
	}
	if r.ring, err = factory(fd); err != nil {
		return err
	}

	slotSize := int(r.config.Geometry.PageReadSize)
	if rem := slotSize % os.Getpagesize(); rem != 0 {
		slotSize += os.Getpagesize() - rem
	}
	if r.slab, err = NewSlab(r.config.WindowCapacity, slotSize); err != nil {
		return err
	}

	cursor := blocks.NewCursor(r.config.Shard, r.config.Pattern, r.config.Geometry.BlockCount())
	r.window, err = NewWindow(r.ring, r.slab, cursor, WindowConfig{
		Capacity:  r.config.WindowCapacity,
		BatchWait: r.config.BatchWait,
		Geometry:  r.config.Geometry,
		Observer:  r.config.Observer,
	})
	return err
}

// close tears down the ring before unmapping the slab it read into
func (r *Runner) close() error {
	var result *multierror.Error
	if r.ring != nil {
		if err := r.ring.Close(); err != nil {
			result = multierror.Append(result, errs.WrapError("ring_close", err))
		}
		r.ring = nil
	}
	if r.slab != nil {
		if err := r.slab.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		r.slab = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			result = multierror.Append(result, errs.WrapError("close", err))
		}
		r.file = nil
	}
	return result.ErrorOrNil()
}

func (r *Runner) attribute(err error) error {
	var se *errs.Error
	if errors.As(err, &se) && se.Worker < 0 {
		attributed := se.WithWorker(r.config.ID)
		var qerr *QuiesceError
		if errors.As(err, &qerr) {
			return &QuiesceError{Cause: attributed, Err: qerr.Err}
		}
		return attributed
	}
	return err
}
