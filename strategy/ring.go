package strategy

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/queue"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
)

// batchStrategy submits Window reads, waits for all of them, then repeats.
// The ring drains completely between batches, unlike the windowed scan.
type batchStrategy struct {
	opts Options
}

func (s *batchStrategy) Name() string { return RingBatch }

func (s *batchStrategy) Run(ctx context.Context) (rep blockbench.Report, err error) {
	defer func() { s.opts.recordScan(err) }()
	geo := s.opts.Geometry
	observer := s.opts.observer()
	start := time.Now()

	f, err := s.opts.open()
	if err != nil {
		return rep, err
	}
	defer f.Close()

	reader, err := uring.NewBatchReader(uring.Config{Entries: uint32(s.opts.Window), FD: int(f.Fd())})
	if err != nil {
		return rep, err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			err = multierror.Append(err, errs.WrapError("ring_close", cerr)).ErrorOrNil()
		}
	}()

	page := int(geo.PageReadSize)
	mem := queue.GetBuffer(s.opts.Window * page)
	defer queue.PutBuffer(mem)
	bufs := make([][]byte, s.opts.Window)
	for i := range bufs {
		bufs[i] = mem[i*page : (i+1)*page : (i+1)*page]
	}
	offsets := make([]uint64, 0, s.opts.Window)

	n := geo.BlockCount()
	cursor := blocks.NewCursor(blocks.Whole(n), s.opts.Pattern, n)
	var sum uint64
	for cursor.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return rep, errs.WrapError("ring_batch", err)
		}
		offsets = offsets[:0]
		for len(offsets) < s.opts.Window {
			b, ok := cursor.Next()
			if !ok {
				break
			}
			offsets = append(offsets, geo.Offset(b))
		}
		t := time.Now()
		if err := reader.ReadBatch(bufs[:len(offsets)], offsets); err != nil {
			observer.ObserveRead(0, uint64(time.Since(t)), false)
			return rep, err
		}
		observer.ObserveWait(uint32(len(offsets)))
		for i := range offsets {
			sum += uint64(bufs[i][0])
		}
		observer.ObserveRead(uint64(len(offsets)*page), uint64(time.Since(t)), true)
	}
	return s.opts.report(RingBatch, sum, n, n*geo.PageReadSize, 1, start), nil
}

// windowStrategy runs the pipelined Scan with a fixed worker count
type windowStrategy struct {
	name    string
	opts    Options
	workers int
}

func (s *windowStrategy) Name() string { return s.name }

func (s *windowStrategy) Run(ctx context.Context) (blockbench.Report, error) {
	geo := s.opts.Geometry
	params := blockbench.ScanParams{
		Path:           s.opts.Path,
		TotalBytes:     geo.TotalBytes,
		BlockSize:      geo.BlockSize,
		PageReadSize:   geo.PageReadSize,
		Workers:        s.workers,
		WindowCapacity: s.opts.Window,
		BatchWait:      s.opts.BatchWait,
		RingEntries:    s.opts.RingEntries,
		Pattern:        s.opts.Pattern,
		Engine:         s.opts.Engine,
		Direct:         s.opts.Direct,
	}
	res, err := blockbench.Scan(ctx, params, &blockbench.Options{
		Logger:  s.opts.logger().WithStrategy(s.name),
		Metrics: s.opts.Metrics,
	})
	if err != nil {
		return blockbench.Report{}, err
	}
	return res.Report(s.name), nil
}
