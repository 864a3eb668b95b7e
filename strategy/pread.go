package strategy

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/queue"
)

// preadStrategy splits the scan into shards like ring-sharded but each
// shard's goroutine issues one blocking positional read per block
type preadStrategy struct {
	opts Options
}

func (s *preadStrategy) Name() string { return PreadSharded }

func (s *preadStrategy) Run(ctx context.Context) (rep blockbench.Report, err error) {
	defer func() { s.opts.recordScan(err) }()
	geo := s.opts.Geometry
	n := geo.BlockCount()
	plan, err := blocks.PlanShards(n, s.opts.Workers)
	if err != nil {
		return rep, err
	}
	observer := s.opts.observer()
	start := time.Now()

	f, err := s.opts.open()
	if err != nil {
		return rep, err
	}
	defer f.Close()
	fd := int(f.Fd())

	var total atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range plan.Shards {
		shard := shard
		g.Go(func() error {
			buf := queue.GetBuffer(int(geo.PageReadSize))
			defer queue.PutBuffer(buf)

			cursor := blocks.NewCursor(shard, s.opts.Pattern, n)
			var sum uint64
			for i := uint64(0); ; i++ {
				if err := canceled(gctx, "pread", i); err != nil {
					return err
				}
				b, ok := cursor.Next()
				if !ok {
					break
				}
				off := geo.Offset(b)
				t := time.Now()
				got, err := unix.Pread(fd, buf, int64(off))
				if err != nil {
					observer.ObserveRead(0, uint64(time.Since(t)), false)
					e := errs.WrapError("pread", err)
					e.Code = errs.CodeIO
					e.Block, e.Offset = int64(b), int64(off)
					return e.WithWorker(shard.Index)
				}
				if got < len(buf) {
					observer.ObserveRead(uint64(got), uint64(time.Since(t)), false)
					return errs.NewIO("pread", int64(b), int64(off), 0, "short read").WithWorker(shard.Index)
				}
				observer.ObserveRead(uint64(got), uint64(time.Since(t)), true)
				sum += uint64(buf[0])
			}
			total.Add(sum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	return s.opts.report(PreadSharded, total.Load(), n, n*geo.PageReadSize, len(plan.Shards), start), nil
}
