package strategy

import (
	"context"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// mmapStrategy maps the fixture and touches the first byte of each block in
// pattern order. Page faults do the I/O.
type mmapStrategy struct {
	opts Options
}

func (s *mmapStrategy) Name() string { return MMap }

func (s *mmapStrategy) Run(ctx context.Context) (rep blockbench.Report, err error) {
	defer func() { s.opts.recordScan(err) }()
	geo := s.opts.Geometry
	start := time.Now()

	f, err := s.opts.open()
	if err != nil {
		return rep, err
	}
	defer f.Close()

	// Touching a page past EOF raises SIGBUS, so a short file is an error
	// before anything is mapped
	info, err := f.Stat()
	if err != nil {
		return rep, errs.WrapError("stat", err)
	}
	if size := uint64(info.Size()); size < geo.TotalBytes {
		return rep, errs.NewIO("mmap", int64(size/geo.BlockSize), info.Size(), 0,
			"fixture shorter than scanned size")
	}

	m, err := mmap.MapRegion(f, int(geo.TotalBytes), mmap.RDONLY, 0, 0)
	if err != nil {
		e := errs.WrapError("mmap", err)
		e.Code = errs.CodeResource
		return rep, e
	}
	defer func() {
		if uerr := m.Unmap(); uerr != nil {
			err = multierror.Append(err, errs.WrapError("munmap", uerr)).ErrorOrNil()
		}
	}()
	if err := adviseRandom(m); err != nil {
		s.opts.logger().WithStrategy(MMap).Warn("madvise failed", "error", err)
	}

	n := geo.BlockCount()
	cursor := blocks.NewCursor(blocks.Whole(n), s.opts.Pattern, n)
	var sum uint64
	for i := uint64(0); ; i++ {
		if err := canceled(ctx, "mmap", i); err != nil {
			return rep, err
		}
		b, ok := cursor.Next()
		if !ok {
			break
		}
		sum += uint64(m[geo.Offset(b)])
	}
	return s.opts.report(MMap, sum, n, n*geo.PageReadSize, 1, start), nil
}
