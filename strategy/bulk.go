package strategy

import (
	"context"
	"io"
	"time"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/constants"
	"github.com/ehrlich-b/go-blockbench/internal/queue"
)

// bulkStrategy streams the whole file in large sequential chunks and
// samples the first byte of each block from memory. The access pattern is
// ignored; the sum does not depend on visiting order.
type bulkStrategy struct {
	opts Options
}

func (s *bulkStrategy) Name() string { return Bulk }

func (s *bulkStrategy) Run(ctx context.Context) (rep blockbench.Report, err error) {
	defer func() { s.opts.recordScan(err) }()
	geo := s.opts.Geometry
	observer := s.opts.observer()
	start := time.Now()

	f, err := s.opts.open()
	if err != nil {
		return rep, err
	}
	defer f.Close()

	chunk := geo.BlockSize * constants.BulkChunkBlocks
	if chunk > geo.TotalBytes {
		chunk = geo.TotalBytes
	}
	buf := queue.GetBuffer(int(chunk))
	defer queue.PutBuffer(buf)

	var sum, off uint64
	for off < geo.TotalBytes {
		if err := ctx.Err(); err != nil {
			return rep, ioError("bulk", err, off/geo.BlockSize, off)
		}
		n := min(chunk, geo.TotalBytes-off)
		t := time.Now()
		if _, err := io.ReadFull(f, buf[:n]); err != nil {
			observer.ObserveRead(0, uint64(time.Since(t)), false)
			return rep, ioError("read", err, off/geo.BlockSize, off)
		}
		observer.ObserveRead(n, uint64(time.Since(t)), true)
		for p := uint64(0); p < n; p += geo.BlockSize {
			sum += uint64(buf[p])
		}
		off += n
	}
	return s.opts.report(Bulk, sum, geo.BlockCount(), geo.TotalBytes, 1, start), nil
}
