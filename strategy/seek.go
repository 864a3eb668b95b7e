package strategy

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/queue"
)

// seekStrategy does one seek and one synchronous page read per block
type seekStrategy struct {
	opts Options
}

func (s *seekStrategy) Name() string { return Seek }

func (s *seekStrategy) Run(ctx context.Context) (rep blockbench.Report, err error) {
	defer func() { s.opts.recordScan(err) }()
	geo := s.opts.Geometry
	observer := s.opts.observer()
	start := time.Now()

	f, err := s.opts.open()
	if err != nil {
		return rep, err
	}
	defer f.Close()

	buf := queue.GetBuffer(int(geo.PageReadSize))
	defer queue.PutBuffer(buf)

	n := geo.BlockCount()
	cursor := blocks.NewCursor(blocks.Whole(n), s.opts.Pattern, n)
	var sum uint64
	for i := uint64(0); ; i++ {
		if err := canceled(ctx, "seek", i); err != nil {
			return rep, err
		}
		b, ok := cursor.Next()
		if !ok {
			break
		}
		off := geo.Offset(b)
		t := time.Now()
		if err := readPage(f, buf, b, off); err != nil {
			observer.ObserveRead(0, uint64(time.Since(t)), false)
			return rep, err
		}
		observer.ObserveRead(uint64(len(buf)), uint64(time.Since(t)), true)
		sum += uint64(buf[0])
	}
	return s.opts.report(Seek, sum, n, n*geo.PageReadSize, 1, start), nil
}

func readPage(f *os.File, buf []byte, block, off uint64) error {
	if _, err := f.Seek(int64(off), io.SeekStart); err != nil {
		return ioError("seek", err, block, off)
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return ioError("read", err, block, off)
	}
	return nil
}

// ioError locates a synchronous read failure. EOF before a full page is a
// short read.
func ioError(op string, err error, block, off uint64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.NewIO(op, int64(block), int64(off), 0, "short read")
	}
	e := errs.WrapError(op, err)
	if e.Code != errs.CodeCanceled {
		e.Code = errs.CodeIO
	}
	e.Block = int64(block)
	e.Offset = int64(off)
	return e
}
