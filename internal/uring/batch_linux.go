//go:build linux

package uring

import (
	"sync"

	"github.com/iceber/iouring-go"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// BatchReader issues fully synchronous read batches: every read of a batch
// is submitted at once and the call returns only when all of them finished.
type BatchReader struct {
	iour    *iouring.IOURing
	fd      int
	entries int
	reqPool sync.Pool
}

// NewBatchReader sets up a ring able to hold one batch of entries reads
func NewBatchReader(config Config) (*BatchReader, error) {
	if config.Entries == 0 {
		return nil, errs.New("ring_setup", errs.CodeConfiguration, "ring entries must be nonzero")
	}
	iour, err := iouring.New(uint(config.Entries))
	if err != nil {
		e := errs.WrapError("ring_setup", err)
		e.Code = errs.CodeResource
		return nil, e
	}
	entries := int(config.Entries)
	return &BatchReader{
		iour:    iour,
		fd:      config.FD,
		entries: entries,
		reqPool: sync.Pool{
			New: func() any {
				b := make([]iouring.PrepRequest, entries)
				return &b
			},
		},
	}, nil
}

// ReadBatch reads len(bufs[i]) bytes at offsets[i] for every i and waits for
// the whole batch. A negative or short result fails the batch.
func (b *BatchReader) ReadBatch(bufs [][]byte, offsets []uint64) error {
	if len(bufs) != len(offsets) {
		return errs.Newf("read_batch", errs.CodeInternal, "%d buffers for %d offsets", len(bufs), len(offsets))
	}
	if len(bufs) > b.entries {
		return errs.Newf("read_batch", errs.CodeInternal, "batch of %d exceeds ring size %d", len(bufs), b.entries)
	}
	if len(bufs) == 0 {
		return nil
	}

	prepPtr := b.reqPool.Get().(*[]iouring.PrepRequest)
	defer b.reqPool.Put(prepPtr)
	prep := (*prepPtr)[:len(bufs)]

	for i := range bufs {
		prep[i] = iouring.Pread(b.fd, bufs[i], offsets[i])
	}

	rset, err := b.iour.SubmitRequests(prep, nil)
	if err != nil {
		return errs.WrapError("submit_batch", err)
	}
	<-rset.Done()

	// Requests() keeps submission order
	for i, req := range rset.Requests() {
		res, err := req.GetRes()
		if err != nil {
			e := errs.WrapError("read", err)
			e.Code = errs.CodeIO
			e.Block = -1
			e.Offset = int64(offsets[i])
			return e
		}
		if res < len(bufs[i]) {
			return errs.NewIO("read", -1, int64(offsets[i]), 0, "short read")
		}
	}
	return nil
}

// Close releases the ring
func (b *BatchReader) Close() error {
	if b.iour == nil {
		return nil
	}
	err := b.iour.Close()
	b.iour = nil
	return err
}
