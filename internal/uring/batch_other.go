//go:build !linux

package uring

import (
	"syscall"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// BatchReader is only available on Linux
type BatchReader struct{}

func NewBatchReader(config Config) (*BatchReader, error) {
	return nil, errs.NewWithErrno("ring_setup", errs.CodeResource, syscall.ENOSYS)
}

func (b *BatchReader) ReadBatch(bufs [][]byte, offsets []uint64) error {
	return errs.NewWithErrno("read_batch", errs.CodeResource, syscall.ENOSYS)
}

func (b *BatchReader) Close() error { return nil }
