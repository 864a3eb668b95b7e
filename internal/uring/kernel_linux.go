//go:build linux

package uring

import (
	"errors"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// drainBatch bounds the CQEs peeked per PeekBatchCQE call
const drainBatch = 256

// kernelRing implements Ring on a kernel io_uring instance
type kernelRing struct {
	ring    *giouring.Ring
	fd      int
	entries uint32
	cqes    []*giouring.CompletionQueueEvent
}

// NewKernelRing sets up an io_uring instance with config.Entries SQEs
func NewKernelRing(config Config) (Ring, error) {
	if config.Entries == 0 {
		return nil, errs.New("ring_setup", errs.CodeConfiguration, "ring entries must be nonzero")
	}

	ring := giouring.NewRing()
	if err := ring.QueueInit(config.Entries, config.Flags); err != nil {
		e := errs.WrapError("ring_setup", err)
		if e.Code != errs.CodeCanceled {
			e.Code = errs.CodeResource
		}
		return nil, e
	}

	return &kernelRing{
		ring:    ring,
		fd:      config.FD,
		entries: config.Entries,
		cqes:    make([]*giouring.CompletionQueueEvent, drainBatch),
	}, nil
}

func (r *kernelRing) PrepareRead(buf []byte, offset uint64, tag uint64) error {
	if len(buf) == 0 {
		return errs.New("prep_read", errs.CodeInternal, "empty read buffer")
	}
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return errs.Newf("prep_read", errs.CodeInternal, "submission queue full (%d entries)", r.entries)
	}
	sqe.PrepareRead(r.fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), offset)
	sqe.UserData = tag
	return nil
}

func (r *kernelRing) SubmitAndWait(minComplete uint32) (uint, error) {
	var total uint
	for {
		n, err := r.ring.SubmitAndWait(minComplete)
		total += n
		if err == nil {
			return total, nil
		}
		// SIGURG preemption interrupts io_uring_enter; the SQEs consumed so
		// far stay submitted, so only the wait is repeated.
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return total, errs.WrapError("submit_and_wait", err)
	}
}

func (r *kernelRing) Drain(fn func(Completion) error) (int, error) {
	consumed := 0
	for {
		n := r.ring.PeekBatchCQE(r.cqes)
		if n == 0 {
			return consumed, nil
		}
		for i := uint32(0); i < n; i++ {
			cqe := r.cqes[i]
			if err := fn(Completion{Tag: cqe.UserData, Res: cqe.Res}); err != nil {
				r.ring.CQAdvance(i + 1)
				return consumed + int(i) + 1, err
			}
		}
		r.ring.CQAdvance(n)
		consumed += int(n)
	}
}

func (r *kernelRing) Close() error {
	if r.ring != nil {
		r.ring.QueueExit()
		r.ring = nil
	}
	return nil
}
