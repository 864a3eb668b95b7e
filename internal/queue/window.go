package queue

import (
	"context"
	"syscall"
	"time"

	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/interfaces"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
)

// SlotState tracks who owns a slot's buffer
type SlotState uint8

const (
	SlotFree     SlotState = iota // User owns; buffer may be reused
	SlotInFlight                  // Ring owns; a read into the buffer is outstanding
)

type slot struct {
	state     SlotState
	block     uint64
	offset    uint64
	submitted time.Time
}

// WindowConfig sizes an InflightWindow
type WindowConfig struct {
	Capacity  int             // maximum reads in flight
	BatchWait int             // completions to wait for per round
	Geometry  blocks.Geometry // block size and page read size
	Observer  interfaces.Observer
}

// Window keeps up to Capacity page reads in flight on one ring. Each
// completion folds its first byte into the checksum and immediately reuses
// its slot for the next block from the cursor. Not safe for concurrent use.
type Window struct {
	ring      uring.Ring
	slab      *Slab
	cursor    *blocks.Cursor
	geo       blocks.Geometry
	observer  interfaces.Observer
	slots     []slot
	batchWait int

	inflight    int
	maxInflight int
	checksum    uint64
	completed   uint64
	stopped     bool
}

// NewWindow binds a ring, a slab with at least Capacity slots and a cursor
func NewWindow(ring uring.Ring, slab *Slab, cursor *blocks.Cursor, config WindowConfig) (*Window, error) {
	if config.Capacity <= 0 {
		return nil, errs.Newf("window", errs.CodeConfiguration, "window capacity must be positive, got %d", config.Capacity)
	}
	if config.BatchWait <= 0 {
		return nil, errs.Newf("window", errs.CodeConfiguration, "batch wait must be positive, got %d", config.BatchWait)
	}
	if slab.Slots() < config.Capacity {
		return nil, errs.Newf("window", errs.CodeInternal, "slab has %d slots, window needs %d", slab.Slots(), config.Capacity)
	}
	if uint64(slab.SlotSize()) < config.Geometry.PageReadSize {
		return nil, errs.Newf("window", errs.CodeInternal, "slot size %d below page read size %d", slab.SlotSize(), config.Geometry.PageReadSize)
	}
	observer := config.Observer
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Window{
		ring:      ring,
		slab:      slab,
		cursor:    cursor,
		geo:       config.Geometry,
		observer:  observer,
		slots:     make([]slot, config.Capacity),
		batchWait: config.BatchWait,
	}, nil
}

// Run fills the window and drives it until the cursor is exhausted and
// every read has completed. On error or cancellation the window stops
// submitting and quiesces before returning, so no slot is left owned by the
// ring. A quiesce failure is returned joined with the original error.
func (w *Window) Run(ctx context.Context) (uint64, error) {
	err := w.Fill()
	for err == nil && w.inflight > 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errs.WrapError("scan", ctxErr)
			break
		}
		err = w.Step()
	}
	if err != nil {
		w.stopped = true
		if qerr := w.Quiesce(); qerr != nil {
			return 0, &QuiesceError{Cause: err, Err: qerr}
		}
		return 0, err
	}
	return w.checksum, nil
}

// Fill submits the first min(Capacity, remaining) reads
func (w *Window) Fill() error {
	for i := range w.slots {
		if w.cursor.Remaining() == 0 {
			break
		}
		if err := w.submit(i); err != nil {
			return err
		}
	}
	return nil
}

// Step waits for min(inflight, BatchWait) completions and handles every
// completion available afterwards
func (w *Window) Step() error {
	if w.inflight == 0 {
		return nil
	}
	want := w.inflight
	if want > w.batchWait {
		want = w.batchWait
	}
	if _, err := w.ring.SubmitAndWait(uint32(want)); err != nil {
		return err
	}
	n, err := w.ring.Drain(w.complete)
	w.observer.ObserveWait(uint32(n))
	w.observer.ObserveInflight(uint32(w.inflight))
	return err
}

func (w *Window) submit(i int) error {
	block, ok := w.cursor.Next()
	if !ok {
		return nil
	}
	s := &w.slots[i]
	if s.state != SlotFree {
		return errs.Newf("submit", errs.CodeInternal, "slot %d reused while in flight", i)
	}
	offset := w.geo.Offset(block)
	buf := w.slab.Slot(i)[:w.geo.PageReadSize]
	if err := w.ring.PrepareRead(buf, offset, uint64(i)); err != nil {
		return err
	}
	s.state = SlotInFlight
	s.block = block
	s.offset = offset
	s.submitted = time.Now()
	w.inflight++
	if w.inflight > w.maxInflight {
		w.maxInflight = w.inflight
	}
	return nil
}

// release validates a completion's tag and returns its slot to the user
func (w *Window) release(c uring.Completion) (int, *slot, error) {
	if c.Tag >= uint64(len(w.slots)) {
		return 0, nil, errs.Newf("complete", errs.CodeInternal, "completion tag %d out of range (capacity %d)", c.Tag, len(w.slots))
	}
	i := int(c.Tag)
	s := &w.slots[i]
	if s.state != SlotInFlight {
		return 0, nil, errs.Newf("complete", errs.CodeInternal, "completion for slot %d which is not in flight", i)
	}
	s.state = SlotFree
	w.inflight--
	return i, s, nil
}

func (w *Window) complete(c uring.Completion) error {
	i, s, err := w.release(c)
	if err != nil {
		return err
	}
	latency := uint64(time.Since(s.submitted))

	if c.Res < 0 {
		w.observer.ObserveRead(0, latency, false)
		errno := syscall.Errno(-c.Res)
		return errs.NewIO("read", int64(s.block), int64(s.offset), errno, "")
	}
	if uint64(c.Res) < w.geo.PageReadSize {
		w.observer.ObserveRead(uint64(c.Res), latency, false)
		return errs.NewIO("read", int64(s.block), int64(s.offset), 0, "short read")
	}

	w.checksum += uint64(w.slab.Slot(i)[0])
	w.completed++
	w.observer.ObserveRead(uint64(c.Res), latency, true)

	if w.stopped {
		return nil
	}
	return w.submit(i)
}

// Quiesce stops submission and waits until every outstanding read has
// completed. Results are discarded.
func (w *Window) Quiesce() error {
	w.stopped = true
	for w.inflight > 0 {
		if _, err := w.ring.SubmitAndWait(1); err != nil {
			return err
		}
		if _, err := w.ring.Drain(w.discard); err != nil {
			return err
		}
	}
	return nil
}

func (w *Window) discard(c uring.Completion) error {
	// stray tags are ignored so the drain can finish
	if c.Tag < uint64(len(w.slots)) && w.slots[c.Tag].state == SlotInFlight {
		w.slots[c.Tag].state = SlotFree
		w.inflight--
	}
	return nil
}

// Checksum is the wrapping sum of first bytes completed so far
func (w *Window) Checksum() uint64 { return w.checksum }

// Completed is the number of reads folded into the checksum
func (w *Window) Completed() uint64 { return w.completed }

// Inflight is the number of reads currently owned by the ring
func (w *Window) Inflight() int { return w.inflight }

// MaxInflight is the peak of Inflight
func (w *Window) MaxInflight() int { return w.maxInflight }

// QuiesceError reports that a window could not be drained after a failure.
// Slot buffers may still be targeted by the kernel and must not be freed.
type QuiesceError struct {
	Cause error // failure that stopped the window
	Err   error // failure while draining
}

func (e *QuiesceError) Error() string {
	return e.Cause.Error() + "; quiesce failed: " + e.Err.Error()
}

func (e *QuiesceError) Unwrap() error { return e.Cause }
