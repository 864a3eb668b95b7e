package uring

import (
	"errors"
	"math/rand"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// EmulatedOptions tunes the emulated ring
type EmulatedOptions struct {
	// Seed shuffles completion order when nonzero. Zero completes reads in
	// submission order.
	Seed int64

	// Failures forces the completion result of reads at the given offsets,
	// e.g. -int32(syscall.EIO).
	Failures map[uint64]int32
}

type emulatedRead struct {
	buf    []byte
	offset uint64
	tag    uint64
}

// EmulatedRing implements Ring with positional reads performed inside
// SubmitAndWait. It keeps the kernel ring's ownership rules: a buffer
// belongs to the ring from PrepareRead until its completion is drained.
type EmulatedRing struct {
	fd      int
	entries uint32
	opts    EmulatedOptions
	rng     *rand.Rand

	pending  []emulatedRead // prepared, not yet submitted
	inflight []emulatedRead // submitted, not yet completed
	ready    []Completion   // completed, not yet drained
	drained  int            // prefix of ready already handed out by Drain

	maxOutstanding int
	waits          int
	closed         bool
}

// NewEmulatedRing creates an emulated ring over config.FD
func NewEmulatedRing(config Config, opts EmulatedOptions) (*EmulatedRing, error) {
	if config.Entries == 0 {
		return nil, errs.New("ring_setup", errs.CodeConfiguration, "ring entries must be nonzero")
	}
	r := &EmulatedRing{
		fd:      config.FD,
		entries: config.Entries,
		opts:    opts,
	}
	if opts.Seed != 0 {
		r.rng = rand.New(rand.NewSource(opts.Seed))
	}
	return r, nil
}

func (r *EmulatedRing) PrepareRead(buf []byte, offset uint64, tag uint64) error {
	if r.closed {
		return errs.New("prep_read", errs.CodeInternal, "ring closed")
	}
	if len(buf) == 0 {
		return errs.New("prep_read", errs.CodeInternal, "empty read buffer")
	}
	if uint32(len(r.pending)) >= r.entries {
		return errs.Newf("prep_read", errs.CodeInternal, "submission queue full (%d entries)", r.entries)
	}
	r.pending = append(r.pending, emulatedRead{buf: buf, offset: offset, tag: tag})
	if n := r.Outstanding(); n > r.maxOutstanding {
		r.maxOutstanding = n
	}
	return nil
}

func (r *EmulatedRing) SubmitAndWait(minComplete uint32) (uint, error) {
	if r.closed {
		return 0, errs.New("submit_and_wait", errs.CodeInternal, "ring closed")
	}
	r.waits++

	submitted := uint(len(r.pending))
	r.inflight = append(r.inflight, r.pending...)
	r.pending = r.pending[:0]

	if int(minComplete) > len(r.inflight)+len(r.ready) {
		return submitted, errs.Newf("submit_and_wait", errs.CodeInternal,
			"waiting for %d completions with %d outstanding", minComplete, len(r.inflight)+len(r.ready))
	}

	need := int(minComplete) - len(r.ready)
	if need < 0 {
		need = 0
	}
	count := len(r.inflight)
	if r.rng != nil {
		r.rng.Shuffle(len(r.inflight), func(i, j int) {
			r.inflight[i], r.inflight[j] = r.inflight[j], r.inflight[i]
		})
		count = need + r.rng.Intn(len(r.inflight)-need+1)
	}

	for _, rd := range r.inflight[:count] {
		r.ready = append(r.ready, Completion{Tag: rd.tag, Res: r.perform(rd)})
	}
	r.inflight = append(r.inflight[:0], r.inflight[count:]...)
	return submitted, nil
}

func (r *EmulatedRing) perform(rd emulatedRead) int32 {
	if res, ok := r.opts.Failures[rd.offset]; ok {
		return res
	}
	n, err := unix.Pread(r.fd, rd.buf, int64(rd.offset))
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return -int32(errno)
		}
		return -int32(syscall.EIO)
	}
	return int32(n)
}

func (r *EmulatedRing) Drain(fn func(Completion) error) (int, error) {
	defer func() {
		r.ready = append(r.ready[:0], r.ready[r.drained:]...)
		r.drained = 0
	}()
	for r.drained < len(r.ready) {
		c := r.ready[r.drained]
		r.drained++
		if err := fn(c); err != nil {
			return r.drained, err
		}
	}
	return r.drained, nil
}

func (r *EmulatedRing) Close() error {
	r.closed = true
	return nil
}

// Outstanding counts reads whose buffers the ring currently owns
func (r *EmulatedRing) Outstanding() int {
	return len(r.pending) + len(r.inflight) + len(r.ready) - r.drained
}

// MaxOutstanding is the peak of Outstanding over the ring's lifetime
func (r *EmulatedRing) MaxOutstanding() int {
	return r.maxOutstanding
}

// Waits counts SubmitAndWait calls
func (r *EmulatedRing) Waits() int {
	return r.waits
}
