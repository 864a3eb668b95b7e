package queue

import (
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// Slab is one anonymous mapping carved into equally sized slot buffers.
// The memory lives outside the Go heap, so the kernel can write into a slot
// while the garbage collector runs.
type Slab struct {
	mem      []byte
	slotSize int
	slots    int
}

// NewSlab maps slots*slotSize bytes. slotSize should be a multiple of the
// page size so every slot starts page aligned.
func NewSlab(slots, slotSize int) (*Slab, error) {
	if slots <= 0 || slotSize <= 0 {
		return nil, errs.Newf("slab_map", errs.CodeConfiguration, "invalid slab %d x %d", slots, slotSize)
	}
	mem, err := unix.Mmap(-1, 0, slots*slotSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		e := errs.WrapError("slab_map", err)
		e.Code = errs.CodeResource
		return nil, e
	}
	return &Slab{mem: mem, slotSize: slotSize, slots: slots}, nil
}

// Slot returns slot i's buffer, capped so appends cannot spill into slot i+1
func (s *Slab) Slot(i int) []byte {
	start := i * s.slotSize
	end := start + s.slotSize
	return s.mem[start:end:end]
}

// Slots is the number of slot buffers
func (s *Slab) Slots() int {
	return s.slots
}

// SlotSize is the length of each slot buffer
func (s *Slab) SlotSize() int {
	return s.slotSize
}

// Close unmaps the slab. It must not be called while any slot is still
// owned by a ring.
func (s *Slab) Close() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	if err != nil {
		return errs.WrapError("slab_unmap", err)
	}
	return nil
}
