package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/fixture"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
)

// 64 blocks of 64 KiB, one 4 KiB page read per block
var testGeometry = blocks.Geometry{TotalBytes: 4 << 20, BlockSize: 64 << 10, PageReadSize: 4 << 10}

func writeFixture(t testing.TB, size uint64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datei")
	require.NoError(t, fixture.Create(path, size))
	return path
}

func openFixture(t testing.TB, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func newTestSlab(t testing.TB, slots int) *Slab {
	t.Helper()
	slab, err := NewSlab(slots, int(testGeometry.PageReadSize))
	require.NoError(t, err)
	t.Cleanup(func() { slab.Close() })
	return slab
}

// expectedSum is the checksum of a shard computed straight from the pattern
func expectedSum(geo blocks.Geometry, shard blocks.Shard, pattern blocks.AccessPattern) uint64 {
	var sum uint64
	c := blocks.NewCursor(shard, pattern, geo.BlockCount())
	for b, ok := c.Next(); ok; b, ok = c.Next() {
		sum += uint64(fixture.PatternByte(geo.Offset(b)))
	}
	return sum
}

func newEmulatedWindow(t testing.TB, f *os.File, capacity, batchWait int, opts uring.EmulatedOptions, pattern blocks.AccessPattern) (*Window, *uring.EmulatedRing) {
	t.Helper()
	ring, err := uring.NewEmulatedRing(uring.Config{Entries: uint32(capacity), FD: int(f.Fd())}, opts)
	require.NoError(t, err)
	cursor := blocks.NewCursor(blocks.Whole(testGeometry.BlockCount()), pattern, testGeometry.BlockCount())
	w, err := NewWindow(ring, newTestSlab(t, capacity), cursor, WindowConfig{
		Capacity:  capacity,
		BatchWait: batchWait,
		Geometry:  testGeometry,
	})
	require.NoError(t, err)
	return w, ring
}

func TestWindowChecksum(t *testing.T) {
	f := openFixture(t, writeFixture(t, testGeometry.TotalBytes))
	want := fixture.PatternChecksum(testGeometry)

	tests := []struct {
		name      string
		capacity  int
		batchWait int
		pattern   blocks.AccessPattern
	}{
		{"sequential", 8, 3, blocks.SequentialPattern()},
		{"strided", 8, 3, blocks.StridedPattern(12373)},
		{"window larger than file", 128, 32, blocks.StridedPattern(12373)},
		{"single slot", 1, 1, blocks.SequentialPattern()},
		{"batch wait above capacity", 4, 16, blocks.SequentialPattern()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ring := newEmulatedWindow(t, f, tt.capacity, tt.batchWait, uring.EmulatedOptions{}, tt.pattern)
			sum, err := w.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, want, sum)
			assert.Equal(t, testGeometry.BlockCount(), w.Completed())
			assert.Zero(t, w.Inflight())
			assert.Zero(t, ring.Outstanding())
		})
	}
}

func TestWindowBound(t *testing.T) {
	f := openFixture(t, writeFixture(t, testGeometry.TotalBytes))

	for _, capacity := range []int{1, 5, 16, 64} {
		w, ring := newEmulatedWindow(t, f, capacity, 2, uring.EmulatedOptions{Seed: 7}, blocks.DefaultPattern())
		_, err := w.Run(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, ring.MaxOutstanding(), capacity, "capacity %d", capacity)
		assert.LessOrEqual(t, w.MaxInflight(), capacity)
		assert.Equal(t, capacity, w.MaxInflight(), "window should fill completely")
	}
}

func TestWindowOrderInsensitive(t *testing.T) {
	f := openFixture(t, writeFixture(t, testGeometry.TotalBytes))
	want := fixture.PatternChecksum(testGeometry)

	for seed := int64(1); seed <= 8; seed++ {
		w, _ := newEmulatedWindow(t, f, 16, 4, uring.EmulatedOptions{Seed: seed}, blocks.DefaultPattern())
		sum, err := w.Run(context.Background())
		require.NoError(t, err, "seed %d", seed)
		assert.Equal(t, want, sum, "seed %d", seed)
	}
}

func TestWindowIOErrorQuiesces(t *testing.T) {
	f := openFixture(t, writeFixture(t, testGeometry.TotalBytes))
	badOffset := testGeometry.Offset(5)
	w, ring := newEmulatedWindow(t, f, 8, 2,
		uring.EmulatedOptions{Seed: 3, Failures: map[uint64]int32{badOffset: -int32(syscall.EIO)}},
		blocks.SequentialPattern())

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeIO))
	assert.True(t, errs.IsErrno(err, syscall.EIO))

	var se *errs.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(5), se.Block)
	assert.Equal(t, int64(badOffset), se.Offset)

	assert.Zero(t, w.Inflight(), "window must quiesce")
	assert.Zero(t, ring.Outstanding())
}

func TestWindowShortRead(t *testing.T) {
	// File covers the first 16 blocks only
	f := openFixture(t, writeFixture(t, 1<<20))
	w, ring := newEmulatedWindow(t, f, 8, 8, uring.EmulatedOptions{}, blocks.SequentialPattern())

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeIO))
	assert.Contains(t, err.Error(), "short read")
	assert.Zero(t, ring.Outstanding())
}

func TestWindowCanceled(t *testing.T) {
	f := openFixture(t, writeFixture(t, testGeometry.TotalBytes))
	w, ring := newEmulatedWindow(t, f, 8, 2, uring.EmulatedOptions{}, blocks.SequentialPattern())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Run(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeCanceled))
	assert.Zero(t, w.Inflight())
	assert.Zero(t, ring.Outstanding())
	assert.Less(t, w.Completed(), testGeometry.BlockCount())
}

// scriptedRing completes every read in submission order and lets a test
// inject bogus completions or wait failures
type scriptedRing struct {
	pending []uring.Completion
	ready   []uring.Completion
	bogus   []uring.Completion // handed out before the next real completion
	waits   int
	failAt  int // waits from this one on fail with waitErr; 0 never fails
	waitErr error
}

func (r *scriptedRing) PrepareRead(buf []byte, offset uint64, tag uint64) error {
	buf[0] = 1
	r.pending = append(r.pending, uring.Completion{Tag: tag, Res: int32(len(buf))})
	return nil
}

func (r *scriptedRing) SubmitAndWait(uint32) (uint, error) {
	r.waits++
	if r.failAt > 0 && r.waits >= r.failAt {
		return 0, r.waitErr
	}
	n := uint(len(r.pending))
	r.ready = append(r.ready, r.pending...)
	r.pending = r.pending[:0]
	return n, nil
}

func (r *scriptedRing) Drain(fn func(uring.Completion) error) (int, error) {
	batch := append(r.bogus, r.ready...)
	r.bogus, r.ready = nil, nil
	for i, c := range batch {
		if err := fn(c); err != nil {
			r.ready = append(r.ready, batch[i+1:]...)
			return i + 1, err
		}
	}
	return len(batch), nil
}

func (r *scriptedRing) Close() error { return nil }

func newScriptedWindow(t *testing.T, ring uring.Ring, capacity int, span uint64) *Window {
	t.Helper()
	cursor := blocks.NewCursor(blocks.Shard{Span: span}, blocks.SequentialPattern(), testGeometry.BlockCount())
	w, err := NewWindow(ring, newTestSlab(t, capacity), cursor, WindowConfig{
		Capacity:  capacity,
		BatchWait: 1,
		Geometry:  testGeometry,
	})
	require.NoError(t, err)
	return w
}

func TestWindowBadTag(t *testing.T) {
	ring := &scriptedRing{bogus: []uring.Completion{{Tag: 999, Res: 4096}}}
	w := newScriptedWindow(t, ring, 4, testGeometry.BlockCount())

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeInternal))
	assert.Contains(t, err.Error(), "out of range")
	assert.Zero(t, w.Inflight())
}

func TestWindowDuplicateCompletion(t *testing.T) {
	ring := &scriptedRing{}
	w := newScriptedWindow(t, ring, 4, 5)
	require.NoError(t, w.Fill())
	require.NoError(t, w.Step())

	// only slot 0 took the fifth block; slot 2 is free
	require.Equal(t, 1, w.Inflight())
	ring.bogus = []uring.Completion{{Tag: 2, Res: 4096}}
	err := w.Step()
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeInternal))
}

func TestWindowQuiesceFailure(t *testing.T) {
	ring := &scriptedRing{
		bogus:   []uring.Completion{{Tag: 42, Res: 4096}},
		failAt:  2,
		waitErr: errs.NewWithErrno("submit_and_wait", errs.CodeIO, syscall.EBADF),
	}
	w := newScriptedWindow(t, ring, 4, testGeometry.BlockCount())

	sum, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, sum)
	assert.True(t, errs.IsCode(err, errs.CodeInternal), "cause is the bad tag")

	var qerr *QuiesceError
	require.True(t, errors.As(err, &qerr))
	assert.True(t, errs.IsErrno(qerr.Err, syscall.EBADF))
	assert.Positive(t, w.Inflight(), "reads remain owned by the ring")
}

func TestNewWindowValidation(t *testing.T) {
	slab := newTestSlab(t, 4)
	cursor := blocks.NewCursor(blocks.Whole(64), blocks.SequentialPattern(), 64)

	_, err := NewWindow(&scriptedRing{}, slab, cursor, WindowConfig{Capacity: 0, BatchWait: 1, Geometry: testGeometry})
	assert.True(t, errs.IsCode(err, errs.CodeConfiguration))

	_, err = NewWindow(&scriptedRing{}, slab, cursor, WindowConfig{Capacity: 4, BatchWait: 0, Geometry: testGeometry})
	assert.True(t, errs.IsCode(err, errs.CodeConfiguration))

	_, err = NewWindow(&scriptedRing{}, slab, cursor, WindowConfig{Capacity: 8, BatchWait: 1, Geometry: testGeometry})
	assert.True(t, errs.IsCode(err, errs.CodeInternal))

	big := testGeometry
	big.PageReadSize = 8192
	_, err = NewWindow(&scriptedRing{}, slab, cursor, WindowConfig{Capacity: 4, BatchWait: 1, Geometry: big})
	assert.True(t, errs.IsCode(err, errs.CodeInternal))
}

func TestSlab(t *testing.T) {
	slab, err := NewSlab(3, 4096)
	require.NoError(t, err)
	assert.Equal(t, 3, slab.Slots())
	assert.Equal(t, 4096, slab.SlotSize())

	s1 := slab.Slot(1)
	assert.Len(t, s1, 4096)
	assert.Equal(t, 4096, cap(s1))
	s1[0] = 9
	assert.Equal(t, byte(0), slab.Slot(0)[0])
	assert.Equal(t, byte(9), slab.Slot(1)[0])

	require.NoError(t, slab.Close())
	require.NoError(t, slab.Close())

	_, err = NewSlab(0, 4096)
	assert.True(t, errs.IsCode(err, errs.CodeConfiguration))
}

func BenchmarkWindowEmulated(b *testing.B) {
	f := openFixture(b, writeFixture(b, testGeometry.TotalBytes))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w, _ := newEmulatedWindow(b, f, 16, 4, uring.EmulatedOptions{}, blocks.DefaultPattern())
		if _, err := w.Run(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}
