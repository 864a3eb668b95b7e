package uring

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

func tempFile(t *testing.T, size int) *os.File {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "ring.dat")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestEmulatedRingReads(t *testing.T) {
	f := tempFile(t, 8192)
	ring, err := NewEmulatedRing(Config{Entries: 4, FD: int(f.Fd())}, EmulatedOptions{})
	require.NoError(t, err)
	defer ring.Close()

	bufs := [][]byte{make([]byte, 16), make([]byte, 16)}
	require.NoError(t, ring.PrepareRead(bufs[0], 0, 10))
	require.NoError(t, ring.PrepareRead(bufs[1], 4096, 11))
	assert.Equal(t, 2, ring.Outstanding())

	submitted, err := ring.SubmitAndWait(2)
	require.NoError(t, err)
	assert.Equal(t, uint(2), submitted)

	var got []Completion
	n, err := ring.Drain(func(c Completion) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []Completion{{Tag: 10, Res: 16}, {Tag: 11, Res: 16}}, got)
	assert.Equal(t, byte(4096%251), bufs[1][0])
	assert.Zero(t, ring.Outstanding())
}

func TestEmulatedRingShortRead(t *testing.T) {
	f := tempFile(t, 100)
	ring, err := NewEmulatedRing(Config{Entries: 2, FD: int(f.Fd())}, EmulatedOptions{})
	require.NoError(t, err)

	require.NoError(t, ring.PrepareRead(make([]byte, 64), 80, 1))
	require.NoError(t, ring.PrepareRead(make([]byte, 64), 4096, 2))
	_, err = ring.SubmitAndWait(2)
	require.NoError(t, err)

	res := map[uint64]int32{}
	_, err = ring.Drain(func(c Completion) error {
		res[c.Tag] = c.Res
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(20), res[1])
	assert.Equal(t, int32(0), res[2])
}

func TestEmulatedRingInjectedFailure(t *testing.T) {
	f := tempFile(t, 8192)
	ring, err := NewEmulatedRing(Config{Entries: 2, FD: int(f.Fd())},
		EmulatedOptions{Failures: map[uint64]int32{4096: -int32(syscall.EIO)}})
	require.NoError(t, err)

	require.NoError(t, ring.PrepareRead(make([]byte, 8), 4096, 7))
	_, err = ring.SubmitAndWait(1)
	require.NoError(t, err)
	_, err = ring.Drain(func(c Completion) error {
		assert.Equal(t, -int32(syscall.EIO), c.Res)
		return nil
	})
	require.NoError(t, err)
}

func TestEmulatedRingSubmissionQueueFull(t *testing.T) {
	f := tempFile(t, 4096)
	ring, err := NewEmulatedRing(Config{Entries: 1, FD: int(f.Fd())}, EmulatedOptions{})
	require.NoError(t, err)

	require.NoError(t, ring.PrepareRead(make([]byte, 8), 0, 0))
	err = ring.PrepareRead(make([]byte, 8), 8, 1)
	assert.True(t, errs.IsCode(err, errs.CodeInternal))
}

func TestEmulatedRingUnsatisfiableWait(t *testing.T) {
	f := tempFile(t, 4096)
	ring, err := NewEmulatedRing(Config{Entries: 4, FD: int(f.Fd())}, EmulatedOptions{})
	require.NoError(t, err)

	require.NoError(t, ring.PrepareRead(make([]byte, 8), 0, 0))
	_, err = ring.SubmitAndWait(2)
	assert.True(t, errs.IsCode(err, errs.CodeInternal))
}

func TestEmulatedRingShuffledPartialCompletion(t *testing.T) {
	f := tempFile(t, 64*1024)
	ring, err := NewEmulatedRing(Config{Entries: 16, FD: int(f.Fd())}, EmulatedOptions{Seed: 42})
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		require.NoError(t, ring.PrepareRead(make([]byte, 8), uint64(i*4096), uint64(i)))
	}

	seen := map[uint64]bool{}
	for ring.Outstanding() > 0 {
		_, err := ring.SubmitAndWait(1)
		require.NoError(t, err)
		n, err := ring.Drain(func(c Completion) error {
			assert.False(t, seen[c.Tag], "tag %d completed twice", c.Tag)
			seen[c.Tag] = true
			assert.Equal(t, int32(8), c.Res)
			return nil
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
	}
	assert.Len(t, seen, 16)
	assert.Equal(t, 16, ring.MaxOutstanding())
}

func TestEmulatedRingDrainStopsOnError(t *testing.T) {
	f := tempFile(t, 8192)
	ring, err := NewEmulatedRing(Config{Entries: 4, FD: int(f.Fd())}, EmulatedOptions{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, ring.PrepareRead(make([]byte, 8), uint64(i*8), uint64(i)))
	}
	_, err = ring.SubmitAndWait(3)
	require.NoError(t, err)

	stop := errs.New("test", errs.CodeInternal, "stop")
	n, err := ring.Drain(func(c Completion) error {
		if c.Tag == 1 {
			return stop
		}
		return nil
	})
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, ring.Outstanding())

	n, err = ring.Drain(func(c Completion) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, EngineKernel, e)

	e, err = ParseEngine("Emulated")
	require.NoError(t, err)
	assert.Equal(t, EngineEmulated, e)

	_, err = ParseEngine("spdk")
	assert.True(t, errs.IsCode(err, errs.CodeConfiguration))
}
