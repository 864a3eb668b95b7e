package queue

import (
	"math/bits"
	"sync"

	"github.com/ncw/directio"
)

// Heap buffers for the synchronous strategies (seek, bulk, pread). Sizes are
// rounded up to a power of two between 4 KiB and 64 MiB and pooled per size.
// Every buffer is aligned for O_DIRECT.
//
// Uses *[]byte to avoid the sync.Pool interface allocation.

const (
	minBucketShift = 12 // 4 KiB
	maxBucketShift = 26 // 64 MiB
	numBuckets     = maxBucketShift - minBucketShift + 1
)

var bucketPools [numBuckets]sync.Pool

func init() {
	for i := range bucketPools {
		size := 1 << (minBucketShift + i)
		bucketPools[i].New = func() any {
			b := directio.AlignedBlock(size)
			b = b[:size:size]
			return &b
		}
	}
}

// bucketFor returns the bucket index for size, or -1 when it is too large
func bucketFor(size int) int {
	if size <= 1<<minBucketShift {
		return 0
	}
	shift := bits.Len(uint(size - 1))
	if shift > maxBucketShift {
		return -1
	}
	return shift - minBucketShift
}

// GetBuffer returns an aligned buffer of exactly size bytes. Sizes above
// 64 MiB are allocated directly and never pooled.
// Caller must call PutBuffer when done.
func GetBuffer(size int) []byte {
	idx := bucketFor(size)
	if idx < 0 {
		return directio.AlignedBlock(size)
	}
	return (*bucketPools[idx].Get().(*[]byte))[:size]
}

// PutBuffer returns a buffer to the pool.
// The buffer's capacity determines which pool it goes to.
func PutBuffer(buf []byte) {
	c := cap(buf)
	if c == 0 || c&(c-1) != 0 {
		return
	}
	idx := bucketFor(c)
	if idx < 0 || c != 1<<(minBucketShift+idx) {
		return
	}
	buf = buf[:c]
	bucketPools[idx].Put(&buf)
}
