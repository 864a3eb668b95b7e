// Package fixture creates and checks the file scanned by the benchmark.
// The byte at offset o is (o mod 1 MiB) mod 47, so the expected checksum of
// any scan can be computed without reading the file.
package fixture

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/natefinch/atomic"
	"github.com/zeebo/xxh3"

	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/constants"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/logging"
)

var chunk = func() []byte {
	b := make([]byte, constants.FixtureChunkSize)
	for i := range b {
		b[i] = byte(i % constants.FixturePatternModulus)
	}
	return b
}()

// PatternByte is the fixture byte at offset
func PatternByte(offset uint64) byte {
	return chunk[offset%constants.FixtureChunkSize]
}

// PatternChecksum is the checksum every strategy must report for geo
func PatternChecksum(geo blocks.Geometry) uint64 {
	var sum uint64
	n := geo.BlockCount()
	for b := uint64(0); b < n; b++ {
		sum += uint64(PatternByte(geo.Offset(b)))
	}
	return sum
}

// Reader streams size bytes of the fixture pattern
type Reader struct {
	size uint64
	off  uint64
}

// NewReader returns a reader over the first size bytes of the pattern
func NewReader(size uint64) *Reader {
	return &Reader{size: size}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.off >= r.size {
		return 0, io.EOF
	}
	if rem := r.size - r.off; uint64(len(p)) > rem {
		p = p[:rem]
	}
	n := 0
	for n < len(p) {
		c := copy(p[n:], chunk[(r.off+uint64(n))%constants.FixtureChunkSize:])
		n += c
	}
	r.off += uint64(n)
	return n, nil
}

// Create writes a size-byte fixture at path. The file appears atomically
// once it is complete and synced.
func Create(path string, size uint64) error {
	if err := atomic.WriteFile(path, NewReader(size)); err != nil {
		e := errs.WrapError("fixture_create", err)
		e.Code = errs.CodeResource
		return e
	}
	return nil
}

// Status describes the fixture found at a path
type Status struct {
	Created bool   // Ensure wrote the file
	Size    uint64 // current size
	Short   bool   // smaller than requested; scans will fail with a short read
}

// Ensure creates the fixture when path does not exist. An existing file is
// never modified, even when it is shorter than size.
func Ensure(path string, size uint64, logger *logging.Logger) (Status, error) {
	if logger == nil {
		logger = logging.Default()
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("creating fixture", "path", path, "size", size)
		if err := Create(path, size); err != nil {
			return Status{}, err
		}
		return Status{Created: true, Size: size}, nil
	case err != nil:
		e := errs.WrapError("fixture_stat", err)
		e.Code = errs.CodeResource
		return Status{}, e
	case !info.Mode().IsRegular():
		return Status{}, errs.Newf("fixture_stat", errs.CodeConfiguration, "%s is not a regular file", path)
	}

	st := Status{Size: uint64(info.Size())}
	if st.Size < size {
		st.Short = true
		logger.Warn("fixture smaller than scan size", "path", path, "size", st.Size, "want", size)
	}
	return st, nil
}

// Fingerprint hashes the first min(size, 1 MiB) bytes of the file at path
func Fingerprint(path string) (uint64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errs.WrapError("fixture_open", err)
	}
	defer f.Close()

	buf := make([]byte, constants.FixtureChunkSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, 0, errs.WrapError("fixture_read", err)
	}
	return xxh3.Hash(buf[:n]), n, nil
}

// Verify reports whether the file at path starts with the fixture pattern
func Verify(path string) (bool, error) {
	sum, n, err := Fingerprint(path)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return sum == xxh3.Hash(chunk[:n]), nil
}
