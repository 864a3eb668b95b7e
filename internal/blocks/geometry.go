// Package blocks describes the block address space of a scan: its geometry,
// the order blocks are visited in, and how the index range is split
// between workers.
package blocks

import (
	"github.com/ehrlich-b/go-blockbench/internal/constants"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// Geometry is the immutable shape of the scanned file
type Geometry struct {
	TotalBytes   uint64
	BlockSize    uint64
	PageReadSize uint64
}

// DefaultGeometry returns the 10 GiB / 64 KiB / 4 KiB layout
func DefaultGeometry() Geometry {
	return Geometry{
		TotalBytes:   constants.DefaultTotalBytes,
		BlockSize:    constants.DefaultBlockSize,
		PageReadSize: constants.DefaultPageReadSize,
	}
}

// NewGeometry validates and returns a Geometry. A trailing partial block
// is rejected rather than silently dropped.
func NewGeometry(totalBytes, blockSize, pageReadSize uint64) (Geometry, error) {
	g := Geometry{TotalBytes: totalBytes, BlockSize: blockSize, PageReadSize: pageReadSize}
	return g, g.Validate()
}

// Validate checks the geometry invariants
func (g Geometry) Validate() error {
	switch {
	case g.TotalBytes == 0 || g.BlockSize == 0 || g.PageReadSize == 0:
		return errs.Newf("geometry", errs.CodeConfiguration,
			"sizes must be nonzero (total=%d block=%d page=%d)", g.TotalBytes, g.BlockSize, g.PageReadSize)
	case g.PageReadSize > g.BlockSize:
		return errs.Newf("geometry", errs.CodeConfiguration,
			"page read size %d exceeds block size %d", g.PageReadSize, g.BlockSize)
	case g.TotalBytes%g.BlockSize != 0:
		return errs.Newf("geometry", errs.CodeConfiguration,
			"total size %d is not a multiple of block size %d", g.TotalBytes, g.BlockSize)
	}
	return nil
}

// BlockCount is the number of blocks in the address space
func (g Geometry) BlockCount() uint64 {
	return g.TotalBytes / g.BlockSize
}

// Offset returns the byte offset of a block's first page
func (g Geometry) Offset(block uint64) uint64 {
	return block * g.BlockSize
}
