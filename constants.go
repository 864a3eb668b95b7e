package blockbench

import "github.com/ehrlich-b/go-blockbench/internal/constants"

// Re-export constants for public API
const (
	DefaultTotalBytes       = constants.DefaultTotalBytes
	DefaultBlockSize        = constants.DefaultBlockSize
	DefaultPageReadSize     = constants.DefaultPageReadSize
	DefaultWindowCapacity   = constants.DefaultWindowCapacity
	DefaultBatchWait        = constants.DefaultBatchWait
	DefaultRingEntries      = constants.DefaultRingEntries
	DefaultWorkers          = constants.DefaultWorkers
	DefaultStrideMultiplier = constants.DefaultStrideMultiplier
	DefaultFixturePath      = constants.DefaultFixturePath
)
