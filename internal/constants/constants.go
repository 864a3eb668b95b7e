package constants

// Address space defaults
const (
	// DefaultTotalBytes is the default fixture size (10 GiB)
	DefaultTotalBytes = 10 << 30

	// DefaultBlockSize is the distance between two sampled pages (64 KiB)
	DefaultBlockSize = 64 * 1024

	// DefaultPageReadSize is the number of bytes read from the head of each block
	DefaultPageReadSize = 4096
)

// Pipelining defaults
const (
	// DefaultWindowCapacity is the number of reads kept in flight per worker
	DefaultWindowCapacity = 4096

	// DefaultBatchWait is the completion count a worker waits for before draining
	DefaultBatchWait = 1024

	// DefaultRingEntries is the submission queue depth per worker ring
	DefaultRingEntries = 4096

	// DefaultWorkers is the worker count used when none is given
	DefaultWorkers = 8
)

// Access pattern defaults
const (
	// DefaultStrideMultiplier is coprime with the default block count (163840)
	DefaultStrideMultiplier = 12373
)

// Strategy tuning
const (
	// BulkChunkBlocks is the number of blocks fetched per bulk read (64 MiB at default geometry)
	BulkChunkBlocks = 1024
)

// Fixture layout
const (
	// FixtureChunkSize is the period of the fixture byte pattern (1 MiB)
	FixtureChunkSize = 1 << 20

	// FixturePatternModulus is the modulus of the per-offset byte value
	FixturePatternModulus = 47

	// DefaultFixturePath is the file scanned when no path is configured
	DefaultFixturePath = "datei"
)
