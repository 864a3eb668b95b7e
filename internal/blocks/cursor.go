package blocks

// Cursor walks one shard's index range and yields block numbers through
// an AccessPattern. Not safe for concurrent use.
type Cursor struct {
	pattern    AccessPattern
	blockCount uint64
	next       uint64
	end        uint64
}

// NewCursor returns a cursor positioned at the start of shard
func NewCursor(shard Shard, pattern AccessPattern, blockCount uint64) *Cursor {
	return &Cursor{
		pattern:    pattern,
		blockCount: blockCount,
		next:       shard.Start,
		end:        shard.End(),
	}
}

// Next returns the next block, or false when the shard is exhausted
func (c *Cursor) Next() (uint64, bool) {
	if c.next >= c.end {
		return 0, false
	}
	b := c.pattern.Block(c.next, c.blockCount)
	c.next++
	return b, true
}

// Remaining is the number of blocks not yet yielded
func (c *Cursor) Remaining() uint64 {
	return c.end - c.next
}
