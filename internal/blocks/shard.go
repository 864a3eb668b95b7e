package blocks

import "github.com/ehrlich-b/go-blockbench/internal/errs"

// Shard is a contiguous range of cursor indices owned by one worker
type Shard struct {
	Index int
	Start uint64
	Span  uint64
}

// End is one past the last index of the shard
func (s Shard) End() uint64 {
	return s.Start + s.Span
}

// ShardPlan splits [0, BlockCount) into disjoint contiguous shards
type ShardPlan struct {
	BlockCount uint64
	Shards     []Shard
}

// PlanShards divides blockCount indices into shardCount shards of
// blockCount/shardCount each. The last shard absorbs the remainder.
func PlanShards(blockCount uint64, shardCount int) (ShardPlan, error) {
	if shardCount <= 0 {
		return ShardPlan{}, errs.Newf("plan_shards", errs.CodeConfiguration, "shard count must be positive, got %d", shardCount)
	}
	if uint64(shardCount) > blockCount {
		return ShardPlan{}, errs.Newf("plan_shards", errs.CodeConfiguration,
			"shard count %d exceeds block count %d", shardCount, blockCount)
	}

	per := blockCount / uint64(shardCount)
	plan := ShardPlan{BlockCount: blockCount, Shards: make([]Shard, shardCount)}
	for s := 0; s < shardCount; s++ {
		start := uint64(s) * per
		span := per
		if s == shardCount-1 {
			span = blockCount - start
		}
		plan.Shards[s] = Shard{Index: s, Start: start, Span: span}
	}
	return plan, nil
}

// Whole is the single shard covering every index
func Whole(blockCount uint64) Shard {
	return Shard{Index: 0, Start: 0, Span: blockCount}
}
