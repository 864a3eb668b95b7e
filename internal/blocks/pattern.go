package blocks

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/ehrlich-b/go-blockbench/internal/constants"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
)

// PatternKind selects how cursor indices map to blocks
type PatternKind int

const (
	Sequential PatternKind = iota // index i visits block i
	Strided                       // index i visits block (i*m) mod N
)

// AccessPattern maps a cursor index to a block number
type AccessPattern struct {
	Kind       PatternKind
	Multiplier uint64 // Strided only
}

// SequentialPattern visits blocks in file order
func SequentialPattern() AccessPattern {
	return AccessPattern{Kind: Sequential}
}

// StridedPattern visits block (i*m) mod N for index i
func StridedPattern(multiplier uint64) AccessPattern {
	return AccessPattern{Kind: Strided, Multiplier: multiplier}
}

// DefaultPattern is the strided walk with the default multiplier
func DefaultPattern() AccessPattern {
	return StridedPattern(constants.DefaultStrideMultiplier)
}

// ParsePattern resolves a pattern name. The multiplier is ignored for
// sequential patterns.
func ParsePattern(name string, multiplier uint64) (AccessPattern, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sequential", "seq":
		return SequentialPattern(), nil
	case "strided", "stride", "":
		if multiplier == 0 {
			multiplier = constants.DefaultStrideMultiplier
		}
		return StridedPattern(multiplier), nil
	default:
		return AccessPattern{}, errs.Newf("parse_pattern", errs.CodeConfiguration, "unknown access pattern %q", name)
	}
}

// Validate checks that the pattern is a permutation of [0, blockCount)
func (p AccessPattern) Validate(blockCount uint64) error {
	if blockCount == 0 {
		return errs.New("pattern", errs.CodeConfiguration, "empty address space")
	}
	switch p.Kind {
	case Sequential:
		return nil
	case Strided:
		if p.Multiplier == 0 {
			return errs.New("pattern", errs.CodeConfiguration, "stride multiplier must be nonzero")
		}
		if g := gcd(p.Multiplier%blockCount, blockCount); g != 1 {
			return errs.Newf("pattern", errs.CodeConfiguration,
				"stride %d shares factor %d with block count %d", p.Multiplier, g, blockCount)
		}
		return nil
	default:
		return errs.Newf("pattern", errs.CodeConfiguration, "unknown pattern kind %d", p.Kind)
	}
}

// Block maps index i in [0, n) to a block number in [0, n)
func (p AccessPattern) Block(i, n uint64) uint64 {
	if p.Kind == Sequential {
		return i
	}
	hi, lo := bits.Mul64(i, p.Multiplier)
	return bits.Rem64(hi, lo, n)
}

func (p AccessPattern) String() string {
	if p.Kind == Sequential {
		return "sequential"
	}
	return fmt.Sprintf("strided(%d)", p.Multiplier)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
