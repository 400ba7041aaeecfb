package arena

import (
	"math/bits"
)

// Blocks come in power of two size classes. A block keeps its class for the
// arena's whole lifetime: it is carved once at some class size and from then
// on only travels between that class's free list and its users.
const (
	minBlockShift = 4
	maxBlockShift = 20

	// MinBlockSize is the smallest block the arena hands out. Every
	// allocation is at least this large and aligned at least this much.
	MinBlockSize = uint64(1) << minBlockShift
	// MaxBlockSize is the largest request Allocate accepts.
	MaxBlockSize = uint64(1) << maxBlockShift

	classCount = maxBlockShift - minBlockShift + 1
)

func classOf(size uint64) int {
	if size <= MinBlockSize {
		return 0
	}
	return bits.Len64(size-1) - minBlockShift
}

func classSize(class int) uint64 {
	return uint64(1) << (uint(class) + minBlockShift)
}
