// Package lowbits packs small integer tags into the low bits of aligned
// machine addresses. An address aligned to a power of two keeps its lowest
// bits clear, so those bits can carry a tag and the combined word still fits
// in a single atomic cell.
package lowbits

// Mask returns the tag mask for an alignment. The alignment must be a power
// of two that is at least 1. Alignment 1 yields mask 0: no bits are free and
// every tag truncates to zero.
func Mask(align uintptr) uintptr {
	return align - 1
}

// Compose merges an aligned address with a tag. Tag bits that don't fit in
// the mask are discarded. The address must be aligned to the mask, otherwise
// the low address bits and the tag bleed into each other.
func Compose(addr uintptr, tag uintptr, mask uintptr) uintptr {
	return (addr &^ mask) | (tag & mask)
}

// Decompose splits a packed word back into the address and the tag.
func Decompose(word uintptr, mask uintptr) (addr uintptr, tag uintptr) {
	addr = word &^ mask
	tag = word & mask
	return
}

// Aligned reports whether an address has no bits inside the mask, that is,
// whether Compose would preserve it exactly.
func Aligned(addr uintptr, mask uintptr) bool {
	return addr&mask == 0
}
