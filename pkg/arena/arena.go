// Package arena is a fixed, lock-free memory region for reference counted
// cells. Cell addresses are stored back as raw words inside atomic slots, so
// cells cannot live on the Go heap: the collector would never see them
// through a uintptr. The arena reserves one region up front, hands out
// power of two blocks from it and keeps the region mapped until Close, which
// makes every block address stable for the arena's whole lifetime.
//
// The arena is built for cells that keep a strong reference count in their
// first word. Blocks must be freed only after that word dropped to zero, and
// the allocator promises in return that it never writes a block's first
// word: free list links live at byte offset 8. A freed block therefore
// reads as "count zero" to any racing acquirer until a new owner publishes
// a fresh count, which is what makes optimistic count increments on stale
// addresses safe. The link word cuts the other way: bytes 8 to 16 of every
// block belong to the allocator at all times, live blocks must leave them
// alone so that a pop racing with reuse reads a link, never somebody's
// data.
package arena

import (
	"os"
	"strconv"
	"sync/atomic"
	"unsafe"

	"github.com/brickingsoft/errors"
)

const (
	// reservedBytes keeps block offset 0 unused, so 0 can mean "no block"
	// in free list links and the all zero word stays an impossible cell
	// address.
	reservedBytes = uint64(16)

	// Free list heads pack a version counter above the block offset. The
	// version bumps on every successful head update, which keeps a stalled
	// pop from landing its compare and swap on a recycled head. A 16 bit
	// version can wrap, but a full wrap inside one pop attempt is not a
	// realistic schedule.
	offsetBits = 48
	offsetMask = uint64(1)<<offsetBits - 1

	// linkOffset is where a block stores the offset of its free list
	// successor. Never 0: the first word belongs to the reference count
	// protocol. The link word is the allocator's in live blocks too.
	linkOffset = 8
	// headerBytes covers the count word and the link word. Debug poisoning
	// must not reach into either.
	headerBytes = 16

	poisonByte = 0xbd
)

type Arena struct {
	region  []byte
	base    uintptr
	size    uint64
	bump    atomic.Uint64
	classes [classCount]atomic.Uint64
	live    atomic.Int64
	allocs  atomic.Uint64
	frees   atomic.Uint64
	closed  atomic.Bool
}

// New reserves a region and returns an arena carved out of it. The region
// size comes from WithSize, defaults to DefaultSize and is rounded up to a
// whole number of pages. On unix the region is an anonymous private mapping,
// elsewhere a heap slice.
func New(options ...Option) (*Arena, error) {
	opts := Options{
		Size: DefaultSize,
	}
	for _, option := range options {
		if err := option(&opts); err != nil {
			return nil, err
		}
	}
	pageSize := uint64(os.Getpagesize())
	size := (opts.Size + pageSize - 1) / pageSize * pageSize
	region, err := mapRegion(size)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&region[0]))
	// Blocks must sit on 16 byte boundaries. Mapped regions are page
	// aligned anyway, the heap fallback may need a nudge.
	pad := uint64(0)
	if rem := uint64(base) & (MinBlockSize - 1); rem != 0 {
		pad = MinBlockSize - rem
	}
	a := &Arena{
		region: region,
		base:   base + uintptr(pad),
		size:   size - pad,
	}
	a.bump.Store(reservedBytes)
	return a, nil
}

// Allocate returns the address of a zeroed-or-recycled block that holds at
// least size bytes. The address is always a multiple of 16. Blocks above
// MaxBlockSize are refused, a full region reports ErrOutOfMemory.
//
// Allocate never blocks: it pops the size class free list or bumps the
// region watermark, both with compare and swap loops.
func (a *Arena) Allocate(size uint64) (addr uintptr, err error) {
	if a.closed.Load() {
		err = errors.New(
			"allocate failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpAllocate),
			errors.WithWrap(ErrClosed),
		)
		return
	}
	if size == 0 {
		err = errors.New(
			"allocate failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpAllocate),
			errors.WithWrap(ErrInvalidSize),
		)
		return
	}
	if size > MaxBlockSize {
		err = errors.New(
			"allocate failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpAllocate),
			errors.WithMeta("size", strconv.FormatUint(size, 10)),
			errors.WithWrap(ErrSizeTooLarge),
		)
		return
	}
	class := classOf(size)
	if off, ok := a.pop(class); ok {
		a.live.Add(1)
		a.allocs.Add(1)
		addr = a.base + uintptr(off)
		return
	}
	blockSize := classSize(class)
	for {
		cur := a.bump.Load()
		next := cur + blockSize
		if next > a.size {
			err = errors.New(
				"allocate failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpAllocate),
				errors.WithMeta("size", strconv.FormatUint(size, 10)),
				errors.WithWrap(ErrOutOfMemory),
			)
			return
		}
		if a.bump.CompareAndSwap(cur, next) {
			a.live.Add(1)
			a.allocs.Add(1)
			addr = a.base + uintptr(cur)
			return
		}
	}
}

// Free returns a block to its size class. The size must be the one the block
// was allocated with and the block's first word must already be zero. Freeing
// a foreign address or freeing twice corrupts the arena, so membership is
// checked always and the first word in debug builds.
func (a *Arena) Free(addr uintptr, size uint64) {
	if !a.Contains(addr) {
		panic(errors.New(
			"free of address outside the arena",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpFree),
		))
	}
	if size == 0 || size > MaxBlockSize {
		panic(errors.New(
			"free with bad size",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpFree),
			errors.WithMeta("size", strconv.FormatUint(size, 10)),
		))
	}
	off := uint64(addr - a.base)
	class := classOf(size)
	if debugEnabled {
		if w := (*atomic.Uint64)(unsafe.Pointer(addr)).Load(); w != 0 {
			panic(errors.New(
				"free of block whose first word is not zero",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpFree),
			))
		}
		if blockSize := classSize(class); blockSize > headerBytes {
			b := unsafe.Slice((*byte)(unsafe.Pointer(addr+headerBytes)), blockSize-headerBytes)
			for i := range b {
				b[i] = poisonByte
			}
		}
	}
	a.push(class, off)
	a.live.Add(-1)
	a.frees.Add(1)
}

func (a *Arena) push(class int, off uint64) {
	head := &a.classes[class]
	for {
		old := head.Load()
		a.link(off).Store(old & offsetMask)
		ver := old>>offsetBits + 1
		if head.CompareAndSwap(old, ver<<offsetBits|off) {
			return
		}
	}
}

func (a *Arena) pop(class int) (off uint64, ok bool) {
	head := &a.classes[class]
	for {
		old := head.Load()
		off = old & offsetMask
		if off == 0 {
			return 0, false
		}
		next := a.link(off).Load()
		ver := old>>offsetBits + 1
		if head.CompareAndSwap(old, ver<<offsetBits|next) {
			return off, true
		}
	}
}

func (a *Arena) link(off uint64) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(a.base + uintptr(off) + linkOffset))
}

// Contains reports whether addr points into the arena's region.
func (a *Arena) Contains(addr uintptr) bool {
	return addr >= a.base && addr < a.base+uintptr(a.size)
}

// Live returns the number of blocks currently allocated.
func (a *Arena) Live() int64 {
	return a.live.Load()
}

// Allocs returns the total number of successful allocations.
func (a *Arena) Allocs() uint64 {
	return a.allocs.Load()
}

// Frees returns the total number of frees.
func (a *Arena) Frees() uint64 {
	return a.frees.Load()
}

// Size returns the usable region size in bytes.
func (a *Arena) Size() uint64 {
	return a.size
}

// Used returns the high watermark of carved bytes. Freed blocks stay carved,
// they wait on their class free list, so Used never decreases.
func (a *Arena) Used() uint64 {
	return a.bump.Load()
}

// Close releases the region. It fails with ErrNotEmpty while blocks are
// still live and with ErrClosed when called twice. Callers must make sure no
// allocation or free is in flight.
func (a *Arena) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return errors.New(
			"close failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpClose),
			errors.WithWrap(ErrClosed),
		)
	}
	if n := a.live.Load(); n != 0 {
		a.closed.Store(false)
		return errors.New(
			"close failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpClose),
			errors.WithMeta("live", strconv.FormatInt(n, 10)),
			errors.WithWrap(ErrNotEmpty),
		)
	}
	region := a.region
	a.region = nil
	a.base = 0
	a.size = 0
	return unmapRegion(region)
}
