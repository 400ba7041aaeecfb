// Package arc provides atomic slots over reference counted, tagged pointers.
//
// A value lives in an arena cell together with a strong reference count. A
// handle to the cell is one machine word: the cell address with a small tag
// packed into the low bits the cell's alignment leaves free. Because the
// whole handle is one word, a slot holding it supports the full set of
// atomic operations: load, store, swap, compare and exchange and fetch
// update, each of which moves whole strong references around instead of
// copying values.
//
// Handles are owning: exactly one live handle stands behind each count the
// cell carries. Operations that give a handle away consume it, the consumed
// value becomes nil and further use panics. Dropping the last handle frees
// the cell back to the arena at once, there is no deferred reclamation.
package arc

import (
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/brickingsoft/arc/pkg/arena"
	"github.com/brickingsoft/arc/pkg/lowbits"
	"github.com/brickingsoft/errors"
)

// cell is the in-arena form of one allocation: the strong count, the word
// the arena keeps for itself, then the value. The count must stay the first
// word. The arena never writes a block's first word and keeps it zero while
// the block is free, so a count read through a stale address answers "dead"
// instead of garbage, whatever type the block held before. That is what
// lets slot loads speculate on addresses they do not own yet. The second
// word is the arena's free list link and is never touched here, not even
// while the cell is live, so link reads by racing allocator pops stay clean.
type cell[T any] struct {
	count atomic.Int64
	_     [8]byte
	value T
}

// cellAlignFloor is the alignment the arena actually delivers. Alignof can
// report less for small types, claiming the floor keeps the tag mask the
// same on every platform.
const cellAlignFloor = 8

func cellOf[T any](addr uintptr) *cell[T] {
	// Arena blocks live outside the Go heap and never move, the uintptr
	// round trip is safe here.
	return (*cell[T])(unsafe.Pointer(addr))
}

func cellSize[T any]() uint64 {
	var c cell[T]
	return uint64(unsafe.Sizeof(c))
}

func cellMask[T any]() uintptr {
	var c cell[T]
	align := unsafe.Alignof(c)
	if align < cellAlignFloor {
		align = cellAlignFloor
	}
	return lowbits.Mask(align)
}

var plainTypes sync.Map // reflect.Type -> bool

// assertPlainData refuses value types the collector would need to trace.
// Cells live outside the Go heap, a pointer stored in one would keep nothing
// alive.
func assertPlainData[T any]() {
	var zero T
	rt := reflect.TypeOf(zero)
	if rt == nil {
		panic(errors.New("arc: interface types hold Go pointers"))
	}
	known, ok := plainTypes.Load(rt)
	if !ok {
		known = plainData(rt)
		plainTypes.Store(rt, known)
	}
	if !known.(bool) {
		panic(errors.New("arc: type " + rt.String() + " holds Go pointers"))
	}
}

func plainData(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return plainData(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if !plainData(rt.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

const maxBackoff = 16

// pinWord tries to turn a word read from a slot into an owned reference.
// The count loop refuses zero: once a cell's count reaches zero the cell is
// free, or already recycled under a fresh count, and incrementing from zero
// would resurrect it under its old owner's feet.
func pinWord[T any](word uintptr) bool {
	addr, _ := lowbits.Decompose(word, cellMask[T]())
	count := &cellOf[T](addr).count
	for {
		n := count.Load()
		if n == 0 {
			return false
		}
		if count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// dropWord gives up one strong reference for a word, freeing the cell when
// that was the last one.
func dropWord[T any](mem *arena.Arena, word uintptr) {
	addr, _ := lowbits.Decompose(word, cellMask[T]())
	if n := cellOf[T](addr).count.Add(-1); n == 0 {
		mem.Free(addr, cellSize[T]())
	} else if n < 0 {
		panic(errors.New("arc: reference count below zero"))
	}
}

// pinSlot loads a slot and returns its word with one fresh strong reference
// attached, or 0 when the slot is empty. A successful pin is re-checked
// against the slot: if the slot moved on meanwhile, the pin landed on a
// value that was already on its way out (or on a recycled cell) and is
// given back before another round.
func pinSlot[T any](slot *atomic.Uintptr, mem *arena.Arena) uintptr {
	backoff := 1
	for {
		word := slot.Load()
		if word == 0 {
			return 0
		}
		if pinWord[T](word) {
			if slot.Load() == word {
				return word
			}
			dropWord[T](mem, word)
		}
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackoff {
			backoff <<= 1
		}
	}
}
