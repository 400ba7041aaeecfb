package arc

import (
	"sync/atomic"

	"github.com/brickingsoft/arc/pkg/arena"
	"github.com/brickingsoft/errors"
)

// Atomic is a slot that always holds exactly one live handle. Every
// operation is a single atomic instruction or a bounded compare and swap
// loop, nothing blocks. The slot owns one strong reference for whatever
// word it currently holds; operations move that reference around but never
// lose it. For a slot that can be empty, see AtomicOption.
//
// Slots must be created by NewAtomic or NewAtomicValue, the zero value has
// no reference to own and panics on use.
type Atomic[T any] struct {
	word atomic.Uintptr
	mem  *arena.Arena
}

// NewAtomic builds a slot around the handle, consuming it.
func NewAtomic[T any](h *Tagged[T]) *Atomic[T] {
	if h == nil || h.word == 0 {
		panic(errors.New("arc: nil handle"))
	}
	a := &Atomic[T]{mem: h.mem}
	a.word.Store(h.take())
	return a
}

// NewAtomicValue allocates a cell for value under tag and builds a slot
// holding it.
func NewAtomicValue[T any](mem *arena.Arena, value T, tag uintptr) (*Atomic[T], error) {
	h, err := NewTagged[T](mem, value, tag)
	if err != nil {
		return nil, err
	}
	return NewAtomic(&h), nil
}

// Load returns the slot's current handle with a fresh strong reference on
// it. The slot keeps its own reference, so the caller owns what it gets and
// drops it when done.
//
// Load accepts Relaxed, Acquire and SeqCst.
func (a *Atomic[T]) Load(order Ordering) Tagged[T] {
	checkLoadOrdering(order)
	return Tagged[T]{word: a.pin(), mem: a.mem}
}

// Store replaces the slot's handle with h, consuming h and dropping the
// replaced reference. If that reference was the last one for its cell, the
// cell is freed before Store returns.
//
// Store accepts Relaxed, Release and SeqCst.
func (a *Atomic[T]) Store(h *Tagged[T], order Ordering) {
	checkStoreOrdering(order)
	if a.word.Load() == 0 {
		// Fail before consuming h, the handle stays with the caller.
		panic(errors.New("arc: use of released slot"))
	}
	old := a.word.Swap(requireWord(a.mem, h))
	if old == 0 {
		panic(errors.New("arc: use of released slot"))
	}
	dropWord[T](a.mem, old)
}

// Swap replaces the slot's handle with h, consuming h, and returns the
// previous handle with the slot's reference attached. No count moves at
// all: both references just change owners.
//
// Swap accepts every ordering.
func (a *Atomic[T]) Swap(h *Tagged[T], order Ordering) Tagged[T] {
	checkUpdateOrdering(order)
	if a.word.Load() == 0 {
		// Fail before consuming h, the handle stays with the caller.
		panic(errors.New("arc: use of released slot"))
	}
	old := a.word.Swap(requireWord(a.mem, h))
	if old == 0 {
		panic(errors.New("arc: use of released slot"))
	}
	return Tagged[T]{word: old, mem: a.mem}
}

// CompareExchange installs new only if the slot's word is bitwise equal to
// current's word. Equal means pointer and tag both: the same cell under
// another tag does not match. The caller must hold current as a live
// handle, which is also what makes the comparison safe: the cell behind a
// live handle cannot be freed and recycled, so a matching bit pattern
// really is the same reference and not a lucky reuse.
//
// On success the returned handle carries the slot's previous reference,
// swapped is true and new has been consumed. On failure new is untouched
// and stays with the caller, the returned handle is a freshly pinned
// reference to the value actually in the slot, and swapped is false.
// current is never consumed either way.
//
// Success accepts every ordering, failure accepts Relaxed, Acquire and
// SeqCst.
func (a *Atomic[T]) CompareExchange(current *Tagged[T], new *Tagged[T], success Ordering, failure Ordering) (prev Tagged[T], swapped bool) {
	checkUpdateOrdering(success)
	checkFailureOrdering(failure)
	if current == nil || current.word == 0 {
		panic(errors.New("arc: nil handle"))
	}
	if new == nil || new.word == 0 {
		panic(errors.New("arc: nil handle"))
	}
	if debugEnabled && new.mem != a.mem {
		panic(errors.New("arc: handle belongs to a different arena"))
	}
	if a.word.CompareAndSwap(current.word, new.word) {
		prev = Tagged[T]{word: current.word, mem: a.mem}
		new.take()
		swapped = true
		return
	}
	prev = Tagged[T]{word: a.pin(), mem: a.mem}
	return
}

// CompareExchangeWeak is CompareExchange under a contract that additionally
// allows spurious failure. Go's compare and swap does not fail spuriously,
// so the two behave identically here; code written against the weak
// contract simply keeps its retry loop.
func (a *Atomic[T]) CompareExchangeWeak(current *Tagged[T], new *Tagged[T], success Ordering, failure Ordering) (prev Tagged[T], swapped bool) {
	return a.CompareExchange(current, new, success, failure)
}

// FetchUpdate loads the slot, lets f propose a replacement and installs it
// with compare and exchange, retrying from a fresh load whenever another
// writer got in between. f borrows prev and must not consume it; the
// handle f returns is consumed on success and dropped on a failed attempt.
// When f declines by returning false, the slot stays as it is.
//
// The returned handle is the value the final attempt observed, owned by the
// caller; the bool reports whether an update was installed.
//
// set accepts every ordering, fetch accepts Relaxed, Acquire and SeqCst.
func (a *Atomic[T]) FetchUpdate(set Ordering, fetch Ordering, f func(prev *Tagged[T]) (next Tagged[T], ok bool)) (Tagged[T], bool) {
	checkUpdateOrdering(set)
	checkLoadOrdering(fetch)
	for {
		prev := Tagged[T]{word: a.pin(), mem: a.mem}
		next, ok := f(&prev)
		if !ok {
			next.Drop()
			return prev, false
		}
		if next.word == 0 {
			panic(errors.New("arc: nil handle"))
		}
		if debugEnabled && next.mem != a.mem {
			panic(errors.New("arc: handle belongs to a different arena"))
		}
		// prev is pinned, so its cell cannot be recycled and a bitwise
		// match below means identity.
		if a.word.CompareAndSwap(prev.word, next.word) {
			next.take()
			dropWord[T](a.mem, prev.word)
			return prev, true
		}
		next.Drop()
		prev.Drop()
	}
}

// Drop releases the slot's own reference and leaves the slot unusable.
// Handles loaded from it earlier stay valid, they carry their own counts.
func (a *Atomic[T]) Drop() {
	if old := a.word.Swap(0); old != 0 {
		dropWord[T](a.mem, old)
	}
}

func (a *Atomic[T]) pin() uintptr {
	word := pinSlot[T](&a.word, a.mem)
	if word == 0 {
		panic(errors.New("arc: use of released slot"))
	}
	return word
}

// requireWord takes ownership of a handle that must be live.
func requireWord[T any](mem *arena.Arena, h *Tagged[T]) uintptr {
	if h == nil || h.word == 0 {
		panic(errors.New("arc: nil handle"))
	}
	if debugEnabled && h.mem != mem {
		panic(errors.New("arc: handle belongs to a different arena"))
	}
	return h.take()
}

// adoptWord takes ownership of a handle that may be nil, mapping nil to the
// empty word.
func adoptWord[T any](mem *arena.Arena, h *Tagged[T]) uintptr {
	if h == nil || h.word == 0 {
		return 0
	}
	if debugEnabled && h.mem != mem {
		panic(errors.New("arc: handle belongs to a different arena"))
	}
	return h.take()
}
