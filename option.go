package arc

import (
	"sync/atomic"

	"github.com/brickingsoft/arc/pkg/arena"
	"github.com/brickingsoft/errors"
)

// AtomicOption is a slot that may also be empty. Empty is the all zero
// word, which never collides with a handle: the arena keeps block offset
// zero reserved and regions never start at address zero. The nil handle
// stands for empty on the way in and out of every operation, so the
// operation set matches Atomic exactly, with the panics on nil replaced by
// the empty case.
type AtomicOption[T any] struct {
	word atomic.Uintptr
	mem  *arena.Arena
}

// NewAtomicOption builds an empty slot bound to an arena. The arena binding
// is fixed up front so concurrent first stores need no agreement about it.
func NewAtomicOption[T any](mem *arena.Arena) *AtomicOption[T] {
	if mem == nil {
		panic(errors.New("arc: nil arena"))
	}
	return &AtomicOption[T]{mem: mem}
}

// NewAtomicOptionOf builds a slot holding the handle, consuming it. The
// handle must be live, an empty slot comes from NewAtomicOption.
func NewAtomicOptionOf[T any](h *Tagged[T]) *AtomicOption[T] {
	if h == nil || h.word == 0 {
		panic(errors.New("arc: nil handle"))
	}
	a := &AtomicOption[T]{mem: h.mem}
	a.word.Store(h.take())
	return a
}

// Load returns the slot's current handle with a fresh strong reference, or
// the nil handle when the slot is empty.
//
// Load accepts Relaxed, Acquire and SeqCst.
func (a *AtomicOption[T]) Load(order Ordering) Tagged[T] {
	checkLoadOrdering(order)
	word := pinSlot[T](&a.word, a.mem)
	if word == 0 {
		return Tagged[T]{}
	}
	return Tagged[T]{word: word, mem: a.mem}
}

// Store replaces the slot's content with h, consuming it; a nil h empties
// the slot. The replaced reference, if any, is dropped.
//
// Store accepts Relaxed, Release and SeqCst.
func (a *AtomicOption[T]) Store(h *Tagged[T], order Ordering) {
	checkStoreOrdering(order)
	if old := a.word.Swap(adoptWord(a.mem, h)); old != 0 {
		dropWord[T](a.mem, old)
	}
}

// Swap replaces the slot's content with h, consuming it, and returns what
// was there, nil handle included on both sides.
//
// Swap accepts every ordering.
func (a *AtomicOption[T]) Swap(h *Tagged[T], order Ordering) Tagged[T] {
	checkUpdateOrdering(order)
	old := a.word.Swap(adoptWord(a.mem, h))
	if old == 0 {
		return Tagged[T]{}
	}
	return Tagged[T]{word: old, mem: a.mem}
}

// CompareExchange behaves like Atomic.CompareExchange with the empty state
// joining in: a nil current expects an empty slot, a nil new empties it.
// When current is non nil the caller must hold it live, the pinned cell is
// what keeps the bitwise comparison honest. Expecting empty needs no pin,
// the empty word is not an address and cannot be recycled.
//
// Success accepts every ordering, failure accepts Relaxed, Acquire and
// SeqCst.
func (a *AtomicOption[T]) CompareExchange(current *Tagged[T], new *Tagged[T], success Ordering, failure Ordering) (prev Tagged[T], swapped bool) {
	checkUpdateOrdering(success)
	checkFailureOrdering(failure)
	var currentWord uintptr
	if current != nil {
		currentWord = current.word
	}
	var newWord uintptr
	if new != nil {
		if debugEnabled && new.word != 0 && new.mem != a.mem {
			panic(errors.New("arc: handle belongs to a different arena"))
		}
		newWord = new.word
	}
	if a.word.CompareAndSwap(currentWord, newWord) {
		if new != nil {
			new.take()
		}
		if currentWord != 0 {
			prev = Tagged[T]{word: currentWord, mem: a.mem}
		}
		swapped = true
		return
	}
	if word := pinSlot[T](&a.word, a.mem); word != 0 {
		prev = Tagged[T]{word: word, mem: a.mem}
	}
	return
}

// CompareExchangeWeak is CompareExchange; see Atomic.CompareExchangeWeak
// for why the weak form is not actually weaker here.
func (a *AtomicOption[T]) CompareExchangeWeak(current *Tagged[T], new *Tagged[T], success Ordering, failure Ordering) (prev Tagged[T], swapped bool) {
	return a.CompareExchange(current, new, success, failure)
}

// FetchUpdate is Atomic.FetchUpdate over the optional state: f may see the
// nil handle and may return one to empty the slot.
//
// set accepts every ordering, fetch accepts Relaxed, Acquire and SeqCst.
func (a *AtomicOption[T]) FetchUpdate(set Ordering, fetch Ordering, f func(prev *Tagged[T]) (next Tagged[T], ok bool)) (Tagged[T], bool) {
	checkUpdateOrdering(set)
	checkLoadOrdering(fetch)
	for {
		prev := a.Load(fetch)
		next, ok := f(&prev)
		if !ok {
			next.Drop()
			return prev, false
		}
		if debugEnabled && next.word != 0 && next.mem != a.mem {
			panic(errors.New("arc: handle belongs to a different arena"))
		}
		if a.word.CompareAndSwap(prev.word, next.word) {
			next.take()
			if prev.word != 0 {
				dropWord[T](a.mem, prev.word)
			}
			return prev, true
		}
		next.Drop()
		prev.Drop()
	}
}

// Drop empties the slot, dropping the held reference if any. Unlike
// Atomic.Drop this leaves the slot usable: empty is a legal state here.
func (a *AtomicOption[T]) Drop() {
	if old := a.word.Swap(0); old != 0 {
		dropWord[T](a.mem, old)
	}
}
