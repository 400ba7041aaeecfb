package arc

import (
	"github.com/brickingsoft/arc/pkg/arena"
	"github.com/brickingsoft/arc/pkg/lowbits"
	"github.com/brickingsoft/errors"
)

// Tagged is one strong reference to an arena cell together with a small tag,
// the two packed into a single word. The word form is what atomic slots
// exchange, the struct additionally remembers the arena so drops can reach
// the free routine.
//
// A handle owns its reference. Operations that pass ownership on consume the
// receiver: the receiver becomes nil and later use panics, except Drop,
// which is a no-op on nil. Copying a handle does not copy ownership, the
// copy and the original stand for the same single reference and only one of
// them may be used.
type Tagged[T any] struct {
	word uintptr
	mem  *arena.Arena
}

// NewTagged allocates a cell for value and returns the first handle to it
// under the given tag. Tag bits beyond the cell's mask are discarded.
func NewTagged[T any](mem *arena.Arena, value T, tag uintptr) (Tagged[T], error) {
	s, err := New[T](mem, value)
	if err != nil {
		return Tagged[T]{}, err
	}
	return s.Tagged(tag), nil
}

// UnsafeFromWord rebuilds a handle from a word previously obtained through
// Word on a handle that was then deliberately leaked, or through slot
// internals. It performs no count traffic: the caller asserts that the word
// still stands for one owned reference. Getting that wrong is a double free
// or a use after free. Debug builds verify at least that the word points
// into mem.
func UnsafeFromWord[T any](mem *arena.Arena, word uintptr) Tagged[T] {
	if debugEnabled && word != 0 {
		addr, _ := lowbits.Decompose(word, cellMask[T]())
		if addr == 0 || mem == nil || !mem.Contains(addr) {
			panic(errors.New("arc: word does not name a cell of this arena"))
		}
	}
	if word == 0 {
		return Tagged[T]{}
	}
	return Tagged[T]{word: word, mem: mem}
}

// IsNil reports whether the handle is the zero value, either never set or
// already consumed.
func (t *Tagged[T]) IsNil() bool {
	return t.word == 0
}

// Tag returns the handle's tag.
func (t *Tagged[T]) Tag() uintptr {
	if t.word == 0 {
		panic(errors.New("arc: use of nil handle"))
	}
	_, tag := lowbits.Decompose(t.word, cellMask[T]())
	return tag
}

// Word borrows the handle's packed word. No ownership moves: the word is
// only a view and becomes stale the moment the handle is consumed or
// dropped. See UnsafeFromWord for the one sanctioned way back.
func (t *Tagged[T]) Word() uintptr {
	return t.word
}

// Value borrows the pointee, ignoring the tag.
func (t *Tagged[T]) Value() *T {
	if t.word == 0 {
		panic(errors.New("arc: use of nil handle"))
	}
	addr, _ := lowbits.Decompose(t.word, cellMask[T]())
	return &cellOf[T](addr).value
}

// RefCount returns the cell's strong count at some moment.
func (t *Tagged[T]) RefCount() int64 {
	if t.word == 0 {
		return 0
	}
	addr, _ := lowbits.Decompose(t.word, cellMask[T]())
	return cellOf[T](addr).count.Load()
}

// Clone takes one more strong reference and returns it under the same tag.
func (t *Tagged[T]) Clone() Tagged[T] {
	if t.word == 0 {
		panic(errors.New("arc: use of nil handle"))
	}
	addr, _ := lowbits.Decompose(t.word, cellMask[T]())
	cellOf[T](addr).count.Add(1)
	return Tagged[T]{word: t.word, mem: t.mem}
}

// WithTag consumes the handle and returns the same reference under a new
// tag. The count does not move. Tag bits beyond the cell's mask are
// discarded.
func (t *Tagged[T]) WithTag(tag uintptr) Tagged[T] {
	if t.word == 0 {
		panic(errors.New("arc: use of nil handle"))
	}
	addr, _ := lowbits.Decompose(t.word, cellMask[T]())
	nt := Tagged[T]{word: lowbits.Compose(addr, tag, cellMask[T]()), mem: t.mem}
	t.word, t.mem = 0, nil
	return nt
}

// Shared consumes the handle and returns the reference with the tag
// stripped. The count does not move.
func (t *Tagged[T]) Shared() Shared[T] {
	if t.word == 0 {
		panic(errors.New("arc: use of nil handle"))
	}
	addr, _ := lowbits.Decompose(t.word, cellMask[T]())
	s := Shared[T]{word: addr, mem: t.mem}
	t.word, t.mem = 0, nil
	return s
}

// Drop gives the reference up and nils the receiver. The last drop frees the
// cell immediately. Dropping a nil handle is a no-op.
func (t *Tagged[T]) Drop() {
	if t.word == 0 {
		return
	}
	word, mem := t.word, t.mem
	t.word, t.mem = 0, nil
	dropWord[T](mem, word)
}

// take strips the handle for slot use: the word comes out, the handle goes
// nil, no count traffic. Callers decide whether a zero word is acceptable.
func (t *Tagged[T]) take() uintptr {
	word := t.word
	t.word, t.mem = 0, nil
	return word
}
