package arc

import (
	"github.com/brickingsoft/arc/pkg/arena"
	"github.com/brickingsoft/arc/pkg/lowbits"
	"github.com/brickingsoft/errors"
)

// Shared is a counted reference to an arena cell, without a tag. It is the
// plain form handles relax into once tag bits stop mattering. The zero value
// is nil: Drop on it is a no-op, everything else panics.
type Shared[T any] struct {
	word uintptr
	mem  *arena.Arena
}

// New allocates a cell for value and returns the first reference to it, with
// a count of one. T must be plain data, a type holding Go pointers panics.
// Allocation failures carry the arena's error vocabulary.
func New[T any](mem *arena.Arena, value T) (Shared[T], error) {
	assertPlainData[T]()
	if mem == nil {
		panic(errors.New("arc: nil arena"))
	}
	addr, err := mem.Allocate(cellSize[T]())
	if err != nil {
		return Shared[T]{}, errors.New("arc: allocate cell failed", errors.WithWrap(err))
	}
	c := cellOf[T](addr)
	c.count.Store(1)
	c.value = value
	return Shared[T]{word: addr, mem: mem}, nil
}

// IsNil reports whether the reference is the zero value, either never set or
// already consumed.
func (s *Shared[T]) IsNil() bool {
	return s.word == 0
}

// Value borrows the pointee. The pointer stays valid for as long as the
// reference is live, it does not carry ownership of its own.
func (s *Shared[T]) Value() *T {
	if s.word == 0 {
		panic(errors.New("arc: use of nil reference"))
	}
	return &cellOf[T](s.word).value
}

// RefCount returns the cell's strong count at some moment. Other holders
// clone and drop concurrently, so the value is only exact when the caller
// knows all handles.
func (s *Shared[T]) RefCount() int64 {
	if s.word == 0 {
		return 0
	}
	return cellOf[T](s.word).count.Load()
}

// Clone takes one more strong reference on the cell and returns it as an
// independent value.
func (s *Shared[T]) Clone() Shared[T] {
	if s.word == 0 {
		panic(errors.New("arc: use of nil reference"))
	}
	cellOf[T](s.word).count.Add(1)
	return Shared[T]{word: s.word, mem: s.mem}
}

// Drop gives the reference up and nils the receiver. The last drop frees the
// cell immediately. Dropping a nil reference is a no-op.
func (s *Shared[T]) Drop() {
	if s.word == 0 {
		return
	}
	word, mem := s.word, s.mem
	s.word, s.mem = 0, nil
	dropWord[T](mem, word)
}

// Tagged consumes the reference and returns it as a tagged handle carrying
// tag. The count does not move, ownership just changes shape. Tag bits
// beyond the cell's mask are discarded.
func (s *Shared[T]) Tagged(tag uintptr) Tagged[T] {
	if s.word == 0 {
		panic(errors.New("arc: use of nil reference"))
	}
	t := Tagged[T]{word: lowbits.Compose(s.word, tag, cellMask[T]()), mem: s.mem}
	s.word, s.mem = 0, nil
	return t
}
