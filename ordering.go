package arc

import (
	"strconv"

	"github.com/brickingsoft/errors"
)

// Ordering names the memory ordering a caller is entitled to rely on for one
// atomic operation. Every ordering is a lower bound: the implementation is
// free to be stronger, and Go's atomic operations are in fact sequentially
// consistent across the board. The value still matters, because each
// operation accepts only the orderings that make sense for it and panics on
// the rest, so code keeps the same contracts it would have on a platform
// that takes the hint literally.
type Ordering uint8

const (
	Relaxed Ordering = iota
	Release
	Acquire
	AcqRel
	SeqCst
)

func (o Ordering) String() string {
	switch o {
	case Relaxed:
		return "Relaxed"
	case Release:
		return "Release"
	case Acquire:
		return "Acquire"
	case AcqRel:
		return "AcqRel"
	case SeqCst:
		return "SeqCst"
	}
	return "Ordering(" + strconv.Itoa(int(o)) + ")"
}

// Loads carry no store, so there is nothing for Release or AcqRel to order.
func checkLoadOrdering(order Ordering) {
	switch order {
	case Relaxed, Acquire, SeqCst:
	default:
		panic(errors.New("arc: load does not accept " + order.String() + " ordering"))
	}
}

// Stores carry no load, so Acquire and AcqRel are out.
func checkStoreOrdering(order Ordering) {
	switch order {
	case Relaxed, Release, SeqCst:
	default:
		panic(errors.New("arc: store does not accept " + order.String() + " ordering"))
	}
}

func checkUpdateOrdering(order Ordering) {
	switch order {
	case Relaxed, Release, Acquire, AcqRel, SeqCst:
	default:
		panic(errors.New("arc: unknown ordering " + order.String()))
	}
}

// The failure path of a compare and exchange is a load.
func checkFailureOrdering(order Ordering) {
	switch order {
	case Relaxed, Acquire, SeqCst:
	default:
		panic(errors.New("arc: compare and exchange failure does not accept " + order.String() + " ordering"))
	}
}
