package arena

import (
	"github.com/brickingsoft/errors"
)

var (
	ErrOutOfMemory  = errors.Define("out of memory")
	ErrSizeTooLarge = errors.Define("size too large")
	ErrInvalidSize  = errors.Define("invalid size")
	ErrClosed       = errors.Define("arena closed")
	ErrNotEmpty     = errors.Define("arena not empty")
)

func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfMemory)
}

func IsSizeTooLarge(err error) bool {
	return errors.Is(err, ErrSizeTooLarge)
}

func IsInvalidSize(err error) bool {
	return errors.Is(err, ErrInvalidSize)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsNotEmpty(err error) bool {
	return errors.Is(err, ErrNotEmpty)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "arena"
)

const (
	errMetaOpKey      = "op"
	errMetaOpNew      = "new"
	errMetaOpAllocate = "allocate"
	errMetaOpFree     = "free"
	errMetaOpClose    = "close"
)
