package arena

import (
	"github.com/brickingsoft/errors"
)

const (
	// DefaultSize is the region size used when WithSize is not given.
	DefaultSize = uint64(64) << 20
)

type Options struct {
	Size uint64
}

type Option func(options *Options) (err error)

// WithSize sets the size of the region in bytes. The size is rounded up to
// a whole number of pages. The region is reserved once and never grows.
func WithSize(size uint64) Option {
	return func(options *Options) (err error) {
		if size == 0 {
			return errors.New(
				"size must be greater than zero",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithWrap(ErrInvalidSize),
			)
		}
		options.Size = size
		return
	}
}
