//go:build unix

package arena

import (
	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

func mapRegion(size uint64) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.New(
			"map region failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpNew),
			errors.WithWrap(err),
		)
	}
	return b, nil
}

func unmapRegion(b []byte) error {
	if err := unix.Munmap(b); err != nil {
		return errors.New(
			"unmap region failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpClose),
			errors.WithWrap(err),
		)
	}
	return nil
}
