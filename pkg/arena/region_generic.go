//go:build !unix

package arena

// Without mmap the region is a plain heap slice pinned by the Arena struct.
// The collector does not move heap objects, so block addresses stay stable
// for the arena's lifetime, same as the mapped case.

func mapRegion(size uint64) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapRegion(_ []byte) error {
	return nil
}
