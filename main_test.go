package arc_test

import (
	"testing"

	"github.com/brickingsoft/arc/pkg/arena"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testArena builds an arena that the test must leave empty: the cleanup
// fails the test on leaked cells before closing the region.
func testArena(t *testing.T) *arena.Arena {
	t.Helper()
	mem, err := arena.New(arena.WithSize(4 << 20))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.Equal(t, int64(0), mem.Live(), "cells leaked by the test")
		require.NoError(t, mem.Close())
	})
	return mem
}
