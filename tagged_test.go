package arc_test

import (
	"testing"

	"github.com/brickingsoft/arc"
	"github.com/stretchr/testify/require"
)

func TestTaggedCarriesTagAndValue(t *testing.T) {
	mem := testArena(t)
	h, err := arc.NewTagged(mem, pair{a: 11}, 3)
	require.NoError(t, err)
	require.Equal(t, uintptr(3), h.Tag())
	require.Equal(t, int64(11), h.Value().a)
	require.Equal(t, int64(1), h.RefCount())
	h.Drop()
}

func TestTagTruncatesToMask(t *testing.T) {
	mem := testArena(t)
	// Cells are at least 8 aligned, so 3 tag bits survive and the rest
	// fall off.
	h, err := arc.NewTagged(mem, pair{}, 0b1001)
	require.NoError(t, err)
	require.Equal(t, uintptr(0b001), h.Tag())
	h.Drop()
}

func TestWithTagKeepsReference(t *testing.T) {
	mem := testArena(t)
	h, err := arc.NewTagged(mem, pair{a: 5}, 1)
	require.NoError(t, err)
	addr := h.Word() &^ 7

	retagged := h.WithTag(6)
	require.True(t, h.IsNil(), "WithTag consumes the receiver")
	require.Equal(t, uintptr(6), retagged.Tag())
	require.Equal(t, addr, retagged.Word()&^7, "retagging must not move the cell")
	require.Equal(t, int64(1), retagged.RefCount(), "retagging must not touch the count")
	require.Equal(t, int64(5), retagged.Value().a)
	retagged.Drop()
}

func TestCloneKeepsTag(t *testing.T) {
	mem := testArena(t)
	h, err := arc.NewTagged(mem, pair{a: 2}, 4)
	require.NoError(t, err)
	c := h.Clone()
	require.Equal(t, uintptr(4), c.Tag())
	require.Equal(t, int64(2), h.RefCount())
	require.Equal(t, h.Word(), c.Word())
	c.Drop()
	require.Equal(t, int64(1), h.RefCount())
	h.Drop()
}

func TestSharedConversionRoundTrip(t *testing.T) {
	mem := testArena(t)
	s, err := arc.New(mem, pair{a: 9})
	require.NoError(t, err)

	h := s.Tagged(5)
	require.True(t, s.IsNil())
	require.Equal(t, uintptr(5), h.Tag())
	require.Equal(t, int64(1), h.RefCount(), "conversion moves ownership, not counts")

	back := h.Shared()
	require.True(t, h.IsNil())
	require.Equal(t, int64(1), back.RefCount())
	require.Equal(t, int64(9), back.Value().a)
	back.Drop()
	require.Equal(t, int64(0), mem.Live())
}

func TestWordRebuild(t *testing.T) {
	mem := testArena(t)
	h, err := arc.NewTagged(mem, pair{a: 3}, 2)
	require.NoError(t, err)

	// Release the reference into a bare word, then pick it back up. The
	// original handle is forgotten, not dropped: the word carries its
	// count now.
	word := h.Word()
	rebuilt := arc.UnsafeFromWord[pair](mem, word)
	require.Equal(t, uintptr(2), rebuilt.Tag())
	require.Equal(t, int64(3), rebuilt.Value().a)
	require.Equal(t, int64(1), rebuilt.RefCount())
	rebuilt.Drop()
	require.Equal(t, int64(0), mem.Live())
}

func TestZeroWordRebuildsNil(t *testing.T) {
	mem := testArena(t)
	h := arc.UnsafeFromWord[pair](mem, 0)
	require.True(t, h.IsNil())
	h.Drop()
}

func TestTaggedUseAfterConsumePanics(t *testing.T) {
	mem := testArena(t)
	h, err := arc.NewTagged(mem, pair{}, 1)
	require.NoError(t, err)
	s := h.Shared()
	require.Panics(t, func() { h.Tag() })
	require.Panics(t, func() { h.Value() })
	require.Panics(t, func() { h.Clone() })
	require.Panics(t, func() { h.WithTag(2) })
	require.Panics(t, func() { h.Shared() })
	h.Drop() // no-op on nil
	s.Drop()
}

func TestZeroHandle(t *testing.T) {
	var h arc.Tagged[pair]
	require.True(t, h.IsNil())
	require.Equal(t, uintptr(0), h.Word())
	require.Equal(t, int64(0), h.RefCount())
	h.Drop()
}
