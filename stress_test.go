package arc_test

import (
	"runtime"
	"testing"

	"github.com/brickingsoft/arc"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// The two goroutine handover: a writer exchanges (10, tag 0) for (20, tag 0)
// while a reader loads until it observes the new value. Every load the
// reader makes must be a coherent pair, never a torn mix of old and new.
func TestWriterReaderHandover(t *testing.T) {
	mem := testArena(t)
	a, err := arc.NewAtomicValue(mem, pair{a: 10}, 0)
	require.NoError(t, err)

	g := errgroup.Group{}
	g.Go(func() error {
		cur := a.Load(arc.Acquire)
		defer cur.Drop()
		next, newErr := arc.NewTagged(mem, pair{a: 20}, 0)
		if newErr != nil {
			return newErr
		}
		for {
			prev, swapped := a.CompareExchangeWeak(&cur, &next, arc.SeqCst, arc.SeqCst)
			if swapped {
				prev.Drop()
				return nil
			}
			// Only the reader runs beside us, the slot still holds (10, 0);
			// a failed attempt here can only be spurious, go again.
			prev.Drop()
		}
	})
	g.Go(func() error {
		for {
			h := a.Load(arc.Acquire)
			v := h.Value().a
			tag := h.Tag()
			h.Drop()
			if tag != 0 {
				t.Errorf("observed tag %d, want 0", tag)
				return nil
			}
			if v == 20 {
				return nil
			}
			if v != 10 {
				t.Errorf("observed value %d, want 10 or 20", v)
				return nil
			}
			runtime.Gosched()
		}
	})
	require.NoError(t, g.Wait())

	a.Drop()
	require.Equal(t, int64(0), mem.Live(), "handover must leave no cell behind")
}

// A mixed storm over one slot. Each worker balances every reference it
// takes, so after the drain the arena must be back at the slot alone.
func TestAtomicStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}
	mem := testArena(t)
	a, err := arc.NewAtomicValue(mem, pair{a: 0}, 0)
	require.NoError(t, err)

	const workers = 8
	const rounds = 4000

	g := errgroup.Group{}
	for w := 0; w < workers; w++ {
		worker := int64(w)
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				switch i % 4 {
				case 0:
					h := a.Load(arc.SeqCst)
					if h.Value().b < 0 {
						t.Error("observed a value no writer ever stored")
					}
					h.Drop()
				case 1:
					h, newErr := arc.NewTagged(mem, pair{a: worker, b: int64(i)}, uintptr(i)&7)
					if newErr != nil {
						return newErr
					}
					old := a.Swap(&h, arc.AcqRel)
					old.Drop()
				case 2:
					cur := a.Load(arc.Acquire)
					next, newErr := arc.NewTagged(mem, pair{a: worker, b: int64(i)}, cur.Tag())
					if newErr != nil {
						cur.Drop()
						return newErr
					}
					prev, swapped := a.CompareExchangeWeak(&cur, &next, arc.SeqCst, arc.Relaxed)
					if !swapped {
						next.Drop()
					}
					prev.Drop()
					cur.Drop()
				default:
					prev, _ := a.FetchUpdate(arc.SeqCst, arc.Acquire, func(prev *arc.Tagged[pair]) (arc.Tagged[pair], bool) {
						c := prev.Clone()
						return c.WithTag(prev.Tag() + 1), true
					})
					prev.Drop()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	final := a.Load(arc.SeqCst)
	require.GreaterOrEqual(t, final.Value().b, int64(0))
	final.Drop()
	a.Drop()
	require.Equal(t, int64(0), mem.Live(), "the storm must conserve references")
	require.Equal(t, mem.Allocs(), mem.Frees())
}

// Clones taken from loaded handles must stay valid after the slot moves on,
// their pins outlive the slot's interest in the cell.
func TestLoadOutlivesReplacement(t *testing.T) {
	mem := testArena(t)
	a, err := arc.NewAtomicValue(mem, pair{a: 1}, 0)
	require.NoError(t, err)

	g := errgroup.Group{}
	stop := make(chan struct{})
	g.Go(func() error {
		for i := int64(2); ; i++ {
			select {
			case <-stop:
				return nil
			default:
			}
			h, newErr := arc.NewTagged(mem, pair{a: i}, 0)
			if newErr != nil {
				return newErr
			}
			old := a.Swap(&h, arc.SeqCst)
			old.Drop()
		}
	})
	for i := 0; i < 5000; i++ {
		h := a.Load(arc.SeqCst)
		v := h.Value().a
		if v < 1 {
			t.Fatalf("read %d through a pinned handle", v)
		}
		// Hold the pin across a scheduling point, the cell must survive
		// any number of swaps meanwhile.
		runtime.Gosched()
		if again := h.Value().a; again != v {
			t.Fatalf("pinned value changed from %d to %d", v, again)
		}
		h.Drop()
	}
	close(stop)
	require.NoError(t, g.Wait())

	a.Drop()
	require.Equal(t, int64(0), mem.Live())
}
