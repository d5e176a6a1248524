package vm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRuntime() *Runtime {
	return &Runtime{Out: io.Discard, Err: io.Discard, Tracker: NewResourceTracker()}
}

func TestBufferFreeReleasesTrackerHandle(t *testing.T) {
	r := DefaultRegistry()
	rt := testRuntime()
	alloc, _ := r.Lookup("sys.mem.alloc")
	free, _ := r.Lookup("sys.mem.free")

	buf, err := alloc.Handler(rt, []Value{IntVal(8)})
	require.NoError(t, err)
	require.Equal(t, 1, rt.Tracker.Live())

	// Freeing releases the allocation's tracker handle: the tracked set
	// reflects actual liveness, so CloseAll has nothing left to report.
	_, err = free.Handler(rt, []Value{buf})
	require.NoError(t, err)
	require.Equal(t, 0, rt.Tracker.Live())
}

func TestLeakedBufferStaysTracked(t *testing.T) {
	r := DefaultRegistry()
	rt := testRuntime()
	alloc, _ := r.Lookup("sys.mem.alloc")

	_, err := alloc.Handler(rt, []Value{IntVal(4)})
	require.NoError(t, err)
	_, err = alloc.Handler(rt, []Value{IntVal(4)})
	require.NoError(t, err)
	require.Equal(t, 2, rt.Tracker.Live())
}

func TestBitsPackedBufferIsTrackedAndFreeable(t *testing.T) {
	r := DefaultRegistry()
	rt := testRuntime()
	pack, _ := r.Lookup("sys.bits.pack")
	free, _ := r.Lookup("sys.mem.free")

	seg := &StructObj{
		Fields: map[string]Value{"value": IntVal(7), "size": IntVal(8)},
		Order:  []string{"value", "size"},
	}
	buf, err := pack.Handler(rt, []Value{ObjVal(&ListObj{Items: []Value{ObjVal(seg)}})})
	require.NoError(t, err)
	require.Equal(t, 1, rt.Tracker.Live())

	_, err = free.Handler(rt, []Value{buf})
	require.NoError(t, err)
	require.Equal(t, 0, rt.Tracker.Live())
}
