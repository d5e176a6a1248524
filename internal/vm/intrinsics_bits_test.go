package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/diagnostics"
)

func TestBitsPackUnpackRoundtrip(t *testing.T) {
	_, out := mustRun(t, `
let b: Linear := sys.bits.pack([{value = 42, size = 8}, {value = 17, size = 8}])
print(sys.bits.unpack(b, [{size = 8}, {size = 8}]))
`)
	require.Equal(t, "[42, 17]\n", out)
}

func TestBitsEndianness(t *testing.T) {
	_, out := mustRun(t, `
let big: Linear := sys.bits.pack([{value = 258, size = 16, endian = "big"}])
let fields := sys.bits.unpack(big, [{size = 8}, {size = 8}])
print(fields)
let little: Linear := sys.bits.pack([{value = 258, size = 16, endian = "little"}])
print(sys.bits.unpack(little, [{size = 8}, {size = 8}]))
`)
	require.Equal(t, "[1, 2]\n[2, 1]\n", out)
}

func TestBitsSignedUnpack(t *testing.T) {
	_, out := mustRun(t, `
let b: Linear := sys.bits.pack([{value = 255, size = 8}])
print(sys.bits.unpack(b, [{size = 8, signed = true}]))
`)
	require.Equal(t, "[-1]\n", out)
}

func TestBitsStringSegment(t *testing.T) {
	_, out := mustRun(t, `
let frame := sys.bits.pack([{value = 2, size = 8}, {value = "ok"}])
print(len(frame))
print(sys.bits.unpack(frame, [{size = 8}, {size = 8}, {size = 8}]))
`)
	require.Equal(t, "3\n[2, 111, 107]\n", out)
}

func TestBitsDump(t *testing.T) {
	_, out := mustRun(t, `
let b: Linear := sys.bits.pack([{value = 42, size = 8}, {value = 17, size = 8}])
print(sys.bits.dump(b))
`)
	require.Contains(t, out, "42")
	require.Contains(t, out, "17")
}

func TestBitsPackRejectsBadSegment(t *testing.T) {
	_, _, err := runSrc(t, `let b := sys.bits.pack([{size = 8}])`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.IntrinsicFailure, errCode(t, err))
	require.Contains(t, err.Error(), "no value field")
}

func TestBitsUnpackRejectsNonBuffer(t *testing.T) {
	_, _, err := runSrc(t, `sys.bits.unpack("nope", [{size = 8}])`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.TypeMismatch, errCode(t, err))
}
