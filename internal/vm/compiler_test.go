package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/parser"
)

func compileSrc(t *testing.T, src string) *Chunk {
	t.Helper()
	prog, err := parser.ParseProgram(src)
	require.NoError(t, err)
	chunk, err := Compile(prog, DefaultRegistry())
	require.NoError(t, err)
	return chunk
}

func TestConstantFoldingCollapsesOperatorTree(t *testing.T) {
	chunk := compileSrc(t, `let x := 1 + 2 * 3`)
	// The whole initializer folds to one constant push; no CALL remains.
	listing := Disassemble(chunk)
	require.NotContains(t, listing, "CALL")
	found := false
	for _, c := range chunk.Constants {
		if c.Type == ValInt && c.AsInt() == 7 {
			found = true
		}
	}
	require.True(t, found, "expected folded constant 7 in pool:\n%s", listing)
}

func TestFoldingLeavesDivisionByZeroForRuntime(t *testing.T) {
	chunk := compileSrc(t, `let x := 1 / 0`)
	require.Contains(t, Disassemble(chunk), "CALL")
}

func TestComparisonFolding(t *testing.T) {
	chunk := compileSrc(t, `let b := 2 < 3`)
	listing := Disassemble(chunk)
	require.NotContains(t, listing, "CALL")
	require.Contains(t, listing, "true")
}

func TestDeadCodeAfterReturnIsElided(t *testing.T) {
	chunk := compileSrc(t, `
func f() {
	return 1
	print("unreachable")
}
`)
	var fnChunk *Chunk
	for _, c := range chunk.Constants {
		if proto, ok := c.Obj.(*CompiledFunction); ok {
			fnChunk = proto.Chunk
		}
	}
	require.NotNil(t, fnChunk)
	for _, c := range fnChunk.Constants {
		if s, ok := c.AsString(); ok {
			require.NotEqual(t, "unreachable", s)
		}
	}
}

func TestJumpTargetsStayInBounds(t *testing.T) {
	chunk := compileSrc(t, `
let n := 0
while n < 5 {
	if n % 2 == 0 { n := n + 2 } else { n := n + 1 ; continue }
	if n > 3 { break }
}
for x in [1,2,3] { if x == 2 { continue } }
`)
	checkJumpBounds(t, chunk)
}

// checkJumpBounds walks the instruction stream verifying spec invariant 1:
// every jump target lands inside [0, len(code)].
func checkJumpBounds(t *testing.T, chunk *Chunk) {
	t.Helper()
	offset := 0
	for offset < len(chunk.Code) {
		op := Opcode(chunk.Code[offset])
		switch op {
		case OP_JMP, OP_JMP_IF_FALSE:
			target := offset + 3 + chunk.readU16(offset+1)
			require.LessOrEqual(t, target, len(chunk.Code), "forward jump at %d overruns", offset)
			offset += 3
		case OP_LOOP:
			target := offset + 3 - chunk.readU16(offset+1)
			require.GreaterOrEqual(t, target, 0, "backward jump at %d underruns", offset)
			offset += 3
		case OP_MATCH_TAG:
			target := offset + 5 + chunk.readU16(offset+3)
			require.LessOrEqual(t, target, len(chunk.Code), "match else at %d overruns", offset)
			offset += 5
		case OP_CONST, OP_LOAD, OP_LOAD_KEEP, OP_STORE, OP_ASSIGN,
			OP_GET_FIELD, OP_GET_FIELD_OPT, OP_SET_FIELD, OP_MAKE_LIST, OP_MAKE_FUNC, OP_TRY_PUSH:
			offset += 3
		case OP_MAKE_STRUCT:
			offset += 5
		case OP_MAKE_ENUM:
			offset += 6
		case OP_CALL:
			offset += 2
		case OP_CALL_METHOD:
			offset += 4
		default:
			offset++
		}
	}
	for _, c := range chunk.Constants {
		if proto, ok := c.Obj.(*CompiledFunction); ok {
			checkJumpBounds(t, proto.Chunk)
		}
	}
}

func TestScopeBalance(t *testing.T) {
	chunk := compileSrc(t, `
if true { let a := 1 } else { let b := 2 }
while false { let c := 3 }
for x in [1] { let d := 4 }
try { let e := 5 } catch err { let f := 6 }
`)
	enters := strings.Count(Disassemble(chunk), "ENTER_SCOPE")
	exits := strings.Count(Disassemble(chunk), "EXIT_SCOPE")
	require.Equal(t, enters, exits)
}

func TestChunkSealDeterminism(t *testing.T) {
	a := compileSrc(t, `print(1 + 2)`)
	b := compileSrc(t, `print(1 + 2)`)
	require.Equal(t, a.Hash, b.Hash)
	require.NotEqual(t, a.Hash, compileSrc(t, `print(1 + 3)`).Hash)
}

func TestDisassembleNamesEveryEmittedOpcode(t *testing.T) {
	chunk := compileSrc(t, `
enum E { A(Int), B }
struct S { v: Int }
func f(x) { return x }
let s := S{v = 1}
s.v := 2
let xs := [1, 2]
xs[0] := 9
let e := E.A(1)
match e { E.A(n) => print(n), E.B => print("b"), _ => print("?") }
try { print(f(1)) } catch err { print(err) }
for i in 0..2 { if i == 1 { continue } }
print(s?.v)
`)
	listing := Disassemble(chunk)
	require.NotContains(t, listing, "UNKNOWN")
}

func TestBreakContinueNeverSurviveCompilation(t *testing.T) {
	// Break(depth)/Continue(depth) are compiler fictions: finished
	// bytecode only contains jumps.
	chunk := compileSrc(t, `
while true { break }
for x in [1,2] { continue }
`)
	listing := Disassemble(chunk)
	require.Contains(t, listing, "JMP")
	require.Contains(t, listing, "LOOP")
}
