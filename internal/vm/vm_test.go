package vm_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/vm"
)

func runSrc(t *testing.T, src string, mod func(*vm.Config)) (vm.Value, string, error) {
	t.Helper()
	var out bytes.Buffer
	cfg := vm.Config{Stdout: &out, Stderr: io.Discard, Limits: vm.DefaultLimits()}
	if mod != nil {
		mod(&cfg)
	}
	machine := vm.New(cfg)
	v, err := machine.EvalSource(src)
	return v, out.String(), err
}

func mustRun(t *testing.T, src string) (vm.Value, string) {
	t.Helper()
	v, out, err := runSrc(t, src, nil)
	require.NoError(t, err)
	return v, out
}

func errCode(t *testing.T, err error) diagnostics.Code {
	t.Helper()
	de, ok := err.(*diagnostics.Error)
	require.True(t, ok, "expected *diagnostics.Error, got %T: %v", err, err)
	return de.Code
}

func TestArithmeticPrint(t *testing.T) {
	v, out := mustRun(t, `print(1 + 2 * 3)`)
	require.Equal(t, "7\n", out)
	require.True(t, v.IsUnit())
}

func TestRecursionFactorial(t *testing.T) {
	_, out := mustRun(t, `
func fact(n) { if n <= 1 { return 1 } ; return n * fact(n-1) }
print(fact(10))
`)
	require.Equal(t, "3628800\n", out)
}

func TestLinearUseAfterMoveRejected(t *testing.T) {
	_, _, err := runSrc(t, `
let b: Linear := sys.mem.alloc(8)
let c := sys.mem.read(b, 0)
let d := sys.mem.read(b, 0)
`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.UseAfterMove, errCode(t, err))
	require.Contains(t, err.Error(), "'b'")
}

func TestEnumPatternMatch(t *testing.T) {
	_, out := mustRun(t, `
enum Shape { Circle(Float), Square(Float) }
let s := Shape.Circle(2.0)
match s { Shape.Circle(r) => print(r), Shape.Square(a) => print(a) }
`)
	require.Equal(t, "2.0\n", out)
}

func TestTryCatchIndexOutOfRange(t *testing.T) {
	v, out := mustRun(t, `
try { let x := list.get([1,2,3], 9) } catch e { print(e) }
`)
	require.True(t, v.IsUnit())
	assert.Contains(t, out, "index")
	assert.Contains(t, out, "out of range")
}

func TestTimeoutOnTightLoop(t *testing.T) {
	start := time.Now()
	_, _, err := runSrc(t, `while true { }`, func(cfg *vm.Config) {
		cfg.Limits.ExecTimeout = 200 * time.Millisecond
		cfg.Limits.MaxSteps = 1 << 50
	})
	require.Error(t, err)
	require.Equal(t, diagnostics.Timeout, errCode(t, err))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestTimeoutIsNotCatchable(t *testing.T) {
	_, out, err := runSrc(t, `try { while true { } } catch e { print("caught") }`, func(cfg *vm.Config) {
		cfg.Limits.ExecTimeout = 100 * time.Millisecond
		cfg.Limits.MaxSteps = 1 << 50
	})
	require.Error(t, err)
	require.Equal(t, diagnostics.Timeout, errCode(t, err))
	require.Empty(t, out)
}

func TestStepLimit(t *testing.T) {
	_, _, err := runSrc(t, `while true { }`, func(cfg *vm.Config) {
		cfg.Limits.MaxSteps = 500
		cfg.Limits.ExecTimeout = 0
	})
	require.Error(t, err)
	require.Equal(t, diagnostics.StepLimitExceeded, errCode(t, err))
}

func TestCancellation(t *testing.T) {
	var out bytes.Buffer
	cfg := vm.Config{Stdout: &out, Stderr: io.Discard, Limits: vm.DefaultLimits()}
	cfg.Limits.ExecTimeout = 0
	cfg.Limits.MaxSteps = 1 << 50
	machine := vm.New(cfg)

	go func() {
		time.Sleep(50 * time.Millisecond)
		machine.Stop()
	}()
	_, err := machine.EvalSource(`try { while true { } } catch e { print("caught") }`)
	require.Error(t, err)
	require.Equal(t, diagnostics.Cancelled, errCode(t, err))
	require.Empty(t, out.String())
}

func TestRecursionLimit(t *testing.T) {
	_, _, err := runSrc(t, `
func down(n) { return down(n + 1) }
down(0)
`, func(cfg *vm.Config) {
		cfg.Limits.MaxStackDepth = 64
	})
	require.Error(t, err)
	require.Equal(t, diagnostics.RecursionLimitExceeded, errCode(t, err))
}

func TestWhileBreakContinue(t *testing.T) {
	_, out := mustRun(t, `
let i := 0
let sum := 0
while true {
	i := i + 1
	if i > 10 { break }
	if i % 2 == 1 { continue }
	sum := sum + i
}
print(sum)
`)
	require.Equal(t, "30\n", out)
}

func TestForOverList(t *testing.T) {
	_, out := mustRun(t, `
let total := 0
for x in [1, 2, 3, 4] { total := total + x }
print(total)
`)
	require.Equal(t, "10\n", out)
}

func TestForOverRange(t *testing.T) {
	_, out := mustRun(t, `
let total := 0
for i in 1..=4 { total := total + i }
print(total)
`)
	require.Equal(t, "10\n", out)
}

func TestForOverString(t *testing.T) {
	_, out := mustRun(t, `
for ch in "abc" { print(ch) }
`)
	require.Equal(t, "a\nb\nc\n", out)
}

func TestRangeExpressionMaterializes(t *testing.T) {
	_, out := mustRun(t, `
let xs := 0..3
print(len(xs))
print(list.get(xs, 2))
`)
	require.Equal(t, "3\n2\n", out)
}

func TestShadowingInBlocks(t *testing.T) {
	_, out := mustRun(t, `
let x := 1
if true {
	let x := 2
	print(x)
}
print(x)
`)
	require.Equal(t, "2\n1\n", out)
}

func TestClosureCapture(t *testing.T) {
	_, out := mustRun(t, `
let base := 10
let addBase := func(x) { return x + base }
print(addBase(5))
`)
	require.Equal(t, "15\n", out)
}

func TestStructFieldAssignIsCopyThenRebind(t *testing.T) {
	_, out := mustRun(t, `
let p := Point{x = 1, y = 2}
let q := p
p.x := 9
print(p.x)
print(q.x)
`)
	require.Equal(t, "9\n1\n", out)
}

func TestNestedFieldAssign(t *testing.T) {
	_, out := mustRun(t, `
let outer := Box{inner = Box{inner = 1}}
outer.inner.inner := 42
print(outer.inner.inner)
`)
	require.Equal(t, "42\n", out)
}

func TestIndexAssign(t *testing.T) {
	_, out := mustRun(t, `
let xs := [1, 2, 3]
xs[1] := 20
print(xs)
`)
	require.Equal(t, "[1, 20, 3]\n", out)
}

func TestCompoundAssign(t *testing.T) {
	_, out := mustRun(t, `
let n := 40
n += 2
print(n)
`)
	require.Equal(t, "42\n", out)
}

func TestFStringInterpolation(t *testing.T) {
	_, out := mustRun(t, `
let name := "arc"
print(f"hi {name}, {1 + 1}!")
`)
	require.Equal(t, "hi arc, 2!\n", out)
}

func TestShortCircuitSkipsRHS(t *testing.T) {
	_, out := mustRun(t, `
func boom() { return list.get([], 5) }
print(false && boom())
print(true || boom())
`)
	require.Equal(t, "false\ntrue\n", out)
}

func TestAndOrKeywordsAreStrict(t *testing.T) {
	_, _, err := runSrc(t, `print(1 and true)`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.TypeMismatch, errCode(t, err))
}

func TestMatchLiteralPatterns(t *testing.T) {
	_, out := mustRun(t, `
func describe(n) {
	return match n { 0 => "zero", 1 => "one", other => f"many ({other})" }
}
print(describe(0))
print(describe(1))
print(describe(7))
`)
	require.Equal(t, "zero\none\nmany (7)\n", out)
}

func TestOptionalChainingOnUnit(t *testing.T) {
	_, out := mustRun(t, `print(null?.field)`)
	require.Equal(t, "null\n", out)
}

func TestVariableNotFound(t *testing.T) {
	_, _, err := runSrc(t, `print(nope)`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.VariableNotFound, errCode(t, err))
}

func TestNotExecutable(t *testing.T) {
	_, _, err := runSrc(t, `
let x := 5
x(1)
`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.NotExecutable, errCode(t, err))
}

func TestBreakOutsideLoopIsCompileError(t *testing.T) {
	_, _, err := runSrc(t, `break`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.BreakOutsideLoop, errCode(t, err))
}

func TestReturnOutsideFunctionIsCompileError(t *testing.T) {
	_, _, err := runSrc(t, `return 1`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.ReturnOutsideFunction, errCode(t, err))
}

func TestStrictTruthinessRejectsInteger(t *testing.T) {
	_, _, err := runSrc(t, `if 0 { print("yes") }`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.TypeMismatch, errCode(t, err))
}

func TestLenientTruthiness(t *testing.T) {
	_, out, err := runSrc(t, `
if 0 { print("then") } else { print("else") }
if null { print("then") } else { print("else") }
if 1 { print("then") } else { print("else") }
`, func(cfg *vm.Config) {
		cfg.LenientTruthiness = true
	})
	require.NoError(t, err)
	require.Equal(t, "else\nelse\nthen\n", out)
}

func TestImplMethodDispatch(t *testing.T) {
	_, out := mustRun(t, `
struct Point { x: Int, y: Int }
impl Geometry for Point {
	func normSq(self) { return self.x * self.x + self.y * self.y }
}
let p := Point{x = 3, y = 4}
print(p.normSq())
`)
	require.Equal(t, "25\n", out)
}

func TestPipeOperator(t *testing.T) {
	_, out := mustRun(t, `
func double(x) { return x * 2 }
print(5 |> double())
print([10, 20, 30] |> list.get(1))
`)
	require.Equal(t, "10\n20\n", out)
}

func TestLinearBufferWorkflow(t *testing.T) {
	_, out := mustRun(t, `
let b: Linear := sys.mem.alloc(4)
let b2: Linear := sys.mem.write(b, 0, 65)
let v := sys.mem.read(b2, 0)
print(v)
`)
	require.Equal(t, "65\n", out)
}

func TestConsumedBufferSatisfiesChecker(t *testing.T) {
	// sys.mem.free consumes its argument, so a Linear binding ending in
	// free passes the never-consumed rule.
	_, _, err := runSrc(t, `
let b: Linear := sys.mem.alloc(4)
sys.mem.free(b)
`, nil)
	require.NoError(t, err)
}

func TestUnconsumedLinearRejected(t *testing.T) {
	_, _, err := runSrc(t, `
let b: Linear := sys.mem.alloc(4)
print("done")
`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.NeverConsumed, errCode(t, err))
}

func TestCapabilityDeniedWithoutGrant(t *testing.T) {
	_, _, err := runSrc(t, `sys.fs.readFile("/etc/hosts")`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.CapabilityDenied, errCode(t, err))
}

func TestSandboxDenyListBeatsCapabilities(t *testing.T) {
	_, _, err := runSrc(t, `sys.net.grpcCall("h", "s", "m", "{}")`, func(cfg *vm.Config) {
		cfg.Security = vm.SecuritySandboxed
		cfg.Capabilities = []vm.Capability{vm.CapNet}
	})
	require.Error(t, err)
	require.Equal(t, diagnostics.CapabilityDenied, errCode(t, err))
}

func TestTrustedOnlyRejectsUnknownFunction(t *testing.T) {
	_, _, err := runSrc(t, `
func f() { return 1 }
print(f())
`, func(cfg *vm.Config) {
		cfg.Security = vm.SecurityTrustedOnly
	})
	require.Error(t, err)
	require.Equal(t, diagnostics.UntrustedCode, errCode(t, err))
}

func TestTrustedOnlyAcceptsTrustedHash(t *testing.T) {
	src := `
func f() { return 41 + 1 }
print(f())
`
	prog, err := vm.Parse(src)
	require.NoError(t, err)

	probe := vm.New(vm.Config{Stdout: io.Discard, Stderr: io.Discard})
	chunk, err := probe.Compile(prog)
	require.NoError(t, err)

	trusted := map[string]bool{}
	for _, c := range chunk.Constants {
		if proto, ok := c.Obj.(*vm.CompiledFunction); ok {
			trusted[proto.Chunk.HashHex()] = true
		}
	}
	require.Len(t, trusted, 1)

	_, out, err := runSrc(t, src, func(cfg *vm.Config) {
		cfg.Security = vm.SecurityTrustedOnly
		cfg.TrustedHashes = trusted
	})
	require.NoError(t, err)
	require.Equal(t, "42\n", out)
}

func TestChunkHashIgnoresWhitespaceAndComments(t *testing.T) {
	a := "let x := 1\nprint(x + 2)\n"
	b := "// comment\nlet x  :=   1\n\n\nprint( x + 2 ) // trailing\n"

	hash := func(src string) string {
		prog, err := vm.Parse(src)
		require.NoError(t, err)
		machine := vm.New(vm.Config{Stdout: io.Discard, Stderr: io.Discard})
		chunk, err := machine.Compile(prog)
		require.NoError(t, err)
		return chunk.HashHex()
	}
	require.Equal(t, hash(a), hash(b))
	require.NotEqual(t, hash(a), hash("let x := 2\nprint(x + 2)\n"))
}

func TestRuntimeErrorCarriesStackTrace(t *testing.T) {
	_, _, err := runSrc(t, `
func inner() { return list.get([], 3) }
func outer() { return inner() }
outer()
`, nil)
	require.Error(t, err)
	de := err.(*diagnostics.Error)
	require.Equal(t, diagnostics.IntrinsicFailure, de.Code)
	var names []string
	for _, f := range de.Frames {
		names = append(names, f.FuncName)
	}
	require.Contains(t, names, "inner")
	require.Contains(t, names, "outer")
}

func TestMatchAsExpression(t *testing.T) {
	_, out := mustRun(t, `
enum Light { Red, Green }
let l := Light.Green
let word := match l { Light.Red => "stop", Light.Green => "go" }
print(word)
`)
	require.Equal(t, "go\n", out)
}

func TestNestedTryCatch(t *testing.T) {
	_, out := mustRun(t, `
try {
	try { let x := 1 / 0 } catch inner { print("inner: " + inner) }
	let y := list.get([], 1)
} catch outer { print("outer caught") }
print("after")
`)
	assert.Contains(t, out, "inner: ")
	assert.Contains(t, out, "division by zero")
	assert.Contains(t, out, "outer caught")
	assert.Contains(t, out, "after")
}

func TestProgramResultValue(t *testing.T) {
	// The top-level chunk evaluates to Unit; expression results surface
	// only through print or the embedding API's returned value bindings.
	v, _ := mustRun(t, `let x := 41 + 1`)
	require.True(t, v.IsUnit())
}

func TestIntrinsicArityMismatch(t *testing.T) {
	_, _, err := runSrc(t, `len()`, nil)
	require.Error(t, err)
	require.Equal(t, diagnostics.TypeMismatch, errCode(t, err))
}

func TestTypeAndConversionIntrinsics(t *testing.T) {
	_, out := mustRun(t, `
print(type(1))
print(type("s"))
print(type([1]))
print(int("42") + 1)
print(float(1) + 0.5)
print(str(12) + "!")
`)
	require.Equal(t, "Integer\nString\nList\n43\n1.5\n12!\n", out)
}
