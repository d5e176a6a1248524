package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/parser"
)

func parse(t *testing.T, src string) *ast.Block {
	t.Helper()
	prog, err := parser.ParseProgram(src)
	require.NoError(t, err)
	return prog
}

func parseErrCode(t *testing.T, src string) diagnostics.Code {
	t.Helper()
	_, err := parser.ParseProgram(src)
	require.Error(t, err)
	de, ok := err.(*diagnostics.Error)
	require.True(t, ok, "expected *diagnostics.Error, got %T", err)
	return de.Code
}

func TestOperatorsDesugarToIntrinsicCalls(t *testing.T) {
	prog := parse(t, `let x := 1 + 2 * 3`)
	let := prog.Stmts[0].(*ast.Let)
	add := let.Value.(*ast.Call)
	require.Equal(t, "add", add.Callee.(*ast.Variable).Name)
	mul := add.Args[1].(*ast.Call)
	require.Equal(t, "mul", mul.Callee.(*ast.Variable).Name)
}

func TestComparisonAndUnaryDesugaring(t *testing.T) {
	prog := parse(t, `let b := !(1 <= 2)`)
	let := prog.Stmts[0].(*ast.Let)
	not := let.Value.(*ast.Call)
	require.Equal(t, "not", not.Callee.(*ast.Variable).Name)
	le := not.Args[0].(*ast.Call)
	require.Equal(t, "le", le.Callee.(*ast.Variable).Name)
}

func TestShortCircuitStaysAsBinOp(t *testing.T) {
	prog := parse(t, `let b := true && false`)
	let := prog.Stmts[0].(*ast.Let)
	bo, ok := let.Value.(*ast.BinOp)
	require.True(t, ok, "&& must not desugar to the and intrinsic")
	require.Equal(t, "&&", bo.Op)
}

func TestKeywordAndOrDesugar(t *testing.T) {
	prog := parse(t, `let b := true and false`)
	let := prog.Stmts[0].(*ast.Let)
	call := let.Value.(*ast.Call)
	require.Equal(t, "and", call.Callee.(*ast.Variable).Name)
}

func TestPipeDesugarsToFirstArgument(t *testing.T) {
	prog := parse(t, `let y := 5 |> f(1, 2)`)
	let := prog.Stmts[0].(*ast.Let)
	call := let.Value.(*ast.Call)
	require.Equal(t, "f", call.Callee.(*ast.Variable).Name)
	require.Len(t, call.Args, 3)
	require.Equal(t, int64(5), call.Args[0].(*ast.Literal).Int)
}

func TestPipeIntoDottedCall(t *testing.T) {
	prog := parse(t, `let y := xs |> list.get(1)`)
	let := prog.Stmts[0].(*ast.Let)
	mc := let.Value.(*ast.MethodCall)
	require.Equal(t, "get", mc.Name)
	require.Len(t, mc.Args, 2)
	require.Equal(t, "xs", mc.Args[0].(*ast.Variable).Name)
}

func TestCompoundAssignDesugars(t *testing.T) {
	prog := parse(t, `x += 2`)
	assign := prog.Stmts[0].(*ast.Assign)
	call := assign.Value.(*ast.Call)
	require.Equal(t, "add", call.Callee.(*ast.Variable).Name)
	require.Equal(t, "x", call.Args[0].(*ast.Variable).Name)
}

func TestLetLinearityAnnotations(t *testing.T) {
	prog := parse(t, `
let a := 1
let b: Linear := 2
let c: Affine := 3
`)
	require.Equal(t, ast.Shared, prog.Stmts[0].(*ast.Let).Linearity)
	require.Equal(t, ast.Linear, prog.Stmts[1].(*ast.Let).Linearity)
	require.Equal(t, ast.Affine, prog.Stmts[2].(*ast.Let).Linearity)
}

func TestFunctionBodyGetsMastHash(t *testing.T) {
	prog := parse(t, `func f(x) { return x }`)
	fn := prog.Stmts[0].(*ast.FunctionDecl)
	require.NotEqual(t, [32]byte{}, fn.Body.Hash)
}

func TestIdenticalBodiesShareMastHash(t *testing.T) {
	prog := parse(t, `
func f(x) { return x + 1 }
func g(x) { return x + 1 }
func h(x) { return x + 2 }
`)
	f := prog.Stmts[0].(*ast.FunctionDecl)
	g := prog.Stmts[1].(*ast.FunctionDecl)
	h := prog.Stmts[2].(*ast.FunctionDecl)
	require.Equal(t, f.Body.Hash, g.Body.Hash)
	require.NotEqual(t, f.Body.Hash, h.Body.Hash)
}

func TestDocCommentAttachesToDeclaration(t *testing.T) {
	prog := parse(t, `
/// Doubles a number.
func double(x) { return x * 2 }
`)
	fn := prog.Stmts[0].(*ast.FunctionDecl)
	require.Contains(t, fn.Doc, "Doubles a number.")
}

func TestBareEqualsSignError(t *testing.T) {
	require.Equal(t, diagnostics.BareEqualsSign, parseErrCode(t, `x = 1`))
}

func TestStructLiteralUsesBareEquals(t *testing.T) {
	prog := parse(t, `let p := Point{x = 1, y = 2}`)
	lit := prog.Stmts[0].(*ast.Let).Value.(*ast.StructLit)
	require.Equal(t, "Point", lit.TypeName)
	require.Len(t, lit.Fields, 2)
	require.Equal(t, "x", lit.Fields[0].Name)
}

func TestDuplicateStructLiteralField(t *testing.T) {
	require.Equal(t, diagnostics.DuplicateFieldInStructLiteral, parseErrCode(t, `let p := Point{x = 1, x = 2}`))
}

func TestInvalidAssignmentTarget(t *testing.T) {
	require.Equal(t, diagnostics.InvalidAssignmentTarget, parseErrCode(t, `1 := 2`))
}

func TestUnexpectedEOF(t *testing.T) {
	require.Equal(t, diagnostics.UnexpectedEOF, parseErrCode(t, `func f() {`))
}

func TestMatchArms(t *testing.T) {
	prog := parse(t, `
match s {
	Shape.Circle(r) => print(r),
	0 => print("zero"),
	other => print(other),
	_ => print("any"),
}
`)
	m := prog.Stmts[0].(*ast.Match)
	require.Len(t, m.Arms, 4)
	vp := m.Arms[0].Pattern.(*ast.VariantPattern)
	require.Equal(t, "Shape", vp.EnumName)
	require.Equal(t, "Circle", vp.VariantName)
	require.Len(t, vp.Bindings, 1)
	_, isLit := m.Arms[1].Pattern.(*ast.LiteralPattern)
	require.True(t, isLit)
	_, isBind := m.Arms[2].Pattern.(*ast.BindPattern)
	require.True(t, isBind)
	_, isWild := m.Arms[3].Pattern.(*ast.WildcardPattern)
	require.True(t, isWild)
}

func TestRangeExpressions(t *testing.T) {
	prog := parse(t, `
let a := 1..5
let b := 1..=5
`)
	ra := prog.Stmts[0].(*ast.Let).Value.(*ast.Range)
	rb := prog.Stmts[1].(*ast.Let).Value.(*ast.Range)
	require.False(t, ra.Inclusive)
	require.True(t, rb.Inclusive)
}

func TestFStringSegments(t *testing.T) {
	prog := parse(t, `let s := f"a{x}b"`)
	fs := prog.Stmts[0].(*ast.Let).Value.(*ast.FString)
	require.Len(t, fs.Segments, 3)
	require.Equal(t, "a", fs.Segments[0].Literal)
	require.NotNil(t, fs.Segments[1].Expr)
	require.Equal(t, "b", fs.Segments[2].Literal)
}

func TestImportStatement(t *testing.T) {
	prog := parse(t, `import net.http`)
	imp := prog.Stmts[0].(*ast.Import)
	require.Equal(t, []string{"net", "http"}, imp.Path)
}

func TestOptionalChaining(t *testing.T) {
	prog := parse(t, `let v := obj?.field`)
	fa := prog.Stmts[0].(*ast.Let).Value.(*ast.FieldAccess)
	require.True(t, fa.Optional)
	require.Equal(t, "field", fa.Field)
}

func TestLambdaExpression(t *testing.T) {
	prog := parse(t, `let f := func(a, b) { return a + b }`)
	lam := prog.Stmts[0].(*ast.Let).Value.(*ast.Lambda)
	require.Len(t, lam.Params, 2)
	require.NotNil(t, lam.Body)
	require.NotEqual(t, [32]byte{}, lam.Body.Hash)
}

func TestSemicolonsAreOptionalSeparators(t *testing.T) {
	prog := parse(t, `let a := 1 ; let b := 2
let c := 3`)
	require.Len(t, prog.Stmts, 3)
}
