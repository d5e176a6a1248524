package ast_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/parser"
)

func bodyOf(t *testing.T, src string) *ast.MastNode {
	t.Helper()
	prog, err := parser.ParseProgram(src)
	require.NoError(t, err)
	fn, ok := prog.Stmts[0].(*ast.FunctionDecl)
	require.True(t, ok)
	return fn.Body
}

func TestHashMatchesCanonicalBytes(t *testing.T) {
	body := bodyOf(t, `func f(x) { return x + 1 }`)
	require.Equal(t, [32]byte(sha256.Sum256(ast.CanonicalBytes(body.Content))), body.Hash)
}

func TestHashIgnoresWhitespaceCommentsAndPositions(t *testing.T) {
	a := bodyOf(t, "func f(x) { return x + 1 }")
	b := bodyOf(t, "func f(x) {\n\t// a comment\n\treturn x    +   1\n}")
	require.Equal(t, a.Hash, b.Hash)
}

func TestHashSensitiveToSemanticChange(t *testing.T) {
	a := bodyOf(t, `func f(x) { return x + 1 }`)
	b := bodyOf(t, `func f(x) { return x + 2 }`)
	c := bodyOf(t, `func f(x) { let y := x + 1 ; return y }`)
	require.NotEqual(t, a.Hash, b.Hash)
	require.NotEqual(t, a.Hash, c.Hash)
}

func TestHashSensitiveToLinearity(t *testing.T) {
	a := bodyOf(t, `func f(x) { let b := x ; return b }`)
	b := bodyOf(t, `func f(x) { let b: Linear := x ; return b }`)
	require.NotEqual(t, a.Hash, b.Hash)
}

func TestReencodeCanonicalIsStable(t *testing.T) {
	body := bodyOf(t, `func f(x) { return list.get(x, 0) }`)
	enc := ast.CanonicalBytes(body.Content)
	re, err := ast.ReencodeCanonical(enc)
	require.NoError(t, err)
	require.Equal(t, enc, re)
}

func TestLambdaBodiesAreContentAddressed(t *testing.T) {
	prog, err := parser.ParseProgram(`
let f := func(x) { return x * 2 }
let g := func(y) { return y * 2 }
`)
	require.NoError(t, err)
	f := prog.Stmts[0].(*ast.Let).Value.(*ast.Lambda)
	g := prog.Stmts[1].(*ast.Let).Value.(*ast.Lambda)
	// Bodies differ only in the bound name, which is part of the content.
	require.NotEqual(t, f.Body.Hash, g.Body.Hash)
}
