package typesystem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/typesystem"
)

func block(stmts ...ast.Statement) *ast.Block {
	return &ast.Block{Stmts: stmts}
}

func let(name string, lin ast.Linearity, val ast.Expression) *ast.Let {
	return &ast.Let{Name: name, Linearity: lin, Value: val}
}

func varE(name string) *ast.Variable { return &ast.Variable{Name: name} }

func exprStmt(e ast.Expression) *ast.ExprStmt { return &ast.ExprStmt{X: e} }

func callIntrinsic(name string, args ...ast.Expression) *ast.Call {
	callee := ast.Expression(&ast.Variable{Name: name})
	return &ast.Call{Callee: callee, Args: args}
}

func litInt(n int64) *ast.Literal { return &ast.Literal{Kind: ast.LitInt, Int: n} }

func errCode(t *testing.T, err error) diagnostics.Code {
	t.Helper()
	de, ok := err.(*diagnostics.Error)
	require.True(t, ok, "expected *diagnostics.Error, got %T", err)
	return de.Code
}

func TestLinearVariableMustBeConsumed(t *testing.T) {
	prog := block(
		let("h", ast.Linear, callIntrinsic("sys.mem.alloc", litInt(8))),
	)
	c := typesystem.NewChecker(nil)
	err := c.Check(prog)
	require.Error(t, err)
	require.Equal(t, diagnostics.NeverConsumed, errCode(t, err))
}

func TestConsumerTableMarksArgConsumed(t *testing.T) {
	table := typesystem.ConsumerTable{
		"sys.mem.free": {Name: "sys.mem.free", ConsumesParams: []int{0}},
	}
	prog := block(
		let("h", ast.Linear, callIntrinsic("sys.mem.alloc", litInt(8))),
		exprStmt(callIntrinsic("sys.mem.free", varE("h"))),
	)
	c := typesystem.NewChecker(table)
	require.NoError(t, c.Check(prog))
}

func TestUseAfterMoveIsAnError(t *testing.T) {
	table := typesystem.ConsumerTable{
		"sys.mem.free": {Name: "sys.mem.free", ConsumesParams: []int{0}},
	}
	prog := block(
		let("h", ast.Linear, callIntrinsic("sys.mem.alloc", litInt(8))),
		exprStmt(callIntrinsic("sys.mem.free", varE("h"))),
		exprStmt(callIntrinsic("sys.mem.free", varE("h"))),
	)
	c := typesystem.NewChecker(table)
	err := c.Check(prog)
	require.Error(t, err)
	require.Equal(t, diagnostics.UseAfterMove, errCode(t, err))
}

func TestBranchMoveMismatchIsAnError(t *testing.T) {
	table := typesystem.ConsumerTable{
		"sys.mem.free": {Name: "sys.mem.free", ConsumesParams: []int{0}},
	}
	prog := block(
		let("h", ast.Linear, callIntrinsic("sys.mem.alloc", litInt(8))),
		&ast.If{
			Cond: &ast.Literal{Kind: ast.LitBool, Bool: true},
			Then: block(exprStmt(callIntrinsic("sys.mem.free", varE("h")))),
			Else: block(),
		},
	)
	c := typesystem.NewChecker(table)
	err := c.Check(prog)
	require.Error(t, err)
	require.Equal(t, diagnostics.BranchMoveMismatch, errCode(t, err))
}

func TestMoveOnBothBranchesIsFine(t *testing.T) {
	table := typesystem.ConsumerTable{
		"sys.mem.free": {Name: "sys.mem.free", ConsumesParams: []int{0}},
	}
	prog := block(
		let("h", ast.Linear, callIntrinsic("sys.mem.alloc", litInt(8))),
		&ast.If{
			Cond: &ast.Literal{Kind: ast.LitBool, Bool: true},
			Then: block(exprStmt(callIntrinsic("sys.mem.free", varE("h")))),
			Else: block(exprStmt(callIntrinsic("sys.mem.free", varE("h")))),
		},
	)
	c := typesystem.NewChecker(table)
	require.NoError(t, c.Check(prog))
}

func TestMoveInLoopFromOutsideIsAnError(t *testing.T) {
	table := typesystem.ConsumerTable{
		"sys.mem.free": {Name: "sys.mem.free", ConsumesParams: []int{0}},
	}
	prog := block(
		let("h", ast.Linear, callIntrinsic("sys.mem.alloc", litInt(8))),
		&ast.While{
			Cond: &ast.Literal{Kind: ast.LitBool, Bool: true},
			Body: block(exprStmt(varE("h"))),
		},
	)
	c := typesystem.NewChecker(table)
	err := c.Check(prog)
	require.Error(t, err)
	require.Equal(t, diagnostics.MoveInLoop, errCode(t, err))
}

func TestSharedBindingNeverNeedsConsuming(t *testing.T) {
	prog := block(
		let("x", ast.Shared, litInt(1)),
		exprStmt(varE("x")),
		exprStmt(varE("x")),
	)
	c := typesystem.NewChecker(nil)
	require.NoError(t, c.Check(prog))
}

func TestLambdaCaptureMovesLinearBinding(t *testing.T) {
	table := typesystem.ConsumerTable{
		"sys.mem.free": {Name: "sys.mem.free", ConsumesParams: []int{0}},
	}
	lambdaBody := ast.NewMastNode(block(exprStmt(callIntrinsic("sys.mem.free", varE("h")))))
	prog := block(
		let("h", ast.Linear, callIntrinsic("sys.mem.alloc", litInt(8))),
		let("f", ast.Shared, &ast.Lambda{Body: lambdaBody}),
		exprStmt(varE("h")),
	)
	c := typesystem.NewChecker(table)
	err := c.Check(prog)
	require.Error(t, err)
	require.Equal(t, diagnostics.UseAfterMove, errCode(t, err))
}
