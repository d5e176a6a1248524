package typesystem

import "github.com/arclang/arc/internal/ast"

// freeVariables collects every Variable name referenced within body,
// excluding names in bound (the enclosing lambda's own parameters). It is a
// conservative over-approximation: names re-bound by a nested Let inside
// body are still reported, since at the point of lambda creation every
// outer name a body text mentions is a candidate capture. The checker only
// acts on names that actually resolve to a Linear or Affine binding in the
// enclosing scope, so over-reporting Shared names here is harmless.
func freeVariables(b *ast.Block, bound map[string]bool) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if bound[name] || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	var walkBlock func(*ast.Block)
	var walkStmt func(ast.Statement)
	var walkExpr func(ast.Expression)

	walkExpr = func(e ast.Expression) {
		switch n := e.(type) {
		case nil:
		case *ast.Variable:
			add(n.Name)
		case *ast.Literal:
		case *ast.FString:
			for _, seg := range n.Segments {
				walkExpr(seg.Expr)
			}
		case *ast.ListLit:
			for _, it := range n.Items {
				walkExpr(it)
			}
		case *ast.StructLit:
			for _, f := range n.Fields {
				walkExpr(f.Value)
			}
		case *ast.Lambda:
			if n.Body != nil {
				walkBlock(n.Body.Content)
			}
		case *ast.Call:
			walkExpr(n.Callee)
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.MethodCall:
			walkExpr(n.Receiver)
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.FieldAccess:
			walkExpr(n.Obj)
		case *ast.Index:
			walkExpr(n.Obj)
			walkExpr(n.Idx)
		case *ast.Pipe:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.Range:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.BinOp:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.UnaryOp:
			walkExpr(n.X)
		case *ast.Match:
			walkExpr(n.Scrutinee)
			for _, arm := range n.Arms {
				walkBlock(arm.Body)
			}
		}
	}

	walkStmt = func(s ast.Statement) {
		switch n := s.(type) {
		case *ast.Let:
			walkExpr(n.Value)
		case *ast.Assign:
			walkExpr(n.Target)
			walkExpr(n.Value)
		case *ast.If:
			walkExpr(n.Cond)
			walkBlock(n.Then)
			if n.Else != nil {
				walkBlock(n.Else)
			}
		case *ast.While:
			walkExpr(n.Cond)
			walkBlock(n.Body)
		case *ast.For:
			walkExpr(n.Iterable)
			walkBlock(n.Body)
		case *ast.Return:
			walkExpr(n.Value)
		case *ast.TryCatch:
			walkBlock(n.Try)
			walkBlock(n.Catch)
		case *ast.ExprStmt:
			walkExpr(n.X)
		case *ast.Match:
			walkExpr(n.Scrutinee)
			for _, arm := range n.Arms {
				walkBlock(arm.Body)
			}
		}
	}

	walkBlock = func(blk *ast.Block) {
		if blk == nil {
			return
		}
		for _, s := range blk.Stmts {
			walkStmt(s)
		}
	}

	walkBlock(b)
	return out
}
