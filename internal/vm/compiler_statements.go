package vm

import (
	"strings"

	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
)

func (c *Compiler) compileStmt(stmt ast.Statement) error {
	switch n := stmt.(type) {
	case *ast.Let:
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		c.emitU16(OP_STORE, c.nameConst(n.Name), n.Span())
		c.defineBinding(n.Name, n.Linearity)
		return nil
	case *ast.Assign:
		return c.compileAssign(n)
	case *ast.If:
		return c.compileIf(n)
	case *ast.While:
		return c.compileWhile(n)
	case *ast.For:
		return c.compileFor(n)
	case *ast.Break:
		return c.compileBreak(n)
	case *ast.Continue:
		return c.compileContinue(n)
	case *ast.Return:
		return c.compileReturn(n)
	case *ast.Match:
		if err := c.compileMatch(n); err != nil {
			return err
		}
		c.emit(OP_POP, n.Span())
		return nil
	case *ast.TryCatch:
		return c.compileTryCatch(n)
	case *ast.Import:
		return c.compileImport(n)
	case *ast.FunctionDecl:
		proto, err := c.compileFunctionProto(n.Name, n.Params, n.Body, n.Span())
		if err != nil {
			return err
		}
		c.emitU16(OP_MAKE_FUNC, c.chunk.addConstant(ObjVal(proto)), n.Span())
		c.emitU16(OP_STORE, c.nameConst(n.Name), n.Span())
		c.defineBinding(n.Name, ast.Shared)
		return nil
	case *ast.StructDecl, *ast.EnumDecl, *ast.TraitDecl:
		// Pure declarations; shape checks happen at construction sites.
		return nil
	case *ast.ImplBlock:
		return c.compileImplBlock(n)
	case *ast.ExprStmt:
		if err := c.compileExpr(n.X); err != nil {
			return err
		}
		c.emit(OP_POP, n.Span())
		return nil
	default:
		return compileError(diagnostics.Code("UnsupportedStatement"), stmt.Span())
	}
}

// compileImplBlock registers each method as a namespaced function binding
// (Type.method), the minimal dynamic-dispatch surface the runtime needs:
// method-call expressions on a receiver of that type resolve through it.
func (c *Compiler) compileImplBlock(n *ast.ImplBlock) error {
	for i := range n.Methods {
		m := &n.Methods[i]
		proto, err := c.compileFunctionProto(n.TypeName+"."+m.Name, m.Params, m.Body, m.Span())
		if err != nil {
			return err
		}
		c.emitU16(OP_MAKE_FUNC, c.chunk.addConstant(ObjVal(proto)), m.Span())
		c.emitU16(OP_STORE, c.nameConst(n.TypeName+"."+m.Name), m.Span())
	}
	return nil
}

func (c *Compiler) compileReturn(n *ast.Return) error {
	if !c.inFunction {
		return compileError(diagnostics.ReturnOutsideFunction, n.Span())
	}
	if n.Value != nil {
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
	} else {
		c.emitConst(UnitVal(), n.Span())
	}
	c.emit(OP_RET, n.Span())
	return nil
}

func (c *Compiler) compileIf(n *ast.If) error {
	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	elseJump := c.emitJump(OP_JMP_IF_FALSE, n.Span())
	if err := c.compileScopedBlock(n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		c.patchJump(elseJump)
		return nil
	}
	endJump := c.emitJump(OP_JMP, n.Span())
	c.patchJump(elseJump)
	if err := c.compileScopedBlock(n.Else); err != nil {
		return err
	}
	c.patchJump(endJump)
	return nil
}

func (c *Compiler) compileWhile(n *ast.While) error {
	condAt := c.chunk.Len()
	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	exitJump := c.emitJump(OP_JMP_IF_FALSE, n.Span())

	ctx := &loopContext{continueTarget: condAt, scopeDepth: c.scopeDepth}
	c.loops = append(c.loops, ctx)
	if err := c.compileScopedBlock(n.Body); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.emitLoop(condAt, n.Span())
	c.patchJump(exitJump)
	for _, j := range ctx.breakJumps {
		c.patchJump(j)
	}
	return nil
}

func (c *Compiler) compileBreak(n *ast.Break) error {
	if len(c.loops) == 0 {
		return compileError(diagnostics.BreakOutsideLoop, n.Span())
	}
	ctx := c.loops[len(c.loops)-1]
	for d := c.scopeDepth; d > ctx.scopeDepth; d-- {
		c.emit(OP_EXIT_SCOPE, n.Span())
	}
	ctx.breakJumps = append(ctx.breakJumps, c.emitJump(OP_JMP, n.Span()))
	return nil
}

func (c *Compiler) compileContinue(n *ast.Continue) error {
	if len(c.loops) == 0 {
		return compileError(diagnostics.ContinueOutsideLoop, n.Span())
	}
	ctx := c.loops[len(c.loops)-1]
	for d := c.scopeDepth; d > ctx.scopeDepth; d-- {
		c.emit(OP_EXIT_SCOPE, n.Span())
	}
	if ctx.continueTarget >= 0 {
		c.emitLoop(ctx.continueTarget, n.Span())
	} else {
		ctx.continueJumps = append(ctx.continueJumps, c.emitJump(OP_JMP, n.Span()))
	}
	return nil
}

func (c *Compiler) compileTryCatch(n *ast.TryCatch) error {
	regionIdx := len(c.chunk.Regions)
	c.chunk.Regions = append(c.chunk.Regions, Region{BindName: c.nameConst(n.Binding)})
	c.emitU16(OP_TRY_PUSH, regionIdx, n.Span())
	if err := c.compileScopedBlock(n.Try); err != nil {
		return err
	}
	c.emit(OP_TRY_POP, n.Span())
	endJump := c.emitJump(OP_JMP, n.Span())

	// The VM lands here with the error description pushed.
	c.chunk.Regions[regionIdx].Handler = c.chunk.Len()
	c.enterScope(n.Span())
	c.emitU16(OP_STORE, c.nameConst(n.Binding), n.Span())
	c.defineBinding(n.Binding, ast.Shared)
	if err := c.compileBlockBody(n.Catch); err != nil {
		return err
	}
	c.exitScope(n.Span())
	c.patchJump(endJump)
	return nil
}

// compileImport lowers `import a.b.c` to a sys.import intrinsic call whose
// namespace result is bound under the alias (or the last path segment).
func (c *Compiler) compileImport(n *ast.Import) error {
	c.emitConst(StringVal("sys.import"), n.Span())
	c.emitConst(StringVal(strings.Join(n.Path, "/")), n.Span())
	c.chunk.writeOp(OP_CALL, n.Span())
	c.chunk.write(1, n.Span())
	name := n.Alias
	if name == "" {
		name = n.Path[len(n.Path)-1]
	}
	c.emitU16(OP_STORE, c.nameConst(name), n.Span())
	c.defineBinding(name, ast.Shared)
	return nil
}

// compileAssign lowers assignment to variables, field paths and index
// paths. Composite paths are compiled as an owned read-modify-write chain:
// the owner is loaded once, intermediate containers are duplicated on the
// stack while descending, and SET_FIELD/SET_INDEX rebuild ownership on the
// way back up before the root variable is rebound (spec §4.4 SetField's
// swap-and-update license).
func (c *Compiler) compileAssign(n *ast.Assign) error {
	switch t := n.Target.(type) {
	case *ast.Variable:
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		c.emitU16(OP_ASSIGN, c.nameConst(t.Name), n.Span())
		return nil
	case *ast.FieldAccess, *ast.Index:
		root, accessors, err := flattenPath(n.Target)
		if err != nil {
			return err
		}
		return c.compilePathAssign(root, accessors, n)
	default:
		return compileError(diagnostics.InvalidAssignmentTarget, n.Target.Span())
	}
}

type accessor struct {
	field string         // field name, or
	index ast.Expression // index expression
}

func flattenPath(e ast.Expression) (*ast.Variable, []accessor, error) {
	switch t := e.(type) {
	case *ast.Variable:
		return t, nil, nil
	case *ast.FieldAccess:
		root, acc, err := flattenPath(t.Obj)
		if err != nil {
			return nil, nil, err
		}
		return root, append(acc, accessor{field: t.Field}), nil
	case *ast.Index:
		root, acc, err := flattenPath(t.Obj)
		if err != nil {
			return nil, nil, err
		}
		return root, append(acc, accessor{index: t.Idx}), nil
	default:
		return nil, nil, compileError(diagnostics.InvalidAssignmentTarget, e.Span())
	}
}

func (c *Compiler) compilePathAssign(root *ast.Variable, accessors []accessor, n *ast.Assign) error {
	pos := n.Span()

	// Index expressions are evaluated exactly once, into hidden bindings,
	// because they are needed both while descending and while rebuilding.
	c.enterScope(pos)
	idxNames := make([]string, len(accessors))
	for i, acc := range accessors {
		if acc.index != nil {
			idxNames[i] = hiddenName("idx", i)
			if err := c.compileExpr(acc.index); err != nil {
				return err
			}
			c.emitU16(OP_STORE, c.nameConst(idxNames[i]), pos)
		}
	}

	c.emitLoad(root.Name, pos)
	// Descend: keep each container below the value extracted from it.
	for _, step := range accessorsButLast(accessors) {
		c.emit(OP_DUP, pos)
		if step.acc.index != nil {
			c.emitU16(OP_LOAD_KEEP, c.nameConst(idxNames[step.i]), pos)
			c.emit(OP_INDEX, pos)
		} else {
			c.emitU16(OP_GET_FIELD, c.nameConst(step.acc.field), pos)
		}
	}

	// Innermost update.
	last := accessors[len(accessors)-1]
	if last.index != nil {
		c.emitU16(OP_LOAD_KEEP, c.nameConst(idxNames[len(accessors)-1]), pos)
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		c.emit(OP_SET_INDEX, pos)
	} else {
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		c.emitU16(OP_SET_FIELD, c.nameConst(last.field), pos)
	}

	// Rebuild: each updated value becomes the new field/element of the
	// container saved beneath it.
	for i := len(accessors) - 2; i >= 0; i-- {
		acc := accessors[i]
		if acc.index != nil {
			c.emitU16(OP_LOAD_KEEP, c.nameConst(idxNames[i]), pos)
			c.emit(OP_SWAP, pos)
			c.emit(OP_SET_INDEX, pos)
		} else {
			c.emitU16(OP_SET_FIELD, c.nameConst(acc.field), pos)
		}
	}

	c.emitU16(OP_ASSIGN, c.nameConst(root.Name), pos)
	c.exitScope(pos)
	return nil
}

type indexedAccessor struct {
	acc accessor
	i   int
}

func accessorsButLast(accessors []accessor) []indexedAccessor {
	out := make([]indexedAccessor, 0, len(accessors)-1)
	for i := 0; i < len(accessors)-1; i++ {
		out = append(out, indexedAccessor{acc: accessors[i], i: i})
	}
	return out
}

// hiddenName builds a binding name no source identifier can collide with.
func hiddenName(kind string, i int) string {
	return "$" + kind + string(rune('0'+i))
}
