package vm

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/token"
)

// compileFor lowers for-in loops (spec §4.4): a range iterable becomes a
// counting loop over its bounds; everything else (lists, strings, buffers)
// becomes an implicit-index loop over len/iter.get. No runtime iterator
// object exists.
func (c *Compiler) compileFor(n *ast.For) error {
	if r, ok := n.Iterable.(*ast.Range); ok {
		return c.compileForRange(n, r)
	}
	return c.compileForIndexed(n)
}

func (c *Compiler) compileForRange(n *ast.For, r *ast.Range) error {
	pos := n.Span()
	c.enterScope(pos)

	if err := c.compileExpr(r.Left); err != nil {
		return err
	}
	c.emitU16(OP_STORE, c.nameConst(n.Binding), pos)
	c.defineBinding(n.Binding, ast.Shared)
	if err := c.compileExpr(r.Right); err != nil {
		return err
	}
	c.emitU16(OP_STORE, c.nameConst("$hi"), pos)
	c.defineBinding("$hi", ast.Shared)

	cmp := "lt"
	if r.Inclusive {
		cmp = "le"
	}
	condAt := c.chunk.Len()
	c.emitConst(StringVal(cmp), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst(n.Binding), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst("$hi"), pos)
	c.emitCall(2, pos)
	exitJump := c.emitJump(OP_JMP_IF_FALSE, pos)

	ctx := &loopContext{continueTarget: -1, scopeDepth: c.scopeDepth}
	c.loops = append(c.loops, ctx)
	if err := c.compileScopedBlock(n.Body); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]

	// Step code: continues land here so the induction variable advances.
	for _, j := range ctx.continueJumps {
		c.patchJump(j)
	}
	c.emitConst(StringVal("add"), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst(n.Binding), pos)
	c.emitConst(IntVal(1), pos)
	c.emitCall(2, pos)
	c.emitU16(OP_ASSIGN, c.nameConst(n.Binding), pos)
	c.emitLoop(condAt, pos)

	c.patchJump(exitJump)
	for _, j := range ctx.breakJumps {
		c.patchJump(j)
	}
	c.exitScope(pos)
	return nil
}

func (c *Compiler) compileForIndexed(n *ast.For) error {
	pos := n.Span()
	c.enterScope(pos)

	if err := c.compileExpr(n.Iterable); err != nil {
		return err
	}
	c.emitU16(OP_STORE, c.nameConst("$iter"), pos)
	c.defineBinding("$iter", ast.Shared)
	c.emitConst(IntVal(0), pos)
	c.emitU16(OP_STORE, c.nameConst("$i"), pos)
	c.defineBinding("$i", ast.Shared)

	condAt := c.chunk.Len()
	c.emitConst(StringVal("lt"), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst("$i"), pos)
	c.emitConst(StringVal("len"), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst("$iter"), pos)
	c.emitCall(1, pos)
	c.emitCall(2, pos)
	exitJump := c.emitJump(OP_JMP_IF_FALSE, pos)

	ctx := &loopContext{continueTarget: -1, scopeDepth: c.scopeDepth}
	c.loops = append(c.loops, ctx)

	c.enterScope(pos)
	c.emitConst(StringVal("iter.get"), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst("$iter"), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst("$i"), pos)
	c.emitCall(2, pos)
	c.emitU16(OP_STORE, c.nameConst(n.Binding), pos)
	c.defineBinding(n.Binding, ast.Shared)
	if err := c.compileBlockBody(n.Body); err != nil {
		return err
	}
	c.exitScope(pos)

	c.loops = c.loops[:len(c.loops)-1]

	for _, j := range ctx.continueJumps {
		c.patchJump(j)
	}
	c.emitConst(StringVal("add"), pos)
	c.emitU16(OP_LOAD_KEEP, c.nameConst("$i"), pos)
	c.emitConst(IntVal(1), pos)
	c.emitCall(2, pos)
	c.emitU16(OP_ASSIGN, c.nameConst("$i"), pos)
	c.emitLoop(condAt, pos)

	c.patchJump(exitJump)
	for _, j := range ctx.breakJumps {
		c.patchJump(j)
	}
	c.exitScope(pos)
	return nil
}

func (c *Compiler) emitCall(argc int, pos token.Position) {
	c.chunk.writeOp(OP_CALL, pos)
	c.chunk.write(byte(argc), pos)
}
