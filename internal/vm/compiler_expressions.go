package vm

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

func (c *Compiler) compileExpr(e ast.Expression) error {
	switch n := e.(type) {
	case *ast.Literal:
		c.emitConst(literalValue(n), n.Span())
		return nil
	case *ast.Variable:
		c.emitLoad(n.Name, n.Span())
		return nil
	case *ast.Call:
		return c.compileCall(n)
	case *ast.MethodCall:
		return c.compileMethodCall(n)
	case *ast.BinOp:
		return c.compileShortCircuit(n)
	case *ast.Pipe:
		// Non-call pipe RHS: `a |> f` applies f to a.
		call := &ast.Call{Callee: n.Right, Args: []ast.Expression{n.Left}}
		call.Pos = n.Span()
		return c.compileCall(call)
	case *ast.Range:
		return c.compileRangeExpr(n)
	case *ast.FString:
		return c.compileExpr(desugarFString(n))
	case *ast.ListLit:
		for _, it := range n.Items {
			if err := c.compileExpr(it); err != nil {
				return err
			}
		}
		c.emitU16(OP_MAKE_LIST, len(n.Items), n.Span())
		return nil
	case *ast.StructLit:
		for _, f := range n.Fields {
			c.emitConst(StringVal(f.Name), n.Span())
			if err := c.compileExpr(f.Value); err != nil {
				return err
			}
		}
		c.emitU16(OP_MAKE_STRUCT, c.nameConst(n.TypeName), n.Span())
		c.chunk.writeU16(len(n.Fields), n.Span())
		return nil
	case *ast.Lambda:
		proto, err := c.compileFunctionProto("<lambda>", n.Params, n.Body, n.Span())
		if err != nil {
			return err
		}
		c.emitU16(OP_MAKE_FUNC, c.chunk.addConstant(ObjVal(proto)), n.Span())
		return nil
	case *ast.FieldAccess:
		// A payload-less enum variant reference (Shape.Square) parses as a
		// field access; it constructs the variant directly.
		if dotted, ok := dottedName(n); ok {
			if enum, variant, arity, isVariant := c.lookupEnumVariant(dotted); isVariant && arity == 0 {
				c.emitMakeEnum(enum, variant, 0, n.Span())
				return nil
			}
		}
		if err := c.compileExpr(n.Obj); err != nil {
			return err
		}
		if n.Optional {
			c.emitU16(OP_GET_FIELD_OPT, c.nameConst(n.Field), n.Span())
		} else {
			c.emitU16(OP_GET_FIELD, c.nameConst(n.Field), n.Span())
		}
		return nil
	case *ast.Index:
		if err := c.compileExpr(n.Obj); err != nil {
			return err
		}
		if err := c.compileExpr(n.Idx); err != nil {
			return err
		}
		c.emit(OP_INDEX, n.Span())
		return nil
	case *ast.Match:
		return c.compileMatch(n)
	case *ast.UnaryOp:
		// Parser desugars unary operators; reaching one is a parser bug.
		return compileError(diagnostics.Code("UnloweredOperator"), n.Span())
	default:
		return compileError(diagnostics.Code("UnsupportedExpression"), e.Span())
	}
}

func literalValue(l *ast.Literal) Value {
	switch l.Kind {
	case ast.LitInt:
		return IntVal(l.Int)
	case ast.LitFloat:
		return FloatVal(l.Flt)
	case ast.LitString:
		return StringVal(l.Str)
	case ast.LitBool:
		return BoolVal(l.Bool)
	default:
		return UnitVal()
	}
}

// foldableOps are the pure operator intrinsics constant folding may
// evaluate at compile time (spec §4.4).
var foldableOps = map[string]bool{
	"add": true, "sub": true, "mul": true, "div": true, "modulo": true,
	"eq": true, "neq": true, "lt": true, "gt": true, "le": true, "ge": true,
	"not": true, "neg": true, "bnot": true,
}

func (c *Compiler) compileCall(n *ast.Call) error {
	name, isName := dottedName(n.Callee)

	// Constant folding: a pure operator over literal operands collapses to
	// a single PushConst. A handler error (e.g. 1/0) is left for runtime.
	if isName && foldableOps[name] {
		if folded, ok := c.tryFold(name, n.Args); ok {
			c.emitConst(folded, n.Span())
			return nil
		}
	}

	// Enum construction: Shape.Circle(2.0) lowers to MAKE_ENUM, not a call.
	if isName {
		if enum, variant, arity, isVariant := c.lookupEnumVariant(name); isVariant {
			if arity != len(n.Args) {
				return compileError(diagnostics.Code("EnumArityMismatch"), n.Span())
			}
			for _, a := range n.Args {
				if err := c.compileExpr(a); err != nil {
					return err
				}
			}
			c.emitMakeEnum(enum, variant, arity, n.Span())
			return nil
		}
	}

	// Single-argument print gets the dedicated opcode; the variadic forms
	// go through the print intrinsic like any other call.
	if isName && name == "print" && len(n.Args) == 1 {
		if err := c.compileExpr(n.Args[0]); err != nil {
			return err
		}
		c.emit(OP_PRINT, n.Span())
		c.emitConst(UnitVal(), n.Span())
		return nil
	}

	// Callee: intrinsic names compile to a string constant the dispatcher
	// recognizes; anything else is an ordinary value in scope.
	if isName {
		if _, intrinsic := c.registry.Lookup(name); intrinsic {
			c.emitConst(StringVal(name), n.Span())
		} else if isDottedPath(n.Callee) {
			// A dotted non-intrinsic path: a namespaced binding (e.g. a
			// loaded module member); compile as a field access chain.
			if err := c.compileExpr(n.Callee); err != nil {
				return err
			}
		} else {
			c.emitLoad(name, n.Span())
		}
	} else {
		if err := c.compileExpr(n.Callee); err != nil {
			return err
		}
	}

	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.chunk.writeOp(OP_CALL, n.Span())
	c.chunk.write(byte(len(n.Args)), n.Span())
	return nil
}

func (c *Compiler) emitMakeEnum(enum, variant string, arity int, pos token.Position) {
	c.chunk.writeOp(OP_MAKE_ENUM, pos)
	c.chunk.writeU16(c.nameConst(enum), pos)
	c.chunk.writeU16(c.nameConst(variant), pos)
	c.chunk.write(byte(arity), pos)
}

func (c *Compiler) tryFold(name string, args []ast.Expression) (Value, bool) {
	in, ok := c.registry.Lookup(name)
	if !ok || (in.Arity != Variadic && in.Arity != len(args)) {
		return Value{}, false
	}
	vals := make([]Value, len(args))
	for i, a := range args {
		v, isConst := c.constValue(a)
		if !isConst {
			return Value{}, false
		}
		vals[i] = v
	}
	out, err := in.Handler(nil, vals)
	if err != nil {
		return Value{}, false
	}
	return out, true
}

// constValue evaluates an expression at compile time when it is a literal
// or a foldable-operator tree over literals, so 1 + 2 * 3 collapses to a
// single constant.
func (c *Compiler) constValue(e ast.Expression) (Value, bool) {
	switch n := e.(type) {
	case *ast.Literal:
		return literalValue(n), true
	case *ast.Call:
		name, ok := dottedName(n.Callee)
		if !ok || !foldableOps[name] {
			return Value{}, false
		}
		return c.tryFold(name, n.Args)
	default:
		return Value{}, false
	}
}

// compileMethodCall lowers `recv.name(args)`. When the receiver is itself
// a plain dotted name that is not locally bound, the whole spelling may be
// an enum constructor (Shape.Circle) or a dotted intrinsic (list.get,
// sys.mem.alloc) — those resolve by name, with no receiver value at all.
// A registered bare intrinsic name dispatches UFCS-style with the receiver
// as first argument (the pipe operator's convention); anything else goes
// through CALL_METHOD, which resolves Type.name impl bindings against the
// receiver's runtime type before falling back to a plain function binding.
func (c *Compiler) compileMethodCall(n *ast.MethodCall) error {
	if base, ok := dottedName(n.Receiver); ok && !c.isBoundPath(base) {
		full := base + "." + n.Name
		if enum, variant, arity, isVariant := c.lookupEnumVariant(full); isVariant {
			if arity != len(n.Args) {
				return compileError(diagnostics.Code("EnumArityMismatch"), n.Span())
			}
			for _, a := range n.Args {
				if err := c.compileExpr(a); err != nil {
					return err
				}
			}
			c.emitMakeEnum(enum, variant, arity, n.Span())
			return nil
		}
		if _, intrinsic := c.registry.Lookup(full); intrinsic {
			c.emitConst(StringVal(full), n.Span())
			for _, a := range n.Args {
				if err := c.compileExpr(a); err != nil {
					return err
				}
			}
			c.emitCall(len(n.Args), n.Span())
			return nil
		}
	}
	if _, intrinsic := c.registry.Lookup(n.Name); intrinsic {
		call := &ast.Call{Callee: variableRef(n.Name, n.Span()), Args: append([]ast.Expression{n.Receiver}, n.Args...)}
		call.Pos = n.Span()
		return c.compileCall(call)
	}
	if err := c.compileExpr(n.Receiver); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.chunk.writeOp(OP_CALL_METHOD, n.Span())
	c.chunk.writeU16(c.nameConst(n.Name), n.Span())
	c.chunk.write(byte(len(n.Args)), n.Span())
	return nil
}

func variableRef(name string, pos token.Position) *ast.Variable {
	v := &ast.Variable{Name: name}
	v.Pos = pos
	return v
}

// dottedName recovers the dotted name of a Variable/FieldAccess chain.
func dottedName(e ast.Expression) (string, bool) {
	switch n := e.(type) {
	case *ast.Variable:
		return n.Name, true
	case *ast.FieldAccess:
		if n.Optional {
			return "", false
		}
		base, ok := dottedName(n.Obj)
		if !ok {
			return "", false
		}
		return base + "." + n.Field, true
	default:
		return "", false
	}
}

func isDottedPath(e ast.Expression) bool {
	_, ok := e.(*ast.FieldAccess)
	return ok
}

// isBoundPath reports whether the first segment of a dotted path names a
// local binding: `list.get` stops resolving as an intrinsic once the user
// binds a variable called list.
func (c *Compiler) isBoundPath(dotted string) bool {
	first := dotted
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			first = dotted[:i]
			break
		}
	}
	_, bound := c.bindings.lookup(first)
	return bound
}

// compileShortCircuit lowers && and || without the and/or intrinsics
// (spec §4.4): the right operand is not evaluated when the left decides.
func (c *Compiler) compileShortCircuit(n *ast.BinOp) error {
	switch n.Op {
	case "&&":
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		elseJump := c.emitJump(OP_JMP_IF_FALSE, n.Span())
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		endJump := c.emitJump(OP_JMP, n.Span())
		c.patchJump(elseJump)
		c.emitConst(BoolVal(false), n.Span())
		c.patchJump(endJump)
		return nil
	case "||":
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		rightJump := c.emitJump(OP_JMP_IF_FALSE, n.Span())
		c.emitConst(BoolVal(true), n.Span())
		endJump := c.emitJump(OP_JMP, n.Span())
		c.patchJump(rightJump)
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.patchJump(endJump)
		return nil
	default:
		return compileError(diagnostics.Code("UnloweredOperator"), n.Span())
	}
}

// compileRangeExpr materializes a..b / a..=b via the range intrinsic; the
// for-in lowering never reaches here (it compiles ranges to counting loops).
func (c *Compiler) compileRangeExpr(n *ast.Range) error {
	c.emitConst(StringVal("range"), n.Span())
	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	if err := c.compileExpr(n.Right); err != nil {
		return err
	}
	c.emitConst(BoolVal(n.Inclusive), n.Span())
	c.chunk.writeOp(OP_CALL, n.Span())
	c.chunk.write(3, n.Span())
	return nil
}

// desugarFString folds an interpolated string into an add-chain of str()
// conversions (spec §9), built here so the MAST encoding keeps the
// original segment structure.
func desugarFString(n *ast.FString) ast.Expression {
	pos := n.Span()
	var acc ast.Expression
	for _, seg := range n.Segments {
		var piece ast.Expression
		if seg.Expr != nil {
			conv := &ast.Call{Callee: variableRef("str", pos), Args: []ast.Expression{seg.Expr}}
			conv.Pos = pos
			piece = conv
		} else {
			lit := &ast.Literal{Kind: ast.LitString, Str: seg.Literal}
			lit.Pos = pos
			piece = lit
		}
		if acc == nil {
			acc = piece
			continue
		}
		sum := &ast.Call{Callee: variableRef("add", pos), Args: []ast.Expression{acc, piece}}
		sum.Pos = pos
		acc = sum
	}
	if acc == nil {
		lit := &ast.Literal{Kind: ast.LitString, Str: ""}
		lit.Pos = pos
		return lit
	}
	return acc
}

// compileMatch compiles a match to a value on the stack (spec §4.4): enum
// arms via MATCH_TAG, literal arms via an eq-test chain, bind/wildcard arms
// unconditionally.
func (c *Compiler) compileMatch(n *ast.Match) error {
	if err := c.compileExpr(n.Scrutinee); err != nil {
		return err
	}
	var endJumps []int
	for _, arm := range n.Arms {
		var nextJump = -1
		switch pat := arm.Pattern.(type) {
		case *ast.VariantPattern:
			// On match: scrutinee popped, payload pushed. On miss: jump
			// with the scrutinee untouched.
			c.emitU16(OP_MATCH_TAG, c.nameConst(pat.EnumName+"."+pat.VariantName), pat.Span())
			nextAt := c.chunk.Len()
			c.chunk.writeU16(0xffff, pat.Span())
			c.enterScope(arm.Body.Span())
			for i := len(pat.Bindings) - 1; i >= 0; i-- {
				c.emitU16(OP_STORE, c.nameConst(pat.Bindings[i].Name), pat.Span())
				c.defineBinding(pat.Bindings[i].Name, pat.Bindings[i].Linearity)
			}
			if err := c.compileArmBody(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, c.emitJump(OP_JMP, arm.Body.Span()))
			// Patch the miss target to the next arm.
			jump := c.chunk.Len() - nextAt - 2
			c.chunk.Code[nextAt] = byte(jump >> 8)
			c.chunk.Code[nextAt+1] = byte(jump)
		case *ast.LiteralPattern:
			c.emit(OP_DUP, pat.Span())
			c.emitConst(StringVal("eq"), pat.Span())
			c.emit(OP_SWAP, pat.Span())
			if err := c.compileExpr(pat.Value); err != nil {
				return err
			}
			c.chunk.writeOp(OP_CALL, pat.Span())
			c.chunk.write(2, pat.Span())
			nextJump = c.emitJump(OP_JMP_IF_FALSE, pat.Span())
			c.emit(OP_POP, pat.Span()) // drop the scrutinee
			c.enterScope(arm.Body.Span())
			if err := c.compileArmBody(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, c.emitJump(OP_JMP, arm.Body.Span()))
			c.patchJump(nextJump)
		case *ast.BindPattern:
			c.enterScope(arm.Body.Span())
			c.emitU16(OP_STORE, c.nameConst(pat.Name), pat.Span())
			c.defineBinding(pat.Name, pat.Linearity)
			if err := c.compileArmBody(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, c.emitJump(OP_JMP, arm.Body.Span()))
		case *ast.WildcardPattern:
			c.emit(OP_POP, pat.Span())
			c.enterScope(arm.Body.Span())
			if err := c.compileArmBody(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, c.emitJump(OP_JMP, arm.Body.Span()))
		}
		if isIrrefutable(arm.Pattern) {
			// Later arms are unreachable; the no-match fallthrough below
			// must not also run.
			for _, j := range endJumps {
				c.patchJump(j)
			}
			return nil
		}
	}
	// No arm matched: the scrutinee is still on the stack; the match
	// itself evaluates to Unit.
	c.emit(OP_POP, n.Span())
	c.emitConst(UnitVal(), n.Span())
	for _, j := range endJumps {
		c.patchJump(j)
	}
	return nil
}

// compileArmBody emits an arm body leaving its value on the stack with the
// arm scope closed. The caller opened the scope (pattern bindings precede).
func (c *Compiler) compileArmBody(b *ast.Block) error {
	for i, stmt := range b.Stmts {
		last := i == len(b.Stmts)-1
		if last {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				if err := c.compileExpr(es.X); err != nil {
					return err
				}
				c.exitScope(b.Span())
				return nil
			}
		}
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
		if isTerminator(stmt) {
			break
		}
	}
	c.emitConst(UnitVal(), b.Span())
	c.exitScope(b.Span())
	return nil
}

func isIrrefutable(p ast.Pattern) bool {
	switch p.(type) {
	case *ast.BindPattern, *ast.WildcardPattern:
		return true
	}
	return false
}
