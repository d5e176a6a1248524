package vm

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// loopContext tracks one enclosing loop during compilation, for lowering
// break/continue to plain jumps (they never appear in finished bytecode).
type loopContext struct {
	// continueTarget is the backward target of continue, or -1 when the
	// loop's step code comes after the body and continues must be patched
	// forward (for-loops).
	continueTarget int
	breakJumps     []int
	continueJumps  []int
	// scopeDepth is the compiler's scope depth just inside the loop's own
	// scope; break/continue emit EXIT_SCOPE down to it before jumping.
	scopeDepth int
}

// bindScope is the compiler's lexical symbol table, mirroring the runtime
// scope chain. It exists so loads can be split by binding linearity: a
// Linear/Affine binding reads via the moving OP_LOAD, everything else via
// the aliasing OP_LOAD_KEEP (spec §4.4 Load).
type bindScope struct {
	vars   map[string]ast.Linearity
	parent *bindScope
}

func newBindScope(parent *bindScope) *bindScope {
	return &bindScope{vars: make(map[string]ast.Linearity), parent: parent}
}

func (b *bindScope) lookup(name string) (ast.Linearity, bool) {
	for cur := b; cur != nil; cur = cur.parent {
		if l, ok := cur.vars[name]; ok {
			return l, true
		}
	}
	return ast.Shared, false
}

// enumTable maps enum name -> variant name -> payload arity, collected in a
// pre-pass so constructors resolve regardless of declaration order.
type enumTable map[string]map[string]int

// Compiler lowers one chunk's worth of AST to bytecode in a single pass.
// Function bodies get their own Compiler with fresh loop/scope tracking but
// shared enum knowledge and a parent link for binding lookup.
type Compiler struct {
	chunk      *Chunk
	registry   *Registry
	scopeDepth int
	loops      []*loopContext
	inFunction bool
	bindings   *bindScope
	enums      enumTable
}

// Compile lowers a checked program to a sealed top-level Chunk. The
// registry is consulted so calls to known intrinsic names push the name as
// a string constant instead of a scope lookup.
func Compile(prog *ast.Block, registry *Registry) (*Chunk, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	c := &Compiler{
		chunk:    NewChunk("<script>"),
		registry: registry,
		bindings: newBindScope(nil),
		enums:    make(enumTable),
	}
	collectEnums(prog, c.enums)
	if err := c.compileBlockBody(prog); err != nil {
		return nil, err
	}
	end := prog.Span()
	c.emitConst(UnitVal(), end)
	c.emit(OP_RET, end)
	c.chunk.Seal()
	return c.chunk, nil
}

// collectEnums hoists enum declarations, including those nested in blocks
// and function bodies.
func collectEnums(b *ast.Block, into enumTable) {
	for _, stmt := range b.Stmts {
		switch n := stmt.(type) {
		case *ast.EnumDecl:
			variants := make(map[string]int, len(n.Variants))
			for _, v := range n.Variants {
				variants[v.Name] = len(v.PayloadTys)
			}
			into[n.Name] = variants
		case *ast.If:
			collectEnums(n.Then, into)
			if n.Else != nil {
				collectEnums(n.Else, into)
			}
		case *ast.While:
			collectEnums(n.Body, into)
		case *ast.For:
			collectEnums(n.Body, into)
		case *ast.TryCatch:
			collectEnums(n.Try, into)
			collectEnums(n.Catch, into)
		case *ast.FunctionDecl:
			collectEnums(n.Body.Content, into)
		case *ast.Match:
			for _, arm := range n.Arms {
				collectEnums(arm.Body, into)
			}
		case *ast.Block:
			collectEnums(n, into)
		}
	}
}

func (c *Compiler) lookupEnumVariant(dotted string) (enum, variant string, arity int, ok bool) {
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			e, v := dotted[:i], dotted[i+1:]
			if variants, found := c.enums[e]; found {
				if a, has := variants[v]; has {
					return e, v, a, true
				}
			}
			return "", "", 0, false
		}
	}
	return "", "", 0, false
}

func compileError(code diagnostics.Code, pos token.Position, args ...interface{}) *diagnostics.Error {
	return diagnostics.New(diagnostics.PhaseCompile, code, pos, args...)
}

// ---- emit helpers ----

func (c *Compiler) emit(op Opcode, pos token.Position) {
	c.chunk.writeOp(op, pos)
}

func (c *Compiler) emitU16(op Opcode, operand int, pos token.Position) {
	c.chunk.writeOp(op, pos)
	c.chunk.writeU16(operand, pos)
}

func (c *Compiler) emitConst(v Value, pos token.Position) {
	c.emitU16(OP_CONST, c.chunk.addConstant(v), pos)
}

func (c *Compiler) nameConst(name string) int {
	return c.chunk.addConstant(StringVal(name))
}

// emitJump writes op with a placeholder offset and returns the operand
// position for patchJump.
func (c *Compiler) emitJump(op Opcode, pos token.Position) int {
	c.chunk.writeOp(op, pos)
	c.chunk.writeU16(0xffff, pos)
	return c.chunk.Len() - 2
}

func (c *Compiler) patchJump(operandAt int) {
	// Offset is measured from just past the operand.
	jump := c.chunk.Len() - operandAt - 2
	c.chunk.Code[operandAt] = byte(jump >> 8)
	c.chunk.Code[operandAt+1] = byte(jump)
}

// emitLoop writes a backward jump to target.
func (c *Compiler) emitLoop(target int, pos token.Position) {
	c.chunk.writeOp(OP_LOOP, pos)
	offset := c.chunk.Len() - target + 2
	c.chunk.writeU16(offset, pos)
}

func (c *Compiler) enterScope(pos token.Position) {
	c.emit(OP_ENTER_SCOPE, pos)
	c.scopeDepth++
	c.bindings = newBindScope(c.bindings)
}

func (c *Compiler) exitScope(pos token.Position) {
	c.emit(OP_EXIT_SCOPE, pos)
	c.scopeDepth--
	c.bindings = c.bindings.parent
}

func (c *Compiler) defineBinding(name string, lin ast.Linearity) {
	c.bindings.vars[name] = lin
}

// emitLoad picks the moving or aliasing load depending on the binding's
// declared linearity (spec §4.4 Load: Linear/Affine reads move the binding
// out of its scope).
func (c *Compiler) emitLoad(name string, pos token.Position) {
	lin, _ := c.bindings.lookup(name)
	if lin == ast.Linear || lin == ast.Affine {
		c.emitU16(OP_LOAD, c.nameConst(name), pos)
	} else {
		c.emitU16(OP_LOAD_KEEP, c.nameConst(name), pos)
	}
}

// ---- blocks ----

// compileBlockBody emits statements without opening a scope; callers that
// need lexical isolation wrap it in enterScope/exitScope. Statements after
// a terminating return/break/continue are dead and elided.
func (c *Compiler) compileBlockBody(b *ast.Block) error {
	for _, stmt := range b.Stmts {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
		if isTerminator(stmt) {
			break
		}
	}
	return nil
}

func (c *Compiler) compileScopedBlock(b *ast.Block) error {
	c.enterScope(b.Span())
	if err := c.compileBlockBody(b); err != nil {
		return err
	}
	c.exitScope(b.Span())
	return nil
}

func isTerminator(stmt ast.Statement) bool {
	switch stmt.(type) {
	case *ast.Return, *ast.Break, *ast.Continue:
		return true
	}
	return false
}

// ---- functions ----

// compileFunctionProto compiles a function body into its own chunk and
// returns the prototype for the constants pool. The prologue binds
// arguments to parameter names via STORE: the caller pushed them
// left-to-right, so the last parameter is on top and stores run in reverse.
func (c *Compiler) compileFunctionProto(name string, params []ast.Param, body *ast.MastNode, pos token.Position) (*CompiledFunction, error) {
	sub := &Compiler{
		chunk:      NewChunk(name),
		registry:   c.registry,
		inFunction: true,
		bindings:   newBindScope(c.bindings),
		enums:      c.enums,
	}
	paramNames := make([]string, len(params))
	for i, p := range params {
		paramNames[i] = p.Name
		sub.defineBinding(p.Name, p.Linearity)
	}
	for i := len(params) - 1; i >= 0; i-- {
		sub.emitU16(OP_STORE, sub.nameConst(params[i].Name), pos)
	}
	if err := sub.compileBlockBody(body.Content); err != nil {
		return nil, err
	}
	sub.emitConst(UnitVal(), pos)
	sub.emit(OP_RET, pos)
	sub.chunk.Seal()
	return &CompiledFunction{Name: name, Params: paramNames, Chunk: sub.chunk, MastHash: body.Hash}, nil
}
