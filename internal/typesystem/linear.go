// Package typesystem implements spec.md §4.3's LinearChecker: a
// pre-compilation static pass over the AST that tracks only the linearity
// state of each binding (not full type inference). It is grounded on the
// *shape* of funvibe-funxy's internal/typesystem/kind_checker.go — a
// recursive AST walk that returns a typed diagnostic error — but the
// algorithm itself (use-exactly-once / use-at-most-once discipline) has no
// analogue in the teacher's Hindley-Milner/typeclass checker, which this
// package does not carry forward (see DESIGN.md).
package typesystem

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// State is one binding's linearity-tracking state (spec.md §4.3).
type State int

const (
	Unused State = iota
	Live
	Consumed
	Moved
)

// ConsumerSpec declares that an intrinsic consumes (takes ownership of) one
// or more of its parameters (spec.md §4.3 "Consumer semantics").
type ConsumerSpec struct {
	Name               string
	ConsumesParams     []int
	ReturnsFreshLinear bool
}

// ConsumerTable is the fixed table shipped with the intrinsics (spec.md
// §4.3); the checker never hardcodes consumer knowledge itself.
type ConsumerTable map[string]ConsumerSpec

type binding struct {
	name      string
	linearity ast.Linearity
	state     State
	defPos    token.Position
}

type scope struct {
	vars   map[string]*binding
	parent *scope
	// loopBoundary is true if this scope is the body of a while/for loop,
	// used by rule 6 (no move-from-outside-the-loop).
	loopBoundary bool
}

func newScope(parent *scope, loopBoundary bool) *scope {
	return &scope{vars: make(map[string]*binding), parent: parent, loopBoundary: loopBoundary}
}

func (s *scope) define(name string, lin ast.Linearity, pos token.Position) *binding {
	b := &binding{name: name, linearity: lin, state: Live, defPos: pos}
	s.vars[name] = b
	return b
}

func (s *scope) lookup(name string) (*binding, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.vars[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// crossesLoopBoundary reports whether name is defined in a scope outside
// the nearest enclosing loop relative to cur.
func crossesLoopBoundary(cur *scope, name string) bool {
	sawLoop := false
	for s := cur; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			return sawLoop
		}
		if s.loopBoundary {
			sawLoop = true
		}
	}
	return false
}

// Checker runs the linear-type static pass.
type Checker struct {
	consumers ConsumerTable
}

// NewChecker builds a Checker against the given intrinsic consumer table.
func NewChecker(consumers ConsumerTable) *Checker {
	if consumers == nil {
		consumers = ConsumerTable{}
	}
	return &Checker{consumers: consumers}
}

// Check runs the LinearChecker over a top-level program block. On success,
// bytecode may be emitted (spec.md §4.3: "fatal — no bytecode is emitted
// for a program that fails the checker").
func (c *Checker) Check(prog *ast.Block) error {
	root := newScope(nil, false)
	return c.checkBlockBody(root, prog)
}

// checkBlockBody checks statements directly against an already-created
// scope (used for the function/program root, where the caller owns scope
// lifetime, e.g. to also register parameters before the body runs).
func (c *Checker) checkBlockBody(s *scope, b *ast.Block) error {
	for _, stmt := range b.Stmts {
		if err := c.checkStmt(s, stmt); err != nil {
			return err
		}
	}
	return c.checkScopeClose(s)
}

// checkNewBlock opens a fresh child scope, checks it, and enforces rule 4
// (linear completeness) on exit.
func (c *Checker) checkNewBlock(parent *scope, b *ast.Block, loopBoundary bool) error {
	child := newScope(parent, loopBoundary)
	return c.checkBlockBody(child, b)
}

func (c *Checker) checkScopeClose(s *scope) error {
	for _, b := range s.vars {
		if b.linearity == ast.Linear && b.state != Moved && b.state != Consumed {
			return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.NeverConsumed, Pos: b.defPos, Args: []interface{}{b.name}}
		}
	}
	return nil
}

func (c *Checker) checkStmt(s *scope, stmt ast.Statement) error {
	switch n := stmt.(type) {
	case *ast.Let:
		if err := c.checkExprRead(s, n.Value); err != nil {
			return err
		}
		s.define(n.Name, n.Linearity, n.Span())
		return nil
	case *ast.Assign:
		if err := c.checkExprRead(s, n.Value); err != nil {
			return err
		}
		return c.checkAssignTarget(s, n.Target)
	case *ast.If:
		return c.checkIf(s, n)
	case *ast.While:
		if err := c.checkExprRead(s, n.Cond); err != nil {
			return err
		}
		return c.checkNewBlock(s, n.Body, true)
	case *ast.For:
		if err := c.checkExprRead(s, n.Iterable); err != nil {
			return err
		}
		child := newScope(s, true)
		child.define(n.Binding, ast.Shared, n.Span())
		return c.checkBlockBody(child, n.Body)
	case *ast.Break, *ast.Continue:
		return nil
	case *ast.Return:
		if n.Value == nil {
			return nil
		}
		return c.checkExprRead(s, n.Value)
	case *ast.TryCatch:
		if err := c.checkNewBlock(s, n.Try, false); err != nil {
			return err
		}
		child := newScope(s, false)
		child.define(n.Binding, ast.Shared, n.Span())
		return c.checkBlockBody(child, n.Catch)
	case *ast.ExprStmt:
		return c.checkExprRead(s, n.X)
	case *ast.Match:
		return c.checkMatch(s, n)
	case *ast.FunctionDecl:
		s.define(n.Name, ast.Shared, n.Span())
		return c.checkFunctionBody(s, n.Params, n.Body, n.Span())
	case *ast.ImplBlock:
		for i := range n.Methods {
			m := &n.Methods[i]
			if err := c.checkFunctionBody(s, m.Params, m.Body, m.Span()); err != nil {
				return err
			}
		}
		return nil
	case *ast.Import, *ast.StructDecl, *ast.EnumDecl, *ast.TraitDecl:
		// Pure declarations carry no linearity obligations.
		return nil
	default:
		return nil
	}
}

func (c *Checker) checkIf(s *scope, n *ast.If) error {
	if err := c.checkExprRead(s, n.Cond); err != nil {
		return err
	}
	before := snapshot(s)
	if err := c.checkNewBlock(s, n.Then, false); err != nil {
		return err
	}
	afterThen := snapshot(s)
	restore(before)

	afterElse := before
	if n.Else != nil {
		if err := c.checkNewBlock(s, n.Else, false); err != nil {
			return err
		}
		afterElse = snapshot(s)
		restore(before)
	}

	return joinBranches(before, afterThen, afterElse)
}

func (c *Checker) checkMatch(s *scope, n *ast.Match) error {
	if err := c.checkExprRead(s, n.Scrutinee); err != nil {
		return err
	}
	before := snapshot(s)
	var results []map[*binding]State
	for _, arm := range n.Arms {
		restore(before)
		child := newScope(s, false)
		bindPattern(child, arm.Pattern)
		if err := c.checkBlockBody(child, arm.Body); err != nil {
			return err
		}
		results = append(results, snapshot(s))
	}
	restore(before)
	if len(results) == 0 {
		return nil
	}
	joined := results[0]
	for _, r := range results[1:] {
		if err := joinBranches(before, joined, r); err != nil {
			return err
		}
		joined = snapshot(s) // joinBranches mutates binding.state in place
	}
	return nil
}

func bindPattern(s *scope, p ast.Pattern) {
	switch pat := p.(type) {
	case *ast.BindPattern:
		s.define(pat.Name, pat.Linearity, pat.Span())
	case *ast.VariantPattern:
		for _, b := range pat.Bindings {
			s.define(b.Name, b.Linearity, b.Span())
		}
	}
}

// snapshot captures the current state of every binding reachable from s.
func snapshot(s *scope) map[*binding]State {
	out := make(map[*binding]State)
	for cur := s; cur != nil; cur = cur.parent {
		for _, b := range cur.vars {
			if _, seen := out[b]; !seen {
				out[b] = b.state
			}
		}
	}
	return out
}

func restore(snap map[*binding]State) {
	for b, st := range snap {
		b.state = st
	}
}

// joinBranches implements spec.md §4.3 rule 5: a binding ends Moved only if
// moved on both branches; any mismatch for a non-Shared binding is an error.
func joinBranches(before, thenStates, elseStates map[*binding]State) error {
	for b, s0 := range before {
		if b.linearity == ast.Shared {
			continue
		}
		s1, ok1 := thenStates[b]
		s2, ok2 := elseStates[b]
		if !ok1 {
			s1 = s0
		}
		if !ok2 {
			s2 = s0
		}
		moved0 := s0 == Moved || s0 == Consumed
		moved1 := s1 == Moved || s1 == Consumed
		moved2 := s2 == Moved || s2 == Consumed
		if moved0 {
			continue // already moved before the branch; nothing new to reconcile
		}
		if moved1 != moved2 {
			return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.BranchMoveMismatch, Pos: b.defPos, Args: []interface{}{b.name}}
		}
		if moved1 && moved2 {
			b.state = Moved
		}
	}
	return nil
}

func (c *Checker) checkAssignTarget(s *scope, target ast.Expression) error {
	switch t := target.(type) {
	case *ast.Variable:
		if b, ok := s.lookup(t.Name); ok {
			b.state = Live // reassignment rebinds; a fresh value is now owned here
		}
		return nil
	case *ast.FieldAccess:
		return c.checkExprRead(s, t.Obj)
	case *ast.Index:
		if err := c.checkExprRead(s, t.Obj); err != nil {
			return err
		}
		return c.checkExprRead(s, t.Idx)
	default:
		return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.InvalidAssignmentTarget, Pos: target.Span()}
	}
}

// checkExprRead processes an expression being evaluated for its value,
// which is a "read" of every Variable it references (spec.md §4.3 rule 2-3).
func (c *Checker) checkExprRead(s *scope, e ast.Expression) error {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.Literal:
		return nil
	case *ast.Variable:
		return c.readVariable(s, n)
	case *ast.FString:
		for _, seg := range n.Segments {
			if seg.Expr != nil {
				if err := c.checkExprRead(s, seg.Expr); err != nil {
					return err
				}
			}
		}
		return nil
	case *ast.ListLit:
		for _, it := range n.Items {
			if err := c.checkExprRead(s, it); err != nil {
				return err
			}
		}
		return nil
	case *ast.StructLit:
		for _, f := range n.Fields {
			if err := c.checkExprRead(s, f.Value); err != nil {
				return err
			}
		}
		return nil
	case *ast.Lambda:
		return c.checkLambda(s, n)
	case *ast.Call:
		return c.checkCall(s, n)
	case *ast.MethodCall:
		return c.checkMethodCall(s, n)
	case *ast.FieldAccess:
		return c.checkExprRead(s, n.Obj)
	case *ast.Index:
		if err := c.checkExprRead(s, n.Obj); err != nil {
			return err
		}
		return c.checkExprRead(s, n.Idx)
	case *ast.Pipe:
		if err := c.checkExprRead(s, n.Left); err != nil {
			return err
		}
		return c.checkExprRead(s, n.Right)
	case *ast.Range:
		if err := c.checkExprRead(s, n.Left); err != nil {
			return err
		}
		return c.checkExprRead(s, n.Right)
	case *ast.Match:
		return c.checkMatch(s, n)
	case *ast.BinOp:
		if err := c.checkExprRead(s, n.Left); err != nil {
			return err
		}
		return c.checkExprRead(s, n.Right)
	case *ast.UnaryOp:
		return c.checkExprRead(s, n.X)
	default:
		return nil
	}
}

func (c *Checker) readVariable(s *scope, v *ast.Variable) error {
	b, ok := s.lookup(v.Name)
	if !ok {
		return nil // unresolved names are a compile/runtime concern, not linearity's
	}
	if b.linearity == ast.Shared {
		return nil
	}
	if b.state == Moved || b.state == Consumed {
		return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.UseAfterMove, Pos: v.Span(), Args: []interface{}{v.Name}}
	}
	if crossesLoopBoundary(s, v.Name) {
		return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.MoveInLoop, Pos: v.Span(), Args: []interface{}{v.Name}}
	}
	b.state = Moved
	return nil
}

// checkMethodCall mirrors checkCall for the dotted-call parse shape:
// `sys.mem.free(b)` arrives as a MethodCall on receiver `sys.mem`, and its
// consumer annotations must still apply. When the receiver is not a pure
// name path the call is an ordinary read of receiver and arguments.
func (c *Checker) checkMethodCall(s *scope, n *ast.MethodCall) error {
	if base, ok := intrinsicName(n.Receiver); ok {
		if _, bound := s.lookup(firstSegment(base)); !bound {
			return c.checkArgsWithConsumers(s, base+"."+n.Name, n.Args)
		}
	}
	if err := c.checkExprRead(s, n.Receiver); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.checkExprRead(s, a); err != nil {
			return err
		}
	}
	return nil
}

func firstSegment(dotted string) string {
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			return dotted[:i]
		}
	}
	return dotted
}

// checkCall applies intrinsic consumer annotations (spec.md §4.3 "Consumer
// semantics"): an argument declared consumed transitions straight to
// Consumed instead of the default read-is-a-move transition (which would
// behave identically for a Linear binding, but matters for diagnostics and
// for Affine bindings reused in the same call).
func (c *Checker) checkCall(s *scope, n *ast.Call) error {
	if err := c.checkExprRead(s, n.Callee); err != nil {
		return err
	}
	name, _ := intrinsicName(n.Callee)
	return c.checkArgsWithConsumers(s, name, n.Args)
}

func (c *Checker) checkArgsWithConsumers(s *scope, name string, args []ast.Expression) error {
	spec, isConsumer := c.consumers[name]
	consumes := map[int]bool{}
	if isConsumer {
		for _, i := range spec.ConsumesParams {
			consumes[i] = true
		}
	}
	for i, a := range args {
		if consumes[i] {
			if v, ok := a.(*ast.Variable); ok {
				if b, ok := s.lookup(v.Name); ok {
					if b.state == Moved || b.state == Consumed {
						return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.UseAfterMove, Pos: v.Span(), Args: []interface{}{v.Name}}
					}
					if b.linearity != ast.Shared && crossesLoopBoundary(s, v.Name) {
						return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.MoveInLoop, Pos: v.Span(), Args: []interface{}{v.Name}}
					}
					b.state = Consumed
					continue
				}
			}
		}
		if err := c.checkExprRead(s, a); err != nil {
			return err
		}
	}
	return nil
}

// intrinsicName recovers the dotted intrinsic name a desugared callee
// expression refers to (e.g. `sys.mem.alloc` from nested FieldAccess nodes),
// per spec.md §6.3's "conventional sys.* namespace".
func intrinsicName(e ast.Expression) (string, bool) {
	switch n := e.(type) {
	case *ast.Variable:
		return n.Name, true
	case *ast.FieldAccess:
		base, ok := intrinsicName(n.Obj)
		if !ok {
			return "", false
		}
		return base + "." + n.Field, true
	default:
		return "", false
	}
}

// checkFunctionBody checks a named function or impl method the way
// checkLambda checks a lambda: params enter Live with their declared
// linearity, captures of outer linear names are moves at declaration.
func (c *Checker) checkFunctionBody(s *scope, params []ast.Param, body *ast.MastNode, pos token.Position) error {
	if body == nil {
		return nil
	}
	bodyScope := newScope(s, false)
	paramNames := map[string]bool{}
	for _, p := range params {
		bodyScope.define(p.Name, p.Linearity, pos)
		paramNames[p.Name] = true
	}
	for _, name := range freeVariables(body.Content, paramNames) {
		b, ok := s.lookup(name)
		if !ok || b.linearity == ast.Shared {
			continue
		}
		if b.state == Moved || b.state == Consumed {
			return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.UseAfterMove, Pos: pos, Args: []interface{}{name}}
		}
		b.state = Moved
		bodyScope.define(name, b.linearity, pos)
	}
	return c.checkBlockBody(bodyScope, body.Content)
}

// checkLambda implements spec.md §4.3 rule 7: capturing a linear name is a
// move at the point of lambda creation, not at first use inside the body.
func (c *Checker) checkLambda(s *scope, n *ast.Lambda) error {
	bodyScope := newScope(s, false)
	paramNames := map[string]bool{}
	for _, p := range n.Params {
		bodyScope.define(p.Name, p.Linearity, n.Span())
		paramNames[p.Name] = true
	}
	if n.Body == nil {
		return nil
	}
	for _, name := range freeVariables(n.Body.Content, paramNames) {
		b, ok := s.lookup(name)
		if !ok || b.linearity == ast.Shared {
			continue
		}
		if b.state == Moved || b.state == Consumed {
			return &diagnostics.Error{Phase: diagnostics.PhaseLinear, Code: diagnostics.UseAfterMove, Pos: n.Span(), Args: []interface{}{name}}
		}
		b.state = Moved
		// The closure now owns a fresh binding of the same name: capture is
		// a move INTO the closure, not a move that also poisons its body.
		bodyScope.define(name, b.linearity, n.Span())
	}
	return c.checkBlockBody(bodyScope, n.Body.Content)
}
