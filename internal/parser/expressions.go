package parser

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// binOpIntrinsic maps desugared operator tokens to the fixed intrinsic call
// names spec.md §3.2/§4.2 requires ("evaluable arithmetic and comparison are
// always named intrinsic calls").
var binOpIntrinsic = map[token.Kind]string{
	token.PLUS:    "add",
	token.MINUS:   "sub",
	token.STAR:    "mul",
	token.SLASH:   "div",
	token.PERCENT: "modulo",
	token.EQEQ:    "eq",
	token.NEQ:     "neq",
	token.LT:      "lt",
	token.GT:      "gt",
	token.LE:      "le",
	token.GE:      "ge",
	token.AND:     "and",
	token.OR:      "or",
}

func (p *Parser) parseExpression(precedence int) (ast.Expression, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > MaxRecursionDepth {
		return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.UnexpectedEOF, Pos: p.cur.Pos}
	}

	prefix, ok := p.prefixFns[p.cur.Kind]
	if !ok {
		if p.cur.Kind == token.EQ {
			return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.BareEqualsSign, Pos: p.cur.Pos}
		}
		return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
			Args: []interface{}{"expression", string(p.cur.Kind)}}
	}
	left, err := prefix()
	if err != nil {
		return nil, err
	}

	for precedence < precedenceOf(p.peek.Kind) {
		infix, ok := p.infixFns[p.peek.Kind]
		if !ok {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		left, err = infix(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parseIntegerLiteral() (ast.Expression, error) {
	lit := &ast.Literal{Kind: ast.LitInt, Int: p.cur.Literal.(int64)}
	lit.Pos = p.cur.Pos
	return lit, nil
}

func (p *Parser) parseFloatLiteral() (ast.Expression, error) {
	lit := &ast.Literal{Kind: ast.LitFloat, Flt: p.cur.Literal.(float64)}
	lit.Pos = p.cur.Pos
	return lit, nil
}

func (p *Parser) parseStringLiteral() (ast.Expression, error) {
	lit := &ast.Literal{Kind: ast.LitString, Str: p.cur.Literal.(string)}
	lit.Pos = p.cur.Pos
	return lit, nil
}

func (p *Parser) parseBoolLiteral() (ast.Expression, error) {
	lit := &ast.Literal{Kind: ast.LitBool, Bool: p.cur.Kind == token.TRUE}
	lit.Pos = p.cur.Pos
	return lit, nil
}

func (p *Parser) parseNullLiteral() (ast.Expression, error) {
	lit := &ast.Literal{Kind: ast.LitNull}
	lit.Pos = p.cur.Pos
	return lit, nil
}

// parseFString re-lexes each embedded expression segment (spec.md §4.1/§9:
// f-strings desugar into a +-chain of string conversions with each
// expression segment re-parsed at parse time).
func (p *Parser) parseFString() (ast.Expression, error) {
	fs := &ast.FString{}
	fs.Pos = p.cur.Pos
	for _, seg := range p.cur.Segments {
		if !seg.IsExpr {
			fs.Segments = append(fs.Segments, ast.FStringSegment{Literal: seg.Text})
			continue
		}
		sub, err := New(seg.Text)
		if err != nil {
			return nil, err
		}
		expr, err := sub.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		fs.Segments = append(fs.Segments, ast.FStringSegment{Expr: expr})
	}
	return fs, nil
}

func (p *Parser) parseIdentifierOrStructLit() (ast.Expression, error) {
	lexeme := p.cur.Lexeme
	pos := p.cur.Pos
	if !p.noStructLit && p.peekIs(token.LBRACE) {
		return p.parseStructLiteral(lexeme, pos)
	}
	v := &ast.Variable{Name: lexeme}
	v.Pos = pos
	return v, nil
}

// parseStructLiteral parses `TypeName { field = value, ... }` per spec.md
// §4.1's reservation of bare '=' for struct-literal field initializers.
func (p *Parser) parseStructLiteral(typeName string, pos token.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil { // consume identifier, cur = '{'
		return nil, err
	}
	return p.parseStructLiteralBody(typeName, pos)
}

func (p *Parser) parseAnonStructLiteral() (ast.Expression, error) {
	return p.parseStructLiteralBody("", p.cur.Pos)
}

func (p *Parser) parseStructLiteralBody(typeName string, pos token.Position) (ast.Expression, error) {
	sl := &ast.StructLit{TypeName: typeName}
	sl.Pos = pos
	if err := p.advance(); err != nil { // consume '{'
		return nil, err
	}
	seen := map[string]bool{}
	for !p.curIs(token.RBRACE) {
		if !p.curIs(token.IDENT) {
			return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
				Args: []interface{}{"field name", string(p.cur.Kind)}}
		}
		fname := p.cur.Lexeme
		if seen[fname] {
			return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.DuplicateFieldInStructLiteral, Pos: p.cur.Pos, Args: []interface{}{fname}}
		}
		seen[fname] = true
		if err := p.expect(token.EQ); err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil { // consume '='
			return nil, err
		}
		val, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		sl.Fields = append(sl.Fields, ast.StructFieldInit{Name: fname, Value: val})
		if p.peekIs(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return sl, nil
}

func (p *Parser) parseGroupedExpression() (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *Parser) parseListLiteral() (ast.Expression, error) {
	list := &ast.ListLit{}
	list.Pos = p.cur.Pos
	if p.peekIs(token.RBRACKET) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return list, nil
	}
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		item, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
		if !p.peekIs(token.COMMA) {
			break
		}
		if err := p.advance(); err != nil { // consume value, cur = ','
			return nil, err
		}
		if p.peekIs(token.RBRACKET) { // trailing comma
			break
		}
	}
	if err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}
	return list, nil
}

// parsePrefixExpression desugars unary operators to intrinsic calls
// (spec.md §3.2: "a+b -> Call(add,...); likewise ... not", extended here to
// the unary forms 'neg' for '-' and 'bnot' for '~', both registered as
// intrinsics alongside 'not').
func (p *Parser) parsePrefixExpression() (ast.Expression, error) {
	op := p.cur.Kind
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	x, err := p.parseExpression(PREFIX_PREC)
	if err != nil {
		return nil, err
	}
	var name string
	switch op {
	case token.BANG:
		name = "not"
	case token.MINUS:
		name = "neg"
	case token.TILDE:
		name = "bnot"
	}
	call := &ast.Call{Callee: variableAt(name, pos), Args: []ast.Expression{x}}
	call.Pos = pos
	return call, nil
}

func variableAt(name string, pos token.Position) *ast.Variable {
	v := &ast.Variable{Name: name}
	v.Pos = pos
	return v
}

// parseBinOpCall desugars `l op r` to Call(opName, [l, r]) per spec.md §3.2.
func (p *Parser) parseBinOpCall(left ast.Expression) (ast.Expression, error) {
	op := p.cur.Kind
	pos := p.cur.Pos
	prec := precedenceOf(op)
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}
	name := binOpIntrinsic[op]
	call := &ast.Call{Callee: variableAt(name, pos), Args: []ast.Expression{left, right}}
	call.Pos = pos
	return call, nil
}

// parseShortCircuit lowers `&&`/`||` to a BinOp node instead of an intrinsic
// Call: spec.md §4.4 requires these to compile via JmpIfFalse short-circuit
// jumps, not through the and/or intrinsic (which the keyword forms use).
func (p *Parser) parseShortCircuit(left ast.Expression) (ast.Expression, error) {
	op := "&&"
	if p.cur.Kind == token.OROR {
		op = "||"
	}
	pos := p.cur.Pos
	prec := precedenceOf(p.cur.Kind)
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}
	bo := &ast.BinOp{Op: op, Left: left, Right: right}
	bo.Pos = pos
	return bo, nil
}

func (p *Parser) parseRange(left ast.Expression) (ast.Expression, error) {
	inclusive := p.cur.Kind == token.RANGE_INCL
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseExpression(RANGE_PREC)
	if err != nil {
		return nil, err
	}
	r := &ast.Range{Left: left, Right: right, Inclusive: inclusive}
	r.Pos = pos
	return r, nil
}

// parsePipe desugars `a |> f(x,y)` to `Call(f, [a,x,y])` per spec.md §3.2,
// at parse time as required.
func (p *Parser) parsePipe(left ast.Expression) (ast.Expression, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpression(PIPE_PREC)
	if err != nil {
		return nil, err
	}
	switch r := rhs.(type) {
	case *ast.Call:
		r.Args = append([]ast.Expression{left}, r.Args...)
		return r, nil
	case *ast.MethodCall:
		// Dotted callees (list.get, mod.fn) parse as method calls; the
		// piped value still becomes the first argument.
		r.Args = append([]ast.Expression{left}, r.Args...)
		return r, nil
	default:
		pipe := &ast.Pipe{Left: left, Right: rhs}
		pipe.Pos = pos
		return pipe, nil
	}
}

func (p *Parser) parseCallExpression(callee ast.Expression) (ast.Expression, error) {
	pos := p.cur.Pos
	args, err := p.parseCallArgs()
	if err != nil {
		return nil, err
	}
	call := &ast.Call{Callee: callee, Args: args}
	call.Pos = pos
	return call, nil
}

// parseCallArgs parses a parenthesized, comma-separated argument list; cur
// must be LPAREN on entry and is RPAREN on return.
func (p *Parser) parseCallArgs() ([]ast.Expression, error) {
	var args []ast.Expression
	if p.peekIs(token.RPAREN) {
		return args, p.advance()
	}
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.peekIs(token.COMMA) {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseIndexExpression(obj ast.Expression) (ast.Expression, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	idx, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}
	ix := &ast.Index{Obj: obj, Idx: idx}
	ix.Pos = pos
	return ix, nil
}

func (p *Parser) parseDotExpression(obj ast.Expression) (ast.Expression, error) {
	return p.parseFieldOrMethod(obj, false)
}

func (p *Parser) parseOptChainExpression(obj ast.Expression) (ast.Expression, error) {
	return p.parseFieldOrMethod(obj, true)
}

func (p *Parser) parseFieldOrMethod(obj ast.Expression, optional bool) (ast.Expression, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil { // cur = member name
		return nil, err
	}
	if !p.curIs(token.IDENT) {
		return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
			Args: []interface{}{"identifier", string(p.cur.Kind)}}
	}
	name := p.cur.Lexeme
	if p.peekIs(token.LPAREN) {
		if err := p.advance(); err != nil { // cur = '('
			return nil, err
		}
		args, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}
		mc := &ast.MethodCall{Receiver: obj, Name: name, Args: args}
		mc.Pos = pos
		return mc, nil
	}
	fa := &ast.FieldAccess{Obj: obj, Field: name, Optional: optional}
	fa.Pos = pos
	return fa, nil
}

// parseLambdaExpression parses `func(params) [-> Type] { body }` used as an
// expression (an anonymous function); a named `func` at statement level is
// instead routed to parseFunctionDecl.
func (p *Parser) parseLambdaExpression() (ast.Expression, error) {
	pos := p.cur.Pos
	params, _, body, err := p.parseFunctionSignatureAndBody()
	if err != nil {
		return nil, err
	}
	lam := &ast.Lambda{Params: params, Body: ast.NewMastNode(body)}
	lam.Pos = pos
	return lam, nil
}
