package parser

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// parseMatchExpression is the Pratt prefix handler for `match` used in
// expression position (ast.Match implements both Statement and Expression).
func (p *Parser) parseMatchExpression() (ast.Expression, error) {
	m, err := p.parseMatchCore()
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Parser) parseMatchStatement() (ast.Statement, error) {
	return p.parseMatchCore()
}

func (p *Parser) parseMatchCore() (*ast.Match, error) {
	pos := p.cur.Pos
	if err := p.advance(); err != nil { // cur = scrutinee start
		return nil, err
	}
	prevNoStruct := p.noStructLit
	p.noStructLit = true
	scrutinee, err := p.parseExpression(LOWEST)
	p.noStructLit = prevNoStruct
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	m := &ast.Match{Scrutinee: scrutinee}
	m.Pos = pos
	for !p.peekIs(token.RBRACE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.curIs(token.COMMA) {
			continue
		}
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.FATARROW); err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil { // cur = body start
			return nil, err
		}
		var body *ast.Block
		if p.curIs(token.LBRACE) {
			body, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		} else {
			expr, err := p.parseExpression(LOWEST)
			if err != nil {
				return nil, err
			}
			stmt := &ast.ExprStmt{X: expr}
			stmt.Pos = expr.Span()
			body = &ast.Block{Stmts: []ast.Statement{stmt}}
		}
		m.Arms = append(m.Arms, ast.MatchArm{Pattern: pat, Body: body})
	}
	if err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return m, nil
}

// parsePattern parses one match-arm pattern per spec.md §3.2/§4.4: a literal,
// the wildcard `_`, a plain variable binding, or an EnumName.Variant(binds)
// destructure.
func (p *Parser) parsePattern() (ast.Pattern, error) {
	pos := p.cur.Pos
	switch p.cur.Kind {
	case token.INT, token.FLOAT, token.STRING, token.MLSTRING, token.TRUE, token.FALSE, token.NULL:
		lit, err := p.parseLiteralPatternValue()
		if err != nil {
			return nil, err
		}
		pp := &ast.LiteralPattern{Value: lit}
		pp.Pos = pos
		return pp, nil
	case token.IDENT:
		if p.cur.Lexeme == "_" {
			wc := &ast.WildcardPattern{}
			wc.Pos = pos
			return wc, nil
		}
		if p.peekIs(token.DOT) {
			return p.parseVariantPattern()
		}
		bp := &ast.BindPattern{Name: p.cur.Lexeme}
		bp.Pos = pos
		return bp, nil
	default:
		return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: pos,
			Args: []interface{}{"pattern", string(p.cur.Kind)}}
	}
}

func (p *Parser) parseLiteralPatternValue() (ast.Expression, error) {
	switch p.cur.Kind {
	case token.INT:
		return p.parseIntegerLiteral()
	case token.FLOAT:
		return p.parseFloatLiteral()
	case token.STRING, token.MLSTRING:
		return p.parseStringLiteral()
	case token.TRUE, token.FALSE:
		return p.parseBoolLiteral()
	default:
		return p.parseNullLiteral()
	}
}

func (p *Parser) parseVariantPattern() (ast.Pattern, error) {
	pos := p.cur.Pos
	enumName := p.cur.Lexeme
	if err := p.expect(token.DOT); err != nil {
		return nil, err
	}
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	variantName := p.cur.Lexeme
	vp := &ast.VariantPattern{EnumName: enumName, VariantName: variantName}
	vp.Pos = pos
	if p.peekIs(token.LPAREN) {
		if err := p.advance(); err != nil { // cur = '('
			return nil, err
		}
		if !p.peekIs(token.RPAREN) {
			for {
				if err := p.advance(); err != nil {
					return nil, err
				}
				if !p.curIs(token.IDENT) {
					return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
						Args: []interface{}{"binding name", string(p.cur.Kind)}}
				}
				bp := ast.BindPattern{Name: p.cur.Lexeme}
				bp.Pos = p.cur.Pos
				vp.Bindings = append(vp.Bindings, bp)
				if !p.peekIs(token.COMMA) {
					break
				}
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}
	return vp, nil
}
