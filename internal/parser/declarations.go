package parser

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// takeDoc consumes and clears any doc-comment text accumulated immediately
// before the current declaration (spec.md §4.1: "/// starts a doc-comment
// token that is retained and attached by the parser to the following
// declaration").
func (p *Parser) takeDoc() string {
	d := p.pendingDoc
	p.pendingDoc = ""
	return d
}

// parseParam parses one `name[: Type]` formal parameter; a type annotation
// of exactly "Linear"/"Affine" sets the parameter's linearity instead of
// being kept as a type name, mirroring parseLetStatement's handling.
func (p *Parser) parseParam() (ast.Param, error) {
	if !p.curIs(token.IDENT) {
		return ast.Param{}, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
			Args: []interface{}{"parameter name", string(p.cur.Kind)}}
	}
	param := ast.Param{Name: p.cur.Lexeme}
	if p.peekIs(token.COLON) {
		if err := p.advance(); err != nil { // cur = ':'
			return ast.Param{}, err
		}
		if err := p.expect(token.IDENT); err != nil {
			return ast.Param{}, err
		}
		switch p.cur.Lexeme {
		case "Linear":
			param.Linearity = ast.Linear
		case "Affine":
			param.Linearity = ast.Affine
		default:
			param.TyAnnot = p.cur.Lexeme
		}
	}
	return param, nil
}

// parseParams parses a parenthesized, comma-separated parameter list; cur
// must be LPAREN on entry and is RPAREN on return.
func (p *Parser) parseParams() ([]ast.Param, error) {
	var params []ast.Param
	if p.peekIs(token.RPAREN) {
		return params, p.advance()
	}
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		param, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		params = append(params, param)
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
	return params, nil
}

// parseFunctionSignatureAndBody parses `(params) [-> Type] { body }`, shared
// by named function declarations and anonymous lambda expressions. cur must
// be the function name (declarations) or FUNC (lambdas) on entry, with '('
// as the next token.
func (p *Parser) parseFunctionSignatureAndBody() ([]ast.Param, string, *ast.Block, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, "", nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, "", nil, err
	}
	retTy := ""
	if p.peekIs(token.ARROW) {
		if err := p.advance(); err != nil { // cur = '->'
			return nil, "", nil, err
		}
		if err := p.expect(token.IDENT); err != nil {
			return nil, "", nil, err
		}
		retTy = p.cur.Lexeme
	}
	if err := p.expect(token.LBRACE); err != nil {
		return nil, "", nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, "", nil, err
	}
	return params, retTy, body, nil
}

func (p *Parser) parseFunctionDecl() (ast.Statement, error) {
	pos := p.cur.Pos
	doc := p.takeDoc()
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	name := p.cur.Lexeme
	params, retTy, body, err := p.parseFunctionSignatureAndBody()
	if err != nil {
		return nil, err
	}
	fn := &ast.FunctionDecl{Name: name, Params: params, ReturnTyAnnot: retTy, Body: ast.NewMastNode(body), Doc: doc}
	fn.Pos = pos
	return fn, nil
}

func (p *Parser) parseStructDecl() (ast.Statement, error) {
	pos := p.cur.Pos
	doc := p.takeDoc()
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	name := p.cur.Lexeme
	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	decl := &ast.StructDecl{Name: name, Doc: doc}
	decl.Pos = pos
	for !p.peekIs(token.RBRACE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.curIs(token.IDENT) {
			return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
				Args: []interface{}{"field name", string(p.cur.Kind)}}
		}
		field := ast.Field{Name: p.cur.Lexeme}
		if p.peekIs(token.COLON) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expect(token.IDENT); err != nil {
				return nil, err
			}
			field.TyAnnot = p.cur.Lexeme
		}
		decl.Fields = append(decl.Fields, field)
		if p.peekIs(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseEnumDecl() (ast.Statement, error) {
	pos := p.cur.Pos
	doc := p.takeDoc()
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	name := p.cur.Lexeme
	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	decl := &ast.EnumDecl{Name: name, Doc: doc}
	decl.Pos = pos
	for !p.peekIs(token.RBRACE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.curIs(token.IDENT) {
			return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
				Args: []interface{}{"variant name", string(p.cur.Kind)}}
		}
		variant := ast.Variant{Name: p.cur.Lexeme}
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
							Args: []interface{}{"payload type", string(p.cur.Kind)}}
					}
					variant.PayloadTys = append(variant.PayloadTys, p.cur.Lexeme)
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
		decl.Variants = append(decl.Variants, variant)
		if p.peekIs(token.COMMA) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseTraitDecl() (ast.Statement, error) {
	pos := p.cur.Pos
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	name := p.cur.Lexeme
	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	decl := &ast.TraitDecl{Name: name}
	decl.Pos = pos
	for !p.peekIs(token.RBRACE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.curIs(token.SEMI) {
			continue
		}
		if !p.curIs(token.FUNC) {
			return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
				Args: []interface{}{"func", string(p.cur.Kind)}}
		}
		sigPos := p.cur.Pos
		if err := p.expect(token.IDENT); err != nil {
			return nil, err
		}
		mname := p.cur.Lexeme
		if err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		params, err := p.parseParams()
		if err != nil {
			return nil, err
		}
		retTy := ""
		if p.peekIs(token.ARROW) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expect(token.IDENT); err != nil {
				return nil, err
			}
			retTy = p.cur.Lexeme
		}
		m := ast.FunctionDecl{Name: mname, Params: params, ReturnTyAnnot: retTy}
		m.Pos = sigPos
		decl.Methods = append(decl.Methods, m)
	}
	if err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseImplBlock() (ast.Statement, error) {
	pos := p.cur.Pos
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	traitName := p.cur.Lexeme
	if err := p.expect(token.FOR); err != nil {
		return nil, err
	}
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	typeName := p.cur.Lexeme
	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	impl := &ast.ImplBlock{TraitName: traitName, TypeName: typeName}
	impl.Pos = pos
	for !p.peekIs(token.RBRACE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.curIs(token.SEMI) {
			continue
		}
		decl, err := p.parseFunctionDecl()
		if err != nil {
			return nil, err
		}
		impl.Methods = append(impl.Methods, *decl.(*ast.FunctionDecl))
	}
	if err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return impl, nil
}
