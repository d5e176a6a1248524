// Package parser implements spec.md §4.2: a recursive-descent parser with
// Pratt-style expression precedence, grounded on funvibe-funxy's
// internal/parser per-concern file split (expressions_*.go, statements_*.go)
// and prefix/infix parse-function table idiom. Unlike the teacher, which
// builds a generic functional-language AST, this parser targets the smaller
// grammar of spec.md §3.2 and performs the operator-desugaring spec.md
// §3.2/§4.2 requires at parse time.
package parser

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/lexer"
	"github.com/arclang/arc/internal/token"
)

// Precedence levels, spec.md §4.2 table (low to high).
const (
	_ int = iota
	LOWEST
	PIPE_PREC
	OR_PREC
	AND_PREC
	EQUALS_PREC
	RANGE_PREC
	SUM_PREC
	PRODUCT_PREC
	PREFIX_PREC
	POSTFIX_PREC
)

var precedences = map[token.Kind]int{
	token.PIPE:       PIPE_PREC,
	token.OROR:       OR_PREC,
	token.OR:         OR_PREC,
	token.ANDAND:     AND_PREC,
	token.AND:        AND_PREC,
	token.EQEQ:       EQUALS_PREC,
	token.NEQ:        EQUALS_PREC,
	token.LT:         EQUALS_PREC,
	token.GT:         EQUALS_PREC,
	token.LE:         EQUALS_PREC,
	token.GE:         EQUALS_PREC,
	token.RANGE:      RANGE_PREC,
	token.RANGE_INCL: RANGE_PREC,
	token.PLUS:       SUM_PREC,
	token.MINUS:      SUM_PREC,
	token.STAR:       PRODUCT_PREC,
	token.SLASH:      PRODUCT_PREC,
	token.PERCENT:    PRODUCT_PREC,
	token.LPAREN:     POSTFIX_PREC,
	token.LBRACKET:   POSTFIX_PREC,
	token.DOT:        POSTFIX_PREC,
	token.OPT_CHAIN:  POSTFIX_PREC,
}

// MaxRecursionDepth guards pathological/adversarial input from overflowing
// the Go call stack during expression parsing, mirroring the teacher's own
// parser recursion guard (internal/parser/expressions_core.go).
const MaxRecursionDepth = 250

type prefixParseFn func() (ast.Expression, error)
type infixParseFn func(ast.Expression) (ast.Expression, error)

// Parser consumes a token stream and builds a Block AST.
type Parser struct {
	lex  *lexer.Lexer
	cur  token.Token
	peek token.Token

	prefixFns map[token.Kind]prefixParseFn
	infixFns  map[token.Kind]infixParseFn

	depth int

	// pendingDoc accumulates consecutive /// lines for attachment to the
	// following declaration (spec.md §4.1/§4.2).
	pendingDoc string

	// noStructLit suppresses bare `Ident {` being parsed as a struct literal,
	// the way an if/while/for/match scrutinee needs its trailing `{` read as
	// the block opener, not a struct literal.
	noStructLit bool
}

// New constructs a Parser over src. Lexing proceeds lazily as tokens are
// consumed; a lex error surfaces as soon as the offending token would be
// produced.
func New(src string) (*Parser, error) {
	p := &Parser{lex: lexer.New(src)}
	p.prefixFns = map[token.Kind]prefixParseFn{
		token.INT:      p.parseIntegerLiteral,
		token.FLOAT:    p.parseFloatLiteral,
		token.STRING:   p.parseStringLiteral,
		token.MLSTRING: p.parseStringLiteral,
		token.FSTRING:  p.parseFString,
		token.TRUE:     p.parseBoolLiteral,
		token.FALSE:    p.parseBoolLiteral,
		token.NULL:     p.parseNullLiteral,
		token.IDENT:    p.parseIdentifierOrStructLit,
		token.LPAREN:   p.parseGroupedExpression,
		token.LBRACKET: p.parseListLiteral,
		token.LBRACE:   p.parseAnonStructLiteral,
		token.MINUS:    p.parsePrefixExpression,
		token.BANG:     p.parsePrefixExpression,
		token.TILDE:    p.parsePrefixExpression,
		token.FUNC:     p.parseLambdaExpression,
		token.MATCH:    p.parseMatchExpression,
	}
	p.infixFns = map[token.Kind]infixParseFn{
		token.PLUS:       p.parseBinOpCall,
		token.MINUS:      p.parseBinOpCall,
		token.STAR:       p.parseBinOpCall,
		token.SLASH:      p.parseBinOpCall,
		token.PERCENT:    p.parseBinOpCall,
		token.EQEQ:       p.parseBinOpCall,
		token.NEQ:        p.parseBinOpCall,
		token.LT:         p.parseBinOpCall,
		token.GT:         p.parseBinOpCall,
		token.LE:         p.parseBinOpCall,
		token.GE:         p.parseBinOpCall,
		token.AND:        p.parseBinOpCall,
		token.OR:         p.parseBinOpCall,
		token.ANDAND:     p.parseShortCircuit,
		token.OROR:       p.parseShortCircuit,
		token.RANGE:      p.parseRange,
		token.RANGE_INCL: p.parseRange,
		token.PIPE:       p.parsePipe,
		token.LPAREN:     p.parseCallExpression,
		token.LBRACKET:   p.parseIndexExpression,
		token.DOT:        p.parseDotExpression,
		token.OPT_CHAIN:  p.parseOptChainExpression,
	}
	// Prime cur/peek; a lex error on either token is returned directly.
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.cur = p.peek
	tok, err := p.lex.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) curIs(k token.Kind) bool  { return p.cur.Kind == k }
func (p *Parser) peekIs(k token.Kind) bool { return p.peek.Kind == k }

func (p *Parser) expect(k token.Kind) error {
	if !p.peekIs(k) {
		return &diagnostics.Error{
			Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.peek.Pos,
			Args: []interface{}{string(k), string(p.peek.Kind)},
		}
	}
	return p.advance()
}

func precedenceOf(k token.Kind) int {
	if pr, ok := precedences[k]; ok {
		return pr
	}
	return LOWEST
}

// ParseProgram parses an entire source file as a top-level Block.
func ParseProgram(src string) (*ast.Block, error) {
	p, err := New(src)
	if err != nil {
		return nil, err
	}
	return p.parseTopLevel()
}

func (p *Parser) parseTopLevel() (*ast.Block, error) {
	block := &ast.Block{}
	for !p.curIs(token.EOF) {
		if p.curIs(token.SEMI) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.curIs(token.DOC) {
			if p.pendingDoc != "" {
				p.pendingDoc += "\n"
			}
			p.pendingDoc += p.cur.Lexeme
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
		// Every parseXStatement convention leaves cur on the LAST token it
		// consumed; advance once to reach the token that starts whatever
		// follows (next statement, a separator, or the block terminator).
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return block, nil
}

// parseBlock parses a `{ ... }` block; cur must be LBRACE on entry, and cur
// is RBRACE on successful return.
func (p *Parser) parseBlock() (*ast.Block, error) {
	if !p.curIs(token.LBRACE) {
		return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.ExpectedToken, Pos: p.cur.Pos,
			Args: []interface{}{"{", string(p.cur.Kind)}}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	block := &ast.Block{}
	for !p.curIs(token.RBRACE) {
		if p.curIs(token.EOF) {
			return nil, &diagnostics.Error{Phase: diagnostics.PhaseParse, Code: diagnostics.UnexpectedEOF, Pos: p.cur.Pos}
		}
		if p.curIs(token.SEMI) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.curIs(token.DOC) {
			if p.pendingDoc != "" {
				p.pendingDoc += "\n"
			}
			p.pendingDoc += p.cur.Lexeme
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return block, nil
}
