// Package lexer tokenizes Arc source text, grounded on funvibe-funxy's
// internal/lexer hand-rolled scanner (peekChar/readChar over a rune stream)
// adapted to spec.md §3.1/§4.1's token and desugaring rules.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// Lexer scans UTF-8 source text into a stream of Tokens.
type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           rune
	line         int
	column       int

	// pendingErr carries a lex error discovered while skipping whitespace
	// (e.g. an unterminated block comment), surfaced on the next NextToken call.
	pendingErr error
}

// New creates a Lexer over src.
func New(src string) *Lexer {
	l := &Lexer{input: src, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		l.readPosition++
		l.column++
		return
	}
	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) peekAt(offset int) rune {
	pos := l.readPosition
	for i := 1; i < offset && pos < len(l.input); i++ {
		_, w := utf8.DecodeRuneInString(l.input[pos:])
		pos += w
	}
	if pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[pos:])
	return r
}

func (l *Lexer) pos() token.Position { return token.Position{Line: l.line, Column: l.column} }

func newTok(kind token.Kind, lexeme string, pos token.Position) token.Token {
	return token.Token{Kind: kind, Lexeme: lexeme, Pos: pos}
}

// NextToken scans and returns the next token. Callers should stop once a
// token with Kind == token.EOF is returned.
func (l *Lexer) NextToken() (token.Token, error) {
	l.skipWhitespaceAndComments()
	if err := l.pendingErr; err != nil {
		l.pendingErr = nil
		return token.Token{}, err
	}

	startPos := l.pos()

	switch {
	case l.ch == 0:
		return newTok(token.EOF, "", startPos), nil
	case l.ch == '/' && l.peekChar() == '/' && l.peekAt(2) == '/':
		return l.readDocComment(startPos)
	case l.ch == '"':
		return l.readString(startPos)
	case l.ch == 'f' && l.peekChar() == '"':
		l.readChar() // consume 'f'
		return l.readFString(startPos)
	case isDigit(l.ch):
		return l.readNumber(startPos)
	case isIdentStart(l.ch):
		return l.readIdentifier(startPos)
	}

	tok, err := l.readOperator(startPos)
	return tok, err
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/' && l.peekAt(2) != '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '/' && l.peekAt(2) == '/':
			// handled by caller as a DOC token, not skipped here.
			return
		case l.ch == '/' && l.peekChar() == '*':
			l.skipBlockComment()
		default:
			return
		}
	}
}

func (l *Lexer) skipBlockComment() {
	startPos := l.pos()
	l.readChar() // consume '/'
	l.readChar() // consume '*'
	depth := 1
	for depth > 0 {
		if l.ch == 0 {
			l.pendingErr = &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.UnterminatedBlockComment, Pos: startPos}
			return
		}
		if l.ch == '/' && l.peekChar() == '*' {
			depth++
			l.readChar()
			l.readChar()
			continue
		}
		if l.ch == '*' && l.peekChar() == '/' {
			depth--
			l.readChar()
			l.readChar()
			continue
		}
		l.readChar()
	}
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}
func isIdentChar(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

// readDocComment scans a /// line to end-of-line and retains it as a DOC
// token; the parser attaches it to the following declaration.
func (l *Lexer) readDocComment(startPos token.Position) (token.Token, error) {
	l.readChar()
	l.readChar()
	l.readChar()
	start := l.position
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	text := strings.TrimSpace(l.input[start:l.position])
	return token.Token{Kind: token.DOC, Lexeme: text, Literal: text, Pos: startPos}, nil
}

func (l *Lexer) readIdentifier(startPos token.Position) (token.Token, error) {
	start := l.position
	for isIdentChar(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.position]
	kind := token.LookupIdent(lit)
	return token.Token{Kind: kind, Lexeme: lit, Pos: startPos}, nil
}

func (l *Lexer) readNumber(startPos token.Position) (token.Token, error) {
	start := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	isFloat := false
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	lit := l.input[start:l.position]
	if isFloat {
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return token.Token{}, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.InvalidNumber, Pos: startPos, Args: []interface{}{lit}}
		}
		return token.Token{Kind: token.FLOAT, Lexeme: lit, Literal: v, Pos: startPos}, nil
	}
	v, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return token.Token{}, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.InvalidNumber, Pos: startPos, Args: []interface{}{lit}}
	}
	return token.Token{Kind: token.INT, Lexeme: lit, Literal: v, Pos: startPos}, nil
}

func (l *Lexer) readString(startPos token.Position) (token.Token, error) {
	// Multi-line string: """ ... """
	if l.peekChar() == '"' && l.peekAt(2) == '"' {
		return l.readMultilineString(startPos)
	}
	l.readChar() // consume opening quote
	var sb strings.Builder
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return token.Token{}, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.UnterminatedString, Pos: startPos}
		}
		if l.ch == '\\' {
			r, err := l.readEscape(startPos)
			if err != nil {
				return token.Token{}, err
			}
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // consume closing quote
	s := sb.String()
	return token.Token{Kind: token.STRING, Lexeme: s, Literal: s, Pos: startPos}, nil
}

func (l *Lexer) readEscape(startPos token.Position) (rune, error) {
	l.readChar() // consume backslash
	var r rune
	switch l.ch {
	case 'n':
		r = '\n'
	case 't':
		r = '\t'
	case 'r':
		r = '\r'
	case '\\':
		r = '\\'
	case '"':
		r = '"'
	default:
		return 0, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.UnexpectedChar, Pos: l.pos(), Args: []interface{}{string(l.ch)}}
	}
	l.readChar()
	return r, nil
}

func (l *Lexer) readMultilineString(startPos token.Position) (token.Token, error) {
	l.readChar()
	l.readChar()
	l.readChar() // consume the three opening quotes
	start := l.position
	for {
		if l.ch == 0 {
			return token.Token{}, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.UnterminatedString, Pos: startPos}
		}
		if l.ch == '"' && l.peekChar() == '"' && l.peekAt(2) == '"' {
			s := l.input[start:l.position]
			l.readChar()
			l.readChar()
			l.readChar()
			return token.Token{Kind: token.MLSTRING, Lexeme: s, Literal: s, Pos: startPos}, nil
		}
		l.readChar()
	}
}

// readFString splits an f-string into [str, expr_source, str, ...] segments,
// per spec.md §4.1: the lexer only splits at unescaped '{'/'}'; each
// expression segment's raw source is re-lexed by the parser.
func (l *Lexer) readFString(startPos token.Position) (token.Token, error) {
	l.readChar() // consume opening quote
	var segments []token.StringSegment
	var lit strings.Builder
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return token.Token{}, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.UnterminatedString, Pos: startPos}
		}
		if l.ch == '\\' {
			r, err := l.readEscape(startPos)
			if err != nil {
				return token.Token{}, err
			}
			lit.WriteRune(r)
			continue
		}
		if l.ch == '{' {
			segments = append(segments, token.StringSegment{IsExpr: false, Text: lit.String()})
			lit.Reset()
			l.readChar()
			exprStart := l.position
			depth := 1
			for depth > 0 {
				if l.ch == 0 {
					return token.Token{}, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.UnterminatedString, Pos: startPos}
				}
				if l.ch == '{' {
					depth++
				} else if l.ch == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				l.readChar()
			}
			segments = append(segments, token.StringSegment{IsExpr: true, Text: l.input[exprStart:l.position]})
			l.readChar() // consume closing '}'
			continue
		}
		lit.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // consume closing quote
	segments = append(segments, token.StringSegment{IsExpr: false, Text: lit.String()})
	return token.Token{Kind: token.FSTRING, Segments: segments, Pos: startPos}, nil
}

// readOperator handles the longest-match operator/delimiter scan of
// spec.md §4.1, including the bare '=' diagnostic.
func (l *Lexer) readOperator(startPos token.Position) (token.Token, error) {
	ch := l.ch
	two := string(ch) + string(l.peekChar())
	three := two + string(l.peekAt(2))

	switch three {
	case "..=":
		l.readChar()
		l.readChar()
		l.readChar()
		return newTok(token.RANGE_INCL, three, startPos), nil
	}

	switch two {
	case ":=":
		l.readChar()
		l.readChar()
		return newTok(token.ASSIGN, two, startPos), nil
	case "==":
		l.readChar()
		l.readChar()
		return newTok(token.EQEQ, two, startPos), nil
	case "!=":
		l.readChar()
		l.readChar()
		return newTok(token.NEQ, two, startPos), nil
	case "<=":
		l.readChar()
		l.readChar()
		return newTok(token.LE, two, startPos), nil
	case ">=":
		l.readChar()
		l.readChar()
		return newTok(token.GE, two, startPos), nil
	case "+=":
		l.readChar()
		l.readChar()
		return newTok(token.PLUS_ASSIGN, two, startPos), nil
	case "-=":
		l.readChar()
		l.readChar()
		return newTok(token.MINUS_ASSIGN, two, startPos), nil
	case "*=":
		l.readChar()
		l.readChar()
		return newTok(token.STAR_ASSIGN, two, startPos), nil
	case "/=":
		l.readChar()
		l.readChar()
		return newTok(token.SLASH_ASSIGN, two, startPos), nil
	case "..":
		l.readChar()
		l.readChar()
		return newTok(token.RANGE, two, startPos), nil
	case "|>":
		l.readChar()
		l.readChar()
		return newTok(token.PIPE, two, startPos), nil
	case "?.":
		l.readChar()
		l.readChar()
		return newTok(token.OPT_CHAIN, two, startPos), nil
	case "&&":
		l.readChar()
		l.readChar()
		return newTok(token.ANDAND, two, startPos), nil
	case "||":
		l.readChar()
		l.readChar()
		return newTok(token.OROR, two, startPos), nil
	case "=>":
		l.readChar()
		l.readChar()
		return newTok(token.FATARROW, two, startPos), nil
	case "->":
		l.readChar()
		l.readChar()
		return newTok(token.ARROW, two, startPos), nil
	}

	single := map[rune]token.Kind{
		'+': token.PLUS, '-': token.MINUS, '*': token.STAR, '/': token.SLASH,
		'%': token.PERCENT, '<': token.LT, '>': token.GT, '!': token.BANG,
		'~': token.TILDE, '|': token.BARPIPE, ':': token.COLON, ',': token.COMMA,
		'.': token.DOT, ';': token.SEMI, '(': token.LPAREN, ')': token.RPAREN,
		'{': token.LBRACE, '}': token.RBRACE, '[': token.LBRACKET, ']': token.RBRACKET,
	}
	if k, ok := single[ch]; ok {
		l.readChar()
		return newTok(k, string(ch), startPos), nil
	}
	// A bare '=' is a real token: struct-literal field initializers use it.
	// Everywhere else the parser rejects it with the ':='/'==' hint.
	if ch == '=' {
		l.readChar()
		return newTok(token.EQ, "=", startPos), nil
	}
	l.readChar()
	return token.Token{}, &diagnostics.Error{Phase: diagnostics.PhaseLex, Code: diagnostics.UnexpectedChar, Pos: startPos, Args: []interface{}{fmt.Sprintf("%c", ch)}}
}
