package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/lexer"
	"github.com/arclang/arc/internal/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	l := lexer.New(src)
	var toks []token.Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func TestOperatorsAndKeywords(t *testing.T) {
	toks := scanAll(t, `let b: Linear := sys.mem.alloc(8)`)
	kinds := make([]token.Kind, 0, len(toks))
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	require.Equal(t, []token.Kind{
		token.LET, token.IDENT, token.COLON, token.IDENT, token.ASSIGN,
		token.IDENT, token.DOT, token.IDENT, token.DOT, token.IDENT,
		token.LPAREN, token.INT, token.RPAREN, token.EOF,
	}, kinds)
}

func TestBareEqualsIsAToken(t *testing.T) {
	// '=' lexes as its own token (struct-literal field initializers use
	// it); rejecting it elsewhere is the parser's job.
	toks := scanAll(t, "x = 1")
	require.Equal(t, []token.Kind{token.IDENT, token.EQ, token.INT, token.EOF},
		[]token.Kind{toks[0].Kind, toks[1].Kind, toks[2].Kind, toks[3].Kind})
}

func TestFString(t *testing.T) {
	toks := scanAll(t, `f"hi {name}!"`)
	require.Equal(t, token.FSTRING, toks[0].Kind)
	require.Equal(t, []token.StringSegment{
		{IsExpr: false, Text: "hi "},
		{IsExpr: true, Text: "name"},
		{IsExpr: false, Text: "!"},
	}, toks[0].Segments)
}

func TestNestedBlockComment(t *testing.T) {
	toks := scanAll(t, "/* outer /* inner */ still-outer */ 42")
	require.Equal(t, token.INT, toks[0].Kind)
	require.Equal(t, int64(42), toks[0].Literal)
}

func TestUnterminatedBlockComment(t *testing.T) {
	l := lexer.New("/* never closes")
	_, err := l.NextToken()
	require.Error(t, err)
	require.Contains(t, err.Error(), "UnterminatedBlockComment")
}

func TestDocCommentAttachesAsToken(t *testing.T) {
	toks := scanAll(t, "/// computes factorial\nfunc fact(n) {}")
	require.Equal(t, token.DOC, toks[0].Kind)
	require.Equal(t, "computes factorial", toks[0].Lexeme)
}

func TestMultilineString(t *testing.T) {
	toks := scanAll(t, "\"\"\"line1\nline2\"\"\"")
	require.Equal(t, token.MLSTRING, toks[0].Kind)
	require.Equal(t, "line1\nline2", toks[0].Literal)
}

func TestRangeOperators(t *testing.T) {
	toks := scanAll(t, "1..10 0..=9")
	kinds := []token.Kind{}
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	require.Equal(t, []token.Kind{
		token.INT, token.RANGE, token.INT,
		token.INT, token.RANGE_INCL, token.INT, token.EOF,
	}, kinds)
}
