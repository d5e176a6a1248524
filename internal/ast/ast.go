// Package ast defines the Arc abstract syntax tree, grounded on
// funvibe-funxy's internal/ast node layout (separate Statement/Expression
// sorts, each node carrying an optional source span) and spec.md §3.2.
package ast

import "github.com/arclang/arc/internal/token"

// Linearity classifies a binding's resource-use discipline (spec.md §3.2/§4.3).
type Linearity int

const (
	Shared Linearity = iota
	Affine
	Linear
)

func (l Linearity) String() string {
	switch l {
	case Affine:
		return "Affine"
	case Linear:
		return "Linear"
	default:
		return "Shared"
	}
}

// Node is implemented by every AST node; Span reports its source extent.
type Node interface {
	Span() token.Position
}

// Statement is the sort of every top-level and block-level form.
type Statement interface {
	Node
	stmtNode()
}

// Expression is the sort of every value-producing form.
type Expression interface {
	Node
	exprNode()
}

type base struct {
	Pos token.Position
}

func (b base) Span() token.Position { return b.Pos }

// ---- Statements ----

type Block struct {
	base
	Stmts []Statement
}

func (*Block) stmtNode() {}

// Param is a function or lambda formal parameter.
type Param struct {
	Name      string
	TyAnnot   string // empty if unannotated
	Linearity Linearity
}

type Let struct {
	base
	Name      string
	TyAnnot   string
	Value     Expression
	Linearity Linearity
	Mutable   bool
}

func (*Let) stmtNode() {}

// AssignTarget is Variable, FieldAccess, or Index — spec.md §3.2.
type Assign struct {
	base
	Target Expression
	Value  Expression
}

func (*Assign) stmtNode() {}

type If struct {
	base
	Cond Expression
	Then *Block
	Else *Block // nil if no else; may itself be a single-stmt Block wrapping another If for else-if chains
}

func (*If) stmtNode() {}

type While struct {
	base
	Cond Expression
	Body *Block
}

func (*While) stmtNode() {}

type For struct {
	base
	Binding  string
	Iterable Expression
	Body     *Block
}

func (*For) stmtNode() {}

type Break struct{ base }

func (*Break) stmtNode() {}

type Continue struct{ base }

func (*Continue) stmtNode() {}

type Return struct {
	base
	Value Expression // nil for bare `return`
}

func (*Return) stmtNode() {}

type FunctionDecl struct {
	base
	Name          string
	Params        []Param
	ReturnTyAnnot string
	Body          *MastNode
	Doc           string
}

func (*FunctionDecl) stmtNode() {}

type Field struct {
	Name    string
	TyAnnot string
}

type StructDecl struct {
	base
	Name   string
	Fields []Field
	Doc    string
}

func (*StructDecl) stmtNode() {}

type Variant struct {
	Name       string
	PayloadTys []string
}

type EnumDecl struct {
	base
	Name     string
	Variants []Variant
	Doc      string
}

func (*EnumDecl) stmtNode() {}

type TraitDecl struct {
	base
	Name    string
	Methods []FunctionDecl
}

func (*TraitDecl) stmtNode() {}

type ImplBlock struct {
	base
	TraitName string
	TypeName  string
	Methods   []FunctionDecl
}

func (*ImplBlock) stmtNode() {}

type MatchArm struct {
	Pattern Pattern
	Body    *Block
}

type Match struct {
	base
	Scrutinee Expression
	Arms      []MatchArm
}

func (*Match) stmtNode() {}
func (*Match) exprNode() {}

// Pattern is one match arm's pattern: either a literal, a wildcard `_`, a
// variable binding, or an enum-variant destructure.
type Pattern interface {
	Node
	patternNode()
}

type LiteralPattern struct {
	base
	Value Expression
}

func (*LiteralPattern) patternNode() {}

type WildcardPattern struct{ base }

func (*WildcardPattern) patternNode() {}

type BindPattern struct {
	base
	Name      string
	Linearity Linearity
}

func (*BindPattern) patternNode() {}

type VariantPattern struct {
	base
	EnumName    string
	VariantName string
	Bindings    []BindPattern
}

func (*VariantPattern) patternNode() {}

type TryCatch struct {
	base
	Try     *Block
	Binding string
	Catch   *Block
}

func (*TryCatch) stmtNode() {}

type Import struct {
	base
	Path  []string
	Alias string
}

func (*Import) stmtNode() {}

// ExprStmt wraps an Expression used as a statement (its value is discarded).
type ExprStmt struct {
	base
	X Expression
}

func (*ExprStmt) stmtNode() {}

// ---- Expressions ----

type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitString
	LitBool
	LitNull
)

type Literal struct {
	base
	Kind LiteralKind
	Int  int64
	Flt  float64
	Str  string
	Bool bool
}

func (*Literal) exprNode() {}

type Variable struct {
	base
	Name string
}

func (*Variable) exprNode() {}

// FStringSegment mirrors token.StringSegment after expr segments are parsed.
type FStringSegment struct {
	Literal string
	Expr    Expression // nil when this segment is a literal run
}

type FString struct {
	base
	Segments []FStringSegment
}

func (*FString) exprNode() {}

type ListLit struct {
	base
	Items []Expression
}

func (*ListLit) exprNode() {}

type StructFieldInit struct {
	Name  string
	Value Expression
}

type StructLit struct {
	base
	TypeName string // optional, empty if anonymous
	Fields   []StructFieldInit
}

func (*StructLit) exprNode() {}

type Lambda struct {
	base
	Params []Param
	Body   *MastNode
}

func (*Lambda) exprNode() {}

type Call struct {
	base
	Callee Expression
	Args   []Expression
}

func (*Call) exprNode() {}

type MethodCall struct {
	base
	Receiver Expression
	Name     string
	Args     []Expression
}

func (*MethodCall) exprNode() {}

type FieldAccess struct {
	base
	Obj      Expression
	Field    string
	Optional bool
}

func (*FieldAccess) exprNode() {}

type Index struct {
	base
	Obj Expression
	Idx Expression
}

func (*Index) exprNode() {}

// BinOp survives parsing only for the short-circuit operators `&&`/`||`,
// which the compiler lowers to jumps; every other binary operator desugars
// to a named intrinsic Call (spec.md §3.2/§4.2). The parser never produces
// UnaryOp: prefix operators become not/neg/bnot intrinsic Calls.
type BinOp struct {
	base
	Op    string
	Left  Expression
	Right Expression
}

func (*BinOp) exprNode() {}

type UnaryOp struct {
	base
	Op string
	X  Expression
}

func (*UnaryOp) exprNode() {}

type Pipe struct {
	base
	Left  Expression
	Right Expression
}

func (*Pipe) exprNode() {}

type Range struct {
	base
	Left      Expression
	Right     Expression
	Inclusive bool
}

func (*Range) exprNode() {}
