package ast

import (
	"crypto/sha256"
	"encoding/json"
)

// MastNode wraps a function body with its content-addressed identity
// (spec.md §3.2, §3.6 invariant 6): Hash is the SHA-256 of a canonical byte
// encoding of Content, computed once by the parser (spec.md §4.2 permits
// deferring this to compile time; Arc computes it eagerly at parse time so
// two structurally identical bodies are immediately indistinguishable to
// caching and trust-listing code, the way the teacher's content-addressed
// ext-cache key is computed once at the point of content availability, not
// lazily — see internal/ext/cache.go's computeKey).
type MastNode struct {
	Hash    [32]byte
	Content *Block
}

// canonicalNode is the JSON shadow of a Block used purely for hashing: a
// stable, fixed-field-order, whitespace-free encoding (spec.md §9's resolution of
// the "MAST hash canonicalization" Open Question). It intentionally encodes
// only the semantic shape of the tree (statement/expression kind plus
// operands), not source positions, doc comments, or formatting, so
// whitespace/comment changes never perturb the hash per spec.md §8
// property 2.
type canonicalNode struct {
	Kind     string            `json:"k"`
	Str      string            `json:"s,omitempty"`
	Int      int64             `json:"i,omitempty"`
	Flt      float64           `json:"f,omitempty"`
	Bool     bool              `json:"b,omitempty"`
	Children []canonicalNode   `json:"c,omitempty"`
	Fields   map[string]string `json:"m,omitempty"`
}

// NewMastNode computes content-addressed identity for a parsed function
// body.
func NewMastNode(body *Block) *MastNode {
	return &MastNode{Hash: sha256.Sum256(CanonicalBytes(body)), Content: body}
}

// CanonicalBytes is the published canonical encoding of a function body:
// the deterministic JSON serialization the MAST hash is computed over.
// canonicalNode field order is fixed by struct tags and json.Marshal is
// deterministic for a fixed Go type, so equal trees yield equal bytes.
func CanonicalBytes(b *Block) []byte {
	data, _ := json.Marshal(canonicalizeBlock(b))
	return data
}

// ReencodeCanonical round-trips an externally supplied canonical encoding
// through the canonicalNode type, restoring the pinned field order. MAST
// JSON loaders verify hashes against the result rather than the raw input
// bytes, so semantically equal documents with shuffled keys still verify.
func ReencodeCanonical(data []byte) ([]byte, error) {
	var n canonicalNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

func canonicalizeBlock(b *Block) canonicalNode {
	n := canonicalNode{Kind: "Block"}
	for _, s := range b.Stmts {
		n.Children = append(n.Children, canonicalizeStmt(s))
	}
	return n
}

func canonicalizeStmt(s Statement) canonicalNode {
	switch v := s.(type) {
	case *Let:
		return canonicalNode{Kind: "Let", Str: v.Name, Int: int64(v.Linearity),
			Children: []canonicalNode{canonicalizeExpr(v.Value)}}
	case *Assign:
		return canonicalNode{Kind: "Assign", Children: []canonicalNode{canonicalizeExpr(v.Target), canonicalizeExpr(v.Value)}}
	case *If:
		children := []canonicalNode{canonicalizeExpr(v.Cond), canonicalizeBlock(v.Then)}
		if v.Else != nil {
			children = append(children, canonicalizeBlock(v.Else))
		}
		return canonicalNode{Kind: "If", Children: children}
	case *While:
		return canonicalNode{Kind: "While", Children: []canonicalNode{canonicalizeExpr(v.Cond), canonicalizeBlock(v.Body)}}
	case *For:
		return canonicalNode{Kind: "For", Str: v.Binding, Children: []canonicalNode{canonicalizeExpr(v.Iterable), canonicalizeBlock(v.Body)}}
	case *Break:
		return canonicalNode{Kind: "Break"}
	case *Continue:
		return canonicalNode{Kind: "Continue"}
	case *Return:
		if v.Value == nil {
			return canonicalNode{Kind: "Return"}
		}
		return canonicalNode{Kind: "Return", Children: []canonicalNode{canonicalizeExpr(v.Value)}}
	case *TryCatch:
		return canonicalNode{Kind: "TryCatch", Str: v.Binding,
			Children: []canonicalNode{canonicalizeBlock(v.Try), canonicalizeBlock(v.Catch)}}
	case *ExprStmt:
		return canonicalNode{Kind: "ExprStmt", Children: []canonicalNode{canonicalizeExpr(v.X)}}
	case *Match:
		children := []canonicalNode{canonicalizeExpr(v.Scrutinee)}
		for _, arm := range v.Arms {
			children = append(children, canonicalizeBlock(arm.Body))
		}
		return canonicalNode{Kind: "Match", Children: children}
	default:
		return canonicalNode{Kind: "Unknown"}
	}
}

func canonicalizeExpr(e Expression) canonicalNode {
	if e == nil {
		return canonicalNode{Kind: "Nil"}
	}
	switch v := e.(type) {
	case *Literal:
		return canonicalNode{Kind: "Literal", Int: v.Int, Flt: v.Flt, Str: v.Str, Bool: v.Bool}
	case *Variable:
		return canonicalNode{Kind: "Variable", Str: v.Name}
	case *Call:
		n := canonicalNode{Kind: "Call", Children: []canonicalNode{canonicalizeExpr(v.Callee)}}
		for _, a := range v.Args {
			n.Children = append(n.Children, canonicalizeExpr(a))
		}
		return n
	case *MethodCall:
		n := canonicalNode{Kind: "MethodCall", Str: v.Name, Children: []canonicalNode{canonicalizeExpr(v.Receiver)}}
		for _, a := range v.Args {
			n.Children = append(n.Children, canonicalizeExpr(a))
		}
		return n
	case *FieldAccess:
		return canonicalNode{Kind: "FieldAccess", Str: v.Field, Bool: v.Optional, Children: []canonicalNode{canonicalizeExpr(v.Obj)}}
	case *Index:
		return canonicalNode{Kind: "Index", Children: []canonicalNode{canonicalizeExpr(v.Obj), canonicalizeExpr(v.Idx)}}
	case *ListLit:
		n := canonicalNode{Kind: "ListLit"}
		for _, it := range v.Items {
			n.Children = append(n.Children, canonicalizeExpr(it))
		}
		return n
	case *StructLit:
		n := canonicalNode{Kind: "StructLit", Str: v.TypeName}
		for _, f := range v.Fields {
			n.Children = append(n.Children, canonicalNode{Kind: "Field", Str: f.Name, Children: []canonicalNode{canonicalizeExpr(f.Value)}})
		}
		return n
	case *Lambda:
		n := canonicalNode{Kind: "Lambda"}
		for _, p := range v.Params {
			n.Children = append(n.Children, canonicalNode{Kind: "Param", Str: p.Name, Int: int64(p.Linearity)})
		}
		if v.Body != nil {
			n.Children = append(n.Children, canonicalizeBlock(v.Body.Content))
		}
		return n
	case *Range:
		return canonicalNode{Kind: "Range", Bool: v.Inclusive, Children: []canonicalNode{canonicalizeExpr(v.Left), canonicalizeExpr(v.Right)}}
	case *Pipe:
		return canonicalNode{Kind: "Pipe", Children: []canonicalNode{canonicalizeExpr(v.Left), canonicalizeExpr(v.Right)}}
	case *FString:
		n := canonicalNode{Kind: "FString"}
		for _, seg := range v.Segments {
			if seg.Expr != nil {
				n.Children = append(n.Children, canonicalizeExpr(seg.Expr))
			} else {
				n.Children = append(n.Children, canonicalNode{Kind: "Lit", Str: seg.Literal})
			}
		}
		return n
	case *BinOp:
		return canonicalNode{Kind: "BinOp", Str: v.Op, Children: []canonicalNode{canonicalizeExpr(v.Left), canonicalizeExpr(v.Right)}}
	case *UnaryOp:
		return canonicalNode{Kind: "UnaryOp", Str: v.Op, Children: []canonicalNode{canonicalizeExpr(v.X)}}
	case *Match:
		return canonicalizeStmt(v)
	default:
		return canonicalNode{Kind: "Unknown"}
	}
}
