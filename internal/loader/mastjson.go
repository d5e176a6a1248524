package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// MastDocument is the persisted MAST JSON form (spec §6.5): every function
// body of a program with its canonical content encoding and pre-computed
// hash. Loading re-validates each hash; a mismatch is an IntegrityError.
type MastDocument struct {
	Version   int            `json:"version"`
	Functions []MastFunction `json:"functions"`
}

type MastFunction struct {
	Name    string          `json:"name"`
	Hash    string          `json:"hash"`
	Content json.RawMessage `json:"content"`
}

const mastDocumentVersion = 1

// ExportMast collects the content-addressed identity of every top-level
// function (and lambda-free nested declarations reachable through blocks)
// into a MAST document.
func ExportMast(prog *ast.Block) ([]byte, error) {
	doc := MastDocument{Version: mastDocumentVersion}
	collectFunctions(prog, &doc)
	return json.MarshalIndent(doc, "", "  ")
}

func collectFunctions(b *ast.Block, doc *MastDocument) {
	for _, stmt := range b.Stmts {
		switch n := stmt.(type) {
		case *ast.FunctionDecl:
			doc.Functions = append(doc.Functions, MastFunction{
				Name:    n.Name,
				Hash:    hex.EncodeToString(n.Body.Hash[:]),
				Content: ast.CanonicalBytes(n.Body.Content),
			})
			collectFunctions(n.Body.Content, doc)
		case *ast.If:
			collectFunctions(n.Then, doc)
			if n.Else != nil {
				collectFunctions(n.Else, doc)
			}
		case *ast.While:
			collectFunctions(n.Body, doc)
		case *ast.For:
			collectFunctions(n.Body, doc)
		case *ast.TryCatch:
			collectFunctions(n.Try, doc)
			collectFunctions(n.Catch, doc)
		case *ast.ImplBlock:
			for i := range n.Methods {
				m := &n.Methods[i]
				doc.Functions = append(doc.Functions, MastFunction{
					Name:    n.TypeName + "." + m.Name,
					Hash:    hex.EncodeToString(m.Body.Hash[:]),
					Content: ast.CanonicalBytes(m.Body.Content),
				})
			}
		}
	}
}

func hashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// LoadMast parses a MAST document and re-validates every hash against the
// canonical re-encoding of its content (spec §6.5).
func LoadMast(data []byte) (*MastDocument, error) {
	var doc MastDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse MAST document: %w", err)
	}
	if doc.Version != mastDocumentVersion {
		return nil, fmt.Errorf("unsupported MAST document version %d", doc.Version)
	}
	for _, fn := range doc.Functions {
		canonical, err := ast.ReencodeCanonical(fn.Content)
		if err != nil {
			return nil, fmt.Errorf("function %s: malformed content: %w", fn.Name, err)
		}
		if hex.EncodeToString(hashBytes(canonical)) != fn.Hash {
			return nil, diagnostics.New(diagnostics.PhaseRuntime, diagnostics.IntegrityError, token.Position{}, fn.Name)
		}
	}
	return &doc, nil
}
