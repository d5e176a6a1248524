package vm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/arclang/arc/internal/token"
)

// Region is one try/catch error-handling region recorded on a Chunk. An
// OP_TRY_PUSH referencing it arms the handler; a runtime error raised while
// the region is armed unwinds to the saved stack depth and continues at
// Handler with the error description bound to BindName.
type Region struct {
	Handler  int // code offset of the catch block
	BindName int // constant index of the catch binding's name
}

// Chunk is one executable unit: bytecode, constants, a diagnostic name, and
// a content hash (spec §3.5).
type Chunk struct {
	Code      []byte
	Constants []Value
	Regions   []Region
	Name      string
	Hash      [32]byte

	// Lines/Columns map each code offset to its source position for
	// runtime diagnostics.
	Lines   []int
	Columns []int
}

func NewChunk(name string) *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 256),
		Constants: make([]Value, 0, 32),
		Lines:     make([]int, 0, 256),
		Columns:   make([]int, 0, 256),
		Name:      name,
	}
}

func (c *Chunk) write(b byte, pos token.Position) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, pos.Line)
	c.Columns = append(c.Columns, pos.Column)
}

func (c *Chunk) writeOp(op Opcode, pos token.Position) {
	c.write(byte(op), pos)
}

func (c *Chunk) writeU16(v int, pos token.Position) {
	c.write(byte(v>>8), pos)
	c.write(byte(v), pos)
}

// addConstant interns a constant and returns its pool index. Scalar and
// string constants are deduplicated; everything else is appended as-is.
func (c *Chunk) addConstant(v Value) int {
	if v.Type != ValObj {
		for i, existing := range c.Constants {
			if existing.Type == v.Type && existing.Data == v.Data {
				return i
			}
		}
	} else if s, ok := v.AsString(); ok {
		for i, existing := range c.Constants {
			if es, eok := existing.AsString(); eok && es == s {
				return i
			}
		}
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

func (c *Chunk) readU16(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

func (c *Chunk) Len() int { return len(c.Code) }

// pos reports the source position recorded for a code offset.
func (c *Chunk) pos(offset int) token.Position {
	if offset < 0 || offset >= len(c.Lines) {
		return token.Position{}
	}
	return token.Position{Line: c.Lines[offset], Column: c.Columns[offset]}
}

// Seal computes the chunk's content hash: SHA-256 over the code bytes plus
// a canonical encoding of each constant. The encoding is pinned here so the
// hash is stable across implementations (spec §8 property 2): one tag byte
// per constant, then the value's bytes (big-endian for scalars, UTF-8 for
// strings, the nested chunk hash for function prototypes).
func (c *Chunk) Seal() {
	h := sha256.New()
	h.Write(c.Code)
	var scratch [8]byte
	for _, v := range c.Constants {
		switch v.Type {
		case ValUnit:
			h.Write([]byte{0})
		case ValInt:
			h.Write([]byte{1})
			binary.BigEndian.PutUint64(scratch[:], v.Data)
			h.Write(scratch[:])
		case ValFloat:
			h.Write([]byte{2})
			binary.BigEndian.PutUint64(scratch[:], v.Data)
			h.Write(scratch[:])
		case ValBool:
			h.Write([]byte{3, byte(v.Data)})
		case ValObj:
			switch o := v.Obj.(type) {
			case *StringObj:
				h.Write([]byte{4})
				h.Write([]byte(o.Val))
				h.Write([]byte{0})
			case *CompiledFunction:
				h.Write([]byte{5})
				h.Write(o.Chunk.Hash[:])
			default:
				h.Write([]byte{6})
			}
		}
	}
	copy(c.Hash[:], h.Sum(nil))
}

// HashHex is the chunk hash in lowercase hex, the form trusted-hash sets
// and the store use.
func (c *Chunk) HashHex() string {
	return hex.EncodeToString(c.Hash[:])
}

// CompiledFunction is a function prototype living in a constants pool: its
// chunk plus formal parameter names. It only becomes callable once
// OP_MAKE_FUNC pairs it with a captured environment.
type CompiledFunction struct {
	Name     string
	Params   []string
	Chunk    *Chunk
	MastHash [32]byte // content-addressed identity of the source body
}

func (f *CompiledFunction) TypeName() string { return "Function" }
func (f *CompiledFunction) Linear() bool     { return false }
func (f *CompiledFunction) Inspect() string  { return "<fn " + f.Name + ">" }
