// Package vm implements the Arc bytecode compiler and virtual machine.
package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ValueType identifies the variant stored in a Value.
type ValueType uint8

const (
	ValUnit ValueType = iota
	ValInt
	ValFloat
	ValBool
	ValObj // heap objects: String, List, Struct, Buffer, Function, LinearObject, EnumValue
)

// Value is a stack-allocated tagged union. Integers, floats, booleans and
// Unit live inline in Data and never allocate; everything else is boxed
// behind Obj. The small-integer interning the hot path wants falls out of
// this layout for free: an Integer is never a heap object, so there is
// nothing to intern.
type Value struct {
	Type ValueType
	Data uint64
	Obj  Object
}

// Object is the interface of every boxed runtime value.
type Object interface {
	TypeName() string
	Inspect() string
	// Linear reports whether the value carries the linear bit, i.e. whether
	// a name binding holding it is moved rather than copied on read.
	Linear() bool
}

func UnitVal() Value { return Value{Type: ValUnit} }

func IntVal(v int64) Value { return Value{Type: ValInt, Data: uint64(v)} }

func FloatVal(v float64) Value { return Value{Type: ValFloat, Data: math.Float64bits(v)} }

func BoolVal(v bool) Value {
	var data uint64
	if v {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func ObjVal(o Object) Value { return Value{Type: ValObj, Obj: o} }

func StringVal(s string) Value { return ObjVal(&StringObj{Val: s}) }

func (v Value) AsInt() int64     { return int64(v.Data) }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.Data) }
func (v Value) AsBool() bool     { return v.Data == 1 }

func (v Value) IsUnit() bool { return v.Type == ValUnit }
func (v Value) IsInt() bool  { return v.Type == ValInt }
func (v Value) IsObj() bool  { return v.Type == ValObj }

// IsLinear reports whether the value is owned by exactly one location
// (spec invariant 5). Scalars are always shared.
func (v Value) IsLinear() bool {
	return v.Type == ValObj && v.Obj != nil && v.Obj.Linear()
}

// AsString returns the string payload, or "" if the value is not a string.
func (v Value) AsString() (string, bool) {
	if s, ok := v.Obj.(*StringObj); v.Type == ValObj && ok {
		return s.Val, true
	}
	return "", false
}

// TypeName reports the user-visible type of the value, as returned by the
// `type` intrinsic and used in TypeMismatch messages.
func (v Value) TypeName() string {
	switch v.Type {
	case ValUnit:
		return "Unit"
	case ValInt:
		return "Integer"
	case ValFloat:
		return "Float"
	case ValBool:
		return "Boolean"
	case ValObj:
		if v.Obj != nil {
			return v.Obj.TypeName()
		}
		return "Unit"
	default:
		return "Unknown"
	}
}

// Inspect renders the value for print and diagnostics.
func (v Value) Inspect() string {
	switch v.Type {
	case ValUnit:
		return "null"
	case ValInt:
		return strconv.FormatInt(int64(v.Data), 10)
	case ValFloat:
		return formatFloat(math.Float64frombits(v.Data))
	case ValBool:
		if v.Data == 1 {
			return "true"
		}
		return "false"
	case ValObj:
		if v.Obj != nil {
			return v.Obj.Inspect()
		}
		return "null"
	default:
		return "<?>"
	}
}

// formatFloat keeps a trailing ".0" on whole floats so 2.0 prints as the
// source wrote it rather than collapsing to "2".
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !math.IsInf(f, 0) && !math.IsNaN(f) {
		s += ".0"
	}
	return s
}

// Equals implements structural equality with implicit int/float widening.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		if v.Type == ValInt && other.Type == ValFloat {
			return float64(v.AsInt()) == other.AsFloat()
		}
		if v.Type == ValFloat && other.Type == ValInt {
			return v.AsFloat() == float64(other.AsInt())
		}
		return false
	}
	switch v.Type {
	case ValUnit:
		return true
	case ValInt, ValBool:
		return v.Data == other.Data
	case ValFloat:
		return v.AsFloat() == other.AsFloat()
	case ValObj:
		return objectsEqual(v.Obj, other.Obj)
	default:
		return false
	}
}

func objectsEqual(a, b Object) bool {
	switch x := a.(type) {
	case *StringObj:
		y, ok := b.(*StringObj)
		return ok && x.Val == y.Val
	case *ListObj:
		y, ok := b.(*ListObj)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !x.Items[i].Equals(y.Items[i]) {
				return false
			}
		}
		return true
	case *StructObj:
		y, ok := b.(*StructObj)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		// Insertion order is irrelevant for equality.
		for k, v := range x.Fields {
			w, present := y.Fields[k]
			if !present || !v.Equals(w) {
				return false
			}
		}
		return true
	case *EnumObj:
		y, ok := b.(*EnumObj)
		if !ok || x.EnumName != y.EnumName || x.VariantName != y.VariantName || len(x.Payload) != len(y.Payload) {
			return false
		}
		for i := range x.Payload {
			if !x.Payload[i].Equals(y.Payload[i]) {
				return false
			}
		}
		return true
	case *BufferObj:
		y, ok := b.(*BufferObj)
		if !ok || len(x.Bytes) != len(y.Bytes) {
			return false
		}
		for i := range x.Bytes {
			if x.Bytes[i] != y.Bytes[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// ---- boxed objects ----

type StringObj struct {
	Val string
}

func (s *StringObj) TypeName() string { return "String" }
func (s *StringObj) Inspect() string  { return s.Val }
func (s *StringObj) Linear() bool     { return false }

type ListObj struct {
	Items []Value
}

func (l *ListObj) TypeName() string { return "List" }
func (l *ListObj) Linear() bool     { return true }
func (l *ListObj) Inspect() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, it := range l.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(inspectQuoted(it))
	}
	sb.WriteByte(']')
	return sb.String()
}

type StructObj struct {
	// TypeName of the declaring struct; empty for anonymous literals.
	Name   string
	Fields map[string]Value
	// Order preserves field insertion order for Inspect only; equality
	// ignores it.
	Order []string
}

func (s *StructObj) TypeName() string {
	if s.Name != "" {
		return s.Name
	}
	return "Struct"
}
func (s *StructObj) Linear() bool { return true }
func (s *StructObj) Inspect() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range s.Order {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(inspectQuoted(s.Fields[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

// Clone produces an independently owned copy, used when a shared struct
// binding is field-assigned (copy-then-rebind, see DESIGN.md).
func (s *StructObj) Clone() *StructObj {
	cp := &StructObj{Name: s.Name, Fields: make(map[string]Value, len(s.Fields)), Order: append([]string(nil), s.Order...)}
	for k, v := range s.Fields {
		cp.Fields[k] = v
	}
	return cp
}

// BufferObj is a byte array, always linear (spec §3.3).
type BufferObj struct {
	Bytes []byte
	// Freed is set once ownership has been surrendered to a consumer
	// intrinsic that does not return the buffer.
	Freed bool
	// TrackerID is the resource-tracker handle stamped at allocation;
	// releasing it on free keeps the tracked set reflecting actual
	// liveness.
	TrackerID uuid.UUID
}

func (b *BufferObj) TypeName() string { return "Buffer" }
func (b *BufferObj) Linear() bool     { return true }
func (b *BufferObj) Inspect() string  { return fmt.Sprintf("<buffer %d bytes>", len(b.Bytes)) }

// LinearObj wraps an inner value with a resource-kind tag; always linear.
type LinearObj struct {
	Kind  string
	Inner Value
}

func (l *LinearObj) TypeName() string { return l.Kind }
func (l *LinearObj) Linear() bool     { return true }
func (l *LinearObj) Inspect() string  { return fmt.Sprintf("<%s %s>", l.Kind, l.Inner.Inspect()) }

type EnumObj struct {
	EnumName    string
	VariantName string
	Payload     []Value
}

func (e *EnumObj) TypeName() string { return e.EnumName }
func (e *EnumObj) Linear() bool     { return false }
func (e *EnumObj) Inspect() string {
	if len(e.Payload) == 0 {
		return e.EnumName + "." + e.VariantName
	}
	var sb strings.Builder
	sb.WriteString(e.EnumName)
	sb.WriteByte('.')
	sb.WriteString(e.VariantName)
	sb.WriteByte('(')
	for i, p := range e.Payload {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(inspectQuoted(p))
	}
	sb.WriteByte(')')
	return sb.String()
}

// FunctionObj pairs a compiled prototype with its captured defining
// environment. Recursion works because the function's own name stays
// resolvable through Env at call time; there is no back-pointer from the
// prototype to any scope.
type FunctionObj struct {
	Proto *CompiledFunction
	Env   *Scope
}

func (f *FunctionObj) TypeName() string { return "Function" }
func (f *FunctionObj) Linear() bool     { return false }
func (f *FunctionObj) Inspect() string  { return fmt.Sprintf("<fn %s>", f.Proto.Name) }

// inspectQuoted renders strings with quotes when nested inside composites,
// so [1, "a"] does not print as [1, a].
func inspectQuoted(v Value) string {
	if s, ok := v.AsString(); ok {
		return strconv.Quote(s)
	}
	return v.Inspect()
}
