package vm

import (
	"sort"
	"strings"

	"golang.org/x/exp/maps"
)

// Scope is a name-to-value mapping with an optional parent link (spec
// §3.4). Resolution walks the chain innermost-outward; shadowing is
// permitted.
type Scope struct {
	vars   map[string]Value
	parent *Scope
}

func NewScope(parent *Scope) *Scope {
	return &Scope{vars: make(map[string]Value), parent: parent}
}

// Define binds name in this scope, shadowing any outer binding.
func (s *Scope) Define(name string, v Value) {
	s.vars[name] = v
}

// Get resolves name through the chain without move semantics.
func (s *Scope) Get(name string) (Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// Take resolves name and, when the value is linear, moves it out of its
// scope: the binding is deleted so a second load cannot observe it. Shared
// values are returned without disturbing the binding.
func (s *Scope) Take(name string) (Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			if v.IsLinear() {
				delete(cur.vars, name)
			}
			return v, true
		}
	}
	return Value{}, false
}

// Assign rebinds an existing name wherever it lives in the chain, or
// defines it in the current scope when absent.
func (s *Scope) Assign(name string, v Value) {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return
		}
	}
	s.vars[name] = v
}

// Snapshot flattens the chain into one map, innermost binding winning.
// Module loaders use it to expose a finished module's top level as a
// namespace value.
func (s *Scope) Snapshot() map[string]Value {
	out := make(map[string]Value)
	for cur := s; cur != nil; cur = cur.parent {
		for k, v := range cur.vars {
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
	}
	return out
}

// Dump renders the scope chain for debugger output, innermost first, with
// deterministic key ordering.
func (s *Scope) Dump() string {
	var sb strings.Builder
	depth := 0
	for cur := s; cur != nil; cur = cur.parent {
		keys := maps.Keys(cur.vars)
		sort.Strings(keys)
		for _, k := range keys {
			for i := 0; i < depth; i++ {
				sb.WriteString("  ")
			}
			sb.WriteString(k)
			sb.WriteString(" = ")
			sb.WriteString(cur.vars[k].Inspect())
			sb.WriteByte('\n')
		}
		depth++
	}
	return sb.String()
}
