package vm

import (
	"os"

	"gopkg.in/yaml.v3"
)

// registerSys wires the capability-guarded sys.* namespace (spec §6.3).
func registerSys(r *Registry) {
	registerSysMem(r)
	registerSysBits(r)
	registerSysFS(r)
	registerSysYAML(r)
	registerSysNet(r)
	registerSysExec(r)
}

// sys.mem.* exposes raw linear buffers; allocation is tracked so leaked
// buffers are visible at VM teardown.
func registerSysMem(r *Registry) {
	r.Register(&Intrinsic{Name: "sys.mem.alloc", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		if args[0].Type != ValInt || args[0].AsInt() < 0 {
			return Value{}, typeMismatch("sys.mem.alloc expects a non-negative integer size, got %s", args[0].Inspect())
		}
		buf := &BufferObj{Bytes: make([]byte, args[0].AsInt())}
		buf.TrackerID = rt.Tracker.Register("buffer", nil)
		return ObjVal(buf), nil
	}})

	r.Register(&Intrinsic{Name: "sys.mem.read", Arity: 2, Handler: func(rt *Runtime, args []Value) (Value, error) {
		buf, ok := args[0].Obj.(*BufferObj)
		if !ok || args[0].Type != ValObj {
			return Value{}, typeMismatch("sys.mem.read expects a buffer, got %s", args[0].TypeName())
		}
		if args[1].Type != ValInt {
			return Value{}, typeMismatch("sys.mem.read offset must be an integer, got %s", args[1].TypeName())
		}
		off := args[1].AsInt()
		if buf.Freed {
			return Value{}, failf("sys.mem.read", "buffer already freed")
		}
		if off < 0 || off >= int64(len(buf.Bytes)) {
			return Value{}, failf("sys.mem.read", "offset %d out of range (length %d)", off, len(buf.Bytes))
		}
		return IntVal(int64(buf.Bytes[off])), nil
	}})

	r.Register(&Intrinsic{Name: "sys.mem.write", Arity: 3, Consumes: []int{0}, ReturnsFreshLinear: true,
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			buf, ok := args[0].Obj.(*BufferObj)
			if !ok || args[0].Type != ValObj {
				return Value{}, typeMismatch("sys.mem.write expects a buffer, got %s", args[0].TypeName())
			}
			if args[1].Type != ValInt || args[2].Type != ValInt {
				return Value{}, typeMismatch("sys.mem.write expects integer offset and byte")
			}
			off, b := args[1].AsInt(), args[2].AsInt()
			if buf.Freed {
				return Value{}, failf("sys.mem.write", "buffer already freed")
			}
			if off < 0 || off >= int64(len(buf.Bytes)) {
				return Value{}, failf("sys.mem.write", "offset %d out of range (length %d)", off, len(buf.Bytes))
			}
			if b < 0 || b > 255 {
				return Value{}, failf("sys.mem.write", "byte value %d out of range", b)
			}
			buf.Bytes[off] = byte(b)
			return args[0], nil
		}})

	r.Register(&Intrinsic{Name: "sys.mem.free", Arity: 1, Consumes: []int{0},
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			buf, ok := args[0].Obj.(*BufferObj)
			if !ok || args[0].Type != ValObj {
				return Value{}, typeMismatch("sys.mem.free expects a buffer, got %s", args[0].TypeName())
			}
			if buf.Freed {
				return Value{}, failf("sys.mem.free", "buffer already freed")
			}
			buf.Freed = true
			buf.Bytes = nil
			_ = rt.Tracker.Release(buf.TrackerID)
			return UnitVal(), nil
		}})
}

func registerSysFS(r *Registry) {
	r.Register(&Intrinsic{Name: "sys.fs.readFile", Arity: 1, Requires: []Capability{CapFSRead},
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			path, ok := args[0].AsString()
			if !ok {
				return Value{}, typeMismatch("sys.fs.readFile expects a path string, got %s", args[0].TypeName())
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return Value{}, failf("sys.fs.readFile", "%v", err)
			}
			return StringVal(string(data)), nil
		}})

	r.Register(&Intrinsic{Name: "sys.fs.writeFile", Arity: 2, Requires: []Capability{CapFSWrite},
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			path, ok := args[0].AsString()
			if !ok {
				return Value{}, typeMismatch("sys.fs.writeFile expects a path string, got %s", args[0].TypeName())
			}
			content, ok := args[1].AsString()
			if !ok {
				return Value{}, typeMismatch("sys.fs.writeFile expects string content, got %s", args[1].TypeName())
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return Value{}, failf("sys.fs.writeFile", "%v", err)
			}
			return UnitVal(), nil
		}})
}

// sys.yaml.* treats YAML as the data-interchange format for host-provided
// manifests, so parsing sits behind the fs_read capability.
func registerSysYAML(r *Registry) {
	r.Register(&Intrinsic{Name: "sys.yaml.parse", Arity: 1, Requires: []Capability{CapFSRead},
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			text, ok := args[0].AsString()
			if !ok {
				return Value{}, typeMismatch("sys.yaml.parse expects a string, got %s", args[0].TypeName())
			}
			var data interface{}
			if err := yaml.Unmarshal([]byte(text), &data); err != nil {
				return Value{}, failf("sys.yaml.parse", "%v", err)
			}
			return yamlToValue(data), nil
		}})

	r.Register(&Intrinsic{Name: "sys.yaml.dump", Arity: 1, Requires: []Capability{CapFSRead},
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			data, err := valueToPlain(args[0])
			if err != nil {
				return Value{}, err
			}
			out, merr := yaml.Marshal(data)
			if merr != nil {
				return Value{}, failf("sys.yaml.dump", "%v", merr)
			}
			return StringVal(string(out)), nil
		}})
}

// yamlToValue converts yaml.Unmarshal output to Arc values: mappings become
// structs, sequences lists, scalars their natural variant. yaml.v3 decodes
// integers as int, not float64.
func yamlToValue(data interface{}) Value {
	switch v := data.(type) {
	case nil:
		return UnitVal()
	case bool:
		return BoolVal(v)
	case int:
		return IntVal(int64(v))
	case int64:
		return IntVal(v)
	case float64:
		return FloatVal(v)
	case string:
		return StringVal(v)
	case []interface{}:
		items := make([]Value, len(v))
		for i, it := range v {
			items[i] = yamlToValue(it)
		}
		return ObjVal(&ListObj{Items: items})
	case map[string]interface{}:
		s := &StructObj{Fields: make(map[string]Value, len(v))}
		for k, it := range v {
			s.Order = append(s.Order, k)
			s.Fields[k] = yamlToValue(it)
		}
		return ObjVal(s)
	default:
		return StringVal(sprintf("%v", v))
	}
}

func valueToPlain(v Value) (interface{}, error) {
	switch v.Type {
	case ValUnit:
		return nil, nil
	case ValInt:
		return v.AsInt(), nil
	case ValFloat:
		return v.AsFloat(), nil
	case ValBool:
		return v.AsBool(), nil
	case ValObj:
		switch o := v.Obj.(type) {
		case *StringObj:
			return o.Val, nil
		case *ListObj:
			out := make([]interface{}, len(o.Items))
			for i, it := range o.Items {
				p, err := valueToPlain(it)
				if err != nil {
					return nil, err
				}
				out[i] = p
			}
			return out, nil
		case *StructObj:
			out := make(map[string]interface{}, len(o.Fields))
			for k, it := range o.Fields {
				p, err := valueToPlain(it)
				if err != nil {
					return nil, err
				}
				out[k] = p
			}
			return out, nil
		}
	}
	return nil, typeMismatch("cannot serialize %s", v.TypeName())
}

func registerSysExec(r *Registry) {
	// The handler itself refuses: exec is specified as a capability tag and
	// a sandbox deny-list entry, not a shipped shell bridge.
	r.Register(&Intrinsic{Name: "sys.exec.run", Arity: Variadic, Requires: []Capability{CapExec},
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			return Value{}, failf("sys.exec.run", "no exec backend is registered in this build")
		}})
}
