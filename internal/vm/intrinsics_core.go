package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arclang/arc/internal/token"
)

var positionZero = token.Position{}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

func bothNumeric(a, b Value) bool {
	return (a.Type == ValInt || a.Type == ValFloat) && (b.Type == ValInt || b.Type == ValFloat)
}

func asFloat(v Value) float64 {
	if v.Type == ValInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func registerOperators(r *Registry) {
	binary := func(name string, h Handler) {
		r.Register(&Intrinsic{Name: name, Arity: 2, Handler: h})
	}

	binary("add", func(rt *Runtime, args []Value) (Value, error) {
		a, b := args[0], args[1]
		switch {
		case a.Type == ValInt && b.Type == ValInt:
			return IntVal(a.AsInt() + b.AsInt()), nil
		case bothNumeric(a, b):
			return FloatVal(asFloat(a) + asFloat(b)), nil
		}
		if sa, ok := a.AsString(); ok {
			if sb, ok := b.AsString(); ok {
				return StringVal(sa + sb), nil
			}
		}
		return Value{}, typeMismatch("add expects two numbers or two strings, got %s and %s", a.TypeName(), b.TypeName())
	})

	binary("sub", func(rt *Runtime, args []Value) (Value, error) {
		a, b := args[0], args[1]
		switch {
		case a.Type == ValInt && b.Type == ValInt:
			return IntVal(a.AsInt() - b.AsInt()), nil
		case bothNumeric(a, b):
			return FloatVal(asFloat(a) - asFloat(b)), nil
		}
		return Value{}, typeMismatch("sub expects two numbers, got %s and %s", a.TypeName(), b.TypeName())
	})

	binary("mul", func(rt *Runtime, args []Value) (Value, error) {
		a, b := args[0], args[1]
		switch {
		case a.Type == ValInt && b.Type == ValInt:
			return IntVal(a.AsInt() * b.AsInt()), nil
		case bothNumeric(a, b):
			return FloatVal(asFloat(a) * asFloat(b)), nil
		}
		return Value{}, typeMismatch("mul expects two numbers, got %s and %s", a.TypeName(), b.TypeName())
	})

	binary("div", func(rt *Runtime, args []Value) (Value, error) {
		a, b := args[0], args[1]
		switch {
		case a.Type == ValInt && b.Type == ValInt:
			if b.AsInt() == 0 {
				return Value{}, failf("div", "division by zero")
			}
			return IntVal(a.AsInt() / b.AsInt()), nil
		case bothNumeric(a, b):
			if asFloat(b) == 0 {
				return Value{}, failf("div", "division by zero")
			}
			return FloatVal(asFloat(a) / asFloat(b)), nil
		}
		return Value{}, typeMismatch("div expects two numbers, got %s and %s", a.TypeName(), b.TypeName())
	})

	binary("modulo", func(rt *Runtime, args []Value) (Value, error) {
		a, b := args[0], args[1]
		if a.Type != ValInt || b.Type != ValInt {
			return Value{}, typeMismatch("modulo expects two integers, got %s and %s", a.TypeName(), b.TypeName())
		}
		if b.AsInt() == 0 {
			return Value{}, failf("modulo", "division by zero")
		}
		return IntVal(a.AsInt() % b.AsInt()), nil
	})

	binary("eq", func(rt *Runtime, args []Value) (Value, error) {
		return BoolVal(args[0].Equals(args[1])), nil
	})
	binary("neq", func(rt *Runtime, args []Value) (Value, error) {
		return BoolVal(!args[0].Equals(args[1])), nil
	})

	compare := func(name string, cmp func(int) bool) {
		binary(name, func(rt *Runtime, args []Value) (Value, error) {
			a, b := args[0], args[1]
			if bothNumeric(a, b) {
				fa, fb := asFloat(a), asFloat(b)
				switch {
				case fa < fb:
					return BoolVal(cmp(-1)), nil
				case fa > fb:
					return BoolVal(cmp(1)), nil
				default:
					return BoolVal(cmp(0)), nil
				}
			}
			if sa, ok := a.AsString(); ok {
				if sb, ok := b.AsString(); ok {
					return BoolVal(cmp(strings.Compare(sa, sb))), nil
				}
			}
			return Value{}, typeMismatch("%s expects two numbers or two strings, got %s and %s", name, a.TypeName(), b.TypeName())
		})
	}
	compare("lt", func(c int) bool { return c < 0 })
	compare("gt", func(c int) bool { return c > 0 })
	compare("le", func(c int) bool { return c <= 0 })
	compare("ge", func(c int) bool { return c >= 0 })

	boolArg := func(name string, v Value) (bool, error) {
		if v.Type != ValBool {
			return false, typeMismatch("%s expects booleans, got %s", name, v.TypeName())
		}
		return v.AsBool(), nil
	}
	binary("and", func(rt *Runtime, args []Value) (Value, error) {
		a, err := boolArg("and", args[0])
		if err != nil {
			return Value{}, err
		}
		b, err := boolArg("and", args[1])
		if err != nil {
			return Value{}, err
		}
		return BoolVal(a && b), nil
	})
	binary("or", func(rt *Runtime, args []Value) (Value, error) {
		a, err := boolArg("or", args[0])
		if err != nil {
			return Value{}, err
		}
		b, err := boolArg("or", args[1])
		if err != nil {
			return Value{}, err
		}
		return BoolVal(a || b), nil
	})

	r.Register(&Intrinsic{Name: "not", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		if args[0].Type != ValBool {
			return Value{}, typeMismatch("not expects a boolean, got %s", args[0].TypeName())
		}
		return BoolVal(!args[0].AsBool()), nil
	}})

	r.Register(&Intrinsic{Name: "neg", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		switch args[0].Type {
		case ValInt:
			return IntVal(-args[0].AsInt()), nil
		case ValFloat:
			return FloatVal(-args[0].AsFloat()), nil
		}
		return Value{}, typeMismatch("neg expects a number, got %s", args[0].TypeName())
	}})

	r.Register(&Intrinsic{Name: "bnot", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		if args[0].Type != ValInt {
			return Value{}, typeMismatch("bnot expects an integer, got %s", args[0].TypeName())
		}
		return IntVal(^args[0].AsInt()), nil
	}})
}

func registerCore(r *Registry) {
	r.Register(&Intrinsic{Name: "print", Arity: Variadic, Handler: func(rt *Runtime, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.Inspect()
		}
		fmt.Fprintln(rt.Out, strings.Join(parts, " "))
		return UnitVal(), nil
	}})

	r.Register(&Intrinsic{Name: "len", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		switch o := args[0].Obj.(type) {
		case *StringObj:
			return IntVal(int64(len(o.Val))), nil
		case *ListObj:
			return IntVal(int64(len(o.Items))), nil
		case *StructObj:
			return IntVal(int64(len(o.Fields))), nil
		case *BufferObj:
			return IntVal(int64(len(o.Bytes))), nil
		}
		return Value{}, typeMismatch("len expects a string, list, struct or buffer, got %s", args[0].TypeName())
	}})

	r.Register(&Intrinsic{Name: "type", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		return StringVal(args[0].TypeName()), nil
	}})

	r.Register(&Intrinsic{Name: "str", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		return StringVal(args[0].Inspect()), nil
	}})

	r.Register(&Intrinsic{Name: "int", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		switch args[0].Type {
		case ValInt:
			return args[0], nil
		case ValFloat:
			return IntVal(int64(args[0].AsFloat())), nil
		case ValBool:
			if args[0].AsBool() {
				return IntVal(1), nil
			}
			return IntVal(0), nil
		}
		if s, ok := args[0].AsString(); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return Value{}, failf("int", "cannot parse %q as integer", s)
			}
			return IntVal(n), nil
		}
		return Value{}, typeMismatch("int cannot convert %s", args[0].TypeName())
	}})

	r.Register(&Intrinsic{Name: "float", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		switch args[0].Type {
		case ValInt:
			return FloatVal(float64(args[0].AsInt())), nil
		case ValFloat:
			return args[0], nil
		}
		if s, ok := args[0].AsString(); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return Value{}, failf("float", "cannot parse %q as float", s)
			}
			return FloatVal(f), nil
		}
		return Value{}, typeMismatch("float cannot convert %s", args[0].TypeName())
	}})

	// range materializes an integer range into a list; the compiler calls
	// it for `a..b` outside for-loops (loops lower to a counting while).
	r.Register(&Intrinsic{Name: "range", Arity: Variadic, Handler: func(rt *Runtime, args []Value) (Value, error) {
		if len(args) != 2 && len(args) != 3 {
			return Value{}, failf("range", "expects 2 or 3 arguments, got %d", len(args))
		}
		if args[0].Type != ValInt || args[1].Type != ValInt {
			return Value{}, typeMismatch("range expects integer bounds, got %s and %s", args[0].TypeName(), args[1].TypeName())
		}
		lo, hi := args[0].AsInt(), args[1].AsInt()
		if len(args) == 3 {
			if args[2].Type != ValBool {
				return Value{}, typeMismatch("range inclusive flag must be a boolean, got %s", args[2].TypeName())
			}
			if args[2].AsBool() {
				hi++
			}
		}
		items := make([]Value, 0, max64(0, hi-lo))
		for i := lo; i < hi; i++ {
			items = append(items, IntVal(i))
		}
		return ObjVal(&ListObj{Items: items}), nil
	}})

	// iter.get indexes any iterable uniformly; the for-in lowering uses it
	// so one code shape covers lists, strings and buffers.
	r.Register(&Intrinsic{Name: "iter.get", Arity: 2, Handler: func(rt *Runtime, args []Value) (Value, error) {
		if args[1].Type != ValInt {
			return Value{}, typeMismatch("iter.get index must be an integer, got %s", args[1].TypeName())
		}
		i := args[1].AsInt()
		switch o := args[0].Obj.(type) {
		case *ListObj:
			if i < 0 || i >= int64(len(o.Items)) {
				return Value{}, failf("iter.get", "index %d out of range (length %d)", i, len(o.Items))
			}
			return o.Items[i], nil
		case *StringObj:
			runes := []rune(o.Val)
			if i < 0 || i >= int64(len(runes)) {
				return Value{}, failf("iter.get", "index %d out of range (length %d)", i, len(runes))
			}
			return StringVal(string(runes[i])), nil
		case *BufferObj:
			if i < 0 || i >= int64(len(o.Bytes)) {
				return Value{}, failf("iter.get", "index %d out of range (length %d)", i, len(o.Bytes))
			}
			return IntVal(int64(o.Bytes[i])), nil
		}
		return Value{}, typeMismatch("iter.get expects a list, string or buffer, got %s", args[0].TypeName())
	}})
}

func registerCollections(r *Registry) {
	r.Register(&Intrinsic{Name: "list.get", Arity: 2, Handler: func(rt *Runtime, args []Value) (Value, error) {
		l, ok := args[0].Obj.(*ListObj)
		if !ok || args[0].Type != ValObj {
			return Value{}, typeMismatch("list.get expects a list, got %s", args[0].TypeName())
		}
		if args[1].Type != ValInt {
			return Value{}, typeMismatch("list.get index must be an integer, got %s", args[1].TypeName())
		}
		i := args[1].AsInt()
		if i < 0 || i >= int64(len(l.Items)) {
			return Value{}, failf("list.get", "index %d out of range (length %d)", i, len(l.Items))
		}
		return l.Items[i], nil
	}})

	r.Register(&Intrinsic{Name: "list.set", Arity: 3, Consumes: []int{0}, ReturnsFreshLinear: true,
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			l, ok := args[0].Obj.(*ListObj)
			if !ok || args[0].Type != ValObj {
				return Value{}, typeMismatch("list.set expects a list, got %s", args[0].TypeName())
			}
			if args[1].Type != ValInt {
				return Value{}, typeMismatch("list.set index must be an integer, got %s", args[1].TypeName())
			}
			i := args[1].AsInt()
			if i < 0 || i >= int64(len(l.Items)) {
				return Value{}, failf("list.set", "index %d out of range (length %d)", i, len(l.Items))
			}
			l.Items[i] = args[2]
			return args[0], nil
		}})

	r.Register(&Intrinsic{Name: "list.append", Arity: 2, Consumes: []int{0}, ReturnsFreshLinear: true,
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			l, ok := args[0].Obj.(*ListObj)
			if !ok || args[0].Type != ValObj {
				return Value{}, typeMismatch("list.append expects a list, got %s", args[0].TypeName())
			}
			l.Items = append(l.Items, args[1])
			return args[0], nil
		}})

	r.Register(&Intrinsic{Name: "list.length", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		l, ok := args[0].Obj.(*ListObj)
		if !ok || args[0].Type != ValObj {
			return Value{}, typeMismatch("list.length expects a list, got %s", args[0].TypeName())
		}
		return IntVal(int64(len(l.Items))), nil
	}})

	r.Register(&Intrinsic{Name: "struct.get", Arity: 2, Handler: func(rt *Runtime, args []Value) (Value, error) {
		s, name, err := structAndField("struct.get", args)
		if err != nil {
			return Value{}, err
		}
		v, ok := s.Fields[name]
		if !ok {
			return Value{}, failf("struct.get", "no such field %q", name)
		}
		return v, nil
	}})

	r.Register(&Intrinsic{Name: "struct.set", Arity: 3, Consumes: []int{0}, ReturnsFreshLinear: true,
		Handler: func(rt *Runtime, args []Value) (Value, error) {
			s, name, err := structAndField("struct.set", args)
			if err != nil {
				return Value{}, err
			}
			if _, ok := s.Fields[name]; !ok {
				s.Order = append(s.Order, name)
			}
			s.Fields[name] = args[2]
			return args[0], nil
		}})

	r.Register(&Intrinsic{Name: "struct.has", Arity: 2, Handler: func(rt *Runtime, args []Value) (Value, error) {
		s, name, err := structAndField("struct.has", args)
		if err != nil {
			return Value{}, err
		}
		_, ok := s.Fields[name]
		return BoolVal(ok), nil
	}})
}

func structAndField(name string, args []Value) (*StructObj, string, error) {
	s, ok := args[0].Obj.(*StructObj)
	if !ok || args[0].Type != ValObj {
		return nil, "", typeMismatch("%s expects a struct, got %s", name, args[0].TypeName())
	}
	field, ok := args[1].AsString()
	if !ok {
		return nil, "", typeMismatch("%s field name must be a string, got %s", name, args[1].TypeName())
	}
	return s, field, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
