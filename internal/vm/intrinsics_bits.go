package vm

import (
	"github.com/funvibe/funbit/pkg/funbit"
)

// registerSysBits wires Erlang-style bitstring construction and matching
// over the linear Buffer type: sys.bits.pack builds a buffer from integer
// and string segments, sys.bits.unpack destructures one against a segment
// pattern, sys.bits.dump renders the Erlang <<...>> form.
func registerSysBits(r *Registry) {
	r.Register(&Intrinsic{Name: "sys.bits.pack", Arity: 1, Handler: bitsPack})
	r.Register(&Intrinsic{Name: "sys.bits.unpack", Arity: 2, Handler: bitsUnpack})

	r.Register(&Intrinsic{Name: "sys.bits.dump", Arity: 1, Handler: func(rt *Runtime, args []Value) (Value, error) {
		buf, err := bitsBuffer("sys.bits.dump", args[0])
		if err != nil {
			return Value{}, err
		}
		return StringVal(funbit.ToErlangFormat(funbit.NewBitStringFromBytes(buf.Bytes))), nil
	}})
}

// bitsPack builds a buffer from a list of segment structs. An integer
// segment is {value, size?, signed?, endian?} (size in bits, default 8); a
// string value becomes a binary segment.
func bitsPack(rt *Runtime, args []Value) (Value, error) {
	segs, err := bitsSegments("sys.bits.pack", args[0])
	if err != nil {
		return Value{}, err
	}

	b := funbit.NewBuilder()
	for i, seg := range segs {
		v, has := seg.Fields["value"]
		if !has {
			return Value{}, failf("sys.bits.pack", "segment %d has no value field", i)
		}
		if s, isStr := v.AsString(); isStr {
			funbit.AddBinary(b, []byte(s))
			continue
		}
		if v.Type != ValInt {
			return Value{}, typeMismatch("sys.bits.pack segment %d value must be an integer or string, got %s", i, v.TypeName())
		}
		opts, oerr := bitsOptions("sys.bits.pack", i, seg)
		if oerr != nil {
			return Value{}, oerr
		}
		funbit.AddInteger(b, v.AsInt(), opts...)
	}

	bs, berr := funbit.Build(b)
	if berr != nil {
		return Value{}, failf("sys.bits.pack", "%v", berr)
	}
	buf := &BufferObj{Bytes: bs.ToBytes()}
	buf.TrackerID = rt.Tracker.Register("buffer", nil)
	return ObjVal(buf), nil
}

// bitsUnpack matches a buffer against a list of integer segment specs
// ({size?, signed?, endian?}) and returns the extracted integers.
func bitsUnpack(rt *Runtime, args []Value) (Value, error) {
	buf, err := bitsBuffer("sys.bits.unpack", args[0])
	if err != nil {
		return Value{}, err
	}
	segs, err := bitsSegments("sys.bits.unpack", args[1])
	if err != nil {
		return Value{}, err
	}

	m := funbit.NewMatcher()
	vals := make([]int, len(segs))
	for i, seg := range segs {
		opts, oerr := bitsOptions("sys.bits.unpack", i, seg)
		if oerr != nil {
			return Value{}, oerr
		}
		funbit.Integer(m, &vals[i], opts...)
	}

	if _, merr := funbit.Match(m, funbit.NewBitStringFromBytes(buf.Bytes)); merr != nil {
		return Value{}, failf("sys.bits.unpack", "%v", merr)
	}
	items := make([]Value, len(vals))
	for i, v := range vals {
		items[i] = IntVal(int64(v))
	}
	return ObjVal(&ListObj{Items: items}), nil
}

func bitsBuffer(name string, v Value) (*BufferObj, error) {
	buf, ok := v.Obj.(*BufferObj)
	if v.Type != ValObj || !ok {
		return nil, typeMismatch("%s expects a buffer, got %s", name, v.TypeName())
	}
	if buf.Freed {
		return nil, failf(name, "buffer already freed")
	}
	return buf, nil
}

func bitsSegments(name string, v Value) ([]*StructObj, error) {
	list, ok := v.Obj.(*ListObj)
	if v.Type != ValObj || !ok {
		return nil, typeMismatch("%s expects a list of segment structs, got %s", name, v.TypeName())
	}
	out := make([]*StructObj, len(list.Items))
	for i, it := range list.Items {
		s, isStruct := it.Obj.(*StructObj)
		if it.Type != ValObj || !isStruct {
			return nil, typeMismatch("%s segment %d must be a struct, got %s", name, i, it.TypeName())
		}
		out[i] = s
	}
	return out, nil
}

func bitsOptions(name string, i int, seg *StructObj) ([]funbit.SegmentOption, error) {
	opts := []funbit.SegmentOption{}
	if sz, has := seg.Fields["size"]; has {
		if sz.Type != ValInt || sz.AsInt() <= 0 {
			return nil, typeMismatch("%s segment %d size must be a positive integer, got %s", name, i, sz.Inspect())
		}
		opts = append(opts, funbit.WithSize(uint(sz.AsInt())))
	} else {
		opts = append(opts, funbit.WithSize(8))
	}
	if sg, has := seg.Fields["signed"]; has {
		if sg.Type != ValBool {
			return nil, typeMismatch("%s segment %d signed flag must be a boolean, got %s", name, i, sg.TypeName())
		}
		opts = append(opts, funbit.WithSigned(sg.AsBool()))
	}
	if en, has := seg.Fields["endian"]; has {
		s, isStr := en.AsString()
		if !isStr || (s != "big" && s != "little" && s != "native") {
			return nil, typeMismatch("%s segment %d endian must be \"big\", \"little\" or \"native\"", name, i)
		}
		opts = append(opts, funbit.WithEndianness(s))
	}
	return opts, nil
}
