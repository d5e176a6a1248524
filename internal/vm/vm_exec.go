package vm

import (
	"github.com/arclang/arc/internal/diagnostics"
)

// exec is the fetch-decode-execute loop (spec §4.5). It runs the top frame
// until the outermost RET, routing runtime errors through any armed
// try/catch region first.
func (vm *VM) exec() (Value, error) {
	for {
		// Cancellation and watchdog are checked at every instruction
		// boundary; both are terminal and bypass catch handlers (spec §5).
		if vm.shouldStop.Load() {
			f := vm.topFrame()
			if vm.timedOut.Load() {
				return Value{}, vm.runtimeError(diagnostics.Timeout, f.chunk.pos(f.ip), vm.limits.ExecTimeout)
			}
			return Value{}, vm.runtimeError(diagnostics.Cancelled, f.chunk.pos(f.ip))
		}
		vm.steps++
		if vm.limits.MaxSteps > 0 && vm.steps > vm.limits.MaxSteps {
			f := vm.topFrame()
			return Value{}, vm.runtimeError(diagnostics.StepLimitExceeded, f.chunk.pos(f.ip), vm.limits.MaxSteps)
		}
		if vm.debugger != nil {
			vm.debugger.check(vm)
		}

		done, result, err := vm.step()
		if err != nil {
			if handled := vm.dispatchToRegion(err); handled {
				continue
			}
			return Value{}, err
		}
		if done {
			return result, nil
		}
	}
}

func (vm *VM) topFrame() *frame {
	return &vm.frames[len(vm.frames)-1]
}

// step executes one instruction. done is true when the outermost frame
// returned; result is then the program's value.
func (vm *VM) step() (done bool, result Value, err error) {
	f := vm.topFrame()
	chunk := f.chunk
	if f.ip >= len(chunk.Code) {
		return false, Value{}, vm.runtimeError(diagnostics.Code("TruncatedBytecode"), chunk.pos(f.ip))
	}
	opAt := f.ip
	op := Opcode(chunk.Code[f.ip])
	f.ip++

	pos := func() diagPos { return diagPos{chunk: chunk, at: opAt} }

	switch op {
	case OP_CONST:
		idx := chunk.readU16(f.ip)
		f.ip += 2
		if idx >= len(chunk.Constants) {
			return false, Value{}, vm.errAt(pos(), diagnostics.Code("InvalidConstantIndex"))
		}
		_ = vm.push(chunk.Constants[idx])

	case OP_POP:
		if _, ok := vm.pop(); !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}

	case OP_DUP:
		v, ok := vm.peek()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		_ = vm.push(v)

	case OP_SWAP:
		if vm.sp < 2 {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		vm.stack[vm.sp-1], vm.stack[vm.sp-2] = vm.stack[vm.sp-2], vm.stack[vm.sp-1]

	case OP_LOAD:
		name := vm.constName(chunk, f.ip)
		f.ip += 2
		v, ok := f.scope.Take(name)
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.VariableNotFound, name)
		}
		_ = vm.push(v)

	case OP_LOAD_KEEP:
		name := vm.constName(chunk, f.ip)
		f.ip += 2
		v, ok := f.scope.Get(name)
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.VariableNotFound, name)
		}
		_ = vm.push(v)

	case OP_STORE:
		name := vm.constName(chunk, f.ip)
		f.ip += 2
		v, ok := vm.pop()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		f.scope.Define(name, v)

	case OP_ASSIGN:
		name := vm.constName(chunk, f.ip)
		f.ip += 2
		v, ok := vm.pop()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		f.scope.Assign(name, v)

	case OP_GET_FIELD, OP_GET_FIELD_OPT:
		name := vm.constName(chunk, f.ip)
		f.ip += 2
		v, ok := vm.pop()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		if v.IsUnit() && op == OP_GET_FIELD_OPT {
			_ = vm.push(UnitVal())
			break
		}
		field, err := getField(v, name)
		if err != nil {
			return false, Value{}, vm.errAt(pos(), diagnostics.NoSuchField, name)
		}
		_ = vm.push(field)

	case OP_SET_FIELD:
		name := vm.constName(chunk, f.ip)
		f.ip += 2
		val, ok1 := vm.pop()
		target, ok2 := vm.pop()
		if !ok1 || !ok2 {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		s, isStruct := target.Obj.(*StructObj)
		if target.Type != ValObj || !isStruct {
			return false, Value{}, vm.errAt(pos(), diagnostics.TypeMismatch, "field assignment target is "+target.TypeName()+", not a struct")
		}
		// Copy-then-rebind: the updated struct is a fresh owner, so other
		// aliases of a shared struct keep observing the old value.
		cp := s.Clone()
		if _, has := cp.Fields[name]; !has {
			cp.Order = append(cp.Order, name)
		}
		cp.Fields[name] = val
		_ = vm.push(ObjVal(cp))

	case OP_INDEX:
		idx, ok1 := vm.pop()
		obj, ok2 := vm.pop()
		if !ok1 || !ok2 {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		v, ierr := indexValue(obj, idx)
		if ierr != nil {
			return false, Value{}, vm.reanchor(ierr, pos())
		}
		_ = vm.push(v)

	case OP_SET_INDEX:
		val, ok1 := vm.pop()
		idx, ok2 := vm.pop()
		obj, ok3 := vm.pop()
		if !ok1 || !ok2 || !ok3 {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		out, ierr := setIndexValue(obj, idx, val)
		if ierr != nil {
			return false, Value{}, vm.reanchor(ierr, pos())
		}
		_ = vm.push(out)

	case OP_MAKE_LIST:
		n := chunk.readU16(f.ip)
		f.ip += 2
		if vm.sp < n {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		items := make([]Value, n)
		copy(items, vm.stack[vm.sp-n:vm.sp])
		vm.sp -= n
		if aerr := vm.chargeAlloc(int64(24*n+24), chunk.pos(opAt)); aerr != nil {
			return false, Value{}, aerr
		}
		_ = vm.push(ObjVal(&ListObj{Items: items}))

	case OP_MAKE_STRUCT:
		typeName := vm.constName(chunk, f.ip)
		f.ip += 2
		n := chunk.readU16(f.ip)
		f.ip += 2
		if vm.sp < 2*n {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		s := &StructObj{Name: typeName, Fields: make(map[string]Value, n)}
		base := vm.sp - 2*n
		for i := 0; i < n; i++ {
			key, _ := vm.stack[base+2*i].AsString()
			s.Order = append(s.Order, key)
			s.Fields[key] = vm.stack[base+2*i+1]
		}
		vm.sp = base
		if aerr := vm.chargeAlloc(int64(48*n+48), chunk.pos(opAt)); aerr != nil {
			return false, Value{}, aerr
		}
		_ = vm.push(ObjVal(s))

	case OP_MAKE_ENUM:
		enumName := vm.constName(chunk, f.ip)
		f.ip += 2
		variant := vm.constName(chunk, f.ip)
		f.ip += 2
		arity := int(chunk.Code[f.ip])
		f.ip++
		if vm.sp < arity {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		payload := make([]Value, arity)
		copy(payload, vm.stack[vm.sp-arity:vm.sp])
		vm.sp -= arity
		_ = vm.push(ObjVal(&EnumObj{EnumName: enumName, VariantName: variant, Payload: payload}))

	case OP_MAKE_FUNC:
		idx := chunk.readU16(f.ip)
		f.ip += 2
		proto, ok := chunk.Constants[idx].Obj.(*CompiledFunction)
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.Code("InvalidConstantIndex"))
		}
		_ = vm.push(ObjVal(&FunctionObj{Proto: proto, Env: f.scope}))

	case OP_JMP:
		off := chunk.readU16(f.ip)
		f.ip += 2 + off

	case OP_LOOP:
		off := chunk.readU16(f.ip)
		f.ip += 2
		f.ip -= off

	case OP_JMP_IF_FALSE:
		off := chunk.readU16(f.ip)
		f.ip += 2
		cond, ok := vm.pop()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		truthy, terr := vm.truthiness(cond)
		if terr != nil {
			return false, Value{}, vm.reanchor(terr, pos())
		}
		if !truthy {
			f.ip += off
		}

	case OP_MATCH_TAG:
		pattern := vm.constName(chunk, f.ip)
		f.ip += 2
		off := chunk.readU16(f.ip)
		f.ip += 2
		top, ok := vm.peek()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		ev, isEnum := top.Obj.(*EnumObj)
		if isEnum && top.Type == ValObj && ev.EnumName+"."+ev.VariantName == pattern {
			vm.sp--
			for _, p := range ev.Payload {
				_ = vm.push(p)
			}
		} else {
			f.ip += off
		}

	case OP_CALL:
		argc := int(chunk.Code[f.ip])
		f.ip++
		if cerr := vm.callValue(argc, pos()); cerr != nil {
			return false, Value{}, cerr
		}

	case OP_CALL_METHOD:
		name := vm.constName(chunk, f.ip)
		f.ip += 2
		argc := int(chunk.Code[f.ip])
		f.ip++
		if cerr := vm.callMethod(name, argc, pos()); cerr != nil {
			return false, Value{}, cerr
		}

	case OP_RET:
		ret, ok := vm.pop()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		vm.frames = vm.frames[:len(vm.frames)-1]
		// A return from inside a try block leaves its region armed with no
		// TRY_POP; drop entries belonging to the departed frame so later
		// errors cannot unwind into it.
		for len(vm.tries) > 0 && vm.tries[len(vm.tries)-1].frameIdx >= len(vm.frames) {
			vm.tries = vm.tries[:len(vm.tries)-1]
		}
		if len(vm.frames) == 0 {
			return true, ret, nil
		}
		vm.sp = f.baseSP
		_ = vm.push(ret)

	case OP_ENTER_SCOPE:
		f.scope = NewScope(f.scope)

	case OP_EXIT_SCOPE:
		if f.scope.parent != nil {
			f.scope = f.scope.parent
		}

	case OP_TRY_PUSH:
		idx := chunk.readU16(f.ip)
		f.ip += 2
		vm.tries = append(vm.tries, tryEntry{
			frameIdx: len(vm.frames) - 1,
			sp:       vm.sp,
			scope:    f.scope,
			region:   chunk.Regions[idx],
			chunk:    chunk,
		})

	case OP_TRY_POP:
		if len(vm.tries) > 0 {
			vm.tries = vm.tries[:len(vm.tries)-1]
		}

	case OP_PRINT:
		v, ok := vm.pop()
		if !ok {
			return false, Value{}, vm.errAt(pos(), diagnostics.StackUnderflow)
		}
		printLine(vm.out, v)

	default:
		return false, Value{}, vm.errAt(pos(), diagnostics.Code("UnknownOpcode"))
	}
	return false, Value{}, nil
}

// truthiness enforces strict boolean conditions; the lenient configuration
// flag additionally accepts Unit and Integer(0) as false (spec §9 Open
// Question resolution).
func (vm *VM) truthiness(v Value) (bool, *diagnostics.Error) {
	if v.Type == ValBool {
		return v.AsBool(), nil
	}
	if vm.lenient {
		if v.IsUnit() {
			return false, nil
		}
		if v.Type == ValInt {
			return v.AsInt() != 0, nil
		}
		return true, nil
	}
	return false, diagnostics.New(diagnostics.PhaseRuntime, diagnostics.TypeMismatch, positionZero, "condition is "+v.TypeName()+", not Boolean")
}

// diagPos defers source-position formatting until an error actually needs it.
type diagPos struct {
	chunk *Chunk
	at    int
}

func (vm *VM) errAt(p diagPos, code diagnostics.Code, args ...interface{}) *diagnostics.Error {
	return vm.runtimeError(code, p.chunk.pos(p.at), args...)
}

// reanchor fills in the faulting instruction's position on errors built
// deeper down without one.
func (vm *VM) reanchor(e *diagnostics.Error, p diagPos) *diagnostics.Error {
	if e.Pos.Line == 0 {
		e.Pos = p.chunk.pos(p.at)
	}
	if len(e.Frames) == 0 {
		withTrace := vm.runtimeError(e.Code, e.Pos, e.Args...)
		withTrace.Args = e.Args
		return withTrace
	}
	return e
}

func (vm *VM) constName(chunk *Chunk, operandAt int) string {
	idx := chunk.readU16(operandAt)
	if idx < len(chunk.Constants) {
		if s, ok := chunk.Constants[idx].AsString(); ok {
			return s
		}
	}
	return ""
}

func getField(v Value, name string) (Value, error) {
	switch o := v.Obj.(type) {
	case *StructObj:
		if v.Type == ValObj {
			if field, ok := o.Fields[name]; ok {
				return field, nil
			}
		}
	}
	return Value{}, diagnostics.New(diagnostics.PhaseRuntime, diagnostics.NoSuchField, positionZero, name)
}

func indexValue(obj, idx Value) (Value, *diagnostics.Error) {
	switch o := obj.Obj.(type) {
	case *ListObj:
		if idx.Type != ValInt {
			return Value{}, typeMismatch("list index must be an integer, got %s", idx.TypeName())
		}
		i := idx.AsInt()
		if i < 0 || i >= int64(len(o.Items)) {
			return Value{}, failf("index", "index %d out of range (length %d)", i, len(o.Items))
		}
		return o.Items[i], nil
	case *StringObj:
		if idx.Type != ValInt {
			return Value{}, typeMismatch("string index must be an integer, got %s", idx.TypeName())
		}
		runes := []rune(o.Val)
		i := idx.AsInt()
		if i < 0 || i >= int64(len(runes)) {
			return Value{}, failf("index", "index %d out of range (length %d)", i, len(runes))
		}
		return StringVal(string(runes[i])), nil
	case *BufferObj:
		if idx.Type != ValInt {
			return Value{}, typeMismatch("buffer index must be an integer, got %s", idx.TypeName())
		}
		i := idx.AsInt()
		if i < 0 || i >= int64(len(o.Bytes)) {
			return Value{}, failf("index", "index %d out of range (length %d)", i, len(o.Bytes))
		}
		return IntVal(int64(o.Bytes[i])), nil
	case *StructObj:
		key, ok := idx.AsString()
		if !ok {
			return Value{}, typeMismatch("struct index must be a string, got %s", idx.TypeName())
		}
		v, has := o.Fields[key]
		if !has {
			return Value{}, diagnostics.New(diagnostics.PhaseRuntime, diagnostics.NoSuchField, positionZero, key)
		}
		return v, nil
	}
	return Value{}, typeMismatch("%s is not indexable", obj.TypeName())
}

// setIndexValue rebuilds the container with one element replaced,
// preserving copy-then-rebind value semantics for shared aliases.
func setIndexValue(obj, idx, val Value) (Value, *diagnostics.Error) {
	switch o := obj.Obj.(type) {
	case *ListObj:
		if idx.Type != ValInt {
			return Value{}, typeMismatch("list index must be an integer, got %s", idx.TypeName())
		}
		i := idx.AsInt()
		if i < 0 || i >= int64(len(o.Items)) {
			return Value{}, failf("index", "index %d out of range (length %d)", i, len(o.Items))
		}
		items := append([]Value(nil), o.Items...)
		items[i] = val
		return ObjVal(&ListObj{Items: items}), nil
	case *StructObj:
		key, ok := idx.AsString()
		if !ok {
			return Value{}, typeMismatch("struct index must be a string, got %s", idx.TypeName())
		}
		cp := o.Clone()
		if _, has := cp.Fields[key]; !has {
			cp.Order = append(cp.Order, key)
		}
		cp.Fields[key] = val
		return ObjVal(cp), nil
	case *BufferObj:
		if idx.Type != ValInt || val.Type != ValInt {
			return Value{}, typeMismatch("buffer element assignment expects integer index and byte")
		}
		i, b := idx.AsInt(), val.AsInt()
		if i < 0 || i >= int64(len(o.Bytes)) {
			return Value{}, failf("index", "index %d out of range (length %d)", i, len(o.Bytes))
		}
		if b < 0 || b > 255 {
			return Value{}, failf("index", "byte value %d out of range", b)
		}
		o.Bytes[i] = byte(b)
		return obj, nil
	}
	return Value{}, typeMismatch("%s is not indexable", obj.TypeName())
}
