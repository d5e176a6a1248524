package vm

import (
	"fmt"
	"io"

	"github.com/arclang/arc/internal/diagnostics"
)

// callValue implements OP_CALL dispatch (spec §4.5): the callee sits under
// argc arguments on the stack. A Function value gets a new frame; a String
// naming an intrinsic dispatches its native handler.
func (vm *VM) callValue(argc int, p diagPos) *diagnostics.Error {
	if vm.sp < argc+1 {
		return vm.errAt(p, diagnostics.StackUnderflow)
	}
	callee := vm.stack[vm.sp-argc-1]

	if callee.Type == ValObj {
		if fn, ok := callee.Obj.(*FunctionObj); ok {
			return vm.callFunction(fn, argc, p)
		}
	}
	if name, ok := callee.AsString(); ok {
		return vm.callIntrinsic(name, argc, p)
	}
	return vm.errAt(p, diagnostics.NotExecutable, callee.TypeName())
}

// callMethod implements OP_CALL_METHOD: resolve Type.name against the
// receiver's runtime type, then a plain name binding, then an intrinsic.
func (vm *VM) callMethod(name string, argc int, p diagPos) *diagnostics.Error {
	if vm.sp < argc+1 {
		return vm.errAt(p, diagnostics.StackUnderflow)
	}
	recv := vm.stack[vm.sp-argc-1]
	scope := vm.topFrame().scope

	var callee Value
	if v, ok := scope.Get(recv.TypeName() + "." + name); ok {
		callee = v
	} else if v, ok := methodField(recv, name); ok {
		// A struct-shaped namespace (an imported module) carries its
		// members as fields; recv.member(args) calls the member without
		// inserting the namespace as an argument: the receiver slot simply
		// becomes the callee slot.
		vm.stack[vm.sp-argc-1] = v
		return vm.callValue(argc, p)
	} else if v, ok := scope.Get(name); ok {
		callee = v
	} else if _, ok := vm.registry.Lookup(name); ok {
		callee = StringVal(name)
	} else {
		return vm.errAt(p, diagnostics.FunctionNotFound, name)
	}

	// Insert the callee under the receiver: [recv, args...] becomes
	// [callee, recv, args...], the OP_CALL layout with the receiver as
	// first argument.
	_ = vm.push(Value{})
	copy(vm.stack[vm.sp-argc-1:vm.sp], vm.stack[vm.sp-argc-2:vm.sp-1])
	vm.stack[vm.sp-argc-2] = callee
	return vm.callValue(argc+1, p)
}

// methodField resolves name against a struct receiver's fields when the
// field holds something callable.
func methodField(recv Value, name string) (Value, bool) {
	s, ok := recv.Obj.(*StructObj)
	if recv.Type != ValObj || !ok {
		return Value{}, false
	}
	v, has := s.Fields[name]
	if !has {
		return Value{}, false
	}
	if _, isFn := v.Obj.(*FunctionObj); v.Type == ValObj && isFn {
		return v, true
	}
	return Value{}, false
}

func (vm *VM) callFunction(fn *FunctionObj, argc int, p diagPos) *diagnostics.Error {
	if vm.limits.MaxStackDepth > 0 && len(vm.frames) >= vm.limits.MaxStackDepth {
		return vm.errAt(p, diagnostics.RecursionLimitExceeded, vm.limits.MaxStackDepth)
	}
	// Trust enforcement happens before any instruction of the callee runs
	// (spec §8 property 8); Sandboxed adds the intrinsic deny-list on top
	// of the same check. Either the chunk hash or the MAST identity may
	// appear in the trusted set.
	if vm.security != SecurityUnrestricted && !vm.isTrusted(fn.Proto) {
		return vm.errAt(p, diagnostics.UntrustedCode, fn.Proto.Name)
	}
	if len(fn.Proto.Params) != argc {
		return vm.errAt(p, diagnostics.TypeMismatch,
			fmt.Sprintf("%s expects %d arguments, got %d", fn.Proto.Name, len(fn.Proto.Params), argc))
	}

	// Remove the callee from under the arguments; the callee's prologue
	// stores the arguments into its fresh scope.
	base := vm.sp - argc - 1
	copy(vm.stack[base:vm.sp-1], vm.stack[base+1:vm.sp])
	vm.sp--

	vm.frames = append(vm.frames, frame{
		fn:     fn,
		chunk:  fn.Proto.Chunk,
		baseSP: base,
		scope:  NewScope(fn.Env),
	})
	return nil
}

func (vm *VM) isTrusted(proto *CompiledFunction) bool {
	if vm.trusted == nil {
		return false
	}
	if vm.trusted[proto.Chunk.HashHex()] {
		return true
	}
	return vm.trusted[fmt.Sprintf("%x", proto.MastHash)]
}

func (vm *VM) callIntrinsic(name string, argc int, p diagPos) *diagnostics.Error {
	in, ok := vm.registry.Lookup(name)
	if !ok {
		return vm.errAt(p, diagnostics.FunctionNotFound, name)
	}
	if vm.security == SecuritySandboxed && sandboxDenied[name] {
		return vm.errAt(p, diagnostics.CapabilityDenied, name, "sandbox")
	}
	for _, cap := range in.Requires {
		if !vm.rt.HasCapability(cap) {
			return vm.errAt(p, diagnostics.CapabilityDenied, name, string(cap))
		}
	}
	if in.Arity != Variadic && in.Arity != argc {
		return vm.errAt(p, diagnostics.TypeMismatch,
			fmt.Sprintf("%s expects %d arguments, got %d", name, in.Arity, argc))
	}

	// Move the arguments out of the stack: after this point the only
	// owner of a linear argument is the in-flight intrinsic (spec
	// invariant 5c); the handler must not retain it past return.
	args := make([]Value, argc)
	copy(args, vm.stack[vm.sp-argc:vm.sp])
	vm.sp -= argc + 1 // arguments plus the callee name

	result, err := in.Handler(vm.rt, args)
	if err != nil {
		if derr, ok := err.(*diagnostics.Error); ok {
			return vm.reanchor(derr, p)
		}
		return vm.errAt(p, diagnostics.IntrinsicFailure, name, err.Error())
	}
	_ = vm.push(result)
	return nil
}

// dispatchToRegion routes a runtime error to the innermost armed try/catch
// region (spec §7): unwind frames and stack to the region's saved state,
// bind the error description, continue at the handler. Cancelled and
// Timeout are terminal and never handled here (the exec loop returns them
// before an error can reach this path).
func (vm *VM) dispatchToRegion(err error) bool {
	derr, ok := err.(*diagnostics.Error)
	if !ok {
		return false
	}
	switch derr.Code {
	case diagnostics.Cancelled, diagnostics.Timeout,
		diagnostics.StepLimitExceeded, diagnostics.RecursionLimitExceeded:
		// Resource-budget errors unwound through handlers would let a
		// catch loop burn the budget again; they end the run.
		return false
	}
	if len(vm.tries) == 0 {
		return false
	}
	t := vm.tries[len(vm.tries)-1]
	vm.tries = vm.tries[:len(vm.tries)-1]

	vm.frames = vm.frames[:t.frameIdx+1]
	f := vm.topFrame()
	f.scope = t.scope
	f.ip = t.region.Handler
	vm.sp = t.sp
	_ = vm.push(StringVal(derr.Message()))
	return true
}

func printLine(w io.Writer, v Value) {
	fmt.Fprintln(w, v.Inspect())
}
