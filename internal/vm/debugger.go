package vm

// Debugger is the minimal embedding-API debugging hook: breakpoints on
// top-level code offsets and single-stepping. There is no CLI surface;
// hosts drive it through OnBreak.
type Debugger struct {
	breakpoints map[int]bool
	stepping    bool

	// OnBreak is invoked with the current instruction offset and a scope
	// dump whenever a breakpoint or single-step pause hits. The VM resumes
	// when it returns.
	OnBreak func(ip int, scopeDump string)
}

func NewDebugger() *Debugger {
	return &Debugger{breakpoints: make(map[int]bool)}
}

// SetBreakpoint arms a breakpoint at a bytecode offset of the top-level
// chunk.
func (d *Debugger) SetBreakpoint(ip int) {
	d.breakpoints[ip] = true
}

func (d *Debugger) ClearBreakpoint(ip int) {
	delete(d.breakpoints, ip)
}

// StepMode pauses before every instruction when enabled.
func (d *Debugger) StepMode(on bool) {
	d.stepping = on
}

func (d *Debugger) check(vm *VM) {
	if d.OnBreak == nil {
		return
	}
	// Breakpoints apply to the outermost frame only; stepping applies
	// everywhere.
	f := vm.topFrame()
	hit := d.stepping
	if !hit && len(vm.frames) == 1 && d.breakpoints[f.ip] {
		hit = true
	}
	if hit {
		d.OnBreak(f.ip, f.scope.Dump())
	}
}
