package vm

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/token"
)

// SecurityLevel selects the VM's enforcement mode (spec §4.5).
type SecurityLevel int

const (
	SecurityUnrestricted SecurityLevel = iota
	SecurityTrustedOnly
	SecuritySandboxed
)

func (s SecurityLevel) String() string {
	switch s {
	case SecurityTrustedOnly:
		return "TrustedOnly"
	case SecuritySandboxed:
		return "Sandboxed"
	default:
		return "Unrestricted"
	}
}

// Limits are the runtime budgets read at VM construction (spec §4.5).
type Limits struct {
	MaxStackDepth int
	MaxSteps      int64
	MaxMemoryMB   int
	ExecTimeout   time.Duration
}

// DefaultLimits mirrors the spec's defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxStackDepth: 10_000,
		MaxSteps:      10_000_000,
		MaxMemoryMB:   256,
		ExecTimeout:   5 * time.Second,
	}
}

// Config is the embedder-supplied VM configuration (spec §6.2).
type Config struct {
	Security      SecurityLevel
	Capabilities  []Capability
	TrustedHashes map[string]bool // lowercase hex SHA-256 of permitted chunks
	Limits        Limits
	Registry      *Registry // nil selects DefaultRegistry
	Stdout        io.Writer
	Stderr        io.Writer
	// LenientTruthiness makes JmpIfFalse accept Unit and Integer(0) as
	// false, the source-compatible mode behind the strict default.
	LenientTruthiness bool
}

type frame struct {
	fn     *FunctionObj
	chunk  *Chunk
	ip     int
	baseSP int
	scope  *Scope
}

// tryEntry is one armed error-handling region: enough saved state to
// unwind to the region's base and continue at its handler.
type tryEntry struct {
	frameIdx int
	sp       int
	scope    *Scope
	region   Region
	chunk    *Chunk
}

// VM is the stack machine of spec §4.5. It holds no process-global state;
// everything an intrinsic can reach flows through its Runtime handle.
type VM struct {
	stack []Value
	sp    int

	frames []frame

	globals  *Scope
	registry *Registry

	limits    Limits
	security  SecurityLevel
	trusted   map[string]bool
	lenient   bool
	steps     int64
	allocated int64 // coarse advisory byte counter for AllocationError

	tries []tryEntry

	// shouldStop is the shared cancellation flag (spec §5); timedOut
	// distinguishes watchdog expiry from host cancellation.
	shouldStop atomic.Bool
	timedOut   atomic.Bool

	tracker *ResourceTracker
	rt      *Runtime

	out    io.Writer
	errOut io.Writer

	debugger *Debugger
}

// New constructs a VM from the embedder configuration.
func New(cfg Config) *VM {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	caps := make(map[Capability]bool, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		caps[c] = true
	}
	tracker := NewResourceTracker()
	vm := &VM{
		stack:    make([]Value, 0, 2048),
		frames:   make([]frame, 0, 64),
		globals:  NewScope(nil),
		registry: cfg.Registry,
		limits:   cfg.Limits,
		security: cfg.Security,
		trusted:  cfg.TrustedHashes,
		lenient:  cfg.LenientTruthiness,
		tracker:  tracker,
		out:      cfg.Stdout,
		errOut:   cfg.Stderr,
	}
	vm.rt = &Runtime{Out: cfg.Stdout, Err: cfg.Stderr, Tracker: tracker, caps: caps}
	return vm
}

// Globals exposes the module-level scope for embedders that pre-seed
// bindings before Run.
func (vm *VM) Globals() *Scope { return vm.globals }

// Stop sets the shared cancellation flag; the VM aborts with Cancelled at
// the next instruction boundary (spec §5).
func (vm *VM) Stop() { vm.shouldStop.Store(true) }

// Close releases every live handle the resource tracker still owns.
func (vm *VM) Close() {
	vm.tracker.CloseAll(vm.errOut)
}

// SetDebugger attaches a debugger; nil detaches it.
func (vm *VM) SetDebugger(d *Debugger) { vm.debugger = d }

// Run executes a sealed chunk against the global scope and returns the
// program's value. A non-nil globals scope replaces the VM's module scope
// for this and later runs (spec §6.2 run(chunk, globals?)).
func (vm *VM) Run(chunk *Chunk, globals *Scope) (Value, error) {
	if globals != nil {
		vm.globals = globals
	}
	vm.sp = 0
	vm.steps = 0
	vm.frames = vm.frames[:0]
	vm.tries = vm.tries[:0]
	vm.timedOut.Store(false)
	vm.shouldStop.Store(false)

	vm.frames = append(vm.frames, frame{chunk: chunk, scope: vm.globals})

	var watchdog *time.Timer
	if vm.limits.ExecTimeout > 0 {
		watchdog = time.AfterFunc(vm.limits.ExecTimeout, func() {
			vm.timedOut.Store(true)
			vm.shouldStop.Store(true)
		})
		defer watchdog.Stop()
	}

	v, err := vm.exec()
	if err != nil {
		// Terminal abort: close every live handle (spec §5).
		if derr, ok := err.(*diagnostics.Error); ok && (derr.Code == diagnostics.Cancelled || derr.Code == diagnostics.Timeout) {
			vm.tracker.CloseAll(vm.errOut)
		}
		return Value{}, err
	}
	return v, nil
}

func (vm *VM) runtimeError(code diagnostics.Code, pos token.Position, args ...interface{}) *diagnostics.Error {
	e := diagnostics.New(diagnostics.PhaseRuntime, code, pos, args...)
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		name := f.chunk.Name
		e = e.WithFrame(diagnostics.Frame{FuncName: name, Pos: f.chunk.pos(f.ip)})
	}
	return e
}

// ---- stack primitives ----

func (vm *VM) push(v Value) error {
	if vm.sp < len(vm.stack) {
		vm.stack[vm.sp] = v
	} else {
		vm.stack = append(vm.stack, v)
	}
	vm.sp++
	return nil
}

func (vm *VM) pop() (Value, bool) {
	if vm.sp == 0 {
		return Value{}, false
	}
	vm.sp--
	return vm.stack[vm.sp], true
}

func (vm *VM) peek() (Value, bool) {
	if vm.sp == 0 {
		return Value{}, false
	}
	return vm.stack[vm.sp-1], true
}

// chargeAlloc tracks the advisory memory budget (spec §4.5: coarse,
// allocation-hook based).
func (vm *VM) chargeAlloc(bytes int64, pos token.Position) *diagnostics.Error {
	vm.allocated += bytes
	if vm.limits.MaxMemoryMB > 0 && vm.allocated > int64(vm.limits.MaxMemoryMB)<<20 {
		return vm.runtimeError(diagnostics.AllocationError, pos, vm.limits.MaxMemoryMB)
	}
	return nil
}
