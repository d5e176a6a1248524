package vm

import (
	"io"

	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/typesystem"
)

// Capability is a named permission required by guarded intrinsics
// (spec §4.5 / §6.3).
type Capability string

const (
	CapNet     Capability = "net"
	CapFSRead  Capability = "fs_read"
	CapFSWrite Capability = "fs_write"
	CapAI      Capability = "ai"
	CapExec    Capability = "exec"
)

// Variadic marks an intrinsic that accepts any argument count.
const Variadic = -1

// Handler is a native intrinsic implementation. It receives the per-call
// runtime handle (never process-global state) and the popped arguments; a
// returned *diagnostics.Error surfaces through the §7 taxonomy, any other
// error is wrapped as IntrinsicFailure.
type Handler func(rt *Runtime, args []Value) (Value, error)

// Runtime is the slice of VM state intrinsics may touch. Handlers go
// through this handle rather than the VM itself so the registry can be
// shared across VM instances.
type Runtime struct {
	Out     io.Writer
	Err     io.Writer
	Tracker *ResourceTracker
	caps    map[Capability]bool
}

// HasCapability reports whether the embedder granted cap to this VM.
func (rt *Runtime) HasCapability(cap Capability) bool {
	return rt.caps[cap]
}

// Intrinsic is one registry entry (spec §6.3).
type Intrinsic struct {
	Name     string
	Arity    int // Variadic for any count
	Consumes []int
	Requires []Capability
	// ReturnsFreshLinear tells the LinearChecker a consumed argument comes
	// back as a fresh value the caller must rebind.
	ReturnsFreshLinear bool
	Handler            Handler
}

// Registry maps intrinsic names to handlers. Read-only after construction;
// safe to share across VMs.
type Registry struct {
	entries map[string]*Intrinsic
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Intrinsic)}
}

func (r *Registry) Register(in *Intrinsic) {
	r.entries[in.Name] = in
}

func (r *Registry) Lookup(name string) (*Intrinsic, bool) {
	in, ok := r.entries[name]
	return in, ok
}

// ConsumerTable projects the registry's consumer annotations into the form
// the LinearChecker reads (spec §4.3 "Consumer semantics").
func (r *Registry) ConsumerTable() typesystem.ConsumerTable {
	t := make(typesystem.ConsumerTable)
	for name, in := range r.entries {
		if len(in.Consumes) > 0 {
			t[name] = typesystem.ConsumerSpec{
				Name:               name,
				ConsumesParams:     in.Consumes,
				ReturnsFreshLinear: in.ReturnsFreshLinear,
			}
		}
	}
	return t
}

// sandboxDenied is the fixed deny-list enforced under SecuritySandboxed in
// addition to capability checks: networking, filesystem writes, shell exec
// (spec §4.5).
var sandboxDenied = map[string]bool{
	"sys.net.grpcCall": true,
	"sys.fs.writeFile": true,
	"sys.exec.run":     true,
}

// DefaultRegistry builds the full intrinsic table: the operator desugaring
// set, core builtins, list/struct accessors, and the capability-guarded
// sys.* namespace.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerOperators(r)
	registerCore(r)
	registerCollections(r)
	registerSys(r)
	return r
}

func failf(name, format string, args ...interface{}) *diagnostics.Error {
	return diagnostics.New(diagnostics.PhaseRuntime, diagnostics.IntrinsicFailure, positionZero, name, sprintf(format, args...))
}

func typeMismatch(format string, args ...interface{}) *diagnostics.Error {
	return diagnostics.New(diagnostics.PhaseRuntime, diagnostics.TypeMismatch, positionZero, sprintf(format, args...))
}
