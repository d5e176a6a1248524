package vm_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/vm"
)

func TestDebuggerStepModeSeesEveryInstruction(t *testing.T) {
	cfg := vm.Config{Stdout: io.Discard, Stderr: io.Discard, Limits: vm.DefaultLimits()}
	machine := vm.New(cfg)

	dbg := vm.NewDebugger()
	dbg.StepMode(true)
	hits := 0
	dbg.OnBreak = func(ip int, dump string) { hits++ }
	machine.SetDebugger(dbg)

	_, err := machine.EvalSource(`let x := 1 + 2`)
	require.NoError(t, err)
	require.Greater(t, hits, 0)
}

func TestDebuggerBreakpointExposesScopeDump(t *testing.T) {
	src := `
let answer := 42
let greeting := "hi"
print(answer)
`
	prog, err := vm.Parse(src)
	require.NoError(t, err)
	probe := vm.New(vm.Config{Stdout: io.Discard, Stderr: io.Discard})
	chunk, err := probe.Compile(prog)
	require.NoError(t, err)

	// Break on the final instruction so both bindings are live.
	machine := vm.New(vm.Config{Stdout: io.Discard, Stderr: io.Discard, Limits: vm.DefaultLimits()})
	dbg := vm.NewDebugger()
	dbg.SetBreakpoint(chunk.Len() - 1)
	var lastDump string
	dbg.OnBreak = func(ip int, dump string) { lastDump = dump }
	machine.SetDebugger(dbg)

	_, err = machine.Run(chunk, nil)
	require.NoError(t, err)
	require.Contains(t, lastDump, "answer = 42")
	require.Contains(t, lastDump, "greeting = hi")
}

func TestYamlParse(t *testing.T) {
	var out bytes.Buffer
	cfg := vm.Config{
		Stdout:       &out,
		Stderr:       io.Discard,
		Limits:       vm.DefaultLimits(),
		Capabilities: []vm.Capability{vm.CapFSRead},
	}
	machine := vm.New(cfg)
	_, err := machine.EvalSource(`
let doc := sys.yaml.parse("name: arc\ncount: 3\nitems:\n  - 1\n  - 2\n")
print(doc.name)
print(doc.count)
print(len(doc.items))
`)
	require.NoError(t, err)
	require.Equal(t, "arc\n3\n2\n", out.String())
}

func TestYamlDump(t *testing.T) {
	var out bytes.Buffer
	cfg := vm.Config{
		Stdout:       &out,
		Stderr:       io.Discard,
		Limits:       vm.DefaultLimits(),
		Capabilities: []vm.Capability{vm.CapFSRead},
	}
	machine := vm.New(cfg)
	_, err := machine.EvalSource(`print(sys.yaml.dump(Point{x = 1}))`)
	require.NoError(t, err)
	require.Contains(t, out.String(), "x: 1")
}

func TestResourceTrackerClosesHandles(t *testing.T) {
	tr := vm.NewResourceTracker()
	closed := 0
	id := tr.Register("test-handle", func() error { closed++; return nil })
	require.Equal(t, 1, tr.Live())

	require.NoError(t, tr.Release(id))
	require.Equal(t, 1, closed)
	require.Equal(t, 0, tr.Live())

	// Releasing twice is a no-op: the handle was already consumed.
	require.NoError(t, tr.Release(id))
	require.Equal(t, 1, closed)

	tr.Register("leaked", func() error { closed++; return nil })
	var log bytes.Buffer
	tr.CloseAll(&log)
	require.Equal(t, 2, closed)
	require.Contains(t, log.String(), "leaked")
}
