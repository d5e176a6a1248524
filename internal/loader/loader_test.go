package loader_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/arclang/arc/internal/loader"
	"github.com/arclang/arc/internal/vm"
)

// fixture is a multi-file program bundled txtar-style: the first file is
// the entry point, the rest are importable modules.
const importFixture = `-- main.arc --
import util
print(util.twice(21))
print(util.greet("arc"))
-- util.arc --
func twice(x) { return x * 2 }
func greet(name) { return "hi " + name }
`

func writeFixture(t *testing.T, archive string) (dir, entry string) {
	t.Helper()
	dir = t.TempDir()
	ar := txtar.Parse([]byte(archive))
	require.NotEmpty(t, ar.Files)
	for _, f := range ar.Files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644))
	}
	return dir, filepath.Join(dir, ar.Files[0].Name)
}

func newImportingVM(t *testing.T, dir string, out io.Writer) *vm.VM {
	t.Helper()
	cfg := vm.Config{
		Stdout:       out,
		Stderr:       io.Discard,
		Limits:       vm.DefaultLimits(),
		Capabilities: []vm.Capability{vm.CapFSRead},
	}
	reg := vm.DefaultRegistry()
	loader.NewResolver(dir, cfg).Install(reg)
	cfg.Registry = reg
	return vm.New(cfg)
}

func TestImportBindsModuleNamespace(t *testing.T) {
	dir, entry := writeFixture(t, importFixture)
	src, err := os.ReadFile(entry)
	require.NoError(t, err)

	var out bytes.Buffer
	machine := newImportingVM(t, dir, &out)
	_, err = machine.EvalSource(string(src))
	require.NoError(t, err)
	require.Equal(t, "42\nhi arc\n", out.String())
}

func TestImportRequiresFSReadCapability(t *testing.T) {
	dir, entry := writeFixture(t, importFixture)
	src, err := os.ReadFile(entry)
	require.NoError(t, err)

	cfg := vm.Config{Stdout: io.Discard, Stderr: io.Discard, Limits: vm.DefaultLimits()}
	reg := vm.DefaultRegistry()
	loader.NewResolver(dir, cfg).Install(reg)
	cfg.Registry = reg
	_, err = vm.New(cfg).EvalSource(string(src))
	require.Error(t, err)
	require.Contains(t, err.Error(), "CapabilityDenied")
}

func TestImportMissingModule(t *testing.T) {
	dir, _ := writeFixture(t, importFixture)
	var out bytes.Buffer
	machine := newImportingVM(t, dir, &out)
	_, err := machine.EvalSource(`import nothere`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nothere")
}

func TestImportCycleIsReported(t *testing.T) {
	dir, _ := writeFixture(t, `-- a.arc --
import b
-- b.arc --
import a
`)
	var out bytes.Buffer
	machine := newImportingVM(t, dir, &out)
	_, err := machine.EvalSource(`import a`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestDiamondImportEvaluatesOnce(t *testing.T) {
	dir, entry := writeFixture(t, `-- main.arc --
import left
import right
print(left.mark())
print(right.mark())
-- left.arc --
import shared
func mark() { return shared.tag() }
-- right.arc --
import shared
func mark() { return shared.tag() }
-- shared.arc --
print("shared evaluated")
func tag() { return "ok" }
`)
	src, err := os.ReadFile(entry)
	require.NoError(t, err)

	var out bytes.Buffer
	machine := newImportingVM(t, dir, &out)
	_, err = machine.EvalSource(string(src))
	require.NoError(t, err)
	// "shared evaluated" appears exactly once: the module body ran once
	// and was served from the content-addressed cache afterwards.
	require.Equal(t, 1, bytes.Count(out.Bytes(), []byte("shared evaluated")))
	require.Contains(t, out.String(), "ok\nok\n")
}
