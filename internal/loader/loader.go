// Package loader resolves `import` statements to sibling source files:
// each imported module is parsed, checked, compiled and executed once,
// content-addressed by the SHA-256 of its source, and its top level is
// exposed to the importer as a struct-shaped namespace value bound at the
// call site. This is deliberately the minimal package resolution the core's
// non-goals permit — no import-path rewriting, no linking.
package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arclang/arc/internal/config"
	"github.com/arclang/arc/internal/utils"
	"github.com/arclang/arc/internal/vm"
)

// Resolver loads modules relative to a base directory. Nested imports get
// their own Resolver rooted at the importing module's directory, but share
// the cache and in-progress set, so diamond imports evaluate once and
// cycles are detected across the whole import graph.
type Resolver struct {
	baseDir string
	cfg     vm.Config
	state   *resolverState
}

type resolverState struct {
	mu      sync.Mutex
	cache   map[string]vm.Value // source SHA-256 hex -> namespace
	loading map[string]bool     // resolved path set, for cycle detection
}

func NewResolver(baseDir string, cfg vm.Config) *Resolver {
	return &Resolver{
		baseDir: baseDir,
		cfg:     cfg,
		state: &resolverState{
			cache:   make(map[string]vm.Value),
			loading: make(map[string]bool),
		},
	}
}

// Install registers the sys.import intrinsic on a registry. Module files
// are read from disk, so the intrinsic is guarded by fs_read.
func (r *Resolver) Install(reg *vm.Registry) {
	reg.Register(&vm.Intrinsic{
		Name:     config.ImportName,
		Arity:    1,
		Requires: []vm.Capability{vm.CapFSRead},
		Handler: func(rt *vm.Runtime, args []vm.Value) (vm.Value, error) {
			path, ok := args[0].AsString()
			if !ok {
				return vm.Value{}, fmt.Errorf("import path must be a string")
			}
			return r.Load(path)
		},
	})
}

// Load resolves an import path to a namespace value.
func (r *Resolver) Load(importPath string) (vm.Value, error) {
	// Bare module paths resolve relative to the importer's directory.
	path := importPath
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, ".") {
		path = "./" + path
	}
	path = utils.ResolveImportPath(r.baseDir, path)
	if !config.HasSourceExt(path) {
		path += config.SourceFileExt
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return vm.Value{}, fmt.Errorf("import %s: %w", importPath, err)
	}
	sum := sha256.Sum256(src)
	key := hex.EncodeToString(sum[:])

	st := r.state
	st.mu.Lock()
	if cached, ok := st.cache[key]; ok {
		st.mu.Unlock()
		return cached, nil
	}
	if st.loading[path] {
		st.mu.Unlock()
		return vm.Value{}, fmt.Errorf("import cycle through %s", path)
	}
	st.loading[path] = true
	st.mu.Unlock()
	defer func() {
		st.mu.Lock()
		delete(st.loading, path)
		st.mu.Unlock()
	}()

	ns, err := r.evalModule(string(src), path)
	if err != nil {
		return vm.Value{}, err
	}

	st.mu.Lock()
	st.cache[key] = ns
	st.mu.Unlock()
	return ns, nil
}

// evalModule runs one module file in a fresh VM sharing this resolver's
// configuration; the module's own imports resolve relative to its
// directory through a child resolver over the same state.
func (r *Resolver) evalModule(src, path string) (vm.Value, error) {
	child := &Resolver{baseDir: utils.GetModuleDir(path), cfg: r.cfg, state: r.state}
	reg := vm.DefaultRegistry()
	child.Install(reg)

	cfg := r.cfg
	cfg.Registry = reg
	machine := vm.New(cfg)
	if _, err := machine.EvalSource(src); err != nil {
		return vm.Value{}, fmt.Errorf("import %s: %w", path, err)
	}

	return namespaceValue(utils.ExtractModuleName(path), machine.Globals()), nil
}

// namespaceValue projects a module scope into a struct value, skipping
// hidden compiler-internal bindings.
func namespaceValue(moduleName string, globals *vm.Scope) vm.Value {
	snap := globals.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		if strings.HasPrefix(name, "$") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	s := &vm.StructObj{Name: moduleName, Fields: make(map[string]vm.Value, len(snap))}
	for _, name := range names {
		s.Order = append(s.Order, name)
		s.Fields[name] = snap[name]
	}
	// Verbose stdlib-style members stay reachable by their short spelling:
	// a module "text" exporting "textUpper" is also text.upper.
	for _, name := range names {
		if short, ok := shortMemberName(moduleName, name); ok {
			if _, taken := s.Fields[short]; !taken {
				s.Order = append(s.Order, short)
				s.Fields[short] = snap[name]
			}
		}
	}
	return vm.ObjVal(s)
}

// shortMemberName inverts utils.ModuleMemberFallbackName.
func shortMemberName(moduleName, member string) (string, bool) {
	if !strings.HasPrefix(member, moduleName) || len(member) <= len(moduleName) {
		return "", false
	}
	rest := member[len(moduleName):]
	first := rest[0]
	if first < 'A' || first > 'Z' {
		return "", false
	}
	short := string(first+('a'-'A')) + rest[1:]
	if utils.ModuleMemberFallbackName(moduleName, short) != member {
		return "", false
	}
	return short, true
}
