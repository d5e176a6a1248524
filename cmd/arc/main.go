package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/arclang/arc/internal/config"
	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/loader"
	"github.com/arclang/arc/internal/pipeline"
	"github.com/arclang/arc/internal/runtimecfg"
	"github.com/arclang/arc/internal/store"
	"github.com/arclang/arc/internal/vm"
)

const usage = `arc - the Arc language runtime

Usage:
  arc run <file.arc>          parse, check, compile and execute a program
  arc eval <source>           evaluate an inline expression or program
  arc check <file.arc>        run static analysis only (parse, linear check, compile)
  arc disasm <file.arc>       print the compiled bytecode listing
  arc mast <file.arc>         export the MAST JSON document
  arc trust <file.arc>        add the file's function hashes to the trust store
  arc store list|stat         inspect the trust store
  arc version                 print the version

Configuration is read from ARC_CONFIG (YAML) plus ARC_* environment
overrides; see the runtime documentation for the recognized keys.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		requireArg(3, "arc run <file.arc>")
		runFile(os.Args[2])
	case "eval":
		requireArg(3, "arc eval <source>")
		evalSource(os.Args[2])
	case "check":
		requireArg(3, "arc check <file.arc>")
		checkFile(os.Args[2])
	case "disasm":
		requireArg(3, "arc disasm <file.arc>")
		disasmFile(os.Args[2])
	case "mast":
		requireArg(3, "arc mast <file.arc>")
		mastFile(os.Args[2])
	case "trust":
		requireArg(3, "arc trust <file.arc>")
		trustFile(os.Args[2])
	case "store":
		requireArg(3, "arc store list|stat")
		storeCmd(os.Args[2])
	case "version":
		fmt.Println("arc", config.Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "arc: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func requireArg(n int, usageLine string) {
	if len(os.Args) < n {
		fmt.Fprintf(os.Stderr, "usage: %s\n", usageLine)
		os.Exit(2)
	}
}

// loadConfig builds the VM configuration: ARC_CONFIG file, environment
// overrides, and the trust store's hash set when one exists.
func loadConfig() vm.Config {
	cfg, err := runtimecfg.Load(os.Getenv("ARC_CONFIG"))
	if err != nil {
		fatal(err)
	}
	if cfg.Security != vm.SecurityUnrestricted && cfg.TrustedHashes == nil {
		if s, serr := store.Open(trustStorePath()); serr == nil {
			if set, herr := s.HashSet(); herr == nil {
				cfg.TrustedHashes = set
			}
			s.Close()
		}
	}
	return cfg
}

func newVM(cfg vm.Config, baseDir string) *vm.VM {
	reg := vm.DefaultRegistry()
	loader.NewResolver(baseDir, cfg).Install(reg)
	cfg.Registry = reg
	return vm.New(cfg)
}

func runFile(path string) {
	src := readSource(path)
	machine := newVM(loadConfig(), filepath.Dir(path))
	defer machine.Close()

	ctx := pipeline.Full().Run(&pipeline.PipelineContext{Source: src, File: path, VM: machine})
	if ctx.Err != nil {
		fatalDiag(path, ctx.Err)
	}
	if !ctx.Result.IsUnit() {
		fmt.Println(ctx.Result.Inspect())
	}
}

func evalSource(src string) {
	machine := newVM(loadConfig(), ".")
	defer machine.Close()
	result, err := machine.EvalSource(src)
	if err != nil {
		fatalDiag("<eval>", err)
	}
	if !result.IsUnit() {
		fmt.Println(result.Inspect())
	}
}

func checkFile(path string) {
	src := readSource(path)
	machine := newVM(loadConfig(), filepath.Dir(path))
	ctx := pipeline.Static().Run(&pipeline.PipelineContext{Source: src, File: path, VM: machine})
	if ctx.Err != nil {
		fatalDiag(path, ctx.Err)
	}
	fmt.Printf("%s: ok (chunk %s)\n", path, ctx.Chunk.HashHex()[:12])
}

func disasmFile(path string) {
	src := readSource(path)
	machine := newVM(loadConfig(), filepath.Dir(path))
	ctx := pipeline.Static().Run(&pipeline.PipelineContext{Source: src, File: path, VM: machine})
	if ctx.Err != nil {
		fatalDiag(path, ctx.Err)
	}
	fmt.Print(vm.Disassemble(ctx.Chunk))
}

func mastFile(path string) {
	prog, err := vm.Parse(readSource(path))
	if err != nil {
		fatalDiag(path, err)
	}
	doc, err := loader.ExportMast(prog)
	if err != nil {
		fatal(err)
	}
	os.Stdout.Write(doc)
	fmt.Println()
}

// trustFile records the file's top-level chunk hash and every function
// MAST hash in the trust store, so the program runs under TrustedOnly.
func trustFile(path string) {
	src := readSource(path)
	machine := newVM(runtimecfg.Default(), filepath.Dir(path))
	ctx := pipeline.Static().Run(&pipeline.PipelineContext{Source: src, File: path, VM: machine})
	if ctx.Err != nil {
		fatalDiag(path, ctx.Err)
	}

	s, err := store.Open(trustStorePath())
	if err != nil {
		fatal(err)
	}
	defer s.Close()

	label := filepath.Base(path)
	added := 0
	if err := s.Add(ctx.Chunk.HashHex(), label); err != nil {
		fatal(err)
	}
	added++
	for _, c := range ctx.Chunk.Constants {
		if proto, ok := c.Obj.(*vm.CompiledFunction); ok {
			if err := s.Add(proto.Chunk.HashHex(), label+":"+proto.Name); err != nil {
				fatal(err)
			}
			if err := s.Add(fmt.Sprintf("%x", proto.MastHash), label+":"+proto.Name+":mast"); err != nil {
				fatal(err)
			}
			added += 2
		}
	}
	fmt.Printf("trusted %d hashes from %s\n", added, path)
}

func storeCmd(sub string) {
	s, err := store.Open(trustStorePath())
	if err != nil {
		fatal(err)
	}
	defer s.Close()

	switch sub {
	case "list":
		entries, err := s.List()
		if err != nil {
			fatal(err)
		}
		for _, e := range entries {
			fmt.Printf("%s  %-30s %s\n", e.Hash[:16], e.Label, humanize.Time(e.CreatedAt))
		}
	case "stat":
		st, err := s.Stat()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("trusted hashes: %d\n", st.TrustedCount)
		fmt.Printf("mast blobs:     %d\n", st.MastCount)
		fmt.Printf("store size:     %s\n", humanize.Bytes(uint64(st.FileBytes)))
	default:
		fmt.Fprintf(os.Stderr, "usage: arc store list|stat\n")
		os.Exit(2)
	}
}

func trustStorePath() string {
	if p := os.Getenv(config.EnvTrustStore); p != "" {
		return p
	}
	return store.DefaultPath()
}

func readSource(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	return string(data)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, colorize("arc: "+err.Error()))
	os.Exit(1)
}

// fatalDiag renders a pipeline diagnostic with its file name and, for
// runtime errors, the recorded stack trace.
func fatalDiag(file string, err error) {
	if derr, ok := err.(*diagnostics.Error); ok {
		withFile := derr.WithFile(config.TrimSourceExt(filepath.Base(file)))
		var sb strings.Builder
		sb.WriteString(withFile.Error())
		for _, f := range derr.Frames {
			sb.WriteString(fmt.Sprintf("\n  at %s (%s)", f.FuncName, f.Pos))
		}
		fmt.Fprintln(os.Stderr, colorize(sb.String()))
		os.Exit(1)
	}
	fatal(err)
}

// colorize wraps diagnostics in red when stderr is a terminal.
func colorize(s string) string {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return "\x1b[31m" + s + "\x1b[0m"
	}
	return s
}
