package vm

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/parser"
	"github.com/arclang/arc/internal/typesystem"
)

// The embedding API of spec §6.2: parse, check, compile, run, and the
// eval_source convenience that chains them.

// Parse converts source text to an AST.
func Parse(src string) (*ast.Block, error) {
	return parser.ParseProgram(src)
}

// Check runs the LinearChecker against this VM's intrinsic consumer table.
func (vm *VM) Check(prog *ast.Block) error {
	return typesystem.NewChecker(vm.registry.ConsumerTable()).Check(prog)
}

// Compile lowers a checked program to a sealed chunk using this VM's
// registry for intrinsic-name resolution.
func (vm *VM) Compile(prog *ast.Block) (*Chunk, error) {
	return Compile(prog, vm.registry)
}

// EvalSource parses, checks, compiles and runs src in one step.
func (vm *VM) EvalSource(src string) (Value, error) {
	prog, err := Parse(src)
	if err != nil {
		return Value{}, err
	}
	if err := vm.Check(prog); err != nil {
		return Value{}, err
	}
	chunk, err := vm.Compile(prog)
	if err != nil {
		return Value{}, err
	}
	return vm.Run(chunk, nil)
}
