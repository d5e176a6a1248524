// Package pipeline chains the Arc evaluation stages (parse, check,
// compile, run) behind one Processor interface, so frontends can assemble
// exactly the prefix they need: `arc check` and `arc disasm` stop before
// execution, and `arc run` uses the full chain.
package pipeline

import (
	"github.com/arclang/arc/internal/ast"
	"github.com/arclang/arc/internal/vm"
)

// PipelineContext carries the artifacts of each stage. Err is sticky: once
// a stage fails, later stages pass the context through untouched.
type PipelineContext struct {
	Source string
	File   string

	Program *ast.Block
	Chunk   *vm.Chunk
	Result  vm.Value

	// VM executes the compile and run stages; supplied by the caller so
	// configuration stays owned by the embedder.
	VM *vm.VM

	Err error
}

// Processor is one pipeline stage.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
	}
	return ctx
}

// ParseStage parses Source into Program.
type ParseStage struct{}

func (ParseStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Err != nil {
		return ctx
	}
	prog, err := vm.Parse(ctx.Source)
	if err != nil {
		ctx.Err = err
		return ctx
	}
	ctx.Program = prog
	return ctx
}

// CheckStage runs the LinearChecker; failure is fatal, no bytecode is
// produced downstream.
type CheckStage struct{}

func (CheckStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Err != nil || ctx.Program == nil {
		return ctx
	}
	if err := ctx.VM.Check(ctx.Program); err != nil {
		ctx.Err = err
	}
	return ctx
}

// CompileStage lowers Program to Chunk.
type CompileStage struct{}

func (CompileStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Err != nil || ctx.Program == nil {
		return ctx
	}
	chunk, err := ctx.VM.Compile(ctx.Program)
	if err != nil {
		ctx.Err = err
		return ctx
	}
	ctx.Chunk = chunk
	return ctx
}

// RunStage executes Chunk on the context's VM.
type RunStage struct{}

func (RunStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Err != nil || ctx.Chunk == nil {
		return ctx
	}
	result, err := ctx.VM.Run(ctx.Chunk, nil)
	if err != nil {
		ctx.Err = err
		return ctx
	}
	ctx.Result = result
	return ctx
}

// Full returns the complete parse-to-run pipeline.
func Full() *Pipeline {
	return New(ParseStage{}, CheckStage{}, CompileStage{}, RunStage{})
}

// Static returns the static-analysis prefix (no execution).
func Static() *Pipeline {
	return New(ParseStage{}, CheckStage{}, CompileStage{})
}
