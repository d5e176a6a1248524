package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders a chunk as a readable instruction listing, one line
// per instruction, with nested function prototypes appended after the
// outer chunk.
func Disassemble(chunk *Chunk) string {
	var sb strings.Builder
	disassembleChunk(&sb, chunk)
	return sb.String()
}

func disassembleChunk(sb *strings.Builder, chunk *Chunk) {
	fmt.Fprintf(sb, "== %s (%s) ==\n", chunk.Name, chunk.HashHex()[:12])
	var protos []*CompiledFunction
	offset := 0
	for offset < len(chunk.Code) {
		offset = disassembleInstruction(sb, chunk, offset)
	}
	for _, c := range chunk.Constants {
		if p, ok := c.Obj.(*CompiledFunction); ok {
			protos = append(protos, p)
		}
	}
	for _, p := range protos {
		sb.WriteByte('\n')
		disassembleChunk(sb, p.Chunk)
	}
}

func disassembleInstruction(sb *strings.Builder, chunk *Chunk, offset int) int {
	fmt.Fprintf(sb, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(sb, "%4d ", chunk.Lines[offset])
	}

	op := Opcode(chunk.Code[offset])
	switch op {
	case OP_CONST, OP_MAKE_FUNC:
		idx := chunk.readU16(offset + 1)
		fmt.Fprintf(sb, "%-16s %4d  %s\n", op, idx, constPreview(chunk, idx))
		return offset + 3
	case OP_LOAD, OP_LOAD_KEEP, OP_STORE, OP_ASSIGN, OP_GET_FIELD, OP_GET_FIELD_OPT, OP_SET_FIELD:
		idx := chunk.readU16(offset + 1)
		fmt.Fprintf(sb, "%-16s %4d  %s\n", op, idx, constPreview(chunk, idx))
		return offset + 3
	case OP_MAKE_LIST, OP_TRY_PUSH:
		fmt.Fprintf(sb, "%-16s %4d\n", op, chunk.readU16(offset+1))
		return offset + 3
	case OP_MAKE_STRUCT:
		nameIdx := chunk.readU16(offset + 1)
		n := chunk.readU16(offset + 3)
		fmt.Fprintf(sb, "%-16s %s n=%d\n", op, constPreview(chunk, nameIdx), n)
		return offset + 5
	case OP_MAKE_ENUM:
		enumIdx := chunk.readU16(offset + 1)
		variantIdx := chunk.readU16(offset + 3)
		arity := chunk.Code[offset+5]
		fmt.Fprintf(sb, "%-16s %s.%s/%d\n", op, rawConstString(chunk, enumIdx), rawConstString(chunk, variantIdx), arity)
		return offset + 6
	case OP_JMP, OP_JMP_IF_FALSE:
		off := chunk.readU16(offset + 1)
		fmt.Fprintf(sb, "%-16s %4d -> %d\n", op, off, offset+3+off)
		return offset + 3
	case OP_LOOP:
		off := chunk.readU16(offset + 1)
		fmt.Fprintf(sb, "%-16s %4d -> %d\n", op, off, offset+3-off)
		return offset + 3
	case OP_MATCH_TAG:
		idx := chunk.readU16(offset + 1)
		off := chunk.readU16(offset + 3)
		fmt.Fprintf(sb, "%-16s %s else -> %d\n", op, rawConstString(chunk, idx), offset+5+off)
		return offset + 5
	case OP_CALL:
		fmt.Fprintf(sb, "%-16s argc=%d\n", op, chunk.Code[offset+1])
		return offset + 2
	case OP_CALL_METHOD:
		idx := chunk.readU16(offset + 1)
		fmt.Fprintf(sb, "%-16s %s argc=%d\n", op, rawConstString(chunk, idx), chunk.Code[offset+3])
		return offset + 4
	default:
		fmt.Fprintf(sb, "%s\n", op)
		return offset + 1
	}
}

func constPreview(chunk *Chunk, idx int) string {
	if idx < 0 || idx >= len(chunk.Constants) {
		return "<bad const>"
	}
	v := chunk.Constants[idx]
	if s, ok := v.AsString(); ok {
		return fmt.Sprintf("%q", s)
	}
	return v.Inspect()
}

func rawConstString(chunk *Chunk, idx int) string {
	if idx >= 0 && idx < len(chunk.Constants) {
		if s, ok := chunk.Constants[idx].AsString(); ok {
			return s
		}
	}
	return "<bad const>"
}
