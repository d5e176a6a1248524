package vm

// Opcode is a single VM instruction. Operands follow the opcode byte in the
// code stream; multi-byte operands are big-endian u16 unless noted.
type Opcode byte

const (
	// Stack manipulation
	OP_CONST Opcode = iota // u16 constant index; push constants[idx]
	OP_POP                 // discard top
	OP_DUP                 // duplicate top

	// Names
	OP_LOAD      // u16 name const; look up in scope chain, move if linear
	OP_LOAD_KEEP // u16 name const; non-moving load for Shared bindings and hidden loop/path temps
	OP_STORE     // u16 name const; bind top of stack in current scope
	OP_ASSIGN    // u16 name const; rebind the existing binding wherever it lives
	OP_SWAP      // exchange the two top stack values

	// Fields and indexing
	OP_GET_FIELD     // u16 field const; replace top with its field
	OP_GET_FIELD_OPT // u16 field const; same, but Unit stays Unit
	OP_SET_FIELD     // u16 field const; [struct, val] -> [struct'] owned update
	OP_INDEX         // [obj, idx] -> [obj[idx]]
	OP_SET_INDEX     // [obj, idx, val] -> [obj'] owned element update

	// Constructors
	OP_MAKE_LIST   // u16 n; pop n values, push list
	OP_MAKE_STRUCT // u16 type-name const, u16 n; pop n (key,val) pairs, push struct
	OP_MAKE_ENUM   // u16 enum const, u16 variant const, u8 arity
	OP_MAKE_FUNC   // u16 proto const; capture current scope, push function

	// Control flow
	OP_JMP          // u16 forward offset
	OP_LOOP         // u16 backward offset
	OP_JMP_IF_FALSE // u16 forward offset; pop condition, strict boolean
	OP_MATCH_TAG    // u16 variant const, u16 else offset; on match pop enum, push payload

	// Calls
	OP_CALL        // u8 argc; [callee, args...] -> [result]
	OP_CALL_METHOD // u16 name const, u8 argc; [recv, args...] -> [result] via Type.name, name, or intrinsic
	OP_RET         // pop return value, pop frame, push into caller

	// Scopes
	OP_ENTER_SCOPE
	OP_EXIT_SCOPE

	// Error-handling regions
	OP_TRY_PUSH // u16 region index into chunk.Regions
	OP_TRY_POP

	OP_PRINT // pop and print; no result pushed
)

// opcodeNames maps opcodes to mnemonics for the disassembler.
var opcodeNames = map[Opcode]string{
	OP_CONST:         "CONST",
	OP_POP:           "POP",
	OP_DUP:           "DUP",
	OP_LOAD:          "LOAD",
	OP_LOAD_KEEP:     "LOAD_KEEP",
	OP_STORE:         "STORE",
	OP_ASSIGN:        "ASSIGN",
	OP_SWAP:          "SWAP",
	OP_GET_FIELD:     "GET_FIELD",
	OP_GET_FIELD_OPT: "GET_FIELD_OPT",
	OP_SET_FIELD:     "SET_FIELD",
	OP_INDEX:         "INDEX",
	OP_SET_INDEX:     "SET_INDEX",
	OP_MAKE_LIST:     "MAKE_LIST",
	OP_MAKE_STRUCT:   "MAKE_STRUCT",
	OP_MAKE_ENUM:     "MAKE_ENUM",
	OP_MAKE_FUNC:     "MAKE_FUNC",
	OP_JMP:           "JMP",
	OP_LOOP:          "LOOP",
	OP_JMP_IF_FALSE:  "JMP_IF_FALSE",
	OP_MATCH_TAG:     "MATCH_TAG",
	OP_CALL:          "CALL",
	OP_CALL_METHOD:   "CALL_METHOD",
	OP_RET:           "RET",
	OP_ENTER_SCOPE:   "ENTER_SCOPE",
	OP_EXIT_SCOPE:    "EXIT_SCOPE",
	OP_TRY_PUSH:      "TRY_PUSH",
	OP_TRY_POP:       "TRY_POP",
	OP_PRINT:         "PRINT",
}

func (op Opcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}
