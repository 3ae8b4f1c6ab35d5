package compiler

import "fmt"

// Opcode tags a single bytecode instruction. Gila is register-based: most
// opcodes read one or two source registers and write one destination
// register, rather than pushing/popping an operand stack.
type Opcode byte

// Numbering here groups opcodes by kind (arithmetic, then comparison,
// then control flow) rather than following spec.md §3's literal
// RETURN/ADD/ADDI/SUBI/SUB/MUL/DIV listing order. Nothing reads a Chunk
// back across builds of this package, so no on-disk format depends on
// the exact values; the reorder is intentional, not a miscopy.
const (
	// RETURN(src, _, _) returns the value in register src from the
	// current frame.
	RETURN Opcode = iota
	// ADD(lhs, rhs, dest) / SUB / MUL / DIV: dest = lhs <op> rhs, all
	// register operands.
	ADD
	SUB
	MUL
	DIV
	// ADDI(lhsVal, rhsVal, dest) / SUBI: immediate form used when both
	// operands are literal numbers that fit in a byte (spec.md §4.4).
	ADDI
	SUBI
	// CMP_EQ..CMP_LE(lhs, rhs, dest): dest = I64(1) if lhs <op> rhs else
	// I64(0). Spec.md §4.4 says comparisons "follow the same shape" as
	// ADD/SUB without naming opcodes; these fill that gap.
	CMP_EQ
	CMP_NEQ
	CMP_GT
	CMP_GE
	CMP_LT
	CMP_LE
	// LOGICAL_OR(lhs, rhs, dest): dest = I64(1) if either operand is
	// truthy (an I64 greater than 0), else I64(0).
	LOGICAL_OR
	// CALL(callee, argsBase, argCount) invokes the function in register
	// callee with argCount consecutive argument registers starting at
	// argsBase, overwriting register callee with the result. All three
	// operand bytes are spoken for, so CALL has no separate dest operand.
	CALL
	// NEW(typ, argsBase, argCount) constructs a DynamicObject instance of
	// the type in register typ from argCount consecutive field values
	// starting at argsBase, overwriting register typ with the new
	// instance; emitted for constructor-shaped calls where the callee
	// resolves to a type rather than a function.
	NEW
	// LOAD_CONST(idxHi, idxLo, dest) loads ConstantPool[idxHi<<8|idxLo]
	// into register dest.
	LOAD_CONST
	// IF_JMP_FALSE(cond, targetHi, targetLo) jumps to the instruction at
	// index targetHi<<8|targetLo when register cond holds a falsy value
	// (an I64 of 0 or less); otherwise execution falls through.
	IF_JMP_FALSE
	// JMP(targetHi, targetLo, _) jumps unconditionally. Spec.md §4.4
	// flags this as "may be added as a new opcode"; it is, rather than
	// faking it with an IF_JMP_FALSE on a known-false constant.
	JMP
	// ASSERT_FAIL(msgIdx, hasMsg, _) raises a runtime assertion failure.
	// hasMsg is 1 when the source Assert had a message, and msgIdx is
	// then the gc_ref_data index of that interned message string;
	// hasMsg is 0 when there is no message.
	ASSERT_FAIL
	// TRY(fnReg, _, dest) invokes the zero-argument function chunk in
	// register fnReg; on success dest holds its result, on a
	// RuntimeError dest holds Atom("error") instead of propagating (see
	// DESIGN.md's Try(expr) resolution).
	TRY
	// MOV(src, _, dest) copies R[src] into R[dest]. Spec.md §4.4 says
	// this core "does not emit moves beyond LOAD_CONST", but merging
	// If/Match branches into one destination register needs a genuine
	// register-to-register copy, not an immediate add of a register
	// index (see the MOV note in DESIGN.md's compiler section); added the same
	// way JMP was: a new opcode rather than an overloaded ADDI.
	MOV
	// GET_GLOBAL(rootReg, _, dest) copies register rootReg of the
	// program's root frame into the current frame's register dest. The
	// register file is per-chunk with no upvalue mechanism, but the root
	// frame is the one frame guaranteed to stay on the call stack for the
	// program's entire lifetime, so a nested function body reading a
	// top-level name (a global, or its own name for recursion) is
	// compiled as a read from the root frame rather than the local one
	// (see DESIGN.md).
	GET_GLOBAL
)

var opcodeNames = map[Opcode]string{
	RETURN:       "RETURN",
	ADD:          "ADD",
	SUB:          "SUB",
	MUL:          "MUL",
	DIV:          "DIV",
	ADDI:         "ADDI",
	SUBI:         "SUBI",
	CMP_EQ:       "CMP_EQ",
	CMP_NEQ:      "CMP_NEQ",
	CMP_GT:       "CMP_GT",
	CMP_GE:       "CMP_GE",
	CMP_LT:       "CMP_LT",
	CMP_LE:       "CMP_LE",
	LOGICAL_OR:   "LOGICAL_OR",
	CALL:         "CALL",
	NEW:          "NEW",
	LOAD_CONST:   "LOAD_CONST",
	IF_JMP_FALSE: "IF_JMP_FALSE",
	JMP:          "JMP",
	ASSERT_FAIL:  "ASSERT_FAIL",
	TRY:          "TRY",
	MOV:          "MOV",
	GET_GLOBAL:   "GET_GLOBAL",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE(%d)", byte(op))
}

// Instruction is Gila's fixed-width instruction encoding: one opcode byte
// followed by three operand bytes. Two-operand-byte values (constant
// indices, jump targets) are encoded big-endian across A0/A1 except where
// noted on the opcode itself.
type Instruction struct {
	Op         Opcode
	A0, A1, A2 byte
}

func jumpTarget(a, b byte) int {
	return int(a)<<8 | int(b)
}

func splitJumpTarget(target int) (byte, byte) {
	return byte(target >> 8), byte(target)
}

// Disassemble renders a single instruction in human-readable form,
// resolving constant-pool operands against chunk's constant pool.
func Disassemble(chunk *Chunk, ip int, instr Instruction) string {
	switch instr.Op {
	case LOAD_CONST:
		idx := jumpTarget(instr.A0, instr.A1)
		var val any
		if idx < len(chunk.Constants) {
			val = chunk.Constants[idx]
		}
		return fmt.Sprintf("%04d %-12s const=%d dest=r%d  ; %v", ip, instr.Op, idx, instr.A2, val)
	case IF_JMP_FALSE:
		return fmt.Sprintf("%04d %-12s cond=r%d target=%04d", ip, instr.Op, instr.A0, jumpTarget(instr.A1, instr.A2))
	case JMP:
		return fmt.Sprintf("%04d %-12s target=%04d", ip, instr.Op, jumpTarget(instr.A0, instr.A1))
	case ADDI, SUBI:
		return fmt.Sprintf("%04d %-12s lhs=%d rhs=%d dest=r%d", ip, instr.Op, instr.A0, instr.A1, instr.A2)
	case CALL, NEW:
		return fmt.Sprintf("%04d %-12s base=r%d argsBase=r%d argCount=%d", ip, instr.Op, instr.A0, instr.A1, instr.A2)
	case RETURN, TRY:
		return fmt.Sprintf("%04d %-12s r%d", ip, instr.Op, instr.A0)
	case MOV, GET_GLOBAL:
		return fmt.Sprintf("%04d %-12s src=r%d dest=r%d", ip, instr.Op, instr.A0, instr.A2)
	case ASSERT_FAIL:
		return fmt.Sprintf("%04d %-12s msgIdx=%d hasMsg=%d", ip, instr.Op, instr.A0, instr.A1)
	default:
		return fmt.Sprintf("%04d %-12s lhs=r%d rhs=r%d dest=r%d", ip, instr.Op, instr.A0, instr.A1, instr.A2)
	}
}
