package isa

import (
	"fmt"
)

// Flags is a bitfield carried alongside an opcode. Only FlagSigned is
// assigned today; the remaining bits are reserved and must be zero.
type Flags uint8

const (
	// FlagSigned selects the signed-comparison variant of a comparison
	// opcode, or signed interpretation of an arithmetic immediate.
	FlagSigned Flags = 1 << 0

	flagsReservedMask = ^Flags(FlagSigned)
)

// Instruction is the in-memory representation of one 32-bit VM word:
// an 8-bit opcode, an 8-bit flags byte, and a 16-bit immediate operand.
// This mirrors VM::Instruction in the original packed struct.
type Instruction struct {
	Opcode    Opcode
	Flags     Flags
	Immediate uint16
}

// Signed reinterprets Immediate as a two's-complement 16-bit value,
// valid when FlagSigned is set.
func (in Instruction) Signed() int16 {
	return int16(in.Immediate)
}

// Encode packs an Instruction into its 32-bit word form:
// encode(op, flags, imm) = (op<<24) | (flags<<16) | imm. The word
// itself is stored little-endian when serialized to a file (see
// vmcore/image), so the on-disk byte order is imm-low, imm-high,
// flags, opcode.
func Encode(in Instruction) uint32 {
	return uint32(in.Opcode)<<24 | uint32(in.Flags)<<16 | uint32(in.Immediate)
}

// Decode unpacks a 32-bit word into an Instruction. It does not
// validate that the opcode is assigned; callers that need that check
// should call Opcode.IsAssigned separately.
func Decode(word uint32) Instruction {
	return Instruction{
		Opcode:    Opcode(word >> 24),
		Flags:     Flags((word >> 16) & 0xFF),
		Immediate: uint16(word & 0xFFFF),
	}
}

// Validate reports whether in is well-formed: the opcode must be one of
// the assigned values and no reserved flag bit may be set.
//
// OP_CALL is the one exception: its Flags byte carries the callee's
// argument count rather than modifier bits (the engine's call-frame
// area needs the count to know how many already-pushed operand-stack
// values belong to this call), so the reserved-bit check does not
// apply to it.
func (in Instruction) Validate() error {
	if !in.Opcode.IsAssigned() {
		return fmt.Errorf("isa: opcode %#02x is not assigned", uint8(in.Opcode))
	}
	if in.Opcode == OpCall {
		return nil
	}
	if in.Flags&flagsReservedMask != 0 {
		return fmt.Errorf("isa: reserved flag bits set: %#02x", uint8(in.Flags))
	}
	return nil
}

// EncodeProgram packs a slice of instructions into their little-endian
// wire words, in order.
func EncodeProgram(program []Instruction) []uint32 {
	words := make([]uint32, len(program))
	for i, in := range program {
		words[i] = Encode(in)
	}
	return words
}

// DecodeProgram unpacks a slice of little-endian wire words into
// instructions, in order.
func DecodeProgram(words []uint32) []Instruction {
	program := make([]Instruction, len(words))
	for i, w := range words {
		program[i] = Decode(w)
	}
	return program
}

// Disassemble renders a single instruction as one human-readable line,
// in the "PC: MNEMONIC operand" form the teacher's debug REPL prints.
func Disassemble(pc int, in Instruction) string {
	mnemonic := in.Opcode.String()
	if in.Flags&FlagSigned != 0 {
		return fmt.Sprintf("%04d: %-16s %d (signed)", pc, mnemonic, in.Signed())
	}
	if in.Opcode.IsMemoryOp() || in.Opcode == OpPush || in.Opcode == OpJmp ||
		in.Opcode == OpJmpTrue || in.Opcode == OpJmpFalse || in.Opcode == OpCall {
		return fmt.Sprintf("%04d: %-16s %d", pc, mnemonic, in.Immediate)
	}
	return fmt.Sprintf("%04d: %s", pc, mnemonic)
}

// DisassembleProgram renders every instruction in program, one line per
// instruction, as used by `ivmctl disasm`.
func DisassembleProgram(program []Instruction) []string {
	lines := make([]string, len(program))
	for pc, in := range program {
		lines[pc] = Disassemble(pc, in)
	}
	return lines
}
