package isa

import "testing"

func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: got %v, want %v", msg, got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Instruction{
		{Opcode: OpPush, Flags: 0, Immediate: 42},
		{Opcode: OpHalt, Flags: 0, Immediate: 0},
		{Opcode: OpLtSigned, Flags: FlagSigned, Immediate: 0xFFFF},
		{Opcode: OpJmp, Flags: 0, Immediate: 1000},
	}
	for _, in := range cases {
		word := Encode(in)
		out := Decode(word)
		assertEqual(t, out.Opcode, in.Opcode, "opcode")
		assertEqual(t, out.Flags, in.Flags, "flags")
		assertEqual(t, out.Immediate, in.Immediate, "immediate")
	}
}

func TestEncodeByteLayout(t *testing.T) {
	// encode(op, flags, imm) = (op<<24) | (flags<<16) | imm, per §4.1.
	in := Instruction{Opcode: OpAdd, Flags: FlagSigned, Immediate: 0x0102}
	word := Encode(in)
	assertEqual(t, byte(word>>24), byte(OpAdd), "opcode in top byte")
	assertEqual(t, byte(word>>16), byte(FlagSigned), "flags in next byte")
	assertEqual(t, uint16(word), uint16(0x0102), "immediate in low 16 bits")
}

func TestOpcodeStringKnownAndReserved(t *testing.T) {
	assertEqual(t, OpHalt.String(), "HALT", "known mnemonic")
	assertEqual(t, OpBitwiseXor.String(), "BITWISE_XOR", "known mnemonic")
	if Opcode(0x1F).IsAssigned() {
		t.Fatalf("0x1F should not be assigned")
	}
	if Opcode(0x70).IsAssigned() {
		t.Fatalf("0x70 is past MaxOpcode and should not be assigned")
	}
}

func TestInstructionValidate(t *testing.T) {
	good := Instruction{Opcode: OpPush, Flags: 0, Immediate: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badOpcode := Instruction{Opcode: Opcode(0xFF), Flags: 0, Immediate: 0}
	if err := badOpcode.Validate(); err == nil {
		t.Fatalf("expected error for unassigned opcode")
	}

	badFlags := Instruction{Opcode: OpPush, Flags: 0xFE, Immediate: 0}
	if err := badFlags.Validate(); err == nil {
		t.Fatalf("expected error for reserved flag bits")
	}
}

func TestDisassembleProgram(t *testing.T) {
	program := []Instruction{
		{Opcode: OpPush, Immediate: 5},
		{Opcode: OpPush, Immediate: 7},
		{Opcode: OpAdd},
		{Opcode: OpHalt},
	}
	lines := DisassembleProgram(program)
	assertEqual(t, len(lines), 4, "line count")
	assertEqual(t, lines[2], "0002: ADD", "no-operand mnemonic formatting")
}

func TestEncodeProgramRoundTrip(t *testing.T) {
	program := []Instruction{
		{Opcode: OpPush, Immediate: 1},
		{Opcode: OpHalt},
	}
	words := EncodeProgram(program)
	back := DecodeProgram(words)
	assertEqual(t, len(back), len(program), "length preserved")
	for i := range program {
		assertEqual(t, back[i], program[i], "round trip element")
	}
}
