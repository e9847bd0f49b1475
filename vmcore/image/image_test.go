package image

import (
	"testing"

	"github.com/cms-pm/cockpit-vm/isa"
)

func sampleProgram() []isa.Instruction {
	return []isa.Instruction{
		{Opcode: isa.OpPush, Immediate: 5},
		{Opcode: isa.OpPush, Immediate: 7},
		{Opcode: isa.OpAdd},
		{Opcode: isa.OpHalt},
	}
}

func TestEncodeDecodeEnhancedRoundTrip(t *testing.T) {
	program := sampleProgram()
	strings := []string{"hello", "value=%d"}

	body := EncodeEnhanced(program, strings)
	gotProgram, gotStrings, err := DecodeEnhanced(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(gotProgram) != len(program) {
		t.Fatalf("program length = %d, want %d", len(gotProgram), len(program))
	}
	for i := range program {
		if gotProgram[i] != program[i] {
			t.Fatalf("instruction %d mismatch: got %+v want %+v", i, gotProgram[i], program[i])
		}
	}
	if len(gotStrings) != len(strings) {
		t.Fatalf("string count = %d, want %d", len(gotStrings), len(strings))
	}
	for i := range strings {
		if gotStrings[i] != strings[i] {
			t.Fatalf("string %d = %q, want %q", i, gotStrings[i], strings[i])
		}
	}
}

func TestDecodeEnhancedTruncatedBody(t *testing.T) {
	if _, _, err := DecodeEnhanced([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}

func TestWrapUnwrapAutoExecRoundTrip(t *testing.T) {
	program := sampleProgram()
	body := EncodeEnhanced(program, nil)
	wrapped := WrapAutoExec(body, uint32(len(program)), 0)

	unwrapped, err := UnwrapAutoExec(wrapped)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if string(unwrapped) != string(body) {
		t.Fatalf("unwrapped body does not match original")
	}
}

func TestUnwrapAutoExecMagicMismatch(t *testing.T) {
	body := EncodeEnhanced(sampleProgram(), nil)
	wrapped := WrapAutoExec(body, 4, 0)
	wrapped[0] ^= 0xFF // corrupt the magic signature

	if _, err := UnwrapAutoExec(wrapped); err != ErrNoProgram {
		t.Fatalf("got %v, want ErrNoProgram", err)
	}
}

func TestUnwrapAutoExecCRCMismatch(t *testing.T) {
	program := sampleProgram()
	body := EncodeEnhanced(program, nil)
	wrapped := WrapAutoExec(body, uint32(len(program)), 0)
	wrapped[len(wrapped)-1] ^= 0xFF // corrupt a body byte

	if _, err := UnwrapAutoExec(wrapped); err != ErrIntegrityFailure {
		t.Fatalf("got %v, want ErrIntegrityFailure", err)
	}
}

func TestCRC16KnownVector(t *testing.T) {
	// "123456789" -> CRC-16/ARC = 0xBB3D (a commonly cited check value).
	got := crc16ARC([]byte("123456789"))
	if got != 0xBB3D {
		t.Fatalf("crc16ARC(%q) = %#04x, want 0xBB3D", "123456789", got)
	}
}
