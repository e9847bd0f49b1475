// Package image implements the host-side compiled-program file layout
// (§6.1): the "enhanced" header+instructions+strings form read by
// the CLI, and the auto-execution wrapper the on-device
// bootloader consumes, grounded on
// original_source/lib/vm_compiler/validation/compiler/runtime_validator.cpp
// and lib/bootloader_framework/include/resource_manager.h.
package image

import (
	"encoding/binary"
	"fmt"

	"github.com/cms-pm/cockpit-vm/isa"
)

// MagicSignature identifies a valid auto-execution image. A mismatch
// means "no program" rather than a corrupt one.
const MagicSignature uint32 = 0x434F4B50 // "COKP"

// EncodeEnhanced serializes program and strings into the enhanced
// body layout:
//
//	offset  size   field
//	0       4      instruction_count (u32 LE)
//	4       4      string_count      (u32 LE)
//	8       4*N    instructions      (N = instruction_count)
//	8+4N    ...    strings           (each: u32 length LE, then bytes)
func EncodeEnhanced(program []isa.Instruction, strings []string) []byte {
	words := isa.EncodeProgram(program)

	size := 8 + 4*len(words)
	for _, s := range strings {
		size += 4 + len(s)
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(program)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(strings)))

	off := 8
	for _, w := range words {
		binary.LittleEndian.PutUint32(buf[off:off+4], w)
		off += 4
	}
	for _, s := range strings {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(s)))
		off += 4
		copy(buf[off:off+len(s)], s)
		off += len(s)
	}
	return buf
}

// DecodeEnhanced parses the enhanced body layout back into a program
// and its string table. It returns an error if body is truncated
// relative to the header's declared counts.
func DecodeEnhanced(body []byte) ([]isa.Instruction, []string, error) {
	if len(body) < 8 {
		return nil, nil, fmt.Errorf("image: body too short for header: %d bytes", len(body))
	}
	instructionCount := binary.LittleEndian.Uint32(body[0:4])
	stringCount := binary.LittleEndian.Uint32(body[4:8])

	off := 8
	need := off + 4*int(instructionCount)
	if len(body) < need {
		return nil, nil, fmt.Errorf("image: body too short for %d instructions", instructionCount)
	}
	words := make([]uint32, instructionCount)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(body[off : off+4])
		off += 4
	}
	program := isa.DecodeProgram(words)

	stringsOut := make([]string, stringCount)
	for i := range stringsOut {
		if off+4 > len(body) {
			return nil, nil, fmt.Errorf("image: truncated string length at string %d", i)
		}
		length := int(binary.LittleEndian.Uint32(body[off : off+4]))
		off += 4
		if off+length > len(body) {
			return nil, nil, fmt.Errorf("image: truncated string body at string %d", i)
		}
		stringsOut[i] = string(body[off : off+length])
		off += length
	}
	return program, stringsOut, nil
}

// WrapAutoExec wraps an enhanced body with the on-device
// auto-execution header: magic signature, body size, the same
// instruction/string counts (duplicated here so the bootloader can
// validate without parsing the body), and a CRC-16/ARC checksum over
// body.
func WrapAutoExec(body []byte, instructionCount, stringCount uint32) []byte {
	crc := crc16ARC(body)

	out := make([]byte, 4+4+4+4+2+len(body))
	binary.LittleEndian.PutUint32(out[0:4], MagicSignature)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	binary.LittleEndian.PutUint32(out[8:12], instructionCount)
	binary.LittleEndian.PutUint32(out[12:16], stringCount)
	binary.LittleEndian.PutUint16(out[16:18], crc)
	copy(out[18:], body)
	return out
}

// UnwrapAutoExec validates and strips the auto-execution header,
// returning the enclosed enhanced body. It reports a distinct error
// for a magic mismatch ("no program") versus a CRC mismatch
// ("integrity failure"), matching §6.1's two auto-execution halt
// reasons.
func UnwrapAutoExec(wrapped []byte) ([]byte, error) {
	const headerSize = 4 + 4 + 4 + 4 + 2
	if len(wrapped) < headerSize {
		return nil, fmt.Errorf("image: wrapped image too short for header: %d bytes", len(wrapped))
	}
	magic := binary.LittleEndian.Uint32(wrapped[0:4])
	if magic != MagicSignature {
		return nil, ErrNoProgram
	}
	bodySize := binary.LittleEndian.Uint32(wrapped[4:8])
	crc := binary.LittleEndian.Uint16(wrapped[16:18])

	if headerSize+int(bodySize) > len(wrapped) {
		return nil, fmt.Errorf("image: declared body size %d exceeds available bytes", bodySize)
	}
	body := wrapped[headerSize : headerSize+int(bodySize)]
	if crc16ARC(body) != crc {
		return nil, ErrIntegrityFailure
	}
	return body, nil
}

// ErrNoProgram and ErrIntegrityFailure are the two auto-execution
// halt reasons §6.1 names.
var (
	ErrNoProgram        = fmt.Errorf("image: magic signature mismatch (no program)")
	ErrIntegrityFailure = fmt.Errorf("image: CRC-16 mismatch (integrity failure)")
)

// crc16Table is the standard CRC-16/ARC lookup table (polynomial
// 0xA001, reflected). No example repo in the corpus vendors a CRC
// library, so this one piece of §6.1 is hand-rolled rather than
// third-party; the rest of this package uses encoding/binary from the
// standard library (see DESIGN.md).
var crc16Table = func() [256]uint16 {
	var table [256]uint16
	const poly = 0xA001
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}()

func crc16ARC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[(crc^uint16(b))&0xFF]
	}
	return crc
}
