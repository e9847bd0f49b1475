package vmcore

import (
	"testing"

	"github.com/cms-pm/cockpit-vm/isa"
)

func TestVMLoadAndExecuteProgram(t *testing.T) {
	vm := NewVM(NewMockBackend())
	program := []isa.Instruction{
		{Opcode: isa.OpPush, Immediate: 10},
		{Opcode: isa.OpPush, Immediate: 5},
		{Opcode: isa.OpSub},
		{Opcode: isa.OpHalt},
	}
	if err := vm.LoadProgram(program); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !vm.ExecuteProgram() {
		t.Fatalf("execution failed: %v", vm.GetLastError())
	}
	v, ok := vm.Engine().Peek()
	if !ok || v != 5 {
		t.Fatalf("got %d, ok=%v, want 5", v, ok)
	}
	if vm.GetInstructionCount() != uint64(len(program)) {
		t.Fatalf("instruction count = %d, want %d", vm.GetInstructionCount(), len(program))
	}
}

func TestVMRejectsInvalidOpcodeAtLoad(t *testing.T) {
	vm := NewVM(NewMockBackend())
	program := []isa.Instruction{{Opcode: isa.Opcode(0x1F)}}
	if err := vm.LoadProgram(program); err == nil {
		t.Fatalf("expected load to reject an unassigned opcode")
	}
	if vm.GetLastError() != ErrInvalidOpcode {
		t.Fatalf("got %v, want ErrInvalidOpcode", vm.GetLastError())
	}
}

func TestVMObserversNotifiedOnCompleteAndReset(t *testing.T) {
	vm := NewVM(NewMockBackend())
	bb := NewBlackboxObserver(16)
	vm.AddObserver(bb)

	program := []isa.Instruction{
		{Opcode: isa.OpPush, Immediate: 1},
		{Opcode: isa.OpHalt},
	}
	if err := vm.LoadProgram(program); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !vm.ExecuteProgram() {
		t.Fatalf("execution failed: %v", vm.GetLastError())
	}
	if bb.completions != 1 {
		t.Fatalf("completions = %d, want 1", bb.completions)
	}
	trace := bb.Trace()
	if len(trace) != len(program) {
		t.Fatalf("trace length = %d, want %d", len(trace), len(program))
	}

	vm.Reset()
	if bb.resets != 1 {
		t.Fatalf("resets = %d, want 1", bb.resets)
	}
}

func TestVMObserverRemoval(t *testing.T) {
	vm := NewVM(NewMockBackend())
	bb := NewBlackboxObserver(4)
	vm.AddObserver(bb)
	if vm.ObserverCount() != 1 {
		t.Fatalf("observer count = %d, want 1", vm.ObserverCount())
	}
	vm.RemoveObserver(bb)
	if vm.ObserverCount() != 0 {
		t.Fatalf("observer count = %d, want 0 after removal", vm.ObserverCount())
	}
}

func TestVMResetClearsMemoryAndProgram(t *testing.T) {
	vm := NewVM(NewMockBackend())
	program := []isa.Instruction{
		{Opcode: isa.OpPush, Immediate: 5},
		{Opcode: isa.OpStoreGlobal, Immediate: 0},
		{Opcode: isa.OpHalt},
	}
	if err := vm.LoadProgram(program); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !vm.ExecuteProgram() {
		t.Fatalf("execution failed: %v", vm.GetLastError())
	}
	vm.Reset()
	if vm.IsRunning() {
		t.Fatalf("vm should not be running after reset")
	}
	if v, ok := vm.Memory().LoadGlobal(0); !ok || v != 0 {
		t.Fatalf("global 0 should be cleared after reset, got %d", v)
	}
}

func TestVMExecuteSingleStep(t *testing.T) {
	vm := NewVM(NewMockBackend())
	program := []isa.Instruction{
		{Opcode: isa.OpPush, Immediate: 1},
		{Opcode: isa.OpPush, Immediate: 2},
		{Opcode: isa.OpAdd},
		{Opcode: isa.OpHalt},
	}
	if err := vm.LoadProgram(program); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	steps := 0
	for vm.IsRunning() {
		if !vm.ExecuteSingleStep() {
			break
		}
		steps++
	}
	if steps != len(program) {
		t.Fatalf("steps = %d, want %d", steps, len(program))
	}
}
