package vmcore

import (
	"time"

	"github.com/cms-pm/cockpit-vm/isa"
)

// PerformanceMetrics mirrors ComponentVM::PerformanceMetrics: counters
// a caller can read after a run without the VM owning any specific
// metrics backend.
type PerformanceMetrics struct {
	ExecutionTimeMs    uint32
	InstructionsExecuted uint64
	MemoryOperations   uint64
	IOOperations       uint64
}

// isMemoryOpcode and isIOOpcode classify an opcode for metrics
// purposes, mirroring the bank layout in isa.
func isMemoryOpcode(op isa.Opcode) bool { return op.IsMemoryOp() }
func isIOOpcode(op isa.Opcode) bool {
	return op >= isa.OpDigitalWrite && op <= isa.OpMicros
}

// VM is the component facade (C8): it owns the Engine, Memory, and
// IOController in the construction order ComponentVM's RAII layout
// fixes (engine first, memory next, io last), and coordinates
// load/execute/reset across all three plus observer notification and
// performance metrics. This is the type every caller (ivmctl, tests)
// actually uses rather than wiring vmcore's internals by hand.
type VM struct {
	engine *Engine
	memory *Memory
	io     *IOController

	programLoaded bool
	lastError     VMError

	metrics      PerformanceMetrics
	executionStart time.Time

	observers []TelemetryObserver
}

// NewVM constructs a VM with the given HAL backend. Construction order
// matches ComponentVM: engine, then memory, then io.
func NewVM(backend HALBackend) *VM {
	return &VM{
		engine: NewEngine(),
		memory: NewMemory(),
		io:     NewIOController(backend),
	}
}

// Engine, Memory, and IO expose the underlying components for testing
// and debugging, matching ComponentVM::get_execution_engine /
// get_memory_manager / get_io_controller.
func (vm *VM) Engine() *Engine       { return vm.engine }
func (vm *VM) Memory() *Memory       { return vm.memory }
func (vm *VM) IO() *IOController     { return vm.io }

// LoadProgram loads program with no string literals.
func (vm *VM) LoadProgram(program []isa.Instruction) error {
	return vm.LoadProgramWithStrings(program, nil)
}

// LoadProgramWithStrings loads program and populates the IO
// controller's compile-time string table, matching
// ComponentVM::load_program_with_strings.
func (vm *VM) LoadProgramWithStrings(program []isa.Instruction, strings []string) error {
	for _, in := range program {
		if err := in.Validate(); err != nil {
			vm.lastError = ErrInvalidOpcode
			return err
		}
	}
	if err := vm.io.InitializeHardware(); err != nil {
		vm.lastError = ErrHardwareFault
		return err
	}
	for _, s := range strings {
		if _, ok := vm.io.AddString(s); !ok {
			vm.lastError = ErrMemoryBounds
			return ErrMemoryBounds
		}
	}
	vm.engine.SetProgram(program)
	vm.programLoaded = true
	vm.lastError = ErrNone
	return nil
}

// IsRunning reports whether a program is loaded and has not halted.
func (vm *VM) IsRunning() bool {
	return vm.programLoaded && !vm.engine.IsHalted()
}

// IsHalted reports whether the engine has halted (by HALT, an error,
// or running off the end of the program).
func (vm *VM) IsHalted() bool {
	return vm.engine.IsHalted()
}

// GetInstructionCount returns how many instructions have executed
// since the VM was constructed or last reset (Reset or
// ResetPerformanceMetrics); loading a program does not zero it.
func (vm *VM) GetInstructionCount() uint64 {
	return vm.metrics.InstructionsExecuted
}

// ExecuteSingleStep runs exactly one instruction, matching
// ComponentVM::execute_single_step. It notifies observers and updates
// metrics for that one step.
func (vm *VM) ExecuteSingleStep() bool {
	if !vm.programLoaded || vm.engine.IsHalted() {
		return false
	}
	if vm.metrics.InstructionsExecuted == 0 {
		vm.executionStart = time.Now()
	}

	pc := vm.engine.PC()
	var opcode isa.Opcode
	var operand uint16
	if pc < len(vm.programInstructions()) {
		in := vm.programInstructions()[pc]
		opcode, operand = in.Opcode, in.Immediate
	}

	ok := vm.engine.ExecuteSingleInstruction(vm.memory, vm.io)
	vm.metrics.InstructionsExecuted++
	if isMemoryOpcode(opcode) {
		vm.metrics.MemoryOperations++
	}
	if isIOOpcode(opcode) {
		vm.metrics.IOOperations++
	}
	vm.notifyInstructionExecuted(uint32(pc), uint8(opcode), uint32(operand))

	if !ok {
		vm.lastError = vm.engine.LastError()
	}
	if vm.engine.IsHalted() {
		vm.finishExecution()
	}
	return ok
}

// ExecuteProgram runs the loaded program to completion (HALT, an
// error, or running off the end), matching
// ComponentVM::execute_program's all-in-one convenience call.
func (vm *VM) ExecuteProgram() bool {
	if !vm.programLoaded {
		vm.lastError = ErrProgramNotLoaded
		return false
	}
	for !vm.engine.IsHalted() {
		if !vm.ExecuteSingleStep() {
			return vm.engine.LastError() == ErrNone
		}
	}
	return vm.lastError == ErrNone
}

func (vm *VM) finishExecution() {
	vm.metrics.ExecutionTimeMs = uint32(time.Since(vm.executionStart).Milliseconds())
	vm.notifyExecutionComplete()
}

// programInstructions exposes the engine's loaded program for metrics
// classification.
func (vm *VM) programInstructions() []isa.Instruction {
	return vm.engine.Program()
}

// Reset clears all VM state: engine, memory, and IO controller,
// matching ComponentVM::reset_vm.
func (vm *VM) Reset() {
	vm.engine.Reset()
	vm.memory.Reset()
	vm.io.ResetHardware()
	vm.programLoaded = false
	vm.lastError = ErrNone
	vm.metrics = PerformanceMetrics{}
	vm.notifyVMReset()
}

// GetLastError returns the most recent VMError recorded by load or
// execution.
func (vm *VM) GetLastError() VMError { return vm.lastError }

// GetPerformanceMetrics returns a copy of the current metrics.
func (vm *VM) GetPerformanceMetrics() PerformanceMetrics { return vm.metrics }

// ResetPerformanceMetrics zeroes the metrics counters without
// resetting VM state.
func (vm *VM) ResetPerformanceMetrics() { vm.metrics = PerformanceMetrics{} }

// AddObserver registers an observer for execution telemetry, matching
// ComponentVM::add_observer.
func (vm *VM) AddObserver(o TelemetryObserver) {
	vm.observers = append(vm.observers, o)
}

// RemoveObserver unregisters a previously added observer.
func (vm *VM) RemoveObserver(o TelemetryObserver) {
	for i, existing := range vm.observers {
		if existing == o {
			vm.observers = append(vm.observers[:i], vm.observers[i+1:]...)
			return
		}
	}
}

// ClearObservers removes every registered observer.
func (vm *VM) ClearObservers() { vm.observers = nil }

// ObserverCount reports how many observers are registered.
func (vm *VM) ObserverCount() int { return len(vm.observers) }

func (vm *VM) notifyInstructionExecuted(pc uint32, opcode uint8, operand uint32) {
	for _, o := range vm.observers {
		o.OnInstructionExecuted(pc, opcode, operand)
	}
}

func (vm *VM) notifyExecutionComplete() {
	for _, o := range vm.observers {
		o.OnExecutionComplete(uint32(vm.metrics.InstructionsExecuted), vm.metrics.ExecutionTimeMs)
	}
}

func (vm *VM) notifyVMReset() {
	for _, o := range vm.observers {
		o.OnVMReset()
	}
}
