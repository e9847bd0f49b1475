package vmcore

import (
	"github.com/cms-pm/cockpit-vm/isa"
)

// StackSize is the fixed operand-stack depth, grounded on
// ExecutionEngine::STACK_SIZE.
const StackSize = 1024

const (
	stackBottomCanary uint32 = 0xDEADBEEF
	stackTopCanary    uint32 = 0xCAFEBABE
)

// Action is the explicit PC-control directive a handler returns,
// grounded on VM::HandlerReturn — handlers never mutate pc_ directly,
// they describe what should happen and the engine's dispatch loop
// acts on it.
type Action uint8

const (
	ActionContinue Action = iota
	ActionJump
	ActionHalt
	ActionError
)

// HandlerResult is what every opcode handler returns, grounded on
// VM::HandlerResult.
type HandlerResult struct {
	Action  Action
	Address int
	Err     VMError
}

func resultContinue() HandlerResult { return HandlerResult{Action: ActionContinue} }
func resultHalt() HandlerResult     { return HandlerResult{Action: ActionHalt} }
func resultJump(addr int) HandlerResult {
	return HandlerResult{Action: ActionJump, Address: addr}
}
func resultError(err VMError) HandlerResult {
	return HandlerResult{Action: ActionError, Err: err}
}

type opcodeHandler func(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult

// callFrame is one function activation. Rather than packing the
// return address and locals into the shared operand stack (the
// fragile "stack-as-frame" contract the original engine's declared
// but never implemented handle_load_local/handle_store_local left
// unresolved), the engine owns a small call-frame area: LOAD_LOCAL
// and STORE_LOCAL address into locals, CALL/RET manage returnPC here.
// This is invisible to the emitter and to compiled programs — CALL
// and RET still look the same from the bytecode's perspective.
type callFrame struct {
	returnPC int
	locals   []int32
}

// Engine is the stack-machine execution core (C5): a fixed 1024-slot
// int32 operand stack guarded by canary sentinels, a flat program of
// decoded instructions, a call-frame area for locals/return addresses,
// and a handler-table dispatch loop that advances PC only via the
// HandlerResult actions handlers return.
type Engine struct {
	stack [StackSize]int32
	sp    int
	pc    int

	program []isa.Instruction

	callStack []callFrame

	halted    bool
	lastError VMError
}

// NewEngine constructs an idle Engine with canaries initialized.
func NewEngine() *Engine {
	e := &Engine{}
	e.initCanaries()
	return e
}

// initCanaries writes the guard sentinels into the two reserved slots
// at the bottom and top of the physical stack array. The operand
// stack itself only ever occupies indices [1, StackSize-2]; slot 0 and
// slot StackSize-1 are never addressed by Push/Pop, so any write that
// reaches them is by definition an out-of-bounds corruption.
func (e *Engine) initCanaries() {
	e.stack[0] = int32(stackBottomCanary)
	e.stack[StackSize-1] = int32(stackTopCanary)
	e.sp = 1
}

// ValidateCanaries reports whether the guard sentinels are intact.
// A mismatch means something wrote past the stack's logical bounds.
func (e *Engine) ValidateCanaries() bool {
	return uint32(e.stack[0]) == stackBottomCanary && uint32(e.stack[StackSize-1]) == stackTopCanary
}

// SetProgram loads program and resets PC/SP/halt state, matching
// ExecutionEngine::set_program.
func (e *Engine) SetProgram(program []isa.Instruction) {
	e.program = program
	e.pc = 0
	e.callStack = nil
	e.halted = false
	e.lastError = ErrNone
	e.initCanaries()
}

// Reset clears the stack, PC, call frames, and halt/error state,
// matching ExecutionEngine::reset.
func (e *Engine) Reset() {
	e.stack = [StackSize]int32{}
	e.pc = 0
	e.callStack = nil
	e.halted = false
	e.lastError = ErrNone
	e.initCanaries()
}

// currentFrame returns the active call frame, or nil if no function
// call is in progress (before the entry call is dispatched, or after
// the outermost call has returned).
func (e *Engine) currentFrame() *callFrame {
	if len(e.callStack) == 0 {
		return nil
	}
	return &e.callStack[len(e.callStack)-1]
}

// Program exposes the currently loaded instruction stream, for
// callers (like the VM facade's metrics classification) that need to
// inspect an instruction without executing it.
func (e *Engine) Program() []isa.Instruction { return e.program }

func (e *Engine) PC() int            { return e.pc }
func (e *Engine) SP() int            { return e.sp }
func (e *Engine) IsHalted() bool     { return e.halted }
func (e *Engine) LastError() VMError { return e.lastError }

// StackDepth reports how many operand values are currently on the
// stack (excluding the reserved bottom-canary slot).
func (e *Engine) StackDepth() int { return e.sp - 1 }

// Push pushes value onto the operand stack. It returns false
// (ErrStackOverflow) if the stack is full. sp is bounded to
// [1, StackSize-1], so values only ever land in slots [1, StackSize-2]:
// slot 0 (bottom canary) and slot StackSize-1 (top canary) are never
// written by normal operand traffic.
func (e *Engine) Push(value int32) bool {
	if e.sp >= StackSize-1 {
		e.lastError = ErrStackOverflow
		return false
	}
	e.stack[e.sp] = value
	e.sp++
	return true
}

// Pop removes and returns the top of the operand stack. It returns
// false (ErrStackUnderflow) if the stack is empty (sp at its floor of
// 1, just above the bottom canary).
func (e *Engine) Pop() (int32, bool) {
	if e.sp <= 1 {
		e.lastError = ErrStackUnderflow
		return 0, false
	}
	e.sp--
	return e.stack[e.sp], true
}

// Peek returns the top of the operand stack without removing it.
func (e *Engine) Peek() (int32, bool) {
	if e.sp <= 1 {
		return 0, false
	}
	return e.stack[e.sp-1], true
}

// StackAt returns the operand stack slot at index (0 = oldest/bottom
// entry), without mutating sp. It exists for read-only introspection
// (the debug TUI's stack pane) that must not disturb execution state.
// Index 0 maps to physical slot 1 — slot 0 is the bottom canary, never
// a live operand.
func (e *Engine) StackAt(index int) (int32, bool) {
	slot := index + 1
	if index < 0 || slot >= e.sp {
		return 0, false
	}
	return e.stack[slot], true
}

// ExecuteSingleInstruction decodes and dispatches one instruction at
// the current PC, mutating engine/memory/io state per the handler's
// HandlerResult. It returns false on any error (including PC out of
// range or an unassigned opcode), with LastError() set.
func (e *Engine) ExecuteSingleInstruction(mem *Memory, io *IOController) bool {
	if e.halted {
		return true
	}
	if e.pc >= len(e.program) {
		e.lastError = ErrInvalidJump
		e.halted = true
		return false
	}
	if !e.ValidateCanaries() {
		e.lastError = ErrStackCorruption
		e.halted = true
		return false
	}

	in := e.program[e.pc]
	handler, ok := dispatchTable[in.Opcode]
	if !ok {
		e.lastError = ErrInvalidOpcode
		e.halted = true
		return false
	}

	result := handler(e, in, mem, io)
	switch result.Action {
	case ActionContinue:
		e.pc++
		return true
	case ActionJump:
		if result.Address < 0 || result.Address > len(e.program) {
			e.lastError = ErrInvalidJump
			e.halted = true
			return false
		}
		e.pc = result.Address
		return true
	case ActionHalt:
		e.halted = true
		return true
	case ActionError:
		e.lastError = result.Err
		e.halted = true
		return false
	default:
		e.lastError = ErrExecutionFailed
		e.halted = true
		return false
	}
}
