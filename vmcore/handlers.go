package vmcore

import "github.com/cms-pm/cockpit-vm/isa"

// dispatchTable is the compile-time opcode -> handler map, grounded on
// ExecutionEngine's function-pointer dispatch table
// (opcode_handlers_/new_opcode_handlers_), generalized here to a Go
// map keyed by isa.Opcode rather than a fixed C array.
var dispatchTable = map[isa.Opcode]opcodeHandler{
	isa.OpHalt: handleHalt,
	isa.OpPush: handlePush,
	isa.OpPop:  handlePop,
	isa.OpAdd:  handleArith(func(a, b int32) int32 { return a + b }),
	isa.OpSub:  handleArith(func(a, b int32) int32 { return a - b }),
	isa.OpMul:  handleArith(func(a, b int32) int32 { return a * b }),
	isa.OpDiv:  handleDiv,
	isa.OpMod:  handleMod,
	isa.OpCall: handleCall,
	isa.OpRet:  handleRet,

	isa.OpDigitalWrite:   handleDigitalWrite,
	isa.OpDigitalRead:    handleDigitalRead,
	isa.OpAnalogWrite:    handleAnalogWrite,
	isa.OpAnalogRead:     handleAnalogRead,
	isa.OpDelay:          handleDelay,
	isa.OpButtonPressed:  handleButtonPressed,
	isa.OpButtonReleased: handleButtonReleased,
	isa.OpPinMode:        handlePinMode,
	isa.OpPrintf:         handlePrintf,
	isa.OpMillis:         handleMillis,
	isa.OpMicros:         handleMicros,

	isa.OpEq: handleCompareUnsigned(func(a, b uint32) bool { return a == b }),
	isa.OpNe: handleCompareUnsigned(func(a, b uint32) bool { return a != b }),
	isa.OpLt: handleCompareUnsigned(func(a, b uint32) bool { return a < b }),
	isa.OpGt: handleCompareUnsigned(func(a, b uint32) bool { return a > b }),
	isa.OpLe: handleCompareUnsigned(func(a, b uint32) bool { return a <= b }),
	isa.OpGe: handleCompareUnsigned(func(a, b uint32) bool { return a >= b }),

	isa.OpEqSigned: handleCompareSigned(func(a, b int32) bool { return a == b }),
	isa.OpNeSigned: handleCompareSigned(func(a, b int32) bool { return a != b }),
	isa.OpLtSigned: handleCompareSigned(func(a, b int32) bool { return a < b }),
	isa.OpGtSigned: handleCompareSigned(func(a, b int32) bool { return a > b }),
	isa.OpLeSigned: handleCompareSigned(func(a, b int32) bool { return a <= b }),
	isa.OpGeSigned: handleCompareSigned(func(a, b int32) bool { return a >= b }),

	isa.OpJmp:      handleJmp,
	isa.OpJmpTrue:  handleJmpTrue,
	isa.OpJmpFalse: handleJmpFalse,

	isa.OpAnd: handleAnd,
	isa.OpOr:  handleOr,
	isa.OpNot: handleNot,

	isa.OpLoadGlobal:  handleLoadGlobal,
	isa.OpStoreGlobal: handleStoreGlobal,
	isa.OpLoadLocal:   handleLoadLocal,
	isa.OpStoreLocal:  handleStoreLocal,
	isa.OpLoadArray:   handleLoadArray,
	isa.OpStoreArray:  handleStoreArray,
	isa.OpCreateArray: handleCreateArray,

	isa.OpBitwiseAnd: handleArith(func(a, b int32) int32 { return a & b }),
	isa.OpBitwiseOr:  handleArith(func(a, b int32) int32 { return a | b }),
	isa.OpBitwiseXor: handleArith(func(a, b int32) int32 { return a ^ b }),
	isa.OpBitwiseNot: handleBitwiseNot,
	isa.OpShiftLeft:  handleArith(func(a, b int32) int32 { return a << uint32(b) }),
	isa.OpShiftRight: handleArith(func(a, b int32) int32 { return a >> uint32(b) }),
}

// ============= CORE =============

func handleHalt(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	return resultHalt()
}

func handlePush(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	value := int32(in.Immediate)
	if in.Flags&isa.FlagSigned != 0 {
		value = int32(in.Signed())
	}
	if !e.Push(value) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handlePop(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	if _, ok := e.Pop(); !ok {
		return resultError(ErrStackUnderflow)
	}
	return resultContinue()
}

// handleArith returns a handler for any binary int32 operator: pop b,
// pop a, push op(a, b).
func handleArith(op func(a, b int32) int32) opcodeHandler {
	return func(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
		b, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		a, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		if !e.Push(op(a, b)) {
			return resultError(ErrStackOverflow)
		}
		return resultContinue()
	}
}

func handleDiv(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	b, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	a, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if b == 0 {
		return resultError(ErrDivisionByZero)
	}
	if !e.Push(a / b) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleMod(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	b, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	a, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if b == 0 {
		return resultError(ErrDivisionByZero)
	}
	if !e.Push(a % b) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

// handleCall implements the CALL opcode: the caller has already
// pushed the callee's arguments onto the operand stack, left to right
// (arg0 deepest). in.Flags carries argCount. A new call frame is
// pushed with those argCount values as locals[0..argCount-1]; control
// jumps to in.Immediate.
func handleCall(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	argCount := int(in.Flags)
	locals := make([]int32, argCount)
	for i := argCount - 1; i >= 0; i-- {
		v, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		locals[i] = v
	}
	if int(in.Immediate) > len(e.program) {
		return resultError(ErrInvalidJump)
	}
	e.callStack = append(e.callStack, callFrame{returnPC: e.pc + 1, locals: locals})
	return resultJump(int(in.Immediate))
}

// handleRet implements RET: pop the current call frame and resume at
// its return address. Any value the callee wants to return is simply
// whatever it left on top of the (shared) operand stack.
func handleRet(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	frame := e.currentFrame()
	if frame == nil {
		return resultHalt()
	}
	returnPC := frame.returnPC
	e.callStack = e.callStack[:len(e.callStack)-1]
	if returnPC >= len(e.program) {
		return resultHalt()
	}
	return resultJump(returnPC)
}

// ============= COMPARISONS =============

func handleCompareUnsigned(cmp func(a, b uint32) bool) opcodeHandler {
	return func(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
		b, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		a, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		ua, ub := uint32(a), uint32(b)
		if in.Flags&isa.FlagSigned != 0 {
			// Flipping the sign bit maps signed order onto unsigned order.
			ua ^= 0x80000000
			ub ^= 0x80000000
		}
		if !e.Push(boolToInt32(cmp(ua, ub))) {
			return resultError(ErrStackOverflow)
		}
		return resultContinue()
	}
}

func handleCompareSigned(cmp func(a, b int32) bool) opcodeHandler {
	return func(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
		b, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		a, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		if !e.Push(boolToInt32(cmp(a, b))) {
			return resultError(ErrStackOverflow)
		}
		return resultContinue()
	}
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// ============= CONTROL FLOW =============

func handleJmp(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	target := e.pc + 1 + int(int16(in.Immediate))
	if target < 0 || target > len(e.program) {
		return resultError(ErrInvalidJump)
	}
	return resultJump(target)
}

func handleJmpTrue(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	v, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if v == 0 {
		return resultContinue()
	}
	target := e.pc + 1 + int(int16(in.Immediate))
	if target < 0 || target > len(e.program) {
		return resultError(ErrInvalidJump)
	}
	return resultJump(target)
}

func handleJmpFalse(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	v, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if v != 0 {
		return resultContinue()
	}
	target := e.pc + 1 + int(int16(in.Immediate))
	if target < 0 || target > len(e.program) {
		return resultError(ErrInvalidJump)
	}
	return resultJump(target)
}

// ============= LOGICAL =============

func handleAnd(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	b, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	a, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if !e.Push(boolToInt32(a != 0 && b != 0)) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleOr(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	b, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	a, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if !e.Push(boolToInt32(a != 0 || b != 0)) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleNot(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	v, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if !e.Push(boolToInt32(v == 0)) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleBitwiseNot(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	v, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if !e.Push(^v) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

// ============= MEMORY =============

func handleLoadGlobal(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	v, ok := mem.LoadGlobal(uint8(in.Immediate))
	if !ok {
		return resultError(ErrMemoryBounds)
	}
	if !e.Push(v) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleStoreGlobal(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	v, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if !mem.StoreGlobal(uint8(in.Immediate), v) {
		return resultError(ErrMemoryBounds)
	}
	return resultContinue()
}

func handleLoadLocal(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	frame := e.currentFrame()
	if frame == nil {
		return resultError(ErrExecutionFailed)
	}
	idx := int(in.Immediate)
	if idx >= len(frame.locals) {
		return resultError(ErrMemoryBounds)
	}
	if !e.Push(frame.locals[idx]) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleStoreLocal(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	frame := e.currentFrame()
	if frame == nil {
		return resultError(ErrExecutionFailed)
	}
	v, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	idx := int(in.Immediate)
	if idx >= len(frame.locals) {
		grown := make([]int32, idx+1)
		copy(grown, frame.locals)
		frame.locals = grown
	}
	frame.locals[idx] = v
	return resultContinue()
}

func handleLoadArray(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	idx, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if idx < 0 {
		return resultError(ErrMemoryBounds)
	}
	v, ok := mem.LoadArrayElement(uint8(in.Immediate), uint16(idx))
	if !ok {
		return resultError(ErrMemoryBounds)
	}
	if !e.Push(v) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleStoreArray(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	value, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	idx, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if idx < 0 {
		return resultError(ErrMemoryBounds)
	}
	if !mem.StoreArrayElement(uint8(in.Immediate), uint16(idx), value) {
		return resultError(ErrMemoryBounds)
	}
	return resultContinue()
}

func handleCreateArray(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	size, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if !mem.CreateArray(uint8(in.Immediate), int(size)) {
		return resultError(ErrMemoryBounds)
	}
	return resultContinue()
}

// ============= ARDUINO HAL =============

func handleDigitalWrite(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	value, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	pin, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if err := io.DigitalWrite(uint8(pin), uint8(value)); err != nil {
		return resultError(ErrHardwareFault)
	}
	return resultContinue()
}

func handleDigitalRead(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	pin, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	v, err := io.DigitalRead(uint8(pin))
	if err != nil {
		return resultError(ErrHardwareFault)
	}
	if !e.Push(int32(v)) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleAnalogWrite(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	value, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	pin, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if err := io.AnalogWrite(uint8(pin), uint16(value)); err != nil {
		return resultError(ErrHardwareFault)
	}
	return resultContinue()
}

func handleAnalogRead(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	pin, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	v, err := io.AnalogRead(uint8(pin))
	if err != nil {
		return resultError(ErrHardwareFault)
	}
	if !e.Push(int32(v)) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleDelay(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	ns, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	ms := uint32(ns) / 1000000
	io.Delay(ms)
	return resultContinue()
}

func handleButtonPressed(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	id, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	v, err := io.ButtonPressed(uint8(id))
	if err != nil {
		return resultError(ErrHardwareFault)
	}
	if !e.Push(boolToInt32(v)) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleButtonReleased(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	id, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	v, err := io.ButtonReleased(uint8(id))
	if err != nil {
		return resultError(ErrHardwareFault)
	}
	if !e.Push(boolToInt32(v)) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handlePinMode(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	mode, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	pin, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	if err := io.PinMode(uint8(pin), PinMode(mode)); err != nil {
		return resultError(ErrHardwareFault)
	}
	return resultContinue()
}

func handleMillis(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	if !e.Push(int32(io.Millis())) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

func handleMicros(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	if !e.Push(int32(io.Micros())) {
		return resultError(ErrStackOverflow)
	}
	return resultContinue()
}

// handlePrintf implements PRINTF imm: pops arg_count, then pops that
// many arguments (capacity 8) in reverse order into a buffer, and
// invokes the I/O controller with the string id carried in imm.
func handlePrintf(e *Engine, in isa.Instruction, mem *Memory, io *IOController) HandlerResult {
	argCountVal, ok := e.Pop()
	if !ok {
		return resultError(ErrStackUnderflow)
	}
	argCount := int(argCountVal)
	if argCount < 0 || argCount > 8 {
		return resultError(ErrPrintfError)
	}
	args := make([]int32, argCount)
	for i := argCount - 1; i >= 0; i-- {
		v, ok := e.Pop()
		if !ok {
			return resultError(ErrStackUnderflow)
		}
		args[i] = v
	}
	_, vmErr := io.Printf(uint8(in.Immediate), args)
	if !vmErr.IsNone() {
		return resultError(vmErr)
	}
	return resultContinue()
}
