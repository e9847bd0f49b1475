package vmcore

import (
	"go.uber.org/zap"
)

// TelemetryObserver is the minimal generic execution-event interface,
// grounded on ITelemetryObserver — deliberately thin so observers
// interpret opcode/operand meaning themselves rather than the VM
// coupling to any one telemetry backend.
type TelemetryObserver interface {
	OnInstructionExecuted(pc uint32, opcode uint8, operand uint32)
	OnExecutionComplete(totalInstructions uint32, executionTimeMs uint32)
	OnVMReset()
}

// traceEntry is one recorded instruction event in a BlackboxObserver's
// ring buffer.
type traceEntry struct {
	PC      uint32
	Opcode  uint8
	Operand uint32
}

// BlackboxObserver is a fixed-capacity ring-buffer trace recorder,
// grounded on BlackboxObserver/vm_blackbox — it keeps the most recent
// N instruction events in memory for post-mortem inspection (e.g. by
// `ivmctl debug`) without growing without bound on a long-running
// program.
type BlackboxObserver struct {
	capacity int
	entries  []traceEntry
	next     int
	full     bool

	resets      int
	completions int
}

// NewBlackboxObserver constructs a BlackboxObserver holding at most
// capacity instruction events.
func NewBlackboxObserver(capacity int) *BlackboxObserver {
	if capacity <= 0 {
		capacity = 256
	}
	return &BlackboxObserver{capacity: capacity, entries: make([]traceEntry, capacity)}
}

func (b *BlackboxObserver) OnInstructionExecuted(pc uint32, opcode uint8, operand uint32) {
	b.entries[b.next] = traceEntry{PC: pc, Opcode: opcode, Operand: operand}
	b.next = (b.next + 1) % b.capacity
	if b.next == 0 {
		b.full = true
	}
}

func (b *BlackboxObserver) OnExecutionComplete(totalInstructions uint32, executionTimeMs uint32) {
	b.completions++
}

func (b *BlackboxObserver) OnVMReset() {
	b.resets++
}

// Trace returns the recorded events in chronological order, oldest
// first.
func (b *BlackboxObserver) Trace() []traceEntry {
	if !b.full {
		out := make([]traceEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]traceEntry, b.capacity)
	copy(out, b.entries[b.next:])
	copy(out[b.capacity-b.next:], b.entries[:b.next])
	return out
}

// LoggingObserver bridges VM execution events to structured zap
// logging. It deliberately does not log per-instruction — that would
// flood the log on any real program — only execution-complete and
// reset events, matching the teacher's convention of reserving
// per-call logging for boundary/lifecycle events rather than hot
// loops.
type LoggingObserver struct {
	log *zap.Logger
}

// NewLoggingObserver wraps log in a LoggingObserver.
func NewLoggingObserver(log *zap.Logger) *LoggingObserver {
	return &LoggingObserver{log: log}
}

func (l *LoggingObserver) OnInstructionExecuted(pc uint32, opcode uint8, operand uint32) {}

func (l *LoggingObserver) OnExecutionComplete(totalInstructions uint32, executionTimeMs uint32) {
	l.log.Info("execution complete",
		zap.Uint32("instructions_executed", totalInstructions),
		zap.Uint32("execution_time_ms", executionTimeMs),
	)
}

func (l *LoggingObserver) OnVMReset() {
	l.log.Info("vm reset")
}
