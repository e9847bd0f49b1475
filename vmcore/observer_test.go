package vmcore

import (
	"testing"

	"go.uber.org/zap"
)

func TestBlackboxObserverRingBufferWraps(t *testing.T) {
	bb := NewBlackboxObserver(3)
	for i := uint32(0); i < 5; i++ {
		bb.OnInstructionExecuted(i, uint8(i), i*10)
	}
	trace := bb.Trace()
	if len(trace) != 3 {
		t.Fatalf("trace length = %d, want 3 (ring buffer capacity)", len(trace))
	}
	// Oldest surviving entry should be pc=2 (0 and 1 overwritten).
	if trace[0].PC != 2 {
		t.Fatalf("trace[0].PC = %d, want 2", trace[0].PC)
	}
	if trace[len(trace)-1].PC != 4 {
		t.Fatalf("trace[last].PC = %d, want 4", trace[len(trace)-1].PC)
	}
}

func TestBlackboxObserverBelowCapacity(t *testing.T) {
	bb := NewBlackboxObserver(10)
	bb.OnInstructionExecuted(0, 1, 2)
	bb.OnInstructionExecuted(1, 2, 3)
	trace := bb.Trace()
	if len(trace) != 2 {
		t.Fatalf("trace length = %d, want 2", len(trace))
	}
}

func TestLoggingObserverDoesNotPanic(t *testing.T) {
	obs := NewLoggingObserver(zap.NewNop())
	obs.OnInstructionExecuted(0, 0, 0)
	obs.OnExecutionComplete(10, 5)
	obs.OnVMReset()
}
