package symtab

import (
	"fmt"
	"testing"
)

func TestBuiltinsPreDeclared(t *testing.T) {
	tbl := New()
	for _, name := range []string{
		"pinMode", "digitalWrite", "digitalRead", "analogWrite",
		"analogRead", "delay", "millis", "micros", "printf",
	} {
		if !tbl.IsDeclared(name) {
			t.Fatalf("builtin %q should be pre-declared", name)
		}
	}
	sym, ok := tbl.Lookup("digitalRead")
	if !ok {
		t.Fatalf("digitalRead should be declared")
	}
	if sym.DataType != TypeInt || sym.Kind != KindFunction {
		t.Fatalf("digitalRead: unexpected symbol %+v", sym)
	}
}

func TestGlobalAllocationIsSequential(t *testing.T) {
	tbl := New()
	tbl.Declare("a", KindVariable, TypeInt)
	tbl.Declare("b", KindVariable, TypeInt)

	a, _ := tbl.Lookup("a")
	b, _ := tbl.Lookup("b")
	if !a.IsGlobal || !b.IsGlobal {
		t.Fatalf("top-level declarations should be global")
	}
	if b.GlobalIndex != a.GlobalIndex+1 {
		t.Fatalf("expected sequential global indices, got a=%d b=%d", a.GlobalIndex, b.GlobalIndex)
	}
}

func TestScopedLocalsShadowAndUnwind(t *testing.T) {
	tbl := New()
	tbl.Declare("x", KindVariable, TypeInt) // global x

	tbl.EnterScope()
	tbl.Declare("x", KindVariable, TypeInt) // shadows global x
	local, _ := tbl.Lookup("x")
	if local.IsGlobal {
		t.Fatalf("inner x should resolve to the local shadow")
	}
	tbl.ExitScope()

	outer, _ := tbl.Lookup("x")
	if !outer.IsGlobal {
		t.Fatalf("after ExitScope, x should resolve back to the global")
	}
}

func TestRedeclarationInSameScopeFails(t *testing.T) {
	tbl := New()
	if !tbl.Declare("x", KindVariable, TypeInt) {
		t.Fatalf("first declaration should succeed")
	}
	if tbl.Declare("x", KindVariable, TypeInt) {
		t.Fatalf("redeclaration in same scope should fail")
	}
}

func TestDeclareArray(t *testing.T) {
	tbl := New()
	if !tbl.DeclareArray("buf", TypeInt, 16) {
		t.Fatalf("array declaration should succeed")
	}
	sym, ok := tbl.Lookup("buf")
	if !ok || sym.Kind != KindArray || sym.ArrayLength != 16 {
		t.Fatalf("unexpected array symbol: %+v", sym)
	}
	if sym.ArrayID != 0 {
		t.Fatalf("first declared array should get array_id 0, got %d", sym.ArrayID)
	}
}

// TestArrayIDIndependentOfGlobalIndex proves array_id is drawn from its
// own counter: declaring more than 16 scalar globals before an array
// must not push the array's id out of the [0,15] pool range.
func TestArrayIDIndependentOfGlobalIndex(t *testing.T) {
	tbl := New()
	for i := 0; i < 20; i++ {
		if !tbl.Declare(fmt.Sprintf("g%d", i), KindVariable, TypeInt) {
			t.Fatalf("global declaration %d should succeed", i)
		}
	}
	if !tbl.DeclareArray("buf", TypeInt, 4) {
		t.Fatalf("array declaration should succeed")
	}
	sym, ok := tbl.Lookup("buf")
	if !ok {
		t.Fatalf("buf should be declared")
	}
	if sym.ArrayID != 0 {
		t.Fatalf("array_id must come from its own counter, not global_index; got %d (would be out of the [0,15] pool range if it inherited the 20 prior global allocations)", sym.ArrayID)
	}
}

func TestLocalOffsetsResetPerFunction(t *testing.T) {
	tbl := New()
	tbl.EnterScope()
	tbl.Declare("p", KindParam, TypeInt)
	p, _ := tbl.Lookup("p")
	if p.StackOffset != 0 {
		t.Fatalf("first local in a fresh frame should have offset 0, got %d", p.StackOffset)
	}
	tbl.ExitScope()

	tbl.ResetStackOffset()
	tbl.EnterScope()
	tbl.Declare("q", KindParam, TypeInt)
	q, _ := tbl.Lookup("q")
	if q.StackOffset != 0 {
		t.Fatalf("offset should reset to 0 for a new function frame, got %d", q.StackOffset)
	}
}
