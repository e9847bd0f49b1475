package emitter

import (
	"testing"

	"github.com/cms-pm/cockpit-vm/ast"
	"github.com/cms-pm/cockpit-vm/isa"
)

func mustEmit(t *testing.T, prog *ast.Program) Result {
	t.Helper()
	res, err := Emit(prog)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	return res
}

// TestSimpleReturn compiles `int main() { return 1 + 2; }`.
func TestSimpleReturn(t *testing.T) {
	prog := &ast.Program{
		Funcs: []ast.FuncDecl{
			{
				Name: "main",
				Body: []ast.Stmt{
					&ast.Return{Value: &ast.BinaryExpr{Op: "+", Left: &ast.IntLit{Value: 1}, Right: &ast.IntLit{Value: 2}}},
				},
			},
		},
	}
	res := mustEmit(t, prog)

	// entry: CALL main ; HALT ; main: PUSH 1; PUSH 2; ADD; RET; RET
	if res.Program[0].Opcode != isa.OpCall {
		t.Fatalf("expected entry call, got %v", res.Program[0].Opcode)
	}
	if res.Program[1].Opcode != isa.OpHalt {
		t.Fatalf("expected HALT after entry call, got %v", res.Program[1].Opcode)
	}
	mainAddr := int(res.Program[0].Immediate)
	if res.Program[mainAddr].Opcode != isa.OpPush || res.Program[mainAddr].Immediate != 1 {
		t.Fatalf("main body should start with PUSH 1, got %v", res.Program[mainAddr])
	}
}

// TestIfElseBranching exercises label backpatching for both branches.
func TestIfElseBranching(t *testing.T) {
	prog := &ast.Program{
		Funcs: []ast.FuncDecl{
			{
				Name: "main",
				Body: []ast.Stmt{
					&ast.If{
						Cond: &ast.IntLit{Value: 1},
						Then: []ast.Stmt{&ast.Return{Value: &ast.IntLit{Value: 10}}},
						Else: []ast.Stmt{&ast.Return{Value: &ast.IntLit{Value: 20}}},
					},
				},
			},
		},
	}
	res := mustEmit(t, prog)
	foundJmpFalse, foundJmp := false, false
	for _, in := range res.Program {
		if in.Opcode == isa.OpJmpFalse {
			foundJmpFalse = true
		}
		if in.Opcode == isa.OpJmp {
			foundJmp = true
		}
	}
	if !foundJmpFalse || !foundJmp {
		t.Fatalf("expected both JMP_FALSE and JMP in if/else output")
	}
}

// TestWhileLoopBackwardJump verifies the loop-start jump is negative.
func TestWhileLoopBackwardJump(t *testing.T) {
	prog := &ast.Program{
		Globals: []ast.VarDecl{{Name: "i"}},
		Funcs: []ast.FuncDecl{
			{
				Name: "main",
				Body: []ast.Stmt{
					&ast.While{
						Cond: &ast.BinaryExpr{Op: "<", Left: &ast.Ident{Name: "i"}, Right: &ast.IntLit{Value: 10}},
						Body: []ast.Stmt{
							&ast.CompoundAssign{Target: &ast.Ident{Name: "i"}, Op: "+=", Value: &ast.IntLit{Value: 1}},
						},
					},
				},
			},
		},
	}
	res := mustEmit(t, prog)
	foundBackwardJump := false
	for _, in := range res.Program {
		if in.Opcode == isa.OpJmp && int16(in.Immediate) < 0 {
			foundBackwardJump = true
		}
	}
	if !foundBackwardJump {
		t.Fatalf("expected a negative (backward) JMP offset closing the while loop")
	}
}

// TestPrintfStringLiteralHandling verifies the string-literal-first
// arg_count convention.
func TestPrintfStringLiteralHandling(t *testing.T) {
	prog := &ast.Program{
		Funcs: []ast.FuncDecl{
			{
				Name: "main",
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.Call{
						Name: "printf",
						Args: []ast.Expr{
							&ast.StringLit{Value: "x=%d\n"},
							&ast.IntLit{Value: 42},
						},
					}},
				},
			},
		},
	}
	res := mustEmit(t, prog)
	if len(res.Strings) != 1 || res.Strings[0] != "x=%d\n" {
		t.Fatalf("expected string table to contain the format string, got %v", res.Strings)
	}
	var pushedArgCount, sawPrintf bool
	for i, in := range res.Program {
		if in.Opcode == isa.OpPrintf {
			sawPrintf = true
			if in.Immediate != 0 {
				t.Fatalf("expected string index 0, got %d", in.Immediate)
			}
			if i == 0 || res.Program[i-1].Opcode != isa.OpPush {
				t.Fatalf("printf must be preceded by arg_count push")
			}
			if res.Program[i-1].Immediate != 1 {
				t.Fatalf("expected arg_count=1 (string excluded), got %d", res.Program[i-1].Immediate)
			}
			pushedArgCount = true
		}
	}
	if !sawPrintf || !pushedArgCount {
		t.Fatalf("printf call not emitted correctly")
	}
}

// TestDelayMillisecondConversion verifies the ms -> ns calling convention.
// The 1,000,000 multiplier doesn't fit a single 16-bit PUSH immediate, so
// the emitter builds it from two in-range pushes (1000 * 1000) followed
// by a second MUL against the ms operand, rather than pushing it directly.
func TestDelayMillisecondConversion(t *testing.T) {
	prog := &ast.Program{
		Funcs: []ast.FuncDecl{
			{
				Name: "main",
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.Call{Name: "delay", Args: []ast.Expr{&ast.IntLit{Value: 5}}}},
				},
			},
		},
	}
	res := mustEmit(t, prog)
	for i, in := range res.Program {
		if in.Opcode == isa.OpDelay {
			if res.Program[i-1].Opcode != isa.OpMul || res.Program[i-2].Opcode != isa.OpMul {
				t.Fatalf("expected two MULs immediately before DELAY")
			}
			if res.Program[i-3].Immediate != 1000 || res.Program[i-4].Immediate != 1000 {
				t.Fatalf("expected PUSH 1000, PUSH 1000 feeding the ms->ns conversion, got %d, %d",
					res.Program[i-4].Immediate, res.Program[i-3].Immediate)
			}
			return
		}
	}
	t.Fatalf("DELAY opcode not found")
}

// TestShortCircuitAnd verifies && only evaluates the right side when
// the left side is true (structurally, via emitted jump pattern).
func TestShortCircuitAnd(t *testing.T) {
	prog := &ast.Program{
		Funcs: []ast.FuncDecl{
			{
				Name: "main",
				Body: []ast.Stmt{
					&ast.Return{Value: &ast.BinaryExpr{
						Op:    "&&",
						Left:  &ast.IntLit{Value: 0},
						Right: &ast.IntLit{Value: 1},
					}},
				},
			},
		},
	}
	res := mustEmit(t, prog)
	var sawJmpFalse bool
	for _, in := range res.Program {
		if in.Opcode == isa.OpJmpFalse {
			sawJmpFalse = true
		}
	}
	if !sawJmpFalse {
		t.Fatalf("expected a JMP_FALSE for short-circuit && evaluation")
	}
}

// TestArrayRoundTrip verifies arr[i] = v and arr[i] emit
// STORE_ARRAY/LOAD_ARRAY with the array's allocated id.
func TestArrayRoundTrip(t *testing.T) {
	prog := &ast.Program{
		Arrays: []ast.ArrayDecl{{Name: "buf", Length: 8}},
		Funcs: []ast.FuncDecl{
			{
				Name: "main",
				Body: []ast.Stmt{
					&ast.Assign{Target: &ast.Index{Array: "buf", Idx: &ast.IntLit{Value: 0}}, Value: &ast.IntLit{Value: 9}},
					&ast.Return{Value: &ast.Index{Array: "buf", Idx: &ast.IntLit{Value: 0}}},
				},
			},
		},
	}
	res := mustEmit(t, prog)
	var sawStore, sawLoad bool
	for _, in := range res.Program {
		if in.Opcode == isa.OpStoreArray {
			sawStore = true
		}
		if in.Opcode == isa.OpLoadArray {
			sawLoad = true
		}
	}
	if !sawStore || !sawLoad {
		t.Fatalf("expected both STORE_ARRAY and LOAD_ARRAY to be emitted")
	}
}

func TestUndefinedVariableIsError(t *testing.T) {
	prog := &ast.Program{
		Funcs: []ast.FuncDecl{
			{Name: "main", Body: []ast.Stmt{&ast.Return{Value: &ast.Ident{Name: "nope"}}}},
		},
	}
	if _, err := Emit(prog); err == nil {
		t.Fatalf("expected an error for undefined variable reference")
	}
}

// TestOversizeLiteralIsError proves a literal outside [-32768, 65535] is
// rejected at compile time rather than silently truncated to a bogus
// 16-bit immediate — no combiner opcode exists for 32-bit literals yet.
func TestOversizeLiteralIsError(t *testing.T) {
	prog := &ast.Program{
		Funcs: []ast.FuncDecl{
			{Name: "main", Body: []ast.Stmt{&ast.Return{Value: &ast.IntLit{Value: 100000}}}},
		},
	}
	if _, err := Emit(prog); err == nil {
		t.Fatalf("expected an error for a literal that doesn't fit a 16-bit immediate")
	}
}
