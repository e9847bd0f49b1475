// Package emitter implements the bytecode emitter (C4): it walks an
// ast.Program and produces a flat isa.Instruction stream plus a
// compile-time string table, resolving forward jumps and function
// calls by backpatching.
package emitter

import (
	"fmt"

	"github.com/cms-pm/cockpit-vm/ast"
	"github.com/cms-pm/cockpit-vm/isa"
	"github.com/cms-pm/cockpit-vm/symtab"
)

type jumpPlaceholder struct {
	instrIndex int
	label      string
}

type callPlaceholder struct {
	instrIndex int
	funcName   string
}

// Emitter holds the state accumulated while walking one ast.Program:
// the growing instruction stream, the string table, the symbol table,
// and the backpatch worklists for jumps and calls.
type Emitter struct {
	program []isa.Instruction
	strings []string

	symtab *symtab.Table

	labels          map[string]int
	labelCounter    int
	jumpPlaceholds  []jumpPlaceholder
	funcAddresses   map[string]int
	callPlaceholds  []callPlaceholder
}

// New constructs an Emitter with a fresh symbol table (builtins
// pre-declared).
func New() *Emitter {
	return &Emitter{
		symtab:        symtab.New(),
		labels:        make(map[string]int),
		funcAddresses: make(map[string]int),
	}
}

// Result is the output of a successful Emit: the instruction stream
// and the compile-time string table it references.
type Result struct {
	Program []isa.Instruction
	Strings []string
}

// Emit compiles prog into a bytecode Result. It returns an error on
// any unresolved symbol, redeclaration, or malformed construct.
func Emit(prog *ast.Program) (Result, error) {
	e := New()
	if err := e.emitProgram(prog); err != nil {
		return Result{}, err
	}
	return Result{Program: e.program, Strings: e.strings}, nil
}

func (e *Emitter) emitProgram(prog *ast.Program) error {
	for _, g := range prog.Globals {
		if !e.symtab.Declare(g.Name, symtab.KindVariable, symtab.TypeInt) {
			return fmt.Errorf("emitter: global %q redeclared", g.Name)
		}
	}
	for _, a := range prog.Arrays {
		if !e.symtab.DeclareArray(a.Name, symtab.TypeInt, a.Length) {
			return fmt.Errorf("emitter: array %q redeclared", a.Name)
		}
		sym, _ := e.symtab.Lookup(a.Name)
		if err := e.emitPushConstant(int32(a.Length)); err != nil {
			return err
		}
		e.emit(isa.OpCreateArray, uint16(sym.ArrayID))
	}
	// Predeclare every function so forward calls resolve.
	for _, f := range prog.Funcs {
		if !e.symtab.Declare(f.Name, symtab.KindFunction, symtab.TypeInt) {
			return fmt.Errorf("emitter: function %q redeclared", f.Name)
		}
	}
	for _, g := range prog.Globals {
		if g.Init == nil {
			continue
		}
		if err := e.emitExpr(g.Init); err != nil {
			return err
		}
		if err := e.emitStoreVariable(g.Name); err != nil {
			return err
		}
	}

	entry := e.entryPoint(prog)
	if entry != "" {
		e.emitFunctionCall(entry, 0)
		e.emit(isa.OpHalt, 0)
	}

	for _, f := range prog.Funcs {
		if err := e.emitFunc(f); err != nil {
			return err
		}
	}

	if err := e.resolveJumps(); err != nil {
		return err
	}
	if err := e.resolveCalls(); err != nil {
		return err
	}
	return nil
}

// entryPoint picks main() if present, else setup() (loop() is left to
// the host harness to re-invoke — this repo does not model Arduino's
// implicit setup/loop scheduler).
func (e *Emitter) entryPoint(prog *ast.Program) string {
	var hasSetup bool
	for _, f := range prog.Funcs {
		if f.Name == "main" {
			return "main"
		}
		if f.Name == "setup" {
			hasSetup = true
		}
	}
	if hasSetup {
		return "setup"
	}
	return ""
}

func (e *Emitter) emitFunc(f ast.FuncDecl) error {
	e.funcAddresses[f.Name] = len(e.program)
	e.symtab.EnterScope()
	e.symtab.ResetStackOffset()
	for _, p := range f.Params {
		e.symtab.Declare(p, symtab.KindParam, symtab.TypeInt)
	}
	for _, stmt := range f.Body {
		if err := e.emitStmt(stmt); err != nil {
			return err
		}
	}
	e.emit(isa.OpRet, 0)
	e.symtab.ExitScope()
	return nil
}

func (e *Emitter) emitStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		return e.emitExpr(s.X)

	case *ast.Assign:
		return e.emitAssign(s.Target, s.Value)

	case *ast.CompoundAssign:
		return e.emitCompoundAssign(s)

	case *ast.If:
		return e.emitIf(s)

	case *ast.While:
		return e.emitWhile(s)

	case *ast.Return:
		if s.Value != nil {
			if err := e.emitExpr(s.Value); err != nil {
				return err
			}
		}
		e.emit(isa.OpRet, 0)
		return nil

	default:
		return fmt.Errorf("emitter: unknown statement type %T", stmt)
	}
}

func (e *Emitter) emitAssign(target, value ast.Expr) error {
	switch t := target.(type) {
	case *ast.Ident:
		if err := e.emitExpr(value); err != nil {
			return err
		}
		return e.emitStoreVariable(t.Name)
	case *ast.Index:
		if err := e.emitExpr(t.Idx); err != nil {
			return err
		}
		if err := e.emitExpr(value); err != nil {
			return err
		}
		sym, ok := e.symtab.Lookup(t.Array)
		if !ok || sym.Kind != symtab.KindArray {
			return fmt.Errorf("emitter: %q is not a declared array", t.Array)
		}
		e.emit(isa.OpStoreArray, uint16(sym.ArrayID))
		return nil
	default:
		return fmt.Errorf("emitter: invalid assignment target %T", target)
	}
}

var compoundOps = map[string]isa.Opcode{
	"+=": isa.OpAdd, "-=": isa.OpSub, "*=": isa.OpMul, "/=": isa.OpDiv, "%=": isa.OpMod,
	"&=": isa.OpBitwiseAnd, "|=": isa.OpBitwiseOr, "^=": isa.OpBitwiseXor,
	"<<=": isa.OpShiftLeft, ">>=": isa.OpShiftRight,
}

func (e *Emitter) emitCompoundAssign(s *ast.CompoundAssign) error {
	ident, ok := s.Target.(*ast.Ident)
	if !ok {
		return fmt.Errorf("emitter: compound assignment only supports scalar targets")
	}
	op, ok := compoundOps[s.Op]
	if !ok {
		return fmt.Errorf("emitter: unknown compound operator %q", s.Op)
	}
	if err := e.emitLoadVariable(ident.Name); err != nil {
		return err
	}
	if err := e.emitExpr(s.Value); err != nil {
		return err
	}
	e.emit(op, 0)
	return e.emitStoreVariable(ident.Name)
}

func (e *Emitter) emitIf(s *ast.If) error {
	if err := e.emitExpr(s.Cond); err != nil {
		return err
	}
	elseLabel := e.genLabel("else")
	endLabel := e.genLabel("end_if")

	if len(s.Else) > 0 {
		e.emitJump(isa.OpJmpFalse, elseLabel)
		for _, st := range s.Then {
			if err := e.emitStmt(st); err != nil {
				return err
			}
		}
		e.emitJump(isa.OpJmp, endLabel)
		e.placeLabel(elseLabel)
		for _, st := range s.Else {
			if err := e.emitStmt(st); err != nil {
				return err
			}
		}
		e.placeLabel(endLabel)
	} else {
		e.emitJump(isa.OpJmpFalse, endLabel)
		for _, st := range s.Then {
			if err := e.emitStmt(st); err != nil {
				return err
			}
		}
		e.placeLabel(endLabel)
	}
	return nil
}

func (e *Emitter) emitWhile(s *ast.While) error {
	start := e.genLabel("while_start")
	end := e.genLabel("while_end")

	e.placeLabel(start)
	if err := e.emitExpr(s.Cond); err != nil {
		return err
	}
	e.emitJump(isa.OpJmpFalse, end)
	for _, st := range s.Body {
		if err := e.emitStmt(st); err != nil {
			return err
		}
	}
	e.emitJump(isa.OpJmp, start)
	e.placeLabel(end)
	return nil
}

func (e *Emitter) emitExpr(expr ast.Expr) error {
	switch x := expr.(type) {
	case *ast.IntLit:
		return e.emitPushConstant(x.Value)

	case *ast.Ident:
		return e.emitLoadVariable(x.Name)

	case *ast.Index:
		if err := e.emitExpr(x.Idx); err != nil {
			return err
		}
		sym, ok := e.symtab.Lookup(x.Array)
		if !ok || sym.Kind != symtab.KindArray {
			return fmt.Errorf("emitter: %q is not a declared array", x.Array)
		}
		e.emit(isa.OpLoadArray, uint16(sym.ArrayID))
		return nil

	case *ast.UnaryExpr:
		return e.emitUnary(x)

	case *ast.BinaryExpr:
		return e.emitBinary(x)

	case *ast.Ternary:
		return e.emitTernary(x)

	case *ast.Call:
		return e.emitCall(x)

	case *ast.StringLit:
		idx := e.addStringLiteral(x.Value)
		return e.emitPushConstant(int32(idx))

	default:
		return fmt.Errorf("emitter: unknown expression type %T", expr)
	}
}

func (e *Emitter) emitUnary(x *ast.UnaryExpr) error {
	// Negation of a literal folds to a single PUSH of the negated
	// value at emit time (spec'd as a constant-folding rule, not a
	// runtime MUL by -1).
	if x.Op == "-" {
		if lit, ok := x.X.(*ast.IntLit); ok {
			return e.emitPushConstant(-lit.Value)
		}
	}
	if err := e.emitExpr(x.X); err != nil {
		return err
	}
	switch x.Op {
	case "-":
		if err := e.emitPushConstant(-1); err != nil {
			return err
		}
		e.emit(isa.OpMul, 0)
	case "!":
		e.emit(isa.OpNot, 0)
	case "~":
		e.emit(isa.OpBitwiseNot, 0)
	default:
		return fmt.Errorf("emitter: unknown unary operator %q", x.Op)
	}
	return nil
}

var binaryOps = map[string]isa.Opcode{
	"+": isa.OpAdd, "-": isa.OpSub, "*": isa.OpMul, "/": isa.OpDiv, "%": isa.OpMod,
	"==": isa.OpEq, "!=": isa.OpNe, "<": isa.OpLt, ">": isa.OpGt, "<=": isa.OpLe, ">=": isa.OpGe,
	"&": isa.OpBitwiseAnd, "|": isa.OpBitwiseOr, "^": isa.OpBitwiseXor,
	"<<": isa.OpShiftLeft, ">>": isa.OpShiftRight,
}

func (e *Emitter) emitBinary(x *ast.BinaryExpr) error {
	switch x.Op {
	case "&&":
		return e.emitLogicalAnd(x.Left, x.Right)
	case "||":
		return e.emitLogicalOr(x.Left, x.Right)
	}
	if err := e.emitExpr(x.Left); err != nil {
		return err
	}
	if err := e.emitExpr(x.Right); err != nil {
		return err
	}
	op, ok := binaryOps[x.Op]
	if !ok {
		return fmt.Errorf("emitter: unknown binary operator %q", x.Op)
	}
	e.emit(op, 0)
	return nil
}

// emitLogicalAnd implements short-circuit a && b: if a is false, the
// result is false and b is never evaluated.
func (e *Emitter) emitLogicalAnd(left, right ast.Expr) error {
	falseLabel := e.genLabel("and_false")
	endLabel := e.genLabel("and_end")

	if err := e.emitExpr(left); err != nil {
		return err
	}
	e.emitJump(isa.OpJmpFalse, falseLabel)
	if err := e.emitExpr(right); err != nil {
		return err
	}
	e.emitJump(isa.OpJmp, endLabel)
	e.placeLabel(falseLabel)
	if err := e.emitPushConstant(0); err != nil {
		return err
	}
	e.placeLabel(endLabel)
	return nil
}

// emitLogicalOr implements short-circuit a || b: if a is true, the
// result is true and b is never evaluated.
func (e *Emitter) emitLogicalOr(left, right ast.Expr) error {
	trueLabel := e.genLabel("or_true")
	endLabel := e.genLabel("or_end")

	if err := e.emitExpr(left); err != nil {
		return err
	}
	e.emitJump(isa.OpJmpTrue, trueLabel)
	if err := e.emitExpr(right); err != nil {
		return err
	}
	e.emitJump(isa.OpJmp, endLabel)
	e.placeLabel(trueLabel)
	if err := e.emitPushConstant(1); err != nil {
		return err
	}
	e.placeLabel(endLabel)
	return nil
}

func (e *Emitter) emitTernary(x *ast.Ternary) error {
	elseLabel := e.genLabel("tern_else")
	endLabel := e.genLabel("tern_end")

	if err := e.emitExpr(x.Cond); err != nil {
		return err
	}
	e.emitJump(isa.OpJmpFalse, elseLabel)
	if err := e.emitExpr(x.Then); err != nil {
		return err
	}
	e.emitJump(isa.OpJmp, endLabel)
	e.placeLabel(elseLabel)
	if err := e.emitExpr(x.Else); err != nil {
		return err
	}
	e.placeLabel(endLabel)
	return nil
}

// arduinoBuiltins maps seven of the nine HAL builtins (delay and printf
// are special-cased in emitCall) plus the two button helpers to their
// dedicated opcode, so calls to them compile directly
// to a HAL opcode rather than an OP_CALL into bytecode that doesn't
// exist for them.
var arduinoBuiltins = map[string]isa.Opcode{
	"pinMode":         isa.OpPinMode,
	"digitalWrite":    isa.OpDigitalWrite,
	"digitalRead":     isa.OpDigitalRead,
	"analogWrite":     isa.OpAnalogWrite,
	"analogRead":      isa.OpAnalogRead,
	"millis":          isa.OpMillis,
	"micros":          isa.OpMicros,
	"buttonPressed":   isa.OpButtonPressed,
	"buttonReleased":  isa.OpButtonReleased,
}

func (e *Emitter) emitCall(call *ast.Call) error {
	if call.Name == "printf" {
		return e.emitPrintf(call)
	}
	if call.Name == "delay" {
		if len(call.Args) != 1 {
			return fmt.Errorf("emitter: delay() takes exactly one argument")
		}
		if err := e.emitExpr(call.Args[0]); err != nil {
			return err
		}
		// Milliseconds to nanoseconds calling convention. 1,000,000
		// itself doesn't fit a single 16-bit PUSH immediate, so it's
		// built from two in-range factors (1000 * 1000) rather than
		// pushed directly.
		if err := e.emitPushConstant(1000); err != nil {
			return err
		}
		if err := e.emitPushConstant(1000); err != nil {
			return err
		}
		e.emit(isa.OpMul, 0)
		e.emit(isa.OpMul, 0)
		e.emit(isa.OpDelay, 0)
		return nil
	}
	if op, ok := arduinoBuiltins[call.Name]; ok {
		for _, arg := range call.Args {
			if err := e.emitExpr(arg); err != nil {
				return err
			}
		}
		e.emit(op, uint16(len(call.Args)))
		return nil
	}

	for _, arg := range call.Args {
		if err := e.emitExpr(arg); err != nil {
			return err
		}
	}
	e.emitFunctionCall(call.Name, len(call.Args))
	return nil
}

// emitPrintf special-cases the first argument: if it is a string
// literal, it is resolved into the compile-time string table rather
// than pushed on the stack, and arg_count excludes it.
func (e *Emitter) emitPrintf(call *ast.Call) error {
	argCount := len(call.Args)
	stringIndex := 0

	if argCount > 0 {
		if lit, ok := call.Args[0].(*ast.StringLit); ok {
			stringIndex = e.addStringLiteral(lit.Value)
			for _, arg := range call.Args[1:] {
				if err := e.emitExpr(arg); err != nil {
					return err
				}
			}
			argCount--
		} else {
			for _, arg := range call.Args {
				if err := e.emitExpr(arg); err != nil {
					return err
				}
			}
		}
	}

	if err := e.emitPushConstant(int32(argCount)); err != nil {
		return err
	}
	e.emit(isa.OpPrintf, uint16(stringIndex))
	return nil
}

func (e *Emitter) emitLoadVariable(name string) error {
	sym, ok := e.symtab.Lookup(name)
	if !ok {
		return fmt.Errorf("emitter: undefined variable %q", name)
	}
	if sym.IsGlobal {
		e.emit(isa.OpLoadGlobal, uint16(sym.GlobalIndex))
	} else {
		e.emit(isa.OpLoadLocal, uint16(sym.StackOffset))
	}
	return nil
}

func (e *Emitter) emitStoreVariable(name string) error {
	sym, ok := e.symtab.Lookup(name)
	if !ok {
		return fmt.Errorf("emitter: undefined variable %q", name)
	}
	if sym.IsGlobal {
		e.emit(isa.OpStoreGlobal, uint16(sym.GlobalIndex))
	} else {
		e.emit(isa.OpStoreLocal, uint16(sym.StackOffset))
	}
	return nil
}

// emitPushConstant emits PUSH imm per spec.md §4.3.2: values in
// [0, 65535] push the raw 16-bit pattern; negative values in
// [-32768, 0) carry the SIGNED flag so handlePush sign-extends the
// two's-complement low half back to the right int32 instead of
// reading it as a large positive immediate. Values outside
// [-32768, 65535] don't fit a single 16-bit immediate at all — no
// combiner opcode is assigned (spec.md §4.3.2, open question), so
// those literals are rejected at compile time rather than silently
// truncated.
func (e *Emitter) emitPushConstant(value int32) error {
	if value > 65535 || value < -32768 {
		return fmt.Errorf("emitter: literal %d does not fit a single 16-bit PUSH immediate (no combiner opcode assigned)", value)
	}
	if value < 0 {
		e.emitFlagged(isa.OpPush, isa.FlagSigned, uint16(value))
		return nil
	}
	e.emit(isa.OpPush, uint16(value))
	return nil
}

func (e *Emitter) emit(op isa.Opcode, immediate uint16) {
	e.program = append(e.program, isa.Instruction{Opcode: op, Immediate: immediate})
}

func (e *Emitter) emitFlagged(op isa.Opcode, flags isa.Flags, immediate uint16) {
	e.program = append(e.program, isa.Instruction{Opcode: op, Flags: flags, Immediate: immediate})
}

func (e *Emitter) addStringLiteral(s string) int {
	e.strings = append(e.strings, s)
	return len(e.strings) - 1
}

func (e *Emitter) genLabel(prefix string) string {
	e.labelCounter++
	return fmt.Sprintf("%s_%d", prefix, e.labelCounter)
}

func (e *Emitter) placeLabel(label string) {
	e.labels[label] = len(e.program)
}

func (e *Emitter) emitJump(op isa.Opcode, label string) {
	idx := len(e.program)
	e.emit(op, 0)
	e.jumpPlaceholds = append(e.jumpPlaceholds, jumpPlaceholder{instrIndex: idx, label: label})
}

// emitFunctionCall emits OP_CALL for a user-defined function. argCount
// is carried in the instruction's Flags byte: the engine's call-frame
// area needs it to know how many already-pushed operand-stack values
// are this call's parameters, since the return address and locals no
// longer share the data stack (see vmcore's call-frame design).
func (e *Emitter) emitFunctionCall(name string, argCount int) {
	idx := len(e.program)
	e.program = append(e.program, isa.Instruction{Opcode: isa.OpCall, Flags: isa.Flags(argCount), Immediate: 0})
	e.callPlaceholds = append(e.callPlaceholds, callPlaceholder{instrIndex: idx, funcName: name})
}

// resolveJumps backpatches every emitted jump's immediate with an
// offset relative to the instruction after the jump (pc+1 at the time
// the engine evaluates it), per spec.md §4.3.4: offset = target -
// (placeholder_index + 1).
func (e *Emitter) resolveJumps() error {
	for _, ph := range e.jumpPlaceholds {
		target, ok := e.labels[ph.label]
		if !ok {
			return fmt.Errorf("emitter: undefined label %q", ph.label)
		}
		offset := target - (ph.instrIndex + 1)
		e.program[ph.instrIndex].Immediate = uint16(int16(offset))
	}
	return nil
}

// resolveCalls backpatches every emitted call's immediate with the
// absolute address of the called function.
func (e *Emitter) resolveCalls() error {
	for _, ph := range e.callPlaceholds {
		addr, ok := e.funcAddresses[ph.funcName]
		if !ok {
			return fmt.Errorf("emitter: call to undefined function %q", ph.funcName)
		}
		e.program[ph.instrIndex].Immediate = uint16(addr)
	}
	return nil
}
