// Package symtab implements the compiler-side symbol table: scope
// tracking and global/local storage allocation for the guest language
// (C3).
package symtab

// Kind distinguishes what a Symbol names.
type Kind int

const (
	KindVariable Kind = iota
	KindArray
	KindFunction
	KindParam
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "var"
	case KindArray:
		return "array"
	case KindFunction:
		return "func"
	case KindParam:
		return "param"
	default:
		return "unknown"
	}
}

// DataType is the guest language's (minimal) type system: everything is
// either an int or void, matching the original Arduino-C subset.
type DataType int

const (
	TypeInt DataType = iota
	TypeVoid
)

func (d DataType) String() string {
	if d == TypeVoid {
		return "void"
	}
	return "int"
}

// Symbol records one declared name: its kind, type, the scope it was
// declared in, and its storage location (global index, or local stack
// offset — mutually exclusive via IsGlobal).
type Symbol struct {
	Name        string
	Kind        Kind
	DataType    DataType
	ScopeDepth  int
	IsGlobal    bool
	GlobalIndex int
	StackOffset int
	ArrayLength int // only meaningful for Kind == KindArray
	ArrayID     int // only meaningful for Kind == KindArray; independent of GlobalIndex
}

// Table is the compiler's symbol table: a flat slice of symbols tagged
// with scope depth, a current-scope counter, and separate global/local
// allocation cursors. Grounded on symbol_table.cpp's SymbolTable.
type Table struct {
	symbols          []Symbol
	currentScope     int
	nextGlobalIndex  int
	nextArrayID      int
	currentStackOff  int
}

// New constructs a Table with the nine Arduino HAL builtins
// pre-declared at global scope, matching initializeBuiltins().
func New() *Table {
	t := &Table{}
	t.initializeBuiltins()
	return t
}

// EnterScope pushes a new lexical scope. Stack offsets continue from
// the enclosing scope, they are not reset here.
func (t *Table) EnterScope() {
	t.currentScope++
}

// ExitScope pops the current lexical scope, discarding every symbol
// declared within it.
func (t *Table) ExitScope() {
	if t.currentScope == 0 {
		return
	}
	kept := t.symbols[:0]
	for _, s := range t.symbols {
		if s.ScopeDepth < t.currentScope {
			kept = append(kept, s)
		}
	}
	t.symbols = kept
	t.currentScope--
}

// Declare adds a scalar variable or function symbol to the current
// scope. It returns false if a symbol of that name already exists in
// the current scope (redeclaration).
func (t *Table) Declare(name string, kind Kind, dataType DataType) bool {
	if t.declaredInCurrentScope(name) {
		return false
	}
	sym := Symbol{Name: name, Kind: kind, DataType: dataType, ScopeDepth: t.currentScope}
	t.allocate(&sym)
	t.symbols = append(t.symbols, sym)
	return true
}

// DeclareArray adds an array symbol of the given element length to the
// current scope. Returns false on redeclaration in the current scope.
// Arrays draw their array_id from a dedicated counter, independent of
// scalar global_index allocation — the two address different pools
// (64 global slots vs. 16 array-pool slots), so they must never share
// a cursor.
func (t *Table) DeclareArray(name string, dataType DataType, length int) bool {
	if t.declaredInCurrentScope(name) {
		return false
	}
	sym := Symbol{Name: name, Kind: KindArray, DataType: dataType, ScopeDepth: t.currentScope, ArrayLength: length}
	sym.ArrayID = t.allocateArrayID()
	sym.IsGlobal = t.currentScope == 0
	t.symbols = append(t.symbols, sym)
	return true
}

func (t *Table) allocate(sym *Symbol) {
	if t.currentScope == 0 {
		sym.GlobalIndex = t.allocateGlobal()
		sym.IsGlobal = true
	} else {
		sym.StackOffset = t.allocateLocal()
		sym.IsGlobal = false
	}
}

func (t *Table) allocateArrayID() int {
	id := t.nextArrayID
	t.nextArrayID++
	return id
}

func (t *Table) declaredInCurrentScope(name string) bool {
	for i := range t.symbols {
		if t.symbols[i].Name == name && t.symbols[i].ScopeDepth == t.currentScope {
			return true
		}
	}
	return false
}

// Lookup searches from the most recently declared symbol backward,
// returning the nearest-enclosing-scope match for name. It returns
// (Symbol{}, false) if name is not visible from the current scope.
func (t *Table) Lookup(name string) (Symbol, bool) {
	for i := len(t.symbols) - 1; i >= 0; i-- {
		if t.symbols[i].Name == name && t.symbols[i].ScopeDepth <= t.currentScope {
			return t.symbols[i], true
		}
	}
	return Symbol{}, false
}

// IsDeclared reports whether name is visible from the current scope,
// at any scope depth up to and including the current one.
func (t *Table) IsDeclared(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

func (t *Table) allocateGlobal() int {
	idx := t.nextGlobalIndex
	t.nextGlobalIndex++
	return idx
}

func (t *Table) allocateLocal() int {
	off := t.currentStackOff
	t.currentStackOff++
	return off
}

// ResetStackOffset zeroes the local allocation cursor, called by the
// emitter at the start of each function body.
func (t *Table) ResetStackOffset() {
	t.currentStackOff = 0
}

// CurrentScope returns the active scope depth (0 is global scope).
func (t *Table) CurrentScope() int {
	return t.currentScope
}

func (t *Table) initializeBuiltins() {
	t.Declare("pinMode", KindFunction, TypeVoid)
	t.Declare("digitalWrite", KindFunction, TypeVoid)
	t.Declare("digitalRead", KindFunction, TypeInt)
	t.Declare("analogWrite", KindFunction, TypeVoid)
	t.Declare("analogRead", KindFunction, TypeInt)
	t.Declare("delay", KindFunction, TypeVoid)
	t.Declare("millis", KindFunction, TypeInt)
	t.Declare("micros", KindFunction, TypeInt)
	t.Declare("printf", KindFunction, TypeVoid)
}
