// Package gc implements the heap the bytecode VM allocates strings and
// compiled functions into: a typed arena of Objects reached only through
// stable Handles, collected with a simple mark-and-sweep pass.
//
// The design mirrors a tagged-object-plus-indirection-table heap: rather
// than embedding a pointer directly in a Value, every heap reference is a
// Handle that the Arena looks up through its entries table. That level of
// indirection is what lets Collect reclaim and reuse the slots of the
// objects it frees without moving any object it keeps: a Handle passed to
// Collect as a root still names the same object afterwards. A Handle that
// was not passed as a root (including one held only in a chunk's constant
// pool) is freed, and its slot may later hold a different object.
package gc

// ObjectKind identifies which concrete Object variant a heap value holds.
type ObjectKind int

const (
	ObjKindString ObjectKind = iota
	ObjKindFunction
)

// Object is implemented by every heap-allocated value the VM can hold a
// Handle to.
type Object interface {
	Kind() ObjectKind
}

// StringObject is an interned Lox string.
type StringObject struct {
	Chars string
}

func (s *StringObject) Kind() ObjectKind { return ObjKindString }

// FunctionObject is a compiled function value. Chunk holds a
// compiler.Bytecode value, but is typed as any here to avoid an import cycle:
// the compiler package needs to allocate FunctionObjects into the arena,
// so the arena cannot import the compiler package back. The VM, which
// imports both, is what actually type-asserts Chunk back to its concrete
// type before running it.
type FunctionObject struct {
	Name  string
	Arity int
	Chunk any
}

func (f *FunctionObject) Kind() ObjectKind { return ObjKindFunction }

func (s *StringObject) String() string {
	return s.Chars
}

func (f *FunctionObject) String() string {
	if f.Name == "" {
		return "<script>"
	}
	return "<fn " + f.Name + ">"
}
