package interpreter

import "nilan/ast"

// callable is implemented by any value that can appear on the left of a
// call expression: user-declared functions and host-provided natives.
type callable interface {
	Arity() int
	Call(interp *TreeWalkInterpreter, args []any) any
}

// LoxFunction is a user-declared function value. Its closure is the frame
// stack captured at the point the function was declared, which is what
// lets it see variables from enclosing scopes (and itself, for recursion,
// since the declaring frame is bound into after the closure is captured
// and maps are reference types).
type LoxFunction struct {
	declaration ast.FunctionStmt
	closure     []map[string]any
}

func (f *LoxFunction) Arity() int {
	return len(f.declaration.Params)
}

// Call executes the function body in a fresh environment derived from the
// closure, with parameters bound to args. A return statement unwinds via
// panic/recover carrying a returnSignal; any other panic propagates.
func (f *LoxFunction) Call(interp *TreeWalkInterpreter, args []any) (result any) {
	previous := interp.environment
	frames := make([]map[string]any, len(f.closure)+1)
	copy(frames, f.closure)
	frames[len(f.closure)] = make(map[string]any)
	interp.environment = &Environment{frames: frames}

	for idx, param := range f.declaration.Params {
		interp.environment.Bind(param.Lexeme, args[idx])
	}

	defer func() { interp.environment = previous }()
	defer func() {
		if r := recover(); r != nil {
			if signal, ok := r.(returnSignal); ok {
				result = signal.value
				return
			}
			panic(r)
		}
	}()

	interp.executeStatements(f.declaration.Body)
	return nil
}

// returnSignal carries a return statement's value up the call stack to the
// enclosing LoxFunction.Call via panic/recover.
type returnSignal struct {
	value any
}

// NativeFunction wraps a host-provided Go function as a callable value,
// e.g. the "clock" native.
type NativeFunction struct {
	Name       string
	ArityCount int
	Fn         func(args []any) any
}

func (n *NativeFunction) Arity() int {
	return n.ArityCount
}

func (n *NativeFunction) Call(interp *TreeWalkInterpreter, args []any) any {
	return n.Fn(args)
}
