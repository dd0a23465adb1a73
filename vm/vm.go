package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"nilan/compiler"
	"nilan/gc"
	"nilan/value"
	"time"
)

// CallFrame is one activation record on the VM's call stack: the chunk currently executing,
// the instruction pointer into it, and the stack index where this call's callee and arguments
// begin.
type CallFrame struct {
	chunk      compiler.Bytecode
	ip         int
	stackStart int
}

// VM is the bytecode backend's stack-based runtime. It executes a compiler.Bytecode chunk
// produced by ASTCompiler, allocating into the same object Arena the compiler used, so every
// handle stored in a chunk's constants pool stays valid for the whole run.
type VM struct {
	stack   Stack
	frames  []CallFrame
	globals map[string]value.Value
	arena   *gc.Arena
	debug   bool
}

// New creates an empty VM. Its globals and object heap are seeded on the first call to Run.
func New() *VM {
	return &VM{globals: make(map[string]value.Value), debug: true}
}

func (vm *VM) frame() *CallFrame {
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) readByte() byte {
	f := vm.frame()
	b := f.chunk.Instructions[f.ip]
	f.ip += compiler.OPCODE_TOTAL_BYTES
	return b
}

func (vm *VM) readUint16() int {
	f := vm.frame()
	v := binary.BigEndian.Uint16(f.chunk.Instructions[f.ip:])
	f.ip += 2
	return int(v)
}

func (vm *VM) readFloat64() float64 {
	f := vm.frame()
	bits := binary.LittleEndian.Uint64(f.chunk.Instructions[f.ip:])
	f.ip += 8
	return math.Float64frombits(bits)
}

// Run executes bytecode to completion, starting a fresh top-level call frame. Returns a
// RuntimeError if execution fails; a nil return means the program ran to its end (an OP_END at
// the top level, or a top-level OP_RETURN).
func (vm *VM) Run(bytecode compiler.Bytecode) error {
	vm.arena = bytecode.Arena
	if vm.arena == nil {
		vm.arena = gc.NewArena()
	}
	if _, ok := vm.globals["clock"]; !ok {
		// clock has a nil Chunk, which is how the VM tells a native function apart from a
		// compiled one -- see (*VM).call.
		handle := vm.arena.NewFunction("clock", 0, nil)
		vm.globals["clock"] = value.Object(handle)
	}

	vm.frames = []CallFrame{{chunk: bytecode, ip: 0, stackStart: 0}}
	vm.stack = Stack{}

	for len(vm.frames) > 0 {
		op := compiler.Opcode(vm.readByte())

		switch op {
		case compiler.OP_END:
			return nil

		case compiler.OP_IMMEDIATE:
			vm.stack.Push(value.Number(vm.readFloat64()))

		case compiler.OP_NIL:
			vm.stack.Push(value.Nil)
		case compiler.OP_TRUE:
			vm.stack.Push(value.True)
		case compiler.OP_FALSE:
			vm.stack.Push(value.False)

		case compiler.OP_CONSTANT:
			index := vm.readUint16()
			if err := vm.pushConstant(index); err != nil {
				return err
			}

		case compiler.OP_POP:
			vm.stack.Pop()

		case compiler.OP_ADD:
			if err := vm.add(); err != nil {
				return err
			}
		case compiler.OP_SUBTRACT:
			if err := vm.numericBinary(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case compiler.OP_MULTIPLY:
			if err := vm.numericBinary(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case compiler.OP_DIVIDE:
			if err := vm.numericBinary(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}
		case compiler.OP_NEGATE:
			if err := vm.negate(); err != nil {
				return err
			}
		case compiler.OP_NOT:
			v, _ := vm.stack.Pop()
			vm.stack.Push(value.Bool(!v.IsTruthy()))

		case compiler.OP_EQUALITY:
			b, _ := vm.stack.Pop()
			a, _ := vm.stack.Pop()
			vm.stack.Push(value.Bool(value.Equal(a, b)))
		case compiler.OP_NOT_EQUAL:
			b, _ := vm.stack.Pop()
			a, _ := vm.stack.Pop()
			vm.stack.Push(value.Bool(!value.Equal(a, b)))
		case compiler.OP_LARGER:
			if err := vm.comparison(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case compiler.OP_LESS:
			if err := vm.comparison(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}
		case compiler.OP_LARGER_EQUAL:
			if err := vm.comparison(func(a, b float64) bool { return a >= b }); err != nil {
				return err
			}
		case compiler.OP_LESS_EQUAL:
			if err := vm.comparison(func(a, b float64) bool { return a <= b }); err != nil {
				return err
			}

		case compiler.OP_PRINT:
			v, _ := vm.stack.Pop()
			fmt.Println(value.ToString(v, vm.arena))

		case compiler.OP_DEFINE_GLOBAL:
			index := vm.readUint16()
			name := vm.frame().chunk.NameConstants[index]
			v, _ := vm.stack.Pop()
			vm.globals[name] = v

		case compiler.OP_SET_GLOBAL:
			index := vm.readUint16()
			name := vm.frame().chunk.NameConstants[index]
			if _, ok := vm.globals[name]; !ok {
				return RuntimeError{Message: fmt.Sprintf("undefined variable '%s'", name)}
			}
			v, _ := vm.stack.Peek()
			vm.globals[name] = v

		case compiler.OP_GET_GLOBAL:
			index := vm.readUint16()
			name := vm.frame().chunk.NameConstants[index]
			v, ok := vm.globals[name]
			if !ok {
				return RuntimeError{Message: fmt.Sprintf("undefined variable '%s'", name)}
			}
			vm.stack.Push(v)

		case compiler.OP_SET_LOCAL:
			slot := vm.readUint16()
			v, _ := vm.stack.Peek()
			vm.stack[vm.frame().stackStart+slot] = v

		case compiler.OP_GET_LOCAL:
			slot := vm.readUint16()
			vm.stack.Push(vm.stack[vm.frame().stackStart+slot])

		case compiler.OP_SCOPE_EXIT:
			count := vm.readUint16()
			vm.stack.Truncate(vm.stack.Len() - count)

		case compiler.OP_JUMP:
			target := vm.readUint16()
			vm.frame().ip = target
		case compiler.OP_JUMP_IF_FALSE:
			target := vm.readUint16()
			v, _ := vm.stack.Peek()
			if !v.IsTruthy() {
				vm.frame().ip = target
			}

		case compiler.OP_CALL:
			arity := int(vm.readByte())
			if err := vm.call(arity); err != nil {
				return err
			}

		case compiler.OP_RETURN:
			result, _ := vm.stack.Pop()
			returning := vm.frames[len(vm.frames)-1]
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.stack.Truncate(returning.stackStart)
			if len(vm.frames) == 0 {
				return nil
			}
			vm.stack.Push(result)

		default:
			return RuntimeError{Message: fmt.Sprintf("unknown opcode %v", op)}
		}
	}

	return nil
}

// pushConstant pushes the constants-pool entry at index onto the stack, converting it to a
// value.Value. A gc.Handle (an interned string or a compiled function) becomes an object
// Value; any other stored type (e.g. the int64/bool/nil literals hand-built ASTs and older
// tests still place in the pool directly) is converted with the obvious mapping.
func (vm *VM) pushConstant(index int) error {
	constant := vm.frame().chunk.ConstantsPool[index]
	switch c := constant.(type) {
	case gc.Handle:
		vm.stack.Push(value.Object(c))
	case float64:
		vm.stack.Push(value.Number(c))
	case int64:
		vm.stack.Push(value.Number(float64(c)))
	case bool:
		vm.stack.Push(value.Bool(c))
	case string:
		vm.stack.Push(value.Object(vm.arena.InternString(c)))
	case nil:
		vm.stack.Push(value.Nil)
	default:
		return RuntimeError{Message: fmt.Sprintf("constant of unsupported type %T", constant)}
	}
	return nil
}

func (vm *VM) add() error {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()

	if a.IsNumber() && b.IsNumber() {
		vm.stack.Push(value.Number(a.AsNumber() + b.AsNumber()))
		return nil
	}

	aStr, aOK := vm.asString(a)
	bStr, bOK := vm.asString(b)
	if aOK && bOK {
		vm.stack.Push(value.Object(vm.arena.InternString(aStr + bStr)))
		return nil
	}

	return RuntimeError{Message: "operands to '+' must both be numbers or both be strings"}
}

func (vm *VM) asString(v value.Value) (string, bool) {
	if !v.IsObject() {
		return "", false
	}
	s, ok := vm.arena.Get(v.AsObjectHandle()).(*gc.StringObject)
	if !ok {
		return "", false
	}
	return s.Chars, true
}

func (vm *VM) numericBinary(op func(a, b float64) float64) error {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()
	if !a.IsNumber() || !b.IsNumber() {
		return RuntimeError{Message: "operands must be numbers"}
	}
	vm.stack.Push(value.Number(op(a.AsNumber(), b.AsNumber())))
	return nil
}

func (vm *VM) comparison(op func(a, b float64) bool) error {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()
	if !a.IsNumber() || !b.IsNumber() {
		return RuntimeError{Message: "operands must be numbers"}
	}
	vm.stack.Push(value.Bool(op(a.AsNumber(), b.AsNumber())))
	return nil
}

func (vm *VM) negate() error {
	v, _ := vm.stack.Pop()
	if !v.IsNumber() {
		return RuntimeError{Message: "operand to unary '-' must be a number"}
	}
	vm.stack.Push(value.Number(-v.AsNumber()))
	return nil
}

// call invokes the callable sitting arity slots below the top of the stack. A callee whose
// FunctionObject has a nil Chunk is a native function (currently just "clock"); everything
// else pushes a new CallFrame over the callee's compiled chunk.
func (vm *VM) call(arity int) error {
	calleeIndex := vm.stack.Len() - 1 - arity
	if calleeIndex < 0 || !vm.stack[calleeIndex].IsObject() {
		return RuntimeError{Message: "can only call functions"}
	}

	fn, ok := vm.arena.Get(vm.stack[calleeIndex].AsObjectHandle()).(*gc.FunctionObject)
	if !ok {
		return RuntimeError{Message: "can only call functions"}
	}
	if arity != fn.Arity {
		return RuntimeError{Message: fmt.Sprintf("expected %d arguments but got %d", fn.Arity, arity)}
	}

	if fn.Chunk == nil {
		result := vm.callNative(fn.Name)
		vm.stack.Truncate(calleeIndex)
		vm.stack.Push(result)
		return nil
	}

	chunk, ok := fn.Chunk.(compiler.Bytecode)
	if !ok {
		return DeveloperError{Message: "function object's chunk has an unexpected type"}
	}
	vm.frames = append(vm.frames, CallFrame{chunk: chunk, ip: 0, stackStart: calleeIndex})
	return nil
}

// callNative executes the body of a native function by name. There is exactly one today.
func (vm *VM) callNative(name string) value.Value {
	switch name {
	case "clock":
		return value.Number(float64(time.Now().UnixNano()) / float64(time.Second))
	default:
		return value.Nil
	}
}
