package vm

import (
	"nilan/compiler"
	"nilan/value"
	"testing"
)

func instructions(parts ...[]byte) compiler.Instructions {
	var out compiler.Instructions
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func assembleOrFail(t *testing.T, op compiler.Opcode, operands ...int) []byte {
	t.Helper()
	instr, err := compiler.AssembleInstruction(op, operands...)
	if err != nil {
		t.Fatalf("failed to assemble instruction: %v", err)
	}
	return instr
}

func TestExecuteBytecodeVMStack(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			compiler.AssembleImmediate(5),
			compiler.AssembleImmediate(1),
			assembleOrFail(t, compiler.OP_END),
		),
	}

	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}

	if vm.stack.Len() != 2 {
		t.Fatalf("expected stack depth 2, got %d", vm.stack.Len())
	}
	if vm.stack[0].AsNumber() != 5 {
		t.Errorf("stack[0] - got: %v, want: 5", vm.stack[0].AsNumber())
	}
	if vm.stack[1].AsNumber() != 1 {
		t.Errorf("stack[1] - got: %v, want: 1", vm.stack[1].AsNumber())
	}
}

func TestVMArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		build    func(t *testing.T) compiler.Instructions
		expected float64
	}{
		{
			name: "addition",
			build: func(t *testing.T) compiler.Instructions {
				return instructions(
					compiler.AssembleImmediate(5),
					compiler.AssembleImmediate(1),
					assembleOrFail(t, compiler.OP_ADD),
					assembleOrFail(t, compiler.OP_END),
				)
			},
			expected: 6,
		},
		{
			name: "subtraction",
			build: func(t *testing.T) compiler.Instructions {
				return instructions(
					compiler.AssembleImmediate(5),
					compiler.AssembleImmediate(3),
					assembleOrFail(t, compiler.OP_SUBTRACT),
					assembleOrFail(t, compiler.OP_END),
				)
			},
			expected: 2,
		},
		{
			name: "multiplication",
			build: func(t *testing.T) compiler.Instructions {
				return instructions(
					compiler.AssembleImmediate(4),
					compiler.AssembleImmediate(3),
					assembleOrFail(t, compiler.OP_MULTIPLY),
					assembleOrFail(t, compiler.OP_END),
				)
			},
			expected: 12,
		},
		{
			name: "division",
			build: func(t *testing.T) compiler.Instructions {
				return instructions(
					compiler.AssembleImmediate(10),
					compiler.AssembleImmediate(4),
					assembleOrFail(t, compiler.OP_DIVIDE),
					assembleOrFail(t, compiler.OP_END),
				)
			},
			expected: 2.5,
		},
		{
			name: "negation",
			build: func(t *testing.T) compiler.Instructions {
				return instructions(
					compiler.AssembleImmediate(7),
					assembleOrFail(t, compiler.OP_NEGATE),
					assembleOrFail(t, compiler.OP_END),
				)
			},
			expected: -7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bytecode := compiler.Bytecode{Instructions: tt.build(t)}
			vm := New()
			if err := vm.Run(bytecode); err != nil {
				t.Fatalf("unexpected runtime error: %v", err)
			}
			top, ok := vm.stack.Peek()
			if !ok {
				t.Fatalf("expected a value on the stack")
			}
			if top.AsNumber() != tt.expected {
				t.Errorf("got: %v, want: %v", top.AsNumber(), tt.expected)
			}
		})
	}
}

func TestVMLessThanComparison(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			compiler.AssembleImmediate(3),
			compiler.AssembleImmediate(4),
			assembleOrFail(t, compiler.OP_LESS),
			assembleOrFail(t, compiler.OP_END),
		),
	}
	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
	top, _ := vm.stack.Peek()
	if !top.IsBool() || !top.AsBool() {
		t.Errorf("got: %v, want: true", top)
	}
}

func TestVMGlobals(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			compiler.AssembleImmediate(42),
			assembleOrFail(t, compiler.OP_DEFINE_GLOBAL, 0),
			assembleOrFail(t, compiler.OP_GET_GLOBAL, 0),
			assembleOrFail(t, compiler.OP_END),
		),
		NameConstants: []string{"x"},
	}

	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}

	top, ok := vm.stack.Peek()
	if !ok {
		t.Fatalf("expected a value on the stack")
	}
	if top.AsNumber() != 42 {
		t.Errorf("got: %v, want: 42", top.AsNumber())
	}
}

func TestVMSetGlobalRequiresExistingDefinition(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			compiler.AssembleImmediate(1),
			assembleOrFail(t, compiler.OP_SET_GLOBAL, 0),
			assembleOrFail(t, compiler.OP_END),
		),
		NameConstants: []string{"x"},
	}

	vm := New()
	err := vm.Run(bytecode)
	if err == nil {
		t.Fatalf("expected a runtime error assigning to an undefined global")
	}
	if _, ok := err.(RuntimeError); !ok {
		t.Errorf("expected a RuntimeError, got %T", err)
	}
}

func TestVMUndefinedGlobalIsRuntimeError(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			assembleOrFail(t, compiler.OP_GET_GLOBAL, 0),
			assembleOrFail(t, compiler.OP_END),
		),
		NameConstants: []string{"missing"},
	}

	vm := New()
	err := vm.Run(bytecode)
	if err == nil {
		t.Fatalf("expected a runtime error for an undefined global")
	}
	if _, ok := err.(RuntimeError); !ok {
		t.Errorf("expected a RuntimeError, got %T", err)
	}
}

func TestVMLocalsAndScopeExit(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			compiler.AssembleImmediate(1),
			compiler.AssembleImmediate(2),
			assembleOrFail(t, compiler.OP_GET_LOCAL, 0),
			assembleOrFail(t, compiler.OP_GET_LOCAL, 1),
			assembleOrFail(t, compiler.OP_ADD),
			assembleOrFail(t, compiler.OP_SET_LOCAL, 0),
			assembleOrFail(t, compiler.OP_POP),
			assembleOrFail(t, compiler.OP_SCOPE_EXIT, 1),
			assembleOrFail(t, compiler.OP_END),
		),
	}

	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}

	if vm.stack.Len() != 1 {
		t.Fatalf("expected stack depth 1 after scope exit, got %d", vm.stack.Len())
	}
	if vm.stack[0].AsNumber() != 3 {
		t.Errorf("got: %v, want: 3", vm.stack[0].AsNumber())
	}
}

func TestVMJumpSkipsElseBranch(t *testing.T) {
	jumpIfFalse := assembleOrFail(t, compiler.OP_JUMP_IF_FALSE, 0)
	thenImmediate := compiler.AssembleImmediate(1)
	jumpOverElse := assembleOrFail(t, compiler.OP_JUMP, 0)
	elseImmediate := compiler.AssembleImmediate(2)
	endInstr := assembleOrFail(t, compiler.OP_END)

	falseInstr := assembleOrFail(t, compiler.OP_FALSE)
	thenStart := len(falseInstr) + len(jumpIfFalse)
	elseStart := thenStart + len(thenImmediate) + len(jumpOverElse)
	afterElse := elseStart + len(elseImmediate)

	jumpIfFalse, _ = compiler.AssembleInstruction(compiler.OP_JUMP_IF_FALSE, elseStart)
	jumpOverElse, _ = compiler.AssembleInstruction(compiler.OP_JUMP, afterElse)

	bytecode := compiler.Bytecode{
		Instructions: instructions(
			falseInstr,
			jumpIfFalse,
			thenImmediate,
			jumpOverElse,
			elseImmediate,
			endInstr,
		),
	}

	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}

	top, ok := vm.stack.Peek()
	if !ok {
		t.Fatalf("expected a value on the stack")
	}
	if top.AsNumber() != 2 {
		t.Errorf("got: %v, want: 2 (the else branch)", top.AsNumber())
	}
}

func TestVMFunctionCallAndReturn(t *testing.T) {
	compiler_ := compiler.NewASTCompiler()
	arena := compiler_.Arena()

	// double(n) { return n + n; }
	// Slot 0 of the call frame is the callee itself (stackStart points at its own stack slot),
	// so the first parameter lives at slot 1, not slot 0.
	body := instructions(
		assembleOrFail(t, compiler.OP_GET_LOCAL, 1),
		assembleOrFail(t, compiler.OP_GET_LOCAL, 1),
		assembleOrFail(t, compiler.OP_ADD),
		assembleOrFail(t, compiler.OP_RETURN),
	)
	fnChunk := compiler.Bytecode{Instructions: body, Arena: arena}
	handle := arena.NewFunction("double", 1, fnChunk)

	bytecode := compiler.Bytecode{
		Instructions: instructions(
			assembleOrFail(t, compiler.OP_CONSTANT, 0),
			compiler.AssembleImmediate(21),
			assembleOrFail(t, compiler.OP_CALL, 1),
			assembleOrFail(t, compiler.OP_END),
		),
		ConstantsPool: []any{handle},
		Arena:         arena,
	}

	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}

	top, ok := vm.stack.Peek()
	if !ok {
		t.Fatalf("expected a return value on the stack")
	}
	if top.AsNumber() != 42 {
		t.Errorf("got: %v, want: 42", top.AsNumber())
	}
	if vm.stack.Len() != 1 {
		t.Errorf("expected the call's arguments to be cleaned up, stack depth got: %d", vm.stack.Len())
	}
}

func TestVMCallArityMismatchIsRuntimeError(t *testing.T) {
	compiler_ := compiler.NewASTCompiler()
	arena := compiler_.Arena()
	handle := arena.NewFunction("needsOne", 1, compiler.Bytecode{
		Instructions: instructions(assembleOrFail(t, compiler.OP_NIL), assembleOrFail(t, compiler.OP_RETURN)),
		Arena:        arena,
	})

	bytecode := compiler.Bytecode{
		Instructions: instructions(
			assembleOrFail(t, compiler.OP_CONSTANT, 0),
			assembleOrFail(t, compiler.OP_CALL, 0),
			assembleOrFail(t, compiler.OP_END),
		),
		ConstantsPool: []any{handle},
		Arena:         arena,
	}

	vm := New()
	err := vm.Run(bytecode)
	if err == nil {
		t.Fatalf("expected a runtime error for an arity mismatch")
	}
	if _, ok := err.(RuntimeError); !ok {
		t.Errorf("expected a RuntimeError, got %T", err)
	}
}

func TestVMNativeClockReturnsNumber(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			assembleOrFail(t, compiler.OP_GET_GLOBAL, 0),
			assembleOrFail(t, compiler.OP_CALL, 0),
			assembleOrFail(t, compiler.OP_END),
		),
		NameConstants: []string{"clock"},
	}

	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}

	top, ok := vm.stack.Peek()
	if !ok {
		t.Fatalf("expected a value on the stack")
	}
	if !top.IsNumber() {
		t.Errorf("expected clock() to return a number, got %v", top)
	}
}

func TestVMStringConcatenation(t *testing.T) {
	compiler_ := compiler.NewASTCompiler()
	arena := compiler_.Arena()
	aHandle := arena.InternString("foo")
	bHandle := arena.InternString("bar")

	bytecode := compiler.Bytecode{
		Instructions: instructions(
			assembleOrFail(t, compiler.OP_CONSTANT, 0),
			assembleOrFail(t, compiler.OP_CONSTANT, 1),
			assembleOrFail(t, compiler.OP_ADD),
			assembleOrFail(t, compiler.OP_END),
		),
		ConstantsPool: []any{aHandle, bHandle},
		Arena:         arena,
	}

	vm := New()
	if err := vm.Run(bytecode); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}

	top, ok := vm.stack.Peek()
	if !ok {
		t.Fatalf("expected a value on the stack")
	}
	if value.ToString(top, arena) != "foobar" {
		t.Errorf("got: %v, want: foobar", value.ToString(top, arena))
	}
}

func TestVMMismatchedAddIsRuntimeError(t *testing.T) {
	bytecode := compiler.Bytecode{
		Instructions: instructions(
			compiler.AssembleImmediate(1),
			assembleOrFail(t, compiler.OP_NIL),
			assembleOrFail(t, compiler.OP_ADD),
			assembleOrFail(t, compiler.OP_END),
		),
	}

	vm := New()
	err := vm.Run(bytecode)
	if err == nil {
		t.Fatalf("expected a runtime error for mismatched operands to '+'")
	}
	if _, ok := err.(RuntimeError); !ok {
		t.Errorf("expected a RuntimeError, got %T", err)
	}
}
