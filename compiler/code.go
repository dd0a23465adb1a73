package compiler

import (
	"encoding/binary"
	"fmt"
	"math"
	"nilan/gc"
)

// Bytecode is what the compiler produces and the VM executes.
//
// Fields:
//   - Instructions: the flat instruction stream, opcodes followed by their operand bytes.
//   - ConstantsPool: literal values (numbers, strings) referenced by OP_CONSTANT.
//   - NameConstants: global variable names referenced by OP_*_GLOBAL, kept separate from
//     ConstantsPool so a global's name and a same-valued literal never collide.
//   - Arena: the object heap the compiler allocated interned strings and nested function
//     chunks into. The VM keeps allocating into this same Arena at runtime, so every handle
//     stored in ConstantsPool at compile time stays valid.
type Bytecode struct {
	Instructions  Instructions
	ConstantsPool []any
	NameConstants []string
	Arena         *gc.Arena
}

type Opcode byte

type Instructions []byte

// Instruction-length constants, used by the compiler's disassembler and backpatcher to know
// how many bytes to skip over for a given opcode shape.
const (
	// OPCODE_TOTAL_BYTES is the width of the opcode byte itself, present in every instruction.
	OPCODE_TOTAL_BYTES = 1

	// THREE_BYTE_INSTRUCTION_LENGTH is the total width of an opcode plus a single 2-byte
	// Big-Endian operand (a constants-pool or name-constants-pool index, a jump target, or a
	// local variable slot).
	THREE_BYTE_INSTRUCTION_LENGTH = 3

	// IMMEDIATE_INSTRUCTION_LENGTH is the total width of OP_IMMEDIATE: the opcode plus an
	// 8-byte Little-Endian IEEE-754 double.
	IMMEDIATE_INSTRUCTION_LENGTH = 9

	// CALL_INSTRUCTION_LENGTH is the total width of OP_CALL: the opcode plus a 1-byte
	// argument count.
	CALL_INSTRUCTION_LENGTH = 2
)

// opcodes
// iota generates a distinct byte for each bytecode.
const (
	// OP_CONSTANT loads a value from the constants pool onto the stack. Its operand is a
	// 2-byte Big-Endian index into ConstantsPool, which caps a single chunk at 65536 distinct
	// constants (indices 0 to 65535).
	OP_CONSTANT Opcode = iota

	// OP_IMMEDIATE pushes a number literal onto the stack without a constants-pool round trip.
	// Its operand is the literal's raw 8-byte Little-Endian IEEE-754 bit pattern.
	OP_IMMEDIATE

	// OP_NIL, OP_TRUE and OP_FALSE push the corresponding singleton value. None take an operand:
	// there's only ever one nil and one of each boolean, so there's nothing to index.
	OP_NIL
	OP_TRUE
	OP_FALSE

	// OP_POP discards the top of the stack, used to clean up an expression statement's
	// unused result or a branch's condition value.
	OP_POP

	// Arithmetic. Each pops its operand(s) and pushes the result.
	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_NEGATE

	// Logic and comparison.
	OP_NOT
	OP_EQUALITY
	OP_NOT_EQUAL
	OP_LARGER
	OP_LESS
	OP_LARGER_EQUAL
	OP_LESS_EQUAL

	// OP_AND and OP_OR are defined for completeness but unused: short-circuiting "and"/"or" is
	// compiled as jumps (see VisitLogicalExpression), not as a dedicated opcode.
	OP_AND
	OP_OR

	OP_PRINT

	// Globals. Operand is a 2-byte Big-Endian index into NameConstants.
	OP_DEFINE_GLOBAL
	OP_SET_GLOBAL
	OP_GET_GLOBAL

	// Locals. Operand is a 2-byte Big-Endian VM stack slot index.
	// OP_DEFINE_LOCAL is unused: a local's initializer already leaves its value sitting in the
	// slot the compiler reserved for it, so no separate "define" instruction is needed the way
	// globals need one.
	OP_DEFINE_LOCAL
	OP_SET_LOCAL
	OP_GET_LOCAL

	// OP_SCOPE_EXIT pops the given number of local variables off the VM's stack when a block
	// ends. Operand is a 2-byte Big-Endian count.
	OP_SCOPE_EXIT

	// Control flow. Operand is a 2-byte Big-Endian absolute byte offset into Instructions.
	OP_JUMP
	OP_JUMP_IF_FALSE

	// OP_CALL invokes the callable value sitting below its arguments on the stack. Operand is
	// a 1-byte argument count.
	OP_CALL

	// OP_RETURN unwinds the current call frame, leaving its return value on the stack in place
	// of the callee and its arguments. Takes no operand: the value to return is already on top
	// of the stack.
	OP_RETURN

	OP_END
)

// OpCodeDefinition documents an opcode's name and the width, in bytes, of each of its operands.
type OpCodeDefinition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*OpCodeDefinition{
	OP_CONSTANT:      {Name: "OP_CONSTANT", OperandWidths: []int{2}},
	OP_IMMEDIATE:     {Name: "OP_IMMEDIATE", OperandWidths: []int{8}},
	OP_NIL:           {Name: "OP_NIL", OperandWidths: []int{}},
	OP_TRUE:          {Name: "OP_TRUE", OperandWidths: []int{}},
	OP_FALSE:         {Name: "OP_FALSE", OperandWidths: []int{}},
	OP_POP:           {Name: "OP_POP", OperandWidths: []int{}},
	OP_ADD:           {Name: "OP_ADD", OperandWidths: []int{}},
	OP_SUBTRACT:      {Name: "OP_SUBTRACT", OperandWidths: []int{}},
	OP_MULTIPLY:      {Name: "OP_MULTIPLY", OperandWidths: []int{}},
	OP_DIVIDE:        {Name: "OP_DIVIDE", OperandWidths: []int{}},
	OP_NEGATE:        {Name: "OP_NEGATE", OperandWidths: []int{}},
	OP_NOT:           {Name: "OP_NOT", OperandWidths: []int{}},
	OP_EQUALITY:      {Name: "OP_EQUALITY", OperandWidths: []int{}},
	OP_NOT_EQUAL:     {Name: "OP_NOT_EQUAL", OperandWidths: []int{}},
	OP_LARGER:        {Name: "OP_LARGER", OperandWidths: []int{}},
	OP_LESS:          {Name: "OP_LESS", OperandWidths: []int{}},
	OP_LARGER_EQUAL:  {Name: "OP_LARGER_EQUAL", OperandWidths: []int{}},
	OP_LESS_EQUAL:    {Name: "OP_LESS_EQUAL", OperandWidths: []int{}},
	OP_AND:           {Name: "OP_AND", OperandWidths: []int{}},
	OP_OR:            {Name: "OP_OR", OperandWidths: []int{}},
	OP_PRINT:         {Name: "OP_PRINT", OperandWidths: []int{}},
	OP_DEFINE_GLOBAL: {Name: "OP_DEFINE_GLOBAL", OperandWidths: []int{2}},
	OP_SET_GLOBAL:    {Name: "OP_SET_GLOBAL", OperandWidths: []int{2}},
	OP_GET_GLOBAL:    {Name: "OP_GET_GLOBAL", OperandWidths: []int{2}},
	OP_DEFINE_LOCAL:  {Name: "OP_DEFINE_LOCAL", OperandWidths: []int{2}},
	OP_SET_LOCAL:     {Name: "OP_SET_LOCAL", OperandWidths: []int{2}},
	OP_GET_LOCAL:     {Name: "OP_GET_LOCAL", OperandWidths: []int{2}},
	OP_SCOPE_EXIT:    {Name: "OP_SCOPE_EXIT", OperandWidths: []int{2}},
	OP_JUMP:          {Name: "OP_JUMP", OperandWidths: []int{2}},
	OP_JUMP_IF_FALSE: {Name: "OP_JUMP_IF_FALSE", OperandWidths: []int{2}},
	OP_CALL:          {Name: "OP_CALL", OperandWidths: []int{1}},
	OP_RETURN:        {Name: "OP_RETURN", OperandWidths: []int{}},
	OP_END:           {Name: "OP_END", OperandWidths: []int{}},
}

func Get(op Opcode) (*OpCodeDefinition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode: '%d' undefined", op)
	}
	return def, nil
}

// AssembleInstruction encodes an opcode and its operands into a single instruction.
//
// Every operand is encoded Big-Endian, except OP_IMMEDIATE's 8-byte double which is encoded
// Little-Endian to match the spec's wire format for immediate literals.
//
// Parameters:
//   - op: the opcode to encode.
//   - operands: the operand values, matching the opcode's defined operand widths in order.
//
// Returns:
//   - the encoded instruction bytes, or an error if op is undefined.
func AssembleInstruction(op Opcode, operands ...int) ([]byte, error) {
	def, err := Get(op)
	if err != nil {
		return nil, DeveloperError{Message: err.Error()}
	}

	byteOffset := OPCODE_TOTAL_BYTES
	instructionLength := byteOffset
	for _, width := range def.OperandWidths {
		instructionLength += width
	}

	instruction := make([]byte, instructionLength)
	instruction[0] = byte(op)

	for i, o := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 1:
			instruction[byteOffset] = byte(o)
		case 2:
			binary.BigEndian.PutUint16(instruction[byteOffset:], uint16(o))
		case 8:
			binary.LittleEndian.PutUint64(instruction[byteOffset:], math.Float64bits(float64(o)))
		}
		byteOffset += width
	}
	return instruction, nil
}

// AssembleImmediate encodes OP_IMMEDIATE with its exact float64 payload. AssembleInstruction
// can't carry a double through its int-typed operands without losing precision, so the
// compiler calls this directly whenever it emits a number literal.
func AssembleImmediate(n float64) []byte {
	instruction := make([]byte, IMMEDIATE_INSTRUCTION_LENGTH)
	instruction[0] = byte(OP_IMMEDIATE)
	binary.LittleEndian.PutUint64(instruction[OPCODE_TOTAL_BYTES:], math.Float64bits(n))
	return instruction
}

// DiassembleInstruction renders a single instruction as a human-readable line, used by the
// bytecode disassembler command and by the compiler's own disassembly dump.
func DiassembleInstruction(instruction []byte) (string, error) {
	op := Opcode(instruction[0])
	def, err := Get(op)
	if err != nil {
		return "", DeveloperError{Message: err.Error()}
	}

	if len(def.OperandWidths) == 0 {
		return fmt.Sprintf("opcode: %s, operand: None, operand widths: 0 bytes", def.Name), nil
	}

	width := def.OperandWidths[0]
	var operand uint64
	switch width {
	case 1:
		operand = uint64(instruction[OPCODE_TOTAL_BYTES])
	case 2:
		operand = uint64(binary.BigEndian.Uint16(instruction[OPCODE_TOTAL_BYTES:]))
	case 8:
		bits := binary.LittleEndian.Uint64(instruction[OPCODE_TOTAL_BYTES:])
		return fmt.Sprintf("opcode: %s, operand: %v, operand widths: %d bytes", def.Name, math.Float64frombits(bits), width), nil
	}

	return fmt.Sprintf("opcode: %s, operand: %d, operand widths: %d bytes", def.Name, operand, width), nil
}
