package vm

import "fmt"

type RuntimeError struct {
	Message string
}

func (e RuntimeError) Error() string {
	return fmt.Sprintf("💥 RuntimeError: %s", e.Message)
}

// DeveloperError reports an invariant the compiler should have guaranteed, e.g. a function
// object whose Chunk isn't the type the VM expects. It should never surface from valid
// bytecode.
type DeveloperError struct {
	Message string
}

func (e DeveloperError) Error() string {
	return fmt.Sprintf("🤖 DeveloperError: %s", e.Message)
}
