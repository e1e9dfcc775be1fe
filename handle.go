package nativebind

import "fmt"

// Handle is an opaque reference to memory owned by the native module. The
// address is never exposed as a pointer; a Handle can only be passed back into
// the Library that produced it.
type Handle struct {
	addr uintptr
}

// IsNil reports whether the handle refers to nothing.
func (h Handle) IsNil() bool {
	return h.addr == 0
}

// String formats the handle address for logs.
func (h Handle) String() string {
	return fmt.Sprintf("Handle(%#x)", h.addr)
}
