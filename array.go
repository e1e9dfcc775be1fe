package nativebind

import (
	"strings"
	"unsafe"
)

// Array is a contiguous float64 buffer handed to native code as a base
// address plus element count. Both come from the same slice, so the count
// always matches the buffer.
//
// The caller keeps ownership. The backing memory must stay alive until the
// native call returns; Library keeps it reachable for the duration of the call.
type Array struct {
	values []float64
}

// NewArray wraps values without copying.
func NewArray(values []float64) Array {
	return Array{values: values}
}

// Len returns the element count passed to native code.
func (a Array) Len() int {
	return len(a.values)
}

// Values returns the wrapped slice.
func (a Array) Values() []float64 {
	return a.values
}

// base returns the address of the first element, or nil for an empty array.
func (a Array) base() *float64 {
	if len(a.values) == 0 {
		return nil
	}
	return unsafe.SliceData(a.values)
}

// String renders the array with the shortest exact formatting.
func (a Array) String() string {
	return FormatFloat64s(a.values, -1)
}

// FormatFloat64s renders values as "[v0 v1 ...]" with precision fractional
// digits.
func FormatFloat64s(values []float64, precision int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(formatFloat(v, precision))
	}
	sb.WriteByte(']')
	return sb.String()
}
