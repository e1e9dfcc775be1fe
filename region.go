package nativebind

import (
	"fmt"
	"unsafe"
)

// Region is an anonymous, page-aligned memory mapping followed by one
// inaccessible guard page. Any access that runs past the end of the usable
// area faults instead of silently reading neighbouring memory, which makes it
// a bounds check for buffers handed to native code.
//
// A Region is not managed by the Go garbage collector; call Close when done.
// Views obtained from it are invalid after Close.
type Region struct {
	m *mapping
}

// NewRegion maps at least size usable bytes, rounded up to whole pages, plus
// the guard page.
func NewRegion(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("nativebind: region size must be positive, got %d", size)
	}
	m, err := mapGuarded(size)
	if err != nil {
		return nil, err
	}
	return &Region{m: m}, nil
}

// Size returns the usable size in bytes, excluding the guard page.
func (r *Region) Size() int {
	return r.m.getSize()
}

// Ptr returns the start of the usable area.
func (r *Region) Ptr() unsafe.Pointer {
	return r.m.getPtr()
}

// Close unmaps the region, including the guard page.
func (r *Region) Close() (err error) {
	if r.m != nil {
		err = r.m.close()
		if err == nil {
			r.m = nil
		}
	}
	return err
}

// GetTypedSlice returns a zero-copy view of the region starting at offset and
// extending to the guard page.
func GetTypedSlice[T any](r *Region, offset int) []T {
	elementSize := int(unsafe.Sizeof(*new(T)))
	numElements := (r.Size() - offset) / elementSize
	return unsafe.Slice((*T)(unsafe.Add(r.Ptr(), offset)), numElements)
}

// TailSlice returns an n-element view that ends exactly at the guard page, so
// reading element n faults. It panics if n elements do not fit.
func TailSlice[T any](r *Region, n int) []T {
	elementSize := int(unsafe.Sizeof(*new(T)))
	offset := r.Size() - n*elementSize
	if n < 0 || offset < 0 {
		panic(fmt.Sprintf("nativebind: %d elements do not fit in a %d byte region", n, r.Size()))
	}
	return GetTypedSlice[T](r, offset)[:n]
}

// GuardedFloat64s maps a region sized for n float64 values and returns it
// together with an n-element view flush against the guard page.
func GuardedFloat64s(n int) (*Region, []float64, error) {
	size := n * int(unsafe.Sizeof(float64(0)))
	if size == 0 {
		size = 1
	}
	r, err := NewRegion(size)
	if err != nil {
		return nil, nil, err
	}
	return r, TailSlice[float64](r, n), nil
}
