package nativebind

import (
	"os"
	"runtime"
	"runtime/debug"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sink float64

func skipWithoutRegions(t *testing.T) {
	t.Helper()
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "netbsd", "openbsd":
	default:
		t.Skip("guarded regions need mmap")
	}
}

func TestNewRegionRoundsToPages(t *testing.T) {
	skipWithoutRegions(t)
	page := os.Getpagesize()

	r, err := NewRegion(1)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, page, r.Size())
	assert.Zero(t, uintptr(r.Ptr())%uintptr(page))

	r2, err := NewRegion(page + 1)
	require.NoError(t, err)
	defer r2.Close()
	assert.Equal(t, 2*page, r2.Size())
}

func TestNewRegionRejectsNonPositive(t *testing.T) {
	_, err := NewRegion(0)
	assert.Error(t, err)
	_, err = NewRegion(-8)
	assert.Error(t, err)
}

func TestTailSliceEndsAtGuardPage(t *testing.T) {
	skipWithoutRegions(t)

	r, values, err := GuardedFloat64s(10)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, values, 10)
	assert.Equal(t, 10, cap(values))
	tail := GetTypedSlice[float64](r, r.Size()-10*8)
	assert.Equal(t, unsafe.SliceData(tail), unsafe.SliceData(values))
	end := uintptr(unsafe.Pointer(&values[9])) + unsafe.Sizeof(values[9])
	assert.Equal(t, uintptr(r.Ptr())+uintptr(r.Size()), end)

	for i := range values {
		values[i] = float64(i)
	}
	assert.Equal(t, 9.0, values[9])

	assert.Panics(t, func() { TailSlice[float64](r, r.Size()/8+1) })
}

func TestGuardPageFaults(t *testing.T) {
	skipWithoutRegions(t)

	r, values, err := GuardedFloat64s(4)
	require.NoError(t, err)
	defer r.Close()

	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	assert.NotPanics(t, func() { sink = values[3] })
	past := (*float64)(unsafe.Add(unsafe.Pointer(&values[3]), 8))
	assert.Panics(t, func() { sink = *past })
}

func TestGetTypedSlice(t *testing.T) {
	skipWithoutRegions(t)

	r, err := NewRegion(64)
	require.NoError(t, err)
	defer r.Close()

	bytes := GetTypedSlice[byte](r, 0)
	assert.Len(t, bytes, r.Size())

	ints := GetTypedSlice[int32](r, 8)
	assert.Len(t, ints, (r.Size()-8)/4)
	ints[0] = 0x01020304
	assert.NotZero(t, bytes[8]|bytes[9]|bytes[10]|bytes[11])

	floats := GetTypedSlice[float64](r, 0)
	floats[1] = 2.5
	assert.Equal(t, 2.5, GetTypedSlice[float64](r, 8)[0])
}

func TestRegionCloseIsIdempotent(t *testing.T) {
	skipWithoutRegions(t)

	r, err := NewRegion(16)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}
