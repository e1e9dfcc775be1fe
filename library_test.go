package nativebind

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLibraryMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.so")

	lib, err := LoadLibrary(path)
	require.Error(t, err)
	assert.Nil(t, lib)

	var le *ModuleLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.Path)
	assert.Empty(t, le.Symbol)
	assert.NotNil(t, le.Err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadLibraryNotAModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.so")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an ELF or Mach-O file"), 0o644))

	_, err := LoadLibrary(path)
	var le *ModuleLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.Path)
	assert.Empty(t, le.Symbol)
}

func TestLoadLibraryMissingSymbol(t *testing.T) {
	if testLibErr != nil {
		t.Skipf("reference module unavailable: %v", testLibErr)
	}
	syms := DefaultSymbols()
	syms.UseUDF = "use_udf_v2"

	_, err := LoadLibrary(testLibPath, WithSymbols(syms))
	var le *ModuleLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, testLibPath, le.Path)
	assert.Equal(t, "use_udf_v2", le.Symbol)
	assert.Contains(t, err.Error(), "use_udf_v2")
}

func TestLoadLibraryMissingSymbolClosesHandle(t *testing.T) {
	if testLibErr != nil {
		t.Skipf("reference module unavailable: %v", testLibErr)
	}
	var closed []uintptr
	release := releaseLibrary
	releaseLibrary = func(handle uintptr) error {
		closed = append(closed, handle)
		return release(handle)
	}
	t.Cleanup(func() { releaseLibrary = release })

	syms := DefaultSymbols()
	syms.PrintArray = "printArray_v2"
	for i := 0; i < 3; i++ {
		_, err := LoadLibrary(testLibPath, WithSymbols(syms))
		var le *ModuleLoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "printArray_v2", le.Symbol)
	}
	require.Len(t, closed, 3)
	for _, h := range closed {
		assert.NotZero(t, h)
	}

	// A good load afterwards still works and keeps its handle open.
	lib := loadTestLibrary(t)
	assert.Len(t, closed, 3)
	assert.Equal(t, int32(7), lib.InspectOpaqueRecord(lib.CreateOpaqueRecord(7)))
}

func TestOpaqueRecordRoundTrip(t *testing.T) {
	lib := loadTestLibrary(t)

	seeds := []int32{math.MinInt32, -1, 0, 1, math.MaxInt32}
	for s := int32(2); s < 200; s++ {
		seeds = append(seeds, s)
	}
	for _, seed := range seeds {
		h := lib.CreateOpaqueRecord(seed)
		require.False(t, h.IsNil())
		assert.Equal(t, seed, lib.InspectOpaqueRecord(h))
		assert.Equal(t, seed, lib.InspectOpaqueRecord(h), "inspect must not change the record")
		require.NoError(t, lib.ReleaseOpaqueRecord(h))
	}
}

func TestOpaqueRecordsAreIndependent(t *testing.T) {
	lib := loadTestLibrary(t)

	handles := make([]Handle, 16)
	for i := range handles {
		handles[i] = lib.CreateOpaqueRecord(int32(i * 7))
	}
	for i, h := range handles {
		assert.Equal(t, int32(i*7), lib.InspectOpaqueRecord(h))
	}
	for _, h := range handles {
		require.NoError(t, lib.ReleaseOpaqueRecord(h))
	}
}

func TestReleaseOpaqueRecordNotExported(t *testing.T) {
	syms := DefaultSymbols()
	syms.FreeDerivedType = "no_such_free"
	lib := loadTestLibrary(t, WithSymbols(syms))

	h := lib.CreateOpaqueRecord(5)
	assert.Equal(t, int32(5), lib.InspectOpaqueRecord(h))
	assert.True(t, errors.Is(lib.ReleaseOpaqueRecord(h), ErrNotExported))
}

func TestBuildMirroredRecord(t *testing.T) {
	lib := loadTestLibrary(t)

	r := lib.BuildMirroredRecord(1.25, 5.0, 1337)
	assert.Equal(t, 1.25, r.Buzz)
	assert.Equal(t, 5.0, r.Broken)
	assert.Equal(t, int32(1337), r.HowMany)
	assert.Equal(t, [8]float64{11, 12, 13, 14, 21, 22, 23, 24}, r.Data)
	assert.Equal(t, [][]float64{{11, 21}, {12, 22}, {13, 23}, {14, 24}}, r.Matrix().RowMajor())
}

func TestMutateMirroredRecord(t *testing.T) {
	lib := loadTestLibrary(t)

	r := lib.BuildMirroredRecord(1.25, 5.0, 1337)
	m := r.Matrix()

	lib.MutateMirroredRecord(r)

	assert.Equal(t, 2.5, r.Buzz)
	assert.Equal(t, 6.0, r.Broken)
	assert.Equal(t, int32(1338), r.HowMany)
	// The view taken before the call sees the mutation.
	assert.Equal(t, [][]float64{{22, 42}, {24, 44}, {26, 46}, {28, 48}}, m.RowMajor())

	lib.MutateMirroredRecord(r)
	assert.Equal(t, 5.0, r.Buzz)
	assert.Equal(t, 7.0, r.Broken)
	assert.Equal(t, int32(1339), r.HowMany)
	assert.Equal(t, 96.0, m.At(3, 1))
}

func TestMutateCallerInitializedRecord(t *testing.T) {
	lib := loadTestLibrary(t)

	r := &Record{Buzz: -1, Broken: 0.5, HowMany: -3}
	r.Matrix().Set(1, 1, 3)

	lib.MutateMirroredRecord(r)
	assert.Equal(t, -2.0, r.Buzz)
	assert.Equal(t, 1.5, r.Broken)
	assert.Equal(t, int32(-2), r.HowMany)
	assert.Equal(t, 6.0, r.Matrix().At(1, 1))
	assert.Equal(t, 0.0, r.Matrix().At(0, 0))
}

func TestPrintNativeArrayLeavesNeighboursUntouched(t *testing.T) {
	lib := loadTestLibrary(t)

	const n = 10
	sentinel := math.Float64frombits(0x7ff8dead0000beef)
	buf := make([]float64, n+2)
	for i := range buf {
		buf[i] = float64(i) / 4
	}
	buf[n], buf[n+1] = sentinel, sentinel
	before := append([]float64(nil), buf[:n]...)

	lib.PrintNativeArray(NewArray(buf[:n]))

	assert.Equal(t, before, buf[:n], "array must be read-only to the module")
	assert.Equal(t, math.Float64bits(sentinel), math.Float64bits(buf[n]))
	assert.Equal(t, math.Float64bits(sentinel), math.Float64bits(buf[n+1]))
}

func TestPrintNativeArrayGuarded(t *testing.T) {
	lib := loadTestLibrary(t)

	// A full page plus a few elements, so the read spans a page boundary and
	// ends flush against the guard page.
	n := os.Getpagesize()/8 + 3
	region, values, err := GuardedFloat64s(n)
	require.NoError(t, err)
	defer region.Close()
	for i := range values {
		values[i] = float64(i)
	}

	lib.PrintNativeArray(NewArray(values))
	lib.PrintNativeArray(NewArray(values[:1]))
	lib.PrintNativeArray(NewArray(nil))
}

func TestPrintNativeArrayReadsExactlyLength(t *testing.T) {
	if testLibErr != nil {
		t.Skipf("reference module unavailable: %v", testLibErr)
	}
	values := []float64{0.5, 1.25, -3, 0.0004, 12345.6789}
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	out := runHelperProcess(t, "print-array", "NATIVEBIND_TEST_VALUES="+strings.Join(fields, " "))
	assert.Equal(t, "[0.500 1.250 -3.000 0.000 12345.679]\n", out)
}
