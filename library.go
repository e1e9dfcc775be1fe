package nativebind

import (
	"runtime"

	"go.uber.org/zap"
)

// Symbols names the entry points bound from the native module. The zero value
// of an optional field means the entry point is not looked up.
type Symbols struct {
	MakeDerivedType    string `yaml:"make_derived_type" validate:"required"`
	ExamineDerivedType string `yaml:"examine_derived_type" validate:"required"`
	MakeUDF            string `yaml:"make_udf" validate:"required"`
	UseUDF             string `yaml:"use_udf" validate:"required"`
	PrintArray         string `yaml:"print_array" validate:"required"`

	// FreeDerivedType is optional.
	FreeDerivedType string `yaml:"free_derived_type"`
}

// DefaultSymbols returns the entry point names exported by the reference
// module in native/.
func DefaultSymbols() Symbols {
	return Symbols{
		MakeDerivedType:    "makeDerivedType",
		ExamineDerivedType: "examineDerivedType",
		MakeUDF:            "make_udf",
		UseUDF:             "use_udf",
		PrintArray:         "printArray",
		FreeDerivedType:    "freeDerivedType",
	}
}

// LibraryOption configures LoadLibrary.
type LibraryOption func(*libraryConfig)

type libraryConfig struct {
	symbols Symbols
}

// WithSymbols overrides the entry point names.
func WithSymbols(s Symbols) LibraryOption {
	return func(c *libraryConfig) {
		c.symbols = s
	}
}

// Library is a loaded native module with its entry points bound to Go
// functions. Methods are thin: they do not retry, check status, or recover
// from faults raised inside native code. A Library is safe for concurrent use
// as long as the native module itself is.
type Library struct {
	path    string
	handle  uintptr
	symbols Symbols

	makeDerivedType    func(value *int32, handle *uintptr)
	examineDerivedType func(handle uintptr, value *int32)
	freeDerivedType    func(handle uintptr)
	makeUDF            func(buzz, broken *float64, howMany *int32, out *Record)
	useUDF             func(r *Record)
	printArray         func(n *int32, values *float64)
}

// releaseLibrary closes a handle whose symbols failed to resolve.
var releaseLibrary = closeLibrary

// LoadLibrary opens the native module at path and binds its entry points.
// Every required symbol is resolved before any is registered, so a
// ModuleLoadError leaves nothing half bound and the handle is closed again.
// A module that loads successfully stays mapped for the lifetime of the
// process.
func LoadLibrary(path string, opts ...LibraryOption) (*Library, error) {
	cfg := libraryConfig{symbols: DefaultSymbols()}
	for _, opt := range opts {
		opt(&cfg)
	}

	handle, err := openLibrary(path)
	if err != nil {
		return nil, &ModuleLoadError{Path: path, Err: err}
	}

	lib := &Library{path: path, handle: handle, symbols: cfg.symbols}

	required := []struct {
		name string
		fptr any
	}{
		{cfg.symbols.MakeDerivedType, &lib.makeDerivedType},
		{cfg.symbols.ExamineDerivedType, &lib.examineDerivedType},
		{cfg.symbols.MakeUDF, &lib.makeUDF},
		{cfg.symbols.UseUDF, &lib.useUDF},
		{cfg.symbols.PrintArray, &lib.printArray},
	}
	addrs := make([]uintptr, len(required))
	for i, r := range required {
		addr, err := lookupSymbol(handle, r.name)
		if err != nil {
			if cerr := releaseLibrary(handle); cerr != nil {
				Logger().Warn("close after failed load", zap.String("path", path), zap.Error(cerr))
			}
			return nil, &ModuleLoadError{Path: path, Symbol: r.name, Err: err}
		}
		addrs[i] = addr
	}
	for i, r := range required {
		registerFunc(r.fptr, addrs[i])
	}

	if name := cfg.symbols.FreeDerivedType; name != "" {
		if addr, err := lookupSymbol(handle, name); err == nil {
			registerFunc(&lib.freeDerivedType, addr)
		} else {
			Logger().Debug("optional symbol not exported",
				zap.String("path", path), zap.String("symbol", name))
		}
	}

	Logger().Info("native module loaded", zap.String("path", path))
	return lib, nil
}

// Path returns the path the module was loaded from.
func (l *Library) Path() string {
	return l.path
}

// CreateOpaqueRecord asks the module to allocate a record holding seed and
// returns the handle it writes back. The handle stays valid until the process
// exits or ReleaseOpaqueRecord is called.
func (l *Library) CreateOpaqueRecord(seed int32) Handle {
	var addr uintptr
	l.makeDerivedType(&seed, &addr)
	return Handle{addr: addr}
}

// InspectOpaqueRecord returns the integer the module reports for h. A stale or
// foreign handle is undefined behaviour inside the module; it is not detected
// here.
func (l *Library) InspectOpaqueRecord(h Handle) int32 {
	var value int32
	l.examineDerivedType(h.addr, &value)
	return value
}

// ReleaseOpaqueRecord hands h back to the module for deallocation. It returns
// ErrNotExported if the module has no release entry point.
func (l *Library) ReleaseOpaqueRecord(h Handle) error {
	if l.freeDerivedType == nil {
		return ErrNotExported
	}
	l.freeDerivedType(h.addr)
	return nil
}

// BuildMirroredRecord lets the module populate a caller-owned Record from the
// three scalars. The Record is allocated here and filled in place.
func (l *Library) BuildMirroredRecord(buzz, broken float64, howMany int32) *Record {
	r := new(Record)
	l.makeUDF(&buzz, &broken, &howMany, r)
	runtime.KeepAlive(r)
	return r
}

// MutateMirroredRecord lets the module rewrite r in place.
func (l *Library) MutateMirroredRecord(r *Record) {
	l.useUDF(r)
	runtime.KeepAlive(r)
}

// PrintNativeArray passes a to the module's array consumer. The module reads
// exactly a.Len() elements and does not write to them.
func (l *Library) PrintNativeArray(a Array) {
	n := int32(a.Len())
	l.printArray(&n, a.base())
	runtime.KeepAlive(a.values)
}
