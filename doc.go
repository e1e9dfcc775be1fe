// Package nativebind binds a native shared module from Go without cgo and
// demonstrates the mechanics that matter at the boundary: layout-exact
// records, opaque handles, array hand-off, and independent parallel calls.
//
// # Loading
//
// LoadLibrary opens the module with dlopen (via purego) and binds its entry
// points. A missing file, a file that is not a loadable module for this
// platform, or a missing required symbol yields a *ModuleLoadError carrying the
// path, the symbol and the loader diagnostic:
//
//	lib, err := nativebind.LoadLibrary("lib/libexample.so")
//	if err != nil {
//	    var le *nativebind.ModuleLoadError
//	    errors.As(err, &le)
//	}
//
// A module that fails symbol resolution is closed again; one that loads is
// never unloaded.
//
// # Records
//
// Record mirrors the module's aggregate field for field, including the padding
// after the int. The layout is asserted at compile time. The embedded 4x2
// matrix is stored column-major; Record.Matrix returns a view that indexes it
// as [row][col] without copying:
//
//	r := lib.BuildMirroredRecord(1.25, 5.0, 1337)
//	lib.MutateMirroredRecord(r)
//	v := r.Matrix().At(3, 1)
//
// # Opaque handles
//
// Handle wraps an address owned by the module. It cannot be dereferenced from
// Go and is only useful when passed back:
//
//	h := lib.CreateOpaqueRecord(42)
//	n := lib.InspectOpaqueRecord(h) // 42
//
// # Arrays
//
// Array pairs a slice's base address with its length. Region and
// GuardedFloat64s place a buffer directly in front of an inaccessible page, so
// a module that reads past the length it was given faults immediately:
//
//	region, values, _ := nativebind.GuardedFloat64s(10)
//	defer region.Close()
//	lib.PrintNativeArray(nativebind.NewArray(values))
//
// # Worker pool
//
// Pool runs one round trip per seed on a fixed number of workers, either child
// processes (ModeProcess) or goroutines (ModeGoroutine). Child processes are
// re-executions of the current binary, so programs using ModeProcess start
// with:
//
//	if nativebind.IsWorkerProcess() {
//	    os.Exit(nativebind.WorkerMain())
//	}
//
// Jobs and results travel between parent and children as length-prefixed
// MessagePack frames over inherited pipes.
//
// # Failure model
//
// Only load failures are detected. The module's entry points have no status
// channel, so a stale handle or an out-of-bounds read is undefined behaviour in
// native code and usually ends the process. In ModeProcess such a crash takes
// down one child and surfaces as a *WorkerError wrapping ErrWorkerExited.
// Jobs the dead child never started go to the surviving children. When the
// context passed to Pool.Run ends, finished results are kept and every other
// slot carries the context's error.
//
// # Platform support
//
// Linux, macOS and FreeBSD. Elsewhere LoadLibrary and NewRegion fail with
// ErrUnsupportedPlatform.
package nativebind
