//go:build darwin || freebsd || linux

package nativebind

import "github.com/ebitengine/purego"

// openLibrary loads a shared object with all symbols resolved up front.
func openLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

// closeLibrary drops the reference taken by openLibrary.
func closeLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}

// lookupSymbol returns the address of name in the loaded library.
func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

// registerFunc binds the Go function variable fptr points at to addr.
func registerFunc(fptr any, addr uintptr) {
	purego.RegisterFunc(fptr, addr)
}
