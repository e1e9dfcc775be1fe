//go:build !(darwin || freebsd || linux)

package nativebind

func openLibrary(path string) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}

func closeLibrary(handle uintptr) error {
	return ErrUnsupportedPlatform
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}

func registerFunc(fptr any, addr uintptr) {}
