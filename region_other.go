//go:build !(darwin || freebsd || linux || netbsd || openbsd)

package nativebind

import (
	"fmt"
	"unsafe"
)

// mapping is unavailable on this platform; mapGuarded always fails.
type mapping struct{}

func (m *mapping) getSize() int {
	return 0
}

func (m *mapping) getPtr() unsafe.Pointer {
	return nil
}

func mapGuarded(size int) (*mapping, error) {
	return nil, fmt.Errorf("nativebind: guarded region: %w", ErrUnsupportedPlatform)
}

func (m *mapping) close() error {
	return nil
}
