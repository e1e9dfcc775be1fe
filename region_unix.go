//go:build darwin || freebsd || linux || netbsd || openbsd

package nativebind

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapping holds the whole mapping; usable is the prefix before the guard page.
type mapping struct {
	all    []byte
	usable []byte
}

func (m *mapping) getSize() int {
	return len(m.usable)
}

func (m *mapping) getPtr() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(m.usable))
}

func mapGuarded(size int) (*mapping, error) {
	page := unix.Getpagesize()
	usable := (size + page - 1) / page * page

	all, err := unix.Mmap(-1, 0, usable+page, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("nativebind: mmap %d bytes: %w", usable+page, err)
	}
	if err := unix.Mprotect(all[usable:], unix.PROT_NONE); err != nil {
		unix.Munmap(all)
		return nil, fmt.Errorf("nativebind: protect guard page: %w", err)
	}
	return &mapping{all: all, usable: all[:usable:usable]}, nil
}

func (m *mapping) close() error {
	return unix.Munmap(m.all)
}
