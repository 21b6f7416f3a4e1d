//go:build windows

package mmap

import (
	"syscall"
	"unsafe"
)

// mapRO maps size bytes of the file read-only. Windows has no madvise
// equivalent; the cache manager handles access patterns itself.
func mapRO(fd uintptr, size int) ([]byte, error) {
	h, err := syscall.CreateFileMapping(syscall.Handle(fd), nil, syscall.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	defer syscall.CloseHandle(h)

	addr, err := syscall.MapViewOfFile(h, syscall.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return syscall.UnmapViewOfFile(uintptr(unsafe.Pointer(&data[0])))
}
