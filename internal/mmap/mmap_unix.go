//go:build !windows

package mmap

import "golang.org/x/sys/unix"

// mapRO maps size bytes of the file read-only. Index loads jump between
// manifest offsets rather than streaming, so the mapping is advised for
// random access; the advice is best effort.
func mapRO(fd uintptr, size int) ([]byte, error) {
	data, err := unix.Mmap(int(fd), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, nil
}

func unmap(data []byte) error {
	return unix.Munmap(data)
}
