package xdma

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// PageSize is the alignment of every staging buffer and the size of the
	// result page.
	PageSize = 4096
)

// Buffer is a page-aligned staging region owned by exactly one transfer. The
// mapping is PageSize bytes longer than requested; the slack is never exposed.
type Buffer struct {
	mem  []byte
	size int
}

// AllocBuffer maps an anonymous region of size+PageSize bytes. Anonymous
// mappings start on a page boundary and are zero filled.
func AllocBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrAllocation, size)
	}

	mem, err := unix.Mmap(-1, 0, size+PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %w", ErrAllocation, size+PageSize, err)
	}

	if addr := uintptr(unsafe.Pointer(unsafe.SliceData(mem))); addr%PageSize != 0 {
		unix.Munmap(mem)
		return nil, fmt.Errorf("%w: region at 0x%X is not %d-byte aligned", ErrAllocation, addr, PageSize)
	}

	return &Buffer{mem: mem, size: size}, nil
}

// Bytes returns the addressable part of the buffer, exactly Size() bytes.
// It returns nil after Release.
func (b *Buffer) Bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem[:b.size:b.size]
}

// Size reports the requested transfer size.
func (b *Buffer) Size() int {
	return b.size
}

// Cap reports the size of the underlying mapping, including slack.
func (b *Buffer) Cap() int {
	return len(b.mem)
}

// Aligned reports whether the buffer starts on a PageSize boundary.
func (b *Buffer) Aligned() bool {
	if b.mem == nil {
		return false
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.mem)))%PageSize == 0
}

// Release unmaps the buffer. Calling it more than once is harmless.
func (b *Buffer) Release() error {
	if b.mem == nil {
		return nil
	}
	mem := b.mem
	b.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("xdma: munmap staging buffer: %w", err)
	}
	return nil
}
