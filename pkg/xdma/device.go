package xdma

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

const (
	// Default character devices created by the Xilinx XDMA driver for the
	// first card.
	DefaultH2CPath = "/dev/xdma/card0/h2c0"
	DefaultC2HPath = "/dev/xdma/card0/c2h0"
)

// DeviceOpener opens the XDMA character devices. Any seekable file works in
// place of a device node, which is how tests and dry runs back the card with
// an ordinary sparse file.
type DeviceOpener struct {
	H2C string
	C2H string
}

// NewDeviceOpener returns an opener for the given channel paths, falling back
// to the driver defaults for empty ones.
func NewDeviceOpener(h2c, c2h string) DeviceOpener {
	if h2c == "" {
		h2c = DefaultH2CPath
	}
	if c2h == "" {
		c2h = DefaultC2HPath
	}
	return DeviceOpener{H2C: h2c, C2H: c2h}
}

// Open opens h2c read-write, or c2h read-write and non-blocking.
func (o DeviceOpener) Open(dir Direction) (Endpoint, error) {
	var (
		path string
		flag int
	)
	switch dir {
	case ToCard:
		path, flag = o.H2C, os.O_RDWR
	case FromCard:
		path, flag = o.C2H, os.O_RDWR|unix.O_NONBLOCK
	default:
		return nil, fmt.Errorf("%w: unknown direction %s", ErrDeviceOpen, dir)
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceOpen, path, err)
	}

	return &deviceEndpoint{f: f, dir: dir, path: path}, nil
}

type deviceEndpoint struct {
	f    *os.File
	dir  Direction
	path string
}

func (e *deviceEndpoint) Seek(addr uint64) error {
	if addr > math.MaxInt64 {
		return fmt.Errorf("%w: address 0x%X exceeds the file offset range", ErrSeek, addr)
	}
	off, err := e.f.Seek(int64(addr), io.SeekStart)
	if err != nil {
		return fmt.Errorf("%w: %s to 0x%X: %w", ErrSeek, e.path, addr, err)
	}
	if uint64(off) != addr {
		return fmt.Errorf("%w: %s landed at 0x%X, want 0x%X", ErrSeek, e.path, off, addr)
	}
	return nil
}

func (e *deviceEndpoint) Read(p []byte) (int, error) {
	return e.f.Read(p)
}

func (e *deviceEndpoint) Write(p []byte) (int, error) {
	return e.f.Write(p)
}

func (e *deviceEndpoint) Close() error {
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("xdma: close %s: %w", e.path, err)
	}
	return nil
}

// Flags reports the file status flags of the open descriptor.
func (e *deviceEndpoint) Flags() (int, error) {
	rc, err := e.f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var flags int
	var ferr error
	if err := rc.Control(func(fd uintptr) {
		flags, ferr = unix.FcntlInt(fd, unix.F_GETFL, 0)
	}); err != nil {
		return 0, err
	}
	return flags, ferr
}
