package rocket

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/OpenTraceLab/rocketdma/internal/logger"
	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

// Default card addresses of the Rocket FPGA design.
const (
	DefaultProgramBase uint64 = 0x80000000
	DefaultResetBase   uint64 = 0x800000000
	DefaultResultBase  uint64 = 0xD0000000
)

// ResetTrigger is the byte written to the reset region to restart the core.
const ResetTrigger byte = 0x01

// AddressMap holds the three card regions the operations target. It is
// populated once at start-up and never mutated afterwards.
type AddressMap struct {
	ProgramBase uint64
	ResetBase   uint64
	ResultBase  uint64
}

// DefaultAddressMap matches the stock bitstream.
var DefaultAddressMap = AddressMap{
	ProgramBase: DefaultProgramBase,
	ResetBase:   DefaultResetBase,
	ResultBase:  DefaultResultBase,
}

// Transferer runs one DMA transfer. *xdma.Engine satisfies it.
type Transferer interface {
	Transfer(req xdma.Request) (xdma.Outcome, error)
}

// Rocket runs the named workflows against a card.
type Rocket struct {
	engine Transferer
	addrs  AddressMap
}

// New wires the operations to a transfer engine and an address map.
func New(engine Transferer, addrs AddressMap) *Rocket {
	return &Rocket{engine: engine, addrs: addrs}
}

// Addresses returns the address map in use.
func (r *Rocket) Addresses() AddressMap {
	return r.addrs
}

// Load copies a program image to program memory and resets the core. The
// reset only runs when the image transfer succeeded.
func (r *Rocket) Load(path string) ([]xdma.Outcome, error) {
	size, err := imageSize(path)
	if err != nil {
		return nil, err
	}

	logger.Info("Loading %s (%s) into Rocket memory @ 0x%X", path, humanize.IBytes(uint64(size)), r.addrs.ProgramBase)
	out, err := r.engine.Transfer(xdma.Request{
		Direction: xdma.ToCard,
		Address:   r.addrs.ProgramBase,
		Size:      int(size),
		Path:      path,
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	logger.Info("Finished loading %s into Rocket memory", path)

	reset, err := r.Reset()
	if err != nil {
		return []xdma.Outcome{out}, err
	}
	return []xdma.Outcome{out, reset}, nil
}

// Reset writes the one-byte trigger to the reset region.
func (r *Rocket) Reset() (xdma.Outcome, error) {
	logger.Info("Resetting Rocket")
	out, err := r.engine.Transfer(xdma.Request{
		Direction: xdma.ToCard,
		Address:   r.addrs.ResetBase,
		Size:      1,
		Data:      []byte{ResetTrigger},
	})
	if err != nil {
		return xdma.Outcome{}, fmt.Errorf("reset: %w", err)
	}
	return out, nil
}

// ReadResult reads the result page. With an empty path the page itself names
// the destination file.
func (r *Rocket) ReadResult(path string) (xdma.Outcome, error) {
	if path == "" {
		logger.Info("Reading result from Rocket memory into the file it names")
	} else {
		logger.Info("Reading result from Rocket memory into %s", path)
	}

	out, err := r.engine.Transfer(xdma.Request{
		Direction: xdma.FromCard,
		Address:   r.addrs.ResultBase,
		Size:      xdma.ResultPageSize,
		Path:      path,
	})
	if err != nil {
		return xdma.Outcome{}, fmt.Errorf("read result: %w", err)
	}
	logger.Info("Finished reading result into %s (%s)", out.Destination, humanize.IBytes(uint64(out.PayloadBytes)))
	return out, nil
}

// InitResultPage zeroes the result page so a stale result is never mistaken
// for a fresh one.
func (r *Rocket) InitResultPage() (xdma.Outcome, error) {
	logger.Info("Initializing result page @ 0x%X", r.addrs.ResultBase)
	out, err := r.engine.Transfer(xdma.Request{
		Direction: xdma.ToCard,
		Address:   r.addrs.ResultBase,
		Size:      xdma.ResultPageSize,
		Data:      make([]byte, xdma.ResultPageSize),
	})
	if err != nil {
		return xdma.Outcome{}, fmt.Errorf("init result page: %w", err)
	}
	return out, nil
}

// Boot clears the result page, then loads and resets.
func (r *Rocket) Boot(path string) ([]xdma.Outcome, error) {
	cleared, err := r.InitResultPage()
	if err != nil {
		return nil, err
	}
	outs, err := r.Load(path)
	return append([]xdma.Outcome{cleared}, outs...), err
}

// Reload restarts a running core. Given an image it reloads it first (Load
// resets on its own); otherwise it only pulses reset.
func (r *Rocket) Reload(path string) ([]xdma.Outcome, error) {
	if path != "" {
		return r.Load(path)
	}
	out, err := r.Reset()
	if err != nil {
		return nil, err
	}
	return []xdma.Outcome{out}, nil
}

// Write copies a whole file to an arbitrary card address.
func (r *Rocket) Write(addr uint64, path string) (xdma.Outcome, error) {
	size, err := imageSize(path)
	if err != nil {
		return xdma.Outcome{}, err
	}

	logger.Info("Writing %s (%s) @ 0x%X", path, humanize.IBytes(uint64(size)), addr)
	out, err := r.engine.Transfer(xdma.Request{
		Direction: xdma.ToCard,
		Address:   addr,
		Size:      int(size),
		Path:      path,
	})
	if err != nil {
		return xdma.Outcome{}, fmt.Errorf("write %s: %w", path, err)
	}
	return out, nil
}

// Read copies size bytes from a card address. An empty path treats the
// region as a result page and extracts the file it names.
func (r *Rocket) Read(addr uint64, size int, path string) (xdma.Outcome, error) {
	logger.Info("Reading %s @ 0x%X", humanize.IBytes(uint64(max(size, 0))), addr)
	out, err := r.engine.Transfer(xdma.Request{
		Direction: xdma.FromCard,
		Address:   addr,
		Size:      size,
		Path:      path,
	})
	if err != nil {
		return xdma.Outcome{}, fmt.Errorf("read @ 0x%X: %w", addr, err)
	}
	return out, nil
}

func imageSize(path string) (int64, error) {
	if path == "" {
		return 0, fmt.Errorf("%w: no image file given", xdma.ErrInvalidRequest)
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", xdma.ErrFileNotFound, path)
		}
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", xdma.ErrInvalidRequest, path)
	}
	if st.Size() == 0 {
		return 0, fmt.Errorf("%w: %s is empty", xdma.ErrInvalidRequest, path)
	}
	return st.Size(), nil
}
