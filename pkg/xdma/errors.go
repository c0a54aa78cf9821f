package xdma

import (
	"errors"
	"fmt"
)

// Error taxonomy for a single transfer. Transfer failures wrap one of these;
// branch with errors.Is.
var (
	ErrAllocation      = errors.New("xdma: aligned buffer allocation failed")
	ErrDeviceOpen      = errors.New("xdma: cannot open device endpoint")
	ErrSeek            = errors.New("xdma: seek rejected by endpoint")
	ErrShortRead       = errors.New("xdma: short read")
	ErrShortWrite      = errors.New("xdma: short write")
	ErrMalformedResult = errors.New("xdma: malformed result page")
	ErrFileNotFound    = errors.New("xdma: file not found")
	ErrInvalidRequest  = errors.New("xdma: invalid transfer request")
)

// TransferError records which step of a transfer failed and where on the card
// it was aimed.
type TransferError struct {
	Op        string
	Direction Direction
	Address   uint64
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s @ 0x%X: %v", e.Direction, e.Op, e.Address, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func transferErr(op string, req Request, err error) error {
	return &TransferError{
		Op:        op,
		Direction: req.Direction,
		Address:   req.Address,
		Err:       err,
	}
}
