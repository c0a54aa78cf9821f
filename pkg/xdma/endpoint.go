package xdma

import (
	"fmt"
	"io"
)

// Direction selects which streaming channel a transfer uses.
type Direction uint8

const (
	// ToCard moves bytes host -> card over the h2c channel.
	ToCard Direction = iota
	// FromCard moves bytes card -> host over the c2h channel.
	FromCard
)

func (d Direction) String() string {
	switch d {
	case ToCard:
		return "h2c"
	case FromCard:
		return "c2h"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Endpoint abstracts one open XDMA streaming channel. The file offset of the
// channel is the card address the next Read or Write targets.
type Endpoint interface {
	io.ReadWriteCloser
	// Seek positions the channel at a card address.
	Seek(addr uint64) error
}

// Opener produces endpoints for a direction. Each call returns a fresh
// endpoint that the caller must Close.
type Opener interface {
	Open(dir Direction) (Endpoint, error)
}

// Request describes one directional transfer.
type Request struct {
	Direction Direction
	Address   uint64
	Size      int

	// Path is the source file for ToCard or the destination file for
	// FromCard. An empty Path on FromCard selects result extraction.
	Path string

	// Data is an in-memory ToCard source used instead of Path.
	Data []byte
}

// Validate checks the shape of a request before any resource is acquired.
func (r Request) Validate() error {
	if r.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidRequest, r.Size)
	}

	switch r.Direction {
	case ToCard:
		if r.Path == "" && r.Data == nil {
			return fmt.Errorf("%w: h2c transfer needs a source file or data", ErrInvalidRequest)
		}
		if r.Path != "" && r.Data != nil {
			return fmt.Errorf("%w: h2c transfer has both a source file and data", ErrInvalidRequest)
		}
	case FromCard:
		if r.Data != nil {
			return fmt.Errorf("%w: c2h transfer cannot carry source data", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown direction %s", ErrInvalidRequest, r.Direction)
	}
	return nil
}

// Outcome reports what a transfer moved.
type Outcome struct {
	Direction Direction
	Address   uint64

	// Bytes is the number of bytes moved across the link.
	Bytes int

	// Destination is the file written on FromCard, either the requested path
	// or the one extracted from the result page.
	Destination string

	// PayloadBytes is the number of bytes written to Destination.
	PayloadBytes int
}
