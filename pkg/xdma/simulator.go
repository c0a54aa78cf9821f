package xdma

import (
	"fmt"
	"io"
	"sort"
)

// TransferHook lets a SimCard observe or veto a completed seek+read/write pair.
// Returning an error fails the read or write that triggered it.
type TransferHook func(dir Direction, addr uint64, data []byte) error

// TransferOp captures the last data movement for inspection within tests.
type TransferOp struct {
	Direction Direction
	Address   uint64
	Data      []byte
}

// SimCard is an in-memory card address space useful for unit tests. Memory is
// sparse and reads of untouched addresses return zeros.
type SimCard struct {
	// FailOpen makes Open fail for the given directions.
	FailOpen map[Direction]bool
	// MaxAddress, when non-zero, is the highest address Seek accepts.
	MaxAddress uint64
	// WriteLimit, when non-zero, caps how many bytes one Write accepts.
	WriteLimit int
	// ReadLimit, when non-zero, caps how many bytes one Read returns.
	ReadLimit int

	OnTransfer TransferHook

	pages  map[uint64]*[PageSize]byte
	last   TransferOp
	ops    int
	opens  int
	closes int
}

// NewSimCard constructs an empty simulated card.
func NewSimCard() *SimCard {
	return &SimCard{pages: make(map[uint64]*[PageSize]byte)}
}

// Open returns an endpoint positioned at address zero.
func (s *SimCard) Open(dir Direction) (Endpoint, error) {
	if dir != ToCard && dir != FromCard {
		return nil, fmt.Errorf("%w: unknown direction %s", ErrDeviceOpen, dir)
	}
	if s.FailOpen[dir] {
		return nil, fmt.Errorf("%w: simulated %s channel unavailable", ErrDeviceOpen, dir)
	}
	s.opens++
	return &simEndpoint{card: s, dir: dir}, nil
}

// Poke stores data at addr without going through an endpoint.
func (s *SimCard) Poke(addr uint64, data []byte) {
	for i, b := range data {
		a := addr + uint64(i)
		page := s.page(a, true)
		page[a%PageSize] = b
	}
}

// Peek returns n bytes starting at addr.
func (s *SimCard) Peek(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		a := addr + uint64(i)
		if page := s.page(a, false); page != nil {
			out[i] = page[a%PageSize]
		}
	}
	return out
}

// LastTransfer returns a copy of the most recent read or write.
func (s *SimCard) LastTransfer() TransferOp {
	return TransferOp{
		Direction: s.last.Direction,
		Address:   s.last.Address,
		Data:      append([]byte(nil), s.last.Data...),
	}
}

// Transfers reports how many reads and writes the card has served.
func (s *SimCard) Transfers() int {
	return s.ops
}

// Opens and Closes report endpoint lifecycle counts.
func (s *SimCard) Opens() int  { return s.opens }
func (s *SimCard) Closes() int { return s.closes }

// TouchedPages lists the base addresses of every page holding written data.
func (s *SimCard) TouchedPages() []uint64 {
	out := make([]uint64, 0, len(s.pages))
	for base := range s.pages {
		out = append(out, base)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *SimCard) page(addr uint64, create bool) *[PageSize]byte {
	if s.pages == nil {
		s.pages = make(map[uint64]*[PageSize]byte)
	}
	base := addr &^ (PageSize - 1)
	page, ok := s.pages[base]
	if !ok && create {
		page = new([PageSize]byte)
		s.pages[base] = page
	}
	return page
}

func (s *SimCard) record(dir Direction, addr uint64, data []byte) error {
	s.ops++
	s.last = TransferOp{
		Direction: dir,
		Address:   addr,
		Data:      append([]byte(nil), data...),
	}
	if s.OnTransfer != nil {
		return s.OnTransfer(dir, addr, data)
	}
	return nil
}

type simEndpoint struct {
	card   *SimCard
	dir    Direction
	offset uint64
	closed bool
}

func (e *simEndpoint) Seek(addr uint64) error {
	if e.closed {
		return fmt.Errorf("%w: endpoint closed", ErrSeek)
	}
	if e.card.MaxAddress != 0 && addr > e.card.MaxAddress {
		return fmt.Errorf("%w: 0x%X beyond simulated card limit 0x%X", ErrSeek, addr, e.card.MaxAddress)
	}
	e.offset = addr
	return nil
}

func (e *simEndpoint) Read(p []byte) (int, error) {
	if e.closed {
		return 0, io.ErrClosedPipe
	}
	n := len(p)
	if e.card.ReadLimit > 0 && n > e.card.ReadLimit {
		n = e.card.ReadLimit
	}
	copy(p, e.card.Peek(e.offset, n))
	if err := e.card.record(e.dir, e.offset, p[:n]); err != nil {
		return 0, err
	}
	e.offset += uint64(n)
	return n, nil
}

func (e *simEndpoint) Write(p []byte) (int, error) {
	if e.closed {
		return 0, io.ErrClosedPipe
	}
	n := len(p)
	if e.card.WriteLimit > 0 && n > e.card.WriteLimit {
		n = e.card.WriteLimit
	}
	e.card.Poke(e.offset, p[:n])
	if err := e.card.record(e.dir, e.offset, p[:n]); err != nil {
		return 0, err
	}
	e.offset += uint64(n)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (e *simEndpoint) Close() error {
	if !e.closed {
		e.closed = true
		e.card.closes++
	}
	return nil
}
