package xdma

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/OpenTraceLab/rocketdma/internal/logger"
)

// Engine turns transfer requests into seek+read/write calls on an endpoint.
// It performs one synchronous transfer at a time and is not safe for
// concurrent use.
type Engine struct {
	opener      Opener
	payloadMode PayloadMode
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithPayloadMode selects how result extraction sizes the payload.
func WithPayloadMode(mode PayloadMode) EngineOption {
	return func(e *Engine) {
		e.payloadMode = mode
	}
}

// NewEngine wires an engine to an endpoint opener.
func NewEngine(opener Opener, opts ...EngineOption) *Engine {
	e := &Engine{opener: opener}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PayloadMode reports the configured result payload mode.
func (e *Engine) PayloadMode() PayloadMode {
	return e.payloadMode
}

// Transfer runs one request end to end. The staging buffer and endpoint are
// released before it returns, whatever the outcome.
func (e *Engine) Transfer(req Request) (out Outcome, err error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	buf, err := AllocBuffer(req.Size)
	if err != nil {
		return Outcome{}, transferErr("alloc", req, err)
	}
	defer func() {
		if rerr := buf.Release(); rerr != nil && err == nil {
			err = transferErr("release", req, rerr)
		}
	}()

	logger.Debug("%s transfer of %s @ 0x%X", req.Direction, humanize.IBytes(uint64(req.Size)), req.Address)

	if req.Direction == ToCard {
		return e.toCard(req, buf)
	}
	return e.fromCard(req, buf)
}

func (e *Engine) toCard(req Request, buf *Buffer) (Outcome, error) {
	data := buf.Bytes()
	if err := stage(req, data); err != nil {
		return Outcome{}, transferErr("stage", req, err)
	}

	ep, err := e.openAt(req)
	if err != nil {
		return Outcome{}, err
	}
	defer ep.Close()

	n, err := ep.Write(data)
	if n < len(data) {
		cause := err
		if cause == nil {
			cause = io.ErrShortWrite
		}
		return Outcome{}, transferErr("write", req,
			fmt.Errorf("%w: card accepted %d of %d bytes: %w", ErrShortWrite, n, len(data), cause))
	}
	if err != nil {
		return Outcome{}, transferErr("write", req, fmt.Errorf("%w: %w", ErrShortWrite, err))
	}

	logger.Debug("wrote %s to card @ 0x%X", humanize.IBytes(uint64(n)), req.Address)
	return Outcome{
		Direction: ToCard,
		Address:   req.Address,
		Bytes:     n,
	}, nil
}

func (e *Engine) fromCard(req Request, buf *Buffer) (Outcome, error) {
	ep, err := e.openAt(req)
	if err != nil {
		return Outcome{}, err
	}
	defer ep.Close()

	data := buf.Bytes()
	n, err := ep.Read(data)
	if n <= 0 {
		cause := err
		if cause == nil {
			cause = io.ErrNoProgress
		}
		return Outcome{}, transferErr("read", req,
			fmt.Errorf("%w: no bytes from card: %w", ErrShortRead, cause))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return Outcome{}, transferErr("read", req, fmt.Errorf("%w: %w", ErrShortRead, err))
	}
	data = data[:n]
	logger.Debug("read %s from card @ 0x%X", humanize.IBytes(uint64(n)), req.Address)

	dest, payload := req.Path, data
	if dest == "" {
		dest, payload, err = SplitResultPage(data, e.payloadMode)
		if err != nil {
			return Outcome{}, transferErr("extract", req, err)
		}
		logger.Debug("result page names %q, %d payload bytes", dest, len(payload))
	}

	if err := writeDestination(dest, payload); err != nil {
		return Outcome{}, transferErr("store", req, err)
	}

	return Outcome{
		Direction:    FromCard,
		Address:      req.Address,
		Bytes:        n,
		Destination:  dest,
		PayloadBytes: len(payload),
	}, nil
}

func (e *Engine) openAt(req Request) (Endpoint, error) {
	ep, err := e.opener.Open(req.Direction)
	if err != nil {
		if !errors.Is(err, ErrDeviceOpen) {
			err = fmt.Errorf("%w: %w", ErrDeviceOpen, err)
		}
		return nil, transferErr("open", req, err)
	}
	if err := ep.Seek(req.Address); err != nil {
		ep.Close()
		if !errors.Is(err, ErrSeek) {
			err = fmt.Errorf("%w: %w", ErrSeek, err)
		}
		return nil, transferErr("seek", req, err)
	}
	return ep, nil
}

// stage fills dst with exactly len(dst) bytes from the request's source.
func stage(req Request, dst []byte) error {
	if req.Data != nil {
		if len(req.Data) < len(dst) {
			return fmt.Errorf("%w: have %d bytes of data, need %d", ErrShortRead, len(req.Data), len(dst))
		}
		copy(dst, req.Data)
		return nil
	}

	f, err := os.Open(req.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, req.Path)
		}
		return fmt.Errorf("open %s: %w", req.Path, err)
	}
	defer f.Close()

	n, err := io.ReadFull(f, dst)
	if err != nil {
		return fmt.Errorf("%w: %s gave %d of %d bytes: %w", ErrShortRead, req.Path, n, len(dst), err)
	}
	return nil
}

// writeDestination creates or truncates path and writes data synchronously.
func writeDestination(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|unix.O_SYNC, 0o666)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s: %w", ErrFileNotFound, path, err)
		}
		return fmt.Errorf("create %s: %w", path, err)
	}

	n, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || n < len(data) {
		if werr == nil {
			werr = io.ErrShortWrite
		}
		return fmt.Errorf("%w: %s took %d of %d bytes: %w", ErrShortWrite, path, n, len(data), werr)
	}
	if cerr != nil {
		return fmt.Errorf("close %s: %w", path, cerr)
	}
	return nil
}
