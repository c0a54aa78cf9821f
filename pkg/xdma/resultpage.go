package xdma

import (
	"bytes"
	"fmt"
	"strings"
)

// ResultPageSize is the fixed size of the page the accelerator publishes its
// result in.
const ResultPageSize = PageSize

// PayloadMode decides where a result payload ends.
type PayloadMode int

const (
	// PayloadWholePage treats every byte after the newline, up to the end of
	// the read region, as payload. Binary safe.
	PayloadWholePage PayloadMode = iota
	// PayloadNULTerminated stops the payload at the first NUL byte, for
	// producers that publish C strings.
	PayloadNULTerminated
)

func (m PayloadMode) String() string {
	switch m {
	case PayloadWholePage:
		return "page"
	case PayloadNULTerminated:
		return "nul"
	default:
		return fmt.Sprintf("PayloadMode(%d)", int(m))
	}
}

// ParsePayloadMode maps the config spelling onto a PayloadMode.
func ParsePayloadMode(s string) (PayloadMode, error) {
	switch strings.ToLower(s) {
	case "", "page":
		return PayloadWholePage, nil
	case "nul":
		return PayloadNULTerminated, nil
	default:
		return 0, fmt.Errorf("unknown payload mode %q (want page or nul)", s)
	}
}

// SplitResultPage separates a result page into its destination path and
// payload. The newline scan never looks past len(page).
func SplitResultPage(page []byte, mode PayloadMode) (string, []byte, error) {
	nl := bytes.IndexByte(page, '\n')
	if nl < 0 {
		return "", nil, fmt.Errorf("%w: no newline in %d bytes", ErrMalformedResult, len(page))
	}
	if nl == 0 {
		return "", nil, fmt.Errorf("%w: empty destination path", ErrMalformedResult)
	}

	path := page[:nl]
	for i, c := range path {
		if c < 0x20 || c == 0x7F {
			return "", nil, fmt.Errorf("%w: non-printable byte 0x%02X at offset %d of path", ErrMalformedResult, c, i)
		}
	}

	payload := page[nl+1:]
	if mode == PayloadNULTerminated {
		if end := bytes.IndexByte(payload, 0); end >= 0 {
			payload = payload[:end]
		}
	}
	return string(path), payload, nil
}

// EncodeResultPage lays out a page the way the accelerator-side producer does:
// path, a newline, the payload, zero padding to ResultPageSize.
func EncodeResultPage(path string, payload []byte) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty destination path", ErrMalformedResult)
	}
	if strings.ContainsAny(path, "\n\x00") {
		return nil, fmt.Errorf("%w: path %q contains a newline or NUL", ErrMalformedResult, path)
	}
	if need := len(path) + 1 + len(payload); need > ResultPageSize {
		return nil, fmt.Errorf("%w: %d bytes do not fit in a %d-byte page", ErrMalformedResult, need, ResultPageSize)
	}

	page := make([]byte, ResultPageSize)
	n := copy(page, path)
	page[n] = '\n'
	copy(page[n+1:], payload)
	return page, nil
}
