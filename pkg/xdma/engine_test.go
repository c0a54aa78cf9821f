package xdma

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + 3)
	}
	return out
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"h2c file", Request{Direction: ToCard, Size: 1, Path: "x"}, true},
		{"h2c data", Request{Direction: ToCard, Size: 1, Data: []byte{1}}, true},
		{"c2h extract", Request{Direction: FromCard, Size: 1}, true},
		{"zero size", Request{Direction: ToCard, Size: 0, Path: "x"}, false},
		{"h2c no source", Request{Direction: ToCard, Size: 1}, false},
		{"h2c both sources", Request{Direction: ToCard, Size: 1, Path: "x", Data: []byte{1}}, false},
		{"c2h with data", Request{Direction: FromCard, Size: 1, Data: []byte{1}}, false},
		{"bad direction", Request{Direction: 9, Size: 1}, false},
	}
	for _, tt := range tests {
		err := tt.req.Validate()
		if tt.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: error = %v, want ErrInvalidRequest", tt.name, err)
		}
	}
}

func TestTransferToCardFromFile(t *testing.T) {
	data := pattern(5000)
	src := writeTemp(t, "image.bin", data)

	sim := NewSimCard()
	eng := NewEngine(sim)

	out, err := eng.Transfer(Request{Direction: ToCard, Address: 0x80000000, Size: len(data), Path: src})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if out.Bytes != len(data) || out.Address != 0x80000000 || out.Direction != ToCard {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if got := sim.Peek(0x80000000, len(data)); !bytes.Equal(got, data) {
		t.Fatalf("card contents differ from source")
	}
	if sim.Opens() != 1 || sim.Closes() != 1 {
		t.Fatalf("opens/closes = %d/%d, want 1/1", sim.Opens(), sim.Closes())
	}
}

func TestTransferToCardFromData(t *testing.T) {
	sim := NewSimCard()
	eng := NewEngine(sim)

	out, err := eng.Transfer(Request{Direction: ToCard, Address: 0x800000000, Size: 1, Data: []byte{0x01}})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if out.Bytes != 1 {
		t.Fatalf("Bytes = %d, want 1", out.Bytes)
	}
	last := sim.LastTransfer()
	if last.Address != 0x800000000 || !bytes.Equal(last.Data, []byte{0x01}) {
		t.Fatalf("unexpected last transfer: %+v", last)
	}
}

func TestTransferToCardShortSource(t *testing.T) {
	src := writeTemp(t, "short.bin", pattern(10))
	sim := NewSimCard()
	eng := NewEngine(sim)

	_, err := eng.Transfer(Request{Direction: ToCard, Address: 0, Size: 11, Path: src})
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("error = %v, want ErrShortRead", err)
	}
	var terr *TransferError
	if !errors.As(err, &terr) || terr.Op != "stage" {
		t.Fatalf("error = %#v, want TransferError from stage", err)
	}
	if sim.Opens() != 0 {
		t.Fatalf("endpoint opened despite staging failure")
	}

	if _, err := eng.Transfer(Request{Direction: ToCard, Size: 2, Data: []byte{1}}); !errors.Is(err, ErrShortRead) {
		t.Fatalf("short data error = %v, want ErrShortRead", err)
	}
}

func TestTransferToCardMissingSource(t *testing.T) {
	eng := NewEngine(NewSimCard())
	_, err := eng.Transfer(Request{Direction: ToCard, Size: 4, Path: filepath.Join(t.TempDir(), "nope.bin")})
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("error = %v, want ErrFileNotFound", err)
	}
}

func TestTransferToCardShortWrite(t *testing.T) {
	sim := NewSimCard()
	sim.WriteLimit = 100
	eng := NewEngine(sim)

	_, err := eng.Transfer(Request{Direction: ToCard, Size: 200, Data: pattern(200)})
	if !errors.Is(err, ErrShortWrite) {
		t.Fatalf("error = %v, want ErrShortWrite", err)
	}
	if sim.Closes() != sim.Opens() {
		t.Fatalf("endpoint leaked: opens=%d closes=%d", sim.Opens(), sim.Closes())
	}
}

func TestTransferOpenAndSeekFailures(t *testing.T) {
	sim := NewSimCard()
	sim.FailOpen = map[Direction]bool{ToCard: true}
	eng := NewEngine(sim)

	if _, err := eng.Transfer(Request{Direction: ToCard, Size: 1, Data: []byte{1}}); !errors.Is(err, ErrDeviceOpen) {
		t.Fatalf("open error = %v, want ErrDeviceOpen", err)
	}

	sim.FailOpen = nil
	sim.MaxAddress = 0xFFFF
	_, err := eng.Transfer(Request{Direction: FromCard, Address: 0x10000, Size: 16, Path: filepath.Join(t.TempDir(), "o")})
	if !errors.Is(err, ErrSeek) {
		t.Fatalf("seek error = %v, want ErrSeek", err)
	}
	if sim.Closes() != sim.Opens() {
		t.Fatalf("endpoint leaked after seek failure: opens=%d closes=%d", sim.Opens(), sim.Closes())
	}
}

func TestTransferFromCardToPath(t *testing.T) {
	data := pattern(300)
	sim := NewSimCard()
	sim.Poke(0xD0000000, data)
	eng := NewEngine(sim)

	dest := filepath.Join(t.TempDir(), "dump.bin")
	out, err := eng.Transfer(Request{Direction: FromCard, Address: 0xD0000000, Size: len(data), Path: dest})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if out.Destination != dest || out.Bytes != len(data) || out.PayloadBytes != len(data) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("destination differs from card contents")
	}
}

func TestTransferFromCardTruncatesDestination(t *testing.T) {
	dest := writeTemp(t, "old.bin", bytes.Repeat([]byte{0xEE}, 64))
	sim := NewSimCard()
	sim.Poke(0, []byte("new"))

	if _, err := NewEngine(sim).Transfer(Request{Direction: FromCard, Size: 3, Path: dest}); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "new" {
		t.Fatalf("destination = %q, want %q", got, "new")
	}
}

func TestTransferFromCardShortDeviceRead(t *testing.T) {
	sim := NewSimCard()
	sim.ReadLimit = 10
	sim.Poke(0, pattern(10))
	dest := filepath.Join(t.TempDir(), "part.bin")

	out, err := NewEngine(sim).Transfer(Request{Direction: FromCard, Size: 64, Path: dest})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if out.Bytes != 10 {
		t.Fatalf("Bytes = %d, want 10", out.Bytes)
	}
	got, _ := os.ReadFile(dest)
	if len(got) != 10 {
		t.Fatalf("destination has %d bytes, want 10", len(got))
	}
}

func TestTransferResultExtraction(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "result.txt")
	payload := []byte("answer=42\n")
	page, err := EncodeResultPage(target, payload)
	if err != nil {
		t.Fatalf("EncodeResultPage: %v", err)
	}

	sim := NewSimCard()
	sim.Poke(0xD0000000, page)

	tests := []struct {
		name string
		mode PayloadMode
		want int
	}{
		{"whole page", PayloadWholePage, ResultPageSize - len(target) - 1},
		{"nul terminated", PayloadNULTerminated, len(payload)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewEngine(sim, WithPayloadMode(tt.mode))
			out, err := eng.Transfer(Request{Direction: FromCard, Address: 0xD0000000, Size: ResultPageSize})
			if err != nil {
				t.Fatalf("Transfer returned error: %v", err)
			}
			if out.Destination != target {
				t.Fatalf("Destination = %q, want %q", out.Destination, target)
			}
			if out.Bytes != ResultPageSize || out.PayloadBytes != tt.want {
				t.Fatalf("Bytes/PayloadBytes = %d/%d, want %d/%d", out.Bytes, out.PayloadBytes, ResultPageSize, tt.want)
			}
			got, err := os.ReadFile(target)
			if err != nil {
				t.Fatalf("read extracted file: %v", err)
			}
			if len(got) != tt.want || !bytes.HasPrefix(got, payload) {
				t.Fatalf("extracted %d bytes with prefix %q", len(got), got[:min(len(got), len(payload))])
			}
		})
	}
}

func TestTransferResultExtractionMalformed(t *testing.T) {
	sim := NewSimCard()
	_, err := NewEngine(sim).Transfer(Request{Direction: FromCard, Address: 0xD0000000, Size: ResultPageSize})
	if !errors.Is(err, ErrMalformedResult) {
		t.Fatalf("error = %v, want ErrMalformedResult", err)
	}
	if sim.Closes() != sim.Opens() {
		t.Fatalf("endpoint leaked: opens=%d closes=%d", sim.Opens(), sim.Closes())
	}
}

func TestTransferAgainstCardFile(t *testing.T) {
	const base = 0x20000
	card := newCardFile(t, base+2*PageSize)
	eng := NewEngine(DeviceOpener{H2C: card, C2H: card})

	data := pattern(PageSize)
	src := writeTemp(t, "image.bin", data)
	if _, err := eng.Transfer(Request{Direction: ToCard, Address: base, Size: len(data), Path: src}); err != nil {
		t.Fatalf("h2c Transfer returned error: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "back.bin")
	if _, err := eng.Transfer(Request{Direction: FromCard, Address: base, Size: len(data), Path: dest}); err != nil {
		t.Fatalf("c2h Transfer returned error: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip through card file differs")
	}

	// Reading past the end of the backing file yields nothing.
	_, err := eng.Transfer(Request{Direction: FromCard, Address: base + 4*PageSize, Size: 16, Path: dest})
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("read past end error = %v, want ErrShortRead", err)
	}
}
