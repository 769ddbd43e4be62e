package state

import (
	"errors"
	"testing"

	"github.com/local/nesgo/internal/nes/apu"
	"github.com/local/nesgo/internal/nes/bus"
	"github.com/local/nesgo/internal/nes/cpu"
	"github.com/local/nesgo/internal/nes/nerr"
	"github.com/local/nesgo/internal/nes/ppu"
)

func sample() Snapshot {
	return Snapshot{
		CPU:  cpu.State{PC: 0xC000, SP: 0xFD, A: 0x12, X: 0x34, Y: 0x56, C: true, Z: false, N: true},
		PPU:  ppu.State{},
		APU:  apu.State{},
		Bus:  bus.State{},
		Cart: []byte{1, 2, 3, 4, 5},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := sample()
	blob, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.CPU != s.CPU {
		t.Fatalf("CPU mismatch: got %+v want %+v", got.CPU, s.CPU)
	}
	if string(got.Cart) != string(s.Cart) {
		t.Fatalf("Cart mismatch: got %v want %v", got.Cart, s.Cart)
	}
}

func TestDecode_RejectsVersionMismatch(t *testing.T) {
	blob, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Corrupt the leading format-version word.
	blob[0] ^= 0xFF

	if _, err := Decode(blob); !errors.Is(err, nerr.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch for corrupted version, got %v", err)
	}
}

func TestDecode_RejectsTruncatedBlob(t *testing.T) {
	blob, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	truncated := blob[:len(blob)-10]

	if _, err := Decode(truncated); !errors.Is(err, nerr.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch for truncated blob, got %v", err)
	}
}

func TestDecode_RejectsTrailingGarbage(t *testing.T) {
	blob, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	blob = append(blob, 0xFF)

	if _, err := Decode(blob); !errors.Is(err, nerr.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch for trailing garbage, got %v", err)
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, nerr.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch for empty input, got %v", err)
	}
}
