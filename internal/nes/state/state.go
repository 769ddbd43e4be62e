// Package state assembles the CPU, PPU, APU, bus, and cartridge
// component snapshots into one self-describing binary blob: a format
// version, then one length-prefixed block per component, so that a
// blob produced by one build can be safely rejected (rather than
// misread) by another whose component layouts have drifted.
package state

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/local/nesgo/internal/nes/apu"
	"github.com/local/nesgo/internal/nes/bus"
	"github.com/local/nesgo/internal/nes/cpu"
	"github.com/local/nesgo/internal/nes/nerr"
	"github.com/local/nesgo/internal/nes/ppu"
)

// formatVersion bumps whenever a block's internal shape changes in a
// way that isn't self-describing (a field added to a gob-encoded
// struct is fine; a change to this file's block framing is not).
const formatVersion = 1

// Snapshot is the full machine state at a point in time. Each
// component field is the struct (or, for the cart, raw blob) that
// component's own GetState/SetState already produces; this package's
// only job is bolting them together into one stable-offset blob.
type Snapshot struct {
	CPU  cpu.State
	PPU  ppu.State
	APU  apu.State
	Bus  bus.State
	Cart []byte
}

// Encode serializes a snapshot. Each component is gob-encoded (so
// adding a field to a component's State struct doesn't require
// touching this package) and wrapped in a 4-byte length prefix, the
// whole thing preceded by a format-version word.
func Encode(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(formatVersion)); err != nil {
		return nil, err
	}

	for _, component := range []any{s.CPU, s.PPU, s.APU, s.Bus} {
		block, err := gobEncode(component)
		if err != nil {
			return nil, err
		}
		if err := writeBlock(&buf, block); err != nil {
			return nil, err
		}
	}
	if err := writeBlock(&buf, s.Cart); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob into a fresh Snapshot. On any size mismatch,
// truncation, or version mismatch it returns nerr.ErrSizeMismatch and
// leaves the caller's existing state untouched — the caller is
// expected to keep running its current snapshot rather than apply a
// partially-decoded one.
func Decode(data []byte) (Snapshot, error) {
	r := bytes.NewReader(data)

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return Snapshot{}, nerr.ErrSizeMismatch
	}
	if version != formatVersion {
		return Snapshot{}, nerr.ErrSizeMismatch
	}

	var s Snapshot
	for _, target := range []any{&s.CPU, &s.PPU, &s.APU, &s.Bus} {
		block, err := readBlock(r)
		if err != nil {
			return Snapshot{}, nerr.ErrSizeMismatch
		}
		if err := gobDecode(block, target); err != nil {
			return Snapshot{}, nerr.ErrSizeMismatch
		}
	}
	cartBlock, err := readBlock(r)
	if err != nil {
		return Snapshot{}, nerr.ErrSizeMismatch
	}
	s.Cart = cartBlock

	if r.Len() != 0 {
		return Snapshot{}, nerr.ErrSizeMismatch
	}

	return s, nil
}

func writeBlock(buf *bytes.Buffer, block []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(block))); err != nil {
		return err
	}
	_, err := buf.Write(block)
	return err
}

func readBlock(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	block := make([]byte, n)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}
	return block, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
