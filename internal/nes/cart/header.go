package cart

import (
	"io"

	"github.com/local/nesgo/internal/nes/nerr"
)

// Mirror packs one mirroring mode as eight nibbles, one per 1 KiB
// nametable-window quadrant, naming which physical page backs it.
// This mirrors the seven modes of the reference implementation,
// including four-screen variants with up to 16 KiB of extra CIRAM,
// rather than a closed five-value enum.
type Mirror uint32

const (
	MirrorHorizontal Mirror = 0x00110011
	MirrorVertical   Mirror = 0x01010101
	MirrorSingle0    Mirror = 0x00000000
	MirrorSingle1    Mirror = 0x11111111
	MirrorFour       Mirror = 0x01230123
	MirrorFour8      Mirror = 0x01234567
	MirrorFour16     Mirror = 0x89ABCDEF
)

// Desc is the cart-load descriptor, parsed from an iNES/NES 2.0
// header plus whatever save-RAM sizing information is available.
// Fields beyond the archaic iNES set (Submapper, the *Size structs,
// UseRAMSizes) come from the NES 2.0 extension and are filled with
// conservative defaults when parsing an older header.
type Desc struct {
	Mapper      uint16
	Submapper   uint8
	PRGROMSize  int
	CHRROMSize  int
	Mirror      Mirror
	Battery     bool
	UseRAMSizes bool
	PRGSize     struct{ WRAM, SRAM uint32 }
	CHRSize     struct{ WRAM, SRAM uint32 }
}

const (
	defaultWRAM = 8 * 1024
)

// ParseHeader reads and validates a 16-byte iNES/NES 2.0 header from r,
// consuming (and discarding) any trainer, and returns the descriptor
// plus the raw PRG-ROM and CHR-ROM bytes that follow it.
func ParseHeader(r io.Reader) (*Desc, []byte, []byte, error) {
	var h [16]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, nil, nil, nerr.ErrInvalidROM
	}

	if string(h[0:4]) == "UNIF" {
		return nil, nil, nil, nerr.ErrUnsupportedFormat
	}
	if string(h[0:4]) != "NES\x1A" {
		return nil, nil, nil, nerr.ErrInvalidROM
	}
	if h[4] == 0 {
		return nil, nil, nil, nerr.ErrInvalidROM
	}

	desc := &Desc{
		PRGROMSize: int(h[4]) * 16 * 1024,
		CHRROMSize: int(h[5]) * 8 * 1024,
	}

	flags6 := h[6]
	flags7 := h[7]

	isNES2 := (flags7&0x0C)>>2 == 2

	lowMapper := uint16(flags6>>4) | uint16(flags7&0xF0)
	desc.Mapper = lowMapper
	desc.Battery = flags6&0x02 != 0

	if flags6&0x08 != 0 {
		desc.Mirror = MirrorFour
	} else if flags6&0x01 != 0 {
		desc.Mirror = MirrorVertical
	} else {
		desc.Mirror = MirrorHorizontal
	}

	if isNES2 {
		desc.Mapper |= uint16(h[8]&0x0F) << 8
		desc.Submapper = h[8] >> 4

		prgMSB := h[9] & 0x0F
		chrMSB := h[9] >> 4
		if prgMSB == 0x0F {
			// exponent-multiplier form, rare; treat as given size * 1 (no ROM uses this in practice)
		} else {
			desc.PRGROMSize = (int(prgMSB)<<8 | int(h[4])) * 16 * 1024
		}
		if chrMSB != 0x0F {
			desc.CHRROMSize = (int(chrMSB)<<8 | int(h[5])) * 8 * 1024
		}

		desc.UseRAMSizes = true
		if shift := h[10] & 0x0F; shift != 0 {
			desc.PRGSize.WRAM = 64 << shift
		}
		if shift := h[10] >> 4; shift != 0 {
			desc.PRGSize.SRAM = 64 << shift
		}
		if shift := h[11] & 0x0F; shift != 0 {
			desc.CHRSize.WRAM = 64 << shift
		}
		if shift := h[11] >> 4; shift != 0 {
			desc.CHRSize.SRAM = 64 << shift
		}
	} else {
		if desc.Battery {
			desc.PRGSize.SRAM = defaultWRAM
		} else {
			desc.PRGSize.WRAM = defaultWRAM
		}
	}

	if flags6&0x04 != 0 {
		var trainer [512]byte
		if _, err := io.ReadFull(r, trainer[:]); err != nil {
			return nil, nil, nil, nerr.ErrInvalidROM
		}
	}

	prg := make([]byte, desc.PRGROMSize)
	if _, err := io.ReadFull(r, prg); err != nil {
		return nil, nil, nil, nerr.ErrSizeMismatch
	}

	var chr []byte
	if desc.CHRROMSize > 0 {
		chr = make([]byte, desc.CHRROMSize)
		if _, err := io.ReadFull(r, chr); err != nil {
			return nil, nil, nil, nerr.ErrSizeMismatch
		}
	}

	return desc, prg, chr, nil
}
