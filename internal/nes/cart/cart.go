// Package cart implements cartridge/mapper loading: iNES/NES 2.0
// header parsing, the bank-window memory model shared by every
// mapper, and the mapper family implementations themselves.
package cart

import (
	"encoding/binary"

	"github.com/local/nesgo/internal/nes/nerr"
)

// logf is this package's share of the process-wide log callback
// (installed via nes.SetLogCallback); mappers use it for writes to
// registers they recognize the range of but not the meaning.
var logf = func(string, ...any) {}

// SetLogFunc installs the log sink. A nil fn restores the no-op default.
func SetLogFunc(fn func(format string, args ...any)) {
	if fn == nil {
		fn = func(string, ...any) {}
	}
	logf = fn
}

// Cartridge owns every byte a cart can back a bank-window slot with:
// PRG-ROM, PRG-RAM (WRAM + battery SRAM, not distinguished at the
// storage level — only in whether writes count as "dirty"), CHR-ROM,
// CHR-RAM, the console's CIRAM, and any cart-side EXRAM (MMC5).
// PRG and CHR each get a background-view and sprite-view arena so a
// mapper that banks sprite and background CHR independently (MMC5)
// has somewhere to put the split; mappers that don't just keep both
// views identical.
type Cartridge struct {
	Desc *Desc

	PRGROM []byte
	PRGRAM []byte // WRAM + SRAM, battery-backed iff Desc.Battery
	CHRROM []byte
	CHRRAM []byte
	CIRAM  []byte // 2 KiB, or more for four-screen carts
	EXRAM  []byte

	PRGBG, PRGSpr *Arena
	CHRBG, CHRSpr *Arena

	Mapper Mapper

	sramDirty int
}

// Create builds a Cartridge from a parsed header/ROM payload and any
// previously saved battery SRAM, and constructs its mapper. Returns
// nerr.ErrUnsupportedMapper if the header's mapper id has no
// registered implementation.
func Create(desc *Desc, prgROM, chrROM, sram []byte) (*Cartridge, error) {
	c := &Cartridge{
		Desc:   desc,
		PRGROM: prgROM,
		CHRROM: chrROM,
		CIRAM:  make([]byte, 2*1024),
	}

	wramSize := defaultWRAM
	if desc.UseRAMSizes {
		wramSize = int(desc.PRGSize.WRAM + desc.PRGSize.SRAM)
		if wramSize == 0 {
			wramSize = defaultWRAM
		}
	}
	c.PRGRAM = make([]byte, wramSize)
	if len(sram) > 0 && len(sram) <= len(c.PRGRAM) {
		copy(c.PRGRAM, sram)
	}

	if len(chrROM) == 0 {
		chrRAMSize := 8 * 1024
		if desc.UseRAMSizes && desc.CHRSize.WRAM+desc.CHRSize.SRAM > 0 {
			chrRAMSize = int(desc.CHRSize.WRAM + desc.CHRSize.SRAM)
		}
		c.CHRRAM = make([]byte, chrRAMSize)
	}

	if desc.Mirror == MirrorFour8 {
		c.CIRAM = make([]byte, 8*1024)
	} else if desc.Mirror == MirrorFour16 {
		c.CIRAM = make([]byte, 16*1024)
	}
	c.EXRAM = make([]byte, 1024)

	c.PRGBG = newArena(4)
	c.PRGSpr = newArena(4)
	c.CHRBG = newArena(1)
	c.CHRSpr = newArena(1)

	newMapper, ok := Lookup(desc.Mapper)
	if !ok {
		return nil, &nerr.MapperError{ID: desc.Mapper}
	}
	c.Mapper = newMapper(c)
	c.Reset()
	return c, nil
}

// RegionSize returns the byte length of one of the cart's backing
// regions, used by Arena.Map to compute wraparound for undersized ROMs.
func (c *Cartridge) RegionSize(r Region) int {
	switch r {
	case PRGROM:
		return len(c.PRGROM)
	case PRGRAM:
		return len(c.PRGRAM)
	case CHRROM:
		return len(c.CHRROM)
	case CHRRAM:
		return len(c.CHRRAM)
	case CIRAM:
		return len(c.CIRAM)
	case EXRAM:
		return len(c.EXRAM)
	default:
		return 0
	}
}

func (c *Cartridge) regionBytes(r Region) []byte {
	switch r {
	case PRGROM:
		return c.PRGROM
	case PRGRAM:
		return c.PRGRAM
	case CHRROM:
		return c.CHRROM
	case CHRRAM:
		return c.CHRRAM
	case CIRAM:
		return c.CIRAM
	case EXRAM:
		return c.EXRAM
	default:
		return nil
	}
}

// readArena performs the generic slot-lookup read used by every
// mapper's trivial window-backed reads.
func (c *Cartridge) readArena(a *Arena, addr uint16) (uint8, bool) {
	slot, off, ok := a.Resolve(addr)
	if !ok {
		return 0, false
	}
	bytes := c.regionBytes(slot.Region)
	if bytes == nil || off >= len(bytes) {
		return 0, false
	}
	return bytes[off], true
}

// writeArena performs the generic slot-lookup write, tracking
// battery-SRAM dirtiness when the region written is PRGRAM and the
// cart is battery-backed.
func (c *Cartridge) writeArena(a *Arena, addr uint16, v uint8) {
	slot, off, ok := a.Resolve(addr)
	if !ok || !slot.writable() {
		return
	}
	bytes := c.regionBytes(slot.Region)
	if bytes == nil || off >= len(bytes) {
		return
	}
	if slot.Region == PRGRAM && c.Desc.Battery && bytes[off] != v {
		c.sramDirty++
	}
	bytes[off] = v
}

// ReadPRG/WritePRG and ReadCHR/WriteCHR are the bus/PPU-facing entry
// points; they delegate entirely to the mapper so register writes
// (MMC1 shift chain, MMC3 bank-select, etc.) are seen before falling
// through to a window read.
func (c *Cartridge) ReadPRG(addr uint16) (uint8, bool) { return c.Mapper.PRGRead(c, addr) }
func (c *Cartridge) WritePRG(addr uint16, v uint8)     { c.Mapper.PRGWrite(c, addr, v) }
func (c *Cartridge) ReadCHR(addr uint16) uint8         { return c.Mapper.CHRRead(c, addr) }
func (c *Cartridge) WriteCHR(addr uint16, v uint8)     { c.Mapper.CHRWrite(c, addr, v) }

// A12Toggle, ScanlineHook, Step, and Block2007 forward the
// corresponding optional mapper hooks.
func (c *Cartridge) A12Toggle()                       { c.Mapper.A12Toggle(c) }
func (c *Cartridge) ScanlineHook()                     { c.Mapper.ScanlineHook(c) }
func (c *Cartridge) Step()                             { c.Mapper.Step(c) }
func (c *Cartridge) Block2007() bool                   { return c.Mapper.Block2007(c) }
func (c *Cartridge) IRQPending() bool                  { return c.Mapper.IRQPending() }
func (c *Cartridge) ExtAudioSample() float64           { return c.Mapper.ExtAudioSample() }

// SetSpriteSize forwards the PPU's sprite-height bit to mappers that
// care (MMC5); everything else ignores it.
func (c *Cartridge) SetSpriteSize(is8x16 bool) {
	if sp, ok := c.Mapper.(interface{ SetSpriteSize(bool) }); ok {
		sp.SetSpriteSize(is8x16)
	}
}
func (c *Cartridge) PPUWriteHook(addr uint16, v uint8) { c.Mapper.WriteHook(c, addr, v) }

// Reset reinitializes the mapper (which is expected to (re)populate
// the bank windows to their power-on mapping) and clears the CIRAM
// mapping to the header-declared static mirroring as a baseline that
// mapper-driven mirroring (MMC1, MMC3, ...) then overrides as needed.
func (c *Cartridge) Reset() {
	c.CHRBG.MapCIRAM(uint32(c.Desc.Mirror))
	c.CHRSpr.MapCIRAM(uint32(c.Desc.Mirror))
	// $6000-$7FFF (PRG-RAM/WRAM/battery-SRAM window) is wired here rather
	// than per-mapper: every mapper family except the handful with their
	// own expansion registers in that range (FME-7, MMC5) uses it the
	// same way, and those override it below via their own Reset.
	if len(c.PRGRAM) > 0 {
		c.PRGBG.Map(c.RegionSize, PRGRAM, 0x6000, 0, 8)
		c.PRGSpr.Map(c.RegionSize, PRGRAM, 0x6000, 0, 8)
	}
	c.Mapper.Reset(c)
}

// SRAMDirty returns the number of battery-SRAM bytes written since
// the last call, then resets the counter — matching the reference
// semantics of a dirty *count*, not a dirty bool.
func (c *Cartridge) SRAMDirty() int {
	n := c.sramDirty
	c.sramDirty = 0
	return n
}

// GetSRAM copies up to len(dst) bytes of battery-backed PRGRAM into dst.
func (c *Cartridge) GetSRAM(dst []byte) {
	copy(dst, c.PRGRAM)
}

// GetState serializes the cart's variable-size memory block (PRG-ROM
// is not included; it's supplied again at load time) plus mapper
// register state, in the order PRG-RAM, CHR-RAM, CIRAM, EXRAM,
// mapper-state.
func (c *Cartridge) GetState() []byte {
	buf := &stateWriter{}
	buf.writeBlock(c.PRGRAM)
	buf.writeBlock(c.CHRRAM)
	buf.writeBlock(c.CIRAM)
	buf.writeBlock(c.EXRAM)
	buf.writeBlock(c.Mapper.GetState())
	return buf.bytes
}

// SetState restores a blob produced by GetState. On any block-size
// mismatch it leaves the cart state unmodified and returns
// nerr.ErrSizeMismatch.
func (c *Cartridge) SetState(data []byte) error {
	r := &stateReader{data: data}
	prgram, ok := r.readBlock(len(c.PRGRAM))
	chrram, ok2 := r.readBlock(len(c.CHRRAM))
	ciram, ok3 := r.readBlock(len(c.CIRAM))
	exram, ok4 := r.readBlock(len(c.EXRAM))
	mstate, ok5 := r.readBlockAny()
	if !ok || !ok2 || !ok3 || !ok4 || !ok5 {
		return nerr.ErrSizeMismatch
	}
	if err := c.Mapper.SetState(mstate); err != nil {
		return err
	}
	copy(c.PRGRAM, prgram)
	copy(c.CHRRAM, chrram)
	copy(c.CIRAM, ciram)
	copy(c.EXRAM, exram)
	return nil
}

type stateWriter struct{ bytes []byte }

func (w *stateWriter) writeBlock(b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.bytes = append(w.bytes, lenBuf[:]...)
	w.bytes = append(w.bytes, b...)
}

type stateReader struct {
	data []byte
	pos  int
}

func (r *stateReader) readBlockAny() ([]byte, bool) {
	if r.pos+4 > len(r.data) {
		return nil, false
	}
	n := int(binary.LittleEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	if r.pos+n > len(r.data) {
		return nil, false
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

func (r *stateReader) readBlock(expect int) ([]byte, bool) {
	b, ok := r.readBlockAny()
	if !ok || len(b) != expect {
		return nil, false
	}
	return b, true
}
