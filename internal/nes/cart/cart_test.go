package cart

import (
	"bytes"
	"errors"
	"testing"

	"github.com/local/nesgo/internal/nes/nerr"
)

// buildHeader assembles a minimal 16-byte iNES header plus PRG/CHR
// payloads, mirroring the layout ParseHeader expects.
func buildHeader(prgBanks, chrBanks int, flags6, flags7 byte) []byte {
	h := make([]byte, 16)
	copy(h[0:4], "NES\x1A")
	h[4] = byte(prgBanks)
	h[5] = byte(chrBanks)
	h[6] = flags6
	h[7] = flags7
	return h
}

func TestParseHeader_RejectsBadMagic(t *testing.T) {
	buf := bytes.Repeat([]byte{0}, 16)
	_, _, _, err := ParseHeader(bytes.NewReader(buf))
	if !errors.Is(err, nerr.ErrInvalidROM) {
		t.Fatalf("expected ErrInvalidROM, got %v", err)
	}
}

func TestParseHeader_RejectsZeroPRGBanks(t *testing.T) {
	h := buildHeader(0, 0, 0, 0)
	_, _, _, err := ParseHeader(bytes.NewReader(h))
	if !errors.Is(err, nerr.ErrInvalidROM) {
		t.Fatalf("expected ErrInvalidROM for zero PRG banks, got %v", err)
	}
}

func TestParseHeader_NROMVerticalMirroring(t *testing.T) {
	h := buildHeader(1, 1, 0x01, 0x00) // flags6 bit0: vertical mirroring
	prg := bytes.Repeat([]byte{0xAA}, 16*1024)
	chr := bytes.Repeat([]byte{0xBB}, 8*1024)
	var buf bytes.Buffer
	buf.Write(h)
	buf.Write(prg)
	buf.Write(chr)

	desc, gotPRG, gotCHR, err := ParseHeader(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Mapper != 0 {
		t.Fatalf("expected mapper 0, got %d", desc.Mapper)
	}
	if desc.Mirror != MirrorVertical {
		t.Fatalf("expected vertical mirroring, got %#x", uint32(desc.Mirror))
	}
	if len(gotPRG) != len(prg) || len(gotCHR) != len(chr) {
		t.Fatalf("PRG/CHR length mismatch: got %d/%d want %d/%d", len(gotPRG), len(gotCHR), len(prg), len(chr))
	}
}

func TestParseHeader_SkipsTrainer(t *testing.T) {
	h := buildHeader(1, 0, 0x04, 0x00) // flags6 bit2: trainer present
	var buf bytes.Buffer
	buf.Write(h)
	buf.Write(bytes.Repeat([]byte{0xCC}, 512)) // trainer
	prg := bytes.Repeat([]byte{0x11}, 16*1024)
	buf.Write(prg)

	desc, gotPRG, _, err := ParseHeader(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotPRG) != len(prg) || gotPRG[0] != 0x11 {
		t.Fatalf("expected trainer bytes discarded and PRG read correctly, got first byte %#02x len %d", gotPRG[0], len(gotPRG))
	}
	_ = desc
}

func TestArena_MapAndResolve(t *testing.T) {
	a := newArena(4)
	sizeFn := func(Region) int { return 32 * 1024 }
	a.Map(sizeFn, PRGROM, 0x8000, 1, 16)

	slot, off, ok := a.Resolve(0x8000)
	if !ok {
		t.Fatal("expected slot mapped at 0x8000")
	}
	if slot.Region != PRGROM || off != 16*1024 {
		t.Fatalf("expected PRGROM at offset 16384, got region %d offset %d", slot.Region, off)
	}

	_, off2, _ := a.Resolve(0x8010)
	if off2 != 16*1024+0x10 {
		t.Fatalf("expected offset to track address within the bank, got %d", off2)
	}
}

func TestArena_MapWrapsUndersizedRegion(t *testing.T) {
	a := newArena(4)
	sizeFn := func(Region) int { return 16 * 1024 } // only one 16K bank exists
	a.Map(sizeFn, PRGROM, 0x8000, 3, 16)             // bank index 3 should wrap modulo size

	_, off, ok := a.Resolve(0x8000)
	if !ok || off != 0 {
		t.Fatalf("expected wraparound to offset 0, got offset %d ok %v", off, ok)
	}
}

func TestArena_Unmap(t *testing.T) {
	a := newArena(4)
	sizeFn := func(Region) int { return 16 * 1024 }
	a.Map(sizeFn, PRGROM, 0x8000, 0, 16)
	a.Unmap(0x8000)
	if _, _, ok := a.Resolve(0x8000); ok {
		t.Fatal("expected unmapped slot to report not-ok")
	}
}

func newNROMCart(t *testing.T, prgSize, chrSize int) *Cartridge {
	t.Helper()
	desc := &Desc{Mapper: 0, Mirror: MirrorHorizontal, PRGROMSize: prgSize, CHRROMSize: chrSize}
	prg := make([]byte, prgSize)
	for i := range prg {
		prg[i] = byte(i)
	}
	var chr []byte
	if chrSize > 0 {
		chr = make([]byte, chrSize)
		for i := range chr {
			chr[i] = byte(i)
		}
	}
	c, err := Create(desc, prg, chr, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func TestCreate_UnsupportedMapperFails(t *testing.T) {
	desc := &Desc{Mapper: 0xFFFF, PRGROMSize: 16 * 1024}
	_, err := Create(desc, make([]byte, 16*1024), nil, nil)
	if !errors.Is(err, nerr.ErrUnsupportedMapper) {
		t.Fatalf("expected ErrUnsupportedMapper, got %v", err)
	}
}

func TestCreate_NROM_PRGCHRReadRoundTrip(t *testing.T) {
	c := newNROMCart(t, 32*1024, 8*1024)

	v, ok := c.ReadPRG(0x8000)
	if !ok || v != c.PRGROM[0] {
		t.Fatalf("expected PRGROM[0] at 0x8000, got %#02x ok=%v", v, ok)
	}
	v, ok = c.ReadPRG(0xFFFF)
	if !ok || v != c.PRGROM[len(c.PRGROM)-1] {
		t.Fatalf("expected last PRGROM byte at 0xFFFF, got %#02x ok=%v", v, ok)
	}

	chrv := c.ReadCHR(0x0000)
	if chrv != c.CHRROM[0] {
		t.Fatalf("expected CHRROM[0] at CHR 0x0000, got %#02x", chrv)
	}
}

func TestCreate_NROM_CHRRAMWhenNoCHRROM(t *testing.T) {
	c := newNROMCart(t, 32*1024, 0)
	if len(c.CHRRAM) != 8*1024 {
		t.Fatalf("expected default 8K CHR-RAM, got %d bytes", len(c.CHRRAM))
	}
	c.WriteCHR(0x0010, 0x55)
	if c.ReadCHR(0x0010) != 0x55 {
		t.Fatal("expected CHR-RAM write to be readable back")
	}
}

func TestPRGRAM_WindowAtSRAMRange(t *testing.T) {
	c := newNROMCart(t, 32*1024, 8*1024)
	c.WritePRG(0x6000, 0x7E)
	v, ok := c.ReadPRG(0x6000)
	if !ok || v != 0x7E {
		t.Fatalf("expected PRGRAM write/read round trip at 0x6000, got %#02x ok=%v", v, ok)
	}
}

func TestSRAMDirty_CountsDistinctWritesOnlyWhenBatteryBacked(t *testing.T) {
	desc := &Desc{Mapper: 0, Mirror: MirrorHorizontal, PRGROMSize: 32 * 1024, Battery: true}
	c, err := Create(desc, make([]byte, 32*1024), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c.WritePRG(0x6000, 0x01)
	c.WritePRG(0x6000, 0x01) // same value again, not a new dirty byte
	c.WritePRG(0x6001, 0x02)

	if n := c.SRAMDirty(); n != 2 {
		t.Fatalf("expected 2 dirty bytes, got %d", n)
	}
	if n := c.SRAMDirty(); n != 0 {
		t.Fatalf("expected dirty counter reset after read, got %d", n)
	}
}

func TestSRAMDirty_ZeroWithoutBattery(t *testing.T) {
	c := newNROMCart(t, 32*1024, 8*1024)
	c.WritePRG(0x6000, 0x01)
	if n := c.SRAMDirty(); n != 0 {
		t.Fatalf("expected no dirty tracking without Desc.Battery, got %d", n)
	}
}

func TestCreate_RestoresSRAMFromSavedBlob(t *testing.T) {
	desc := &Desc{Mapper: 0, Mirror: MirrorHorizontal, PRGROMSize: 32 * 1024, Battery: true}
	saved := make([]byte, 8*1024)
	saved[5] = 0x99
	c, err := Create(desc, make([]byte, 32*1024), nil, saved)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.PRGRAM[5] != 0x99 {
		t.Fatalf("expected saved SRAM restored, got %#02x at offset 5", c.PRGRAM[5])
	}
}

func TestCartridge_StateRoundTrip(t *testing.T) {
	c := newNROMCart(t, 32*1024, 0)
	c.WritePRG(0x6000, 0x42)
	c.WriteCHR(0x0000, 0x99)

	snap := c.GetState()

	c2 := newNROMCart(t, 32*1024, 0)
	if err := c2.SetState(snap); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if v, _ := c2.ReadPRG(0x6000); v != 0x42 {
		t.Fatalf("expected PRGRAM restored, got %#02x", v)
	}
	if v := c2.ReadCHR(0x0000); v != 0x99 {
		t.Fatalf("expected CHR-RAM restored, got %#02x", v)
	}
}

func TestCartridge_SetState_RejectsSizeMismatch(t *testing.T) {
	c := newNROMCart(t, 32*1024, 8*1024)

	bogus := []byte{1, 2, 3} // too short to even hold one length-prefixed block
	if err := c.SetState(bogus); !errors.Is(err, nerr.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch for truncated blob, got %v", err)
	}
}

func TestUxROM_BankSwitchesLowWindowFixesHigh(t *testing.T) {
	desc := &Desc{Mapper: 2, Mirror: MirrorHorizontal, PRGROMSize: 64 * 1024}
	// 0xFF-filled so the bank-select write doesn't fight the ROM on the
	// conflict-prone bus; bank markers live one byte in.
	prg := bytes.Repeat([]byte{0xFF}, 64*1024)
	for bank := 0; bank < 4; bank++ {
		prg[bank*16*1024+1] = byte(0x10 + bank)
	}
	c, err := Create(desc, prg, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	v, _ := c.ReadPRG(0xC001)
	if v != prg[3*16*1024+1] {
		t.Fatalf("expected last bank fixed at 0xC000, got %#02x want %#02x", v, prg[3*16*1024+1])
	}

	c.WritePRG(0x8000, 0x02) // select bank 2 for the low window
	v, _ = c.ReadPRG(0x8001)
	if v != prg[2*16*1024+1] {
		t.Fatalf("expected bank 2 switched into 0x8000, got %#02x want %#02x", v, prg[2*16*1024+1])
	}
}

func TestUxROM_BusConflictANDsWrittenValueWithROM(t *testing.T) {
	desc := &Desc{Mapper: 2, Mirror: MirrorHorizontal, PRGROMSize: 64 * 1024}
	prg := bytes.Repeat([]byte{0xFF}, 64*1024)
	prg[0] = 0x01 // ROM byte at $8000 fights the written value
	for bank := 0; bank < 4; bank++ {
		prg[bank*16*1024+1] = byte(0x10 + bank)
	}
	c, err := Create(desc, prg, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c.WritePRG(0x8000, 0x03) // 0x03 & 0x01 -> bank 1, not bank 3
	v, _ := c.ReadPRG(0x8001)
	if v != prg[1*16*1024+1] {
		t.Fatalf("expected bus conflict to select bank 1, got %#02x want %#02x", v, prg[1*16*1024+1])
	}
}
