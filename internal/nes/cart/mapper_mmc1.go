package cart

// MMC1 (mapper 1): a 5-bit serial shift register loaded one bit per
// write (bit 0 of the written value), shifted in LSB-first; the fifth
// write's address bits 13-14 select which of four internal registers
// (control, CHR0, CHR1, PRG) receives the assembled value. Writing
// with bit 7 set resets the shift register and forces the control
// register's PRG mode to 3 (32K-fixed-high) without changing
// mirroring. Writes landing on back-to-back CPU cycles are dropped
// after the first (the serial port can't keep up), which is what makes
// the CPU's read-modify-write double-write shift only one bit instead
// of two; sinceWrite counts Step() ticks since the last register write
// to detect that case.
type mmc1Mapper struct {
	BaseMapper

	shift      uint8
	shiftCount int

	control uint8 // bit0-1 mirroring, bit2-3 PRG mode, bit4 CHR mode
	chr0    uint8
	chr1    uint8
	prg     uint8

	sinceWrite int

	chrRAM bool
}

func init() {
	register(1, func(c *Cartridge) Mapper {
		return &mmc1Mapper{chrRAM: len(c.CHRROM) == 0}
	})
}

func (m *mmc1Mapper) Reset(c *Cartridge) {
	m.shift, m.shiftCount = 0, 0
	m.control = 0x0C // power-on: PRG mode 3 (32K fixed-high), CHR mode 0
	m.chr0, m.chr1, m.prg = 0, 0, 0
	m.sinceWrite = 2
	m.apply(c)
}

func (m *mmc1Mapper) Step(*Cartridge) {
	if m.sinceWrite < 2 {
		m.sinceWrite++
	}
}

func (m *mmc1Mapper) mirror() uint32 {
	switch m.control & 0x03 {
	case 0:
		return uint32(MirrorSingle0)
	case 1:
		return uint32(MirrorSingle1)
	case 2:
		return uint32(MirrorVertical)
	default:
		return uint32(MirrorHorizontal)
	}
}

func (m *mmc1Mapper) apply(c *Cartridge) {
	c.CHRBG.MapCIRAM(m.mirror())
	c.CHRSpr.MapCIRAM(m.mirror())

	switch (m.control >> 2) & 0x03 {
	case 0, 1:
		bank := int(m.prg&0x0F) >> 1
		c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, bank, 32)
	case 2:
		c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, 0, 16)
		c.PRGBG.Map(c.RegionSize, PRGROM, 0xC000, int(m.prg&0x0F), 16)
	case 3:
		c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, int(m.prg&0x0F), 16)
		lastBank := (len(c.PRGROM) / (16 * 1024)) - 1
		c.PRGBG.Map(c.RegionSize, PRGROM, 0xC000, lastBank, 16)
	}

	chrRegion := CHRROM
	if m.chrRAM {
		chrRegion = CHRRAM
	}
	if m.control&0x10 == 0 {
		c.CHRBG.Map(c.RegionSize, chrRegion, 0x0000, int(m.chr0)>>1, 8)
	} else {
		c.CHRBG.Map(c.RegionSize, chrRegion, 0x0000, int(m.chr0), 4)
		c.CHRBG.Map(c.RegionSize, chrRegion, 0x1000, int(m.chr1), 4)
	}
}

func (m *mmc1Mapper) PRGRead(c *Cartridge, addr uint16) (uint8, bool) {
	if addr < 0x6000 {
		return 0, false
	}
	return c.readArena(c.PRGBG, addr)
}

func (m *mmc1Mapper) PRGWrite(c *Cartridge, addr uint16, v uint8) {
	if addr < 0x6000 {
		return
	}
	if addr < 0x8000 {
		c.writeArena(c.PRGBG, addr, v)
		return
	}

	drop := m.sinceWrite < 2
	m.sinceWrite = 0
	if drop {
		return
	}

	if v&0x80 != 0 {
		m.shift, m.shiftCount = 0, 0
		m.control |= 0x0C
		m.apply(c)
		return
	}

	m.shift |= (v & 1) << uint(m.shiftCount)
	m.shiftCount++
	if m.shiftCount < 5 {
		return
	}

	value := m.shift
	m.shift, m.shiftCount = 0, 0

	switch {
	case addr < 0xA000:
		m.control = value
	case addr < 0xC000:
		m.chr0 = value
	case addr < 0xE000:
		m.chr1 = value
	default:
		m.prg = value
	}
	m.apply(c)
}

func (m *mmc1Mapper) CHRRead(c *Cartridge, addr uint16) uint8 {
	v, _ := c.readArena(c.CHRBG, addr)
	return v
}

func (m *mmc1Mapper) CHRWrite(c *Cartridge, addr uint16, v uint8) {
	c.writeArena(c.CHRBG, addr, v)
}

func (m *mmc1Mapper) GetState() []byte {
	return []byte{m.shift, uint8(m.shiftCount), m.control, m.chr0, m.chr1, m.prg}
}

func (m *mmc1Mapper) SetState(data []byte) error {
	if len(data) != 6 {
		return nil
	}
	m.shift, m.shiftCount, m.control, m.chr0, m.chr1, m.prg = data[0], int(data[1]), data[2], data[3], data[4], data[5]
	return nil
}
