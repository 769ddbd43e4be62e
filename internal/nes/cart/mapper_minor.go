package cart

// Sunsoft-1 (mapper 184): fixed 32K PRG, two independently switchable
// 4K CHR-ROM banks selected by the low/high nibble of any write in
// 0x6000-0x7FFF (there is no 0x8000-0xFFFF register at all - PRG is
// entirely unbanked).
type sunsoft1Mapper struct {
	BaseMapper
	chrLow, chrHigh uint8
}

func init() {
	register(184, func(c *Cartridge) Mapper { return &sunsoft1Mapper{} })
}

func (m *sunsoft1Mapper) Reset(c *Cartridge) {
	m.chrLow, m.chrHigh = 0, 0
	c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, 0, 32)
	m.applyCHR(c)
}

func (m *sunsoft1Mapper) applyCHR(c *Cartridge) {
	region := CHRROM
	if len(c.CHRROM) == 0 {
		region = CHRRAM
	}
	c.CHRBG.Map(c.RegionSize, region, 0x0000, int(m.chrLow), 4)
	c.CHRBG.Map(c.RegionSize, region, 0x1000, int(m.chrHigh), 4)
}

func (m *sunsoft1Mapper) PRGRead(c *Cartridge, addr uint16) (uint8, bool) {
	if addr < 0x6000 {
		return 0, false
	}
	if addr < 0x8000 {
		return c.readArena(c.PRGBG, addr)
	}
	return c.readArena(c.PRGBG, addr)
}

func (m *sunsoft1Mapper) PRGWrite(c *Cartridge, addr uint16, v uint8) {
	if addr >= 0x6000 && addr < 0x8000 {
		m.chrLow = v & 0x07
		m.chrHigh = (v >> 4) & 0x07
		m.applyCHR(c)
	}
}

func (m *sunsoft1Mapper) CHRRead(c *Cartridge, addr uint16) uint8 {
	v, _ := c.readArena(c.CHRBG, addr)
	return v
}
func (m *sunsoft1Mapper) CHRWrite(c *Cartridge, addr uint16, v uint8) { c.writeArena(c.CHRBG, addr, v) }

func (m *sunsoft1Mapper) GetState() []byte           { return []byte{m.chrLow, m.chrHigh} }
func (m *sunsoft1Mapper) SetState(data []byte) error {
	if len(data) != 2 {
		return nil
	}
	m.chrLow, m.chrHigh = data[0], data[1]
	return nil
}

// NES-NROM variant with a CHR write-protect/read-disable latch,
// mapper 185: behaves exactly like NROM for PRG and CHR reads/writes,
// except that a specific byte value pattern written to the CHR
// "bank select" (really just any PRG-space write in 0x8000-0xFFFF, the
// cart ignores the bank index and uses it only as a protect latch) of
// 0x00/0x01/0x02 or 0x03/rest toggles whether CHR reads are allowed at
// all - used by a handful of carts as a rudimentary copy-protection
// check. Block2007 resolves the spec's documented PPUDATA-read
// interaction: while the latch disables CHR, the PPU's 2007 buffered
// read is blocked and must fall back to re-reading the OAMADDR
// register path instead of the normal buffer swap.
type mapper185 struct {
	BaseMapper
	chrEnabled bool
}

func init() {
	register(185, func(c *Cartridge) Mapper { return &mapper185{chrEnabled: true} })
}

func (m *mapper185) Reset(c *Cartridge) {
	m.chrEnabled = true
	c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, 0, 32)
	c.CHRBG.Map(c.RegionSize, CHRROM, 0x0000, 0, 8)
}

func (m *mapper185) PRGRead(c *Cartridge, addr uint16) (uint8, bool) {
	if addr < 0x6000 {
		return 0, false
	}
	return c.readArena(c.PRGBG, addr)
}

func (m *mapper185) PRGWrite(c *Cartridge, addr uint16, v uint8) {
	if addr < 0x8000 {
		if addr >= 0x6000 {
			c.writeArena(c.PRGBG, addr, v)
		}
		return
	}
	low := v & 0x03
	m.chrEnabled = low != 0
}

func (m *mapper185) CHRRead(c *Cartridge, addr uint16) uint8 {
	if !m.chrEnabled && addr < 0x2000 {
		return 0xFF
	}
	v, _ := c.readArena(c.CHRBG, addr)
	return v
}
func (m *mapper185) CHRWrite(c *Cartridge, addr uint16, v uint8) {}

func (m *mapper185) Block2007(c *Cartridge) bool { return !m.chrEnabled }

func (m *mapper185) GetState() []byte { return []byte{boolToByte(m.chrEnabled)} }
func (m *mapper185) SetState(data []byte) error {
	if len(data) != 1 {
		return nil
	}
	m.chrEnabled = data[0] != 0
	return nil
}
