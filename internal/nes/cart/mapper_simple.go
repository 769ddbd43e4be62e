package cart

// This file covers the mapper families whose entire behavior is "a
// write anywhere in 0x8000-0xFFFF latches a bank index (and
// sometimes a CHR bank / mirroring bit) out of the written value".
// Each gets its own small constructor so the registry entry names a
// real hardware part, but they share one implementation shaped by a
// simpleConfig.

type simpleConfig struct {
	id           uint16
	prgBankKB    int  // 16 or 32
	chrBankKB    int  // 0 (CHR-RAM, unbanked), 1, 2, 4, or 8
	prgFixedHigh bool // true: bank-switch the low PRG window, fix the last bank high (UxROM-style)
	busConflict  bool // true: the board has no bus driver, so the written value is ANDed with the ROM byte at that address
	chrHighOnly  bool // true: CHR bank register moves only the 0x1000-0x1FFF window, 0x0000 stays bank 0 (CPROM)
	regLow       bool // true: the bank register decodes at 0x6000-0x7FFF instead of 0x8000+ (mapper 140)
	mirrorBit    int  // bit of the write value that selects nametable mirroring (-1 = cart wiring fixed, no mirroring control)
	chrBitsLow   int  // low bit offset of the CHR bank field in the write value
	chrBitsWidth int
	prgBitsLow   int
	prgBitsWidth int
}

type simpleMapper struct {
	BaseMapper
	cfg     simpleConfig
	prgBank int
	chrBank int
	mirror  bool // for mirrorBit-controlled carts: false=MirrorSingle0, true=MirrorSingle1
}

func newSimple(cfg simpleConfig) NewFunc {
	return func(c *Cartridge) Mapper {
		return &simpleMapper{cfg: cfg}
	}
}

func field(v uint8, low, width int) int {
	if width <= 0 {
		return 0
	}
	mask := uint8((1 << width) - 1)
	return int((v >> low) & mask)
}

func (m *simpleMapper) applyPRG(c *Cartridge) {
	if m.cfg.prgBankKB == 32 {
		c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, m.prgBank, 32)
		c.PRGSpr.Map(c.RegionSize, PRGROM, 0x8000, m.prgBank, 32)
		return
	}
	if m.cfg.prgFixedHigh {
		c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, m.prgBank, 16)
		lastBank := (len(c.PRGROM) / (16 * 1024)) - 1
		c.PRGBG.Map(c.RegionSize, PRGROM, 0xC000, lastBank, 16)
	} else {
		c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, 0, 16)
		c.PRGBG.Map(c.RegionSize, PRGROM, 0xC000, m.prgBank, 16)
	}
}

func (m *simpleMapper) applyCHR(c *Cartridge) {
	region := CHRROM
	if len(c.CHRROM) == 0 {
		region = CHRRAM
	}
	kb := m.cfg.chrBankKB
	if kb == 0 {
		kb = 8
	}
	if m.cfg.chrHighOnly {
		c.CHRBG.Map(c.RegionSize, region, 0x0000, 0, kb)
		c.CHRSpr.Map(c.RegionSize, region, 0x0000, 0, kb)
		c.CHRBG.Map(c.RegionSize, region, 0x1000, m.chrBank, kb)
		c.CHRSpr.Map(c.RegionSize, region, 0x1000, m.chrBank, kb)
		return
	}
	c.CHRBG.Map(c.RegionSize, region, 0x0000, m.chrBank, kb)
	c.CHRSpr.Map(c.RegionSize, region, 0x0000, m.chrBank, kb)
}

func (m *simpleMapper) Reset(c *Cartridge) {
	m.prgBank, m.chrBank = 0, 0
	m.applyPRG(c)
	m.applyCHR(c)
}

func (m *simpleMapper) PRGRead(c *Cartridge, addr uint16) (uint8, bool) {
	if addr < 0x6000 {
		return 0, false
	}
	if addr < 0x8000 {
		return c.readArena(c.PRGBG, addr)
	}
	v, ok := c.readArena(c.PRGBG, addr)
	return v, ok
}

func (m *simpleMapper) PRGWrite(c *Cartridge, addr uint16, v uint8) {
	if addr < 0x6000 {
		return
	}
	if addr < 0x8000 && !m.cfg.regLow {
		c.writeArena(c.PRGBG, addr, v)
		return
	}
	if addr >= 0x8000 && m.cfg.regLow {
		return
	}
	if m.cfg.busConflict && addr >= 0x8000 {
		// No bus driver on the board: the CPU's value fights the ROM's
		// and the ROM wins any 1->0 bits.
		if rv, ok := c.readArena(c.PRGBG, addr); ok {
			v &= rv
		}
	}
	if m.cfg.prgBitsWidth > 0 {
		m.prgBank = field(v, m.cfg.prgBitsLow, m.cfg.prgBitsWidth)
	}
	if m.cfg.chrBitsWidth > 0 {
		m.chrBank = field(v, m.cfg.chrBitsLow, m.cfg.chrBitsWidth)
	}
	if m.cfg.mirrorBit >= 0 {
		m.mirror = v&(1<<uint(m.cfg.mirrorBit)) != 0
		pattern := m.currentMirrorPattern()
		c.CHRBG.MapCIRAM(pattern)
		c.CHRSpr.MapCIRAM(pattern)
	}
	m.applyPRG(c)
	m.applyCHR(c)
}

func (m *simpleMapper) currentMirrorPattern() uint32 {
	if m.mirror {
		return uint32(MirrorSingle1)
	}
	return uint32(MirrorSingle0)
}

func (m *simpleMapper) CHRRead(c *Cartridge, addr uint16) uint8 {
	v, _ := c.readArena(c.CHRBG, addr)
	return v
}

func (m *simpleMapper) CHRWrite(c *Cartridge, addr uint16, v uint8) {
	c.writeArena(c.CHRBG, addr, v)
}

func (m *simpleMapper) GetState() []byte {
	return []byte{uint8(m.prgBank), uint8(m.chrBank), boolToByte(m.mirror)}
}

func (m *simpleMapper) SetState(data []byte) error {
	if len(data) != 3 {
		return nil
	}
	m.prgBank, m.chrBank, m.mirror = int(data[0]), int(data[1]), data[2] != 0
	return nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func init() {
	// 0: NROM - no banking registers at all, PRG/CHR fixed at load.
	register(0, func(c *Cartridge) Mapper {
		return &simpleMapper{cfg: simpleConfig{id: 0, prgBankKB: 32, chrBankKB: 8, mirrorBit: -1}}
	})
	// 2: UxROM - switchable 16K low bank, fixed last 16K high bank.
	register(2, newSimple(simpleConfig{id: 2, prgBankKB: 16, prgFixedHigh: true, chrBankKB: 8, mirrorBit: -1, prgBitsLow: 0, prgBitsWidth: 4, busConflict: true}))
	// 3: CNROM - fixed 32K PRG, switchable 8K CHR bank (bus-conflict prone on real hardware).
	register(3, newSimple(simpleConfig{id: 3, prgBankKB: 32, chrBankKB: 8, mirrorBit: -1, chrBitsLow: 0, chrBitsWidth: 2, busConflict: true}))
	// 7: AxROM - switchable 32K PRG bank, single-screen mirroring select.
	register(7, newSimple(simpleConfig{id: 7, prgBankKB: 32, chrBankKB: 8, prgBitsLow: 0, prgBitsWidth: 3, mirrorBit: 4}))
	// 11: Color Dreams - 32K PRG bank + 8K CHR bank in one register.
	register(11, newSimple(simpleConfig{id: 11, prgBankKB: 32, chrBankKB: 8, mirrorBit: -1, prgBitsLow: 0, prgBitsWidth: 2, chrBitsLow: 4, chrBitsWidth: 4}))
	// 13: CPROM - fixed 32K PRG; CHR-RAM's low 4K is fixed, only the
	// 0x1000-0x1FFF window banks.
	register(13, newSimple(simpleConfig{id: 13, prgBankKB: 32, chrBankKB: 4, chrHighOnly: true, mirrorBit: -1, chrBitsLow: 0, chrBitsWidth: 2}))
	// 66: GxROM - 32K PRG bank + 8K CHR bank, same shape as mapper 11 with different field widths.
	register(66, newSimple(simpleConfig{id: 66, prgBankKB: 32, chrBankKB: 8, mirrorBit: -1, prgBitsLow: 4, prgBitsWidth: 2, chrBitsLow: 0, chrBitsWidth: 2}))
	// 71: Camerica/Codemasters - UxROM-shaped PRG banking; mirroring is not switchable here.
	register(71, newSimple(simpleConfig{id: 71, prgBankKB: 16, prgFixedHigh: true, chrBankKB: 8, mirrorBit: -1, prgBitsLow: 0, prgBitsWidth: 4}))
	// 140: Jaleco JF-11/14 - GxROM-shaped register decoded at 0x6000-0x7FFF
	// (the board has no WRAM there).
	register(140, newSimple(simpleConfig{id: 140, prgBankKB: 32, chrBankKB: 8, regLow: true, mirrorBit: -1, prgBitsLow: 4, prgBitsWidth: 2, chrBitsLow: 0, chrBitsWidth: 4}))
	// 180: UNROM variant (Crazy Climber) - fixed LOW bank, switchable HIGH bank, no bus conflict.
	register(180, newSimple(simpleConfig{id: 180, prgBankKB: 16, chrBankKB: 8, mirrorBit: -1, prgBitsLow: 0, prgBitsWidth: 3}))
}
