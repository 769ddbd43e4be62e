package cart

// Sunsoft FME-7 (mapper 69): an address/data register pair at
// 0x8000/0xA000 selecting one of sixteen internal registers -
// eight 1K CHR banks, four 8K PRG banks (0x6000-0x7FFF, able to map
// PRG-RAM instead of ROM, then 0x8000-0xDFFF; 0xE000 is fixed to the
// last bank), a mirroring register, and an
// IRQ counter with independent enable/count-enable bits. The Sunsoft
// 5B variant additionally exposes its YM2149-derived 3-channel square
// wave generator through a second register-select/data port at
// 0xC000/0xE000, distinct from the 0x8000/0xA000 bank-select pair and
// overlaid on top of the ROM (reads there still see PRG-ROM).
type fme7Mapper struct {
	BaseMapper

	addrReg uint8
	chr     [8]uint8
	prg     [4]uint8 // prg[0] banks 0x6000 (ROM mode); prg[1..3] bank 0x8000/0xA000/0xC000
	prgRAMSelect bool
	prgRAMEnable bool
	mirror  uint8

	irqEnabled  bool
	irqCounting bool
	irqCounter  uint16
	irqPending  bool

	audioAddr uint8
	audio     sunsoftPSG
}

// sunsoftPSG is a reduced model of the 5B's AY-3-8910-derived tone
// generator: three square channels with independent 12-bit period and
// 4-bit volume, gated by the mixer register's per-channel tone-enable
// bits. Noise and the hardware envelope generator aren't modeled —
// the overwhelming majority of 5B soundtracks only use the plain tone
// channels at a fixed volume.
type sunsoftPSG struct {
	period [3]uint16
	volume [3]uint8
	toneOn [3]bool

	timer [3]uint16
	phase [3]uint8
}

func (p *sunsoftPSG) writeReg(reg uint8, v uint8) {
	switch {
	case reg <= 5:
		ch := reg / 2
		if reg%2 == 0 {
			p.period[ch] = (p.period[ch] & 0x0F00) | uint16(v)
		} else {
			p.period[ch] = (p.period[ch] & 0x00FF) | uint16(v&0x0F)<<8
		}
	case reg == 7:
		p.toneOn[0] = v&0x01 == 0
		p.toneOn[1] = v&0x02 == 0
		p.toneOn[2] = v&0x04 == 0
	case reg >= 8 && reg <= 10:
		p.volume[reg-8] = v & 0x0F
	}
}

func (p *sunsoftPSG) clockTimer() {
	for ch := 0; ch < 3; ch++ {
		if p.timer[ch] == 0 {
			p.timer[ch] = p.period[ch]
			p.phase[ch] ^= 1
		} else {
			p.timer[ch]--
		}
	}
}

func (p *sunsoftPSG) output() float64 {
	var sum float64
	for ch := 0; ch < 3; ch++ {
		if p.toneOn[ch] && p.phase[ch] == 1 {
			sum += float64(p.volume[ch])
		}
	}
	return sum / 45.0 // 3 channels * max volume 15
}

func init() {
	register(69, func(c *Cartridge) Mapper { return &fme7Mapper{} })
}

func (m *fme7Mapper) Reset(c *Cartridge) {
	*m = fme7Mapper{}
	m.apply(c)
}

func (m *fme7Mapper) apply(c *Cartridge) {
	last8 := (len(c.PRGROM) / (8 * 1024)) - 1
	if m.prgRAMSelect {
		c.PRGBG.Map(c.RegionSize, PRGRAM, 0x6000, 0, 8)
	} else {
		c.PRGBG.Map(c.RegionSize, PRGROM, 0x6000, int(m.prg[0]), 8)
	}
	c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, int(m.prg[1]), 8)
	c.PRGBG.Map(c.RegionSize, PRGROM, 0xA000, int(m.prg[2]), 8)
	c.PRGBG.Map(c.RegionSize, PRGROM, 0xC000, int(m.prg[3]), 8)
	c.PRGBG.Map(c.RegionSize, PRGROM, 0xE000, last8, 8)

	region := CHRROM
	if len(c.CHRROM) == 0 {
		region = CHRRAM
	}
	for i := 0; i < 8; i++ {
		c.CHRBG.Map(c.RegionSize, region, uint16(i*0x400), int(m.chr[i]), 1)
	}
	switch m.mirror & 0x03 {
	case 0:
		c.CHRBG.MapCIRAM(uint32(MirrorVertical))
	case 1:
		c.CHRBG.MapCIRAM(uint32(MirrorHorizontal))
	case 2:
		c.CHRBG.MapCIRAM(uint32(MirrorSingle0))
	default:
		c.CHRBG.MapCIRAM(uint32(MirrorSingle1))
	}
}

func (m *fme7Mapper) PRGRead(c *Cartridge, addr uint16) (uint8, bool) {
	if addr < 0x6000 {
		return 0, false
	}
	return c.readArena(c.PRGBG, addr)
}

func (m *fme7Mapper) PRGWrite(c *Cartridge, addr uint16, v uint8) {
	switch {
	case addr < 0x6000:
		return
	case addr < 0x8000:
		c.writeArena(c.PRGBG, addr, v)
	case addr < 0xA000:
		m.addrReg = v & 0x0F
	case addr < 0xC000:
		m.writeReg(v)
	case addr < 0xE000:
		m.audioAddr = v & 0x0F
	case addr <= 0xFFFF:
		m.audio.writeReg(m.audioAddr, v)
	}
	m.apply(c)
}

func (m *fme7Mapper) writeReg(v uint8) {
	switch {
	case m.addrReg <= 0x07:
		m.chr[m.addrReg] = v
	case m.addrReg == 0x08:
		m.prgRAMSelect = v&0x40 != 0
		m.prgRAMEnable = v&0x80 != 0
		m.prg[0] = v & 0x3F
	case m.addrReg == 0x09:
		m.prg[1] = v & 0x3F
	case m.addrReg == 0x0A:
		m.prg[2] = v & 0x3F
	case m.addrReg == 0x0B:
		m.prg[3] = v & 0x3F
	case m.addrReg == 0x0C:
		m.mirror = v
	case m.addrReg == 0x0D:
		m.irqEnabled = v&0x01 != 0
		m.irqCounting = v&0x80 != 0
		m.irqPending = false
	case m.addrReg == 0x0E:
		m.irqCounter = (m.irqCounter & 0xFF00) | uint16(v)
	case m.addrReg == 0x0F:
		m.irqCounter = (m.irqCounter & 0x00FF) | uint16(v)<<8
	}
}

// Step clocks the down-counting IRQ timer once per CPU cycle while
// count-enabled, firing on underflow past zero, and clocks the 5B's
// tone generator on every cycle regardless of the IRQ counter's state.
func (m *fme7Mapper) Step(c *Cartridge) {
	m.audio.clockTimer()

	if !m.irqCounting {
		return
	}
	if m.irqCounter == 0 {
		if m.irqEnabled {
			m.irqPending = true
		}
		m.irqCounter = 0xFFFF
		return
	}
	m.irqCounter--
}

func (m *fme7Mapper) ExtAudioSample() float64 { return m.audio.output() }

func (m *fme7Mapper) CHRRead(c *Cartridge, addr uint16) uint8 {
	v, _ := c.readArena(c.CHRBG, addr)
	return v
}
func (m *fme7Mapper) CHRWrite(c *Cartridge, addr uint16, v uint8) { c.writeArena(c.CHRBG, addr, v) }

func (m *fme7Mapper) IRQPending() bool { return m.irqPending }

func (m *fme7Mapper) GetState() []byte {
	buf := []byte{m.addrReg}
	buf = append(buf, m.chr[:]...)
	buf = append(buf, m.prg[:]...)
	buf = append(buf, boolToByte(m.prgRAMSelect), boolToByte(m.prgRAMEnable), m.mirror,
		boolToByte(m.irqEnabled), boolToByte(m.irqCounting), uint8(m.irqCounter), uint8(m.irqCounter>>8), boolToByte(m.irqPending))
	return buf
}

func (m *fme7Mapper) SetState(data []byte) error {
	if len(data) != 21 {
		return nil
	}
	m.addrReg = data[0]
	copy(m.chr[:], data[1:9])
	copy(m.prg[:], data[9:13])
	m.prgRAMSelect, m.prgRAMEnable, m.mirror = data[13] != 0, data[14] != 0, data[15]
	m.irqEnabled, m.irqCounting = data[16] != 0, data[17] != 0
	m.irqCounter = uint16(data[18]) | uint16(data[19])<<8
	m.irqPending = data[20] != 0
	return nil
}
