package cart

// Konami VRC7 (mapper 85): three independent 8K PRG windows (fixed
// last bank), eight independently switchable 1K CHR banks, a
// mirroring register, a scanline/cycle IRQ identical in shape to
// VRC4's, and the ports of the OPLL-derived 6-channel FM expansion
// audio. FM sound is not synthesized: this mapper only latches the
// last register-select/data write pair, readable via LastAudioWrite.
type vrc7Mapper struct {
	BaseMapper

	prg [3]uint8
	chr [8]uint8
	mirror uint8

	irqLatch    uint8
	irqCounter  uint8
	irqEnabled  bool
	irqAckOnAck bool
	irqMode     bool
	irqPending  bool
	prescaler   int

	audioAddr uint8
	lastAudioAddr, lastAudioData uint8
}

func init() {
	register(85, func(c *Cartridge) Mapper { return &vrc7Mapper{} })
}

func (m *vrc7Mapper) Reset(c *Cartridge) {
	*m = vrc7Mapper{}
	m.apply(c)
}

func (m *vrc7Mapper) apply(c *Cartridge) {
	last8 := (len(c.PRGROM) / (8 * 1024)) - 1
	c.PRGBG.Map(c.RegionSize, PRGROM, 0x8000, int(m.prg[0]), 8)
	c.PRGBG.Map(c.RegionSize, PRGROM, 0xA000, int(m.prg[1]), 8)
	c.PRGBG.Map(c.RegionSize, PRGROM, 0xC000, int(m.prg[2]), 8)
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

func (m *vrc7Mapper) PRGRead(c *Cartridge, addr uint16) (uint8, bool) {
	if addr < 0x6000 {
		return 0, false
	}
	return c.readArena(c.PRGBG, addr)
}

func (m *vrc7Mapper) PRGWrite(c *Cartridge, addr uint16, v uint8) {
	if addr < 0x6000 {
		return
	}
	if addr < 0x8000 {
		c.writeArena(c.PRGBG, addr, v)
		return
	}
	// Each 4K region holds two registers; VRC7a boards wire the second
	// onto A4 ($x010), VRC7b onto A3 ($x008) — accepting either bit
	// covers both wirings.
	second := addr&0x0018 != 0
	switch addr & 0xF000 {
	case 0x8000:
		if second {
			m.prg[1] = v & 0x3F
		} else {
			m.prg[0] = v & 0x3F
		}
	case 0x9000:
		switch {
		case addr&0x0030 == 0x0030: // $9030: OPLL data
			m.lastAudioAddr = m.audioAddr
			m.lastAudioData = v
		case second: // $9010/$9008: OPLL register select
			m.audioAddr = v
		default:
			m.prg[2] = v & 0x3F
		}
	case 0xA000, 0xB000, 0xC000, 0xD000:
		idx := int((addr>>12)-0xA) * 2
		if second {
			idx++
		}
		m.chr[idx] = v
	case 0xE000:
		if second {
			m.irqLatch = v
		} else {
			m.mirror = v
		}
	case 0xF000:
		if second {
			m.irqEnabled = m.irqAckOnAck
			m.irqPending = false
		} else {
			m.irqAckOnAck = v&0x01 != 0
			m.irqEnabled = v&0x02 != 0
			m.irqMode = v&0x04 != 0
			if m.irqEnabled {
				m.irqCounter = m.irqLatch
				m.prescaler = 341
			}
			m.irqPending = false
		}
	}
	m.apply(c)
}

// Step clocks the IRQ timer, same shape as VRC4.
func (m *vrc7Mapper) Step(c *Cartridge) {
	if !m.irqEnabled {
		return
	}
	if m.irqMode {
		m.clockIRQ()
		return
	}
	m.prescaler -= 3
	if m.prescaler <= 0 {
		m.prescaler += 341
		m.clockIRQ()
	}
}

func (m *vrc7Mapper) clockIRQ() {
	if m.irqCounter == 0xFF {
		m.irqCounter = m.irqLatch
		m.irqPending = true
	} else {
		m.irqCounter++
	}
}

// LastAudioWrite returns the most recent OPLL address/data pair
// written to the audio ports.
func (m *vrc7Mapper) LastAudioWrite() (addr, data uint8) { return m.lastAudioAddr, m.lastAudioData }

func (m *vrc7Mapper) CHRRead(c *Cartridge, addr uint16) uint8 {
	v, _ := c.readArena(c.CHRBG, addr)
	return v
}
func (m *vrc7Mapper) CHRWrite(c *Cartridge, addr uint16, v uint8) { c.writeArena(c.CHRBG, addr, v) }

func (m *vrc7Mapper) IRQPending() bool { return m.irqPending }

func (m *vrc7Mapper) GetState() []byte {
	buf := append([]byte{}, m.prg[:]...)
	buf = append(buf, m.chr[:]...)
	buf = append(buf, m.mirror, m.irqLatch, m.irqCounter, boolToByte(m.irqEnabled),
		boolToByte(m.irqAckOnAck), boolToByte(m.irqMode), boolToByte(m.irqPending),
		uint8(m.prescaler), uint8(m.prescaler>>8))
	return buf
}

func (m *vrc7Mapper) SetState(data []byte) error {
	if len(data) != 20 {
		return nil
	}
	copy(m.prg[:], data[0:3])
	copy(m.chr[:], data[3:11])
	m.mirror, m.irqLatch, m.irqCounter = data[11], data[12], data[13]
	m.irqEnabled, m.irqAckOnAck = data[14] != 0, data[15] != 0
	m.irqMode, m.irqPending = data[16] != 0, data[17] != 0
	m.prescaler = int(data[18]) | int(data[19])<<8
	return nil
}
