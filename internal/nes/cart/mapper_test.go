package cart

import "testing"

func TestMMC1_FiveWriteShiftSelectsRegister(t *testing.T) {
	desc := &Desc{Mapper: 1, Mirror: MirrorHorizontal, PRGROMSize: 128 * 1024}
	prg := make([]byte, 128*1024)
	c, err := Create(desc, prg, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := c.Mapper.(*mmc1Mapper)

	// Five consecutive low-bit writes to the control register ($8000-$9FFF)
	// assembled LSB-first load 0x0C: PRG mode 3, CHR mode 0 (bit4 clear)
	// and one-screen mirroring (bits 0-1 clear).
	writeMMC1(c, 0x8000, 0x0C)
	if m.control != 0x0C {
		t.Fatalf("expected control register loaded with 0x0C, got %#02x", m.control)
	}
}

func TestMMC1_ResetBitForcesControlMode(t *testing.T) {
	desc := &Desc{Mapper: 1, Mirror: MirrorHorizontal, PRGROMSize: 128 * 1024}
	c, err := Create(desc, make([]byte, 128*1024), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := c.Mapper.(*mmc1Mapper)
	m.control = 0

	c.WritePRG(0x8000, 0x80) // reset bit set
	if m.control&0x0C != 0x0C {
		t.Fatalf("expected reset write to force PRG mode 3 bits, got control %#02x", m.control)
	}
	if m.shiftCount != 0 {
		t.Fatalf("expected shift register cleared by reset write, got shiftCount %d", m.shiftCount)
	}
}

// writeMMC1 performs the 5-bit serial shift sequence needed to load v
// into the register selected by addr, with a few cart cycles between
// writes the way real store instructions space them (back-to-back
// writes are dropped by the serial port).
func writeMMC1(c *Cartridge, addr uint16, v uint8) {
	for i := 0; i < 5; i++ {
		bit := (v >> uint(i)) & 1
		c.WritePRG(addr, bit)
		for j := 0; j < 4; j++ {
			c.Step()
		}
	}
}

func TestMMC1_BackToBackWritesDropped(t *testing.T) {
	desc := &Desc{Mapper: 1, Mirror: MirrorHorizontal, PRGROMSize: 128 * 1024}
	c, err := Create(desc, make([]byte, 128*1024), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := c.Mapper.(*mmc1Mapper)

	// An RMW instruction's double write lands on consecutive cycles; only
	// the first write may shift a bit in.
	c.WritePRG(0x8000, 0x01)
	c.Step()
	c.WritePRG(0x8000, 0x01)
	if m.shiftCount != 1 {
		t.Fatalf("expected second consecutive-cycle write dropped, shiftCount = %d", m.shiftCount)
	}
}

func TestMMC3_BankSelectRoutesOddWriteToRegister(t *testing.T) {
	desc := &Desc{Mapper: 4, Mirror: MirrorHorizontal, PRGROMSize: 128 * 1024, CHRROMSize: 128 * 1024}
	c, err := Create(desc, make([]byte, 128*1024), make([]byte, 128*1024), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := c.Mapper.(*mmc3Mapper)

	c.WritePRG(0x8000, 0x02) // select register R2 (CHR 1K at 0x1000/0x0000)
	c.WritePRG(0x8001, 0x07) // R2 = bank 7
	if m.regs[2] != 7 {
		t.Fatalf("expected regs[2] = 7, got %d", m.regs[2])
	}
}

func TestMMC3_IRQCounterFiresAfterReload(t *testing.T) {
	desc := &Desc{Mapper: 4, Mirror: MirrorHorizontal, PRGROMSize: 128 * 1024, CHRROMSize: 128 * 1024}
	c, err := Create(desc, make([]byte, 128*1024), make([]byte, 128*1024), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := c.Mapper.(*mmc3Mapper)

	c.WritePRG(0xC000, 2) // irqLatch = 2
	c.WritePRG(0xC001, 0) // force reload on next A12 edge
	c.WritePRG(0xE001, 0) // irqEnabled = true

	m.A12Toggle(c) // reload: counter = latch (2)
	if m.IRQPending() {
		t.Fatal("did not expect IRQ pending immediately after reload to a nonzero latch")
	}
	m.A12Toggle(c) // counter: 2 -> 1
	m.A12Toggle(c) // counter: 1 -> 0, fires
	if !m.IRQPending() {
		t.Fatal("expected IRQ pending once the counter reaches 0 with IRQs enabled")
	}

	c.WritePRG(0xE000, 0) // acknowledge/disable
	if m.IRQPending() {
		t.Fatal("expected $E000 write to clear pending IRQ")
	}
}

func TestMMC3_StateRoundTrip(t *testing.T) {
	desc := &Desc{Mapper: 4, Mirror: MirrorHorizontal, PRGROMSize: 128 * 1024, CHRROMSize: 128 * 1024}
	c, err := Create(desc, make([]byte, 128*1024), make([]byte, 128*1024), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.WritePRG(0x8000, 0x06)
	c.WritePRG(0x8001, 0x03)
	c.WritePRG(0xC000, 5)

	snap := c.Mapper.GetState()

	c2, err := Create(desc, make([]byte, 128*1024), make([]byte, 128*1024), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c2.Mapper.SetState(snap); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if got := c2.Mapper.GetState(); string(got) != string(snap) {
		t.Fatalf("mapper state mismatch after round trip: got %v want %v", got, snap)
	}
}
