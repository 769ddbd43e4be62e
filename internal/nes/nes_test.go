package nes

import "testing"

// buildNROM assembles a minimal 32KB-PRG/8KB-CHR iNES image (mapper 0)
// whose reset vector points at 0x8000, matching scenario S1's ROM
// shape: a handful of instructions starting at the reset vector.
func buildNROM(prgFill func(prg []byte)) []byte {
	header := []byte{'N', 'E', 'S', 0x1A, 2, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	prg := make([]byte, 32*1024)
	chr := make([]byte, 8*1024)
	if prgFill != nil {
		prgFill(prg)
	}
	// reset vector -> $8000 (offset 0 in the 32KB PRG window)
	prg[0x7FFC] = 0x00
	prg[0x7FFD] = 0x80

	rom := append([]byte{}, header...)
	rom = append(rom, prg...)
	rom = append(rom, chr...)
	return rom
}

func TestLoadCartReportsLoaded(t *testing.T) {
	e := Create(DefaultConfig())
	if e.CartLoaded() {
		t.Fatalf("expected no cart loaded before LoadCart")
	}
	rom := buildNROM(nil)
	if err := e.LoadCart(rom, nil, nil); err != nil {
		t.Fatalf("LoadCart failed: %v", err)
	}
	if !e.CartLoaded() {
		t.Fatalf("expected cart_loaded() true after a successful LoadCart")
	}
}

// TestResetVectorSequence is scenario S1: SEI; CLD; LDX #$FF; TXS;
// JMP $8020 from the reset vector consumes exactly 8 CPU cycles and
// leaves S=0xFD, P.I=1, P.D=0, P.U=1.
func TestResetVectorSequence(t *testing.T) {
	rom := buildNROM(func(prg []byte) {
		copy(prg, []byte{
			0x78,             // SEI            (2)
			0xD8,             // CLD            (2)
			0xA2, 0xFF,       // LDX #$FF       (2)
			0x9A,             // TXS            (2)
			0x4C, 0x20, 0x80, // JMP $8020      (3, not reached within budget)
		})
	})
	e := Create(DefaultConfig())
	if err := e.LoadCart(rom, nil, nil); err != nil {
		t.Fatalf("LoadCart failed: %v", err)
	}
	start := e.cpu.Cycles()
	for i := 0; i < 4; i++ {
		e.cpu.Step()
	}
	if got := e.cpu.Cycles() - start; got != 8 {
		t.Fatalf("expected 8 cycles for SEI;CLD;LDX#;TXS, got %d", got)
	}
	if e.cpu.SP != 0xFD {
		t.Fatalf("expected SP=0xFD, got 0x%02X", e.cpu.SP)
	}
	if !e.cpu.I {
		t.Fatalf("expected I flag set")
	}
	if e.cpu.D {
		t.Fatalf("expected D flag clear (SEI;CLD ran)")
	}
}

func TestNextFrameAdvancesCyclesAndCallsVideo(t *testing.T) {
	rom := buildNROM(func(prg []byte) {
		// infinite loop at reset so the cart never crashes the CPU into
		// undefined opcodes while the PPU completes a frame.
		prg[0] = 0x4C // JMP $8000
		prg[1] = 0x00
		prg[2] = 0x80
	})
	e := Create(DefaultConfig())
	if err := e.LoadCart(rom, nil, nil); err != nil {
		t.Fatalf("LoadCart failed: %v", err)
	}

	var gotFrame bool
	var frameLen int
	cycles := e.NextFrame(func(pixels []uint32, opaque any) {
		gotFrame = true
		frameLen = len(pixels)
	}, nil, nil)

	if !gotFrame {
		t.Fatalf("expected video callback to fire")
	}
	if frameLen != 256*240 {
		t.Fatalf("expected a 256x240 frame, got %d pixels", frameLen)
	}
	if cycles == 0 {
		t.Fatalf("expected NextFrame to report nonzero elapsed cycles")
	}
}

func TestNextFrameNoopWithoutCart(t *testing.T) {
	e := Create(DefaultConfig())
	cycles := e.NextFrame(nil, nil, nil)
	if cycles != 0 {
		t.Fatalf("expected 0 cycles with no cart loaded, got %d", cycles)
	}
}

// TestControllerLatchSequence is scenario S5: player 0 = A|START|DOWN
// (0x29), strobe 1->0, then 8 reads of $4016 report bit0 sequence
// 1,0,0,1,0,1,0,0 and every read from the ninth on reports 1.
func TestControllerLatchSequence(t *testing.T) {
	e := Create(DefaultConfig())
	rom := buildNROM(nil)
	if err := e.LoadCart(rom, nil, nil); err != nil {
		t.Fatalf("LoadCart failed: %v", err)
	}
	e.ControllerState(0, 0x29)
	e.bus.Write(0x4016, 1)
	e.bus.Write(0x4016, 0)

	want := []uint8{1, 0, 0, 1, 0, 1, 0, 0}
	for i, w := range want {
		got := e.bus.Read(0x4016) & 1
		if got != w {
			t.Fatalf("read %d: expected bit %d, got %d", i, w, got)
		}
	}
	for i := 0; i < 3; i++ {
		if got := e.bus.Read(0x4016) & 1; got != 1 {
			t.Fatalf("read %d past the 8th: expected 1, got %d", i+8, got)
		}
	}
}

// TestStateRoundTrip is invariant 3: set_state(get_state(E)) == E.
func TestStateRoundTrip(t *testing.T) {
	rom := buildNROM(func(prg []byte) {
		prg[0] = 0x4C
		prg[1] = 0x00
		prg[2] = 0x80
	})
	e := Create(DefaultConfig())
	if err := e.LoadCart(rom, nil, nil); err != nil {
		t.Fatalf("LoadCart failed: %v", err)
	}
	e.NextFrame(nil, nil, nil)

	blob := e.GetState()
	if blob == nil {
		t.Fatalf("expected a non-nil state blob")
	}
	before := e.cpu.Cycles()
	if !e.SetState(blob) {
		t.Fatalf("expected set_state to succeed on its own get_state blob")
	}
	if e.cpu.Cycles() != before {
		t.Fatalf("expected cycle count preserved across round-trip: before=%d after=%d", before, e.cpu.Cycles())
	}
}

func TestSetStateRejectsGarbage(t *testing.T) {
	e := Create(DefaultConfig())
	if e.SetState([]byte{1, 2, 3}) {
		t.Fatalf("expected set_state to reject a too-short/garbage blob")
	}
}

func TestSRAMRoundTrip(t *testing.T) {
	rom := buildNROM(nil)
	// flip the battery bit (flags6 bit1) so PRG-RAM writes count as dirty.
	rom[6] |= 0x02

	e := Create(DefaultConfig())
	if err := e.LoadCart(rom, nil, nil); err != nil {
		t.Fatalf("LoadCart failed: %v", err)
	}
	e.bus.Write(0x6000, 0x42)
	if d := e.SRAMDirty(); d == 0 {
		t.Fatalf("expected SRAMDirty to report a nonzero write count")
	}
	buf := make([]byte, 8*1024)
	e.GetSRAM(buf)
	if buf[0] != 0x42 {
		t.Fatalf("expected get_sram to reflect the write at $6000, got 0x%02X", buf[0])
	}
}
