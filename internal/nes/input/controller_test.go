package input

import "testing"

func TestSetButton_ShouldUpdateButtonState(t *testing.T) {
	var c Controllers

	buttons := []Button{
		ButtonA, ButtonB, ButtonSelect, ButtonStart,
		ButtonUp, ButtonDown, ButtonLeft, ButtonRight,
	}

	for _, b := range buttons {
		c.SetButton(0, b, true)
		if c.state[0] != uint8(b) {
			t.Errorf("button %d: expected state %d, got %d", b, uint8(b), c.state[0])
		}
		c.SetButton(0, b, false)
		if c.state[0] != 0 {
			t.Errorf("button %d: expected state 0 after clear, got %d", b, c.state[0])
		}
	}
}

func TestSetButton_IgnoresOutOfRangePlayer(t *testing.T) {
	var c Controllers
	c.SetButton(2, ButtonA, true)
	c.SetButton(-1, ButtonA, true)
	if c.state[0] != 0 || c.state[1] != 0 {
		t.Fatalf("out-of-range player mutated state: %+v", c.state)
	}
}

func TestSanitize_ClearsOpposingDirections(t *testing.T) {
	v := sanitize(uint8(ButtonUp) | uint8(ButtonDown) | uint8(ButtonA))
	if v&uint8(ButtonUp) != 0 || v&uint8(ButtonDown) != 0 {
		t.Fatalf("expected up/down cleared, got %08b", v)
	}
	if v&uint8(ButtonA) == 0 {
		t.Fatalf("expected A to survive sanitize, got %08b", v)
	}

	v = sanitize(uint8(ButtonLeft) | uint8(ButtonRight))
	if v != 0 {
		t.Fatalf("expected left/right cleared, got %08b", v)
	}
}

// TestLatchSequence mirrors the spec's controller-latch scenario: with
// A, Start and Down held (0x29), a strobe 1-then-0 followed by 8 reads
// produces the button bits LSB-first, then all 1s with the 0x40 open
// bus pattern set on every read.
func TestLatchSequence(t *testing.T) {
	var c Controllers
	c.SetButtons(0, uint8(ButtonA)|uint8(ButtonStart)|uint8(ButtonDown))

	c.WriteStrobe(1)
	c.WriteStrobe(0)

	want := []uint8{1, 0, 0, 1, 0, 1, 0, 0}
	for i, w := range want {
		got := c.Read(0)
		if got&1 != w {
			t.Fatalf("bit %d: want %d, got %d (raw %#02x)", i, w, got&1, got)
		}
		if got&0x40 == 0 {
			t.Fatalf("bit %d: expected open-bus bit 6 set, got %#02x", i, got)
		}
	}
	for i := 0; i < 5; i++ {
		if got := c.Read(0); got&1 != 1 {
			t.Fatalf("post-8th-read bit %d: want 1 (open bus high), got %#02x", i, got)
		}
	}
}

func TestWriteStrobe_HighKeepsRelatching(t *testing.T) {
	var c Controllers
	c.SetButtons(0, uint8(ButtonB))
	c.WriteStrobe(1)

	c.SetButtons(0, uint8(ButtonA))
	if got := c.Read(0); got&1 != 1 {
		t.Fatalf("expected re-latched A bit while strobe high, got %#02x", got)
	}
}

func TestRead_InvalidPortReturnsOpenBus(t *testing.T) {
	var c Controllers
	if got := c.Read(2); got != 0x40 {
		t.Fatalf("want 0x40 for invalid port, got %#02x", got)
	}
}

func TestStateRoundTrip(t *testing.T) {
	var c Controllers
	c.SetButtons(0, 0xAA)
	c.SetButtons(1, 0x55)
	c.WriteStrobe(1)
	c.WriteStrobe(0)
	_ = c.Read(0)

	snap := c.GetState()

	var c2 Controllers
	c2.SetButtons(0, 0xFF) // unrelated dirtying before restore
	c2.SetButtons(1, 0xFF)
	c2.SetState(snap)

	if c2.state != c.state || c2.shift != c.shift || c2.strobe != c.strobe {
		t.Fatalf("state mismatch after round trip: got %+v, want %+v", c2, c)
	}
}
