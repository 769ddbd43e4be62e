package apu

import "testing"

func TestWriteChannelEnable_SetsLengthCounters(t *testing.T) {
	a := New(DefaultConfig())
	a.WriteRegister(0x4000, 0x30) // pulse1 constant volume, halt off path unaffected here
	a.WriteRegister(0x4015, 0x01) // enable pulse1 only (length reload only takes effect while enabled)
	a.WriteRegister(0x4003, 0x08) // length load index 1 -> nonzero length

	status := a.ReadStatus()
	if status&0x01 == 0 {
		t.Fatalf("expected pulse1 active bit set, got status=%#02x", status)
	}
	if status&0x02 != 0 {
		t.Fatalf("expected pulse2 inactive, got status=%#02x", status)
	}
}

func TestWriteChannelEnable_DisablingClearsLength(t *testing.T) {
	a := New(DefaultConfig())
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4003, 0x08)
	if a.ReadStatus()&0x01 == 0 {
		t.Fatal("expected pulse1 active immediately after enabling with nonzero length")
	}
	a.WriteRegister(0x4015, 0x00)
	if a.ReadStatus()&0x01 != 0 {
		t.Fatal("expected pulse1 inactive after disabling via $4015")
	}
}

func TestReadStatus_ClearsFrameIRQFlag(t *testing.T) {
	a := New(DefaultConfig())
	a.frameIRQFlag = true
	if !a.FrameIRQ() {
		t.Fatal("expected FrameIRQ true before read")
	}
	status := a.ReadStatus()
	if status&0x40 == 0 {
		t.Fatal("expected frame IRQ bit set in the status byte returned")
	}
	if a.FrameIRQ() {
		t.Fatal("expected frame IRQ flag cleared as a read side effect")
	}
}

func TestWriteFrameCounter_5StepModeClocksImmediately(t *testing.T) {
	a := New(DefaultConfig())
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4002, 0xFF)
	a.WriteRegister(0x4003, 0x08) // pulse1 nonzero length, loaded before any Step
	lengthBefore := a.pulse1.length.value

	a.WriteRegister(0x4017, 0x80) // 5-step mode triggers an immediate half-frame clock
	for i := 0; i < 5; i++ {
		a.Step(0)
	}
	// The reload happened in an earlier cycle than the immediate 5-step
	// clock, so S6's same-cycle skip does not apply and it decrements.
	if a.pulse1.length.value != lengthBefore-1 {
		t.Fatalf("expected immediate 5-step half-frame clock to decrement, value changed from %d to %d", lengthBefore, a.pulse1.length.value)
	}

	// A second, later half-frame clock (well past the reload) must decrement normally.
	for i := 0; i < 15000; i++ {
		a.Step(0)
	}
	if a.pulse1.length.value >= lengthBefore {
		t.Fatalf("expected length to have decremented by the next half-frame clock, still %d (was %d)", a.pulse1.length.value, lengthBefore)
	}
}

func TestWriteFrameCounter_IRQDisableClearsFlag(t *testing.T) {
	a := New(DefaultConfig())
	a.frameIRQFlag = true
	a.WriteRegister(0x4017, 0x40) // IRQ disable bit set, 4-step mode
	if a.FrameIRQ() {
		t.Fatal("expected frame IRQ flag cleared when IRQ-disable bit is written")
	}
}

func TestStep_FourStepSequenceFiresIRQAtEndOfFrame(t *testing.T) {
	a := New(DefaultConfig())
	for i := 0; i < 29830; i++ {
		a.Step(0)
		if a.FrameIRQ() {
			return
		}
	}
	t.Fatal("expected frame IRQ within one 4-step NTSC frame sequence")
}

func TestPendingDMCFetch_ReflectsSampleRestart(t *testing.T) {
	a := New(DefaultConfig())
	a.WriteRegister(0x4010, 0x00)
	a.WriteRegister(0x4012, 0x00) // sample addr $C000
	a.WriteRegister(0x4013, 0x01) // sample length
	a.WriteRegister(0x4015, 0x10) // enable DMC -> restarts the sample from sampleAddr
	a.Step(0)                    // first timer tick drains the (initially "full") sample buffer and requests a refill

	addr, pending := a.PendingDMCFetch()
	if !pending {
		t.Fatal("expected a pending DMC fetch once the sample buffer first empties")
	}
	if addr != 0xC000 {
		t.Fatalf("expected fetch address 0xC000, got %#04x", addr)
	}
	a.ProvideDMCByte(0xAA)
	if _, pending := a.PendingDMCFetch(); pending {
		t.Fatal("expected fetch no longer pending after ProvideDMCByte")
	}
}

func TestTakeSamples_DrainsAndClears(t *testing.T) {
	a := New(Config{SampleRate: 1000, Channels: 0xFF, Stereo: false})
	a.WriteRegister(0x4000, 0xBF) // pulse1 constant volume, max duty, volume 15
	a.WriteRegister(0x4002, 0x00)
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4003, 0x08)

	for i := 0; i < 20000; i++ {
		a.Step(0)
	}
	samples := a.TakeSamples()
	if len(samples) == 0 {
		t.Fatal("expected at least one resampled output sample")
	}
	if more := a.TakeSamples(); len(more) != 0 {
		t.Fatalf("expected TakeSamples to clear its buffer, got %d leftover samples", len(more))
	}
}

func TestStateRoundTrip(t *testing.T) {
	a := New(DefaultConfig())
	a.WriteRegister(0x4000, 0x3F)
	a.WriteRegister(0x4015, 0x1F)
	a.WriteRegister(0x4003, 0x08)
	for i := 0; i < 5000; i++ {
		a.Step(0)
	}
	snap := a.GetState()

	b := New(DefaultConfig())
	b.SetState(snap)
	if got := b.GetState(); got != snap {
		t.Fatalf("state mismatch after round trip:\ngot  %+v\nwant %+v", got, snap)
	}
}

func TestClockDrift_IgnoresImplausibleMeasurement(t *testing.T) {
	a := New(DefaultConfig())
	before := a.mixer.biasedClock
	a.ClockDrift(cpuClockNTSC+100000, true)
	if a.mixer.biasedClock != before {
		t.Fatalf("expected implausible clock measurement to be ignored, biasedClock changed from %v to %v", before, a.mixer.biasedClock)
	}
	a.ClockDrift(cpuClockNTSC+100, true)
	if a.mixer.biasedClock == before {
		t.Fatal("expected a plausible clock measurement to rebias the mixer")
	}
}
