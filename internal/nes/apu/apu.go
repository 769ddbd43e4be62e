// Package apu implements the 2A03's five native sound channels (two
// pulses, triangle, noise, DMC), the frame sequencer that clocks their
// envelope/sweep/length units, and a small band-limited resampler that
// turns the internal 1.79MHz sample stream into host-rate PCM.
package apu

// cpuClockNTSC is the NTSC CPU (and therefore APU) clock in Hz, used
// both by the frame sequencer's cycle counts and by the resampler's
// rate conversion.
const cpuClockNTSC = 1789773.0

// Channel mask bits for Config.Channels. The ordering (pulses, then
// expansion slots, then triangle/noise/DMC) matches how a front end's
// channel-mute UI tends to group them: native melodic voices, cart
// expansion, then the percussive/noise channels.
const (
	ChanPulse1 uint8 = 1 << iota
	ChanPulse2
	ChanExt0
	ChanExt1
	ChanExt2
	ChanTriangle
	ChanNoise
	ChanDMC
)

// Config is the host-tunable subset of APU behavior: output sample
// rate, per-channel mix mute mask, and mono/stereo selection.
type Config struct {
	SampleRate int
	Channels   uint8
	Stereo     bool
}

// DefaultConfig matches a typical 44.1kHz stereo front end with every
// channel audible.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		Channels:   0xFF,
		Stereo:     true,
	}
}

// APU drives the five native channels plus one external (cart
// expansion) input sample per cycle, and exposes PendingDMCFetch/
// ProvideDMCByte for the bus to service the DMC channel's cycle-
// stealing DMA.
type APU struct {
	cfg Config

	pulse1, pulse2 pulseChannel
	triangle       triangleChannel
	noise          noiseChannel
	dmc            dmcChannel

	frameMode       bool // false = 4-step, true = 5-step
	frameIRQDisable bool
	frameIRQFlag    bool
	frameCycle      uint32
	frameResetDelay int
	cycleCount      uint64

	mixer Mixer
}

// New constructs an APU ready to receive register writes; Reset()
// additionally clears sequencer/channel state (used on a cold or
// mapper-triggered reset without re-allocating the resampler buffers).
func New(cfg Config) *APU {
	a := &APU{cfg: cfg}
	a.noise = newNoiseChannel()
	a.pulse1.isPulse1 = true
	a.mixer.init(cfg.SampleRate)
	a.mixer.stereo = cfg.Stereo
	return a
}

// SetConfig updates the live mix/resample configuration; a sample-rate
// change reinitializes the resampler's phase state.
func (a *APU) SetConfig(cfg Config) {
	if cfg.SampleRate != a.cfg.SampleRate {
		a.mixer.init(cfg.SampleRate)
	}
	a.mixer.stereo = cfg.Stereo
	a.cfg = cfg
}

// Reset clears all channel and sequencer state, matching a power-on
// or mapper-forced reset; the resampler's accumulated but undrained
// samples are discarded along with it.
func (a *APU) Reset() {
	cfg := a.cfg
	*a = APU{cfg: cfg}
	a.noise = newNoiseChannel()
	a.pulse1.isPulse1 = true
	a.mixer.init(cfg.SampleRate)
	a.mixer.stereo = cfg.Stereo
}

// WriteRegister handles every $4000-$4017 CPU write the bus doesn't
// claim for itself ($4014 OAM DMA, $4016 controller strobe).
func (a *APU) WriteRegister(addr uint16, v uint8) {
	switch addr {
	case 0x4000:
		a.pulse1.writeControl(v)
	case 0x4001:
		a.pulse1.writeSweep(v)
	case 0x4002:
		a.pulse1.writeTimerLow(v)
	case 0x4003:
		a.pulse1.writeTimerHigh(v)
	case 0x4004:
		a.pulse2.writeControl(v)
	case 0x4005:
		a.pulse2.writeSweep(v)
	case 0x4006:
		a.pulse2.writeTimerLow(v)
	case 0x4007:
		a.pulse2.writeTimerHigh(v)
	case 0x4008:
		a.triangle.writeControl(v)
	case 0x400A:
		a.triangle.writeTimerLow(v)
	case 0x400B:
		a.triangle.writeTimerHigh(v)
	case 0x400C:
		a.noise.writeControl(v)
	case 0x400E:
		a.noise.writePeriod(v)
	case 0x400F:
		a.noise.writeLength(v)
	case 0x4010:
		a.dmc.writeControl(v)
	case 0x4011:
		a.dmc.writeDirectLoad(v)
	case 0x4012:
		a.dmc.writeSampleAddr(v)
	case 0x4013:
		a.dmc.writeSampleLength(v)
	case 0x4015:
		a.writeChannelEnable(v)
	case 0x4017:
		a.writeFrameCounter(v)
	}
}

func (a *APU) writeChannelEnable(v uint8) {
	a.pulse1.length.setEnabled(v&0x01 != 0)
	a.pulse2.length.setEnabled(v&0x02 != 0)
	a.triangle.length.setEnabled(v&0x04 != 0)
	a.noise.length.setEnabled(v&0x08 != 0)
	a.dmc.setEnabled(v&0x10 != 0)
	a.dmc.irqPending = false
}

// writeFrameCounter schedules the frame sequencer's reset: 3 cycles
// out if the write landed on an odd APU cycle, 4 if even. Mode and
// the IRQ-inhibit bit themselves take effect immediately; only the
// sequencer position reset is delayed. If the new mode is 5-step, the
// reset additionally clocks a quarter and half frame right away.
func (a *APU) writeFrameCounter(v uint8) {
	a.frameMode = v&0x80 != 0
	a.frameIRQDisable = v&0x40 != 0
	if a.frameIRQDisable {
		a.frameIRQFlag = false
	}
	if a.cycleCount%2 == 0 {
		a.frameResetDelay = 4
	} else {
		a.frameResetDelay = 3
	}
}

// ReadStatus implements $4015's read side: channel active flags plus
// the frame and DMC IRQ flags, clearing the frame IRQ flag as a read
// side effect (the DMC IRQ flag is cleared only by $4015 writes).
func (a *APU) ReadStatus() uint8 {
	var v uint8
	if a.pulse1.length.value > 0 {
		v |= 0x01
	}
	if a.pulse2.length.value > 0 {
		v |= 0x02
	}
	if a.triangle.length.value > 0 {
		v |= 0x04
	}
	if a.noise.length.value > 0 {
		v |= 0x08
	}
	if a.dmc.active() {
		v |= 0x10
	}
	if a.frameIRQFlag {
		v |= 0x40
	}
	if a.dmc.irqPending {
		v |= 0x80
	}
	a.frameIRQFlag = false
	return v
}

func (a *APU) FrameIRQ() bool { return a.frameIRQFlag }
func (a *APU) DMCIRQ() bool   { return a.dmc.irqPending }

// PendingDMCFetch/ProvideDMCByte implement bus.APU's DMC DMA contract.
func (a *APU) PendingDMCFetch() (uint16, bool) {
	return a.dmc.fetchAddr, a.dmc.fetchPending
}

func (a *APU) ProvideDMCByte(v uint8) { a.dmc.provideByte(v) }

// Step advances every channel and the frame sequencer by one CPU
// cycle, mixes the result (native channels plus the cart's expansion
// audio sample for this cycle) and feeds it to the resampler.
func (a *APU) Step(extAudio float64) {
	a.cycleCount++

	if a.frameResetDelay > 0 {
		a.frameResetDelay--
		if a.frameResetDelay == 0 {
			a.frameCycle = 0
			if a.frameMode {
				a.clockQuarterFrame()
				a.clockHalfFrame()
			}
		}
	}

	a.triangle.clockTimer()
	if a.cycleCount%2 == 0 {
		a.pulse1.clockTimer()
		a.pulse2.clockTimer()
		a.noise.clockTimer()
	}
	a.dmc.clockTimer()

	a.stepFrameSequencer()

	// A length reload skips only a half-frame clock in this same cycle.
	a.pulse1.length.justReloaded = false
	a.pulse2.length.justReloaded = false
	a.triangle.length.justReloaded = false
	a.noise.length.justReloaded = false

	pulseOut := a.mixPulses()
	tndOut := a.mixTND()
	ext := extAudio * a.mixer.extGain
	if a.cfg.Channels&(ChanExt0|ChanExt1|ChanExt2) == 0 {
		ext = 0
	}

	a.mixer.feed(pulseOut+tndOut, ext)
}

func (a *APU) mixPulses() float64 {
	var p1, p2 uint8
	if a.cfg.Channels&ChanPulse1 != 0 {
		p1 = a.pulse1.output()
	}
	if a.cfg.Channels&ChanPulse2 != 0 {
		p2 = a.pulse2.output()
	}
	if p1 == 0 && p2 == 0 {
		return 0
	}
	return pulseTable[p1+p2]
}

func (a *APU) mixTND() float64 {
	var tri, noise, dmcOut uint8
	if a.cfg.Channels&ChanTriangle != 0 {
		tri = a.triangle.output()
	}
	if a.cfg.Channels&ChanNoise != 0 {
		noise = a.noise.output()
	}
	if a.cfg.Channels&ChanDMC != 0 {
		dmcOut = a.dmc.output()
	}
	if tri == 0 && noise == 0 && dmcOut == 0 {
		return 0
	}
	idx := int(tri)*3 + int(noise)*2 + int(dmcOut)
	if idx >= len(tndTable) {
		idx = len(tndTable) - 1
	}
	return tndTable[idx]
}

// stepFrameSequencer advances the 4-step or 5-step frame counter and
// fires quarter/half-frame clocks (and, in 4-step mode, the frame
// IRQ) at the standard NTSC cycle counts.
func (a *APU) stepFrameSequencer() {
	a.frameCycle++
	if !a.frameMode {
		switch a.frameCycle {
		case 7457:
			a.clockQuarterFrame()
		case 14913:
			a.clockQuarterFrame()
			a.clockHalfFrame()
		case 22371:
			a.clockQuarterFrame()
		case 29828:
			if !a.frameIRQDisable {
				a.frameIRQFlag = true
			}
		case 29829:
			a.clockQuarterFrame()
			a.clockHalfFrame()
			if !a.frameIRQDisable {
				a.frameIRQFlag = true
			}
		case 29830:
			a.frameCycle = 0
			if !a.frameIRQDisable {
				a.frameIRQFlag = true
			}
		}
		return
	}
	switch a.frameCycle {
	case 7457:
		a.clockQuarterFrame()
	case 14913:
		a.clockQuarterFrame()
		a.clockHalfFrame()
	case 22371:
		a.clockQuarterFrame()
	case 37281:
		a.clockQuarterFrame()
		a.clockHalfFrame()
	case 37282:
		a.frameCycle = 0
	}
}

func (a *APU) clockQuarterFrame() {
	a.pulse1.env.clock()
	a.pulse2.env.clock()
	a.noise.env.clock()
	a.triangle.clockLinear()
}

func (a *APU) clockHalfFrame() {
	a.pulse1.length.clock()
	a.pulse2.length.clock()
	a.triangle.length.clock()
	a.noise.length.clock()
	a.pulse1.clockSweep()
	a.pulse2.clockSweep()
}

// TakeSamples returns and clears every output sample the resampler has
// produced since the last call; nes.go's NextFrame drains this once
// per emulated frame before invoking the host's audio callback.
func (a *APU) TakeSamples() []int16 { return a.mixer.take() }

// ClockDrift re-biases the resampler's output-rate conversion factor
// by a small fixed amount, letting a host keep its audio ring buffer
// centered without resorting to sample-rate-converting on its own
// side. measuredClock is the host's observed CPU clock estimate (e.g.
// derived from its own audio callback cadence); over selects which
// direction to nudge. Measurements too far from the nominal NTSC clock
// are ignored as probably-bogus.
func (a *APU) ClockDrift(measuredClock float64, over bool) {
	diff := measuredClock - cpuClockNTSC
	if diff < 0 {
		diff = -diff
	}
	if diff > 5000 {
		return
	}
	if over {
		a.mixer.rebias(1000)
	} else {
		a.mixer.rebias(-1000)
	}
}

// State is the APU's save-state shape; the resampler's in-flight
// buffer is intentionally excluded (audio glitches across a load are
// inaudible compared to losing sync with video/input state).
type State struct {
	Pulse1, Pulse2   PulseState
	Triangle         TriangleState
	Noise            NoiseState
	DMC              DMCState
	FrameMode        bool
	FrameIRQDisable  bool
	FrameIRQFlag     bool
	FrameCycle       uint32
	FrameResetDelay  int
	CycleCount       uint64
}

type PulseState struct {
	DutyMode, DutyValue                     uint8
	EnvStart, EnvLoop, EnvConstant           bool
	EnvVolume, EnvDivider, EnvDecay          uint8
	LengthEnabled, LengthHalt                bool
	LengthValue                              uint8
	TimerPeriod, TimerValue                  uint16
	SweepEnabled, SweepNegate, SweepReload    bool
	SweepShift, SweepPeriod, SweepValue       uint8
}

type TriangleState struct {
	LengthEnabled, LengthHalt bool
	LengthValue               uint8
	LinearReload              bool
	LinearValue, LinearPeriod uint8
	Control                   bool
	TimerPeriod, TimerValue   uint16
	SequenceIdx               uint8
}

type NoiseState struct {
	EnvStart, EnvLoop, EnvConstant  bool
	EnvVolume, EnvDivider, EnvDecay uint8
	LengthEnabled, LengthHalt       bool
	LengthValue                     uint8
	Mode                            bool
	PeriodIndex                     uint8
	TimerValue                      uint16
	Shift                           uint16
}

type DMCState struct {
	IRQEnable, Loop                    bool
	RateIndex                          uint8
	SampleAddr, SampleLength           uint16
	CurrentAddr, BytesRemaining        uint16
	SampleBuffer                       uint8
	SampleBufferEmpty                  bool
	ShiftReg, BitsInShift              uint8
	OutputLevel                        uint8
	TimerValue                         uint16
	IRQPending                         bool
	FetchPending                       bool
	FetchAddr                          uint16
}

func (a *APU) GetState() State {
	return State{
		Pulse1:          pulseToState(&a.pulse1),
		Pulse2:          pulseToState(&a.pulse2),
		Triangle: TriangleState{
			LengthEnabled: a.triangle.length.enabled, LengthHalt: a.triangle.length.halt,
			LengthValue: a.triangle.length.value, LinearReload: a.triangle.linearReload,
			LinearValue: a.triangle.linearValue, LinearPeriod: a.triangle.linearPeriod,
			Control: a.triangle.control, TimerPeriod: a.triangle.timerPeriod,
			TimerValue: a.triangle.timerValue, SequenceIdx: a.triangle.sequenceIdx,
		},
		Noise: NoiseState{
			EnvStart: a.noise.env.start, EnvLoop: a.noise.env.loop, EnvConstant: a.noise.env.constant,
			EnvVolume: a.noise.env.volume, EnvDivider: a.noise.env.divider, EnvDecay: a.noise.env.decay,
			LengthEnabled: a.noise.length.enabled, LengthHalt: a.noise.length.halt, LengthValue: a.noise.length.value,
			Mode: a.noise.mode, PeriodIndex: a.noise.periodIndex, TimerValue: a.noise.timerValue, Shift: a.noise.shift,
		},
		DMC: DMCState{
			IRQEnable: a.dmc.irqEnable, Loop: a.dmc.loop, RateIndex: a.dmc.rateIndex,
			SampleAddr: a.dmc.sampleAddr, SampleLength: a.dmc.sampleLength,
			CurrentAddr: a.dmc.currentAddr, BytesRemaining: a.dmc.bytesRemaining,
			SampleBuffer: a.dmc.sampleBuffer, SampleBufferEmpty: a.dmc.sampleBufferEmpty,
			ShiftReg: a.dmc.shiftReg, BitsInShift: a.dmc.bitsInShift, OutputLevel: a.dmc.outputLevel,
			TimerValue: a.dmc.timerValue, IRQPending: a.dmc.irqPending,
			FetchPending: a.dmc.fetchPending, FetchAddr: a.dmc.fetchAddr,
		},
		FrameMode: a.frameMode, FrameIRQDisable: a.frameIRQDisable, FrameIRQFlag: a.frameIRQFlag,
		FrameCycle: a.frameCycle, FrameResetDelay: a.frameResetDelay, CycleCount: a.cycleCount,
	}
}

func pulseToState(p *pulseChannel) PulseState {
	return PulseState{
		DutyMode: p.dutyMode, DutyValue: p.dutyValue,
		EnvStart: p.env.start, EnvLoop: p.env.loop, EnvConstant: p.env.constant,
		EnvVolume: p.env.volume, EnvDivider: p.env.divider, EnvDecay: p.env.decay,
		LengthEnabled: p.length.enabled, LengthHalt: p.length.halt, LengthValue: p.length.value,
		TimerPeriod: p.timerPeriod, TimerValue: p.timerValue,
		SweepEnabled: p.sweepEnabled, SweepNegate: p.sweepNegate, SweepReload: p.sweepReload,
		SweepShift: p.sweepShift, SweepPeriod: p.sweepPeriod, SweepValue: p.sweepValue,
	}
}

func (a *APU) SetState(s State) {
	stateToPulse(&a.pulse1, s.Pulse1)
	stateToPulse(&a.pulse2, s.Pulse2)

	a.triangle.length.enabled, a.triangle.length.halt, a.triangle.length.value = s.Triangle.LengthEnabled, s.Triangle.LengthHalt, s.Triangle.LengthValue
	a.triangle.linearReload, a.triangle.linearValue, a.triangle.linearPeriod = s.Triangle.LinearReload, s.Triangle.LinearValue, s.Triangle.LinearPeriod
	a.triangle.control, a.triangle.timerPeriod, a.triangle.timerValue, a.triangle.sequenceIdx = s.Triangle.Control, s.Triangle.TimerPeriod, s.Triangle.TimerValue, s.Triangle.SequenceIdx

	a.noise.env.start, a.noise.env.loop, a.noise.env.constant = s.Noise.EnvStart, s.Noise.EnvLoop, s.Noise.EnvConstant
	a.noise.env.volume, a.noise.env.divider, a.noise.env.decay = s.Noise.EnvVolume, s.Noise.EnvDivider, s.Noise.EnvDecay
	a.noise.length.enabled, a.noise.length.halt, a.noise.length.value = s.Noise.LengthEnabled, s.Noise.LengthHalt, s.Noise.LengthValue
	a.noise.mode, a.noise.periodIndex, a.noise.timerValue, a.noise.shift = s.Noise.Mode, s.Noise.PeriodIndex, s.Noise.TimerValue, s.Noise.Shift

	a.dmc.irqEnable, a.dmc.loop, a.dmc.rateIndex = s.DMC.IRQEnable, s.DMC.Loop, s.DMC.RateIndex
	a.dmc.sampleAddr, a.dmc.sampleLength = s.DMC.SampleAddr, s.DMC.SampleLength
	a.dmc.currentAddr, a.dmc.bytesRemaining = s.DMC.CurrentAddr, s.DMC.BytesRemaining
	a.dmc.sampleBuffer, a.dmc.sampleBufferEmpty = s.DMC.SampleBuffer, s.DMC.SampleBufferEmpty
	a.dmc.shiftReg, a.dmc.bitsInShift, a.dmc.outputLevel = s.DMC.ShiftReg, s.DMC.BitsInShift, s.DMC.OutputLevel
	a.dmc.timerValue, a.dmc.irqPending = s.DMC.TimerValue, s.DMC.IRQPending
	a.dmc.fetchPending, a.dmc.fetchAddr = s.DMC.FetchPending, s.DMC.FetchAddr

	a.frameMode, a.frameIRQDisable, a.frameIRQFlag = s.FrameMode, s.FrameIRQDisable, s.FrameIRQFlag
	a.frameCycle, a.frameResetDelay, a.cycleCount = s.FrameCycle, s.FrameResetDelay, s.CycleCount
}

func stateToPulse(p *pulseChannel, s PulseState) {
	p.dutyMode, p.dutyValue = s.DutyMode, s.DutyValue
	p.env.start, p.env.loop, p.env.constant = s.EnvStart, s.EnvLoop, s.EnvConstant
	p.env.volume, p.env.divider, p.env.decay = s.EnvVolume, s.EnvDivider, s.EnvDecay
	p.length.enabled, p.length.halt, p.length.value = s.LengthEnabled, s.LengthHalt, s.LengthValue
	p.timerPeriod, p.timerValue = s.TimerPeriod, s.TimerValue
	p.sweepEnabled, p.sweepNegate, p.sweepReload = s.SweepEnabled, s.SweepNegate, s.SweepReload
	p.sweepShift, p.sweepPeriod, p.sweepValue = s.SweepShift, s.SweepPeriod, s.SweepValue
}
