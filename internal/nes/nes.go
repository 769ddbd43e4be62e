// Package nes is the core's public surface: the Emulator aggregate
// that owns the CPU, PPU, APU, system bus, cartridge, and controllers,
// and exposes the create/load/next_frame/save-state API spec §6
// describes. Everything below this package is an implementation
// detail a host frontend never touches directly.
package nes

import (
	"bytes"

	"github.com/local/nesgo/internal/nes/apu"
	"github.com/local/nesgo/internal/nes/bus"
	"github.com/local/nesgo/internal/nes/cart"
	"github.com/local/nesgo/internal/nes/cpu"
	"github.com/local/nesgo/internal/nes/input"
	"github.com/local/nesgo/internal/nes/ppu"
	"github.com/local/nesgo/internal/nes/state"
)

// Button mirrors input.Button so callers don't need to import the
// input package themselves.
type Button = input.Button

const (
	ButtonA      = input.ButtonA
	ButtonB      = input.ButtonB
	ButtonSelect = input.ButtonSelect
	ButtonStart  = input.ButtonStart
	ButtonUp     = input.ButtonUp
	ButtonDown   = input.ButtonDown
	ButtonLeft   = input.ButtonLeft
	ButtonRight  = input.ButtonRight
)

// Config is the full set of host-tunable options spec §6 documents:
// palette selection, audio sample rate and channel mask, the two
// "emulator hack" scanline-stretch knobs, the sprite-per-scanline
// cap, and mono/stereo output.
type Config struct {
	Palette    ppu.PaletteName
	SampleRate int
	Channels   uint8
	PreNMI     int
	PostNMI    int
	MaxSprites int
	Stereo     bool
}

// DefaultConfig matches spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		Palette:    ppu.PaletteSmooth,
		SampleRate: 44100,
		Channels:   0xFF,
		PreNMI:     0,
		PostNMI:    0,
		MaxSprites: 8,
		Stereo:     true,
	}
}

func (c Config) ppuConfig() ppu.Config {
	maxSprites := c.MaxSprites
	if maxSprites < 8 {
		maxSprites = 8
	}
	if maxSprites > 64 {
		maxSprites = 64
	}
	return ppu.Config{
		Palette:    c.Palette,
		PreNMI:     c.PreNMI,
		PostNMI:    c.PostNMI,
		MaxSprites: maxSprites,
	}
}

func (c Config) apuConfig() apu.Config {
	sr := c.SampleRate
	if sr <= 0 {
		sr = 44100
	}
	return apu.Config{SampleRate: sr, Channels: c.Channels, Stereo: c.Stereo}
}

// LogFunc receives one already-formatted line per call; the host owns
// routing (spec §7). Process-wide by design, matching the reference
// implementation's single global log hook (spec §9).
type LogFunc func(format string, args ...any)

var logFn LogFunc = func(string, ...any) {}

// SetLogCallback installs the process-wide log sink. A nil fn restores
// the no-op default.
func SetLogCallback(fn LogFunc) {
	if fn == nil {
		fn = func(string, ...any) {}
	}
	logFn = fn
	cart.SetLogFunc(fn)
}

// VideoFunc receives one completed frame's packed-ABGR pixel buffer.
// The slice is only valid for the duration of the call; callers that
// need to keep it must copy.
type VideoFunc func(pixels []uint32, opaque any)

// AudioFunc receives one next_frame call's worth of signed 16-bit PCM.
// Mono delivers one sample per frame; stereo delivers interleaved L,R
// pairs, with countFrames always counting frame-pairs (spec §6).
type AudioFunc func(samples []int16, countFrames int, opaque any)

// Emulator is the opaque handle every core entry point in spec §6
// operates on. It exclusively owns its CPU/PPU/APU/bus/controllers;
// the cart is optional and is swapped out wholesale by LoadCart.
type Emulator struct {
	cfg Config

	cpu  *cpu.CPU
	ppu  *ppu.PPU
	apuC *apu.APU
	bus  *bus.Bus
	cart *cart.Cartridge

	cartLoaded bool
}

// Create builds a fresh Emulator with no cartridge loaded. Call
// LoadCart before NextFrame; NextFrame on an emulator with no cart is
// a no-op that advances nothing (cart_loaded() reports false).
func Create(cfg Config) *Emulator {
	e := &Emulator{cfg: cfg}
	e.bus = bus.New()
	e.ppu = ppu.New(nopCart{}, cfg.ppuConfig())
	e.apuC = apu.New(cfg.apuConfig())
	e.cpu = cpu.New(e.bus)
	e.bus.Attach(e.ppu, e.apuC, nil)
	e.bus.AttachCPU(e.cpu)
	e.cpu.Reset()
	return e
}

// Destroy releases the emulator's resources. The Go runtime's GC makes
// this a no-op beyond dropping references; kept as a named entry point
// to match spec §6's explicit create/destroy pairing for hosts ported
// from a manually-managed-memory language.
func Destroy(e *Emulator) { _ = e }

// nopCart is the CartPort the PPU sees before any cartridge is loaded:
// CHR reads return 0 (open CHR bus), everything else is inert.
type nopCart struct{}

func (nopCart) ReadCHR(uint16) uint8       { return 0 }
func (nopCart) WriteCHR(uint16, uint8)     {}
func (nopCart) A12Toggle()                 {}
func (nopCart) ScanlineHook()              {}
func (nopCart) Block2007() bool            { return false }
func (nopCart) PPUWriteHook(uint16, uint8) {}
func (nopCart) SetSpriteSize(bool)         {}

// LoadCart parses an iNES/NES 2.0 ROM image, constructs its mapper,
// and wires a fresh CPU/PPU/APU around it — mirroring the teacher's
// own LoadCartridge, which rebuilds Memory/CPU rather than patching
// state onto an old cart's leftovers. On any parse/validation error
// the previous cart (if any) is left fully intact (spec §7's
// invalid_rom/unsupported_mapper/size_mismatch/unsupported_format
// refuse-to-load contract).
func (e *Emulator) LoadCart(rom []byte, sram []byte, header *cart.Desc) error {
	var desc *cart.Desc
	var prg, chr []byte
	var err error

	if header != nil {
		desc = header
		prg = rom
	} else {
		desc, prg, chr, err = cart.ParseHeader(bytes.NewReader(rom))
		if err != nil {
			logFn("nes: load_cart failed: %v", err)
			return err
		}
	}

	c, err := cart.Create(desc, prg, chr, sram)
	if err != nil {
		logFn("nes: load_cart failed: %v", err)
		return err
	}

	e.cart = c
	e.ppu = ppu.New(c, e.cfg.ppuConfig())
	e.apuC = apu.New(e.cfg.apuConfig())
	e.bus = bus.New()
	e.bus.Attach(e.ppu, e.apuC, c)
	e.cpu = cpu.New(e.bus)
	e.bus.AttachCPU(e.cpu)
	e.cpu.Reset()
	e.cartLoaded = true
	return nil
}

// UnloadCart detaches the current cartridge; a subsequent NextFrame
// runs a cartless system (PRG/CHR space reads open-bus/0).
func (e *Emulator) UnloadCart() {
	e.cart = nil
	e.cartLoaded = false
	e.ppu = ppu.New(nopCart{}, e.cfg.ppuConfig())
	e.apuC = apu.New(e.cfg.apuConfig())
	e.bus = bus.New()
	e.bus.Attach(e.ppu, e.apuC, nil)
	e.cpu = cpu.New(e.bus)
	e.bus.AttachCPU(e.cpu)
	e.cpu.Reset()
}

// CartLoaded reports whether a cartridge is currently attached.
func (e *Emulator) CartLoaded() bool { return e.cartLoaded }

// Reset performs a CPU reset sequence (spec §4.3, §8 property 5). A
// hard reset also reinitializes the APU and cart (mapper power-on
// state); a soft reset leaves APU/cart register state untouched,
// matching the NES's own RESET line only reaching the CPU and PPU.
func (e *Emulator) Reset(hard bool) {
	if hard {
		e.apuC = apu.New(e.cfg.apuConfig())
		if e.cart != nil {
			e.cart.Reset()
		}
		e.bus.Attach(e.ppu, e.apuC, cartOrNil(e.cart))
	}
	e.cpu.Reset()
}

func cartOrNil(c *cart.Cartridge) bus.Cart {
	if c == nil {
		return nil
	}
	return c
}

// NextFrame drives the cycle loop until the PPU completes a frame,
// then hands the pixel buffer and the APU's accumulated sample batch
// to the host callbacks (video first, then audio, per spec §6), and
// returns the number of CPU cycles consumed. A no-op (returns 0)
// immediately if no cartridge is loaded.
func (e *Emulator) NextFrame(videoCB VideoFunc, audioCB AudioFunc, opaque any) uint64 {
	if !e.cartLoaded {
		return 0
	}
	startCycles := e.cpu.Cycles()
	for !e.ppu.FrameDone() {
		e.bus.Step()
	}
	elapsed := e.cpu.Cycles() - startCycles

	if videoCB != nil {
		videoCB(e.ppu.Framebuffer[:], opaque)
	}
	if audioCB != nil {
		samples := e.apuC.TakeSamples()
		countFrames := len(samples)
		if e.cfg.Stereo {
			countFrames = len(samples) / 2
		}
		audioCB(samples, countFrames, opaque)
	}
	return elapsed
}

// ControllerButton sets or clears a single button for player (0 or 1);
// takes effect on the controller's next strobe-latched read.
func (e *Emulator) ControllerButton(player int, b Button, pressed bool) {
	e.bus.Input.SetButton(player, b, pressed)
}

// ControllerState replaces a player's entire button bitmask at once.
func (e *Emulator) ControllerState(player int, v uint8) {
	e.bus.Input.SetButtons(player, v)
}

// SetConfig applies a new configuration live: palette/PPU-hack knobs
// take effect immediately, and the APU resampler reinitializes if the
// sample rate or stereo mode changed.
func (e *Emulator) SetConfig(cfg Config) {
	e.cfg = cfg
	e.ppu.SetConfig(cfg.ppuConfig())
	e.apuC.SetConfig(cfg.apuConfig())
}

// APUClockDrift forwards a host-measured real clock-rate sample to the
// resampler's drift-compensation logic (spec §4.5).
func (e *Emulator) APUClockDrift(measuredClock float64, over bool) {
	e.apuC.ClockDrift(measuredClock, over)
}

// SRAMDirty returns (and clears) the number of battery-SRAM bytes
// written since the last call. Zero if no cart, or no battery.
func (e *Emulator) SRAMDirty() int {
	if e.cart == nil {
		return 0
	}
	return e.cart.SRAMDirty()
}

// GetSRAM copies the cart's battery-backed PRG-RAM into buf, returning
// the number of bytes copied (0 if no cart is loaded).
func (e *Emulator) GetSRAM(buf []byte) int {
	if e.cart == nil {
		return 0
	}
	e.cart.GetSRAM(buf)
	if len(buf) < len(e.cart.PRGRAM) {
		return len(buf)
	}
	return len(e.cart.PRGRAM)
}

// GetState produces a self-describing binary snapshot of the entire
// machine (CPU, PPU, APU, bus, controllers, and cart memory/mapper
// state), per spec §4.7.
func (e *Emulator) GetState() []byte {
	var cartBlob []byte
	if e.cart != nil {
		cartBlob = e.cart.GetState()
	}
	snap := state.Snapshot{
		CPU:  e.cpu.GetState(),
		PPU:  e.ppu.GetState(),
		APU:  e.apuC.GetState(),
		Bus:  e.bus.GetState(),
		Cart: cartBlob,
	}
	blob, err := state.Encode(snap)
	if err != nil {
		logFn("nes: get_state encode failed: %v", err)
		return nil
	}
	return blob
}

// SetState restores a blob produced by GetState. On any size/shape
// mismatch the emulator's current state is left untouched and false
// is returned (spec §7's bad_state contract).
func (e *Emulator) SetState(data []byte) bool {
	snap, err := state.Decode(data)
	if err != nil {
		logFn("nes: set_state decode failed: %v", err)
		return false
	}
	if e.cart != nil && len(snap.Cart) > 0 {
		if err := e.cart.SetState(snap.Cart); err != nil {
			logFn("nes: set_state cart restore failed: %v", err)
			return false
		}
	}
	e.cpu.SetState(snap.CPU)
	e.ppu.SetState(snap.PPU)
	e.apuC.SetState(snap.APU)
	e.bus.SetState(snap.Bus)
	return true
}

// Framebuffer exposes the PPU's current (most recently completed)
// packed-ABGR pixel buffer without waiting for a callback.
func (e *Emulator) Framebuffer() []uint32 { return e.ppu.Framebuffer[:] }
