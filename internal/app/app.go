// Package app is the host frontend: an Ebitengine window that drives
// the core's NextFrame loop, presents its framebuffer, feeds it a
// PCM audio stream, and translates keyboard state into controller
// input. Everything in this package is an "external collaborator" per
// spec §1 — the core (package nes and below) never imports it.
package app

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/local/nesgo/internal/nes"
)

const (
	nesWidth  = 256
	nesHeight = 240
	sampleHz  = 44100
)

// Game implements ebiten.Game, wrapping one Emulator instance. Ebiten
// calls Update at a fixed logical rate and Draw as fast as vsync
// allows; NES frame production is tied to Update so audio and video
// stay in lockstep with the core's own 60Hz cadence.
type Game struct {
	emu *nes.Emulator
	cfg *Config

	keyMap1 map[ebiten.Key]nes.Button
	keyMap2 map[ebiten.Key]nes.Button

	frameImage *ebiten.Image
	pixelBuf   []byte // RGBA scratch, reused across frames

	audioPlayer *audio.Player
	audioQueue  *audioQueue

	romPath string
}

// NewGame constructs a Game around a freshly created Emulator,
// configured from cfg (NewConfig() if nil), and optionally loads
// romPath (if non-empty) before returning.
func NewGame(romPath string, cfg *Config) (*Game, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	ecfg := nes.DefaultConfig()
	ecfg.SampleRate = cfg.Audio.SampleRate
	ecfg.Stereo = cfg.Audio.Stereo
	ecfg.MaxSprites = cfg.Emulation.MaxSprites
	emu := nes.Create(ecfg)

	g := &Game{
		emu:        emu,
		cfg:        cfg,
		keyMap1:    buildKeyMap(cfg.Input.Player1Keys),
		keyMap2:    buildKeyMap(cfg.Input.Player2Keys),
		frameImage: ebiten.NewImage(nesWidth, nesHeight),
		pixelBuf:   make([]byte, nesWidth*nesHeight*4),
		audioQueue: newAudioQueue(),
	}

	if cfg.Audio.Enabled {
		audioCtx := audio.NewContext(cfg.Audio.SampleRate)
		player, err := audioCtx.NewPlayer(g.audioQueue)
		if err != nil {
			return nil, fmt.Errorf("create audio player: %w", err)
		}
		player.SetVolume(float64(cfg.Audio.Volume))
		g.audioPlayer = player
		g.audioPlayer.Play()
	}

	if romPath != "" {
		if err := g.LoadROM(romPath); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// LoadROM reads path and loads it into the emulator, refusing (and
// leaving any previously-loaded cart intact) on a parse/validation
// error per spec §7.
func (g *Game) LoadROM(path string) error {
	data, sram, err := readROMAndSRAM(path)
	if err != nil {
		return err
	}
	if err := g.emu.LoadCart(data, sram, nil); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	g.romPath = path
	return nil
}

// Update advances the emulator by exactly one frame, applying the
// current keyboard state to players 0 and 1 before running it, per spec §5's
// "input snapshot takes effect on the next controller read" ordering.
func (g *Game) Update() error {
	if !g.emu.CartLoaded() {
		return nil
	}
	for key, btn := range g.keyMap1 {
		g.emu.ControllerButton(0, btn, ebiten.IsKeyPressed(key))
	}
	for key, btn := range g.keyMap2 {
		g.emu.ControllerButton(1, btn, ebiten.IsKeyPressed(key))
	}

	g.emu.NextFrame(g.onVideo, g.onAudio, nil)
	return nil
}

// onVideo unpacks the core's packed-ABGR framebuffer into the RGBA
// scratch buffer ebiten.Image.WritePixels expects and uploads it.
func (g *Game) onVideo(pixels []uint32, _ any) {
	for i, px := range pixels {
		o := i * 4
		g.pixelBuf[o+0] = uint8(px)       // R
		g.pixelBuf[o+1] = uint8(px >> 8)  // G
		g.pixelBuf[o+2] = uint8(px >> 16) // B
		g.pixelBuf[o+3] = 0xFF
	}
	g.frameImage.WritePixels(g.pixelBuf)
}

// onAudio pushes one frame's worth of signed 16-bit stereo PCM into
// the audio queue the ebiten player streams from.
func (g *Game) onAudio(samples []int16, _ int, _ any) {
	if g.audioPlayer == nil {
		return
	}
	if !g.cfg.Audio.Stereo {
		stereo := make([]int16, 2*len(samples))
		for i, s := range samples {
			stereo[2*i], stereo[2*i+1] = s, s
		}
		samples = stereo
	}
	g.audioQueue.push(samples)
}

// Draw scales the 256x240 NES frame up to fill the window.
func (g *Game) Draw(screen *ebiten.Image) {
	if !g.emu.CartLoaded() {
		return
	}
	bounds := screen.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(sw)/nesWidth, float64(sh)/nesHeight)
	screen.DrawImage(g.frameImage, op)
}

// Layout reports the game's fixed logical resolution; ebiten scales
// the actual window around it.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return nesWidth, nesHeight
}

// audioQueue is a small byte ring buffer implementing io.Reader so
// ebiten's audio.Player can stream from it; onAudio (called from
// Update, ebiten's single logic goroutine) and Read (called from
// ebiten's audio goroutine) run concurrently, hence the mutex.
type audioQueue struct {
	mu  sync.Mutex
	buf []byte
}

func newAudioQueue() *audioQueue { return &audioQueue{} }

// push appends one frame's signed-16-bit samples, little-endian, to
// the queue.
func (q *audioQueue) push(samples []int16) {
	if len(samples) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range samples {
		q.buf = append(q.buf, byte(s), byte(s>>8))
	}
	// Cap the queue so a slow audio consumer doesn't grow it unbounded;
	// drop the oldest samples rather than stalling emulation.
	const maxBytes = sampleHz * 2 * 2 // ~1 second of stereo 16-bit audio
	if len(q.buf) > maxBytes {
		q.buf = q.buf[len(q.buf)-maxBytes:]
	}
}

// Read drains queued bytes; when the queue is empty it returns silence
// rather than blocking, since ebiten's audio goroutine must not stall
// on the emulator's frame cadence.
func (q *audioQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	if n < len(p) {
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		n = len(p)
	}
	return n, nil
}
