package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/local/nesgo/internal/nes"
)

// Config holds all host-side configuration: window geometry, audio
// tuning, key bindings and filesystem paths. None of this reaches the
// core (package nes) — it only shapes how Game drives it.
type Config struct {
	Window    WindowConfig    `json:"window"`
	Audio     AudioConfig     `json:"audio"`
	Input     InputConfig     `json:"input"`
	Emulation EmulationConfig `json:"emulation"`
	Paths     PathsConfig     `json:"paths"`

	configPath string
}

// WindowConfig contains window-related configuration.
type WindowConfig struct {
	Fullscreen bool `json:"fullscreen"`
	Resizable  bool `json:"resizable"`
	Scale      int  `json:"scale"` // NES resolution multiplier
}

// AudioConfig contains audio configuration.
type AudioConfig struct {
	Enabled    bool    `json:"enabled"`
	SampleRate int     `json:"sample_rate"`
	Volume     float32 `json:"volume"`
	Stereo     bool    `json:"stereo"`
}

// InputConfig contains input configuration.
type InputConfig struct {
	Player1Keys KeyMapping `json:"player1_keys"`
	Player2Keys KeyMapping `json:"player2_keys"`
}

// KeyMapping names keyboard keys for one NES standard controller, by
// the same key-name strings ebiten itself prints (ebiten.Key.String()).
type KeyMapping struct {
	Up     string `json:"up"`
	Down   string `json:"down"`
	Left   string `json:"left"`
	Right  string `json:"right"`
	A      string `json:"a"`
	B      string `json:"b"`
	Start  string `json:"start"`
	Select string `json:"select"`
}

// EmulationConfig contains emulation-level settings. Region is kept as
// a field for forward compatibility with the original core's PAL/Dendy
// modes, but only "NTSC" is honored; anything else falls back to NTSC.
type EmulationConfig struct {
	Region     string `json:"region"`
	MaxSprites int    `json:"max_sprites"`
}

// PathsConfig contains file and directory paths.
type PathsConfig struct {
	ROMs     string `json:"roms"`
	SaveData string `json:"save_data"`
}

// NewConfig returns the default host configuration.
func NewConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Resizable: true,
			Scale:     3,
		},
		Audio: AudioConfig{
			Enabled:    true,
			SampleRate: sampleHz,
			Volume:     0.8,
			Stereo:     false,
		},
		Input: InputConfig{
			Player1Keys: KeyMapping{
				Up: "ArrowUp", Down: "ArrowDown", Left: "ArrowLeft", Right: "ArrowRight",
				A: "Z", B: "X", Start: "Enter", Select: "ShiftRight",
			},
			Player2Keys: KeyMapping{
				Up: "I", Down: "K", Left: "J", Right: "L",
				A: "C", B: "V", Start: "G", Select: "F",
			},
		},
		Emulation: EmulationConfig{
			Region:     "NTSC",
			MaxSprites: 8,
		},
		Paths: PathsConfig{
			ROMs:     "./roms",
			SaveData: "./saves",
		},
	}
}

// LoadFromFile loads configuration from a JSON file, writing the
// default configuration to path first if it does not yet exist.
func (c *Config) LoadFromFile(path string) error {
	c.configPath = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c.SaveToFile(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	c.validate()
	return nil
}

// SaveToFile saves configuration to a JSON file, creating its parent
// directory if needed.
func (c *Config) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	c.configPath = path
	return nil
}

// Save writes back to the path Config was last loaded from or saved to.
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("config: no path set")
	}
	return c.SaveToFile(c.configPath)
}

// validate clamps out-of-range values to sane defaults rather than
// rejecting the whole file over one bad field.
func (c *Config) validate() {
	if c.Window.Scale <= 0 {
		c.Window.Scale = 3
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = sampleHz
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		c.Audio.Volume = 0.8
	}
	if c.Emulation.Region != "NTSC" {
		c.Emulation.Region = "NTSC"
	}
	if c.Emulation.MaxSprites <= 0 {
		c.Emulation.MaxSprites = 8
	}
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return "./config/nesgo.json"
}

// keyByName resolves the key-name strings used in KeyMapping to
// ebiten key codes, covering the names NewConfig's defaults use plus
// the common alphanumeric and arrow keys a user might rebind to.
func keyByName(name string) (ebiten.Key, bool) {
	for k := ebiten.Key(0); k <= ebiten.KeyMax; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// buildKeyMap turns a KeyMapping into the ebiten-key-to-button table
// Game.Update consults each frame, skipping names that don't resolve
// to a known key rather than failing configuration load outright.
func buildKeyMap(km KeyMapping) map[ebiten.Key]nes.Button {
	out := map[ebiten.Key]nes.Button{}
	add := func(name string, b nes.Button) {
		if k, ok := keyByName(name); ok {
			out[k] = b
		}
	}
	add(km.Up, nes.ButtonUp)
	add(km.Down, nes.ButtonDown)
	add(km.Left, nes.ButtonLeft)
	add(km.Right, nes.ButtonRight)
	add(km.A, nes.ButtonA)
	add(km.B, nes.ButtonB)
	add(km.Start, nes.ButtonStart)
	add(km.Select, nes.ButtonSelect)
	return out
}
