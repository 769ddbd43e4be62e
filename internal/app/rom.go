package app

import (
	"os"
	"path/filepath"
	"strings"
)

// readROMAndSRAM loads a ROM image from disk, plus any sibling
// battery-save file (same path, .sav extension) if one exists — the
// host-owned save-file format spec §6 describes as raw SRAM bytes.
func readROMAndSRAM(romPath string) (rom []byte, sram []byte, err error) {
	rom, err = os.ReadFile(romPath)
	if err != nil {
		return nil, nil, err
	}
	savePath := sramPath(romPath)
	if data, err := os.ReadFile(savePath); err == nil {
		sram = data
	}
	return rom, sram, nil
}

// sramPath derives the battery-save sibling path for a ROM file.
func sramPath(romPath string) string {
	ext := filepath.Ext(romPath)
	return strings.TrimSuffix(romPath, ext) + ".sav"
}

// WriteSRAM persists the emulator's current battery-backed SRAM next
// to the loaded ROM, if anything has been written since the cart was
// loaded or last saved.
func (g *Game) WriteSRAM() error {
	if g.romPath == "" {
		return nil
	}
	if g.emu.SRAMDirty() == 0 {
		return nil
	}
	buf := make([]byte, 64*1024)
	n := g.emu.GetSRAM(buf)
	return os.WriteFile(sramPath(g.romPath), buf[:n], 0o644)
}
