// Command nesgo runs the NES emulator core in an Ebitengine window.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/local/nesgo/internal/app"
)

func main() {
	rom := flag.String("rom", "", "path to a .nes ROM image")
	title := flag.String("title", "nesgo", "window title")
	configPath := flag.String("config", app.GetDefaultConfigPath(), "path to the host config JSON file")
	scale := flag.Int("scale", 0, "window scale factor override (0 = use config)")
	flag.Parse()

	cfg := app.NewConfig()
	if err := cfg.LoadFromFile(*configPath); err != nil {
		log.Printf("nesgo: config: %v (using defaults)", err)
	}
	if *scale > 0 {
		cfg.Window.Scale = *scale
	}

	game, err := app.NewGame(*rom, cfg)
	if err != nil {
		log.Fatalf("nesgo: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		if err := game.WriteSRAM(); err != nil {
			log.Printf("nesgo: save sram: %v", err)
		}
		os.Exit(0)
	}()

	ebiten.SetWindowTitle(*title)
	ebiten.SetWindowSize(256*cfg.Window.Scale, 240*cfg.Window.Scale)
	if cfg.Window.Fullscreen {
		ebiten.SetFullscreen(true)
	}
	if cfg.Window.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}

	if err := ebiten.RunGame(game); err != nil {
		log.Fatalf("nesgo: %v", err)
	}
	if err := game.WriteSRAM(); err != nil {
		log.Printf("nesgo: save sram: %v", err)
	}
}
