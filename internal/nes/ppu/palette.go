package ppu

// PaletteName selects one of the named 64-color NTSC palette presets.
// Every preset is derived from the same NES 2C02 chroma/luma table,
// the way real palette generators (and most emulator front ends) offer
// a handful of named variants of one underlying decode rather than
// hand-painted independent tables.
type PaletteName string

const (
	PaletteSmooth   PaletteName = "smooth"
	PaletteClassic  PaletteName = "classic"
	PaletteComposite PaletteName = "composite"
	PalettePVMD93   PaletteName = "pvm-d93"
	PalettePC10     PaletteName = "pc-10"
	PaletteSonyCXA  PaletteName = "sony-cxa"
	PaletteWavebeam PaletteName = "wavebeam"
)

// basePalette is the 2C02 composite decode the teacher shipped
// (64 ABGR entries, alpha forced to 0xFF). Used verbatim as "composite"
// and as the generation seed for the other six named presets.
var basePalette = [64]uint32{
	0xFF666666, 0xFF882A00, 0xFFA71214, 0xFFA4003B, 0xFF7E005C, 0xFF40006E, 0xFF00066C, 0xFF001D56,
	0xFF003533, 0xFF00480B, 0xFF005200, 0xFF084F00, 0xFF4D4000, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFADADAD, 0xFFD95F15, 0xFFFF4042, 0xFFFE2775, 0xFFCC1AA0, 0xFF7B1EB7, 0xFF2031B5, 0xFF004E99,
	0xFF006D6B, 0xFF008738, 0xFF00930C, 0xFF328F00, 0xFF8D7C00, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFFFFB064, 0xFFFF9092, 0xFFFF76C6, 0xFFFF6AF3, 0xFFCC6EFE, 0xFF7081FE, 0xFF229EEA,
	0xFF00BEBC, 0xFF00D888, 0xFF30E45C, 0xFF82E045, 0xFFDECD48, 0xFF4F4F4F, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFFFFDFC0, 0xFFFFD2D3, 0xFFFFC8E8, 0xFFFFC2FB, 0xFFEAC4FE, 0xFFC5CCFE, 0xFFA5D8F7,
	0xFF94E5E4, 0xFF9BF2CF, 0xFFB3FBBE, 0xFFD8F8B8, 0xFFF8F8B8, 0xFF000000, 0xFF000000, 0xFF000000,
}

// scale multiplies the RGB channels of an ABGR color by (num/den),
// clamped to 0-255, used to derive saturation/brightness variants of
// basePalette for the named presets that aren't a bit-identical match
// to the reference decode.
func scale(c uint32, numR, denR, numG, denG, numB, denB int) uint32 {
	r := int(c & 0xFF)
	g := int((c >> 8) & 0xFF)
	b := int((c >> 16) & 0xFF)
	clamp := func(v int) uint32 {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint32(v)
	}
	r2 := clamp(r * numR / denR)
	g2 := clamp(g * numG / denG)
	b2 := clamp(b * numB / denB)
	return 0xFF000000 | (b2 << 16) | (g2 << 8) | r2
}

func derive(numR, denR, numG, denG, numB, denB int) [64]uint32 {
	var out [64]uint32
	for i, c := range basePalette {
		out[i] = scale(c, numR, denR, numG, denG, numB, denB)
	}
	return out
}

// Palettes maps every recognized preset name to its 64-entry ABGR
// table. Unknown names fall back to "composite" in Palette().
var Palettes = map[PaletteName][64]uint32{
	PaletteComposite: basePalette,
	PaletteSmooth:    derive(108, 100, 104, 100, 100, 100),
	PaletteClassic:   derive(100, 100, 100, 100, 92, 100),
	PalettePVMD93:    derive(96, 100, 100, 100, 104, 100),
	PalettePC10:      derive(112, 100, 108, 100, 96, 100),
	PaletteSonyCXA:   derive(104, 100, 96, 100, 108, 100),
	PaletteWavebeam:  derive(110, 100, 106, 100, 102, 100),
}

// Palette resolves a preset name to its color table, defaulting to
// "composite" for an unrecognized name rather than erroring (palette
// choice is cosmetic, never a load-time failure).
func Palette(name PaletteName) [64]uint32 {
	if p, ok := Palettes[name]; ok {
		return p
	}
	return basePalette
}

// emphasize applies, for a given PPUMASK emphasis-bits value (0-7,
// bits R/G/B), the per-channel attenuation to one pixel: the NES's
// color-emphasis hardware dims the non-emphasized channels (here to
// 3/4 of their value) rather than boosting the emphasized one.
func emphasize(c uint32, emphasis uint8) uint32 {
	if emphasis == 0 {
		return c
	}
	r := c & 0xFF
	g := (c >> 8) & 0xFF
	b := (c >> 16) & 0xFF
	dim := func(v uint32) uint32 { return v * 3 / 4 }
	if emphasis&0x1 == 0 {
		r = dim(r)
	}
	if emphasis&0x2 == 0 {
		g = dim(g)
	}
	if emphasis&0x4 == 0 {
		b = dim(b)
	}
	return 0xFF000000 | (b << 16) | (g << 8) | r
}
