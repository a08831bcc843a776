package render

import (
	"image/color"
	"strconv"
)

// paletteHex is the ultralytics box palette
var paletteHex = []string{
	"FF3838", "FF701F", "FFB21D", "CFD231", "48F90A",
	"1A9334", "00D4BB", "00C2FF", "344593", "6473FF",
	"0018EC", "8438FF", "520085", "FF95C8", "FF37C7",
	"FF9D97", "2C99A8", "3DDB86", "CB38FF", "92CC17",
}

var (
	palette = decodePalette(paletteHex)

	Black  = color.RGBA{A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}
	Pink   = color.RGBA{R: 255, B: 255, A: 255}
)

func decodePalette(hex []string) []color.RGBA {
	out := make([]color.RGBA, len(hex))

	for i, h := range hex {
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			panic("render: bad palette entry " + h)
		}
		out[i] = color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	}

	return out
}

// ColorFor returns the palette color for a track id or class, wrapping
// around the palette.  Negative indices are folded to positive
func ColorFor(idx int) color.RGBA {
	if idx < 0 {
		idx = -idx
	}
	return palette[idx%len(palette)]
}
