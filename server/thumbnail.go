package server

import (
	"image"

	"golang.org/x/image/draw"
)

// Thumbnail scales img to width keeping its aspect ratio.  Images no wider
// than width are returned unchanged.
func Thumbnail(img image.Image, width int) image.Image {

	b := img.Bounds()

	if width <= 0 || b.Dx() <= width {
		return img
	}

	height := max(1, b.Dy()*width/b.Dx())

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	return dst
}
