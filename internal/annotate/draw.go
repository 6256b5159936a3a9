package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// BoxColor is used for every box and label
	BoxColor = color.RGBA{255, 0, 0, 255}

	labelBackground = color.RGBA{0, 0, 0, 180}
)

const (
	lineThickness = 2
	glyphWidth    = 7
	glyphHeight   = 13
)

// drawBox draws a rectangle outline clipped to the image
func drawBox(img draw.Image, r image.Rectangle, c color.Color, thickness int) {
	bounds := img.Bounds()
	r = r.Canon()

	set := func(x, y int) {
		if image.Pt(x, y).In(bounds) {
			img.Set(x, y, c)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			set(x, r.Min.Y+t)
			set(x, r.Max.Y-t)
		}
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			set(r.Min.X+t, y)
			set(r.Max.X-t, y)
		}
	}
}

// drawLabel draws text on a dark background just above (x, y)
func drawLabel(img draw.Image, x, y int, label string, c color.Color) {
	if label == "" {
		return
	}

	y -= glyphHeight + 2
	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}

	bg := image.Rect(x-2, y-2, x+len(label)*glyphWidth+2, y+glyphHeight).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(labelBackground), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + glyphHeight - 3)},
	}
	d.DrawString(label)
}
